package notionsync

import (
	"github.com/dvloznov/parity/internal/domain"
	"github.com/jomei/notionapi"
)

// DealSummaryProperties converts a deal and its latest analysis into Notion
// page properties for the deal summary database. run is required; snap may be
// nil when the deal has never been exported.
func DealSummaryProperties(deal *domain.Deal, run *domain.AnalysisRun, snap *domain.Snapshot) notionapi.Properties {
	title := deal.Name
	if title == "" {
		title = deal.ID
	}

	props := notionapi.Properties{
		"Deal":    titleProp(title),
		"Deal ID": richTextProp(deal.ID),
		"Currency": notionapi.SelectProperty{
			Select: notionapi.Option{Name: deal.Currency},
		},
		"Tier": notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(run.Tier)},
		},
		"Reconciliation": notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(run.ReconciliationStatus)},
		},
		"Confidence %": notionapi.NumberProperty{
			Number: bpToPercent(run.FinalConfidenceBP),
		},
		"Coverage %": notionapi.NumberProperty{
			Number: bpToPercent(run.CoveragePctBP),
		},
		"Missing Months": notionapi.NumberProperty{
			Number: float64(run.MissingMonthCount),
		},
		"Tier Capped": notionapi.CheckboxProperty{
			Checkbox: run.TierCapped,
		},
		"Last Run": notionapi.DateProperty{
			Date: &notionapi.DateObject{
				Start: (*notionapi.Date)(&run.CreatedAt),
			},
		},
	}

	if run.ReconciliationPctBP != nil {
		props["Reconciliation %"] = notionapi.NumberProperty{
			Number: bpToPercent(*run.ReconciliationPctBP),
		}
	}

	if snap != nil {
		props["Snapshot Hash"] = richTextProp(snap.SHA256Hash)
		props["Financial State Hash"] = richTextProp(snap.FinancialStateHash)
		props["Last Exported"] = notionapi.DateProperty{
			Date: &notionapi.DateObject{
				Start: (*notionapi.Date)(&snap.CreatedAt),
			},
		}
	}

	return props
}

// bpToPercent converts basis points to a percentage value for Notion number
// columns. 8542bp renders as 85.42.
func bpToPercent(bp int64) float64 {
	return float64(bp) / 100
}

func titleProp(content string) notionapi.TitleProperty {
	return notionapi.TitleProperty{
		Title: []notionapi.RichText{
			{
				Type: notionapi.ObjectTypeText,
				Text: &notionapi.Text{Content: content},
			},
		},
	}
}

func richTextProp(content string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		RichText: []notionapi.RichText{
			{
				Type: notionapi.ObjectTypeText,
				Text: &notionapi.Text{Content: content},
			},
		},
	}
}

// extractDealID extracts the deal ID from a Notion page's properties.
// Returns empty string if not found.
func extractDealID(page notionapi.Page) string {
	if prop, ok := page.Properties["Deal ID"]; ok {
		if richText, ok := prop.(*notionapi.RichTextProperty); ok {
			if len(richText.RichText) > 0 {
				return richText.RichText[0].PlainText
			}
		}
	}
	return ""
}
