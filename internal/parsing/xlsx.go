package parsing

import (
	"bytes"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/dvloznov/parity/internal/domain"
)

// ParseXLSX parses a spreadsheet statement export. The workbook must carry
// exactly one visible sheet with the same column contract as ParseCSV.
// Merged cells in the header row, duplicate headers and repeated header
// rows are rejected; blank rows are skipped.
func ParseXLSX(fileBytes []byte, documentID, dealCurrency string) ([]*domain.Transaction, string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(fileBytes))
	if err != nil {
		return nil, "", schemaErrorf("malformed XLSX: %v", err)
	}
	defer f.Close()

	sheet, err := visibleSheet(f)
	if err != nil {
		return nil, "", err
	}

	merged, err := f.GetMergeCells(sheet)
	if err != nil {
		return nil, "", schemaErrorf("read merged cells: %v", err)
	}
	for _, mc := range merged {
		if _, row, err := excelize.CellNameToCoordinates(mc.GetStartAxis()); err == nil && row == 1 {
			return nil, "", schemaErrorf("merged cells in the header row are not allowed")
		}
	}

	raw, err := f.GetRows(sheet)
	if err != nil {
		return nil, "", schemaErrorf("read sheet rows: %v", err)
	}
	if len(raw) == 0 {
		return nil, "", schemaErrorf("sheet contains no rows")
	}

	seen := make(map[string]bool, len(raw[0]))
	for _, h := range raw[0] {
		name := normalizeHeader(h)
		if name == "" {
			continue
		}
		if seen[name] {
			return nil, "", schemaErrorf("duplicate header detected: %s", name)
		}
		seen[name] = true
	}
	if len(raw) > 1 && repeatsHeader(raw[1]) {
		return nil, "", schemaErrorf("multiple header rows detected")
	}

	records := [][]string{raw[0]}
	for _, row := range raw[1:] {
		if !blankRow(row) {
			records = append(records, row)
		}
	}
	return rowsFromRecords(records, documentID, dealCurrency, "sheet")
}

// visibleSheet returns the workbook's single visible sheet.
func visibleSheet(f *excelize.File) (string, error) {
	var visible []string
	for _, name := range f.GetSheetList() {
		ok, err := f.GetSheetVisible(name)
		if err != nil {
			return "", schemaErrorf("read sheet visibility: %v", err)
		}
		if ok {
			visible = append(visible, name)
		}
	}
	if len(visible) == 0 {
		return "", schemaErrorf("no visible worksheet found")
	}
	if len(visible) > 1 {
		return "", schemaErrorf("multiple visible worksheets are not allowed")
	}
	return visible[0], nil
}

// repeatsHeader reports whether a data row still carries required header
// tokens, the signature of a sheet with stacked header rows.
func repeatsHeader(row []string) bool {
	names := make(map[string]bool, len(row))
	for _, cell := range row {
		if name := normalizeHeader(cell); name != "" {
			names[name] = true
		}
	}
	for _, h := range requiredHeaders {
		if names[h] {
			return true
		}
	}
	return false
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
