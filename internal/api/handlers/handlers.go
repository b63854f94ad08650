package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/dvloznov/parity/internal/api/middleware"
	"github.com/dvloznov/parity/internal/domain"
	"github.com/dvloznov/parity/internal/jobs"
	"github.com/dvloznov/parity/internal/service"
)

// maxDocumentBytes bounds uploaded statement files.
const maxDocumentBytes = 32 << 20

// writeServiceError maps the service error taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, log zerolog.Logger, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		middleware.WriteError(w, http.StatusBadRequest, ve.Error())
	case domain.IsNotFound(err):
		middleware.WriteError(w, http.StatusNotFound, err.Error())
	default:
		log.Error().Err(err).Msg("request failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// DealsHandler handles deal-related endpoints.
type DealsHandler struct {
	svc *service.Service
	log zerolog.Logger
}

// NewDealsHandler creates a new deals handler.
func NewDealsHandler(svc *service.Service, log zerolog.Logger) *DealsHandler {
	return &DealsHandler{svc: svc, log: log}
}

type createDealRequest struct {
	Currency  string `json:"currency"`
	Name      string `json:"name"`
	CreatedBy string `json:"created_by"`

	AccrualRevenueCents *int64  `json:"accrual_revenue_cents"`
	AccrualPeriodStart  *string `json:"accrual_period_start"`
	AccrualPeriodEnd    *string `json:"accrual_period_end"`
}

// Create handles POST /api/deals
func (h *DealsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createDealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	in := service.CreateDealInput{
		Currency:            req.Currency,
		Name:                req.Name,
		CreatedBy:           req.CreatedBy,
		AccrualRevenueCents: req.AccrualRevenueCents,
	}
	if req.AccrualPeriodStart != nil {
		d, err := civil.ParseDate(*req.AccrualPeriodStart)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid accrual_period_start")
			return
		}
		in.AccrualPeriodStart = &d
	}
	if req.AccrualPeriodEnd != nil {
		d, err := civil.ParseDate(*req.AccrualPeriodEnd)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid accrual_period_end")
			return
		}
		in.AccrualPeriodEnd = &d
	}

	deal, err := h.svc.CreateDeal(r.Context(), in)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, deal)
}

// List handles GET /api/deals
func (h *DealsHandler) List(w http.ResponseWriter, r *http.Request) {
	deals, err := h.svc.ListDeals(r.Context(), r.URL.Query().Get("created_by"))
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"deals": deals,
		"count": len(deals),
	})
}

// Get handles GET /api/deals/{id}
func (h *DealsHandler) Get(w http.ResponseWriter, r *http.Request, dealID string) {
	deal, err := h.svc.GetDeal(r.Context(), dealID)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, deal)
}

// Export handles POST /api/deals/{id}/export
func (h *DealsHandler) Export(w http.ResponseWriter, r *http.Request, dealID string) {
	var req struct {
		CreatedBy string `json:"created_by"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	res, err := h.svc.ExportSnapshot(r.Context(), dealID, req.CreatedBy)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	status := http.StatusCreated
	if res.Deduplicated {
		status = http.StatusOK
	}
	middleware.WriteJSON(w, status, map[string]interface{}{
		"snapshot":         res.Snapshot,
		"run":              res.Run,
		"entities":         res.Entities,
		"txn_entity_map":   res.Mappings,
		"entity_breakdown": res.Breakdown,
		"deduplicated":     res.Deduplicated,
	})
}

// ListRuns handles GET /api/deals/{id}/runs
func (h *DealsHandler) ListRuns(w http.ResponseWriter, r *http.Request, dealID string) {
	runs, err := h.svc.ListRuns(r.Context(), dealID)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// ListSnapshots handles GET /api/deals/{id}/snapshots
func (h *DealsHandler) ListSnapshots(w http.ResponseWriter, r *http.Request, dealID string) {
	snaps, err := h.svc.ListSnapshots(r.Context(), dealID)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"snapshots": snaps,
		"count":     len(snaps),
	})
}

// AddOverride handles POST /api/deals/{id}/overrides
func (h *DealsHandler) AddOverride(w http.ResponseWriter, r *http.Request, dealID string) {
	var req struct {
		EntityID  string `json:"entity_id"`
		NewRole   string `json:"new_role"`
		Note      string `json:"note"`
		CreatedBy string `json:"created_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ov, res, err := h.svc.AddOverride(r.Context(), service.AddOverrideInput{
		DealID:    dealID,
		EntityID:  req.EntityID,
		NewRole:   domain.Role(req.NewRole),
		Note:      req.Note,
		CreatedBy: req.CreatedBy,
	})
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"override": ov,
		"run":      res.Run,
		"snapshot": res.Snapshot,
	})
}

// ListOverrides handles GET /api/deals/{id}/overrides
func (h *DealsHandler) ListOverrides(w http.ResponseWriter, r *http.Request, dealID string) {
	ovs, err := h.svc.ListOverrides(r.Context(), dealID)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"overrides": ovs,
		"count":     len(ovs),
	})
}

// ListDocuments handles GET /api/deals/{id}/documents
func (h *DealsHandler) ListDocuments(w http.ResponseWriter, r *http.Request, dealID string) {
	docs, err := h.svc.ListDocuments(r.Context(), dealID)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"documents": docs,
		"count":     len(docs),
	})
}

// IngestDocument handles POST /api/deals/{id}/documents
// The statement file arrives as multipart/form-data with a "file" part
// plus "file_type" and "created_by" fields.
func (h *DealsHandler) IngestDocument(w http.ResponseWriter, r *http.Request, dealID string) {
	if err := r.ParseMultipartForm(maxDocumentBytes); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid multipart body")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "file part is required")
		return
	}
	defer file.Close()

	fileBytes, err := io.ReadAll(io.LimitReader(file, maxDocumentBytes))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Failed to read file")
		return
	}

	doc, err := h.svc.IngestDocument(r.Context(), service.IngestDocumentInput{
		DealID:    dealID,
		FileName:  header.Filename,
		FileType:  r.FormValue("file_type"),
		CreatedBy: r.FormValue("created_by"),
		FileBytes: fileBytes,
	})
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	middleware.WriteJSON(w, http.StatusAccepted, doc)
}

// DocumentsHandler handles document-level endpoints.
type DocumentsHandler struct {
	svc *service.Service
	log zerolog.Logger
}

// NewDocumentsHandler creates a new documents handler.
func NewDocumentsHandler(svc *service.Service, log zerolog.Logger) *DocumentsHandler {
	return &DocumentsHandler{svc: svc, log: log}
}

// Get handles GET /api/documents/{id}
// This is the status polling endpoint: callers watch Status move from
// pending through processing to completed or failed.
func (h *DocumentsHandler) Get(w http.ResponseWriter, r *http.Request, documentID string) {
	doc, err := h.svc.DocumentStatus(r.Context(), documentID)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, doc)
}

// ListTransactions handles GET /api/documents/{id}/transactions
func (h *DocumentsHandler) ListTransactions(w http.ResponseWriter, r *http.Request, documentID string) {
	txns, err := h.svc.DocumentTransactions(r.Context(), documentID)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	if txns == nil {
		txns = []*domain.Transaction{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txns,
		"count":        len(txns),
	})
}

// SnapshotsHandler handles snapshot retrieval endpoints.
type SnapshotsHandler struct {
	svc *service.Service
	log zerolog.Logger
}

// NewSnapshotsHandler creates a new snapshots handler.
func NewSnapshotsHandler(svc *service.Service, log zerolog.Logger) *SnapshotsHandler {
	return &SnapshotsHandler{svc: svc, log: log}
}

// Get handles GET /api/snapshots/{id}
func (h *SnapshotsHandler) Get(w http.ResponseWriter, r *http.Request, snapshotID string) {
	snap, err := h.svc.GetSnapshot(r.Context(), snapshotID)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, snap)
}

// Payload handles GET /api/snapshots/{id}/payload and serves the canonical
// JSON export document verbatim.
func (h *SnapshotsHandler) Payload(w http.ResponseWriter, r *http.Request, snapshotID string) {
	snap, err := h.svc.GetSnapshot(r.Context(), snapshotID)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(snap.CanonicalJSON))
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{store: store, log: log}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		DocumentID: query.Get("document_id"),
		Status:     jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
