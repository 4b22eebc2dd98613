package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/sonde-io/sonde-hub/internal/dbmodel"
	"github.com/sonde-io/sonde-hub/internal/repository"
)

// AuditHandler exposes the append-only probe invocation log to the
// dashboard, paginated newest-first the way the MCP tools already write it.
type AuditHandler struct {
	repo   repository.AuditRepository
	logger *zap.Logger
}

// NewAuditHandler creates a new AuditHandler.
func NewAuditHandler(repo repository.AuditRepository, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{
		repo:   repo,
		logger: logger.Named("audit_handler"),
	}
}

type auditEntryResponse struct {
	ID           string `json:"id"`
	APIKeyID     string `json:"api_key_id,omitempty"`
	Source       string `json:"source"`
	Probe        string `json:"probe"`
	Status       string `json:"status"`
	DurationMs   int64  `json:"duration_ms"`
	RequestJSON  string `json:"request_json"`
	ResponseJSON string `json:"response_json"`
	CreatedAt    string `json:"created_at"`
}

func auditEntryToResponse(e *dbmodel.AuditEntry) auditEntryResponse {
	resp := auditEntryResponse{
		ID:           e.ID.String(),
		Source:       e.Source,
		Probe:        e.Probe,
		Status:       e.Status,
		DurationMs:   e.DurationMs,
		RequestJSON:  e.RequestJSON,
		ResponseJSON: e.ResponseJSON,
		CreatedAt:    e.CreatedAt.UTC().String(),
	}
	if e.APIKeyID != nil {
		resp.APIKeyID = e.APIKeyID.String()
	}
	return resp
}

type listAuditResponse struct {
	Items []auditEntryResponse `json:"items"`
	Total int64                `json:"total"`
}

// List handles GET /api/v1/audit (admin only).
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	opts := paginationOpts(r)

	entries, total, err := h.repo.List(r.Context(), opts)
	if err != nil {
		h.logger.Error("failed to list audit entries", zap.Error(err))
		ErrInternal(w)
		return
	}

	items := make([]auditEntryResponse, len(entries))
	for i := range entries {
		items[i] = auditEntryToResponse(&entries[i])
	}

	Ok(w, listAuditResponse{Items: items, Total: total})
}
