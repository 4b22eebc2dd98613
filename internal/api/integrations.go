package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sonde-io/sonde-hub/internal/dbmodel"
	"github.com/sonde-io/sonde-hub/internal/integration"
	"github.com/sonde-io/sonde-hub/internal/repository"
)

// IntegrationHandler manages integration configs (the credentials and
// endpoint details a pack needs to reach a remote system) and exposes a
// test-connection action backed by integration.Executor.
type IntegrationHandler struct {
	repo     repository.IntegrationRepository
	executor *integration.Executor
	logger   *zap.Logger
}

// NewIntegrationHandler creates a new IntegrationHandler.
func NewIntegrationHandler(repo repository.IntegrationRepository, executor *integration.Executor, logger *zap.Logger) *IntegrationHandler {
	return &IntegrationHandler{
		repo:     repo,
		executor: executor,
		logger:   logger.Named("integration_handler"),
	}
}

// integrationResponse is the JSON representation of an integration.
// ConfigBlob is intentionally excluded — it may carry decrypted
// credentials and is never echoed back over the API.
type integrationResponse struct {
	ID             string  `json:"id"`
	Type           string  `json:"type"`
	Name           string  `json:"name"`
	Status         string  `json:"status"`
	LastTestResult string  `json:"last_test_result"`
	LastTestAt     *string `json:"last_test_at"`
	CreatedAt      string  `json:"created_at"`
}

func integrationToResponse(i *dbmodel.Integration) integrationResponse {
	resp := integrationResponse{
		ID:             i.ID.String(),
		Type:           i.Type,
		Name:           i.Name,
		Status:         i.Status,
		LastTestResult: i.LastTestResult,
		CreatedAt:      i.CreatedAt.UTC().String(),
	}
	if i.LastTestAt != nil {
		s := i.LastTestAt.UTC().String()
		resp.LastTestAt = &s
	}
	return resp
}

// listIntegrationsResponse wraps a paginated list of integrations.
type listIntegrationsResponse struct {
	Items []integrationResponse `json:"items"`
	Total int64                 `json:"total"`
}

// List handles GET /api/v1/integrations.
func (h *IntegrationHandler) List(w http.ResponseWriter, r *http.Request) {
	opts := paginationOpts(r)

	integrations, total, err := h.repo.List(r.Context(), opts)
	if err != nil {
		h.logger.Error("failed to list integrations", zap.Error(err))
		ErrInternal(w)
		return
	}

	items := make([]integrationResponse, len(integrations))
	for i := range integrations {
		items[i] = integrationToResponse(&integrations[i])
	}

	Ok(w, listIntegrationsResponse{Items: items, Total: total})
}

// createIntegrationRequest is the JSON body expected by
// POST /api/v1/integrations. ConfigJSON is the raw integration.Config
// document (endpoint, headers, credentials) stored encrypted at rest.
type createIntegrationRequest struct {
	Type       string `json:"type"`
	Name       string `json:"name"`
	ConfigJSON string `json:"config_json"`
}

// Create handles POST /api/v1/integrations.
func (h *IntegrationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createIntegrationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.Type == "" || req.Name == "" {
		ErrBadRequest(w, "type and name are required")
		return
	}
	if !json.Valid([]byte(req.ConfigJSON)) {
		ErrBadRequest(w, "config_json must be valid JSON")
		return
	}

	integ := &dbmodel.Integration{
		Type:       req.Type,
		Name:       req.Name,
		ConfigBlob: dbmodel.EncryptedString(req.ConfigJSON),
		Status:     "unknown",
	}

	if err := h.repo.Create(r.Context(), integ); err != nil {
		h.logger.Error("failed to create integration", zap.Error(err))
		ErrInternal(w)
		return
	}

	Created(w, integrationToResponse(integ))
}

// GetByID handles GET /api/v1/integrations/{id}.
func (h *IntegrationHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	integ, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to get integration", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}

	Ok(w, integrationToResponse(integ))
}

// updateIntegrationRequest is the JSON body expected by
// PATCH /api/v1/integrations/{id}. All fields are optional.
type updateIntegrationRequest struct {
	Name       *string `json:"name"`
	ConfigJSON *string `json:"config_json"`
}

// Update handles PATCH /api/v1/integrations/{id}.
func (h *IntegrationHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	var req updateIntegrationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	integ, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to get integration for update", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}

	if req.Name != nil {
		if *req.Name == "" {
			ErrBadRequest(w, "name cannot be empty")
			return
		}
		integ.Name = *req.Name
	}
	if req.ConfigJSON != nil {
		if !json.Valid([]byte(*req.ConfigJSON)) {
			ErrBadRequest(w, "config_json must be valid JSON")
			return
		}
		integ.ConfigBlob = dbmodel.EncryptedString(*req.ConfigJSON)
	}

	if err := h.repo.Update(r.Context(), integ); err != nil {
		h.logger.Error("failed to update integration", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}

	Ok(w, integrationToResponse(integ))
}

// Delete handles DELETE /api/v1/integrations/{id}.
func (h *IntegrationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to delete integration", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}

	NoContent(w)
}

// testConnectionRequest is the JSON body expected by
// POST /api/v1/integrations/{id}/test. Probe names the read-only probe to
// exercise; it must be a probe the integration's pack type actually
// exposes, but the handler does not validate that here — a bad probe name
// simply surfaces as an error result from the executor.
type testConnectionRequest struct {
	Probe string `json:"probe"`
}

// testConnectionResponse mirrors integration.Result for the dashboard.
type testConnectionResponse struct {
	Status     string          `json:"status"`
	Data       json.RawMessage `json:"data,omitempty"`
	Error      string          `json:"error,omitempty"`
	DurationMs int64           `json:"duration_ms"`
}

// TestConnection handles POST /api/v1/integrations/{id}/test. It runs the
// requested probe against the integration's live configuration and
// persists the outcome onto Status/LastTestResult/LastTestAt so the list
// view reflects the most recent health check.
func (h *IntegrationHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	var req testConnectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Probe == "" {
		ErrBadRequest(w, "probe is required")
		return
	}

	integ, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to get integration for test", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}

	result := h.executor.Execute(r.Context(), integ, req.Probe, nil)

	now := time.Now()
	integ.Status = result.Status
	integ.LastTestResult = result.Error
	integ.LastTestAt = &now
	if err := h.repo.Update(r.Context(), integ); err != nil {
		h.logger.Error("failed to persist test result", zap.String("id", id.String()), zap.Error(err))
	}

	Ok(w, testConnectionResponse{
		Status:     result.Status,
		Data:       result.Data,
		Error:      result.Error,
		DurationMs: result.DurationMs,
	})
}
