package api

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sonde-io/sonde-hub/internal/dbmodel"
	"github.com/sonde-io/sonde-hub/internal/repository"
	"github.com/sonde-io/sonde-hub/internal/websocket"
)

// AgentHandler groups all agent-related HTTP handlers.
type AgentHandler struct {
	repo   repository.AgentRepository
	hub    *websocket.Hub
	logger *zap.Logger
}

// NewAgentHandler creates a new AgentHandler. hub may be nil in tests that
// don't care about live-update delivery.
func NewAgentHandler(repo repository.AgentRepository, hub *websocket.Hub, logger *zap.Logger) *AgentHandler {
	return &AgentHandler{
		repo:   repo,
		hub:    hub,
		logger: logger.Named("agent_handler"),
	}
}

// agentResponse is the JSON representation of an agent returned by the API.
// EnrollmentRef is intentionally excluded from list/get responses — it is
// only surfaced once, at enrollment time, via agentCreateResponse.
type agentResponse struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	OS           string  `json:"os"`
	AgentVersion string  `json:"agent_version"`
	Status       string  `json:"status"`
	CertSerial   string  `json:"cert_serial"`
	LastSeenAt   *string `json:"last_seen_at"`
	CreatedAt    string  `json:"created_at"`
}

// agentCreateResponse extends agentResponse with the one-time enrollment
// token, which cannot be recovered once this response is sent.
type agentCreateResponse struct {
	agentResponse
	EnrollmentToken string `json:"enrollment_token"`
}

func agentToResponse(a *dbmodel.Agent) agentResponse {
	resp := agentResponse{
		ID:           a.ID.String(),
		Name:         a.Name,
		OS:           a.OS,
		AgentVersion: a.AgentVersion,
		Status:       a.Status,
		CertSerial:   a.CertSerial,
		CreatedAt:    a.CreatedAt.UTC().String(),
	}
	if a.LastSeenAt != nil {
		s := a.LastSeenAt.UTC().String()
		resp.LastSeenAt = &s
	}
	return resp
}

// listAgentsResponse wraps a paginated list of agents.
type listAgentsResponse struct {
	Items []agentResponse `json:"items"`
	Total int64           `json:"total"`
}

// List handles GET /api/v1/agents.
func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	opts := paginationOpts(r)

	agents, total, err := h.repo.List(r.Context(), opts)
	if err != nil {
		h.logger.Error("failed to list agents", zap.Error(err))
		ErrInternal(w)
		return
	}

	items := make([]agentResponse, len(agents))
	for i := range agents {
		items[i] = agentToResponse(&agents[i])
	}

	Ok(w, listAgentsResponse{Items: items, Total: total})
}

// createAgentRequest is the JSON body expected by POST /api/v1/agents.
// The returned enrollment token is what the agent-side installer presents
// back to the hub's agent socket on first connect.
type createAgentRequest struct {
	Name string `json:"name"`
	OS   string `json:"os"`
}

// Create handles POST /api/v1/agents.
func (h *AgentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.Name == "" {
		ErrBadRequest(w, "name is required")
		return
	}

	token, err := generateToken()
	if err != nil {
		h.logger.Error("failed to generate enrollment token", zap.Error(err))
		ErrInternal(w)
		return
	}

	agent := &dbmodel.Agent{
		Name:          req.Name,
		OS:            req.OS,
		Status:        "offline",
		EnrollmentRef: token,
	}

	if err := h.repo.Create(r.Context(), agent); err != nil {
		h.logger.Error("failed to create agent", zap.Error(err))
		ErrInternal(w)
		return
	}

	Created(w, agentCreateResponse{
		agentResponse:   agentToResponse(agent),
		EnrollmentToken: token,
	})
}

// GetByID handles GET /api/v1/agents/{id}.
func (h *AgentHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	agent, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to get agent", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}

	packs, err := h.repo.ListPacks(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to list agent packs", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}
	agent.Packs = packs

	Ok(w, agentToResponse(agent))
}

// updateAgentRequest is the JSON body expected by PATCH /api/v1/agents/{id}.
// All fields are optional — only non-nil values are applied.
type updateAgentRequest struct {
	Name   *string `json:"name"`
	Status *string `json:"status"`
}

// Update handles PATCH /api/v1/agents/{id}.
func (h *AgentHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	var req updateAgentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	agent, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to get agent for update", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}

	statusChanged := false
	if req.Name != nil {
		if *req.Name == "" {
			ErrBadRequest(w, "name cannot be empty")
			return
		}
		agent.Name = *req.Name
	}
	if req.Status != nil && *req.Status != agent.Status {
		agent.Status = *req.Status
		statusChanged = true
	}

	if err := h.repo.Update(r.Context(), agent); err != nil {
		h.logger.Error("failed to update agent", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}

	if statusChanged && h.hub != nil {
		h.hub.Publish("agent:"+agent.ID.String(), websocket.Message{
			Type:    websocket.MsgAgentStatus,
			Topic:   "agent:" + agent.ID.String(),
			Payload: map[string]string{"status": agent.Status},
		})
	}

	Ok(w, agentToResponse(agent))
}

// Delete handles DELETE /api/v1/agents/{id}.
func (h *AgentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to delete agent", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}

	NoContent(w)
}

// -----------------------------------------------------------------------------
// Shared handler helpers
// -----------------------------------------------------------------------------

// parseUUID extracts and parses a UUID path parameter by name.
func parseUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, param)
	id, err := uuid.Parse(raw)
	if err != nil {
		ErrBadRequest(w, "invalid "+param+": must be a valid UUID")
		return uuid.UUID{}, false
	}
	return id, true
}

// paginationOpts reads limit and offset query parameters from the request.
// Defaults: limit=20, offset=0. Max limit is capped at 100.
func paginationOpts(r *http.Request) repository.ListOptions {
	limit := 20
	offset := 0

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 100 {
		limit = 100
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return repository.ListOptions{Limit: limit, Offset: offset}
}

// generateToken generates a cryptographically secure 32-byte random hex
// string, used for agent enrollment tokens. API keys are minted separately
// by auth.GenerateAPIKey.
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
