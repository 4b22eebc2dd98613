package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sonde-io/sonde-hub/internal/dbmodel"
	"github.com/sonde-io/sonde-hub/internal/repository"
)

// CriticalPathHandler manages named, ordered probe-step sequences used by
// the check_critical_path MCP tool to walk a dependency chain (e.g.
// "checkout flow: load balancer -> api -> db -> payment gateway") and
// report the first failing step.
type CriticalPathHandler struct {
	repo   repository.CriticalPathRepository
	logger *zap.Logger
}

// NewCriticalPathHandler creates a new CriticalPathHandler.
func NewCriticalPathHandler(repo repository.CriticalPathRepository, logger *zap.Logger) *CriticalPathHandler {
	return &CriticalPathHandler{
		repo:   repo,
		logger: logger.Named("critical_path_handler"),
	}
}

// criticalPathStepResponse is the JSON representation of one step.
type criticalPathStepResponse struct {
	Position   int      `json:"position"`
	Label      string   `json:"label"`
	TargetType string   `json:"target_type"`
	TargetID   string   `json:"target_id"`
	Probes     []string `json:"probes"`
}

// criticalPathResponse is the JSON representation of a critical path and
// its ordered steps.
type criticalPathResponse struct {
	ID    string                     `json:"id"`
	Name  string                     `json:"name"`
	Steps []criticalPathStepResponse `json:"steps"`
}

func criticalPathToResponse(p *dbmodel.CriticalPath, steps []dbmodel.CriticalPathStep) criticalPathResponse {
	resp := criticalPathResponse{
		ID:    p.ID.String(),
		Name:  p.Name,
		Steps: make([]criticalPathStepResponse, len(steps)),
	}
	for i, s := range steps {
		var probes []string
		_ = json.Unmarshal([]byte(s.Probes), &probes)
		resp.Steps[i] = criticalPathStepResponse{
			Position:   s.Position,
			Label:      s.Label,
			TargetType: s.TargetType,
			TargetID:   s.TargetID,
			Probes:     probes,
		}
	}
	return resp
}

// listCriticalPathsResponse wraps the full list of critical paths.
type listCriticalPathsResponse struct {
	Items []criticalPathResponse `json:"items"`
}

// List handles GET /api/v1/criticalpaths. Critical paths are expected to
// number in the tens, not thousands, so the full set is returned
// unpaginated — consistent with how the check_critical_path tool resolves
// a path by name.
func (h *CriticalPathHandler) List(w http.ResponseWriter, r *http.Request) {
	paths, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list critical paths", zap.Error(err))
		ErrInternal(w)
		return
	}

	items := make([]criticalPathResponse, len(paths))
	for i := range paths {
		full, steps, err := h.repo.GetByName(r.Context(), paths[i].Name)
		if err != nil {
			h.logger.Error("failed to load critical path steps", zap.String("name", paths[i].Name), zap.Error(err))
			ErrInternal(w)
			return
		}
		items[i] = criticalPathToResponse(full, steps)
	}

	Ok(w, listCriticalPathsResponse{Items: items})
}

// GetByName handles GET /api/v1/criticalpaths/{name}.
func (h *CriticalPathHandler) GetByName(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		ErrBadRequest(w, "name is required")
		return
	}

	path, steps, err := h.repo.GetByName(r.Context(), name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to get critical path", zap.String("name", name), zap.Error(err))
		ErrInternal(w)
		return
	}

	Ok(w, criticalPathToResponse(path, steps))
}

// createCriticalPathStepRequest is the JSON body for one step within a
// createCriticalPathRequest.
type createCriticalPathStepRequest struct {
	Label      string   `json:"label"`
	TargetType string   `json:"target_type"`
	TargetID   string   `json:"target_id"`
	Probes     []string `json:"probes"`
}

// createCriticalPathRequest is the JSON body expected by
// POST /api/v1/criticalpaths. Steps are stored in the order given; Position
// is assigned from each step's index.
type createCriticalPathRequest struct {
	Name  string                          `json:"name"`
	Steps []createCriticalPathStepRequest `json:"steps"`
}

// Create handles POST /api/v1/criticalpaths.
func (h *CriticalPathHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createCriticalPathRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.Name == "" {
		ErrBadRequest(w, "name is required")
		return
	}
	if len(req.Steps) == 0 {
		ErrBadRequest(w, "at least one step is required")
		return
	}

	steps := make([]dbmodel.CriticalPathStep, len(req.Steps))
	for i, s := range req.Steps {
		if s.Label == "" || s.TargetType == "" || s.TargetID == "" {
			ErrBadRequest(w, "each step requires label, target_type, and target_id")
			return
		}
		probesJSON, err := json.Marshal(s.Probes)
		if err != nil {
			ErrBadRequest(w, "invalid probes list")
			return
		}
		steps[i] = dbmodel.CriticalPathStep{
			Position:   i,
			Label:      s.Label,
			TargetType: s.TargetType,
			TargetID:   s.TargetID,
			Probes:     string(probesJSON),
		}
	}

	path := &dbmodel.CriticalPath{Name: req.Name}
	if err := h.repo.Create(r.Context(), path, steps); err != nil {
		h.logger.Error("failed to create critical path", zap.Error(err))
		ErrInternal(w)
		return
	}

	Created(w, criticalPathToResponse(path, steps))
}

// Delete handles DELETE /api/v1/criticalpaths/{id}.
func (h *CriticalPathHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to delete critical path", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}

	NoContent(w)
}
