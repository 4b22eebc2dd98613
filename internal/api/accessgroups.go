package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sonde-io/sonde-hub/internal/dbmodel"
	"github.com/sonde-io/sonde-hub/internal/repository"
)

// AccessGroupHandler manages named groups of agents/integrations/users.
// The repository's AgentNamesForUser computes the agent names a user's
// groups grant, but no request path calls it, so group membership does not
// change what any caller may access.
type AccessGroupHandler struct {
	repo   repository.AccessGroupRepository
	logger *zap.Logger
}

// NewAccessGroupHandler creates a new AccessGroupHandler.
func NewAccessGroupHandler(repo repository.AccessGroupRepository, logger *zap.Logger) *AccessGroupHandler {
	return &AccessGroupHandler{
		repo:   repo,
		logger: logger.Named("access_group_handler"),
	}
}

// accessGroupResponse is the JSON representation of an access group.
type accessGroupResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func accessGroupToResponse(g *dbmodel.AccessGroup) accessGroupResponse {
	return accessGroupResponse{ID: g.ID.String(), Name: g.Name}
}

// listAccessGroupsResponse wraps the full list of access groups.
type listAccessGroupsResponse struct {
	Items []accessGroupResponse `json:"items"`
}

// List handles GET /api/v1/accessgroups.
func (h *AccessGroupHandler) List(w http.ResponseWriter, r *http.Request) {
	groups, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list access groups", zap.Error(err))
		ErrInternal(w)
		return
	}

	items := make([]accessGroupResponse, len(groups))
	for i := range groups {
		items[i] = accessGroupToResponse(&groups[i])
	}

	Ok(w, listAccessGroupsResponse{Items: items})
}

// createAccessGroupRequest is the JSON body expected by
// POST /api/v1/accessgroups.
type createAccessGroupRequest struct {
	Name string `json:"name"`
}

// Create handles POST /api/v1/accessgroups.
func (h *AccessGroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAccessGroupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		ErrBadRequest(w, "name is required")
		return
	}

	group := &dbmodel.AccessGroup{Name: req.Name}
	if err := h.repo.Create(r.Context(), group); err != nil {
		h.logger.Error("failed to create access group", zap.Error(err))
		ErrInternal(w)
		return
	}

	Created(w, accessGroupToResponse(group))
}

// Delete handles DELETE /api/v1/accessgroups/{id}.
func (h *AccessGroupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to delete access group", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}

	NoContent(w)
}

// addMemberRequest is the JSON body for every /accessgroups/{id}/{kind}
// membership endpoint. Exactly one of the target IDs is meaningful per
// endpoint; the others are ignored.
type addMemberRequest struct {
	AgentID       string `json:"agent_id"`
	IntegrationID string `json:"integration_id"`
	UserID        string `json:"user_id"`
}

// AddAgent handles POST /api/v1/accessgroups/{id}/agents.
func (h *AccessGroupHandler) AddAgent(w http.ResponseWriter, r *http.Request) {
	groupID, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	var req addMemberRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	agentID, err := uuid.Parse(req.AgentID)
	if err != nil {
		ErrBadRequest(w, "agent_id must be a valid UUID")
		return
	}

	if err := h.repo.AddAgent(r.Context(), groupID, agentID); err != nil {
		h.logger.Error("failed to add agent to access group", zap.String("group_id", groupID.String()), zap.Error(err))
		ErrInternal(w)
		return
	}
	NoContent(w)
}

// AddIntegration handles POST /api/v1/accessgroups/{id}/integrations.
func (h *AccessGroupHandler) AddIntegration(w http.ResponseWriter, r *http.Request) {
	groupID, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	var req addMemberRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	integrationID, err := uuid.Parse(req.IntegrationID)
	if err != nil {
		ErrBadRequest(w, "integration_id must be a valid UUID")
		return
	}

	if err := h.repo.AddIntegration(r.Context(), groupID, integrationID); err != nil {
		h.logger.Error("failed to add integration to access group", zap.String("group_id", groupID.String()), zap.Error(err))
		ErrInternal(w)
		return
	}
	NoContent(w)
}

// AddUser handles POST /api/v1/accessgroups/{id}/users.
func (h *AccessGroupHandler) AddUser(w http.ResponseWriter, r *http.Request) {
	groupID, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	var req addMemberRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		ErrBadRequest(w, "user_id must be a valid UUID")
		return
	}

	if err := h.repo.AddUser(r.Context(), groupID, userID); err != nil {
		h.logger.Error("failed to add user to access group", zap.String("group_id", groupID.String()), zap.Error(err))
		ErrInternal(w)
		return
	}
	NoContent(w)
}
