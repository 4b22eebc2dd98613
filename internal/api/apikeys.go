package api

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sonde-io/sonde-hub/internal/auth"
	"github.com/sonde-io/sonde-hub/internal/dbmodel"
	"github.com/sonde-io/sonde-hub/internal/repository"
)

// APIKeyHandler manages dashboard-issued API keys. Raw key material is
// returned exactly once, in the Create response — only the SHA-256 hash is
// ever persisted, so a lost key cannot be recovered, only revoked and
// replaced.
type APIKeyHandler struct {
	repo   repository.APIKeyRepository
	logger *zap.Logger
}

// NewAPIKeyHandler creates a new APIKeyHandler.
func NewAPIKeyHandler(repo repository.APIKeyRepository, logger *zap.Logger) *APIKeyHandler {
	return &APIKeyHandler{
		repo:   repo,
		logger: logger.Named("apikey_handler"),
	}
}

// apiKeyResponse is the JSON representation of an API key. KeyHash is
// intentionally omitted — it is never returned once the key is created.
type apiKeyResponse struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	Role        string  `json:"role"`
	ExpiresAt   *string `json:"expires_at"`
	RevokedAt   *string `json:"revoked_at"`
	LastUsedAt  *string `json:"last_used_at"`
	CreatedBy   string  `json:"created_by"`
	CreatedAt   string  `json:"created_at"`
}

func apiKeyToResponse(k *dbmodel.APIKey) apiKeyResponse {
	resp := apiKeyResponse{
		ID:          k.ID.String(),
		DisplayName: k.DisplayName,
		Role:        k.Role,
		CreatedBy:   k.CreatedBy,
		CreatedAt:   k.CreatedAt.UTC().String(),
	}
	if k.ExpiresAt != nil {
		s := k.ExpiresAt.UTC().String()
		resp.ExpiresAt = &s
	}
	if k.RevokedAt != nil {
		s := k.RevokedAt.UTC().String()
		resp.RevokedAt = &s
	}
	if k.LastUsedAt != nil {
		s := k.LastUsedAt.UTC().String()
		resp.LastUsedAt = &s
	}
	return resp
}

// apiKeyCreateResponse extends apiKeyResponse with the one-time raw key.
type apiKeyCreateResponse struct {
	apiKeyResponse
	Key string `json:"key"`
}

// listAPIKeysResponse wraps a paginated list of API keys.
type listAPIKeysResponse struct {
	Items []apiKeyResponse `json:"items"`
	Total int64            `json:"total"`
}

// List handles GET /api/v1/apikeys.
func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	opts := paginationOpts(r)

	keys, total, err := h.repo.List(r.Context(), opts)
	if err != nil {
		h.logger.Error("failed to list api keys", zap.Error(err))
		ErrInternal(w)
		return
	}

	items := make([]apiKeyResponse, len(keys))
	for i := range keys {
		items[i] = apiKeyToResponse(&keys[i])
	}

	Ok(w, listAPIKeysResponse{Items: items, Total: total})
}

// createAPIKeyRequest is the JSON body expected by POST /api/v1/apikeys.
type createAPIKeyRequest struct {
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	PolicyJSON  string `json:"policy_json"`
	ExpiresInHr *int   `json:"expires_in_hours"`
}

// Create handles POST /api/v1/apikeys. The caller supplies a display name,
// a role (member, admin, owner), and an optional restriction policy; the
// hub generates the raw secret and stores only its hash.
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAPIKeyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.DisplayName == "" {
		ErrBadRequest(w, "display_name is required")
		return
	}
	if req.Role != "member" && req.Role != "admin" && req.Role != "owner" {
		ErrBadRequest(w, "role must be one of: member, admin, owner")
		return
	}

	raw, hash, err := auth.GenerateAPIKey()
	if err != nil {
		h.logger.Error("failed to generate api key", zap.Error(err))
		ErrInternal(w)
		return
	}

	policyBlob := req.PolicyJSON
	if policyBlob == "" {
		policyBlob = "{}"
	}

	createdBy := ""
	if ac, ok := authCtx(r); ok {
		createdBy = ac.KeyName
	}

	key := &dbmodel.APIKey{
		KeyHash:     hash,
		DisplayName: req.DisplayName,
		Role:        req.Role,
		PolicyBlob:  policyBlob,
		CreatedBy:   createdBy,
	}
	if req.ExpiresInHr != nil && *req.ExpiresInHr > 0 {
		t := time.Now().Add(time.Duration(*req.ExpiresInHr) * time.Hour)
		key.ExpiresAt = &t
	}

	if err := h.repo.Create(r.Context(), key); err != nil {
		h.logger.Error("failed to create api key", zap.Error(err))
		ErrInternal(w)
		return
	}

	Created(w, apiKeyCreateResponse{
		apiKeyResponse: apiKeyToResponse(key),
		Key:            raw,
	})
}

// Revoke handles DELETE /api/v1/apikeys/{id}. Revocation is soft — the row
// is kept for audit history but RevokedAt blocks further authentication.
func (h *APIKeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.repo.Revoke(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to revoke api key", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}

	NoContent(w)
}
