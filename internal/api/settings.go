package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/sonde-io/sonde-hub/internal/dbmodel"
	"github.com/sonde-io/sonde-hub/internal/repository"
)

// SettingsHandler groups settings-related HTTP handlers. Currently only
// Entra SSO configuration is exposed; every route here is owner-only,
// enforced by RequireRole("owner") in the router.
type SettingsHandler struct {
	users  repository.DashboardUserRepository
	logger *zap.Logger
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(users repository.DashboardUserRepository, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{
		users:  users,
		logger: logger.Named("settings_handler"),
	}
}

// ssoConfigResponse is the JSON representation of the Entra SSO config.
// ClientSecret is intentionally omitted — it is write-only.
type ssoConfigResponse struct {
	Issuer      string `json:"issuer"`
	ClientID    string `json:"client_id"`
	RedirectURL string `json:"redirect_url"`
	Enabled     bool   `json:"enabled"`
}

func ssoConfigToResponse(c *dbmodel.SSOConfig) ssoConfigResponse {
	return ssoConfigResponse{
		Issuer:      c.Issuer,
		ClientID:    c.ClientID,
		RedirectURL: c.RedirectURL,
		Enabled:     c.Enabled,
	}
}

// GetSSO handles GET /api/v1/settings/sso (owner only).
func (h *SettingsHandler) GetSSO(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.users.GetSSOConfig(r.Context())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to get sso config", zap.Error(err))
		ErrInternal(w)
		return
	}

	Ok(w, ssoConfigToResponse(cfg))
}

// upsertSSORequest is the JSON body expected by PUT /api/v1/settings/sso.
// PUT semantics: the whole configuration is replaced on each call — only one
// Entra tenant is supported.
type upsertSSORequest struct {
	Issuer       string `json:"issuer"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RedirectURL  string `json:"redirect_url"`
	Enabled      bool   `json:"enabled"`
}

// UpsertSSO handles PUT /api/v1/settings/sso (owner only). ClientSecret is
// encrypted at rest automatically by dbmodel.EncryptedString.
func (h *SettingsHandler) UpsertSSO(w http.ResponseWriter, r *http.Request) {
	var req upsertSSORequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validateUpsertSSO(&req); err != nil {
		ErrBadRequest(w, err.Error())
		return
	}

	cfg := &dbmodel.SSOConfig{
		Issuer:       req.Issuer,
		ClientID:     req.ClientID,
		ClientSecret: dbmodel.EncryptedString(req.ClientSecret),
		RedirectURL:  req.RedirectURL,
		Enabled:      req.Enabled,
	}

	if err := h.users.UpsertSSOConfig(r.Context(), cfg); err != nil {
		h.logger.Error("failed to upsert sso config", zap.Error(err))
		ErrInternal(w)
		return
	}

	Ok(w, ssoConfigToResponse(cfg))
}

func validateUpsertSSO(req *upsertSSORequest) error {
	if req.Issuer == "" {
		return errors.New("issuer is required")
	}
	if req.ClientID == "" {
		return errors.New("client_id is required")
	}
	if req.ClientSecret == "" {
		return errors.New("client_secret is required")
	}
	if req.RedirectURL == "" {
		return errors.New("redirect_url is required")
	}
	return nil
}
