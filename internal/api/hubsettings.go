package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sonde-io/sonde-hub/internal/repository"
)

// HubSettingsHandler exposes the hub's generic encrypted-at-rest key/value
// store. It backs small pieces of process-wide state that don't warrant
// their own table. The handler stores whatever keys its callers write; no
// other part of the hub reads or writes these rows.
type HubSettingsHandler struct {
	repo   repository.SettingsRepository
	logger *zap.Logger
}

// NewHubSettingsHandler creates a new HubSettingsHandler.
func NewHubSettingsHandler(repo repository.SettingsRepository, logger *zap.Logger) *HubSettingsHandler {
	return &HubSettingsHandler{
		repo:   repo,
		logger: logger.Named("hub_settings_handler"),
	}
}

// Get handles GET /api/v1/settings/{key}.
func (h *HubSettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		ErrBadRequest(w, "key is required")
		return
	}

	value, err := h.repo.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to get hub setting", zap.String("key", key), zap.Error(err))
		ErrInternal(w)
		return
	}

	Ok(w, envelope{"key": key, "value": value})
}

// setHubSettingRequest is the JSON body expected by PUT /api/v1/settings/{key}.
type setHubSettingRequest struct {
	Value string `json:"value"`
}

// Set handles PUT /api/v1/settings/{key}. Restricted to owners — hub
// settings back security-sensitive state like CA key material.
func (h *HubSettingsHandler) Set(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		ErrBadRequest(w, "key is required")
		return
	}

	var req setHubSettingRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.repo.Set(r.Context(), key, req.Value); err != nil {
		h.logger.Error("failed to set hub setting", zap.String("key", key), zap.Error(err))
		ErrInternal(w)
		return
	}

	NoContent(w)
}
