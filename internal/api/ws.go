package api

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/sonde-io/sonde-hub/internal/auth"
	"github.com/sonde-io/sonde-hub/internal/websocket"
)

// WSHandler handles the dashboard's live-update WebSocket upgrade endpoint,
// GET /api/v1/ws. Authentication uses an apiKey query parameter or the
// sonde_session cookie rather than the Authorization header — browsers
// cannot set custom headers on a connection opened via the native
// WebSocket API, and AuthService.Authenticate already checks both.
//
// Topic subscription is declared at connection time via the `topics` query
// parameter, e.g. ws://host/api/v1/ws?topics=agent:018f...,audit
type WSHandler struct {
	hub    *websocket.Hub
	svc    *auth.AuthService
	logger *zap.Logger
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(hub *websocket.Hub, svc *auth.AuthService, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		hub:    hub,
		svc:    svc,
		logger: logger.Named("ws_handler"),
	}
}

// ServeWS handles GET /api/v1/ws. It authenticates the request, builds the
// topic list, upgrades the connection, and starts the client read/write
// pumps. The handler blocks until the connection closes.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	authCtx, err := h.svc.Authenticate(r.Context(), r)
	if err != nil {
		ErrUnauthorized(w)
		return
	}

	topics := resolveTopics(r)

	client, err := websocket.NewClient(h.hub, w, r, topics, h.logger)
	if err != nil {
		h.logger.Warn("ws: upgrade failed", zap.String("key_id", authCtx.KeyID), zap.Error(err))
		return
	}

	h.logger.Info("ws: client connected",
		zap.String("key_id", authCtx.KeyID),
		zap.String("remote_addr", r.RemoteAddr),
		zap.Strings("topics", topics),
	)

	client.Run()

	h.logger.Info("ws: client disconnected",
		zap.String("key_id", authCtx.KeyID),
		zap.String("remote_addr", r.RemoteAddr),
	)
}

// resolveTopics parses the comma-separated `topics` query parameter,
// deduplicating and dropping empty entries. Unknown topic strings are
// silently ignored — the client simply never receives messages for a
// topic nothing ever publishes on.
func resolveTopics(r *http.Request) []string {
	seen := make(map[string]struct{})
	var topics []string

	raw := r.URL.Query().Get("topics")
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, exists := seen[t]; !exists {
			seen[t] = struct{}{}
			topics = append(topics, t)
		}
	}
	return topics
}
