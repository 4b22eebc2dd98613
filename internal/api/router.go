package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/sonde-io/sonde-hub/internal/agentdispatch"
	"github.com/sonde-io/sonde-hub/internal/auth"
	"github.com/sonde-io/sonde-hub/internal/integration"
	"github.com/sonde-io/sonde-hub/internal/mcp"
	"github.com/sonde-io/sonde-hub/internal/repository"
	wshub "github.com/sonde-io/sonde-hub/internal/websocket"
)

// RouterConfig holds all dependencies needed to build the HTTP router.
// It is populated in main.go after all components are initialized and
// passed to NewRouter as a single struct to keep the constructor signature
// manageable as the number of dependencies grows.
type RouterConfig struct {
	AuthService *auth.AuthService
	Roles       *auth.RoleChecker
	Logger      *zap.Logger

	Agents         repository.AgentRepository
	Integrations   repository.IntegrationRepository
	IntegrationRun *integration.Executor
	APIKeys        repository.APIKeyRepository
	CriticalPaths  repository.CriticalPathRepository
	Audit          repository.AuditRepository
	DashboardUsers repository.DashboardUserRepository
	AccessGroups   repository.AccessGroupRepository
	Settings       repository.SettingsRepository

	Hub        *wshub.Hub
	Dispatcher *agentdispatch.Registry
	MCP        *mcp.Transport

	// Secure controls whether auth cookies are set with the Secure flag.
	// Set to true in production (HTTPS), false in local development.
	Secure bool
}

// NewRouter builds and returns the fully configured Chi router. Dashboard
// routes live under /api/v1; the fleet agent socket is mounted at
// /ws/agent; the MCP StreamableHTTP endpoint is mounted at /mcp.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// --- Global middleware ---
	// RequestID generates a unique ID for each request, used in logs and
	// response headers for tracing.
	r.Use(middleware.RequestID)

	// RealIP extracts the real client IP from X-Forwarded-For or X-Real-IP
	// headers when the server runs behind a reverse proxy.
	r.Use(middleware.RealIP)

	// RequestLogger logs every request with method, path, status and latency.
	r.Use(RequestLogger(cfg.Logger))

	// Recoverer catches panics in handlers, logs them, and returns a 500
	// instead of crashing the server.
	r.Use(middleware.Recoverer)

	// --- Initialize handlers ---
	authHandler := NewAuthHandler(cfg.AuthService, cfg.Logger, cfg.Secure)
	agentHandler := NewAgentHandler(cfg.Agents, cfg.Hub, cfg.Logger)
	integrationHandler := NewIntegrationHandler(cfg.Integrations, cfg.IntegrationRun, cfg.Logger)
	apiKeyHandler := NewAPIKeyHandler(cfg.APIKeys, cfg.Logger)
	criticalPathHandler := NewCriticalPathHandler(cfg.CriticalPaths, cfg.Logger)
	auditHandler := NewAuditHandler(cfg.Audit, cfg.Logger)
	settingsHandler := NewSettingsHandler(cfg.DashboardUsers, cfg.Logger)
	hubSettingsHandler := NewHubSettingsHandler(cfg.Settings, cfg.Logger)
	accessGroupHandler := NewAccessGroupHandler(cfg.AccessGroups, cfg.Logger)
	wsHandler := NewWSHandler(cfg.Hub, cfg.AuthService, cfg.Logger)

	requireAdmin := cfg.Roles.RequireRole("admin")
	requireOwner := cfg.Roles.RequireRole("owner")

	// The fleet agent socket and the MCP endpoint are deliberately outside
	// /api/v1. The MCP endpoint authenticates each request via AuthService
	// (OAuth2/API key); the agent socket accepts agent.register without
	// checking its enrollmentToken.
	if cfg.Dispatcher != nil {
		r.Get("/ws/agent", func(w http.ResponseWriter, req *http.Request) {
			if err := cfg.Dispatcher.ServeWS(w, req); err != nil {
				cfg.Logger.Warn("agent socket upgrade failed", zap.Error(err))
			}
		})
	}
	if cfg.MCP != nil {
		r.Handle("/mcp", cfg.MCP)
	}

	r.Route("/api/v1", func(r chi.Router) {

		// --- Public routes (no authentication required) ---
		r.Group(func(r chi.Router) {
			r.Post("/auth/login", authHandler.Login)
			r.Get("/auth/sso/login", authHandler.SSOLogin)
			r.Get("/auth/sso/callback", authHandler.SSOCallback)
		})

		// --- Authenticated routes (API key, MCP token, or session cookie) ---
		r.Group(func(r chi.Router) {
			r.Use(Authenticate(cfg.AuthService))

			r.Post("/auth/logout", authHandler.Logout)
			r.Get("/auth/me", authHandler.Me)

			r.Get("/ws", wsHandler.ServeWS)

			// Agents
			r.Get("/agents", agentHandler.List)
			r.Get("/agents/{id}", agentHandler.GetByID)

			// Integrations
			r.Get("/integrations", integrationHandler.List)
			r.Get("/integrations/{id}", integrationHandler.GetByID)

			// Critical paths
			r.Get("/criticalpaths", criticalPathHandler.List)
			r.Get("/criticalpaths/{name}", criticalPathHandler.GetByName)

			// Audit log
			r.Get("/audit", auditHandler.List)

			// Access groups
			r.Get("/accessgroups", accessGroupHandler.List)

			// --- Admin-only routes ---
			r.Group(func(r chi.Router) {
				r.Use(requireAdmin)

				r.Post("/agents", agentHandler.Create)
				r.Patch("/agents/{id}", agentHandler.Update)
				r.Delete("/agents/{id}", agentHandler.Delete)

				r.Post("/integrations", integrationHandler.Create)
				r.Patch("/integrations/{id}", integrationHandler.Update)
				r.Delete("/integrations/{id}", integrationHandler.Delete)
				r.Post("/integrations/{id}/test", integrationHandler.TestConnection)

				r.Get("/apikeys", apiKeyHandler.List)
				r.Post("/apikeys", apiKeyHandler.Create)
				r.Delete("/apikeys/{id}", apiKeyHandler.Revoke)

				r.Post("/criticalpaths", criticalPathHandler.Create)
				r.Delete("/criticalpaths/{id}", criticalPathHandler.Delete)

				r.Post("/accessgroups", accessGroupHandler.Create)
				r.Delete("/accessgroups/{id}", accessGroupHandler.Delete)
				r.Post("/accessgroups/{id}/agents", accessGroupHandler.AddAgent)
				r.Post("/accessgroups/{id}/integrations", accessGroupHandler.AddIntegration)
				r.Post("/accessgroups/{id}/users", accessGroupHandler.AddUser)
			})

			// --- Owner-only routes ---
			r.Group(func(r chi.Router) {
				r.Use(requireOwner)

				r.Get("/settings/sso", settingsHandler.GetSSO)
				r.Put("/settings/sso", settingsHandler.UpsertSSO)
				r.Get("/settings/{key}", hubSettingsHandler.Get)
				r.Put("/settings/{key}", hubSettingsHandler.Set)
			})
		})
	})

	return r
}
