package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/sonde-io/sonde-hub/internal/auth"
)

// SessionHeader is the header name the StreamableHTTP transport uses to
// carry a session ID in both directions.
const SessionHeader = "Mcp-Session-Id"

// Authenticator is the slice of auth.AuthService the transport needs:
// resolving whatever credential (API key, OAuth2 bearer token, admin
// session cookie) a request carries into an AuthContext.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (auth.AuthContext, error)
}

// Transport implements the StreamableHTTP MCP transport on a single HTTP
// path: POST initializes or routes, DELETE terminates. Every POST
// authenticates (see internal/auth); the resolved AuthContext is captured
// once at session creation and reused for the session's lifetime, even if
// a later POST on the same session re-validates different credentials.
type Transport struct {
	server   *Server
	sessions *SessionManager
	authSvc  Authenticator
	logger   *zap.Logger
}

// NewTransport creates a Transport.
func NewTransport(server *Server, sessions *SessionManager, authSvc Authenticator, logger *zap.Logger) *Transport {
	return &Transport{server: server, sessions: sessions, authSvc: authSvc, logger: logger.Named("mcp.transport")}
}

// ServeHTTP implements http.Handler for the /mcp path.
func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		t.handlePost(w, r)
	case http.MethodDelete:
		t.handleDelete(w, r)
	default:
		w.Header().Set("Allow", "POST, DELETE")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (t *Transport) handlePost(w http.ResponseWriter, r *http.Request) {
	authCtx, err := t.authSvc.Authenticate(r.Context(), r)
	if err != nil {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req RPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPCResponse(w, errorResponse(nil, codeParseError, "invalid JSON-RPC request: "+err.Error()))
		return
	}
	if req.JSONRPC != jsonRPCVersion {
		writeRPCResponse(w, errorResponse(req.ID, codeInvalidRequest, "jsonrpc must be \"2.0\""))
		return
	}
	if len(req.ID) == 0 {
		writeRPCResponse(w, errorResponse(nil, codeInvalidRequest, "missing id: notifications are not accepted"))
		return
	}

	sessionID := r.Header.Get(SessionHeader)
	if sessionID == "" {
		sess, err := t.sessions.Create(authCtx)
		if err != nil {
			http.Error(w, "failed to create session", http.StatusInternalServerError)
			return
		}
		w.Header().Set(SessionHeader, sess.ID)
		resp := t.server.Dispatch(r.Context(), sess, req)
		writeRPCResponse(w, resp)
		return
	}

	sess, err := t.sessions.Get(sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			http.Error(w, "unknown session", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to resolve session", http.StatusInternalServerError)
		return
	}

	resp := t.server.Dispatch(r.Context(), sess, req)
	writeRPCResponse(w, resp)
}

func (t *Transport) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(SessionHeader)
	if sessionID == "" {
		http.Error(w, "missing "+SessionHeader+" header", http.StatusBadRequest)
		return
	}
	if _, err := t.authSvc.Authenticate(r.Context(), r); err != nil {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	t.sessions.Delete(sessionID)
	w.WriteHeader(http.StatusNoContent)
}

func writeRPCResponse(w http.ResponseWriter, resp RPCResponse) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
