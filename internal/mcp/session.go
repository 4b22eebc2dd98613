package mcp

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sonde-io/sonde-hub/internal/auth"
)

// sessionIdleTimeout is how long an MCP session survives without a POST
// before the sweep reclaims it. The transport itself has no heartbeat of
// its own — unlike the agent WebSocket, idle MCP sessions are ordinary
// client inactivity, not a liveness signal — so the timeout is generous.
const sessionIdleTimeout = 30 * time.Minute

const sessionIDBytes = 32

// ErrSessionNotFound means the Mcp-Session-Id header named a session that
// was never created, already terminated, or swept for inactivity.
var ErrSessionNotFound = errors.New("mcp: session not found")

// Session is the per-client MCP session state: the AuthContext resolved at
// initialization time (reused for the session's lifetime regardless of
// later credential changes) and a last-activity timestamp the sweep uses to
// reclaim idle sessions.
type Session struct {
	ID           string
	Auth         auth.AuthContext
	CreatedAt    time.Time
	lastActivity time.Time
}

// SessionManager holds every live MCP session, keyed by the opaque ID
// minted on initialization. Mirrors agentdispatch.Registry's mutex-map-plus-
// periodic-sweep shape: one lock, lookups bounded to a single map access,
// no I/O held under the lock.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewSessionManager creates an empty SessionManager.
func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]*Session), now: time.Now}
}

// Create mints a new session bound to authCtx and returns its ID.
func (m *SessionManager) Create(authCtx auth.AuthContext) (*Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("mcp: generate session id: %w", err)
	}
	now := m.now()
	s := &Session{ID: id, Auth: authCtx, CreatedAt: now, lastActivity: now}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	return s, nil
}

// Get returns the session for id and refreshes its last-activity timestamp,
// or ErrSessionNotFound if id is unknown or has been swept.
func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if m.now().Sub(s.lastActivity) > sessionIdleTimeout {
		delete(m.sessions, id)
		return nil, ErrSessionNotFound
	}
	s.lastActivity = m.now()
	return s, nil
}

// Delete terminates a session, used by DELETE /mcp.
func (m *SessionManager) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Sweep evicts every session idle longer than sessionIdleTimeout. Intended
// to run on a periodic scheduler job alongside the auth layer's rate-limit
// and session-store sweeps.
func (m *SessionManager) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for id, s := range m.sessions {
		if now.Sub(s.lastActivity) > sessionIdleTimeout {
			delete(m.sessions, id)
		}
	}
}

func generateSessionID() (string, error) {
	raw := make([]byte, sessionIDBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
