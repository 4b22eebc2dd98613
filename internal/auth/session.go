package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"
)

// sessionTTL is the dashboard cookie session lifetime.
const sessionTTL = 8 * time.Hour

// sessionIDBytes is the raw entropy of a session ID before encoding.
const sessionIDBytes = 32

// Session is one live dashboard login, keyed by the opaque value stored in
// the sonde_session cookie.
type Session struct {
	Auth      AuthContext
	ExpiresAt time.Time
}

// SessionStore holds live dashboard sessions in memory. Sessions are
// process-local: a restart logs every dashboard user out, which is
// acceptable given the 8-hour TTL and is consistent with the hub's other
// process-wide caches.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	now      func() time.Time
}

// NewSessionStore creates an empty SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]Session), now: time.Now}
}

// Create mints a new session for auth and returns its opaque ID, meant to be
// set as the sonde_session cookie value.
func (s *SessionStore) Create(auth AuthContext) (string, error) {
	id, err := generateSessionID()
	if err != nil {
		return "", fmt.Errorf("auth: generating session id: %w", err)
	}

	s.mu.Lock()
	s.sessions[id] = Session{Auth: auth, ExpiresAt: s.now().Add(sessionTTL)}
	s.mu.Unlock()

	return id, nil
}

// Get resolves a session ID to its AuthContext. An expired session is
// treated as not found and lazily evicted.
func (s *SessionStore) Get(id string) (AuthContext, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return AuthContext{}, ErrSessionNotFound
	}
	if s.now().After(sess.ExpiresAt) {
		s.Delete(id)
		return AuthContext{}, ErrSessionExpired
	}
	return sess.Auth, nil
}

// Delete terminates a session (logout).
func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Sweep evicts every expired session. Intended to be called periodically by
// a scheduled job rather than on every read.
func (s *SessionStore) Sweep() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if now.After(sess.ExpiresAt) {
			delete(s.sessions, id)
		}
	}
}

func generateSessionID() (string, error) {
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
