package mcp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonde-io/sonde-hub/internal/auth"
)

func TestSessionManager_CreateGet(t *testing.T) {
	mgr := NewSessionManager()

	sess, err := mgr.Create(auth.AuthContext{Type: "api_key", KeyID: "key-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)

	got, err := mgr.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "key-1", got.Auth.KeyID)
}

func TestSessionManager_GetUnknown(t *testing.T) {
	mgr := NewSessionManager()
	_, err := mgr.Get("does-not-exist")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionManager_Delete(t *testing.T) {
	mgr := NewSessionManager()
	sess, err := mgr.Create(auth.AuthContext{Type: "oauth", KeyID: "client-1"})
	require.NoError(t, err)

	mgr.Delete(sess.ID)

	_, err = mgr.Get(sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionManager_IdleSweep(t *testing.T) {
	mgr := NewSessionManager()
	clock := time.Now()
	mgr.now = func() time.Time { return clock }

	sess, err := mgr.Create(auth.AuthContext{Type: "api_key", KeyID: "key-1"})
	require.NoError(t, err)

	clock = clock.Add(sessionIdleTimeout + time.Minute)
	mgr.Sweep()

	_, err = mgr.Get(sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionManager_GetEvictsOnIdleTimeout(t *testing.T) {
	mgr := NewSessionManager()
	clock := time.Now()
	mgr.now = func() time.Time { return clock }

	sess, err := mgr.Create(auth.AuthContext{Type: "api_key", KeyID: "key-1"})
	require.NoError(t, err)

	clock = clock.Add(sessionIdleTimeout + time.Second)
	_, err = mgr.Get(sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
