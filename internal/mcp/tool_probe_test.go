package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleProbe_Success(t *testing.T) {
	server, audit, apiKeys, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"nodes":3}`))
	})
	sess := &Session{ID: "s1", Auth: testAPIKeyAuth()}

	args, _ := json.Marshal(probeArgs{Probe: "proxmox.cluster.status"})
	result := handleProbe(context.Background(), server, sess, args)

	require.False(t, result.IsError)
	require.Len(t, result.Content, 1)
	assert.Contains(t, result.Content[0].Text, "success")

	entries := audit.snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, "proxmox.cluster.status", entries[0].Probe)
	assert.Equal(t, 1, apiKeys.touchCount())
}

func TestHandleProbe_MissingProbeName(t *testing.T) {
	server, _, _, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	sess := &Session{ID: "s1", Auth: testAPIKeyAuth()}

	args, _ := json.Marshal(probeArgs{})
	result := handleProbe(context.Background(), server, sess, args)
	assert.True(t, result.IsError)
}

func TestHandleProbe_UnknownProbeIsValidationError(t *testing.T) {
	server, audit, _, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	sess := &Session{ID: "s1", Auth: testAPIKeyAuth()}

	args, _ := json.Marshal(probeArgs{Probe: "nothing.like.this"})
	result := handleProbe(context.Background(), server, sess, args)

	assert.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "unknown probe")
	assert.Empty(t, audit.snapshot(), "validation failures must not write an audit row")
}

func TestHandleProbe_PolicyDeniedNoAudit(t *testing.T) {
	server, audit, _, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	sess := &Session{ID: "s1", Auth: testAPIKeyAuth()}
	sess.Auth.Policy.AllowedProbes = []string{"ssh.*"}

	args, _ := json.Marshal(probeArgs{Probe: "proxmox.cluster.status"})
	result := handleProbe(context.Background(), server, sess, args)

	assert.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "Access denied")
	assert.Empty(t, audit.snapshot())
}

func TestHandleQueryLogs_UnknownSource(t *testing.T) {
	server, _, _, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	sess := &Session{ID: "s1", Auth: testAPIKeyAuth()}

	args, _ := json.Marshal(queryLogsArgs{Source: "bogus", Agent: "host-1"})
	result := handleQueryLogs(context.Background(), server, sess, args)
	assert.True(t, result.IsError)
}

func TestHandleQueryLogs_AuditSourceNeverWritesItsOwnRow(t *testing.T) {
	server, audit, _, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	sess := &Session{ID: "s1", Auth: testAPIKeyAuth()}

	args, _ := json.Marshal(queryLogsArgs{Source: "audit"})
	result := handleQueryLogs(context.Background(), server, sess, args)

	require.False(t, result.IsError)
	assert.Empty(t, audit.snapshot())
}
