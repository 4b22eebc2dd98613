package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonde-io/sonde-hub/internal/runbook"
)

func testSimpleResult() runbook.SimpleResult {
	return runbook.SimpleResult{Findings: map[string]runbook.ProbeOutcome{
		"probe.a": {Status: "success"},
		"probe.b": {Status: "timeout"},
		"probe.c": {Status: "error"},
	}}
}

func TestHandleHealthCheck_RunsEveryCategoryWhenNoneNamed(t *testing.T) {
	server, audit, _, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"nodes":3}`))
	})
	sess := &Session{ID: "s1", Auth: testAPIKeyAuth()}

	result := handleHealthCheck(context.Background(), server, sess, nil)
	require.False(t, result.IsError)

	var decoded healthCheckResult
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &decoded))
	assert.Contains(t, decoded.Ran, "proxmox-health")
	assert.Empty(t, decoded.Failed)
	require.Len(t, audit.snapshot(), 1)
}

func TestHandleHealthCheck_NarrowedToRequestedCategories(t *testing.T) {
	server, _, _, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"nodes":3}`))
	})
	sess := &Session{ID: "s1", Auth: testAPIKeyAuth()}

	args, _ := json.Marshal(healthCheckArgs{Categories: []string{"does-not-exist"}})
	result := handleHealthCheck(context.Background(), server, sess, args)
	require.False(t, result.IsError)

	var decoded healthCheckResult
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &decoded))
	assert.Empty(t, decoded.Ran)
	assert.Contains(t, decoded.Failed, "does-not-exist")
}

func TestSimpleResultToFindings_ClassifiesByStatus(t *testing.T) {
	findings := simpleResultToFindings("cat", testSimpleResult())
	require.Len(t, findings, 2)
	var sawWarning, sawCritical bool
	for _, f := range findings {
		switch f.Severity {
		case "warning":
			sawWarning = true
		case "critical":
			sawCritical = true
		}
	}
	assert.True(t, sawWarning)
	assert.True(t, sawCritical)
}
