package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonde-io/sonde-hub/internal/dbmodel"
)

func seedCriticalPath(t *testing.T, server *Server, agents *fakeAgentRepo) {
	t.Helper()
	agents.byName["host-1"] = &dbmodel.Agent{Name: "host-1", Status: "online"}

	cp := &dbmodel.CriticalPath{Name: "deploy-pipeline"}
	steps := []dbmodel.CriticalPathStep{
		{Position: 0, Label: "cluster reachable", TargetType: "integration", TargetID: "proxmox", Probes: `["proxmox.cluster.status"]`},
	}
	require.NoError(t, server.criticalPath.Create(context.Background(), cp, steps))
}

func TestHandleCheckCriticalPath_AllStepsPass(t *testing.T) {
	server, audit, apiKeys, agents := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"nodes":3}`))
	})
	seedCriticalPath(t, server, agents)
	sess := &Session{ID: "s1", Auth: testAPIKeyAuth()}

	args, _ := json.Marshal(checkCriticalPathArgs{Path: "deploy-pipeline"})
	result := handleCheckCriticalPath(context.Background(), server, sess, args)
	require.False(t, result.IsError)

	var decoded criticalPathResult
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &decoded))
	assert.Equal(t, "pass", decoded.Status)
	require.Len(t, decoded.Steps, 1)
	assert.Equal(t, "pass", decoded.Steps[0].Status)

	require.Len(t, audit.snapshot(), 1)
	assert.Equal(t, 1, apiKeys.touchCount())
}

func TestHandleCheckCriticalPath_FailingProbeMarksStepFailed(t *testing.T) {
	server, _, _, agents := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	seedCriticalPath(t, server, agents)
	sess := &Session{ID: "s1", Auth: testAPIKeyAuth()}

	args, _ := json.Marshal(checkCriticalPathArgs{Path: "deploy-pipeline"})
	result := handleCheckCriticalPath(context.Background(), server, sess, args)
	require.False(t, result.IsError)

	var decoded criticalPathResult
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &decoded))
	assert.Equal(t, "fail", decoded.Status)
}

func TestHandleCheckCriticalPath_UnknownPath(t *testing.T) {
	server, _, _, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	sess := &Session{ID: "s1", Auth: testAPIKeyAuth()}

	args, _ := json.Marshal(checkCriticalPathArgs{Path: "does-not-exist"})
	result := handleCheckCriticalPath(context.Background(), server, sess, args)
	assert.True(t, result.IsError)
}

func TestAggregateStatus(t *testing.T) {
	assert.Equal(t, "pass", aggregateStatus([]string{"success", "pass"}))
	assert.Equal(t, "fail", aggregateStatus([]string{"error", "fail"}))
	assert.Equal(t, "partial", aggregateStatus([]string{"success", "error"}))
	assert.Equal(t, "pass", aggregateStatus(nil))
}
