package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonde-io/sonde-hub/internal/dbmodel"
)

func TestHandleListAgents_FiltersByPolicy(t *testing.T) {
	server, _, _, agents := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	now := time.Now()
	agents.byName["host-1"] = &dbmodel.Agent{Name: "host-1", Status: "online", LastSeenAt: &now}
	agents.byName["host-2"] = &dbmodel.Agent{Name: "host-2", Status: "offline"}

	sess := &Session{ID: "s1", Auth: testAPIKeyAuth()}
	sess.Auth.Policy.AllowedAgents = []string{"host-1"}

	result := handleListAgents(context.Background(), server, sess, nil)
	require.False(t, result.IsError)

	var decoded struct {
		Agents []agentSummary `json:"agents"`
	}
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &decoded))
	require.Len(t, decoded.Agents, 1)
	assert.Equal(t, "host-1", decoded.Agents[0].Name)
}

func TestHandleAgentOverview_NotFound(t *testing.T) {
	server, _, _, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	sess := &Session{ID: "s1", Auth: testAPIKeyAuth()}

	args, _ := json.Marshal(agentOverviewArgs{Agent: "ghost"})
	result := handleAgentOverview(context.Background(), server, sess, args)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "not found")
}

func TestHandleAgentOverview_PolicyDenied(t *testing.T) {
	server, _, _, agents := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	agents.byName["host-1"] = &dbmodel.Agent{Name: "host-1", Status: "online"}

	sess := &Session{ID: "s1", Auth: testAPIKeyAuth()}
	sess.Auth.Policy.AllowedAgents = []string{"host-2"}

	args, _ := json.Marshal(agentOverviewArgs{Agent: "host-1"})
	result := handleAgentOverview(context.Background(), server, sess, args)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "Access denied")
}

func TestHandleListCapabilities_IncludesRunbookAndIntegration(t *testing.T) {
	server, _, _, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	sess := &Session{ID: "s1", Auth: testAPIKeyAuth()}

	result := handleListCapabilities(context.Background(), server, sess, nil)
	require.False(t, result.IsError)

	var decoded capabilitiesResult
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &decoded))
	assert.Contains(t, decoded.Integrations, "proxmox")

	var found bool
	for _, rb := range decoded.Runbooks {
		if rb.Category == "proxmox-health" && rb.Kind == "simple" {
			found = true
			require.Len(t, rb.Probes, 1)
			assert.Equal(t, "proxmox.cluster.status", rb.Probes[0].Name)
		}
	}
	assert.True(t, found, "expected proxmox-health simple runbook in capabilities")
}
