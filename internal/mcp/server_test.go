package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/google/uuid"

	"github.com/sonde-io/sonde-hub/internal/dbmodel"
	"github.com/sonde-io/sonde-hub/internal/integration"
	"github.com/sonde-io/sonde-hub/internal/pack"
	"github.com/sonde-io/sonde-hub/internal/repository"
	"github.com/sonde-io/sonde-hub/internal/router"
	"github.com/sonde-io/sonde-hub/internal/runbook"
)

const testProxmoxManifest = `
name: proxmox
version: 2.0.0
kind: integration
probes:
  - name: proxmox.cluster.status
    capability: observe
    timeoutMs: 5000
runbook:
  category: proxmox-health
  probes:
    - proxmox.cluster.status
`

// integrationRepoStub is the internal/router package's own fakeIntegrationRepo
// shape, duplicated here since test helpers aren't exported across packages.
type integrationRepoStub struct {
	byType map[string]*dbmodel.Integration
}

func (f *integrationRepoStub) Create(context.Context, *dbmodel.Integration) error { return nil }
func (f *integrationRepoStub) GetByID(context.Context, uuid.UUID) (*dbmodel.Integration, error) {
	return nil, repository.ErrNotFound
}
func (f *integrationRepoStub) GetByType(_ context.Context, packType string) (*dbmodel.Integration, error) {
	integ, ok := f.byType[packType]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return integ, nil
}
func (f *integrationRepoStub) Update(context.Context, *dbmodel.Integration) error { return nil }
func (f *integrationRepoStub) Delete(context.Context, uuid.UUID) error            { return nil }
func (f *integrationRepoStub) List(context.Context, repository.ListOptions) ([]dbmodel.Integration, int64, error) {
	return nil, 0, nil
}
func (f *integrationRepoStub) AppendEvent(context.Context, *dbmodel.IntegrationEvent) error {
	return nil
}

var _ repository.IntegrationRepository = (*integrationRepoStub)(nil)

// newTestServer wires a Server against a real pack registry, router, simple
// runner and diagnostic engine backed by an httptest integration endpoint,
// the same shape router_test.go and diagnostic_test.go use, plus the
// in-memory fakes for everything MCP-specific (agents, audit, api keys,
// critical paths).
func newTestServer(t *testing.T, handler http.HandlerFunc) (*Server, *fakeAuditRepo, *fakeAPIKeyRepo, *fakeAgentRepo) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	packs := pack.NewRegistry(true, nil)
	require.NoError(t, packs.LoadManifest([]byte(testProxmoxManifest), ""))

	cfgJSON, err := json.Marshal(integration.Config{Endpoint: srv.URL})
	require.NoError(t, err)
	integ := &dbmodel.Integration{Type: "proxmox", ConfigBlob: dbmodel.EncryptedString(cfgJSON)}
	integRepo := &integrationRepoStub{byType: map[string]*dbmodel.Integration{"proxmox": integ}}
	executor := integration.NewExecutor(integRepo, nil, zap.NewNop())

	agents := newFakeAgentRepo()
	r := router.New(packs, nil, executor, integRepo, agents, zap.NewNop())

	audit := &fakeAuditRepo{}
	apiKeys := newFakeAPIKeyRepo()
	critical := newFakeCriticalPathRepo()

	server := NewServer(Deps{
		Router:       r,
		Simple:       runbook.NewSimpleRunner(packs, r, zap.NewNop()),
		Diagnostic:   runbook.NewDiagnosticEngine(r, zap.NewNop()),
		Dispatcher:   nil,
		Packs:        packs,
		Agents:       agents,
		Integrations: integRepo,
		CriticalPath: critical,
		Audit:        audit,
		APIKeys:      apiKeys,
		Logger:       zap.NewNop(),
	})
	return server, audit, apiKeys, agents
}

func TestDispatch_Initialize(t *testing.T) {
	server, _, _, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	sess := &Session{ID: "s1"}

	resp := server.Dispatch(context.Background(), sess, RPCRequest{JSONRPC: "2.0", ID: json.RawMessage("1"), Method: "initialize"})
	require.Nil(t, resp.Error)
	result, ok := resp.Result.(InitializeResult)
	require.True(t, ok)
	assert.Equal(t, protocolVersion, result.ProtocolVersion)
}

func TestDispatch_ToolsList(t *testing.T) {
	server, _, _, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	sess := &Session{ID: "s1"}

	resp := server.Dispatch(context.Background(), sess, RPCRequest{JSONRPC: "2.0", ID: json.RawMessage("1"), Method: "tools/list"})
	require.Nil(t, resp.Error)
	result, ok := resp.Result.(ToolsListResult)
	require.True(t, ok)
	assert.Len(t, result.Tools, 8)
}

func TestDispatch_UnknownMethod(t *testing.T) {
	server, _, _, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	sess := &Session{ID: "s1"}

	resp := server.Dispatch(context.Background(), sess, RPCRequest{JSONRPC: "2.0", ID: json.RawMessage("1"), Method: "bogus"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestDispatch_ToolsCall_UnknownTool(t *testing.T) {
	server, _, _, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	sess := &Session{ID: "s1"}

	params, _ := json.Marshal(ToolCallParams{Name: "does_not_exist", Arguments: json.RawMessage(`{}`)})
	resp := server.Dispatch(context.Background(), sess, RPCRequest{JSONRPC: "2.0", ID: json.RawMessage("1"), Method: "tools/call", Params: params})
	require.Nil(t, resp.Error)
	result, ok := resp.Result.(ToolResult)
	require.True(t, ok)
	assert.True(t, result.IsError)
}

func TestRecordAudit_APIKeySessionSetsKeyID(t *testing.T) {
	server, audit, _, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"nodes":3}`))
	})
	sess := &Session{ID: "s1", Auth: testAPIKeyAuth()}

	server.recordAudit(context.Background(), sess, "proxmox", "proxmox.cluster.status", "success", 5, nil, json.RawMessage(`{"nodes":3}`))

	entries := audit.snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, "proxmox.cluster.status", entries[0].Probe)
	require.NotNil(t, entries[0].APIKeyID)
}

func TestAuditSource_PrefersAgentThenPackPrefixThenCaller(t *testing.T) {
	sess := &Session{Auth: testAPIKeyAuth()}

	assert.Equal(t, "host-1", auditSource("host-1", "ssh.uptime", sess))
	assert.Equal(t, "proxmox", auditSource("", "proxmox.cluster.status", sess))
}
