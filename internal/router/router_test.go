package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sonde-io/sonde-hub/internal/dbmodel"
	"github.com/sonde-io/sonde-hub/internal/integration"
	"github.com/sonde-io/sonde-hub/internal/pack"
	"github.com/sonde-io/sonde-hub/internal/repository"
)

type fakeIntegrationRepo struct {
	byType map[string]*dbmodel.Integration
}

func (f *fakeIntegrationRepo) Create(context.Context, *dbmodel.Integration) error { return nil }
func (f *fakeIntegrationRepo) GetByID(context.Context, uuid.UUID) (*dbmodel.Integration, error) {
	return nil, repository.ErrNotFound
}
func (f *fakeIntegrationRepo) GetByType(_ context.Context, packType string) (*dbmodel.Integration, error) {
	integ, ok := f.byType[packType]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return integ, nil
}
func (f *fakeIntegrationRepo) Update(context.Context, *dbmodel.Integration) error { return nil }
func (f *fakeIntegrationRepo) Delete(context.Context, uuid.UUID) error            { return nil }
func (f *fakeIntegrationRepo) List(context.Context, repository.ListOptions) ([]dbmodel.Integration, int64, error) {
	return nil, 0, nil
}
func (f *fakeIntegrationRepo) AppendEvent(context.Context, *dbmodel.IntegrationEvent) error {
	return nil
}

var _ repository.IntegrationRepository = (*fakeIntegrationRepo)(nil)

const proxmoxManifest = `
name: proxmox
version: 2.0.0
kind: integration
probes:
  - name: proxmox.cluster.status
    capability: observe
    timeoutMs: 5000
`

const sshManifest = `
name: ssh
version: 1.0.0
kind: agent
probes:
  - name: ssh.uptime
    capability: observe
    timeoutMs: 2000
`

func TestExecute_RoutesIntegrationProbe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"nodes":3}`))
	}))
	defer server.Close()

	packs := pack.NewRegistry(true, nil)
	require.NoError(t, packs.LoadManifest([]byte(proxmoxManifest), ""))

	cfg := integration.Config{Endpoint: server.URL}
	cfgJSON, err := json.Marshal(cfg)
	require.NoError(t, err)

	integ := &dbmodel.Integration{Type: "proxmox", ConfigBlob: dbmodel.EncryptedString(cfgJSON)}
	integRepo := &fakeIntegrationRepo{byType: map[string]*dbmodel.Integration{"proxmox": integ}}
	executor := integration.NewExecutor(integRepo, nil, zap.NewNop())

	r := New(packs, nil, executor, integRepo, nil, zap.NewNop())

	resp, err := r.Execute(context.Background(), "proxmox.cluster.status", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "proxmox", resp.Metadata.PackName)
	assert.Equal(t, "2.0.0", resp.Metadata.PackVersion)
	assert.Equal(t, "observe", resp.Metadata.CapabilityLevel)
	assert.JSONEq(t, `{"nodes":3}`, string(resp.Data))
}

func TestExecute_IntegrationProbeWithoutConfiguredIntegration(t *testing.T) {
	packs := pack.NewRegistry(true, nil)
	require.NoError(t, packs.LoadManifest([]byte(proxmoxManifest), ""))

	integRepo := &fakeIntegrationRepo{byType: map[string]*dbmodel.Integration{}}
	executor := integration.NewExecutor(integRepo, nil, zap.NewNop())
	r := New(packs, nil, executor, integRepo, nil, zap.NewNop())

	_, err := r.Execute(context.Background(), "proxmox.cluster.status", nil, "")
	assert.ErrorIs(t, err, ErrNoIntegrationConfigured)
}

func TestExecute_AgentProbeRequiresAgentArgument(t *testing.T) {
	packs := pack.NewRegistry(true, nil)
	require.NoError(t, packs.LoadManifest([]byte(sshManifest), ""))

	r := New(packs, nil, nil, nil, nil, zap.NewNop())

	_, err := r.Execute(context.Background(), "ssh.uptime", nil, "")
	assert.ErrorIs(t, err, ErrAgentRequired)
}

func TestExecute_UnknownProbeFallsBackToAgentPath(t *testing.T) {
	packs := pack.NewRegistry(true, nil)
	r := New(packs, nil, nil, nil, nil, zap.NewNop())

	_, err := r.Execute(context.Background(), "unregistered.pack.probe", nil, "")
	assert.ErrorIs(t, err, ErrAgentRequired)
}

func TestExecute_ExpiredContextWithoutDispatcherFails(t *testing.T) {
	packs := pack.NewRegistry(true, nil)

	// No manifest is loaded and no dispatcher is configured, so an agent
	// probe with an already-expired context fails at routing with the
	// "not configured" error rather than reporting a timeout.
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	r := New(packs, nil, nil, nil, nil, zap.NewNop())
	_, err := r.Execute(ctx, "ssh.uptime", nil, "host-1")
	// No dispatcher wired: routing fails before any timeout semantics apply.
	assert.Error(t, err)
}
