package mcp

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sonde-io/sonde-hub/internal/auth"
	"github.com/sonde-io/sonde-hub/internal/dbmodel"
	"github.com/sonde-io/sonde-hub/internal/repository"
)

// testAPIKeyAuth returns an AuthContext shaped like one minted by the
// API-key path, with a fixed, parseable KeyID for recordAudit assertions.
func testAPIKeyAuth() auth.AuthContext {
	return auth.AuthContext{Type: "api_key", KeyID: uuid.New().String(), KeyName: "test-key"}
}

// fakeAgentRepo is an in-memory stand-in for repository.AgentRepository,
// keyed by name the way the MCP tools look agents up.
type fakeAgentRepo struct {
	mu     sync.Mutex
	byName map[string]*dbmodel.Agent
	packs  map[uuid.UUID][]dbmodel.AgentPack
}

func newFakeAgentRepo(agents ...*dbmodel.Agent) *fakeAgentRepo {
	f := &fakeAgentRepo{byName: map[string]*dbmodel.Agent{}, packs: map[uuid.UUID][]dbmodel.AgentPack{}}
	for _, a := range agents {
		f.byName[a.Name] = a
	}
	return f
}

func (f *fakeAgentRepo) Create(context.Context, *dbmodel.Agent) error { return nil }
func (f *fakeAgentRepo) GetByID(_ context.Context, id uuid.UUID) (*dbmodel.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.byName {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, repository.ErrNotFound
}
func (f *fakeAgentRepo) GetByName(_ context.Context, name string) (*dbmodel.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byName[name]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return a, nil
}
func (f *fakeAgentRepo) Update(context.Context, *dbmodel.Agent) error { return nil }
func (f *fakeAgentRepo) UpdateStatus(context.Context, uuid.UUID, string, time.Time) error {
	return nil
}
func (f *fakeAgentRepo) List(_ context.Context, _ repository.ListOptions) ([]dbmodel.Agent, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]dbmodel.Agent, 0, len(f.byName))
	for _, a := range f.byName {
		out = append(out, *a)
	}
	return out, int64(len(out)), nil
}
func (f *fakeAgentRepo) Delete(context.Context, uuid.UUID) error { return nil }
func (f *fakeAgentRepo) ReplacePacks(_ context.Context, agentID uuid.UUID, packs []dbmodel.AgentPack) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.packs[agentID] = packs
	return nil
}
func (f *fakeAgentRepo) ListPacks(_ context.Context, agentID uuid.UUID) ([]dbmodel.AgentPack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.packs[agentID], nil
}

var _ repository.AgentRepository = (*fakeAgentRepo)(nil)

// fakeAuditRepo is an in-memory stand-in for repository.AuditRepository.
type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []dbmodel.AuditEntry
}

func (f *fakeAuditRepo) Append(_ context.Context, entry *dbmodel.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, *entry)
	return nil
}
func (f *fakeAuditRepo) List(_ context.Context, opts repository.ListOptions) ([]dbmodel.AuditEntry, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries := append([]dbmodel.AuditEntry(nil), f.entries...)
	if opts.Limit > 0 && len(entries) > opts.Limit {
		entries = entries[:opts.Limit]
	}
	return entries, int64(len(f.entries)), nil
}
func (f *fakeAuditRepo) Count(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.entries)), nil
}

func (f *fakeAuditRepo) snapshot() []dbmodel.AuditEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]dbmodel.AuditEntry(nil), f.entries...)
}

var _ repository.AuditRepository = (*fakeAuditRepo)(nil)

// fakeAPIKeyRepo only implements the sliver of repository.APIKeyRepository
// the MCP layer touches: TouchLastUsed.
type fakeAPIKeyRepo struct {
	mu      sync.Mutex
	touched map[uuid.UUID]time.Time
}

func newFakeAPIKeyRepo() *fakeAPIKeyRepo {
	return &fakeAPIKeyRepo{touched: map[uuid.UUID]time.Time{}}
}

func (f *fakeAPIKeyRepo) Create(context.Context, *dbmodel.APIKey) error { return nil }
func (f *fakeAPIKeyRepo) GetByHash(context.Context, string) (*dbmodel.APIKey, error) {
	return nil, repository.ErrNotFound
}
func (f *fakeAPIKeyRepo) GetByID(context.Context, uuid.UUID) (*dbmodel.APIKey, error) {
	return nil, repository.ErrNotFound
}
func (f *fakeAPIKeyRepo) Update(context.Context, *dbmodel.APIKey) error { return nil }
func (f *fakeAPIKeyRepo) Revoke(context.Context, uuid.UUID) error      { return nil }
func (f *fakeAPIKeyRepo) List(context.Context, repository.ListOptions) ([]dbmodel.APIKey, int64, error) {
	return nil, 0, nil
}
func (f *fakeAPIKeyRepo) TouchLastUsed(_ context.Context, id uuid.UUID, when time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched[id] = when
	return nil
}

func (f *fakeAPIKeyRepo) touchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.touched)
}

var _ repository.APIKeyRepository = (*fakeAPIKeyRepo)(nil)

// fakeCriticalPathRepo is an in-memory stand-in for
// repository.CriticalPathRepository.
type fakeCriticalPathRepo struct {
	byName map[string]*dbmodel.CriticalPath
	steps  map[string][]dbmodel.CriticalPathStep
}

func newFakeCriticalPathRepo() *fakeCriticalPathRepo {
	return &fakeCriticalPathRepo{byName: map[string]*dbmodel.CriticalPath{}, steps: map[string][]dbmodel.CriticalPathStep{}}
}

func (f *fakeCriticalPathRepo) Create(_ context.Context, path *dbmodel.CriticalPath, steps []dbmodel.CriticalPathStep) error {
	f.byName[path.Name] = path
	f.steps[path.Name] = steps
	return nil
}
func (f *fakeCriticalPathRepo) GetByName(_ context.Context, name string) (*dbmodel.CriticalPath, []dbmodel.CriticalPathStep, error) {
	cp, ok := f.byName[name]
	if !ok {
		return nil, nil, repository.ErrNotFound
	}
	return cp, f.steps[name], nil
}
func (f *fakeCriticalPathRepo) List(context.Context) ([]dbmodel.CriticalPath, error) { return nil, nil }
func (f *fakeCriticalPathRepo) Delete(context.Context, uuid.UUID) error              { return nil }

var _ repository.CriticalPathRepository = (*fakeCriticalPathRepo)(nil)
