package auth

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonde-io/sonde-hub/internal/dbmodel"
	"github.com/sonde-io/sonde-hub/internal/policy"
	"github.com/sonde-io/sonde-hub/internal/repository"
)

type fakeAPIKeyRepo struct {
	byHash map[string]*dbmodel.APIKey
}

func (f *fakeAPIKeyRepo) Create(context.Context, *dbmodel.APIKey) error { return nil }
func (f *fakeAPIKeyRepo) GetByHash(_ context.Context, hash string) (*dbmodel.APIKey, error) {
	key, ok := f.byHash[hash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return key, nil
}
func (f *fakeAPIKeyRepo) GetByID(context.Context, uuid.UUID) (*dbmodel.APIKey, error) {
	return nil, repository.ErrNotFound
}
func (f *fakeAPIKeyRepo) Update(context.Context, *dbmodel.APIKey) error { return nil }
func (f *fakeAPIKeyRepo) Revoke(context.Context, uuid.UUID) error      { return nil }
func (f *fakeAPIKeyRepo) List(context.Context, repository.ListOptions) ([]dbmodel.APIKey, int64, error) {
	return nil, 0, nil
}
func (f *fakeAPIKeyRepo) TouchLastUsed(context.Context, uuid.UUID, time.Time) error { return nil }

func TestAPIKeyAuthenticator_Authenticate_Success(t *testing.T) {
	raw, hash, err := GenerateAPIKey()
	require.NoError(t, err)

	pol := policy.Policy{AllowedAgents: []string{"host-1"}}
	polJSON, err := json.Marshal(pol)
	require.NoError(t, err)

	repo := &fakeAPIKeyRepo{byHash: map[string]*dbmodel.APIKey{
		hash: {DisplayName: "ci-runner", Role: "member", PolicyBlob: string(polJSON)},
	}}

	authr := NewAPIKeyAuthenticator(repo)
	ac, err := authr.Authenticate(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "api_key", ac.Type)
	assert.Equal(t, "ci-runner", ac.KeyName)
	assert.Equal(t, []string{"host-1"}, ac.Policy.AllowedAgents)
}

func TestAPIKeyAuthenticator_Authenticate_NotFound(t *testing.T) {
	authr := NewAPIKeyAuthenticator(&fakeAPIKeyRepo{byHash: map[string]*dbmodel.APIKey{}})
	_, err := authr.Authenticate(context.Background(), "sonde_bogus")
	assert.ErrorIs(t, err, ErrAPIKeyNotFound)
}

func TestAPIKeyAuthenticator_Authenticate_Revoked(t *testing.T) {
	raw, hash, err := GenerateAPIKey()
	require.NoError(t, err)
	now := time.Now()
	repo := &fakeAPIKeyRepo{byHash: map[string]*dbmodel.APIKey{hash: {RevokedAt: &now}}}

	_, err = NewAPIKeyAuthenticator(repo).Authenticate(context.Background(), raw)
	assert.ErrorIs(t, err, ErrAPIKeyRevoked)
}

func TestAPIKeyAuthenticator_Authenticate_Expired(t *testing.T) {
	raw, hash, err := GenerateAPIKey()
	require.NoError(t, err)
	past := time.Now().Add(-time.Hour)
	repo := &fakeAPIKeyRepo{byHash: map[string]*dbmodel.APIKey{hash: {ExpiresAt: &past}}}

	_, err = NewAPIKeyAuthenticator(repo).Authenticate(context.Background(), raw)
	assert.ErrorIs(t, err, ErrAPIKeyExpired)
}
