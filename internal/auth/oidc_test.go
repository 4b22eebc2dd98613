package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonde-io/sonde-hub/internal/dbmodel"
	"github.com/sonde-io/sonde-hub/internal/repository"
)

type fakeSSORepo struct {
	fakeDashboardUserRepo
	authorizedUsers  map[string]*dbmodel.AuthorizedUser
	authorizedGroups map[string]*dbmodel.AuthorizedGroup
}

func (f *fakeSSORepo) GetAuthorizedUser(_ context.Context, email string) (*dbmodel.AuthorizedUser, error) {
	u, ok := f.authorizedUsers[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

func (f *fakeSSORepo) GetAuthorizedGroup(_ context.Context, groupID string) (*dbmodel.AuthorizedGroup, error) {
	g, ok := f.authorizedGroups[groupID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return g, nil
}

func newFakeSSORepo() *fakeSSORepo {
	return &fakeSSORepo{
		authorizedUsers:  make(map[string]*dbmodel.AuthorizedUser),
		authorizedGroups: make(map[string]*dbmodel.AuthorizedGroup),
	}
}

func TestEntraSSOProvider_ResolveRole_IndividualUserOnly(t *testing.T) {
	repo := newFakeSSORepo()
	repo.authorizedUsers["alice@example.com"] = &dbmodel.AuthorizedUser{Email: "alice@example.com", Role: "admin"}

	p := NewEntraSSOProvider(repo)
	email, role, err := p.resolveRole(context.Background(), "alice@example.com", nil)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", email)
	assert.Equal(t, "admin", role)
}

func TestEntraSSOProvider_ResolveRole_GroupOnly(t *testing.T) {
	repo := newFakeSSORepo()
	repo.authorizedGroups["grp-1"] = &dbmodel.AuthorizedGroup{EntraGroupID: "grp-1", Role: "member"}

	p := NewEntraSSOProvider(repo)
	_, role, err := p.resolveRole(context.Background(), "bob@example.com", []string{"grp-1", "grp-unknown"})
	require.NoError(t, err)
	assert.Equal(t, "member", role)
}

func TestEntraSSOProvider_ResolveRole_HigherOfUserAndGroupWins(t *testing.T) {
	repo := newFakeSSORepo()
	repo.authorizedUsers["carol@example.com"] = &dbmodel.AuthorizedUser{Email: "carol@example.com", Role: "member"}
	repo.authorizedGroups["grp-admins"] = &dbmodel.AuthorizedGroup{EntraGroupID: "grp-admins", Role: "owner"}

	p := NewEntraSSOProvider(repo)
	_, role, err := p.resolveRole(context.Background(), "carol@example.com", []string{"grp-admins"})
	require.NoError(t, err)
	assert.Equal(t, "owner", role)
}

func TestEntraSSOProvider_ResolveRole_NeitherAuthorized(t *testing.T) {
	repo := newFakeSSORepo()
	p := NewEntraSSOProvider(repo)
	_, _, err := p.resolveRole(context.Background(), "mallory@example.com", []string{"grp-unknown"})
	assert.ErrorIs(t, err, ErrNotAuthorized)
}
