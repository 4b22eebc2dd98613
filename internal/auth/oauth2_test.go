package auth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonde-io/sonde-hub/internal/dbmodel"
	"github.com/sonde-io/sonde-hub/internal/repository"
)

var errNotFoundStub = repository.ErrNotFound

type fakeOAuthRepo struct {
	clients map[string]*dbmodel.OAuthClient
	codes   map[string]*dbmodel.OAuthCode
	tokens  map[string]*dbmodel.OAuthToken
}

func newFakeOAuthRepo() *fakeOAuthRepo {
	return &fakeOAuthRepo{
		clients: make(map[string]*dbmodel.OAuthClient),
		codes:   make(map[string]*dbmodel.OAuthCode),
		tokens:  make(map[string]*dbmodel.OAuthToken),
	}
}

func (f *fakeOAuthRepo) GetClient(_ context.Context, clientID string) (*dbmodel.OAuthClient, error) {
	c, ok := f.clients[clientID]
	if !ok {
		return nil, errNotFoundStub
	}
	return c, nil
}
func (f *fakeOAuthRepo) CreateClient(_ context.Context, c *dbmodel.OAuthClient) error {
	f.clients[c.ClientID] = c
	return nil
}
func (f *fakeOAuthRepo) CreateCode(_ context.Context, c *dbmodel.OAuthCode) error {
	f.codes[c.Code] = c
	return nil
}
func (f *fakeOAuthRepo) ConsumeCode(_ context.Context, code string) (*dbmodel.OAuthCode, error) {
	c, ok := f.codes[code]
	if !ok || c.ConsumedAt != nil {
		return nil, errNotFoundStub
	}
	now := time.Now()
	c.ConsumedAt = &now
	return c, nil
}
func (f *fakeOAuthRepo) CreateToken(_ context.Context, tok *dbmodel.OAuthToken) error {
	f.tokens[tok.TokenHash] = tok
	return nil
}
func (f *fakeOAuthRepo) GetTokenByHash(_ context.Context, hash string) (*dbmodel.OAuthToken, error) {
	t, ok := f.tokens[hash]
	if !ok {
		return nil, errNotFoundStub
	}
	return t, nil
}
func (f *fakeOAuthRepo) DeleteExpiredTokens(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func pkceChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func newTestOAuth2Server(t *testing.T, repo *fakeOAuthRepo) *OAuth2Server {
	t.Helper()
	jwtMgr, err := NewJWTManagerGenerated("sonde-hub")
	require.NoError(t, err)
	return NewOAuth2Server(repo, jwtMgr)
}

func TestOAuth2Server_AuthorizeAndToken(t *testing.T) {
	repo := newFakeOAuthRepo()
	redirectURIs, _ := json.Marshal([]string{"https://client.example/callback"})
	repo.clients["mcp-client"] = &dbmodel.OAuthClient{ClientID: "mcp-client", RedirectURIs: string(redirectURIs)}

	server := newTestOAuth2Server(t, repo)
	verifier := "a-random-code-verifier-that-is-long-enough"
	challenge := pkceChallenge(verifier)

	code, err := server.Authorize(context.Background(), "mcp-client", "https://client.example/callback", challenge, "S256", "probe diagnose")
	require.NoError(t, err)

	token, expiresAt, err := server.Token(context.Background(), "mcp-client", code, verifier, "https://client.example/callback")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	ac, err := server.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "oauth", ac.Type)
	assert.Equal(t, "mcp-client", ac.KeyID)
	assert.Equal(t, []string{"probe", "diagnose"}, ac.Scopes)
}

func TestOAuth2Server_Token_WrongVerifierRejected(t *testing.T) {
	repo := newFakeOAuthRepo()
	redirectURIs, _ := json.Marshal([]string{"https://client.example/callback"})
	repo.clients["mcp-client"] = &dbmodel.OAuthClient{ClientID: "mcp-client", RedirectURIs: string(redirectURIs)}

	server := newTestOAuth2Server(t, repo)
	challenge := pkceChallenge("correct-verifier-0123456789012345")

	code, err := server.Authorize(context.Background(), "mcp-client", "https://client.example/callback", challenge, "S256", "")
	require.NoError(t, err)

	_, _, err = server.Token(context.Background(), "mcp-client", code, "wrong-verifier", "https://client.example/callback")
	assert.ErrorIs(t, err, ErrInvalidGrant)
}

func TestOAuth2Server_Token_CodeSingleUse(t *testing.T) {
	repo := newFakeOAuthRepo()
	redirectURIs, _ := json.Marshal([]string{"https://client.example/callback"})
	repo.clients["mcp-client"] = &dbmodel.OAuthClient{ClientID: "mcp-client", RedirectURIs: string(redirectURIs)}

	server := newTestOAuth2Server(t, repo)
	verifier := "a-random-code-verifier-that-is-long-enough"
	challenge := pkceChallenge(verifier)

	code, err := server.Authorize(context.Background(), "mcp-client", "https://client.example/callback", challenge, "S256", "")
	require.NoError(t, err)

	_, _, err = server.Token(context.Background(), "mcp-client", code, verifier, "https://client.example/callback")
	require.NoError(t, err)

	_, _, err = server.Token(context.Background(), "mcp-client", code, verifier, "https://client.example/callback")
	assert.ErrorIs(t, err, ErrInvalidGrant)
}

func TestOAuth2Server_Authorize_UnknownClient(t *testing.T) {
	server := newTestOAuth2Server(t, newFakeOAuthRepo())
	_, err := server.Authorize(context.Background(), "nope", "https://client.example/callback", "chal", "S256", "")
	assert.ErrorIs(t, err, ErrInvalidClient)
}

func TestOAuth2Server_Authorize_RedirectURIMismatch(t *testing.T) {
	repo := newFakeOAuthRepo()
	redirectURIs, _ := json.Marshal([]string{"https://client.example/callback"})
	repo.clients["mcp-client"] = &dbmodel.OAuthClient{ClientID: "mcp-client", RedirectURIs: string(redirectURIs)}

	server := newTestOAuth2Server(t, repo)
	_, err := server.Authorize(context.Background(), "mcp-client", "https://evil.example/callback", "chal", "S256", "")
	assert.ErrorIs(t, err, ErrRedirectURIMismatch)
}
