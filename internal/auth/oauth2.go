package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sonde-io/sonde-hub/internal/dbmodel"
	"github.com/sonde-io/sonde-hub/internal/repository"
)

const (
	// oauthCodeTTL is the authorization code lifetime — short, since it's
	// only meant to survive the redirect round trip to the token endpoint.
	oauthCodeTTL = 5 * time.Minute
)

// OAuth2Server implements RFC 7636 authorization-code + PKCE for MCP
// clients, self-issuing RS256 JWT access tokens via JWTManager. No refresh
// tokens are issued — an expired token means re-running the authorization
// code flow.
type OAuth2Server struct {
	oauth      repository.OAuthRepository
	jwtManager *JWTManager
}

// NewOAuth2Server creates an OAuth2Server.
func NewOAuth2Server(oauth repository.OAuthRepository, jwtManager *JWTManager) *OAuth2Server {
	return &OAuth2Server{oauth: oauth, jwtManager: jwtManager}
}

// Authorize validates the authorization request and issues a single-use
// code bound to codeChallenge. The caller is expected to have already
// obtained dashboard-session consent before calling this.
func (s *OAuth2Server) Authorize(ctx context.Context, clientID, redirectURI, codeChallenge, codeChallengeMethod, scope string) (string, error) {
	client, err := s.oauth.GetClient(ctx, clientID)
	if err != nil {
		if repository.IsNotFound(err) {
			return "", ErrInvalidClient
		}
		return "", fmt.Errorf("auth: looking up oauth2 client: %w", err)
	}

	if !redirectURIRegistered(client, redirectURI) {
		return "", ErrRedirectURIMismatch
	}

	if codeChallengeMethod == "" {
		codeChallengeMethod = "S256"
	}
	if codeChallengeMethod != "S256" {
		return "", fmt.Errorf("auth: unsupported code_challenge_method %q", codeChallengeMethod)
	}

	code := uuid.NewString()
	if err := s.oauth.CreateCode(ctx, &dbmodel.OAuthCode{
		ClientID:            clientID,
		Code:                code,
		CodeChallenge:       codeChallenge,
		CodeChallengeMethod: codeChallengeMethod,
		RedirectURI:         redirectURI,
		Scopes:              scope,
		ExpiresAt:           time.Now().Add(oauthCodeTTL),
	}); err != nil {
		return "", fmt.Errorf("auth: persisting authorization code: %w", err)
	}

	return code, nil
}

// Token exchanges a single-use code for an access token, verifying the PKCE
// code_verifier against the challenge recorded at Authorize time.
func (s *OAuth2Server) Token(ctx context.Context, clientID, code, codeVerifier, redirectURI string) (string, time.Time, error) {
	stored, err := s.oauth.ConsumeCode(ctx, code)
	if err != nil {
		if repository.IsNotFound(err) {
			return "", time.Time{}, ErrInvalidGrant
		}
		return "", time.Time{}, fmt.Errorf("auth: consuming authorization code: %w", err)
	}

	if stored.ConsumedAt != nil {
		return "", time.Time{}, ErrInvalidGrant
	}
	if time.Now().After(stored.ExpiresAt) {
		return "", time.Time{}, ErrInvalidGrant
	}
	if stored.ClientID != clientID || stored.RedirectURI != redirectURI {
		return "", time.Time{}, ErrInvalidGrant
	}
	if !verifyPKCE(stored.CodeChallenge, codeVerifier) {
		return "", time.Time{}, ErrInvalidGrant
	}

	accessToken, err := s.jwtManager.GenerateAccessToken(clientID, stored.Scopes)
	if err != nil {
		return "", time.Time{}, err
	}

	expiresAt := time.Now().Add(accessTokenDuration)
	if err := s.oauth.CreateToken(ctx, &dbmodel.OAuthToken{
		ClientID:  clientID,
		TokenHash: hashOAuthToken(accessToken),
		Scopes:    stored.Scopes,
		ExpiresAt: expiresAt,
	}); err != nil {
		return "", time.Time{}, fmt.Errorf("auth: persisting access token: %w", err)
	}

	return accessToken, expiresAt, nil
}

// Authenticate validates a bearer value as an MCP OAuth2 access token: the
// JWT signature and expiry must verify, and a live row must still exist for
// its hash — a restart rotates the ephemeral signing key and naturally
// invalidates every outstanding token even before its row expires.
func (s *OAuth2Server) Authenticate(ctx context.Context, bearer string) (AuthContext, error) {
	claims, err := s.jwtManager.ValidateAccessToken(bearer)
	if err != nil {
		return AuthContext{}, err
	}

	token, err := s.oauth.GetTokenByHash(ctx, hashOAuthToken(bearer))
	if err != nil {
		if repository.IsNotFound(err) {
			return AuthContext{}, ErrTokenInvalid
		}
		return AuthContext{}, fmt.Errorf("auth: looking up oauth2 token: %w", err)
	}
	if time.Now().After(token.ExpiresAt) {
		return AuthContext{}, ErrTokenExpired
	}

	return AuthContext{
		Type:    "oauth",
		KeyID:   claims.ClientID,
		KeyName: claims.ClientID,
		Scopes:  splitScopes(claims.Scope),
	}, nil
}

func redirectURIRegistered(client *dbmodel.OAuthClient, redirectURI string) bool {
	var registered []string
	if err := json.Unmarshal([]byte(client.RedirectURIs), &registered); err != nil {
		return false
	}
	for _, u := range registered {
		if u == redirectURI {
			return true
		}
	}
	return false
}

// verifyPKCE recomputes the S256 code_challenge from verifier and compares
// it in constant time against the one recorded at the authorize step.
func verifyPKCE(challenge, verifier string) bool {
	if verifier == "" {
		return false
	}
	sum := sha256.Sum256([]byte(verifier))
	computed := base64.RawURLEncoding.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}

func hashOAuthToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// splitScopes splits a space-separated scopes string into a slice.
func splitScopes(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Fields(s)
}
