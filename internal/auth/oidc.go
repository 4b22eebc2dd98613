package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/sonde-io/sonde-hub/internal/dbmodel"
	"github.com/sonde-io/sonde-hub/internal/repository"
)

const (
	// oidcStateBytes is the length of the random state parameter for CSRF protection.
	oidcStateBytes = 16

	// oidcCodeVerifierBytes is the length of the PKCE code verifier before encoding.
	// RFC 7636 requires a minimum of 32 bytes of entropy.
	oidcCodeVerifierBytes = 32
)

// roleLevel orders the three built-in roles so the higher of an individually
// authorized user's role and an authorized group's role can be picked.
var roleLevel = map[string]int{"member": 0, "admin": 1, "owner": 2}

func higherRole(a, b string) string {
	if roleLevel[a] >= roleLevel[b] {
		return a
	}
	return b
}

// EntraSSOProvider implements the dashboard's Entra ID (Azure AD) single
// sign-on path using coreos/go-oidc with PKCE. Authorization is dual: a
// successfully verified identity still needs to match either an individual
// AuthorizedUser row or membership in an AuthorizedGroup mapped to a role —
// Entra authentication alone does not grant dashboard access.
//
// Configuration is loaded from the database on each call rather than cached,
// so an admin can enable/reconfigure SSO without restarting the hub.
type EntraSSOProvider struct {
	users repository.DashboardUserRepository
}

// NewEntraSSOProvider creates an EntraSSOProvider.
func NewEntraSSOProvider(users repository.DashboardUserRepository) *EntraSSOProvider {
	return &EntraSSOProvider{users: users}
}

// AuthorizationURL generates the OIDC authorization URL with a random state
// parameter and PKCE code verifier. The caller must store state and
// codeVerifier in a short-lived cookie before redirecting the user.
func (p *EntraSSOProvider) AuthorizationURL(ctx context.Context) (url, state, codeVerifier string, err error) {
	_, oauth2Cfg, err := p.loadConfig(ctx)
	if err != nil {
		return "", "", "", err
	}

	state, err = generateRandomBase64(oidcStateBytes)
	if err != nil {
		return "", "", "", fmt.Errorf("auth: generating oidc state: %w", err)
	}

	codeVerifier, err = generateRandomBase64(oidcCodeVerifierBytes)
	if err != nil {
		return "", "", "", fmt.Errorf("auth: generating pkce code verifier: %w", err)
	}

	url = oauth2Cfg.AuthCodeURL(
		state,
		oauth2.AccessTypeOnline,
		oauth2.S256ChallengeOption(codeVerifier),
	)

	return url, state, codeVerifier, nil
}

// ExchangeCode completes the Entra authorization-code flow, verifies the ID
// token, and resolves the caller's dashboard role via dual authorization.
func (p *EntraSSOProvider) ExchangeCode(ctx context.Context, code, state, sessionState, codeVerifier string) (email, role string, err error) {
	if state != sessionState {
		return "", "", ErrOIDCStateMismatch
	}
	if codeVerifier == "" {
		return "", "", ErrOIDCCodeVerifierMissing
	}

	cfg, oauth2Cfg, err := p.loadConfig(ctx)
	if err != nil {
		return "", "", err
	}

	oauth2Token, err := oauth2Cfg.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return "", "", fmt.Errorf("auth: exchanging oidc code: %w", err)
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return "", "", fmt.Errorf("auth: oidc token response missing id_token")
	}

	oidcProvider, err := gooidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return "", "", fmt.Errorf("auth: initializing oidc provider for issuer %q: %w", cfg.Issuer, err)
	}

	idToken, err := oidcProvider.Verifier(&gooidc.Config{ClientID: cfg.ClientID}).Verify(ctx, rawIDToken)
	if err != nil {
		return "", "", fmt.Errorf("auth: verifying oidc id_token: %w", err)
	}

	var claims struct {
		Email  string   `json:"email"`
		Groups []string `json:"groups"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return "", "", fmt.Errorf("auth: extracting oidc claims: %w", err)
	}

	return p.resolveRole(ctx, claims.Email, claims.Groups)
}

// resolveRole implements the dual-authorization check: an individually
// authorized user row and group membership in an authorized group are each
// sufficient, and when both apply the higher role wins.
func (p *EntraSSOProvider) resolveRole(ctx context.Context, email string, entraGroupIDs []string) (string, string, error) {
	resolved := ""

	if user, err := p.users.GetAuthorizedUser(ctx, email); err == nil {
		resolved = user.Role
	} else if !repository.IsNotFound(err) {
		return "", "", fmt.Errorf("auth: looking up authorized user: %w", err)
	}

	for _, groupID := range entraGroupIDs {
		group, err := p.users.GetAuthorizedGroup(ctx, groupID)
		if err != nil {
			if repository.IsNotFound(err) {
				continue
			}
			return "", "", fmt.Errorf("auth: looking up authorized group: %w", err)
		}
		if resolved == "" {
			resolved = group.Role
		} else {
			resolved = higherRole(resolved, group.Role)
		}
	}

	if resolved == "" {
		return "", "", ErrNotAuthorized
	}

	return email, resolved, nil
}

// loadConfig retrieves the enabled SSO configuration and builds the
// oauth2.Config used for the authorization and token endpoints.
func (p *EntraSSOProvider) loadConfig(ctx context.Context) (*dbmodel.SSOConfig, *oauth2.Config, error) {
	cfg, err := p.users.GetSSOConfig(ctx)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, nil, ErrProviderNotFound
		}
		return nil, nil, fmt.Errorf("auth: loading sso config: %w", err)
	}
	if !cfg.Enabled {
		return nil, nil, ErrProviderNotFound
	}

	oauth2Cfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: string(cfg.ClientSecret),
		RedirectURL:  cfg.RedirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.Issuer + "/oauth2/v2.0/authorize",
			TokenURL: cfg.Issuer + "/oauth2/v2.0/token",
		},
		Scopes: []string{gooidc.ScopeOpenID, "profile", "email"},
	}

	return cfg, oauth2Cfg, nil
}

// generateRandomBase64 returns a URL-safe base64-encoded random string of n bytes.
func generateRandomBase64(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
