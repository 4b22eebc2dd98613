package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/sonde-io/sonde-hub/internal/policy"
)

// AuthService is the single entry point the MCP session layer and the
// dashboard HTTP layer both authenticate through. It tries the three
// credential paths in the fixed order the auth layer is specified to: API
// key, then OAuth2 access token, then cookie session.
type AuthService struct {
	apiKeys  *APIKeyAuthenticator
	oauth    *OAuth2Server
	sessions *SessionStore
	local    *LocalAuthProvider
	sso      *EntraSSOProvider
	roles    *RoleChecker
	logger   *zap.Logger
}

// NewAuthService creates an AuthService from its constituent providers. Any
// of oauth/sso may be nil in a deployment that hasn't configured MCP OAuth2
// clients or Entra SSO — those paths then simply never match.
func NewAuthService(
	apiKeys *APIKeyAuthenticator,
	oauth *OAuth2Server,
	sessions *SessionStore,
	local *LocalAuthProvider,
	sso *EntraSSOProvider,
	roles *RoleChecker,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		apiKeys:  apiKeys,
		oauth:    oauth,
		sessions: sessions,
		local:    local,
		sso:      sso,
		roles:    roles,
		logger:   logger.Named("auth"),
	}
}

// SessionCookieName is the dashboard's HttpOnly, Secure, SameSite=Lax cookie.
const SessionCookieName = "sonde_session"

// Authenticate resolves the AuthContext for an inbound request by trying a
// bearer credential (API key, then OAuth2 token) and falling back to the
// sonde_session cookie. Returns ErrUnauthenticated when no path applies.
func (s *AuthService) Authenticate(ctx context.Context, r *http.Request) (AuthContext, error) {
	if bearer, ok := extractBearer(r); ok {
		ac, err := s.apiKeys.Authenticate(ctx, bearer)
		if err == nil {
			return ac, nil
		}
		if !errors.Is(err, ErrAPIKeyNotFound) {
			return AuthContext{}, err
		}

		if s.oauth == nil {
			return AuthContext{}, ErrTokenInvalid
		}
		return s.oauth.Authenticate(ctx, bearer)
	}

	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return AuthContext{}, ErrUnauthenticated
	}

	return s.sessions.Get(cookie.Value)
}

// LoginLocal authenticates a dashboard local admin and opens a session,
// returning the opaque session ID to set as the sonde_session cookie value.
func (s *AuthService) LoginLocal(ctx context.Context, clientIP, username, password string) (string, error) {
	admin, err := s.local.Login(ctx, clientIP, username, password)
	if err != nil {
		return "", err
	}
	return s.sessions.Create(AuthContext{
		Type:    "session",
		KeyID:   admin.ID.String(),
		KeyName: admin.Username,
		Role:    admin.Role,
		Policy:  policy.Policy{},
	})
}

// SSOAuthorizationURL starts the Entra SSO flow.
func (s *AuthService) SSOAuthorizationURL(ctx context.Context) (url, state, codeVerifier string, err error) {
	if s.sso == nil {
		return "", "", "", ErrProviderNotFound
	}
	return s.sso.AuthorizationURL(ctx)
}

// SSOExchangeCode completes the Entra SSO flow and opens a session.
func (s *AuthService) SSOExchangeCode(ctx context.Context, code, state, sessionState, codeVerifier string) (string, error) {
	if s.sso == nil {
		return "", ErrProviderNotFound
	}
	email, role, err := s.sso.ExchangeCode(ctx, code, state, sessionState, codeVerifier)
	if err != nil {
		return "", err
	}
	return s.sessions.Create(AuthContext{
		Type:    "session",
		KeyID:   email,
		KeyName: email,
		Role:    role,
		Policy:  policy.Policy{},
	})
}

// Logout terminates a dashboard session.
func (s *AuthService) Logout(sessionID string) {
	s.sessions.Delete(sessionID)
}

// Roles exposes the RBAC checker for middleware construction.
func (s *AuthService) Roles() *RoleChecker {
	return s.roles
}

// extractBearer pulls a bearer credential from the Authorization header or
// the apiKey query parameter, in that order.
func extractBearer(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1], true
		}
	}
	if key := r.URL.Query().Get("apiKey"); key != "" {
		return key, true
	}
	return "", false
}
