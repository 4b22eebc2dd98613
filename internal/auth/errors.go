package auth

import "errors"

// Sentinel errors returned by the auth layer's three credential paths and
// its supporting stores. Callers should use errors.Is for comparison.
var (
	// ErrUnauthenticated is returned when none of the three auth paths
	// produced a usable credential.
	ErrUnauthenticated = errors.New("auth: no credential presented")

	// ErrAPIKeyNotFound is returned when no API key matches the presented
	// hash.
	ErrAPIKeyNotFound = errors.New("auth: api key not found")

	// ErrAPIKeyRevoked is returned when the matched key has a RevokedAt set.
	ErrAPIKeyRevoked = errors.New("auth: api key revoked")

	// ErrAPIKeyExpired is returned when the matched key's ExpiresAt has
	// passed.
	ErrAPIKeyExpired = errors.New("auth: api key expired")

	// ErrInvalidCredentials is returned when a local admin's username or
	// password does not match.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrUserDisabled is returned when a matched identity's account is
	// inactive.
	ErrUserDisabled = errors.New("auth: account is disabled")

	// ErrRateLimited is returned when an IP has exceeded the login failure
	// rate limit.
	ErrRateLimited = errors.New("auth: too many failed login attempts")

	// ErrNotAuthorized is returned when an SSO identity authenticates
	// successfully at the identity provider but matches neither an
	// authorized user row nor an authorized group mapping.
	ErrNotAuthorized = errors.New("auth: identity is not authorized for dashboard access")

	// ErrProviderNotFound is returned when SSO is not configured or not
	// enabled.
	ErrProviderNotFound = errors.New("auth: sso provider not configured")

	// ErrOIDCStateMismatch is returned when the OAuth2 state parameter does
	// not match the value stored in the session cookie (CSRF protection).
	ErrOIDCStateMismatch = errors.New("auth: oidc state mismatch")

	// ErrOIDCCodeVerifierMissing is returned when the PKCE code verifier is
	// absent from the session during the callback phase.
	ErrOIDCCodeVerifierMissing = errors.New("auth: oidc code verifier missing")

	// ErrSessionNotFound is returned when a session cookie does not match
	// any live session.
	ErrSessionNotFound = errors.New("auth: session not found")

	// ErrSessionExpired is returned when a matched session's TTL has
	// elapsed.
	ErrSessionExpired = errors.New("auth: session expired")

	// ErrInvalidClient is returned when an OAuth2 client_id is unknown.
	ErrInvalidClient = errors.New("auth: invalid oauth2 client")

	// ErrRedirectURIMismatch is returned when a redirect_uri does not match
	// one registered for the client.
	ErrRedirectURIMismatch = errors.New("auth: redirect_uri does not match registered client")

	// ErrInvalidGrant is returned when an authorization code is unknown,
	// expired, already consumed, or its PKCE verifier does not match.
	ErrInvalidGrant = errors.New("auth: invalid or expired authorization grant")

	// ErrTokenExpired is returned when a JWT access token has expired.
	ErrTokenExpired = errors.New("auth: token expired")

	// ErrTokenInvalid is returned when a token cannot be parsed, verified,
	// or is no longer recognised by the authorization server.
	ErrTokenInvalid = errors.New("auth: token invalid")
)