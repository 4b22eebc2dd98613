// Package integration is the integration-pack executor: it invokes
// in-process HTTP-based handlers registered per pack type, retries
// transient failures with backoff, refreshes OAuth2 access tokens on a
// first-attempt 401, and resolves Keeper-vaulted credential references
// before a handler ever sees them.
package integration

import "time"

// AuthMethod identifies how an integration authenticates outbound calls.
type AuthMethod string

const (
	AuthAPIKey      AuthMethod = "api_key"
	AuthBearerToken AuthMethod = "bearer_token"
	AuthOAuth2      AuthMethod = "oauth2"
)

// OAuth2Creds carries the token state for an OAuth2-authenticated
// integration. RefreshToken and RefreshURL may be empty, in which case a
// 401 is never retried via refresh.
type OAuth2Creds struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt,omitempty"`
	RefreshURL   string    `json:"refreshUrl,omitempty"`
	ClientID     string    `json:"clientId,omitempty"`
	ClientSecret string    `json:"clientSecret,omitempty"`
}

// Credentials is the decrypted credentials bundle for one integration.
// String fields may carry a "keeper://<integrationId>/<recordUid>/field/<name>"
// reference instead of a literal value — resolved lazily before a handler
// call.
type Credentials struct {
	Method      AuthMethod   `json:"method"`
	APIKey      string       `json:"apiKey,omitempty"`
	BearerToken string       `json:"bearerToken,omitempty"`
	OAuth2      *OAuth2Creds `json:"oauth2,omitempty"`
}

// Config is the decrypted body of Integration.ConfigBlob.
type Config struct {
	Endpoint    string            `json:"endpoint"`
	Headers     map[string]string `json:"headers,omitempty"`
	TLSTrust    bool              `json:"tlsTrust"`
	Credentials Credentials       `json:"credentials"`
}
