package auth

import (
	"context"

	"github.com/sonde-io/sonde-hub/internal/policy"
)

// AuthContext is the resolved identity and grant for a single authenticated
// request, regardless of which of the three paths produced it.
type AuthContext struct {
	// Type is "api_key", "oauth", or "session".
	Type string

	// KeyID identifies the credential: the API key's ID, the OAuth client
	// ID, or the session's local admin / SSO user ID.
	KeyID string

	// KeyName is a human-readable label (API key display name, username, or
	// SSO email) used in audit rows.
	KeyName string

	// Role is the RBAC role for session auth. API keys and OAuth clients
	// carry a Policy instead of a role — MCP tools are policy-checked, not
	// RBAC-checked.
	Role string

	// Policy restricts which agents/probes/capability levels an API key or
	// OAuth client may reach.
	Policy policy.Policy

	// Scopes is the OAuth2 scope list granted at token issuance.
	Scopes []string
}

type contextKey int

const contextKeyAuth contextKey = iota

// WithAuthContext returns a context carrying auth for downstream handlers.
func WithAuthContext(ctx context.Context, auth AuthContext) context.Context {
	return context.WithValue(ctx, contextKeyAuth, auth)
}

// FromContext retrieves the AuthContext stored by WithAuthContext.
func FromContext(ctx context.Context) (AuthContext, bool) {
	auth, ok := ctx.Value(contextKeyAuth).(AuthContext)
	return auth, ok
}
