package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sonde-io/sonde-hub/internal/policy"
	"github.com/sonde-io/sonde-hub/internal/repository"
)

// apiKeyRawBytes is the entropy of a generated raw API key before encoding.
const apiKeyRawBytes = 32

// apiKeyPrefix makes a raw key visually identifiable in logs, tickets, and
// .env files without revealing anything about the hash.
const apiKeyPrefix = "sonde_"

// APIKeyAuthenticator resolves a bearer value to an AuthContext by hashing
// it and looking up the hash in O(1) via the persisted unique index —
// mirrors the first of the auth layer's three tried-in-order paths.
type APIKeyAuthenticator struct {
	keys repository.APIKeyRepository
}

// NewAPIKeyAuthenticator creates an APIKeyAuthenticator.
func NewAPIKeyAuthenticator(keys repository.APIKeyRepository) *APIKeyAuthenticator {
	return &APIKeyAuthenticator{keys: keys}
}

// Authenticate validates raw as an API key and returns the resolved
// AuthContext. It does not touch LastUsedAt — callers invoke TouchLastUsed
// themselves once the request has actually reached a tool invocation, per
// probe, not per authentication.
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, raw string) (AuthContext, error) {
	hash := HashAPIKey(raw)

	key, err := a.keys.GetByHash(ctx, hash)
	if err != nil {
		if repository.IsNotFound(err) {
			return AuthContext{}, ErrAPIKeyNotFound
		}
		return AuthContext{}, fmt.Errorf("auth: looking up api key: %w", err)
	}

	if key.RevokedAt != nil {
		return AuthContext{}, ErrAPIKeyRevoked
	}
	if key.ExpiresAt != nil && time.Now().After(*key.ExpiresAt) {
		return AuthContext{}, ErrAPIKeyExpired
	}

	var pol policy.Policy
	if key.PolicyBlob != "" {
		if err := json.Unmarshal([]byte(key.PolicyBlob), &pol); err != nil {
			return AuthContext{}, fmt.Errorf("auth: parsing api key policy blob: %w", err)
		}
	}

	return AuthContext{
		Type:    "api_key",
		KeyID:   key.ID.String(),
		KeyName: key.DisplayName,
		Role:    key.Role,
		Policy:  pol,
	}, nil
}

// HashAPIKey returns the SHA-256 hex digest stored as APIKey.KeyHash. Only
// the hash is ever persisted; the raw key exists solely in the response to
// the creating admin and in the caller's own secret storage.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// GenerateAPIKey returns a new random raw API key and its SHA-256 hash. The
// raw value is shown to the admin exactly once; only the hash is stored.
func GenerateAPIKey() (raw, hash string, err error) {
	b := make([]byte, apiKeyRawBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("auth: generating api key: %w", err)
	}
	raw = apiKeyPrefix + hex.EncodeToString(b)
	return raw, HashAPIKey(raw), nil
}
