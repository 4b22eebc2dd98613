package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/argon2"

	"github.com/sonde-io/sonde-hub/internal/dbmodel"
	"github.com/sonde-io/sonde-hub/internal/repository"
)

const (
	// argon2Time is the number of iterations (time cost) for Argon2id.
	// OWASP minimum recommendation is 1; 2 provides a better security margin.
	argon2Time = 2

	// argon2Memory is the memory cost in KiB for Argon2id (64 MiB).
	argon2Memory = 64 * 1024

	// argon2Threads is the parallelism factor for Argon2id.
	argon2Threads = 2

	// argon2KeyLen is the output hash length in bytes.
	argon2KeyLen = 32

	// argon2SaltLen is the random salt length in bytes.
	argon2SaltLen = 16
)

// LocalAuthProvider authenticates the dashboard's local admin account,
// stored as a username + Argon2id password hash. Failed attempts are
// gated by a LoginRateLimiter before the password is even checked, so a
// brute-force run against a locked-out IP never touches the hasher.
type LocalAuthProvider struct {
	users       repository.DashboardUserRepository
	rateLimiter *LoginRateLimiter
}

// NewLocalAuthProvider creates a LocalAuthProvider.
func NewLocalAuthProvider(users repository.DashboardUserRepository, rateLimiter *LoginRateLimiter) *LocalAuthProvider {
	return &LocalAuthProvider{users: users, rateLimiter: rateLimiter}
}

// Login validates username/password for the given client IP and returns the
// matched admin record on success. The password is verified against the
// Argon2id hash stored in the database.
func (p *LocalAuthProvider) Login(ctx context.Context, clientIP, username, password string) (*dbmodel.LocalAdmin, error) {
	if !p.rateLimiter.Allow(clientIP) {
		return nil, ErrRateLimited
	}

	admin, err := p.users.GetLocalAdminByUsername(ctx, username)
	if err != nil {
		if repository.IsNotFound(err) {
			p.rateLimiter.RecordFailure(clientIP)
			// Returning ErrInvalidCredentials instead of a not-found error
			// avoids leaking whether the username is registered.
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("auth: fetching local admin: %w", err)
	}

	if !verifyPassword(password, admin.PasswordHash) {
		p.rateLimiter.RecordFailure(clientIP)
		return nil, ErrInvalidCredentials
	}

	return admin, nil
}

// HashPassword returns an Argon2id hash of the given plaintext password in
// the "saltHex:hashHex" format stored in LocalAdmin.PasswordHash.
func HashPassword(password string) (string, error) {
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generating password salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(hash), nil
}

// verifyPassword checks a plaintext password against a stored Argon2id hash
// in constant time. Returns false if the hash format is invalid rather than
// propagating an error, since an invalid hash means authentication must fail.
func verifyPassword(password, stored string) bool {
	saltHex, hashHex, ok := splitHash(stored)
	if !ok {
		return false
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false
	}

	expectedHash, err := hex.DecodeString(hashHex)
	if err != nil {
		return false
	}

	actual := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, uint32(len(expectedHash)))

	return constantTimeEqual(actual, expectedHash)
}

// splitHash splits a "saltHex:hashHex" string into its two components.
func splitHash(s string) (salt, hash string, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}

// constantTimeEqual compares two byte slices in constant time to prevent
// timing-based side-channel attacks.
func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}
