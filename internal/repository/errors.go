// Package repository is the persistence port: the narrow set of
// reads/writes the core calls for agents, integrations, api keys, critical
// paths, roles, access groups, and audit rows. At-rest encryption of
// integration blobs happens in dbmodel's EncryptedString column type; API
// keys are looked up by the SHA-256 hash the caller computes
// (auth.HashAPIKey).
package repository

import "errors"

// ErrNotFound is returned by repository methods when the requested record
// does not exist. Callers should use errors.Is to distinguish missing
// records from other database errors.
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned when an insert or update violates a unique
// constraint, for example registering two agents under the same name.
var ErrConflict = errors.New("record already exists")

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
