package pack

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrUnsigned is returned by VerifySignature when a manifest carries no
// signature at all — distinct from a signature that fails verification, so
// callers can apply the "unsigned packs are accepted only if configuration
// allows" policy without treating a forged signature the same as a missing
// one.
var ErrUnsigned = errors.New("pack: manifest is not signed")

// ErrInvalidSignature means a signature was present but did not verify
// against the provided trusted key.
var ErrInvalidSignature = errors.New("pack: signature verification failed")

// VerifySignature checks a base64-encoded ed25519 detached signature of
// canonicalBytes (the exact bytes the pack author signed, typically the raw
// manifest file contents) against trustedKey. A pack with no signature
// returns ErrUnsigned rather than failing silently, so the loader's
// allow-unsigned setting is the only place that decision is made.
func VerifySignature(canonicalBytes []byte, signatureB64 string, trustedKey ed25519.PublicKey) error {
	if signatureB64 == "" {
		return ErrUnsigned
	}
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return fmt.Errorf("pack: decode signature: %w", err)
	}
	if len(trustedKey) != ed25519.PublicKeySize {
		return fmt.Errorf("pack: trusted key has wrong size %d", len(trustedKey))
	}
	if !ed25519.Verify(trustedKey, canonicalBytes, sig) {
		return ErrInvalidSignature
	}
	return nil
}
