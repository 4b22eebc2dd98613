package integration

import (
	"context"
	"fmt"
	"strings"
)

// keeperRef is a parsed "keeper://<integrationId>/<recordUid>/field/<name>"
// credential reference.
type keeperRef struct {
	raw           string
	integrationID string
	recordUID     string
	field         string
}

const keeperScheme = "keeper://"

func parseKeeperRef(value string) (keeperRef, bool) {
	if !strings.HasPrefix(value, keeperScheme) {
		return keeperRef{}, false
	}
	rest := strings.TrimPrefix(value, keeperScheme)
	parts := strings.Split(rest, "/")
	if len(parts) != 4 || parts[2] != "field" {
		return keeperRef{}, false
	}
	return keeperRef{raw: value, integrationID: parts[0], recordUID: parts[1], field: parts[3]}, true
}

// KeeperResolver fetches secret field values from a configured Keeper
// integration. A single implementation backs every integration ID; the
// executor groups references by integration ID before calling it so a
// multi-field record is fetched once.
type KeeperResolver interface {
	ResolveFields(ctx context.Context, integrationID string, recordUID string, fields []string) (map[string]string, error)
}

// resolveCredentialReferences checks the secret fields of creds (APIKey,
// BearerToken, and the OAuth2 access token, refresh token and client
// secret), resolving any keeper:// reference in place. A missing Keeper integration, record,
// or field fails the whole probe.
func resolveCredentialReferences(ctx context.Context, resolver KeeperResolver, creds *Credentials) error {
	type fieldSlot struct {
		ref keeperRef
		set func(string)
	}

	var slots []fieldSlot
	if ref, ok := parseKeeperRef(creds.APIKey); ok {
		slots = append(slots, fieldSlot{ref, func(v string) { creds.APIKey = v }})
	}
	if ref, ok := parseKeeperRef(creds.BearerToken); ok {
		slots = append(slots, fieldSlot{ref, func(v string) { creds.BearerToken = v }})
	}
	if creds.OAuth2 != nil {
		if ref, ok := parseKeeperRef(creds.OAuth2.AccessToken); ok {
			slots = append(slots, fieldSlot{ref, func(v string) { creds.OAuth2.AccessToken = v }})
		}
		if ref, ok := parseKeeperRef(creds.OAuth2.RefreshToken); ok {
			slots = append(slots, fieldSlot{ref, func(v string) { creds.OAuth2.RefreshToken = v }})
		}
		if ref, ok := parseKeeperRef(creds.OAuth2.ClientSecret); ok {
			slots = append(slots, fieldSlot{ref, func(v string) { creds.OAuth2.ClientSecret = v }})
		}
	}
	if len(slots) == 0 {
		return nil
	}
	if resolver == nil {
		return fmt.Errorf("integration: credentials reference a keeper secret but no keeper integration is configured")
	}

	// Group by (integrationID, recordUID) so a multi-field record is one fetch.
	type recordKey struct{ integrationID, recordUID string }
	grouped := make(map[recordKey][]fieldSlot)
	for _, s := range slots {
		key := recordKey{s.ref.integrationID, s.ref.recordUID}
		grouped[key] = append(grouped[key], s)
	}

	for key, group := range grouped {
		fields := make([]string, len(group))
		for i, s := range group {
			fields[i] = s.ref.field
		}
		values, err := resolver.ResolveFields(ctx, key.integrationID, key.recordUID, fields)
		if err != nil {
			return fmt.Errorf("integration: resolve keeper reference %s: %w", key.recordUID, err)
		}
		for _, s := range group {
			v, ok := values[s.ref.field]
			if !ok {
				return fmt.Errorf("integration: keeper record %s is missing field %q", key.recordUID, s.ref.field)
			}
			s.set(v)
		}
	}
	return nil
}
