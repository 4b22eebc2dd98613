package pack

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Registry holds every loaded pack manifest, keyed by pack name, and
// resolves a fully-qualified probe name to the manifest that declares it.
type Registry struct {
	mu            sync.RWMutex
	byName        map[string]*Manifest
	allowUnsigned bool
	trustedKey    ed25519.PublicKey
}

// NewRegistry creates an empty Registry. allowUnsigned mirrors the
// configuration flag that decides whether an unsigned manifest is accepted;
// trustedKey may be nil when signature verification is disabled entirely.
func NewRegistry(allowUnsigned bool, trustedKey ed25519.PublicKey) *Registry {
	return &Registry{
		byName:        make(map[string]*Manifest),
		allowUnsigned: allowUnsigned,
		trustedKey:    trustedKey,
	}
}

// LoadDir scans dir for *.yaml/*.yml/*.json pack manifest files and loads
// each one. A manifest whose signature doesn't verify is rejected outright;
// one with no signature is rejected only if allowUnsigned is false.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("pack: read dir %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("pack: read %s: %w", path, err)
		}
		sigPath := path + ".sig"
		signature := ""
		if sigData, err := os.ReadFile(sigPath); err == nil {
			signature = strings.TrimSpace(string(sigData))
		}
		if err := r.LoadManifest(data, signature); err != nil {
			return fmt.Errorf("pack: load %s: %w", path, err)
		}
	}
	return nil
}

// LoadManifest parses raw (YAML or JSON, both decode with yaml.v3) manifest
// bytes, verifies its detached signature against the registry's trusted
// key, and registers it under its declared name.
func (r *Registry) LoadManifest(raw []byte, signatureB64 string) error {
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("pack: parse manifest: %w", err)
	}
	if m.Name == "" {
		return fmt.Errorf("pack: manifest missing name")
	}

	if len(r.trustedKey) > 0 {
		err := VerifySignature(raw, signatureB64, r.trustedKey)
		switch {
		case err == nil:
		case err == ErrUnsigned && r.allowUnsigned:
		default:
			return fmt.Errorf("pack: %s: %w", m.Name, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[m.Name] = &m
	return nil
}

// Register installs an already-parsed manifest directly, bypassing
// signature verification. Used for packs compiled into the hub itself.
func (r *Registry) Register(m *Manifest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[m.Name] = m
}

// Get returns the manifest registered under name.
func (r *Registry) Get(name string) (*Manifest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byName[name]
	return m, ok
}

// List returns every registered manifest.
func (r *Registry) List() []*Manifest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Manifest, 0, len(r.byName))
	for _, m := range r.byName {
		out = append(out, m)
	}
	return out
}

// PackPrefix returns the leading, dot-separated pack name component of a
// fully-qualified probe name, e.g. "proxmox.cluster.status" -> "proxmox".
func PackPrefix(probe string) string {
	if i := strings.IndexByte(probe, '.'); i >= 0 {
		return probe[:i]
	}
	return probe
}

// Resolve looks up the manifest and probe definition for a fully-qualified
// probe name.
func (r *Registry) Resolve(probe string) (*Manifest, ProbeDef, bool) {
	prefix := PackPrefix(probe)
	m, ok := r.Get(prefix)
	if !ok {
		return nil, ProbeDef{}, false
	}
	def, ok := m.ProbeByName(probe)
	if !ok {
		return nil, ProbeDef{}, false
	}
	return m, def, true
}
