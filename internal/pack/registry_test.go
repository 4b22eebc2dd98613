package pack

import (
	"crypto/ed25519"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `
name: proxmox
version: 1.2.0
description: Proxmox VE cluster diagnostics
kind: integration
probes:
  - name: proxmox.cluster.status
    capability: observe
    timeoutMs: 5000
  - name: proxmox.vm.restart
    capability: manage
    timeoutMs: 30000
runbook:
  category: cluster-health
  probes: [proxmox.cluster.status]
  parallel: true
`

func TestLoadManifest_UnsignedAcceptedWhenAllowed(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	r := NewRegistry(true, pub)
	require.NoError(t, r.LoadManifest([]byte(sampleManifest), ""))

	m, ok := r.Get("proxmox")
	require.True(t, ok)
	assert.Equal(t, "1.2.0", m.Version)
	assert.Len(t, m.Probes, 2)
}

func TestLoadManifest_UnsignedRejectedWhenDisallowed(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	r := NewRegistry(false, pub)
	err = r.LoadManifest([]byte(sampleManifest), "")
	assert.ErrorIs(t, err, ErrUnsigned)
}

func TestLoadManifest_ValidSignatureAccepted(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	raw := []byte(sampleManifest)
	sig := base64.StdEncoding.EncodeToString(ed25519.Sign(priv, raw))

	r := NewRegistry(false, pub)
	require.NoError(t, r.LoadManifest(raw, sig))
	_, ok := r.Get("proxmox")
	assert.True(t, ok)
}

func TestLoadManifest_TamperedSignatureRejected(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	sig := base64.StdEncoding.EncodeToString(ed25519.Sign(priv, []byte(sampleManifest)))
	tampered := sampleManifest + "\n# tampered"

	r := NewRegistry(false, pub)
	err = r.LoadManifest([]byte(tampered), sig)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestResolve_FindsProbeByPackPrefix(t *testing.T) {
	r := NewRegistry(true, nil)
	require.NoError(t, r.LoadManifest([]byte(sampleManifest), ""))

	m, def, ok := r.Resolve("proxmox.cluster.status")
	require.True(t, ok)
	assert.Equal(t, "proxmox", m.Name)
	assert.Equal(t, Observe, def.Capability)

	_, _, ok = r.Resolve("proxmox.nonexistent.probe")
	assert.False(t, ok)

	_, _, ok = r.Resolve("unknownpack.some.probe")
	assert.False(t, ok)
}

func TestPackPrefix(t *testing.T) {
	assert.Equal(t, "proxmox", PackPrefix("proxmox.cluster.status"))
	assert.Equal(t, "system", PackPrefix("system.disk.usage"))
	assert.Equal(t, "standalone", PackPrefix("standalone"))
}
