package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateProbeAccess_EmptyPolicyAllowsEverything(t *testing.T) {
	d := EvaluateProbeAccess(Auth{}, "srv1", "docker.containers.list", Manage)
	assert.True(t, d.Allowed)
	assert.Empty(t, d.Reason)
}

func TestEvaluateProbeAccess_AllowedProbesGlob(t *testing.T) {
	auth := Auth{Policy: Policy{AllowedProbes: []string{"system.*"}}}

	d := EvaluateProbeAccess(auth, "srv1", "system.disk.usage", Observe)
	assert.True(t, d.Allowed)

	d = EvaluateProbeAccess(auth, "srv1", "docker.containers.list", Observe)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "docker.containers.list")
}

func TestEvaluateProbeAccess_MaxCapabilityLevel(t *testing.T) {
	auth := Auth{Policy: Policy{MaxCapabilityLevel: "interact"}}

	assert.True(t, EvaluateProbeAccess(auth, "", "system.disk.usage", Observe).Allowed)
	assert.True(t, EvaluateProbeAccess(auth, "", "service.restart", Interact).Allowed)

	d := EvaluateProbeAccess(auth, "", "agent.config.update", Manage)
	assert.False(t, d.Allowed)
}

func TestEvaluateProbeAccess_AllowedAgentsDeny(t *testing.T) {
	auth := Auth{Policy: Policy{AllowedAgents: []string{"srv1"}}}

	d := EvaluateProbeAccess(auth, "srv2", "system.disk.usage", Observe)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "srv2")

	d = EvaluateProbeAccess(auth, "srv1", "system.disk.usage", Observe)
	assert.True(t, d.Allowed)
}

func TestEvaluateAgentAccess_GroupMembershipGrants(t *testing.T) {
	auth := Auth{
		Policy:          Policy{AllowedAgents: []string{"srv1"}},
		GroupAgentNames: []string{"srv9"},
	}

	assert.True(t, EvaluateAgentAccess(auth, "srv9").Allowed)
	assert.False(t, EvaluateAgentAccess(auth, "srv2").Allowed)
}

func TestParseCapabilityLevel(t *testing.T) {
	assert.Equal(t, Observe, ParseCapabilityLevel("observe"))
	assert.Equal(t, Interact, ParseCapabilityLevel("interact"))
	assert.Equal(t, Manage, ParseCapabilityLevel("manage"))
	assert.Equal(t, Manage, ParseCapabilityLevel("bogus"))
	assert.True(t, Observe < Interact)
	assert.True(t, Interact < Manage)
}

func TestGlobMatch(t *testing.T) {
	cases := []struct {
		pattern, name string
		want          bool
	}{
		{"system.*", "system.disk.usage", true},
		{"system.*", "docker.containers.list", false},
		{"*", "anything.goes", true},
		{"docker.containers.*", "docker.containers.list", true},
		{"docker.containers.*", "docker.images.list", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, globMatch(c.pattern, c.name), "pattern=%q name=%q", c.pattern, c.name)
	}
}
