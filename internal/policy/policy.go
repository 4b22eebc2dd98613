// Package policy is the pure decision layer between an authenticated caller
// and the agent or integration it wants to reach. It holds no state and
// talks to no store — every exported function is a plain computation over
// its arguments, which keeps it trivial to unit test exhaustively.
package policy

import (
	"path"
	"strings"
)

// CapabilityLevel orders the three probe risk tiers. observe is read-only,
// interact may change running state, manage may change fleet/agent config.
type CapabilityLevel int

const (
	Observe CapabilityLevel = iota
	Interact
	Manage
)

// ParseCapabilityLevel maps a manifest's declared level string to its rank.
// Unknown strings are treated as Manage, the most restrictive level, so a
// malformed manifest never accidentally grants broader access than intended.
func ParseCapabilityLevel(level string) CapabilityLevel {
	switch strings.ToLower(level) {
	case "observe":
		return Observe
	case "interact":
		return Interact
	case "manage":
		return Manage
	default:
		return Manage
	}
}

// Policy is the optional set of restrictions attached to an API key or
// OAuth2 client. A zero-value Policy allows everything.
type Policy struct {
	AllowedAgents      []string `json:"allowedAgents,omitempty"`
	AllowedProbes      []string `json:"allowedProbes,omitempty"`
	MaxCapabilityLevel string   `json:"maxCapabilityLevel,omitempty"`
}

// Auth is the minimal view of an authenticated caller the evaluator needs:
// its own policy plus any additional agent names granted through access
// group membership (dashboard-originated callers only; API keys carry their
// full grant in Policy itself).
type Auth struct {
	Policy          Policy
	GroupAgentNames []string
}

// Decision is the result of a policy check.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// EvaluateAgentAccess is the allowedAgents clause in isolation, exposed
// separately so callers that only need to check agent visibility (for
// example, the dashboard's agent list) don't have to fabricate a probe name.
func EvaluateAgentAccess(auth Auth, agentOrSource string) Decision {
	allowed := auth.Policy.AllowedAgents
	if len(allowed) == 0 && len(auth.GroupAgentNames) == 0 {
		return allow()
	}
	for _, name := range allowed {
		if name == agentOrSource {
			return allow()
		}
	}
	for _, name := range auth.GroupAgentNames {
		if name == agentOrSource {
			return allow()
		}
	}
	return deny("agent " + agentOrSource + " is not in the allowed agent list")
}

// EvaluateProbeAccess decides whether auth may invoke probeName against
// agentOrSource, given the probe's declared capability level. An empty
// policy allows everything. Each non-empty clause (allowedAgents,
// allowedProbes, maxCapabilityLevel) narrows access independently; all
// present clauses must pass.
func EvaluateProbeAccess(auth Auth, agentOrSource, probeName string, probeCapability CapabilityLevel) Decision {
	if agentOrSource != "" {
		if d := EvaluateAgentAccess(auth, agentOrSource); !d.Allowed {
			return d
		}
	}

	if len(auth.Policy.AllowedProbes) > 0 {
		matched := false
		for _, pattern := range auth.Policy.AllowedProbes {
			if globMatch(pattern, probeName) {
				matched = true
				break
			}
		}
		if !matched {
			return deny("probe " + probeName + " does not match any allowed probe pattern")
		}
	}

	if auth.Policy.MaxCapabilityLevel != "" {
		max := ParseCapabilityLevel(auth.Policy.MaxCapabilityLevel)
		if probeCapability > max {
			return deny("probe " + probeName + " exceeds the maximum allowed capability level")
		}
	}

	return allow()
}

// globMatch matches pattern against name. path.Match treats "/" as the only
// segment separator, and probe names never contain one, so "*" freely
// matches across dots: "system.*" matches "system.disk.usage".
func globMatch(pattern, name string) bool {
	matched, err := path.Match(pattern, name)
	if err != nil {
		return false
	}
	return matched
}
