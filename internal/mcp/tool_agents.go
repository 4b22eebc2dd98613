package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sonde-io/sonde-hub/internal/policy"
	"github.com/sonde-io/sonde-hub/internal/repository"
)

func init() {
	registerTool("list_agents", ToolDescriptor{
		Name:        "list_agents",
		Description: "List every agent visible under the caller's policy.",
		InputSchema: schema(`{"type": "object", "properties": {}}`),
	}, handleListAgents)

	registerTool("agent_overview", ToolDescriptor{
		Name:        "agent_overview",
		Description: "Return detail for one agent: connection status, OS, version, loaded packs.",
		InputSchema: schema(`{
			"type": "object",
			"properties": {"agent": {"type": "string"}},
			"required": ["agent"]
		}`),
	}, handleAgentOverview)

	registerTool("list_capabilities", ToolDescriptor{
		Name:        "list_capabilities",
		Description: "List visible agents, configured integrations, and the runbook catalogue, with parameter schemas.",
		InputSchema: schema(`{"type": "object", "properties": {}}`),
	}, handleListCapabilities)
}

// agentSummary is the shape list_agents/list_capabilities return for a
// single agent.
type agentSummary struct {
	Name         string `json:"name"`
	Status       string `json:"status"`
	OS           string `json:"os"`
	AgentVersion string `json:"agentVersion"`
	LastSeenAt   string `json:"lastSeenAt,omitempty"`
}

func (s *Server) visibleAgents(ctx context.Context, sess *Session) ([]agentSummary, error) {
	all, _, err := s.agents.List(ctx, repository.ListOptions{Limit: 1000})
	if err != nil {
		return nil, err
	}

	out := make([]agentSummary, 0, len(all))
	for _, a := range all {
		if d := policy.EvaluateAgentAccess(policyAuth(sess), a.Name); !d.Allowed {
			continue
		}
		summary := agentSummary{Name: a.Name, Status: a.Status, OS: a.OS, AgentVersion: a.AgentVersion}
		if a.LastSeenAt != nil {
			summary.LastSeenAt = a.LastSeenAt.UTC().Format("2006-01-02T15:04:05Z")
		}
		out = append(out, summary)
	}
	return out, nil
}

func handleListAgents(ctx context.Context, s *Server, sess *Session, _ json.RawMessage) ToolResult {
	agents, err := s.visibleAgents(ctx, sess)
	if err != nil {
		return errorResult("failed to list agents: " + err.Error())
	}
	return textResult(struct {
		Agents []agentSummary `json:"agents"`
	}{Agents: agents})
}

type agentOverviewArgs struct {
	Agent string `json:"agent"`
}

type agentOverviewResult struct {
	agentSummary
	Packs []dbmodelAgentPack `json:"packs"`
}

// dbmodelAgentPack is the MCP-facing projection of dbmodel.AgentPack,
// dropping the base/audit fields a tool caller has no use for.
type dbmodelAgentPack struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Status  string `json:"status"`
}

func handleAgentOverview(ctx context.Context, s *Server, sess *Session, raw json.RawMessage) ToolResult {
	var args agentOverviewArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorResult("invalid arguments: " + err.Error())
	}
	if args.Agent == "" {
		return errorResult("agent is required")
	}

	if d := policy.EvaluateAgentAccess(policyAuth(sess), args.Agent); !d.Allowed {
		return errorResult("Access denied: " + d.Reason)
	}

	agent, err := s.agents.GetByName(ctx, args.Agent)
	if err != nil {
		if repository.IsNotFound(err) {
			return errorResult(fmt.Sprintf("agent %q not found", args.Agent))
		}
		return errorResult("failed to look up agent: " + err.Error())
	}

	result := agentOverviewResult{agentSummary: agentSummary{
		Name: agent.Name, Status: agent.Status, OS: agent.OS, AgentVersion: agent.AgentVersion,
	}}
	if agent.LastSeenAt != nil {
		result.LastSeenAt = agent.LastSeenAt.UTC().Format("2006-01-02T15:04:05Z")
	}

	packs, err := s.agents.ListPacks(ctx, agent.ID)
	if err == nil {
		for _, p := range packs {
			result.Packs = append(result.Packs, dbmodelAgentPack{Name: p.Name, Version: p.Version, Status: p.Status})
		}
	}

	return textResult(result)
}

type capabilitiesResult struct {
	Agents       []agentSummary      `json:"agents"`
	Integrations []string            `json:"integrations"`
	Runbooks     []runbookCapability `json:"runbooks"`
}

type runbookCapability struct {
	Category string            `json:"category"`
	Kind     string            `json:"kind"` // simple, diagnostic
	Probes   []probeCapability `json:"probes,omitempty"`
}

type probeCapability struct {
	Name        string          `json:"name"`
	Capability  string          `json:"capability"`
	ParamSchema json.RawMessage `json:"paramSchema,omitempty"`
}

func handleListCapabilities(ctx context.Context, s *Server, sess *Session, _ json.RawMessage) ToolResult {
	agents, err := s.visibleAgents(ctx, sess)
	if err != nil {
		return errorResult("failed to list agents: " + err.Error())
	}

	var integrations []string
	var runbooks []runbookCapability
	if s.packs != nil {
		for _, m := range s.packs.List() {
			if m.Kind == "integration" {
				integrations = append(integrations, m.Name)
			}
			if m.Runbook != nil {
				probes := make([]probeCapability, 0, len(m.Runbook.Probes))
				for _, name := range m.Runbook.Probes {
					if def, ok := m.ProbeByName(name); ok {
						probes = append(probes, probeCapability{Name: def.Name, Capability: string(def.Capability), ParamSchema: def.ParamSchema})
					}
				}
				runbooks = append(runbooks, runbookCapability{Category: m.Runbook.Category, Kind: "simple", Probes: probes})
			}
		}
	}
	if s.diagnostic != nil {
		for _, category := range s.diagnostic.Categories() {
			runbooks = append(runbooks, runbookCapability{Category: category, Kind: "diagnostic"})
		}
	}

	return textResult(capabilitiesResult{Agents: agents, Integrations: integrations, Runbooks: runbooks})
}
