package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sonde-io/sonde-hub/internal/policy"
	"github.com/sonde-io/sonde-hub/internal/repository"
)

func init() {
	registerTool("probe", ToolDescriptor{
		Name:        "probe",
		Description: "Run a single diagnostic probe against an agent or integration and return its result.",
		InputSchema: schema(`{
			"type": "object",
			"properties": {
				"agent": {"type": "string", "description": "Target agent name or ID. Omit for integration-backed probes."},
				"probe": {"type": "string", "description": "Fully-qualified probe name, e.g. system.disk.usage."},
				"params": {"type": "object", "description": "Probe-specific parameters."}
			},
			"required": ["probe"]
		}`),
	}, handleProbe)

	registerTool("query_logs", ToolDescriptor{
		Name:        "query_logs",
		Description: "Query logs from an agent's log source, or the hub's own audit trail.",
		InputSchema: schema(`{
			"type": "object",
			"properties": {
				"source": {"type": "string", "enum": ["systemd", "docker", "nginx-access", "nginx-error", "audit"]},
				"agent": {"type": "string", "description": "Required for every source except audit."},
				"params": {"type": "object"}
			},
			"required": ["source"]
		}`),
	}, handleQueryLogs)
}

type probeArgs struct {
	Agent  string          `json:"agent,omitempty"`
	Probe  string          `json:"probe"`
	Params json.RawMessage `json:"params,omitempty"`
}

func handleProbe(ctx context.Context, s *Server, sess *Session, raw json.RawMessage) ToolResult {
	var args probeArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorResult("invalid arguments: " + err.Error())
	}
	if args.Probe == "" {
		return errorResult("probe name is required")
	}

	return s.runAuditedProbe(ctx, sess, args.Agent, args.Probe, args.Params)
}

// runAuditedProbe is the shared path for every tool that executes exactly
// one probe directly (probe, query_logs): validate the probe is known,
// evaluate policy, check agent liveness when relevant, execute, audit.
func (s *Server) runAuditedProbe(ctx context.Context, sess *Session, agent, probeName string, params json.RawMessage) ToolResult {
	capability, known := s.resolveCapability(probeName)
	if s.packs != nil && !known {
		return errorResult(fmt.Sprintf("unknown probe %q", probeName))
	}

	agentOrSource := agent
	decision := policy.EvaluateProbeAccess(policyAuth(sess), agentOrSource, probeName, capability)
	if !decision.Allowed {
		return errorResult("Access denied: " + decision.Reason)
	}

	if agent != "" && s.dispatcher != nil && !s.dispatcher.IsOnline(agent) {
		hint := "agent is not connected"
		if a, err := s.agents.GetByName(ctx, agent); err == nil && a.LastSeenAt != nil {
			hint = fmt.Sprintf("agent is not connected; last seen %s", a.LastSeenAt.UTC().Format("2006-01-02T15:04:05Z"))
		}
		return errorResult(hint)
	}

	resp, err := s.router.Execute(ctx, probeName, params, agent)
	if err != nil {
		return errorResult(err.Error())
	}

	s.recordAudit(ctx, sess, auditSource(agent, probeName, sess), probeName, resp.Status, resp.DurationMs, params, resp.Data)
	s.touchAPIKeyLastUsed(ctx, sess)

	return textResult(resp)
}

type queryLogsArgs struct {
	Source string          `json:"source"`
	Agent  string          `json:"agent,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
}

// logProbeBySource maps a query_logs "source" value to the fully-qualified
// probe name that actually reads it, per the fixed set of log probes every
// pack author is expected to ship.
var logProbeBySource = map[string]string{
	"systemd":      "systemd.journal.query",
	"docker":       "docker.logs.tail",
	"nginx-access": "nginx.access.log.tail",
	"nginx-error":  "nginx.error.log.tail",
}

func handleQueryLogs(ctx context.Context, s *Server, sess *Session, raw json.RawMessage) ToolResult {
	var args queryLogsArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorResult("invalid arguments: " + err.Error())
	}

	if args.Source == "audit" {
		return s.queryAuditLog(ctx, sess, args.Agent)
	}

	probeName, ok := logProbeBySource[args.Source]
	if !ok {
		return errorResult(fmt.Sprintf("unknown log source %q", args.Source))
	}
	if args.Agent == "" {
		return errorResult("agent is required for log source " + args.Source)
	}

	return s.runAuditedProbe(ctx, sess, args.Agent, probeName, args.Params)
}

// queryAuditLog serves source='audit' directly from the audit store rather
// than dispatching a probe — there is no agent or integration involved, so
// this never writes its own audit row (querying the log is not itself a
// probe invocation).
func (s *Server) queryAuditLog(ctx context.Context, sess *Session, agentFilter string) ToolResult {
	decision := policy.EvaluateAgentAccess(policyAuth(sess), agentFilter)
	if agentFilter != "" && !decision.Allowed {
		return errorResult("Access denied: " + decision.Reason)
	}

	entries, _, err := s.audit.List(ctx, repository.ListOptions{Limit: 200})
	if err != nil {
		return errorResult("failed to query audit log: " + err.Error())
	}

	if agentFilter != "" {
		filtered := entries[:0]
		for _, e := range entries {
			if e.Source == agentFilter {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	return textResult(entries)
}
