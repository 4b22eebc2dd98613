package mcp

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/sonde-io/sonde-hub/internal/policy"
	"github.com/sonde-io/sonde-hub/internal/runbook"
)

func init() {
	registerTool("diagnose", ToolDescriptor{
		Name:        "diagnose",
		Description: "Run a named runbook — the diagnostic engine's handler if registered, otherwise the manifest-declared simple probe list.",
		InputSchema: schema(`{
			"type": "object",
			"properties": {
				"agent": {"type": "string", "description": "Required for simple runbooks; ignored by diagnostic runbooks that target an integration."},
				"category": {"type": "string"},
				"params": {"type": "object"}
			},
			"required": ["category"]
		}`),
	}, handleDiagnose)
}

type diagnoseArgs struct {
	Agent    string          `json:"agent,omitempty"`
	Category string          `json:"category"`
	Params   json.RawMessage `json:"params,omitempty"`
}

func handleDiagnose(ctx context.Context, s *Server, sess *Session, raw json.RawMessage) ToolResult {
	var args diagnoseArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorResult("invalid arguments: " + err.Error())
	}
	if args.Category == "" {
		return errorResult("category is required")
	}
	if args.Agent != "" {
		if d := policy.EvaluateAgentAccess(policyAuth(sess), args.Agent); !d.Allowed {
			return errorResult("Access denied: " + d.Reason)
		}
	}

	var connected []string
	if s.dispatcher != nil {
		connected = s.dispatcher.ConnectedAgentNames()
	}

	if s.diagnostic != nil {
		result, err := s.diagnostic.Execute(ctx, args.Category, args.Params, connected)
		if err == nil {
			s.auditFromProbeOutcomes(ctx, sess, args.Agent, result.ProbeResults)
			return textResult(struct {
				Source string `json:"source"`
				runbook.DiagnosticResult
			}{Source: "integration", DiagnosticResult: result})
		}
		var unknown runbook.ErrUnknownCategory
		if !errors.As(err, &unknown) {
			return errorResult("diagnostic runbook failed: " + err.Error())
		}
	}

	if s.simple == nil {
		return errorResult("unknown runbook category " + args.Category)
	}
	result, err := s.simple.Execute(ctx, args.Category, args.Agent)
	if err != nil {
		return errorResult(err.Error())
	}
	s.auditFromProbeOutcomes(ctx, sess, args.Agent, result.Findings)

	return textResult(struct {
		Source string `json:"source"`
		runbook.SimpleResult
	}{Source: "agent", SimpleResult: result})
}
