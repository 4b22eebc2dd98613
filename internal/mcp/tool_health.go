package mcp

import (
	"context"
	"encoding/json"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sonde-io/sonde-hub/internal/policy"
	"github.com/sonde-io/sonde-hub/internal/runbook"
)

func init() {
	registerTool("health_check", ToolDescriptor{
		Name:        "health_check",
		Description: "Fan out across every applicable simple and diagnostic runbook and return aggregated findings, most severe first.",
		InputSchema: schema(`{
			"type": "object",
			"properties": {
				"agent": {"type": "string"},
				"categories": {"type": "array", "items": {"type": "string"}, "description": "Limit the fan-out to these categories; omit to run every registered runbook."}
			}
		}`),
	}, handleHealthCheck)
}

type healthCheckArgs struct {
	Agent      string   `json:"agent,omitempty"`
	Categories []string `json:"categories,omitempty"`
}

type healthCheckResult struct {
	Findings []runbook.Finding `json:"findings"`
	Ran      []string          `json:"ran"`
	Failed   []string          `json:"failed,omitempty"`
}

func handleHealthCheck(ctx context.Context, s *Server, sess *Session, raw json.RawMessage) ToolResult {
	var args healthCheckArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return errorResult("invalid arguments: " + err.Error())
		}
	}
	if args.Agent != "" {
		if d := policy.EvaluateAgentAccess(policyAuth(sess), args.Agent); !d.Allowed {
			return errorResult("Access denied: " + d.Reason)
		}
	}

	categories := args.Categories
	if len(categories) == 0 {
		categories = s.allRunbookCategories()
	}

	var connected []string
	if s.dispatcher != nil {
		connected = s.dispatcher.ConnectedAgentNames()
	}

	var mu sync.Mutex
	var findings []runbook.Finding
	var ran, failed []string

	g, gCtx := errgroup.WithContext(ctx)
	for _, category := range categories {
		category := category
		g.Go(func() error {
			outcomeFindings, ok := s.runOneHealthCheckCategory(gCtx, sess, args.Agent, category, connected)
			mu.Lock()
			defer mu.Unlock()
			if ok {
				ran = append(ran, category)
				findings = append(findings, outcomeFindings...)
			} else {
				failed = append(failed, category)
			}
			return nil
		})
	}
	_ = g.Wait()

	sortFindingsBySeverity(findings)
	return textResult(healthCheckResult{Findings: findings, Ran: ran, Failed: failed})
}

// runOneHealthCheckCategory runs one runbook category (diagnostic preferred,
// simple fallback, mirroring diagnose's own precedence) and reports whether
// it produced a usable result.
func (s *Server) runOneHealthCheckCategory(ctx context.Context, sess *Session, agent, category string, connected []string) ([]runbook.Finding, bool) {
	if s.diagnostic != nil {
		result, err := s.diagnostic.Execute(ctx, category, nil, connected)
		if err == nil {
			s.auditFromProbeOutcomes(ctx, sess, agent, result.ProbeResults)
			return result.Findings, true
		}
	}
	if s.simple != nil {
		result, err := s.simple.Execute(ctx, category, agent)
		if err == nil {
			s.auditFromProbeOutcomes(ctx, sess, agent, result.Findings)
			return simpleResultToFindings(category, result), true
		}
	}
	return nil, false
}

// simpleResultToFindings synthesizes Finding entries from a simple
// runbook's per-probe outcomes, since manifest-declared runbooks have no
// Finding concept of their own — only a pack author's Go-registered
// diagnostic handler does.
func simpleResultToFindings(category string, result runbook.SimpleResult) []runbook.Finding {
	findings := make([]runbook.Finding, 0, len(result.Findings))
	for probe, outcome := range result.Findings {
		switch outcome.Status {
		case "success":
			continue
		case "timeout":
			findings = append(findings, runbook.Finding{
				Severity:      runbook.SeverityWarning,
				Title:         category + ": " + probe + " timed out",
				Detail:        "probe exceeded its declared timeout",
				RelatedProbes: []string{probe},
			})
		default:
			findings = append(findings, runbook.Finding{
				Severity:      runbook.SeverityCritical,
				Title:         category + ": " + probe + " failed",
				Detail:        "probe returned an error status",
				RelatedProbes: []string{probe},
			})
		}
	}
	return findings
}

func (s *Server) allRunbookCategories() []string {
	set := make(map[string]struct{})
	if s.packs != nil {
		for _, m := range s.packs.List() {
			if m.Runbook != nil {
				set[m.Runbook.Category] = struct{}{}
			}
		}
	}
	if s.diagnostic != nil {
		for _, c := range s.diagnostic.Categories() {
			set[c] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

func sortFindingsBySeverity(findings []runbook.Finding) {
	rank := func(sev runbook.Severity) int {
		switch sev {
		case runbook.SeverityCritical:
			return 0
		case runbook.SeverityWarning:
			return 1
		default:
			return 2
		}
	}
	for i := 1; i < len(findings); i++ {
		for j := i; j > 0 && rank(findings[j].Severity) < rank(findings[j-1].Severity); j-- {
			findings[j], findings[j-1] = findings[j-1], findings[j]
		}
	}
}
