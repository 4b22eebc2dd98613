package mcp

import (
	"context"
	"encoding/json"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sonde-io/sonde-hub/internal/dbmodel"
	"github.com/sonde-io/sonde-hub/internal/repository"
)

func init() {
	registerTool("check_critical_path", ToolDescriptor{
		Name:        "check_critical_path",
		Description: "Run a named critical path's steps in order, each step's probes in parallel, and report pass/fail/partial per step and overall.",
		InputSchema: schema(`{
			"type": "object",
			"properties": {"path": {"type": "string"}},
			"required": ["path"]
		}`),
	}, handleCheckCriticalPath)
}

type checkCriticalPathArgs struct {
	Path string `json:"path"`
}

type stepResult struct {
	Label  string                      `json:"label"`
	Status string                      `json:"status"` // pass, fail, partial
	Probes map[string]probeStepOutcome `json:"probes"`
}

type probeStepOutcome struct {
	Status     string          `json:"status"`
	Data       json.RawMessage `json:"data,omitempty"`
	DurationMs int64           `json:"durationMs"`
}

type criticalPathResult struct {
	Path   string       `json:"path"`
	Status string       `json:"status"` // pass, fail, partial
	Steps  []stepResult `json:"steps"`
}

func handleCheckCriticalPath(ctx context.Context, s *Server, sess *Session, raw json.RawMessage) ToolResult {
	var args checkCriticalPathArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorResult("invalid arguments: " + err.Error())
	}
	if args.Path == "" {
		return errorResult("path is required")
	}

	cp, steps, err := s.criticalPath.GetByName(ctx, args.Path)
	if err != nil {
		if repository.IsNotFound(err) {
			return errorResult("critical path " + args.Path + " not found")
		}
		return errorResult("failed to look up critical path: " + err.Error())
	}

	stepResults := make([]stepResult, len(steps))
	for i, step := range steps {
		stepResults[i] = s.runCriticalPathStep(ctx, sess, step)
	}

	return textResult(criticalPathResult{
		Path:   cp.Name,
		Status: aggregateStatus(stepStatuses(stepResults)),
		Steps:  stepResults,
	})
}

func (s *Server) runCriticalPathStep(ctx context.Context, sess *Session, step dbmodel.CriticalPathStep) stepResult {
	var probeNames []string
	_ = json.Unmarshal([]byte(step.Probes), &probeNames)

	agent := ""
	if step.TargetType == "agent" {
		agent = step.TargetID
	}

	outcomes := make(map[string]probeStepOutcome, len(probeNames))
	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	for _, probe := range probeNames {
		probe := probe
		g.Go(func() error {
			resp, err := s.router.Execute(gCtx, probe, nil, agent)
			outcome := probeStepOutcome{Status: "error"}
			if err == nil {
				outcome = probeStepOutcome{Status: resp.Status, Data: resp.Data, DurationMs: resp.DurationMs}
				s.recordAudit(gCtx, sess, auditSource(agent, probe, sess), probe, resp.Status, resp.DurationMs, nil, resp.Data)
			}
			mu.Lock()
			outcomes[probe] = outcome
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	s.touchAPIKeyLastUsed(ctx, sess)

	statuses := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		statuses = append(statuses, o.Status)
	}

	return stepResult{Label: step.Label, Status: aggregateStatus(statuses), Probes: outcomes}
}

func stepStatuses(steps []stepResult) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.Status
	}
	return out
}

// aggregateStatus implements the "pass if all pass, fail if all fail,
// partial otherwise" rule shared by a critical path's steps and its
// overall result.
func aggregateStatus(statuses []string) string {
	if len(statuses) == 0 {
		return "pass"
	}
	allPass, allFail := true, true
	for _, status := range statuses {
		if status == "success" || status == "pass" {
			allFail = false
		} else {
			allPass = false
		}
	}
	switch {
	case allPass:
		return "pass"
	case allFail:
		return "fail"
	default:
		return "partial"
	}
}
