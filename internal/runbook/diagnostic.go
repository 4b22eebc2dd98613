package runbook

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sonde-io/sonde-hub/internal/router"
)

// maxProbePayloadBytes is the per-probe payload cap a diagnostic handler's
// probeResults are measured against. Exceeding it doesn't fail the call —
// it sets Truncated on the result.
const maxProbePayloadBytes = 10 * 1024

// diagnosticBudget is the wall-clock budget a diagnostic handler's context
// is cut off at.
const diagnosticBudget = 45 * time.Second

// Severity is a Finding's urgency level.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Finding is one diagnostic observation a handler surfaces.
type Finding struct {
	Severity      Severity `json:"severity"`
	Title         string   `json:"title"`
	Detail        string   `json:"detail"`
	Remediation   string   `json:"remediation,omitempty"`
	RelatedProbes []string `json:"relatedProbes,omitempty"`
}

// severityRank orders findings most-severe-first for callers that sort the
// response's findings array.
func severityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	default:
		return 2
	}
}

// RunProbe is the closure a diagnostic handler uses to execute a probe
// through the probe router. It mirrors router.Router.Execute's signature;
// handlers pass their own ctx, which is bounded by the 45s budget.
type RunProbe func(ctx context.Context, probe string, params json.RawMessage, agent string) (router.ProbeResponse, error)

// HandlerContext is the read-only environment a diagnostic handler runs in.
type HandlerContext struct {
	ConnectedAgentNames []string
}

// Handler is an author-registered diagnostic runbook implementation.
// Registered out-of-band by pack code, never by manifest.
type Handler func(ctx context.Context, params json.RawMessage, runProbe RunProbe, hctx HandlerContext) (DiagnosticResult, error)

// DiagnosticResult is what a diagnostic handler returns.
type DiagnosticResult struct {
	Findings     []Finding               `json:"findings"`
	ProbeResults map[string]ProbeOutcome `json:"probeResults"`
	Summary      Summary                 `json:"summary"`
	Truncated    bool                    `json:"truncated,omitempty"`
	TimedOut     bool                    `json:"timedOut,omitempty"`
}

// DiagnosticEngine holds every registered diagnostic runbook handler,
// keyed by the category name used to invoke it (e.g. "proxmox-cluster").
type DiagnosticEngine struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	router   *router.Router
	logger   *zap.Logger
}

// NewDiagnosticEngine creates a DiagnosticEngine bound to router for probe
// execution inside handlers.
func NewDiagnosticEngine(r *router.Router, logger *zap.Logger) *DiagnosticEngine {
	return &DiagnosticEngine{
		handlers: make(map[string]Handler),
		router:   r,
		logger:   logger.Named("runbook.diagnostic"),
	}
}

// Register installs a diagnostic handler under category.
func (e *DiagnosticEngine) Register(category string, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[category] = h
}

// Categories returns every registered diagnostic runbook category, used by
// the health_check MCP tool to fan out across every applicable runbook
// without the caller needing to know the catalogue in advance.
func (e *DiagnosticEngine) Categories() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.handlers))
	for category := range e.handlers {
		out = append(out, category)
	}
	return out
}

// ErrUnknownCategory means no handler is registered for a diagnose() call.
type ErrUnknownCategory string

func (e ErrUnknownCategory) Error() string {
	return fmt.Sprintf("runbook: no diagnostic runbook registered for category %q", string(e))
}

// Execute runs the diagnostic handler registered for category, bounding it
// to the 45s wall-clock budget and capping each probe result this engine
// observes at 10KiB — an oversized probe payload sets Truncated rather than
// failing the whole call, and a budget overrun sets TimedOut the same way.
func (e *DiagnosticEngine) Execute(ctx context.Context, category string, params json.RawMessage, connectedAgents []string) (DiagnosticResult, error) {
	e.mu.RLock()
	handler, ok := e.handlers[category]
	e.mu.RUnlock()
	if !ok {
		return DiagnosticResult{}, ErrUnknownCategory(category)
	}

	start := time.Now()
	budgetCtx, cancel := context.WithTimeout(ctx, diagnosticBudget)
	defer cancel()

	truncated := false
	runProbe := func(innerCtx context.Context, probe string, probeParams json.RawMessage, agent string) (router.ProbeResponse, error) {
		resp, err := e.router.Execute(innerCtx, probe, probeParams, agent)
		if err == nil && len(resp.Data) > maxProbePayloadBytes {
			resp.Data = resp.Data[:maxProbePayloadBytes]
			truncated = true
		}
		return resp, err
	}

	hctx := HandlerContext{ConnectedAgentNames: connectedAgents}

	type outcome struct {
		result DiagnosticResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := handler(budgetCtx, params, runProbe, hctx)
		done <- outcome{result: result, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return DiagnosticResult{}, o.err
		}
		result := o.result
		result.Truncated = result.Truncated || truncated
		result.Summary.DurationMs = time.Since(start).Milliseconds()
		sortFindingsBySeverity(result.Findings)
		return result, nil
	case <-budgetCtx.Done():
		return DiagnosticResult{
			TimedOut:  true,
			Truncated: truncated,
			Summary:   Summary{DurationMs: time.Since(start).Milliseconds()},
		}, nil
	}
}

func sortFindingsBySeverity(findings []Finding) {
	for i := 1; i < len(findings); i++ {
		for j := i; j > 0 && severityRank(findings[j].Severity) < severityRank(findings[j-1].Severity); j-- {
			findings[j], findings[j-1] = findings[j-1], findings[j]
		}
	}
}
