// Package runbook implements both runbook shapes: the manifest-declared
// simple runbook (a fixed probe list run against one agent) and the
// author-registered diagnostic runbook (a Go handler with a runProbe
// closure and a bounded execution budget).
package runbook

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sonde-io/sonde-hub/internal/pack"
	"github.com/sonde-io/sonde-hub/internal/router"
)

// ProbeOutcome is one entry of a simple runbook's findings map.
type ProbeOutcome struct {
	Status     string          `json:"status"`
	Data       json.RawMessage `json:"data,omitempty"`
	DurationMs int64           `json:"durationMs"`
}

// Summary aggregates how a runbook's probe set fared.
type Summary struct {
	ProbesRun       int   `json:"probesRun"`
	ProbesSucceeded int   `json:"probesSucceeded"`
	ProbesFailed    int   `json:"probesFailed"`
	DurationMs      int64 `json:"durationMs"`
}

// SimpleResult is the result of running a manifest-declared simple runbook.
type SimpleResult struct {
	Findings map[string]ProbeOutcome `json:"findings"`
	Summary  Summary                 `json:"summary"`
}

// ErrRunbookNotFound means no loaded pack manifest declares category as a
// simple runbook.
type ErrRunbookNotFound string

func (e ErrRunbookNotFound) Error() string {
	return fmt.Sprintf("runbook: no simple runbook declared for category %q", string(e))
}

// SimpleRunner executes manifest-declared {category, probes[], parallel}
// runbooks by fanning the listed probes out through the probe router.
type SimpleRunner struct {
	packs  *pack.Registry
	router *router.Router
	logger *zap.Logger
}

// NewSimpleRunner creates a SimpleRunner.
func NewSimpleRunner(packs *pack.Registry, r *router.Router, logger *zap.Logger) *SimpleRunner {
	return &SimpleRunner{packs: packs, router: r, logger: logger.Named("runbook.simple")}
}

// findRunbook locates the pack manifest that declares category as a simple
// runbook and returns its probe list and parallelism flag.
func (s *SimpleRunner) findRunbook(category string) (*pack.SimpleRunbook, bool) {
	for _, m := range s.packs.List() {
		if m.Runbook != nil && m.Runbook.Category == category {
			return m.Runbook, true
		}
	}
	return nil, false
}

// Execute runs every probe declared for category against agent, in
// parallel unless the manifest sets parallel: false, and returns the
// aggregated findings and summary.
func (s *SimpleRunner) Execute(ctx context.Context, category, agent string) (SimpleResult, error) {
	start := time.Now()
	rb, ok := s.findRunbook(category)
	if !ok {
		return SimpleResult{}, ErrRunbookNotFound(category)
	}

	findings := make(map[string]ProbeOutcome, len(rb.Probes))
	var mu sync.Mutex

	runOne := func(ctx context.Context, probe string) {
		resp, err := s.router.Execute(ctx, probe, nil, agent)
		outcome := ProbeOutcome{Status: "error"}
		if err == nil {
			outcome = ProbeOutcome{Status: resp.Status, Data: resp.Data, DurationMs: resp.DurationMs}
		} else {
			s.logger.Warn("runbook: probe routing failed", zap.String("probe", probe), zap.Error(err))
		}
		mu.Lock()
		findings[probe] = outcome
		mu.Unlock()
	}

	if rb.RunsInParallel() {
		g, gCtx := errgroup.WithContext(ctx)
		for _, probe := range rb.Probes {
			probe := probe
			g.Go(func() error {
				runOne(gCtx, probe)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for _, probe := range rb.Probes {
			runOne(ctx, probe)
		}
	}

	summary := Summary{DurationMs: time.Since(start).Milliseconds()}
	for _, outcome := range findings {
		summary.ProbesRun++
		if outcome.Status == "success" {
			summary.ProbesSucceeded++
		} else {
			summary.ProbesFailed++
		}
	}

	return SimpleResult{Findings: findings, Summary: summary}, nil
}
