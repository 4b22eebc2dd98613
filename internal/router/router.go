// Package router implements the probe router: given a fully-qualified probe
// name, it decides whether the probe belongs to a registered integration or
// must run on a connected agent, dispatches accordingly, and normalizes the
// result into one response shape regardless of which transport served it.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sonde-io/sonde-hub/internal/agentdispatch"
	"github.com/sonde-io/sonde-hub/internal/integration"
	"github.com/sonde-io/sonde-hub/internal/pack"
	"github.com/sonde-io/sonde-hub/internal/repository"
)

// ErrAgentRequired is returned when a probe resolves to an agent-executed
// pack but no agent was specified.
var ErrAgentRequired = errors.New("router: probe requires an agent")

// ErrNoIntegrationConfigured is returned when a probe resolves to an
// integration pack but no integration row of that type exists yet.
var ErrNoIntegrationConfigured = errors.New("router: no integration configured for this probe's pack")

// ProbeMetadata carries the context a caller needs to interpret a
// ProbeResponse beyond the raw result: which agent served it (if any), and
// what the manifest declared about the probe that ran.
type ProbeMetadata struct {
	AgentVersion    string `json:"agentVersion,omitempty"`
	PackName        string `json:"packName"`
	PackVersion     string `json:"packVersion"`
	CapabilityLevel string `json:"capabilityLevel"`
}

// ProbeResponse is the router's uniform output regardless of transport.
type ProbeResponse struct {
	Probe      string          `json:"probe"`
	Status     string          `json:"status"` // success, error, timeout
	Data       json.RawMessage `json:"data"`
	DurationMs int64           `json:"durationMs"`
	Metadata   ProbeMetadata   `json:"metadata"`
}

// Router dispatches a probe execution to whichever backend owns its pack.
type Router struct {
	packs        *pack.Registry
	dispatcher   *agentdispatch.Registry
	executor     *integration.Executor
	integrations repository.IntegrationRepository
	agents       repository.AgentRepository
	logger       *zap.Logger
}

// New creates a Router. Any of dispatcher/executor may be nil if that
// transport is not wired yet; probes that would need it fail with a clear
// error instead of a nil pointer panic.
func New(packs *pack.Registry, dispatcher *agentdispatch.Registry, executor *integration.Executor, integrations repository.IntegrationRepository, agents repository.AgentRepository, logger *zap.Logger) *Router {
	return &Router{
		packs:        packs,
		dispatcher:   dispatcher,
		executor:     executor,
		integrations: integrations,
		agents:       agents,
		logger:       logger.Named("router"),
	}
}

// Execute runs probe with params. agent is the agent name or ID to target;
// it is required for agent-executed probes and ignored for integration
// probes. Errors from the underlying transport are folded into the
// response's status field rather than returned as a Go error — the only
// errors this function returns are routing failures that happen before any
// probe attempt (missing agent argument, no integration configured for the
// pack, no dispatcher or executor wired). A probe whose pack is not loaded
// is routed to the agent path, not rejected.
func (r *Router) Execute(ctx context.Context, probe string, params json.RawMessage, agent string) (ProbeResponse, error) {
	prefix := pack.PackPrefix(probe)

	var manifest *pack.Manifest
	var def pack.ProbeDef
	var known bool
	if r.packs != nil {
		manifest, def, known = r.packs.Resolve(probe)
	}
	meta := ProbeMetadata{PackName: prefix}
	if known {
		meta.PackName = manifest.Name
		meta.PackVersion = manifest.Version
		meta.CapabilityLevel = string(def.Capability)
	}

	kind := ""
	if known {
		kind = manifest.Kind
	} else if r.integrations != nil {
		// Fall back to a live integration lookup for packs registered
		// without a manifest loaded (e.g. during tests or early bring-up).
		if _, err := r.integrations.GetByType(ctx, prefix); err == nil {
			kind = "integration"
		}
	}

	switch kind {
	case "integration":
		return r.executeIntegration(ctx, prefix, probe, params, meta)
	case "agent":
		return r.executeAgent(ctx, probe, params, agent, meta, def)
	default:
		// Unknown pack kind: try integration first (has a concrete
		// registry to check), then require an agent.
		if r.integrations != nil {
			if _, err := r.integrations.GetByType(ctx, prefix); err == nil {
				return r.executeIntegration(ctx, prefix, probe, params, meta)
			}
		}
		if agent == "" {
			return ProbeResponse{}, ErrAgentRequired
		}
		return r.executeAgent(ctx, probe, params, agent, meta, def)
	}
}

func (r *Router) executeIntegration(ctx context.Context, packType, probe string, params json.RawMessage, meta ProbeMetadata) (ProbeResponse, error) {
	if r.executor == nil || r.integrations == nil {
		return ProbeResponse{}, fmt.Errorf("router: integration executor not configured")
	}
	integ, err := r.integrations.GetByType(ctx, packType)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ProbeResponse{}, ErrNoIntegrationConfigured
		}
		return ProbeResponse{}, fmt.Errorf("router: look up integration: %w", err)
	}

	result := r.executor.Execute(ctx, integ, probe, params)
	return ProbeResponse{
		Probe:      probe,
		Status:     result.Status,
		Data:       result.Data,
		DurationMs: result.DurationMs,
		Metadata:   meta,
	}, nil
}

func (r *Router) executeAgent(ctx context.Context, probe string, params json.RawMessage, agent string, meta ProbeMetadata, def pack.ProbeDef) (ProbeResponse, error) {
	if agent == "" {
		return ProbeResponse{}, ErrAgentRequired
	}
	if r.dispatcher == nil {
		return ProbeResponse{}, fmt.Errorf("router: agent dispatcher not configured")
	}

	callCtx := ctx
	if def.TimeoutMs > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, time.Duration(def.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	if version, ok := r.dispatcher.AgentVersion(agent); ok {
		meta.AgentVersion = version
	}

	start := time.Now()
	result, err := r.dispatcher.SendProbe(callCtx, agent, probe, params)
	if err != nil {
		// ErrAgentOffline, ErrTransport, or a marshal failure: none of these
		// produced a probe attempt, so there's nothing to retry here — the
		// caller (policy/MCP layer) decides whether to surface or retry.
		return ProbeResponse{
			Probe:      probe,
			Status:     "error",
			DurationMs: time.Since(start).Milliseconds(),
			Metadata:   meta,
		}, nil
	}

	status := result.Status
	if status == "" {
		status = "success"
	}
	return ProbeResponse{
		Probe:      probe,
		Status:     status,
		Data:       result.Data,
		DurationMs: result.DurationMs,
		Metadata:   meta,
	}, nil
}
