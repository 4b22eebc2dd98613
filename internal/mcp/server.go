package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sonde-io/sonde-hub/internal/agentdispatch"
	"github.com/sonde-io/sonde-hub/internal/dbmodel"
	"github.com/sonde-io/sonde-hub/internal/pack"
	"github.com/sonde-io/sonde-hub/internal/policy"
	"github.com/sonde-io/sonde-hub/internal/repository"
	"github.com/sonde-io/sonde-hub/internal/router"
	"github.com/sonde-io/sonde-hub/internal/runbook"
)

// Server is the tool-bound dispatcher a session is created against: every
// MCP method (initialize, tools/list, tools/call) is handled here, closing
// over the hub's probe-routing core. One Server is shared by every session
// — what varies per call is the AuthContext carried on the Session.
type Server struct {
	router       *router.Router
	simple       *runbook.SimpleRunner
	diagnostic   *runbook.DiagnosticEngine
	dispatcher   *agentdispatch.Registry
	packs        *pack.Registry
	agents       repository.AgentRepository
	integrations repository.IntegrationRepository
	criticalPath repository.CriticalPathRepository
	audit        repository.AuditRepository
	apiKeys      repository.APIKeyRepository
	logger       *zap.Logger
}

// Deps bundles every dependency Server needs, mirroring the style of the
// teacher's RouterConfig struct so wiring stays readable as the dependency
// count grows.
type Deps struct {
	Router       *router.Router
	Simple       *runbook.SimpleRunner
	Diagnostic   *runbook.DiagnosticEngine
	Dispatcher   *agentdispatch.Registry
	Packs        *pack.Registry
	Agents       repository.AgentRepository
	Integrations repository.IntegrationRepository
	CriticalPath repository.CriticalPathRepository
	Audit        repository.AuditRepository
	APIKeys      repository.APIKeyRepository
	Logger       *zap.Logger
}

// NewServer creates a Server from deps.
func NewServer(deps Deps) *Server {
	return &Server{
		router:       deps.Router,
		simple:       deps.Simple,
		diagnostic:   deps.Diagnostic,
		dispatcher:   deps.Dispatcher,
		packs:        deps.Packs,
		agents:       deps.Agents,
		integrations: deps.Integrations,
		criticalPath: deps.CriticalPath,
		audit:        deps.Audit,
		apiKeys:      deps.APIKeys,
		logger:       deps.Logger.Named("mcp"),
	}
}

// Dispatch handles one JSON-RPC request against sess and returns the
// response to write back to the client. It never returns a Go error —
// every failure mode is folded into either an RPCResponse.Error (transport
// / protocol faults) or a ToolResult.IsError (tool-level faults).
func (s *Server) Dispatch(ctx context.Context, sess *Session, req RPCRequest) RPCResponse {
	switch req.Method {
	case "initialize":
		return resultResponse(req.ID, InitializeResult{
			ProtocolVersion: protocolVersion,
			ServerInfo:      ServerInfo{Name: "sonde-hub", Version: "1.0.0"},
			Capabilities:    Capabilities{Tools: ToolsCapability{ListChanged: false}},
		})
	case "tools/list":
		return resultResponse(req.ID, ToolsListResult{Tools: toolDescriptors})
	case "tools/call":
		var params ToolCallParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, codeInvalidParams, "invalid tools/call params: "+err.Error())
		}
		result := s.callTool(ctx, sess, params.Name, params.Arguments)
		return resultResponse(req.ID, result)
	default:
		return errorResponse(req.ID, codeMethodNotFound, "unknown method: "+req.Method)
	}
}

func (s *Server) callTool(ctx context.Context, sess *Session, name string, args json.RawMessage) ToolResult {
	handler, ok := toolHandlers[name]
	if !ok {
		return errorResult(fmt.Sprintf("unknown tool %q", name))
	}
	return handler(ctx, s, sess, args)
}

// policyAuth adapts a session's AuthContext into the policy package's Auth
// view. MCP callers (API key or OAuth2 client) never carry dashboard access
// group membership — that's a cookie-session-only concept — so
// GroupAgentNames is always empty here.
func policyAuth(sess *Session) policy.Auth {
	return policy.Auth{Policy: sess.Auth.Policy}
}

// resolveCapability looks up a probe's declared capability level from the
// loaded pack manifests. An unresolved probe defaults to Manage, the most
// restrictive level, so a probe this hub doesn't recognize never slips past
// a maxCapabilityLevel policy ceiling by accident.
func (s *Server) resolveCapability(probe string) (policy.CapabilityLevel, bool) {
	if s.packs == nil {
		return policy.Manage, false
	}
	_, def, ok := s.packs.Resolve(probe)
	if !ok {
		return policy.Manage, false
	}
	return policy.ParseCapabilityLevel(string(def.Capability)), true
}

// auditSource picks the AuditEntry.Source value for a probe invocation: the
// target agent when one was given, otherwise the probe's pack prefix (the
// integration it ran against), otherwise the caller's own identity as a
// last resort.
func auditSource(agent, probe string, sess *Session) string {
	if agent != "" {
		return agent
	}
	if prefix := pack.PackPrefix(probe); prefix != "" && prefix != probe {
		return prefix
	}
	return "mcp-" + sess.Auth.Type + ":" + sess.Auth.KeyID
}

// recordAudit writes one append-only audit row for a single probe
// invocation. Never returns an error to the caller — a failure to audit
// must not fail the probe itself, only gets logged.
func (s *Server) recordAudit(ctx context.Context, sess *Session, source, probe, status string, durationMs int64, reqJSON, respJSON json.RawMessage) {
	if s.audit == nil {
		return
	}
	entry := &dbmodel.AuditEntry{
		Source:       source,
		Probe:        probe,
		Status:       status,
		DurationMs:   durationMs,
		RequestJSON:  jsonOrEmptyObject(reqJSON),
		ResponseJSON: jsonOrEmptyObject(respJSON),
	}
	if sess.Auth.Type == "api_key" {
		if id, err := uuid.Parse(sess.Auth.KeyID); err == nil {
			entry.APIKeyID = &id
		}
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.logger.Warn("mcp: failed to append audit row", zap.String("probe", probe), zap.Error(err))
	}
}

// touchAPIKeyLastUsed updates the calling key's last-used timestamp. Tools
// call it after each batch of probes they run (a probe call, a runbook
// result, a critical-path step), so one tool invocation may touch the key
// more than once. OAuth2 and cookie callers have no such field to update.
func (s *Server) touchAPIKeyLastUsed(ctx context.Context, sess *Session) {
	if s.apiKeys == nil || sess.Auth.Type != "api_key" {
		return
	}
	id, err := uuid.Parse(sess.Auth.KeyID)
	if err != nil {
		return
	}
	if err := s.apiKeys.TouchLastUsed(ctx, id, time.Now().UTC()); err != nil {
		s.logger.Warn("mcp: failed to touch api key last-used", zap.String("key_id", sess.Auth.KeyID), zap.Error(err))
	}
}

func jsonOrEmptyObject(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}

// auditFromProbeOutcomes writes one audit row per entry of a runbook/
// diagnostic result's per-probe outcome map, used by diagnose and
// health_check — tools whose probes run inside runbook.SimpleRunner /
// runbook.DiagnosticEngine and so never pass through s.recordAudit
// individually the way the probe/query_logs/check_critical_path tools do.
func (s *Server) auditFromProbeOutcomes(ctx context.Context, sess *Session, agent string, outcomes map[string]runbook.ProbeOutcome) {
	touched := false
	for probe, outcome := range outcomes {
		s.recordAudit(ctx, sess, auditSource(agent, probe, sess), probe, outcome.Status, outcome.DurationMs, nil, outcome.Data)
		touched = true
	}
	if touched {
		s.touchAPIKeyLastUsed(ctx, sess)
	}
}
