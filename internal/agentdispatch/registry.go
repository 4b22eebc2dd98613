package agentdispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sonde-io/sonde-hub/internal/dbmodel"
	"github.com/sonde-io/sonde-hub/internal/repository"
)

// heartbeatTimeout is how long the hub tolerates silence from an agent
// before marking it degraded. Offline is set immediately on socket
// close, not on heartbeat timeout — degraded means "still connected, but
// stopped reporting".
const heartbeatTimeout = 90 * time.Second

const sweepInterval = 15 * time.Second

// ErrAgentOffline is returned by SendProbe when the named agent has no
// authoritative connection.
var ErrAgentOffline = fmt.Errorf("agentdispatch: agent is not connected")

// ErrTransport is returned by SendProbe when the probe request cannot be
// queued because the agent's outbound buffer is full. The caller (probe
// router) surfaces this as status='error'.
var ErrTransport = fmt.Errorf("agentdispatch: transport error")

// ProbeResult is the outcome of SendProbe, mirroring agent.probe.response
// plus the wall-clock duration observed by the dispatcher.
type ProbeResult struct {
	Status     string // success, error, timeout
	Data       json.RawMessage
	Error      string
	DurationMs int64
}

type agentEntry struct {
	id       uuid.UUID
	name     string
	version  string
	conn     *conn
	lastSeen time.Time
	status   string // online, degraded
}

// Registry is the in-memory agent connection table plus the persistent
// Agent record it keeps in sync. Exactly one connection is authoritative
// per agent ID — a second agent.register for the same name displaces the
// first.
type Registry struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]*agentEntry
	byName  map[string]uuid.UUID
	waiters map[uuid.UUID]chan ProbeResponsePayload

	agents repository.AgentRepository
	logger *zap.Logger

	stopSweep chan struct{}
}

// NewRegistry creates a Registry and starts its heartbeat sweep goroutine.
// Call Close to stop the sweep on shutdown.
func NewRegistry(agents repository.AgentRepository, logger *zap.Logger) *Registry {
	r := &Registry{
		byID:      make(map[uuid.UUID]*agentEntry),
		byName:    make(map[string]uuid.UUID),
		waiters:   make(map[uuid.UUID]chan ProbeResponsePayload),
		agents:    agents,
		logger:    logger.Named("agentdispatch"),
		stopSweep: make(chan struct{}),
	}
	go r.sweepLoop()
	return r
}

// Close stops the heartbeat sweep goroutine. It does not close active
// connections — those are torn down by the HTTP server shutdown.
func (r *Registry) Close() {
	close(r.stopSweep)
}

// ServeWS upgrades the request to a WebSocket connection and services it
// until the agent disconnects. Intended to be called directly from the
// /ws/agent HTTP handler.
func (r *Registry) ServeWS(w http.ResponseWriter, req *http.Request) error {
	c, err := newConn(r, w, req, r.logger)
	if err != nil {
		return err
	}
	c.run()
	return nil
}

func (r *Registry) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.sweepOnce()
		case <-r.stopSweep:
			return
		}
	}
}

func (r *Registry) sweepOnce() {
	now := time.Now()
	r.mu.Lock()
	var degraded []uuid.UUID
	for id, e := range r.byID {
		if e.status == "online" && now.Sub(e.lastSeen) > heartbeatTimeout {
			e.status = "degraded"
			degraded = append(degraded, id)
		}
	}
	r.mu.Unlock()

	for _, id := range degraded {
		if err := r.agents.UpdateStatus(context.Background(), id, "degraded", now); err != nil {
			r.logger.Warn("agentdispatch: failed to persist degraded status", zap.String("agent_id", id.String()), zap.Error(err))
		}
	}
}

func (r *Registry) handleEnvelope(c *conn, env Envelope) {
	switch env.Type {
	case TypeAgentRegister:
		r.handleRegister(c, env)
	case TypeAgentHeartbeat:
		r.handleHeartbeat(env)
	case TypeAgentProbeResponse:
		r.handleProbeResponse(env)
	default:
		r.sendError(c, "unknown envelope type: "+string(env.Type))
	}
}

func (r *Registry) handleRegister(c *conn, env Envelope) {
	var payload RegisterPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		r.sendError(c, "malformed agent.register payload")
		return
	}
	if payload.Name == "" {
		r.sendError(c, "agent.register requires a name")
		return
	}

	ctx := context.Background()
	existing, err := r.agents.GetByName(ctx, payload.Name)
	var agent *dbmodel.Agent
	now := time.Now().UTC()

	switch {
	case err == nil:
		agent = existing
		agent.OS = payload.OS
		agent.AgentVersion = payload.AgentVersion
		agent.Status = "online"
		agent.LastSeenAt = &now
		if err := r.agents.Update(ctx, agent); err != nil {
			r.logger.Error("agentdispatch: failed to update agent on re-register", zap.Error(err))
			r.sendError(c, "internal error persisting agent")
			return
		}
	case errors.Is(err, repository.ErrNotFound):
		agent = &dbmodel.Agent{
			Name:         payload.Name,
			OS:           payload.OS,
			AgentVersion: payload.AgentVersion,
			Status:       "online",
			LastSeenAt:   &now,
		}
		if err := r.agents.Create(ctx, agent); err != nil {
			r.logger.Error("agentdispatch: failed to create agent", zap.Error(err))
			r.sendError(c, "internal error persisting agent")
			return
		}
	default:
		r.logger.Error("agentdispatch: failed to look up agent by name", zap.Error(err))
		r.sendError(c, "internal error persisting agent")
		return
	}

	packs := make([]dbmodel.AgentPack, 0, len(payload.Packs))
	for _, p := range payload.Packs {
		packs = append(packs, dbmodel.AgentPack{Name: p.Name, Version: p.Version, Status: p.Status})
	}
	if err := r.agents.ReplacePacks(ctx, agent.ID, packs); err != nil {
		r.logger.Warn("agentdispatch: failed to persist agent packs", zap.Error(err))
	}

	c.agentID = agent.ID.String()

	r.mu.Lock()
	if old, ok := r.byID[agent.ID]; ok && old.conn != c {
		// A second open displaces the first.
		r.logger.Warn("agentdispatch: displacing existing connection", zap.String("agent_id", agent.ID.String()))
		old.conn.closeSend()
	}
	r.byID[agent.ID] = &agentEntry{id: agent.ID, name: agent.Name, version: agent.AgentVersion, conn: c, lastSeen: now, status: "online"}
	r.byName[agent.Name] = agent.ID
	r.mu.Unlock()

	ack := AckPayload{AgentID: agent.ID}
	ackJSON, _ := json.Marshal(ack)
	c.send <- Envelope{ID: uuid.Must(uuid.NewV7()), Type: TypeHubAck, Timestamp: now, Payload: ackJSON}
}

func (r *Registry) handleHeartbeat(env Envelope) {
	var payload HeartbeatPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return
	}
	now := time.Now().UTC()

	r.mu.Lock()
	entry, ok := r.byID[payload.AgentID]
	if ok {
		entry.lastSeen = now
		wasDegraded := entry.status == "degraded"
		entry.status = "online"
		r.mu.Unlock()
		if wasDegraded {
			if err := r.agents.UpdateStatus(context.Background(), payload.AgentID, "online", now); err != nil {
				r.logger.Warn("agentdispatch: failed to clear degraded status", zap.Error(err))
			}
		}
		return
	}
	r.mu.Unlock()
}

func (r *Registry) handleProbeResponse(env Envelope) {
	var payload ProbeResponsePayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return
	}
	r.mu.RLock()
	ch, ok := r.waiters[payload.RequestID]
	r.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case ch <- payload:
	default:
	}
}

// handleDisconnect marks the agent offline and removes its entry. The
// persisted record is retained — agents are never deleted automatically.
func (r *Registry) handleDisconnect(c *conn) {
	if c.agentID == "" {
		return
	}
	id, err := uuid.Parse(c.agentID)
	if err != nil {
		return
	}

	r.mu.Lock()
	entry, ok := r.byID[id]
	if ok && entry.conn == c {
		delete(r.byID, id)
		delete(r.byName, entry.name)
	}
	r.mu.Unlock()

	if !ok || entry.conn != c {
		// Already displaced by a newer connection; the newer one owns status.
		return
	}

	if err := r.agents.UpdateStatus(context.Background(), id, "offline", time.Now().UTC()); err != nil {
		r.logger.Warn("agentdispatch: failed to persist offline status", zap.String("agent_id", id.String()), zap.Error(err))
	}
}

func (r *Registry) resolve(agentIDOrName string) (*agentEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id, err := uuid.Parse(agentIDOrName); err == nil {
		e, ok := r.byID[id]
		return e, ok
	}
	id, ok := r.byName[agentIDOrName]
	if !ok {
		return nil, false
	}
	e, ok := r.byID[id]
	return e, ok
}

// IsOnline reports whether agentIDOrName currently has an authoritative
// connection.
func (r *Registry) IsOnline(agentIDOrName string) bool {
	_, ok := r.resolve(agentIDOrName)
	return ok
}

// AgentVersion returns the reported AgentVersion of a connected agent, used
// by the probe router to annotate a ProbeResponse's metadata.
func (r *Registry) AgentVersion(agentIDOrName string) (string, bool) {
	entry, ok := r.resolve(agentIDOrName)
	if !ok {
		return "", false
	}
	return entry.version, true
}

// ConnectedAgentNames returns the names of every agent with an
// authoritative connection right now, used by diagnostic runbooks to know
// which agents are reachable without querying the database.
func (r *Registry) ConnectedAgentNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	return names
}

// SendProbe dispatches a probe request to the named (or ID-identified)
// agent and blocks until a response arrives, the context is cancelled, or
// the per-request timeout embedded in ctx elapses. A full outbound buffer
// rejects immediately with ErrTransport. A write that later fails in
// writePump is not reported to the waiter: SendProbe then returns only
// once ctx is done.
func (r *Registry) SendProbe(ctx context.Context, agentIDOrName, probe string, params json.RawMessage) (ProbeResult, error) {
	entry, ok := r.resolve(agentIDOrName)
	if !ok {
		return ProbeResult{}, ErrAgentOffline
	}

	requestID := uuid.Must(uuid.NewV7())
	ch := make(chan ProbeResponsePayload, 1)

	r.mu.Lock()
	r.waiters[requestID] = ch
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.waiters, requestID)
		r.mu.Unlock()
	}()

	reqPayload, err := json.Marshal(ProbeRequestPayload{RequestID: requestID, Probe: probe, Params: params})
	if err != nil {
		return ProbeResult{}, fmt.Errorf("agentdispatch: marshal probe request: %w", err)
	}
	env := Envelope{
		ID:        requestID,
		Type:      TypeHubProbeRequest,
		Timestamp: time.Now().UTC(),
		Payload:   reqPayload,
	}

	start := time.Now()
	select {
	case entry.conn.send <- env:
	default:
		return ProbeResult{}, ErrTransport
	}

	select {
	case resp := <-ch:
		return ProbeResult{
			Status:     resp.Status,
			Data:       resp.Data,
			Error:      resp.Error,
			DurationMs: time.Since(start).Milliseconds(),
		}, nil
	case <-ctx.Done():
		return ProbeResult{Status: "timeout", DurationMs: time.Since(start).Milliseconds()}, nil
	}
}

func (r *Registry) sendError(c *conn, message string) {
	payload, _ := json.Marshal(ErrorPayload{Message: message})
	env := Envelope{ID: uuid.Must(uuid.NewV7()), Type: TypeHubError, Timestamp: time.Now().UTC(), Payload: payload}
	select {
	case c.send <- env:
	default:
	}
}
