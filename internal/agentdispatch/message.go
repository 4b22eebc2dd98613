// Package agentdispatch is the WebSocket agent registry: it accepts agent
// connections at /ws/agent, correlates hub.probe.request messages with the
// agent.probe.response that eventually comes back, and tracks per-agent
// liveness from heartbeats. It owns both halves of the agent<->socket cycle
// (the persistent Agent record and the live connection) so a probe waiter
// only ever holds a send capability, never the socket itself.
package agentdispatch

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EnvelopeType identifies the kind of message carried by an Envelope.
type EnvelopeType string

const (
	TypeAgentRegister      EnvelopeType = "agent.register"
	TypeAgentHeartbeat     EnvelopeType = "agent.heartbeat"
	TypeAgentProbeResponse EnvelopeType = "agent.probe.response"

	TypeHubAck          EnvelopeType = "hub.ack"
	TypeHubProbeRequest EnvelopeType = "hub.probe.request"
	TypeHubError        EnvelopeType = "hub.error"
)

// Envelope is the newline-delimited JSON frame exchanged on /ws/agent in
// both directions.
type Envelope struct {
	ID        uuid.UUID       `json:"id"`
	Type      EnvelopeType    `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	AgentID   *uuid.UUID      `json:"agentId,omitempty"`
	Signature string          `json:"signature,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// RegisterPayload is the body of an agent.register envelope.
type RegisterPayload struct {
	Name            string      `json:"name"`
	OS              string      `json:"os"`
	AgentVersion    string      `json:"agentVersion"`
	Packs           []PackState `json:"packs"`
	EnrollmentToken string      `json:"enrollmentToken,omitempty"`
	Attestation     string      `json:"attestation,omitempty"`
}

// PackState describes one pack the agent reports as loaded.
type PackState struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Status  string `json:"status"`
}

// HeartbeatPayload is the body of an agent.heartbeat envelope.
type HeartbeatPayload struct {
	AgentID   uuid.UUID `json:"agentId"`
	Timestamp time.Time `json:"timestamp"`
}

// AckPayload is the body of a hub.ack envelope sent in reply to registration.
type AckPayload struct {
	AgentID uuid.UUID `json:"agentId"`
}

// ProbeRequestPayload is the body of a hub.probe.request envelope.
type ProbeRequestPayload struct {
	RequestID uuid.UUID       `json:"requestId"`
	Probe     string          `json:"probe"`
	Params    json.RawMessage `json:"params,omitempty"`
}

// ProbeResponsePayload is the body of an agent.probe.response envelope.
type ProbeResponsePayload struct {
	RequestID uuid.UUID       `json:"requestId"`
	Status    string          `json:"status"` // success, error, timeout
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// ErrorPayload is the body of a hub.error envelope.
type ErrorPayload struct {
	Message string `json:"message"`
}
