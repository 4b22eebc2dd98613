// Package websocket implements the dashboard's real-time pub/sub push
// feed. It uses gorilla/websocket under the hood and exposes a topic-based
// broadcast API the dashboard API handlers publish onto directly — distinct
// from internal/agentdispatch's request/response-correlated agent control
// socket, which speaks a different, JSON-envelope protocol to fleet agents
// rather than browser-facing topic updates.
//
// Topic naming convention:
//
//	agent:<uuid>  — status transitions for a specific agent
//	audit         — every newly appended audit log entry
package websocket

// MessageType identifies the kind of event carried by a Message. The
// dashboard uses this field to route the payload to the correct UI update.
type MessageType string

const (
	// MsgAgentStatus is sent when an agent's status changes (online,
	// offline, degraded), published on the "agent:<uuid>" topic.
	MsgAgentStatus MessageType = "agent.status"

	// MsgAuditAppended is sent whenever a new audit entry is recorded,
	// published on the "audit" topic.
	MsgAuditAppended MessageType = "audit.appended"

	// MsgPing names a keep-alive message type. Nothing in the hub publishes
	// it; liveness is checked with WebSocket ping control frames sent by
	// each client's writePump.
	MsgPing MessageType = "ping"
)

// Message is the envelope for every WebSocket frame sent to clients.
//
// JSON example:
//
//	{"type":"agent.status","topic":"agent:018f...","payload":{"status":"online"}}
type Message struct {
	// Type identifies the kind of event so the client can route it correctly.
	Type MessageType `json:"type"`

	// Topic is the pub/sub channel this message was published on. Clients
	// use it to associate the update with the correct UI element.
	Topic string `json:"topic"`

	// Payload carries the event-specific data. The shape varies by Type:
	//   - agent.status:    {"status":"online"}
	//   - audit.appended:  {"probe":"...","status":"success"}
	//   - ping:            {} (empty)
	Payload any `json:"payload"`
}