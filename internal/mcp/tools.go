package mcp

import (
	"context"
	"encoding/json"
)

// toolHandlerFunc is the signature every tool implementation satisfies.
type toolHandlerFunc func(ctx context.Context, s *Server, sess *Session, args json.RawMessage) ToolResult

// toolHandlers maps a tool name to its implementation. Populated by each
// tool's own file via init() so server.go doesn't need to know about every
// tool's package-level symbols.
var toolHandlers = map[string]toolHandlerFunc{}

func registerTool(name string, descriptor ToolDescriptor, handler toolHandlerFunc) {
	toolHandlers[name] = handler
	toolDescriptors = append(toolDescriptors, descriptor)
}

// toolDescriptors is the tools/list response payload, built incrementally
// by each tool file's init().
var toolDescriptors []ToolDescriptor

func schema(raw string) json.RawMessage {
	return json.RawMessage(raw)
}
