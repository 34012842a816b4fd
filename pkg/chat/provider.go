package chat

import "context"

// ToolDescriptor is the model-facing view of a namespaced tool: a
// name, an optional description, and an opaque JSON Schema input
// shape. Populated from a ClientManager's catalog.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// ModelProvider is the single abstract capability this host depends
// on: produce a reply message, possibly containing tool_use blocks,
// given a bounded history and an optional tool catalog. Treated as a
// black box — ChatSession never inspects a provider's internals.
//
// Passing a nil or empty tools slice tells the provider no tools are
// offered on this call (used to force a text-only reply on the final
// permitted iteration).
type ModelProvider interface {
	CreateMessage(ctx context.Context, history []Message, tools []ToolDescriptor) (Message, error)
}
