package chat

import (
	"context"
)

// Completer abstracts the LLM chat API. A nil or empty tools slice means the
// request must not advertise any tools.
type Completer interface {
	Complete(ctx context.Context, history []Message, tools []ToolDescriptor) (Completion, error)
}

// ToolProvider abstracts the connected tool server.
type ToolProvider interface {
	ListTools(ctx context.Context) ([]ToolDescriptor, error)
	CallTool(ctx context.Context, name string, args map[string]any) (ToolResult, error)
}
