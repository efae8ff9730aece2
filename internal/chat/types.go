package chat

import "strings"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

type Message struct {
	Role    Role
	Content string

	// For Assistant messages: the tool calls they made
	ToolCalls []ToolCall

	// For Tool messages: the ID of the call being answered
	ToolCallID string
	ToolName   string
}

// ToolCall is one invocation requested by the model. Arguments is the raw
// JSON-encoded payload as the model produced it.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolDescriptor describes a tool offered by the provider. Parameters is the
// provider's JSON schema, passed through untouched.
type ToolDescriptor struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolResult holds the text-bearing content items of a tool result, in order.
type ToolResult struct {
	Content []string
}

func (r ToolResult) Text() string {
	return strings.Join(r.Content, "\n")
}

// Completion is the outcome of one model exchange: either final text or the
// tool calls the model wants executed.
type Completion struct {
	Text      string
	ToolCalls []ToolCall
}

func (c Completion) WantsTools() bool { return len(c.ToolCalls) > 0 }
