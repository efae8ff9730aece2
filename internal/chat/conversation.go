package chat

import (
	"errors"
	"fmt"
)

// ErrOrphanToolResult is returned when a tool result does not answer a call
// of the immediately preceding assistant message.
var ErrOrphanToolResult = errors.New("tool result does not answer a pending tool call")

// Conversation is the append-only transcript of one session. Entries are
// never reordered, mutated or removed.
type Conversation struct {
	messages []Message
}

func NewConversation() *Conversation {
	return &Conversation{messages: make([]Message, 0, 16)}
}

func (c *Conversation) AppendUser(text string) {
	c.messages = append(c.messages, Message{Role: RoleUser, Content: text})
}

// AppendAssistant records a model reply. content is empty when the reply
// only carries tool calls.
func (c *Conversation) AppendAssistant(content string, toolCalls []ToolCall) {
	c.messages = append(c.messages, Message{
		Role:      RoleAssistant,
		Content:   content,
		ToolCalls: cloneCalls(toolCalls),
	})
}

// AppendTool records the result of toolCallID. The call must belong to the
// last assistant message, with only tool messages after it.
func (c *Conversation) AppendTool(content, toolCallID, toolName string) error {
	if !c.pending(toolCallID) {
		return fmt.Errorf("%w: %q", ErrOrphanToolResult, toolCallID)
	}
	c.messages = append(c.messages, Message{
		Role:       RoleTool,
		Content:    content,
		ToolCallID: toolCallID,
		ToolName:   toolName,
	})
	return nil
}

func (c *Conversation) pending(id string) bool {
	for i := len(c.messages) - 1; i >= 0; i-- {
		m := c.messages[i]
		switch m.Role {
		case RoleTool:
			if m.ToolCallID == id {
				return false
			}
			continue
		case RoleAssistant:
			for _, tc := range m.ToolCalls {
				if tc.ID == id {
					return true
				}
			}
		}
		return false
	}
	return false
}

// Snapshot returns a deep copy of the transcript.
func (c *Conversation) Snapshot() []Message {
	out := make([]Message, len(c.messages))
	for i, m := range c.messages {
		m.ToolCalls = cloneCalls(m.ToolCalls)
		out[i] = m
	}
	return out
}

func (c *Conversation) Len() int { return len(c.messages) }

func cloneCalls(in []ToolCall) []ToolCall {
	if len(in) == 0 {
		return nil
	}
	out := make([]ToolCall, len(in))
	copy(out, in)
	return out
}
