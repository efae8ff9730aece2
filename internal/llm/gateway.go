// Package llm is the completion gateway: one stateless exchange with the
// LLM chat API per call, built on langchaingo.
package llm

import (
	"context"
	"io"
	"strings"

	"mcpchat/internal/agenterr"
	"mcpchat/internal/chat"

	"github.com/charmbracelet/log"
	"github.com/tmc/langchaingo/llms"
)

type Gateway struct {
	client llms.Model
	model  string
	logger *log.Logger

	// splitToolCalls sends every assistant tool call as its own message.
	splitToolCalls bool
}

var _ chat.Completer = (*Gateway)(nil)

type Option func(*Gateway)

func WithLogger(l *log.Logger) Option {
	return func(g *Gateway) {
		g.logger = l
	}
}

// WithSplitToolCalls makes the request carry one assistant message per tool
// call, for providers that read a single part per message.
func WithSplitToolCalls() Option {
	return func(g *Gateway) {
		g.splitToolCalls = true
	}
}

// New wraps an existing langchaingo model. model is sent with every request.
func New(client llms.Model, model string, opts ...Option) *Gateway {
	g := &Gateway{
		client: client,
		model:  model,
		logger: log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) Model() string { return g.model }

// Complete sends the transcript and, when tools is non-empty, the tool
// schemas. It never retries.
func (g *Gateway) Complete(ctx context.Context, history []chat.Message, tools []chat.ToolDescriptor) (chat.Completion, error) {
	opts := make([]llms.CallOption, 0, 2)
	if g.model != "" {
		opts = append(opts, llms.WithModel(g.model))
	}
	if len(tools) > 0 {
		opts = append(opts, llms.WithTools(toLLMTools(tools)))
	}

	resp, err := g.client.GenerateContent(ctx, convertHistory(history, g.splitToolCalls), opts...)
	if err != nil {
		return chat.Completion{}, agenterr.Gateway("completion request failed", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return chat.Completion{}, agenterr.Gateway("empty response from model", nil)
	}

	// Some providers return each content block as a separate choice.
	var (
		text       strings.Builder
		toolCalls  []chat.ToolCall
		stopReason string
	)
	for _, choice := range resp.Choices {
		if choice == nil {
			continue
		}
		text.WriteString(choice.Content)
		if choice.StopReason != "" {
			stopReason = choice.StopReason
		}
		for _, tc := range choice.ToolCalls {
			if tc.FunctionCall == nil {
				continue
			}
			toolCalls = append(toolCalls, chat.ToolCall{
				ID:        tc.ID,
				Name:      tc.FunctionCall.Name,
				Arguments: tc.FunctionCall.Arguments,
			})
		}
	}
	g.logger.Debug("completion", "stop_reason", stopReason, "tool_calls", len(toolCalls), "chars", text.Len())

	if len(toolCalls) > 0 {
		return chat.Completion{ToolCalls: toolCalls}, nil
	}
	return chat.Completion{Text: text.String()}, nil
}

func toLLMTools(tools []chat.ToolDescriptor) []llms.Tool {
	out := make([]llms.Tool, 0, len(tools))
	for _, t := range tools {
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

// convertHistory maps the transcript onto request messages. A tool call that
// has no tool message right after its assistant message (its tool failed) is
// left out of the request, and an assistant message left with nothing to say
// is skipped.
func convertHistory(history []chat.Message, splitToolCalls bool) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(history))
	for i, m := range history {
		switch m.Role {
		case chat.RoleUser:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, m.Content))
		case chat.RoleAssistant:
			calls := answeredCalls(m.ToolCalls, history[i+1:])
			if m.Content == "" && len(m.ToolCalls) > 0 && len(calls) == 0 {
				continue
			}
			messages = append(messages, assistantMessages(m.Content, calls, splitToolCalls)...)
		case chat.RoleTool:
			messages = append(messages, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{
					llms.ToolCallResponse{
						ToolCallID: m.ToolCallID,
						Name:       m.ToolName,
						Content:    m.Content,
					},
				},
			})
		}
	}
	return messages
}

// answeredCalls keeps the calls answered by the run of tool messages at the
// start of rest.
func answeredCalls(calls []chat.ToolCall, rest []chat.Message) []chat.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	answered := make(map[string]bool, len(calls))
	for _, m := range rest {
		if m.Role != chat.RoleTool {
			break
		}
		answered[m.ToolCallID] = true
	}
	out := make([]chat.ToolCall, 0, len(calls))
	for _, tc := range calls {
		if answered[tc.ID] {
			out = append(out, tc)
		}
	}
	return out
}

func assistantMessages(content string, calls []chat.ToolCall, split bool) []llms.MessageContent {
	var parts []llms.ContentPart
	if content != "" {
		parts = append(parts, llms.TextPart(content))
	}
	for _, tc := range calls {
		args := tc.Arguments
		if strings.TrimSpace(args) == "" {
			args = "{}"
		}
		parts = append(parts, llms.ToolCall{
			ID:   tc.ID,
			Type: "function",
			FunctionCall: &llms.FunctionCall{
				Name:      tc.Name,
				Arguments: args,
			},
		})
	}
	// Providers reject assistant messages without any part.
	if len(parts) == 0 {
		parts = append(parts, llms.TextPart(" "))
	}
	if !split {
		return []llms.MessageContent{{Role: llms.ChatMessageTypeAI, Parts: parts}}
	}
	out := make([]llms.MessageContent, 0, len(parts))
	for _, p := range parts {
		out = append(out, llms.MessageContent{Role: llms.ChatMessageTypeAI, Parts: []llms.ContentPart{p}})
	}
	return out
}
