package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"mcpchat/internal/agenterr"

	"github.com/charmbracelet/log"
)

// Service turns one user input into one answer, running at most one round
// of tool calls against the ToolProvider.
type Service struct {
	completer Completer
	tools     ToolProvider
	conv      *Conversation
	logger    *log.Logger
	onTool    func(ToolCall)
}

type ServiceOption func(*Service)

func WithLogger(l *log.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = l
	}
}

// WithToolObserver registers fn to be called before each tool call runs.
func WithToolObserver(fn func(ToolCall)) ServiceOption {
	return func(s *Service) {
		s.onTool = fn
	}
}

func NewService(completer Completer, tools ToolProvider, opts ...ServiceOption) *Service {
	s := &Service{
		completer: completer,
		tools:     tools,
		conv:      NewConversation(),
		logger:    log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send runs one turn. On failure the transcript keeps every message appended
// before the failure and nothing is fabricated in its place.
func (s *Service) Send(ctx context.Context, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("empty input")
	}

	s.conv.AppendUser(input)

	tools, err := s.tools.ListTools(ctx)
	if err != nil {
		return "", err
	}
	s.logger.Debug("querying model", "messages", s.conv.Len(), "tools", len(tools))

	first, err := s.completer.Complete(ctx, s.conv.Snapshot(), tools)
	if err != nil {
		return "", err
	}
	if !first.WantsTools() {
		s.conv.AppendAssistant(first.Text, nil)
		return first.Text, nil
	}

	calls, renamed := uniqueCallIDs(first.ToolCalls)
	if renamed > 0 {
		s.logger.Warn("model returned empty or repeated tool call ids", "renamed", renamed)
	}
	s.conv.AppendAssistant("", calls)
	for _, call := range calls {
		if s.onTool != nil {
			s.onTool(call)
		}
		s.logger.Info("calling tool", "tool", call.Name, "call_id", call.ID)
		res, err := s.tools.CallTool(ctx, call.Name, parseToolArgs(call.Arguments))
		if err != nil {
			return "", toolError(call, err)
		}
		if err := s.conv.AppendTool(res.Text(), call.ID, call.Name); err != nil {
			return "", agenterr.New(agenterr.KindTurn, "record tool result", err)
		}
	}

	final, err := s.completer.Complete(ctx, s.conv.Snapshot(), nil)
	if err != nil {
		return "", err
	}
	if final.WantsTools() {
		s.logger.Warn("dropping tool calls requested after the tool round", "count", len(final.ToolCalls))
	}
	s.conv.AppendAssistant(final.Text, nil)
	return final.Text, nil
}

// Transcript returns a copy of every message exchanged so far.
func (s *Service) Transcript() []Message {
	return s.conv.Snapshot()
}

// uniqueCallIDs gives every call of a round a distinct, non-empty id, so
// each result can be matched to its call. It reports how many ids it replaced.
func uniqueCallIDs(calls []ToolCall) ([]ToolCall, int) {
	taken := make(map[string]bool, len(calls))
	for _, c := range calls {
		if c.ID != "" {
			taken[c.ID] = true
		}
	}
	out := make([]ToolCall, len(calls))
	used := make(map[string]bool, len(calls))
	renamed, next := 0, 1
	for i, c := range calls {
		if c.ID == "" || used[c.ID] {
			for taken[fmt.Sprintf("call_%d", next)] {
				next++
			}
			c.ID = fmt.Sprintf("call_%d", next)
			taken[c.ID] = true
			renamed++
		}
		used[c.ID] = true
		out[i] = c
	}
	return out, renamed
}

func toolError(call ToolCall, err error) error {
	var e *agenterr.Error
	if errors.As(err, &e) && e.Kind == agenterr.KindToolInvocation {
		tagged := *e
		tagged.CallID = call.ID
		if tagged.Tool == "" {
			tagged.Tool = call.Name
		}
		return &tagged
	}
	return agenterr.ToolInvocation(call.Name, call.ID, err)
}

// parseToolArgs decodes the model's JSON argument string. Invalid JSON is
// forwarded as {"raw": ...} so the provider gets to reject it.
func parseToolArgs(raw string) map[string]any {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]any{"raw": raw}
	}
	return args
}
