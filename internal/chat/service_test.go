package chat

import (
	"context"
	"errors"
	"testing"

	"mcpchat/internal/agenterr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type completeCall struct {
	history []Message
	tools   []ToolDescriptor
}

type scriptedCompleter struct {
	replies []Completion
	errs    []error
	calls   []completeCall
}

func (c *scriptedCompleter) Complete(_ context.Context, history []Message, tools []ToolDescriptor) (Completion, error) {
	i := len(c.calls)
	c.calls = append(c.calls, completeCall{history: history, tools: tools})
	if i < len(c.errs) && c.errs[i] != nil {
		return Completion{}, c.errs[i]
	}
	if i >= len(c.replies) {
		return Completion{}, errors.New("unexpected completion")
	}
	return c.replies[i], nil
}

type toolInvocation struct {
	name string
	args map[string]any
}

type fakeTools struct {
	descriptors []ToolDescriptor
	results     map[string]ToolResult
	fail        map[string]error
	listErr     error
	invocations []toolInvocation
	lists       int
}

func (f *fakeTools) ListTools(context.Context) ([]ToolDescriptor, error) {
	f.lists++
	return f.descriptors, f.listErr
}

func (f *fakeTools) CallTool(_ context.Context, name string, args map[string]any) (ToolResult, error) {
	f.invocations = append(f.invocations, toolInvocation{name: name, args: args})
	if err := f.fail[name]; err != nil {
		return ToolResult{}, err
	}
	return f.results[name], nil
}

var listDir = ToolDescriptor{
	Name:        "list_dir",
	Description: "List a directory",
	Parameters:  map[string]any{"type": "object"},
}

func TestSendPlainAnswer(t *testing.T) {
	llm := &scriptedCompleter{replies: []Completion{{Text: "4"}}}
	tools := &fakeTools{descriptors: []ToolDescriptor{listDir}}
	s := NewService(llm, tools)

	answer, err := s.Send(context.Background(), "What is 2+2?")
	require.NoError(t, err)
	assert.Equal(t, "4", answer)

	tr := s.Transcript()
	require.Len(t, tr, 2)
	assert.Equal(t, Message{Role: RoleUser, Content: "What is 2+2?"}, tr[0])
	assert.Equal(t, Message{Role: RoleAssistant, Content: "4"}, tr[1])

	require.Len(t, llm.calls, 1)
	assert.Equal(t, []ToolDescriptor{listDir}, llm.calls[0].tools)
	assert.Empty(t, tools.invocations)
}

func TestSendSingleToolCall(t *testing.T) {
	llm := &scriptedCompleter{replies: []Completion{
		{ToolCalls: []ToolCall{{ID: "c1", Name: "list_dir", Arguments: `{"path":"/tmp"}`}}},
		{Text: "The files are a.txt and b.txt."},
	}}
	tools := &fakeTools{
		descriptors: []ToolDescriptor{listDir},
		results:     map[string]ToolResult{"list_dir": {Content: []string{"a.txt, b.txt"}}},
	}
	s := NewService(llm, tools)

	answer, err := s.Send(context.Background(), "List files in /tmp")
	require.NoError(t, err)
	assert.Equal(t, "The files are a.txt and b.txt.", answer)

	tr := s.Transcript()
	require.Len(t, tr, 4)
	assert.Equal(t, RoleUser, tr[0].Role)
	assert.Equal(t, RoleAssistant, tr[1].Role)
	assert.Empty(t, tr[1].Content)
	assert.Equal(t, []ToolCall{{ID: "c1", Name: "list_dir", Arguments: `{"path":"/tmp"}`}}, tr[1].ToolCalls)
	assert.Equal(t, Message{Role: RoleTool, Content: "a.txt, b.txt", ToolCallID: "c1", ToolName: "list_dir"}, tr[2])
	assert.Equal(t, Message{Role: RoleAssistant, Content: "The files are a.txt and b.txt."}, tr[3])

	require.Len(t, tools.invocations, 1)
	assert.Equal(t, map[string]any{"path": "/tmp"}, tools.invocations[0].args)

	require.Len(t, llm.calls, 2)
	assert.Len(t, llm.calls[0].tools, 1)
	assert.Nil(t, llm.calls[1].tools, "finalizing call must not advertise tools")
	assert.Len(t, llm.calls[1].history, 3)
}

func TestSendManyToolCallsRunInOrder(t *testing.T) {
	calls := []ToolCall{
		{ID: "c1", Name: "alpha", Arguments: `{}`},
		{ID: "c2", Name: "beta", Arguments: `{"n":2}`},
		{ID: "c3", Name: "gamma", Arguments: ``},
	}
	llm := &scriptedCompleter{replies: []Completion{{ToolCalls: calls}, {Text: "done"}}}
	tools := &fakeTools{results: map[string]ToolResult{
		"alpha": {Content: []string{"A"}},
		"beta":  {Content: []string{"B1", "B2"}},
		"gamma": {Content: []string{"C"}},
	}}
	s := NewService(llm, tools)

	before := len(s.Transcript())
	answer, err := s.Send(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, "done", answer)

	tr := s.Transcript()
	require.Len(t, tr, before+1+1+len(calls)+1)

	for i, call := range calls {
		msg := tr[2+i]
		assert.Equal(t, RoleTool, msg.Role)
		assert.Equal(t, call.ID, msg.ToolCallID)
		assert.Equal(t, call.Name, tools.invocations[i].name)
	}
	assert.Equal(t, "B1\nB2", tr[3].Content)
	assert.Equal(t, map[string]any{}, tools.invocations[2].args)
	assertToolResultsAnswerPrecedingAssistant(t, tr)
}

func TestSendToolFailureKeepsTranscriptConsistent(t *testing.T) {
	providerErr := errors.New("provider said no")
	llm := &scriptedCompleter{replies: []Completion{
		{ToolCalls: []ToolCall{{ID: "c1", Name: "list_dir", Arguments: `{"path":"/tmp"}`}}},
	}}
	tools := &fakeTools{fail: map[string]error{
		"list_dir": agenterr.ToolInvocation("list_dir", "", providerErr),
	}}
	s := NewService(llm, tools)

	_, err := s.Send(context.Background(), "List files in /tmp")
	require.Error(t, err)
	require.ErrorIs(t, err, providerErr)

	var e *agenterr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, agenterr.KindToolInvocation, e.Kind)
	assert.Equal(t, "list_dir", e.Tool)
	assert.Equal(t, "c1", e.CallID)

	tr := s.Transcript()
	require.Len(t, tr, 2)
	assert.Equal(t, RoleUser, tr[0].Role)
	assert.Equal(t, RoleAssistant, tr[1].Role)
	assert.Len(t, tr[1].ToolCalls, 1)
	assert.Len(t, llm.calls, 1, "no finalizing call after a failed tool")
}

func TestSendUntaggedToolFailureIsWrapped(t *testing.T) {
	llm := &scriptedCompleter{replies: []Completion{
		{ToolCalls: []ToolCall{{ID: "c9", Name: "search"}}},
	}}
	tools := &fakeTools{fail: map[string]error{"search": errors.New("timeout")}}
	s := NewService(llm, tools)

	_, err := s.Send(context.Background(), "find it")
	var e *agenterr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, agenterr.KindToolInvocation, e.Kind)
	assert.Equal(t, "search", e.Tool)
	assert.Equal(t, "c9", e.CallID)
}

func TestSendSecondToolFailureStopsTheRound(t *testing.T) {
	llm := &scriptedCompleter{replies: []Completion{
		{ToolCalls: []ToolCall{{ID: "c1", Name: "ok"}, {ID: "c2", Name: "bad"}, {ID: "c3", Name: "ok"}}},
	}}
	tools := &fakeTools{
		results: map[string]ToolResult{"ok": {Content: []string{"fine"}}},
		fail:    map[string]error{"bad": errors.New("nope")},
	}
	s := NewService(llm, tools)

	_, err := s.Send(context.Background(), "do things")
	require.Error(t, err)
	assert.Len(t, tools.invocations, 2)

	tr := s.Transcript()
	require.Len(t, tr, 3)
	assert.Equal(t, "c1", tr[2].ToolCallID)
}

func TestSendGatewayErrors(t *testing.T) {
	gwErr := agenterr.Gateway("no choices", nil)

	t.Run("first completion", func(t *testing.T) {
		s := NewService(&scriptedCompleter{errs: []error{gwErr}}, &fakeTools{})
		_, err := s.Send(context.Background(), "hi")
		assert.True(t, agenterr.Is(err, agenterr.KindGateway))
		assert.Len(t, s.Transcript(), 1)
	})

	t.Run("finalizing completion", func(t *testing.T) {
		llm := &scriptedCompleter{
			replies: []Completion{{ToolCalls: []ToolCall{{ID: "c1", Name: "t"}}}},
			errs:    []error{nil, gwErr},
		}
		tools := &fakeTools{results: map[string]ToolResult{"t": {Content: []string{"r"}}}}
		s := NewService(llm, tools)
		_, err := s.Send(context.Background(), "hi")
		assert.True(t, agenterr.Is(err, agenterr.KindGateway))
		assert.Len(t, s.Transcript(), 3)
	})
}

func TestSendListToolsFailure(t *testing.T) {
	llm := &scriptedCompleter{}
	tools := &fakeTools{listErr: agenterr.Connection("list tools", errors.New("closed"))}
	s := NewService(llm, tools)

	_, err := s.Send(context.Background(), "hi")
	assert.True(t, agenterr.Is(err, agenterr.KindConnection))
	assert.Empty(t, llm.calls)
}

func TestSendDropsToolCallsFromFinalizingCompletion(t *testing.T) {
	llm := &scriptedCompleter{replies: []Completion{
		{ToolCalls: []ToolCall{{ID: "c1", Name: "t"}}},
		{Text: "answer", ToolCalls: []ToolCall{{ID: "c2", Name: "t"}}},
	}}
	tools := &fakeTools{results: map[string]ToolResult{"t": {Content: []string{"r"}}}}
	s := NewService(llm, tools)

	answer, err := s.Send(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "answer", answer)

	tr := s.Transcript()
	require.Len(t, tr, 4)
	assert.Nil(t, tr[3].ToolCalls)
	assert.Len(t, tools.invocations, 1)
}

func TestSendRequeriesToolsEveryTurn(t *testing.T) {
	llm := &scriptedCompleter{replies: []Completion{{Text: "a"}, {Text: "b"}}}
	tools := &fakeTools{}
	s := NewService(llm, tools)

	_, err := s.Send(context.Background(), "one")
	require.NoError(t, err)
	_, err = s.Send(context.Background(), "two")
	require.NoError(t, err)

	assert.Equal(t, 2, tools.lists)
	assert.Len(t, llm.calls[1].history, 3, "second turn sees the whole transcript")
}

func TestSendIsAppendOnly(t *testing.T) {
	llm := &scriptedCompleter{replies: []Completion{
		{Text: "first"},
		{ToolCalls: []ToolCall{{ID: "c1", Name: "t"}}},
		{Text: "second"},
	}}
	tools := &fakeTools{results: map[string]ToolResult{"t": {Content: []string{"r"}}}}
	s := NewService(llm, tools)

	_, err := s.Send(context.Background(), "one")
	require.NoError(t, err)
	before := s.Transcript()

	_, err = s.Send(context.Background(), "two")
	require.NoError(t, err)
	after := s.Transcript()

	require.Greater(t, len(after), len(before))
	assert.Equal(t, before, after[:len(before)])
}

func TestSendRejectsEmptyInput(t *testing.T) {
	llm := &scriptedCompleter{}
	s := NewService(llm, &fakeTools{})

	_, err := s.Send(context.Background(), "   ")
	require.Error(t, err)
	assert.Empty(t, s.Transcript())
	assert.Empty(t, llm.calls)
}

func TestToolObserverSeesEachCall(t *testing.T) {
	llm := &scriptedCompleter{replies: []Completion{
		{ToolCalls: []ToolCall{{ID: "c1", Name: "a"}, {ID: "c2", Name: "b"}}},
		{Text: "ok"},
	}}
	tools := &fakeTools{results: map[string]ToolResult{"a": {}, "b": {}}}
	var seen []string
	s := NewService(llm, tools, WithToolObserver(func(c ToolCall) { seen = append(seen, c.ID) }))

	_, err := s.Send(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, seen)
}

func TestParseToolArgsJSON(t *testing.T) {
	args := parseToolArgs(`{"path":"/tmp","recursive":true}`)
	assert.Equal(t, "/tmp", args["path"])
	assert.Equal(t, true, args["recursive"])
}

func TestParseToolArgsInvalidJSONFallsBackToRaw(t *testing.T) {
	for _, raw := range []string{`{"path":`, `null`, `[1,2]`} {
		args := parseToolArgs(raw)
		assert.Equal(t, map[string]any{"raw": raw}, args, raw)
	}
}

func TestSendRenamesMissingAndRepeatedCallIDs(t *testing.T) {
	llm := &scriptedCompleter{replies: []Completion{
		{ToolCalls: []ToolCall{
			{ID: "", Name: "list_dir", Arguments: `{"path":"/tmp"}`},
			{ID: "", Name: "list_dir", Arguments: `{"path":"/var"}`},
			{ID: "call_1", Name: "read_file", Arguments: `{"path":"/tmp/a.txt"}`},
			{ID: "call_1", Name: "read_file", Arguments: `{"path":"/tmp/b.txt"}`},
		}},
		{Text: "done"},
	}}
	tools := &fakeTools{results: map[string]ToolResult{
		"list_dir":  {Content: []string{"a.txt"}},
		"read_file": {Content: []string{"hello"}},
	}}
	s := NewService(llm, tools)

	answer, err := s.Send(context.Background(), "look around")
	require.NoError(t, err)
	assert.Equal(t, "done", answer)
	assert.Len(t, tools.invocations, 4)

	tr := s.Transcript()
	require.Len(t, tr, 7)
	ids := make([]string, 0, 4)
	for _, c := range tr[1].ToolCalls {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"call_2", "call_3", "call_1", "call_4"}, ids)
	for i, id := range ids {
		assert.Equal(t, id, tr[2+i].ToolCallID)
	}
	assertToolResultsAnswerPrecedingAssistant(t, tr)
}

func TestUniqueCallIDsKeepsDistinctIDs(t *testing.T) {
	calls := []ToolCall{{ID: "c1", Name: "a"}, {ID: "c2", Name: "b"}}
	got, renamed := uniqueCallIDs(calls)
	assert.Zero(t, renamed)
	assert.Equal(t, calls, got)
}

func assertToolResultsAnswerPrecedingAssistant(t *testing.T, tr []Message) {
	t.Helper()
	var open map[string]bool
	for i, m := range tr {
		switch m.Role {
		case RoleAssistant:
			open = map[string]bool{}
			for _, c := range m.ToolCalls {
				open[c.ID] = true
			}
		case RoleTool:
			require.True(t, open[m.ToolCallID], "message %d answers unknown call %q", i, m.ToolCallID)
			delete(open, m.ToolCallID)
		default:
			open = nil
		}
	}
}
