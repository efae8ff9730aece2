package agenterr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"configuration", Configuration("missing API key", nil), "configuration error: missing API key"},
		{"gateway with cause", Gateway("completion failed", cause), "gateway error: completion failed: boom"},
		{"tool without call id", ToolInvocation("list_dir", "", cause), "tool invocation error: tool list_dir: boom"},
		{"tool with call id", ToolInvocation("list_dir", "c1", cause), "tool invocation error: tool list_dir (call c1): boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestKindThroughWrapping(t *testing.T) {
	cause := errors.New("eof")
	err := fmt.Errorf("turn: %w", Connection("list tools", cause))

	assert.Equal(t, KindConnection, KindOf(err))
	assert.True(t, Is(err, KindConnection))
	assert.False(t, Is(err, KindGateway))
	assert.ErrorIs(t, err, cause)

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "list tools", e.Msg)
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindTurn, KindOf(errors.New("plain")))
	assert.Equal(t, "turn error", KindTurn.String())
}

func TestFatal(t *testing.T) {
	assert.True(t, Fatal(Configuration("x", nil)))
	assert.True(t, Fatal(Connection("x", nil)))
	assert.False(t, Fatal(Gateway("x", nil)))
	assert.False(t, Fatal(ToolInvocation("t", "c", nil)))
	assert.False(t, Fatal(nil))
}
