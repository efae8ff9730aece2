package ui

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRendererPlainOutput(t *testing.T) {
	var out, errOut bytes.Buffer
	r := NewRenderer(&out, &errOut, true)

	assert.Nil(t, r.markdown, "markdown needs a terminal")

	r.Banner("mcpchat", "model=gpt-4o-mini", "Type quit to exit.")
	r.Prompt()
	r.Answer("The files are **a.txt** and b.txt.\n")
	r.ToolCall("list_dir")
	r.Error(errors.New("gateway error: empty response from model"))

	got := out.String()
	assert.Contains(t, got, "mcpchat")
	assert.Contains(t, got, "model=gpt-4o-mini")
	assert.Contains(t, got, ">")
	assert.Contains(t, got, "The files are **a.txt** and b.txt.\n")

	assert.Contains(t, errOut.String(), "calling tool list_dir")
	assert.Contains(t, errOut.String(), "error: gateway error: empty response from model")
}

func TestBusyWithoutTerminalIsNoop(t *testing.T) {
	var out, errOut bytes.Buffer
	r := NewRenderer(&out, &errOut, false)

	stop := r.Busy("thinking")
	stop()
	stop()
	assert.Empty(t, errOut.String())
}

func TestSpinnerModelStops(t *testing.T) {
	m := newSpinnerModel("thinking")
	assert.Contains(t, m.View(), "thinking")

	next, _ := m.Update(m.spinner.Tick())
	assert.Contains(t, next.View(), "thinking")

	done, cmd := next.Update(stopMsg{})
	require.NotNil(t, cmd)
	assert.Empty(t, done.View())
}

func TestSpinnerModelIgnoresOtherMessages(t *testing.T) {
	m := newSpinnerModel("x")
	next, cmd := m.Update("unrelated")
	assert.Nil(t, cmd)
	assert.Equal(t, m.View(), next.View())
}

func TestStartSpinnerStopReturns(t *testing.T) {
	var buf bytes.Buffer
	stop := startSpinner(&buf, "working")

	done := make(chan struct{})
	go func() {
		stop()
		stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("spinner did not stop")
	}
}
