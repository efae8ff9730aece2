// Package agenterr defines the tagged error used across mcpchat.
//
// Every failure that crosses a component boundary is an *Error carrying a
// Kind, a human-readable message and, where one exists, the originating
// cause. Callers classify with KindOf or Is instead of inspecting causes.
package agenterr

import (
	"errors"
	"strings"
)

type Kind uint8

const (
	// KindTurn is any per-turn failure that has no more specific kind.
	KindTurn Kind = iota
	// KindConfiguration aborts startup: missing API key, bad server config.
	KindConfiguration
	// KindConnection covers spawning, handshaking with and talking to the
	// tool provider outside of a tool call.
	KindConnection
	// KindGateway is a failed exchange with the LLM chat API.
	KindGateway
	// KindToolInvocation is a failed call of one named tool.
	KindToolInvocation
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration error"
	case KindConnection:
		return "connection error"
	case KindGateway:
		return "gateway error"
	case KindToolInvocation:
		return "tool invocation error"
	default:
		return "turn error"
	}
}

type Error struct {
	Kind Kind
	Msg  string

	// Tool and CallID are set on KindToolInvocation errors.
	Tool   string
	CallID string

	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Tool != "" {
		b.WriteString(": tool ")
		b.WriteString(e.Tool)
		if e.CallID != "" {
			b.WriteString(" (call ")
			b.WriteString(e.CallID)
			b.WriteString(")")
		}
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

func Configuration(msg string, cause error) *Error {
	return New(KindConfiguration, msg, cause)
}

func Connection(msg string, cause error) *Error {
	return New(KindConnection, msg, cause)
}

func Gateway(msg string, cause error) *Error {
	return New(KindGateway, msg, cause)
}

// ToolInvocation reports a failed call of tool. callID may be empty when the
// failure is raised below the orchestrator, which fills it in.
func ToolInvocation(tool, callID string, cause error) *Error {
	return &Error{Kind: KindToolInvocation, Tool: tool, CallID: callID, Err: cause}
}

// KindOf returns the kind of the outermost *Error in err's chain, or
// KindTurn when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTurn
}

// Is reports whether err carries an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// Fatal reports whether err must abort startup.
func Fatal(err error) bool {
	k := KindOf(err)
	return err != nil && (k == KindConfiguration || k == KindConnection)
}
