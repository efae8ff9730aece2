// Package mcp owns the connection to the single MCP tool provider: process
// launch over stdio, the initialize handshake, tool discovery and tool
// invocation.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"mcpchat/internal/agenterr"
	"mcpchat/internal/chat"
	"mcpchat/internal/config"

	"github.com/charmbracelet/log"
	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("mcp: session closed")

const (
	clientName    = "mcpchat"
	clientVersion = "0.1.0"
)

// Client is the part of the mcp-go client the session relies on.
// *client.Client satisfies it.
type Client interface {
	Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

type Session struct {
	client      Client
	logger      *log.Logger
	toolTimeout time.Duration
	initTimeout time.Duration
	server      mcp.Implementation

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

var _ chat.ToolProvider = (*Session)(nil)

type Option func(*Session)

func WithLogger(l *log.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// WithToolTimeout bounds every CallTool. Zero disables the bound.
func WithToolTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.toolTimeout = d
	}
}

// WithConnectTimeout bounds the initialize handshake.
func WithConnectTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.initTimeout = d
	}
}

// Connect launches server over stdio and performs the handshake.
func Connect(ctx context.Context, server config.Server, opts ...Option) (*Session, error) {
	c, err := mcpclient.NewStdioMCPClient(server.Command, server.EnvList(), server.Args...)
	if err != nil {
		return nil, agenterr.Connection(fmt.Sprintf("start tool server %q", server.Command), err)
	}
	return NewSession(ctx, c, opts...)
}

// NewSession performs the handshake over an already started client. The
// client is closed if the handshake fails.
func NewSession(ctx context.Context, c Client, opts ...Option) (*Session, error) {
	s := &Session{
		client:      c,
		logger:      log.New(io.Discard),
		initTimeout: config.DefaultConnectTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	initCtx, cancel := s.bounded(ctx, s.initTimeout)
	defer cancel()

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: clientName, Version: clientVersion}
	req.Params.Capabilities = mcp.ClientCapabilities{}

	res, err := c.Initialize(initCtx, req)
	if err != nil {
		_ = c.Close()
		return nil, agenterr.Connection("initialize handshake failed", err)
	}
	s.server = res.ServerInfo
	s.logger.Info("connected to tool server", "name", res.ServerInfo.Name, "version", res.ServerInfo.Version, "protocol", res.ProtocolVersion)
	return s, nil
}

// Server returns the provider's self-reported identity.
func (s *Session) Server() mcp.Implementation { return s.server }

func (s *Session) ListTools(ctx context.Context) ([]chat.ToolDescriptor, error) {
	if s.closed.Load() {
		return nil, agenterr.Connection("list tools", ErrClosed)
	}
	res, err := s.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, agenterr.Connection("list tools", err)
	}
	out := make([]chat.ToolDescriptor, 0, len(res.Tools))
	for _, t := range res.Tools {
		out = append(out, chat.ToolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  inputSchema(t),
		})
	}
	return out, nil
}

func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) (chat.ToolResult, error) {
	if s.closed.Load() {
		return chat.ToolResult{}, agenterr.Connection("call tool "+name, ErrClosed)
	}
	callCtx, cancel := s.bounded(ctx, s.toolTimeout)
	defer cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	start := time.Now()
	res, err := s.client.CallTool(callCtx, req)
	if err != nil {
		return chat.ToolResult{}, agenterr.ToolInvocation(name, "", err)
	}

	texts := textContent(res.Content)
	if res.IsError {
		msg := "tool reported an error"
		if len(texts) > 0 {
			msg = strings.Join(texts, "\n")
		}
		return chat.ToolResult{}, agenterr.ToolInvocation(name, "", errors.New(msg))
	}
	if len(texts) == 0 {
		return chat.ToolResult{}, agenterr.ToolInvocation(name, "", errors.New("result has no text content"))
	}
	s.logger.Debug("tool call finished", "tool", name, "items", len(texts), "took", time.Since(start))
	return chat.ToolResult{Content: texts}, nil
}

// Close shuts the connection and the provider process down. Only the first
// call does any work; later calls return nil.
func (s *Session) Close() error {
	first := false
	s.closeOnce.Do(func() {
		first = true
		s.closed.Store(true)
		s.closeErr = s.client.Close()
	})
	if !first {
		return nil
	}
	return s.closeErr
}

func (s *Session) bounded(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func textContent(items []mcp.Content) []string {
	var out []string
	for _, item := range items {
		switch c := item.(type) {
		case mcp.TextContent:
			out = append(out, c.Text)
		case *mcp.TextContent:
			out = append(out, c.Text)
		}
	}
	return out
}

// inputSchema returns the tool's argument schema as a plain map, preferring
// the raw schema when the provider sent one.
func inputSchema(t mcp.Tool) map[string]any {
	if len(t.RawInputSchema) > 0 {
		var raw map[string]any
		if err := json.Unmarshal(t.RawInputSchema, &raw); err == nil {
			return raw
		}
	}
	schema := map[string]any{"type": t.InputSchema.Type}
	if schema["type"] == "" {
		schema["type"] = "object"
	}
	props := t.InputSchema.Properties
	if props == nil {
		props = map[string]any{}
	}
	schema["properties"] = props
	if len(t.InputSchema.Required) > 0 {
		schema["required"] = t.InputSchema.Required
	}
	return schema
}
