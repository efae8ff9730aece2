package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"mcpchat/internal/chat"
	"mcpchat/internal/config"
	"mcpchat/internal/llm"
	"mcpchat/internal/mcp"
	"mcpchat/internal/transcript"
	"mcpchat/internal/ui"

	"github.com/charmbracelet/log"
)

// Bootstrap builds the gateway, connects the tool session and assembles the
// App. Configuration and connection failures are returned as is and must
// abort startup.
func Bootstrap(ctx context.Context, settings config.Settings, logger *log.Logger) (*App, error) {
	gw, err := llm.NewGateway(settings, llm.WithLogger(logger.WithPrefix("llm")))
	if err != nil {
		return nil, err
	}

	session, err := mcp.Connect(ctx, settings.Server,
		mcp.WithLogger(logger.WithPrefix("mcp")),
		mcp.WithToolTimeout(settings.ToolTimeout),
		mcp.WithConnectTimeout(settings.ConnectTimeout),
	)
	if err != nil {
		return nil, err
	}

	toolCount := "unknown"
	if tools, err := session.ListTools(ctx); err != nil {
		logger.Warn("could not list tools at startup", "err", err)
	} else {
		toolCount = fmt.Sprint(len(tools))
	}

	render := ui.NewRenderer(os.Stdout, os.Stderr, settings.Markdown)
	service := chat.NewService(gw, session,
		chat.WithLogger(logger.WithPrefix("chat")),
		chat.WithToolObserver(func(c chat.ToolCall) { render.ToolCall(c.Name) }),
	)

	server := settings.Server.Name
	if info := session.Server(); info.Name != "" {
		server = fmt.Sprintf("%s (%s %s)", settings.Server.Name, info.Name, info.Version)
	}
	return New(service, session, transcript.NewStore(settings.TranscriptDir),
		WithRenderer(render),
		WithLogger(logger),
		WithTurnTimeout(settings.TurnTimeout),
		WithBanner("mcpchat",
			fmt.Sprintf("provider=%s model=%s url=%s", settings.Provider, settings.Model, valueOrDefault(settings.BaseURL, "default")),
			fmt.Sprintf("server=%s tools=%s", server, toolCount),
		),
	), nil
}

func valueOrDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
