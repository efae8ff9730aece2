package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"mcpchat/internal/agenterr"
	"mcpchat/internal/app"
	"mcpchat/internal/config"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mcpchat",
	Short: "Chat with an LLM that can call tools on an MCP server",
	Long: `mcpchat connects a chat model to one MCP tool server over stdio and
runs an interactive prompt. Settings come from the environment and an
optional .env file; the server is read from mcp_config.json.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context())
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "mcpchat: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	settings, err := config.Load()
	if err != nil {
		return err
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "mcpchat",
	})
	level, err := log.ParseLevel(settings.LogLevel)
	if err != nil {
		return agenterr.Configuration(fmt.Sprintf("invalid log level %q", settings.LogLevel), err)
	}
	logger.SetLevel(level)
	logger = logger.With("session", uuid.NewString())

	a, err := app.Bootstrap(ctx, settings, logger)
	if err != nil {
		logger.Error("startup failed", "kind", agenterr.KindOf(err), "err", err)
		return err
	}

	return a.Serve(ctx)
}
