// Package app wires the components together and runs the interactive loop.
package app

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"mcpchat/internal/agenterr"
	"mcpchat/internal/chat"
	"mcpchat/internal/config"
	"mcpchat/internal/ui"

	"github.com/charmbracelet/log"
)

const quitCommand = "quit"

// Turner runs one conversational turn and exposes the transcript.
type Turner interface {
	Send(ctx context.Context, input string) (string, error)
	Transcript() []chat.Message
}

// Saver persists a finished transcript.
type Saver interface {
	Save(messages []chat.Message) (string, error)
}

type App struct {
	service Turner
	tools   io.Closer
	store   Saver

	in          io.Reader
	render      *ui.Renderer
	logger      *log.Logger
	turnTimeout time.Duration
	title       string
	details     []string

	closeOnce sync.Once
	closeErr  error
}

type Option func(*App)

func WithInput(r io.Reader) Option {
	return func(a *App) {
		a.in = r
	}
}

func WithRenderer(r *ui.Renderer) Option {
	return func(a *App) {
		a.render = r
	}
}

func WithLogger(l *log.Logger) Option {
	return func(a *App) {
		a.logger = l
	}
}

// WithTurnTimeout bounds each turn. Zero leaves turns unbounded.
func WithTurnTimeout(d time.Duration) Option {
	return func(a *App) {
		a.turnTimeout = d
	}
}

func WithBanner(title string, details ...string) Option {
	return func(a *App) {
		a.title = title
		a.details = details
	}
}

// New assembles an App. tools is closed and the transcript saved to store
// exactly once, by Close.
func New(service Turner, tools io.Closer, store Saver, opts ...Option) *App {
	a := &App{
		service:     service,
		tools:       tools,
		store:       store,
		in:          os.Stdin,
		logger:      log.New(io.Discard),
		turnTimeout: config.DefaultTurnTimeout,
		title:       "mcpchat",
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.render == nil {
		a.render = ui.NewRenderer(os.Stdout, os.Stderr, false)
	}
	return a
}

// Run reads lines until quit, end of input or ctx is done. Failed turns are
// reported and the loop goes on.
func (a *App) Run(ctx context.Context) error {
	details := append(append([]string{}, a.details...), "Type quit to exit.")
	a.render.Banner(a.title, details...)

	lines, readErr := a.readLines(ctx)
	for {
		a.render.Prompt()
		var input string
		select {
		case <-ctx.Done():
			a.render.Println("")
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				a.render.Println("")
				return <-readErr
			}
			input = strings.TrimSpace(line)
		}

		if input == "" {
			continue
		}
		if strings.EqualFold(input, quitCommand) {
			return nil
		}

		answer, err := a.turn(ctx, input)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Error("turn failed", "kind", agenterr.KindOf(err), "err", err)
			a.render.Error(err)
			continue
		}
		a.render.Answer(answer)
	}
}

// Serve runs the loop and then Close. Close also runs when a turn panics. A
// canceled ctx counts as a normal exit.
func (a *App) Serve(ctx context.Context) (err error) {
	defer func() {
		err = errors.Join(err, a.Close())
	}()
	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *App) turn(ctx context.Context, input string) (string, error) {
	turnCtx, cancel := ctx, context.CancelFunc(func() {})
	if a.turnTimeout > 0 {
		turnCtx, cancel = context.WithTimeout(ctx, a.turnTimeout)
	}
	defer cancel()

	stop := a.render.Busy("thinking")
	defer stop()
	return a.service.Send(turnCtx, input)
}

// readLines scans input on its own goroutine so that a blocked read never
// holds up shutdown. readErr receives the scanner error once lines closes.
func (a *App) readLines(ctx context.Context) (<-chan string, <-chan error) {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(a.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				readErr <- ctx.Err()
				return
			}
		}
		readErr <- scanner.Err()
	}()
	return lines, readErr
}

// Close flushes the transcript, then shuts the tool session down. Only the
// first call does any work; later calls return the same result.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		var errs []error
		path, err := a.store.Save(a.service.Transcript())
		if err != nil {
			a.logger.Error("failed to save transcript", "err", err)
			errs = append(errs, err)
		} else {
			a.logger.Info("transcript saved", "path", path)
		}
		if err := a.tools.Close(); err != nil {
			a.logger.Error("failed to close tool session", "err", err)
			errs = append(errs, err)
		}
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}
