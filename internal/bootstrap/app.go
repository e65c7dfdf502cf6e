package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	goruntime "runtime"
	"syscall"

	"go.uber.org/zap"

	"secure-scrub/internal/batch"
	"secure-scrub/internal/config"
	"secure-scrub/internal/diagnostics"
	"secure-scrub/internal/domain"
	"secure-scrub/internal/jobs"
)

// Process exit codes.
const (
	ExitOK       = 0
	ExitFailures = 1
	ExitUsage    = 2
)

// version is overridden at build time with -ldflags "-X".
var version = "dev"

// batchRunner isolates the orchestrator behind an interface.
type batchRunner interface {
	Run(ctx context.Context, req batch.Request) (domain.BatchResult, error)
	Events() *jobs.EventBus
}

// App wires configuration, diagnostics and the batch orchestrator to the
// command line.
type App struct {
	stdout io.Writer
	stderr io.Writer

	lookup     func(string) (string, bool)
	skipDotEnv bool
	newBatch   func(settings domain.Settings, logger *zap.Logger) batchRunner
	checker    batch.Preflight
	goos       string
	available  func(string) bool

	code int
}

// exitError carries a specific exit code up through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

// New builds the application with real OS dependencies.
func New(stdout, stderr io.Writer) *App {
	return &App{
		stdout: stdout,
		stderr: stderr,
		lookup: os.LookupEnv,
		newBatch: func(settings domain.Settings, logger *zap.Logger) batchRunner {
			return batch.New(settings, logger)
		},
		checker:   diagnostics.NewChecker(),
		goos:      goruntime.GOOS,
		available: commandAvailable,
	}
}

// NewForTests builds an application with injectable dependencies. The .env
// file is never read.
func NewForTests(
	stdout, stderr io.Writer,
	lookup func(string) (string, bool),
	newBatch func(settings domain.Settings, logger *zap.Logger) batchRunner,
	checker batch.Preflight,
) *App {
	return &App{
		stdout:     stdout,
		stderr:     stderr,
		lookup:     lookup,
		skipDotEnv: true,
		newBatch:   newBatch,
		checker:    checker,
		goos:       "linux",
	}
}

// Execute runs the CLI against the process arguments, stopping work on
// SIGINT or SIGTERM, and returns the exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return New(os.Stdout, os.Stderr).Execute(ctx, os.Args[1:])
}

// Execute runs one command line and returns its exit code.
func (a *App) Execute(ctx context.Context, args []string) int {
	a.code = ExitOK

	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(a.stderr, red("Error:"), err)
		var coded *exitError
		if errors.As(err, &coded) {
			return coded.code
		}
		return ExitUsage
	}
	return a.code
}

// loadSettings layers config sources and builds the logger for one command.
func (a *App) loadSettings(opts *globalOptions) (domain.Settings, *zap.Logger, error) {
	settings, _, err := config.Load(config.LoadOptions{
		File:       opts.configFile,
		SkipDotEnv: a.skipDotEnv,
		Lookup:     a.lookup,
	})
	if err != nil {
		return domain.Settings{}, nil, err
	}

	logger, err := NewLogger(settings.LogLevel, opts.verbose, opts.quiet, a.stderr)
	if err != nil {
		return domain.Settings{}, nil, err
	}
	return settings, logger, nil
}
