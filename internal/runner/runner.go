package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrTimeout marks an invocation that exceeded its per-call deadline.
var ErrTimeout = errors.New("command timed out")

// CommandLog captures one external command invocation result.
type CommandLog struct {
	Command  string        `json:"command"`
	Args     []string      `json:"args"`
	ExitCode int           `json:"exitCode"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	Duration time.Duration `json:"duration"`
}

// String renders the invocation as a shell-like line for logs.
func (l CommandLog) String() string {
	if len(l.Args) == 0 {
		return l.Command
	}
	return l.Command + " " + strings.Join(l.Args, " ")
}

// Result is one process execution response.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner abstracts process execution for testability.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// ExecRunner executes commands via os/exec.
type ExecRunner struct{}

// Run executes one command and captures stdout/stderr and exit code.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}

	return result, nil
}

// Invoker runs commands through a Runner with a per-call timeout and reports
// every invocation to an optional observer.
type Invoker struct {
	runner  Runner
	timeout time.Duration
	onLog   func(CommandLog)
}

// NewInvoker wraps runner; a zero timeout disables the deadline.
func NewInvoker(runner Runner, timeout time.Duration, onLog func(CommandLog)) *Invoker {
	if runner == nil {
		runner = &ExecRunner{}
	}
	return &Invoker{runner: runner, timeout: timeout, onLog: onLog}
}

// Invoke runs one command. A deadline hit is reported as ErrTimeout even when
// the process was killed and returned a plain exit error.
func (i *Invoker) Invoke(ctx context.Context, name string, args ...string) (CommandLog, error) {
	callCtx := ctx
	if i.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := i.runner.Run(callCtx, name, args...)
	log := CommandLog{
		Command:  name,
		Args:     append([]string(nil), args...),
		ExitCode: res.ExitCode,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		Duration: time.Since(start),
	}
	if i.onLog != nil {
		i.onLog(log)
	}

	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return log, fmt.Errorf("%s after %s: %w", name, i.timeout, ErrTimeout)
		}
		return log, err
	}
	return log, nil
}
