package scrub

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"secure-scrub/internal/runner"
)

// ErrEraseUnavailable reports that no secure-erase facility exists.
var ErrEraseUnavailable = errors.New("secure erase unavailable")

// Eraser overwrites and unlinks a file.
type Eraser interface {
	Erase(ctx context.Context, path string) error
}

// ShredEraser uses coreutils shred: one random pass, a zero pass, unlink.
type ShredEraser struct {
	tool     string
	invoke   *runner.Invoker
	lookPath func(string) (string, error)
}

// NewShredEraser builds an eraser around the shred executable.
func NewShredEraser(tool string, invoke *runner.Invoker) *ShredEraser {
	return &ShredEraser{tool: tool, invoke: invoke, lookPath: exec.LookPath}
}

// NewShredEraserForTests allows replacing the executable lookup.
func NewShredEraserForTests(tool string, invoke *runner.Invoker, lookPath func(string) (string, error)) *ShredEraser {
	return &ShredEraser{tool: tool, invoke: invoke, lookPath: lookPath}
}

// Erase shreds path. ErrEraseUnavailable is returned when shred is missing.
func (e *ShredEraser) Erase(ctx context.Context, path string) error {
	if _, err := e.lookPath(e.tool); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrEraseUnavailable, e.tool, err)
	}
	if _, err := e.invoke.Invoke(ctx, e.tool, "-n", "1", "-z", "-u", "--", path); err != nil {
		return fmt.Errorf("shred %s: %w", path, err)
	}
	return nil
}
