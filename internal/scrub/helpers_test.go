package scrub

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"secure-scrub/internal/config"
	"secure-scrub/internal/domain"
	"secure-scrub/internal/pathsafe"
	"secure-scrub/internal/runner"
	"secure-scrub/internal/staging"
)

// identifying marks bytes the fake metadata tool removes.
const identifying = "Author=Jane Roe;Title=Quarterly;"

// fakeRunner simulates command execution order and outcomes.
type fakeRunner struct {
	mu    sync.Mutex
	calls []string
	run   func(ctx context.Context, name string, args ...string) (runner.Result, error)
}

// Run records the command and delegates to injected behavior.
func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (runner.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
	if f.run == nil {
		return runner.Result{}, nil
	}
	return f.run(ctx, name, args...)
}

func (f *fakeRunner) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

// toolScript controls the fake external tools.
type toolScript struct {
	cleanErr      error
	cleanEmpty    bool
	optimizedSize func(in int) int
	rewriteErr    error
	validateErr   error
}

// newToolRunner emulates exiftool, gs, pngquant, jpegoptim and shred on
// real files so the rest of the pipeline sees genuine artifacts.
func newToolRunner(t *testing.T, script toolScript) *fakeRunner {
	t.Helper()
	shrink := script.optimizedSize
	if shrink == nil {
		shrink = func(in int) int { return in / 2 }
	}
	exit := func(err error) (runner.Result, error) {
		return runner.Result{ExitCode: 1, Stderr: err.Error()}, err
	}

	return &fakeRunner{run: func(ctx context.Context, name string, args ...string) (runner.Result, error) {
		switch name {
		case "exiftool":
			if script.cleanErr != nil {
				return exit(script.cleanErr)
			}
			src, dst := args[len(args)-1], argValue(args, "-o")
			data := mustRead(t, src)
			if script.cleanEmpty {
				data = nil
			}
			mustWrite(t, dst, bytes.ReplaceAll(data, []byte(identifying), nil))
		case "gs":
			if args[0] == "-dNODISPLAY" {
				if script.validateErr != nil {
					return exit(script.validateErr)
				}
				return runner.Result{}, nil
			}
			if script.rewriteErr != nil {
				return exit(script.rewriteErr)
			}
			src, dst := args[len(args)-1], prefixedValue(args, "-sOutputFile=")
			data := mustRead(t, src)
			mustWrite(t, dst, resize(data, shrink(len(data))))
		case "pngquant":
			src, dst := args[len(args)-1], argValue(args, "--output")
			data := mustRead(t, src)
			mustWrite(t, dst, resize(data, shrink(len(data))))
		case "jpegoptim":
			dst := args[len(args)-1]
			data := mustRead(t, dst)
			if err := os.WriteFile(dst, resize(data, shrink(len(data))), 0o600); err != nil {
				t.Fatalf("jpegoptim rewrite: %v", err)
			}
		case "shred":
			if err := os.Remove(args[len(args)-1]); err != nil {
				return exit(err)
			}
		default:
			t.Fatalf("unexpected command %q", name)
		}
		return runner.Result{}, nil
	}}
}

func resize(data []byte, n int) []byte {
	if n <= len(data) {
		return append([]byte(nil), data[:n]...)
	}
	return append(append([]byte(nil), data...), bytes.Repeat([]byte{'#'}, n-len(data))...)
}

func argValue(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func prefixedValue(args []string, prefix string) string {
	for _, arg := range args {
		if strings.HasPrefix(arg, prefix) {
			return strings.TrimPrefix(arg, prefix)
		}
	}
	return ""
}

func mustRead(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return data
}

func mustWrite(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// fixture is one source file plus a staging partition for it.
type fixture struct {
	file domain.EligibleFile
	part *staging.Partition
}

func newFixture(t *testing.T, name string, data []byte) fixture {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	mustWrite(t, path, data)

	file, err := pathsafe.NewResolver().Resolve(path)
	if err != nil {
		t.Fatalf("resolve %s: %v", path, err)
	}

	area, err := staging.Acquire(t.TempDir())
	if err != nil {
		t.Fatalf("acquire staging: %v", err)
	}
	t.Cleanup(func() { _ = area.Cleanup() })
	part, err := area.Partition()
	if err != nil {
		t.Fatalf("partition: %v", err)
	}
	return fixture{file: file, part: part}
}

// sourceBytes builds a payload carrying identifying fields.
func sourceBytes(size int) []byte {
	body := bytes.Repeat([]byte("0123456789abcdef"), size/16+1)[:size]
	return append([]byte(identifying), body...)
}

// missingEraser reports an unavailable secure-erase facility.
func missingEraser(invoke *runner.Invoker) *ShredEraser {
	return NewShredEraserForTests("shred", invoke, func(string) (string, error) {
		return "", errors.New("executable file not found in $PATH")
	})
}

// presentEraser pretends shred is installed.
func presentEraser(invoke *runner.Invoker) *ShredEraser {
	return NewShredEraserForTests("shred", invoke, func(name string) (string, error) {
		return "/usr/bin/" + name, nil
	})
}

func newTestPipeline(fake *fakeRunner, ops domain.Operations, mode domain.Mode, eraser Eraser) *Pipeline {
	invoke := runner.NewInvoker(fake, 0, nil)
	settings := config.DefaultSettings()
	return NewPipelineForTests(
		ops,
		mode,
		NewStripper(settings.Tools.ExifTool, invoke),
		NewOptimizerForTests(settings, invoke, nil),
		NewFinalizer(eraser, nil),
	)
}
