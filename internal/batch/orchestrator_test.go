package batch

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"secure-scrub/internal/config"
	"secure-scrub/internal/domain"
	"secure-scrub/internal/runner"
	"secure-scrub/internal/scrub"
	"secure-scrub/internal/staging"
)

// toolRunner emulates the external tools on real files: the metadata tool
// drops a "META;" prefix and every optimizer halves its input.
type toolRunner struct {
	calls atomic.Int32
	mu    sync.Mutex
	names []string
}

func (r *toolRunner) Run(_ context.Context, name string, args ...string) (runner.Result, error) {
	r.calls.Add(1)
	r.mu.Lock()
	r.names = append(r.names, name)
	r.mu.Unlock()

	last := args[len(args)-1]
	switch name {
	case "exiftool":
		data, err := os.ReadFile(last)
		if err != nil {
			return runner.Result{ExitCode: 1}, err
		}
		return runner.Result{}, os.WriteFile(flagValue(args, "-o"), bytes.TrimPrefix(data, []byte("META;")), 0o600)
	case "gs":
		if args[0] == "-dNODISPLAY" {
			return runner.Result{}, nil
		}
		return runner.Result{}, halve(last, prefixValue(args, "-sOutputFile="))
	case "pngquant":
		return runner.Result{}, halve(last, flagValue(args, "--output"))
	case "jpegoptim":
		return runner.Result{}, halve(last, last)
	}
	return runner.Result{ExitCode: 127}, errors.New("unknown tool " + name)
}

func halve(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data[:len(data)/2], 0o600)
}

func flagValue(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func prefixValue(args []string, prefix string) string {
	for _, a := range args {
		if strings.HasPrefix(a, prefix) {
			return strings.TrimPrefix(a, prefix)
		}
	}
	return ""
}

// preflightFunc adapts a closure to Preflight.
type preflightFunc func(domain.Settings, domain.Operations, domain.Mode) domain.DiagnosticReport

func (f preflightFunc) Run(s domain.Settings, ops domain.Operations, mode domain.Mode) domain.DiagnosticReport {
	return f(s, ops, mode)
}

func allToolsPresent() Preflight {
	return preflightFunc(func(domain.Settings, domain.Operations, domain.Mode) domain.DiagnosticReport {
		return domain.DiagnosticReport{}
	})
}

func payload(n int) []byte {
	return append([]byte("META;"), bytes.Repeat([]byte("x"), n)...)
}

func write(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

type harness struct {
	orch    *Orchestrator
	tools   *toolRunner
	staging string
}

func newHarness(t *testing.T, workers int) harness {
	t.Helper()
	settings := config.DefaultSettings()
	settings.Workers = workers
	settings.StagingDir = t.TempDir()
	tools := &toolRunner{}
	return harness{
		orch:    NewForTests(settings, nil, allToolsPresent(), tools, nil),
		tools:   tools,
		staging: settings.StagingDir,
	}
}

func (h harness) assertStagingRemoved(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(h.staging)
	require.NoError(t, err)
	assert.Empty(t, entries, "staging area left behind")
}

func copyRequest(targets ...string) Request {
	return Request{Targets: targets, Mode: domain.ModeCopy, Operations: domain.AllOperations()}
}

func TestRunMixedDirectory(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.pdf", "b.pdf", "sub/c.PDF", "d.png", "sub/deeper/e.png"} {
		write(t, filepath.Join(dir, name), payload(4096))
	}
	write(t, filepath.Join(dir, "notes.docx"), payload(100))

	h := newHarness(t, 1)
	var progress []domain.Progress
	req := copyRequest(dir)
	req.OnProgress = func(p domain.Progress) { progress = append(progress, p) }

	result, err := h.orch.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 5, result.Succeeded)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 0, result.ExitCode())
	assert.Equal(t, domain.StatusSkipped, result.Worst)
	assert.NotEmpty(t, result.RunID)

	for _, name := range []string{"a_cleaned_opt.pdf", "b_cleaned_opt.pdf", "sub/c_cleaned_opt.PDF", "d_cleaned_opt.png", "sub/deeper/e_cleaned_opt.png"} {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	require.Len(t, progress, 6)
	assert.Equal(t, 6, progress[5].Done)
	assert.Equal(t, 6, progress[5].Total)

	var docx domain.Outcome
	for _, o := range result.Outcomes {
		if strings.HasSuffix(o.Source, "notes.docx") {
			docx = o
		}
	}
	assert.Equal(t, "UnsupportedType", docx.Reason)
	h.assertStagingRemoved(t)
}

func TestRunIsIdempotentOverItsOwnOutput(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "report.pdf")
	write(t, src, payload(8192))
	h := newHarness(t, 1)

	first, err := h.orch.Run(context.Background(), copyRequest(src))
	require.NoError(t, err)
	require.Equal(t, 1, first.Succeeded)
	derived := first.Outcomes[0].FinalPath
	assert.Equal(t, filepath.Join(filepath.Dir(derived), "report_cleaned_opt.pdf"), derived)

	calls := h.tools.calls.Load()
	second, err := h.orch.Run(context.Background(), copyRequest(derived))
	require.NoError(t, err)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, ReasonAlreadyProcessed, second.Outcomes[0].Reason)
	assert.Equal(t, calls, h.tools.calls.Load(), "derived file was reprocessed")

	third, err := h.orch.Run(context.Background(), copyRequest(dir))
	require.NoError(t, err)
	assert.Equal(t, 1, third.Skipped, "derived file must be skipped on a directory re-run")
	assert.Equal(t, 1, third.Failed, "original collides with its earlier output")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRunRejectsSymlinksBeforeWriting(t *testing.T) {
	outside := t.TempDir()
	target := filepath.Join(outside, "secret.pdf")
	write(t, target, payload(2048))

	dir := t.TempDir()
	link := filepath.Join(dir, "innocent.pdf")
	require.NoError(t, os.Symlink(target, link))

	h := newHarness(t, 1)
	result, err := h.orch.Run(context.Background(), copyRequest(link, dir))
	require.NoError(t, err)

	assert.Equal(t, 0, result.Succeeded)
	assert.Equal(t, 2, result.Failed, "direct and walked symlink both rejected")
	for _, o := range result.Outcomes {
		assert.Equal(t, "SymlinkUnsupported", o.Reason)
	}
	assert.Equal(t, int32(0), h.tools.calls.Load())

	entries, err := os.ReadDir(outside)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "nothing may be written next to the link target")
}

func TestRunWritesNextToCanonicalParent(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "in", "x.png"), payload(1024))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "other"), 0o755))

	h := newHarness(t, 1)
	raw := filepath.Join(dir, "other", "..", "in", "x.png")
	result, err := h.orch.Run(context.Background(), copyRequest(raw))
	require.NoError(t, err)
	require.Equal(t, 1, result.Succeeded)

	canonicalIn, err := filepath.EvalSymlinks(filepath.Join(dir, "in"))
	require.NoError(t, err)
	assert.Equal(t, canonicalIn, filepath.Dir(result.Outcomes[0].FinalPath))

	others, err := os.ReadDir(filepath.Join(dir, "other"))
	require.NoError(t, err)
	assert.Empty(t, others)
}

func TestRunToolUnavailableAbortsBeforeTouchingFiles(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "a.pdf"), payload(100))

	settings := config.DefaultSettings()
	settings.StagingDir = t.TempDir()
	tools := &toolRunner{}
	orch := NewForTests(settings, nil, preflightFunc(func(domain.Settings, domain.Operations, domain.Mode) domain.DiagnosticReport {
		return domain.DiagnosticReport{
			HasFailures: true,
			Items: []domain.DiagnosticItem{
				{ID: "tool_gs", Status: domain.DiagnosticStatusFail},
				{ID: "tool_shred", Status: domain.DiagnosticStatusWarn},
			},
		}
	}), tools, nil)

	_, err := orch.Run(context.Background(), copyRequest(dir))
	require.Error(t, err)
	assert.True(t, IsToolUnavailable(err))
	assert.Contains(t, err.Error(), "gs")
	assert.NotContains(t, err.Error(), "shred")
	assert.Equal(t, int32(0), tools.calls.Load())

	staged, err := os.ReadDir(settings.StagingDir)
	require.NoError(t, err)
	assert.Empty(t, staged)
}

func TestRunParallelWorkersKeepOrder(t *testing.T) {
	dir := t.TempDir()
	var names []string
	for _, n := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		name := n + ".jpg"
		names = append(names, name)
		write(t, filepath.Join(dir, name), payload(2048))
	}

	h := newHarness(t, 4)
	result, err := h.orch.Run(context.Background(), copyRequest(dir))
	require.NoError(t, err)

	assert.Equal(t, len(names), result.Succeeded)
	for i, o := range result.Outcomes {
		assert.Equal(t, names[i], filepath.Base(o.Source))
		assert.LessOrEqual(t, o.FinalSize, o.CleanedSize)
	}
	h.assertStagingRemoved(t)
}

func TestRunCancelledMarksFilesInterrupted(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "a.pdf"), payload(100))
	write(t, filepath.Join(dir, "b.png"), payload(100))

	h := newHarness(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := h.orch.Run(ctx, copyRequest(dir))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, 1, result.ExitCode())
	for _, o := range result.Outcomes {
		assert.Equal(t, "Interrupted", o.Reason)
	}
	assert.Equal(t, int32(0), h.tools.calls.Load())
	h.assertStagingRemoved(t)
}

func TestRunMissingTargetFailsButBatchContinues(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "ok.pdf")
	write(t, good, payload(512))

	h := newHarness(t, 1)
	result, err := h.orch.Run(context.Background(), copyRequest(filepath.Join(dir, "missing.pdf"), good, good))
	require.NoError(t, err)

	assert.Equal(t, 1, result.Succeeded, "duplicate target processed once")
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, "NotFound", result.Outcomes[0].Reason)
	assert.Equal(t, domain.StatusFailed, result.Worst)
}

func TestRunRecordsEvents(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "a.pdf"), payload(512))

	h := newHarness(t, 1)
	var logs []runner.CommandLog
	req := copyRequest(dir)
	req.OnLog = func(l runner.CommandLog) { logs = append(logs, l) }

	_, err := h.orch.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Len(t, logs, 3, "exiftool, gs rewrite, gs validate")
	var types []string
	for _, e := range h.orch.Events().Since(0) {
		types = append(types, string(e.Type))
	}
	assert.Contains(t, types, "stage")
	assert.Contains(t, types, "log")
	assert.Contains(t, types, "outcome")
}

func TestRunValidatesRequest(t *testing.T) {
	h := newHarness(t, 1)
	_, err := h.orch.Run(context.Background(), Request{Operations: domain.AllOperations()})
	assert.ErrorIs(t, err, ErrNoTargets)

	_, err = h.orch.Run(context.Background(), Request{Targets: []string{"x"}})
	assert.ErrorIs(t, err, ErrNoOperations)
}

// stageThenInterrupt reports one stage and then stops as if cancelled.
type stageThenInterrupt struct{}

func (stageThenInterrupt) Process(_ context.Context, file domain.EligibleFile, _ *staging.Partition, onStage func(domain.FileStage)) domain.Outcome {
	onStage(domain.FileStageCleaning)
	return domain.Outcome{
		Source:  file.Path,
		Status:  domain.StatusFailed,
		Reason:  scrub.ReasonInterrupted,
		Message: "context canceled",
	}
}

func TestRunInterruptedOutcomeNamesLastStage(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "a.pdf"), payload(100))

	settings := config.DefaultSettings()
	settings.StagingDir = t.TempDir()
	orch := NewForTests(settings, nil, allToolsPresent(), &toolRunner{}, func(domain.Settings, domain.Operations, domain.Mode, *runner.Invoker, *zap.Logger) Processor {
		return stageThenInterrupt{}
	})

	result, err := orch.Run(context.Background(), copyRequest(dir))
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, scrub.ReasonInterrupted, result.Outcomes[0].Reason)
	assert.Equal(t, "interrupted while cleaning: context canceled", result.Outcomes[0].Message)
}

func TestRunReportsUnreadableSubdirectory(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	good := filepath.Join(dir, "a.png")
	write(t, good, payload(256))
	locked := filepath.Join(dir, "locked")

	h := newHarness(t, 1)
	h.orch.walkDir = func(root string, fn fs.WalkDirFunc) error {
		return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err == nil && path == locked {
				return fn(path, d, fs.ErrPermission)
			}
			return fn(path, d, err)
		})
	}
	require.NoError(t, os.MkdirAll(filepath.Join(locked, "inner"), 0o755))
	write(t, filepath.Join(locked, "hidden.pdf"), payload(256))

	result, err := h.orch.Run(context.Background(), copyRequest(dir))
	require.NoError(t, err)

	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.ExitCode())
	last := result.Outcomes[len(result.Outcomes)-1]
	assert.Equal(t, locked, last.Source)
	assert.Equal(t, ReasonUnreadableDirectory, last.Reason)
	assert.NoFileExists(t, filepath.Join(locked, "hidden_cleaned_opt.pdf"))
}
