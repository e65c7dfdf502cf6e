package batch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"secure-scrub/internal/diagnostics"
	"secure-scrub/internal/domain"
	"secure-scrub/internal/jobs"
	"secure-scrub/internal/pathsafe"
	"secure-scrub/internal/runner"
	"secure-scrub/internal/scrub"
	"secure-scrub/internal/staging"
)

// Request is one batch invocation.
type Request struct {
	Targets    []string
	Mode       domain.Mode
	Operations domain.Operations
	Verbose    bool
	OnProgress func(domain.Progress)
	OnLog      func(runner.CommandLog)
}

// Preflight checks external prerequisites once per run.
type Preflight interface {
	Run(settings domain.Settings, ops domain.Operations, mode domain.Mode) domain.DiagnosticReport
}

// Processor runs the per-file pipeline.
type Processor interface {
	Process(ctx context.Context, file domain.EligibleFile, part *staging.Partition, onStage func(domain.FileStage)) domain.Outcome
}

// ProcessorFactory builds the per-run processor around an invoker.
type ProcessorFactory func(settings domain.Settings, ops domain.Operations, mode domain.Mode, invoke *runner.Invoker, logger *zap.Logger) Processor

// Orchestrator enumerates targets, dispatches eligible files and aggregates
// outcomes.
type Orchestrator struct {
	settings     domain.Settings
	logger       *zap.Logger
	preflight    Preflight
	resolver     *pathsafe.Resolver
	runner       runner.Runner
	newProcessor ProcessorFactory
	bus          *jobs.EventBus
	walkDir      func(root string, fn fs.WalkDirFunc) error
}

// New builds an orchestrator using real OS dependencies.
func New(settings domain.Settings, logger *zap.Logger) *Orchestrator {
	return NewForTests(settings, logger, diagnostics.NewChecker(), &runner.ExecRunner{}, nil)
}

// NewForTests creates an orchestrator with injectable dependencies. A nil
// factory uses the production pipeline.
func NewForTests(
	settings domain.Settings,
	logger *zap.Logger,
	preflight Preflight,
	r runner.Runner,
	factory ProcessorFactory,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if factory == nil {
		factory = defaultProcessor
	}
	return &Orchestrator{
		settings:     settings,
		logger:       logger,
		preflight:    preflight,
		resolver:     pathsafe.NewResolver(),
		runner:       r,
		newProcessor: factory,
		bus:          jobs.NewEventBus(2000),
		walkDir:      filepath.WalkDir,
	}
}

func defaultProcessor(settings domain.Settings, ops domain.Operations, mode domain.Mode, invoke *runner.Invoker, logger *zap.Logger) Processor {
	return scrub.NewPipeline(settings, ops, mode, invoke, logger)
}

// Events exposes the run's event history.
func (o *Orchestrator) Events() *jobs.EventBus {
	return o.bus
}

// Run processes every target. The returned error is set only when the batch
// could not start; per-file problems are reported in the result.
func (o *Orchestrator) Run(ctx context.Context, req Request) (domain.BatchResult, error) {
	if len(req.Targets) == 0 {
		return domain.BatchResult{}, ErrNoTargets
	}
	if !req.Operations.Any() {
		return domain.BatchResult{}, ErrNoOperations
	}
	mode := req.Mode
	if mode == "" {
		mode = domain.ModeCopy
	}

	runID := uuid.NewString()
	logger := o.logger.With(zap.String("run_id", runID))

	if o.preflight != nil {
		report := o.preflight.Run(o.settings, req.Operations, mode)
		if missing := missingTools(report); len(missing) > 0 {
			return domain.BatchResult{}, &ToolUnavailableError{Missing: missing}
		}
	}

	area, err := staging.Acquire(o.settings.StagingDir)
	if err != nil {
		return domain.BatchResult{}, err
	}
	defer func() {
		if err := area.Cleanup(); err != nil {
			logger.Error("staging cleanup failed", zap.String("dir", area.Dir()), zap.Error(err))
		}
	}()
	logger.Debug("staging acquired", zap.String("dir", area.Dir()))

	invoke := runner.NewInvoker(o.runner, o.settings.ToolTimeout, func(log runner.CommandLog) {
		logger.Debug("command",
			zap.String("cmd", log.String()),
			zap.Int("exit", log.ExitCode),
			zap.Duration("took", log.Duration),
		)
		if req.Verbose && strings.TrimSpace(log.Stderr) != "" {
			logger.Debug("command stderr", zap.String("cmd", log.Command), zap.String("stderr", log.Stderr))
		}
		o.bus.Publish(jobs.Event{
			RunID:    runID,
			Type:     jobs.EventTypeLog,
			Command:  log.String(),
			ExitCode: log.ExitCode,
			Stderr:   log.Stderr,
		})
		if req.OnLog != nil {
			req.OnLog(log)
		}
	})
	processor := o.newProcessor(o.settings, req.Operations, mode, invoke, logger)

	entries := o.enumerate(req.Targets, logger)
	tracker := jobs.NewTracker()
	col := &collector{
		outcomes:   make([]domain.Outcome, len(entries)),
		total:      len(entries),
		onProgress: req.OnProgress,
		bus:        o.bus,
		runID:      runID,
		tracker:    tracker,
		logger:     logger,
	}
	for _, e := range entries {
		if err := tracker.Queue(entryKey(e)); err != nil {
			logger.Warn("queue file", zap.Error(err))
		}
	}
	logger.Info("batch started",
		zap.Int("files", len(entries)),
		zap.String("mode", string(mode)),
		zap.String("suffix", req.Operations.Suffix()),
		zap.Int("workers", o.settings.Workers),
	)

	workers := o.settings.Workers
	if workers < 1 {
		workers = 1
	}
	var g errgroup.Group
	g.SetLimit(workers)

	for i, e := range entries {
		if e.outcome != nil {
			col.add(i, *e.outcome)
			continue
		}
		i, e := i, e
		g.Go(func() error {
			col.add(i, o.processOne(ctx, processor, area, tracker, runID, e.file))
			return nil
		})
	}
	_ = g.Wait()

	for _, path := range tracker.Pending() {
		logger.Error("file left without a final stage", zap.String("path", path))
	}

	result := domain.NewBatchResult(runID, col.outcomes)
	logger.Info("batch finished",
		zap.Int("succeeded", result.Succeeded),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// processOne runs the pipeline for one file in its own staging partition.
func (o *Orchestrator) processOne(
	ctx context.Context,
	processor Processor,
	area *staging.Area,
	tracker *jobs.Tracker,
	runID string,
	file domain.EligibleFile,
) domain.Outcome {
	if err := ctx.Err(); err != nil {
		return domain.Outcome{
			Source:       file.Path,
			Status:       domain.StatusFailed,
			Reason:       scrub.ReasonInterrupted,
			Message:      "interrupted before processing started",
			OriginalSize: file.Size,
		}
	}

	part, err := area.Partition()
	if err != nil {
		return domain.Outcome{
			Source:       file.Path,
			Status:       domain.StatusFailed,
			Reason:       string(scrub.CodeStagingFailed),
			Message:      err.Error(),
			OriginalSize: file.Size,
		}
	}
	defer func() {
		if err := part.Discard(); err != nil {
			o.logger.Warn("discard staging partition", zap.String("dir", part.Dir()), zap.Error(err))
		}
	}()

	start := time.Now()
	outcome := processor.Process(ctx, file, part, func(stage domain.FileStage) {
		if err := tracker.Transition(file.Path, stage); err != nil {
			o.logger.Warn("stage transition", zap.Error(err))
		}
		o.bus.Publish(jobs.Event{RunID: runID, Type: jobs.EventTypeStage, Path: file.Path, Stage: stage})
	})
	if outcome.Duration == 0 {
		outcome.Duration = time.Since(start)
	}
	if outcome.Reason == scrub.ReasonInterrupted {
		if stage, ok := tracker.Stage(file.Path); ok {
			outcome.Message = fmt.Sprintf("interrupted while %s: %s", stage, outcome.Message)
		}
	}
	return outcome
}

// missingTools returns failed tool checks from a pre-flight report.
func missingTools(report domain.DiagnosticReport) []domain.DiagnosticItem {
	var out []domain.DiagnosticItem
	for _, item := range report.Failures() {
		if strings.HasPrefix(item.ID, "tool_") {
			out = append(out, item)
		}
	}
	return out
}

func entryKey(e entry) string {
	if e.outcome != nil {
		return e.outcome.Source
	}
	return e.file.Path
}

// collector stores outcomes from concurrent workers in enumeration order.
type collector struct {
	mu         sync.Mutex
	outcomes   []domain.Outcome
	done       int
	total      int
	onProgress func(domain.Progress)
	bus        *jobs.EventBus
	runID      string
	tracker    *jobs.Tracker
	logger     *zap.Logger
}

func (c *collector) add(i int, outcome domain.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.outcomes[i] = outcome
	c.done++

	stage := domain.FileStageDone
	switch outcome.Status {
	case domain.StatusSkipped:
		stage = domain.FileStageSkipped
	case domain.StatusFailed:
		stage = domain.FileStageFailed
	}
	if err := c.tracker.Transition(outcome.Source, stage); err != nil {
		c.logger.Warn("final stage transition", zap.Error(err))
	}

	c.bus.Publish(jobs.Event{
		RunID:    c.runID,
		Type:     jobs.EventTypeOutcome,
		Path:     outcome.Source,
		Status:   outcome.Status,
		Strategy: outcome.Strategy,
		Message:  outcome.Message,
		Original: outcome.OriginalSize,
		Final:    outcome.FinalSize,
	})
	for _, w := range outcome.Warnings {
		c.bus.Publish(jobs.Event{RunID: c.runID, Type: jobs.EventTypeWarning, Path: outcome.Source, Message: w})
	}

	if c.onProgress != nil {
		c.onProgress(domain.Progress{
			Path:         outcome.Source,
			Status:       outcome.Status,
			OriginalSize: outcome.OriginalSize,
			FinalSize:    outcome.FinalSize,
			Strategy:     outcome.Strategy,
			Done:         c.done,
			Total:        c.total,
		})
	}
}

// IsToolUnavailable reports whether err aborted the batch in pre-flight.
func IsToolUnavailable(err error) bool {
	return errors.Is(err, ErrToolUnavailable)
}
