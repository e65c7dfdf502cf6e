package scrub

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"secure-scrub/internal/domain"
	"secure-scrub/internal/runner"
	"secure-scrub/internal/staging"
)

// Pipeline runs strip, optimize, arbitrate and finalize for one file.
type Pipeline struct {
	ops       domain.Operations
	mode      domain.Mode
	stripper  *Stripper
	optimizer *Optimizer
	finalizer *Finalizer
	logger    *zap.Logger
	now       func() time.Time
}

// NewPipeline wires the production stages from settings.
func NewPipeline(
	settings domain.Settings,
	ops domain.Operations,
	mode domain.Mode,
	invoke *runner.Invoker,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	var eraser Eraser
	if mode == domain.ModeReplace {
		eraser = NewShredEraser(settings.Tools.Shred, invoke)
	}
	return &Pipeline{
		ops:       ops,
		mode:      mode,
		stripper:  NewStripper(settings.Tools.ExifTool, invoke),
		optimizer: NewOptimizer(settings, invoke),
		finalizer: NewFinalizer(eraser, logger),
		logger:    logger,
		now:       time.Now,
	}
}

// NewPipelineForTests assembles a pipeline from prebuilt stages.
func NewPipelineForTests(
	ops domain.Operations,
	mode domain.Mode,
	stripper *Stripper,
	optimizer *Optimizer,
	finalizer *Finalizer,
) *Pipeline {
	return &Pipeline{
		ops:       ops,
		mode:      mode,
		stripper:  stripper,
		optimizer: optimizer,
		finalizer: finalizer,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
}

// Process runs every enabled stage for file using part for intermediates and
// returns its outcome. It never returns an error: failures are outcomes.
func (p *Pipeline) Process(
	ctx context.Context,
	file domain.EligibleFile,
	part *staging.Partition,
	onStage func(domain.FileStage),
) domain.Outcome {
	start := p.now()
	outcome := domain.Outcome{
		Source:       file.Path,
		OriginalSize: file.Size,
	}
	fail := func(err error) domain.Outcome {
		outcome.Status = domain.StatusFailed
		outcome.Message = err.Error()
		// a tool killed by cancellation must not read as a tool failure
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			outcome.Reason = ReasonInterrupted
		} else if code, ok := CodeOf(err); ok {
			outcome.Reason = string(code)
		}
		outcome.Duration = p.now().Sub(start)
		p.logger.Warn("file failed", zap.String("path", file.Path), zap.Error(err))
		return outcome
	}

	emit(onStage, domain.FileStageCleaning)
	var (
		cleaned domain.StagedArtifact
		err     error
	)
	if p.ops.Clean {
		cleaned, err = p.stripper.Strip(ctx, file, part)
	} else {
		cleaned, err = Baseline(file, part)
	}
	if err != nil {
		return fail(err)
	}
	outcome.CleanedSize = cleaned.Size

	choice := Choice{Artifact: cleaned, Strategy: domain.StrategyCleaned}
	if p.ops.Optimize {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		emit(onStage, domain.FileStageOptimizing)
		optimized, err := p.optimizer.Optimize(ctx, file, cleaned, part)
		if err != nil {
			return fail(err)
		}
		if optimized.Fallback {
			outcome.Warnings = append(outcome.Warnings, "optimizer fallback: "+optimized.FallbackReason)
			p.logger.Debug("optimizer fallback",
				zap.String("path", file.Path),
				zap.String("reason", optimized.FallbackReason),
			)
		}
		choice = Arbitrate(cleaned, optimized)
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	emit(onStage, domain.FileStageFinalizing)
	commit, err := p.finalizer.Finalize(ctx, file, choice.Artifact, p.ops, p.mode)
	if err != nil {
		return fail(err)
	}

	outcome.Status = domain.StatusSuccess
	outcome.FinalPath = commit.Path
	outcome.FinalSize = choice.Artifact.Size
	outcome.Strategy = choice.Strategy
	outcome.Warnings = append(outcome.Warnings, commit.Warnings...)
	outcome.Duration = p.now().Sub(start)

	p.logger.Debug("file processed",
		zap.String("path", file.Path),
		zap.String("output", commit.Path),
		zap.String("strategy", string(choice.Strategy)),
		zap.Int64("original_bytes", file.Size),
		zap.Int64("final_bytes", outcome.FinalSize),
	)
	return outcome
}

func emit(cb func(domain.FileStage), stage domain.FileStage) {
	if cb != nil {
		cb(stage)
	}
}
