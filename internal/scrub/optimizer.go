package scrub

import (
	"context"
	"fmt"
	"os"

	"secure-scrub/internal/domain"
	"secure-scrub/internal/inspect"
	"secure-scrub/internal/runner"
	"secure-scrub/internal/staging"
)

// OptimizeResult is the Optimized artifact plus whether it is a fallback
// copy of the Cleaned input.
type OptimizeResult struct {
	Artifact       domain.StagedArtifact
	Fallback       bool
	FallbackReason string
}

// strategy runs one format's external optimizer from src into dst.
type strategy interface {
	optimize(ctx context.Context, src, dst string) error
}

// Optimizer dispatches a staged artifact to its format strategy.
type Optimizer struct {
	strategies map[domain.Format]strategy
	checkImage func(path string) error
	stat       func(string) (os.FileInfo, error)
}

// NewOptimizer builds the PDF, PNG and JPEG strategies from settings.
func NewOptimizer(settings domain.Settings, invoke *runner.Invoker) *Optimizer {
	return newOptimizer(settings, invoke, inspect.ValidateImage)
}

// NewOptimizerForTests allows replacing the in-process image decode check.
func NewOptimizerForTests(settings domain.Settings, invoke *runner.Invoker, checkImage func(string) error) *Optimizer {
	return newOptimizer(settings, invoke, checkImage)
}

func newOptimizer(settings domain.Settings, invoke *runner.Invoker, checkImage func(string) error) *Optimizer {
	return &Optimizer{
		strategies: map[domain.Format]strategy{
			domain.FormatPDF: &pdfStrategy{
				tool:   settings.Tools.Ghostscript,
				preset: settings.PDFPreset,
				device: settings.PDFDevice,
				invoke: invoke,
			},
			domain.FormatPNG: &pngStrategy{
				tool:    settings.Tools.PNGQuant,
				quality: settings.PNGQuality,
				invoke:  invoke,
			},
			domain.FormatJPEG: &jpegStrategy{
				tool:       settings.Tools.JPEGOptim,
				maxQuality: settings.JPEGMaxQuality,
				invoke:     invoke,
			},
		},
		checkImage: checkImage,
		stat:       os.Stat,
	}
}

// Supports reports whether format has a registered strategy.
func (o *Optimizer) Supports(format domain.Format) bool {
	_, ok := o.strategies[format]
	return ok
}

// Optimize produces the Optimized artifact for file. Optimizer failures are
// absorbed into a fallback copy of cleaned; the returned error is only set
// when even that copy cannot be staged.
func (o *Optimizer) Optimize(
	ctx context.Context,
	file domain.EligibleFile,
	cleaned domain.StagedArtifact,
	part *staging.Partition,
) (OptimizeResult, error) {
	dst := part.Path(file.Base, domain.StageOptimized)

	reason := o.run(ctx, file.Format, cleaned.Path, dst)
	if reason == nil {
		size, err := nonEmptySize(o.stat, dst)
		if err != nil {
			reason = fmt.Errorf("optimizer output unusable: %w", err)
		} else {
			return OptimizeResult{
				Artifact: domain.StagedArtifact{Path: dst, Stage: domain.StageOptimized, Size: size},
			}, nil
		}
	}

	_ = os.Remove(dst)
	n, err := copyFile(cleaned.Path, dst, 0o600)
	if err != nil {
		return OptimizeResult{}, stagingError("cannot stage fallback copy", err)
	}
	return OptimizeResult{
		Artifact:       domain.StagedArtifact{Path: dst, Stage: domain.StageOptimized, Size: n},
		Fallback:       true,
		FallbackReason: reason.Error(),
	}, nil
}

func (o *Optimizer) run(ctx context.Context, format domain.Format, src, dst string) error {
	strat, ok := o.strategies[format]
	if !ok {
		return fmt.Errorf("no optimizer for format %q", format)
	}
	if err := strat.optimize(ctx, src, dst); err != nil {
		return err
	}

	if o.checkImage != nil && (format == domain.FormatPNG || format == domain.FormatJPEG) {
		if err := o.checkImage(dst); err != nil {
			return fmt.Errorf("optimizer output invalid: %w", err)
		}
	}
	return nil
}

// pdfStrategy rewrites with Ghostscript and re-parses the result.
type pdfStrategy struct {
	tool   string
	preset string
	device string
	invoke *runner.Invoker
}

func (s *pdfStrategy) optimize(ctx context.Context, src, dst string) error {
	if _, err := s.invoke.Invoke(ctx, s.tool, buildGhostscriptArgs(s.device, s.preset, src, dst)...); err != nil {
		return fmt.Errorf("pdf rewrite failed: %w", err)
	}
	if _, err := os.Stat(dst); err != nil {
		return fmt.Errorf("pdf rewrite produced no output: %w", err)
	}
	if _, err := s.invoke.Invoke(ctx, s.tool, buildGhostscriptValidateArgs(dst)...); err != nil {
		return fmt.Errorf("pdf validation failed: %w", err)
	}
	return nil
}

// pngStrategy quantizes with pngquant.
type pngStrategy struct {
	tool    string
	quality domain.PNGQuality
	invoke  *runner.Invoker
}

func (s *pngStrategy) optimize(ctx context.Context, src, dst string) error {
	if _, err := s.invoke.Invoke(ctx, s.tool, buildPNGQuantArgs(s.quality, src, dst)...); err != nil {
		return fmt.Errorf("png compression failed: %w", err)
	}
	return nil
}

// jpegStrategy recompresses a copy in place with jpegoptim.
type jpegStrategy struct {
	tool       string
	maxQuality int
	invoke     *runner.Invoker
}

func (s *jpegStrategy) optimize(ctx context.Context, src, dst string) error {
	if _, err := copyFile(src, dst, 0o600); err != nil {
		return fmt.Errorf("stage jpeg copy: %w", err)
	}
	if _, err := s.invoke.Invoke(ctx, s.tool, buildJPEGOptimArgs(s.maxQuality, dst)...); err != nil {
		return fmt.Errorf("jpeg recompression failed: %w", err)
	}
	return nil
}

func buildGhostscriptArgs(device, preset, src, dst string) []string {
	return []string{
		"-sDEVICE=" + device,
		"-dPDFSETTINGS=" + preset,
		"-dCompatibilityLevel=1.4",
		"-dSAFER",
		"-dNOPAUSE",
		"-dBATCH",
		"-dQUIET",
		"-sOutputFile=" + dst,
		src,
	}
}

// buildGhostscriptValidateArgs re-interprets dst without rendering.
func buildGhostscriptValidateArgs(dst string) []string {
	return []string{
		"-dNODISPLAY",
		"-dSAFER",
		"-dNOPAUSE",
		"-dBATCH",
		"-dQUIET",
		dst,
	}
}

func buildPNGQuantArgs(q domain.PNGQuality, src, dst string) []string {
	return []string{
		fmt.Sprintf("--quality=%d-%d", q.Min, q.Max),
		"--strip",
		"--force",
		"--output", dst,
		"--",
		src,
	}
}

func buildJPEGOptimArgs(maxQuality int, dst string) []string {
	return []string{
		fmt.Sprintf("--max=%d", maxQuality),
		"--strip-all",
		"--quiet",
		dst,
	}
}
