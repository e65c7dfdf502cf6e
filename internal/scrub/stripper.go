package scrub

import (
	"context"
	"os"

	"secure-scrub/internal/domain"
	"secure-scrub/internal/runner"
	"secure-scrub/internal/staging"
)

// Stripper produces a metadata-free staged copy of a source file.
type Stripper struct {
	tool     string
	invoke   *runner.Invoker
	stat     func(string) (os.FileInfo, error)
	collapse func(string) error
}

// NewStripper builds a stripper around the exiftool executable.
func NewStripper(tool string, invoke *runner.Invoker) *Stripper {
	return &Stripper{tool: tool, invoke: invoke, stat: os.Stat, collapse: collapseRevisions}
}

// Strip writes a cleaned copy into part. The source is only read.
func (s *Stripper) Strip(ctx context.Context, file domain.EligibleFile, part *staging.Partition) (domain.StagedArtifact, error) {
	dst := part.Path(file.Base, domain.StageCleaned)
	args := buildExifToolArgs(file.Path, dst)

	log, err := s.invoke.Invoke(ctx, s.tool, args...)
	if err != nil {
		_ = os.Remove(dst)
		return domain.StagedArtifact{}, &PipelineError{
			Stage:      StageClean,
			Code:       CodeCleanFailed,
			Message:    "metadata removal failed",
			CommandLog: log,
			Err:        err,
		}
	}

	// a zero-byte result is a failure even when the tool exits 0
	size, err := nonEmptySize(s.stat, dst)
	if err != nil {
		_ = os.Remove(dst)
		return domain.StagedArtifact{}, &PipelineError{
			Stage:      StageClean,
			Code:       CodeCleanFailed,
			Message:    "metadata removal produced no usable output",
			CommandLog: log,
			Err:        err,
		}
	}

	if file.Format == domain.FormatPDF {
		if err := s.collapse(dst); err != nil {
			_ = os.Remove(dst)
			return domain.StagedArtifact{}, &PipelineError{
				Stage:      StageClean,
				Code:       CodeCleanFailed,
				Message:    "earlier pdf revisions could not be removed",
				CommandLog: log,
				Err:        err,
			}
		}
		if size, err = nonEmptySize(s.stat, dst); err != nil {
			_ = os.Remove(dst)
			return domain.StagedArtifact{}, &PipelineError{
				Stage:      StageClean,
				Code:       CodeCleanFailed,
				Message:    "pdf rewrite produced no usable output",
				CommandLog: log,
				Err:        err,
			}
		}
	}

	return domain.StagedArtifact{Path: dst, Stage: domain.StageCleaned, Size: size}, nil
}

// Baseline stages an unmodified copy for optimize-only runs so the size
// arbiter still has something to compare against.
func Baseline(file domain.EligibleFile, part *staging.Partition) (domain.StagedArtifact, error) {
	dst := part.Path(file.Base, domain.StageCleaned)
	n, err := copyFile(file.Path, dst, 0o600)
	if err != nil {
		return domain.StagedArtifact{}, stagingError("cannot stage source copy", err)
	}
	if n == 0 {
		_ = os.Remove(dst)
		return domain.StagedArtifact{}, stagingError("source file is empty", nil)
	}
	return domain.StagedArtifact{Path: dst, Stage: domain.StageCleaned, Size: n}, nil
}

// buildExifToolArgs strips every writable tag and writes to a new file.
func buildExifToolArgs(src, dst string) []string {
	return []string{
		"-q",
		"-all=",
		"-o", dst,
		src,
	}
}
