package scrub

import (
	"errors"
	"fmt"

	"secure-scrub/internal/runner"
)

// Stage names where a per-file failure happened.
const (
	StageClean    = "clean"
	StageOptimize = "optimize"
	StageFinalize = "finalize"
	StageStaging  = "staging"
)

// Code classifies per-file failures for the outcome table.
type Code string

const (
	CodeCleanFailed       Code = "CleanFailed"
	CodeStagingFailed     Code = "StagingFailed"
	CodeDestinationExists Code = "DestinationExists"
	CodeUnsafeDestination Code = "UnsafeDestination"
	CodeFinalizeFailed    Code = "FinalizeFailed"
)

// ReasonInterrupted marks files stopped by cancellation.
const ReasonInterrupted = "Interrupted"

// PipelineError is a stage-aware error with optional command context.
type PipelineError struct {
	Stage      string            `json:"stage"`
	Code       Code              `json:"code"`
	Message    string            `json:"message"`
	CommandLog runner.CommandLog `json:"commandLog"`
	Err        error             `json:"-"`
}

// Error formats pipeline failures for logs and the outcome table.
func (e *PipelineError) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog.Command == "" {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}

	return fmt.Sprintf(
		"%s: %s (cmd=%s exit=%d)",
		e.Stage,
		e.Message,
		e.CommandLog.Command,
		e.CommandLog.ExitCode,
	)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *PipelineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// CodeOf extracts the failure code from err.
func CodeOf(err error) (Code, bool) {
	var perr *PipelineError
	if errors.As(err, &perr) {
		return perr.Code, true
	}
	return "", false
}

func stagingError(message string, err error) *PipelineError {
	return &PipelineError{
		Stage:   StageStaging,
		Code:    CodeStagingFailed,
		Message: message,
		Err:     err,
	}
}

func finalizeError(code Code, message string, err error) *PipelineError {
	return &PipelineError{
		Stage:   StageFinalize,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
