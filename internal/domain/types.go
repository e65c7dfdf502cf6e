package domain

import (
	"strings"
	"time"
)

// Format is the closed set of file formats the pipeline can process.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
)

// AllFormats lists every supported format in a stable order.
var AllFormats = []Format{FormatPDF, FormatPNG, FormatJPEG}

// ParseFormat maps a file extension (with or without dot, any case) to a format.
func ParseFormat(ext string) (Format, bool) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "pdf":
		return FormatPDF, true
	case "png":
		return FormatPNG, true
	case "jpg", "jpeg":
		return FormatJPEG, true
	default:
		return "", false
	}
}

// Mode selects how a finished artifact is committed.
type Mode string

const (
	ModeCopy    Mode = "copy"
	ModeReplace Mode = "replace"
)

// Operations selects which pipeline stages run for every file.
type Operations struct {
	Clean    bool `json:"clean" yaml:"clean"`
	Optimize bool `json:"optimize" yaml:"optimize"`
}

// AllOperations enables both metadata stripping and optimization.
func AllOperations() Operations {
	return Operations{Clean: true, Optimize: true}
}

// Any reports whether at least one stage is enabled.
func (o Operations) Any() bool {
	return o.Clean || o.Optimize
}

// Suffix returns the name marker appended to output files.
func (o Operations) Suffix() string {
	switch {
	case o.Clean && o.Optimize:
		return "cleaned_opt"
	case o.Clean:
		return "cleaned"
	case o.Optimize:
		return "opt"
	default:
		return ""
	}
}

// TargetKind classifies a user-supplied path.
type TargetKind string

const (
	TargetFile      TargetKind = "file"
	TargetDirectory TargetKind = "directory"
	TargetInvalid   TargetKind = "invalid"
)

// Target is one user-supplied path awaiting processing.
type Target struct {
	Raw       string     `json:"raw"`
	Canonical string     `json:"canonical,omitempty"`
	Kind      TargetKind `json:"kind"`
}

// EligibleFile is a validated, canonical, supported-format regular file.
type EligibleFile struct {
	Path   string `json:"path"`
	Dir    string `json:"dir"`
	Base   string `json:"base"`
	Stem   string `json:"stem"`
	Ext    string `json:"ext"`
	Format Format `json:"format"`
	Size   int64  `json:"size"`
}

// Stage tags an intermediate artifact.
type Stage string

const (
	StageCleaned   Stage = "cleaned"
	StageOptimized Stage = "optimized"
)

// StagedArtifact is an intermediate file living inside the staging area.
type StagedArtifact struct {
	Path  string `json:"path"`
	Stage Stage  `json:"stage"`
	Size  int64  `json:"size"`
}

// Strategy names which artifact was committed for a file.
type Strategy string

const (
	StrategyOptimized Strategy = "optimized"
	StrategyCleaned   Strategy = "cleaned"
	StrategyFallback  Strategy = "fallback"
)

// OutcomeStatus is the per-file result classification.
type OutcomeStatus string

const (
	StatusSuccess OutcomeStatus = "success"
	StatusSkipped OutcomeStatus = "skipped"
	StatusFailed  OutcomeStatus = "failed"
)

func (s OutcomeStatus) rank() int {
	switch s {
	case StatusFailed:
		return 2
	case StatusSkipped:
		return 1
	default:
		return 0
	}
}

// Outcome is the immutable per-file result of one pipeline run.
type Outcome struct {
	Source       string        `json:"source"`
	Status       OutcomeStatus `json:"status"`
	Reason       string        `json:"reason,omitempty"`
	OriginalSize int64         `json:"originalSize"`
	CleanedSize  int64         `json:"cleanedSize,omitempty"`
	FinalSize    int64         `json:"finalSize"`
	FinalPath    string        `json:"finalPath,omitempty"`
	Strategy     Strategy      `json:"strategy,omitempty"`
	Message      string        `json:"message,omitempty"`
	Warnings     []string      `json:"warnings,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// BatchResult aggregates outcomes of one batch run.
type BatchResult struct {
	RunID     string        `json:"runId"`
	Outcomes  []Outcome     `json:"outcomes"`
	Succeeded int           `json:"succeeded"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Worst     OutcomeStatus `json:"worst"`
}

// NewBatchResult counts outcomes and derives the worst status.
func NewBatchResult(runID string, outcomes []Outcome) BatchResult {
	result := BatchResult{
		RunID:    runID,
		Outcomes: outcomes,
		Worst:    StatusSuccess,
	}
	for _, outcome := range outcomes {
		switch outcome.Status {
		case StatusSuccess:
			result.Succeeded++
		case StatusSkipped:
			result.Skipped++
		case StatusFailed:
			result.Failed++
		}
		if outcome.Status.rank() > result.Worst.rank() {
			result.Worst = outcome.Status
		}
	}
	return result
}

// ExitCode maps the batch to a process exit status; skips never fail a run.
func (r BatchResult) ExitCode() int {
	if r.Failed > 0 {
		return 1
	}
	return 0
}

// Progress is emitted once per file when its outcome is known.
type Progress struct {
	Path         string        `json:"path"`
	Status       OutcomeStatus `json:"status"`
	OriginalSize int64         `json:"originalSize"`
	FinalSize    int64         `json:"finalSize"`
	Strategy     Strategy      `json:"strategy,omitempty"`
	Done         int           `json:"done"`
	Total        int           `json:"total"`
}

// PNGQuality is an inclusive pngquant quality range.
type PNGQuality struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

// ToolPaths names the executables invoked for each external collaborator.
type ToolPaths struct {
	ExifTool    string `json:"exiftool" yaml:"exiftool"`
	Ghostscript string `json:"gs" yaml:"gs"`
	PNGQuant    string `json:"pngquant" yaml:"pngquant"`
	JPEGOptim   string `json:"jpegoptim" yaml:"jpegoptim"`
	Shred       string `json:"shred" yaml:"shred"`
}

// Settings is the immutable runtime configuration passed into the pipeline.
type Settings struct {
	PNGQuality     PNGQuality    `json:"pngQuality" yaml:"png_quality"`
	JPEGMaxQuality int           `json:"jpegMaxQuality" yaml:"jpeg_max_quality"`
	PDFPreset      string        `json:"pdfPreset" yaml:"pdf_preset"`
	PDFDevice      string        `json:"pdfDevice" yaml:"pdf_device"`
	ToolTimeout    time.Duration `json:"toolTimeout" yaml:"tool_timeout"`
	Workers        int           `json:"workers" yaml:"workers"`
	StagingDir     string        `json:"stagingDir" yaml:"staging_dir"`
	LogLevel       string        `json:"logLevel" yaml:"log_level"`
	Tools          ToolPaths     `json:"tools" yaml:"tools"`
}
