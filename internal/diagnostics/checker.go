package diagnostics

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/disk"

	"secure-scrub/internal/domain"
)

// MinFreeBytes is the free-space floor below which the staging check warns.
const MinFreeBytes uint64 = 256 << 20

// Checker validates external tools and the staging location.
type Checker struct {
	lookPath   func(string) (string, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
	usage      func(string) (*disk.UsageStat, error)
	tempDir    func() string
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:   exec.LookPath,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
		usage:      disk.Usage,
		tempDir:    os.TempDir,
	}
}

// Run executes all startup checks for the given operations and mode.
func (c *Checker) Run(settings domain.Settings, ops domain.Operations, mode domain.Mode) domain.DiagnosticReport {
	var items []domain.DiagnosticItem
	for _, spec := range domain.RequiredTools(settings.Tools, ops, mode) {
		items = append(items, c.checkTool(spec))
	}

	stagingDir := strings.TrimSpace(settings.StagingDir)
	if stagingDir == "" {
		stagingDir = c.tempDir()
	}
	items = append(items, c.checkStagingDir(stagingDir))
	items = append(items, c.checkFreeSpace(stagingDir))

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkTool verifies a CLI executable resolves. Optional tools only warn.
func (c *Checker) checkTool(spec domain.ToolSpec) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "tool_" + spec.ID,
		Name: fmt.Sprintf("%s (%s)", spec.ID, spec.Purpose),
	}

	path, err := c.lookPath(spec.Command)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		if !spec.Required {
			item.Status = domain.DiagnosticStatusWarn
		}
		item.Message = fmt.Sprintf("Tool not found in PATH: %s", spec.Command)
		item.Hint = spec.Hint
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Found at %s", path)
	return item
}

// checkStagingDir validates the staging root exists and accepts new files.
func (c *Checker) checkStagingDir(dir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "staging_dir",
		Name: "Staging directory",
	}

	if err := c.mkdirAll(dir, 0o700); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create staging directory: %s", dir)
		item.Hint = "Set staging_dir (or SCRUB_STAGING_DIR) to a writable location."
		return item
	}

	tmpFile, err := c.createTemp(dir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Staging directory is not writable: %s", dir)
		item.Hint = "Set staging_dir (or SCRUB_STAGING_DIR) to a writable location."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", dir)
	return item
}

// checkFreeSpace warns when the staging filesystem is nearly full.
func (c *Checker) checkFreeSpace(dir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "staging_space",
		Name: "Staging free space",
	}

	stat, err := c.usage(dir)
	if err != nil {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = fmt.Sprintf("Cannot query free space for %s: %v", dir, err)
		return item
	}

	if stat.Free < MinFreeBytes {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = fmt.Sprintf("Only %s free on %s", humanize.IBytes(stat.Free), stat.Path)
		item.Hint = "Staged copies of every file are written here; free some space or move staging_dir."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("%s free of %s", humanize.IBytes(stat.Free), humanize.IBytes(stat.Total))
	return item
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
	usage func(string) (*disk.UsageStat, error),
	tempDir func() string,
) *Checker {
	return &Checker{
		lookPath:   lookPath,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
		usage:      usage,
		tempDir:    tempDir,
	}
}
