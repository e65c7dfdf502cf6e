package diagnostics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shirou/gopsutil/v3/disk"

	"secure-scrub/internal/config"
	"secure-scrub/internal/domain"
)

func plentyOfSpace(path string) (*disk.UsageStat, error) {
	return &disk.UsageStat{Path: path, Total: 100 << 30, Free: 50 << 30}, nil
}

// TestCheckerRunAllPass validates happy-path diagnostics report.
func TestCheckerRunAllPass(t *testing.T) {
	root := t.TempDir()
	checker := NewCheckerForTests(
		func(name string) (string, error) { return "/usr/local/bin/" + name, nil },
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
		plentyOfSpace,
		func() string { return root },
	)

	report := checker.Run(config.DefaultSettings(), domain.AllOperations(), domain.ModeReplace)

	if report.HasFailures {
		t.Fatalf("expected no failures, got %+v", report.Items)
	}
	for _, id := range []string{"tool_exiftool", "tool_gs", "tool_pngquant", "tool_jpegoptim", "tool_shred", "staging_dir", "staging_space"} {
		assertStatusByID(t, report, id, domain.DiagnosticStatusPass)
	}
}

// TestCheckerRunMissingToolsAndPaths validates failure reporting.
func TestCheckerRunMissingToolsAndPaths(t *testing.T) {
	checker := NewCheckerForTests(
		func(string) (string, error) { return "", errors.New("not found") },
		func(string, os.FileMode) error { return errors.New("read-only filesystem") },
		os.CreateTemp,
		os.Remove,
		plentyOfSpace,
		os.TempDir,
	)

	report := checker.Run(config.DefaultSettings(), domain.AllOperations(), domain.ModeReplace)

	if !report.HasFailures {
		t.Fatal("expected failures")
	}

	assertStatusByID(t, report, "tool_exiftool", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "tool_gs", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "tool_pngquant", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "tool_jpegoptim", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "tool_shred", domain.DiagnosticStatusWarn)
	assertStatusByID(t, report, "staging_dir", domain.DiagnosticStatusFail)
}

// TestCheckerRunChecksOnlyNeededTools validates operation-scoped tool checks.
func TestCheckerRunChecksOnlyNeededTools(t *testing.T) {
	checker := NewCheckerForTests(
		func(name string) (string, error) {
			if name == "exiftool" {
				return "/usr/bin/exiftool", nil
			}
			return "", errors.New("not found")
		},
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
		plentyOfSpace,
		os.TempDir,
	)

	settings := config.DefaultSettings()
	settings.StagingDir = filepath.Join(t.TempDir(), "staging")
	report := checker.Run(settings, domain.Operations{Clean: true}, domain.ModeCopy)

	if report.HasFailures {
		t.Fatalf("clean-only copy run should not need optimizers: %+v", report.Items)
	}
	if _, ok := report.Item("tool_gs"); ok {
		t.Fatal("gs checked for clean-only run")
	}
	if _, ok := report.Item("tool_shred"); ok {
		t.Fatal("shred checked for copy mode")
	}
}

// TestCheckerRunLowSpaceWarns validates the free-space floor.
func TestCheckerRunLowSpaceWarns(t *testing.T) {
	root := t.TempDir()
	checker := NewCheckerForTests(
		func(name string) (string, error) { return "/usr/bin/" + name, nil },
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
		func(path string) (*disk.UsageStat, error) {
			return &disk.UsageStat{Path: path, Total: 1 << 30, Free: 1 << 20}, nil
		},
		func() string { return root },
	)

	report := checker.Run(config.DefaultSettings(), domain.AllOperations(), domain.ModeCopy)

	if report.HasFailures {
		t.Fatalf("low space must not fail the report: %+v", report.Items)
	}
	assertStatusByID(t, report, "staging_space", domain.DiagnosticStatusWarn)
}

// assertStatusByID checks status for one diagnostic item by ID.
func assertStatusByID(t *testing.T, report domain.DiagnosticReport, id string, want domain.DiagnosticStatus) {
	t.Helper()
	item, ok := report.Item(id)
	if !ok {
		t.Fatalf("diagnostic item not found: %s", id)
	}
	if item.Status != want {
		t.Fatalf("item %s: got %s, want %s", id, item.Status, want)
	}
}
