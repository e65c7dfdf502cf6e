package bootstrap

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"secure-scrub/internal/domain"
	"secure-scrub/internal/jobs"
)

// runReport is the JSON document written by --report.
type runReport struct {
	GeneratedAt time.Time          `json:"generatedAt"`
	Mode        domain.Mode        `json:"mode"`
	Operations  domain.Operations  `json:"operations"`
	Settings    domain.Settings    `json:"settings"`
	Result      domain.BatchResult `json:"result"`
	Events      []jobs.Event       `json:"events"`
}

// writeReport stores report at path via a temp file and rename so readers
// never see a partial document.
func writeReport(path string, report runReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".scrub-report-*.json")
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
