package config

import (
	"fmt"
	"os"
	"strings"

	"secure-scrub/internal/domain"
)

// LoadOptions selects the configuration sources for Load.
type LoadOptions struct {
	// File is an explicit YAML settings path; empty falls back to SCRUB_CONFIG,
	// then DefaultFileName.
	File string
	// DotEnv is the .env path loaded before reading the environment.
	DotEnv string
	// SkipDotEnv disables .env loading (tests).
	SkipDotEnv bool
	// Lookup overrides environment access (tests).
	Lookup func(string) (string, bool)
}

// Load layers defaults, the YAML file, .env and SCRUB_* variables into one
// validated settings value. It returns the settings file path actually used.
func Load(opts LoadOptions) (domain.Settings, string, error) {
	if !opts.SkipDotEnv {
		if err := LoadDotEnv(opts.DotEnv); err != nil {
			return domain.Settings{}, "", err
		}
	}

	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	path := strings.TrimSpace(opts.File)
	if path == "" {
		if v, ok := lookup(EnvConfigFile); ok {
			path = strings.TrimSpace(v)
		}
	}
	if path == "" {
		path = DefaultFileName
	}

	cfg, err := NewYAMLStore(path).Load()
	if err != nil {
		return domain.Settings{}, path, fmt.Errorf("load settings: %w", err)
	}

	cfg, err = EnvOverlay(cfg, lookup)
	if err != nil {
		return domain.Settings{}, path, fmt.Errorf("environment: %w", err)
	}

	cfg = Normalize(cfg)
	if err := Validate(cfg); err != nil {
		return domain.Settings{}, path, fmt.Errorf("invalid settings: %w", err)
	}
	return cfg, path, nil
}

// DotEnvTemplate is written by "scrub config init".
const DotEnvTemplate = `# secure-scrub environment overrides (all optional)
# SCRUB_PNG_QUALITY=65-80
# SCRUB_JPEG_MAX_QUALITY=80
# SCRUB_PDF_PRESET=/ebook
# SCRUB_PDF_DEVICE=pdfwrite
# SCRUB_TOOL_TIMEOUT=5m
# SCRUB_WORKERS=1
# SCRUB_STAGING_DIR=
# SCRUB_LOG_LEVEL=info
`
