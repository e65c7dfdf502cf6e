package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"secure-scrub/internal/domain"
)

// Recognized environment variables.
const (
	EnvConfigFile     = "SCRUB_CONFIG"
	EnvPNGQuality     = "SCRUB_PNG_QUALITY"
	EnvJPEGMaxQuality = "SCRUB_JPEG_MAX_QUALITY"
	EnvPDFPreset      = "SCRUB_PDF_PRESET"
	EnvPDFDevice      = "SCRUB_PDF_DEVICE"
	EnvToolTimeout    = "SCRUB_TOOL_TIMEOUT"
	EnvWorkers        = "SCRUB_WORKERS"
	EnvStagingDir     = "SCRUB_STAGING_DIR"
	EnvLogLevel       = "SCRUB_LOG_LEVEL"
	EnvExifTool       = "SCRUB_EXIFTOOL"
	EnvGhostscript    = "SCRUB_GS"
	EnvPNGQuant       = "SCRUB_PNGQUANT"
	EnvJPEGOptim      = "SCRUB_JPEGOPTIM"
	EnvShred          = "SCRUB_SHRED"
)

// LoadDotEnv loads variables from a .env file without overriding the
// environment. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// EnvOverlay applies SCRUB_* variables from lookup on top of base.
func EnvOverlay(base domain.Settings, lookup func(string) (string, bool)) (domain.Settings, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	cfg := base
	var errs []error

	if v, ok := get(EnvPNGQuality); ok {
		q, err := ParsePNGQuality(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvPNGQuality, err))
		} else {
			cfg.PNGQuality = q
		}
	}
	if v, ok := get(EnvJPEGMaxQuality); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvJPEGMaxQuality, err))
		} else {
			cfg.JPEGMaxQuality = n
		}
	}
	if v, ok := get(EnvPDFPreset); ok {
		cfg.PDFPreset = v
	}
	if v, ok := get(EnvPDFDevice); ok {
		cfg.PDFDevice = v
	}
	if v, ok := get(EnvToolTimeout); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvToolTimeout, err))
		} else {
			cfg.ToolTimeout = d
		}
	}
	if v, ok := get(EnvWorkers); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvWorkers, err))
		} else {
			cfg.Workers = n
		}
	}
	if v, ok := get(EnvStagingDir); ok {
		cfg.StagingDir = v
	}
	if v, ok := get(EnvLogLevel); ok {
		cfg.LogLevel = v
	}
	if v, ok := get(EnvExifTool); ok {
		cfg.Tools.ExifTool = v
	}
	if v, ok := get(EnvGhostscript); ok {
		cfg.Tools.Ghostscript = v
	}
	if v, ok := get(EnvPNGQuant); ok {
		cfg.Tools.PNGQuant = v
	}
	if v, ok := get(EnvJPEGOptim); ok {
		cfg.Tools.JPEGOptim = v
	}
	if v, ok := get(EnvShred); ok {
		cfg.Tools.Shred = v
	}

	if len(errs) > 0 {
		return domain.Settings{}, errors.Join(errs...)
	}
	return cfg, nil
}

// ParsePNGQuality parses "min-max" (e.g. "65-80") or a single "max".
func ParsePNGQuality(raw string) (domain.PNGQuality, error) {
	raw = strings.TrimSpace(raw)
	minPart, maxPart, found := strings.Cut(raw, "-")
	if !found {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return domain.PNGQuality{}, fmt.Errorf("invalid quality %q", raw)
		}
		return domain.PNGQuality{Min: 0, Max: n}, nil
	}

	lo, err := strconv.Atoi(strings.TrimSpace(minPart))
	if err != nil {
		return domain.PNGQuality{}, fmt.Errorf("invalid quality range %q", raw)
	}
	hi, err := strconv.Atoi(strings.TrimSpace(maxPart))
	if err != nil {
		return domain.PNGQuality{}, fmt.Errorf("invalid quality range %q", raw)
	}
	return domain.PNGQuality{Min: lo, Max: hi}, nil
}

// Validate rejects settings the external tools would refuse.
func Validate(cfg domain.Settings) error {
	var errs []error
	q := cfg.PNGQuality
	if q.Min < 0 || q.Max > 100 || q.Max < 1 || q.Min > q.Max {
		errs = append(errs, fmt.Errorf("png quality %d-%d out of range 0-100", q.Min, q.Max))
	}
	if cfg.JPEGMaxQuality < 1 || cfg.JPEGMaxQuality > 100 {
		errs = append(errs, fmt.Errorf("jpeg max quality %d out of range 1-100", cfg.JPEGMaxQuality))
	}
	if strings.TrimSpace(cfg.PDFPreset) == "" {
		errs = append(errs, errors.New("pdf preset is empty"))
	}
	if strings.TrimSpace(cfg.PDFDevice) == "" {
		errs = append(errs, errors.New("pdf device is empty"))
	}
	if cfg.ToolTimeout < 0 {
		errs = append(errs, fmt.Errorf("tool timeout %s is negative", cfg.ToolTimeout))
	}
	if cfg.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers %d must be at least 1", cfg.Workers))
	}
	return errors.Join(errs...)
}

// Normalize trims string fields and restores defaults for emptied values.
func Normalize(cfg domain.Settings) domain.Settings {
	def := DefaultSettings()
	cfg.PDFPreset = strings.TrimSpace(cfg.PDFPreset)
	cfg.PDFDevice = strings.TrimSpace(cfg.PDFDevice)
	cfg.StagingDir = strings.TrimSpace(cfg.StagingDir)
	cfg.LogLevel = strings.TrimSpace(cfg.LogLevel)
	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}
	if cfg.Tools.ExifTool == "" {
		cfg.Tools.ExifTool = def.Tools.ExifTool
	}
	if cfg.Tools.Ghostscript == "" {
		cfg.Tools.Ghostscript = def.Tools.Ghostscript
	}
	if cfg.Tools.PNGQuant == "" {
		cfg.Tools.PNGQuant = def.Tools.PNGQuant
	}
	if cfg.Tools.JPEGOptim == "" {
		cfg.Tools.JPEGOptim = def.Tools.JPEGOptim
	}
	if cfg.Tools.Shred == "" {
		cfg.Tools.Shred = def.Tools.Shred
	}
	return cfg
}
