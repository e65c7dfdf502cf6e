package config

import (
	"time"

	"secure-scrub/internal/domain"
)

// DefaultFileName is read from the working directory when no settings file is named.
const DefaultFileName = "scrub.yaml"

const (
	DefaultPNGQualityMin  = 65
	DefaultPNGQualityMax  = 80
	DefaultJPEGMaxQuality = 80
	DefaultPDFPreset      = "/ebook"
	DefaultPDFDevice      = "pdfwrite"
	DefaultToolTimeout    = 5 * time.Minute
	DefaultWorkers        = 1
	DefaultLogLevel       = "info"
)

// DefaultSettings returns the baseline configuration used when nothing is set.
func DefaultSettings() domain.Settings {
	return domain.Settings{
		PNGQuality: domain.PNGQuality{
			Min: DefaultPNGQualityMin,
			Max: DefaultPNGQualityMax,
		},
		JPEGMaxQuality: DefaultJPEGMaxQuality,
		PDFPreset:      DefaultPDFPreset,
		PDFDevice:      DefaultPDFDevice,
		ToolTimeout:    DefaultToolTimeout,
		Workers:        DefaultWorkers,
		LogLevel:       DefaultLogLevel,
		Tools:          DefaultToolPaths(),
	}
}

// DefaultToolPaths resolves tools by name on PATH.
func DefaultToolPaths() domain.ToolPaths {
	return domain.ToolPaths{
		ExifTool:    "exiftool",
		Ghostscript: "gs",
		PNGQuant:    "pngquant",
		JPEGOptim:   "jpegoptim",
		Shred:       "shred",
	}
}
