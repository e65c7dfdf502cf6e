package domain

// ToolSpec describes one external command the pipeline may invoke.
type ToolSpec struct {
	ID       string `json:"id"`
	Command  string `json:"command"`
	Purpose  string `json:"purpose"`
	Required bool   `json:"required"`
	Hint     string `json:"hint,omitempty"`
}

// RequiredTools returns the tool set needed for the given operations and mode.
// The secure-erase utility is optional: its absence downgrades to a warning.
func RequiredTools(paths ToolPaths, ops Operations, mode Mode) []ToolSpec {
	var specs []ToolSpec
	if ops.Clean {
		specs = append(specs, ToolSpec{
			ID:       "exiftool",
			Command:  paths.ExifTool,
			Purpose:  "metadata removal",
			Required: true,
			Hint:     "Install exiftool (libimage-exiftool-perl / perl-Image-ExifTool).",
		})
	}
	if ops.Optimize {
		specs = append(specs,
			ToolSpec{
				ID:       "gs",
				Command:  paths.Ghostscript,
				Purpose:  "PDF rewrite and validation",
				Required: true,
				Hint:     "Install Ghostscript.",
			},
			ToolSpec{
				ID:       "pngquant",
				Command:  paths.PNGQuant,
				Purpose:  "lossy PNG compression",
				Required: true,
				Hint:     "Install pngquant.",
			},
			ToolSpec{
				ID:       "jpegoptim",
				Command:  paths.JPEGOptim,
				Purpose:  "JPEG recompression",
				Required: true,
				Hint:     "Install jpegoptim.",
			},
		)
	}
	if mode == ModeReplace {
		specs = append(specs, ToolSpec{
			ID:      "shred",
			Command: paths.Shred,
			Purpose: "secure erase of replaced originals",
			Hint:    "Install coreutils shred; without it originals are unlinked without overwrite.",
		})
	}
	return specs
}
