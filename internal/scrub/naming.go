package scrub

import (
	"path/filepath"
	"strings"

	"secure-scrub/internal/domain"
)

// Processed-name markers appended by earlier runs.
const (
	markerCleaned = "_cleaned"
	markerOpt     = "_opt"
)

// DestinationName returns "<stem>_<suffix>.<ext>" keeping the original
// extension spelling.
func DestinationName(file domain.EligibleFile, ops domain.Operations) string {
	return file.Stem + "_" + ops.Suffix() + "." + file.Ext
}

// DestinationPath joins DestinationName onto the file's canonical parent.
func DestinationPath(file domain.EligibleFile, ops domain.Operations) string {
	return filepath.Join(file.Dir, DestinationName(file, ops))
}

// IsProcessedName reports whether base looks like output of a previous run,
// whatever operations produced it.
func IsProcessedName(base string) bool {
	stem := base
	if idx := strings.LastIndex(base, "."); idx > 0 {
		stem = base[:idx]
	}
	return strings.Contains(stem, markerCleaned) || strings.HasSuffix(stem, markerOpt)
}
