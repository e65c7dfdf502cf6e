package pathsafe

import (
	"path/filepath"
	"strings"
	"unicode"
)

const maxNameLength = 128

// SanitizeBaseName reduces an arbitrary file name to a single safe path
// element: no separators, no parent references, no control characters.
func SanitizeBaseName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '/' || r == '\\':
			b.WriteRune('_')
		case r == 0 || unicode.IsControl(r):
			continue
		default:
			b.WriteRune(r)
		}
	}

	out := b.String()
	for strings.Contains(out, "..") {
		out = strings.ReplaceAll(out, "..", ".")
	}
	out = strings.Trim(out, ". ")
	if runes := []rune(out); len(runes) > maxNameLength {
		out = string(runes[:maxNameLength])
	}
	if out == "" {
		return "file"
	}
	return out
}

// WithinDir reports whether path sits directly inside dir. Both are compared
// after lexical cleaning; callers pass canonical directories.
func WithinDir(dir, path string) bool {
	if dir == "" || path == "" {
		return false
	}
	cleanDir := filepath.Clean(dir)
	cleanPath := filepath.Clean(path)
	if cleanPath == cleanDir {
		return false
	}
	return filepath.Dir(cleanPath) == cleanDir
}

// CanonicalParent resolves symlinks in the parent of path.
func CanonicalParent(path string) (string, error) {
	parent, err := filepath.EvalSymlinks(filepath.Dir(path))
	if err != nil {
		return "", err
	}
	return filepath.Clean(parent), nil
}
