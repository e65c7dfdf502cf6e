package pathsafe

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"secure-scrub/internal/domain"
)

// Reason names why a path was rejected before any processing.
type Reason string

const (
	ReasonNotFound           Reason = "NotFound"
	ReasonSymlinkUnsupported Reason = "SymlinkUnsupported"
	ReasonNotRegularFile     Reason = "NotRegularFile"
	ReasonUnresolvablePath   Reason = "UnresolvablePath"
	ReasonNoExtension        Reason = "NoExtension"
	ReasonUnsupportedType    Reason = "UnsupportedType"
)

// Skippable reports whether a rejection is a benign skip rather than a failure.
func (r Reason) Skippable() bool {
	return r == ReasonNoExtension || r == ReasonUnsupportedType
}

// RejectError is returned when a raw path cannot become an EligibleFile.
type RejectError struct {
	Path   string
	Reason Reason
	Err    error
}

// Error formats the rejection for logs and the outcome table.
func (e *RejectError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Reason, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Path)
}

// Unwrap exposes the underlying filesystem error.
func (e *RejectError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ReasonOf extracts the rejection reason from err, if any.
func ReasonOf(err error) (Reason, bool) {
	var rej *RejectError
	if errors.As(err, &rej) {
		return rej.Reason, true
	}
	return "", false
}

// Resolver canonicalizes and validates single input paths.
type Resolver struct {
	lstat        func(string) (os.FileInfo, error)
	abs          func(string) (string, error)
	evalSymlinks func(string) (string, error)
}

// NewResolver builds a resolver using real OS dependencies.
func NewResolver() *Resolver {
	return &Resolver{
		lstat:        os.Lstat,
		abs:          filepath.Abs,
		evalSymlinks: filepath.EvalSymlinks,
	}
}

// NewResolverForTests creates a resolver with injectable dependencies.
func NewResolverForTests(
	lstat func(string) (os.FileInfo, error),
	abs func(string) (string, error),
	evalSymlinks func(string) (string, error),
) *Resolver {
	return &Resolver{lstat: lstat, abs: abs, evalSymlinks: evalSymlinks}
}

// Classify determines whether raw names a file, a directory, or nothing usable.
// Directory symlinks are classified as files so Resolve rejects them.
func (r *Resolver) Classify(raw string) domain.Target {
	target := domain.Target{Raw: raw, Kind: domain.TargetInvalid}
	if strings.TrimSpace(raw) == "" {
		return target
	}

	info, err := r.lstat(raw)
	if err != nil {
		return target
	}
	if info.IsDir() {
		target.Kind = domain.TargetDirectory
		if canonical, err := r.canonical(raw); err == nil {
			target.Canonical = canonical
		}
		return target
	}

	target.Kind = domain.TargetFile
	return target
}

// Resolve validates raw and returns the canonical eligible file. It performs
// no writes; the only filesystem access is lstat and symlink evaluation.
func (r *Resolver) Resolve(raw string) (domain.EligibleFile, error) {
	if strings.TrimSpace(raw) == "" {
		return domain.EligibleFile{}, &RejectError{Path: raw, Reason: ReasonNotFound}
	}

	// lstat first: a symlink must never be followed between check and use.
	info, err := r.lstat(raw)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.EligibleFile{}, &RejectError{Path: raw, Reason: ReasonNotFound, Err: err}
		}
		return domain.EligibleFile{}, &RejectError{Path: raw, Reason: ReasonUnresolvablePath, Err: err}
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return domain.EligibleFile{}, &RejectError{Path: raw, Reason: ReasonSymlinkUnsupported}
	}
	if !info.Mode().IsRegular() {
		return domain.EligibleFile{}, &RejectError{Path: raw, Reason: ReasonNotRegularFile}
	}

	canonical, err := r.canonical(raw)
	if err != nil {
		return domain.EligibleFile{}, &RejectError{Path: raw, Reason: ReasonUnresolvablePath, Err: err}
	}

	base := filepath.Base(canonical)
	ext := extension(base)
	if ext == "" {
		return domain.EligibleFile{}, &RejectError{Path: raw, Reason: ReasonNoExtension}
	}
	format, ok := domain.ParseFormat(ext)
	if !ok {
		return domain.EligibleFile{}, &RejectError{
			Path:   raw,
			Reason: ReasonUnsupportedType,
			Err:    fmt.Errorf("extension %q", ext),
		}
	}

	return domain.EligibleFile{
		Path:   canonical,
		Dir:    filepath.Dir(canonical),
		Base:   base,
		Stem:   strings.TrimSuffix(base, "."+ext),
		Ext:    ext,
		Format: format,
		Size:   info.Size(),
	}, nil
}

// canonical returns an absolute, symlink-free path.
func (r *Resolver) canonical(raw string) (string, error) {
	absPath, err := r.abs(raw)
	if err != nil {
		return "", err
	}
	resolved, err := r.evalSymlinks(absPath)
	if err != nil {
		return "", err
	}
	return filepath.Clean(resolved), nil
}

// extension returns the text after the final dot, without the dot.
func extension(base string) string {
	idx := strings.LastIndex(base, ".")
	if idx < 0 || idx == len(base)-1 {
		return ""
	}
	return base[idx+1:]
}
