package scrub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"secure-scrub/internal/domain"
	"secure-scrub/internal/pathsafe"
)

// Commit describes a finalized file.
type Commit struct {
	Path     string
	Warnings []string
}

// Finalizer commits a chosen staged artifact next to its source, either as a
// new sibling (copy) or in place of the source (replace).
type Finalizer struct {
	eraser Eraser
	logger *zap.Logger

	lstat    func(string) (os.FileInfo, error)
	link     func(oldname, newname string) error
	rename   func(oldpath, newpath string) error
	remove   func(string) error
	parentOf func(string) (string, error)
}

// NewFinalizer builds a finalizer. A nil eraser disables secure erase.
func NewFinalizer(eraser Eraser, logger *zap.Logger) *Finalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Finalizer{
		eraser:   eraser,
		logger:   logger,
		lstat:    os.Lstat,
		link:     os.Link,
		rename:   os.Rename,
		remove:   os.Remove,
		parentOf: pathsafe.CanonicalParent,
	}
}

// NewFinalizerForTests allows replacing hard-link creation and parent
// resolution.
func NewFinalizerForTests(
	eraser Eraser,
	link func(oldname, newname string) error,
	parentOf func(string) (string, error),
) *Finalizer {
	f := NewFinalizer(eraser, nil)
	if link != nil {
		f.link = link
	}
	if parentOf != nil {
		f.parentOf = parentOf
	}
	return f
}

// Finalize commits chosen for file under mode. Every destination check runs
// before anything is destroyed.
func (f *Finalizer) Finalize(
	ctx context.Context,
	file domain.EligibleFile,
	chosen domain.StagedArtifact,
	ops domain.Operations,
	mode domain.Mode,
) (Commit, error) {
	dest := DestinationPath(file, ops)
	if err := f.checkDestination(file, dest); err != nil {
		return Commit{}, err
	}

	perm := os.FileMode(0o644)
	if info, err := f.lstat(file.Path); err == nil {
		perm = info.Mode().Perm()
	}

	tmp, err := f.stageInto(file.Dir, chosen.Path, perm)
	if err != nil {
		return Commit{}, finalizeError(CodeFinalizeFailed, "cannot write into destination directory", err)
	}

	var commit Commit
	switch mode {
	case domain.ModeReplace:
		commit, err = f.replace(ctx, file, tmp, dest)
	default:
		commit, err = f.copy(tmp, dest)
	}
	if err != nil {
		return Commit{}, err
	}

	if err := f.verifyPlacement(file, commit.Path); err != nil {
		return Commit{}, err
	}
	return commit, nil
}

// copy links the staged temp file to dest without ever replacing it.
func (f *Finalizer) copy(tmp, dest string) (Commit, error) {
	defer f.remove(tmp)

	if err := f.linkNoReplace(tmp, dest); err != nil {
		return Commit{}, err
	}
	return Commit{Path: dest}, nil
}

// replace runs erase, move and rename as separate steps.
func (f *Finalizer) replace(ctx context.Context, file domain.EligibleFile, tmp, dest string) (Commit, error) {
	var warnings []string
	if w := f.erase(ctx, file.Path); w != "" {
		warnings = append(warnings, w)
	}

	if err := f.move(tmp, file.Path); err != nil {
		return Commit{}, err
	}

	if err := f.linkNoReplace(file.Path, dest); err != nil {
		return Commit{}, fmt.Errorf("new content left at %s: %w", file.Path, err)
	}
	if err := f.remove(file.Path); err != nil {
		return Commit{}, finalizeError(CodeFinalizeFailed, "cannot remove original name after rename", err)
	}
	return Commit{Path: dest, Warnings: warnings}, nil
}

// erase overwrites the original. Problems only produce a warning.
func (f *Finalizer) erase(ctx context.Context, path string) string {
	if f.eraser == nil {
		return "secure erase unavailable; original replaced without overwrite"
	}
	err := f.eraser.Erase(ctx, path)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEraseUnavailable):
		f.logger.Warn("secure erase unavailable", zap.String("path", path), zap.Error(err))
		return "secure erase unavailable; original replaced without overwrite"
	default:
		f.logger.Warn("secure erase failed", zap.String("path", path), zap.Error(err))
		return fmt.Sprintf("secure erase failed: %v", err)
	}
}

// move puts the new content at the original path, replacing what is left.
func (f *Finalizer) move(tmp, original string) error {
	if err := f.rename(tmp, original); err != nil {
		return finalizeError(
			CodeFinalizeFailed,
			fmt.Sprintf("cannot move new content onto original; it remains at %s", tmp),
			err,
		)
	}
	return nil
}

// checkDestination refuses paths outside the source directory and
// occupied names.
func (f *Finalizer) checkDestination(file domain.EligibleFile, dest string) error {
	if !pathsafe.WithinDir(file.Dir, dest) {
		return finalizeError(CodeUnsafeDestination, fmt.Sprintf("destination %s escapes %s", dest, file.Dir), nil)
	}
	parent, err := f.parentOf(dest)
	if err != nil {
		return finalizeError(CodeUnsafeDestination, "cannot resolve destination directory", err)
	}
	if parent != file.Dir {
		return finalizeError(CodeUnsafeDestination, fmt.Sprintf("destination directory %s differs from %s", parent, file.Dir), nil)
	}

	if _, err := f.lstat(dest); err == nil {
		return finalizeError(CodeDestinationExists, fmt.Sprintf("%s already exists", dest), os.ErrExist)
	} else if !errors.Is(err, os.ErrNotExist) {
		return finalizeError(CodeFinalizeFailed, "cannot check destination", err)
	}
	return nil
}

// verifyPlacement re-checks the committed file's parent after the fact.
func (f *Finalizer) verifyPlacement(file domain.EligibleFile, committed string) error {
	parent, err := f.parentOf(committed)
	if err == nil && parent == file.Dir {
		return nil
	}
	return finalizeError(CodeUnsafeDestination, fmt.Sprintf("committed file %s is outside %s", committed, file.Dir), err)
}

// stageInto copies src into a hidden temp file inside dir so the final
// step is a same-directory link or rename.
func (f *Finalizer) stageInto(dir, src string, perm os.FileMode) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.CreateTemp(dir, ".scrub-*.tmp")
	if err != nil {
		return "", err
	}
	tmp := out.Name()

	_, err = io.Copy(out, in)
	if err == nil {
		err = out.Chmod(perm)
	}
	if err == nil {
		err = out.Sync()
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	return tmp, nil
}

// linkNoReplace gives oldname the additional name newname, failing if
// newname exists. Filesystems without hard links fall back to an exclusive
// copy.
func (f *Finalizer) linkNoReplace(oldname, newname string) error {
	err := f.link(oldname, newname)
	if err == nil {
		return nil
	}
	if errors.Is(err, os.ErrExist) {
		return finalizeError(CodeDestinationExists, fmt.Sprintf("%s already exists", newname), err)
	}

	f.logger.Debug("hard link failed, using rename", zap.String("path", newname), zap.Error(err))
	if _, statErr := f.lstat(newname); statErr == nil {
		return finalizeError(CodeDestinationExists, fmt.Sprintf("%s already exists", newname), os.ErrExist)
	}
	// oldname must survive for callers that remove it afterwards
	if _, copyErr := copyFile(oldname, newname, 0o600); copyErr != nil {
		if errors.Is(copyErr, os.ErrExist) {
			return finalizeError(CodeDestinationExists, fmt.Sprintf("%s already exists", newname), copyErr)
		}
		return finalizeError(CodeFinalizeFailed, "cannot place destination file", copyErr)
	}
	if info, statErr := f.lstat(oldname); statErr == nil {
		_ = os.Chmod(newname, info.Mode().Perm())
	}
	return nil
}
