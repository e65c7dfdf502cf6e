package scrub

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"secure-scrub/internal/domain"
)

func stagedArtifact(t *testing.T, fx fixture, data []byte) domain.StagedArtifact {
	t.Helper()
	path := fx.part.Path(fx.file.Base, domain.StageOptimized)
	mustWrite(t, path, data)
	return domain.StagedArtifact{Path: path, Stage: domain.StageOptimized, Size: int64(len(data))}
}

// TestFinalizeRejectsEscapingParent refuses when the destination directory
// does not resolve to the source directory.
func TestFinalizeRejectsEscapingParent(t *testing.T) {
	fx := newFixture(t, "a.pdf", []byte("source"))
	elsewhere := t.TempDir()
	f := NewFinalizerForTests(nil, nil, func(string) (string, error) { return elsewhere, nil })

	_, err := f.Finalize(context.Background(), fx.file, stagedArtifact(t, fx, []byte("new")), domain.AllOperations(), domain.ModeCopy)

	if code, _ := CodeOf(err); code != CodeUnsafeDestination {
		t.Fatalf("error = %v, want UnsafeDestination", err)
	}
	assertNoSibling(t, fx.file)
}

// TestFinalizeCopyWithoutHardLinks falls back to an exclusive copy.
func TestFinalizeCopyWithoutHardLinks(t *testing.T) {
	fx := newFixture(t, "a.png", []byte("source"))
	f := NewFinalizerForTests(nil, func(string, string) error {
		return &os.LinkError{Op: "link", Err: syscall.EPERM}
	}, nil)

	commit, err := f.Finalize(context.Background(), fx.file, stagedArtifact(t, fx, []byte("new")), domain.AllOperations(), domain.ModeCopy)
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if string(mustRead(t, commit.Path)) != "new" {
		t.Fatal("destination content mismatch")
	}
	if string(mustRead(t, fx.file.Path)) != "source" {
		t.Fatal("source modified in copy mode")
	}

	entries, err := os.ReadDir(fx.file.Dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want source + destination only", len(entries))
	}
}

// TestFinalizeCopyPreservesPermissions keeps the source mode bits.
func TestFinalizeCopyPreservesPermissions(t *testing.T) {
	fx := newFixture(t, "a.jpg", []byte("source"))
	if err := os.Chmod(fx.file.Path, 0o640); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	f := NewFinalizer(nil, nil)

	commit, err := f.Finalize(context.Background(), fx.file, stagedArtifact(t, fx, []byte("new")), domain.Operations{Clean: true}, domain.ModeCopy)
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	info, err := os.Stat(commit.Path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o640 {
		t.Fatalf("perm = %o, want 640", info.Mode().Perm())
	}
	if filepath.Base(commit.Path) != "a_cleaned.jpg" {
		t.Fatalf("name = %q", filepath.Base(commit.Path))
	}
}

// erroringEraser fails without touching the file.
type erroringEraser struct{}

func (erroringEraser) Erase(context.Context, string) error {
	return errors.New("shred: Input/output error")
}

// TestFinalizeReplaceEraseFailureWarns continues with the move.
func TestFinalizeReplaceEraseFailureWarns(t *testing.T) {
	fx := newFixture(t, "s.pdf", []byte("old secret"))
	f := NewFinalizer(erroringEraser{}, nil)

	commit, err := f.Finalize(context.Background(), fx.file, stagedArtifact(t, fx, []byte("clean")), domain.AllOperations(), domain.ModeReplace)
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if len(commit.Warnings) != 1 {
		t.Fatalf("warnings = %v, want one", commit.Warnings)
	}
	if string(mustRead(t, commit.Path)) != "clean" {
		t.Fatal("replacement content mismatch")
	}
	if _, err := os.Lstat(fx.file.Path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("original name still present, err = %v", err)
	}
}
