package scrub

import (
	"fmt"
	"io"
	"os"
)

// copyFile copies src into a new file at dst. It never overwrites.
func copyFile(src, dst string, perm os.FileMode) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(out, in)
	if err == nil {
		err = out.Sync()
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(dst)
		return 0, fmt.Errorf("copy %s: %w", src, err)
	}
	return n, nil
}

// nonEmptySize returns the size of path, failing on missing or empty files.
func nonEmptySize(stat func(string) (os.FileInfo, error), path string) (int64, error) {
	info, err := stat(path)
	if err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s is not a regular file", path)
	}
	if info.Size() == 0 {
		return 0, fmt.Errorf("%s is empty", path)
	}
	return info.Size(), nil
}
