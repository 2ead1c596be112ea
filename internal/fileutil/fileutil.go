package fileutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// WriteAtomic streams r into a temp file beside dst and renames it into
// place, so readers never observe a partial file. Parent directories are
// created. It returns the number of bytes written.
func WriteAtomic(dst string, r io.Reader, mode os.FileMode) (int64, error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create directory %q: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	written, copyErr := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(tmpName)
		return 0, fmt.Errorf("write %s: %w", dst, err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		_ = os.Remove(tmpName)
		return 0, fmt.Errorf("chmod %s: %w", dst, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return 0, fmt.Errorf("move %s into place: %w", dst, err)
	}
	return written, nil
}

// WriteFileAtomic is WriteAtomic for in-memory content.
func WriteFileAtomic(dst string, data []byte, mode os.FileMode) error {
	_, err := WriteAtomic(dst, strings.NewReader(string(data)), mode)
	return err
}
