package merge

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ReadExisting returns the current content of path, or nil when the file
// does not exist.
func ReadExisting(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if b == nil {
		b = []byte{}
	}
	return b, nil
}

// WriteFile atomically replaces path with content. It reports false without
// touching the file when the content is already there.
func WriteFile(path string, content []byte) (bool, error) {
	current, err := ReadExisting(path)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if current != nil && bytes.Equal(current, content) {
		return false, nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("ensure target directory %s: %w", dir, err)
	}

	tmpFile, err := os.CreateTemp(dir, ".tmp-swagger2react-*")
	if err != nil {
		return false, fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if tmpFile != nil {
			tmpFile.Close()
		}
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(content); err != nil {
		return false, fmt.Errorf("write content to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return false, fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmpFile.Chmod(0o644); err != nil {
		return false, fmt.Errorf("set file permissions: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return false, fmt.Errorf("close temp file: %w", err)
	}
	tmpFile = nil

	if err := os.Rename(tmpPath, path); err != nil {
		return false, fmt.Errorf("atomic rename %s to %s: %w", tmpPath, path, err)
	}
	success = true
	return true, nil
}
