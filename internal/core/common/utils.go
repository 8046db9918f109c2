package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ReadJSONFile reads the file at path and unmarshals it into a value of type T.
// A file that exists but does not decode as T is reported as ErrMalformedInput.
func ReadJSONFile[T any](path string) (T, error) {
	var zero T

	data, err := os.ReadFile(path)
	if err != nil {
		return zero, fmt.Errorf("failed to read '%s': %w", path, err)
	}

	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return zero, fmt.Errorf("failed to decode '%s': %w: %v", path, ErrMalformedInput, err)
	}

	return result, nil
}

// WriteJSONFile encodes v and atomically replaces the file at path with it.
func WriteJSONFile(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode '%s': %w", path, err)
	}
	return WriteFileAtomic(path, data)
}

// WriteFileAtomic writes data to a temp file in the target directory and
// renames it over path, so readers never observe a partially written file.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return wrapFSError(path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return wrapFSError(path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return wrapFSError(path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return wrapFSError(path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return wrapFSError(path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return wrapFSError(path, err)
	}
	return nil
}

// Exists reports whether a file is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// CheckWritable probes dir by creating and removing a temp file.
func CheckWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".probe.*")
	if err != nil {
		return wrapFSError(dir, err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

func wrapFSError(path string, err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("cannot write '%s': %w: %v", path, ErrPermissionDenied, err)
	}
	return fmt.Errorf("cannot write '%s': %w", path, err)
}
