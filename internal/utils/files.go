package utils

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// ErrRootNotFound is returned by FindRoot when no ancestor holds the marker.
var ErrRootNotFound = errors.New("marker not found in any parent directory")

// EnsureDir creates dir and its parents.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "utils: mkdir %s", dir)
	}
	return nil
}

// SafeWriteFile replaces path atomically: data goes to a sibling temp file
// that is renamed over the target. Missing parent directories are created.
func SafeWriteFile(path string, data []byte) error {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return eris.Wrap(err, "utils: create temp file")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return eris.Wrap(err, "utils: write temp file")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "utils: close temp file")
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return eris.Wrap(err, "utils: chmod temp file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return eris.Wrapf(err, "utils: replace %s", path)
	}
	return nil
}

// PrettyJSON renders reports and workspace manifests as two-space indented JSON.
func PrettyJSON(v any) ([]byte, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "utils: marshal json")
	}
	return append(b, '\n'), nil
}

// FindRoot returns the nearest directory at or above start that contains
// marker; the CLI uses it with workspace.json to pick the workspace enclosing
// the working directory. An empty start means the working directory.
func FindRoot(start, marker string) (string, error) {
	if start == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", eris.Wrap(err, "utils: getwd")
		}
		start = wd
	}
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", eris.Wrapf(err, "utils: resolve %s", start)
	}
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		dir = filepath.Dir(dir)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", eris.Wrapf(ErrRootNotFound, "utils: %s above %s", marker, start)
		}
		dir = parent
	}
}
