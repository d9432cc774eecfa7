package runc

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const runtimeDirEnv = "XDG_RUNTIME_DIR"

func absPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("runc: resolve %s: %w", p, err)
	}
	return abs, nil
}

// runtimeDir is where temporary spec files are written.
func runtimeDir() string {
	if dir := os.Getenv(runtimeDirEnv); dir != "" {
		return dir
	}
	return os.TempDir()
}

// writeSpecFile writes v as JSON to a fresh temporary file and returns its
// path and a function that removes it.
func writeSpecFile(op string, v any) (string, func(), error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", nil, &JSONError{Op: op, Err: err}
	}

	f, err := os.CreateTemp(runtimeDir(), "runc-spec-*.json")
	if err != nil {
		return "", nil, &SpecFileError{Err: err}
	}
	path := f.Name()
	remove := func() { os.Remove(path) }

	if _, err := f.Write(data); err != nil {
		f.Close()
		remove()
		return "", nil, &SpecFileError{Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		remove()
		return "", nil, &SpecFileError{Path: path, Err: err}
	}
	return path, remove, nil
}
