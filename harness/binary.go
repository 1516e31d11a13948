package harness

import (
	"fmt"
	"os"
	"path/filepath"
)

// ResolveBinary returns the absolute path of the binary a sweep executes.
// An empty path resolves to the running executable.
func ResolveBinary(path string) (string, error) {
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return "", fmt.Errorf("locate own executable: %w", err)
		}

		return exe, nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve binary %s: %w", path, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("binary not found at %s: %w", abs, err)
	}

	if info.IsDir() {
		return "", fmt.Errorf("binary %s is a directory", abs)
	}

	return abs, nil
}
