// Package filex has filesystem helpers for the client's local state.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureParentDir creates the directory that will hold path (for example
// the SQLite file) with owner-only permissions and returns path cleaned.
// A bare file name needs no directory and is returned unchanged.
func EnsureParentDir(path string) (string, error) {
	clean := filepath.Clean(path)
	dir := filepath.Dir(clean)
	if dir == "." {
		return clean, nil
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	return clean, nil
}
