// Package filex holds small filesystem helpers for the admin CLI.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteFile writes data to path, creating missing parent directories.
// An existing file is replaced.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
