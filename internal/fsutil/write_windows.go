//go:build windows

// Package fsutil holds file helpers shared by the pool writer and the CLI.
package fsutil

import (
	"fmt"
	"os"
)

// WriteFile falls back to a plain write; renameio has no Windows support.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}
