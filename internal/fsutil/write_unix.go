//go:build !windows

// Package fsutil holds file helpers shared by the pool writer and the CLI.
package fsutil

import (
	"fmt"
	"os"

	"github.com/google/renameio/v2"
)

// WriteFile writes data to a temp file next to path, fsyncs it and renames
// it over path, so readers see either the old or the new content.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	pendingFile, err := renameio.NewPendingFile(path, renameio.WithPermissions(perm))
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer func() { _ = pendingFile.Cleanup() }()

	if _, err := pendingFile.Write(data); err != nil {
		return fmt.Errorf("write pending file: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace file: %w", err)
	}
	return nil
}
