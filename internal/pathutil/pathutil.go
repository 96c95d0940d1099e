// Package pathutil keeps file access inside a project: documents read by the
// MCP server and pool files written by create must resolve under the
// project root.
package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideAllowed is returned when a path resolves outside every allowed
// directory.
var ErrOutsideAllowed = errors.New("outside allowed directories")

// RedactPath reduces a full path to .../<parent>/<basename> for error
// messages, e.g. "/home/ana/sweeps/threshold.json" becomes
// ".../sweeps/threshold.json".
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	base := filepath.Base(cleaned)
	parent := filepath.Base(filepath.Dir(cleaned))
	if parent == "." || parent == string(filepath.Separator) {
		return base
	}
	return ".../" + parent + "/" + base
}

// ValidatePath checks that path resolves inside one of allowedDirs.
func ValidatePath(path string, allowedDirs []string) error {
	_, err := ResolveWithin(path, allowedDirs)
	return err
}

// ResolveWithin cleans path, resolves symlinks along it and returns the
// resolved absolute path if it lies inside one of allowedDirs. Relative
// paths are taken relative to the first allowed directory. The file itself
// need not exist.
func ResolveWithin(path string, allowedDirs []string) (string, error) {
	switch {
	case path == "":
		return "", fmt.Errorf("path validation failed: path is empty")
	case len(allowedDirs) == 0:
		return "", fmt.Errorf("path validation failed: no allowed directories configured")
	case strings.ContainsRune(path, '\x00'):
		return "", fmt.Errorf("path validation failed: path contains null byte")
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(allowedDirs[0], path)
	}
	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("path validation failed: cannot resolve absolute path: %w", err)
	}

	resolved, err := resolveExisting(absPath)
	if err != nil {
		return "", fmt.Errorf("path validation failed: %w", err)
	}

	for _, allowed := range allowedDirs {
		allowedAbs, err := filepath.Abs(filepath.Clean(allowed))
		if err != nil {
			continue
		}
		allowedResolved, err := resolveExisting(allowedAbs)
		if err != nil {
			continue
		}
		if isSubpath(resolved, allowedResolved) {
			return resolved, nil
		}
	}

	return "", fmt.Errorf("path validation failed: %q is %w", RedactPath(absPath), ErrOutsideAllowed)
}

// resolveExisting resolves symlinks on the deepest existing ancestor of path
// and re-appends the part that does not exist yet.
func resolveExisting(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}

	parent := filepath.Dir(path)
	if parent == path {
		return "", fmt.Errorf("cannot resolve path: %s", RedactPath(path))
	}

	resolvedParent, err := resolveExisting(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(path)), nil
}

// isSubpath reports whether path is base or lies below it.
func isSubpath(path, base string) bool {
	if path == base {
		return true
	}
	// The separator keeps "/tmp/foo" from matching "/tmp/foobar".
	return strings.HasPrefix(path, base+string(os.PathSeparator))
}
