package store

import "path/filepath"

// DirName is the per-project state directory.
const DirName = ".namsweep"

// LocalPath returns the state directory for the given project root.
func LocalPath(projectRoot string) string {
	return filepath.Join(projectRoot, DirName)
}

// DBPath returns the manifest database path for the given project root.
func DBPath(projectRoot string) string {
	return filepath.Join(LocalPath(projectRoot), "plans.db")
}
