// SPDX-License-Identifier: Apache-2.0

package workerpool

import (
	"os"
	"path/filepath"
)

// DestinationFS abstracts the writable-filesystem probes the up-to-date
// check needs against the output tree (spec.md §4.5 steps 3-4), so tests
// can run without touching real files.
type DestinationFS interface {
	// EnsureDir creates dir and any missing parents if they do not already
	// exist.
	EnsureDir(dir string) error
	// Stat reports whether path exists and, if so, whether it is read-only.
	Stat(path string) (exists bool, readOnly bool)
}

// OSDestinationFS is the real-filesystem DestinationFS implementation.
type OSDestinationFS struct{}

var _ DestinationFS = OSDestinationFS{}

// EnsureDir implements DestinationFS.
func (OSDestinationFS) EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// Stat implements DestinationFS. A file is read-only when none of its
// owner/group/other write bits are set.
func (OSDestinationFS) Stat(path string) (bool, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return false, false
	}
	return true, info.Mode().Perm()&0o222 == 0
}

// destDirOf returns the directory a target path's file lives in.
func destDirOf(targetPath string) string {
	return filepath.Dir(targetPath)
}
