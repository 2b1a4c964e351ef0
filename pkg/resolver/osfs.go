// SPDX-License-Identifier: Apache-2.0

package resolver

import "os"

// OSFileSystem is the real-filesystem FileSystem implementation.
type OSFileSystem struct{}

var _ FileSystem = OSFileSystem{}

// Stat reports whether path exists and its mtime as a Unix timestamp. Any
// stat error (including permission failures) is treated as "does not
// exist", matching the original implementation's FileSystem::Exists bool
// contract (spec.md §4.3).
func (OSFileSystem) Stat(path string) (bool, uint64) {
	info, err := os.Stat(path)
	if err != nil {
		return false, 0
	}
	return true, uint64(info.ModTime().Unix())
}
