// SPDX-License-Identifier: Apache-2.0

// Package resolver builds, per request, a rooted dependency tree and
// decides freshness against the record store (spec.md §4.3).
package resolver

import "github.com/relicforge/rescompserver/pkg/resourceid"

// Node is a single entry in a per-request dependency tree (spec.md §3,
// DependencyNode). Nodes are owned exclusively by their tree; Parent is a
// non-owning back-reference used only for cycle detection during
// construction (spec.md §9 "Cyclic ownership avoidance").
type Node struct {
	ID resourceid.ID

	SourcePath string
	TargetPath string

	SourceExists bool
	TargetExists bool

	// Timestamp is the source file's mtime, or 0 if the source is missing.
	Timestamp uint64

	// CompilerVersion is the version reported by the registered compiler
	// for this node's type, or -1 if the type is non-compilable.
	CompilerVersion int32

	// Record is the persisted compile record for this node, or nil if
	// none exists (including when the record store degraded a read
	// failure to "absent", per spec.md §7).
	Record *Record

	// Dependencies are this node's compile-time inputs, owned exclusively
	// by this node.
	Dependencies []*Node

	// CombinedHash is Timestamp plus the sum of every dependency's
	// CombinedHash (spec.md §4.3, unsigned wraparound is intentional).
	CombinedHash uint64

	// Parent is a non-owning back-reference, nil for the tree root.
	Parent *Node
}

// Record mirrors recordstore.Record, duplicated here so this package does
// not need to import recordstore just for a value type used by-value.
type Record struct {
	CompilerVersion     int32
	SourceTimestampHash uint64
}

// IsCompilable reports whether this node has a registered compiler.
func (n *Node) IsCompilable() bool { return n.CompilerVersion >= 0 }

// IsUpToDate implements the root-or-any-node freshness rule from spec.md
// §4.3 "Up-to-date decision": source must exist; if compilable, the
// target must exist and the stored record must match both compiler
// version and combined hash; every dependency must also be up to date.
func (n *Node) IsUpToDate() bool {
	if !n.SourceExists {
		return false
	}

	if n.IsCompilable() {
		if !n.TargetExists {
			return false
		}
		if n.Record == nil {
			return false
		}
		if n.Record.CompilerVersion != n.CompilerVersion {
			return false
		}
		if n.Record.SourceTimestampHash != n.CombinedHash {
			return false
		}
	}

	for _, dep := range n.Dependencies {
		if !dep.IsUpToDate() {
			return false
		}
	}

	return true
}

// Tree is the rooted dependency tree built for a single request.
type Tree struct {
	Root *Node
}

// IsUpToDate reports whether the tree's root (and transitively, every
// dependency) is up to date.
func (t *Tree) IsUpToDate() bool { return t.Root.IsUpToDate() }

// CombinedHash returns the root node's combined hash.
func (t *Tree) CombinedHash() uint64 { return t.Root.CombinedHash }

// RootTimestamp returns the root node's source mtime.
func (t *Tree) RootTimestamp() uint64 { return t.Root.Timestamp }
