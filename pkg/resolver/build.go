// SPDX-License-Identifier: Apache-2.0

package resolver

import (
	"fmt"
	"strings"

	"github.com/relicforge/rescompserver/pkg/compilerregistry"
	"github.com/relicforge/rescompserver/pkg/recordstore"
	"github.com/relicforge/rescompserver/pkg/resourceid"
)

// BuildErrorKind classifies why Build failed (spec.md §4.3).
type BuildErrorKind int

const (
	InvalidResource BuildErrorKind = iota
	DescriptorReadFailed
	CircularDependency
)

// BuildError is returned by Build; Message is a human-readable explanation
// suitable for copying verbatim into a Request's log (spec.md §4.4,
// "Supplemented Features" item 5).
type BuildError struct {
	Kind    BuildErrorKind
	Message string
}

func (e *BuildError) Error() string { return e.Message }

// FileSystem abstracts the filesystem probes the resolver needs, so tests
// can run against an in-memory fixture instead of real files.
type FileSystem interface {
	// Stat reports whether path exists and, if so, its modification time
	// as a Unix timestamp. A missing path is not an error: it reports
	// (false, 0).
	Stat(path string) (exists bool, modTime uint64)
}

// DescriptorReader decodes a resource's source file into its declared
// compile-dependencies (spec.md §6 "Resource descriptor file"). The
// on-disk format is an implementation detail of the reader.
type DescriptorReader interface {
	ReadCompileDependencies(sourcePath string) ([]resourceid.ID, error)
}

// RecordLookup is the subset of recordstore.Store the resolver needs.
type RecordLookup interface {
	Get(id resourceid.ID) (recordstore.Record, bool, error)
}

// Resolver builds dependency trees rooted at a requested resource.
type Resolver struct {
	SourceRoot   string
	CompiledRoot string
	Compilers    *compilerregistry.Registry
	Records      RecordLookup
	Descriptors  DescriptorReader
	FS           FileSystem
}

// Build constructs the dependency tree for rootID (spec.md §4.3 "build").
func (r *Resolver) Build(rootID resourceid.ID) (*Tree, error) {
	if !rootID.IsValid() {
		return nil, &BuildError{Kind: InvalidResource, Message: "invalid resource id"}
	}

	seen := make(map[resourceid.Key]bool)
	root := &Node{}
	if err := r.fillNode(root, rootID, seen); err != nil {
		return nil, err
	}
	return &Tree{Root: root}, nil
}

// Root returns tree's root node.
func Root(t *Tree) *Node { return t.Root }

func (r *Resolver) fillNode(node *Node, id resourceid.ID, seen map[resourceid.Key]bool) error {
	node.ID = id

	srcPath, err := resourceid.ToSourcePath(id, r.SourceRoot)
	if err != nil {
		return &BuildError{Kind: InvalidResource, Message: err.Error()}
	}
	node.SourcePath = srcPath
	exists, ts := r.FS.Stat(srcPath)
	node.SourceExists = exists
	if exists {
		node.Timestamp = ts
	}

	node.CompilerVersion = -1

	desc, hasCompiler := r.Compilers.Get(id.Type())
	if hasCompiler {
		node.CompilerVersion = desc.Version

		tgtPath, err := resourceid.ToTargetPath(id, r.CompiledRoot)
		if err != nil {
			return &BuildError{Kind: InvalidResource, Message: err.Error()}
		}
		node.TargetPath = tgtPath
		targetExists, _ := r.FS.Stat(tgtPath)
		node.TargetExists = targetExists

		// A record-store read failure degrades to "record absent" here
		// (spec.md §7): the resolver never fails the build over a store
		// outage, it just forces the resource to look stale.
		if rec, ok, storeErr := r.Records.Get(id); storeErr == nil && ok {
			node.Record = &Record{CompilerVersion: rec.CompilerVersion, SourceTimestampHash: rec.SourceTimestampHash}
		}

		if desc.RecursesIntoDependencies {
			if err := r.fillDependencies(node, seen); err != nil {
				return err
			}
		}
	}

	node.CombinedHash = node.Timestamp
	for _, dep := range node.Dependencies {
		node.CombinedHash += dep.CombinedHash
	}

	return nil
}

func (r *Resolver) fillDependencies(node *Node, seen map[resourceid.Key]bool) error {
	deps, err := r.Descriptors.ReadCompileDependencies(node.SourcePath)
	if err != nil {
		return &BuildError{
			Kind:    DescriptorReadFailed,
			Message: fmt.Sprintf("failed to read compile dependencies for %s: %v", node.ID, err),
		}
	}

	for _, depID := range deps {
		key := depID.Key()
		if seen[key] {
			continue
		}

		for ancestor := node; ancestor != nil; ancestor = ancestor.Parent {
			if ancestor.ID.Equal(depID) {
				return &BuildError{
					Kind:    CircularDependency,
					Message: "circular dependency detected: " + chainString(node, depID),
				}
			}
		}

		child := &Node{Parent: node}
		if err := r.fillNode(child, depID, seen); err != nil {
			return err
		}
		node.Dependencies = append(node.Dependencies, child)
		seen[key] = true
	}

	return nil
}

func chainString(node *Node, dep resourceid.ID) string {
	var chain []resourceid.ID
	for n := node; n != nil; n = n.Parent {
		chain = append(chain, n.ID)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	chain = append(chain, dep)

	parts := make([]string, len(chain))
	for i, id := range chain {
		parts[i] = id.String()
	}
	return strings.Join(parts, " -> ")
}
