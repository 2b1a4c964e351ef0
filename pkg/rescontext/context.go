// SPDX-License-Identifier: Apache-2.0

// Package rescontext implements the immutable bag of server-wide references
// shared by every worker (spec.md §4.7 "Server Context & Lifecycle").
package rescontext

import (
	"sync/atomic"

	"github.com/relicforge/rescompserver/pkg/compilerregistry"
	"github.com/relicforge/rescompserver/pkg/resourceid"
)

// TypeRegistry is the process-wide set of resource type tags the server
// recognizes, independent of whether a compiler is registered for them
// (spec.md §4.7, "type registry"). Compilable types are additionally found
// in the compiler registry; a type may be known here without a compiler
// (an asset consumed only as raw data, for example).
type TypeRegistry struct {
	known map[resourceid.TypeTag]bool
}

// NewTypeRegistry builds a registry seeded with tags.
func NewTypeRegistry(tags ...resourceid.TypeTag) *TypeRegistry {
	r := &TypeRegistry{known: make(map[resourceid.TypeTag]bool, len(tags))}
	for _, t := range tags {
		r.known[t] = true
	}
	return r
}

// Has reports whether tag was registered.
func (r *TypeRegistry) Has(tag resourceid.TypeTag) bool { return r.known[tag] }

// ServerContext is shared by every worker and never mutated after startup
// except is_exiting, which is monotone false -> true (spec.md §4.7, §5
// "ServerContext - immutable except is_exiting, release/acquire semantics").
type ServerContext struct {
	SourceRoot             string
	CompiledRoot           string
	CompilerExecutablePath string

	Types     *TypeRegistry
	Compilers *compilerregistry.Registry

	isExiting atomic.Bool
}

// InvalidContextError is returned by New when a required reference is nil.
type InvalidContextError struct {
	Reason string
}

func (e *InvalidContextError) Error() string { return "invalid server context: " + e.Reason }

// New validates and constructs a ServerContext. Per spec.md §4.7,
// construction validates that the registries are non-null.
func New(sourceRoot, compiledRoot, compilerExecutablePath string, types *TypeRegistry, compilers *compilerregistry.Registry) (*ServerContext, error) {
	if types == nil {
		return nil, &InvalidContextError{Reason: "type registry is nil"}
	}
	if compilers == nil {
		return nil, &InvalidContextError{Reason: "compiler registry is nil"}
	}
	return &ServerContext{
		SourceRoot:             sourceRoot,
		CompiledRoot:           compiledRoot,
		CompilerExecutablePath: compilerExecutablePath,
		Types:                  types,
		Compilers:              compilers,
	}, nil
}

// IsExiting reports whether shutdown has begun. Acquire semantics: any
// caller observing true has also observed every write that happened-before
// BeginShutdown on the shutting-down goroutine.
func (c *ServerContext) IsExiting() bool { return c.isExiting.Load() }

// BeginShutdown sets is_exiting. It is idempotent and safe to call
// concurrently with IsExiting.
func (c *ServerContext) BeginShutdown() { c.isExiting.Store(true) }
