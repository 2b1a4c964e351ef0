// SPDX-License-Identifier: Apache-2.0

// Package compilerregistry implements the startup-populated, read-only-at-
// runtime map from resource type to compiler metadata (spec.md §4.6).
package compilerregistry

import (
	"fmt"

	"github.com/relicforge/rescompserver/pkg/resourceid"
)

// Descriptor is the metadata a compiler plugin declares at registration
// (spec.md §3, CompilerDescriptor).
type Descriptor struct {
	// Version is bumped by plugin authors whenever compiled output from an
	// older version must be considered stale.
	Version int32
	// InputFileRequired is consulted by the worker pool's up-to-date check
	// (spec.md §4.5 step 2).
	InputFileRequired bool
	// ProducedTypes are the resource type tags this compiler can produce.
	// Two compilers must never share a produced type.
	ProducedTypes []resourceid.TypeTag
	// RecursesIntoDependencies controls whether the resolver reads this
	// type's descriptor file for compile-dependencies, or treats it as an
	// opaque aggregate (spec.md §4.3 step 3, §9 "map" policy, carried as
	// data rather than a type-tag special case).
	RecursesIntoDependencies bool
}

// DuplicateProducedTypeError is returned by Register when two compilers
// claim the same produced type; registration is a hard startup failure.
type DuplicateProducedTypeError struct {
	Type      resourceid.TypeTag
	Compilers []string
}

func (e *DuplicateProducedTypeError) Error() string {
	return fmt.Sprintf("compiler registry: type %q already registered (conflicting compilers: %v)",
		e.Type.String(), e.Compilers)
}

// Registry is a read-only-after-construction map of TypeTag -> Descriptor.
type Registry struct {
	byType map[resourceid.TypeTag]Descriptor
	owner  map[resourceid.TypeTag]string
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byType: make(map[resourceid.TypeTag]Descriptor),
		owner:  make(map[resourceid.TypeTag]string),
	}
}

// Register adds a compiler's descriptor under each of its produced types.
// name identifies the compiler plugin for error messages. Returns
// *DuplicateProducedTypeError if any produced type is already claimed.
func (r *Registry) Register(name string, d Descriptor) error {
	for _, t := range d.ProducedTypes {
		if existing, ok := r.owner[t]; ok {
			return &DuplicateProducedTypeError{Type: t, Compilers: []string{existing, name}}
		}
	}
	for _, t := range d.ProducedTypes {
		r.byType[t] = d
		r.owner[t] = name
	}
	return nil
}

// Get returns the descriptor registered for typeTag, and whether one exists.
func (r *Registry) Get(typeTag resourceid.TypeTag) (Descriptor, bool) {
	d, ok := r.byType[typeTag]
	return d, ok
}

// HasCompiler reports whether typeTag has a registered compiler.
func (r *Registry) HasCompiler(typeTag resourceid.TypeTag) bool {
	_, ok := r.byType[typeTag]
	return ok
}

// VersionOf returns the registered compiler version for typeTag. It panics
// if typeTag is unregistered; callers must check HasCompiler first, per
// spec.md §4.6.
func (r *Registry) VersionOf(typeTag resourceid.TypeTag) int32 {
	d, ok := r.byType[typeTag]
	if !ok {
		panic(fmt.Sprintf("compilerregistry: VersionOf called for unregistered type %q", typeTag.String()))
	}
	return d.Version
}
