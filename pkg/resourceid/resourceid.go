// SPDX-License-Identifier: Apache-2.0

// Package resourceid implements canonical resource naming, path derivation
// and type tagging (spec.md §3, §4.1). It is pure: no package in this file
// touches the filesystem.
package resourceid

import (
	"errors"
	"hash/fnv"
	"path"
	"strings"
)

// TypeTag is a fixed-width four-character code identifying a resource kind
// (e.g. "anim", "skel", "tex ").
type TypeTag [4]byte

// ParseTypeTag validates and builds a TypeTag from a string. The string
// must be non-empty and at most four bytes; shorter tags are space-padded,
// matching the fixed-width on-disk representation.
func ParseTypeTag(s string) (TypeTag, error) {
	var t TypeTag
	if s == "" {
		return t, errInvalidPath("empty type tag")
	}
	if len(s) > 4 {
		return t, errInvalidPath("type tag longer than 4 characters: " + s)
	}
	copy(t[:], s)
	for i := len(s); i < 4; i++ {
		t[i] = ' '
	}
	return t, nil
}

// String renders the tag with trailing padding trimmed.
func (t TypeTag) String() string {
	return strings.TrimRight(string(t[:]), " ")
}

// InvalidPathError is returned by Parse when a path string is malformed.
type InvalidPathError struct{ Reason string }

func (e *InvalidPathError) Error() string { return "invalid resource path: " + e.Reason }

func errInvalidPath(reason string) error { return &InvalidPathError{Reason: reason} }

// separator is the canonical logical path separator.
const separator = "/"

// variationSeparator introduces an opaque variation discriminator embedded
// in a logical path, e.g. "chars/hero/run.anim$normal".
const variationSeparator = "$"

// ID is a resource identity: a case-insensitive logical path paired with a
// type tag. Equality and hashing fold the path to lower case; the original
// casing is retained for display.
type ID struct {
	displayPath string
	lowerPath   string
	typeTag     TypeTag
	variation   string
}

// Parse builds an ID from a logical path string and a type tag string.
// Mixed separators ('\\' ) are normalized to '/'. An empty path, a path
// containing "..", or a path with an empty variation tag is rejected with
// InvalidPathError; no other characters are rejected.
func Parse(pathString string, typeTagString string) (ID, error) {
	tag, err := ParseTypeTag(typeTagString)
	if err != nil {
		return ID{}, err
	}
	return ParseWithTag(pathString, tag)
}

// ParseWithTag is like Parse but takes an already-validated TypeTag.
func ParseWithTag(pathString string, tag TypeTag) (ID, error) {
	if pathString == "" {
		return ID{}, errInvalidPath("empty path")
	}

	normalized := strings.ReplaceAll(pathString, "\\", separator)
	normalized = path.Clean(normalized)
	if normalized == "." || normalized == separator {
		return ID{}, errInvalidPath("empty path")
	}
	if strings.Contains(normalized, "..") {
		return ID{}, errInvalidPath("path escapes root: " + pathString)
	}

	display := normalized
	variation := ""
	if idx := strings.LastIndex(normalized, variationSeparator); idx >= 0 {
		variation = normalized[idx+len(variationSeparator):]
		display = normalized[:idx]
		if variation == "" {
			return ID{}, errInvalidPath("empty variation tag: " + pathString)
		}
	}

	return ID{
		displayPath: display,
		lowerPath:   strings.ToLower(display),
		typeTag:     tag,
		variation:   variation,
	}, nil
}

// Path returns the logical path, preserved verbatim for display (spec.md §6).
func (id ID) Path() string { return id.displayPath }

// Type returns the resource's type tag.
func (id ID) Type() TypeTag { return id.typeTag }

// Variation returns the opaque variation discriminator embedded in the
// path, or "" if none was present (spec.md §3, "Variation / Artifact
// Identity"). Other components never interpret this value.
func (id ID) Variation() string { return id.variation }

// IsValid reports whether id was produced by a successful Parse.
func (id ID) IsValid() bool { return id.lowerPath != "" }

// Equal compares two IDs by lower-cased path and type tag.
func (id ID) Equal(other ID) bool {
	return id.lowerPath == other.lowerPath && id.typeTag == other.typeTag
}

// Key returns a comparable value suitable for use as a map key; it agrees
// with Equal.
func (id ID) Key() Key {
	return Key{lowerPath: id.lowerPath, typeTag: id.typeTag}
}

// Key is the map-key form of an ID.
type Key struct {
	lowerPath string
	typeTag   TypeTag
}

// String renders the ID for logs and error messages.
func (id ID) String() string {
	if id.variation != "" {
		return id.displayPath + variationSeparator + id.variation + "." + id.typeTag.String()
	}
	return id.displayPath + "." + id.typeTag.String()
}

// HeaderID lower-cases a filesystem path and hashes it, for use as a
// content-addressed header identifier (spec.md §4.1, header_id).
func HeaderID(fsPath string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.ToLower(fsPath)))
	return h.Sum64()
}

var errEmptyRoot = errors.New("resourceid: root path must not be empty")

// ToSourcePath derives the filesystem source path for id under sourceRoot.
// The mapping is pure and deterministic; it does not touch the filesystem.
func ToSourcePath(id ID, sourceRoot string) (string, error) {
	return toFsPath(id, sourceRoot)
}

// ToTargetPath derives the filesystem compiled-output path for id under
// outputRoot. Case is never rewritten (spec.md §6, "Path conventions").
func ToTargetPath(id ID, outputRoot string) (string, error) {
	return toFsPath(id, outputRoot)
}

func toFsPath(id ID, root string) (string, error) {
	if root == "" {
		return "", errEmptyRoot
	}
	if !id.IsValid() {
		return "", errInvalidPath("id is not valid")
	}
	rel := filepathFromLogical(id.displayPath)
	return path.Join(root, rel), nil
}

// filepathFromLogical converts a logical '/'-separated path into the
// platform-neutral join-friendly form; callers that need an OS-native path
// should run the result through filepath.FromSlash.
func filepathFromLogical(logical string) string {
	return strings.TrimPrefix(logical, separator)
}
