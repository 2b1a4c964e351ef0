// SPDX-License-Identifier: Apache-2.0

package resolver

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/relicforge/rescompserver/pkg/resourceid"
)

// YAMLDescriptorReader reads the compile-dependencies declared by a
// resource's source file, in the shape:
//
//	compileDependencies:
//	  - path: skel/hero.skel
//	    type: skel
//
// The on-disk descriptor format is out of scope per spec.md §6; this is
// one reasonable decoding contract satisfying DescriptorReader.
type YAMLDescriptorReader struct{}

var _ DescriptorReader = YAMLDescriptorReader{}

type descriptorFile struct {
	CompileDependencies []dependencyRef `yaml:"compileDependencies"`
}

type dependencyRef struct {
	Path string `yaml:"path"`
	Type string `yaml:"type"`
}

// ReadCompileDependencies implements DescriptorReader.
func (YAMLDescriptorReader) ReadCompileDependencies(sourcePath string) ([]resourceid.ID, error) {
	raw, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("read descriptor: %w", err)
	}

	var df descriptorFile
	if err := yaml.Unmarshal(raw, &df); err != nil {
		return nil, fmt.Errorf("decode descriptor: %w", err)
	}

	deps := make([]resourceid.ID, 0, len(df.CompileDependencies))
	for _, ref := range df.CompileDependencies {
		id, err := resourceid.Parse(ref.Path, ref.Type)
		if err != nil {
			return nil, fmt.Errorf("invalid dependency %q: %w", ref.Path, err)
		}
		deps = append(deps, id)
	}
	return deps, nil
}
