// SPDX-License-Identifier: Apache-2.0

package config

import "github.com/relicforge/rescompserver/pkg/compilerregistry"

// BuildCompilerRegistry registers every declared compiler, in order,
// failing fast on the first duplicate produced type (spec.md §4.6).
func (c *ServerConfig) BuildCompilerRegistry() (*compilerregistry.Registry, error) {
	reg := compilerregistry.NewRegistry()
	for _, compiler := range c.Compilers {
		tags, err := compiler.ProducedTypeTags()
		if err != nil {
			return nil, err
		}
		err = reg.Register(compiler.Name, compilerregistry.Descriptor{
			Version:                  compiler.Version,
			InputFileRequired:        compiler.InputFileRequired,
			ProducedTypes:            tags,
			RecursesIntoDependencies: compiler.RecursesIntoDependencies,
		})
		if err != nil {
			return nil, err
		}
	}
	return reg, nil
}
