// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"github.com/relicforge/rescompserver/pkg/config"
	"github.com/relicforge/rescompserver/pkg/rescontext"
	"github.com/relicforge/rescompserver/pkg/resourceid"
)

// loadContext decodes the server config at configPath and assembles the
// ServerContext shared by every worker (spec.md §4.7).
func loadContext(configPath string) (*config.ServerConfig, *rescontext.ServerContext, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	compilers, err := cfg.BuildCompilerRegistry()
	if err != nil {
		return nil, nil, err
	}

	var tags []resourceid.TypeTag
	for _, c := range cfg.Compilers {
		t, err := c.ProducedTypeTags()
		if err != nil {
			return nil, nil, err
		}
		tags = append(tags, t...)
	}
	types := rescontext.NewTypeRegistry(tags...)

	ctx, err := rescontext.New(cfg.SourceRoot, cfg.CompiledRoot, cfg.CompilerExecutablePath, types, compilers)
	if err != nil {
		return nil, nil, err
	}
	return cfg, ctx, nil
}
