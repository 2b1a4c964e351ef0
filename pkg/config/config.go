// SPDX-License-Identifier: Apache-2.0

// Package config decodes and validates the server's on-disk configuration
// file, matching the decode-then-validate-as-one-unit convention used by
// the teacher's cluster descriptor loader (kind/pkg/commons.GetClusterDescriptor):
// YAML via gopkg.in/yaml.v3, struct-tag validation via go-playground/validator/v10.
package config

import (
	"fmt"
	"os"
	"runtime"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/relicforge/rescompserver/pkg/resourceid"
)

// CompilerConfig declares one compiler plugin to register at startup
// (spec.md §3 CompilerDescriptor, §9 "opaque-type policy as data").
type CompilerConfig struct {
	Name                     string   `yaml:"name" validate:"required"`
	Version                  int32    `yaml:"version" validate:"min=0"`
	InputFileRequired        bool     `yaml:"inputFileRequired"`
	ProducedTypes            []string `yaml:"producedTypes" validate:"required,min=1,dive,min=1,max=4"`
	RecursesIntoDependencies bool     `yaml:"recursesIntoDependencies"`
}

// ServerConfig is the full on-disk server configuration (SPEC_FULL.md §A.3).
type ServerConfig struct {
	SourceRoot             string `yaml:"sourceRoot" validate:"required"`
	CompiledRoot           string `yaml:"compiledRoot" validate:"required"`
	CompilerExecutablePath string `yaml:"compilerExecutablePath" validate:"required"`
	RecordStorePath        string `yaml:"recordStorePath" validate:"required"`

	WorkerCount int `yaml:"workerCount" validate:"min=1"`

	Compilers []CompilerConfig `yaml:"compilers" validate:"dive"`
}

// ProducedTypeTags parses every declared produced type into a resourceid.TypeTag.
func (c CompilerConfig) ProducedTypeTags() ([]resourceid.TypeTag, error) {
	tags := make([]resourceid.TypeTag, 0, len(c.ProducedTypes))
	for _, s := range c.ProducedTypes {
		tag, err := resourceid.ParseTypeTag(s)
		if err != nil {
			return nil, fmt.Errorf("compiler %q: %w", c.Name, err)
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

func applyDefaults(cfg *ServerConfig) {
	if cfg.WorkerCount == 0 {
		cfg.WorkerCount = runtime.NumCPU()
	}
}

// Load reads path, decodes it as YAML, applies defaults, and validates the
// result as a single unit (mirrors kind/pkg/commons.GetClusterDescriptor:
// decode fully before validating, one aggregate error on failure).
func Load(path string) (*ServerConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg ServerConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	for _, c := range cfg.Compilers {
		if _, err := c.ProducedTypeTags(); err != nil {
			return nil, fmt.Errorf("invalid config %s: %w", path, err)
		}
	}

	return &cfg, nil
}
