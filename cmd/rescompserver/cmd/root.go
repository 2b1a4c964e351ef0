// SPDX-License-Identifier: Apache-2.0

// Package cmd implements the rescompserver cobra CLI (SPEC_FULL.md §B,
// modeled on kind/cmd/kind/cmd.NewCommand).
package cmd

import "github.com/spf13/cobra"

// NewRootCommand builds the root rescompserver command with its
// subcommands attached.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "rescompserver",
		Short:         "rescompserver compiles and caches game-engine resources",
		Long:          "rescompserver resolves a resource's compile-dependency tree against a durable record store and dispatches an external compiler subprocess when the resource is stale.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCommand())
	root.AddCommand(newCompileCommand())
	root.AddCommand(newCleanStoreCommand())
	return root
}
