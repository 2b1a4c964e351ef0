// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/relicforge/rescompserver/pkg/recordstore"
	"github.com/relicforge/rescompserver/pkg/request"
	"github.com/relicforge/rescompserver/pkg/resolver"
	"github.com/relicforge/rescompserver/pkg/resourceid"
	"github.com/relicforge/rescompserver/pkg/workerpool"
)

func newCompileCommand() *cobra.Command {
	var configPath string
	var origin string
	var compilerArgs string
	var force bool

	cmd := &cobra.Command{
		Use:   "compile <path> <type>",
		Short: "compile a single resource synchronously and print its outcome",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, ctx, err := loadContext(configPath)
			if err != nil {
				return err
			}

			id, err := resourceid.Parse(args[0], args[1])
			if err != nil {
				return err
			}

			store, err := recordstore.Open(cfg.RecordStorePath)
			if err != nil {
				return err
			}
			defer store.Close()

			o, err := parseOrigin(origin)
			if err != nil {
				return err
			}

			req := request.New(o, id)
			req.CompilerArgs = compilerArgs
			req.ForceRecompile = force

			pool := workerpool.New(ctx, store, resolver.YAMLDescriptorReader{}, 1, 1)
			pool.Run(req)

			return printResult(req)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "rescompserver.yaml", "path to the server config file")
	cmd.Flags().StringVar(&origin, "origin", "user", "request origin: user, package, or internal")
	cmd.Flags().StringVar(&compilerArgs, "args", "", "arguments forwarded to the compiler subprocess")
	cmd.Flags().BoolVar(&force, "force", false, "recompile even if the resource is already up to date")

	return cmd
}

func parseOrigin(s string) (request.Origin, error) {
	switch s {
	case "user":
		return request.UserRequested, nil
	case "package":
		return request.Package, nil
	case "internal":
		return request.Internal, nil
	default:
		return 0, fmt.Errorf("unknown origin %q", s)
	}
}

func printResult(req *request.Request) error {
	type result struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Log    string `json:"log,omitempty"`
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result{ID: req.ID, Status: req.Status().String(), Log: req.LogText()}); err != nil {
		return err
	}
	if !req.HasSucceeded() {
		return fmt.Errorf("compile failed: %s", req.Status())
	}
	return nil
}
