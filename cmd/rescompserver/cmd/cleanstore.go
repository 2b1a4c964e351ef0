// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relicforge/rescompserver/pkg/config"
	"github.com/relicforge/rescompserver/pkg/recordstore"
)

func newCleanStoreCommand() *cobra.Command {
	var configPath string
	var recordStorePath string

	cmd := &cobra.Command{
		Use:   "clean-store",
		Short: "drop every record from the durable record store",
		RunE: func(_ *cobra.Command, _ []string) error {
			path := recordStorePath
			if path == "" {
				cfg, err := config.Load(configPath)
				if err != nil {
					return err
				}
				path = cfg.RecordStorePath
			}
			if err := recordstore.Clean(path); err != nil {
				return err
			}
			fmt.Printf("cleaned record store at %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "rescompserver.yaml", "path to the server config file (used if --record-store-path is not set)")
	cmd.Flags().StringVar(&recordStorePath, "record-store-path", "", "path to the record store, overriding the config file")

	return cmd
}
