// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bufio"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/relicforge/rescompserver/pkg/eventbus"
	"github.com/relicforge/rescompserver/pkg/log"
	"github.com/relicforge/rescompserver/pkg/recordstore"
	"github.com/relicforge/rescompserver/pkg/request"
	"github.com/relicforge/rescompserver/pkg/resolver"
	"github.com/relicforge/rescompserver/pkg/resourceid"
	"github.com/relicforge/rescompserver/pkg/workerpool"
)

// serveRequestLine is one line of the newline-delimited JSON protocol read
// from stdin (spec.md §6 leaves the client transport out of scope, so this
// is the minimal framing needed to drive the worker pool from a CLI).
type serveRequestLine struct {
	Path           string `json:"path"`
	Type           string `json:"type"`
	Origin         string `json:"origin"`
	CompilerArgs   string `json:"args"`
	ForceRecompile bool   `json:"force"`
}

func newServeCommand() *cobra.Command {
	var configPath string
	var verbosity int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the resource compilation server, reading requests from stdin",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, ctx, err := loadContext(configPath)
			if err != nil {
				return err
			}

			store, err := recordstore.Open(cfg.RecordStorePath)
			if err != nil {
				return err
			}
			defer store.Close()

			logger := log.NewDefault(os.Stderr, log.Level(verbosity))

			bus := eventbus.New()
			results, cancelResults := bus.Subscribe(256)
			defer cancelResults()

			pool := workerpool.New(ctx, store, resolver.YAMLDescriptorReader{}, cfg.WorkerCount, 256,
				workerpool.WithLogger(logger), workerpool.WithEventBus(bus))

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigCh
				logger.Warn("received shutdown signal, draining queued requests")
				if err := pool.Shutdown(); err != nil {
					logger.Errorf("worker pool reported errors during shutdown: %v", err)
				}
			}()

			go printResults(results)

			return submitFromStdin(pool, logger)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "rescompserver.yaml", "path to the server config file")
	cmd.Flags().IntVar(&verbosity, "v", 0, "log verbosity (0-2)")

	return cmd
}

// submitFromStdin reads one JSON request per line until EOF or a read
// error, submitting each to pool. Malformed lines are logged and skipped
// rather than aborting the whole stream.
func submitFromStdin(pool *workerpool.Pool, logger log.Logger) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var in serveRequestLine
		if err := json.Unmarshal(line, &in); err != nil {
			logger.Errorf("malformed request line: %v", err)
			continue
		}

		id, err := resourceid.Parse(in.Path, in.Type)
		if err != nil {
			logger.Errorf("invalid resource %q/%q: %v", in.Path, in.Type, err)
			continue
		}

		origin, err := parseOrigin(defaultString(in.Origin, "user"))
		if err != nil {
			logger.Errorf("%v", err)
			continue
		}

		req := request.New(origin, id)
		req.CompilerArgs = in.CompilerArgs
		req.ForceRecompile = in.ForceRecompile

		if err := pool.Submit(req); err != nil {
			logger.Errorf("request %s: %v", req.ID, err)
		}
	}
	return scanner.Err()
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// printResults drains the event bus subscription to stdout until the
// channel is closed, which happens when the serve command returns and
// cancels its subscription; Pool.Shutdown does not close it.
func printResults(results <-chan eventbus.Event) {
	enc := json.NewEncoder(os.Stdout)
	for ev := range results {
		_ = enc.Encode(struct {
			RequestID  string `json:"requestId"`
			ResourceID string `json:"resourceId"`
			Status     string `json:"status"`
		}{RequestID: ev.RequestID, ResourceID: ev.ResourceID.String(), Status: ev.Status.String()})
	}
}
