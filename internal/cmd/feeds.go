package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/jusunglee/mta-arrivals/internal/feed"
)

func NewDumpFeedCmd(app *MtaCtlApp) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "dump-feed [feed...]",
		Short: "Save raw feeds as JSON and print entity counts (all feeds by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.loadConfig()
			if err != nil {
				return err
			}

			keys := args
			if len(keys) == 0 {
				keys = feed.Keys()
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create %s: %w", dir, err)
			}

			logger, closeLog, err := app.diagnosticLogger(cfg)
			if err != nil {
				return err
			}
			defer closeLog()

			fetcher := feed.NewFetcher(cfg.Feeds, feed.WithLogger(logger))
			defer fetcher.Close()

			out := cmd.OutOrStdout()
			marshal := protojson.MarshalOptions{Multiline: true, Indent: "  "}

			var failed int
			for _, key := range keys {
				fmt.Fprintf(out, "\nFetching feed: %s\n", key)

				message, err := fetcher.Fetch(cmd.Context(), key)
				if err != nil {
					fmt.Fprintf(out, "  error: %v\n", err)
					failed++
					continue
				}

				data, err := marshal.Marshal(message)
				if err != nil {
					return fmt.Errorf("encode feed %s: %w", key, err)
				}

				name := filepath.Join(dir, fmt.Sprintf("raw_feed_%s_%s.json", key, time.Now().UTC().Format("20060102_150405")))
				if err := os.WriteFile(name, data, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", name, err)
				}

				s := feed.Summarize(message)
				fmt.Fprintf(out, "  saved to: %s\n", name)
				fmt.Fprintf(out, "  Total entities: %d\n", s.Entities)
				fmt.Fprintf(out, "  Trip updates: %d\n", s.TripUpdates)
				fmt.Fprintf(out, "  Vehicle positions: %d\n", s.Vehicles)
				fmt.Fprintf(out, "  Service alerts: %d\n", s.Alerts)
			}

			if failed == len(keys) {
				return fmt.Errorf("all %d feeds failed", failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "examples", "Directory for saved feeds")

	return cmd
}
