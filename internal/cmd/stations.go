package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jusunglee/mta-arrivals/internal/stationdb"
	"github.com/jusunglee/mta-arrivals/internal/store"
)

func NewBuildStationsCmd(app *MtaCtlApp) *cobra.Command {
	var gtfsPath, linesPath, outPath string

	cmd := &cobra.Command{
		Use:   "build-stations",
		Short: "Build the stations JSON from a static GTFS zip and the MTA stations CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			builder := stationdb.NewBuilder(app.logger())
			stations, err := builder.BuildFromFiles(gtfsPath, linesPath)
			if err != nil {
				return err
			}

			data, err := store.MarshalStations(stations)
			if err != nil {
				return err
			}
			if err := os.WriteFile(outPath, append(data, '\n'), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", outPath, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d stations to %s\n", len(stations), outPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&gtfsPath, "gtfs", "", "Static GTFS zip")
	cmd.Flags().StringVar(&linesPath, "lines", "", "MTA stations CSV with daytime routes")
	cmd.Flags().StringVar(&outPath, "out", "data/mta_stations.json", "Output file")
	_ = cmd.MarkFlagRequired("gtfs")

	return cmd
}
