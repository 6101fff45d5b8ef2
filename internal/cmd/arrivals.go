package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jusunglee/mta-arrivals/internal/config"
	"github.com/jusunglee/mta-arrivals/internal/models"
	"github.com/jusunglee/mta-arrivals/pkg/mta"
)

func NewArrivalsCmd(app *MtaCtlApp) *cobra.Command {
	var stationsFile string

	cmd := &cobra.Command{
		Use:   "arrivals [station-id...]",
		Short: "Show the next arrivals for stations (defaults from config)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.loadConfig(func(c *config.Config) {
				if cmd.Flags().Changed("stations-file") {
					c.Data.StationsFile = strings.TrimSpace(stationsFile)
				}
			})
			if err != nil {
				return err
			}

			logger, closeLog, err := app.diagnosticLogger(cfg)
			if err != nil {
				return err
			}
			defer closeLog()

			clientCfg := mta.FromSettings(cfg)
			clientCfg.Logger = logger

			client, err := mta.NewLocal(clientCfg)
			if err != nil {
				return err
			}
			defer client.Close()

			result, err := client.GetTrainStatus(cmd.Context(), args)
			if err != nil {
				return err
			}
			return printStatus(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&stationsFile, "stations-file", "", "Stations JSON file (overrides config)")

	return cmd
}

func printStatus(out io.Writer, result models.StatusResult) error {
	names := make([]string, 0, len(result.Stations))
	for _, station := range result.Stations {
		names = append(names, fmt.Sprintf("%s (%s)", station.Name, station.ID))
	}
	if len(names) == 0 {
		names = append(names, "no matching stations")
	}

	fmt.Fprintf(out, "%s\n", strings.Join(names, ", "))
	fmt.Fprintf(out, "Status: %s at %s\n\n", result.Status, result.Timestamp)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LINE\tUPTOWN\tDOWNTOWN")
	for _, route := range result.Trains.Routes() {
		status := result.Trains[route]
		fmt.Fprintf(tw, "%s\t%s\t%s\n", route, directionText(status.Uptown), directionText(status.Downtown))
	}
	return tw.Flush()
}

func directionText(d models.DirectionStatus) string {
	if len(d.NextArrivals) == 0 {
		if d.Status != "" {
			return d.Status
		}
		return models.StatusNoData
	}
	return strings.Join(d.NextArrivals, ", ")
}
