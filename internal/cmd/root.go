// Package cmd implements the mta command line tool.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jusunglee/mta-arrivals/internal/config"
	"github.com/jusunglee/mta-arrivals/internal/logging"
)

// MtaCtlApp carries state shared by every subcommand
type MtaCtlApp struct {
	ConfigPath string
	LogLevel   string

	// stderr receives diagnostics; nil means os.Stderr
	stderr io.Writer
}

func Execute() error {
	app := &MtaCtlApp{}
	rootCmd := NewRootCmd(app)
	return rootCmd.Execute()
}

func NewRootCmd(app *MtaCtlApp) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "mta",
		Short:         "CLI tool for subway arrivals and reference data",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(
		&app.ConfigPath,
		"config",
		"",
		"Path to configuration file (.yaml or .toml)",
	)
	cmd.PersistentFlags().StringVar(
		&app.LogLevel,
		"log-level",
		"",
		"Diagnostic log level (default from config, warn without one)",
	)

	cmd.AddCommand(NewArrivalsCmd(app))
	cmd.AddCommand(NewBuildStationsCmd(app))
	cmd.AddCommand(NewDumpFeedCmd(app))

	return cmd
}

// loadConfig reads the config file, applies flag overrides and validates the result
func (app *MtaCtlApp) loadConfig(overrides ...func(*config.Config)) (config.Config, error) {
	cfg, err := config.Load(app.ConfigPath)
	if err != nil {
		return cfg, err
	}
	for _, override := range overrides {
		override(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("after flag overrides: %w", err)
	}
	return cfg, nil
}

func (app *MtaCtlApp) logger() *slog.Logger {
	level := app.LogLevel
	if level == "" {
		level = "warn"
	}
	return logging.NewStructuredLogger(app.stderrWriter(), logging.ParseLevel(level))
}

// diagnosticLogger writes to cfg.Log.File when one is configured, truncating
// it first, and to stderr otherwise. The returned func releases the file.
func (app *MtaCtlApp) diagnosticLogger(cfg config.Config) (*slog.Logger, func(), error) {
	level := app.LogLevel
	if level == "" {
		level = cfg.Log.Level
	}
	if cfg.Log.File == "" {
		return logging.NewStructuredLogger(app.stderrWriter(), logging.ParseLevel(level)), func() {}, nil
	}

	logger, closer, err := logging.OpenDiagnosticLog(cfg.Log.File, logging.ParseLevel(level))
	if err != nil {
		return nil, nil, err
	}
	return logger, func() { logging.SafeCloseWithLogging(closer, logger, "diagnostic_log") }, nil
}

func (app *MtaCtlApp) stderrWriter() io.Writer {
	if app.stderr == nil {
		return os.Stderr
	}
	return app.stderr
}
