package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nvandessel/namsweep/internal/config"
	"github.com/nvandessel/namsweep/internal/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "namsweep",
		Short: "Parameter sweeps for spiking associative memory experiments",
		Long: `namsweep reads sweep configuration documents (JSON with comments),
validates them, and expands every experiment into the concrete parameter
sets a simulation backend runs.

Examples:
  namsweep validate sweeps/*.json
  namsweep summary sweeps/threshold.json
  namsweep expand sweeps/threshold.json --count
  namsweep create sweeps/threshold.json --pool-size 512`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("root", ".", "Project root directory")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: trace, debug, info, warn, error (default from config)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newValidateCmd(),
		newSummaryCmd(),
		newExpandCmd(),
		newFmtCmd(),
		newCreateCmd(),
		newPlansCmd(),
		newPoolCmd(),
		newConfigCmd(),
		newMCPServerCmd(),
	)

	return rootCmd
}

// loadConfig loads and validates the user configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the stderr logger. The --log-level flag wins over the
// configured level.
func newLogger(cmd *cobra.Command, cfg *config.Config) zerolog.Logger {
	level, _ := cmd.Flags().GetString("log-level")
	if level == "" && cfg != nil {
		level = cfg.Logging.Level
	}
	return logging.NewLogger(level, cmd.ErrOrStderr())
}
