// Copyright (c) 2025 iampl
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the command-line interface for iampl. It implements the
// subcommands that run AMPL files, the interactive loop, value inspection, database
// export and the gRPC and MCP front ends, using the Cobra CLI framework.
package cmd

import (
	"os"

	"iampl/cli/internal/config"
	"iampl/cli/internal/errors"
	"iampl/cli/internal/logging"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	showVersion bool
	configPath  string
	amplPath    string
	verbose     bool
	noEcho      bool

	cfg    = config.Default()
	logger = logging.Discard()
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "iampl",
	Short: "Drive the AMPL interactive process from the command line",
	Long: `iampl runs AMPL as a child process and talks to it over its framed -g protocol.
It executes model and data files, keeps an interactive session, reads back parameter,
set, variable, objective and constraint values, and can export them to PostgreSQL or
share one session over gRPC and MCP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if amplPath != "" {
			loaded.AMPL.Path = amplPath
		}
		if noEcho {
			loaded.Echo = false
		}
		level, err := logging.ParseLevel(loaded.LogLevel)
		if err != nil {
			return errors.Wrap(errors.ConfigInvalid, "log_level", err)
		}
		if verbose {
			level = pterm.LogLevelDebug
		}
		cfg = loaded
		logger = logging.New(level, os.Stderr)
		logger.Debug("config loaded", logger.Args("ampl", cfg.AMPL.Path, "args", cfg.AMPL.Args))
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			printVersion()
			return nil
		}
		return cmd.Help()
	},
}

// Execute runs the CLI application. Errors carrying a driver kind are shown as a
// panel; anything else is printed as is.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logging.PresentSessionError(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "Show version information")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: $XDG_CONFIG_HOME/iampl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&amplPath, "ampl", "", "AMPL executable (overrides ampl.path)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noEcho, "no-echo", false, "Show a spinner instead of streaming AMPL output")
}
