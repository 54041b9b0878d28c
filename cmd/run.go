// Copyright (c) 2025 iampl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"

	"iampl/cli/internal/render"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	runQuiet bool
)

// runCmd executes AMPL files in one session and lists the entities they defined.
var runCmd = &cobra.Command{
	Use:   "run [FILE...]",
	Short: "Run AMPL files and list the entities they define",
	Long: `The run command starts AMPL, executes each file in order (stdin when no file or
"-" is given) and prints the parameters, sets, variables, objectives and constraints
defined afterwards. Ctrl-C interrupts the running statement.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sources, err := readSources(args)
		if err != nil {
			return err
		}
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		d, err := startDriver(ctx)
		if err != nil {
			return err
		}
		defer stopDriver(d)

		for _, src := range sources {
			logger.Debug("running", logger.Args("source", src.name, "bytes", len(src.code)))
			if err := execute(ctx, d, src.name, src.code); err != nil {
				return err
			}
		}
		if runQuiet {
			return nil
		}

		table, err := render.Entities(d.Entities())
		if err != nil {
			return err
		}
		pterm.Println()
		fmt.Println(table)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Do not list entities afterwards")
}
