// Copyright (c) 2025 iampl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"iampl/cli/internal/display"
	"iampl/cli/internal/render"

	"github.com/spf13/cobra"
)

var (
	showEntity string
	showKey    string
	showJSON   bool
)

// showCmd runs files quietly and prints one entity value.
var showCmd = &cobra.Command{
	Use:   "show [FILE...] --entity NAME",
	Short: "Run AMPL files and print the value of one entity",
	Long: `The show command executes the given files (stdin when none) and prints the current
value of an entity. With --key only one element is read, e.g. --key a,2 reads NAME['a', 2].`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if showEntity == "" {
			return fmt.Errorf("--entity is required")
		}
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
			if err := execute(ctx, d, src.name, src.code); err != nil {
				return err
			}
		}

		res, err := d.ValueOf(ctx, showEntity, display.ParseKey(showKey))
		if err != nil {
			return err
		}
		if showJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res.AsMap())
		}
		text, err := render.Value(res)
		if err != nil {
			return err
		}
		fmt.Print(text)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().StringVarP(&showEntity, "entity", "e", "", "Entity to print")
	showCmd.Flags().StringVarP(&showKey, "key", "k", "", "Comma-separated key of one element")
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Print the value as JSON")
}
