// Copyright (c) 2025 iampl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"

	"iampl/cli/internal/entity"
	"iampl/cli/internal/export"
	"iampl/cli/internal/logging"
	"iampl/cli/internal/render"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	exportMatch string
	exportTable string
)

// exportCmd runs files and copies the resulting entity values into PostgreSQL.
var exportCmd = &cobra.Command{
	Use:   "export [FILE...]",
	Short: "Run AMPL files and export entity values to PostgreSQL",
	Long: `The export command executes the given files (stdin when none), reads every entity
(or those matching --match) and writes one row per element into the export table.
All rows of one export share a run id.

The database comes from IAMPL_EXPORT_DSN or the DSN saved by 'iampl connect'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		table := cfg.Export.Table
		if exportTable != "" {
			table = exportTable
		}
		dsn, err := export.ResolveDSN()
		if err != nil {
			return err
		}
		sources, err := readSources(args)
		if err != nil {
			return err
		}
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		ex, err := export.Open(ctx, dsn, table, logger)
		if err != nil {
			return err
		}
		defer ex.Close()
		if err := ex.EnsureTable(ctx); err != nil {
			return err
		}

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

		list := d.Entities()
		if exportMatch != "" {
			if list, err = d.Match(exportMatch); err != nil {
				return err
			}
		}
		if len(list) == 0 {
			pterm.Println("⚠️  Nothing to export")
			return nil
		}

		sp := render.StartSpinner(fmt.Sprintf("exporting %d entities", len(list)))
		sum, err := ex.Export(ctx, d, exportItems(list))
		sp.Stop()
		if err != nil {
			fmt.Println("❌ Export failed")
			return err
		}
		fmt.Printf("✅ Exported %d rows from %d entities\n", sum.Rows, sum.Entities)
		fmt.Printf("   run id %s → %s\n", sum.RunID, logging.Mask(dsn))
		return nil
	},
}

func exportItems(list []*entity.Entity) []export.Item {
	items := make([]export.Item, 0, len(list))
	for _, e := range list {
		items = append(items, export.Item{Name: e.Name, Class: e.Class.Label()})
	}
	return items
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportMatch, "match", "m", "", "Only export entities matching this glob")
	exportCmd.Flags().StringVar(&exportTable, "table", "", "Destination table (overrides export.table)")
}
