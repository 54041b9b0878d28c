// Copyright (c) 2025 iampl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"

	"iampl/cli/internal/entity"
	"iampl/cli/internal/render"

	"github.com/spf13/cobra"
)

var (
	entitiesMatch string
	entitiesClass string
)

// entitiesCmd runs files quietly and lists the resulting entities.
var entitiesCmd = &cobra.Command{
	Use:   "entities [FILE...]",
	Short: "List the entities defined by AMPL files",
	Long: `The entities command executes the given files (stdin when none) and lists the
defined entities. --match filters names with a glob such as 'cost*' or 'x_{a,b}';
--class keeps one of param, set, var, objective, constraint.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var class entity.Class
		if entitiesClass != "" {
			for _, c := range entity.Classes {
				if c.Label() == entitiesClass {
					class = c
				}
			}
			if class == "" {
				return fmt.Errorf("unknown class %q", entitiesClass)
			}
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

		list := d.Entities()
		if entitiesMatch != "" {
			if list, err = d.Match(entitiesMatch); err != nil {
				return err
			}
		}
		if class != "" {
			list = filterClass(list, class)
		}
		table, err := render.Entities(list)
		if err != nil {
			return err
		}
		fmt.Println(table)
		return nil
	},
}

func filterClass(list []*entity.Entity, class entity.Class) []*entity.Entity {
	var out []*entity.Entity
	for _, e := range list {
		if e.Class == class {
			out = append(out, e)
		}
	}
	return out
}

func init() {
	rootCmd.AddCommand(entitiesCmd)
	entitiesCmd.Flags().StringVarP(&entitiesMatch, "match", "m", "", "Glob on entity names")
	entitiesCmd.Flags().StringVar(&entitiesClass, "class", "", "Only list one class (param, set, var, objective, constraint)")
}
