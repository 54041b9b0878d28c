// Copyright (c) 2025 iampl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"os"

	"iampl/cli/internal/config"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or initialise iampl settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings after all layers are applied",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Print(string(b))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default settings to the user config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := config.UserPath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(p); err == nil {
			fmt.Printf("⚠️  %s already exists\n", p)
			return nil
		}
		if err := config.Save(config.Default()); err != nil {
			return err
		}
		fmt.Printf("✅ Wrote %s\n", p)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configInitCmd)
}
