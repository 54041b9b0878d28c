// Copyright (c) 2025 iampl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"
)

var (
	// Version holds the CLI version information.
	// This value is typically set at build time using -ldflags.
	Version = "0.0.0-dev"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the CLI version and the AMPL executable in use",
	RunE: func(cmd *cobra.Command, args []string) error {
		printVersion()
		return nil
	},
}

func printVersion() {
	fmt.Printf("iampl %s\n", Version)
	if p, err := exec.LookPath(cfg.AMPL.Path); err == nil {
		fmt.Printf("ampl  %s\n", p)
	} else {
		fmt.Printf("ampl  %s (not found)\n", cfg.AMPL.Path)
	}
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
