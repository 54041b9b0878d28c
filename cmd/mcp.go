// Copyright (c) 2025 iampl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"iampl/cli/internal/mcpserver"

	"github.com/spf13/cobra"
)

// mcpCmd offers an AMPL session to assistants over MCP on stdio.
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve an AMPL session as MCP tools on stdin/stdout",
	Long: `The mcp command starts AMPL and speaks the Model Context Protocol on stdin and
stdout, offering the tools execute, entities, value and interrupt. Logs go to stderr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		// stdout carries the protocol
		cfg.Echo = false
		d, err := startDriver(ctx)
		if err != nil {
			return err
		}
		defer stopDriver(d)

		return mcpserver.Run(ctx, d, Version, logger)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
