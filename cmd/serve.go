// Copyright (c) 2025 iampl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"net"

	"iampl/cli/internal/rpc"

	"github.com/spf13/cobra"
)

var (
	serveAddr string
)

// serveCmd shares one AMPL session over gRPC.
var serveCmd = &cobra.Command{
	Use:   "serve [FILE...]",
	Short: "Share one AMPL session over gRPC",
	Long: `The serve command starts AMPL, optionally runs the given files, and serves the
session over gRPC until interrupted. Use 'iampl remote' to talk to it. Cancelling a
remote call interrupts the statement it started.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := cfg.Serve.Addr
		if serveAddr != "" {
			addr = serveAddr
		}
		var sources []source
		if len(args) > 0 {
			var err error
			if sources, err = readSources(args); err != nil {
				return err
			}
		}
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		cfg.Echo = false
		d, err := startDriver(ctx)
		if err != nil {
			return err
		}
		defer stopDriver(d)
		for _, src := range sources {
			if _, err := d.Execute(ctx, src.code, nil); err != nil {
				return err
			}
		}

		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}
		return rpc.Serve(ctx, lis, d, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides serve.addr)")
}
