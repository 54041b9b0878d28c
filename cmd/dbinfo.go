// Copyright (c) 2025 iampl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"iampl/cli/internal/export"
	"iampl/cli/internal/keychain"
	"iampl/cli/internal/logging"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	dbinfoOffline bool
)

// dbinfoCmd shows the export database with the password masked, and what it holds.
var dbinfoCmd = &cobra.Command{
	Use:   "dbinfo",
	Short: "Show the export database connection",
	Long: `The dbinfo command displays the configured export DSN with the password masked,
then connects to report the server version and how many rows the export table holds.
Use --offline to skip the connection.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		dsn := ""
		if env := os.Getenv(export.EnvDSN); strings.TrimSpace(env) != "" {
			dsn = strings.TrimSpace(env)
			pterm.Printfln("Using DSN from %s environment variable", export.EnvDSN)
			pterm.Println()
		} else {
			km, err := keychain.GetManager()
			if err != nil {
				pterm.Println("❌ Secure storage is not available on this system")
				pterm.Printfln("   Set %s instead", export.EnvDSN)
				return err
			}
			dsn, err = km.LoadExportDSN()
			if err != nil || strings.TrimSpace(dsn) == "" {
				pterm.Println("⚠️  No export database configured")
				pterm.Println("   Please run: iampl connect")
				return nil
			}
			pterm.Println("Using DSN from OS keychain")
			pterm.Println()
		}

		pterm.DefaultBox.
			WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("Export Database")).
			WithPadding(1).
			Println(logging.Mask(dsn))
		pterm.Println()

		if !dbinfoOffline {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			if err := describeExport(ctx, dsn); err != nil {
				pterm.Println("❌ " + logging.PresentError("Could not query the database", err))
				pterm.Println()
			}
		}

		pterm.Println("To update this connection, run: iampl connect")
		pterm.Println()
		return nil
	},
}

func describeExport(ctx context.Context, dsn string) error {
	ex, err := export.Open(ctx, dsn, cfg.Export.Table, logger)
	if err != nil {
		return err
	}
	defer ex.Close()

	info, err := ex.Info(ctx)
	if err != nil {
		return err
	}
	rows, err := ex.Count(ctx)
	if err != nil {
		return err
	}
	data := pterm.TableData{
		{"Server", info.Version},
		{"Database", info.Database},
		{"User", info.User},
		{"Host", fmt.Sprintf("%s:%d", info.Host, info.Port)},
		{"Table", fmt.Sprintf("%s (%d rows)", cfg.Export.Table, rows)},
	}
	return pterm.DefaultTable.WithData(data).Render()
}

func init() {
	rootCmd.AddCommand(dbinfoCmd)
	dbinfoCmd.Flags().BoolVar(&dbinfoOffline, "offline", false, "Do not connect to the database")
}
