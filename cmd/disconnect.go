// Copyright (c) 2025 iampl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"

	"iampl/cli/internal/keychain"

	"github.com/spf13/cobra"
)

// disconnectCmd removes the saved export DSN from the OS keychain.
var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Remove the saved export database connection",
	Long: `The disconnect command deletes the export DSN stored by 'iampl connect' from the
OS keychain. IAMPL_EXPORT_DSN, if set, is not affected.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		km, err := keychain.GetManager()
		if err != nil {
			fmt.Println("❌ Secure storage is not available on this system")
			return err
		}
		if err := km.ClearExportDSN(); err != nil {
			return err
		}
		fmt.Println("✅ Export database connection has been removed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(disconnectCmd)
}
