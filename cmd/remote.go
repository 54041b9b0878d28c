// Copyright (c) 2025 iampl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"iampl/cli/internal/display"
	"iampl/cli/internal/entity"
	"iampl/cli/internal/rpc"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	remoteAddr string
	remoteKey  string
)

// remoteCmd groups the clients of 'iampl serve'.
var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Talk to a session shared with 'iampl serve'",
}

func dialRemote() (*rpc.Client, error) {
	addr := cfg.Serve.Addr
	if remoteAddr != "" {
		addr = remoteAddr
	}
	logger.Debug("dialing", logger.Args("addr", addr))
	return rpc.Dial(addr)
}

var remoteExecCmd = &cobra.Command{
	Use:   "exec [FILE...]",
	Short: "Run AMPL files in the remote session",
	RunE: func(cmd *cobra.Command, args []string) error {
		sources, err := readSources(args)
		if err != nil {
			return err
		}
		c, err := dialRemote()
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, stop := signalContext(cmd.Context())
		defer stop()
		for _, src := range sources {
			out, err := c.Execute(ctx, src.code)
			fmt.Print(out)
			if err != nil {
				return err
			}
		}
		return nil
	},
}

var remoteEntitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "List the entities of the remote session",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dialRemote()
		if err != nil {
			return err
		}
		defer c.Close()

		list, err := c.Entities(cmd.Context())
		if err != nil {
			return err
		}
		if len(list) == 0 {
			pterm.Println("No entities defined")
			return nil
		}
		data := pterm.TableData{{"Name", "Class"}}
		for _, e := range list {
			data = append(data, []string{e.Name, entity.Class(e.Class).Label()})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

var remoteShowCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "Print an entity value from the remote session as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dialRemote()
		if err != nil {
			return err
		}
		defer c.Close()

		v, err := c.ValueOf(cmd.Context(), args[0], display.ParseKey(remoteKey))
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	},
}

var remoteInterruptCmd = &cobra.Command{
	Use:   "interrupt",
	Short: "Interrupt the statement running in the remote session",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dialRemote()
		if err != nil {
			return err
		}
		defer c.Close()

		outcome, err := c.Interrupt(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(outcome)
		return nil
	},
}

var remoteStateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show the state of the remote session",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dialRemote()
		if err != nil {
			return err
		}
		defer c.Close()

		state, err := c.State(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(state)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(remoteCmd)
	remoteCmd.PersistentFlags().StringVar(&remoteAddr, "addr", "", "Server address (overrides serve.addr)")
	remoteShowCmd.Flags().StringVarP(&remoteKey, "key", "k", "", "Comma-separated key of one element")
	remoteCmd.AddCommand(remoteExecCmd, remoteEntitiesCmd, remoteShowCmd, remoteInterruptCmd, remoteStateCmd)
}
