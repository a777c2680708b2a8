// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ongpym/labctl/experiments"
)

// NewListCommand creates the list command.
func NewListCommand(opts *RootOptions) *cobra.Command {
	var instruments bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List procedures, or the configured instruments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if instruments {
				for _, name := range opts.Config.InstrumentNames() {
					addr, err := opts.Conn.Address(name)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%-10s %s\n", name, addr)
				}
				return nil
			}
			for _, name := range experiments.Names() {
				fmt.Fprintf(out, "%-24s %s\n", name, experiments.Title(name))
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&instruments, "instruments", "i", false, "list instruments and their addresses")
	return cmd
}
