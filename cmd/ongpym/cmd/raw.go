// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

// NewRawCommand creates the raw command.
func NewRawCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "raw <instrument> <command>...",
		Short: "Send commands to an instrument",
		Long: `Send each command to the instrument. Commands containing a question
mark are queries and their reply is printed.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			defer func() { err = multierr.Append(err, opts.Conn.Close()) }()
			a, err := opts.Conn.Open(commandContext(cmd), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, c := range args[1:] {
				if !strings.Contains(c, "?") {
					if err := a.Write(c); err != nil {
						return err
					}
					continue
				}
				reply, err := a.Ask(c)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, reply)
			}
			return nil
		},
	}
}
