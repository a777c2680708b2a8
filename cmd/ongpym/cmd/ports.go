// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ongpym/labctl/lib/transport"
)

// NewPortsCommand creates the ports command.
func NewPortsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports and USB serial adapters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			ports, err := transport.Ports()
			if err != nil {
				return err
			}
			for _, p := range ports {
				fmt.Fprintln(out, p)
			}
			ttys, err := transport.AllUsbTtys(transport.SysRoot, opts.Log)
			if err != nil {
				// not every system exposes sysfs
				opts.Log.WithError(err).Debug("listing USB adapters")
				return nil
			}
			for i := range ttys {
				mark := ""
				if transport.PrologixFilter(&ttys[i]) {
					mark = " (Prologix)"
				}
				fmt.Fprintf(out, "%s%s\n", ttys[i], mark)
			}
			return nil
		},
	}
}
