// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/ongpym/labctl"
	"github.com/ongpym/labctl/experiments"
	"github.com/ongpym/labctl/instruments/toptica"
)

type identifier interface {
	ID() (string, error)
}

// identify returns the driver that knows how to identify the named
// instrument.
func identify(name string, a labctl.Adapter, opts ...labctl.Option) identifier {
	if name == experiments.TunableLaser {
		return toptica.NewCTL(a, opts...)
	}
	return labctl.NewInstrument(name, a, nil, opts...)
}

// NewIDNCommand creates the idn command.
func NewIDNCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "idn [instrument...]",
		Short: "Query the identification of instruments",
		Long: `Query the identification of the named instruments, or of every
configured instrument when none is named. Unreachable instruments are
reported and the others still queried.`,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			defer func() { err = multierr.Append(err, opts.Conn.Close()) }()
			names := args
			if len(names) == 0 {
				names = opts.Config.InstrumentNames()
			}
			out := cmd.OutOrStdout()
			for _, name := range names {
				id, ierr := queryID(cmd, opts, name)
				if ierr != nil {
					opts.Log.WithError(ierr).WithField("instrument", name).Error("identification failed")
					err = multierr.Append(err, fmt.Errorf("%s: %w", name, ierr))
					continue
				}
				fmt.Fprintf(out, "%-10s %s\n", name, id)
			}
			return err
		},
	}
}

func queryID(cmd *cobra.Command, opts *RootOptions, name string) (string, error) {
	a, err := opts.Conn.Open(commandContext(cmd), name)
	if err != nil {
		return "", err
	}
	defer a.Close()
	return identify(name, a, labctl.WithLogger(opts.Log)).ID()
}
