// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ongpym/labctl/experiments"
	"github.com/ongpym/labctl/lib/procedure"
	"github.com/ongpym/labctl/lib/results"
)

// NewParamsCommand creates the params command.
func NewParamsCommand(opts *RootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "params <procedure>",
		Short: "Show the parameters of a procedure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := experiments.New(args[0], &opts.Conn)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(p.Parameters())
			}
			printSchema(cmd.OutOrStdout(), p.Parameters())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the parameters as JSON")
	return cmd
}

func printSchema(w io.Writer, s procedure.Schema) {
	for _, p := range s {
		def := results.FormatValue(p.Default)
		if p.Units != "" {
			def += " " + p.Units
		}
		fmt.Fprintf(w, "%-22s %-7s %-14s %s\n", p.Name, p.Kind, def, describe(p))
	}
}

// describe renders the accepted values and the doc string of p.
func describe(p procedure.Parameter) string {
	var parts []string
	switch {
	case len(p.Choices) > 0:
		cs := make([]string, len(p.Choices))
		for i, c := range p.Choices {
			cs[i] = results.FormatValue(c)
		}
		parts = append(parts, "{"+strings.Join(cs, ", ")+"}")
	case p.Bounded:
		parts = append(parts, fmt.Sprintf("[%g, %g]", p.Min, p.Max))
	}
	if p.Doc != "" {
		parts = append(parts, p.Doc)
	}
	return strings.Join(parts, " ")
}
