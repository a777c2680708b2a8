// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package cmd holds the commands of the ongpym tool.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ongpym/labctl/lib/config"
	"github.com/ongpym/labctl/lib/connutil"
)

// RootOptions holds the global flags and what PersistentPreRunE builds
// from them.
type RootOptions struct {
	ConfigFile string
	LogLevel   string
	Verbose    bool

	Conn   connutil.Conn
	Config *config.Config
	Log    *logrus.Logger

	logCloser io.Closer
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "ongpym",
		Short: "Lab measurement automation",
		Long: `Run the measurement procedures of the lab against the instruments
listed in the configuration file.

Without a configuration file every instrument is simulated.

Examples:
  ongpym list
  ongpym params resistance
  ongpym run resistance -p V_max=5 -p V_step=0.5
  ongpym idn e36106a n7744c
  ongpym raw mdo3052 '*IDN?'`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return opts.teardown()
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigFile, "config", "c", "", "configuration file (default "+config.DefaultFile+" if present)")
	pf.StringVar(&opts.LogLevel, "log-level", "", "log level, overriding the configuration")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")
	opts.Conn.AddFlags(pf)

	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewParamsCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewIDNCommand(opts))
	cmd.AddCommand(NewPortsCommand(opts))
	cmd.AddCommand(NewRawCommand(opts))
	return cmd
}

// loadConfig reads the configuration file, falling back to the defaults
// when no file was named and the default file does not exist.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	path := o.ConfigFile
	if path == "" {
		if _, err := os.Stat(config.DefaultFile); errors.Is(err, fs.ErrNotExist) {
			return config.Default(), nil
		}
		path = config.DefaultFile
	}
	return config.Load(path)
}

func (o *RootOptions) setup() error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	log, closer, err := config.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	if o.LogLevel != "" {
		level, err := logrus.ParseLevel(o.LogLevel)
		if err != nil {
			closer.Close()
			return err
		}
		log.SetLevel(level)
	}
	if o.Verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	o.Config, o.Log, o.logCloser = cfg, log, closer
	o.Conn.Config, o.Conn.Log = cfg, log
	return nil
}

func (o *RootOptions) teardown() error {
	err := o.Conn.Close()
	if o.logCloser != nil {
		if cerr := o.logCloser.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// commandContext returns the context of cmd, which is nil unless the
// command was run through ExecuteContext.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
