// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/ongpym/labctl/experiments"
	"github.com/ongpym/labctl/lib/monitor"
	"github.com/ongpym/labctl/lib/plot"
	"github.com/ongpym/labctl/lib/procedure"
	"github.com/ongpym/labctl/lib/results"
)

// RunOptions holds the flags of the run command.
type RunOptions struct {
	*RootOptions
	Params  []string
	DataDir string
	Base    string
	Plot    bool
	Metrics string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "run <procedure>",
		Short: "Run a procedure and record its results",
		Long: `Run a procedure with the given parameters. Rows are written to a new
CSV file in the data directory and to every sink enabled in the
configuration. Interrupting the command stops the run at its next check
point; the instruments are still shut down and the partial data kept.

Example:
  ongpym run resistance -p V_min=0 -p V_max=5 -p V_step=0.5
  ongpym run swept-transmission --plot -p wl_start=1550 -p wl_stop=1560`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := runProcedure(commandContext(cmd), opts, args[0])
			if path != "" {
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return err
		},
	}
	f := cmd.Flags()
	f.StringArrayVarP(&opts.Params, "param", "p", nil, "parameter as name=value, repeatable")
	f.StringVarP(&opts.DataDir, "dir", "d", "", "data directory (default from the configuration)")
	f.StringVar(&opts.Base, "name", "", "base name of the data file (default the procedure name)")
	f.BoolVar(&opts.Plot, "plot", false, "save a figure next to the data file")
	f.StringVar(&opts.Metrics, "metrics-addr", "", "serve Prometheus metrics on this address (default from the configuration)")
	return cmd
}

// parseParams turns name=value pairs into raw parameter values.
func parseParams(pairs []string) (map[string]any, error) {
	values := make(map[string]any, len(pairs))
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("parameter %q is not name=value", kv)
		}
		values[k] = strings.TrimSpace(v)
	}
	return values, nil
}

// runProcedure runs the named procedure and returns the data file path.
func runProcedure(ctx context.Context, opts *RunOptions, name string) (path string, err error) {
	cfg, log := opts.Config, opts.Log
	defer func() { err = multierr.Append(err, opts.Conn.Close()) }()

	values, err := parseParams(opts.Params)
	if err != nil {
		return "", err
	}
	p, err := experiments.New(name, &opts.Conn)
	if err != nil {
		return "", err
	}
	if _, err := p.Parameters().Resolve(values); err != nil {
		return "", err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	metricsAddr := opts.Metrics
	if metricsAddr == "" {
		metricsAddr = cfg.Metrics.Addr
	}
	var observers []procedure.RunnerOption
	if metricsAddr != "" {
		m := monitor.New()
		opts.Conn.Metrics = m
		observers = append(observers, procedure.WithObserver(m.Observe))
		go func() {
			if err := m.Serve(ctx, metricsAddr, log); err != nil {
				log.WithError(err).Error("metrics endpoint")
			}
		}()
	}
	if r := cfg.Sinks.Redis; r.Addr != "" {
		pub, err := results.NewPublisher(ctx, r.Addr, r.Password, r.Channel, log)
		if err != nil {
			return "", err
		}
		defer pub.Close()
		observers = append(observers, procedure.WithObserver(pub.Observe))
	}

	dir := opts.DataDir
	if dir == "" {
		dir = cfg.DataDir
	}
	base := opts.Base
	if base == "" {
		base = p.Name()
	}
	data, path, err := results.CreateCSV(dir, base)
	if err != nil {
		return "", err
	}
	sinks := []procedure.Sink{data}
	if cfg.Sinks.SQLite != "" {
		store, err := results.OpenStore(cfg.Sinks.SQLite)
		if err != nil {
			data.Close()
			return path, err
		}
		defer store.Close()
		sinks = append(sinks, store.Sink())
	}
	if in := cfg.Sinks.Influx; in.URL != "" {
		sinks = append(sinks, results.NewInflux(in.URL, in.Token, in.Org, in.Bucket))
	}
	if opts.Plot || cfg.Sinks.Plot {
		fig := plot.Name(path)
		if fs, ok := p.(experiments.FigureSaver); ok {
			fs.SaveFigureTo(fig)
		} else if pl, ok := p.(experiments.Plotted); ok {
			x, y := pl.Axes()
			sinks = append(sinks, plot.NewSink(fig, x, y, false))
		}
	}

	runner := procedure.NewRunner(append(observers,
		procedure.WithLogger(log),
		procedure.WithObserver(progressLogger(opts)),
	)...)
	q := procedure.NewQueue(runner, 1)
	defer q.Close()

	exp, err := q.Submit(ctx, p, values, results.Tee(sinks...))
	if err != nil {
		return path, err
	}
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)
	select {
	case <-exp.Done():
	case s := <-sig:
		log.WithField("signal", s).Warn("stopping run")
		q.Abort()
	}
	return path, exp.Wait()
}

// progressLogger logs progress in steps of ten percent.
func progressLogger(opts *RunOptions) procedure.Observer {
	last := -1
	return func(ev procedure.Event) {
		if ev.Kind != procedure.ProgressEvent {
			return
		}
		if step := int(ev.Progress) / 10; step != last {
			last = step
			opts.Log.WithField("procedure", ev.Procedure).Infof("%3.0f%%", ev.Progress)
		}
	}
}
