// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package connutil opens the configured instruments for the command line
// tools, applying the bus flags shared by every command.
package connutil

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"

	"github.com/ongpym/labctl"
	"github.com/ongpym/labctl/lib/cmdlog"
	"github.com/ongpym/labctl/lib/config"
	"github.com/ongpym/labctl/lib/monitor"
	"github.com/ongpym/labctl/lib/transport"
)

type Conn struct {
	Config  *config.Config
	Log     logrus.FieldLogger
	Metrics *monitor.Metrics // optional

	PrologixPort string
	AR488        bool
	Clear        bool
	Timeout      time.Duration
	Trace        bool
	Simulate     bool

	mu       sync.Mutex
	adapters []labctl.Adapter
}

// AddFlags is to be called before the flag set is parsed. Flags override
// the configuration.
func (c *Conn) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.PrologixPort, "prologix-port", c.PrologixPort,
		"serial port of the Prologix GPIB controller (searched for when empty)")
	fs.BoolVar(&c.AR488, "ar488", c.AR488, "GPIB controller speaks the AR488 dialect")
	fs.BoolVar(&c.Clear, "clear", c.Clear, "send device clear when a GPIB session opens")
	fs.DurationVar(&c.Timeout, "timeout", c.Timeout, "reply timeout (0 uses the configuration)")
	fs.BoolVar(&c.Trace, "trace", c.Trace, "log every command and reply at debug level")
	fs.BoolVar(&c.Simulate, "simulate", c.Simulate, "simulate every instrument")
}

func (c *Conn) log() logrus.FieldLogger {
	if c.Log == nil {
		return labctl.DiscardLogger()
	}
	return c.Log
}

func (c *Conn) config() *config.Config {
	if c.Config == nil {
		return config.Default()
	}
	return c.Config
}

// Address returns the bus address used for the named instrument.
func (c *Conn) Address(name string) (string, error) {
	if c.Simulate {
		return "SIM::" + strings.ToUpper(name), nil
	}
	inst, err := c.config().Instrument(name)
	if err != nil {
		return "", err
	}
	return inst.Address, nil
}

// Open opens the bus of the named instrument. The adapter is closed by
// Close unless the caller closes it first.
func (c *Conn) Open(ctx context.Context, name string) (labctl.Adapter, error) {
	cfg := c.config()
	inst, err := cfg.Instrument(name)
	if err != nil && !c.Simulate {
		return nil, err
	}
	addr, err := c.Address(name)
	if err != nil {
		return nil, err
	}
	log := c.log().WithField("instrument", name)

	opts := []transport.Option{transport.WithLogger(log)}
	timeout := inst.Timeout
	if c.Timeout > 0 {
		timeout = c.Timeout
	}
	if timeout > 0 {
		opts = append(opts, transport.WithTimeout(timeout))
	}
	if inst.BaudRate > 0 {
		opts = append(opts, transport.WithBaudRate(inst.BaudRate))
	}
	if inst.Echo {
		opts = append(opts, transport.WithEcho())
	}
	if inst.Drain > 0 {
		opts = append(opts, transport.WithDrain(inst.Drain))
	}
	port := cfg.Prologix.Port
	if c.PrologixPort != "" {
		port = c.PrologixPort
	}
	if port != "" {
		opts = append(opts, transport.WithPrologixPort(port))
	}
	if c.AR488 || cfg.Prologix.AR488 {
		opts = append(opts, transport.WithAR488())
	}
	if c.Clear || cfg.Prologix.Clear {
		opts = append(opts, transport.WithDeviceClear())
	}
	eos, err := transport.ParseGpibTerm(cfg.Prologix.EOS)
	if err != nil {
		return nil, err
	}
	opts = append(opts, transport.WithGPIBTerm(eos))

	a, err := transport.Open(ctx, addr, opts...)
	if err != nil {
		return nil, err
	}
	log.WithField("address", addr).Info("connected")
	if c.Metrics != nil {
		a = c.Metrics.Wrap(name, a)
	}
	if c.Trace || inst.Trace {
		a = cmdlog.Wrap(name, a, c.log())
	}
	a = &tracked{Adapter: a}

	c.mu.Lock()
	c.adapters = append(c.adapters, a)
	c.mu.Unlock()
	return a, nil
}

// Close closes every adapter opened by c.
func (c *Conn) Close() error {
	c.mu.Lock()
	adapters := c.adapters
	c.adapters = nil
	c.mu.Unlock()
	var err error
	for _, a := range adapters {
		err = multierr.Append(err, a.Close())
	}
	return err
}

// tracked closes the adapter at most once.
type tracked struct {
	labctl.Adapter
	once sync.Once
	err  error
}

func (t *tracked) Close() error {
	t.once.Do(func() { t.err = t.Adapter.Close() })
	return t.err
}
