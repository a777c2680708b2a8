// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package transport opens sessions to instruments from VISA-style resource
// strings: serial ports, raw SCPI sockets, GPIB through a Prologix
// controller, USBTMC devices and in-process simulators.
package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ongpym/labctl"
	"github.com/ongpym/labctl/lib/mockbus"
)

// Options configures Open.
type Options struct {
	Timeout      time.Duration
	BaudRate     int
	WriteTerm    string
	ReadTerm     byte
	PrologixPort string
	AR488        bool
	EOS          GpibTerm
	Clear        bool
	Echo         bool
	Drain        time.Duration
	SysRoot      string
	Logger       logrus.FieldLogger
}

// Option applies an option to Open.
type Option func(*Options)

// WithTimeout sets the reply deadline.
func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }

// WithBaudRate sets the baud rate of serial and Prologix links.
func WithBaudRate(baud int) Option { return func(o *Options) { o.BaudRate = baud } }

// WithTerminators sets the write and read terminators.
func WithTerminators(write string, read byte) Option {
	return func(o *Options) {
		o.WriteTerm = write
		o.ReadTerm = read
	}
}

// WithPrologixPort sets the serial port of the Prologix controller used for
// GPIB resources. Without it the controller is searched for on the USB bus.
func WithPrologixPort(port string) Option { return func(o *Options) { o.PrologixPort = port } }

// WithAR488 selects the AR488 dialect of the GPIB controller.
func WithAR488() Option { return func(o *Options) { o.AR488 = true } }

// WithGPIBTerm sets the terminator the GPIB controller appends to commands.
func WithGPIBTerm(term GpibTerm) Option { return func(o *Options) { o.EOS = term } }

// WithDeviceClear sends Selected Device Clear when a GPIB session opens.
func WithDeviceClear() Option { return func(o *Options) { o.Clear = true } }

// WithEcho discards the command echo that precedes every reply.
func WithEcho() Option { return func(o *Options) { o.Echo = true } }

// WithDrain discards unsolicited output after each write until the link
// has been quiet for d.
func WithDrain(d time.Duration) Option { return func(o *Options) { o.Drain = d } }

// WithLogger sets the logger of the session.
func WithLogger(l logrus.FieldLogger) Option { return func(o *Options) { o.Logger = l } }

// Open parses address and opens a session to it. Failing to reach the
// address, or an address the bus does not know, is a *labctl.ConnectionError.
func Open(ctx context.Context, address string, opts ...Option) (labctl.Adapter, error) {
	o := Options{
		Timeout:   DefaultTimeout,
		BaudRate:  DefaultBaudRate,
		WriteTerm: "\n",
		ReadTerm:  '\n',
		SysRoot:   SysRoot,
		Logger:    labctl.DiscardLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	r, err := ParseResource(address)
	if err != nil {
		return nil, err
	}
	fail := func(err error) (labctl.Adapter, error) {
		return nil, &labctl.ConnectionError{Address: address, Err: err}
	}
	o.Logger.WithFields(logrus.Fields{"address": address, "bus": r.Kind}).Debug("opening")

	sopts := []SessionOption{
		WithSessionTimeout(o.Timeout),
		WithSessionTerminators(o.WriteTerm, o.ReadTerm),
		WithSessionLogger(o.Logger),
	}
	if o.Echo {
		sopts = append(sopts, WithSessionEcho())
	}
	if o.Drain > 0 {
		sopts = append(sopts, WithSessionDrain(o.Drain))
	}

	switch r.Kind {
	case Sim:
		bus, err := mockbus.Simulate(r.Model)
		if err != nil {
			return fail(err)
		}
		return bus, nil
	case Serial:
		link, err := openSerial(r.Device, o.BaudRate)
		if err != nil {
			return fail(err)
		}
		return NewSession(address, link, sopts...), nil
	case Socket:
		conn, err := dialSocket(ctx, r.Host, r.Port, o.Timeout)
		if err != nil {
			return fail(err)
		}
		return NewSession(address, conn, sopts...), nil
	case GPIB:
		port := o.PrologixPort
		if port == "" {
			if port, err = Find(o.SysRoot, PrologixFilter, o.Logger); err != nil {
				return fail(fmt.Errorf("locating Prologix controller: %w", err))
			}
		}
		link, err := openSerial(port, o.BaudRate)
		if err != nil {
			return fail(err)
		}
		gpib, err := NewController(link, r.Primary, o.Clear, controllerOptions(r, &o)...)
		if err != nil {
			link.Close()
			return fail(err)
		}
		return NewSession(address, gpib, sopts...), nil
	case USB:
		link, err := openUSBTMC(r.VendorID, r.ProductID, r.SerialNum)
		if err != nil {
			return fail(err)
		}
		return NewSession(address, link, sopts...), nil
	}
	return fail(fmt.Errorf("unsupported bus %s", r.Kind))
}

// controllerOptions maps the session options of a GPIB resource onto the
// controller. The controller's own read timeout follows the session timeout.
func controllerOptions(r Resource, o *Options) []ControllerOption {
	copts := []ControllerOption{
		WithControllerLogger(o.Logger),
		WithGPIBReadTimeout(o.Timeout),
		WithEOS(o.EOS),
	}
	if r.Secondary >= 0 {
		copts = append(copts, WithSecondaryAddress(r.Secondary))
	}
	if o.AR488 {
		copts = append(copts, WithAR488())
	}
	return copts
}
