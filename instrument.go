// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package labctl

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// Instrument is the driver core shared by every device in this module: one
// adapter plus the property table of the driver type. Drivers embed it and
// add their imperative methods.
type Instrument struct {
	name      string
	adapter   Adapter
	props     *Table
	chanProps *Table
	channels  int
	renderer  Renderer
	log       logrus.FieldLogger
}

// Option applies an option to an Instrument.
type Option func(*Instrument)

// WithChannels declares n channels whose properties are described by props.
func WithChannels(n int, props *Table) Option {
	return func(i *Instrument) {
		i.channels = n
		i.chanProps = props
	}
}

// WithRenderer replaces the default SubsystemIndex channel renderer.
func WithRenderer(r Renderer) Option {
	return func(i *Instrument) { i.renderer = r }
}

// WithLogger sets the logger used for property writes.
func WithLogger(l logrus.FieldLogger) Option {
	return func(i *Instrument) { i.log = l }
}

// NewInstrument creates an instrument named name talking through a. props
// may be nil for drivers without declarative properties.
func NewInstrument(name string, a Adapter, props *Table, opts ...Option) *Instrument {
	i := &Instrument{
		name:     name,
		adapter:  a,
		props:    props,
		renderer: SubsystemIndex{},
		log:      DiscardLogger(),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.props == nil {
		i.props = NewTable()
	}
	if i.chanProps == nil {
		i.chanProps = NewTable()
	}
	i.log = i.log.WithField("instrument", name)
	return i
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Name returns the instrument name.
func (i *Instrument) Name() string { return i.name }

// Adapter returns the underlying adapter.
func (i *Instrument) Adapter() Adapter { return i.adapter }

// Properties returns the instrument property table.
func (i *Instrument) Properties() *Table { return i.props }

// Logger returns the instrument logger.
func (i *Instrument) Logger() logrus.FieldLogger { return i.log }

// Channels returns the number of channels.
func (i *Instrument) Channels() int { return i.channels }

// Channel returns the view of channel n (1-based).
func (i *Instrument) Channel(n int) (Channel, error) {
	if n < 1 || n > i.channels {
		return Channel{}, invalid("channel", n, "must be between 1 and %d", i.channels)
	}
	return Channel{inst: i, index: n}, nil
}

// Write sends a command.
func (i *Instrument) Write(cmd string) error { return i.adapter.Write(cmd) }

// Writef formats and sends a command.
func (i *Instrument) Writef(format string, a ...any) error {
	return i.adapter.Write(fmt.Sprintf(format, a...))
}

// Read reads one reply.
func (i *Instrument) Read() (string, error) { return i.adapter.Read() }

// Ask sends a query and returns the reply.
func (i *Instrument) Ask(cmd string) (string, error) { return i.adapter.Ask(cmd) }

// Query implements the github.com/gotmc/query Querier interface, so
// query.Float64(inst, "MEAS:VOLT?") and friends work on any instrument.
func (i *Instrument) Query(cmd string) (string, error) {
	s, err := i.adapter.Ask(cmd)
	return strings.TrimSpace(s), err
}

// ReadBinaryBlock sends cmd and decodes the block reply.
func (i *Instrument) ReadBinaryBlock(cmd string, f BlockFormat) ([]float64, error) {
	return i.adapter.ReadBinaryBlock(cmd, f)
}

// Values sends cmd and parses the comma separated numeric reply.
func (i *Instrument) Values(cmd string) ([]float64, error) {
	reply, err := i.adapter.Ask(cmd)
	if err != nil {
		return nil, err
	}
	return ParseFloats(reply)
}

// Get reads a property.
func (i *Instrument) Get(name string) (any, error) {
	return i.props.Get(i, name)
}

// Set validates and writes a property.
func (i *Instrument) Set(name string, v any) error {
	i.logSet(name, v, 0)
	return i.props.Set(i, name, v)
}

// GetFloat reads a numeric property.
func (i *Instrument) GetFloat(name string) (float64, error) {
	v, err := i.Get(name)
	if err != nil {
		return 0, err
	}
	return AsFloat(v)
}

// GetInt reads an integer property.
func (i *Instrument) GetInt(name string) (int, error) {
	v, err := i.Get(name)
	if err != nil {
		return 0, err
	}
	return AsInt(v)
}

// GetBool reads a boolean property.
func (i *Instrument) GetBool(name string) (bool, error) {
	v, err := i.Get(name)
	if err != nil {
		return false, err
	}
	return AsBool(v)
}

// GetString reads a property as a string.
func (i *Instrument) GetString(name string) (string, error) {
	v, err := i.Get(name)
	if err != nil {
		return "", err
	}
	return AsString(v), nil
}

// ID returns the *IDN? identification string.
func (i *Instrument) ID() (string, error) {
	return i.Query("*IDN?")
}

// Clear sends *CLS.
func (i *Instrument) Clear() error { return i.Write("*CLS") }

// Close closes the adapter.
func (i *Instrument) Close() error {
	i.log.Debug("closing")
	return i.adapter.Close()
}

func (i *Instrument) logSet(name string, v any, ch int) {
	l := i.log.WithFields(logrus.Fields{"property": name, "value": v})
	if ch > 0 {
		l = l.WithField("channel", ch)
	}
	l.Debug("set")
}
