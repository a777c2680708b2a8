// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package experiments holds the measurement procedures of the lab: DC
// resistance and power sweeps, power meter logging, swept and resonator
// transmission, and time domain captures of modulation and voltage steps.
//
// Procedures open their instruments by name through an Opener when they
// start and close them when they shut down. A procedure value keeps the
// instruments of one run; use New for every run.
package experiments

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/ongpym/labctl"
	"github.com/ongpym/labctl/lib/mockbus"
	"github.com/ongpym/labctl/lib/procedure"
)

// Instrument names, as used in the configuration.
const (
	PowerSupply       = "e36106a"
	OpticalPowerMeter = "n7744c"
	SweptLaser        = "n7776c"
	Oscilloscope      = "mdo3052"
	TunableLaser      = "ctl"
	Generator         = "afg2125"
)

// pollInterval is the wait between status queries of long operations.
const pollInterval = time.Second

// Opener opens the bus of a configured instrument.
type Opener interface {
	Open(ctx context.Context, name string) (labctl.Adapter, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, name string) (labctl.Adapter, error)

func (f OpenerFunc) Open(ctx context.Context, name string) (labctl.Adapter, error) {
	return f(ctx, name)
}

// Simulated opens the simulator of every instrument.
func Simulated() Opener {
	return OpenerFunc(func(_ context.Context, name string) (labctl.Adapter, error) {
		return mockbus.Simulate(name)
	})
}

// Plotted is implemented by procedures that name the columns of their
// default plot.
type Plotted interface {
	Axes() (x, y string)
}

// FigureSaver is implemented by procedures that draw their own figure. The
// figure is written to path when the run ends.
type FigureSaver interface {
	SaveFigureTo(path string)
}

type entry struct {
	title string
	new   func(Opener) procedure.Procedure
}

var registry = map[string]entry{
	"resistance": {"DC resistance measurement", func(o Opener) procedure.Procedure {
		return NewResistance(o)
	}},
	"power-step": {"Power change steps", func(o Opener) procedure.Procedure {
		return NewPowerStep(o)
	}},
	"powermeter": {"N7744C power meter logger", func(o Opener) procedure.Procedure {
		return NewPowerMeter(o)
	}},
	"swept-transmission": {"Swept wavelength transmission with N7776C and N7744C", func(o Opener) procedure.Procedure {
		return NewSweptTransmission(o)
	}},
	"resonator-transmission": {"Resonator wide scan with CTL and MDO3052", func(o Opener) procedure.Procedure {
		return NewResonator(o)
	}},
	"modulation": {"Modulation time domain", func(o Opener) procedure.Procedure {
		return NewModulation(o)
	}},
	"voltage-sequence": {"Voltage sequence time domain", func(o Opener) procedure.Procedure {
		return NewVoltageSequence(o)
	}},
}

// Names lists the registered procedures.
func Names() []string {
	names := make([]string, 0, len(registry))
	for k := range registry {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Title returns the human readable title of a procedure.
func Title(name string) string { return registry[name].title }

// New returns a fresh instance of the named procedure.
func New(name string, o Opener) (procedure.Procedure, error) {
	e, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown procedure %q (have %s)", name, strings.Join(Names(), ", "))
	}
	return e.new(o), nil
}

// bench holds the adapters opened by one run.
type bench struct {
	opener   Opener
	adapters []labctl.Adapter
}

func (b *bench) open(r *procedure.Run, name string) (labctl.Adapter, error) {
	a, err := b.opener.Open(r.Context(), name)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	r.Log.WithField("instrument", name).Debug("connected")
	b.adapters = append(b.adapters, a)
	return a, nil
}

func (b *bench) close() error {
	var err error
	for _, a := range b.adapters {
		err = multierr.Append(err, a.Close())
	}
	b.adapters = nil
	return err
}

// setter is satisfied by instruments and channels.
type setter interface {
	Set(name string, v any) error
}

type setting struct {
	name string
	v    any
}

// apply writes settings in order and stops at the first error.
func apply(s setter, settings ...setting) error {
	for _, st := range settings {
		if err := s.Set(st.name, st.v); err != nil {
			return fmt.Errorf("set %s: %w", st.name, err)
		}
	}
	return nil
}

// arange returns start, start+step, ... up to but excluding stop.
func arange(start, stop, step float64) []float64 {
	if step <= 0 {
		return nil
	}
	n := int(math.Ceil((stop - start) / step))
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

// linspace returns n evenly spaced values from a to b inclusive.
func linspace(a, b float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	if n == 1 {
		out[0] = a
		return out
	}
	step := (b - a) / float64(n-1)
	for i := range out {
		out[i] = a + float64(i)*step
	}
	return out
}

// HorizontalScales are the oscilloscope time bases in s/div: 1, 2 and 4
// times every decade from 1 µs to 1 ks.
var HorizontalScales = func() []float64 {
	var out []float64
	for e := -6; e <= 3; e++ {
		d := math.Pow10(e)
		out = append(out, d, 2*d, 4*d)
	}
	return out
}()

// horizontalScale picks the smallest time base that shows a record of
// span seconds on the ten divisions of the screen.
func horizontalScale(span float64) (float64, error) {
	want := span / 10
	for _, s := range HorizontalScales {
		if s >= want {
			return s, nil
		}
	}
	return 0, &labctl.ValidationError{
		Name:   "horizontal_scale",
		Value:  want,
		Reason: fmt.Sprintf("longer than %g s/div", HorizontalScales[len(HorizontalScales)-1]),
	}
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return math.NaN()
	}
	var s float64
	for _, x := range v {
		s += x
	}
	return s / float64(len(v))
}
