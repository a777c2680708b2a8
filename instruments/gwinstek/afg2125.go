// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package gwinstek provides a driver for the GW Instek AFG-2125 arbitrary
// function generator, connected through its USB virtual serial port.
package gwinstek

import (
	"github.com/ongpym/labctl"
)

// BaudRate is the fixed rate of the virtual serial port.
const BaudRate = 115200

// Waveforms of the AFG-2125.
const (
	Sine     = "SIN"
	Square   = "SQU"
	Ramp     = "RAMP"
	Pulse    = "PULS"
	Noise    = "NOIS"
	User     = "USER"
	MaxFreq  = 25e6
	MaxVolts = 10
)

var afg2125Props = labctl.NewTable(
	labctl.Property{
		Name:     "signal",
		Query:    "SOUR:FUNC?",
		Write:    "SOUR:FUNC %s",
		Validate: labctl.OneOf(Sine, Square, Ramp, Pulse, Noise, User),
	},
	labctl.Property{
		Name:     "frequency",
		Doc:      "Frequency in Hz.",
		Query:    "SOUR:FREQ?",
		Write:    "SOUR:FREQ %g",
		Validate: labctl.Range(0, MaxFreq),
		Format:   labctl.ToFloat,
	},
	labctl.Property{
		Name:     "amplitude",
		Doc:      "Amplitude in Vpp.",
		Query:    "SOUR:AMPL?",
		Write:    "SOUR:AMPL %g",
		Validate: labctl.Range(0, MaxVolts),
		Format:   labctl.ToFloat,
	},
	labctl.Property{
		Name:     "offset",
		Doc:      "DC offset in V.",
		Query:    "SOUR:DCO?",
		Write:    "SOUR:DCO %g",
		Validate: labctl.Range(-MaxVolts, MaxVolts),
		Format:   labctl.ToFloat,
	},
	labctl.Property{
		Name:     "duty_cycle",
		Doc:      "Duty cycle of the square wave in percent.",
		Query:    "SOUR:SQU:DCYC?",
		Write:    "SOUR:SQU:DCYC %g",
		Validate: labctl.Range(1, 99),
		Format:   labctl.ToFloat,
	},
	labctl.Property{
		Name:     "symmetry",
		Doc:      "Symmetry of the ramp in percent.",
		Query:    "SOUR:RAMP:SYMM?",
		Write:    "SOUR:RAMP:SYMM %g",
		Validate: labctl.Range(0, 100),
		Format:   labctl.ToFloat,
	},
	labctl.Property{
		Name:     "high_impedance",
		Doc:      "True for a high impedance load, false for 50 Ohm.",
		Query:    "OUTP:LOAD?",
		Write:    "OUTP:LOAD %s",
		Validate: labctl.Bools(),
		Map:      map[any]any{true: "INF", false: "DEF"},
	},
	labctl.Property{
		Name:     "output",
		Query:    "OUTP?",
		Write:    "OUTP %s",
		Validate: labctl.Bools(),
		Map:      map[any]any{true: "ON", false: "OFF"},
	},
)

// AFG2125 is a GW Instek AFG-2125 function generator.
type AFG2125 struct {
	*labctl.Instrument
}

// NewAFG2125 returns a driver communicating over a.
func NewAFG2125(a labctl.Adapter, opts ...labctl.Option) *AFG2125 {
	return &AFG2125{labctl.NewInstrument("AFG2125", a, afg2125Props, opts...)}
}

// Waveform configures the generated signal in one go.
type Waveform struct {
	Signal    string
	Frequency float64 // Hz
	Amplitude float64 // Vpp
	Offset    float64 // V
}

// Apply programs w, leaving the output state unchanged.
func (g *AFG2125) Apply(w Waveform) error {
	for _, s := range []struct {
		name string
		v    any
	}{
		{"signal", w.Signal},
		{"frequency", w.Frequency},
		{"amplitude", w.Amplitude},
		{"offset", w.Offset},
	} {
		if err := g.Set(s.name, s.v); err != nil {
			return err
		}
	}
	return nil
}

// Output switches the output on or off.
func (g *AFG2125) Output(on bool) error { return g.Set("output", on) }

// Reset restores the default settings.
func (g *AFG2125) Reset() error { return g.Write("*RST") }
