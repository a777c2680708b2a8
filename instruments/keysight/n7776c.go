// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package keysight

import (
	"github.com/ongpym/labctl"
)

// Sweep modes of the N7776C.
const (
	SweepStepped    = "STEP"
	SweepManual     = "MAN"
	SweepContinuous = "CONT"
)

var n7776cProps = labctl.NewTable(
	labctl.Property{
		Name:     "output",
		Query:    "SOUR0:POW:STAT?",
		Write:    "SOUR0:POW:STAT %d",
		Validate: labctl.Bools(),
		Map:      onOff,
	},
	labctl.Property{
		Name:   "power",
		Doc:    "Output power in the unit selected by power_unit.",
		Query:  "SOUR0:POW?",
		Write:  "SOUR0:POW %g",
		Format: labctl.ToFloat,
	},
	labctl.Property{
		Name:     "power_unit",
		Query:    "SOUR0:POW:UNIT?",
		Write:    "SOUR0:POW:UNIT %d",
		Validate: labctl.OneOf(UnitDBm, UnitWatt),
		Map:      powerUnits,
	},
	labctl.Property{
		Name:     "trigger_out",
		Doc:      "Output trigger: disabled, averaging, measurement, modulation, step finished, sweep started, sweep finished.",
		Query:    "TRIG0:OUTP?",
		Write:    "TRIG0:OUTP %s",
		Validate: labctl.OneOf("DIS", "AVG", "MEAS", "MOD", "STF", "SWST", "SWF"),
	},
	labctl.Property{
		Name:     "trigger_in",
		Query:    "TRIG0:INP?",
		Write:    "TRIG0:INP %s",
		Validate: labctl.OneOf("IGN", "NEXT", "SWS"),
	},
	labctl.Property{
		Name:     "wl_start",
		Doc:      "Sweep start wavelength in nm.",
		Query:    "SOUR0:WAV:SWE:STAR?",
		Write:    "SOUR0:WAV:SWE:STAR %gnm",
		Validate: labctl.Range(1450, 1650),
		Format:   labctl.ToFloat,
	},
	labctl.Property{
		Name:     "wl_stop",
		Doc:      "Sweep stop wavelength in nm.",
		Query:    "SOUR0:WAV:SWE:STOP?",
		Write:    "SOUR0:WAV:SWE:STOP %gnm",
		Validate: labctl.Range(1450, 1650),
		Format:   labctl.ToFloat,
	},
	labctl.Property{
		Name:     "sweep_step",
		Doc:      "Sweep step in nm.",
		Query:    "SOUR0:WAV:SWE:STEP?",
		Write:    "SOUR0:WAV:SWE:STEP %gnm",
		Validate: labctl.Range(0.1e-3, 10),
		Format:   labctl.ToFloat,
	},
	labctl.Property{
		Name:     "sweep_speed",
		Doc:      "Sweep speed in nm/s.",
		Query:    "SOUR0:WAV:SWE:SPE?",
		Write:    "SOUR0:WAV:SWE:SPE %gnm/s",
		Validate: labctl.OneOf(0.5, 1, 2, 5, 10, 20, 40, 50, 80, 100, 150, 160, 200),
		Format:   labctl.ToFloat,
	},
	labctl.Property{
		Name:     "sweep_mode",
		Query:    "SOUR0:WAV:SWE:MODE?",
		Write:    "SOUR0:WAV:SWE:MODE %s",
		Validate: labctl.OneOf(SweepStepped, SweepManual, SweepContinuous),
	},
	labctl.Property{
		Name:  "sweep_check",
		Doc:   "Consistency check of the sweep settings, 0,OK when valid.",
		Query: "SOUR0:WAV:SWE:CHEC?",
		Count: 2,
	},
	labctl.Property{
		Name:  "sweep_points",
		Doc:   "Number of points the next sweep logs.",
		Query: "SOUR0:READ:POIN? LLOG",
	},
	labctl.Property{
		Name:     "sweep",
		Doc:      "Sweep state: 0 stopped, 1 running, 2 paused.",
		Query:    "SOUR0:WAV:SWE?",
		Write:    "SOUR0:WAV:SWE %d",
		Validate: labctl.OneOf(0, 1, 2),
		Format:   labctl.ToInt,
	},
	labctl.Property{
		Name:     "wl_logging",
		Doc:      "Lambda logging of the sweep.",
		Query:    "SOUR0:WAV:SWE:LLOG?",
		Write:    "SOUR0:WAV:SWE:LLOG %d",
		Validate: labctl.Bools(),
		Map:      onOff,
	},
)

// N7776C is a Keysight N7776C tunable laser source.
type N7776C struct {
	*labctl.Instrument
}

// NewN7776C returns a driver communicating over a.
func NewN7776C(a labctl.Adapter, opts ...labctl.Option) *N7776C {
	return &N7776C{labctl.NewInstrument("N7776C", a, n7776cProps, opts...)}
}

// Reset restores the power-on defaults.
func (l *N7776C) Reset() error { return l.Write("*RST") }

// SweepOK reports whether the sweep settings passed the instrument's
// consistency check, returning its message otherwise.
func (l *N7776C) SweepOK() (bool, string, error) {
	v, err := l.Get("sweep_check")
	if err != nil {
		return false, "", err
	}
	check := v.([]any)
	code, err := labctl.AsInt(check[0])
	if err != nil {
		return false, "", err
	}
	return code == 0, labctl.AsString(check[1]), nil
}

// SweepPoints returns the number of points the next sweep logs.
func (l *N7776C) SweepPoints() (int, error) {
	return l.GetInt("sweep_points")
}

// Sweeping reports whether a sweep is running.
func (l *N7776C) Sweeping() (bool, error) {
	state, err := l.GetInt("sweep")
	return state == 1, err
}

// WavelengthData reads the wavelengths logged during the last sweep.
func (l *N7776C) WavelengthData() ([]float64, error) {
	return l.ReadBinaryBlock("SOUR0:READ:DATA? LLOG", labctl.Float64LSBFormat)
}
