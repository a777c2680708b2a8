// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package keysight

import (
	"fmt"
	"strings"

	"github.com/ongpym/labctl"
)

// N7744CChannels is the number of optical inputs of the N7744C.
const N7744CChannels = 4

// Power units of the N7744C and N7776C.
const (
	UnitDBm  = "dBm"
	UnitWatt = "W"
)

var powerUnits = map[any]any{UnitDBm: 0, UnitWatt: 1}

var onOff = map[any]any{true: 1, false: 0}

// PowerRanges are the manual ranges of the N7744C inputs in dBm.
var PowerRanges = []any{-30, -20, -10, 0, 10}

// TriggerInputs are the accepted trigger input settings: ignore, single
// measurement, complete measurement, multiple measurements and prebuffer.
var TriggerInputs = []any{"IGN", "SME", "CME", "MME", "PRE"}

// Channel properties; every template is rendered as :SENS<n>:..., :TRIG<n>:...
var n7744cChannelProps = labctl.NewTable(
	labctl.Property{
		Name:     "power_unit",
		Query:    ":SENS:POW:UNIT?",
		Write:    ":SENS:POW:UNIT %d",
		Validate: labctl.OneOf(UnitDBm, UnitWatt),
		Map:      powerUnits,
	},
	labctl.Property{
		Name:     "wavelength",
		Doc:      "Calibration wavelength in meters.",
		Query:    ":SENS:POW:WAV?",
		Write:    ":SENS:POW:WAV %g",
		Validate: labctl.Range(1250e-9, 1650e-9),
		Format:   labctl.ToFloat,
	},
	labctl.Property{
		Name:     "power_range",
		Doc:      "Manual power range in dBm.",
		Query:    ":SENS:POW:RANG?",
		Write:    ":SENS:POW:RANG %g",
		Validate: labctl.OneOf(PowerRanges...),
		Format:   labctl.ToFloat,
	},
	labctl.Property{
		Name:     "auto_range",
		Query:    ":SENS:POW:RANG:AUTO?",
		Write:    ":SENS:POW:RANG:AUTO %d",
		Validate: labctl.Bools(),
		Map:      onOff,
	},
	labctl.Property{
		Name:     "auto_gain",
		Query:    ":SENS:POW:GAIN:AUTO?",
		Write:    ":SENS:POW:GAIN:AUTO %d",
		Validate: labctl.Bools(),
		Map:      onOff,
	},
	labctl.Property{
		Name:     "averaging_time",
		Doc:      "Averaging time in seconds.",
		Query:    ":SENS:POW:ATIM?",
		Write:    ":SENS:POW:ATIM %g",
		Validate: labctl.Range(1e-6, 10),
		Format:   labctl.ToFloat,
	},
	labctl.Property{
		Name:     "loop_number",
		Query:    ":SENS:FUNC:LOOP?",
		Write:    ":SENS:FUNC:LOOP %d",
		Validate: labctl.Range(1, 1e6),
		Format:   labctl.ToInt,
	},
	labctl.Property{
		Name:   "logging_parameters",
		Doc:    "Number of points and averaging time of a logging run.",
		Query:  ":SENS:FUNC:PAR:LOGG?",
		Write:  ":SENS:FUNC:PAR:LOGG %d,%g",
		Count:  2,
		Format: formatLogging,
	},
	labctl.Property{
		Name:     "function_state",
		Doc:      "Logging function and its progress, e.g. LOGGING_STABILITY,PROGRESS.",
		Query:    ":SENS:FUNC:STAT?",
		Write:    ":SENS:FUNC:STAT %s",
		Validate: labctl.OneOf("LOGG,STAR", "LOGG,STOP"),
		Count:    2,
	},
	labctl.Property{
		Name:     "continuous_mode",
		Query:    ":INIT:CONT?",
		Write:    ":INIT:CONT %d",
		Validate: labctl.Bools(),
		Map:      onOff,
	},
	labctl.Property{
		Name:     "trigger_delay",
		Query:    ":TRIG:DEL?",
		Write:    ":TRIG:DEL %g",
		Validate: labctl.Range(0, 10),
		Format:   labctl.ToFloat,
	},
	labctl.Property{
		Name:     "trigger_edge",
		Doc:      "0 triggers on the rising edge, 1 on the falling edge.",
		Query:    ":TRIG:INP:EDGE?",
		Write:    ":TRIG:INP:EDGE %d",
		Validate: labctl.OneOf(0, 1),
		Format:   labctl.ToInt,
	},
	labctl.Property{
		Name:     "trigger_input",
		Query:    ":TRIG:INP?",
		Write:    ":TRIG:INP %s",
		Validate: labctl.OneOf(TriggerInputs...),
	},
	labctl.Property{
		Name:   "trigger_offset",
		Query:  ":TRIG:OFFS?",
		Write:  ":TRIG:OFFS %d",
		Format: labctl.ToInt,
	},
)

var n7744cProps = labctl.NewTable(
	labctl.Property{
		Name:     "wavelength",
		Doc:      "Calibration wavelength of all inputs in meters.",
		Query:    ":SENS:POW:WAV:ALL?",
		Write:    ":SENS:POW:WAV:ALL %g",
		Validate: labctl.Range(1250e-9, 1650e-9),
		Format:   labctl.ToFloat,
	},
	labctl.Property{
		Name:     "power_unit",
		Doc:      "Power unit of all inputs. Read back with PowerUnits.",
		Write:    "SENS:POW:UNIT:ALL %d",
		Validate: labctl.OneOf(UnitDBm, UnitWatt),
		Map:      powerUnits,
	},
)

func formatLogging(v any) (any, error) {
	args, ok := v.([]any)
	if !ok || len(args) != 2 {
		return nil, fmt.Errorf("want [points, averaging time], got %v", v)
	}
	n, err := labctl.ToInt(args[0])
	if err != nil {
		return nil, err
	}
	tau, err := labctl.ToFloat(args[1])
	if err != nil {
		return nil, err
	}
	return []any{n, tau}, nil
}

// N7744C is a Keysight N7744C four-channel optical power meter.
type N7744C struct {
	*labctl.Instrument
}

// NewN7744C returns a driver communicating over a.
func NewN7744C(a labctl.Adapter, opts ...labctl.Option) *N7744C {
	opts = append([]labctl.Option{labctl.WithChannels(N7744CChannels, n7744cChannelProps)}, opts...)
	return &N7744C{labctl.NewInstrument("N7744C", a, n7744cProps, opts...)}
}

// Reset restores the power-on defaults.
func (m *N7744C) Reset() error { return m.Write("*RST") }

// ZeroAll zeroes the electrical offsets of all inputs.
func (m *N7744C) ZeroAll() error { return m.Write(":SENS:CORR:COLL:ZERO:ALL") }

// PowerUnits returns the power unit of every input.
func (m *N7744C) PowerUnits() ([]string, error) {
	reply, err := m.Ask("SENS:POW:UNIT:ALL:CSV?")
	if err != nil {
		return nil, err
	}
	return labctl.SplitReply(reply), nil
}

// Sensor returns the input n, counted from 1.
func (m *N7744C) Sensor(n int) (*Sensor, error) {
	ch, err := m.Channel(n)
	if err != nil {
		return nil, err
	}
	return &Sensor{ch}, nil
}

// SensorByName resolves a channel name such as "CH2".
func (m *N7744C) SensorByName(name string) (*Sensor, error) {
	n, err := ChannelNumber(name)
	if err != nil {
		return nil, err
	}
	return m.Sensor(n)
}

// Sensor is one optical input of the N7744C.
type Sensor struct {
	labctl.Channel
}

// SetupLogging prepares a logging run of n points averaged over tau seconds.
func (s *Sensor) SetupLogging(n int, tau float64) error {
	return s.Set("logging_parameters", []any{n, tau})
}

// StartLogging starts the logging function.
func (s *Sensor) StartLogging() error { return s.Set("function_state", "LOGG,STAR") }

// StopLogging aborts the logging function.
func (s *Sensor) StopLogging() error { return s.Set("function_state", "LOGG,STOP") }

// InProgress reports whether the logging function has not completed yet.
func (s *Sensor) InProgress() (bool, error) {
	v, err := s.Get("function_state")
	if err != nil {
		return false, err
	}
	state := v.([]any)
	return !strings.EqualFold(labctl.AsString(state[1]), "COMPLETE"), nil
}

// Result reads the data of the last logging run.
func (s *Sensor) Result() ([]float64, error) {
	return s.ReadBinaryBlock(":SENS:FUNC:RES?", labctl.Float32LSBFormat)
}

// Trigger starts a measurement by software.
func (s *Sensor) Trigger() error { return s.Write(":TRIG 1") }

// Zero zeroes the electrical offset of the input.
func (s *Sensor) Zero() error { return s.Write(":SENS:CORR:COLL:ZERO") }

// ChannelNumber parses channel names of the form CH<n>.
func ChannelNumber(name string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(strings.ToUpper(strings.TrimSpace(name)), "CH%d", &n); err != nil {
		return 0, &labctl.ValidationError{Name: "channel", Value: name, Reason: "expected CH<n>"}
	}
	return n, nil
}
