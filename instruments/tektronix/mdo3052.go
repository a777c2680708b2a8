// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package tektronix provides a driver for the Tektronix MDO3052 mixed
// domain oscilloscope.
package tektronix

import (
	"fmt"

	"github.com/gotmc/query"

	"github.com/ongpym/labctl"
)

// MDO3052Channels is the number of analog inputs.
const MDO3052Channels = 2

// Input terminations.
const (
	Fifty  = "FIF"
	MegOhm = "MEG"
)

// Acquisition modes.
const (
	Sample      = "SAM"
	PeakDetect  = "PEAK"
	HiRes       = "HIR"
	Average     = "AVE"
	Envelope    = "ENV"
	SingleShot  = "SEQ"
	RunStop     = "RUNST"
	EdgeTrigger = "EDG"
)

// RecordLengths are the supported record lengths in points.
var RecordLengths = []any{1000, 10000, 100000, 1000000, 5000000, 10000000}

var onOff = map[any]any{true: 1, false: 0}

// Channel properties, rendered as :CH<n>:...
var mdo3052ChannelProps = labctl.NewTable(
	labctl.Property{
		Name:     "scale",
		Doc:      "Vertical scale in V/div.",
		Query:    "CH:SCA?",
		Write:    "CH:SCA %g",
		Validate: labctl.Range(1e-3, 10),
		Format:   labctl.ToFloat,
	},
	labctl.Property{
		Name:     "position",
		Doc:      "Vertical position in divisions.",
		Query:    "CH:POS?",
		Write:    "CH:POS %g",
		Validate: labctl.Range(-5, 5),
		Format:   labctl.ToFloat,
	},
	labctl.Property{
		Name:     "termination",
		Query:    "CH:TER?",
		Write:    "CH:TER %s",
		Validate: labctl.OneOf(Fifty, MegOhm),
	},
)

var mdo3052Props = labctl.NewTable(
	labctl.Property{
		Name:     "trigger_type",
		Query:    "TRIG:A:TYP?",
		Write:    "TRIG:A:TYP %s",
		Validate: labctl.OneOf(EdgeTrigger, "LOGI", "PULS", "BUS", "VID"),
	},
	labctl.Property{
		Name:     "trigger_level1",
		Query:    "TRIG:A:LEV:CH1?",
		Write:    "TRIG:A:LEV:CH1 %g",
		Validate: labctl.Range(-3.2, 3.2),
		Format:   labctl.ToFloat,
	},
	labctl.Property{
		Name:     "trigger_level2",
		Query:    "TRIG:A:LEV:CH2?",
		Write:    "TRIG:A:LEV:CH2 %g",
		Validate: labctl.Range(-3.2, 3.2),
		Format:   labctl.ToFloat,
	},
	labctl.Property{
		Name:     "trigger_mode",
		Query:    "TRIG:A:MOD?",
		Write:    "TRIG:A:MOD %s",
		Validate: labctl.OneOf("AUTO", "NORM"),
	},
	labctl.Property{
		Name:     "trigger_holdoff",
		Query:    "TRIG:A:HOLD:TIM?",
		Write:    "TRIG:A:HOLD:TIM %g",
		Validate: labctl.Range(20e-9, 8),
		Format:   labctl.ToFloat,
	},
	labctl.Property{
		Name:  "trigger_state",
		Doc:   "ARMED, AUTO, READY, SAVE or TRIGGER.",
		Query: "TRIG:STATE?",
	},
	labctl.Property{
		Name:     "trigger_coupling",
		Query:    "TRIG:A:EDGE:COUP?",
		Write:    "TRIG:A:EDGE:COUP %s",
		Validate: labctl.OneOf("AC", "DC"),
	},
	labctl.Property{
		Name:     "trigger_source",
		Query:    "TRIG:A:EDGE:SOU?",
		Write:    "TRIG:A:EDGE:SOU %s",
		Validate: labctl.OneOf("AUX", "CH1", "CH2"),
	},
	labctl.Property{
		Name:     "trigger_slope",
		Query:    "TRIG:A:EDGE:SLOP?",
		Write:    "TRIG:A:EDGE:SLOP %s",
		Validate: labctl.OneOf("RIS", "FALL", "EITH"),
	},
	labctl.Property{
		Name:     "acquisition_mode",
		Query:    "ACQ:MOD?",
		Write:    "ACQ:MOD %s",
		Validate: labctl.OneOf(Sample, PeakDetect, HiRes, Average, Envelope),
	},
	labctl.Property{
		Name:     "record_length",
		Query:    "HOR:RECO?",
		Write:    "HOR:RECO %d",
		Validate: labctl.OneOf(RecordLengths...),
		Format:   labctl.ToInt,
	},
	labctl.Property{
		Name:     "delay_mode",
		Query:    "HOR:DEL:MOD?",
		Write:    "HOR:DEL:MOD %d",
		Validate: labctl.Bools(),
		Map:      onOff,
	},
	labctl.Property{
		Name:     "stop_after",
		Query:    "ACQ:STOPA?",
		Write:    "ACQ:STOPA %s",
		Validate: labctl.OneOf(RunStop, SingleShot),
	},
	labctl.Property{
		Name:     "acquisition_state",
		Doc:      "1 while acquiring.",
		Query:    "ACQ:STATE?",
		Write:    "ACQ:STATE %d",
		Validate: labctl.OneOf(0, 1),
		Format:   labctl.ToInt,
	},
	labctl.Property{
		Name:     "horizontal_scale",
		Doc:      "Horizontal scale in s/div.",
		Query:    "HOR:SCA?",
		Write:    "HOR:SCA %g",
		Validate: labctl.Range(1e-9, 1000),
		Format:   labctl.ToFloat,
	},
	labctl.Property{
		Name:     "horizontal_position",
		Doc:      "Trigger position in percent of the record.",
		Query:    "HOR:POS?",
		Write:    "HOR:POS %g",
		Validate: labctl.Range(0, 100),
		Format:   labctl.ToFloat,
	},
	labctl.Property{
		Name:     "horizontal_delay",
		Query:    "HOR:DEL:TIM?",
		Write:    "HOR:DEL:TIM %g",
		Validate: labctl.Range(-5e3, 5e3),
		Format:   labctl.ToFloat,
	},
	labctl.Property{
		Name:     "data_source",
		Query:    "DAT:SOU?",
		Write:    "DAT:SOU %s",
		Validate: labctl.OneOf("CH1", "CH2"),
	},
	labctl.Property{
		Name:     "data_start",
		Query:    "DAT:STAR?",
		Write:    "DAT:STAR %d",
		Validate: labctl.Range(1, 10e6),
		Format:   labctl.ToInt,
	},
	labctl.Property{
		Name:     "data_stop",
		Query:    "DAT:STOP?",
		Write:    "DAT:STOP %d",
		Validate: labctl.Range(1, 10e6),
		Format:   labctl.ToInt,
	},
	labctl.Property{
		Name:     "autoset",
		Write:    "AUTOS %s",
		Validate: labctl.OneOf("EXEC", "UND"),
	},
)

// waveformSetup selects signed 16-bit big-endian curve transfers.
var waveformSetup = []string{
	"WFMO:ENC BIN",
	"WFMO:BYT_N 2",
	"WFMO:BN_F RI",
	"WFMO:BYT_O MSB",
}

// MDO3052 is a Tektronix MDO3052 oscilloscope.
type MDO3052 struct {
	*labctl.Instrument
}

// NewMDO3052 returns a driver communicating over a.
func NewMDO3052(a labctl.Adapter, opts ...labctl.Option) *MDO3052 {
	opts = append([]labctl.Option{labctl.WithChannels(MDO3052Channels, mdo3052ChannelProps)}, opts...)
	return &MDO3052{labctl.NewInstrument("MDO3052", a, mdo3052Props, opts...)}
}

// Input returns the analog input n, counted from 1.
func (s *MDO3052) Input(n int) (*Input, error) {
	ch, err := s.Channel(n)
	if err != nil {
		return nil, err
	}
	return &Input{ch}, nil
}

// Reset restores the factory defaults.
func (s *MDO3052) Reset() error { return s.Write("*RST") }

// Select turns on the display of both analog inputs.
func (s *MDO3052) Select() error {
	for n := 1; n <= MDO3052Channels; n++ {
		if err := s.Writef("SEL:CH%d ON", n); err != nil {
			return err
		}
	}
	return nil
}

// TriggerLevelToMid sets the trigger level to the midpoint of the signal,
// like pressing the front panel knob.
func (s *MDO3052) TriggerLevelToMid() error { return s.Write("FPA:PRESS TRIGL") }

// ForceTrigger forces a trigger event.
func (s *MDO3052) ForceTrigger() error { return s.Write("TRIG FORC") }

// Busy reports whether an acquisition or operation is pending.
func (s *MDO3052) Busy() (bool, error) {
	return query.Bool(s.Instrument, "BUSY?")
}

// Acquiring reports whether the acquisition is running.
func (s *MDO3052) Acquiring() (bool, error) {
	state, err := s.GetInt("acquisition_state")
	return state == 1, err
}

// Waveform reads the raw samples start..stop (1-based, inclusive) of
// channel, one of CH1 or CH2.
func (s *MDO3052) Waveform(channel string, start, stop int) ([]float64, error) {
	if err := s.Set("data_source", channel); err != nil {
		return nil, err
	}
	if err := s.Set("data_start", start); err != nil {
		return nil, err
	}
	if err := s.Set("data_stop", stop); err != nil {
		return nil, err
	}
	for _, cmd := range waveformSetup {
		if err := s.Write(cmd); err != nil {
			return nil, err
		}
	}
	return s.ReadBinaryBlock("CURV?", labctl.Int16MSBFormat)
}

// Timescale returns the time of the first sample, the sample interval and
// the record length.
func (s *MDO3052) Timescale() (t0, dt float64, n int, err error) {
	if n, err = s.GetInt("record_length"); err != nil {
		return 0, 0, 0, err
	}
	if dt, err = query.Float64(s.Instrument, "WFMO:XINCR?"); err != nil {
		return 0, 0, 0, err
	}
	if t0, err = query.Float64(s.Instrument, "WFMO:XZERO?"); err != nil {
		return 0, 0, 0, err
	}
	return t0, dt, n, nil
}

// VerticalScale holds the conversion from raw samples to volts:
// volts = (raw - Offset) * Mult + Zero.
type VerticalScale struct {
	Mult, Zero, Offset float64
}

// Volts converts raw samples in place and returns them.
func (v VerticalScale) Volts(raw []float64) []float64 {
	for i, r := range raw {
		raw[i] = (r-v.Offset)*v.Mult + v.Zero
	}
	return raw
}

// VerticalScale reads the raw-to-volts conversion of channel.
func (s *MDO3052) VerticalScale(channel string) (VerticalScale, error) {
	var v VerticalScale
	if err := s.Set("data_source", channel); err != nil {
		return v, err
	}
	for _, f := range []struct {
		cmd string
		dst *float64
	}{
		{"WFMO:YMULT?", &v.Mult},
		{"WFMO:YZERO?", &v.Zero},
		{"WFMO:YOFF?", &v.Offset},
	} {
		val, err := query.Float64(s.Instrument, f.cmd)
		if err != nil {
			return v, err
		}
		*f.dst = val
	}
	return v, nil
}

// AutoScale runs the autoset on CH1 alone and returns a vertical scale that
// leaves headroom above the signal. The previous setup is restored.
func (s *MDO3052) AutoScale() (float64, error) {
	for _, cmd := range []string{"SEL:CH2 OFF", "SEL:CH1 ON"} {
		if err := s.Write(cmd); err != nil {
			return 0, err
		}
	}
	if err := s.Set("autoset", "EXEC"); err != nil {
		return 0, err
	}
	ch1, err := s.Input(1)
	if err != nil {
		return 0, err
	}
	scale, err := ch1.GetFloat("scale")
	if err != nil {
		return 0, err
	}
	if err := s.Set("autoset", "UND"); err != nil {
		return 0, err
	}
	if err := s.Write("SEL:CH2 ON"); err != nil {
		return 0, err
	}
	return scale / 1.5, nil
}

// Input is one analog input of the oscilloscope.
type Input struct {
	labctl.Channel
}

// Name returns CH<n>.
func (in *Input) Name() string { return fmt.Sprintf("CH%d", in.Index()) }

// SetScale sets the vertical scale in V/div.
func (in *Input) SetScale(v float64) error { return in.Set("scale", v) }

// SetPosition sets the vertical position in divisions.
func (in *Input) SetPosition(div float64) error { return in.Set("position", div) }

// SetTermination selects Fifty or MegOhm.
func (in *Input) SetTermination(t string) error { return in.Set("termination", t) }
