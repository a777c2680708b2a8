// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package experiments

import (
	"fmt"
	"math"

	"github.com/ongpym/labctl"
	"github.com/ongpym/labctl/instruments/tektronix"
	"github.com/ongpym/labctl/lib/procedure"
)

// Result columns of the time domain captures.
const (
	ColResponse = "Response [V]"
	ColSignal   = "Signal [V]"
)

// NoChannel disables the signal channel of a capture.
const NoChannel = "n/a"

const (
	fiftyOhm = "50 Ohm"
	oneMOhm  = "1 MOhm"
)

var terminations = map[string]string{
	fiftyOhm: tektronix.Fifty,
	oneMOhm:  tektronix.MegOhm,
}

var acquisitionModes = map[string]string{
	"Sample":      tektronix.Sample,
	"Peak Detect": tektronix.PeakDetect,
	"Hi Res":      tektronix.HiRes,
	"Envelope":    tektronix.Envelope,
	"Average":     tektronix.Average,
}

// captureParams are the oscilloscope settings of a time domain capture.
func captureParams() procedure.Schema {
	return procedure.Schema{
		procedure.Choice("response_channel", "CH1", "CH1", "CH2"),
		procedure.Choice("signal_channel", "CH2", "CH1", "CH2", NoChannel),
		procedure.Float("vertical_resolution", "mV/div", 5, 1, 1000),
		procedure.Float("vertical_offset", "div", 0, -4, 4),
		procedure.Choice("termination_response", fiftyOhm, fiftyOhm, oneMOhm),
		procedure.Choice("termination_signal", oneMOhm, fiftyOhm, oneMOhm),
		procedure.Choice("record_length", 10000, tektronix.RecordLengths...),
		procedure.Choice("acquisition_mode", "Sample", "Sample", "Peak Detect", "Hi Res", "Envelope", "Average"),
	}
}

// capture records a response and, optionally, the drive signal in one
// single-shot acquisition of the MDO3052.
type capture struct {
	osc      *tektronix.MDO3052
	response string
	signal   string // empty without a signal channel
}

// captureChannels reads the channel choice. Response and signal must use
// different inputs.
func captureChannels(v procedure.Values) (response, signal string, err error) {
	response, signal = v.String("response_channel"), v.String("signal_channel")
	if signal == response {
		return "", "", &labctl.ValidationError{
			Name:   "signal_channel",
			Value:  signal,
			Reason: "same input as response_channel",
		}
	}
	if signal == NoChannel {
		signal = ""
	}
	return response, signal, nil
}

func (c *capture) input(name string) (*tektronix.Input, error) {
	n := 1
	if name == "CH2" {
		n = 2
	}
	return c.osc.Input(n)
}

// setup resets the scope and prepares a single acquisition. signalScale
// is the V/div of the signal channel; the trigger fires at level volts on
// the signal channel, or on the response without one.
func (c *capture) setup(v procedure.Values, hscale, signalScale, level float64) error {
	if err := c.osc.Reset(); err != nil {
		return err
	}
	if err := c.osc.Write("SEL:CH2 ON"); err != nil {
		return err
	}
	if err := c.osc.Set("horizontal_scale", hscale); err != nil {
		return err
	}
	if c.signal != "" {
		in, err := c.input(c.signal)
		if err != nil {
			return err
		}
		if err := apply(in,
			setting{"termination", terminations[v.String("termination_signal")]},
			setting{"scale", clampScale(signalScale)},
			setting{"position", 0},
		); err != nil {
			return err
		}
	}
	in, err := c.input(c.response)
	if err != nil {
		return err
	}
	if err := apply(in,
		setting{"termination", terminations[v.String("termination_response")]},
		setting{"scale", v.Float("vertical_resolution") / 1000},
		setting{"position", v.Float("vertical_offset")},
	); err != nil {
		return err
	}
	source := c.response
	if c.signal != "" {
		source = c.signal
	}
	return apply(c.osc,
		setting{"acquisition_mode", acquisitionModes[v.String("acquisition_mode")]},
		setting{"trigger_source", source},
		setting{"trigger_type", tektronix.EdgeTrigger},
		setting{"trigger_mode", "NORM"},
		setting{"trigger_level" + source[2:], level},
		setting{"acquisition_state", 0},
		setting{"stop_after", tektronix.SingleShot},
		setting{"record_length", v["record_length"]},
	)
}

// clampScale keeps a derived scale within the range of the inputs.
func clampScale(s float64) float64 { return math.Min(math.Max(s, 1e-3), 10) }

// arm starts the acquisition.
func (c *capture) arm() error { return c.osc.Set("acquisition_state", 1) }

// wait polls until the acquisition ends. It reports false if the run was
// stopped first.
func (c *capture) wait(r *procedure.Run) (bool, error) {
	for {
		busy, err := c.osc.Acquiring()
		if err != nil || !busy {
			return err == nil, err
		}
		r.Log.Debug("recording")
		if !r.Sleep(pollInterval / 10) {
			return false, nil
		}
	}
}

// emit reads the record and emits it as rows.
func (c *capture) emit(r *procedure.Run) error {
	n, err := c.osc.GetInt("record_length")
	if err != nil {
		return err
	}
	response, err := c.volts(c.response, n)
	if err != nil {
		return err
	}
	signal := make([]float64, len(response))
	if c.signal != "" {
		if signal, err = c.volts(c.signal, n); err != nil {
			return err
		}
	}
	t0, dt, rec, err := c.osc.Timescale()
	if err != nil {
		return err
	}
	t := linspace(t0, t0+float64(rec)*dt, rec)
	r.Progress(80)
	r.Log.Info("emitting data")
	for i := 0; i < min(len(t), len(response), len(signal)); i++ {
		row := procedure.Row{ColTime: t[i], ColResponse: response[i], ColSignal: signal[i]}
		if err := r.Emit(row); err != nil {
			return err
		}
		if r.ShouldStop() {
			return nil
		}
	}
	r.Progress(100)
	return nil
}

func (c *capture) volts(channel string, n int) ([]float64, error) {
	raw, err := c.osc.Waveform(channel, 1, n)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", channel, err)
	}
	vs, err := c.osc.VerticalScale(channel)
	if err != nil {
		return nil, err
	}
	return vs.Volts(raw), nil
}
