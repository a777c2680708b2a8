// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package keysight provides drivers for the Keysight E36106A DC power
// supply, the N7744C optical power meter and the N7776C tunable laser.
package keysight

import (
	"fmt"
	"strings"

	"github.com/gotmc/query"

	"github.com/ongpym/labctl"
)

// maxErrorQueue bounds CheckErrors so a misbehaving instrument cannot
// keep it looping.
const maxErrorQueue = 32

var e36106aProps = labctl.NewTable(
	labctl.Property{
		Name:     "voltage_range",
		Doc:      "Output voltage setpoint in volts.",
		Query:    ":VOLT?",
		Write:    ":VOLT %g V",
		Validate: labctl.Range(0, 100),
		Format:   labctl.ToFloat,
	},
	labctl.Property{
		Name:     "current_range",
		Doc:      "Output current limit in amperes.",
		Query:    ":CURR?",
		Write:    ":CURR %g",
		Validate: labctl.Range(0, 0.4),
		Format:   labctl.ToFloat,
	},
	labctl.Property{
		Name:  "voltage",
		Doc:   "Measured output voltage in volts.",
		Query: "MEAS:VOLT?",
	},
	labctl.Property{
		Name:  "current",
		Doc:   "Measured output current.",
		Query: ":MEAS:CURR?",
	},
	labctl.Property{
		Name:  "status",
		Doc:   "Output state, true when enabled.",
		Query: ":OUTP?",
		Parse: parseBool,
	},
)

// E36106A is a Keysight E36106A single-output DC power supply.
type E36106A struct {
	*labctl.Instrument
}

// NewE36106A returns a driver communicating over a.
func NewE36106A(a labctl.Adapter, opts ...labctl.Option) *E36106A {
	return &E36106A{labctl.NewInstrument("E36106A", a, e36106aProps, opts...)}
}

// SetVoltage sets the output voltage.
func (p *E36106A) SetVoltage(v float64) error { return p.Set("voltage_range", v) }

// SetCurrentLimit sets the output current limit.
func (p *E36106A) SetCurrentLimit(a float64) error { return p.Set("current_range", a) }

// MeasureVoltage measures the output voltage.
func (p *E36106A) MeasureVoltage() (float64, error) {
	return query.Float64(p.Instrument, "MEAS:VOLT?")
}

// MeasureCurrent measures the output current.
func (p *E36106A) MeasureCurrent() (float64, error) {
	return query.Float64(p.Instrument, ":MEAS:CURR?")
}

// Enable turns the output on.
func (p *E36106A) Enable() error { return p.Write(":OUTP 1") }

// Disable turns the output off.
func (p *E36106A) Disable() error { return p.Write(":OUTP 0") }

// IsEnabled reports the output state.
func (p *E36106A) IsEnabled() (bool, error) { return p.GetBool("status") }

// Reset restores the power-on defaults.
func (p *E36106A) Reset() error { return p.Write("*RST") }

// SaveCalibration stores the calibration constants in non-volatile memory.
func (p *E36106A) SaveCalibration() error { return p.Write("CAL:SAVE") }

// CheckErrors drains the error queue and returns the messages it held.
// An empty result means the queue was empty.
func (p *E36106A) CheckErrors() ([]string, error) {
	return drainErrors(p.Instrument, ":SYST:ERR?")
}

// drainErrors reads `<code>,"<message>"` entries until code 0.
func drainErrors(c labctl.Commander, cmd string) ([]string, error) {
	var msgs []string
	for i := 0; i < maxErrorQueue; i++ {
		reply, err := c.Ask(cmd)
		if err != nil {
			return msgs, err
		}
		code, msg, _ := strings.Cut(strings.TrimSpace(reply), ",")
		n, ok := labctl.ParseToken(code).(float64)
		if !ok {
			return msgs, &labctl.ProtocolError{Reason: "malformed error queue entry", Raw: []byte(reply)}
		}
		if n == 0 {
			return msgs, nil
		}
		msgs = append(msgs, fmt.Sprintf("%d: %s", int(n), strings.Trim(strings.TrimSpace(msg), `"`)))
	}
	return msgs, fmt.Errorf("error queue did not empty after %d reads", maxErrorQueue)
}

// parseBool reads the 0/1, ON/OFF replies of output state queries.
func parseBool(tok string) (any, error) {
	return labctl.AsBool(labctl.ParseToken(tok))
}
