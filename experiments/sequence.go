// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package experiments

import (
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/ongpym/labctl"
	"github.com/ongpym/labctl/instruments/keysight"
	"github.com/ongpym/labctl/instruments/tektronix"
	"github.com/ongpym/labctl/lib/procedure"
)

// maxTriggerWait bounds the wait for the scope trigger to become ready.
const maxTriggerWait = 30

// VoltageSequence steps the E36106A through a list of voltages, holding
// each for the dwell time, while the MDO3052 records the response.
type VoltageSequence struct {
	bench
	capture
	// TriggerPoll is the wait between trigger state queries.
	TriggerPoll time.Duration

	psu      *keysight.E36106A
	voltages []float64
}

// NewVoltageSequence returns the voltage sequence time domain measurement.
func NewVoltageSequence(o Opener) *VoltageSequence {
	return &VoltageSequence{bench: bench{opener: o}, TriggerPoll: 2 * time.Second}
}

func (p *VoltageSequence) Name() string { return "voltage-sequence" }

func (p *VoltageSequence) Parameters() procedure.Schema {
	return append(procedure.Schema{
		procedure.String("voltage_sequence", "0,1,0").WithDoc("Comma separated voltages in V"),
		procedure.Float("dwell_time", "s", 2, 0, 2000).WithDoc("Time at every voltage"),
	}, captureParams()...)
}

func (p *VoltageSequence) Columns() []string { return []string{ColTime, ColResponse, ColSignal} }

func (p *VoltageSequence) Axes() (x, y string) { return ColTime, ColResponse }

// ParseSequence reads a comma separated list of voltages.
func ParseSequence(s string) ([]float64, error) {
	var out []float64
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, &labctl.ValidationError{Name: "voltage_sequence", Value: s, Reason: "not a number: " + f}
		}
		if err := labctl.Range(0, 100)(v); err != nil {
			return nil, &labctl.ValidationError{Name: "voltage_sequence", Value: v, Reason: err.Error()}
		}
		out = append(out, v)
	}
	return out, nil
}

func (p *VoltageSequence) Startup(r *procedure.Run) error {
	v := r.Params
	var err error
	if p.response, p.signal, err = captureChannels(v); err != nil {
		return err
	}
	if p.voltages, err = ParseSequence(v.String("voltage_sequence")); err != nil {
		return err
	}
	hscale, err := horizontalScale(float64(len(p.voltages)) * v.Float("dwell_time"))
	if err != nil {
		return err
	}

	a, err := p.open(r, PowerSupply)
	if err != nil {
		return err
	}
	p.psu = keysight.NewE36106A(a, labctl.WithLogger(r.Log))
	if a, err = p.open(r, Oscilloscope); err != nil {
		return err
	}
	p.osc = tektronix.NewMDO3052(a, labctl.WithLogger(r.Log))

	if err := p.psu.Reset(); err != nil {
		return err
	}
	peak := 0.0
	for _, u := range p.voltages {
		peak = max(peak, u)
	}
	if err := p.setup(v, hscale, peak/4, 1); err != nil {
		return err
	}
	if err := apply(p.osc,
		setting{"delay_mode", false},
		setting{"horizontal_position", 0},
	); err != nil {
		return err
	}
	r.Log.Info("setup completed")
	r.Progress(20)
	return nil
}

func (p *VoltageSequence) Execute(r *procedure.Run) error {
	if err := p.arm(); err != nil {
		return err
	}
	if err := p.psu.Enable(); err != nil {
		return err
	}
	stopped, err := p.play(r)
	err = multierr.Append(err, p.psu.Disable())
	if err != nil || stopped {
		return err
	}
	done, err := p.wait(r)
	if err != nil || !done {
		return err
	}
	r.Log.Info("measurement completed")
	return p.emit(r)
}

// play waits for the trigger, forces it and steps through the voltages.
func (p *VoltageSequence) play(r *procedure.Run) (stopped bool, err error) {
	for i := 0; ; i++ {
		state, err := p.osc.GetString("trigger_state")
		if err != nil {
			return false, err
		}
		if strings.HasPrefix(strings.ToUpper(state), "REA") {
			break
		}
		if i == maxTriggerWait {
			return false, &labctl.TimeoutError{Command: "TRIG:STATE?"}
		}
		r.Log.Debug("waiting for trigger to be ready")
		if !r.Sleep(p.TriggerPoll) {
			return true, nil
		}
	}
	if err := p.osc.ForceTrigger(); err != nil {
		return false, err
	}
	dwell := time.Duration(r.Params.Float("dwell_time") * float64(time.Second))
	for _, u := range p.voltages {
		if err := p.psu.SetVoltage(u); err != nil {
			return false, err
		}
		if !r.Sleep(dwell) {
			return true, nil
		}
	}
	return false, nil
}

func (p *VoltageSequence) Shutdown(r *procedure.Run) error {
	var err error
	if p.psu != nil {
		err = p.psu.Disable()
	}
	p.psu, p.osc = nil, nil
	return multierr.Append(err, p.close())
}
