// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package experiments

import (
	"time"

	"go.uber.org/multierr"

	"github.com/ongpym/labctl"
	"github.com/ongpym/labctl/instruments/gwinstek"
	"github.com/ongpym/labctl/instruments/tektronix"
	"github.com/ongpym/labctl/lib/procedure"
)

var signalTypes = map[string]string{
	"Triangular": gwinstek.Ramp,
	"Square":     gwinstek.Square,
}

// Modulation drives a triangular or square wave from the AFG-2125 and
// records the response to it with the MDO3052 over a number of periods.
type Modulation struct {
	bench
	capture
	// Settle is the wait between arming the scope and polling it.
	Settle time.Duration

	fg *gwinstek.AFG2125
}

// NewModulation returns the modulation time domain measurement.
func NewModulation(o Opener) *Modulation {
	return &Modulation{bench: bench{opener: o}, Settle: 2 * time.Second}
}

func (p *Modulation) Name() string { return "modulation" }

func (p *Modulation) Parameters() procedure.Schema {
	return append(procedure.Schema{
		procedure.Float("frequency", "Hz", 1e3, 1e-3, gwinstek.MaxFreq),
		procedure.Float("amplitude", "Vpp", 1, 0, gwinstek.MaxVolts),
		procedure.Float("offset", "V", 0, -gwinstek.MaxVolts, gwinstek.MaxVolts),
		procedure.Choice("signal", "Triangular", "Triangular", "Square").WithDoc("Signal type"),
		procedure.Int("n_periods", 5, 1, 30).WithDoc("Number of periods"),
	}, captureParams()...)
}

func (p *Modulation) Columns() []string { return []string{ColTime, ColResponse, ColSignal} }

func (p *Modulation) Axes() (x, y string) { return ColTime, ColResponse }

func (p *Modulation) Startup(r *procedure.Run) error {
	v := r.Params
	var err error
	if p.response, p.signal, err = captureChannels(v); err != nil {
		return err
	}
	hscale, err := horizontalScale(float64(v.Int("n_periods")) / v.Float("frequency"))
	if err != nil {
		return err
	}

	a, err := p.open(r, Generator)
	if err != nil {
		return err
	}
	p.fg = gwinstek.NewAFG2125(a, labctl.WithLogger(r.Log))
	if a, err = p.open(r, Oscilloscope); err != nil {
		return err
	}
	p.osc = tektronix.NewMDO3052(a, labctl.WithLogger(r.Log))

	r.Log.Info("setting up oscilloscope")
	if err := p.setup(v, hscale, v.Float("amplitude")/3, 0.1); err != nil {
		return err
	}
	r.Progress(10)

	r.Log.Info("setting up function generator")
	if err := p.fg.Apply(gwinstek.Waveform{
		Signal:    signalTypes[v.String("signal")],
		Frequency: v.Float("frequency"),
		Amplitude: v.Float("amplitude"),
		Offset:    v.Float("offset"),
	}); err != nil {
		return err
	}
	if err := p.fg.Set("high_impedance", true); err != nil {
		return err
	}
	r.Progress(20)
	return nil
}

func (p *Modulation) Execute(r *procedure.Run) error {
	if err := p.fg.Output(true); err != nil {
		return err
	}
	if err := p.arm(); err != nil {
		return err
	}
	if !r.Sleep(p.Settle) {
		return nil
	}
	done, err := p.wait(r)
	if err != nil || !done {
		return err
	}
	r.Log.Info("measurement completed")
	return p.emit(r)
}

func (p *Modulation) Shutdown(r *procedure.Run) error {
	var err error
	if p.fg != nil {
		err = p.fg.Output(false)
	}
	p.fg, p.osc = nil, nil
	return multierr.Append(err, p.close())
}
