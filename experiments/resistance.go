// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package experiments

import (
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/ongpym/labctl"
	"github.com/ongpym/labctl/instruments/keysight"
	"github.com/ongpym/labctl/lib/procedure"
)

// Result columns of the supply sweeps.
const (
	ColVSet  = "V set [V]"
	ColV     = "V [V]"
	ColI     = "I [mA]"
	ColR     = "R [Ohm]"
	ColPower = "P [mW]"
)

// Resistance steps the E36106A through a voltage range and records the
// averaged voltage and current at every step, with the resistance and
// power they give. The output is switched off between steps.
type Resistance struct {
	bench
	name string
	// Settle is the wait between enabling the output and measuring.
	Settle time.Duration

	psu *keysight.E36106A
}

// NewResistance returns the DC resistance measurement.
func NewResistance(o Opener) *Resistance {
	return &Resistance{bench: bench{opener: o}, name: "resistance", Settle: time.Second}
}

// NewPowerStep returns the power change measurement: the resistance sweep
// with a shorter settle time.
func NewPowerStep(o Opener) *Resistance {
	return &Resistance{bench: bench{opener: o}, name: "power-step", Settle: 500 * time.Millisecond}
}

func (p *Resistance) Name() string { return p.name }

func (p *Resistance) Parameters() procedure.Schema {
	return procedure.Schema{
		procedure.Float("V_min", "V", 0, 0, 100).WithDoc("Minimum voltage"),
		procedure.Float("V_max", "V", 10, 0, 100).WithDoc("Maximum voltage, excluded"),
		procedure.Float("V_step", "V", 1, 0.001, 25).WithDoc("Voltage step size"),
		procedure.Int("N_avg", 1, 1, 100).WithDoc("Number of averages per step"),
	}
}

func (p *Resistance) Columns() []string {
	return []string{ColVSet, ColV, ColI, ColR, ColPower}
}

func (p *Resistance) Axes() (x, y string) { return ColPower, ColR }

func (p *Resistance) Startup(r *procedure.Run) error {
	r.Log.Info("starting resistance measurement")
	r.Progress(0)
	a, err := p.open(r, PowerSupply)
	if err != nil {
		return err
	}
	p.psu = keysight.NewE36106A(a, labctl.WithLogger(r.Log))
	return p.psu.Reset()
}

func (p *Resistance) Execute(r *procedure.Run) error {
	v := r.Params
	steps := arange(v.Float("V_min"), v.Float("V_max"), v.Float("V_step"))
	if len(steps) == 0 {
		r.Log.Warn("empty voltage range")
		return nil
	}
	navg := v.Int("N_avg")
	for j, vset := range steps {
		row, err := p.step(r, vset, navg)
		if err != nil {
			return fmt.Errorf("step %g V: %w", vset, err)
		}
		if row == nil {
			return nil
		}
		if err := r.Emit(row); err != nil {
			return err
		}
		r.Progress(float64(j+1) / float64(len(steps)) * 100)
		if r.ShouldStop() {
			return nil
		}
	}
	return nil
}

// step measures one voltage. It returns a nil row when the run was
// stopped during the settle time.
func (p *Resistance) step(r *procedure.Run, vset float64, navg int) (row procedure.Row, err error) {
	if err := p.psu.SetVoltage(vset); err != nil {
		return nil, err
	}
	if err := p.psu.Enable(); err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Append(err, p.psu.Disable())
	}()
	if !r.Sleep(p.Settle) {
		return nil, nil
	}
	vs := make([]float64, 0, navg)
	is := make([]float64, 0, navg)
	for i := 0; i < navg; i++ {
		u, err := p.psu.MeasureVoltage()
		if err != nil {
			return nil, err
		}
		c, err := p.psu.MeasureCurrent()
		if err != nil {
			return nil, err
		}
		vs = append(vs, u)
		is = append(is, c)
	}
	u, c := mean(vs), mean(is)
	return procedure.Row{
		ColVSet:  vset,
		ColV:     u,
		ColI:     c,
		ColR:     u / (c * 1e-3),
		ColPower: u * c,
	}, nil
}

func (p *Resistance) Shutdown(r *procedure.Run) error {
	var err error
	if p.psu != nil {
		err = p.psu.Disable()
		p.psu = nil
	}
	return multierr.Append(err, p.close())
}
