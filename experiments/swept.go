// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package experiments

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/ongpym/labctl"
	"github.com/ongpym/labctl/instruments/keysight"
	"github.com/ongpym/labctl/lib/procedure"
)

// maxLoggingPoints is the largest logging run of the N7744C.
const maxLoggingPoints = 1000000

// outputTries bounds the wait for the laser output to come on.
const outputTries = 10

var sweepSpeeds = []any{0.5, 1, 2, 5, 10, 20, 40, 50, 80, 100, 150, 160, 200}

// SweptTransmission sweeps the N7776C continuously while the N7744C logs
// one point per wavelength step, giving the transmission spectrum.
type SweptTransmission struct {
	bench
	pm     *keysight.N7744C
	sensor *keysight.Sensor
	laser  *keysight.N7776C
}

// NewSweptTransmission returns the swept transmission measurement.
func NewSweptTransmission(o Opener) *SweptTransmission {
	return &SweptTransmission{bench: bench{opener: o}}
}

func (p *SweptTransmission) Name() string { return "swept-transmission" }

func (p *SweptTransmission) Parameters() procedure.Schema {
	return append(powerMeterParams(false),
		procedure.Float("sweep_step", "pm", 1, 0.1, 10000).WithDoc("Trigger step size"),
		procedure.Choice("sweep_speed", 0.5, sweepSpeeds...).WithDoc("Sweep speed in nm/s"),
		procedure.Float("wl_start", "nm", 1559, 1450, 1640).WithDoc("Start wavelength"),
		procedure.Float("wl_stop", "nm", 1560, 1450, 1640).WithDoc("End wavelength"),
		procedure.Float("laser_power", "dBm", 10, -20, 20).WithDoc("Laser power"),
	)
}

func (p *SweptTransmission) Columns() []string { return []string{ColWavelength, ColPowerMeter} }

func (p *SweptTransmission) Axes() (x, y string) { return ColWavelength, ColPowerMeter }

func (p *SweptTransmission) Startup(r *procedure.Run) error {
	v := r.Params
	if v.Float("wl_start") >= v.Float("wl_stop") {
		return &labctl.ValidationError{Name: "wl_stop", Value: v["wl_stop"], Reason: "must be above wl_start"}
	}
	r.Progress(10)
	a, err := p.open(r, OpticalPowerMeter)
	if err != nil {
		return err
	}
	p.pm = keysight.NewN7744C(a, labctl.WithLogger(r.Log))
	if p.sensor, err = setupSensor(p.pm, v, "SME"); err != nil {
		return err
	}
	r.Log.Infof("power meter %s ready", v.String("channel"))

	if a, err = p.open(r, SweptLaser); err != nil {
		return err
	}
	p.laser = keysight.NewN7776C(a, labctl.WithLogger(r.Log))
	if err := p.laser.Reset(); err != nil {
		return err
	}
	if err := p.enableOutput(r); err != nil {
		return err
	}
	if err := apply(p.laser,
		setting{"trigger_out", "STF"},
		setting{"trigger_in", "IGN"},
		setting{"wl_start", v.Float("wl_start")},
		setting{"wl_stop", v.Float("wl_stop")},
		setting{"sweep_step", v.Float("sweep_step") * 1e-3},
		setting{"sweep_speed", v["sweep_speed"]},
		setting{"sweep_mode", keysight.SweepContinuous},
		setting{"wl_logging", true},
		setting{"power_unit", keysight.UnitDBm},
		setting{"power", v.Float("laser_power")},
	); err != nil {
		return err
	}
	ok, msg, err := p.laser.SweepOK()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("sweep settings rejected: %s", msg)
	}
	n, err := p.laser.SweepPoints()
	if err != nil {
		return err
	}
	if err := p.sensor.SetupLogging(min(n, maxLoggingPoints), v.Float("tau_avg")); err != nil {
		return err
	}
	r.Log.WithField("points", n).Info("ready to sweep")
	r.Progress(20)
	return nil
}

func (p *SweptTransmission) enableOutput(r *procedure.Run) error {
	if err := p.laser.Set("output", true); err != nil {
		return err
	}
	for i := 0; i < outputTries; i++ {
		on, err := p.laser.GetBool("output")
		if err != nil || on {
			return err
		}
		if !r.Sleep(pollInterval) {
			return nil
		}
	}
	return fmt.Errorf("laser output not enabled after %d tries", outputTries)
}

func (p *SweptTransmission) Execute(r *procedure.Run) error {
	if err := p.sensor.StartLogging(); err != nil {
		return err
	}
	if err := p.laser.Set("sweep", 1); err != nil {
		return err
	}
	for {
		sweeping, err := p.laser.Sweeping()
		if err != nil {
			return err
		}
		if !sweeping {
			break
		}
		r.Log.Debug("sweep in progress")
		if !r.Sleep(pollInterval) {
			return nil
		}
	}
	power, err := p.sensor.Result()
	if err != nil {
		return fmt.Errorf("read power: %w", err)
	}
	wl, err := p.laser.WavelengthData()
	if err != nil {
		return fmt.Errorf("read wavelengths: %w", err)
	}
	if len(wl) != len(power) {
		r.Log.Warnf("%d wavelengths for %d power values", len(wl), len(power))
	}
	r.Progress(70)
	for i := 0; i < min(len(wl), len(power)); i++ {
		row := procedure.Row{ColWavelength: wl[i] * 1e9, ColPowerMeter: power[i]}
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

func (p *SweptTransmission) Shutdown(r *procedure.Run) error {
	var err error
	if p.laser != nil {
		err = p.laser.Set("output", false)
	}
	p.pm, p.sensor, p.laser = nil, nil, nil
	return multierr.Append(err, p.close())
}
