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

// Result columns of the power meter procedures.
const (
	ColTime       = "Time [s]"
	ColPowerMeter = "Power"
	ColWavelength = "Wavelength [nm]"
)

var sensorChoices = []any{"CH1", "CH2", "CH3", "CH4"}

// powerMeterParams are shared by the logger and the swept transmission.
func powerMeterParams(autoGain bool) procedure.Schema {
	return procedure.Schema{
		procedure.Float("tau_avg", "s", 1e-6, 1e-6, 1).WithDoc("Averaging time"),
		procedure.Choice("power_range", -30, keysight.PowerRanges...).WithDoc("Power range in dBm"),
		procedure.Choice("power_unit", keysight.UnitDBm, keysight.UnitDBm, keysight.UnitWatt),
		procedure.Bool("auto_range", false),
		procedure.Bool("auto_gain", autoGain),
		procedure.Choice("channel", "CH1", sensorChoices...),
	}
}

// setupSensor resets the meter and applies the shared settings to the
// selected input.
func setupSensor(pm *keysight.N7744C, v procedure.Values, trigger string) (*keysight.Sensor, error) {
	if err := pm.Reset(); err != nil {
		return nil, err
	}
	s, err := pm.SensorByName(v.String("channel"))
	if err != nil {
		return nil, err
	}
	if err := apply(s,
		setting{"auto_gain", v.Bool("auto_gain")},
		setting{"auto_range", v.Bool("auto_range")},
	); err != nil {
		return nil, err
	}
	if err := pm.Set("power_unit", v.String("power_unit")); err != nil {
		return nil, err
	}
	if !v.Bool("auto_range") {
		if err := s.Set("power_range", v["power_range"]); err != nil {
			return nil, err
		}
	}
	return s, s.Set("trigger_input", trigger)
}

// waitLogging polls until the logging function completes or the run is
// stopped. It reports whether logging completed.
func waitLogging(r *procedure.Run, s *keysight.Sensor) (bool, error) {
	for {
		busy, err := s.InProgress()
		if err != nil || !busy {
			return err == nil, err
		}
		r.Log.Debug("logging in progress")
		if !r.Sleep(pollInterval) {
			return false, nil
		}
	}
}

// PowerMeter logs the power at one input of the N7744C.
type PowerMeter struct {
	bench
	pm     *keysight.N7744C
	sensor *keysight.Sensor
}

// NewPowerMeter returns the power meter logger.
func NewPowerMeter(o Opener) *PowerMeter {
	return &PowerMeter{bench: bench{opener: o}}
}

func (p *PowerMeter) Name() string { return "powermeter" }

func (p *PowerMeter) Parameters() procedure.Schema {
	return append(powerMeterParams(true),
		procedure.Int("number", 100000, 10, 1000000).WithDoc("Number of points"),
		procedure.Bool("trigger", false).WithDoc("Wait for a hardware trigger"),
	)
}

func (p *PowerMeter) Columns() []string { return []string{ColTime, ColPowerMeter} }

func (p *PowerMeter) Axes() (x, y string) { return ColTime, ColPowerMeter }

func (p *PowerMeter) Startup(r *procedure.Run) error {
	r.Progress(10)
	a, err := p.open(r, OpticalPowerMeter)
	if err != nil {
		return err
	}
	p.pm = keysight.NewN7744C(a, labctl.WithLogger(r.Log))
	trigger := "IGN"
	if r.Params.Bool("trigger") {
		trigger = "CME"
	}
	if p.sensor, err = setupSensor(p.pm, r.Params, trigger); err != nil {
		return err
	}
	n, tau := r.Params.Int("number"), r.Params.Float("tau_avg")
	if err := p.sensor.SetupLogging(n, tau); err != nil {
		return err
	}
	r.Log.Infof("logging %s for %g s", r.Params.String("channel"), float64(n)*tau)
	return nil
}

func (p *PowerMeter) Execute(r *procedure.Run) error {
	if err := p.sensor.StartLogging(); err != nil {
		return err
	}
	if !r.Params.Bool("trigger") {
		if err := p.sensor.Trigger(); err != nil {
			return err
		}
	}
	done, err := waitLogging(r, p.sensor)
	if err != nil || !done {
		return err
	}
	data, err := p.sensor.Result()
	if err != nil {
		return fmt.Errorf("read result: %w", err)
	}
	n, tau := r.Params.Int("number"), r.Params.Float("tau_avg")
	t := linspace(0, float64(n-1)*tau, len(data))
	r.Progress(70)
	for i, pw := range data {
		if err := r.Emit(procedure.Row{ColTime: t[i], ColPowerMeter: pw}); err != nil {
			return err
		}
		if r.ShouldStop() {
			return nil
		}
	}
	r.Progress(100)
	return nil
}

func (p *PowerMeter) Shutdown(r *procedure.Run) error {
	var err error
	if p.sensor != nil && r.ShouldStop() {
		err = p.sensor.StopLogging()
	}
	p.pm, p.sensor = nil, nil
	return multierr.Append(err, p.close())
}
