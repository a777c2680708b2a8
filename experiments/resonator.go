// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package experiments

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/multierr"

	"github.com/ongpym/labctl"
	"github.com/ongpym/labctl/instruments/tektronix"
	"github.com/ongpym/labctl/instruments/toptica"
	"github.com/ongpym/labctl/lib/fit"
	"github.com/ongpym/labctl/lib/plot"
	"github.com/ongpym/labctl/lib/procedure"
)

// Result columns of the resonator transmission.
const (
	ColScanWavelength = "Wavelength"
	ColVoltage        = "Voltage"
	ColTrigger        = "Triggervoltage"
	ColFit            = "fit"
	ColTimeOrig       = "time_orig"
)

// maxScaleAdjust bounds the horizontal scale read-back loop.
const maxScaleAdjust = 50

// minScanWavelength is the lowest wavelength setpoint of the CTL.
const minScanWavelength = 1460

// Resonator drives a wide scan of the Toptica CTL across a resonance while
// the MDO3052 records the transmitted power on CH1 and the scan trigger on
// CH2. The record is optionally averaged over several scans and fitted
// with one or two Lorentzian dips.
type Resonator struct {
	bench
	// Settle is added to the arming wait before every scan.
	Settle time.Duration

	laser  *toptica.CTL
	osc    *tektronix.MDO3052
	figure string
}

// NewResonator returns the resonator transmission measurement.
func NewResonator(o Opener) *Resonator {
	return &Resonator{bench: bench{opener: o}, Settle: 2 * time.Second}
}

func (p *Resonator) Name() string { return "resonator-transmission" }

func (p *Resonator) Parameters() procedure.Schema {
	return procedure.Schema{
		procedure.Float("wl_start", "nm", 1555, 1460, 1570).WithDoc("Start wavelength"),
		procedure.Float("wl_stop", "nm", 1556, 1460, 1570).WithDoc("Stop wavelength"),
		procedure.Float("speed", "nm/s", 0.1, 0.001, 5).WithDoc("Scan speed"),
		procedure.Float("laser_power", "mW", 60, 0.5, 60).WithDoc("Laser power"),
		procedure.Bool("auto_scale", false).WithDoc("Pick the CH1 scale by autoset"),
		procedure.Float("vertical_scale", "mV/div", 50, 1, 1e4).WithDoc("CH1 scale"),
		procedure.Float("vertical_offset", "div", -4, -5, 5).WithDoc("CH1 position"),
		procedure.Choice("samples", 10, 1, 10, 100).WithDoc("Record length in thousands"),
		procedure.Bool("average", false),
		procedure.Int("average_cycles", 5, 1, 100),
		procedure.Bool("fit_single", false).WithDoc("Fit one dip"),
		procedure.Bool("fit_double", false).WithDoc("Fit two dips"),
		procedure.Bool("log_plot", false).WithDoc("Plot in dB"),
	}
}

func (p *Resonator) Columns() []string {
	return []string{ColScanWavelength, ColVoltage, ColTrigger, ColFit, ColTimeOrig}
}

func (p *Resonator) Axes() (x, y string) { return ColScanWavelength, ColVoltage }

// SaveFigureTo makes the run write the data and fit as a figure to path.
func (p *Resonator) SaveFigureTo(path string) { p.figure = path }

func (p *Resonator) Startup(r *procedure.Run) error {
	v := r.Params
	start, stop, speed := v.Float("wl_start"), v.Float("wl_stop"), v.Float("speed")
	if start >= stop {
		return &labctl.ValidationError{Name: "wl_stop", Value: stop, Reason: "must be above wl_start"}
	}

	r.Log.Info("setting up laser")
	a, err := p.open(r, TunableLaser)
	if err != nil {
		return err
	}
	p.laser = toptica.NewCTL(a, labctl.WithLogger(r.Log))
	if err := apply(p.laser,
		setting{"power_stabilization", true},
		setting{"wavelength_set", start},
		setting{"power_set", v.Float("laser_power")},
	); err != nil {
		return err
	}

	r.Log.Info("setting up oscilloscope")
	if a, err = p.open(r, Oscilloscope); err != nil {
		return err
	}
	p.osc = tektronix.NewMDO3052(a, labctl.WithLogger(r.Log))
	scale := v.Float("vertical_scale") / 1000
	if v.Bool("auto_scale") {
		if scale, err = p.osc.AutoScale(); err != nil {
			return fmt.Errorf("autoscale: %w", err)
		}
	}

	if err := p.laser.Set("wavelength_set", math.Max(start-speed, minScanWavelength)); err != nil {
		return err
	}
	if err := p.laser.ScanSetup(toptica.ScanConfig{Begin: start, End: stop, Speed: speed, Trigger: true}); err != nil {
		return fmt.Errorf("scan setup: %w", err)
	}
	r.Progress(30)

	if err := p.osc.Reset(); err != nil {
		return err
	}
	if err := p.osc.Select(); err != nil {
		return err
	}
	if err := apply(p.osc,
		setting{"acquisition_state", 0},
		setting{"stop_after", tektronix.SingleShot},
		setting{"record_length", v.Int("samples") * 1000},
		setting{"trigger_type", tektronix.EdgeTrigger},
		setting{"trigger_mode", "NORM"},
		setting{"trigger_source", "CH2"},
		setting{"trigger_slope", "RIS"},
		setting{"delay_mode", false},
		setting{"horizontal_position", 10},
		setting{"trigger_level2", 2.5},
	); err != nil {
		return err
	}
	ch1, err := p.osc.Input(1)
	if err != nil {
		return err
	}
	ch2, err := p.osc.Input(2)
	if err != nil {
		return err
	}
	if err := ch1.SetTermination(tektronix.Fifty); err != nil {
		return err
	}
	if err := ch2.SetScale(1); err != nil {
		return err
	}
	if err := ch1.SetScale(scale); err != nil {
		return err
	}
	if err := ch1.SetPosition(v.Float("vertical_offset")); err != nil {
		return err
	}
	r.Progress(40)
	return nil
}

// fitTime sets a horizontal scale that covers mtime seconds on nine
// divisions, stretching the record by a tenth of mtime until the scope
// accepts it. It returns the covered time.
func (p *Resonator) fitTime(mtime float64) (float64, error) {
	htime := mtime
	if err := p.osc.Set("horizontal_scale", htime/9); err != nil {
		return 0, err
	}
	for i := 0; ; i++ {
		got, err := p.osc.GetFloat("horizontal_scale")
		if err != nil {
			return 0, err
		}
		if got >= mtime/9 {
			return htime, nil
		}
		if i == maxScaleAdjust {
			return 0, fmt.Errorf("horizontal scale stuck at %g s/div", got)
		}
		htime += 0.1 * mtime
		if err := p.osc.Set("horizontal_scale", htime/9); err != nil {
			return 0, err
		}
	}
}

func (p *Resonator) Execute(r *procedure.Run) error {
	v := r.Params
	start, stop, speed := v.Float("wl_start"), v.Float("wl_stop"), v.Float("speed")
	htime, err := p.fitTime((stop - start) / speed)
	if err != nil {
		return err
	}
	reps := 1
	if v.Bool("average") {
		reps = v.Int("average_cycles")
	}
	n := v.Int("samples") * 1000
	data := make([]float64, n)
	trig := make([]float64, n)
	r.Progress(41)

	arm := time.Duration(0.8*htime*float64(time.Second)) + p.Settle
	for i := 0; i < reps; i++ {
		r.Log.Infof("scan %d of %d", i+1, reps)
		if err := p.osc.Set("acquisition_state", 1); err != nil {
			return err
		}
		if !r.Sleep(arm) {
			return nil
		}
		if err := p.laser.StartScan(); err != nil {
			return err
		}
		for {
			busy, err := p.osc.Acquiring()
			if err != nil {
				return err
			}
			if !busy {
				break
			}
			if !r.Sleep(2 * pollInterval) {
				return nil
			}
		}
		if err := accumulate(p.osc, "CH1", data); err != nil {
			return err
		}
		if err := accumulate(p.osc, "CH2", trig); err != nil {
			return err
		}
		r.Progress(41 + 58*float64(i+1)/float64(reps))
	}
	for i := range data {
		data[i] /= float64(reps)
		trig[i] /= float64(reps)
	}

	t0, dt, rec, err := p.osc.Timescale()
	if err != nil {
		return err
	}
	t := linspace(t0, t0+float64(rec)*dt, rec)
	wl := make([]float64, len(t))
	for i, ti := range t {
		wl[i] = ti*speed + start
	}
	vs, err := p.osc.VerticalScale("CH1")
	if err != nil {
		return err
	}
	ts, err := p.osc.VerticalScale("CH2")
	if err != nil {
		return err
	}
	volts := vs.Volts(data)
	trigVolts := ts.Volts(trig)

	curve, label := p.fit(r, wl, volts)
	if p.figure != "" {
		p.saveFigure(r, wl, volts, curve, label)
	}

	rows := min(len(t), len(volts))
	for i := 0; i < rows; i++ {
		row := procedure.Row{
			ColScanWavelength: wl[i],
			ColVoltage:        volts[i],
			ColTrigger:        trigVolts[i],
			ColFit:            curve[i],
			ColTimeOrig:       t[i],
		}
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

// fit returns the fitted curve over wl, zero when no fit was asked for and
// NaN when the fit failed.
func (p *Resonator) fit(r *procedure.Run, wl, volts []float64) ([]float64, string) {
	v := r.Params
	lines := 0
	switch {
	case v.Bool("fit_double"):
		lines = 2
	case v.Bool("fit_single"):
		lines = 1
	}
	curve := make([]float64, len(wl))
	if lines == 0 {
		return curve, ""
	}
	x, y := fit.Window(wl, volts, v.Float("wl_start"), v.Float("wl_stop"))
	res, err := fit.Dips(x, y, lines)
	if err != nil {
		r.Log.WithError(err).Warn("fit failed")
		for i := range curve {
			curve[i] = math.NaN()
		}
		return curve, ""
	}
	label := plot.FitLabel(res)
	r.Log.Info(label)
	return res.Curve(wl), label
}

func (p *Resonator) saveFigure(r *procedure.Run, wl, volts, curve []float64, label string) {
	f := plot.Figure{
		Title:   "transmission of " + r.ID.String(),
		XLabel:  ColWavelength,
		YLabel:  "Voltage [V]",
		Decibel: r.Params.Bool("log_plot"),
		Series:  []plot.Series{{X: wl, Y: volts}},
	}
	if label != "" {
		f.Series = append(f.Series, plot.Series{Name: label, X: wl, Y: curve, Line: true})
	}
	if err := f.Save(p.figure); err != nil {
		r.Log.WithError(err).Warn("saving figure")
		return
	}
	r.Log.WithField("path", p.figure).Info("figure saved")
}

// accumulate adds the raw record of channel to sum.
func accumulate(osc *tektronix.MDO3052, channel string, sum []float64) error {
	raw, err := osc.Waveform(channel, 1, len(sum))
	if err != nil {
		return fmt.Errorf("read %s: %w", channel, err)
	}
	for i := 0; i < min(len(raw), len(sum)); i++ {
		sum[i] += raw[i]
	}
	return nil
}

func (p *Resonator) Shutdown(r *procedure.Run) error {
	var err error
	if p.laser != nil && r.ShouldStop() {
		err = p.laser.StopScan()
	}
	p.laser, p.osc = nil, nil
	return multierr.Append(err, p.close())
}
