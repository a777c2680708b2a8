// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package experiments_test

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ongpym/labctl"
	"github.com/ongpym/labctl/experiments"
	"github.com/ongpym/labctl/lib/mockbus"
	"github.com/ongpym/labctl/lib/procedure"
)

// simBench opens one simulator per instrument name and keeps it for
// inspection.
type simBench struct {
	mu    sync.Mutex
	buses map[string]*mockbus.Bus
}

func newSimBench() *simBench { return &simBench{buses: map[string]*mockbus.Bus{}} }

func (s *simBench) Open(_ context.Context, name string) (labctl.Adapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.buses[name]; ok {
		return b, nil
	}
	b, err := mockbus.Simulate(name)
	if err != nil {
		return nil, err
	}
	s.buses[name] = b
	return b, nil
}

func (s *simBench) bus(t *testing.T, name string) *mockbus.Bus {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buses[name]
	require.True(t, ok, "%s was never opened", name)
	return b
}

type memSink struct {
	header procedure.Header
	rows   [][]float64
}

func (s *memSink) Start(h procedure.Header) error { s.header = h; return nil }
func (s *memSink) Record(v []float64) error       { s.rows = append(s.rows, v); return nil }
func (s *memSink) Close() error                   { return nil }

// column returns the values of one column.
func (s *memSink) column(t *testing.T, name string) []float64 {
	t.Helper()
	idx := -1
	for i, c := range s.header.Columns {
		if c == name {
			idx = i
		}
	}
	require.GreaterOrEqual(t, idx, 0, "no column %q", name)
	out := make([]float64, len(s.rows))
	for i, r := range s.rows {
		out[i] = r[idx]
	}
	return out
}

func value(t *testing.T, b *mockbus.Bus, head string) string {
	t.Helper()
	v, ok := b.Value(head)
	require.True(t, ok, "%s never set", head)
	return v
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{
		"modulation",
		"power-step",
		"powermeter",
		"resistance",
		"resonator-transmission",
		"swept-transmission",
		"voltage-sequence",
	}, experiments.Names())
	assert.Equal(t, "DC resistance measurement", experiments.Title("resistance"))

	_, err := experiments.New("nope", experiments.Simulated())
	assert.ErrorContains(t, err, "unknown procedure")

	for _, name := range experiments.Names() {
		p, err := experiments.New(name, experiments.Simulated())
		require.NoError(t, err, name)
		assert.Equal(t, name, p.Name())
		_, err = p.Parameters().Resolve(nil)
		assert.NoError(t, err, "defaults of %s", name)
		require.Implements(t, (*experiments.Plotted)(nil), p, name)
		x, y := p.(experiments.Plotted).Axes()
		assert.Contains(t, p.Columns(), x, name)
		assert.Contains(t, p.Columns(), y, name)
	}

	a, err := experiments.New("resistance", experiments.Simulated())
	require.NoError(t, err)
	b, err := experiments.New("Resistance", experiments.Simulated())
	require.NoError(t, err)
	assert.NotSame(t, a, b)
}

func TestResistance(t *testing.T) {
	sim := newSimBench()
	p := experiments.NewResistance(sim)
	p.Settle = 0
	sink := &memSink{}

	run, err := procedure.NewRunner().Run(context.Background(), p,
		map[string]any{"V_min": 1, "V_max": 3, "V_step": 1, "N_avg": 2}, sink)
	require.NoError(t, err)
	assert.Equal(t, procedure.Finished, run.State())
	assert.Equal(t, 100.0, run.Percent())

	require.Len(t, sink.rows, 2)
	assert.Equal(t, []float64{1, 2}, sink.column(t, experiments.ColVSet))
	assert.InDeltaSlice(t, []float64{1, 2}, sink.column(t, experiments.ColV), 1e-6)
	assert.InDeltaSlice(t, []float64{10, 20}, sink.column(t, experiments.ColI), 1e-6)
	assert.InDeltaSlice(t, []float64{mockbus.SimLoad, mockbus.SimLoad}, sink.column(t, experiments.ColR), 1e-6)
	assert.InDeltaSlice(t, []float64{10, 40}, sink.column(t, experiments.ColPower), 1e-6)

	psu := sim.bus(t, experiments.PowerSupply)
	assert.Equal(t, "0", value(t, psu, "OUTP"))
	assert.Equal(t, 1, psu.CloseCount())
	assert.Contains(t, psu.Writes(), ":VOLT 2 V")
}

func TestResistanceScriptedSupply(t *testing.T) {
	psu := mockbus.New().
		Reply("MEAS:VOLT?", "5.0").
		Reply(":MEAS:CURR?", "50.0")
	p := experiments.NewResistance(experiments.OpenerFunc(func(_ context.Context, name string) (labctl.Adapter, error) {
		if name != experiments.PowerSupply {
			return nil, fmt.Errorf("unexpected instrument %s", name)
		}
		return psu, nil
	}))
	p.Settle = 0
	sink := &memSink{}

	run, err := procedure.NewRunner().Run(context.Background(), p,
		map[string]any{"V_min": 0, "V_max": 2, "V_step": 1}, sink)
	require.NoError(t, err)
	assert.Equal(t, procedure.Finished, run.State())

	require.Len(t, sink.rows, 2)
	assert.Equal(t, []float64{0, 1}, sink.column(t, experiments.ColVSet))
	assert.Equal(t, []float64{5, 5}, sink.column(t, experiments.ColV))
	assert.Equal(t, []float64{50, 50}, sink.column(t, experiments.ColI))
	assert.InDeltaSlice(t, []float64{100, 100}, sink.column(t, experiments.ColR), 1e-9)
	assert.InDeltaSlice(t, []float64{250, 250}, sink.column(t, experiments.ColPower), 1e-9)
	assert.Equal(t, []string{"*RST", ":VOLT 0 V", ":OUTP 1", ":OUTP 0", ":VOLT 1 V", ":OUTP 1", ":OUTP 0", ":OUTP 0"}, psu.Writes())
	assert.Equal(t, 1, psu.CloseCount())
}

func TestResistanceStopped(t *testing.T) {
	sim := newSimBench()
	p := experiments.NewResistance(sim)
	p.Settle = 0
	sink := &memSink{}

	var rn *procedure.Runner
	rn = procedure.NewRunner(procedure.WithObserver(func(ev procedure.Event) {
		if ev.Kind == procedure.RowEvent {
			rn.Stop()
		}
	}))
	run, err := rn.Run(context.Background(), p, map[string]any{"V_min": 1, "V_max": 10}, sink)
	require.NoError(t, err)
	assert.Equal(t, procedure.Finished, run.State())
	assert.Len(t, sink.rows, 1)

	psu := sim.bus(t, experiments.PowerSupply)
	assert.Equal(t, 1, psu.CloseCount())
	assert.Equal(t, "0", value(t, psu, "OUTP"))
}

func TestPowerStep(t *testing.T) {
	p := experiments.NewPowerStep(newSimBench())
	p.Settle = 0
	sink := &memSink{}
	_, err := procedure.NewRunner().Run(context.Background(), p,
		map[string]any{"V_min": 0, "V_max": 1, "V_step": 0.25}, sink)
	require.NoError(t, err)
	assert.Equal(t, "power-step", p.Name())
	assert.Len(t, sink.rows, 4)
}

func TestPowerMeter(t *testing.T) {
	sim := newSimBench()
	sink := &memSink{}
	_, err := procedure.NewRunner().Run(context.Background(), experiments.NewPowerMeter(sim),
		map[string]any{"number": 20, "tau_avg": 1e-3}, sink)
	require.NoError(t, err)

	require.Len(t, sink.rows, 20)
	times := sink.column(t, experiments.ColTime)
	assert.Equal(t, 0.0, times[0])
	assert.InDelta(t, 0.019, times[19], 1e-12)
	for _, pw := range sink.column(t, experiments.ColPowerMeter) {
		assert.InDelta(t, -20, pw, 0.1)
	}
	pm := sim.bus(t, experiments.OpticalPowerMeter)
	assert.Contains(t, pm.Writes(), ":TRIG 1")
	assert.Equal(t, 1, pm.CloseCount())
}

func TestSweptTransmission(t *testing.T) {
	sim := newSimBench()
	sink := &memSink{}
	_, err := procedure.NewRunner().Run(context.Background(), experiments.NewSweptTransmission(sim), nil, sink)
	require.NoError(t, err)

	require.Len(t, sink.rows, 1001)
	wl := sink.column(t, experiments.ColWavelength)
	assert.InDelta(t, 1559, wl[0], 1e-6)
	assert.InDelta(t, 1560, wl[1000], 1e-6)

	laser := sim.bus(t, experiments.SweptLaser)
	assert.Equal(t, "0", value(t, laser, "SOUR0:POW:STAT"))
	assert.Equal(t, 1, laser.CloseCount())
	assert.Equal(t, 1, sim.bus(t, experiments.OpticalPowerMeter).CloseCount())
}

func TestSweptTransmissionRejectsRange(t *testing.T) {
	sim := newSimBench()
	run, err := procedure.NewRunner().Run(context.Background(), experiments.NewSweptTransmission(sim),
		map[string]any{"wl_start": 1560, "wl_stop": 1550}, nil)
	assert.ErrorIs(t, err, labctl.ErrValidation)
	assert.Equal(t, procedure.Failed, run.State())
	assert.Empty(t, sim.buses)
}

func TestResonator(t *testing.T) {
	sim := newSimBench()
	p := experiments.NewResonator(sim)
	p.Settle = 0
	fig := filepath.Join(t.TempDir(), "transmission.png")
	p.SaveFigureTo(fig)
	sink := &memSink{}

	_, err := procedure.NewRunner().Run(context.Background(), p, map[string]any{
		"wl_start":   1555,
		"wl_stop":    1555.1,
		"speed":      5,
		"samples":    1,
		"fit_single": true,
	}, sink)
	require.NoError(t, err)
	require.Len(t, sink.rows, 1000)

	volts := sink.column(t, experiments.ColVoltage)
	curve := sink.column(t, experiments.ColFit)
	dip := 0
	for i := range volts {
		if volts[i] < volts[dip] {
			dip = i
		}
		assert.False(t, math.IsNaN(curve[i]), "fit %d", i)
	}
	assert.InDelta(t, volts[dip], curve[dip], 0.005)
	assert.Less(t, curve[dip], curve[0])

	trig := sink.column(t, experiments.ColTrigger)
	assert.InDelta(t, 2.5, trig[len(trig)-1], 1e-3)

	ctl := sim.bus(t, experiments.TunableLaser)
	assert.Equal(t, "1550", value(t, ctl, "laser1:ctl:wavelength-set"))
	assert.Equal(t, 1, ctl.CloseCount())
	assert.Equal(t, 1, sim.bus(t, experiments.Oscilloscope).CloseCount())

	st, err := os.Stat(fig)
	require.NoError(t, err)
	assert.NotZero(t, st.Size())
}

func TestModulation(t *testing.T) {
	sim := newSimBench()
	p := experiments.NewModulation(sim)
	p.Settle = 0
	sink := &memSink{}

	_, err := procedure.NewRunner().Run(context.Background(), p, map[string]any{
		"amplitude":           9,
		"vertical_resolution": 100,
		"record_length":       1000,
	}, sink)
	require.NoError(t, err)
	require.Len(t, sink.rows, 1000)
	signal := sink.column(t, experiments.ColSignal)
	assert.InDelta(t, 2.5, signal[len(signal)-1], 0.01)

	osc := sim.bus(t, experiments.Oscilloscope)
	assert.Equal(t, "0.001", value(t, osc, "HOR:SCA"))
	fg := sim.bus(t, experiments.Generator)
	assert.Equal(t, "RAMP", value(t, fg, "SOUR:FUNC"))
	assert.Equal(t, "OFF", value(t, fg, "OUTP"))
	assert.Equal(t, 1, fg.CloseCount())
	assert.Equal(t, 1, osc.CloseCount())
}

func TestChannelCollision(t *testing.T) {
	sim := newSimBench()
	run, err := procedure.NewRunner().Run(context.Background(), experiments.NewModulation(sim),
		map[string]any{"response_channel": "CH1", "signal_channel": "CH1"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, labctl.ErrValidation)
	var verr *labctl.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "signal_channel", verr.Name)
	assert.Equal(t, procedure.Failed, run.State())
	assert.Empty(t, sim.buses)
}

func TestVoltageSequence(t *testing.T) {
	sim := newSimBench()
	p := experiments.NewVoltageSequence(sim)
	p.TriggerPoll = 0
	sink := &memSink{}

	_, err := procedure.NewRunner().Run(context.Background(), p, map[string]any{
		"voltage_sequence": "0, 1.5, 0",
		"dwell_time":       0,
		"signal_channel":   experiments.NoChannel,
		"record_length":    1000,
	}, sink)
	require.NoError(t, err)
	require.Len(t, sink.rows, 1000)
	assert.Equal(t, make([]float64, 1000), sink.column(t, experiments.ColSignal))

	psu := sim.bus(t, experiments.PowerSupply)
	assert.Subset(t, psu.Writes(), []string{":VOLT 0 V", ":VOLT 1.5 V", ":OUTP 0"})
	assert.Equal(t, "0", value(t, psu, "OUTP"))
	assert.Equal(t, 1, psu.CloseCount())
	assert.Contains(t, sim.bus(t, experiments.Oscilloscope).Writes(), "TRIG FORC")
}

func TestParseSequence(t *testing.T) {
	got, err := experiments.ParseSequence(" 0,2.5 ,10")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 2.5, 10}, got)

	for _, s := range []string{"", "1,,2", "a", "-1", "101"} {
		_, err := experiments.ParseSequence(s)
		assert.ErrorIs(t, err, labctl.ErrValidation, s)
	}
}
