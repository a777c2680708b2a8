// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package tektronix_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ongpym/labctl"
	"github.com/ongpym/labctl/instruments/tektronix"
	"github.com/ongpym/labctl/lib/mockbus"
)

func TestInputCommands(t *testing.T) {
	bus := mockbus.New()
	scope := tektronix.NewMDO3052(bus)
	ch2, err := scope.Input(2)
	require.NoError(t, err)
	assert.Equal(t, "CH2", ch2.Name())

	require.NoError(t, ch2.SetScale(0.5))
	require.NoError(t, ch2.SetPosition(-4))
	require.NoError(t, ch2.SetTermination(tektronix.Fifty))
	assert.ErrorIs(t, ch2.SetScale(20), labctl.ErrValidation)
	assert.ErrorIs(t, ch2.SetTermination("75"), labctl.ErrValidation)

	assert.Equal(t, []string{":CH2:SCA 0.5", ":CH2:POS -4", ":CH2:TER FIF"}, bus.Writes())

	_, err = scope.Input(3)
	assert.ErrorIs(t, err, labctl.ErrValidation)
}

func TestScopeSettings(t *testing.T) {
	bus := mockbus.NewEcho()
	scope := tektronix.NewMDO3052(bus)

	require.NoError(t, scope.Set("record_length", 10000))
	require.NoError(t, scope.Set("stop_after", tektronix.SingleShot))
	require.NoError(t, scope.Set("delay_mode", false))
	require.NoError(t, scope.Set("trigger_level2", 2.5))
	assert.ErrorIs(t, scope.Set("record_length", 2000), labctl.ErrValidation)
	assert.ErrorIs(t, scope.Set("trigger_level1", 4), labctl.ErrValidation)
	assert.ErrorIs(t, scope.Set("horizontal_position", 101), labctl.ErrValidation)

	n, err := scope.GetInt("record_length")
	require.NoError(t, err)
	assert.Equal(t, 10000, n)
	delay, err := scope.GetBool("delay_mode")
	require.NoError(t, err)
	assert.False(t, delay)
	assert.Equal(t, []string{"HOR:RECO 10000", "ACQ:STOPA SEQ", "HOR:DEL:MOD 0", "TRIG:A:LEV:CH2 2.5"}, bus.Writes())
}

func TestWaveformSimulated(t *testing.T) {
	bus, err := mockbus.Simulate("MDO3052")
	require.NoError(t, err)
	scope := tektronix.NewMDO3052(bus)

	require.NoError(t, scope.Set("record_length", 1000))
	require.NoError(t, scope.Set("horizontal_scale", 1e-3))
	require.NoError(t, scope.Set("acquisition_state", 1))
	acquiring, err := scope.Acquiring()
	require.NoError(t, err)
	assert.False(t, acquiring)

	raw, err := scope.Waveform("CH1", 1, 1000)
	require.NoError(t, err)
	require.Len(t, raw, 1000)
	assert.Contains(t, bus.Writes(), "WFMO:BYT_N 2")
	assert.Contains(t, bus.Writes(), "DAT:STOP 1000")

	vs, err := scope.VerticalScale("CH1")
	require.NoError(t, err)
	volts := vs.Volts(raw)
	lowest := volts[0]
	for _, v := range volts {
		lowest = min(lowest, v)
	}
	assert.InDelta(t, 0.01, lowest, 1e-3)
	assert.InDelta(t, 0.05, volts[0], 1e-3)

	t0, dt, n, err := scope.Timescale()
	require.NoError(t, err)
	assert.Equal(t, 1000, n)
	assert.InDelta(t, 1e-5, dt, 1e-12)
	assert.InDelta(t, -5e-3, t0, 1e-12)

	busy, err := scope.Busy()
	require.NoError(t, err)
	assert.False(t, busy)
}

func TestAutoScale(t *testing.T) {
	bus := mockbus.New().Reply(":CH1:SCA?", "3.0E-1")
	scope := tektronix.NewMDO3052(bus)

	scale, err := scope.AutoScale()
	require.NoError(t, err)
	assert.InDelta(t, 0.2, scale, 1e-12)
	assert.Equal(t, []string{"SEL:CH2 OFF", "SEL:CH1 ON", "AUTOS EXEC", "AUTOS UND", "SEL:CH2 ON"}, bus.Writes())
}

func TestVolts(t *testing.T) {
	vs := tektronix.VerticalScale{Mult: 0.5, Zero: 1, Offset: 2}
	assert.Equal(t, []float64{0, 1, 3}, vs.Volts([]float64{0, 2, 6}))
}
