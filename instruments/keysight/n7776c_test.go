// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package keysight_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ongpym/labctl"
	"github.com/ongpym/labctl/instruments/keysight"
	"github.com/ongpym/labctl/lib/mockbus"
)

func TestN7776CSweepSimulated(t *testing.T) {
	bus, err := mockbus.Simulate("N7776C")
	require.NoError(t, err)
	laser := keysight.NewN7776C(bus)

	require.NoError(t, laser.Set("output", true))
	on, err := laser.GetBool("output")
	require.NoError(t, err)
	assert.True(t, on)

	require.NoError(t, laser.Set("wl_start", 1550))
	require.NoError(t, laser.Set("wl_stop", 1550.5))
	require.NoError(t, laser.Set("sweep_step", 0.01))
	require.NoError(t, laser.Set("sweep_speed", 0.5))
	require.NoError(t, laser.Set("sweep_mode", keysight.SweepContinuous))
	require.NoError(t, laser.Set("wl_logging", true))

	ok, msg, err := laser.SweepOK()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "OK", msg)

	n, err := laser.SweepPoints()
	require.NoError(t, err)
	assert.Equal(t, 51, n)

	require.NoError(t, laser.Set("sweep", 1))
	running, err := laser.Sweeping()
	require.NoError(t, err)
	assert.False(t, running)

	wl, err := laser.WavelengthData()
	require.NoError(t, err)
	require.Len(t, wl, 51)
	assert.InDelta(t, 1550e-9, wl[0], 1e-15)
	assert.InDelta(t, 1550.5e-9, wl[50], 1e-15)

	assert.Contains(t, bus.Writes(), "SOUR0:WAV:SWE:STAR 1550nm")
	assert.Contains(t, bus.Writes(), "SOUR0:WAV:SWE:SPE 0.5nm/s")
}

func TestN7776CValidation(t *testing.T) {
	bus := mockbus.New()
	laser := keysight.NewN7776C(bus)

	assert.ErrorIs(t, laser.Set("sweep_speed", 3), labctl.ErrValidation)
	assert.ErrorIs(t, laser.Set("wl_start", 1700), labctl.ErrValidation)
	assert.ErrorIs(t, laser.Set("trigger_out", "NOPE"), labctl.ErrValidation)
	assert.ErrorIs(t, laser.Set("sweep_check", 0), labctl.ErrValidation)
	assert.Zero(t, bus.WriteCount())

	require.NoError(t, laser.Set("trigger_out", "STF"))
	require.NoError(t, laser.Set("trigger_in", "IGN"))
	require.NoError(t, laser.Set("power_unit", keysight.UnitDBm))
	require.NoError(t, laser.Set("power", 10))
	assert.Equal(t, []string{
		"TRIG0:OUTP STF",
		"TRIG0:INP IGN",
		"SOUR0:POW:UNIT 0",
		"SOUR0:POW 10",
	}, bus.Writes())
}

func TestN7776CSweepCheckFailure(t *testing.T) {
	bus := mockbus.New().Reply("SOUR0:WAV:SWE:CHEC?", "368,Stop wavelength must be greater than start wavelength")
	laser := keysight.NewN7776C(bus)

	ok, msg, err := laser.SweepOK()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, msg, "Stop wavelength")
}
