// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package gwinstek_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ongpym/labctl"
	"github.com/ongpym/labctl/instruments/gwinstek"
	"github.com/ongpym/labctl/lib/mockbus"
)

func TestApply(t *testing.T) {
	bus := mockbus.New()
	fg := gwinstek.NewAFG2125(bus)

	require.NoError(t, fg.Apply(gwinstek.Waveform{
		Signal:    gwinstek.Ramp,
		Frequency: 1e3,
		Amplitude: 1,
		Offset:    -0.5,
	}))
	require.NoError(t, fg.Set("high_impedance", true))
	require.NoError(t, fg.Output(true))
	assert.Equal(t, []string{
		"SOUR:FUNC RAMP",
		"SOUR:FREQ 1000",
		"SOUR:AMPL 1",
		"SOUR:DCO -0.5",
		"OUTP:LOAD INF",
		"OUTP ON",
	}, bus.Writes())
}

func TestApplyStopsAtFirstRejection(t *testing.T) {
	bus := mockbus.New()
	fg := gwinstek.NewAFG2125(bus)

	err := fg.Apply(gwinstek.Waveform{Signal: gwinstek.Square, Frequency: 30e6, Amplitude: 1})
	assert.ErrorIs(t, err, labctl.ErrValidation)
	assert.Equal(t, []string{"SOUR:FUNC SQU"}, bus.Writes())
	assert.ErrorIs(t, fg.Set("signal", "TRI"), labctl.ErrValidation)
}

func TestAFG2125Simulated(t *testing.T) {
	bus, err := mockbus.Simulate("AFG-2125")
	require.NoError(t, err)
	fg := gwinstek.NewAFG2125(bus)

	on, err := fg.GetBool("output")
	require.NoError(t, err)
	assert.False(t, on)
	require.NoError(t, fg.Output(true))
	on, err = fg.GetBool("output")
	require.NoError(t, err)
	assert.True(t, on)

	hiZ, err := fg.GetBool("high_impedance")
	require.NoError(t, err)
	assert.False(t, hiZ)

	require.NoError(t, fg.Set("frequency", 2.5e6))
	f, err := fg.GetFloat("frequency")
	require.NoError(t, err)
	assert.Equal(t, 2.5e6, f)

	signal, err := fg.GetString("signal")
	require.NoError(t, err)
	assert.Equal(t, gwinstek.Sine, signal)
}
