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

func TestE36106AOutOfRange(t *testing.T) {
	bus := mockbus.NewEcho()
	psu := keysight.NewE36106A(bus)

	assert.ErrorIs(t, psu.SetVoltage(100.5), labctl.ErrValidation)
	assert.ErrorIs(t, psu.SetVoltage(-1), labctl.ErrValidation)
	assert.ErrorIs(t, psu.SetCurrentLimit(0.5), labctl.ErrValidation)
	assert.Zero(t, bus.WriteCount())

	require.NoError(t, psu.SetVoltage(12))
	require.NoError(t, psu.SetCurrentLimit(0.25))
	assert.Equal(t, []string{":VOLT 12 V", ":CURR 0.25"}, bus.Writes())
}

func TestE36106ASimulated(t *testing.T) {
	bus, err := mockbus.Simulate("E36106A")
	require.NoError(t, err)
	psu := keysight.NewE36106A(bus)

	id, err := psu.ID()
	require.NoError(t, err)
	assert.Contains(t, id, "E36106A")

	require.NoError(t, psu.SetVoltage(5))
	on, err := psu.IsEnabled()
	require.NoError(t, err)
	assert.False(t, on)

	require.NoError(t, psu.Enable())
	on, err = psu.IsEnabled()
	require.NoError(t, err)
	assert.True(t, on)

	v, err := psu.MeasureVoltage()
	require.NoError(t, err)
	assert.InDelta(t, 5.0, v, 1e-9)
	i, err := psu.GetFloat("current")
	require.NoError(t, err)
	assert.InDelta(t, 5.0/mockbus.SimLoad*1e3, i, 1e-9)

	setpoint, err := psu.GetFloat("voltage_range")
	require.NoError(t, err)
	assert.Equal(t, 5.0, setpoint)

	require.NoError(t, psu.Disable())
	v, err = psu.MeasureVoltage()
	require.NoError(t, err)
	assert.Zero(t, v)

	msgs, err := psu.CheckErrors()
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestE36106ACheckErrors(t *testing.T) {
	queue := []string{`-113,"Undefined header"`, `-222,"Data out of range"`, `+0,"No error"`}
	bus := mockbus.New().ReplyFunc(func(cmd string) (string, bool) {
		if cmd != ":SYST:ERR?" || len(queue) == 0 {
			return "", false
		}
		r := queue[0]
		queue = queue[1:]
		return r, true
	})
	psu := keysight.NewE36106A(bus)

	msgs, err := psu.CheckErrors()
	require.NoError(t, err)
	assert.Equal(t, []string{"-113: Undefined header", "-222: Data out of range"}, msgs)

	bus.Reply(":SYST:ERR?", "garbage")
	_, err = psu.CheckErrors()
	assert.ErrorIs(t, err, labctl.ErrProtocol)
}

func TestE36106ACommands(t *testing.T) {
	bus := mockbus.New()
	psu := keysight.NewE36106A(bus)

	require.NoError(t, psu.Reset())
	require.NoError(t, psu.Enable())
	require.NoError(t, psu.Disable())
	require.NoError(t, psu.SaveCalibration())
	assert.Equal(t, []string{"*RST", ":OUTP 1", ":OUTP 0", "CAL:SAVE"}, bus.Writes())

	_, err := psu.GetFloat("voltage")
	assert.ErrorIs(t, err, labctl.ErrTimeout)
}
