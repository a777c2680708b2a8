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

func TestSensorCommands(t *testing.T) {
	bus := mockbus.New()
	pm := keysight.NewN7744C(bus)
	s, err := pm.Sensor(2)
	require.NoError(t, err)

	require.NoError(t, s.Set("auto_gain", true))
	require.NoError(t, s.Set("power_unit", keysight.UnitWatt))
	require.NoError(t, s.Set("power_range", -20))
	require.NoError(t, s.Set("trigger_input", "CME"))
	require.NoError(t, s.SetupLogging(100, 1e-4))
	require.NoError(t, s.StartLogging())
	require.NoError(t, s.Trigger())
	require.NoError(t, s.Zero())
	require.NoError(t, pm.ZeroAll())

	assert.Equal(t, []string{
		":SENS2:POW:GAIN:AUTO 1",
		":SENS2:POW:UNIT 1",
		":SENS2:POW:RANG -20",
		":TRIG2:INP CME",
		":SENS2:FUNC:PAR:LOGG 100,0.0001",
		":SENS2:FUNC:STAT LOGG,STAR",
		":TRIG2 1",
		":SENS2:CORR:COLL:ZERO",
		":SENS:CORR:COLL:ZERO:ALL",
	}, bus.Writes())
}

func TestSensorValidation(t *testing.T) {
	bus := mockbus.New()
	pm := keysight.NewN7744C(bus)
	s, err := pm.Sensor(1)
	require.NoError(t, err)

	assert.ErrorIs(t, s.Set("power_range", -25), labctl.ErrValidation)
	assert.ErrorIs(t, s.Set("trigger_input", "NOPE"), labctl.ErrValidation)
	assert.ErrorIs(t, s.Set("loop_number", 1.5), labctl.ErrValidation)
	require.NoError(t, s.SetupLogging(10, 0.5))
	assert.Equal(t, 1, bus.WriteCount())

	_, err = pm.Sensor(5)
	assert.ErrorIs(t, err, labctl.ErrValidation)
	_, err = pm.SensorByName("X1")
	assert.ErrorIs(t, err, labctl.ErrValidation)
	s3, err := pm.SensorByName("ch3")
	require.NoError(t, err)
	assert.Equal(t, 3, s3.Index())
}

func TestSensorLoggingSimulated(t *testing.T) {
	bus, err := mockbus.Simulate("N7744C")
	require.NoError(t, err)
	pm := keysight.NewN7744C(bus)
	s, err := pm.Sensor(1)
	require.NoError(t, err)

	require.NoError(t, s.Set("power_unit", keysight.UnitDBm))
	unit, err := s.GetString("power_unit")
	require.NoError(t, err)
	assert.Equal(t, keysight.UnitDBm, unit)

	require.NoError(t, s.SetupLogging(250, 1e-5))
	params, err := s.Get("logging_parameters")
	require.NoError(t, err)
	assert.Equal(t, []any{250.0, 1e-5}, params)

	require.NoError(t, s.StartLogging())
	busy, err := s.InProgress()
	require.NoError(t, err)
	assert.False(t, busy)

	data, err := s.Result()
	require.NoError(t, err)
	require.Len(t, data, 250)
	for _, p := range data {
		assert.InDelta(t, -20, p, 0.1)
	}

	require.NoError(t, pm.Set("power_unit", keysight.UnitWatt))
	units, err := pm.PowerUnits()
	require.NoError(t, err)
	assert.Equal(t, []string{"W", "W", "W", "W"}, units)
}

func TestSensorInProgress(t *testing.T) {
	bus := mockbus.New().Reply(":SENS4:FUNC:STAT?", "LOGGING_STABILITY,PROGRESS")
	pm := keysight.NewN7744C(bus)
	s, err := pm.Sensor(4)
	require.NoError(t, err)

	busy, err := s.InProgress()
	require.NoError(t, err)
	assert.True(t, busy)

	bus.Reply(":SENS4:FUNC:STAT?", "NONE")
	_, err = s.InProgress()
	assert.ErrorIs(t, err, labctl.ErrProtocol)
}
