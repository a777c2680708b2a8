// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package mockbus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ongpym/labctl"
)

func TestScriptedBus(t *testing.T) {
	boom := errors.New("boom")
	b := New().
		Reply("*IDN?", "ACME,1").
		Reply("MEAS?", "1.5").
		FailOn("BAD", boom)

	id, err := b.Ask("*IDN?")
	require.NoError(t, err)
	assert.Equal(t, "ACME,1", id)

	require.NoError(t, b.Write("MEAS?"))
	r, err := b.Read()
	require.NoError(t, err)
	assert.Equal(t, "1.5", r)
	_, err = b.Read()
	assert.ErrorIs(t, err, labctl.ErrTimeout)

	assert.ErrorIs(t, b.Write("BAD"), boom)
	_, err = b.Ask("NOTHING?")
	assert.ErrorIs(t, err, labctl.ErrTimeout)

	assert.Equal(t, []string{"MEAS?"}, b.Writes())
	assert.Equal(t, []string{"*IDN?", "NOTHING?"}, b.Asks())

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	assert.Equal(t, 2, b.CloseCount())
}

func TestEchoStripsUnits(t *testing.T) {
	b := NewEcho()
	for _, cmd := range []string{":VOLT 5 V", "SOUR0:WAV:SWE:STAR 1550nm", "SOUR0:WAV:SWE:SPE 0.5nm/s", "TRIG:A:MOD NORM"} {
		require.NoError(t, b.Write(cmd))
	}
	for head, want := range map[string]string{
		"VOLT":               "5",
		":volt":              "5",
		"SOUR0:WAV:SWE:STAR": "1550",
		"SOUR0:WAV:SWE:SPE":  "0.5",
		"TRIG:A:MOD":         "NORM",
	} {
		v, ok := b.Value(head)
		require.True(t, ok, head)
		assert.Equal(t, want, v, head)
	}
	v, err := b.Ask(":VOLT?")
	require.NoError(t, err)
	assert.Equal(t, "5", v)
}

func TestSchemeSyntax(t *testing.T) {
	b := NewEcho().WithSyntax(Scheme{})
	require.NoError(t, b.Write("(param-set! 'laser1:scan:offset 70.5)"))
	v, err := b.Ask("(param-ref 'laser1:scan:offset)")
	require.NoError(t, err)
	assert.Equal(t, "70.5", v)

	require.NoError(t, b.Write("(exec 'laser1:wide-scan:start)"))
	_, err = b.Ask("(param-ref 'laser1:wide-scan:state)")
	assert.ErrorIs(t, err, labctl.ErrTimeout)
}

func TestSimulate(t *testing.T) {
	assert.Equal(t, []string{"AFG2125", "CTL", "E36106A", "MDO3052", "N7744C", "N7776C"}, Models())

	for _, m := range []string{"e36106a", "AFG-2125", " N7744C "} {
		_, err := Simulate(m)
		assert.NoError(t, err, m)
	}
	_, err := Simulate("NOPE")
	assert.Error(t, err)

	b, err := Simulate("E36106A")
	require.NoError(t, err)
	id, err := b.Ask("*IDN?")
	require.NoError(t, err)
	assert.Contains(t, id, "E36106A")

	require.NoError(t, b.Write(":VOLT 2 V"))
	require.NoError(t, b.Write(":OUTP 1"))
	i, err := b.Ask(":MEAS:CURR?")
	require.NoError(t, err)
	f, err := labctl.ParseFloats(i)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, f[0], 1e-9)
}

func TestSimulatedBlocks(t *testing.T) {
	b, err := Simulate("N7744C")
	require.NoError(t, err)
	require.NoError(t, b.Write(":SENS3:FUNC:PAR:LOGG 7,1e-05"))
	vals, err := b.ReadBinaryBlock(":SENS3:FUNC:RES?", labctl.Float32LSBFormat)
	require.NoError(t, err)
	assert.Len(t, vals, 7)

	_, err = b.ReadBinaryBlock(":SENS3:FUNC:NONE?", labctl.Float32LSBFormat)
	assert.ErrorIs(t, err, labctl.ErrTimeout)
}
