// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package labctl_test

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ongpym/labctl"
)

func TestParseBlockInt16(t *testing.T) {
	payload, err := labctl.ParseBlock([]byte("#16123456"))
	require.NoError(t, err)
	assert.Equal(t, []byte("123456"), payload)

	msb, err := labctl.DecodeBlock(payload, labctl.BlockFormat{Width: 2, Kind: labctl.Signed, Order: binary.BigEndian})
	require.NoError(t, err)
	assert.Equal(t, []float64{0x3132, 0x3334, 0x3536}, msb)

	lsb, err := labctl.DecodeBlock(payload, labctl.BlockFormat{Width: 2, Kind: labctl.Signed, Order: binary.LittleEndian})
	require.NoError(t, err)
	assert.Equal(t, []float64{0x3231, 0x3433, 0x3635}, lsb)
}

func TestParseBlockLengthMismatch(t *testing.T) {
	tests := map[string]string{
		"undersized":   "#17123456",
		"oversized":    "#151234567",
		"no digits":    "#",
		"short header": "#312",
		"no header":    "123456",
		"indefinite":   "#0123456\n",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := labctl.ParseBlock([]byte(raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, labctl.ErrProtocol)
			var pe *labctl.ProtocolError
			require.True(t, errors.As(err, &pe))
			assert.NotEmpty(t, pe.Raw)
		})
	}
}

func TestParseBlockTerminator(t *testing.T) {
	for _, raw := range []string{"#16123456\n", "#16123456\r\n", ":CURV #16123456"} {
		payload, err := labctl.ParseBlock([]byte(raw))
		require.NoError(t, err, raw)
		assert.Equal(t, []byte("123456"), payload)
	}
}

func TestDecodeBlockKinds(t *testing.T) {
	vals, err := labctl.DecodeBlock([]byte{0xff, 0x01}, labctl.Int8Format)
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, 1}, vals)

	vals, err = labctl.DecodeBlock([]byte{0xff, 0xff}, labctl.BlockFormat{Width: 2, Kind: labctl.Unsigned, Order: binary.BigEndian})
	require.NoError(t, err)
	assert.Equal(t, []float64{65535}, vals)

	_, err = labctl.DecodeBlock([]byte{1, 2, 3}, labctl.Int16MSBFormat)
	assert.ErrorIs(t, err, labctl.ErrProtocol)

	_, err = labctl.DecodeBlock([]byte{1, 2}, labctl.BlockFormat{Width: 2, Kind: labctl.Float, Order: binary.BigEndian})
	assert.ErrorIs(t, err, labctl.ErrValidation)
}

func TestEncodeBlockFloats(t *testing.T) {
	want := []float64{1550.5e-9, -3.25, 0}
	raw, err := labctl.EncodeBlock(want, labctl.Float64LSBFormat)
	require.NoError(t, err)
	assert.Equal(t, "#224", string(raw[:4]))

	payload, err := labctl.ParseBlock(raw)
	require.NoError(t, err)
	got, err := labctl.DecodeBlock(payload, labctl.Float64LSBFormat)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	raw, err = labctl.EncodeBlock([]float64{-2.5e-3}, labctl.Float32LSBFormat)
	require.NoError(t, err)
	payload, err = labctl.ParseBlock(raw)
	require.NoError(t, err)
	got, err = labctl.DecodeBlock(payload, labctl.Float32LSBFormat)
	require.NoError(t, err)
	assert.InDelta(t, -2.5e-3, got[0], 1e-9)
}

func TestReadBlock(t *testing.T) {
	r := bufio.NewReader(bytes.NewBufferString("#16123456\nNEXT\n"))
	payload, err := labctl.ReadBlock(r)
	require.NoError(t, err)
	assert.Equal(t, []byte("123456"), payload)
	rest, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "\n", rest)

	r = bufio.NewReader(bytes.NewBufferString("#1912345"))
	_, err = labctl.ReadBlock(r)
	assert.ErrorIs(t, err, labctl.ErrProtocol)
}

func TestParseBlockTrailingLineFeedByte(t *testing.T) {
	raw, err := labctl.EncodeBlock([]float64{10}, labctl.Int16MSBFormat)
	require.NoError(t, err)
	assert.Equal(t, []byte("#12\x00\n"), raw)

	for _, reply := range [][]byte{raw, append(raw, '\n'), append(raw, '\r', '\n')} {
		payload, err := labctl.ParseBlock(reply)
		require.NoError(t, err, "%q", reply)
		vals, err := labctl.DecodeBlock(payload, labctl.Int16MSBFormat)
		require.NoError(t, err)
		assert.Equal(t, []float64{10}, vals)
	}

	r := bufio.NewReader(bytes.NewReader(raw))
	payload, err := labctl.ReadBlock(r)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x0a}, payload)
}

func TestBlockLengthLimit(t *testing.T) {
	_, err := labctl.ParseBlock([]byte("#9999999999\n"))
	assert.ErrorIs(t, err, labctl.ErrProtocol)

	_, err = labctl.ReadBlock(bufio.NewReader(bytes.NewBufferString("#9999999999")))
	assert.ErrorIs(t, err, labctl.ErrProtocol)
}
