// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package transport

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ongpym/labctl"
)

func TestParseResource(t *testing.T) {
	tests := []struct {
		addr string
		want Resource
	}{
		{"ASRL/dev/ttyUSB0::INSTR", Resource{Kind: Serial, Device: "/dev/ttyUSB0", Secondary: -1}},
		{"TCPIP0::10.4.58.232::5025::SOCKET", Resource{Kind: Socket, Host: "10.4.58.232", Port: 5025, Secondary: -1}},
		{"TCPIP::100.65.8.121::inst0::INSTR", Resource{Kind: Socket, Host: "100.65.8.121", Port: DefaultSCPIPort, Secondary: -1}},
		{"TCPIP1::scope.lab::INSTR", Resource{Kind: Socket, Board: 1, Host: "scope.lab", Port: DefaultSCPIPort, Secondary: -1}},
		{"GPIB0::5::INSTR", Resource{Kind: GPIB, Primary: 5, Secondary: -1}},
		{"GPIB::4::101::INSTR", Resource{Kind: GPIB, Primary: 4, Secondary: 101}},
		{"USB0::0x2A8D::0x1802::MY1234::INSTR", Resource{Kind: USB, VendorID: 0x2a8d, ProductID: 0x1802, SerialNum: "MY1234", Secondary: -1}},
		{"USB::0x0699::0x0408::INSTR", Resource{Kind: USB, VendorID: 0x0699, ProductID: 0x0408, Secondary: -1}},
		{"SIM::e36106a", Resource{Kind: Sim, Model: "E36106A", Secondary: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			got, err := ParseResource(tt.addr)
			require.NoError(t, err)
			tt.want.raw = tt.addr
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.addr, got.String())
		})
	}
}

func TestParseResourceCOMPort(t *testing.T) {
	r, err := ParseResource("ASRL3::INSTR")
	require.NoError(t, err)
	if runtime.GOOS == "windows" {
		assert.Equal(t, "COM3", r.Device)
	} else {
		assert.Equal(t, "/dev/ttyS3", r.Device)
	}
}

func TestParseResourceErrors(t *testing.T) {
	for _, addr := range []string{
		"",
		"ASRL::INSTR",
		"TCPIP::host::notaport::SOCKET",
		"TCPIP::::5025::SOCKET",
		"GPIB0::x::INSTR",
		"USB0::zz::0x1::INSTR",
		"SIM",
		"VXI0::1::INSTR",
	} {
		_, err := ParseResource(addr)
		assert.ErrorIs(t, err, labctl.ErrConnection, addr)
	}
}
