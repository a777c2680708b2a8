// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package transport

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/ongpym/labctl"
)

// Kind identifies the bus of a resource.
type Kind int

// Available resource kinds.
const (
	Serial Kind = iota
	Socket
	GPIB
	USB
	Sim
)

var kindDesc = map[Kind]string{
	Serial: "ASRL",
	Socket: "TCPIP",
	GPIB:   "GPIB",
	USB:    "USB",
	Sim:    "SIM",
}

func (k Kind) String() string {
	return kindDesc[k]
}

// DefaultSCPIPort is used for TCPIP INSTR resources, which are served over a
// raw socket instead of VXI-11.
const DefaultSCPIPort = 5025

// Resource is a parsed VISA-style resource string.
type Resource struct {
	Kind  Kind
	Board int

	// Serial
	Device string

	// TCPIP
	Host string
	Port int

	// GPIB
	Primary   int
	Secondary int // -1 when absent

	// USB
	VendorID  uint16
	ProductID uint16
	SerialNum string

	// SIM
	Model string

	raw string
}

func (r Resource) String() string { return r.raw }

// ParseResource parses addresses such as
//
//	ASRL/dev/ttyUSB0::INSTR
//	ASRL3::INSTR
//	TCPIP0::10.4.58.232::5025::SOCKET
//	TCPIP0::100.65.8.121::inst0::INSTR
//	GPIB0::5::INSTR
//	USB0::0x2A8D::0x1802::MY1234::INSTR
//	SIM::E36106A
//
// A malformed address is reported as a *labctl.ConnectionError.
func ParseResource(addr string) (Resource, error) {
	r := Resource{raw: addr, Secondary: -1}
	parts := strings.Split(strings.TrimSpace(addr), "::")
	head := strings.ToUpper(parts[0])
	fail := func(format string, a ...any) (Resource, error) {
		return Resource{}, &labctl.ConnectionError{Address: addr, Err: fmt.Errorf(format, a...)}
	}
	last := strings.ToUpper(parts[len(parts)-1])

	switch {
	case head == "SIM":
		r.Kind = Sim
		if len(parts) != 2 || parts[1] == "" {
			return fail("expected SIM::<model>")
		}
		r.Model = strings.ToUpper(parts[1])
	case strings.HasPrefix(head, "ASRL"):
		r.Kind = Serial
		if len(parts) != 2 || last != "INSTR" {
			return fail("expected ASRL<port>::INSTR")
		}
		dev := parts[0][4:]
		if n, err := strconv.Atoi(dev); err == nil {
			r.Board = n
			dev = comPort(n)
		}
		if dev == "" {
			return fail("missing serial port")
		}
		r.Device = dev
	case strings.HasPrefix(head, "TCPIP"):
		r.Kind = Socket
		board, err := boardNumber(head, "TCPIP")
		if err != nil {
			return fail("%s", err)
		}
		r.Board = board
		switch {
		case last == "SOCKET" && len(parts) == 4:
			r.Host = parts[1]
			r.Port, err = strconv.Atoi(parts[2])
			if err != nil || r.Port <= 0 || r.Port > 65535 {
				return fail("invalid port %q", parts[2])
			}
		case last == "INSTR" && (len(parts) == 3 || len(parts) == 4):
			r.Host = parts[1]
			r.Port = DefaultSCPIPort
		default:
			return fail("expected TCPIP::<host>::<port>::SOCKET or TCPIP::<host>[::<device>]::INSTR")
		}
		if r.Host == "" {
			return fail("missing host")
		}
	case strings.HasPrefix(head, "GPIB"):
		r.Kind = GPIB
		board, err := boardNumber(head, "GPIB")
		if err != nil {
			return fail("%s", err)
		}
		r.Board = board
		if last != "INSTR" || len(parts) < 3 || len(parts) > 4 {
			return fail("expected GPIB::<primary>[::<secondary>]::INSTR")
		}
		if r.Primary, err = strconv.Atoi(parts[1]); err != nil {
			return fail("invalid primary address %q", parts[1])
		}
		if len(parts) == 4 {
			if r.Secondary, err = strconv.Atoi(parts[2]); err != nil {
				return fail("invalid secondary address %q", parts[2])
			}
		}
	case strings.HasPrefix(head, "USB"):
		r.Kind = USB
		board, err := boardNumber(head, "USB")
		if err != nil {
			return fail("%s", err)
		}
		r.Board = board
		if last != "INSTR" || len(parts) < 4 || len(parts) > 6 {
			return fail("expected USB::<vid>::<pid>[::<serial>[::<interface>]]::INSTR")
		}
		vid, err := strconv.ParseUint(parts[1], 0, 16)
		if err != nil {
			return fail("invalid vendor id %q", parts[1])
		}
		pid, err := strconv.ParseUint(parts[2], 0, 16)
		if err != nil {
			return fail("invalid product id %q", parts[2])
		}
		r.VendorID, r.ProductID = uint16(vid), uint16(pid)
		if len(parts) >= 5 {
			r.SerialNum = parts[3]
		}
	default:
		return fail("unsupported resource type %q", parts[0])
	}
	return r, nil
}

func boardNumber(head, prefix string) (int, error) {
	s := strings.TrimPrefix(head, prefix)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid board number %q", s)
	}
	return n, nil
}

func comPort(n int) string {
	if runtime.GOOS == "windows" {
		return fmt.Sprintf("COM%d", n)
	}
	return fmt.Sprintf("/dev/ttyS%d", n)
}
