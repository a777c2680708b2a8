// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package transport

import (
	"time"

	"go.bug.st/serial"
)

// DefaultBaudRate is used for serial links unless overridden.
const DefaultBaudRate = 115200

// serialLink adapts a go.bug.st/serial port to the session: an expired read
// timeout, which the port reports as an empty read, becomes a timeout error.
type serialLink struct {
	serial.Port
}

func openSerial(device string, baud int) (*serialLink, error) {
	port, err := serial.Open(device, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	return &serialLink{Port: port}, nil
}

func (l *serialLink) Read(p []byte) (int, error) {
	n, err := l.Port.Read(p)
	if n == 0 && err == nil {
		return 0, errReadTimeout
	}
	return n, err
}

func (l *serialLink) SetReadDeadline(t time.Time) error {
	d := time.Until(t)
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return l.Port.SetReadTimeout(d)
}

// Close discards unread input before closing the port.
func (l *serialLink) Close() error {
	_ = l.Port.ResetInputBuffer()
	return l.Port.Close()
}

// Ports lists the serial ports present on the system.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}
