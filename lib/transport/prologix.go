// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package transport

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ongpym/labctl"
)

// Controller models a Prologix GPIB-USB controller-in-charge addressing one
// instrument. It is the link beneath a Session for GPIB resources: bytes
// written go to the instrument and every read must be preceded by a
// `++read eoi` request because read-after-write is turned off.
type Controller struct {
	rw               io.ReadWriter
	primaryAddr      int
	hasSecondaryAddr bool
	secondaryAddr    int
	usbTerm          byte
	eotChar          byte
	readTmo          time.Duration
	eos              GpibTerm
	ar488            bool // compatibility with the Arduino AR488
	log              logrus.FieldLogger
}

// ControllerOption applies an option to the controller.
type ControllerOption func(*Controller)

// WithSecondaryAddress sets a secondary address, which must be in the range of
// 96 and 126, inclusive.
func WithSecondaryAddress(addr int) ControllerOption {
	return func(c *Controller) {
		c.hasSecondaryAddr = true
		c.secondaryAddr = addr
	}
}

// WithAR488 alters the init commands for the Arduino-based AR488, which
// does not understand `verbose` and should not have savecfg toggled.
func WithAR488() ControllerOption { return func(c *Controller) { c.ar488 = true } }

// WithControllerLogger sets the logger for controller commands.
func WithControllerLogger(l logrus.FieldLogger) ControllerOption {
	return func(c *Controller) { c.log = l }
}

// WithGPIBReadTimeout sets the controller's own GPIB read timeout. The
// controller accepts 1 ms to 3 s; other values are clamped.
func WithGPIBReadTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) { c.readTmo = min(max(d, time.Millisecond), maxGPIBReadTimeout) }
}

// WithEOS sets the terminator the controller appends to data forwarded to
// the instrument.
func WithEOS(term GpibTerm) ControllerOption {
	return func(c *Controller) { c.eos = term }
}

const maxGPIBReadTimeout = 3 * time.Second

// NewController configures the Prologix controller on rw to address the
// instrument at the primary GPIB address addr. Enable clear to send the
// Selected Device Clear (SDC) message to the instrument.
func NewController(
	rw io.ReadWriter,
	addr int,
	clear bool,
	opts ...ControllerOption,
) (*Controller, error) {
	c := Controller{
		rw:          rw,
		primaryAddr: addr,
		usbTerm:     '\n',
		eotChar:     '\n',
		readTmo:     500 * time.Millisecond,
		log:         labctl.DiscardLogger(),
	}
	for _, opt := range opts {
		opt(&c)
	}

	if !isPrimaryAddressValid(c.primaryAddr) {
		return nil, fmt.Errorf("invalid primary address %d (must be 0-30)", c.primaryAddr)
	}
	addrCmd := fmt.Sprintf("addr %d", c.primaryAddr)
	if c.hasSecondaryAddr {
		if !isSecondaryAddressValid(c.secondaryAddr) {
			return nil, fmt.Errorf("invalid secondary address %d (must be 96-126)", c.secondaryAddr)
		}
		addrCmd = fmt.Sprintf("addr %d %d", c.primaryAddr, c.secondaryAddr)
	}

	c.log.WithFields(logrus.Fields{
		"addr":     addrCmd,
		"eos":      c.eos,
		"read_tmo": c.readTmo,
	}).Debug("configuring GPIB controller")

	cmds := []string{}
	if !c.ar488 {
		cmds = append(cmds,
			"verbose 0", // turn off verbosity if on
			"savecfg 0", // don't wear the EEPROM while configuring
		)
	}
	cmds = append(cmds,
		addrCmd,
		"mode 1", // controller mode
		"auto 0", // no read-after-write; reads are requested explicitly
		"eoi 1",  // assert EOI with the last byte
		fmt.Sprintf("eos %d", c.eos),
		fmt.Sprintf("read_tmo_ms %d", c.readTmo.Milliseconds()),
		fmt.Sprintf("eot_char %d", c.eotChar),
		"eot_enable 1", // append eot_char when EOI is detected
	)
	if !c.ar488 {
		cmds = append(cmds, "savecfg 1")
	}
	if clear {
		cmds = append(cmds, "clr")
	}
	for _, cmd := range cmds {
		if err := c.CommandController(cmd); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// Write writes data to the instrument at the configured GPIB address.
func (c *Controller) Write(p []byte) (int, error) {
	return c.rw.Write(p)
}

// Read reads data from the instrument.
func (c *Controller) Read(p []byte) (int, error) {
	return c.rw.Read(p)
}

// SetReadDeadline forwards to the underlying link when it supports deadlines.
func (c *Controller) SetReadDeadline(t time.Time) error {
	if dl, ok := c.rw.(deadliner); ok {
		return dl.SetReadDeadline(t)
	}
	return nil
}

// Close returns the instrument to local control and closes the underlying
// link when it is closable.
func (c *Controller) Close() error {
	err := c.FrontPanel(true)
	if cl, ok := c.rw.(io.Closer); ok {
		if cerr := cl.Close(); cerr != nil {
			return cerr
		}
	}
	return err
}

// RequestRead tells the controller to read from the instrument until EOI.
func (c *Controller) RequestRead() error {
	return c.CommandController("read eoi")
}

// FrontPanel returns the instrument to local (front panel) control when
// local is true; otherwise it asserts remote via the `llo` lockout.
func (c *Controller) FrontPanel(local bool) error {
	if local {
		return c.CommandController("loc")
	}
	return c.CommandController("llo")
}

// Version queries the controller firmware version.
func (c *Controller) Version() (string, error) {
	return c.QueryController("ver")
}

// QueryController sends a `++` command and returns the controller's reply.
func (c *Controller) QueryController(cmd string) (string, error) {
	if err := c.CommandController(cmd); err != nil {
		return "", err
	}
	var sb strings.Builder
	b := make([]byte, 1)
	for {
		n, err := c.rw.Read(b)
		if err != nil {
			return sb.String(), err
		}
		if n == 0 {
			continue
		}
		if b[0] == c.eotChar {
			break
		}
		sb.WriteByte(b[0])
	}
	s := strings.TrimSpace(sb.String())
	c.log.WithField("reply", s).Debug("prologix")
	return s, nil
}

// CommandController sends the given command to the Prologix controller
// itself; `++` is prepended so it is not forwarded over GPIB.
func (c *Controller) CommandController(cmd string) error {
	cmd = fmt.Sprintf("++%s%c", strings.ToLower(strings.TrimSpace(cmd)), c.usbTerm)
	c.log.WithField("cmd", strings.TrimSpace(cmd)).Trace("prologix")
	_, err := c.rw.Write([]byte(cmd))
	return err
}

// GpibTerm provides the type for the available GPIB terminators.
type GpibTerm int

// Available GPIB terminators for the Prologix Controller.
const (
	AppendCRLF GpibTerm = iota
	AppendCR
	AppendLF
	AppendNothing
)

var gpibTermDesc = map[GpibTerm]string{
	AppendCRLF:    `Append CR+LF (\r\n) to instrument commands`,
	AppendCR:      `Append CR (\r) to instrument commands`,
	AppendLF:      `Append LF (\n) to instrument commands`,
	AppendNothing: `Do not append anything to instrument commands`,
}

func (term GpibTerm) String() string {
	return gpibTermDesc[term]
}

// ParseGpibTerm parses the configuration names crlf, cr, lf and none. The
// empty string is CR+LF.
func ParseGpibTerm(s string) (GpibTerm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "crlf":
		return AppendCRLF, nil
	case "cr":
		return AppendCR, nil
	case "lf":
		return AppendLF, nil
	case "none":
		return AppendNothing, nil
	}
	return 0, fmt.Errorf("unknown GPIB terminator %q", s)
}

// isPrimaryAddressValid checks that the primary GPIB address is between 0 and
// 30, inclusive.
func isPrimaryAddressValid(addr int) bool {
	return addr >= 0 && addr <= 30
}

// isSecondaryAddressValid checks that the secondary GPIB address is between 96
// and 126, inclusive.
func isSecondaryAddressValid(addr int) bool {
	return addr >= 96 && addr <= 126
}
