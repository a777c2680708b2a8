// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package cmdlog traces bus traffic. Commands and replies are logged at
// debug level, colored for a terminal.
package cmdlog

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"

	"github.com/ongpym/labctl"
)

var (
	CmdStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	R1Style  = lipgloss.NewStyle().Foreground(lipgloss.Color("35"))
	R2Style  = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	ErrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// Printable reports whether s holds only printable ASCII and common
// whitespace.
func Printable(s string) bool {
	return !strings.ContainsFunc(s, func(r rune) bool {
		switch {
		case r < 7:
			return true
		case r > 6 && r < 14:
			return false
		case r > 13 && r < 32:
			return true
		case r > 127:
			return true
		}
		return false
	})
}

// FormatReply renders a reply for the trace: quoted when printable, hex
// otherwise, prefixed with its length.
func FormatReply(a string) string {
	a = strings.TrimSuffix(a, "\n")
	switch {
	case len(a) == 0:
		return R1Style.Render("<no response>")
	case Printable(a):
		return R2Style.Render(fmt.Sprintf("[%d] %q", len(a), a))
	case len(a) < 32:
		return R2Style.Render(fmt.Sprintf("[%d] %q (% 2x)", len(a), a, []byte(a)))
	}
	return R2Style.Render(fmt.Sprintf("[%d] % 2x", len(a), []byte(a)))
}

// Wrap returns an adapter around a that logs every operation to log under
// the instrument field name.
func Wrap(name string, a labctl.Adapter, log logrus.FieldLogger) labctl.Adapter {
	return &adapter{Adapter: a, log: log.WithField("instrument", name)}
}

type adapter struct {
	labctl.Adapter
	log logrus.FieldLogger
}

func (a *adapter) fail(op, cmd string, err error) {
	a.log.WithError(err).Debugf("%s %s: %s", op, CmdStyle.Render(cmd), ErrStyle.Render("failed"))
}

func (a *adapter) Write(cmd string) error {
	if err := a.Adapter.Write(cmd); err != nil {
		a.fail("write", cmd, err)
		return err
	}
	a.log.Debugf("%s()", CmdStyle.Render(cmd))
	return nil
}

func (a *adapter) Read() (string, error) {
	s, err := a.Adapter.Read()
	if err != nil {
		a.fail("read", "", err)
		return s, err
	}
	a.log.Debugf("read: %s", FormatReply(s))
	return s, nil
}

func (a *adapter) Ask(cmd string) (string, error) {
	s, err := a.Adapter.Ask(cmd)
	if err != nil {
		a.fail("ask", cmd, err)
		return s, err
	}
	a.log.Debugf("%s: %s", CmdStyle.Render(cmd), FormatReply(s))
	return s, nil
}

func (a *adapter) ReadBinaryBlock(cmd string, f labctl.BlockFormat) ([]float64, error) {
	v, err := a.Adapter.ReadBinaryBlock(cmd, f)
	if err != nil {
		a.fail("block", cmd, err)
		return v, err
	}
	a.log.Debugf("%s: %s", CmdStyle.Render(cmd), R2Style.Render(fmt.Sprintf("<%d points>", len(v))))
	return v, nil
}

func (a *adapter) Close() error {
	err := a.Adapter.Close()
	a.log.WithError(err).Debug("closed")
	return err
}
