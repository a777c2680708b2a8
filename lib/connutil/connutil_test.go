// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package connutil

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ongpym/labctl/lib/config"
	"github.com/ongpym/labctl/lib/monitor"
)

func TestAddFlags(t *testing.T) {
	var c Conn
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	c.AddFlags(fs)
	require.NoError(t, fs.Parse([]string{"--prologix-port", "/dev/ttyUSB3", "--timeout", "2s", "--simulate", "--ar488"}))
	assert.Equal(t, "/dev/ttyUSB3", c.PrologixPort)
	assert.Equal(t, 2*time.Second, c.Timeout)
	assert.True(t, c.Simulate)
	assert.True(t, c.AR488)
	assert.False(t, c.Trace)
}

func TestOpenConfigured(t *testing.T) {
	c := &Conn{Config: config.Default()}
	a, err := c.Open(context.Background(), "E36106A")
	require.NoError(t, err)
	idn, err := a.Ask("*IDN?")
	require.NoError(t, err)
	assert.Contains(t, idn, "E36106A")

	require.NoError(t, a.Close())
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestOpenUnknown(t *testing.T) {
	c := &Conn{Config: config.Default()}
	_, err := c.Open(context.Background(), "dmm")
	assert.ErrorContains(t, err, "not configured")
}

func TestSimulateOverridesAddress(t *testing.T) {
	cfg := config.Default()
	cfg.Instruments["n7744c"] = config.Instrument{Address: "TCPIP::192.0.2.1::INSTR"}
	c := &Conn{Config: cfg, Simulate: true}

	addr, err := c.Address("n7744c")
	require.NoError(t, err)
	assert.Equal(t, "SIM::N7744C", addr)

	a, err := c.Open(context.Background(), "n7744c")
	require.NoError(t, err)
	idn, err := a.Ask("*IDN?")
	require.NoError(t, err)
	assert.Contains(t, idn, "N7744C")
	assert.NoError(t, c.Close())
}

func TestTraceAndMetrics(t *testing.T) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	m := monitor.New()
	c := &Conn{Config: config.Default(), Log: log, Metrics: m, Trace: true}
	defer c.Close()

	a, err := c.Open(context.Background(), "afg2125")
	require.NoError(t, err)
	_, err = a.Ask("*IDN?")
	require.NoError(t, err)

	var traced bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.DebugLevel && e.Data["instrument"] == "afg2125" {
			traced = true
		}
	}
	assert.True(t, traced, "no trace entry")

	families, err := m.Registry.Gather()
	require.NoError(t, err)
	var asks float64
	for _, f := range families {
		if f.GetName() != "labctl_bus_operations_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			labels := map[string]string{}
			for _, l := range metric.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["instrument"] == "afg2125" && labels["op"] == "ask" {
				asks += metric.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, 1.0, asks)
}
