// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"list", "params", "run", "idn", "ports", "raw"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
	for _, flag := range []string{"config", "log-level", "verbose", "simulate", "trace", "prologix-port", "timeout"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestList(t *testing.T) {
	out, err := execute(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "resonator-transmission")
	assert.Contains(t, out, "DC resistance measurement")

	out, err = execute(t, "list", "--instruments")
	require.NoError(t, err)
	assert.Contains(t, out, "SIM::MDO3052")
}

func TestParams(t *testing.T) {
	out, err := execute(t, "params", "resistance")
	require.NoError(t, err)
	assert.Contains(t, out, "V_step")
	assert.Contains(t, out, "[0.001, 25]")

	out, err = execute(t, "params", "swept-transmission", "--json")
	require.NoError(t, err)
	var params []struct {
		Name    string `json:"name"`
		Kind    string `json:"kind"`
		Choices []any  `json:"choices"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &params))
	byName := map[string]string{}
	for _, p := range params {
		byName[p.Name] = p.Kind
	}
	assert.Equal(t, "float", byName["wl_start"])
	assert.Contains(t, byName, "sweep_speed")

	_, err = execute(t, "params", "nope")
	assert.ErrorContains(t, err, "unknown procedure")
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "run", "powermeter", "--plot", "-d", dir, "-p", "number=10", "-p", "tau_avg=1e-3")
	require.NoError(t, err)
	path := strings.TrimSpace(out)
	assert.Equal(t, filepath.Join(dir, "powermeter.csv"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "#Procedure: <powermeter>")
	assert.Contains(t, text, "Time [s],Power")
	var rows int
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		if !strings.HasPrefix(line, "#") {
			rows++
		}
	}
	assert.Equal(t, 11, rows)

	_, err = os.Stat(filepath.Join(dir, "powermeter_PLOT.png"))
	assert.NoError(t, err)

	out, err = execute(t, "run", "powermeter", "-d", dir, "-p", "number=10")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "powermeter_1.csv"), strings.TrimSpace(out))
}

func TestRunRejectsParameters(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "run", "resistance", "-d", dir, "-p", "V_step")
	assert.ErrorContains(t, err, "name=value")

	_, err = execute(t, "run", "resistance", "-d", dir, "-p", "V_step=100")
	assert.Error(t, err)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestIDN(t *testing.T) {
	out, err := execute(t, "idn", "e36106a", "ctl")
	require.NoError(t, err)
	assert.Contains(t, out, "E36106A")
	assert.Contains(t, out, "DLC CTL")

	_, err = execute(t, "idn", "dmm")
	assert.ErrorContains(t, err, "not configured")
}

func TestRaw(t *testing.T) {
	out, err := execute(t, "raw", "e36106a", ":VOLT 3 V", ":VOLT?")
	require.NoError(t, err)
	assert.Equal(t, "3\n", out)
}

func TestParseParams(t *testing.T) {
	got, err := parseParams([]string{"a=1", " b = x y "})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": "1", "b": "x y"}, got)

	_, err = parseParams([]string{"=1"})
	assert.Error(t, err)
}
