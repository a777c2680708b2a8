// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package results_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ongpym/labctl/lib/procedure"
	"github.com/ongpym/labctl/lib/results"
)

var testHeader = procedure.Header{
	RunID:     uuid.MustParse("6f1c2a9e-3b7d-4e21-9a55-0c8d7e4f1b23"),
	Procedure: "resistance",
	Schema: procedure.Schema{
		procedure.Float("V_min", "V", 0, 0, 100),
		procedure.Float("V_max", "V", 1, 0, 100),
		procedure.Int("N_avg", 1, 1, 100),
		procedure.Choice("channel", "CH1", "CH1", "CH2"),
	},
	Values: procedure.Values{
		"V_min":   1.0,
		"V_max":   3.0,
		"N_avg":   2,
		"channel": "CH1",
	},
	Columns: []string{"V set [V]", "V [V]", "R [Ohm]"},
	Started: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
}

func TestCSVLayout(t *testing.T) {
	var buf bytes.Buffer
	c := results.NewCSV(&buf)
	require.NoError(t, c.Start(testHeader))
	require.NoError(t, c.Record([]float64{1, 1.0000001, 100}))
	require.NoError(t, c.Record([]float64{2, 2.5e-5, math.NaN()}))
	assert.Error(t, c.Record([]float64{1}))
	require.NoError(t, c.Close())

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "csv_header", buf.Bytes())
}

func TestUniqueFilename(t *testing.T) {
	dir := t.TempDir()
	for i, want := range []string{"run.csv", "run_1.csv", "run_2.csv"} {
		c, path, err := results.CreateCSV(dir, "run")
		require.NoError(t, err, i)
		assert.Equal(t, filepath.Join(dir, want), path)
		require.NoError(t, c.Start(testHeader))
		require.NoError(t, c.Close())
	}
	data, err := os.ReadFile(filepath.Join(dir, "run_1.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "#Data:\nV set [V],V [V],R [Ohm]\n")
}

type recorder struct {
	rows   int
	closed bool
	fail   error
}

func (r *recorder) Start(procedure.Header) error { return r.fail }
func (r *recorder) Record([]float64) error       { r.rows++; return nil }
func (r *recorder) Close() error                 { r.closed = true; return r.fail }

func TestTee(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	s := results.Tee(a, b)
	require.NoError(t, s.Start(testHeader))
	require.NoError(t, s.Record([]float64{1, 2, 3}))
	require.NoError(t, s.Close())
	assert.Equal(t, 1, a.rows)
	assert.Equal(t, 1, b.rows)
	assert.True(t, a.closed && b.closed)

	boom := errors.New("boom")
	c, d := &recorder{fail: boom}, &recorder{}
	s = results.Tee(c, d)
	assert.ErrorIs(t, s.Start(testHeader), boom)
	assert.ErrorIs(t, s.Close(), boom)
	assert.True(t, d.closed)

	assert.Same(t, a, results.Tee(a))
}

func TestInfluxPoint(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	p := results.Point(testHeader, []float64{1, 0.5, math.Inf(1)}, ts)
	assert.Equal(t, "resistance", p.Name())
	require.Len(t, p.TagList(), 1)
	assert.Equal(t, "run", p.TagList()[0].Key)
	assert.Equal(t, testHeader.RunID.String(), p.TagList()[0].Value)
	fields := map[string]any{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Equal(t, map[string]any{"V set [V]": 1.0, "V [V]": 0.5}, fields)
	assert.Equal(t, ts, p.Time())
}

func TestEncodeEvent(t *testing.T) {
	ev := procedure.Event{
		Kind:      procedure.RowEvent,
		Type:      "row",
		RunID:     testHeader.RunID,
		Procedure: "resistance",
		Row:       procedure.Row{"V [V]": 1.5, "R [Ohm]": math.NaN()},
		Time:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	msg, err := results.EncodeEvent(ev)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, "row", got["type"])
	assert.Equal(t, testHeader.RunID.String(), got["run"])
	assert.Equal(t, map[string]any{"V [V]": 1.5, "R [Ohm]": nil}, got["row"])
	assert.NotContains(t, got, "state")

	ev = procedure.Event{Kind: procedure.StateEvent, Type: "state", State: procedure.Failed, Err: "boom"}
	msg, err = results.EncodeEvent(ev)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, "failed", got["state"])
	assert.Equal(t, "boom", got["error"])
}

func TestStore(t *testing.T) {
	st, err := results.OpenStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer st.Close()

	s := st.Sink()
	require.NoError(t, s.Start(testHeader))
	require.NoError(t, s.Record([]float64{1, 1, 100}))
	require.NoError(t, s.Record([]float64{2, 2, math.NaN()}))
	require.NoError(t, s.Close())

	ids, err := st.Runs("resistance")
	require.NoError(t, err)
	assert.Equal(t, []string{testHeader.RunID.String()}, ids)

	rows, err := st.Rows(ids[0])
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 100.0, rows[0]["R [Ohm]"])
	assert.Equal(t, 2.0, rows[1]["V set [V]"])
	assert.True(t, math.IsNaN(rows[1]["R [Ohm]"]))
}
