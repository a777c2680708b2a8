// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package monitor

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ongpym/labctl"
	"github.com/ongpym/labctl/lib/mockbus"
	"github.com/ongpym/labctl/lib/procedure"
)

func TestWrap(t *testing.T) {
	m := New()
	bus := mockbus.New().Reply("*IDN?", "ACME").FailOn("BAD", errors.New("boom"))
	a := m.Wrap("psu", bus)

	_, err := a.Ask("*IDN?")
	require.NoError(t, err)
	_, err = a.Ask("NOTHING?")
	assert.ErrorIs(t, err, labctl.ErrTimeout)
	assert.Error(t, a.Write("BAD"))
	require.NoError(t, a.Write("*RST"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.busOps.WithLabelValues("psu", "ask")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.busOps.WithLabelValues("psu", "write")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.busErrors.WithLabelValues("psu", "ask", "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.busErrors.WithLabelValues("psu", "write", "other")))
	assert.Equal(t, []string{"*RST"}, bus.Writes())
}

func TestObserve(t *testing.T) {
	m := New()
	for _, ev := range []procedure.Event{
		{Kind: procedure.StateEvent, Procedure: "resistance", State: procedure.Running},
		{Kind: procedure.RowEvent, Procedure: "resistance"},
		{Kind: procedure.RowEvent, Procedure: "resistance"},
		{Kind: procedure.ProgressEvent, Procedure: "resistance", Progress: 50},
		{Kind: procedure.StateEvent, Procedure: "resistance", State: procedure.Finished},
	} {
		m.Observe(ev)
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(m.rows.WithLabelValues("resistance")))
	assert.Equal(t, 50.0, testutil.ToFloat64(m.progress.WithLabelValues("resistance")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("resistance", "finished")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.runs.WithLabelValues("resistance", "failed")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.Observe(procedure.Event{Kind: procedure.RowEvent, Procedure: "powermeter"})
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `labctl_rows_total{procedure="powermeter"} 1`)
}

func TestClass(t *testing.T) {
	assert.Equal(t, "validation", Class(&labctl.ValidationError{}))
	assert.Equal(t, "protocol", Class(&labctl.ProtocolError{}))
	assert.Equal(t, "connection", Class(&labctl.ConnectionError{}))
	assert.Equal(t, "other", Class(errors.New("x")))
}
