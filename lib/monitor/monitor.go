// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package monitor exports Prometheus metrics for bus traffic and procedure
// runs.
package monitor

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/ongpym/labctl"
	"github.com/ongpym/labctl/lib/procedure"
)

// Metrics holds the collectors on a registry of its own.
type Metrics struct {
	Registry *prometheus.Registry

	busOps     *prometheus.CounterVec
	busErrors  *prometheus.CounterVec
	busLatency *prometheus.HistogramVec
	runs       *prometheus.CounterVec
	rows       *prometheus.CounterVec
	progress   *prometheus.GaugeVec
}

// New creates the collectors and registers them together with the Go
// runtime collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		busOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "labctl_bus_operations_total",
			Help: "Bus operations by instrument and operation.",
		}, []string{"instrument", "op"}),
		busErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "labctl_bus_errors_total",
			Help: "Failed bus operations by instrument, operation and error class.",
		}, []string{"instrument", "op", "class"}),
		busLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "labctl_bus_operation_duration_seconds",
			Help:    "Duration of bus operations.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 9),
		}, []string{"instrument", "op"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "labctl_runs_total",
			Help: "Procedure runs by final state.",
		}, []string{"procedure", "state"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "labctl_rows_total",
			Help: "Result rows emitted.",
		}, []string{"procedure"}),
		progress: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "labctl_run_progress_percent",
			Help: "Progress of the current run.",
		}, []string{"procedure"}),
	}
	m.Registry.MustRegister(
		m.busOps, m.busErrors, m.busLatency,
		m.runs, m.rows, m.progress,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Observe is a procedure.Observer.
func (m *Metrics) Observe(ev procedure.Event) {
	switch ev.Kind {
	case procedure.StateEvent:
		if ev.State.Done() {
			m.runs.WithLabelValues(ev.Procedure, ev.State.String()).Inc()
		}
		if ev.State == procedure.Running {
			m.progress.WithLabelValues(ev.Procedure).Set(0)
		}
	case procedure.ProgressEvent:
		m.progress.WithLabelValues(ev.Procedure).Set(ev.Progress)
	case procedure.RowEvent:
		m.rows.WithLabelValues(ev.Procedure).Inc()
	}
}

// Wrap returns an adapter around a that counts and times every operation
// under the instrument label name.
func (m *Metrics) Wrap(name string, a labctl.Adapter) labctl.Adapter {
	return &adapter{Adapter: a, name: name, m: m}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, log logrus.FieldLogger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.WithField("addr", ln.Addr().String()).Info("serving metrics")
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Class names the failure class of err for the error counter.
func Class(err error) string {
	switch {
	case errors.Is(err, labctl.ErrTimeout):
		return "timeout"
	case errors.Is(err, labctl.ErrConnection):
		return "connection"
	case errors.Is(err, labctl.ErrProtocol):
		return "protocol"
	case errors.Is(err, labctl.ErrValidation):
		return "validation"
	}
	return "other"
}

type adapter struct {
	labctl.Adapter
	name string
	m    *Metrics
}

func (a *adapter) observe(op string, start time.Time, err error) {
	a.m.busOps.WithLabelValues(a.name, op).Inc()
	a.m.busLatency.WithLabelValues(a.name, op).Observe(time.Since(start).Seconds())
	if err != nil {
		a.m.busErrors.WithLabelValues(a.name, op, Class(err)).Inc()
	}
}

func (a *adapter) Write(cmd string) error {
	start := time.Now()
	err := a.Adapter.Write(cmd)
	a.observe("write", start, err)
	return err
}

func (a *adapter) Read() (string, error) {
	start := time.Now()
	s, err := a.Adapter.Read()
	a.observe("read", start, err)
	return s, err
}

func (a *adapter) Ask(cmd string) (string, error) {
	start := time.Now()
	s, err := a.Adapter.Ask(cmd)
	a.observe("ask", start, err)
	return s, err
}

func (a *adapter) ReadBinaryBlock(cmd string, f labctl.BlockFormat) ([]float64, error) {
	start := time.Now()
	v, err := a.Adapter.ReadBinaryBlock(cmd, f)
	a.observe("block", start, err)
	return v, err
}
