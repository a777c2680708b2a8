// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package results

import (
	"math"
	"sync"
	"time"

	influx "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/ongpym/labctl/lib/procedure"
)

// Influx writes every row as a point of the measurement named after the
// procedure, tagged with the run id. Writes are asynchronous; the first
// write error is returned by Close.
type Influx struct {
	client influx.Client
	api    api.WriteAPI
	header procedure.Header
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// NewInflux returns a sink writing to bucket of org on the server at url.
func NewInflux(url, token, org, bucket string) *Influx {
	client := influx.NewClient(url, token)
	s := &Influx{
		client: client,
		api:    client.WriteAPI(org, bucket),
		done:   make(chan struct{}),
	}
	go s.collect(s.api.Errors())
	return s
}

func (s *Influx) collect(errs <-chan error) {
	for {
		select {
		case err := <-errs:
			s.mu.Lock()
			if s.err == nil {
				s.err = err
			}
			s.mu.Unlock()
		case <-s.done:
			return
		}
	}
}

func (s *Influx) Start(h procedure.Header) error {
	s.header = h
	return nil
}

func (s *Influx) Record(vals []float64) error {
	s.api.WritePoint(Point(s.header, vals, time.Now()))
	return nil
}

func (s *Influx) Close() error {
	s.api.Flush()
	s.client.Close()
	close(s.done)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Point converts one row of the run described by h. Columns holding NaN or
// an infinity are left out since InfluxDB rejects them.
func Point(h procedure.Header, vals []float64, t time.Time) *write.Point {
	fields := make(map[string]interface{}, len(vals))
	for i, v := range vals {
		if i >= len(h.Columns) || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		fields[h.Columns[i]] = v
	}
	return influx.NewPoint(
		h.Procedure,
		map[string]string{"run": h.RunID.String()},
		fields,
		t,
	)
}
