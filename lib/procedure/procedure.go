// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package procedure runs parameterized measurement procedures: it validates
// parameters against a schema, drives the startup, execute and shutdown
// phases, forwards result rows to a sink and reports progress to observers.
package procedure

import (
	"time"

	"github.com/google/uuid"
)

// Procedure is one kind of measurement. Startup prepares the instruments,
// Execute takes the data and Shutdown leaves the hardware in a safe state.
// Shutdown is called exactly once for every run that was started, whatever
// happened before.
type Procedure interface {
	Name() string
	Parameters() Schema
	Columns() []string
	Startup(r *Run) error
	Execute(r *Run) error
	Shutdown(r *Run) error
}

// State is the lifecycle state of a run.
type State int

const (
	Idle State = iota
	Running
	Stopping
	Finished
	Failed
)

var stateNames = [...]string{"idle", "running", "stopping", "finished", "failed"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Done reports whether s is a final state.
func (s State) Done() bool { return s == Finished || s == Failed }

// Row is one result record keyed by column name.
type Row map[string]float64

// Header describes a run to a sink before the first row.
type Header struct {
	RunID     uuid.UUID
	Procedure string
	Schema    Schema
	Values    Values
	Columns   []string
	Started   time.Time
}

// Sink receives the rows of one run. Start is called once before the first
// row, Record once per row with values ordered like Header.Columns, and
// Close once at the end of the run.
type Sink interface {
	Start(h Header) error
	Record(vals []float64) error
	Close() error
}

// Discard is a Sink that drops everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) Start(Header) error     { return nil }
func (discard) Record([]float64) error { return nil }
func (discard) Close() error           { return nil }

// EventKind tells what an Event carries.
type EventKind int

const (
	StateEvent EventKind = iota
	ProgressEvent
	RowEvent
)

// Event is one notification from a running procedure.
type Event struct {
	Kind      EventKind `json:"-"`
	Type      string    `json:"type"`
	RunID     uuid.UUID `json:"run"`
	Procedure string    `json:"procedure"`
	State     State     `json:"state,omitempty"`
	Progress  float64   `json:"progress,omitempty"`
	Row       Row       `json:"row,omitempty"`
	Err       string    `json:"error,omitempty"`
	Time      time.Time `json:"time"`
}

// Observer is called synchronously for every event of a run, in order.
// Observers must not block.
type Observer func(Event)
