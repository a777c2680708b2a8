// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package procedure

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/ongpym/labctl"
)

// Run is the handle a procedure uses while it executes: its parameters,
// the cooperative stop checks, row output and progress reporting.
type Run struct {
	ID     uuid.UUID
	Params Values
	Log    logrus.FieldLogger

	name      string
	columns   []string
	ctx       context.Context
	cancel    context.CancelFunc
	sink      Sink
	observers []Observer

	mu       sync.Mutex
	state    State
	progress float64
	rows     int
}

// Context is cancelled when the run is asked to stop.
func (r *Run) Context() context.Context { return r.ctx }

// ShouldStop reports whether the run was asked to stop. Procedures check it
// between steps and return early without error when it is true.
func (r *Run) ShouldStop() bool { return r.ctx.Err() != nil }

// Sleep waits for d or until the run is asked to stop. It returns false if
// the wait was cut short.
func (r *Run) Sleep(d time.Duration) bool {
	if d <= 0 {
		return !r.ShouldStop()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-r.ctx.Done():
		return false
	}
}

// Stop asks the run to stop at its next check point.
func (r *Run) Stop() { r.cancel() }

func (r *Run) markStopping() {
	r.mu.Lock()
	if r.state == Running {
		r.state = Stopping
	}
	r.mu.Unlock()
}

// State returns the current lifecycle state.
func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Rows returns the number of rows emitted so far.
func (r *Run) Rows() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows
}

// Columns returns the declared result columns.
func (r *Run) Columns() []string { return r.columns }

// Emit checks that row holds exactly the declared columns and hands it to
// the sink and the observers.
func (r *Run) Emit(row Row) error {
	vals := make([]float64, len(r.columns))
	for i, c := range r.columns {
		v, ok := row[c]
		if !ok {
			return &labctl.ValidationError{Name: c, Value: row, Reason: "missing column"}
		}
		vals[i] = v
	}
	if len(row) != len(r.columns) {
		extra := make([]string, 0, len(row))
		for k := range row {
			if !r.hasColumn(k) {
				extra = append(extra, k)
			}
		}
		sort.Strings(extra)
		return &labctl.ValidationError{Name: strings.Join(extra, ","), Value: row, Reason: "undeclared column"}
	}
	if err := r.sink.Record(vals); err != nil {
		return fmt.Errorf("record row: %w", err)
	}
	r.mu.Lock()
	r.rows++
	r.mu.Unlock()
	r.notify(Event{Kind: RowEvent, Row: row})
	return nil
}

func (r *Run) hasColumn(name string) bool {
	for _, c := range r.columns {
		if c == name {
			return true
		}
	}
	return false
}

// Progress reports completion in percent. Values are clamped to [0, 100]
// and never decrease.
func (r *Run) Progress(pct float64) {
	pct = min(max(pct, 0), 100)
	r.mu.Lock()
	if pct <= r.progress {
		r.mu.Unlock()
		return
	}
	r.progress = pct
	r.mu.Unlock()
	r.notify(Event{Kind: ProgressEvent, Progress: pct})
}

// Percent returns the last reported progress.
func (r *Run) Percent() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress
}

func (r *Run) setState(s State, err error) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
	ev := Event{Kind: StateEvent, State: s}
	if err != nil {
		ev.Err = err.Error()
	}
	r.notify(ev)
}

var eventTypes = [...]string{"state", "progress", "row"}

func (r *Run) notify(ev Event) {
	ev.Type = eventTypes[ev.Kind]
	ev.RunID = r.ID
	ev.Procedure = r.name
	ev.Time = time.Now()
	for _, o := range r.observers {
		o(ev)
	}
}

// Runner executes procedures one at a time.
type Runner struct {
	log       logrus.FieldLogger
	observers []Observer

	mu      sync.Mutex
	current *Run
}

// RunnerOption applies an option to a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the logger handed to every run.
func WithLogger(l logrus.FieldLogger) RunnerOption {
	return func(r *Runner) { r.log = l }
}

// WithObserver adds an observer notified of every run.
func WithObserver(o Observer) RunnerOption {
	return func(r *Runner) { r.observers = append(r.observers, o) }
}

// NewRunner returns a runner configured by opts.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{log: labctl.DiscardLogger()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run validates values against the parameters of p and executes it,
// writing rows to sink. Cancelling ctx has the same effect as Stop: the run
// ends at its next check point and finishes without error. Shutdown runs
// exactly once once Startup was attempted, and its error is combined with
// any earlier one.
func (rn *Runner) Run(ctx context.Context, p Procedure, values map[string]any, sink Sink) (*Run, error) {
	params, err := p.Parameters().Resolve(values)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.Name(), err)
	}
	if sink == nil {
		sink = Discard
	}
	run := &Run{
		ID:        uuid.New(),
		Params:    params,
		name:      p.Name(),
		columns:   append([]string(nil), p.Columns()...),
		sink:      sink,
		observers: rn.observers,
	}
	run.ctx, run.cancel = context.WithCancel(ctx)
	defer run.cancel()
	context.AfterFunc(run.ctx, run.markStopping)
	run.Log = rn.log.WithFields(logrus.Fields{"procedure": run.name, "run": run.ID.String()})

	if err := ctx.Err(); err != nil {
		run.Log.Info("run cancelled before start")
		run.setState(Finished, nil)
		return run, nil
	}

	rn.mu.Lock()
	if rn.current != nil {
		rn.mu.Unlock()
		return nil, fmt.Errorf("%s: runner busy with %s", run.name, rn.current.name)
	}
	rn.current = run
	rn.mu.Unlock()
	defer func() {
		rn.mu.Lock()
		rn.current = nil
		rn.mu.Unlock()
	}()

	err = sink.Start(Header{
		RunID:     run.ID,
		Procedure: run.name,
		Schema:    p.Parameters(),
		Values:    params,
		Columns:   run.columns,
		Started:   time.Now(),
	})
	if err != nil {
		err = fmt.Errorf("start sink: %w", err)
		run.setState(Failed, err)
		return run, multierr.Append(err, sink.Close())
	}

	run.Log.WithField("parameters", params).Info("run started")
	run.setState(Running, nil)
	err = multierr.Append(rn.phases(run, p), sink.Close())

	if err != nil {
		run.Log.WithError(err).Error("run failed")
		run.setState(Failed, err)
		return run, err
	}
	run.Log.WithField("rows", run.Rows()).Info("run finished")
	run.setState(Finished, nil)
	return run, nil
}

func (rn *Runner) phases(run *Run, p Procedure) (err error) {
	defer func() {
		if serr := guard(run, "shutdown", p.Shutdown); serr != nil {
			err = multierr.Append(err, fmt.Errorf("shutdown: %w", serr))
		}
	}()
	if err := guard(run, "startup", p.Startup); err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	if run.ShouldStop() {
		return nil
	}
	if err := guard(run, "execute", p.Execute); err != nil {
		if run.ShouldStop() && errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("execute: %w", err)
	}
	return nil
}

// guard calls one phase of a procedure, turning a panic into an error.
func guard(run *Run, phase string, f func(*Run) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			run.Log.WithFields(logrus.Fields{
				"phase": phase,
				"stack": string(debug.Stack()),
			}).Error("procedure panicked")
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return f(run)
}

// Stop asks the current run, if any, to stop.
func (rn *Runner) Stop() {
	rn.mu.Lock()
	run := rn.current
	rn.mu.Unlock()
	if run != nil {
		run.Stop()
	}
}

// Current returns the executing run or nil.
func (rn *Runner) Current() *Run {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	return rn.current
}
