// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package procedure

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed is returned by Submit after Close.
var ErrQueueClosed = errors.New("queue closed")

// Experiment is a queued procedure run.
type Experiment struct {
	Procedure Procedure

	values map[string]any
	sink   Sink
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	state State
	run   *Run
	err   error
}

// Done is closed when the experiment has finished or failed.
func (e *Experiment) Done() <-chan struct{} { return e.done }

// Wait blocks until the experiment is done and returns its error.
func (e *Experiment) Wait() error {
	<-e.done
	return e.Err()
}

// Err returns the final error, or nil while the experiment is pending.
func (e *Experiment) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// State returns Idle while queued, Running or Stopping while executing and
// the final state of the run afterwards.
func (e *Experiment) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.run != nil {
		return e.run.State()
	}
	return e.state
}

// Run returns the run once the experiment has ended, or nil.
func (e *Experiment) Run() *Run {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.run
}

// Abort stops the experiment. A queued experiment is skipped.
func (e *Experiment) Abort() {
	e.mu.Lock()
	if e.state == Running {
		e.state = Stopping
	}
	e.mu.Unlock()
	e.cancel()
}

// Queue executes experiments one at a time on its own goroutine.
type Queue struct {
	runner *Runner
	jobs   chan *Experiment
	wg     sync.WaitGroup

	closeMu sync.RWMutex
	closed  bool

	mu      sync.Mutex
	current *Experiment
}

// NewQueue starts a queue executing through runner that holds up to size
// pending experiments.
func NewQueue(runner *Runner, size int) *Queue {
	q := &Queue{
		runner: runner,
		jobs:   make(chan *Experiment, size),
	}
	q.wg.Add(1)
	go q.work()
	return q
}

// Submit queues p with values and sink. It blocks while the queue is full.
func (q *Queue) Submit(ctx context.Context, p Procedure, values map[string]any, sink Sink) (*Experiment, error) {
	e := &Experiment{
		Procedure: p,
		values:    values,
		sink:      sink,
		done:      make(chan struct{}),
	}
	e.ctx, e.cancel = context.WithCancel(ctx)

	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		e.cancel()
		return nil, ErrQueueClosed
	}
	q.jobs <- e
	return e, nil
}

// Abort stops the experiment currently executing, if any.
func (q *Queue) Abort() {
	q.mu.Lock()
	e := q.current
	q.mu.Unlock()
	if e != nil {
		e.Abort()
	}
}

// Close stops accepting experiments and waits until the queued ones are done.
func (q *Queue) Close() {
	q.closeMu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.closeMu.Unlock()
	q.wg.Wait()
}

func (q *Queue) work() {
	defer q.wg.Done()
	for e := range q.jobs {
		q.mu.Lock()
		q.current = e
		q.mu.Unlock()
		e.mu.Lock()
		if e.ctx.Err() == nil {
			e.state = Running
		}
		e.mu.Unlock()

		run, err := q.runner.Run(e.ctx, e.Procedure, e.values, e.sink)

		e.mu.Lock()
		e.run, e.err = run, err
		if run == nil {
			e.state = Failed
		}
		e.mu.Unlock()
		e.cancel()
		close(e.done)

		q.mu.Lock()
		q.current = nil
		q.mu.Unlock()
	}
}
