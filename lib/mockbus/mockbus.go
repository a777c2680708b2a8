// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package mockbus provides in-process adapters that stand in for hardware:
// a scripted Bus that records every command, and an echo simulator that
// remembers set values and answers queries with them.
package mockbus

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/ongpym/labctl"
)

// Bus is a scripted labctl.Adapter. Queries are answered from exact-match
// replies first, then from reply functions, then from values remembered by
// echo mode. An unanswered query is a *labctl.TimeoutError.
type Bus struct {
	mu      sync.Mutex
	replies map[string]string
	funcs   []func(cmd string) (string, bool)
	blocks  map[string][]byte
	bfuncs  []func(cmd string) ([]byte, bool)
	fail    map[string]error
	echo    bool
	syntax  Syntax
	values  map[string]string
	writes  []string
	asks    []string
	pending []string
	closes  int
}

// New returns an empty scripted bus.
func New() *Bus {
	return &Bus{
		replies: make(map[string]string),
		blocks:  make(map[string][]byte),
		fail:    make(map[string]error),
		values:  make(map[string]string),
		syntax:  SCPI{},
	}
}

// Syntax tells echo mode which part of a command names the setting and
// which part carries the value.
type Syntax interface {
	// Setter returns the head and value stored by a write.
	Setter(cmd string) (head, value string, ok bool)
	// Getter returns the head read by a query.
	Getter(cmd string) (head string, ok bool)
}

// SCPI is the `HEAD value` / `HEAD?` syntax. Unit suffixes such as
// "5 V" or "1550nm" are stripped from stored values.
type SCPI struct{}

func (SCPI) Setter(cmd string) (string, string, bool) {
	head, arg, ok := strings.Cut(cmd, " ")
	if !ok || strings.HasSuffix(head, "?") {
		return "", "", false
	}
	return head, stripUnit(strings.TrimSpace(arg)), true
}

func (SCPI) Getter(cmd string) (string, bool) {
	if !strings.HasSuffix(cmd, "?") || strings.Contains(cmd, " ") {
		return "", false
	}
	return strings.TrimSuffix(cmd, "?"), true
}

// WithSyntax replaces the SCPI syntax of echo mode.
func (b *Bus) WithSyntax(s Syntax) *Bus {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.syntax = s
	return b
}

// NewEcho returns a bus in echo mode: `HEAD value` writes are remembered and
// `HEAD?` queries return the remembered value with any unit suffix removed.
func NewEcho() *Bus {
	b := New()
	b.echo = true
	return b
}

// Reply scripts the reply to an exact command.
func (b *Bus) Reply(cmd, reply string) *Bus {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replies[strings.TrimSpace(cmd)] = reply
	return b
}

// ReplyFunc adds a function consulted for commands without an exact reply.
// It runs with the bus locked and must not call methods of the bus.
func (b *Bus) ReplyFunc(f func(cmd string) (string, bool)) *Bus {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.funcs = append(b.funcs, f)
	return b
}

// Block scripts the raw block reply to a binary query.
func (b *Bus) Block(cmd string, raw []byte) *Bus {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blocks[strings.TrimSpace(cmd)] = raw
	return b
}

// BlockFunc adds a function producing raw blocks for commands without a
// scripted block. Like reply functions it runs with the bus locked and must
// not call methods of the bus.
func (b *Bus) BlockFunc(f func(cmd string) ([]byte, bool)) *Bus {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bfuncs = append(b.bfuncs, f)
	return b
}

// FailOn makes every Write or Ask of cmd return err.
func (b *Bus) FailOn(cmd string, err error) *Bus {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail[strings.TrimSpace(cmd)] = err
	return b
}

// Store presets an echo value as if `head value` had been written.
func (b *Bus) Store(head, value string) *Bus {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[normalize(head)] = value
	return b
}

// Write implements labctl.Adapter.
func (b *Bus) Write(cmd string) error {
	cmd = strings.TrimSpace(cmd)
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail[cmd]; err != nil {
		return err
	}
	b.writes = append(b.writes, cmd)
	if reply, ok := b.lookup(cmd); ok {
		b.pending = append(b.pending, reply)
		return nil
	}
	if b.echo {
		if head, v, ok := b.syntax.Setter(cmd); ok {
			b.values[normalize(head)] = v
		}
	}
	return nil
}

// Read returns the reply queued by the last written query.
func (b *Bus) Read() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) == 0 {
		return "", &labctl.TimeoutError{}
	}
	s := b.pending[0]
	b.pending = b.pending[1:]
	return s, nil
}

// Ask implements labctl.Adapter.
func (b *Bus) Ask(cmd string) (string, error) {
	cmd = strings.TrimSpace(cmd)
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail[cmd]; err != nil {
		return "", err
	}
	b.asks = append(b.asks, cmd)
	if reply, ok := b.lookup(cmd); ok {
		return reply, nil
	}
	return "", &labctl.TimeoutError{Command: cmd}
}

// ReadBinaryBlock implements labctl.Adapter.
func (b *Bus) ReadBinaryBlock(cmd string, f labctl.BlockFormat) ([]float64, error) {
	cmd = strings.TrimSpace(cmd)
	b.mu.Lock()
	raw, ok := b.blocks[cmd]
	for _, f := range b.bfuncs {
		if ok {
			break
		}
		raw, ok = f(cmd)
	}
	err := b.fail[cmd]
	b.asks = append(b.asks, cmd)
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &labctl.TimeoutError{Command: cmd}
	}
	payload, err := labctl.ParseBlock(raw)
	if err != nil {
		return nil, err
	}
	return labctl.DecodeBlock(payload, f)
}

// Close implements labctl.Adapter. It may be called any number of times.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closes++
	return nil
}

func (b *Bus) lookup(cmd string) (string, bool) {
	if r, ok := b.replies[cmd]; ok {
		return r, true
	}
	for _, f := range b.funcs {
		if r, ok := f(cmd); ok {
			return r, true
		}
	}
	if b.echo {
		if head, ok := b.syntax.Getter(cmd); ok {
			if v, ok := b.values[normalize(head)]; ok {
				return v, true
			}
		}
	}
	return "", false
}

// Writes returns a copy of every command written, in order.
func (b *Bus) Writes() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.writes...)
}

// WriteCount returns the number of commands written.
func (b *Bus) WriteCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.writes)
}

// Asks returns a copy of every query sent, in order.
func (b *Bus) Asks() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.asks...)
}

// CloseCount returns how many times Close was called.
func (b *Bus) CloseCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closes
}

// Value returns the remembered echo value for head.
func (b *Bus) Value(head string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.values[normalize(head)]
	return v, ok
}

func (b *Bus) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fmt.Sprintf("mockbus(%d writes, %d asks)", len(b.writes), len(b.asks))
}

func normalize(head string) string {
	return strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(head), ":"))
}

var unitRe = regexp.MustCompile(`^([-+]?(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?)\s*[A-Za-z/]+$`)

// stripUnit turns "5 V" or "1550NM" into the bare number.
func stripUnit(arg string) string {
	if m := unitRe.FindStringSubmatch(arg); m != nil {
		return m[1]
	}
	return arg
}
