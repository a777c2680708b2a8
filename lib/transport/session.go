// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ongpym/labctl"
)

// DefaultTimeout is the bus deadline for a reply.
const DefaultTimeout = 5 * time.Second

// deadliner is implemented by links that can bound a blocking read.
type deadliner interface {
	SetReadDeadline(t time.Time) error
}

// readRequester is implemented by links that must be told to fetch a reply
// from the instrument before it can be read, such as a Prologix controller
// with read-after-write disabled.
type readRequester interface {
	RequestRead() error
}

// Session is a labctl.Adapter over a byte stream carrying terminated ASCII
// lines and IEEE-488.2 blocks.
type Session struct {
	mu        sync.Mutex
	link      io.ReadWriteCloser
	r         *bufio.Reader
	address   string
	writeTerm string
	readTerm  byte
	timeout   time.Duration
	echo      bool
	drain     time.Duration
	log       logrus.FieldLogger
	closed    bool
	last      string
}

// SessionOption applies an option to a Session.
type SessionOption func(*Session)

// WithSessionTimeout sets the reply deadline.
func WithSessionTimeout(d time.Duration) SessionOption {
	return func(s *Session) { s.timeout = d }
}

// WithSessionTerminators sets the write and read terminators.
func WithSessionTerminators(write string, read byte) SessionOption {
	return func(s *Session) {
		s.writeTerm = write
		s.readTerm = read
	}
}

// WithSessionEcho discards the echoed command line that precedes each reply.
func WithSessionEcho() SessionOption {
	return func(s *Session) { s.echo = true }
}

// WithSessionDrain reads and discards whatever the instrument sends after a
// plain write until it has been quiet for d.
func WithSessionDrain(d time.Duration) SessionOption {
	return func(s *Session) { s.drain = d }
}

// WithSessionLogger sets the session logger.
func WithSessionLogger(l logrus.FieldLogger) SessionOption {
	return func(s *Session) { s.log = l }
}

// NewSession wraps link, which is closed by Close.
func NewSession(address string, link io.ReadWriteCloser, opts ...SessionOption) *Session {
	s := &Session{
		link:      link,
		r:         bufio.NewReader(link),
		address:   address,
		writeTerm: "\n",
		readTerm:  '\n',
		timeout:   DefaultTimeout,
		log:       labctl.DiscardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithField("address", address)
	return s
}

// Address returns the resource the session was opened on.
func (s *Session) Address() string { return s.address }

// Write implements labctl.Adapter. Leading and trailing whitespace is removed
// before the write terminator is appended.
func (s *Session) Write(cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(cmd); err != nil {
		return err
	}
	if s.drain > 0 {
		return s.discard()
	}
	return nil
}

// Read implements labctl.Adapter.
func (s *Session) Read() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requestRead(); err != nil {
		return "", err
	}
	return s.readLine()
}

// Ask implements labctl.Adapter.
func (s *Session) Ask(cmd string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(cmd); err != nil {
		return "", err
	}
	if err := s.requestRead(); err != nil {
		return "", err
	}
	if s.echo {
		if _, err := s.readLine(); err != nil {
			return "", err
		}
	}
	reply, err := s.readLine()
	if err != nil {
		return "", err
	}
	s.log.WithField("reply", reply).Trace("ask")
	return reply, nil
}

// ReadBinaryBlock implements labctl.Adapter. The reply terminator following
// the block is consumed; any other trailing bytes are a protocol error.
func (s *Session) ReadBinaryBlock(cmd string, f labctl.BlockFormat) ([]float64, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(cmd); err != nil {
		return nil, err
	}
	if err := s.requestRead(); err != nil {
		return nil, err
	}
	if err := s.setDeadline(s.timeout); err != nil {
		return nil, err
	}
	payload, err := labctl.ReadBlock(s.r)
	if err != nil {
		return nil, s.readError(err)
	}
	tail, err := s.r.ReadString(s.readTerm)
	if err != nil && !isTimeout(err) {
		return nil, s.readError(err)
	}
	if t := strings.TrimSpace(tail); t != "" {
		return nil, &labctl.ProtocolError{
			Reason: fmt.Sprintf("%d unexpected bytes after block", len(t)),
			Raw:    []byte(tail),
		}
	}
	s.log.WithField("bytes", len(payload)).Trace("block")
	return labctl.DecodeBlock(payload, f)
}

// Close implements labctl.Adapter. Only the first call closes the link.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.log.Debug("close")
	return s.link.Close()
}

func (s *Session) write(cmd string) error {
	if s.closed {
		return &labctl.ConnectionError{Address: s.address, Err: errors.New("session closed")}
	}
	cmd = strings.TrimSpace(cmd)
	s.last = cmd
	s.log.WithField("cmd", cmd).Trace("write")
	if _, err := io.WriteString(s.link, cmd+s.writeTerm); err != nil {
		return fmt.Errorf("write %q: %w", cmd, err)
	}
	return nil
}

func (s *Session) requestRead() error {
	if rr, ok := s.link.(readRequester); ok {
		return rr.RequestRead()
	}
	return nil
}

func (s *Session) readLine() (string, error) {
	if err := s.setDeadline(s.timeout); err != nil {
		return "", err
	}
	line, err := s.r.ReadString(s.readTerm)
	if err != nil {
		return "", s.readError(err)
	}
	line = strings.TrimSuffix(line, string(s.readTerm))
	return strings.TrimSuffix(line, "\r"), nil
}

// discard drops input until a read times out.
func (s *Session) discard() error {
	if err := s.setDeadline(s.drain); err != nil {
		return err
	}
	for {
		_, err := s.r.ReadString(s.readTerm)
		if err == nil {
			continue
		}
		if isTimeout(err) {
			return nil
		}
		return s.readError(err)
	}
}

func (s *Session) setDeadline(d time.Duration) error {
	dl, ok := s.link.(deadliner)
	if !ok {
		return nil
	}
	if err := dl.SetReadDeadline(time.Now().Add(d)); err != nil {
		return fmt.Errorf("set read deadline: %w", err)
	}
	return nil
}

func (s *Session) readError(err error) error {
	if isTimeout(err) {
		return &labctl.TimeoutError{Command: s.last, Err: err}
	}
	if errors.Is(err, io.EOF) {
		return &labctl.ConnectionError{Address: s.address, Err: err}
	}
	return fmt.Errorf("read reply to %q: %w", s.last, err)
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// errReadTimeout is returned by links whose driver signals an expired read
// timeout with an empty read.
var errReadTimeout = timeoutErr{}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "read timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }
