// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package labctl

import (
	"errors"
	"fmt"
)

// Sentinel errors for the four failure classes of the driver layer. Use
// errors.Is to classify an error returned anywhere in this module and
// errors.As to get at the concrete type carrying the details.
var (
	ErrConnection = errors.New("connection error")
	ErrTimeout    = errors.New("timeout")
	ErrValidation = errors.New("validation error")
	ErrProtocol   = errors.New("protocol error")
)

// ConnectionError reports a bus address that could not be opened or a
// resource the bus does not know about.
type ConnectionError struct {
	Address string
	Err     error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("connection error: %s", e.Address)
	}
	return fmt.Sprintf("connection error: %s: %s", e.Address, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// TimeoutError reports that no reply arrived within the bus deadline.
type TimeoutError struct {
	Command string
	Err     error
}

func (e *TimeoutError) Error() string {
	if e.Command == "" {
		return "timeout waiting for reply"
	}
	return fmt.Sprintf("timeout waiting for reply to %q", e.Command)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// ValidationError reports a value outside the declared bounds or choice set
// of a property or parameter. Nothing is sent to the bus when it occurs.
type ValidationError struct {
	Name   string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("invalid value %v: %s", e.Value, e.Reason)
	}
	return fmt.Sprintf("invalid value %v for %s: %s", e.Value, e.Name, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ProtocolError reports a malformed reply. Raw holds the offending bytes.
type ProtocolError struct {
	Reason string
	Raw    []byte
}

func (e *ProtocolError) Error() string {
	raw := e.Raw
	if len(raw) > 64 {
		raw = raw[:64]
	}
	return fmt.Sprintf("protocol error: %s (reply %q)", e.Reason, raw)
}

func (e *ProtocolError) Is(target error) bool { return target == ErrProtocol }

func protocolErrorf(raw []byte, format string, a ...any) error {
	return &ProtocolError{Reason: fmt.Sprintf(format, a...), Raw: raw}
}

func invalid(name string, v any, format string, a ...any) error {
	return &ValidationError{Name: name, Value: v, Reason: fmt.Sprintf(format, a...)}
}
