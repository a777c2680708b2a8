// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package labctl

// Adapter is an open session to one instrument. Implementations live in
// lib/transport (hardware buses) and lib/mockbus (simulated buses).
//
// Write sends one ASCII command with the bus terminator appended. Read
// returns the next reply with its terminator stripped. Ask is Write followed
// by Read and fails with a *TimeoutError when no reply arrives before the
// session deadline. ReadBinaryBlock writes cmd and decodes the IEEE-488.2
// definite-length block it answers with. Close may be called more than once.
type Adapter interface {
	Write(cmd string) error
	Read() (string, error)
	Ask(cmd string) (string, error)
	ReadBinaryBlock(cmd string, f BlockFormat) ([]float64, error)
	Close() error
}

// Commander is the subset of the adapter contract that property tables are
// evaluated against. Both *Instrument and Channel implement it, so a table
// works unchanged on a whole instrument or on one of its channels.
type Commander interface {
	Write(cmd string) error
	Ask(cmd string) (string, error)
	ReadBinaryBlock(cmd string, f BlockFormat) ([]float64, error)
}
