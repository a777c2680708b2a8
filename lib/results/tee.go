// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package results

import (
	"go.uber.org/multierr"

	"github.com/ongpym/labctl/lib/procedure"
)

type tee []procedure.Sink

// Tee returns a sink forwarding to every one of sinks. Start and Record
// stop at the first error; Close closes all of them.
func Tee(sinks ...procedure.Sink) procedure.Sink {
	if len(sinks) == 1 {
		return sinks[0]
	}
	return tee(sinks)
}

func (t tee) Start(h procedure.Header) error {
	for _, s := range t {
		if err := s.Start(h); err != nil {
			return err
		}
	}
	return nil
}

func (t tee) Record(vals []float64) error {
	for _, s := range t {
		if err := s.Record(vals); err != nil {
			return err
		}
	}
	return nil
}

func (t tee) Close() error {
	var err error
	for _, s := range t {
		err = multierr.Append(err, s.Close())
	}
	return err
}
