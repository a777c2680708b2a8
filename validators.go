// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package labctl

import (
	"fmt"
	"math"
	"strings"
)

// Validator checks a candidate property value before anything is written to
// the bus. It never adjusts the value; out of bounds values are rejected with
// a *ValidationError.
type Validator func(v any) error

// Range accepts numeric values in the closed interval [lo, hi].
func Range(lo, hi float64) Validator {
	return func(v any) error {
		f, ok := toFloat(v)
		if !ok {
			return invalid("", v, "not a number")
		}
		if math.IsNaN(f) || f < lo || f > hi {
			return invalid("", v, "outside range [%g, %g]", lo, hi)
		}
		return nil
	}
}

// OneOf accepts values equal to one of choices. Numbers compare by value and
// strings compare case-insensitively.
func OneOf(choices ...any) Validator {
	return func(v any) error {
		for _, c := range choices {
			if sameValue(v, c) {
				return nil
			}
		}
		return invalid("", v, "not one of %s", describeChoices(choices))
	}
}

// Bools accepts only Go bool values.
func Bools() Validator {
	return func(v any) error {
		if _, ok := v.(bool); !ok {
			return invalid("", v, "not a bool")
		}
		return nil
	}
}

func describeChoices(choices []any) string {
	s := make([]string, len(choices))
	for i, c := range choices {
		s[i] = fmt.Sprint(c)
	}
	return "[" + strings.Join(s, " ") + "]"
}
