// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package procedure

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/ongpym/labctl"
)

// Kind is the value type of a parameter.
type Kind int

const (
	FloatKind Kind = iota
	IntKind
	BoolKind
	StringKind
	ChoiceKind
)

var kindNames = [...]string{"float", "int", "bool", "string", "choice"}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Parameter declares one input of a procedure. Min and Max bound numeric
// kinds when Bounded is set; Choices lists the accepted values of a
// ChoiceKind parameter.
type Parameter struct {
	Name    string  `json:"name"`
	Doc     string  `json:"doc,omitempty"`
	Kind    Kind    `json:"kind"`
	Units   string  `json:"units,omitempty"`
	Default any     `json:"default"`
	Bounded bool    `json:"-"`
	Min     float64 `json:"min,omitempty"`
	Max     float64 `json:"max,omitempty"`
	Choices []any   `json:"choices,omitempty"`
}

// Float declares a bounded float parameter.
func Float(name, units string, def, lo, hi float64) Parameter {
	return Parameter{Name: name, Kind: FloatKind, Units: units, Default: def, Bounded: true, Min: lo, Max: hi}
}

// Int declares a bounded integer parameter.
func Int(name string, def, lo, hi int) Parameter {
	return Parameter{Name: name, Kind: IntKind, Default: def, Bounded: true, Min: float64(lo), Max: float64(hi)}
}

// Bool declares a boolean parameter.
func Bool(name string, def bool) Parameter {
	return Parameter{Name: name, Kind: BoolKind, Default: def}
}

// String declares a free-form string parameter.
func String(name, def string) Parameter {
	return Parameter{Name: name, Kind: StringKind, Default: def}
}

// Choice declares a parameter restricted to choices.
func Choice(name string, def any, choices ...any) Parameter {
	return Parameter{Name: name, Kind: ChoiceKind, Default: def, Choices: choices}
}

// WithDoc returns a copy of p carrying a description.
func (p Parameter) WithDoc(doc string) Parameter {
	p.Doc = doc
	return p
}

// Resolve converts v to the parameter kind and checks it. Strings are
// accepted for every kind so command line values can be passed unchanged.
func (p Parameter) Resolve(v any) (any, error) {
	fail := func(err error) error {
		if ve, ok := err.(*labctl.ValidationError); ok {
			ve.Name = p.Name
			return ve
		}
		return &labctl.ValidationError{Name: p.Name, Value: v, Reason: err.Error()}
	}
	switch p.Kind {
	case FloatKind, IntKind:
		f, err := labctl.AsFloat(v)
		if err != nil || math.IsNaN(f) {
			return nil, fail(fmt.Errorf("not a number"))
		}
		if p.Bounded {
			if err := labctl.Range(p.Min, p.Max)(f); err != nil {
				return nil, fail(err)
			}
		}
		if p.Kind == FloatKind {
			return f, nil
		}
		n, err := labctl.ToInt(f)
		if err != nil {
			return nil, fail(err)
		}
		return n, nil
	case BoolKind:
		if s, ok := v.(string); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(s))
			if err != nil {
				return nil, fail(fmt.Errorf("not a bool"))
			}
			return b, nil
		}
		if err := labctl.Bools()(v); err != nil {
			return nil, fail(err)
		}
		return v, nil
	case StringKind:
		return labctl.AsString(v), nil
	case ChoiceKind:
		if err := labctl.OneOf(p.Choices...)(v); err != nil {
			return nil, fail(err)
		}
		for _, c := range p.Choices {
			if labctl.OneOf(c)(v) == nil {
				return c, nil
			}
		}
	}
	return nil, fail(fmt.Errorf("unsupported kind %s", p.Kind))
}

// Schema is the ordered parameter list of a procedure.
type Schema []Parameter

// Lookup returns the parameter called name.
func (s Schema) Lookup(name string) (Parameter, bool) {
	for _, p := range s {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// Resolve fills in defaults for missing values and validates every value.
// Names the schema does not declare are rejected.
func (s Schema) Resolve(raw map[string]any) (Values, error) {
	for name := range raw {
		if _, ok := s.Lookup(name); !ok {
			return nil, &labctl.ValidationError{Name: name, Value: raw[name], Reason: "unknown parameter"}
		}
	}
	vals := make(Values, len(s))
	for _, p := range s {
		v, ok := raw[p.Name]
		if !ok {
			v = p.Default
		}
		r, err := p.Resolve(v)
		if err != nil {
			return nil, err
		}
		vals[p.Name] = r
	}
	return vals, nil
}

// Values are resolved parameter values keyed by name. The accessors return
// the zero value for names that are missing or of another kind.
type Values map[string]any

func (v Values) Float(name string) float64 {
	f, _ := labctl.AsFloat(v[name])
	return f
}

func (v Values) Int(name string) int {
	n, _ := v[name].(int)
	return n
}

func (v Values) Bool(name string) bool {
	b, _ := v[name].(bool)
	return b
}

func (v Values) String(name string) string {
	if x, ok := v[name]; ok {
		return labctl.AsString(x)
	}
	return ""
}

// Names returns the value names in sorted order.
func (v Values) Names() []string {
	names := make([]string, 0, len(v))
	for k := range v {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
