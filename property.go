// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package labctl

import (
	"fmt"
	"sort"
)

// Property binds a readable name to the commands that query and set it.
//
// Query and Write are fmt templates. Write receives the value after Map and
// Format have been applied; a []any value is spread over the template verbs.
// An empty template makes the property write-only or read-only.
type Property struct {
	Name  string
	Doc   string
	Query string
	Write string

	// Validate is run before anything is sent. nil accepts any value.
	Validate Validator

	// Map translates user values (keys) to wire values. On Get the reply
	// token is looked up among the wire values and the key is returned.
	Map map[any]any

	// Parse converts one reply token. The default yields a float64 for
	// numeric tokens and the trimmed string otherwise.
	Parse func(tok string) (any, error)

	// Format converts the validated, mapped value to its wire form.
	Format func(v any) (any, error)

	// Count is the number of comma separated tokens a reply must hold;
	// zero accepts any number.
	Count int
}

// Table is the property set of one driver type. It is built once, usually
// in a package level variable, and shared by every instance of the driver.
type Table struct {
	props map[string]*Property
}

// NewTable builds a table from props. It panics on an empty or duplicate
// name since tables are declared at package initialization.
func NewTable(props ...Property) *Table {
	t := &Table{props: make(map[string]*Property, len(props))}
	t.add(props)
	return t
}

// Extend returns a new table holding the properties of t followed by props.
// Properties in props replace those of t with the same name.
func (t *Table) Extend(props ...Property) *Table {
	n := &Table{props: make(map[string]*Property, len(t.props)+len(props))}
	for k, p := range t.props {
		n.props[k] = p
	}
	for _, p := range props {
		delete(n.props, p.Name)
	}
	n.add(props)
	return n
}

func (t *Table) add(props []Property) {
	for i := range props {
		p := props[i]
		if p.Name == "" {
			panic("labctl: property with empty name")
		}
		if _, dup := t.props[p.Name]; dup {
			panic(fmt.Sprintf("labctl: duplicate property %q", p.Name))
		}
		t.props[p.Name] = &p
	}
}

// Lookup returns the named property.
func (t *Table) Lookup(name string) (Property, bool) {
	p, ok := t.props[name]
	if !ok {
		return Property{}, false
	}
	return *p, true
}

// Names returns the sorted property names.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.props))
	for k := range t.props {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Get queries the named property through c. A single token reply yields one
// value, a multi-token reply yields []any. Nothing is cached.
func (t *Table) Get(c Commander, name string) (any, error) {
	p, ok := t.props[name]
	if !ok {
		return nil, invalid(name, nil, "unknown property")
	}
	if p.Query == "" {
		return nil, invalid(name, nil, "property is write-only")
	}
	reply, err := c.Ask(p.Query)
	if err != nil {
		return nil, err
	}
	return p.decode(reply)
}

// Set validates v, translates it and writes the named property through c.
// A rejected value is reported as a *ValidationError and nothing is written.
func (t *Table) Set(c Commander, name string, v any) error {
	p, ok := t.props[name]
	if !ok {
		return invalid(name, v, "unknown property")
	}
	cmd, err := p.render(v)
	if err != nil {
		return err
	}
	return c.Write(cmd)
}

func (p *Property) decode(reply string) (any, error) {
	toks := SplitReply(reply)
	if p.Count > 0 && len(toks) != p.Count {
		return nil, protocolErrorf([]byte(reply), "%s: expected %d tokens, got %d", p.Name, p.Count, len(toks))
	}
	if len(toks) == 0 {
		return nil, protocolErrorf([]byte(reply), "%s: empty reply", p.Name)
	}
	vals := make([]any, len(toks))
	for i, tok := range toks {
		v, err := p.decodeToken(tok)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	if len(vals) == 1 {
		return vals[0], nil
	}
	return vals, nil
}

func (p *Property) decodeToken(tok string) (any, error) {
	if p.Map != nil {
		wire := ParseToken(tok)
		for k, w := range p.Map {
			if sameValue(wire, w) {
				return k, nil
			}
		}
		return nil, protocolErrorf([]byte(tok), "%s: unexpected reply token", p.Name)
	}
	if p.Parse != nil {
		v, err := p.Parse(tok)
		if err != nil {
			return nil, &ProtocolError{Reason: fmt.Sprintf("%s: %s", p.Name, err), Raw: []byte(tok)}
		}
		return v, nil
	}
	return ParseToken(tok), nil
}

// render produces the command that sets the property to v.
func (p *Property) render(v any) (string, error) {
	if p.Write == "" {
		return "", invalid(p.Name, v, "property is read-only")
	}
	if p.Validate != nil {
		if err := p.Validate(v); err != nil {
			if ve, ok := err.(*ValidationError); ok && ve.Name == "" {
				ve.Name = p.Name
			}
			return "", err
		}
	}
	w := v
	if p.Map != nil {
		found := false
		for k, mv := range p.Map {
			if sameValue(v, k) {
				w, found = mv, true
				break
			}
		}
		if !found {
			return "", invalid(p.Name, v, "no mapping for value")
		}
	}
	if p.Format != nil {
		var err error
		if w, err = p.Format(w); err != nil {
			return "", invalid(p.Name, v, "%s", err)
		}
	}
	if args, ok := w.([]any); ok {
		return fmt.Sprintf(p.Write, args...), nil
	}
	return fmt.Sprintf(p.Write, w), nil
}

// AsFloat converts a property value to float64.
func AsFloat(v any) (float64, error) {
	if f, ok := toFloat(v); ok {
		return f, nil
	}
	if b, ok := v.(bool); ok {
		if b {
			return 1, nil
		}
		return 0, nil
	}
	return 0, protocolErrorf([]byte(fmt.Sprint(v)), "value is not a number")
}

// AsInt converts a property value to int, rounding toward zero.
func AsInt(v any) (int, error) {
	f, err := AsFloat(v)
	return int(f), err
}

// AsBool converts a property value to bool. Numbers are true when nonzero
// and the strings ON/OFF, TRUE/FALSE are recognized.
func AsBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		switch {
		case sameValue(x, "ON"), sameValue(x, "TRUE"):
			return true, nil
		case sameValue(x, "OFF"), sameValue(x, "FALSE"):
			return false, nil
		}
	}
	if f, ok := toFloat(v); ok {
		return f != 0, nil
	}
	return false, protocolErrorf([]byte(fmt.Sprint(v)), "value is not a boolean")
}

// AsString formats a property value as a string.
func AsString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// ToFloat is a Format converting any numeric value to float64, so that
// integer arguments render through %g and %f verbs.
func ToFloat(v any) (any, error) {
	f, ok := toFloat(v)
	if !ok {
		return nil, fmt.Errorf("%v is not a number", v)
	}
	return f, nil
}

// ToInt is a Format converting a numeric value to int for %d verbs.
// Fractional values are rejected rather than truncated.
func ToInt(v any) (any, error) {
	f, ok := toFloat(v)
	if !ok {
		return nil, fmt.Errorf("%v is not a number", v)
	}
	if f != float64(int(f)) {
		return nil, fmt.Errorf("%v is not an integer", v)
	}
	return int(f), nil
}
