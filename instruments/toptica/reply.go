// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package toptica

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/ongpym/labctl"
)

// replyLexer tokenizes the replies of the DeCoF command line.
var replyLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Error", Pattern: `Error:`},
	{Name: "Bool", Pattern: `#[tf]`},
	{Name: "Number", Pattern: `[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?`},
	{Name: "String", Pattern: `"(\\.|[^"\\])*"`},
	{Name: "Symbol", Pattern: `'?[A-Za-z_][A-Za-z0-9_:!?.\-]*`},
	{Name: "Punct", Pattern: `\S`},
	{Name: "Whitespace", Pattern: `\s+`},
})

// reply is one value returned by param-ref or an error report.
type reply struct {
	Failure *failure `parser:"@@"`
	Bool    *boolean `parser:"| @Bool"`
	Number  *float64 `parser:"| @Number"`
	String  *string  `parser:"| @String"`
	Symbol  *string  `parser:"| @Symbol"`
}

// failure is an `Error: <code> <message>` report.
type failure struct {
	Code    int      `parser:"Error @Number"`
	Message []string `parser:"@(Symbol | Number | String | Bool | Punct)*"`
}

type boolean bool

func (b *boolean) Capture(values []string) error {
	*b = values[0] == "#t"
	return nil
}

var replyParser = participle.MustBuild[reply](
	participle.Lexer(replyLexer),
	participle.Elide("Whitespace"),
	participle.Unquote("String"),
	participle.UseLookahead(2),
)

// DeviceError is an error reported by the laser for a command.
type DeviceError struct {
	Code    int
	Message string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("toptica: error %d: %s", e.Code, e.Message)
}

// Is matches labctl.ErrProtocol.
func (e *DeviceError) Is(target error) bool { return target == labctl.ErrProtocol }

// ParseReply converts a reply to bool, float64 or string. A quoted
// string loses its quotes and a symbol its leading tick.
func ParseReply(s string) (any, error) {
	r, err := replyParser.ParseString("", strings.TrimSpace(s))
	if err != nil {
		return nil, &labctl.ProtocolError{Reason: fmt.Sprintf("unparsable reply: %s", err), Raw: []byte(s)}
	}
	switch {
	case r.Failure != nil:
		return nil, &DeviceError{Code: r.Failure.Code, Message: strings.Join(r.Failure.Message, " ")}
	case r.Bool != nil:
		return bool(*r.Bool), nil
	case r.Number != nil:
		return *r.Number, nil
	case r.String != nil:
		return *r.String, nil
	case r.Symbol != nil:
		return strings.TrimPrefix(*r.Symbol, "'"), nil
	}
	return nil, &labctl.ProtocolError{Reason: "empty reply", Raw: []byte(s)}
}

// paramRef reads a parameter.
func paramRef(name string) string { return fmt.Sprintf("(param-ref '%s)", name) }

// paramSet returns a write template for a parameter; the value verb is
// filled in by the property table.
func paramSet(name, verb string) string { return fmt.Sprintf("(param-set! '%s %s)", name, verb) }

// execCmd runs a command of the laser.
func execCmd(name string) string { return fmt.Sprintf("(exec '%s)", name) }

// formatValue renders a Go value in the laser's syntax.
func formatValue(v any) string {
	switch x := v.(type) {
	case bool:
		if x {
			return "#t"
		}
		return "#f"
	case string:
		return fmt.Sprintf("%q", x)
	}
	f, _ := labctl.AsFloat(v)
	return fmt.Sprintf("%g", f)
}
