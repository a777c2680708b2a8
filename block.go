// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package labctl

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// ElementKind selects how each element of a binary block is interpreted.
type ElementKind int

// Element kinds of a binary block.
const (
	Signed ElementKind = iota
	Unsigned
	Float
)

var kindDesc = map[ElementKind]string{
	Signed:   "signed integer",
	Unsigned: "unsigned integer",
	Float:    "IEEE float",
}

func (k ElementKind) String() string {
	return kindDesc[k]
}

// BlockFormat describes the elements of an IEEE-488.2 definite-length
// arbitrary block: element width in bytes (1, 2, 4 or 8), kind and byte order.
type BlockFormat struct {
	Width int
	Kind  ElementKind
	Order binary.ByteOrder
}

// Formats used by the drivers in this module.
var (
	Int8Format       = BlockFormat{Width: 1, Kind: Signed, Order: binary.BigEndian}
	Int16MSBFormat   = BlockFormat{Width: 2, Kind: Signed, Order: binary.BigEndian}
	Float32LSBFormat = BlockFormat{Width: 4, Kind: Float, Order: binary.LittleEndian}
	Float64LSBFormat = BlockFormat{Width: 8, Kind: Float, Order: binary.LittleEndian}
)

func (f BlockFormat) String() string {
	order := "LSB"
	if f.Order == binary.BigEndian {
		order = "MSB"
	}
	return fmt.Sprintf("%d-byte %s %s first", f.Width, f.Kind, order)
}

// Validate checks that the format can be decoded.
func (f BlockFormat) Validate() error {
	switch f.Width {
	case 1, 2, 4, 8:
	default:
		return invalid("element width", f.Width, "must be 1, 2, 4 or 8 bytes")
	}
	if f.Kind == Float && f.Width != 4 && f.Width != 8 {
		return invalid("element width", f.Width, "float elements must be 4 or 8 bytes")
	}
	if f.Order == nil {
		return invalid("byte order", nil, "must be set")
	}
	return nil
}

// MaxBlockLength bounds the declared length of a block: the longest scope
// record (10M points) of 8 byte values.
const MaxBlockLength = 10_000_000 * 8

// ParseBlock extracts the payload of a complete definite-length block
// reply `#<n><length><bytes>`. Bytes before the '#' (a command header echo)
// are skipped and a single trailing LF or CR LF is allowed. Any other
// difference between the declared length and the bytes present is a
// ProtocolError.
func ParseBlock(raw []byte) ([]byte, error) {
	start := bytes.IndexByte(raw, '#')
	if start < 0 {
		return nil, protocolErrorf(raw, "missing block header '#'")
	}
	b := raw[start:]
	if len(b) < 2 {
		return nil, protocolErrorf(raw, "truncated block header")
	}
	ndigits := int(b[1] - '0')
	if ndigits == 0 {
		return nil, protocolErrorf(raw, "indefinite-length blocks are not supported")
	}
	if ndigits < 0 || ndigits > 9 {
		return nil, protocolErrorf(raw, "invalid length digit count %q", b[1])
	}
	if len(b) < 2+ndigits {
		return nil, protocolErrorf(raw, "truncated block header")
	}
	length, err := parseDecimal(b[2 : 2+ndigits])
	if err != nil {
		return nil, protocolErrorf(raw, "invalid block length: %s", err)
	}
	if length > MaxBlockLength {
		return nil, protocolErrorf(raw[:start+2+ndigits], "block length %d exceeds %d", length, MaxBlockLength)
	}
	payload := b[2+ndigits:]
	if len(payload) > length {
		switch string(payload[length:]) {
		case "\n", "\r\n":
			payload = payload[:length]
		}
	}
	if len(payload) != length {
		return nil, protocolErrorf(raw, "block declares %d bytes, got %d", length, len(payload))
	}
	return payload, nil
}

// ReadBlock reads one definite-length block from r, leaving any bytes after
// the payload (the reply terminator) unread.
func ReadBlock(r *bufio.Reader) ([]byte, error) {
	var hdr []byte
	for {
		c, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if c == '#' {
			break
		}
		hdr = append(hdr, c)
		if len(hdr) > 64 {
			return nil, protocolErrorf(hdr, "missing block header '#'")
		}
	}
	c, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	ndigits := int(c - '0')
	if ndigits == 0 {
		return nil, protocolErrorf([]byte{'#', c}, "indefinite-length blocks are not supported")
	}
	if ndigits < 0 || ndigits > 9 {
		return nil, protocolErrorf([]byte{'#', c}, "invalid length digit count %q", c)
	}
	digits := make([]byte, ndigits)
	if _, err := io.ReadFull(r, digits); err != nil {
		return nil, err
	}
	length, err := parseDecimal(digits)
	if err != nil {
		return nil, protocolErrorf(append([]byte{'#', c}, digits...), "invalid block length: %s", err)
	}
	if length > MaxBlockLength {
		return nil, protocolErrorf(append([]byte{'#', c}, digits...), "block length %d exceeds %d", length, MaxBlockLength)
	}
	payload := make([]byte, length)
	n, err := io.ReadFull(r, payload)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) || isTimeout(err) {
			return nil, protocolErrorf(payload[:n], "block declares %d bytes, got %d", length, n)
		}
		return nil, err
	}
	return payload, nil
}

// DecodeBlock decodes a block payload into float64 values.
func DecodeBlock(payload []byte, f BlockFormat) ([]float64, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if len(payload)%f.Width != 0 {
		return nil, protocolErrorf(payload, "%d payload bytes is not a multiple of element width %d", len(payload), f.Width)
	}
	vals := make([]float64, 0, len(payload)/f.Width)
	for p := payload; len(p) > 0; p = p[f.Width:] {
		vals = append(vals, decodeElement(p[:f.Width], f))
	}
	return vals, nil
}

func decodeElement(b []byte, f BlockFormat) float64 {
	switch f.Width {
	case 1:
		if f.Kind == Signed {
			return float64(int8(b[0]))
		}
		return float64(b[0])
	case 2:
		u := f.Order.Uint16(b)
		if f.Kind == Signed {
			return float64(int16(u))
		}
		return float64(u)
	case 4:
		u := f.Order.Uint32(b)
		switch f.Kind {
		case Signed:
			return float64(int32(u))
		case Float:
			return float64(math.Float32frombits(u))
		}
		return float64(u)
	default:
		u := f.Order.Uint64(b)
		switch f.Kind {
		case Signed:
			return float64(int64(u))
		case Float:
			return math.Float64frombits(u)
		}
		return float64(u)
	}
}

// EncodeBlock builds a definite-length block from values. It is the inverse
// of ParseBlock followed by DecodeBlock and is used by simulated instruments.
func EncodeBlock(vals []float64, f BlockFormat) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	payload := make([]byte, len(vals)*f.Width)
	for i, v := range vals {
		b := payload[i*f.Width : (i+1)*f.Width]
		switch {
		case f.Width == 1 && f.Kind == Signed:
			b[0] = byte(int8(v))
		case f.Width == 1:
			b[0] = byte(v)
		case f.Width == 2 && f.Kind == Signed:
			f.Order.PutUint16(b, uint16(int16(v)))
		case f.Width == 2:
			f.Order.PutUint16(b, uint16(v))
		case f.Width == 4 && f.Kind == Float:
			f.Order.PutUint32(b, math.Float32bits(float32(v)))
		case f.Width == 4 && f.Kind == Signed:
			f.Order.PutUint32(b, uint32(int32(v)))
		case f.Width == 4:
			f.Order.PutUint32(b, uint32(v))
		case f.Kind == Float:
			f.Order.PutUint64(b, math.Float64bits(v))
		case f.Kind == Signed:
			f.Order.PutUint64(b, uint64(int64(v)))
		default:
			f.Order.PutUint64(b, uint64(v))
		}
	}
	length := fmt.Sprintf("%d", len(payload))
	out := make([]byte, 0, 2+len(length)+len(payload))
	out = append(out, '#', byte('0'+len(length)))
	out = append(out, length...)
	return append(out, payload...), nil
}

func parseDecimal(digits []byte) (int, error) {
	n := 0
	for _, d := range digits {
		if d < '0' || d > '9' {
			return 0, fmt.Errorf("non-digit %q", d)
		}
		n = n*10 + int(d-'0')
	}
	return n, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
