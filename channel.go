// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package labctl

import (
	"strconv"
	"strings"
)

// Renderer rewrites a generic command template for one channel.
type Renderer interface {
	Render(template string, index int) string
}

// SubsystemIndex is the default Renderer. It appends the channel index to the
// first subsystem token of the template, so `CH:SCA?` becomes `:CH1:SCA?` and
// `SENS:POW:UNIT?` becomes `:SENS2:POW:UNIT?`. An index already present on
// the token is replaced.
type SubsystemIndex struct{}

// Render implements Renderer.
func (SubsystemIndex) Render(template string, index int) string {
	rest := strings.TrimPrefix(strings.TrimSpace(template), ":")
	end := strings.IndexAny(rest, ": ?")
	if end < 0 {
		end = len(rest)
	}
	token := strings.TrimRight(rest[:end], "0123456789")
	return ":" + token + strconv.Itoa(index) + rest[end:]
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(template string, index int) string

// Render implements Renderer.
func (f RendererFunc) Render(template string, index int) string { return f(template, index) }

// Channel is a view of one channel of a multi-channel instrument. It holds no
// state of its own: two Channels for the same instrument and index are
// interchangeable.
type Channel struct {
	inst  *Instrument
	index int
}

// Index returns the 1-based channel index.
func (c Channel) Index() int { return c.index }

// Instrument returns the instrument the channel belongs to.
func (c Channel) Instrument() *Instrument { return c.inst }

// Render returns template rewritten for this channel.
func (c Channel) Render(template string) string {
	return c.inst.renderer.Render(template, c.index)
}

// Write sends the channel-rendered command.
func (c Channel) Write(cmd string) error { return c.inst.Write(c.Render(cmd)) }

// Ask sends the channel-rendered query and returns the reply.
func (c Channel) Ask(cmd string) (string, error) { return c.inst.Ask(c.Render(cmd)) }

// ReadBinaryBlock sends the channel-rendered query and decodes the block reply.
func (c Channel) ReadBinaryBlock(cmd string, f BlockFormat) ([]float64, error) {
	return c.inst.ReadBinaryBlock(c.Render(cmd), f)
}

// Get reads a channel property.
func (c Channel) Get(name string) (any, error) {
	return c.inst.chanProps.Get(c, name)
}

// Set writes a channel property.
func (c Channel) Set(name string, v any) error {
	c.inst.logSet(name, v, c.index)
	return c.inst.chanProps.Set(c, name, v)
}

// GetFloat reads a numeric channel property.
func (c Channel) GetFloat(name string) (float64, error) {
	v, err := c.Get(name)
	if err != nil {
		return 0, err
	}
	return AsFloat(v)
}

// GetBool reads a boolean channel property.
func (c Channel) GetBool(name string) (bool, error) {
	v, err := c.Get(name)
	if err != nil {
		return false, err
	}
	return AsBool(v)
}

// GetString reads a channel property as a string.
func (c Channel) GetString(name string) (string, error) {
	v, err := c.Get(name)
	if err != nil {
		return "", err
	}
	return AsString(v), nil
}
