// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package toptica provides a driver for the Toptica CTL tunable diode
// laser, spoken to over the DeCoF command line.
//
// The command line echoes every command before replying and reports the
// status of parameter writes asynchronously, so the adapter should be opened
// with echo-discard and drain-after-write enabled.
package toptica

import (
	"time"

	"github.com/ongpym/labctl"
)

// DrainTime is how long the command line must stay quiet after a write
// before the next command is sent.
const DrainTime = 100 * time.Millisecond

// Wide scan modes.
const (
	ScanSingle = "single"
	ScanRepeat = "repeat"
)

// Wide scan shapes.
const (
	ScanSawtooth = "sawtooth"
	ScanTriangle = "triangle"
)

var boolMap = map[any]any{true: "#t", false: "#f"}

// States are the laser states reported by state.
var States = map[any]any{
	"ERROR":   -100,
	"Standby": -90,
	"Motor referencing and FLOW initialization in progress": -8,
	"FLOW initialization in progress":                       -7,
	"Motor not referenced, yet":                             -6,
	"Motor referencing in progress":                         -5,
	"Motor referenced":                                      -4,
	"Drift compensation in progress":                        -3,
	"FLOW optimization in progress":                         -2,
	"SMILE optimization in progress":                        -1,
	"Idle/Stopped":                                          0,
	"Target set wavelength is about to be reached":          1,
	"Starting motor scan":                                   2,
	"Scan in progress":                                      3,
	"Restarting scan":                                       4,
	"Paused":                                                5,
	"Remotely controlled":                                   6,
}

// ScanStates are the states of the wide scan.
var ScanStates = map[any]any{
	"disabled":          0,
	"waiting for start": 1,
	"scan active":       2,
	"waiting for stop":  3,
}

func param(name, key, doc string, extra func(*labctl.Property)) labctl.Property {
	p := labctl.Property{Name: name, Doc: doc, Query: paramRef(key), Parse: ParseReply}
	if extra != nil {
		extra(&p)
	}
	return p
}

func writable(key, verb string, v labctl.Validator) func(*labctl.Property) {
	return func(p *labctl.Property) {
		p.Write = paramSet(key, verb)
		p.Validate = v
		if verb == "%g" {
			p.Format = labctl.ToFloat
		}
	}
}

func flag(key string) func(*labctl.Property) {
	return func(p *labctl.Property) {
		p.Write = paramSet(key, "%s")
		p.Validate = labctl.Bools()
		p.Map = boolMap
	}
}

func enum(m map[any]any) func(*labctl.Property) {
	return func(p *labctl.Property) { p.Map = m }
}

const (
	keyWavelengthSet = "laser1:ctl:wavelength-set"
	keyPowerSet      = "laser1:power-stabilization:setpoint"
	keyPowerStab     = "laser1:power-stabilization:enabled"
	keyScanBegin     = "laser1:wide-scan:scan-begin"
	keyScanEnd       = "laser1:wide-scan:scan-end"
	keyScanSpeed     = "laser1:wide-scan:speed"
	keyScanMode      = "laser1:wide-scan:continuous-mode"
	keyScanShape     = "laser1:wide-scan:shape"
	keyScanTrigger   = "laser1:wide-scan:trigger:output-enabled"
	keyScanThreshold = "laser1:wide-scan:trigger:output-threshold"
	keyPiezoFreq     = "laser1:scan:frequency"
	keyPiezoAmp      = "laser1:scan:amplitude"
	keyPiezoOffset   = "laser1:scan:offset"
	keyPiezoStart    = "laser1:scan:start"
	keyPiezoStop     = "laser1:scan:stop"
	keyPiezoSignal   = "laser1:scan:signal-type"
	keyPiezoEnabled  = "laser1:scan:enabled"
)

var ctlProps = labctl.NewTable(
	param("emission", "emission", "Whether the laser emits.", enum(boolMap)),
	param("state", "laser1:ctl:state", "Laser state, one of States.", enum(States)),
	param("wavelength", "laser1:ctl:wavelength-act", "Actual wavelength in nm.", nil),
	param("wavelength_set", keyWavelengthSet, "Wavelength setpoint in nm.",
		writable(keyWavelengthSet, "%g", labctl.Range(1460, 1570))),
	param("power", "laser1:ctl:power:power-act", "Actual output power in mW.", nil),
	param("power_set", keyPowerSet, "Power stabilization setpoint in mW.",
		writable(keyPowerSet, "%g", labctl.Range(0.5, 60))),
	param("power_stabilization", keyPowerStab, "", flag(keyPowerStab)),
	param("scan_begin", keyScanBegin, "Wide scan begin in nm.",
		writable(keyScanBegin, "%g", labctl.Range(1450, 1580))),
	param("scan_end", keyScanEnd, "Wide scan end in nm.",
		writable(keyScanEnd, "%g", labctl.Range(1450, 1580))),
	param("scan_speed", keyScanSpeed, "Wide scan speed in nm/s.",
		writable(keyScanSpeed, "%g", labctl.Range(0, 5))),
	param("scan_mode", keyScanMode, "", func(p *labctl.Property) {
		p.Write = paramSet(keyScanMode, "%s")
		p.Validate = labctl.OneOf(ScanSingle, ScanRepeat)
		p.Map = map[any]any{ScanSingle: "#f", ScanRepeat: "#t"}
	}),
	param("scan_shape", keyScanShape, "", func(p *labctl.Property) {
		p.Write = paramSet(keyScanShape, "%d")
		p.Validate = labctl.OneOf(ScanSawtooth, ScanTriangle)
		p.Map = map[any]any{ScanSawtooth: 0, ScanTriangle: 1}
	}),
	param("scan_state", "laser1:wide-scan:state", "Wide scan state, one of ScanStates.", enum(ScanStates)),
	param("scan_trigger", keyScanTrigger, "Trigger output of the wide scan.", flag(keyScanTrigger)),
	param("scan_trigger_threshold", keyScanThreshold, "Wavelength at which the trigger output fires.",
		writable(keyScanThreshold, "%g", labctl.Range(1450, 1580))),
	param("piezo_frequency", keyPiezoFreq, "Piezo scan frequency in Hz.",
		writable(keyPiezoFreq, "%g", labctl.Range(0.02, 400))),
	param("piezo_amplitude", keyPiezoAmp, "Piezo scan amplitude in V.",
		writable(keyPiezoAmp, "%g", labctl.Range(0, 140))),
	param("piezo_offset", keyPiezoOffset, "Piezo scan offset in V.",
		writable(keyPiezoOffset, "%g", labctl.Range(0, 140))),
	param("piezo_start", keyPiezoStart, "", writable(keyPiezoStart, "%g", labctl.Range(0, 140))),
	param("piezo_stop", keyPiezoStop, "", writable(keyPiezoStop, "%g", labctl.Range(0, 140))),
	param("piezo_signal", keyPiezoSignal, "", func(p *labctl.Property) {
		p.Write = paramSet(keyPiezoSignal, "%d")
		p.Validate = labctl.OneOf("sine", "triangle", "triangle rounded")
		p.Map = map[any]any{"sine": 0, "triangle": 1, "triangle rounded": 2}
	}),
	param("piezo_enabled", keyPiezoEnabled, "", flag(keyPiezoEnabled)),
)

// CTL is a Toptica CTL tunable laser.
type CTL struct {
	*labctl.Instrument
}

// NewCTL returns a driver communicating over a.
func NewCTL(a labctl.Adapter, opts ...labctl.Option) *CTL {
	return &CTL{labctl.NewInstrument("CTL", a, ctlProps, opts...)}
}

// ID returns the system type; the laser does not understand *IDN?.
func (l *CTL) ID() (string, error) {
	reply, err := l.Ask(paramRef("system-type"))
	if err != nil {
		return "", err
	}
	v, err := ParseReply(reply)
	if err != nil {
		return "", err
	}
	return labctl.AsString(v), nil
}

// Exec runs a command of the laser.
func (l *CTL) Exec(name string) error { return l.Write(execCmd(name)) }

// SetParam writes a parameter that has no property.
func (l *CTL) SetParam(key string, v any) error {
	return l.Writef("(param-set! '%s %s)", key, formatValue(v))
}

// Param reads a parameter that has no property.
func (l *CTL) Param(key string) (any, error) {
	reply, err := l.Ask(paramRef(key))
	if err != nil {
		return nil, err
	}
	return ParseReply(reply)
}

// ScanConfig describes a wide scan.
type ScanConfig struct {
	Begin, End float64 // nm
	Speed      float64 // nm/s
	Shape      string
	Mode       string

	// Trigger enables the trigger output. The scan then starts one
	// second of travel before Begin so the trigger fires at full speed.
	Trigger bool
	// TriggerAt is the wavelength of the trigger; zero means Begin.
	TriggerAt float64
}

type setting struct {
	name string
	v    any
}

// ScanSetup prepares a wide scan.
func (l *CTL) ScanSetup(c ScanConfig) error {
	if c.Shape == "" {
		c.Shape = ScanSawtooth
	}
	if c.Mode == "" {
		c.Mode = ScanSingle
	}
	begin := c.Begin
	if c.Trigger {
		begin -= c.Speed
	}
	steps := []setting{
		{"scan_begin", begin},
		{"scan_end", c.End},
		{"scan_speed", c.Speed},
		{"scan_trigger", c.Trigger},
	}
	if c.Trigger {
		at := c.TriggerAt
		if at == 0 {
			at = c.Begin
		}
		steps = append(steps, setting{"scan_trigger_threshold", at})
	}
	steps = append(steps, setting{"scan_shape", c.Shape}, setting{"scan_mode", c.Mode})
	for _, s := range steps {
		if err := l.Set(s.name, s.v); err != nil {
			return err
		}
	}
	return nil
}

// StartScan starts the wide scan.
func (l *CTL) StartScan() error { return l.Exec("laser1:wide-scan:start") }

// StopScan stops the wide scan.
func (l *CTL) StopScan() error { return l.Exec("laser1:wide-scan:stop") }

// Scanning reports whether the wide scan is active.
func (l *CTL) Scanning() (bool, error) {
	s, err := l.GetString("scan_state")
	return s == "scan active", err
}
