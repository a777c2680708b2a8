// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package mockbus

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ongpym/labctl"
)

// SimLoad is the resistance in Ohm connected to the simulated power supply.
const SimLoad = 100

// maxSimPoints bounds generated data sets.
const maxSimPoints = 1000000

type simulator struct {
	idn   string
	setup func(b *Bus)
}

var simulators = map[string]simulator{
	"E36106A": {"Keysight Technologies,E36106A,MY00000001,1.0.0-sim", simE36106A},
	"N7744C":  {"Keysight Technologies,N7744C,DE00000001,1.0-sim", simN7744C},
	"N7776C":  {"Keysight Technologies,N7776C,DE00000002,1.0-sim", simN7776C},
	"MDO3052": {"TEKTRONIX,MDO3052,C000001,CF:91.1CT FV:v1.0-sim", simMDO3052},
	"CTL":     {"TOPTICA,DLC CTL,000001,sim", simCTL},
	"AFG2125": {"GW INSTEK,AFG-2125,SIM00001,V1.0-sim", simAFG2125},
}

// Models lists the instruments Simulate knows.
func Models() []string {
	names := make([]string, 0, len(simulators))
	for k := range simulators {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Simulate returns an echo bus behaving like the named instrument: it
// answers *IDN?, starts from plausible settings and produces measurement
// data that follows what was set.
func Simulate(model string) (*Bus, error) {
	key := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(model), "-", ""))
	s, ok := simulators[key]
	if !ok {
		return nil, fmt.Errorf("no simulator for %q (have %s)", model, strings.Join(Models(), ", "))
	}
	b := NewEcho()
	b.Reply("*IDN?", s.idn)
	s.setup(b)
	return b, nil
}

// preset stores initial echo values.
func (b *Bus) preset(kv ...string) {
	for i := 0; i+1 < len(kv); i += 2 {
		b.Store(kv[i], kv[i+1])
	}
}

// num reads the first number of a stored value. Callers hold the lock.
func (b *Bus) num(head string, def float64) float64 {
	v, ok := b.values[normalize(head)]
	if !ok {
		return def
	}
	tok, _, _ := strings.Cut(v, ",")
	f, err := strconv.ParseFloat(strings.TrimSpace(tok), 64)
	if err != nil {
		return def
	}
	return f
}

func ftoa(f float64) string { return strconv.FormatFloat(f, 'E', 6, 64) }

func simE36106A(b *Bus) {
	b.preset("VOLT", "0", "CURR", "0.1", "OUTP", "0")
	b.Reply(":SYST:ERR?", `+0,"No error"`)
	b.ReplyFunc(func(cmd string) (string, bool) {
		v := 0.0
		if b.num("OUTP", 0) != 0 {
			v = b.num("VOLT", 0)
		}
		switch normalize(cmd) {
		case "MEAS:VOLT?":
			return ftoa(v), true
		case "MEAS:CURR?":
			// mA through the load
			return ftoa(v / SimLoad * 1e3), true
		}
		return "", false
	})
}

func simN7744C(b *Bus) {
	b.preset("SENS:POW:UNIT:ALL", "0")
	for n := 1; n <= 4; n++ {
		b.preset(
			fmt.Sprintf("SENS%d:POW:UNIT", n), "0",
			fmt.Sprintf("SENS%d:POW:ATIM", n), "1.0E-04",
			fmt.Sprintf("SENS%d:FUNC:PAR:LOGG", n), "100,1.0E-04",
		)
	}
	b.ReplyFunc(func(cmd string) (string, bool) {
		h := normalize(cmd)
		switch {
		case strings.HasPrefix(h, "SENS") && strings.HasSuffix(h, ":FUNC:STAT?"):
			return "LOGGING_STABILITY,COMPLETE", true
		case h == "SENS:POW:UNIT:ALL:CSV?":
			unit := "dBm"
			if b.num("SENS:POW:UNIT:ALL", 0) == 1 {
				unit = "W"
			}
			return strings.Repeat(unit+",", 3) + unit, true
		}
		return "", false
	})
	b.BlockFunc(func(cmd string) ([]byte, bool) {
		h := normalize(cmd)
		sens, ok := strings.CutSuffix(h, ":FUNC:RES?")
		if !ok {
			return nil, false
		}
		n := int(math.Min(b.num(sens+":FUNC:PAR:LOGG", 100), maxSimPoints))
		watts := b.num(sens+":POW:UNIT", 0) == 1
		vals := make([]float64, n)
		for i := range vals {
			dbm := -20 + 0.05*math.Sin(float64(i)/10)
			vals[i] = dbm
			if watts {
				vals[i] = math.Pow(10, dbm/10) * 1e-3
			}
		}
		raw, err := labctl.EncodeBlock(vals, labctl.Float32LSBFormat)
		return raw, err == nil
	})
}

func simN7776C(b *Bus) {
	b.preset(
		"SOUR0:POW:STAT", "0",
		"SOUR0:POW", "0",
		"SOUR0:POW:UNIT", "0",
		"SOUR0:WAV:SWE:STAR", "1550",
		"SOUR0:WAV:SWE:STOP", "1551",
		"SOUR0:WAV:SWE:STEP", "0.01",
		"SOUR0:WAV:SWE:SPE", "0.5",
		"SOUR0:WAV:SWE:MODE", "CONT",
		"SOUR0:WAV:SWE:LLOG", "0",
	)
	b.Reply("SOUR0:WAV:SWE:CHEC?", "0,OK")
	points := func() int {
		start, stop := b.num("SOUR0:WAV:SWE:STAR", 1550), b.num("SOUR0:WAV:SWE:STOP", 1551)
		step := b.num("SOUR0:WAV:SWE:STEP", 0.01)
		if step <= 0 || stop < start {
			return 1
		}
		return int(math.Min(math.Floor((stop-start)/step+1e-9)+1, maxSimPoints))
	}
	b.ReplyFunc(func(cmd string) (string, bool) {
		switch normalize(cmd) {
		case "SOUR0:WAV:SWE?":
			// sweeps complete instantly
			return "+0", true
		case "SOUR0:READ:POIN? LLOG":
			return strconv.Itoa(points()), true
		}
		return "", false
	})
	b.BlockFunc(func(cmd string) ([]byte, bool) {
		if normalize(cmd) != "SOUR0:READ:DATA? LLOG" {
			return nil, false
		}
		start, step := b.num("SOUR0:WAV:SWE:STAR", 1550), b.num("SOUR0:WAV:SWE:STEP", 0.01)
		vals := make([]float64, points())
		for i := range vals {
			vals[i] = (start + float64(i)*step) * 1e-9
		}
		raw, err := labctl.EncodeBlock(vals, labctl.Float64LSBFormat)
		return raw, err == nil
	})
}

// simCounts is the number of raw counts per vertical division of a 16-bit
// curve transfer.
const simCounts = 6400

func simMDO3052(b *Bus) {
	b.preset(
		"HOR:RECO", "10000",
		"HOR:SCA", "1.0E-3",
		"HOR:POS", "50",
		"CH1:SCA", "0.1",
		"CH2:SCA", "1",
		"CH1:POS", "0",
		"CH2:POS", "0",
		"CH1:TER", "MEG",
		"CH2:TER", "MEG",
		"DAT:SOU", "CH1",
		"DAT:STAR", "1",
		"DAT:STOP", "10000",
		"ACQ:MOD", "SAM",
		"ACQ:STOPA", "RUNST",
	)
	b.ReplyFunc(func(cmd string) (string, bool) {
		src := b.values["DAT:SOU"]
		switch normalize(cmd) {
		case "ACQ:STATE?":
			// single acquisitions complete instantly
			return "0", true
		case "TRIG:STATE?":
			return "READY", true
		case "BUSY?":
			return "0", true
		case "WFMO:XINCR?":
			return ftoa(b.num("HOR:SCA", 1e-3) * 10 / b.num("HOR:RECO", 10000)), true
		case "WFMO:XZERO?":
			return ftoa(-b.num("HOR:SCA", 1e-3) * 10 * b.num("HOR:POS", 50) / 100), true
		case "WFMO:YMULT?":
			return ftoa(b.num(src+":SCA", 1) / simCounts), true
		case "WFMO:YZERO?", "WFMO:YOFF?":
			return "0.0E+0", true
		}
		return "", false
	})
	b.BlockFunc(func(cmd string) ([]byte, bool) {
		if normalize(cmd) != "CURV?" {
			return nil, false
		}
		src := b.values["DAT:SOU"]
		start := int(b.num("DAT:STAR", 1))
		stop := int(math.Min(b.num("DAT:STOP", 10000), b.num("HOR:RECO", 10000)))
		n := stop - start + 1
		if n < 1 {
			n = 1
		}
		perVolt := simCounts / b.num(src+":SCA", 1)
		vals := make([]float64, n)
		for i := range vals {
			x := float64(i) / float64(n)
			var volts float64
			if src == "CH2" {
				if x > 0.1 {
					volts = 2.5
				}
			} else {
				// transmission dip of a resonance in the middle of the record
				d := (x - 0.5) / 0.02
				volts = 0.05 * (1 - 0.8/(1+d*d))
			}
			vals[i] = math.Max(math.MinInt16, math.Min(math.MaxInt16, math.Round(volts*perVolt)))
		}
		raw, err := labctl.EncodeBlock(vals, labctl.Int16MSBFormat)
		return raw, err == nil
	})
}

// Scheme is the syntax of the Toptica command line:
// `(param-set! 'name value)` and `(param-ref 'name)`.
type Scheme struct{}

var (
	schemeSet = regexp.MustCompile(`^\(param-set! '(\S+) (.+)\)$`)
	schemeRef = regexp.MustCompile(`^\(param-ref '([^\s)]+)\)$`)
)

func (Scheme) Setter(cmd string) (string, string, bool) {
	m := schemeSet.FindStringSubmatch(cmd)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

func (Scheme) Getter(cmd string) (string, bool) {
	m := schemeRef.FindStringSubmatch(cmd)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func simCTL(b *Bus) {
	b.WithSyntax(Scheme{})
	b.preset(
		"system-type", `"DLC CTL"`,
		"emission", "#t",
		"laser1:ctl:state", "0",
		"laser1:ctl:wavelength-set", "1550",
		"laser1:ctl:power:power-act", "10",
		"laser1:power-stabilization:setpoint", "10",
		"laser1:power-stabilization:enabled", "#f",
		"laser1:wide-scan:state", "0",
		"laser1:wide-scan:speed", "1",
		"laser1:wide-scan:continuous-mode", "#f",
		"laser1:wide-scan:shape", "0",
		"laser1:scan:enabled", "#f",
	)
	b.ReplyFunc(func(cmd string) (string, bool) {
		if cmd != "(param-ref 'laser1:ctl:wavelength-act)" {
			return "", false
		}
		return b.values[normalize("laser1:ctl:wavelength-set")], true
	})
}

func simAFG2125(b *Bus) {
	b.preset(
		"SOUR:FUNC", "SIN",
		"SOUR:FREQ", "1.000000E+03",
		"SOUR:AMPL", "1.000",
		"SOUR:DCO", "0.000",
		"SOUR:SQU:DCYC", "50",
		"SOUR:RAMP:SYMM", "50",
		"OUTP", "OFF",
		"OUTP:LOAD", "DEF",
	)
}
