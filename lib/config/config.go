// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package config loads the YAML configuration of the command line tools:
// instrument addresses, the data directory, result sinks and logging.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFile is the configuration file looked for when none is given.
const DefaultFile = "ongpym.yaml"

// Config is the complete configuration.
type Config struct {
	DataDir     string                `yaml:"data_dir"`
	Timeout     time.Duration         `yaml:"timeout"`
	Instruments map[string]Instrument `yaml:"instruments"`
	Prologix    Prologix              `yaml:"prologix"`
	Log         Log                   `yaml:"log"`
	Sinks       Sinks                 `yaml:"sinks"`
	Metrics     Metrics               `yaml:"metrics"`
}

// Instrument is the connection of one instrument. Zero fields fall back to
// the bus defaults.
type Instrument struct {
	Address  string        `yaml:"address"`
	BaudRate int           `yaml:"baud_rate,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
	// Echo is set for instruments that echo every command before replying.
	Echo bool `yaml:"echo,omitempty"`
	// Drain discards unsolicited output after each write.
	Drain time.Duration `yaml:"drain,omitempty"`
	Trace bool          `yaml:"trace,omitempty"`
}

// Prologix configures the GPIB controller.
type Prologix struct {
	Port  string `yaml:"port"`
	AR488 bool   `yaml:"ar488"`
	Clear bool   `yaml:"clear"`
	// EOS is the terminator appended to commands on the GPIB side: crlf
	// (default), cr, lf or none.
	EOS string `yaml:"eos,omitempty"`
}

// Log configures logging.
type Log struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"` // text or json
	Output   string `yaml:"output"` // stderr, stdout or file
	FilePath string `yaml:"file_path"`
}

// Sinks enables the optional result sinks.
type Sinks struct {
	SQLite string `yaml:"sqlite"`
	Influx Influx `yaml:"influx"`
	Redis  Redis  `yaml:"redis"`
	Plot   bool   `yaml:"plot"`
}

// Influx configures the InfluxDB sink. It is off while URL is empty.
type Influx struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// Redis configures the event publisher. It is off while Addr is empty.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	Channel  string `yaml:"channel"`
}

// Metrics configures the Prometheus endpoint. It is off while Addr is empty.
type Metrics struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used without a file: every instrument
// is simulated and data goes to ./data.
func Default() *Config {
	return &Config{
		DataDir: "data",
		Timeout: 5 * time.Second,
		Instruments: map[string]Instrument{
			"e36106a": {Address: "SIM::E36106A"},
			"n7744c":  {Address: "SIM::N7744C"},
			"n7776c":  {Address: "SIM::N7776C"},
			"mdo3052": {Address: "SIM::MDO3052"},
			"ctl":     {Address: "SIM::CTL", Echo: true, Drain: 100 * time.Millisecond},
			"afg2125": {Address: "SIM::AFG2125", BaudRate: 115200},
		},
		Log: Log{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Sinks: Sinks{
			Redis: Redis{Channel: "ongpym"},
		},
	}
}

// Load reads path over the defaults. Keys missing from the file keep their
// default value; instruments listed in the file replace the default entry
// of the same name.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML document over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	defaults := cfg.Instruments
	cfg.Instruments = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Instruments == nil {
		cfg.Instruments = map[string]Instrument{}
	}
	for name, inst := range defaults {
		if _, ok := cfg.Instruments[name]; !ok {
			cfg.Instruments[name] = inst
		}
	}
	return cfg, cfg.Validate()
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	for _, name := range c.InstrumentNames() {
		if strings.TrimSpace(c.Instruments[name].Address) == "" {
			return fmt.Errorf("config: instrument %s has no address", name)
		}
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("config: negative timeout")
	}
	switch strings.ToLower(c.Prologix.EOS) {
	case "", "crlf", "cr", "lf", "none":
	default:
		return fmt.Errorf("config: unknown GPIB terminator %q", c.Prologix.EOS)
	}
	return nil
}

// InstrumentNames returns the configured instrument names in sorted order.
func (c *Config) InstrumentNames() []string {
	names := make([]string, 0, len(c.Instruments))
	for k := range c.Instruments {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Instrument returns the connection of the named instrument.
func (c *Config) Instrument(name string) (Instrument, error) {
	inst, ok := c.Instruments[strings.ToLower(name)]
	if !ok {
		return Instrument{}, fmt.Errorf("instrument %q not configured (have %s)", name, strings.Join(c.InstrumentNames(), ", "))
	}
	if inst.Timeout == 0 {
		inst.Timeout = c.Timeout
	}
	return inst, nil
}

// Marshal renders c as YAML.
func (c *Config) Marshal() ([]byte, error) { return yaml.Marshal(c) }
