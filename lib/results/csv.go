// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package results provides sinks for procedure rows: CSV files, a SQLite
// store, InfluxDB points and a Redis event publisher.
package results

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ongpym/labctl/lib/procedure"
)

// CSV writes one run as a comment header block followed by comma separated
// rows. The header lists the procedure, the run id and every parameter.
type CSV struct {
	bw     *bufio.Writer
	w      *csv.Writer
	closer io.Closer
	cols   int
}

// NewCSV returns a CSV sink writing to w. If w is an io.Closer it is closed
// with the sink.
func NewCSV(w io.Writer) *CSV {
	bw := bufio.NewWriter(w)
	c := &CSV{bw: bw, w: csv.NewWriter(bw)}
	if cl, ok := w.(io.Closer); ok {
		c.closer = cl
	}
	return c
}

// CreateCSV creates a new file named after base in dir and returns a sink
// writing to it together with the chosen path.
func CreateCSV(dir, base string) (*CSV, string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", err
	}
	path, err := UniqueFilename(dir, base, ".csv")
	if err != nil {
		return nil, "", err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, "", err
	}
	return NewCSV(f), path, nil
}

// UniqueFilename returns dir/base+ext, or the first of dir/base_1+ext,
// dir/base_2+ext, ... that does not exist yet.
func UniqueFilename(dir, base, ext string) (string, error) {
	path := filepath.Join(dir, base+ext)
	for i := 1; ; i++ {
		_, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			return path, nil
		}
		if err != nil {
			return "", err
		}
		path = filepath.Join(dir, base+"_"+strconv.Itoa(i)+ext)
	}
}

// Start writes the header block and the column row.
func (c *CSV) Start(h procedure.Header) error {
	fmt.Fprintf(c.bw, "#Procedure: <%s>\n", h.Procedure)
	fmt.Fprintf(c.bw, "#Run: %s\n", h.RunID)
	fmt.Fprintf(c.bw, "#Started: %s\n", h.Started.Format(time.RFC3339))
	fmt.Fprintln(c.bw, "#Parameters:")
	for _, p := range h.Schema {
		v, ok := h.Values[p.Name]
		if !ok {
			continue
		}
		line := fmt.Sprintf("#\t%s: %s", p.Name, FormatValue(v))
		if p.Units != "" {
			line += " " + p.Units
		}
		fmt.Fprintln(c.bw, line)
	}
	fmt.Fprintln(c.bw, "#Data:")
	c.cols = len(h.Columns)
	return c.w.Write(h.Columns)
}

// Record writes one row.
func (c *CSV) Record(vals []float64) error {
	if len(vals) != c.cols {
		return fmt.Errorf("row has %d values, want %d", len(vals), c.cols)
	}
	rec := make([]string, len(vals))
	for i, v := range vals {
		rec[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return c.w.Write(rec)
}

// Close flushes buffered output and closes the underlying writer.
func (c *CSV) Close() error {
	c.w.Flush()
	err := c.w.Error()
	if ferr := c.bw.Flush(); err == nil {
		err = ferr
	}
	if c.closer != nil {
		if cerr := c.closer.Close(); err == nil {
			err = cerr
		}
		c.closer = nil
	}
	return err
}

// FormatValue renders a parameter value for headers and labels.
func FormatValue(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		return strings.TrimSpace(x)
	}
	return fmt.Sprint(v)
}
