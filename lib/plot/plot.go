// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package plot renders result series to PNG files.
package plot

import (
	"fmt"
	"image/color"
	"math"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/ongpym/labctl/lib/fit"
	"github.com/ongpym/labctl/lib/procedure"
)

// Series is one set of points. Points are drawn as dots unless Line is set.
type Series struct {
	Name string
	X, Y []float64
	Line bool
}

// Figure is a single panel plot.
type Figure struct {
	Title  string
	XLabel string
	YLabel string
	// Decibel plots 10*log10(y); points with y <= 0 are dropped.
	Decibel bool
	Series  []Series
}

var (
	black = color.RGBA{A: 255}
	red   = color.RGBA{R: 220, A: 255}
	blue  = color.RGBA{B: 200, A: 255}
)

// Plot builds the gonum plot of f.
func (f Figure) Plot() (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = f.Title
	p.X.Label.Text = f.XLabel
	p.Y.Label.Text = f.YLabel
	if f.Decibel && !strings.Contains(f.YLabel, "dB") {
		p.Y.Label.Text = strings.TrimSpace(f.YLabel + " [dB]")
	}
	for i, s := range f.Series {
		xys := f.points(s)
		if len(xys) == 0 {
			continue
		}
		if s.Line {
			l, err := plotter.NewLine(xys)
			if err != nil {
				return nil, fmt.Errorf("series %q: %w", s.Name, err)
			}
			l.LineStyle.Color = red
			if i > 1 {
				l.LineStyle.Color = blue
			}
			l.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
			p.Add(l)
			if s.Name != "" {
				p.Legend.Add(s.Name, l)
			}
			continue
		}
		sc, err := plotter.NewScatter(xys)
		if err != nil {
			return nil, fmt.Errorf("series %q: %w", s.Name, err)
		}
		sc.GlyphStyle.Radius = vg.Length(1)
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		sc.GlyphStyle.Color = black
		p.Add(sc)
		if s.Name != "" {
			p.Legend.Add(s.Name, sc)
		}
	}
	return p, nil
}

func (f Figure) points(s Series) plotter.XYs {
	n := min(len(s.X), len(s.Y))
	xys := make(plotter.XYs, 0, n)
	for i := 0; i < n; i++ {
		y := s.Y[i]
		if f.Decibel {
			if y <= 0 {
				continue
			}
			y = 10 * math.Log10(y)
		}
		if math.IsNaN(y) || math.IsInf(y, 0) || math.IsNaN(s.X[i]) {
			continue
		}
		xys = append(xys, plotter.XY{X: s.X[i], Y: y})
	}
	return xys
}

// Save writes f as a PNG file.
func (f Figure) Save(path string) error {
	p, err := f.Plot()
	if err != nil {
		return err
	}
	return p.Save(8*vg.Inch, 6*vg.Inch, path)
}

// Name returns the image path belonging to a data file: the extension is
// replaced by _PLOT.png.
func Name(dataPath string) string {
	if i := strings.LastIndexByte(dataPath, '.'); i > strings.LastIndexAny(dataPath, `/\`) {
		dataPath = dataPath[:i]
	}
	return dataPath + "_PLOT.png"
}

// FitLabel describes a fit result in the legend: quality factor, width
// in pm and center in nm per line, plus the free spectral range of a pair.
func FitLabel(r fit.Result) string {
	var parts []string
	if len(r.Lines) > 1 {
		parts = append(parts, fmt.Sprintf("FSR=%.1f pm", r.FSR()*1e3))
	}
	for i, l := range r.Lines {
		suffix := ""
		if len(r.Lines) > 1 {
			suffix = fmt.Sprint(i + 1)
		}
		parts = append(parts,
			fmt.Sprintf("Q%s=%.1f", suffix, l.Q()),
			fmt.Sprintf("FWHM%s=%.1f pm", suffix, l.FWHM()*1e3),
			fmt.Sprintf("λ%s=%.2f nm", suffix, l.Center))
	}
	return strings.Join(parts, " ")
}

// Sink collects two columns of a run and saves them as a figure when the
// run ends. It is meant to be combined with a data sink through a tee.
type Sink struct {
	path   string
	xcol   string
	ycol   string
	title  string
	log    bool
	xi, yi int
	x, y   []float64
}

// NewSink returns a sink plotting column ycol against xcol into path.
func NewSink(path, xcol, ycol string, decibel bool) *Sink {
	return &Sink{path: path, xcol: xcol, ycol: ycol, log: decibel}
}

func (s *Sink) Start(h procedure.Header) error {
	s.xi, s.yi = -1, -1
	for i, c := range h.Columns {
		switch c {
		case s.xcol:
			s.xi = i
		case s.ycol:
			s.yi = i
		}
	}
	if s.xi < 0 || s.yi < 0 {
		return fmt.Errorf("plot: columns %q and %q not both in %v", s.xcol, s.ycol, h.Columns)
	}
	s.title = h.Procedure
	return nil
}

func (s *Sink) Record(vals []float64) error {
	s.x = append(s.x, vals[s.xi])
	s.y = append(s.y, vals[s.yi])
	return nil
}

// Close saves the figure if any row was recorded.
func (s *Sink) Close() error {
	if len(s.x) == 0 {
		return nil
	}
	f := Figure{
		Title:   s.title,
		XLabel:  s.xcol,
		YLabel:  s.ycol,
		Decibel: s.log,
		Series:  []Series{{X: s.x, Y: s.y}},
	}
	return f.Save(s.path)
}
