// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package fit fits transmission dips with Lorentzian lines on a linear
// background.
package fit

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// Lorentzian is amplitude/pi * sigma / ((x-center)^2 + sigma^2). A dip has
// a negative amplitude. Sigma is the half width at half maximum.
type Lorentzian struct {
	Amplitude float64
	Center    float64
	Sigma     float64
}

// At evaluates the line at x.
func (l Lorentzian) At(x float64) float64 {
	d := x - l.Center
	return l.Amplitude / math.Pi * l.Sigma / (d*d + l.Sigma*l.Sigma)
}

// FWHM is the full width at half maximum.
func (l Lorentzian) FWHM() float64 { return 2 * math.Abs(l.Sigma) }

// Q is the quality factor center/FWHM.
func (l Lorentzian) Q() float64 { return l.Center / l.FWHM() }

// Result is a fitted model: one or more lines on slope*x + intercept.
// Lines are ordered by center.
type Result struct {
	Lines     []Lorentzian
	Slope     float64
	Intercept float64
}

// At evaluates the model at x.
func (r Result) At(x float64) float64 {
	y := r.Slope*x + r.Intercept
	for _, l := range r.Lines {
		y += l.At(x)
	}
	return y
}

// Curve evaluates the model at every x.
func (r Result) Curve(x []float64) []float64 {
	y := make([]float64, len(x))
	for i, v := range x {
		y[i] = r.At(v)
	}
	return y
}

// FSR is the spacing of the first two lines, or 0 for a single line.
func (r Result) FSR() float64 {
	if len(r.Lines) < 2 {
		return 0
	}
	return r.Lines[1].Center - r.Lines[0].Center
}

// ErrNoData is returned when there are too few points to fit.
var ErrNoData = errors.New("fit: not enough points")

// Window returns the points with lo <= x <= hi.
func Window(x, y []float64, lo, hi float64) (xw, yw []float64) {
	for i, v := range x {
		if v >= lo && v <= hi && i < len(y) {
			xw = append(xw, v)
			yw = append(yw, y[i])
		}
	}
	return xw, yw
}

// Dips fits n (1 or 2) Lorentzian dips plus a linear background to the
// points x, y.
func Dips(x, y []float64, n int) (Result, error) {
	if n < 1 || n > 2 {
		return Result{}, fmt.Errorf("fit: %d lines not supported", n)
	}
	if len(x) != len(y) {
		return Result{}, fmt.Errorf("fit: %d x values for %d y values", len(x), len(y))
	}
	if len(x) < 3*n+2 {
		return Result{}, ErrNoData
	}

	// Work on x and y scaled to order one.
	xm, xs := stat.MeanStdDev(x, nil)
	ym, ys := stat.MeanStdDev(y, nil)
	if xs == 0 || ys == 0 {
		return Result{}, fmt.Errorf("fit: flat data")
	}
	xn := make([]float64, len(x))
	yn := make([]float64, len(y))
	for i := range x {
		xn[i] = (x[i] - xm) / xs
		yn[i] = (y[i] - ym) / ys
	}

	p0 := guess(xn, yn, n)
	model := func(p []float64, x float64) float64 {
		v := p[0]*x + p[1]
		for k := 0; k < n; k++ {
			a, c, s := p[2+3*k], p[3+3*k], p[4+3*k]
			d := x - c
			v += a / math.Pi * s / (d*d + s*s)
		}
		return v
	}
	problem := optimize.Problem{
		Func: func(p []float64) float64 {
			var sum float64
			for i, x := range xn {
				r := model(p, x) - yn[i]
				sum += r * r
			}
			return sum
		},
	}
	settings := &optimize.Settings{FuncEvaluations: 20000}

	p := p0
	for pass := 0; pass < 3; pass++ {
		res, err := optimize.Minimize(problem, p, settings, &optimize.NelderMead{})
		if res == nil {
			return Result{}, fmt.Errorf("fit: %w", err)
		}
		if math.IsNaN(res.F) {
			return Result{}, fmt.Errorf("fit: diverged")
		}
		p = res.X
	}

	out := Result{Slope: ys * p[0] / xs}
	out.Intercept = ym + ys*p[1] - out.Slope*xm
	for k := 0; k < n; k++ {
		out.Lines = append(out.Lines, Lorentzian{
			Amplitude: ys * xs * p[2+3*k],
			Center:    xm + xs*p[3+3*k],
			Sigma:     xs * math.Abs(p[4+3*k]),
		})
	}
	if n == 2 && out.Lines[0].Center > out.Lines[1].Center {
		out.Lines[0], out.Lines[1] = out.Lines[1], out.Lines[0]
	}
	return out, nil
}

// guess returns starting parameters: a background through the outer fifth
// of the points on each side, then for every dip its deepest point, its
// half width at half depth and the matching amplitude.
func guess(x, y []float64, n int) []float64 {
	edge := max(len(x)/5, 2)
	ex := append(append([]float64{}, x[:edge]...), x[len(x)-edge:]...)
	ey := append(append([]float64{}, y[:edge]...), y[len(y)-edge:]...)
	intercept, slope := stat.LinearRegression(ex, ey, nil, false)

	resid := make([]float64, len(y))
	for i := range y {
		resid[i] = y[i] - (slope*x[i] + intercept)
	}
	p := []float64{slope, intercept}
	for k := 0; k < n; k++ {
		i := floats.MinIdx(resid)
		depth := resid[i]
		lo, hi := i, i
		for lo > 0 && resid[lo] < depth/2 {
			lo--
		}
		for hi < len(resid)-1 && resid[hi] < depth/2 {
			hi++
		}
		sigma := math.Max(math.Abs(x[hi]-x[lo])/2, math.Abs(x[1]-x[0]))
		amp := depth * math.Pi * sigma
		p = append(p, amp, x[i], sigma)

		// Remove this dip before looking for the next one.
		l := Lorentzian{Amplitude: amp, Center: x[i], Sigma: sigma}
		for j := range resid {
			resid[j] -= l.At(x[j])
			if math.Abs(x[j]-x[i]) < 3*sigma {
				resid[j] = 0
			}
		}
	}
	return p
}
