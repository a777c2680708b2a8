// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package fit_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/ongpym/labctl/lib/fit"
)

func transmission(lines ...fit.Lorentzian) (x, y []float64) {
	x = floats.Span(make([]float64, 401), 1554, 1556)
	model := fit.Result{Lines: lines, Slope: 0.001, Intercept: 0.05 - 0.001*1555}
	return x, model.Curve(x)
}

func dip(center, sigma, depth float64) fit.Lorentzian {
	return fit.Lorentzian{Amplitude: -depth * math.Pi * sigma, Center: center, Sigma: sigma}
}

func TestSingleDip(t *testing.T) {
	x, y := transmission(dip(1555.1, 0.02, 0.04))
	res, err := fit.Dips(x, y, 1)
	require.NoError(t, err)
	require.Len(t, res.Lines, 1)

	l := res.Lines[0]
	assert.InDelta(t, 1555.1, l.Center, 1e-3)
	assert.InDelta(t, 0.04, l.FWHM(), 0.004)
	assert.InDelta(t, 1555.1/0.04, l.Q(), 0.1*1555.1/0.04)
	assert.InDelta(t, 0.001, res.Slope, 2e-4)
	assert.Zero(t, res.FSR())

	fitted := res.Curve(x)
	for i := range y {
		assert.InDelta(t, y[i], fitted[i], 2e-3)
	}
}

func TestDoubleDip(t *testing.T) {
	x, y := transmission(dip(1555.4, 0.015, 0.03), dip(1554.6, 0.02, 0.035))
	res, err := fit.Dips(x, y, 2)
	require.NoError(t, err)
	require.Len(t, res.Lines, 2)
	assert.InDelta(t, 1554.6, res.Lines[0].Center, 2e-3)
	assert.InDelta(t, 1555.4, res.Lines[1].Center, 2e-3)
	assert.InDelta(t, 0.8, res.FSR(), 4e-3)
}

func TestDipsRejects(t *testing.T) {
	_, err := fit.Dips([]float64{1, 2}, []float64{1, 2}, 1)
	assert.ErrorIs(t, err, fit.ErrNoData)
	_, err = fit.Dips([]float64{1, 2, 3}, []float64{1}, 1)
	assert.Error(t, err)
	_, err = fit.Dips(nil, nil, 3)
	assert.Error(t, err)
	x := []float64{1, 2, 3, 4, 5, 6}
	_, err = fit.Dips(x, []float64{1, 1, 1, 1, 1, 1}, 1)
	assert.Error(t, err)
}

func TestWindow(t *testing.T) {
	xw, yw := fit.Window([]float64{1, 2, 3, 4}, []float64{10, 20, 30, 40}, 2, 3)
	assert.Equal(t, []float64{2, 3}, xw)
	assert.Equal(t, []float64{20, 30}, yw)
}
