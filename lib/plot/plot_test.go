// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package plot_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ongpym/labctl/lib/fit"
	"github.com/ongpym/labctl/lib/plot"
	"github.com/ongpym/labctl/lib/procedure"
)

func TestName(t *testing.T) {
	assert.Equal(t, "data/run_1_PLOT.png", plot.Name("data/run_1.csv"))
	assert.Equal(t, "my.dir/run_PLOT.png", plot.Name("my.dir/run"))
}

func TestFitLabel(t *testing.T) {
	single := fit.Result{Lines: []fit.Lorentzian{{Center: 1555, Sigma: 0.01}}}
	assert.Equal(t, "Q=77750.0 FWHM=20.0 pm λ=1555.00 nm", plot.FitLabel(single))

	double := fit.Result{Lines: []fit.Lorentzian{{Center: 1554.6, Sigma: 0.01}, {Center: 1555.4, Sigma: 0.02}}}
	assert.Contains(t, plot.FitLabel(double), "FSR=800.0 pm")
	assert.Contains(t, plot.FitLabel(double), "FWHM2=40.0 pm")
}

func TestFigureSkipsInvalidPoints(t *testing.T) {
	f := plot.Figure{
		Decibel: true,
		Series: []plot.Series{
			{Name: "data", X: []float64{1, 2, 3, 4}, Y: []float64{1e-3, 0, -1, math.NaN()}},
			{Name: "fit", X: []float64{1, 2}, Y: []float64{1e-3, 2e-3}, Line: true},
		},
	}
	p, err := f.Plot()
	require.NoError(t, err)
	assert.Contains(t, p.Y.Label.Text, "dB")
}

func TestSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sweep_PLOT.png")
	s := plot.NewSink(path, "Wavelength [nm]", "Power", false)
	require.NoError(t, s.Start(procedure.Header{Procedure: "swept-transmission", Columns: []string{"Wavelength [nm]", "Power"}}))
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Record([]float64{1550 + float64(i)/10, -20 + math.Sin(float64(i))}))
	}
	require.NoError(t, s.Close())
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	bad := plot.NewSink(path, "x", "y", false)
	assert.Error(t, bad.Start(procedure.Header{Columns: []string{"x"}}))
}
