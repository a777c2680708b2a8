// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package transport

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ongpym/labctl"
)

func TestControllerOptions(t *testing.T) {
	tests := map[string]struct {
		res     Resource
		opts    Options
		want    []string
		without []string
	}{
		"defaults": {
			res:  Resource{Primary: 5, Secondary: -1},
			opts: Options{Timeout: DefaultTimeout},
			want: []string{"++verbose 0", "++addr 5", "++eos 0", "++read_tmo_ms 3000", "++savecfg 1"},
		},
		"short timeout and LF": {
			res:  Resource{Primary: 5, Secondary: -1},
			opts: Options{Timeout: 200 * time.Millisecond, EOS: AppendLF},
			want: []string{"++eos 2", "++read_tmo_ms 200"},
		},
		"ar488 with secondary address": {
			res:     Resource{Primary: 9, Secondary: 96},
			opts:    Options{Timeout: time.Second, AR488: true, EOS: AppendNothing},
			want:    []string{"++addr 9 96", "++read_tmo_ms 1000", "++eos 3"},
			without: []string{"++verbose 0", "++savecfg 1"},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			tc.opts.Logger = labctl.DiscardLogger()
			link := &fakeLink{in: strings.NewReader("")}
			_, err := NewController(link, tc.res.Primary, false, controllerOptions(tc.res, &tc.opts)...)
			require.NoError(t, err)
			lines := strings.Split(strings.TrimSuffix(link.out.String(), "\n"), "\n")
			for _, w := range tc.want {
				assert.Contains(t, lines, w)
			}
			for _, w := range tc.without {
				assert.NotContains(t, lines, w)
			}
		})
	}
}

func TestParseGpibTerm(t *testing.T) {
	for s, want := range map[string]GpibTerm{"": AppendCRLF, "CRLF": AppendCRLF, "cr": AppendCR, " lf ": AppendLF, "none": AppendNothing} {
		got, err := ParseGpibTerm(s)
		require.NoError(t, err, s)
		assert.Equal(t, want, got, s)
	}
	_, err := ParseGpibTerm("crcr")
	assert.Error(t, err)
	assert.Contains(t, AppendLF.String(), "LF")
}
