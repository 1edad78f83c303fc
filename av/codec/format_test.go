// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSampleFormat(t *testing.T) {
	tests := []struct {
		name    string
		want    SampleFormat
		bytes   int
		planar  bool
		wantErr bool
	}{
		{"s16", SampleFmtS16, 2, false, false},
		{"FLTP", SampleFmtFltP, 4, true, false},
		{"u8", SampleFmtU8, 1, false, false},
		{"s24", SampleFmtNone, 0, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSampleFormat(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.bytes, got.BytesPerSample())
			assert.Equal(t, tt.planar, got.Planar())
		})
	}
}

func TestPixelFormat_Text(t *testing.T) {
	var pf PixelFormat
	require.NoError(t, pf.Set("yuv420p"))
	assert.Equal(t, PixFmtYUV420P, pf)
	text, _ := pf.MarshalText()
	assert.Equal(t, "yuv420p", string(text))
	assert.Error(t, pf.Set("rgb565"))

	for _, text := range []string{"", "none", "NONE"} {
		sf := SampleFmtS16
		require.NoError(t, sf.UnmarshalText([]byte(text)))
		assert.Equal(t, SampleFmtNone, sf)
		require.NoError(t, pf.UnmarshalText([]byte(text)))
		assert.Equal(t, PixFmtNone, pf)
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    Size
		wantErr bool
	}{
		{"1280x720", Size{1280, 720}, false},
		{"640X480", Size{640, 480}, false},
		{"x720", Size{}, true},
		{"1280", Size{}, true},
		{"-1x5", Size{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSize(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in != "640X480", got.String() == tt.in)
		})
	}

	var sz Size
	assert.NoError(t, sz.UnmarshalText(nil))
	assert.True(t, sz.IsZero())
}
