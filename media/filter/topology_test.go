// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package filter

import (
	"errors"
	"testing"

	"github.com/cnotch/pcapmux/av/codec"
	"github.com/stretchr/testify/assert"
)

func TestParseAudioTopology(t *testing.T) {
	tests := []struct {
		name    string
		s       string
		want    []AudioStream
		wantErr bool
	}{
		{
			"positional",
			"inputs=2:sample_rate=8000:channels=1:sample_fmt=s16:sample_rate=16000:channels=2:sample_fmt=fltp",
			[]AudioStream{{8000, 1, codec.SampleFmtS16}, {16000, 2, codec.SampleFmtFltP}},
			false,
		},
		{
			"keys out of order",
			"sample_rate=8000:inputs=2:sample_rate=44100:channels=1",
			[]AudioStream{{8000, 1, codec.SampleFmtS16}, {44100, 0, codec.SampleFmtS16}},
			false,
		},
		{"missing inputs", "sample_rate=8000", nil, true},
		{"too many values", "inputs=1:channels=1:channels=2", nil, true},
		{"unknown key", "inputs=1:width=640", nil, true},
		{"bad number", "inputs=1:sample_rate=fast", nil, true},
		{"bad format", "inputs=1:sample_fmt=s24", nil, true},
		{"not a pair", "inputs=1:mono", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAudioTopology(tt.s)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrTopology), "err = %v", err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAudioTopology_RoundTrip(t *testing.T) {
	streams := []AudioStream{{8000, 1, codec.SampleFmtS16}, {48000, 2, codec.SampleFmtS16}}
	s := AudioTopology(streams)
	assert.Equal(t, "inputs=2:sample_rate=8000:channels=1:sample_fmt=s16:sample_rate=48000:channels=2:sample_fmt=s16", s)
	got, err := ParseAudioTopology(s)
	assert.NoError(t, err)
	assert.Equal(t, streams, got)
}

func TestParseVideoTopology(t *testing.T) {
	s := VideoTopology([]VideoStream{{640, 480, codec.PixFmtYUV420P}, {320, 240, codec.PixFmtNV12}})
	assert.Equal(t, "inputs=2:width=640:height=480:pix_fmt=yuv420p:width=320:height=240:pix_fmt=nv12", s)

	got, err := ParseVideoTopology(s)
	assert.NoError(t, err)
	assert.Equal(t, 320, got[1].Width)
	assert.Equal(t, codec.PixFmtNV12, got[1].PixFmt)

	got, err = ParseVideoTopology("inputs=1")
	assert.NoError(t, err)
	assert.Equal(t, []VideoStream{{0, 0, codec.PixFmtYUV420P}}, got)

	_, err = ParseVideoTopology("inputs=0")
	assert.Error(t, err)
}
