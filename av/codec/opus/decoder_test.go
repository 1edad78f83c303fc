// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package opus

import (
	"errors"
	"testing"

	"github.com/cnotch/pcapmux/media/block"
	"github.com/cnotch/pcapmux/media/filter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketSamples(t *testing.T) {
	tests := []struct {
		name   string
		packet []byte
		want   int
		err    bool
	}{
		{"silk nb 10ms", []byte{0 << 3}, 480, false},
		{"silk wb 20ms", []byte{9 << 3}, 960, false},
		{"silk 60ms", []byte{11 << 3}, 2880, false},
		{"hybrid 20ms pair", []byte{13<<3 | 1}, 1920, false},
		{"celt 2.5ms", []byte{16 << 3}, 120, false},
		{"code 3 six frames", []byte{31<<3 | 3, 6}, 5760, false},
		{"code 3 too long", []byte{11<<3 | 3, 3}, 0, true},
		{"code 3 missing count", []byte{3}, 0, true},
		{"code 3 zero frames", []byte{3, 0}, 0, true},
		{"empty", nil, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PacketSamples(tt.packet)
			if tt.err {
				assert.True(t, errors.Is(err, ErrBadPacket))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecoderDescriptor(t *testing.T) {
	fa := filter.NewFactory(nil, Decoder)
	defer fa.Close()

	dec, err := fa.CreateDecoder("OPUS")
	require.NoError(t, err)
	rate, err := dec.GetInt(filter.GetSampleRate)
	require.NoError(t, err)
	assert.Equal(t, SampleRate, rate)
	assert.NoError(t, dec.SetInt(filter.SetSampleRate, SampleRate))
	assert.True(t, errors.Is(dec.SetInt(filter.SetSampleRate, 8000), filter.ErrInvalidArg))
	require.NoError(t, dec.SetInt(filter.SetChannels, 2))
	ch, _ := dec.GetInt(filter.GetChannels)
	assert.Equal(t, 2, ch)

	// 空包在进入解码器之前被丢弃
	d := dec.Processor().(*decoder)
	_, err = d.decode(blockOf(nil))
	assert.True(t, errors.Is(err, ErrBadPacket))
}

func blockOf(p []byte) *block.Block { return block.Copy(p) }
