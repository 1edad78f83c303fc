// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mix

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/cnotch/pcapmux/av/codec"
	"github.com/cnotch/pcapmux/media/block"
	"github.com/cnotch/pcapmux/media/filter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nop struct{ filter.NopLifecycle }

func (nop) Process(*filter.Filter) {}

var (
	srcDesc = &filter.Descriptor{
		ID: filter.ParsePcapID, Name: "src", NOutputs: 1,
		New: func(*filter.Filter) (filter.Processor, error) { return nop{}, nil },
	}
	sinkDesc = &filter.Descriptor{
		ID: filter.MuxerID, Name: "sink", NInputs: 1,
		New: func(*filter.Filter) (filter.Processor, error) { return nop{}, nil },
	}
)

func pcm(samples ...int16) *block.Block {
	b := block.New(len(samples) * 2)
	var s [2]byte
	for _, v := range samples {
		binary.LittleEndian.PutUint16(s[:], uint16(v))
		b.Write(s[:])
	}
	return b
}

func samples(b *block.Block) []int16 {
	p := b.Bytes()
	out := make([]int16, len(p)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(p[i*2:]))
	}
	return out
}

func repeat(v int16, n int) []int16 {
	s := make([]int16, n)
	for i := range s {
		s[i] = v
	}
	return s
}

type rig struct {
	fa   *filter.Factory
	mix  *filter.Filter
	srcs []*filter.Filter
	out  *filter.Filter
}

func newRig(t *testing.T, inputs int, topology string) *rig {
	r := &rig{fa: filter.NewFactory(nil, AudioMixer, srcDesc, sinkDesc)}
	var err error
	r.mix, err = r.fa.Create(filter.AmixID)
	require.NoError(t, err)
	require.NoError(t, r.mix.SetString(filter.SetAmixInfo, topology))
	for i := 0; i < inputs; i++ {
		src, err := r.fa.Create(filter.ParsePcapID)
		require.NoError(t, err)
		require.NoError(t, filter.Link(src, 0, r.mix, i))
		r.srcs = append(r.srcs, src)
	}
	r.out, err = r.fa.Create(filter.MuxerID)
	require.NoError(t, err)
	require.NoError(t, filter.Link(r.mix, 0, r.out, 0))
	return r
}

func TestAmix_SumAndClip(t *testing.T) {
	r := newRig(t, 2, "inputs=2:sample_rate=8000:channels=1:sample_rate=8000:channels=1")
	defer r.fa.Close()
	require.NoError(t, r.mix.Preprocess(nil))

	const frame = 160 // 20ms@8kHz
	a := pcm(append(repeat(1000, frame-2), 30000, -30000)...)
	a.Timestamp = 40000
	b := pcm(append(repeat(-250, frame-2), 10000, -10000)...)
	r.srcs[0].Emit(0, a)
	r.mix.Run(1)
	assert.Equal(t, 0, r.out.Input(0).Len(), "waits for every input")

	r.srcs[1].Emit(0, b)
	r.mix.Run(2)
	got := r.out.Input(0).Get()
	require.NotNil(t, got)
	s := samples(got)
	require.Len(t, s, frame)
	assert.Equal(t, int16(750), s[0])
	assert.Equal(t, int16(32767), s[frame-2])
	assert.Equal(t, int16(-32768), s[frame-1])
	assert.Equal(t, uint64(40000), got.Timestamp)
	assert.Zero(t, got.Flags&block.FlagPLC)
}

func TestAmix_BacklogPadsSilence(t *testing.T) {
	r := newRig(t, 2, "inputs=2:sample_rate=8000:channels=1:sample_rate=8000:channels=1")
	defer r.fa.Close()
	require.NoError(t, r.mix.Preprocess(nil))

	r.srcs[0].Emit(0, pcm(repeat(7, 160*maxBacklog)...))
	r.mix.Run(1)
	q := r.out.Input(0)
	require.Equal(t, 1, q.Len())
	first := q.Get()
	assert.Equal(t, repeat(7, 160), samples(first))
	assert.Equal(t, block.FlagPLC, first.Flags&block.FlagPLC, "padded frames are marked")

	// 积压降到阈值以下后恢复等待
	r.mix.Run(2)
	assert.Equal(t, 0, q.Len())
}

func TestAmix_Timestamps(t *testing.T) {
	r := newRig(t, 1, "inputs=1:sample_rate=16000:channels=2")
	defer r.fa.Close()
	require.NoError(t, r.mix.Preprocess(nil))

	in := pcm(repeat(1, 320*2*3)...)
	in.Timestamp = 1000
	r.srcs[0].Emit(0, in)
	r.mix.Run(1)

	q := r.out.Input(0)
	require.Equal(t, 3, q.Len())
	for i := 0; i < 3; i++ {
		b := q.Get()
		assert.Equal(t, 320*2*2, b.Len())
		assert.Equal(t, uint64(1000+i*20000), b.Timestamp)
	}
}

func TestAmix_Configuration(t *testing.T) {
	tests := []struct {
		name     string
		topology string
		outRate  int
		setErr   bool
		disabled bool
	}{
		{"matching", "inputs=2:sample_rate=8000:channels=1:sample_rate=8000:channels=1", 8000, false, false},
		{"output defaults to first input", "inputs=1:sample_rate=8000:channels=1", 0, false, false},
		{"rate mismatch", "inputs=2:sample_rate=8000:channels=1:sample_rate=16000:channels=1", 8000, false, true},
		{"not s16", "inputs=1:sample_rate=8000:channels=1:sample_fmt=flt", 0, false, true},
		{"too many inputs", "inputs=9", 0, true, false},
		{"bad topology", "inputs=1:speed=2", 0, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fa := filter.NewFactory(nil, AudioMixer)
			defer fa.Close()
			m, err := fa.Create(filter.AmixID)
			require.NoError(t, err)

			err = m.SetString(filter.SetAmixInfo, tt.topology)
			if tt.setErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.outRate > 0 {
				require.NoError(t, m.SetInt(filter.SetOutputSampleRate, tt.outRate))
			}
			require.NoError(t, m.Preprocess(nil))
			err = state(m).err
			if tt.disabled {
				assert.True(t, errors.Is(err, ErrFormat))
				return
			}
			assert.NoError(t, err)
			fmtv, err := m.GetInt(filter.GetSampleFmt)
			require.NoError(t, err)
			assert.Equal(t, codec.SampleFmtS16, codec.SampleFormat(fmtv))
		})
	}
}
