// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package mix 多路音频混音滤镜。
package mix

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/cnotch/pcapmux/av/codec"
	"github.com/cnotch/pcapmux/media/block"
	"github.com/cnotch/pcapmux/media/filter"
)

// MaxInputs 最多混音路数
const MaxInputs = 8

const (
	frameMillis = 20
	maxBacklog  = 10 // 其他输入积压超过该帧数时，缺数据的输入按静音处理
)

// ErrFormat 输入与输出格式不一致
var ErrFormat = errors.New("mix: unsupported stream format")

// AudioMixer 混音滤镜描述符
var AudioMixer = &filter.Descriptor{
	ID:       filter.AmixID,
	Name:     "MSAmix",
	Text:     "Mix several s16 audio streams into one",
	Category: filter.CategoryOther,
	NInputs:  MaxInputs,
	NOutputs: 1,
	New: func(*filter.Filter) (filter.Processor, error) {
		return &amix{out: filter.AudioStream{SampleFmt: codec.SampleFmtNone}}, nil
	},
	Methods: []filter.Method{
		{ID: filter.SetAmixInfo, Handler: setAmixInfo},
		{ID: filter.SetOutputSampleRate, Handler: func(f *filter.Filter, arg *filter.Arg) error {
			state(f).out.SampleRate = arg.Int
			return nil
		}},
		{ID: filter.SetOutputChannels, Handler: func(f *filter.Filter, arg *filter.Arg) error {
			state(f).out.Channels = arg.Int
			return nil
		}},
		{ID: filter.SetOutputSampleFmt, Handler: func(f *filter.Filter, arg *filter.Arg) error {
			state(f).out.SampleFmt = codec.SampleFormat(arg.Int)
			return nil
		}},
		{ID: filter.GetSampleRate, Handler: func(f *filter.Filter, arg *filter.Arg) error {
			arg.Int = state(f).output().SampleRate
			return nil
		}},
		{ID: filter.GetChannels, Handler: func(f *filter.Filter, arg *filter.Arg) error {
			arg.Int = state(f).output().Channels
			return nil
		}},
		{ID: filter.GetSampleFmt, Handler: func(f *filter.Filter, arg *filter.Arg) error {
			arg.Int = int(state(f).output().SampleFmt)
			return nil
		}},
	},
}

type amix struct {
	filter.NopLifecycle
	streams []filter.AudioStream
	out     filter.AudioStream
	inputs  []*block.Bufferizer
	frame   int    // 每帧字节数
	next    uint64 // 下一帧的时间戳，微秒
	started bool
	err     error
	mixed   []int32
	buf     []byte
}

func state(f *filter.Filter) *amix { return f.Processor().(*amix) }

func setAmixInfo(f *filter.Filter, arg *filter.Arg) error {
	streams, err := filter.ParseAudioTopology(arg.Str)
	if err != nil {
		return err
	}
	if len(streams) > MaxInputs {
		return fmt.Errorf("%w: %d inputs, at most %d", filter.ErrInvalidArg, len(streams), MaxInputs)
	}
	state(f).streams = streams
	return nil
}

// output 未设置的输出参数取第一路输入
func (m *amix) output() filter.AudioStream {
	out := m.out
	if len(m.streams) > 0 {
		in := m.streams[0]
		if out.SampleRate == 0 {
			out.SampleRate = in.SampleRate
		}
		if out.Channels == 0 {
			out.Channels = in.Channels
		}
	}
	if out.SampleFmt == codec.SampleFmtNone {
		out.SampleFmt = codec.SampleFmtS16
	}
	return out
}

func (m *amix) validate() error {
	if len(m.streams) == 0 {
		return fmt.Errorf("%w: topology not set", ErrFormat)
	}
	out := m.output()
	if out.SampleFmt != codec.SampleFmtS16 {
		return fmt.Errorf("%w: output %s, only s16 is mixed", ErrFormat, out.SampleFmt)
	}
	for i, s := range m.streams {
		if s.SampleFmt != codec.SampleFmtS16 || s.SampleRate != out.SampleRate || s.Channels != out.Channels {
			return fmt.Errorf("%w: input %d is %dHz/%dch/%s, output is %dHz/%dch/s16",
				ErrFormat, i, s.SampleRate, s.Channels, s.SampleFmt, out.SampleRate, out.Channels)
		}
	}
	if out.SampleRate <= 0 || out.Channels <= 0 {
		return fmt.Errorf("%w: output %dHz/%dch", ErrFormat, out.SampleRate, out.Channels)
	}
	return nil
}

func (m *amix) Preprocess(f *filter.Filter) {
	m.err = m.validate()
	if m.err != nil {
		f.Logger().Errorf("amix disabled: %s", m.err.Error())
		return
	}
	out := m.output()
	m.frame = out.SampleRate * frameMillis / 1000 * out.Channels * 2
	m.inputs = make([]*block.Bufferizer, len(m.streams))
	for i := range m.inputs {
		m.inputs[i] = block.NewBufferizer()
	}
	m.mixed = make([]int32, m.frame/2)
	m.buf = make([]byte, m.frame)
	m.started = false
	f.Logger().Infof("amix %d inputs, %dHz/%dch, %d bytes per frame",
		len(m.streams), out.SampleRate, out.Channels, m.frame)
}

func (m *amix) Process(f *filter.Filter) {
	if m.err != nil {
		for i := 0; i < f.NInputs(); i++ {
			if q := f.Input(i); q != nil {
				q.Flush()
			}
		}
		return
	}

	for i, bz := range m.inputs {
		if q := f.Input(i); q != nil {
			if !m.started && !q.Empty() {
				m.started = true
				m.next = q.PeekFirst().Timestamp
			}
			bz.PutQueue(q)
		}
	}

	for m.ready() {
		out := m.mix()
		f.Flow().AddOut(int64(out.Len()))
		f.Emit(0, out)
	}
}

// ready 所有输入都有一帧，或者积压过多需要补静音
func (m *amix) ready() bool {
	all, backlog := true, false
	for _, bz := range m.inputs {
		n := bz.Avail()
		if n < m.frame {
			all = false
		}
		if n >= m.frame*maxBacklog {
			backlog = true
		}
	}
	return all || backlog
}

func (m *amix) mix() *block.Block {
	for i := range m.mixed {
		m.mixed[i] = 0
	}
	var flags block.Flags
	for _, bz := range m.inputs {
		n := bz.Avail()
		if n > m.frame {
			n = m.frame
		} else if n < m.frame {
			flags |= block.FlagPLC
		}
		n &^= 1
		if n == 0 {
			continue
		}
		bz.ReadFull(m.buf[:n])
		for j := 0; j < n; j += 2 {
			m.mixed[j/2] += int32(int16(binary.LittleEndian.Uint16(m.buf[j:])))
		}
	}

	out := block.New(m.frame)
	var s [2]byte
	for _, v := range m.mixed {
		binary.LittleEndian.PutUint16(s[:], uint16(clip(v)))
		out.Write(s[:])
	}
	out.Timestamp = m.next
	out.Flags = flags
	m.next += frameMillis * 1000
	return out
}

func clip(v int32) int16 {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	default:
		return int16(v)
	}
}

func (m *amix) Postprocess(*filter.Filter) {
	for _, bz := range m.inputs {
		bz.Flush()
	}
}
