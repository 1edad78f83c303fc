// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package opus Opus 解码滤镜。
package opus

import (
	"errors"
	"fmt"

	"github.com/cnotch/pcapmux/av/codec"
	"github.com/cnotch/pcapmux/media/block"
	"github.com/cnotch/pcapmux/media/filter"
	"github.com/pion/opus"
)

// TagOpus 格式标签
const TagOpus = "opus"

// SampleRate 解码输出的采样率
const SampleRate = 48000

const maxPacketDuration = 120 // ms (RFC 6716 3.2.5)

// ErrBadPacket 无法解析的 Opus 包
var ErrBadPacket = errors.New("opus: malformed packet")

// Decoder 解码滤镜描述符
var Decoder = &filter.Descriptor{
	ID:        filter.OpusDecID,
	Name:      "MSOpusDec",
	Text:      "Opus decoder",
	Category:  filter.CategoryDecoder,
	FormatTag: TagOpus,
	NInputs:   1,
	NOutputs:  1,
	Flags:     filter.FlagEnabled,
	Methods: append([]filter.Method{
		{ID: filter.SetSampleRate, Handler: setSampleRate},
	}, filter.AudioMethods(func(f *filter.Filter) *filter.AudioFormat {
		return &f.Processor().(*decoder).format
	})...),
	New: func(*filter.Filter) (filter.Processor, error) {
		return &decoder{
			dec: opus.NewDecoder(),
			format: filter.AudioFormat{
				SampleRate: SampleRate,
				Channels:   1,
				SampleFmt:  codec.SampleFmtS16,
			},
			pcm: make([]byte, SampleRate/1000*maxPacketDuration*2*2),
		}, nil
	},
}

// setSampleRate 解码输出固定为 48kHz
func setSampleRate(f *filter.Filter, arg *filter.Arg) error {
	if arg.Int != SampleRate {
		return fmt.Errorf("%w: opus decodes at %d Hz, not %d", filter.ErrInvalidArg, SampleRate, arg.Int)
	}
	return nil
}

type decoder struct {
	filter.NopLifecycle
	dec    opus.Decoder
	format filter.AudioFormat
	pcm    []byte
	errs   uint64
}

func (d *decoder) Process(f *filter.Filter) {
	in := f.Input(0)
	if in == nil {
		return
	}
	for b := in.Get(); b != nil; b = in.Get() {
		out, err := d.decode(b)
		if err != nil {
			d.errs++
			if d.errs == 1 || d.errs%100 == 0 {
				f.Logger().Warnf("opus decode error (%d total): %s", d.errs, err.Error())
			}
			continue
		}
		f.Flow().AddIn(int64(b.Len()))
		f.Flow().AddOut(int64(out.Len()))
		f.Emit(0, out)
	}
}

func (d *decoder) decode(b *block.Block) (*block.Block, error) {
	samples, err := PacketSamples(b.Bytes())
	if err != nil {
		return nil, err
	}
	_, stereo, err := d.dec.Decode(b.Bytes(), d.pcm)
	if err != nil {
		return nil, err
	}
	channels := 1
	if stereo {
		channels = 2
	}
	if channels != d.format.Channels {
		d.format.Channels = channels
	}

	n := samples * channels * 2
	if n > len(d.pcm) {
		n = len(d.pcm)
	}
	out := block.Copy(d.pcm[:n])
	out.Meta = b.Meta
	return out, nil
}

var frameDurations = [32]int{ // 单帧时长，单位 1/10 ms
	100, 200, 400, 600, 100, 200, 400, 600, 100, 200, 400, 600, // SILK
	100, 200, 100, 200, // Hybrid
	25, 50, 100, 200, 25, 50, 100, 200, 25, 50, 100, 200, 25, 50, 100, 200, // CELT
}

// PacketSamples 根据 TOC 计算包中每声道 48kHz 采样数
func PacketSamples(packet []byte) (int, error) {
	if len(packet) == 0 {
		return 0, fmt.Errorf("%w: empty", ErrBadPacket)
	}
	toc := packet[0]
	frames := 1
	switch toc & 0x03 {
	case 1, 2:
		frames = 2
	case 3:
		if len(packet) < 2 {
			return 0, fmt.Errorf("%w: missing frame count", ErrBadPacket)
		}
		frames = int(packet[1] & 0x3f)
		if frames == 0 {
			return 0, fmt.Errorf("%w: zero frames", ErrBadPacket)
		}
	}
	duration := frameDurations[toc>>3] * frames
	if duration > maxPacketDuration*10 {
		return 0, fmt.Errorf("%w: %d frames exceed 120ms", ErrBadPacket, frames)
	}
	return duration * SampleRate / 10000, nil
}
