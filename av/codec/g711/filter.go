// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package g711

import (
	"fmt"

	"github.com/cnotch/pcapmux/av/codec"
	"github.com/cnotch/pcapmux/media/block"
	"github.com/cnotch/pcapmux/media/filter"
)

// 格式标签
const (
	TagPCMU = "pcmu"
	TagPCMA = "pcma"
)

// 默认参数 (RFC 3551)
const (
	DefaultSampleRate = 8000
	DefaultChannels   = 1
)

// 编解码滤镜描述符
var (
	UlawDecoder = newDescriptor(filter.G711DecID, "MSUlawDec", TagPCMU, filter.CategoryDecoder, ulaw)
	UlawEncoder = newDescriptor(filter.G711EncID, "MSUlawEnc", TagPCMU, filter.CategoryEncoder, ulaw)
	AlawDecoder = newDescriptor(filter.G711ADecID, "MSAlawDec", TagPCMA, filter.CategoryDecoder, alaw)
	AlawEncoder = newDescriptor(filter.G711AEncID, "MSAlawEnc", TagPCMA, filter.CategoryEncoder, alaw)
)

func newDescriptor(id filter.ID, name, tag string, cat filter.Category, l companding) *filter.Descriptor {
	return &filter.Descriptor{
		ID:        id,
		Name:      name,
		Text:      fmt.Sprintf("G.711 %s %s", tag, cat),
		Category:  cat,
		FormatTag: tag,
		NInputs:   1,
		NOutputs:  1,
		Flags:     filter.FlagEnabled,
		Methods: filter.AudioMethods(func(f *filter.Filter) *filter.AudioFormat {
			return &f.Processor().(*transcoder).format
		}),
		New: func(*filter.Filter) (filter.Processor, error) {
			return &transcoder{
				law:      l,
				encoding: cat == filter.CategoryEncoder,
				format: filter.AudioFormat{
					SampleRate: DefaultSampleRate,
					Channels:   DefaultChannels,
					SampleFmt:  codec.SampleFmtS16,
				},
				bz: block.NewBufferizer(),
			}, nil
		},
	}
}

// transcoder 在压缩字节和 s16le 之间逐采样转换
type transcoder struct {
	filter.NopLifecycle
	law      companding
	encoding bool
	format   filter.AudioFormat
	bz       *block.Bufferizer // 编码时凑齐整采样
}

func (t *transcoder) Preprocess(f *filter.Filter) {
	if t.format.SampleFmt != codec.SampleFmtS16 {
		f.Logger().Warnf("g711 only handles s16 samples, got %s", t.format.SampleFmt)
	}
}

func (t *transcoder) Process(f *filter.Filter) {
	in := f.Input(0)
	if in == nil {
		return
	}
	for b := in.Get(); b != nil; b = in.Get() {
		f.Flow().AddIn(int64(b.Len()))
		var out *block.Block
		if t.encoding {
			out = t.encodeBlock(b)
		} else {
			out = t.decodeBlock(b)
		}
		if out == nil {
			continue
		}
		f.Flow().AddOut(int64(out.Len()))
		f.Emit(0, out)
	}
}

func (t *transcoder) decodeBlock(b *block.Block) *block.Block {
	out := block.From(t.law.decode(b.Bytes()))
	out.Meta = b.Meta
	return out
}

func (t *transcoder) encodeBlock(b *block.Block) *block.Block {
	t.bz.Put(b)
	n := t.bz.Avail() &^ 1
	if n == 0 {
		return nil
	}
	pcm := make([]byte, n)
	t.bz.ReadFull(pcm)
	out := block.From(t.law.encode(pcm))
	out.Meta = t.bz.Meta()
	return out
}

func (t *transcoder) Postprocess(*filter.Filter) {
	t.bz.Flush()
}
