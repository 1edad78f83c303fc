// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package rtp 把 RTP 负载重组为编码帧。
package rtp

import (
	"github.com/cnotch/pcapmux/av/codec/h264"
	"github.com/cnotch/pcapmux/media/block"
	"github.com/cnotch/pcapmux/media/filter"
)

// H264RegroupDescriptor 把 H.264 的 RTP 负载重组为 Annex-B 访问单元
var H264RegroupDescriptor = &filter.Descriptor{
	ID:       filter.H264RegroupID,
	Name:     "MSH264Regroup",
	Text:     "Regroup H.264 RTP payloads into Annex-B access units",
	Category: filter.CategoryOther,
	NInputs:  1,
	NOutputs: 1,
	New: func(*filter.Filter) (filter.Processor, error) {
		return &h264Regroup{}, nil
	},
}

type h264Regroup struct {
	filter.NopLifecycle
	frame   block.Chain // 正在组装的访问单元
	dropped uint64
}

func (rg *h264Regroup) Process(f *filter.Filter) {
	in := f.Input(0)
	if in == nil {
		return
	}
	for b := in.Get(); b != nil; b = in.Get() {
		rg.regroup(f, b)
		if b.Marker {
			rg.flush(f, b.Timestamp)
		}
	}
}

func (rg *h264Regroup) regroup(f *filter.Filter, b *block.Block) {
	payload := b.Bytes()
	if len(payload) == 0 {
		rg.drop(f, "empty payload")
		return
	}

	// +---------------+
	// |0|1|2|3|4|5|6|7|
	// +-+-+-+-+-+-+-+-+
	// |F|NRI|  Type   |
	// +---------------+
	naluType := h264.NalType(payload[0])
	switch {
	case h264.IsSingleNal(naluType):
		nal := block.New(len(h264.StartCode) + len(payload))
		nal.Write(h264.StartCode)
		nal.Write(payload)
		rg.frame.Append(nal)
	case naluType == h264.NalFuAInRtp:
		rg.fuA(f, payload)
	default:
		rg.drop(f, "nalu type %d is currently not handled", naluType)
	}
}

// fuA 处理 FU-A 分片：
//
//	+---------------+---------------+------------------------------+
//	| FU indicator  |   FU header   |          FU payload          |
//	+---------------+---------------+------------------------------+
//	FU header: |S|E|R|  Type   |
func (rg *h264Regroup) fuA(f *filter.Filter, payload []byte) {
	if len(payload) < 3 {
		rg.drop(f, "too short data for FU-A H.264 RTP packet")
		return
	}
	indicator, fuHeader := payload[0], payload[1]
	payload = payload[2:]

	size := len(payload)
	start := fuHeader&h264.FuStartBit != 0
	if start {
		size += len(h264.StartCode) + 1
	}
	frag := block.New(size)
	if start {
		frag.Write(h264.StartCode)
		frag.WriteByte(h264.FuHeader(indicator, fuHeader))
	}
	frag.Write(payload)
	rg.frame.Append(frag)
}

// flush 在 marker 包处输出完整访问单元
func (rg *h264Regroup) flush(f *filter.Filter, micros uint64) {
	if rg.frame.Empty() {
		return
	}
	au := rg.frame.Linearize()
	rg.frame.Reset()
	au.Timestamp = micros * 9 / 100 // 微秒 -> 90kHz
	au.Marker = true
	f.Flow().AddOut(int64(au.Len()))
	f.Emit(0, au)
}

func (rg *h264Regroup) drop(f *filter.Filter, format string, args ...interface{}) {
	rg.dropped++
	f.Logger().Warnf(format, args...)
}

func (rg *h264Regroup) Uninit(*filter.Filter) {
	rg.frame.Reset()
}
