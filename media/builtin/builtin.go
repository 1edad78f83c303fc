// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package builtin 汇总应用注册的内置滤镜。
package builtin

import (
	"github.com/cnotch/pcapmux/av/codec/g711"
	"github.com/cnotch/pcapmux/av/codec/opus"
	"github.com/cnotch/pcapmux/av/format/mpegts"
	"github.com/cnotch/pcapmux/av/format/pcap"
	"github.com/cnotch/pcapmux/av/format/rtp"
	"github.com/cnotch/pcapmux/media/filter"
	"github.com/cnotch/pcapmux/media/mix"
	"github.com/cnotch/xlog"
)

// Descriptors 内置滤镜描述符，按注册顺序排列
func Descriptors() []*filter.Descriptor {
	return []*filter.Descriptor{
		pcap.Descriptor,
		rtp.H264RegroupDescriptor,
		g711.UlawDecoder,
		g711.UlawEncoder,
		g711.AlawDecoder,
		g711.AlawEncoder,
		opus.Decoder,
		mix.AudioMixer,
		mpegts.Descriptor,
	}
}

// NewFactory 创建注册了全部内置滤镜的工厂
func NewFactory(logger *xlog.Logger) *filter.Factory {
	return filter.NewFactory(logger, Descriptors()...)
}
