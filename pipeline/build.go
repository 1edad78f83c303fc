// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package pipeline 根据配置构建 pcap 到 MPEG-TS 的滤镜图，并负责运行和拆除。
package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cnotch/pcapmux/av/codec"
	"github.com/cnotch/pcapmux/av/format/mpegts"
	"github.com/cnotch/pcapmux/av/format/pcap"
	"github.com/cnotch/pcapmux/av/format/sdp"
	"github.com/cnotch/pcapmux/config"
	"github.com/cnotch/pcapmux/media/filter"
	"github.com/cnotch/pcapmux/media/mix"
	"github.com/cnotch/pcapmux/media/ticker"
	"github.com/cnotch/xlog"
)

// 构建错误
var (
	ErrNoInput  = errors.New("pipeline: no input")
	ErrResample = errors.New("pipeline: resampling is not supported")
	ErrCodec    = errors.New("pipeline: audio format is not demultiplexed from captures")
)

// Config 滤镜图配置，Inputs[0] 为主输入，只有它的视频被输出
type Config struct {
	Inputs []config.InputConfig
	Output config.OutputConfig
	Pacer  ticker.Pacer
}

// format 音频格式
type format struct {
	codec      string
	sampleRate int
	channels   int
}

func (c *Config) output() format {
	in := c.Inputs[0]
	out := format{c.Output.Codec, c.Output.SampleRate, c.Output.Channels}
	if out.codec == "" {
		out.codec = in.Codec
	}
	if out.sampleRate == 0 {
		out.sampleRate = in.SampleRate
	}
	if out.channels == 0 {
		out.channels = in.Channels
	}
	return out
}

// needTranscoding 多路输入或输出格式与主输入不同时需要解码再编码
func (c *Config) needTranscoding(out format) bool {
	in := c.Inputs[0]
	return len(c.Inputs) > 1 ||
		!strings.EqualFold(out.codec, in.Codec) ||
		out.sampleRate != in.SampleRate ||
		out.channels != in.Channels
}

// probeInput 用会话描述补全输入的音频参数
func probeInput(in config.InputConfig) (config.InputConfig, error) {
	if in.SDP == "" {
		return in, nil
	}
	info, err := sdp.ProbeFile(in.SDP)
	if err != nil {
		return in, fmt.Errorf("probe %s: %w", in.SDP, err)
	}
	if a := info.Audio; a != nil {
		in.Codec = a.Tag
		if a.SampleRate > 0 {
			in.SampleRate = a.SampleRate
		}
		if a.Channels > 0 {
			in.Channels = a.Channels
		}
	}
	return in, nil
}

// Build 创建、配置并连接滤镜，然后按拓扑序挂接到新的调度器。
// 任何一步失败都会拆除已创建的滤镜。
func Build(fa *filter.Factory, cfg Config, logger *xlog.Logger) (g *Graph, err error) {
	if len(cfg.Inputs) == 0 {
		return nil, ErrNoInput
	}
	if len(cfg.Inputs) > mix.MaxInputs {
		return nil, fmt.Errorf("%w: %d inputs, at most %d", filter.ErrInvalidArg, len(cfg.Inputs), mix.MaxInputs)
	}
	if logger == nil {
		logger = xlog.L()
	}

	inputs := make([]config.InputConfig, len(cfg.Inputs))
	for i, in := range cfg.Inputs {
		if inputs[i], err = probeInput(in); err != nil {
			return nil, err
		}
		if !pcap.CarriesAudio(inputs[i].Codec) {
			return nil, fmt.Errorf("%w: input %d is %q, captures carry pcmu (payload type %d) or mpa (payload type %d)",
				ErrCodec, i, inputs[i].Codec, pcap.PayloadTypePCMU, pcap.PayloadTypeMPA)
		}
	}
	cfg.Inputs = inputs

	g = &Graph{factory: fa, logger: logger}
	defer func() {
		if err != nil {
			g.teardown()
			g = nil
		}
	}()

	b := builder{g: g, fa: fa, cfg: &cfg}
	if err = b.build(); err != nil {
		return
	}

	pacer := cfg.Pacer
	if pacer == nil {
		pacer = ticker.FixedInterval(ticker.DefaultInterval)
	}
	// 监听必须在挂接之前注册，挂接后源可能立即结束
	g.watchSources()
	g.ticker = ticker.New(ticker.WithName("pipeline"), ticker.WithPacer(pacer), ticker.WithLogger(logger))
	if err = g.ticker.Attach(g.filters...); err != nil {
		return
	}

	out := b.out
	logger.Infof("pipeline built: %d input(s), audio %s/%dHz/%dch, transcoding=%t mixing=%t",
		len(cfg.Inputs), out.codec, out.sampleRate, out.channels, b.transcoding, b.mixing)
	return g, nil
}

type builder struct {
	g   *Graph
	fa  *filter.Factory
	cfg *Config

	out         format
	transcoding bool
	mixing      bool

	decoders []*filter.Filter
	mixer    *filter.Filter
	encoder  *filter.Filter
	regroup  *filter.Filter
}

func (b *builder) build() error {
	b.out = b.cfg.output()
	b.transcoding = b.cfg.needTranscoding(b.out)
	b.mixing = len(b.cfg.Inputs) > 1

	for _, in := range b.cfg.Inputs {
		src, err := b.source(in)
		if err != nil {
			return err
		}
		b.g.sources = append(b.g.sources, src)
	}

	if b.transcoding {
		if err := b.transcoders(); err != nil {
			return err
		}
	}

	regroup, err := b.g.create(b.fa, filter.H264RegroupID)
	if err != nil {
		return err
	}
	b.regroup = regroup

	if err := b.muxer(); err != nil {
		return err
	}
	if err := b.link(); err != nil {
		return err
	}

	// 拓扑序：源、视频重组、解码、混音、编码、复用
	g := b.g
	g.filters = append(g.filters, g.sources...)
	g.filters = append(g.filters, b.regroup)
	g.filters = append(g.filters, b.decoders...)
	if b.mixer != nil {
		g.filters = append(g.filters, b.mixer)
	}
	if b.encoder != nil {
		g.filters = append(g.filters, b.encoder)
	}
	g.filters = append(g.filters, g.muxer)
	return nil
}

func (b *builder) source(in config.InputConfig) (*filter.Filter, error) {
	src, err := b.g.create(b.fa, filter.ParsePcapID)
	if err != nil {
		return nil, err
	}
	if err := src.SetString(filter.SetFileName, in.File); err != nil {
		return nil, err
	}
	if in.SrcAddr != "" {
		if err := src.SetString(filter.SetSrcAddr, in.SrcAddr); err != nil {
			return nil, fmt.Errorf("srcaddr %s: %w", in.SrcAddr, err)
		}
	}
	if in.DstAddr != "" {
		if err := src.SetString(filter.SetDestAddr, in.DstAddr); err != nil {
			return nil, fmt.Errorf("dstaddr %s: %w", in.DstAddr, err)
		}
	}
	return src, nil
}

// transcoders 每路输入一个解码器，可选的混音器，以及一个编码器
func (b *builder) transcoders() error {
	streams := make([]filter.AudioStream, 0, len(b.cfg.Inputs))
	for i, in := range b.cfg.Inputs {
		dec, err := b.g.createDecoder(b.fa, in.Codec)
		if err != nil {
			return err
		}
		if err := dec.SetInt(filter.SetSampleRate, in.SampleRate); err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
		if err := dec.SetInt(filter.SetChannels, in.Channels); err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
		s, err := decodedStream(dec)
		if err != nil {
			return err
		}
		if s.SampleRate != b.out.sampleRate || s.Channels != b.out.channels {
			return fmt.Errorf("%w: input %d decodes to %dHz/%dch, output is %dHz/%dch",
				ErrResample, i, s.SampleRate, s.Channels, b.out.sampleRate, b.out.channels)
		}
		b.decoders = append(b.decoders, dec)
		streams = append(streams, s)
	}

	if b.mixing {
		m, err := b.g.create(b.fa, filter.AmixID)
		if err != nil {
			return err
		}
		if err := m.SetString(filter.SetAmixInfo, filter.AudioTopology(streams)); err != nil {
			return err
		}
		if err := m.SetInt(filter.SetOutputSampleRate, b.out.sampleRate); err != nil {
			return err
		}
		if err := m.SetInt(filter.SetOutputChannels, b.out.channels); err != nil {
			return err
		}
		if err := m.SetInt(filter.SetOutputSampleFmt, int(codec.SampleFmtS16)); err != nil {
			return err
		}
		b.mixer = m
	}

	enc, err := b.g.createEncoder(b.fa, b.out.codec)
	if err != nil {
		return err
	}
	if err := enc.SetInt(filter.SetSampleRate, b.out.sampleRate); err != nil {
		return err
	}
	if err := enc.SetInt(filter.SetChannels, b.out.channels); err != nil {
		return err
	}
	b.encoder = enc
	return nil
}

// decodedStream 解码器输出的 PCM 格式
func decodedStream(dec *filter.Filter) (s filter.AudioStream, err error) {
	if s.SampleRate, err = dec.GetInt(filter.GetSampleRate); err != nil {
		return
	}
	if s.Channels, err = dec.GetInt(filter.GetChannels); err != nil {
		return
	}
	sf, err := dec.GetInt(filter.GetSampleFmt)
	if err != nil {
		return
	}
	s.SampleFmt = codec.SampleFormat(sf)
	return
}

func (b *builder) muxer() error {
	mux, err := b.g.create(b.fa, filter.MuxerID)
	if err != nil {
		return err
	}
	b.g.muxer = mux

	in := b.cfg.Inputs[0]
	if err := mux.SetString(filter.SetFileName, b.cfg.Output.File); err != nil {
		return err
	}
	if !in.Size.IsZero() {
		if err := mux.SetInt(filter.SetWidth, in.Size.Width); err != nil {
			return err
		}
		if err := mux.SetInt(filter.SetHeight, in.Size.Height); err != nil {
			return err
		}
	}
	if err := mux.SetInt(filter.SetSampleRate, b.out.sampleRate); err != nil {
		return err
	}
	if err := mux.SetInt(filter.SetChannels, b.out.channels); err != nil {
		return err
	}
	if err := mux.SetInt(filter.SetSampleFmt, int(codec.SampleFmtS16)); err != nil {
		return err
	}
	return mux.SetString(filter.SetMimeType, b.out.codec)
}

// link 音频链：源 → [解码 → (混音) → 编码] → 复用 0；视频链：主源 → 重组 → 复用 1
func (b *builder) link() error {
	g := b.g
	var h filter.ConnectionHelper

	switch {
	case !b.transcoding:
		h.Start()
		if err := g.link(&h, g.sources[0], -1, pcap.AudioPin); err != nil {
			return err
		}
		if err := g.link(&h, g.muxer, mpegts.AudioPin, -1); err != nil {
			return err
		}
	case b.mixing:
		for i, src := range g.sources {
			h.Start()
			if err := g.link(&h, src, -1, pcap.AudioPin); err != nil {
				return err
			}
			if err := g.link(&h, b.decoders[i], 0, 0); err != nil {
				return err
			}
			if err := g.link(&h, b.mixer, i, -1); err != nil {
				return err
			}
		}
		h.Start()
		if err := g.link(&h, b.mixer, -1, 0); err != nil {
			return err
		}
		if err := g.link(&h, b.encoder, 0, 0); err != nil {
			return err
		}
		if err := g.link(&h, g.muxer, mpegts.AudioPin, -1); err != nil {
			return err
		}
	default:
		h.Start()
		if err := g.link(&h, g.sources[0], -1, pcap.AudioPin); err != nil {
			return err
		}
		if err := g.link(&h, b.decoders[0], 0, 0); err != nil {
			return err
		}
		if err := g.link(&h, b.encoder, 0, 0); err != nil {
			return err
		}
		if err := g.link(&h, g.muxer, mpegts.AudioPin, -1); err != nil {
			return err
		}
	}

	h.Start()
	if err := g.link(&h, g.sources[0], -1, pcap.VideoPin); err != nil {
		return err
	}
	if err := g.link(&h, b.regroup, 0, 0); err != nil {
		return err
	}
	return g.link(&h, g.muxer, mpegts.VideoPin, -1)
}
