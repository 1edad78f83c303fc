// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"encoding/json"
	"flag"
	"fmt"

	"github.com/cnotch/pcapmux/av/codec"
)

// InputConfig 一路抓包输入
type InputConfig struct {
	File       string             `json:"file"`              // pcap 文件
	SrcAddr    string             `json:"srcaddr,omitempty"` // 源地址过滤，ip 或 ip:port
	DstAddr    string             `json:"dstaddr,omitempty"` // 目的地址过滤
	SDP        string             `json:"sdp,omitempty"`     // 会话描述文件，用于推断音频参数
	Codec      string             `json:"acodec"`            // 音频格式标签
	SampleRate int                `json:"sample_rate"`       // 采样率
	Channels   int                `json:"channels"`          // 声道数
	SampleFmt  codec.SampleFormat `json:"sample_fmt"`        // 采样格式
	Size       codec.Size         `json:"size,omitempty"`    // 视频分辨率 WxH
	PixFmt     codec.PixelFormat  `json:"pix_fmt,omitempty"` // 像素格式
}

// UnmarshalJSON 新建的输入项中未出现的格式字段保持未设置
func (in *InputConfig) UnmarshalJSON(data []byte) error {
	type plain InputConfig
	p := plain(*in)
	if *in == (InputConfig{}) {
		p.SampleFmt = codec.SampleFmtNone
		p.PixFmt = codec.PixFmtNone
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*in = InputConfig(p)
	return nil
}

// OutputConfig 输出文件及音频格式，零值表示与主输入一致
type OutputConfig struct {
	File       string `json:"file"`
	Codec      string `json:"acodec,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
}

// config 应用配置
type config struct {
	Input     InputConfig   `json:"input"`                // 主输入
	MixInputs []InputConfig `json:"mix_inputs,omitempty"` // 额外的混音输入
	Output    OutputConfig  `json:"output"`               // 输出
	Pacing    string        `json:"pacing"`               // 调度策略 none、fixed、adaptive
	Interval  int           `json:"interval"`             // 调度间隔，毫秒
	Stats     int           `json:"stats"`                // 统计日志间隔，秒
	Log       LogConfig     `json:"log"`                  // 日志配置
}

func (c *config) initFlags() {
	// 输入
	flag.StringVar(&c.Input.File, "in", "", "Set the pcap file to read")
	flag.StringVar(&c.Input.SrcAddr, "srcaddr", "", "Only read packets sent from this address (ip or ip:port)")
	flag.StringVar(&c.Input.DstAddr, "dstaddr", "", "Only read packets sent to this address (ip or ip:port)")
	flag.StringVar(&c.Input.SDP, "sdp", "", "Set the SDP file used to infer the audio format")
	flag.StringVar(&c.Input.Codec, "acodec", "pcmu", "Set the input audio format")
	flag.IntVar(&c.Input.SampleRate, "sample_rate", 8000, "Set the input sample rate")
	flag.IntVar(&c.Input.Channels, "channels", 1, "Set the input channel count")
	c.Input.SampleFmt = codec.SampleFmtS16
	flag.Var(&c.Input.SampleFmt, "format", "Set the input sample format")
	flag.Var(&c.Input.Size, "size", "Set the input video size (WxH)")
	c.Input.PixFmt = codec.PixFmtNone
	flag.Var(&c.Input.PixFmt, "pix_fmt", "Set the input pixel format")

	// 输出
	flag.StringVar(&c.Output.File, "out", "", "Set the MPEG-TS file to write")
	flag.StringVar(&c.Output.Codec, "oacodec", "", "Set the output audio format, empty keeps the input format")
	flag.IntVar(&c.Output.SampleRate, "osample_rate", 0, "Set the output sample rate")
	flag.IntVar(&c.Output.Channels, "ochannels", 0, "Set the output channel count")

	// 调度
	flag.StringVar(&c.Pacing, "pacing", "fixed", "Set the ticker pacing (none, fixed, adaptive)")
	flag.IntVar(&c.Interval, "interval", 10, "Set the ticker interval in milliseconds")
	flag.IntVar(&c.Stats, "stats", 0, "Set the seconds between stats logs, 0 disables")

	// 初始化日志配置
	c.Log.initFlags()
}

func (c *config) inputs() []InputConfig {
	ins := make([]InputConfig, 0, 1+len(c.MixInputs))
	ins = append(ins, c.Input)
	for _, in := range c.MixInputs {
		ins = append(ins, in.withDefaults(c.Input))
	}
	return ins
}

// withDefaults 混音输入未设置的音频参数取主输入的值
func (in InputConfig) withDefaults(primary InputConfig) InputConfig {
	if in.Codec == "" {
		in.Codec = primary.Codec
	}
	if in.SampleRate == 0 {
		in.SampleRate = primary.SampleRate
	}
	if in.Channels == 0 {
		in.Channels = primary.Channels
	}
	if in.SampleFmt == codec.SampleFmtNone {
		in.SampleFmt = primary.SampleFmt
	}
	return in
}

func (c *config) validate() error {
	if c.Input.File == "" {
		return ErrNoInput
	}
	for i, in := range c.MixInputs {
		if in.File == "" {
			return fmt.Errorf("%w: mix_inputs[%d]", ErrNoInput, i)
		}
	}
	if c.Output.File == "" {
		return ErrNoOutput
	}
	return nil
}
