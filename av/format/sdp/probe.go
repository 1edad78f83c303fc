// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package sdp 从会话描述中推断抓包流的音视频参数。
package sdp

import (
	"errors"
	"os"
	"strings"

	"github.com/pixelbender/go-sdp/sdp"
)

// ErrNoMedia 会话描述中没有可用的媒体
var ErrNoMedia = errors.New("sdp: no audio or video media")

// Audio 音频流参数
type Audio struct {
	PayloadType int
	Tag         string // 格式标签，如 "pcmu"
	SampleRate  int
	Channels    int
}

// Video 视频流参数
type Video struct {
	PayloadType int
	Tag         string
	ClockRate   int
}

// Info 探测结果，未出现的媒体为 nil
type Info struct {
	Audio *Audio
	Video *Video
}

type staticFormat struct {
	tag        string
	sampleRate int
	channels   int
}

// RFC 3551 静态负载类型
var staticFormats = map[int]staticFormat{
	0:  {"pcmu", 8000, 1},
	8:  {"pcma", 8000, 1},
	14: {"mpa", 90000, 0},
}

// 编码名称到格式标签
var codecTags = map[string]string{
	"PCMU":          "pcmu",
	"PCMA":          "pcma",
	"MPA":           "mpa",
	"OPUS":          "opus",
	"MPEG4-GENERIC": "aac",
	"H264":          "h264",
}

// ProbeFile 读取并探测 SDP 文件
func ProbeFile(path string) (*Info, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Probe(string(raw))
}

// Probe 解析会话描述，取每种媒体的第一个格式
func Probe(rawsdp string) (*Info, error) {
	sess, err := sdp.ParseString(rawsdp)
	if err != nil {
		return nil, err
	}

	info := new(Info)
	for _, media := range sess.Media {
		if len(media.Format) == 0 {
			continue
		}
		format := media.Format[0]
		switch media.Type {
		case "audio":
			if info.Audio == nil {
				info.Audio = probeAudio(format)
			}
		case "video":
			if info.Video == nil {
				info.Video = &Video{
					PayloadType: int(format.Payload),
					Tag:         tagOf(format.Name),
					ClockRate:   format.ClockRate,
				}
			}
		}
	}
	if info.Audio == nil && info.Video == nil {
		return nil, ErrNoMedia
	}
	return info, nil
}

func probeAudio(format *sdp.Format) *Audio {
	audio := &Audio{
		PayloadType: int(format.Payload),
		Tag:         tagOf(format.Name),
		SampleRate:  format.ClockRate,
		Channels:    format.Channels,
	}

	// 静态负载类型可以没有 rtpmap
	if st, ok := staticFormats[audio.PayloadType]; ok && format.Name == "" {
		audio.Tag = st.tag
		if audio.SampleRate == 0 {
			audio.SampleRate = st.sampleRate
		}
	}
	if st, ok := staticFormats[audio.PayloadType]; ok && audio.Channels == 0 {
		audio.Channels = st.channels
	}

	// MPA 的 RTP 时钟固定为 90kHz，不是采样率
	if audio.Tag == "mpa" && audio.SampleRate == 90000 {
		audio.SampleRate = 0
	}
	if audio.Channels == 0 {
		audio.Channels = 1
	}
	return audio
}

func tagOf(name string) string {
	if tag, ok := codecTags[strings.ToUpper(name)]; ok {
		return tag
	}
	return strings.ToLower(name)
}
