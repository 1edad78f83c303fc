// Copyright calabashdad. https://github.com/calabashdad/seal.git
//
// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mpegts

import "github.com/cnotch/pcapmux/av/codec/h264"

// the mpegts header specifed the video/audio pid.
const (
	pmtPid     = 0x1000
	VideoPid   = 0x100
	AudioPid   = 0x101
	programNum = 1
)

// PES stream id
const (
	streamIDAudio = 0xc0
	streamIDVideo = 0xe0
)

// StreamType PMT 中的流类型
type StreamType byte

// 支持的流类型
const (
	StreamTypeNone StreamType = 0
	StreamTypeMPA  StreamType = 0x03 // MPEG-1 audio layer 1/2/3
	StreamTypeAAC  StreamType = 0x0f // ADTS
	StreamTypeH264 StreamType = 0x1b
)

// Frame 一个 PES 包的内容，时间戳单位为 90kHz
type Frame struct {
	Pid      int
	StreamID int
	Dts      int64
	Pts      int64
	Payload  []byte
	Key      bool // 随机访问点，携带 PCR
}

// IsVideo .
func (frame *Frame) IsVideo() bool {
	return frame.Pid == VideoPid
}

// IsAudio .
func (frame *Frame) IsAudio() bool {
	return frame.Pid == AudioPid
}

// VideoFrame 由 Annex-B 访问单元构造视频帧，缺少分界符时补一个 AUD
func VideoFrame(au []byte, pts int64) *Frame {
	nals := h264.SplitAnnexB(au)
	frame := &Frame{
		Pid:      VideoPid,
		StreamID: streamIDVideo,
		Dts:      pts,
		Pts:      pts,
		Key:      false,
	}
	hasAud := false
	for _, nal := range nals {
		switch h264.NalType(nal[0]) {
		case h264.NalAud:
			hasAud = true
		case h264.NalIdrSlice:
			frame.Key = true
		}
	}
	if hasAud || len(nals) == 0 {
		frame.Payload = au
		return frame
	}
	payload := make([]byte, 0, len(h264.AccessUnitDelimiter)+len(au))
	payload = append(payload, h264.AccessUnitDelimiter...)
	frame.Payload = append(payload, au...)
	return frame
}

// AudioFrame 构造音频帧
func AudioFrame(payload []byte, pts int64) *Frame {
	return &Frame{
		Pid:      AudioPid,
		StreamID: streamIDAudio,
		Dts:      pts,
		Pts:      pts,
		Payload:  payload,
	}
}
