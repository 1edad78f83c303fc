// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mpegts

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/cnotch/pcapmux/av/codec"
	"github.com/cnotch/pcapmux/media/block"
	"github.com/cnotch/pcapmux/media/filter"
)

// 输入 pin
const (
	AudioPin = 0
	VideoPin = 1
)

// 输出时间戳的偏移，保证 PCR 不超前于 PTS
const ptsDelay = 90000 / 10

// Descriptor MPEG-TS 复用滤镜
var Descriptor = &filter.Descriptor{
	ID:       filter.MuxerID,
	Name:     "MSMuxer",
	Text:     "Write H.264 and audio into an MPEG-TS file",
	Category: filter.CategoryOther,
	NInputs:  2,
	NOutputs: 0,
	New: func(*filter.Filter) (filter.Processor, error) {
		return &muxer{sampleFmt: codec.SampleFmtNone}, nil
	},
	Methods: []filter.Method{
		{ID: filter.SetFileName, Handler: func(f *filter.Filter, arg *filter.Arg) error {
			return state(f).create(arg.Str)
		}},
		{ID: filter.SetMimeType, Handler: func(f *filter.Filter, arg *filter.Arg) error {
			m := state(f)
			m.mime = arg.Str
			m.audioType = AudioStreamType(arg.Str)
			if m.audioType == StreamTypeNone && arg.Str != "" {
				f.Logger().Warnf("audio format %q has no mpegts stream type, audio is dropped", arg.Str)
			}
			return nil
		}},
		{ID: filter.SetWidth, Handler: func(f *filter.Filter, arg *filter.Arg) error {
			state(f).width = arg.Int
			return nil
		}},
		{ID: filter.SetHeight, Handler: func(f *filter.Filter, arg *filter.Arg) error {
			state(f).height = arg.Int
			return nil
		}},
		{ID: filter.SetSampleRate, Handler: func(f *filter.Filter, arg *filter.Arg) error {
			state(f).sampleRate = arg.Int
			return nil
		}},
		{ID: filter.SetChannels, Handler: func(f *filter.Filter, arg *filter.Arg) error {
			state(f).channels = arg.Int
			return nil
		}},
		{ID: filter.SetSampleFmt, Handler: func(f *filter.Filter, arg *filter.Arg) error {
			// 编码器只接受交错的 s16 PCM
			sf := codec.SampleFormat(arg.Int)
			if sf != codec.SampleFmtS16 && sf != codec.SampleFmtNone {
				return fmt.Errorf("%w: sample format %s, only s16 is supported", filter.ErrInvalidArg, sf)
			}
			state(f).sampleFmt = sf
			return nil
		}},
		{ID: filter.GetSampleFmt, Handler: func(f *filter.Filter, arg *filter.Arg) error {
			arg.Int = int(state(f).sampleFmt)
			return nil
		}},
	},
}

// AudioStreamType 由格式标签选择 PMT 中的音频流类型
func AudioStreamType(tag string) StreamType {
	switch strings.ToLower(tag) {
	case "mp3", "mpa", "mp2":
		return StreamTypeMPA
	case "aac":
		return StreamTypeAAC
	default:
		return StreamTypeNone
	}
}

type muxer struct {
	filter.NopLifecycle
	name       string
	file       *os.File
	bw         *bufio.Writer
	tw         *Writer
	mime       string
	audioType  StreamType
	width      int
	height     int
	sampleRate int
	channels   int
	sampleFmt  codec.SampleFormat
	frames     [2]int
	concealed  int // 含静音补偿的音频帧
	err        error
}

func state(f *filter.Filter) *muxer { return f.Processor().(*muxer) }

func (m *muxer) create(name string) error {
	file, err := os.Create(name)
	if err != nil {
		return err
	}
	m.closeFile()
	m.name = name
	m.file = file
	m.bw = bufio.NewWriterSize(file, 64*1024)
	return nil
}

func (m *muxer) Preprocess(f *filter.Filter) {
	if m.bw == nil || m.tw != nil {
		return
	}
	m.tw, m.err = NewWriter(m.bw, m.audioType, f.Input(VideoPin) != nil)
	if m.err != nil {
		f.Logger().Errorf("mpegts %s: %s", m.name, m.err.Error())
		return
	}
	f.Logger().Infof("mpegts %s: video %dx%d, audio %q (stream type %#x) %dHz/%dch",
		m.name, m.width, m.height, m.mime, byte(m.audioType), m.sampleRate, m.channels)
}

func (m *muxer) Process(f *filter.Filter) {
	m.drain(f, AudioPin, func(b *block.Block) *Frame {
		// 微秒 -> 90kHz
		return AudioFrame(b.Bytes(), int64(b.Timestamp*9/100)+ptsDelay)
	})
	m.drain(f, VideoPin, func(b *block.Block) *Frame {
		return VideoFrame(b.Bytes(), int64(b.Timestamp)+ptsDelay)
	})
}

func (m *muxer) drain(f *filter.Filter, pin int, frame func(b *block.Block) *Frame) {
	q := f.Input(pin)
	if q == nil {
		return
	}
	for b := q.Get(); b != nil; b = q.Get() {
		f.Flow().AddIn(int64(b.Len()))
		if m.tw == nil || m.err != nil || b.Len() == 0 {
			continue
		}
		fr := frame(b)
		if !m.tw.Carries(fr.Pid) {
			continue
		}
		if err := m.tw.WriteFrame(fr); err != nil {
			m.err = err
			f.Logger().Errorf("mpegts %s: %s", m.name, err.Error())
			continue
		}
		m.frames[pin]++
		if b.Flags&block.FlagPLC != 0 {
			m.concealed++
		}
	}
}

func (m *muxer) Postprocess(f *filter.Filter) {
	if m.bw == nil {
		return
	}
	if err := m.bw.Flush(); err != nil {
		f.Logger().Errorf("mpegts %s: flush: %s", m.name, err.Error())
	}
	f.Logger().Infof("mpegts %s: %d audio frames (%d concealed), %d video frames",
		m.name, m.frames[AudioPin], m.concealed, m.frames[VideoPin])
}

// Frames 已写入的音频帧和视频帧数
func Frames(f *filter.Filter) (audio, video int, err error) {
	m, ok := f.Processor().(*muxer)
	if !ok {
		return 0, 0, fmt.Errorf("%w: %s is not a muxer", filter.ErrInvalidArg, f.Name())
	}
	return m.frames[AudioPin], m.frames[VideoPin], m.err
}

func (m *muxer) closeFile() {
	if m.file == nil {
		return
	}
	if m.bw != nil {
		m.bw.Flush()
	}
	m.file.Close()
	m.file, m.bw, m.tw = nil, nil, nil
}

func (m *muxer) Uninit(*filter.Filter) {
	m.closeFile()
}
