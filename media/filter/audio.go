// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package filter

import (
	"fmt"

	"github.com/cnotch/pcapmux/av/codec"
)

// AudioFormat 音频滤镜共有的输入参数
type AudioFormat struct {
	SampleRate int
	Channels   int
	SampleFmt  codec.SampleFormat
	FrameSize  int // 每帧每声道采样数，0 表示不分帧
}

// BytesPerFrame 一帧交织数据的字节数
func (af *AudioFormat) BytesPerFrame() int {
	return af.FrameSize * af.Channels * af.SampleFmt.BytesPerSample()
}

// BytesPerMilli 每毫秒交织数据的字节数
func (af *AudioFormat) BytesPerMilli() int {
	return af.SampleRate / 1000 * af.Channels * af.SampleFmt.BytesPerSample()
}

// AudioMethods 生成读写 AudioFormat 的方法表。
// format 返回滤镜实例持有的参数。
func AudioMethods(format func(f *Filter) *AudioFormat) []Method {
	positive := func(name string, v int) error {
		if v <= 0 {
			return fmt.Errorf("%w: %s %d", ErrInvalidArg, name, v)
		}
		return nil
	}
	return []Method{
		{ID: SetSampleRate, Handler: func(f *Filter, arg *Arg) error {
			if err := positive("sample rate", arg.Int); err != nil {
				return err
			}
			format(f).SampleRate = arg.Int
			return nil
		}},
		{ID: SetChannels, Handler: func(f *Filter, arg *Arg) error {
			if err := positive("channels", arg.Int); err != nil {
				return err
			}
			format(f).Channels = arg.Int
			return nil
		}},
		{ID: SetSampleFmt, Handler: func(f *Filter, arg *Arg) error {
			sf := codec.SampleFormat(arg.Int)
			if sf.BytesPerSample() == 0 {
				return fmt.Errorf("%w: sample format %d", ErrInvalidArg, arg.Int)
			}
			format(f).SampleFmt = sf
			return nil
		}},
		{ID: SetFrameSize, Handler: func(f *Filter, arg *Arg) error {
			if arg.Int < 0 {
				return fmt.Errorf("%w: frame size %d", ErrInvalidArg, arg.Int)
			}
			format(f).FrameSize = arg.Int
			return nil
		}},
		{ID: GetSampleRate, Handler: func(f *Filter, arg *Arg) error {
			arg.Int = format(f).SampleRate
			return nil
		}},
		{ID: GetChannels, Handler: func(f *Filter, arg *Arg) error {
			arg.Int = format(f).Channels
			return nil
		}},
		{ID: GetSampleFmt, Handler: func(f *Filter, arg *Arg) error {
			arg.Int = int(format(f).SampleFmt)
			return nil
		}},
		{ID: GetFrameSize, Handler: func(f *Filter, arg *Arg) error {
			arg.Int = format(f).FrameSize
			return nil
		}},
	}
}
