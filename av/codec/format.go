// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package codec 定义音视频流的通用参数类型。
package codec

import (
	"fmt"
	"strconv"
	"strings"
)

// MediaType 媒体类型
type MediaType int

// 媒体类型常量
const (
	MediaTypeUnknown MediaType = iota - 1
	MediaTypeVideo
	MediaTypeAudio
)

// String returns a lower-case ASCII representation of the media type.
func (mt MediaType) String() string {
	switch mt {
	case MediaTypeVideo:
		return "video"
	case MediaTypeAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// SampleFormat 音频采样格式
type SampleFormat int

// 采样格式，P 后缀表示平面格式
const (
	SampleFmtNone SampleFormat = iota - 1
	SampleFmtU8
	SampleFmtS16
	SampleFmtS32
	SampleFmtFlt
	SampleFmtDbl
	SampleFmtU8P
	SampleFmtS16P
	SampleFmtS32P
	SampleFmtFltP
	SampleFmtDblP
)

var sampleFmtInfos = [...]struct {
	name  string
	bytes int
}{
	SampleFmtU8:   {"u8", 1},
	SampleFmtS16:  {"s16", 2},
	SampleFmtS32:  {"s32", 4},
	SampleFmtFlt:  {"flt", 4},
	SampleFmtDbl:  {"dbl", 8},
	SampleFmtU8P:  {"u8p", 1},
	SampleFmtS16P: {"s16p", 2},
	SampleFmtS32P: {"s32p", 4},
	SampleFmtFltP: {"fltp", 4},
	SampleFmtDblP: {"dblp", 8},
}

func (sf SampleFormat) valid() bool { return sf >= 0 && int(sf) < len(sampleFmtInfos) }

// String returns the conventional short name, such as "s16".
func (sf SampleFormat) String() string {
	if !sf.valid() {
		return "none"
	}
	return sampleFmtInfos[sf].name
}

// BytesPerSample 每个采样的字节数
func (sf SampleFormat) BytesPerSample() int {
	if !sf.valid() {
		return 0
	}
	return sampleFmtInfos[sf].bytes
}

// Planar 是否为平面格式
func (sf SampleFormat) Planar() bool { return sf >= SampleFmtU8P }

// ParseSampleFormat 解析采样格式名称
func ParseSampleFormat(s string) (SampleFormat, error) {
	for i, info := range sampleFmtInfos {
		if strings.EqualFold(info.name, s) {
			return SampleFormat(i), nil
		}
	}
	return SampleFmtNone, fmt.Errorf("unrecognized sample format: %q", s)
}

// MarshalText marshals the SampleFormat to text.
func (sf SampleFormat) MarshalText() ([]byte, error) {
	return []byte(sf.String()), nil
}

// UnmarshalText unmarshals text to a SampleFormat; "none" or empty text leaves it unset.
func (sf *SampleFormat) UnmarshalText(text []byte) (err error) {
	if isNone(text) {
		*sf = SampleFmtNone
		return nil
	}
	*sf, err = ParseSampleFormat(string(text))
	return
}

// Set implements flag.Value.
func (sf *SampleFormat) Set(s string) error { return sf.UnmarshalText([]byte(s)) }

// PixelFormat 视频像素格式
type PixelFormat int

// 常用像素格式
const (
	PixFmtNone PixelFormat = iota - 1
	PixFmtYUV420P
	PixFmtYUYV422
	PixFmtRGB24
	PixFmtBGR24
	PixFmtYUV422P
	PixFmtYUV444P
	PixFmtNV12
)

var pixFmtNames = [...]string{
	PixFmtYUV420P: "yuv420p",
	PixFmtYUYV422: "yuyv422",
	PixFmtRGB24:   "rgb24",
	PixFmtBGR24:   "bgr24",
	PixFmtYUV422P: "yuv422p",
	PixFmtYUV444P: "yuv444p",
	PixFmtNV12:    "nv12",
}

func (pf PixelFormat) String() string {
	if pf < 0 || int(pf) >= len(pixFmtNames) {
		return "none"
	}
	return pixFmtNames[pf]
}

// ParsePixelFormat 解析像素格式名称
func ParsePixelFormat(s string) (PixelFormat, error) {
	for i, name := range pixFmtNames {
		if strings.EqualFold(name, s) {
			return PixelFormat(i), nil
		}
	}
	return PixFmtNone, fmt.Errorf("unrecognized pixel format: %q", s)
}

// MarshalText marshals the PixelFormat to text.
func (pf PixelFormat) MarshalText() ([]byte, error) {
	return []byte(pf.String()), nil
}

// UnmarshalText unmarshals text to a PixelFormat; "none" or empty text leaves it unset.
func (pf *PixelFormat) UnmarshalText(text []byte) (err error) {
	if isNone(text) {
		*pf = PixFmtNone
		return nil
	}
	*pf, err = ParsePixelFormat(string(text))
	return
}

// Set implements flag.Value.
func (pf *PixelFormat) Set(s string) error { return pf.UnmarshalText([]byte(s)) }

func isNone(text []byte) bool {
	return len(text) == 0 || strings.EqualFold(string(text), "none")
}

// Size 视频分辨率，文本形式为 WxH
type Size struct {
	Width  int
	Height int
}

// IsZero 是否未设置
func (sz Size) IsZero() bool { return sz.Width == 0 && sz.Height == 0 }

func (sz Size) String() string {
	if sz.IsZero() {
		return ""
	}
	return strconv.Itoa(sz.Width) + "x" + strconv.Itoa(sz.Height)
}

// ParseSize 解析 WxH 格式的分辨率
func ParseSize(s string) (Size, error) {
	i := strings.IndexAny(s, "xX")
	if i < 0 {
		return Size{}, fmt.Errorf("invalid size %q, want WxH", s)
	}
	w, err1 := strconv.Atoi(strings.TrimSpace(s[:i]))
	h, err2 := strconv.Atoi(strings.TrimSpace(s[i+1:]))
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return Size{}, fmt.Errorf("invalid size %q, want WxH", s)
	}
	return Size{Width: w, Height: h}, nil
}

// MarshalText marshals the Size to text.
func (sz Size) MarshalText() ([]byte, error) {
	return []byte(sz.String()), nil
}

// UnmarshalText unmarshals text to a Size; empty text leaves it unset.
func (sz *Size) UnmarshalText(text []byte) (err error) {
	if len(text) == 0 {
		*sz = Size{}
		return nil
	}
	*sz, err = ParseSize(string(text))
	return
}

// Set implements flag.Value.
func (sz *Size) Set(s string) error { return sz.UnmarshalText([]byte(s)) }
