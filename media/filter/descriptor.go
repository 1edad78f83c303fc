// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package filter

import "fmt"

// ID 滤镜描述符标识
type ID int

// 内置滤镜标识
const (
	ParsePcapID ID = iota + 1
	AacDecID
	AacEncID
	Mp3DecID
	Mp3EncID
	G711DecID
	G711EncID
	OpusDecID
	H264RegroupID
	H264DecID
	H264EncID
	MuxerID
	ResampleID
	ScaleID
	AmixID
	VmixID
	G711ADecID
	G711AEncID
)

// Category 滤镜类别
type Category int

// 滤镜类别
const (
	CategoryOther Category = iota
	CategoryEncoder
	CategoryDecoder
	CategoryEncodingCapturer
	CategoryDecoderRenderer
)

var categoryNames = [...]string{
	CategoryOther:            "other",
	CategoryEncoder:          "encoder",
	CategoryDecoder:          "decoder",
	CategoryEncodingCapturer: "encoding_capturer",
	CategoryDecoderRenderer:  "decoder_renderer",
}

func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return fmt.Sprintf("Category(%d)", int(c))
	}
	return categoryNames[c]
}

func (c Category) isEncoder() bool {
	return c == CategoryEncoder || c == CategoryEncodingCapturer
}

func (c Category) isDecoder() bool {
	return c == CategoryDecoder || c == CategoryDecoderRenderer
}

// Flags 描述符标记
type Flags uint32

// 描述符标记
const (
	FlagEnabled Flags = 1 << 31
)

// Processor 滤镜实例的处理逻辑，同时也是实例的私有状态。
// 所有方法都在 Ticker 线程或构建图的线程上串行调用，Process 不能阻塞。
type Processor interface {
	// Preprocess 第一次挂接到 Ticker 之前调用
	Preprocess(f *Filter)
	// Process 每个 tick 调用一次，无数据时立即返回
	Process(f *Filter)
	// Postprocess 从 Ticker 摘除之前调用
	Postprocess(f *Filter)
	// Uninit 销毁实例时调用，释放私有资源
	Uninit(f *Filter)
}

// NopLifecycle 可嵌入的空生命周期实现，只需实现 Process
type NopLifecycle struct{}

// Preprocess .
func (NopLifecycle) Preprocess(*Filter) {}

// Postprocess .
func (NopLifecycle) Postprocess(*Filter) {}

// Uninit .
func (NopLifecycle) Uninit(*Filter) {}

// Descriptor 滤镜的静态描述，注册后不可修改
type Descriptor struct {
	ID        ID
	Name      string
	Text      string
	Category  Category
	FormatTag string // 编解码器的格式标签，如 "pcmu"
	NInputs   int
	NOutputs  int
	Flags     Flags
	Methods   []Method

	// New 创建实例的私有状态，对应 init
	New func(f *Filter) (Processor, error)
}

// Enabled 描述符是否可用于编解码器解析
func (d *Descriptor) Enabled() bool { return d.Flags&FlagEnabled != 0 }

func (d *Descriptor) String() string {
	return fmt.Sprintf("%s(%d)", d.Name, d.ID)
}
