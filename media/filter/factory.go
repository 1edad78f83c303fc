// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package filter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cnotch/pcapmux/stats"
	"github.com/cnotch/xlog"
)

// ErrNotFound 工厂中找不到匹配的描述符
var ErrNotFound = errors.New("filter: descriptor not found")

// Factory 滤镜描述符注册表，负责创建滤镜实例。
// 后注册的描述符优先，相同 ID 时覆盖先注册的描述符。
type Factory struct {
	descs  []*Descriptor // 按注册顺序保存，查找时逆序遍历
	evq    *EventQueue
	flow   stats.Flow
	logger *xlog.Logger
}

// NewFactory 创建工厂，并按顺序注册 descs
func NewFactory(logger *xlog.Logger, descs ...*Descriptor) *Factory {
	if logger == nil {
		logger = xlog.L()
	}
	fa := &Factory{
		evq:    NewEventQueue(logger),
		flow:   stats.NewFlow(),
		logger: logger,
	}
	for _, d := range descs {
		fa.Register(d)
	}
	return fa
}

// Register 注册描述符
func (fa *Factory) Register(d *Descriptor) {
	if d == nil {
		return
	}
	fa.descs = append(fa.descs, d)
}

// Descriptors 按查找顺序返回所有描述符
func (fa *Factory) Descriptors() []*Descriptor {
	out := make([]*Descriptor, 0, len(fa.descs))
	for i := len(fa.descs) - 1; i >= 0; i-- {
		out = append(out, fa.descs[i])
	}
	return out
}

func (fa *Factory) find(match func(d *Descriptor) bool) *Descriptor {
	for i := len(fa.descs) - 1; i >= 0; i-- {
		if match(fa.descs[i]) {
			return fa.descs[i]
		}
	}
	return nil
}

// Lookup 按 ID 查找描述符
func (fa *Factory) Lookup(id ID) *Descriptor {
	return fa.find(func(d *Descriptor) bool { return d.ID == id })
}

// Encoder 查找格式标签匹配的可用编码器，标签不区分大小写
func (fa *Factory) Encoder(tag string) *Descriptor {
	return fa.find(func(d *Descriptor) bool {
		return d.Category.isEncoder() && d.Enabled() && strings.EqualFold(d.FormatTag, tag)
	})
}

// Decoder 查找格式标签匹配的可用解码器，标签不区分大小写
func (fa *Factory) Decoder(tag string) *Descriptor {
	return fa.find(func(d *Descriptor) bool {
		return d.Category.isDecoder() && d.Enabled() && strings.EqualFold(d.FormatTag, tag)
	})
}

// Create 按 ID 创建滤镜实例
func (fa *Factory) Create(id ID) (*Filter, error) {
	d := fa.Lookup(id)
	if d == nil {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return fa.CreateFrom(d)
}

// CreateFrom 用指定描述符创建实例
func (fa *Factory) CreateFrom(d *Descriptor) (*Filter, error) {
	return newFilter(d, fa.evq, stats.NewChildFlow(fa.flow), fa.logger)
}

// CreateEncoder 创建格式标签对应的编码器
func (fa *Factory) CreateEncoder(tag string) (*Filter, error) {
	d := fa.Encoder(tag)
	if d == nil {
		return nil, fmt.Errorf("%w: encoder for %q", ErrNotFound, tag)
	}
	return fa.CreateFrom(d)
}

// CreateDecoder 创建格式标签对应的解码器
func (fa *Factory) CreateDecoder(tag string) (*Filter, error) {
	d := fa.Decoder(tag)
	if d == nil {
		return nil, fmt.Errorf("%w: decoder for %q", ErrNotFound, tag)
	}
	return fa.CreateFrom(d)
}

// Flow 所有实例的流量汇总
func (fa *Factory) Flow() stats.Flow { return fa.flow }

// Close 停止异步通知线程
func (fa *Factory) Close() {
	fa.evq.Close()
}
