// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package filter

import (
	"errors"
	"fmt"

	"github.com/cnotch/pcapmux/media/block"
)

// 连接错误
var (
	ErrPinRange  = errors.New("filter: pin index out of range")
	ErrPinBusy   = errors.New("filter: pin already linked")
	ErrNotLinked = errors.New("filter: pins are not linked")
	ErrNilFilter = errors.New("filter: nil filter")
)

// Link 用一个新队列连接 src 的输出 pin 和 dst 的输入 pin
func Link(src *Filter, outpin int, dst *Filter, inpin int) error {
	if src == nil || dst == nil {
		return ErrNilFilter
	}
	if outpin < 0 || outpin >= len(src.outputs) {
		return fmt.Errorf("%w: %s output %d", ErrPinRange, src.desc.Name, outpin)
	}
	if inpin < 0 || inpin >= len(dst.inputs) {
		return fmt.Errorf("%w: %s input %d", ErrPinRange, dst.desc.Name, inpin)
	}
	if src.outputs[outpin] != nil {
		return fmt.Errorf("%w: %s output %d", ErrPinBusy, src.desc.Name, outpin)
	}
	if dst.inputs[inpin] != nil {
		return fmt.Errorf("%w: %s input %d", ErrPinBusy, dst.desc.Name, inpin)
	}

	q := block.NewQueue()
	src.outputs[outpin] = q
	dst.inputs[inpin] = q
	return nil
}

// Unlink 断开 Link 建立的连接，并丢弃队列中的缓冲块
func Unlink(src *Filter, outpin int, dst *Filter, inpin int) error {
	if src == nil || dst == nil {
		return ErrNilFilter
	}
	q := src.Output(outpin)
	if q == nil || dst.Input(inpin) != q {
		return fmt.Errorf("%w: %s[%d] -> %s[%d]", ErrNotLinked,
			src.desc.Name, outpin, dst.desc.Name, inpin)
	}
	src.outputs[outpin] = nil
	dst.inputs[inpin] = nil
	q.Flush()
	return nil
}

// ConnectionPoint 一个滤镜上的 pin
type ConnectionPoint struct {
	Filter *Filter
	Pin    int
}

// ConnectionHelper 把线性链上的成对连接转换成顺序调用。
//
//	h.Start()
//	h.Link(source, -1, 0)
//	h.Link(decoder, 0, 0)
//	h.Link(muxer, 0, -1)
type ConnectionHelper struct {
	last ConnectionPoint
}

// Start 清除记住的 pin，开始新的一条链
func (h *ConnectionHelper) Start() {
	h.last = ConnectionPoint{}
}

// Last 记住的上一个滤镜和输出 pin
func (h *ConnectionHelper) Last() ConnectionPoint { return h.last }

// Link 把上一个滤镜的输出 pin 连接到 f 的 inpin，然后记住 f 的 outpin。
// 链的第一个滤镜不做连接。
func (h *ConnectionHelper) Link(f *Filter, inpin, outpin int) error {
	if f == nil {
		return ErrNilFilter
	}
	if h.last.Filter != nil {
		if err := Link(h.last.Filter, h.last.Pin, f, inpin); err != nil {
			return err
		}
	}
	h.last = ConnectionPoint{Filter: f, Pin: outpin}
	return nil
}

// Unlink 与 Link 对称的拆除操作
func (h *ConnectionHelper) Unlink(f *Filter, inpin, outpin int) error {
	if f == nil {
		return ErrNilFilter
	}
	if h.last.Filter != nil {
		if err := Unlink(h.last.Filter, h.last.Pin, f, inpin); err != nil {
			return err
		}
	}
	h.last = ConnectionPoint{Filter: f, Pin: outpin}
	return nil
}
