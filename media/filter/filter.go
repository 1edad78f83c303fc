// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package filter 实现滤镜描述符、实例生命周期、pin 连接、通知和工厂。
package filter

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/cnotch/pcapmux/media/block"
	"github.com/cnotch/pcapmux/stats"
	"github.com/cnotch/xlog"
)

// ErrInvalidState 生命周期状态不允许该操作
var ErrInvalidState = errors.New("filter: invalid state")

// State 滤镜实例的生命周期状态
type State int32

// 生命周期状态
const (
	StateConstructed State = iota
	StatePreprocessed
	StateRunning
	StatePostprocessed
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StatePreprocessed:
		return "preprocessed"
	case StateRunning:
		return "running"
	case StatePostprocessed:
		return "postprocessed"
	case StateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Clock 驱动滤镜的调度器
type Clock interface {
	Ticks() uint64
}

// Filter 滤镜实例
type Filter struct {
	desc     *Descriptor
	inputs   []*block.Queue
	outputs  []*block.Queue
	proc     Processor
	clock    Clock
	lastTick uint64
	state    State

	listeners  []listener
	listenerID ListenerID
	evq        *EventQueue
	destroyed  atomic.Bool

	flow   stats.Flow
	logger *xlog.Logger
}

func newFilter(desc *Descriptor, evq *EventQueue, flow stats.Flow, logger *xlog.Logger) (*Filter, error) {
	if desc.NInputs < 0 || desc.NOutputs < 0 {
		return nil, fmt.Errorf("filter: %s declares negative pin count", desc.Name)
	}
	f := &Filter{
		desc:    desc,
		inputs:  make([]*block.Queue, desc.NInputs),
		outputs: make([]*block.Queue, desc.NOutputs),
		evq:     evq,
		flow:    flow,
		logger:  logger.With(xlog.Fields(xlog.F("filter", desc.Name))),
	}

	if desc.New == nil {
		return nil, fmt.Errorf("filter: %s has no constructor", desc.Name)
	}
	proc, err := desc.New(f)
	if err != nil {
		return nil, fmt.Errorf("filter: init %s: %w", desc.Name, err)
	}
	f.proc = proc
	return f, nil
}

// Descriptor 实例的描述符
func (f *Filter) Descriptor() *Descriptor { return f.desc }

// Name 描述符名称
func (f *Filter) Name() string { return f.desc.Name }

// Processor 实例的私有状态
func (f *Filter) Processor() Processor { return f.proc }

// Clock 挂接的调度器，未挂接时为 nil
func (f *Filter) Clock() Clock { return f.clock }

// State 当前生命周期状态
func (f *Filter) State() State { return f.state }

// Destroyed 实例是否已销毁
func (f *Filter) Destroyed() bool { return f.destroyed.Load() }

// Logger 实例日志
func (f *Filter) Logger() *xlog.Logger { return f.logger }

// Flow 实例流量统计
func (f *Filter) Flow() stats.Flow { return f.flow }

// NInputs 输入 pin 数
func (f *Filter) NInputs() int { return len(f.inputs) }

// NOutputs 输出 pin 数
func (f *Filter) NOutputs() int { return len(f.outputs) }

// Input 输入 pin 上的队列，未连接时为 nil
func (f *Filter) Input(pin int) *block.Queue {
	if pin < 0 || pin >= len(f.inputs) {
		return nil
	}
	return f.inputs[pin]
}

// Output 输出 pin 上的队列，未连接时为 nil
func (f *Filter) Output(pin int) *block.Queue {
	if pin < 0 || pin >= len(f.outputs) {
		return nil
	}
	return f.outputs[pin]
}

// Emit 把块放入输出 pin；pin 未连接时丢弃并返回 false
func (f *Filter) Emit(pin int, b *block.Block) bool {
	q := f.Output(pin)
	if q == nil {
		return false
	}
	q.Put(b)
	return true
}

// Preprocess 挂接到调度器之前调用
func (f *Filter) Preprocess(clock Clock) error {
	if f.state != StateConstructed && f.state != StatePostprocessed {
		return fmt.Errorf("%w: preprocess %s in state %s", ErrInvalidState, f.desc.Name, f.state)
	}
	f.clock = clock
	f.lastTick = 0
	f.proc.Preprocess(f)
	f.state = StatePreprocessed
	return nil
}

// Run 在 tick 中处理一次；同一 tick 重复调用不会再次处理
func (f *Filter) Run(tick uint64) bool {
	if f.state != StatePreprocessed && f.state != StateRunning {
		return false
	}
	if f.lastTick == tick {
		return false
	}
	if f.state != StateRunning {
		f.state = StateRunning
	}
	f.proc.Process(f)
	f.lastTick = tick
	return true
}

// Postprocess 从调度器摘除之前调用
func (f *Filter) Postprocess() error {
	if f.state != StatePreprocessed && f.state != StateRunning {
		return fmt.Errorf("%w: postprocess %s in state %s", ErrInvalidState, f.desc.Name, f.state)
	}
	f.proc.Postprocess(f)
	f.clock = nil
	f.state = StatePostprocessed
	return nil
}

// Destroy 销毁实例；仍挂接在调度器上时返回错误
func (f *Filter) Destroy() error {
	switch f.state {
	case StatePreprocessed, StateRunning, StateDestroyed:
		return fmt.Errorf("%w: destroy %s in state %s", ErrInvalidState, f.desc.Name, f.state)
	}
	f.destroyed.Store(true)
	f.proc.Uninit(f)
	f.listeners = nil
	f.state = StateDestroyed
	return nil
}
