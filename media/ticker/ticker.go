// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ticker 实现驱动滤镜图的单线程调度器。
//
// 每个 Ticker 独占一个锁定到 OS 线程的 goroutine，按挂接顺序在每个 tick 中
// 调用每个滤镜的 Process 一次。挂接顺序必须是滤镜图的拓扑序。
//
// 调度线程在整个 tick 期间持有内部锁，滤镜的 Process 和同步监听者中
// 只能调用 Cancel、Name、Ticks、State 和 Done；调用 Attach、Detach、
// DetachAll、Filters、Barrier 或 Stop 会死锁。
package ticker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cnotch/pcapmux/media/filter"
	"github.com/cnotch/xlog"
)

// 调度器错误
var (
	ErrStopped  = errors.New("ticker: stopped")
	ErrAttached = errors.New("ticker: filter already attached")
	ErrDetached = errors.New("ticker: filter not attached")
)

// State 调度器状态
type State int32

// 调度器状态
const (
	StateRunning State = iota
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Option 调度器选项
type Option func(t *Ticker)

// WithName 设置调度器名称
func WithName(name string) Option {
	return func(t *Ticker) { t.name = name }
}

// WithPacer 设置 tick 之间的等待策略，缺省为 FixedInterval(DefaultInterval)
func WithPacer(p Pacer) Option {
	return func(t *Ticker) {
		if p != nil {
			t.pacer = p
		}
	}
}

// WithLogger 设置日志
func WithLogger(l *xlog.Logger) Option {
	return func(t *Ticker) {
		if l != nil {
			t.logger = l
		}
	}
}

// Ticker 单线程协作式调度器
type Ticker struct {
	name  string
	pacer Pacer

	mu       sync.Mutex // 保护执行列表，本轮执行期间一直持有
	list     []*filter.Filter
	barriers []chan struct{}

	ticks atomic.Uint64
	run   atomic.Bool
	state atomic.Int32
	done  chan struct{}

	logger *xlog.Logger
}

// New 创建调度器并立即启动调度线程
func New(opts ...Option) *Ticker {
	t := &Ticker{
		name:   "ticker",
		pacer:  FixedInterval(DefaultInterval),
		done:   make(chan struct{}),
		logger: xlog.L(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With(xlog.Fields(xlog.F("ticker", t.name)))
	t.run.Store(true)
	go t.loop()
	return t
}

// Name 调度器名称
func (t *Ticker) Name() string { return t.name }

// Ticks 已开始的 tick 数
func (t *Ticker) Ticks() uint64 { return t.ticks.Load() }

// State 当前状态
func (t *Ticker) State() State { return State(t.state.Load()) }

// Done 调度线程退出后关闭
func (t *Ticker) Done() <-chan struct{} { return t.done }

// Filters 按执行顺序返回挂接的滤镜，不能在调度线程上调用
func (t *Ticker) Filters() []*filter.Filter {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*filter.Filter(nil), t.list...)
}

func (t *Ticker) indexOf(f *filter.Filter) int {
	for i, v := range t.list {
		if v == f {
			return i
		}
	}
	return -1
}

// Attach 预处理并按顺序挂接滤镜。
// 调用者负责保证顺序是拓扑序，生产者在消费者之前。
// 不能在调度线程上调用。
func (t *Ticker) Attach(fs ...*filter.Filter) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, f := range fs {
		if t.indexOf(f) >= 0 {
			return fmt.Errorf("%w: %s", ErrAttached, f.Name())
		}
		if err := f.Preprocess(t); err != nil {
			return err
		}
		t.list = append(t.list, f)
	}
	return nil
}

// Detach 后处理并摘除滤镜，不能在调度线程上调用
func (t *Ticker) Detach(fs ...*filter.Filter) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, f := range fs {
		i := t.indexOf(f)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrDetached, f.Name())
		}
		if err := f.Postprocess(); err != nil {
			return err
		}
		copy(t.list[i:], t.list[i+1:])
		t.list[len(t.list)-1] = nil
		t.list = t.list[:len(t.list)-1]
	}
	return nil
}

// DetachAll 按挂接顺序摘除所有滤镜
func (t *Ticker) DetachAll() error {
	return t.Detach(t.Filters()...)
}

// Barrier 等待下一个完整的 tick 结束，不能在调度线程上调用
func (t *Ticker) Barrier(ctx context.Context) error {
	ch := make(chan struct{})
	t.mu.Lock()
	t.barriers = append(t.barriers, ch)
	t.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-t.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel 请求停止，不等待调度线程退出，可在 Process 中调用
func (t *Ticker) Cancel() {
	if t.run.CompareAndSwap(true, false) {
		t.state.CompareAndSwap(int32(StateRunning), int32(StateStopping))
	}
}

// Stop 请求停止并等待调度线程退出。
// 不能在滤镜的 Process 或同步监听者中调用，否则死锁；那里应使用 Cancel。
func (t *Ticker) Stop() {
	t.Cancel()
	<-t.done
}

func (t *Ticker) loop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	defer func() {
		defer func() { // 避免 handler 再 panic
			recover()
		}()

		if r := recover(); r != nil {
			t.run.Store(false)
			t.logger.Errorf("ticker routine panic；r = %v \n %s", r, debug.Stack())
		}
		t.state.Store(int32(StateStopped))
		close(t.done)
	}()

	t.logger.Debugf("ticker started")
	for t.run.Load() {
		start := time.Now()
		seq := t.ticks.Add(1)
		busy := t.runOnce(seq)
		t.pacer.Wait(Tick{Seq: seq, Start: start, Busy: busy})
	}
	t.logger.Debugf("ticker stopped after %d ticks", t.Ticks())
}

// runOnce 执行一个完整的 tick，返回是否有数据流动
func (t *Ticker) runOnce(seq uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	barriers := t.barriers
	t.barriers = nil

	before := t.traffic()
	for _, f := range t.list {
		f.Run(seq)
	}
	busy := t.traffic() != before

	for _, ch := range barriers {
		close(ch)
	}
	return busy
}

// traffic 所有输出队列累计入队块数
func (t *Ticker) traffic() (n uint64) {
	for _, f := range t.list {
		for pin := 0; pin < f.NOutputs(); pin++ {
			if q := f.Output(pin); q != nil {
				n += q.Puts()
			}
		}
	}
	return
}
