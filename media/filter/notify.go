// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package filter

import (
	"runtime/debug"
	"sync"

	"github.com/cnotch/queue"
	"github.com/cnotch/xlog"
)

// EventID 通知事件标识，由滤镜自行定义
type EventID int

// EventEndOfStream 源滤镜读到流末尾，一次性通知
const EventEndOfStream EventID = 0

// NotifyFunc 通知回调
type NotifyFunc func(f *Filter, event EventID, arg interface{})

// ListenerID 用于移除监听者
type ListenerID int

type listener struct {
	id          ListenerID
	fn          NotifyFunc
	synchronous bool
}

// AddListener 添加监听者。
// synchronous 为 true 时在 Notify 调用方的线程上直接回调，
// 否则投递到工厂的事件队列，由事件线程回调。
func (f *Filter) AddListener(fn NotifyFunc, synchronous bool) ListenerID {
	f.listenerID++
	f.listeners = append(f.listeners, listener{
		id:          f.listenerID,
		fn:          fn,
		synchronous: synchronous,
	})
	return f.listenerID
}

// RemoveListener 移除监听者
func (f *Filter) RemoveListener(id ListenerID) bool {
	for i, l := range f.listeners {
		if l.id == id {
			f.listeners = append(f.listeners[:i], f.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// Notify 按注册顺序通知所有监听者；回调中销毁滤镜会终止后续通知
func (f *Filter) Notify(event EventID, arg interface{}) {
	ls := make([]listener, len(f.listeners))
	copy(ls, f.listeners)

	for _, l := range ls {
		if f.destroyed.Load() {
			return
		}
		if l.synchronous || f.evq == nil {
			l.fn(f, event, arg)
			continue
		}
		f.evq.post(&notification{f: f, fn: l.fn, event: event, arg: arg})
	}
}

type notification struct {
	f     *Filter
	fn    NotifyFunc
	event EventID
	arg   interface{}
}

// EventQueue 异步通知队列，在独立的 goroutine 上回调监听者
type EventQueue struct {
	mu     sync.Mutex
	closed bool
	q      *queue.SyncQueue
	done   chan struct{}
	logger *xlog.Logger
}

// NewEventQueue 创建事件队列并启动事件线程
func NewEventQueue(logger *xlog.Logger) *EventQueue {
	eq := &EventQueue{
		q:      queue.NewSyncQueue(),
		done:   make(chan struct{}),
		logger: logger,
	}
	go eq.run()
	return eq
}

func (eq *EventQueue) isClosed() bool {
	eq.mu.Lock()
	defer eq.mu.Unlock()
	return eq.closed
}

func (eq *EventQueue) post(n *notification) {
	if eq.isClosed() {
		return
	}
	eq.q.Push(n)
}

func (eq *EventQueue) run() {
	defer func() {
		defer func() { // 避免 handler 再 panic
			recover()
		}()

		if r := recover(); r != nil {
			eq.logger.Errorf("event queue routine panic；r = %v \n %s", r, debug.Stack())
		}
		eq.q.Reset()
		close(eq.done)
	}()

	for !eq.isClosed() {
		item := eq.q.Pop()
		if item == nil {
			continue
		}
		n := item.(*notification)
		if n.f.Destroyed() {
			continue
		}
		n.fn(n.f, n.event, n.arg)
	}
}

// Close 停止事件线程，未派发的通知被丢弃
func (eq *EventQueue) Close() {
	eq.mu.Lock()
	if eq.closed {
		eq.mu.Unlock()
		return
	}
	eq.closed = true
	eq.mu.Unlock()

	// 在队列锁内入列一个空元素唤醒事件线程，单独 Signal 可能在 Wait 之前丢失
	eq.q.Push(nil)
	<-eq.done
}
