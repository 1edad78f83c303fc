// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ticker

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// DefaultInterval 固定间隔调度的缺省 tick 间隔
const DefaultInterval = 10 * time.Millisecond

// Tick 一次调度轮次的信息
type Tick struct {
	Seq   uint64    // tick 序号，从 1 开始
	Start time.Time // 本轮开始时间
	Busy  bool      // 本轮是否有任何队列产生了数据
}

// Pacer 决定两次 tick 之间的等待策略
type Pacer interface {
	Wait(t Tick)
}

type sleepFunc func(time.Duration)

// NoPacing 不等待，只让出处理器，等同于原始的忙循环
func NoPacing() Pacer { return noPacer{} }

type noPacer struct{}

func (noPacer) Wait(Tick) { runtime.Gosched() }

// FixedInterval 按固定间隔调度；落后超过一个间隔时重新对齐，不补发积压的 tick
func FixedInterval(interval time.Duration) Pacer {
	return newFixedPacer(interval, time.Now, time.Sleep)
}

type fixedPacer struct {
	interval time.Duration
	next     time.Time
	now      func() time.Time
	sleep    sleepFunc
}

func newFixedPacer(interval time.Duration, now func() time.Time, sleep sleepFunc) *fixedPacer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &fixedPacer{interval: interval, now: now, sleep: sleep}
}

func (p *fixedPacer) Wait(t Tick) {
	if p.next.IsZero() {
		p.next = t.Start
	}
	p.next = p.next.Add(p.interval)

	now := p.now()
	d := p.next.Sub(now)
	switch {
	case d > 0:
		p.sleep(d)
	case -d > p.interval:
		p.next = now
	}
}

// Adaptive 空闲时等待时间倍增直到 max，有数据流动时回到 min
func Adaptive(min, max time.Duration) Pacer {
	return newAdaptivePacer(min, max, time.Sleep)
}

const adaptiveStep = time.Millisecond

type adaptivePacer struct {
	min   time.Duration
	max   time.Duration
	cur   time.Duration
	sleep sleepFunc
}

func newAdaptivePacer(min, max time.Duration, sleep sleepFunc) *adaptivePacer {
	if min < 0 {
		min = 0
	}
	if max < min {
		max = min
	}
	return &adaptivePacer{min: min, max: max, cur: min, sleep: sleep}
}

func (p *adaptivePacer) Wait(t Tick) {
	if t.Busy {
		p.cur = p.min
	} else {
		p.cur *= 2
		if p.cur < adaptiveStep {
			p.cur = adaptiveStep
		}
		if p.cur > p.max {
			p.cur = p.max
		}
	}

	if p.cur <= 0 {
		runtime.Gosched()
		return
	}
	p.sleep(p.cur)
}

// ParsePacer 根据名称创建调度策略：none、fixed 或 adaptive
func ParsePacer(mode string, interval time.Duration) (Pacer, error) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	switch strings.ToLower(mode) {
	case "none":
		return NoPacing(), nil
	case "", "fixed":
		return FixedInterval(interval), nil
	case "adaptive":
		return Adaptive(0, interval), nil
	default:
		return nil, fmt.Errorf("ticker: unknown pacing mode %q", mode)
	}
}
