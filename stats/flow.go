// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package stats 提供滤镜流量计数和进程运行时采样。
package stats

import (
	"fmt"
	"sync/atomic"
	"time"
)

// FlowSample 流量采样
type FlowSample struct {
	InBytes   int64 `json:"inbytes"`
	InBlocks  int64 `json:"inblocks"`
	OutBytes  int64 `json:"outbytes"`
	OutBlocks int64 `json:"outblocks"`
}

// Sub 两次采样之差
func (s FlowSample) Sub(prev FlowSample) FlowSample {
	return FlowSample{
		InBytes:   s.InBytes - prev.InBytes,
		InBlocks:  s.InBlocks - prev.InBlocks,
		OutBytes:  s.OutBytes - prev.OutBytes,
		OutBlocks: s.OutBlocks - prev.OutBlocks,
	}
}

// Add 采样累加
func (s *FlowSample) Add(o FlowSample) {
	s.InBytes += o.InBytes
	s.InBlocks += o.InBlocks
	s.OutBytes += o.OutBytes
	s.OutBlocks += o.OutBlocks
}

// Rate 按时间段换算的输入输出速率，单位 kbit/s
func (s FlowSample) Rate(d time.Duration) (in, out float64) {
	if d <= 0 {
		return 0, 0
	}
	secs := d.Seconds()
	return float64(s.InBytes) * 8 / 1000 / secs, float64(s.OutBytes) * 8 / 1000 / secs
}

func (s FlowSample) String() string {
	return fmt.Sprintf("in=%dB/%d out=%dB/%d", s.InBytes, s.InBlocks, s.OutBytes, s.OutBlocks)
}

// Flow 流量计数，每次 Add 计一个块
type Flow interface {
	AddIn(size int64)
	AddOut(size int64)
	GetSample() FlowSample
}

type counter struct {
	inBytes, inBlocks   atomic.Int64
	outBytes, outBlocks atomic.Int64
}

func (c *counter) addIn(size int64) {
	c.inBytes.Add(size)
	c.inBlocks.Add(1)
}

func (c *counter) addOut(size int64) {
	c.outBytes.Add(size)
	c.outBlocks.Add(1)
}

func (c *counter) sample() FlowSample {
	return FlowSample{
		InBytes:   c.inBytes.Load(),
		InBlocks:  c.inBlocks.Load(),
		OutBytes:  c.outBytes.Load(),
		OutBlocks: c.outBlocks.Load(),
	}
}

type flow struct{ c counter }

// NewFlow 创建流量计数
func NewFlow() Flow { return &flow{} }

func (r *flow) AddIn(size int64)      { r.c.addIn(size) }
func (r *flow) AddOut(size int64)     { r.c.addOut(size) }
func (r *flow) GetSample() FlowSample { return r.c.sample() }

type childFlow struct {
	parent Flow
	c      counter
}

// NewChildFlow 创建子计数，计数同时累加到 parent
func NewChildFlow(parent Flow) Flow {
	return &childFlow{parent: parent}
}

func (r *childFlow) AddIn(size int64) {
	r.c.addIn(size)
	r.parent.AddIn(size)
}

func (r *childFlow) AddOut(size int64) {
	r.c.addOut(size)
	r.parent.AddOut(size)
}

func (r *childFlow) GetSample() FlowSample { return r.c.sample() }
