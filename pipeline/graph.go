// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cnotch/pcapmux/av/format/mpegts"
	"github.com/cnotch/pcapmux/av/format/pcap"
	"github.com/cnotch/pcapmux/media/filter"
	"github.com/cnotch/pcapmux/media/ticker"
	"github.com/cnotch/pcapmux/stats"
	"github.com/cnotch/xlog"
	"golang.org/x/sync/errgroup"
)

// 结束排空时等待的 tick 数和最长时间
const (
	drainTicks   = 3
	drainTimeout = 5 * time.Second
)

// ErrTickerStopped 调度器意外退出
var ErrTickerStopped = errors.New("pipeline: ticker stopped unexpectedly")

var errFinished = errors.New("pipeline: all sources finished")

type edge struct {
	src    *filter.Filter
	outpin int
	dst    *filter.Filter
	inpin  int
}

// Graph 构建好的滤镜图
type Graph struct {
	factory *filter.Factory
	ticker  *ticker.Ticker
	logger  *xlog.Logger

	created []*filter.Filter // 创建顺序
	filters []*filter.Filter // 拓扑序
	edges   []edge
	sources []*filter.Filter
	muxer   *filter.Filter

	eos    chan *filter.Filter
	closed bool
}

func (g *Graph) add(f *filter.Filter, err error) (*filter.Filter, error) {
	if err != nil {
		return nil, err
	}
	g.created = append(g.created, f)
	return f, nil
}

func (g *Graph) create(fa *filter.Factory, id filter.ID) (*filter.Filter, error) {
	return g.add(fa.Create(id))
}

func (g *Graph) createDecoder(fa *filter.Factory, tag string) (*filter.Filter, error) {
	return g.add(fa.CreateDecoder(tag))
}

func (g *Graph) createEncoder(fa *filter.Factory, tag string) (*filter.Filter, error) {
	return g.add(fa.CreateEncoder(tag))
}

// link 通过 ConnectionHelper 连接，并记录连接以便拆除
func (g *Graph) link(h *filter.ConnectionHelper, f *filter.Filter, inpin, outpin int) error {
	prev := h.Last()
	if err := h.Link(f, inpin, outpin); err != nil {
		return err
	}
	if prev.Filter != nil {
		g.edges = append(g.edges, edge{prev.Filter, prev.Pin, f, inpin})
	}
	return nil
}

// watchSources 异步接收所有源的结束通知
func (g *Graph) watchSources() {
	g.eos = make(chan *filter.Filter, len(g.sources))
	for _, src := range g.sources {
		src.AddListener(func(f *filter.Filter, event filter.EventID, arg interface{}) {
			if event == filter.EventEndOfStream {
				g.eos <- f
			}
		}, false)
	}
}

// Filters 按拓扑序返回所有滤镜
func (g *Graph) Filters() []*filter.Filter { return g.filters }

// Sources 源滤镜，主输入在前
func (g *Graph) Sources() []*filter.Filter { return g.sources }

// Muxer 复用滤镜
func (g *Graph) Muxer() *filter.Filter { return g.muxer }

// Ticker 驱动滤镜图的调度器
func (g *Graph) Ticker() *ticker.Ticker { return g.ticker }

// Run 运行直到所有源结束或 ctx 取消，然后排空、停止并拆除滤镜图。
// 所有源正常结束时返回 nil。
func (g *Graph) Run(ctx context.Context) error {
	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		for remaining := len(g.sources); remaining > 0; remaining-- {
			select {
			case f := <-g.eos:
				g.logger.Infof("%s reached end of stream", f.Name())
			case <-gctx.Done():
				return nil
			}
		}
		return errFinished
	})
	eg.Go(func() error {
		select {
		case <-gctx.Done():
			return ctx.Err()
		case <-g.ticker.Done():
			return ErrTickerStopped
		}
	})

	err := eg.Wait()
	if errors.Is(err, errFinished) {
		err = nil
		g.drain()
	}
	g.Close()

	if err == nil {
		_, _, err = mpegts.Frames(g.muxer)
	}
	return err
}

// drain 让缓冲在队列中的数据流到复用器
func (g *Graph) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for i := 0; i < drainTicks; i++ {
		if err := g.ticker.Barrier(ctx); err != nil {
			g.logger.Warnf("drain: %s", err.Error())
			return
		}
	}
}

// Close 停止调度器，摘除、断开并销毁所有滤镜，可重复调用
func (g *Graph) Close() {
	if g.closed {
		return
	}
	g.closed = true
	g.teardown()
	g.logSummary()
}

func (g *Graph) teardown() {
	if g.ticker != nil {
		g.ticker.Stop()
		if err := g.ticker.DetachAll(); err != nil {
			g.logger.Errorf("detach: %s", err.Error())
		}
	}
	for i := len(g.edges) - 1; i >= 0; i-- {
		e := g.edges[i]
		if err := filter.Unlink(e.src, e.outpin, e.dst, e.inpin); err != nil {
			g.logger.Errorf("unlink: %s", err.Error())
		}
	}
	g.edges = nil
	for i := len(g.created) - 1; i >= 0; i-- {
		if err := g.created[i].Destroy(); err != nil {
			g.logger.Errorf("destroy: %s", err.Error())
		}
	}
}

// FlowSamples 每个滤镜的流量，键为滤镜名和序号
func (g *Graph) FlowSamples() map[string]stats.FlowSample {
	samples := make(map[string]stats.FlowSample, len(g.filters))
	for i, f := range g.filters {
		samples[fmt.Sprintf("%d:%s", i, f.Name())] = f.Flow().GetSample()
	}
	return samples
}

func (g *Graph) logSummary() {
	if g.ticker == nil {
		return
	}
	for i, src := range g.sources {
		if st, ok := pcap.StatsOf(src); ok {
			g.logger.Infof("input %d: records=%d packets=%d duplicates=%d dropped=%d",
				i, st.Records, st.Packets, st.Duplicates, st.Dropped)
		}
	}
	if g.muxer != nil {
		audio, video, err := mpegts.Frames(g.muxer)
		if err != nil {
			g.logger.Errorf("output: audio=%d video=%d: %s", audio, video, err.Error())
		} else {
			g.logger.Infof("output: audio=%d video=%d frames", audio, video)
		}
	}
	g.logger.Infof("pipeline stopped after %d ticks, %s", g.ticker.Ticks(), g.factory.Flow().GetSample())
}
