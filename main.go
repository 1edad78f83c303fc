// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cnotch/pcapmux/config"
	"github.com/cnotch/pcapmux/media/builtin"
	"github.com/cnotch/pcapmux/media/filter"
	"github.com/cnotch/pcapmux/pipeline"
	"github.com/cnotch/pcapmux/stats"
	"github.com/cnotch/scheduler"
	"github.com/cnotch/xlog"
)

const statsJobTag = "periodic pipeline stats"

func main() {
	// 初始化配置
	config.InitConfig()
	// 初始化全局计划任务
	scheduler.SetPanicHandler(func(job *scheduler.ManagedJob, r interface{}) {
		xlog.Errorf("scheduler task panic. tag: %v, recover: %v", job.Tag(), r)
	})

	if err := config.Validate(); err != nil {
		xlog.Errorf("%s", err.Error())
		os.Exit(2)
	}
	if err := run(); err != nil {
		xlog.Errorf("%s", err.Error())
		os.Exit(1)
	}
}

func run() error {
	logger := xlog.L()
	pacer, err := config.Pacer()
	if err != nil {
		return err
	}

	fa := builtin.NewFactory(logger)
	defer fa.Close()

	g, err := pipeline.Build(fa, pipeline.Config{
		Inputs: config.Inputs(),
		Output: config.Output(),
		Pacer:  pacer,
	}, logger)
	if err != nil {
		return err
	}

	if d := config.StatsInterval(); d > 0 {
		job, err := startStats(g.Filters(), d, logger)
		if err != nil {
			return err
		}
		defer job.Cancel()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = g.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Warnf("interrupted, output may be incomplete")
		return nil
	}
	return err
}

// startStats 周期输出流量和进程运行时信息
func startStats(fa []*filter.Filter, d time.Duration, logger *xlog.Logger) (*scheduler.ManagedJob, error) {
	prev := make([]stats.FlowSample, len(fa))
	last := time.Now()
	return scheduler.PeriodFunc(d, d, func() {
		now := time.Now()
		for i, f := range fa {
			cur := f.Flow().GetSample()
			in, out := cur.Sub(prev[i]).Rate(now.Sub(last))
			prev[i] = cur
			logger.Infof("%s: %s, %.1f/%.1f kbit/s", f.Name(), cur, in, out)
		}
		last = now
		logger.Infof("runtime: %s", stats.MeasureRuntime())
	}, statsJobTag)
}
