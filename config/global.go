// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cnotch/pcapmux/media/ticker"
	cfg "github.com/cnotch/loader"
	"github.com/cnotch/xlog"
)

// 应用名
const (
	Vendor  = "CAOHONGJU"
	Name    = "pcapmux"
	Version = "V1.0.0"
)

// 配置错误
var (
	ErrNoInput  = errors.New("config: no input capture file")
	ErrNoOutput = errors.New("config: no output file")
)

var globalC *config

// InitConfig 初始化 Config
func InitConfig() {
	exe, err := os.Executable()
	if err != nil {
		xlog.Panic(err.Error())
	}

	configPath := filepath.Join(filepath.Dir(exe), Name+".conf")

	globalC = new(config)
	globalC.initFlags()

	// 创建或加载配置文件
	if err := cfg.Load(globalC,
		&cfg.JSONLoader{Path: configPath, CreatedIfNonExsit: true},
		&cfg.EnvLoader{Prefix: strings.ToUpper(Name)},
		&cfg.FlagLoader{}); err != nil {
		// 异常，直接退出
		xlog.Panic(err.Error())
	}

	// 初始化日志
	globalC.Log.initLogger()
}

// Validate 检查必需的配置项
func Validate() error {
	if globalC == nil {
		return ErrNoInput
	}
	return globalC.validate()
}

// Inputs 主输入和混音输入，主输入在前
func Inputs() []InputConfig {
	if globalC == nil {
		return nil
	}
	return globalC.inputs()
}

// Output 输出配置
func Output() OutputConfig {
	if globalC == nil {
		return OutputConfig{}
	}
	return globalC.Output
}

// Pacer 调度策略
func Pacer() (ticker.Pacer, error) {
	if globalC == nil {
		return ticker.FixedInterval(ticker.DefaultInterval), nil
	}
	return ticker.ParsePacer(globalC.Pacing, time.Duration(globalC.Interval)*time.Millisecond)
}

// StatsInterval 周期统计日志的间隔，0 表示不输出
func StatsInterval() time.Duration {
	if globalC == nil || globalC.Stats <= 0 {
		return 0
	}
	return time.Duration(globalC.Stats) * time.Second
}
