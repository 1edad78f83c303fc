// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"flag"
	"os"

	"github.com/cnotch/xlog"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig 日志配置
type LogConfig struct {
	Level      xlog.Level `json:"level"`      // 输出级别
	ToFile     bool       `json:"tofile"`     // 是否同时写入文件
	Filename   string     `json:"filename"`   // 日志文件名称
	MaxSize    int        `json:"maxsize"`    // 单个文件的最大尺寸，单位 M
	MaxDays    int        `json:"maxdays"`    // 旧日志最多保存天数
	MaxBackups int        `json:"maxbackups"` // 旧日志最多保存个数，与 MaxDays 同时生效
	Compress   bool       `json:"compress"`   // 是否用 gzip 压缩旧日志
}

func (c *LogConfig) initFlags() {
	flag.Var(&c.Level, "log-level",
		"Set the log level to output")
	flag.BoolVar(&c.ToFile, "log-tofile", false,
		"Determines if logs should be saved to file")
	flag.StringVar(&c.Filename, "log-filename",
		"./logs/"+Name+".log", "Set the file to write logs to")
	flag.IntVar(&c.MaxSize, "log-maxsize", 20,
		"Set the maximum size in megabytes of the log file before it gets rotated")
	flag.IntVar(&c.MaxDays, "log-maxdays", 7,
		"Set the maximum days of old log files to retain")
	flag.IntVar(&c.MaxBackups, "log-maxbackups", 14,
		"Set the maximum number of old log files to retain")
	flag.BoolVar(&c.Compress, "log-compress", false,
		"Determines if the log files should be compressed")
}

// fileWriter 按大小滚动的日志文件
func (c *LogConfig) fileWriter() *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   c.Filename,
		MaxSize:    c.MaxSize,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxDays,
		LocalTime:  true,
		Compress:   c.Compress,
	}
}

// newLogger 控制台输出，启用文件时再加一路 JSON 输出
func (c *LogConfig) newLogger(console *os.File) *xlog.Logger {
	consoleCore := xlog.NewCore(xlog.NewConsoleEncoder(xlog.LstdFlags|xlog.Lmicroseconds|xlog.Llongfile),
		xlog.Lock(console), c.Level)
	if !c.ToFile {
		return xlog.New(consoleCore, xlog.AddCaller())
	}
	return xlog.New(xlog.NewTee(consoleCore,
		xlog.NewCore(xlog.NewJSONEncoder(xlog.Llongfile), c.fileWriter(), c.Level)),
		xlog.AddCaller())
}

// 初始化根日志
func (c *LogConfig) initLogger() {
	xlog.ReplaceGlobal(c.newLogger(os.Stderr))
}
