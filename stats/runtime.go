// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stats

import (
	"fmt"
	"runtime"
	"time"

	"github.com/kelindar/process"
)

// StartingTime 进程启动时间
var StartingTime = time.Now()

// Runtime 进程运行时采样
type Runtime struct {
	CPU        float64 `json:"cpu"`        // 进程 cpu 使用率
	Priv       int32   `json:"priv"`       // 私有内存 KB
	Virt       int32   `json:"virt"`       // 虚拟内存 KB
	HeapInuse  int32   `json:"heapinuse"`  // KB MemStats.HeapInuse
	GCCPU      float64 `json:"gccpu"`      // MemStats.GCCPUFraction
	Goroutines int32   `json:"goroutines"` // runtime.NumGoroutine()
	Uptime     int32   `json:"uptime"`     // 运行时间 S
}

// MeasureRuntime 采样进程和 Go 运行时信息
func MeasureRuntime() (rt Runtime) {
	var memory runtime.MemStats
	runtime.ReadMemStats(&memory)
	rt = Runtime{
		HeapInuse:  toKB(memory.HeapInuse),
		GCCPU:      memory.GCCPUFraction,
		Goroutines: int32(runtime.NumGoroutine()),
		Uptime:     int32(time.Since(StartingTime).Seconds()),
	}

	// 部分平台不支持进程采样
	defer func() { recover() }()
	var priv, virt int64
	process.ProcUsage(&rt.CPU, &priv, &virt)
	rt.Priv = toKB(uint64(priv))
	rt.Virt = toKB(uint64(virt))
	return
}

func (rt Runtime) String() string {
	return fmt.Sprintf("cpu=%.1f%% priv=%dKB virt=%dKB heap=%dKB goroutines=%d uptime=%ds",
		rt.CPU, rt.Priv, rt.Virt, rt.HeapInuse, rt.Goroutines, rt.Uptime)
}

// toKB 转换为 KB，避免 int32 溢出
func toKB(v uint64) int32 {
	return int32(v / 1024)
}
