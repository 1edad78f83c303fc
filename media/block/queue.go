// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package block

import "errors"

// ErrTooLarge 队列太长了
var ErrTooLarge = errors.New("block.Queue: too large")

const maxLen = int(^uint(0) >> 16)

// Queue 块的先进先出队列，是数据跨越 pin 的唯一通道。
// 一个队列只有一个生产者和一个消费者，不做并发保护。
type Queue struct {
	buf  []*Block // contents are buf[off : len(buf)]
	off  int      // read at buf[off], write at buf[len(buf)]
	puts uint64
}

// NewQueue 创建空队列
func NewQueue() *Queue {
	return &Queue{}
}

// 避免内存泄露，重置指针引用
func resetSlice(blocks []*Block) {
	for i := range blocks {
		blocks[i] = nil
	}
}

// Len 队列中的块数
func (q *Queue) Len() int { return len(q.buf) - q.off }

// Empty 队列是否为空
func (q *Queue) Empty() bool { return len(q.buf) <= q.off }

// Puts 累计入队的块数，只增不减
func (q *Queue) Puts() uint64 { return q.puts }

// Put 添加块到队尾，队列接管块的所有权
func (q *Queue) Put(b *Block) {
	if b == nil {
		return
	}
	m, ok := q.tryGrowByReslice(1)
	if !ok {
		m = q.grow(1)
	}
	q.buf[m] = b
	q.puts++
}

// Get 取出队首块，空队列返回 nil
func (q *Queue) Get() *Block {
	if q.Empty() {
		q.Flush()
		return nil
	}
	b := q.buf[q.off]
	q.buf[q.off] = nil
	q.off++
	return b
}

// PeekFirst 查看队首块
func (q *Queue) PeekFirst() *Block {
	if q.Empty() {
		return nil
	}
	return q.buf[q.off]
}

// PeekLast 查看队尾块
func (q *Queue) PeekLast() *Block {
	if q.Empty() {
		return nil
	}
	return q.buf[len(q.buf)-1]
}

// Remove 从队列中摘除指定块
func (q *Queue) Remove(b *Block) bool {
	for i := q.off; i < len(q.buf); i++ {
		if q.buf[i] == b {
			copy(q.buf[i:], q.buf[i+1:])
			q.buf[len(q.buf)-1] = nil
			q.buf = q.buf[:len(q.buf)-1]
			return true
		}
	}
	return false
}

// Range 按顺序遍历队列中的块，f 返回 false 时停止
func (q *Queue) Range(f func(b *Block) bool) {
	for _, b := range q.buf[q.off:] {
		if !f(b) {
			return
		}
	}
}

// Flush 丢弃所有块
func (q *Queue) Flush() {
	resetSlice(q.buf[q.off:])
	q.buf = q.buf[:0]
	q.off = 0
}

func (q *Queue) tryGrowByReslice(n int) (int, bool) {
	if l := len(q.buf); n <= cap(q.buf)-l {
		q.buf = q.buf[:l+n]
		return l, true
	}
	return 0, false
}

func (q *Queue) grow(n int) int {
	m := q.Len()
	if m == 0 && q.off != 0 {
		q.Flush()
	}
	if i, ok := q.tryGrowByReslice(n); ok {
		return i
	}

	c := cap(q.buf)
	if n <= c/2-m {
		// slide down instead of allocating
		copy(q.buf, q.buf[q.off:])
		resetSlice(q.buf[m:])
	} else if c > maxLen-c-n {
		panic(ErrTooLarge)
	} else {
		buf := make([]*Block, 2*c+n)
		copy(buf, q.buf[q.off:])
		resetSlice(q.buf[q.off:])
		q.buf = buf
	}
	q.off = 0
	q.buf = q.buf[:m+n]
	return m
}
