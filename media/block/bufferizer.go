// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package block

// Bufferizer 支持跨块按精确字节数读取的缓冲，供需要任意长度读取的解析器使用。
type Bufferizer struct {
	q    Queue
	size int
	meta Meta
}

// NewBufferizer 创建空的 Bufferizer
func NewBufferizer() *Bufferizer {
	return &Bufferizer{}
}

// Put 追加一个块
func (bz *Bufferizer) Put(b *Block) {
	if b == nil {
		return
	}
	bz.size += b.Len()
	bz.q.Put(b)
}

// PutQueue 把 q 中的块全部移入
func (bz *Bufferizer) PutQueue(q *Queue) {
	for b := q.Get(); b != nil; b = q.Get() {
		bz.Put(b)
	}
}

// Avail 可读字节数
func (bz *Bufferizer) Avail() int { return bz.size }

// Meta 最近一次读取所触及的最后一个块的元数据
func (bz *Bufferizer) Meta() Meta { return bz.meta }

// ReadFull 读取恰好 len(p) 个字节；可读数据不足时不读取任何数据并返回 0
func (bz *Bufferizer) ReadFull(p []byte) int {
	return bz.drain(p, len(p))
}

// Skip 丢弃 n 个字节，规则同 ReadFull
func (bz *Bufferizer) Skip(n int) int {
	return bz.drain(nil, n)
}

func (bz *Bufferizer) drain(p []byte, n int) int {
	if n <= 0 || bz.size < n {
		return 0
	}

	done := 0
	for done < n {
		b := bz.q.PeekFirst()
		cp := b.Len()
		if cp > n-done {
			cp = n - done
		}
		if p != nil {
			copy(p[done:], b.buf[b.r:b.r+cp])
		}
		b.r += cp
		done += cp
		bz.meta = b.Meta
		if b.Len() == 0 {
			bz.q.Get()
		}
	}
	bz.size -= n
	return n
}

// Flush 丢弃所有数据
func (bz *Bufferizer) Flush() {
	bz.q.Flush()
	bz.size = 0
}
