// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package block 提供滤镜之间传递数据的基础缓冲：Block、Chain、Queue 和 Bufferizer。
package block

// Flags 块的协议标记
type Flags uint8

// 块标记
const (
	FlagPLC Flags = 1 << iota // 含有补偿缺失数据的静音
)

// Meta 块的附加元数据
type Meta struct {
	Timestamp uint64
	Marker    bool
	Flags     Flags
}

// Block 带读写游标的字节块，有效数据为 buf[r:w]
type Block struct {
	Meta
	buf []byte
	r   int
	w   int
}

// New 分配一个容量为 size 的空块
func New(size int) *Block {
	if size < 0 {
		panic("block.New: negative size")
	}
	return &Block{buf: make([]byte, size)}
}

// From 使用 p 作为块的有效数据，调用者此后不能再修改 p
func From(p []byte) *Block {
	return &Block{buf: p, w: len(p)}
}

// Copy 复制 p 的内容到新块
func Copy(p []byte) *Block {
	b := New(len(p))
	b.w = copy(b.buf, p)
	return b
}

// Bytes 返回未读的数据
func (b *Block) Bytes() []byte { return b.buf[b.r:b.w] }

// Len 未读数据长度
func (b *Block) Len() int { return b.w - b.r }

// Cap 分配的容量
func (b *Block) Cap() int { return cap(b.buf) }

// Free 写游标之后剩余的空间
func (b *Block) Free() int { return len(b.buf) - b.w }

// Write 在写游标处追加数据，空间不足时扩展分配
func (b *Block) Write(p []byte) (n int, err error) {
	if len(p) > b.Free() {
		b.grow(len(p))
	}
	n = copy(b.buf[b.w:], p)
	b.w += n
	return n, nil
}

// WriteByte 追加一个字节
func (b *Block) WriteByte(c byte) error {
	if b.Free() == 0 {
		b.grow(1)
	}
	b.buf[b.w] = c
	b.w++
	return nil
}

// Skip 前移读游标 n 个字节，返回实际跳过的字节数
func (b *Block) Skip(n int) int {
	if n > b.Len() {
		n = b.Len()
	}
	if n < 0 {
		n = 0
	}
	b.r += n
	return n
}

// Truncate 只保留前 n 个未读字节
func (b *Block) Truncate(n int) {
	if n < 0 || n > b.Len() {
		panic("block.Block.Truncate: out of range")
	}
	b.w = b.r + n
}

func (b *Block) grow(n int) {
	buf := make([]byte, 2*len(b.buf)+n)
	copy(buf, b.buf[b.r:b.w])
	b.w -= b.r
	b.r = 0
	b.buf = buf
}
