// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package block

// Chain 由多个块组成的一个逻辑单元。
// 交给需要连续内存的消费者之前必须调用 Linearize。
type Chain struct {
	segs []*Block
	size int
}

// Append 追加一个段，链接管块的所有权
func (c *Chain) Append(b *Block) {
	if b == nil {
		return
	}
	c.segs = append(c.segs, b)
	c.size += b.Len()
}

// Len 所有段的字节总数
func (c *Chain) Len() int { return c.size }

// Segments 段数
func (c *Chain) Segments() int { return len(c.segs) }

// Empty 链是否为空
func (c *Chain) Empty() bool { return len(c.segs) == 0 }

// Head 返回第一个段，空链返回 nil
func (c *Chain) Head() *Block {
	if len(c.segs) == 0 {
		return nil
	}
	return c.segs[0]
}

// Linearize 把所有段复制到一个新块中，元数据取自首段。
// 链本身不变，调用者通常随后 Reset。
func (c *Chain) Linearize() *Block {
	out := New(c.size)
	for _, seg := range c.segs {
		out.w += copy(out.buf[out.w:], seg.Bytes())
	}
	if len(c.segs) > 0 {
		out.Meta = c.segs[0].Meta
	}
	return out
}

// Reset 丢弃所有段
func (c *Chain) Reset() {
	for i := range c.segs {
		c.segs[i] = nil
	}
	c.segs = c.segs[:0]
	c.size = 0
}
