// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package g711 ITU-T G.711 µ-law/A-law 编解码滤镜。
// 压扩由 github.com/zaf/g711 完成，线性 PCM 为 s16le。
package g711

import (
	law "github.com/zaf/g711"
)

// companding 一种压扩律的整块转换
type companding struct {
	encode func(lpcm []byte) []byte
	decode func(pcm []byte) []byte
}

var (
	ulaw = companding{law.EncodeUlaw, law.DecodeUlaw}
	alaw = companding{law.EncodeAlaw, law.DecodeAlaw}
)
