// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package h264 H.264 NAL 单元的常量和 Annex-B 辅助函数。
package h264

import "bytes"

// H264 NAL 单元类型 (T-REC-H.264 Table 7-1)
const (
	NalUnspecified = 0
	NalSlice       = 1  // 不分区非IDR图像的片
	NalDpa         = 2  // 片分区A
	NalDpb         = 3  // 片分区B
	NalDpc         = 4  // 片分区C
	NalIdrSlice    = 5  // IDR图像中的片（I帧）
	NalSei         = 6  // 补充增强信息单元
	NalSps         = 7  // 序列参数集
	NalPps         = 8  // 图像参数集
	NalAud         = 9  // 分界符
	NalEndSequence = 10 // 序列结束
	NalEndStream   = 11 // 码流结束
	NalFillerData  = 12 // 填充
	NalReserved23  = 23

	// NAL 在 RTP 包中的扩展 (RFC 6184)
	NalStapaInRtp = 24 // 单一时间的组合包
	NalFuAInRtp   = 28 // 分片的单元
	NalFuBInRtp   = 29

	NalTypeBitmask = 0x1F
	NalRefIdcMask  = 0x60
	NalForbidden   = 0x80
)

// FU header 标志位
const (
	FuStartBit = 0x80
	FuEndBit   = 0x40
)

// StartCode Annex-B 四字节起始码
var StartCode = []byte{0, 0, 0, 1}

// AccessUnitDelimiter 类型 9 的分界符 NAL，primary_pic_type=7（任意）
var AccessUnitDelimiter = []byte{0, 0, 0, 1, NalAud, 0xf0}

// NalType 取 NAL 头中的类型
func NalType(header byte) byte {
	return header & NalTypeBitmask
}

// IsSingleNal 是否为可以直接封装的单个 NAL 单元
func IsSingleNal(t byte) bool {
	return t >= NalSlice && t <= NalReserved23
}

// FuHeader 由 FU indicator 和 FU header 还原原始 NAL 头
func FuHeader(indicator, header byte) byte {
	return indicator&(NalForbidden|NalRefIdcMask) | header&NalTypeBitmask
}

// SplitAnnexB 按起始码切分访问单元，返回不含起始码的 NAL 单元
func SplitAnnexB(au []byte) [][]byte {
	var nals [][]byte
	for {
		start := nextStartCode(au)
		if start < 0 {
			break
		}
		// 跳过 00 00 01 或 00 00 00 01
		au = au[start:]
		if au[2] == 1 {
			au = au[3:]
		} else {
			au = au[4:]
		}
		end := nextStartCode(au)
		if end < 0 {
			if len(au) > 0 {
				nals = append(nals, au)
			}
			break
		}
		if end > 0 {
			nals = append(nals, au[:end])
		}
		au = au[end:]
	}
	return nals
}

func nextStartCode(p []byte) int {
	i := bytes.Index(p, []byte{0, 0, 1})
	if i < 0 {
		return -1
	}
	if i > 0 && p[i-1] == 0 {
		return i - 1
	}
	return i
}

// HasNal 访问单元中是否包含类型为 t 的 NAL
func HasNal(au []byte, t byte) bool {
	for _, nal := range SplitAnnexB(au) {
		if NalType(nal[0]) == t {
			return true
		}
	}
	return false
}

// IsKeyFrame 访问单元是否包含 IDR 片
func IsKeyFrame(au []byte) bool {
	return HasNal(au, NalIdrSlice)
}
