// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package pcap 解析 pcap 抓包文件中 UDP 承载的 RTP 会话。
package pcap

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
)

// 各层头长度
const (
	FileHeaderLen     = 24
	RecordHeaderLen   = 16
	EthernetHeaderLen = 14
	SLLHeaderLen      = 16
	IPv4HeaderLen     = 20
	UDPHeaderLen      = 8
	RTPHeaderLen      = 12
)

// 文件头魔数
const (
	magicMicros uint32 = 0xa1b2c3d4
	magicNanos  uint32 = 0xa1b23c4d
)

const (
	etherTypeIPv4 = 0x0800
	etherTypeVLAN = 0x8100
	protocolUDP   = 17
	maxSnapLen    = 256 * 1024
)

// 解析错误
var (
	ErrBadMagic     = errors.New("pcap: unknown file magic")
	ErrShortHeader  = errors.New("pcap: short header")
	ErrNotIPv4      = errors.New("pcap: not an IPv4 packet")
	ErrLinkType     = errors.New("pcap: unsupported link type")
	ErrBadIPHeader  = errors.New("pcap: bad IPv4 header")
	ErrBadUDPHeader = errors.New("pcap: bad UDP header")
)

// LinkType 链路层类型
type LinkType uint32

// 支持的链路层类型
const (
	LinkTypeEthernet LinkType = 1
	LinkTypeRaw      LinkType = 101
	LinkTypeLinuxSLL LinkType = 113
)

func (lt LinkType) String() string {
	switch lt {
	case LinkTypeEthernet:
		return "ethernet"
	case LinkTypeRaw:
		return "raw"
	case LinkTypeLinuxSLL:
		return "linux_sll"
	default:
		return fmt.Sprintf("LinkType(%d)", uint32(lt))
	}
}

// FileHeader pcap 文件头
type FileHeader struct {
	ByteOrder    binary.ByteOrder
	Nanos        bool // 记录头中的时间小数部分单位为纳秒
	VersionMajor uint16
	VersionMinor uint16
	SnapLen      uint32
	LinkType     LinkType
}

// ParseFileHeader 解析 24 字节文件头，魔数决定后续记录头的字节序
func ParseFileHeader(p []byte) (FileHeader, error) {
	var h FileHeader
	if len(p) < FileHeaderLen {
		return h, ErrShortHeader
	}

	switch {
	case binary.LittleEndian.Uint32(p) == magicMicros:
		h.ByteOrder = binary.LittleEndian
	case binary.BigEndian.Uint32(p) == magicMicros:
		h.ByteOrder = binary.BigEndian
	case binary.LittleEndian.Uint32(p) == magicNanos:
		h.ByteOrder, h.Nanos = binary.LittleEndian, true
	case binary.BigEndian.Uint32(p) == magicNanos:
		h.ByteOrder, h.Nanos = binary.BigEndian, true
	default:
		return h, fmt.Errorf("%w: %x", ErrBadMagic, p[:4])
	}

	h.VersionMajor = h.ByteOrder.Uint16(p[4:])
	h.VersionMinor = h.ByteOrder.Uint16(p[6:])
	h.SnapLen = h.ByteOrder.Uint32(p[16:])
	h.LinkType = LinkType(h.ByteOrder.Uint32(p[20:]))
	switch h.LinkType {
	case LinkTypeEthernet, LinkTypeRaw, LinkTypeLinuxSLL:
	default:
		return h, fmt.Errorf("%w: %s", ErrLinkType, h.LinkType)
	}
	return h, nil
}

// RecordHeader 每个抓包记录前的头
type RecordHeader struct {
	TsSec   uint32
	TsFrac  uint32 // 微秒或纳秒
	CapLen  uint32
	OrigLen uint32
}

// ParseRecord 按文件字节序解析记录头
func (h *FileHeader) ParseRecord(p []byte) RecordHeader {
	return RecordHeader{
		TsSec:   h.ByteOrder.Uint32(p),
		TsFrac:  h.ByteOrder.Uint32(p[4:]),
		CapLen:  h.ByteOrder.Uint32(p[8:]),
		OrigLen: h.ByteOrder.Uint32(p[12:]),
	}
}

// Micros 抓包时间，单位微秒
func (h *FileHeader) Micros(r RecordHeader) int64 {
	frac := int64(r.TsFrac)
	if h.Nanos {
		frac /= 1000
	}
	return int64(r.TsSec)*1000000 + frac
}

// networkLayer 去掉链路层头，返回 IPv4 包
func networkLayer(lt LinkType, frame []byte) ([]byte, error) {
	switch lt {
	case LinkTypeEthernet:
		if len(frame) < EthernetHeaderLen {
			return nil, ErrShortHeader
		}
		etherType := binary.BigEndian.Uint16(frame[12:])
		frame = frame[EthernetHeaderLen:]
		if etherType == etherTypeVLAN {
			if len(frame) < 4 {
				return nil, ErrShortHeader
			}
			etherType = binary.BigEndian.Uint16(frame[2:])
			frame = frame[4:]
		}
		if etherType != etherTypeIPv4 {
			return nil, ErrNotIPv4
		}
		return frame, nil
	case LinkTypeLinuxSLL:
		if len(frame) < SLLHeaderLen {
			return nil, ErrShortHeader
		}
		if binary.BigEndian.Uint16(frame[14:]) != etherTypeIPv4 {
			return nil, ErrNotIPv4
		}
		return frame[SLLHeaderLen:], nil
	case LinkTypeRaw:
		return frame, nil
	default:
		return nil, ErrLinkType
	}
}

// IPv4Header IPv4 头中用到的字段
type IPv4Header struct {
	HeaderLen int
	TotalLen  int
	Protocol  uint8
	Src       net.IP
	Dst       net.IP
}

func parseIPv4(p []byte) (IPv4Header, error) {
	var h IPv4Header
	if len(p) < IPv4HeaderLen {
		return h, ErrShortHeader
	}
	if p[0]>>4 != 4 {
		return h, ErrNotIPv4
	}
	h.HeaderLen = int(p[0]&0x0f) * 4
	h.TotalLen = int(binary.BigEndian.Uint16(p[2:]))
	if h.HeaderLen < IPv4HeaderLen || len(p) < h.HeaderLen || h.TotalLen < h.HeaderLen {
		return h, ErrBadIPHeader
	}
	h.Protocol = p[9]
	h.Src = net.IP(p[12:16])
	h.Dst = net.IP(p[16:20])
	return h, nil
}

// UDPHeader UDP 头
type UDPHeader struct {
	SrcPort uint16
	DstPort uint16
	Length  uint16 // 含 UDP 头
}

func parseUDP(p []byte) (UDPHeader, error) {
	var h UDPHeader
	if len(p) < UDPHeaderLen {
		return h, ErrShortHeader
	}
	h.SrcPort = binary.BigEndian.Uint16(p)
	h.DstPort = binary.BigEndian.Uint16(p[2:])
	h.Length = binary.BigEndian.Uint16(p[4:])
	if h.Length < UDPHeaderLen {
		return h, ErrBadUDPHeader
	}
	return h, nil
}

// udpPayload 从 IPv4 包中取出 UDP 载荷
func udpPayload(ip []byte) (IPv4Header, UDPHeader, []byte, error) {
	iph, err := parseIPv4(ip)
	if err != nil {
		return iph, UDPHeader{}, nil, err
	}
	if iph.Protocol != protocolUDP {
		return iph, UDPHeader{}, nil, nil
	}

	udp := ip[iph.HeaderLen:]
	udph, err := parseUDP(udp)
	if err != nil {
		return iph, udph, nil, err
	}
	if int(udph.Length) > len(udp) {
		return iph, udph, nil, fmt.Errorf("%w: length %d exceeds captured %d",
			ErrBadUDPHeader, udph.Length, len(udp))
	}
	return iph, udph, udp[UDPHeaderLen:udph.Length], nil
}
