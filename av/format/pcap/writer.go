// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pcap

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"time"
)

// Writer 写小端、微秒精度的 pcap 文件。
// 只用于生成各包测试所需的合成抓包，解复用器不依赖它。
type Writer struct {
	w        io.Writer
	linkType LinkType
	hdr      [RecordHeaderLen]byte
}

// NewWriter 写入文件头并返回 Writer
func NewWriter(w io.Writer, linkType LinkType) (*Writer, error) {
	var fh [FileHeaderLen]byte
	le := binary.LittleEndian
	le.PutUint32(fh[0:], magicMicros)
	le.PutUint16(fh[4:], 2)
	le.PutUint16(fh[6:], 4)
	le.PutUint32(fh[16:], 65535)
	le.PutUint32(fh[20:], uint32(linkType))
	if _, err := w.Write(fh[:]); err != nil {
		return nil, err
	}
	return &Writer{w: w, linkType: linkType}, nil
}

// LinkType 文件的链路层类型
func (w *Writer) LinkType() LinkType { return w.linkType }

// WriteRecord 写入一个抓包记录
func (w *Writer) WriteRecord(ts time.Time, frame []byte) error {
	le := binary.LittleEndian
	le.PutUint32(w.hdr[0:], uint32(ts.Unix()))
	le.PutUint32(w.hdr[4:], uint32(ts.Nanosecond()/1000))
	le.PutUint32(w.hdr[8:], uint32(len(frame)))
	le.PutUint32(w.hdr[12:], uint32(len(frame)))
	if _, err := w.w.Write(w.hdr[:]); err != nil {
		return err
	}
	_, err := w.w.Write(frame)
	return err
}

// ErrAddrFamily 只支持 IPv4 地址
var ErrAddrFamily = errors.New("pcap: only IPv4 addresses are supported")

// UDPFrame 构造 Ethernet/IPv4/UDP 帧，校验和置零
func UDPFrame(src, dst *net.UDPAddr, payload []byte) ([]byte, error) {
	srcIP, dstIP := src.IP.To4(), dst.IP.To4()
	if srcIP == nil || dstIP == nil {
		return nil, ErrAddrFamily
	}

	udpLen := UDPHeaderLen + len(payload)
	ipLen := IPv4HeaderLen + udpLen
	frame := make([]byte, EthernetHeaderLen+ipLen)
	be := binary.BigEndian

	// ethernet: 本地管理的 MAC 地址
	copy(frame[0:6], []byte{0x02, 0, 0, 0, 0, 0x02})
	copy(frame[6:12], []byte{0x02, 0, 0, 0, 0, 0x01})
	be.PutUint16(frame[12:], etherTypeIPv4)

	ip := frame[EthernetHeaderLen:]
	ip[0] = 0x45
	be.PutUint16(ip[2:], uint16(ipLen))
	ip[8] = 64
	ip[9] = protocolUDP
	copy(ip[12:16], srcIP)
	copy(ip[16:20], dstIP)
	be.PutUint16(ip[10:], ipChecksum(ip[:IPv4HeaderLen]))

	udp := ip[IPv4HeaderLen:]
	be.PutUint16(udp[0:], uint16(src.Port))
	be.PutUint16(udp[2:], uint16(dst.Port))
	be.PutUint16(udp[4:], uint16(udpLen))
	copy(udp[UDPHeaderLen:], payload)
	return frame, nil
}

func ipChecksum(h []byte) uint16 {
	var sum uint32
	for i := 0; i+1 < len(h); i += 2 {
		sum += uint32(h[i])<<8 | uint32(h[i+1])
	}
	for sum>>16 != 0 {
		sum = sum&0xffff + sum>>16
	}
	return ^uint16(sum)
}
