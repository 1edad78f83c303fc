// Copyright calabashdad. https://github.com/calabashdad/seal.git
//
// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package mpegts 写 H.264 + MPEG 音频/AAC 的 MPEG-TS 文件。
package mpegts

import (
	"encoding/binary"
	"fmt"
	"io"
)

// PacketSize TS 包长度
const PacketSize = 188

const (
	syncByte     = 0x47
	maxTimestamp = 1<<33 - 1
)

// Writer mpegts Writer
type Writer struct {
	w       io.Writer
	audio   StreamType
	video   bool
	pcrPid  int
	patCC   int
	pmtCC   int
	videoCC int
	audioCC int
	pat     []byte // PSI section，含 CRC
	pmt     []byte
	pkt     [PacketSize]byte
	pes     []byte
}

// NewWriter 写入 PAT/PMT 并返回 Writer。
// audio 为 StreamTypeNone 时 PMT 中没有音频流。
func NewWriter(w io.Writer, audio StreamType, video bool) (*Writer, error) {
	if audio == StreamTypeNone && !video {
		return nil, fmt.Errorf("mpegts: no elementary stream")
	}
	writer := &Writer{
		w:      w,
		audio:  audio,
		video:  video,
		pcrPid: VideoPid,
	}
	if !video {
		writer.pcrPid = AudioPid
	}
	writer.pat = patSection()
	writer.pmt = pmtSection(writer.pcrPid, audio, video)

	if err := writer.writeTables(); err != nil {
		return nil, err
	}
	return writer, nil
}

// AudioType PMT 中的音频流类型
func (w *Writer) AudioType() StreamType { return w.audio }

// Carries PMT 中是否有 pid 对应的流，没有的帧被 WriteFrame 丢弃
func (w *Writer) Carries(pid int) bool {
	switch pid {
	case VideoPid:
		return w.video
	case AudioPid:
		return w.audio != StreamTypeNone
	default:
		return false
	}
}

func patSection() []byte {
	s := []byte{
		0x00,       // table_id
		0xb0, 0x0d, // section_syntax_indicator + section_length
		0x00, 0x01, // transport_stream_id
		0xc1,       // version 0, current_next_indicator
		0x00, 0x00, // section_number, last_section_number
		byte(programNum >> 8), byte(programNum),
		0xe0 | byte(pmtPid>>8), byte(pmtPid & 0xff),
	}
	return appendCRC(s)
}

func pmtSection(pcrPid int, audio StreamType, video bool) []byte {
	s := []byte{
		0x02,       // table_id
		0xb0, 0x00, // section_length 稍后填写
		byte(programNum >> 8), byte(programNum),
		0xc1,
		0x00, 0x00,
		0xe0 | byte(pcrPid>>8), byte(pcrPid),
		0xf0, 0x00, // program_info_length
	}
	if video {
		s = append(s, byte(StreamTypeH264), 0xe0|byte(VideoPid>>8), byte(VideoPid & 0xff), 0xf0, 0x00)
	}
	if audio != StreamTypeNone {
		s = append(s, byte(audio), 0xe0|byte(AudioPid>>8), byte(AudioPid & 0xff), 0xf0, 0x00)
	}
	sectionLen := len(s) - 3 + 4
	s[1] |= byte(sectionLen>>8) & 0x0f
	s[2] = byte(sectionLen)
	return appendCRC(s)
}

func appendCRC(s []byte) []byte {
	var crc [4]byte
	binary.BigEndian.PutUint32(crc[:], computeCRC32(s))
	return append(s, crc[:]...)
}

func (w *Writer) writeTables() error {
	if err := w.writeSection(0, &w.patCC, w.pat); err != nil {
		return err
	}
	return w.writeSection(pmtPid, &w.pmtCC, w.pmt)
}

func (w *Writer) writeSection(pid int, cc *int, section []byte) error {
	pkt := w.pkt[:]
	pkt[0] = syncByte
	pkt[1] = 0x40 | byte(pid>>8)&0x1f
	pkt[2] = byte(pid)
	pkt[3] = 0x10 | byte(*cc&0x0f)
	*cc++
	pkt[4] = 0 // pointer_field
	n := copy(pkt[5:], section)
	for i := 5 + n; i < PacketSize; i++ {
		pkt[i] = 0xff
	}
	if _, err := w.w.Write(pkt); err != nil {
		return fmt.Errorf("write ts psi packet failed, reason=%v", err)
	}
	return nil
}

// WriteFrame 把一帧封装为 PES 并切分为 TS 包；视频关键帧前重复 PAT/PMT
func (w *Writer) WriteFrame(frame *Frame) error {
	if len(frame.Payload) == 0 {
		return nil
	}

	var cc *int
	switch frame.Pid {
	case VideoPid:
		cc = &w.videoCC
	case AudioPid:
		cc = &w.audioCC
	default:
		return fmt.Errorf("mpegts: unknown pid %#x", frame.Pid)
	}
	if !w.Carries(frame.Pid) {
		return nil
	}

	if frame.Key && frame.IsVideo() {
		if err := w.writeTables(); err != nil {
			return err
		}
	}

	w.pes = appendPESHeader(w.pes[:0], frame)
	w.pes = append(w.pes, frame.Payload...)
	withPcr := frame.Pid == w.pcrPid && (frame.Key || frame.IsAudio())
	return w.writePES(frame.Pid, cc, w.pes, frame.Dts, withPcr)
}

func appendPESHeader(b []byte, frame *Frame) []byte {
	pts := frame.Pts & maxTimestamp
	dts := frame.Dts & maxTimestamp

	// pts(33bits) need 5bytes.
	var headerSize byte = 5
	var flags byte = 0x80
	if dts != pts {
		headerSize += 5
		flags |= 0x40
	}

	// 3bytes: flag fields from PES_packet_length to PES_header_data_length
	pesSize := len(frame.Payload) + int(headerSize) + 3
	if pesSize > 0xffff {
		// 超过 16 位长度时置 0，由下一个 PES 的起始指示结束
		pesSize = 0
	}

	b = append(b, 0x00, 0x00, 0x01, byte(frame.StreamID),
		byte(pesSize>>8), byte(pesSize),
		0x80, // '10', data_alignment 可选
		flags,
		headerSize)
	b = appendTimestamp(b, flags>>6, pts)
	if dts != pts {
		b = appendTimestamp(b, 1, dts)
	}
	return b
}

func appendTimestamp(b []byte, fb byte, ts int64) []byte {
	return append(b,
		fb<<4|byte(ts>>29)&0x0e|1,
		byte(ts>>22),
		byte(ts>>14)&0xfe|1,
		byte(ts>>7),
		byte(ts<<1)&0xfe|1)
}

func (w *Writer) writePES(pid int, cc *int, pes []byte, pcr int64, withPcr bool) error {
	first := true
	for len(pes) > 0 {
		pkt := w.pkt[:]
		pkt[0] = syncByte
		pkt[1] = byte(pid>>8) & 0x1f
		if first {
			pkt[1] |= 0x40 // payload_unit_start_indicator
		}
		pkt[2] = byte(pid)
		pkt[3] = 0x10 | byte(*cc&0x0f)
		*cc++

		var af []byte // adaptation field 的内容，不含长度字节
		var pcrField [7]byte
		if first && withPcr {
			pcrField[0] = 0x50 // random access + PCR
			putPcr(pcrField[1:], pcr&maxTimestamp)
			af = pcrField[:]
		}

		afLen := 0 // 含长度字节
		if af != nil {
			afLen = 1 + len(af)
		}
		n := PacketSize - 4 - afLen
		if len(pes) < n {
			afLen += n - len(pes) // 用 adaptation field 填充
			n = len(pes)
		}

		p := 4
		if afLen > 0 {
			pkt[3] |= 0x20
			pkt[4] = byte(afLen - 1)
			p = 5
			if afLen > 1 {
				if af != nil {
					p += copy(pkt[p:], af)
				} else {
					pkt[p] = 0 // 无标志
					p++
				}
				for ; p < 4+afLen; p++ {
					pkt[p] = 0xff
				}
			}
		}
		copy(pkt[p:], pes[:n])
		pes = pes[n:]
		first = false

		if _, err := w.w.Write(pkt); err != nil {
			return fmt.Errorf("write ts packet failed, reason=%v", err)
		}
	}
	return nil
}

func putPcr(b []byte, pcr int64) {
	b[0] = byte(pcr >> 25)
	b[1] = byte(pcr >> 17)
	b[2] = byte(pcr >> 9)
	b[3] = byte(pcr >> 1)
	b[4] = byte(pcr<<7) | 0x7e
	b[5] = 0
}
