// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pcap

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/cnotch/pcapmux/media/block"
	"github.com/cnotch/pcapmux/media/filter"
	"github.com/emitter-io/address"
	"github.com/kelindar/rate"
	"github.com/pion/rtp"
)

// 输出 pin
const (
	AudioPin = 0
	VideoPin = 1
)

// 支持的 RTP 负载类型
const (
	PayloadTypePCMU = 0
	PayloadTypeMPA  = 14
	PayloadTypeH264 = 96
)

// CarriesAudio 音频 pin 能否输出该格式的数据，只有 pcmu 和 MPEG 音频会被解复用
func CarriesAudio(tag string) bool {
	switch strings.ToLower(tag) {
	case "pcmu", "mpa", "mp2", "mp3":
		return true
	default:
		return false
	}
}

const (
	chunkSize    = 1024000 // 每次从文件读取的字节数
	lowWater     = 2048    // 缓冲低于该值时补充数据
	mpaHeaderLen = 4       // RFC 2250 MPEG 音频头
	rtpVersion   = 2
)

// Descriptor pcap/RTP 解复用源滤镜
var Descriptor = &filter.Descriptor{
	ID:       filter.ParsePcapID,
	Name:     "MSParsePcap",
	Text:     "Demultiplex RTP streams from a pcap capture file",
	Category: filter.CategoryOther,
	NInputs:  0,
	NOutputs: 2,
	New:      newDemuxer,
	Methods: []filter.Method{
		{ID: filter.SetFileName, Handler: setFileName},
		{ID: filter.SetSrcAddr, Handler: setSrcAddr},
		{ID: filter.SetDestAddr, Handler: setDestAddr},
	},
}

// endpoint 地址过滤条件，Port 为 0 时匹配任意端口
type endpoint struct {
	IP   net.IP
	Port int
}

func (ep *endpoint) match(ip net.IP, port uint16) bool {
	if ep == nil {
		return true
	}
	if !ep.IP.Equal(ip) {
		return false
	}
	return ep.Port == 0 || ep.Port == int(port)
}

func parseEndpoint(s string) (*endpoint, error) {
	addr, err := address.Parse(s, 0)
	if err != nil {
		return nil, err
	}
	ip := addr.IP.To4()
	if ip == nil {
		return nil, fmt.Errorf("%w: %s", ErrAddrFamily, s)
	}
	return &endpoint{IP: ip, Port: addr.Port}, nil
}

// epoch 流的时间零点
type epoch struct {
	set    bool
	micros int64
}

func (e *epoch) since(micros int64) uint64 {
	if !e.set {
		e.set = true
		e.micros = micros
	}
	if micros < e.micros {
		return 0
	}
	return uint64(micros - e.micros)
}

// Stats 解复用计数
type Stats struct {
	Records    uint64 // 读取的记录数
	Packets    uint64 // 输出的 RTP 包数
	Duplicates uint64 // 序号重复被丢弃的包数
	Dropped    uint64 // 其他原因被丢弃的记录数
}

type demuxer struct {
	filter.NopLifecycle
	name   string
	file   io.ReadCloser
	fh     FileHeader
	bz     *block.Bufferizer
	eof    bool
	eos    bool
	record []byte

	src *endpoint
	dst *endpoint

	audio   epoch
	video   epoch
	lastSeq map[uint32]uint16 // 按 SSRC 记录上一个输出包的序号
	stats   Stats

	logLimit *rate.Limiter
}

func newDemuxer(f *filter.Filter) (filter.Processor, error) {
	return &demuxer{
		bz:       block.NewBufferizer(),
		record:   make([]byte, 0, 2048),
		lastSeq:  make(map[uint32]uint16),
		logLimit: rate.New(10, time.Second),
	}, nil
}

func state(f *filter.Filter) *demuxer { return f.Processor().(*demuxer) }

// StatsOf 返回解复用滤镜的计数
func StatsOf(f *filter.Filter) (Stats, bool) {
	d, ok := f.Processor().(*demuxer)
	if !ok {
		return Stats{}, false
	}
	return d.stats, true
}

func setFileName(f *filter.Filter, arg *filter.Arg) error {
	d := state(f)
	file, err := os.Open(arg.Str)
	if err != nil {
		return err
	}
	if err := d.open(file); err != nil {
		file.Close()
		return fmt.Errorf("%s: %w", arg.Str, err)
	}
	d.name = arg.Str
	f.Logger().Infof("open capture %s, link type %s", arg.Str, d.fh.LinkType)
	return nil
}

// open 读取文件头并预读第一块数据
func (d *demuxer) open(file io.ReadCloser) error {
	var hdr [FileHeaderLen]byte
	if _, err := io.ReadFull(file, hdr[:]); err != nil {
		return fmt.Errorf("read file header: %w", err)
	}
	fh, err := ParseFileHeader(hdr[:])
	if err != nil {
		return err
	}

	if d.file != nil {
		d.file.Close()
	}
	d.file = file
	d.fh = fh
	d.bz.Flush()
	d.eof, d.eos = false, false
	d.fill(nil)
	return nil
}

func setSrcAddr(f *filter.Filter, arg *filter.Arg) (err error) {
	d := state(f)
	if arg.Str == "" {
		d.src = nil
		return nil
	}
	d.src, err = parseEndpoint(arg.Str)
	return
}

func setDestAddr(f *filter.Filter, arg *filter.Arg) (err error) {
	d := state(f)
	if arg.Str == "" {
		d.dst = nil
		return nil
	}
	d.dst, err = parseEndpoint(arg.Str)
	return
}

// fill 从文件读取一块数据
func (d *demuxer) fill(f *filter.Filter) {
	if d.eof || d.file == nil {
		return
	}
	buf := make([]byte, chunkSize)
	n, err := io.ReadFull(d.file, buf)
	if n > 0 {
		d.bz.Put(block.From(buf[:n]))
		if f != nil {
			f.Flow().AddIn(int64(n))
		}
	}
	if err != nil {
		d.eof = true
		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) && f != nil {
			f.Logger().Errorf("read capture %s: %s", d.name, err.Error())
		}
	}
}

// ensure 保证至少有 n 个字节可读，文件读完时返回 false
func (d *demuxer) ensure(f *filter.Filter, n int) bool {
	for d.bz.Avail() < n && !d.eof {
		d.fill(f)
	}
	return d.bz.Avail() >= n
}

func (d *demuxer) Process(f *filter.Filter) {
	if d.file == nil || d.eos {
		return
	}

	for {
		if d.bz.Avail() <= lowWater {
			d.fill(f)
		}
		rec, micros, ok := d.readRecord(f)
		if !ok {
			d.endOfStream(f)
			return
		}
		if d.deliver(f, rec, micros) {
			return
		}
	}
}

// readRecord 读取一个完整的抓包记录
func (d *demuxer) readRecord(f *filter.Filter) ([]byte, int64, bool) {
	var hdr [RecordHeaderLen]byte
	if !d.ensure(f, RecordHeaderLen) {
		return nil, 0, false
	}
	d.bz.ReadFull(hdr[:])
	rh := d.fh.ParseRecord(hdr[:])
	d.stats.Records++

	if rh.CapLen > maxSnapLen {
		f.Logger().Errorf("capture %s: record %d claims %d bytes, file is corrupted",
			d.name, d.stats.Records, rh.CapLen)
		return nil, 0, false
	}
	n := int(rh.CapLen)
	if !d.ensure(f, n) {
		f.Logger().Warnf("capture %s: truncated last record", d.name)
		return nil, 0, false
	}
	if cap(d.record) < n {
		d.record = make([]byte, n)
	}
	d.record = d.record[:n]
	d.bz.ReadFull(d.record)
	return d.record, d.fh.Micros(rh), true
}

func (d *demuxer) endOfStream(f *filter.Filter) {
	d.eos = true
	f.Logger().Infof("capture %s ended: records=%d packets=%d duplicates=%d dropped=%d",
		d.name, d.stats.Records, d.stats.Packets, d.stats.Duplicates, d.stats.Dropped)
	f.Notify(filter.EventEndOfStream, nil)
}

func (d *demuxer) drop(f *filter.Filter, format string, args ...interface{}) {
	d.stats.Dropped++
	if !d.logLimit.Limit() {
		f.Logger().Warnf(format, args...)
	}
}

// deliver 解析一个记录，输出了一个 RTP 负载时返回 true
func (d *demuxer) deliver(f *filter.Filter, rec []byte, micros int64) bool {
	ip, err := networkLayer(d.fh.LinkType, rec)
	if err != nil {
		d.stats.Dropped++
		return false
	}
	iph, udph, payload, err := udpPayload(ip)
	if err != nil {
		d.drop(f, "record %d: %s", d.stats.Records, err.Error())
		return false
	}
	if payload == nil || !d.src.match(iph.Src, udph.SrcPort) || !d.dst.match(iph.Dst, udph.DstPort) {
		d.stats.Dropped++
		return false
	}

	var h rtp.Header
	if err := h.Unmarshal(payload); err != nil {
		d.drop(f, "record %d: bad rtp header: %s", d.stats.Records, err.Error())
		return false
	}
	if h.Version != rtpVersion {
		d.drop(f, "record %d: rtp version %d", d.stats.Records, h.Version)
		return false
	}
	end := len(payload)
	if h.Padding && end > 0 {
		end -= int(payload[end-1])
	}
	if h.PayloadOffset > end {
		d.drop(f, "record %d: rtp payload underflow", d.stats.Records)
		return false
	}

	if last, ok := d.lastSeq[h.SSRC]; ok && last == h.SequenceNumber {
		d.stats.Duplicates++
		return false
	}
	d.lastSeq[h.SSRC] = h.SequenceNumber

	b := block.Copy(payload[h.PayloadOffset:])
	if pad := len(payload) - end; pad > 0 {
		b.Truncate(b.Len() - pad)
	}
	b.Marker = h.Marker

	switch h.PayloadType {
	case PayloadTypePCMU:
		b.Timestamp = d.audio.since(micros)
		d.emit(f, AudioPin, b)
	case PayloadTypeMPA:
		if b.Len() < mpaHeaderLen {
			d.drop(f, "record %d: short mpa payload", d.stats.Records)
			return false
		}
		b.Timestamp = d.audio.since(micros)
		b.Skip(mpaHeaderLen)
		d.emit(f, AudioPin, b)
	case PayloadTypeH264:
		if h.Marker {
			b.Timestamp = d.video.since(micros)
		}
		d.emit(f, VideoPin, b)
	default:
		d.drop(f, "unsupported payload type %d", h.PayloadType)
		return false
	}
	return true
}

func (d *demuxer) emit(f *filter.Filter, pin int, b *block.Block) {
	d.stats.Packets++
	f.Flow().AddOut(int64(b.Len()))
	f.Emit(pin, b)
}

func (d *demuxer) Uninit(f *filter.Filter) {
	d.bz.Flush()
	if d.file != nil {
		d.file.Close()
		d.file = nil
	}
}
