// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mpegts

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cnotch/pcapmux/av/codec"
	"github.com/cnotch/pcapmux/media/block"
	"github.com/cnotch/pcapmux/media/filter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tsPacket struct {
	pid     int
	start   bool
	cc      int
	af      []byte
	payload []byte
}

func parsePackets(t *testing.T, data []byte) []tsPacket {
	require.Equal(t, 0, len(data)%PacketSize, "output must be 188-byte aligned")
	var pkts []tsPacket
	for off := 0; off < len(data); off += PacketSize {
		p := data[off : off+PacketSize]
		require.Equal(t, byte(syncByte), p[0])
		pkt := tsPacket{
			pid:   int(p[1]&0x1f)<<8 | int(p[2]),
			start: p[1]&0x40 != 0,
			cc:    int(p[3] & 0x0f),
		}
		body := p[4:]
		if p[3]&0x20 != 0 {
			n := int(body[0])
			pkt.af = body[1 : 1+n]
			body = body[1+n:]
		}
		pkt.payload = body
		pkts = append(pkts, pkt)
	}
	return pkts
}

func section(t *testing.T, pkt tsPacket) []byte {
	require.True(t, pkt.start)
	p := pkt.payload[1+int(pkt.payload[0]):]
	n := int(p[1]&0x0f)<<8 | int(p[2])
	s := p[:3+n]
	assert.Equal(t, uint32(0), computeCRC32(s), "section crc verifies")
	return s
}

func TestWriter_Tables(t *testing.T) {
	tests := []struct {
		name    string
		audio   StreamType
		video   bool
		streams []byte
		pcrPid  int
	}{
		{"video and mp3", StreamTypeMPA, true, []byte{0x1b, 0x03}, VideoPid},
		{"video and aac", StreamTypeAAC, true, []byte{0x1b, 0x0f}, VideoPid},
		{"video only", StreamTypeNone, true, []byte{0x1b}, VideoPid},
		{"audio only", StreamTypeMPA, false, []byte{0x03}, AudioPid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			_, err := NewWriter(&buf, tt.audio, tt.video)
			require.NoError(t, err)
			pkts := parsePackets(t, buf.Bytes())
			require.Len(t, pkts, 2)
			assert.Equal(t, 0, pkts[0].pid)
			assert.Equal(t, pmtPid, pkts[1].pid)

			pat := section(t, pkts[0])
			assert.Equal(t, byte(0x00), pat[0])
			assert.Equal(t, pmtPid, int(pat[10]&0x1f)<<8|int(pat[11]))

			pmt := section(t, pkts[1])
			assert.Equal(t, byte(0x02), pmt[0])
			assert.Equal(t, tt.pcrPid, int(pmt[8]&0x1f)<<8|int(pmt[9]))
			var types []byte
			es := pmt[12 : len(pmt)-4]
			for len(es) >= 5 {
				types = append(types, es[0])
				pid := int(es[1]&0x1f)<<8 | int(es[2])
				if StreamType(es[0]) == StreamTypeH264 {
					assert.Equal(t, VideoPid, pid)
				} else {
					assert.Equal(t, AudioPid, pid)
				}
				es = es[5:]
			}
			assert.Equal(t, tt.streams, types)
		})
	}

	_, err := NewWriter(&bytes.Buffer{}, StreamTypeNone, false)
	assert.Error(t, err)
}

func TestWriter_Frames(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, StreamTypeMPA, true)
	require.NoError(t, err)

	idr := make([]byte, 1000)
	copy(idr, []byte{0, 0, 0, 1, 0x65})
	require.NoError(t, w.WriteFrame(VideoFrame(idr, 9000)))
	require.NoError(t, w.WriteFrame(AudioFrame([]byte{0xff, 0xfb, 1, 2}, 9000)))
	require.NoError(t, w.WriteFrame(VideoFrame([]byte{0, 0, 0, 1, 0x41, 1}, 12600)))
	require.NoError(t, w.WriteFrame(&Frame{Pid: VideoPid}), "empty frames are skipped")

	pkts := parsePackets(t, buf.Bytes())
	// 2 PSI + 重复的 2 PSI + idr 分为 6 包 + 音频 1 包 + P 帧 1 包
	require.Len(t, pkts, 12)
	assert.Equal(t, 0, pkts[2].pid)
	assert.Equal(t, 1, pkts[2].cc, "psi continuity counter advances")

	var video []tsPacket
	for _, p := range pkts {
		if p.pid == VideoPid {
			video = append(video, p)
		}
	}
	require.Len(t, video, 7)
	for i, p := range video {
		assert.Equal(t, i&0x0f, p.cc)
	}

	first := video[0]
	assert.True(t, first.start)
	require.Len(t, first.af, 7)
	assert.Equal(t, byte(0x50), first.af[0], "key frame carries pcr")
	pes := first.payload
	assert.Equal(t, []byte{0, 0, 1, 0xe0}, pes[:4])
	au := pes[9+int(pes[8]):]
	assert.Equal(t, []byte{0, 0, 0, 1, 9, 0xf0, 0, 0, 0, 1, 0x65}, au[:11], "aud inserted")

	es := append([]byte{}, au...)
	for _, p := range video[1:6] {
		assert.False(t, p.start)
		es = append(es, p.payload...)
	}
	want := append([]byte{0, 0, 0, 1, 9, 0xf0}, idr...)
	assert.Equal(t, want, es, "elementary stream survives packetization")

	last := video[6]
	assert.True(t, last.start)
	require.NotEmpty(t, last.af)
	assert.Equal(t, byte(0), last.af[0], "stuffing only, no pcr")
	for _, b := range last.af[1:] {
		assert.Equal(t, byte(0xff), b)
	}
}

type nopSource struct{ filter.NopLifecycle }

func (nopSource) Process(*filter.Filter) {}

func TestMuxerFilter(t *testing.T) {
	srcDesc := &filter.Descriptor{
		ID: filter.ParsePcapID, Name: "src", NOutputs: 2,
		New: func(*filter.Filter) (filter.Processor, error) { return nopSource{}, nil },
	}
	fa := filter.NewFactory(nil, Descriptor, srcDesc)
	defer fa.Close()

	out := filepath.Join(t.TempDir(), "out.ts")
	mux, err := fa.Create(filter.MuxerID)
	require.NoError(t, err)
	require.NoError(t, mux.SetString(filter.SetFileName, out))
	require.NoError(t, mux.SetString(filter.SetMimeType, "MP3"))
	require.NoError(t, mux.SetInt(filter.SetWidth, 640))

	src, err := fa.Create(filter.ParsePcapID)
	require.NoError(t, err)
	require.NoError(t, filter.Link(src, 0, mux, AudioPin))
	require.NoError(t, filter.Link(src, 1, mux, VideoPin))

	require.NoError(t, mux.Preprocess(nil))
	a := block.Copy([]byte{0xff, 0xfb, 0x90, 0x00})
	a.Timestamp = 20000 // 20ms
	src.Emit(0, a)
	v := block.Copy([]byte{0, 0, 0, 1, 0x65, 0x88})
	src.Emit(1, v)
	mux.Run(1)
	require.NoError(t, mux.Postprocess())
	require.NoError(t, mux.Destroy())

	audio, video, err := Frames(mux)
	require.NoError(t, err)
	assert.Equal(t, 1, audio)
	assert.Equal(t, 1, video)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	pkts := parsePackets(t, data)
	var audioPkt *tsPacket
	for i := range pkts {
		if pkts[i].pid == AudioPid {
			audioPkt = &pkts[i]
		}
	}
	require.NotNil(t, audioPkt)
	pts := decodeTimestamp(audioPkt.payload[9:14])
	assert.Equal(t, int64(1800+ptsDelay), pts)
}

func decodeTimestamp(b []byte) int64 {
	return int64(b[0]>>1&0x07)<<30 | int64(b[1])<<22 | int64(b[2]>>1)<<15 | int64(b[3])<<7 | int64(b[4]>>1)
}

func TestMuxerFilter_UncarriedAudio(t *testing.T) {
	srcDesc := &filter.Descriptor{
		ID: filter.ParsePcapID, Name: "src", NOutputs: 2,
		New: func(*filter.Filter) (filter.Processor, error) { return nopSource{}, nil },
	}
	fa := filter.NewFactory(nil, Descriptor, srcDesc)
	defer fa.Close()

	out := filepath.Join(t.TempDir(), "pcmu.ts")
	mux, err := fa.Create(filter.MuxerID)
	require.NoError(t, err)
	require.NoError(t, mux.SetString(filter.SetFileName, out))
	require.NoError(t, mux.SetString(filter.SetMimeType, "pcmu"))

	err = mux.SetInt(filter.SetSampleFmt, int(codec.SampleFmtFlt))
	assert.True(t, errors.Is(err, filter.ErrInvalidArg))
	require.NoError(t, mux.SetInt(filter.SetSampleFmt, int(codec.SampleFmtS16)))
	sf, err := mux.GetInt(filter.GetSampleFmt)
	require.NoError(t, err)
	assert.Equal(t, codec.SampleFmtS16, codec.SampleFormat(sf))

	src, err := fa.Create(filter.ParsePcapID)
	require.NoError(t, err)
	require.NoError(t, filter.Link(src, 0, mux, AudioPin))
	require.NoError(t, filter.Link(src, 1, mux, VideoPin))

	require.NoError(t, mux.Preprocess(nil))
	for i := 0; i < 3; i++ {
		src.Emit(0, block.Copy([]byte{0xff, 0xff, 0xff, 0xff}))
	}
	src.Emit(1, block.Copy([]byte{0, 0, 0, 1, 0x65, 0x88}))
	mux.Run(1)
	require.NoError(t, mux.Postprocess())
	require.NoError(t, mux.Destroy())

	audio, video, err := Frames(mux)
	require.NoError(t, err)
	assert.Zero(t, audio, "pcmu is not written to the transport stream")
	assert.Equal(t, 1, video)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	for _, p := range parsePackets(t, data) {
		assert.NotEqual(t, AudioPid, p.pid)
	}
}

func TestWriter_Carries(t *testing.T) {
	w, err := NewWriter(&bytes.Buffer{}, StreamTypeNone, true)
	require.NoError(t, err)
	assert.True(t, w.Carries(VideoPid))
	assert.False(t, w.Carries(AudioPid))
	assert.False(t, w.Carries(pmtPid))
}

func TestAudioStreamType(t *testing.T) {
	assert.Equal(t, StreamTypeMPA, AudioStreamType("mp3"))
	assert.Equal(t, StreamTypeAAC, AudioStreamType("AAC"))
	assert.Equal(t, StreamTypeNone, AudioStreamType("pcmu"))
}
