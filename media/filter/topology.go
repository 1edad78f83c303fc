// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package filter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cnotch/pcapmux/av/codec"
	"github.com/cnotch/pcapmux/utils/scan"
)

// ErrTopology 混音/混画拓扑串格式错误
var ErrTopology = errors.New("filter: invalid mixer topology")

// AudioStream 混音器一路输入的参数
type AudioStream struct {
	SampleRate int
	Channels   int
	SampleFmt  codec.SampleFormat
}

// VideoStream 混画器一路输入的参数
type VideoStream struct {
	Width  int
	Height int
	PixFmt codec.PixelFormat
}

// AudioTopology 形如 inputs=2:sample_rate=8000:channels=1:sample_fmt=s16:sample_rate=...
// 第 n 次出现的流参数属于第 n-1 路输入
func AudioTopology(streams []AudioStream) string {
	var sb strings.Builder
	sb.WriteString("inputs=")
	sb.WriteString(strconv.Itoa(len(streams)))
	for _, s := range streams {
		fmt.Fprintf(&sb, ":sample_rate=%d:channels=%d:sample_fmt=%s",
			s.SampleRate, s.Channels, s.SampleFmt)
	}
	return sb.String()
}

// VideoTopology 形如 inputs=2:width=640:height=480:pix_fmt=yuv420p:...
func VideoTopology(streams []VideoStream) string {
	var sb strings.Builder
	sb.WriteString("inputs=")
	sb.WriteString(strconv.Itoa(len(streams)))
	for _, s := range streams {
		fmt.Fprintf(&sb, ":width=%d:height=%d:pix_fmt=%s", s.Width, s.Height, s.PixFmt)
	}
	return sb.String()
}

type topology struct {
	inputs int
	keys   map[string][]string
}

func parseTopology(s string, known ...string) (*topology, error) {
	t := &topology{inputs: -1, keys: make(map[string][]string)}
	for _, token := range scan.Colon.Tokens(s) {
		key, value, ok := scan.EqualPair.Scan(token)
		if !ok {
			return nil, fmt.Errorf("%w: token %q is not key=value", ErrTopology, token)
		}
		if key == "inputs" {
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("%w: inputs=%q", ErrTopology, value)
			}
			t.inputs = n
			continue
		}
		if !contains(known, key) {
			return nil, fmt.Errorf("%w: unknown key %q", ErrTopology, key)
		}
		t.keys[key] = append(t.keys[key], value)
	}
	if t.inputs < 0 {
		return nil, fmt.Errorf("%w: missing inputs", ErrTopology)
	}
	for _, key := range known {
		if len(t.keys[key]) > t.inputs {
			return nil, fmt.Errorf("%w: %d values of %s for %d inputs",
				ErrTopology, len(t.keys[key]), key, t.inputs)
		}
	}
	return t, nil
}

func (t *topology) value(key string, stream int) (string, bool) {
	values := t.keys[key]
	if stream >= len(values) {
		return "", false
	}
	return values[stream], true
}

func (t *topology) intValue(key string, stream int) (int, error) {
	v, ok := t.value(key, stream)
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s=%q", ErrTopology, key, v)
	}
	return n, nil
}

// ParseAudioTopology 解析混音拓扑串，缺省的采样格式为 s16
func ParseAudioTopology(s string) ([]AudioStream, error) {
	t, err := parseTopology(s, "sample_rate", "channels", "sample_fmt")
	if err != nil {
		return nil, err
	}

	streams := make([]AudioStream, t.inputs)
	for i := range streams {
		st := &streams[i]
		if st.SampleRate, err = t.intValue("sample_rate", i); err != nil {
			return nil, err
		}
		if st.Channels, err = t.intValue("channels", i); err != nil {
			return nil, err
		}
		st.SampleFmt = codec.SampleFmtS16
		if v, ok := t.value("sample_fmt", i); ok {
			if st.SampleFmt, err = codec.ParseSampleFormat(v); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrTopology, err)
			}
		}
	}
	return streams, nil
}

// ParseVideoTopology 解析混画拓扑串，缺省的像素格式为 yuv420p
func ParseVideoTopology(s string) ([]VideoStream, error) {
	t, err := parseTopology(s, "width", "height", "pix_fmt")
	if err != nil {
		return nil, err
	}

	streams := make([]VideoStream, t.inputs)
	for i := range streams {
		st := &streams[i]
		if st.Width, err = t.intValue("width", i); err != nil {
			return nil, err
		}
		if st.Height, err = t.intValue("height", i); err != nil {
			return nil, err
		}
		st.PixFmt = codec.PixFmtYUV420P
		if v, ok := t.value("pix_fmt", i); ok {
			if st.PixFmt, err = codec.ParsePixelFormat(v); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrTopology, err)
			}
		}
	}
	return streams, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
