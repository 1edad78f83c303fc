// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/cnotch/pcapmux/av/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConf = `{
	"input": {"file": "a.pcap", "acodec": "pcmu", "sample_rate": 8000, "channels": 1, "sample_fmt": "s16"},
	"mix_inputs": [
		{"file": "b.pcap", "dstaddr": "10.0.0.2:5000"},
		{"file": "c.pcap", "acodec": "opus", "sample_rate": 48000, "channels": 2}
	],
	"output": {"file": "out.ts", "acodec": "pcma"},
	"pacing": "adaptive",
	"interval": 20,
	"stats": 5
}`

func TestConfig_Inputs(t *testing.T) {
	var c config
	require.NoError(t, json.Unmarshal([]byte(sampleConf), &c))
	require.NoError(t, c.validate())

	ins := c.inputs()
	require.Len(t, ins, 3)
	assert.Equal(t, "a.pcap", ins[0].File)

	assert.Equal(t, "10.0.0.2:5000", ins[1].DstAddr)
	assert.Equal(t, "pcmu", ins[1].Codec, "missing fields come from the primary input")
	assert.Equal(t, 8000, ins[1].SampleRate)
	assert.Equal(t, codec.SampleFmtS16, ins[1].SampleFmt)
	assert.Equal(t, codec.PixFmtNone, ins[1].PixFmt)

	assert.Equal(t, "opus", ins[2].Codec)
	assert.Equal(t, 48000, ins[2].SampleRate)
	assert.Equal(t, 2, ins[2].Channels)

	assert.Equal(t, "pcma", c.Output.Codec)
	assert.Zero(t, c.Output.SampleRate)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		c    config
		err  error
	}{
		{"no input", config{Output: OutputConfig{File: "o.ts"}}, ErrNoInput},
		{"no mix file", config{Input: InputConfig{File: "a"}, MixInputs: []InputConfig{{}},
			Output: OutputConfig{File: "o.ts"}}, ErrNoInput},
		{"no output", config{Input: InputConfig{File: "a"}}, ErrNoOutput},
		{"ok", config{Input: InputConfig{File: "a"}, Output: OutputConfig{File: "o.ts"}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.validate()
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestGlobalDefaults(t *testing.T) {
	saved := globalC
	defer func() { globalC = saved }()

	globalC = nil
	assert.Nil(t, Inputs())
	assert.Zero(t, StatsInterval())
	p, err := Pacer()
	require.NoError(t, err)
	assert.NotNil(t, p)
	assert.ErrorIs(t, Validate(), ErrNoInput)

	globalC = &config{Pacing: "spin"}
	_, err = Pacer()
	assert.Error(t, err)
}

func TestLogConfig_NewLogger(t *testing.T) {
	dir := t.TempDir()
	c := LogConfig{ToFile: true, Filename: dir + "/logs/test.log", MaxSize: 1}
	w := c.fileWriter()
	assert.Equal(t, c.Filename, w.Filename)
	assert.True(t, w.LocalTime)

	assert.NotNil(t, c.newLogger(os.Stderr))
	c.ToFile = false
	assert.NotNil(t, c.newLogger(os.Stderr))
}
