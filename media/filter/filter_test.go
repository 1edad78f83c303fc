// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package filter

import (
	"errors"
	"testing"
	"time"

	"github.com/cnotch/pcapmux/media/block"
	"github.com/cnotch/xlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct {
	rate      int
	processed int
	pre       int
	post      int
	uninit    int
}

func (c *counter) Preprocess(*Filter)  { c.pre++ }
func (c *counter) Process(f *Filter)   { c.processed++ }
func (c *counter) Postprocess(*Filter) { c.post++ }
func (c *counter) Uninit(*Filter)      { c.uninit++ }

func testDescriptor(id ID, name string, cat Category, tag string, flags Flags) *Descriptor {
	return &Descriptor{
		ID:        id,
		Name:      name,
		Category:  cat,
		FormatTag: tag,
		NInputs:   1,
		NOutputs:  2,
		Flags:     flags,
		New: func(f *Filter) (Processor, error) {
			return &counter{}, nil
		},
		Methods: []Method{
			{SetSampleRate, func(f *Filter, arg *Arg) error {
				if arg.Int <= 0 {
					return ErrInvalidArg
				}
				f.Processor().(*counter).rate = arg.Int
				return nil
			}},
			{GetSampleRate, func(f *Filter, arg *Arg) error {
				arg.Int = f.Processor().(*counter).rate
				return nil
			}},
		},
	}
}

func TestFactory_RegisterShadows(t *testing.T) {
	first := testDescriptor(AmixID, "first", CategoryOther, "", FlagEnabled)
	second := testDescriptor(AmixID, "second", CategoryOther, "", FlagEnabled)
	fa := NewFactory(nil, first, second)
	defer fa.Close()

	assert.Same(t, second, fa.Lookup(AmixID))
	assert.Nil(t, fa.Lookup(VmixID))
	assert.Equal(t, []*Descriptor{second, first}, fa.Descriptors())

	f, err := fa.Create(AmixID)
	require.NoError(t, err)
	assert.Equal(t, "second", f.Name())
	assert.Equal(t, 1, f.NInputs())
	assert.Equal(t, 2, f.NOutputs())
	assert.Equal(t, StateConstructed, f.State())

	_, err = fa.Create(VmixID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFactory_Resolve(t *testing.T) {
	enc := testDescriptor(G711EncID, "enc", CategoryEncoder, "PCMU", FlagEnabled)
	capturer := testDescriptor(AacEncID, "cap", CategoryEncodingCapturer, "aac", FlagEnabled)
	disabled := testDescriptor(Mp3EncID, "mp3", CategoryEncoder, "mp3", 0)
	dec := testDescriptor(G711DecID, "dec", CategoryDecoder, "pcmu", FlagEnabled)
	renderer := testDescriptor(H264DecID, "render", CategoryDecoderRenderer, "h264", FlagEnabled)
	newer := testDescriptor(OpusDecID, "newer", CategoryDecoder, "PcMu", FlagEnabled)
	fa := NewFactory(nil, enc, capturer, disabled, dec, renderer, newer)
	defer fa.Close()

	tests := []struct {
		name    string
		resolve func(string) *Descriptor
		tag     string
		want    *Descriptor
	}{
		{"encoder case-insensitive", fa.Encoder, "pcmu", enc},
		{"encoding capturer", fa.Encoder, "AAC", capturer},
		{"disabled encoder", fa.Encoder, "mp3", nil},
		{"decoder is not an encoder", fa.Encoder, "h264", nil},
		{"no match", fa.Encoder, "opus", nil},
		{"latest decoder wins", fa.Decoder, "PCMU", newer},
		{"decoder renderer", fa.Decoder, "H264", renderer},
		{"encoder is not a decoder", fa.Decoder, "aac", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Same(t, tt.want, tt.resolve(tt.tag))
		})
	}

	_, err := fa.CreateEncoder("opus")
	assert.True(t, errors.Is(err, ErrNotFound))
	f, err := fa.CreateDecoder("pcmu")
	require.NoError(t, err)
	assert.Equal(t, "newer", f.Name())
}

func TestFactory_CreateInitError(t *testing.T) {
	bad := &Descriptor{ID: MuxerID, Name: "bad", New: func(f *Filter) (Processor, error) {
		return nil, errors.New("boom")
	}}
	fa := NewFactory(nil, bad)
	defer fa.Close()

	_, err := fa.Create(MuxerID)
	assert.EqualError(t, err, "filter: init bad: boom")
}

func TestFilter_Call(t *testing.T) {
	fa := NewFactory(nil, testDescriptor(AmixID, "mix", CategoryOther, "", 0))
	defer fa.Close()
	f, err := fa.Create(AmixID)
	require.NoError(t, err)

	assert.NoError(t, f.SetInt(SetSampleRate, 8000))
	rate, err := f.GetInt(GetSampleRate)
	assert.NoError(t, err)
	assert.Equal(t, 8000, rate)

	assert.True(t, errors.Is(f.SetInt(SetSampleRate, -1), ErrInvalidArg))
	assert.True(t, errors.Is(f.SetInt(SetChannels, 2), ErrMethodNotFound))
	assert.True(t, errors.Is(f.Call(MethodID(999), nil), ErrMethodNotFound))
	assert.True(t, errors.Is(f.SetString(SetSampleRate, "8000"), ErrArgKind))
	assert.True(t, f.HasMethod(GetSampleRate))
	assert.False(t, f.HasMethod(SetFileName))
	assert.Equal(t, "set_file_name", SetFileName.String())
	assert.Equal(t, KindString, SetVmixInfo.Kind())
}

func TestFilter_Lifecycle(t *testing.T) {
	fa := NewFactory(nil, testDescriptor(AmixID, "mix", CategoryOther, "", 0))
	defer fa.Close()
	f, err := fa.Create(AmixID)
	require.NoError(t, err)
	c := f.Processor().(*counter)

	assert.False(t, f.Run(1), "not preprocessed")
	assert.True(t, errors.Is(f.Postprocess(), ErrInvalidState))

	require.NoError(t, f.Preprocess(nil))
	assert.Equal(t, 1, c.pre)
	assert.True(t, errors.Is(f.Preprocess(nil), ErrInvalidState))

	assert.True(t, f.Run(1))
	assert.False(t, f.Run(1))
	assert.True(t, f.Run(2))
	assert.Equal(t, 2, c.processed)
	assert.Equal(t, StateRunning, f.State())

	assert.True(t, errors.Is(f.Destroy(), ErrInvalidState), "attached filters cannot be destroyed")
	require.NoError(t, f.Postprocess())
	assert.Equal(t, 1, c.post)

	// 可以重新挂接
	require.NoError(t, f.Preprocess(nil))
	assert.True(t, f.Run(1), "tick guard is reset by preprocess")
	require.NoError(t, f.Postprocess())

	require.NoError(t, f.Destroy())
	assert.Equal(t, 1, c.uninit)
	assert.True(t, f.Destroyed())
	assert.Equal(t, StateDestroyed, f.State())
	assert.Error(t, f.Destroy())
}

func TestFilter_Notify(t *testing.T) {
	fa := NewFactory(nil, testDescriptor(AmixID, "mix", CategoryOther, "", 0))
	defer fa.Close()
	f, err := fa.Create(AmixID)
	require.NoError(t, err)

	var order []int
	f.AddListener(func(f *Filter, event EventID, arg interface{}) {
		order = append(order, 1)
	}, true)
	id := f.AddListener(func(f *Filter, event EventID, arg interface{}) {
		order = append(order, 2)
	}, true)
	f.AddListener(func(f *Filter, event EventID, arg interface{}) {
		order = append(order, 3)
		assert.Equal(t, EventEndOfStream, event)
		assert.Equal(t, "eof", arg)
	}, true)

	f.Notify(EventEndOfStream, "eof")
	assert.Equal(t, []int{1, 2, 3}, order)

	assert.True(t, f.RemoveListener(id))
	assert.False(t, f.RemoveListener(id))
	order = nil
	f.Notify(EventEndOfStream, "eof")
	assert.Equal(t, []int{1, 3}, order)
}

func TestFilter_NotifyDestroyedMidDispatch(t *testing.T) {
	fa := NewFactory(nil, testDescriptor(AmixID, "mix", CategoryOther, "", 0))
	defer fa.Close()
	f, err := fa.Create(AmixID)
	require.NoError(t, err)

	calls := 0
	f.AddListener(func(f *Filter, event EventID, arg interface{}) {
		calls++
		assert.NoError(t, f.Destroy())
	}, true)
	f.AddListener(func(f *Filter, event EventID, arg interface{}) {
		calls++
	}, true)

	f.Notify(1, nil)
	assert.Equal(t, 1, calls)
}

func TestFilter_NotifyAsync(t *testing.T) {
	fa := NewFactory(nil, testDescriptor(AmixID, "mix", CategoryOther, "", 0))
	defer fa.Close()
	f, err := fa.Create(AmixID)
	require.NoError(t, err)

	got := make(chan EventID, 1)
	f.AddListener(func(f *Filter, event EventID, arg interface{}) {
		got <- event
	}, false)
	f.Notify(7, nil)

	select {
	case ev := <-got:
		assert.Equal(t, EventID(7), ev)
	case <-time.After(2 * time.Second):
		t.Fatal("async listener was not called")
	}
}

func TestEventQueue_CloseAfterPost(t *testing.T) {
	f := &Filter{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2000; i++ {
			eq := NewEventQueue(xlog.L())
			eq.post(&notification{f: f, fn: func(*Filter, EventID, interface{}) {}})
			eq.Close()
			eq.Close()
		}
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("event queue close hangs")
	}
}

func TestLink(t *testing.T) {
	fa := NewFactory(nil, testDescriptor(AmixID, "mix", CategoryOther, "", 0))
	defer fa.Close()
	a, _ := fa.Create(AmixID)
	b, _ := fa.Create(AmixID)

	assert.True(t, errors.Is(Link(a, 2, b, 0), ErrPinRange))
	assert.True(t, errors.Is(Link(a, 0, b, 1), ErrPinRange))
	require.NoError(t, Link(a, 1, b, 0))
	assert.Same(t, a.Output(1), b.Input(0))
	assert.True(t, errors.Is(Link(a, 1, b, 0), ErrPinBusy))
	assert.True(t, errors.Is(Link(a, 0, b, 0), ErrPinBusy))

	q := a.Output(1)
	assert.True(t, a.Emit(1, block.Copy([]byte{1})))
	assert.False(t, a.Emit(0, block.Copy([]byte{1})), "unlinked pin drops")
	assert.Equal(t, 1, q.Len())

	assert.True(t, errors.Is(Unlink(a, 0, b, 0), ErrNotLinked))
	require.NoError(t, Unlink(a, 1, b, 0))
	assert.True(t, q.Empty())
	assert.Nil(t, a.Output(1))
	assert.Nil(t, b.Input(0))
}

func TestConnectionHelper(t *testing.T) {
	fa := NewFactory(nil, testDescriptor(AmixID, "mix", CategoryOther, "", 0))
	defer fa.Close()
	fs := make([]*Filter, 3)
	for i := range fs {
		fs[i], _ = fa.Create(AmixID)
	}

	var h ConnectionHelper
	h.Start()
	require.NoError(t, h.Link(fs[0], -1, 1))
	assert.Nil(t, fs[0].Output(1), "first node links nothing")
	require.NoError(t, h.Link(fs[1], 0, 0))
	require.NoError(t, h.Link(fs[2], 0, -1))

	assert.NotNil(t, fs[0].Output(1))
	assert.Same(t, fs[0].Output(1), fs[1].Input(0))
	assert.Same(t, fs[1].Output(0), fs[2].Input(0))
	assert.Equal(t, ConnectionPoint{fs[2], -1}, h.Last())

	h.Start()
	require.NoError(t, h.Unlink(fs[0], -1, 1))
	require.NoError(t, h.Unlink(fs[1], 0, 0))
	require.NoError(t, h.Unlink(fs[2], 0, -1))
	assert.Nil(t, fs[0].Output(1))
	assert.Nil(t, fs[1].Output(0))
	assert.Nil(t, fs[2].Input(0))
}
