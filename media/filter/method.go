// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package filter

import (
	"errors"
	"fmt"
)

// 方法调用错误
var (
	ErrMethodNotFound = errors.New("filter: method not found")
	ErrArgKind        = errors.New("filter: method argument kind mismatch")
	ErrInvalidArg     = errors.New("filter: invalid method argument")
)

// MethodID 滤镜方法标识
type MethodID int

// 方法标识
const (
	SetFileName MethodID = iota
	SetSrcAddr
	SetDestAddr
	ProbeInputFormat
	GetSampleRate
	GetChannels
	GetSampleFmt
	GetFrameSize
	SetSampleRate
	SetChannels
	SetSampleFmt
	SetFrameSize
	SetMimeType
	SetOutputSampleRate
	SetOutputChannels
	SetOutputSampleFmt
	SetWidth
	SetHeight
	SetPixFmt
	SetOutputWidth
	SetOutputHeight
	SetOutputPixFmt
	GetWidth
	GetHeight
	GetPixFmt
	SetAmixInfo
	SetVmixInfo
)

// Kind 方法参数的类型
type Kind int

// 参数类型
const (
	KindNone Kind = iota
	KindInt
	KindString
)

var methodInfos = [...]struct {
	name string
	kind Kind
}{
	SetFileName:         {"set_file_name", KindString},
	SetSrcAddr:          {"set_src_addr", KindString},
	SetDestAddr:         {"set_dest_addr", KindString},
	ProbeInputFormat:    {"probe_input_format", KindNone},
	GetSampleRate:       {"get_sample_rate", KindInt},
	GetChannels:         {"get_channels", KindInt},
	GetSampleFmt:        {"get_sample_fmt", KindInt},
	GetFrameSize:        {"get_frame_size", KindInt},
	SetSampleRate:       {"set_sample_rate", KindInt},
	SetChannels:         {"set_channels", KindInt},
	SetSampleFmt:        {"set_sample_fmt", KindInt},
	SetFrameSize:        {"set_frame_size", KindInt},
	SetMimeType:         {"set_mime_type", KindString},
	SetOutputSampleRate: {"set_output_sample_rate", KindInt},
	SetOutputChannels:   {"set_output_channels", KindInt},
	SetOutputSampleFmt:  {"set_output_sample_fmt", KindInt},
	SetWidth:            {"set_width", KindInt},
	SetHeight:           {"set_height", KindInt},
	SetPixFmt:           {"set_pix_fmt", KindInt},
	SetOutputWidth:      {"set_output_width", KindInt},
	SetOutputHeight:     {"set_output_height", KindInt},
	SetOutputPixFmt:     {"set_output_pix_fmt", KindInt},
	GetWidth:            {"get_width", KindInt},
	GetHeight:           {"get_height", KindInt},
	GetPixFmt:           {"get_pix_fmt", KindInt},
	SetAmixInfo:         {"set_amix_info", KindString},
	SetVmixInfo:         {"set_vmix_info", KindString},
}

func (id MethodID) valid() bool { return id >= 0 && int(id) < len(methodInfos) }

// Kind 方法参数类型
func (id MethodID) Kind() Kind {
	if !id.valid() {
		return KindNone
	}
	return methodInfos[id].kind
}

func (id MethodID) String() string {
	if !id.valid() {
		return fmt.Sprintf("MethodID(%d)", int(id))
	}
	return methodInfos[id].name
}

// Arg 方法参数，Get 类方法把结果写回 Arg
type Arg struct {
	Int int
	Str string
}

// Method 方法表的一项
type Method struct {
	ID      MethodID
	Handler func(f *Filter, arg *Arg) error
}

// Call 调用滤镜方法，未声明的方法返回 ErrMethodNotFound
func (f *Filter) Call(id MethodID, arg *Arg) error {
	for i := range f.desc.Methods {
		m := &f.desc.Methods[i]
		if m.ID != id {
			continue
		}
		if arg == nil {
			arg = &Arg{}
		}
		return m.Handler(f, arg)
	}
	return fmt.Errorf("%w: %s.%s", ErrMethodNotFound, f.desc.Name, id)
}

// HasMethod 滤镜是否声明了方法 id
func (f *Filter) HasMethod(id MethodID) bool {
	for i := range f.desc.Methods {
		if f.desc.Methods[i].ID == id {
			return true
		}
	}
	return false
}

// SetInt 调用整型参数的方法
func (f *Filter) SetInt(id MethodID, v int) error {
	if id.Kind() != KindInt {
		return fmt.Errorf("%w: %s takes %v", ErrArgKind, id, id.Kind())
	}
	return f.Call(id, &Arg{Int: v})
}

// SetString 调用字符串参数的方法
func (f *Filter) SetString(id MethodID, s string) error {
	if id.Kind() != KindString {
		return fmt.Errorf("%w: %s takes %v", ErrArgKind, id, id.Kind())
	}
	return f.Call(id, &Arg{Str: s})
}

// GetInt 调用整型结果的方法
func (f *Filter) GetInt(id MethodID) (int, error) {
	if id.Kind() != KindInt {
		return 0, fmt.Errorf("%w: %s takes %v", ErrArgKind, id, id.Kind())
	}
	var arg Arg
	if err := f.Call(id, &arg); err != nil {
		return 0, err
	}
	return arg.Int, nil
}

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindString:
		return "string"
	default:
		return "none"
	}
}
