// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package scan 提供按分隔符切分字串和提取 key=value 的简单扫描器。
package scan

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// 预定义扫描器
var (
	// Colon 冒号分割，用于 inputs=2:sample_rate=8000 这类拓扑串
	Colon = NewScanner(':', unicode.IsSpace)
	// Comma 逗号分割
	Comma = NewScanner(',', unicode.IsSpace)

	// EqualPair 扫描 K=V 形式的字串
	EqualPair = NewPair('=', func(r rune) bool {
		return unicode.IsSpace(r) || r == '"'
	})
)

func noTrim(rune) bool { return false }

// Scanner 按单个分隔符逐个扫描 token
type Scanner struct {
	delim    rune
	delimLen int
	trim     func(r rune) bool
}

// NewScanner 创建扫描器，trim 为 nil 时不做裁剪
func NewScanner(delim rune, trim func(r rune) bool) Scanner {
	if trim == nil {
		trim = noTrim
	}
	return Scanner{delim: delim, delimLen: utf8.RuneLen(delim), trim: trim}
}

// Scan 返回剩余字串、当前 token，以及是否还有后续 token
func (s Scanner) Scan(str string) (advance, token string, more bool) {
	i := strings.IndexRune(str, s.delim)
	if i < 0 {
		return "", strings.TrimFunc(str, s.trim), false
	}
	return str[i+s.delimLen:], strings.TrimFunc(str[:i], s.trim), true
}

// Tokens 扫描出全部非空 token
func (s Scanner) Tokens(str string) []string {
	var tokens []string
	for more := true; more; {
		var token string
		str, token, more = s.Scan(str)
		if token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

// Pair 从字串中提取 key 和 value
type Pair struct {
	delim    rune
	delimLen int
	trim     func(r rune) bool
}

// NewPair 创建 Pair 扫描器
func NewPair(delim rune, trim func(r rune) bool) Pair {
	if trim == nil {
		trim = noTrim
	}
	return Pair{delim: delim, delimLen: utf8.RuneLen(delim), trim: trim}
}

// Scan 提取 key 和 value，没有分隔符时 found 为 false，key 为整个字串
func (p Pair) Scan(s string) (key, value string, found bool) {
	i := strings.IndexRune(s, p.delim)
	if i < 0 {
		return strings.TrimFunc(s, p.trim), "", false
	}
	return strings.TrimFunc(s[:i], p.trim),
		strings.TrimFunc(s[i+p.delimLen:], p.trim), true
}
