// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package h264

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitAnnexB(t *testing.T) {
	tests := []struct {
		name string
		au   []byte
		want [][]byte
	}{
		{"empty", nil, nil},
		{"no start code", []byte{0x65, 1, 2}, nil},
		{"one", []byte{0, 0, 0, 1, 0x65, 1, 2}, [][]byte{{0x65, 1, 2}}},
		{"mixed", []byte{0, 0, 0, 1, 0x67, 1, 0, 0, 1, 0x68, 2, 0, 0, 0, 1, 0x65, 3},
			[][]byte{{0x67, 1}, {0x68, 2}, {0x65, 3}}},
		{"empty nal", []byte{0, 0, 1, 0, 0, 1, 0x41}, [][]byte{{0x41}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitAnnexB(tt.au))
		})
	}
}

func TestNalHelpers(t *testing.T) {
	assert.Equal(t, byte(NalIdrSlice), NalType(0x65))
	assert.True(t, IsSingleNal(NalSps))
	assert.False(t, IsSingleNal(NalFuAInRtp))
	assert.False(t, IsSingleNal(0))
	assert.Equal(t, byte(0x65), FuHeader(0x7c, 0x85))
	assert.True(t, IsKeyFrame([]byte{0, 0, 0, 1, 0x67, 1, 0, 0, 0, 1, 0x65, 2}))
	assert.False(t, IsKeyFrame([]byte{0, 0, 0, 1, 0x41, 1}))
	assert.True(t, HasNal(AccessUnitDelimiter, NalAud))
}
