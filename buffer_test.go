// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package protorec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVarUint64Boundaries(t *testing.T) {
	cases := []struct {
		value uint64
		bytes int8
	}{
		{0, 1},
		{1, 1},
		{127, 1},
		{128, 2},
		{1 << 14, 3},
		{1 << 21, 4},
		{1 << 28, 5},
		{math.MaxUint32, 5},
		{1 << 35, 6},
		{1 << 42, 7},
		{1 << 49, 8},
		{1 << 56, 9},
		{1 << 63, 10},
		{math.MaxUint64, 10},
	}
	for _, tc := range cases {
		buf := NewByteBuffer(nil)
		require.Equal(t, tc.bytes, buf.WriteVarUint64(tc.value), "value %d", tc.value)
		got, err := buf.ReadVarUint64()
		require.NoError(t, err)
		require.Equal(t, tc.value, got)
		require.Equal(t, buf.ReaderIndex(), buf.WriterIndex())
	}
}

func TestZigzagRoundTrip(t *testing.T) {
	for _, v := range []int64{-1, 0, 1, math.MinInt32, math.MaxInt32, math.MinInt64, math.MaxInt64} {
		buf := NewByteBuffer(nil)
		buf.WriteZigzag64(v)
		got, err := buf.ReadZigzag64()
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestZigzagShorterForSmallNegatives(t *testing.T) {
	zig := NewByteBuffer(nil)
	zig.WriteZigzag64(-1)

	plain := NewByteBuffer(nil)
	neg := int64(-1)
	plain.WriteVarUint64(uint64(neg))

	require.Equal(t, 1, zig.WriterIndex())
	require.Equal(t, 10, plain.WriterIndex())
}

func TestFixedWidth(t *testing.T) {
	buf := NewByteBuffer(nil)
	buf.WriteFixed32(0xDEADBEEF)
	buf.WriteFixed64(0x0123456789ABCDEF)

	v32, err := buf.ReadFixed32()
	require.NoError(t, err)
	require.Equal(t, uint32(0xDEADBEEF), v32)

	v64, err := buf.ReadFixed64()
	require.NoError(t, err)
	require.Equal(t, uint64(0x0123456789ABCDEF), v64)

	// little-endian layout
	require.Equal(t, byte(0xEF), buf.Bytes()[0])
}

func TestTagRoundTrip(t *testing.T) {
	for _, number := range []int32{1, 15, 16, 1000, MaxFieldNumber} {
		for _, wt := range []WireType{WireVarint, WireFixed64, WireBytes, WireFixed32} {
			buf := NewByteBuffer(nil)
			buf.WriteTag(number, wt)
			gotNumber, gotType, err := buf.ReadTag()
			require.NoError(t, err)
			require.Equal(t, number, gotNumber)
			require.Equal(t, wt, gotType)
		}
	}
}

func TestMalformedTag(t *testing.T) {
	t.Run("FieldNumberZero", func(t *testing.T) {
		buf := NewByteBuffer(nil)
		buf.WriteVarUint64(uint64(WireVarint)) // tag with field number 0
		_, _, err := buf.ReadTag()
		require.ErrorIs(t, err, ErrMalformedTag)
	})

	t.Run("FieldNumberOverflow", func(t *testing.T) {
		buf := NewByteBuffer(nil)
		buf.WriteVarUint64(uint64(MaxFieldNumber+1) << 3)
		_, _, err := buf.ReadTag()
		require.ErrorIs(t, err, ErrMalformedTag)
	})

	t.Run("GroupWireType", func(t *testing.T) {
		buf := NewByteBuffer(nil)
		buf.WriteVarUint64(1<<3 | 3) // start-group, unsupported
		_, _, err := buf.ReadTag()
		require.ErrorIs(t, err, ErrMalformedTag)
	})
}

func TestMalformedVarint(t *testing.T) {
	// 10 continuation bytes with no terminator.
	buf := NewByteBuffer([]byte{
		0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x01,
	})
	_, err := buf.ReadVarUint64()
	require.ErrorIs(t, err, ErrMalformedVarint)
}

func TestUnexpectedEOF(t *testing.T) {
	t.Run("VarintTruncated", func(t *testing.T) {
		buf := NewByteBuffer([]byte{0x80, 0x80})
		_, err := buf.ReadVarUint64()
		require.ErrorIs(t, err, ErrUnexpectedEOF)
	})

	t.Run("FixedTruncated", func(t *testing.T) {
		buf := NewByteBuffer([]byte{1, 2, 3})
		_, err := buf.ReadFixed32()
		require.ErrorIs(t, err, ErrUnexpectedEOF)
	})

	t.Run("LengthExceedsStream", func(t *testing.T) {
		buf := NewByteBuffer(nil)
		buf.WriteLength(100)
		buf.WriteBinary([]byte("short"))
		_, err := buf.ReadLengthDelimited()
		require.ErrorIs(t, err, ErrUnexpectedEOF)
	})
}

func TestLengthDelimitedRoundTrip(t *testing.T) {
	buf := NewByteBuffer(nil)
	buf.WriteLengthDelimited([]byte("hello protorec"))
	buf.WriteLengthDelimited(nil)

	p, err := buf.ReadLengthDelimited()
	require.NoError(t, err)
	require.Equal(t, "hello protorec", string(p))

	p, err = buf.ReadLengthDelimited()
	require.NoError(t, err)
	require.Empty(t, p)
}

func TestBufferReuse(t *testing.T) {
	buf := NewByteBuffer(nil)
	for i := 0; i < 100; i++ {
		buf.WriteVarUint64(uint64(i))
	}
	for i := 0; i < 100; i++ {
		v, err := buf.ReadVarUint64()
		require.NoError(t, err)
		require.Equal(t, uint64(i), v)
	}
	buf.Reset()
	require.Equal(t, 0, buf.Remaining())
	buf.WriteByte_(7)
	b, err := buf.ReadByte_()
	require.NoError(t, err)
	require.Equal(t, byte(7), b)
}
