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
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

// PhoneKind is an enum-style named integer type.
type PhoneKind int32

const (
	PhoneMobile PhoneKind = iota
	PhoneHome
	PhoneWork
)

type Address struct {
	Base
	Street string `protorec:"1"`
	City   string `protorec:"2"`
	Zip    int32  `protorec:"3"`
}

type Person struct {
	Base
	Name      string     `protorec:"1,required"`
	Id        int32      `protorec:"2,required"`
	Email     string     `protorec:"3"`
	Phone     PhoneKind  `protorec:"4"`
	Scores    []int64    `protorec:"5,packed"`
	Tags      []string   `protorec:"6"`
	Home      *Address   `protorec:"7"`
	Addresses []*Address `protorec:"8"`
	Balance   float64    `protorec:"9"`
	Delta     int64      `protorec:"10,zigzag"`
	Raw       []byte     `protorec:"11"`
	Height    float32    `protorec:"12"`
}

func newTestPerson(t *testing.T) *Person {
	t.Helper()
	p := New[Person](false)
	require.NoError(t, SetField(p, "name", "ada"))
	require.NoError(t, SetField(p, "id", int32(7)))
	return p
}

func TestRoundTrip(t *testing.T) {
	p := newTestPerson(t)
	require.NoError(t, SetField(p, "email", "ada@example.com"))
	require.NoError(t, SetField(p, "phone", PhoneWork))
	require.NoError(t, SetField(p, "scores", []int64{10, -3, 250}))
	require.NoError(t, AddField(p, "tags", "x"))
	require.NoError(t, AddField(p, "tags", "y"))
	require.NoError(t, SetField(p, "balance", 12.5))
	require.NoError(t, SetField(p, "delta", int64(-42)))
	require.NoError(t, SetField(p, "raw", []byte{0, 1, 2}))
	require.NoError(t, SetField(p, "height", float32(1.75)))

	home, err := Build[Address](map[string]interface{}{
		"street": "1 Analytical Way",
		"zip":    int32(90210),
	})
	require.NoError(t, err)
	require.NoError(t, SetField(p, "home", home))

	a1, err := Build[Address](map[string]interface{}{"city": "london"})
	require.NoError(t, err)
	a2, err := Build[Address](map[string]interface{}{"city": "turin"})
	require.NoError(t, err)
	require.NoError(t, AddField(p, "addresses", a1))
	require.NoError(t, AddField(p, "addresses", a2))

	data, err := Marshal(p)
	require.NoError(t, err)

	q := New[Person](false)
	require.NoError(t, Unmarshal(data, q))

	require.True(t, Equal(p, q))
	require.Equal(t, Hash(p), Hash(q))

	// Fill pattern reproduced exactly: email set, but no stray slots.
	require.True(t, HasField(q, "email"))
	require.True(t, HasField(q, "delta"))
	require.Equal(t, []int64{10, -3, 250}, q.Scores)
	require.Equal(t, []string{"x", "y"}, q.Tags)
	require.Equal(t, PhoneWork, q.Phone)
	require.Equal(t, int64(-42), q.Delta)
	require.NotNil(t, q.Home)
	require.Equal(t, "1 Analytical Way", q.Home.Street)
	require.True(t, HasField(q.Home, "zip"))
	require.False(t, HasField(q.Home, "city"))
	require.Len(t, q.Addresses, 2)
	require.Equal(t, "turin", q.Addresses[1].City)
}

func TestRoundTripSparse(t *testing.T) {
	// Only the two required fields; everything else must come back unset.
	p := newTestPerson(t)
	data, err := Marshal(p)
	require.NoError(t, err)

	q := New[Person](false)
	require.NoError(t, Unmarshal(data, q))
	require.True(t, Equal(p, q))
	for _, name := range []string{"email", "phone", "scores", "tags", "home", "raw"} {
		require.False(t, HasField(q, name), "field %s should be unset", name)
	}
	require.Equal(t, []string{"name", "id"}, FilledFields(q))
}

func TestRequiredFieldEnforcement(t *testing.T) {
	p := New[Person](false)
	require.NoError(t, SetField(p, "name", "no id"))

	require.False(t, IsInitialized(p))
	_, err := Marshal(p)
	require.ErrorIs(t, err, ErrUninitialized)

	// Setting the missing required field fixes both, independent of any
	// optional field's fill state.
	require.NoError(t, SetField(p, "id", int32(1)))
	require.True(t, IsInitialized(p))
	_, err = Marshal(p)
	require.NoError(t, err)
}

func TestPackedEncoding(t *testing.T) {
	type packedOnly struct {
		Base
		Values []int64 `protorec:"1,packed"`
	}
	rec := New[packedOnly](false)
	require.NoError(t, SetField(rec, "values", []int64{1, 2, 300}))

	data, err := Marshal(rec)
	require.NoError(t, err)
	// Exactly one tag, one length, then the concatenated varints:
	// tag (1<<3|2), len 4, 1, 2, 300 (0xAC 0x02).
	require.Equal(t, []byte{0x0A, 0x04, 0x01, 0x02, 0xAC, 0x02}, data)

	got := New[packedOnly](false)
	require.NoError(t, Unmarshal(data, got))
	require.Equal(t, []int64{1, 2, 300}, got.Values)
}

func TestUnpackedRepeatedEncoding(t *testing.T) {
	type unpacked struct {
		Base
		Values []int64 `protorec:"1"`
	}
	rec := New[unpacked](false)
	require.NoError(t, SetField(rec, "values", []int64{1, 2}))

	data, err := Marshal(rec)
	require.NoError(t, err)
	// One tag per element.
	require.Equal(t, []byte{0x08, 0x01, 0x08, 0x02}, data)

	got := New[unpacked](false)
	require.NoError(t, Unmarshal(data, got))
	require.Equal(t, []int64{1, 2}, got.Values)
}

func TestPackedDecodeToleratesUnpacked(t *testing.T) {
	// A packed-declared field must still accept per-element tags.
	type packedOnly2 struct {
		Base
		Values []int32 `protorec:"2,packed"`
	}
	buf := NewByteBuffer(nil)
	buf.WriteTag(2, WireVarint)
	buf.WriteVarUint64(5)
	buf.WriteTag(2, WireVarint)
	buf.WriteVarUint64(6)

	got := New[packedOnly2](false)
	require.NoError(t, Unmarshal(buf.Bytes(), got))
	require.Equal(t, []int32{5, 6}, got.Values)
}

func TestUnknownFieldTolerance(t *testing.T) {
	type narrow struct {
		Base
		Known string `protorec:"1"`
	}
	buf := NewByteBuffer(nil)
	buf.WriteTag(1, WireBytes)
	buf.WriteLengthDelimited([]byte("kept"))
	// Unknown fields of every wire type, all dropped without error.
	buf.WriteTag(90, WireVarint)
	buf.WriteVarUint64(12345)
	buf.WriteTag(91, WireFixed32)
	buf.WriteFixed32(1)
	buf.WriteTag(92, WireFixed64)
	buf.WriteFixed64(2)
	buf.WriteTag(93, WireBytes)
	buf.WriteLengthDelimited([]byte("dropped"))

	got := New[narrow](false)
	require.NoError(t, Unmarshal(buf.Bytes(), got))
	require.Equal(t, "kept", got.Known)
	require.Equal(t, []string{"known"}, FilledFields(got))
}

func TestWireTypeMismatchSkipped(t *testing.T) {
	type narrow2 struct {
		Base
		Count int32 `protorec:"1"` // varint on the wire
	}
	buf := NewByteBuffer(nil)
	buf.WriteTag(1, WireFixed64) // disagrees with the declared kind
	buf.WriteFixed64(99)

	got := New[narrow2](false)
	require.NoError(t, Unmarshal(buf.Bytes(), got))
	require.False(t, HasField(got, "count"))
}

func TestEnumNegativeValue(t *testing.T) {
	type withEnum struct {
		Base
		Kind PhoneKind `protorec:"1"`
	}
	rec := New[withEnum](false)
	require.NoError(t, SetField(rec, "kind", PhoneKind(-1)))

	data, err := Marshal(rec)
	require.NoError(t, err)
	// Negative enums sign-extend to the full 10-byte varint.
	require.Len(t, data, 11)

	got := New[withEnum](false)
	require.NoError(t, Unmarshal(data, got))
	require.Equal(t, PhoneKind(-1), got.Kind)
}

func TestMalformedInputAborts(t *testing.T) {
	t.Run("TruncatedPayload", func(t *testing.T) {
		p := newTestPerson(t)
		data, err := Marshal(p)
		require.NoError(t, err)

		q := New[Person](false)
		err = Unmarshal(data[:len(data)-1], q)
		require.ErrorIs(t, err, ErrUnexpectedEOF)
	})

	t.Run("BadTag", func(t *testing.T) {
		q := New[Person](false)
		err := Unmarshal([]byte{0x0B}, q) // field 1, wire type 3
		require.ErrorIs(t, err, ErrMalformedTag)
	})
}

func TestEncodeDecodeStream(t *testing.T) {
	p := newTestPerson(t)
	var wire bytes.Buffer
	codec := NewCodec()
	require.NoError(t, codec.Encode(&wire, p))

	q := New[Person](false)
	require.NoError(t, codec.Decode(&wire, q))
	require.True(t, Equal(p, q))
}

func TestDelimitedStream(t *testing.T) {
	codec := NewCodec()
	var wire bytes.Buffer
	for _, name := range []string{"a", "b", "c"} {
		p := New[Person](false)
		require.NoError(t, SetField(p, "name", name))
		require.NoError(t, SetField(p, "id", int32(len(name))))
		require.NoError(t, codec.EncodeDelimited(&wire, p))
	}

	var names []string
	for {
		q := New[Person](false)
		err := codec.DecodeDelimited(&wire, q)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, q.Name)
	}
	require.Equal(t, []string{"a", "b", "c"}, names)
}

func TestDelimitedTruncatedPrefix(t *testing.T) {
	codec := NewCodec()

	// A length prefix cut off mid-varint is a truncated stream.
	q := New[Person](false)
	err := codec.DecodeDelimited(bytes.NewReader([]byte{0x80}), q)
	require.ErrorIs(t, err, ErrUnexpectedEOF)

	// An empty stream is a clean end.
	err = codec.DecodeDelimited(bytes.NewReader(nil), q)
	require.Equal(t, io.EOF, err)
}

func TestDelimitedFrameSizeLimit(t *testing.T) {
	codec := NewCodec(WithMaxFrameSize(16))

	p := New[Person](false)
	require.NoError(t, SetField(p, "name", "a"))
	require.NoError(t, SetField(p, "id", int32(1)))
	var wire bytes.Buffer
	require.NoError(t, codec.EncodeDelimited(&wire, p))

	q := New[Person](false)
	require.NoError(t, codec.DecodeDelimited(&wire, q))
	require.Equal(t, "a", q.Name)

	// A prefix announcing a frame past the cap is rejected before any
	// body byte is read.
	huge := NewByteBuffer(nil)
	huge.WriteLength(1 << 30)
	err := codec.DecodeDelimited(bytes.NewReader(huge.Bytes()), q)
	require.Error(t, err)
	require.NotEqual(t, io.EOF, err)
}

func TestMaxDepth(t *testing.T) {
	type node struct {
		Base
		Next *node `protorec:"1"`
	}
	root := New[node](false)
	cur := root
	for i := 0; i < 5; i++ {
		child := New[node](false)
		require.NoError(t, SetField(cur, "next", child))
		cur = child
	}

	shallow := NewCodec(WithMaxDepth(3))
	_, err := shallow.Marshal(root)
	require.Error(t, err)

	deep := NewCodec(WithMaxDepth(10))
	data, err := deep.Marshal(root)
	require.NoError(t, err)

	got := New[node](false)
	require.Error(t, shallow.Unmarshal(data, got))
	require.NoError(t, deep.Unmarshal(data, New[node](false)))
}

func TestNilMessageMarkedFilled(t *testing.T) {
	p := newTestPerson(t)
	p.fillState().Mark(6) // "home" slot, left nil
	_, err := Marshal(p)
	require.Error(t, err)
}
