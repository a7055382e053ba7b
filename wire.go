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

import "fmt"

// ============================================================================
// Wire format
// ============================================================================

// WireType is the physical encoding code carried in every field tag,
// per the standard protobuf binary format.
type WireType int8

const (
	// WireVarint base-128 varint: int32, int64, uint32, uint64, sint32, sint64, bool, enum
	WireVarint WireType = 0
	// WireFixed64 8-byte little-endian: fixed64, sfixed64, double
	WireFixed64 WireType = 1
	// WireBytes length-delimited: string, bytes, embedded messages, packed repeated fields
	WireBytes WireType = 2
	// WireFixed32 4-byte little-endian: fixed32, sfixed32, float
	WireFixed32 WireType = 5
)

// MaxFieldNumber is the largest field number encodable in a tag (29 bits).
const MaxFieldNumber = 1<<29 - 1

// WireKind is the encoding family derived from a field's declared semantic
// type. It decides both the wire type placed in the tag and how the payload
// bytes are produced and consumed.
type WireKind int8

const (
	// KindVarint plain unsigned/two's-complement varint (int32, int64, uint32, uint64, bool, enum)
	KindVarint WireKind = iota
	// KindZigzag zigzag-mapped varint (sint32, sint64)
	KindZigzag
	// KindFixed32 little-endian 4 bytes (fixed32, sfixed32, float)
	KindFixed32
	// KindFixed64 little-endian 8 bytes (fixed64, sfixed64, double)
	KindFixed64
	// KindBytes length-delimited (string, bytes, message)
	KindBytes
)

// WireType returns the tag wire-type code for the kind.
func (k WireKind) WireType() WireType {
	switch k {
	case KindFixed32:
		return WireFixed32
	case KindFixed64:
		return WireFixed64
	case KindBytes:
		return WireBytes
	default:
		return WireVarint
	}
}

// Packable reports whether a repeated field of this kind may use the packed
// encoding. Only scalar numeric kinds pack; length-delimited values never do.
func (k WireKind) Packable() bool {
	return k != KindBytes
}

func (k WireKind) String() string {
	switch k {
	case KindVarint:
		return "varint"
	case KindZigzag:
		return "zigzag"
	case KindFixed32:
		return "fixed32"
	case KindFixed64:
		return "fixed64"
	case KindBytes:
		return "bytes"
	default:
		return fmt.Sprintf("WireKind(%d)", int8(k))
	}
}

func (t WireType) String() string {
	switch t {
	case WireVarint:
		return "varint"
	case WireFixed64:
		return "fixed64"
	case WireBytes:
		return "bytes"
	case WireFixed32:
		return "fixed32"
	default:
		return fmt.Sprintf("WireType(%d)", int8(t))
	}
}

// validWireType reports whether the code parsed from a tag is one the codec
// understands. Codes 3 and 4 (the removed group markers) are rejected.
func validWireType(t WireType) bool {
	switch t {
	case WireVarint, WireFixed64, WireBytes, WireFixed32:
		return true
	default:
		return false
	}
}

// ============================================================================
// Raw field walking
// ============================================================================

// RawField is one undecoded field as it appears on the wire. For varint and
// fixed-width fields Value holds the raw bits; for length-delimited fields
// Payload aliases the buffer's backing array for the announced length.
type RawField struct {
	Number  int32
	Type    WireType
	Value   uint64
	Payload []byte
}

// ReadRawField parses the next tag and its payload without interpreting it.
// It is the primitive behind unknown-field skipping and the wire inspector.
func ReadRawField(buf *ByteBuffer) (RawField, error) {
	number, wt, err := buf.ReadTag()
	if err != nil {
		return RawField{}, err
	}
	raw := RawField{Number: number, Type: wt}
	switch wt {
	case WireVarint:
		raw.Value, err = buf.ReadVarUint64()
	case WireFixed64:
		raw.Value, err = buf.ReadFixed64()
	case WireFixed32:
		var v uint32
		v, err = buf.ReadFixed32()
		raw.Value = uint64(v)
	case WireBytes:
		var n int
		n, err = buf.ReadLength()
		if err == nil {
			raw.Payload, err = buf.ReadBinary(n)
		}
	}
	if err != nil {
		return RawField{}, err
	}
	return raw, nil
}

// skipValue reads and discards one payload of the given wire type. Unknown
// field numbers are dropped this way so the stream stays tag-aligned.
func skipValue(buf *ByteBuffer, wt WireType) error {
	switch wt {
	case WireVarint:
		_, err := buf.ReadVarUint64()
		return err
	case WireFixed64:
		_, err := buf.ReadFixed64()
		return err
	case WireFixed32:
		_, err := buf.ReadFixed32()
		return err
	case WireBytes:
		n, err := buf.ReadLength()
		if err != nil {
			return err
		}
		_, err = buf.ReadBinary(n)
		return err
	default:
		return fmt.Errorf("%w: wire type %d", ErrMalformedTag, wt)
	}
}
