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
	"encoding/binary"
	"fmt"
)

// ============================================================================
// ByteBuffer - sequential wire codec over a growable byte slice
// ============================================================================

// ByteBuffer is the byte stream every wire operation runs against. Writes
// grow the backing slice and never fail; reads surface ErrUnexpectedEOF,
// ErrMalformedVarint or ErrMalformedTag and are terminal for the operation
// in progress.
type ByteBuffer struct {
	data        []byte
	writerIndex int
	readerIndex int
}

// NewByteBuffer creates a buffer over data. Pass nil for a write buffer;
// passing existing bytes makes them readable immediately.
func NewByteBuffer(data []byte) *ByteBuffer {
	return &ByteBuffer{data: data, writerIndex: len(data)}
}

// Reset rewinds both indexes for reuse, keeping the backing array.
func (b *ByteBuffer) Reset() {
	b.writerIndex = 0
	b.readerIndex = 0
}

// SetData replaces the readable content.
func (b *ByteBuffer) SetData(data []byte) {
	b.data = data
	b.writerIndex = len(data)
	b.readerIndex = 0
}

func (b *ByteBuffer) WriterIndex() int { return b.writerIndex }
func (b *ByteBuffer) ReaderIndex() int { return b.readerIndex }

// Remaining returns the number of unread bytes.
func (b *ByteBuffer) Remaining() int { return b.writerIndex - b.readerIndex }

// Bytes returns the written content. The slice aliases the backing array.
func (b *ByteBuffer) Bytes() []byte { return b.data[:b.writerIndex] }

func (b *ByteBuffer) grow(n int) {
	need := b.writerIndex + n
	if need <= cap(b.data) {
		b.data = b.data[:cap(b.data)]
		return
	}
	newCap := 2 * cap(b.data)
	if newCap < need {
		newCap = need
	}
	if newCap < 32 {
		newCap = 32
	}
	data := make([]byte, newCap)
	copy(data, b.data)
	b.data = data
}

// ============================================================================
// Writes
// ============================================================================

// WriteByte_ appends a single byte. The underscore keeps ByteBuffer from
// accidentally satisfying io.ByteWriter with different semantics.
func (b *ByteBuffer) WriteByte_(v byte) {
	b.grow(1)
	b.data[b.writerIndex] = v
	b.writerIndex++
}

// WriteBinary appends raw bytes.
func (b *ByteBuffer) WriteBinary(p []byte) {
	b.grow(len(p))
	copy(b.data[b.writerIndex:], p)
	b.writerIndex += len(p)
}

// WriteVarUint64 writes an unsigned base-128 varint, 7 bits per byte with
// the continuation bit high, little-endian group order.
func (b *ByteBuffer) WriteVarUint64(v uint64) int8 {
	b.grow(10)
	var n int8
	for v >= 0x80 {
		b.data[b.writerIndex] = byte(v) | 0x80
		b.writerIndex++
		v >>= 7
		n++
	}
	b.data[b.writerIndex] = byte(v)
	b.writerIndex++
	return n + 1
}

// WriteZigzag64 maps a signed value to (n<<1)^(n>>63) before varint
// encoding, so small-magnitude negatives stay short on the wire.
func (b *ByteBuffer) WriteZigzag64(v int64) int8 {
	return b.WriteVarUint64(uint64(v<<1) ^ uint64(v>>63))
}

// WriteFixed32 writes 4 little-endian bytes.
func (b *ByteBuffer) WriteFixed32(v uint32) {
	b.grow(4)
	binary.LittleEndian.PutUint32(b.data[b.writerIndex:], v)
	b.writerIndex += 4
}

// WriteFixed64 writes 8 little-endian bytes.
func (b *ByteBuffer) WriteFixed64(v uint64) {
	b.grow(8)
	binary.LittleEndian.PutUint64(b.data[b.writerIndex:], v)
	b.writerIndex += 8
}

// WriteTag writes (fieldNumber << 3) | wireType as a varint.
func (b *ByteBuffer) WriteTag(fieldNumber int32, wt WireType) {
	b.WriteVarUint64(uint64(fieldNumber)<<3 | uint64(wt))
}

// WriteLength writes a varint byte-count prefix.
func (b *ByteBuffer) WriteLength(n int) {
	b.WriteVarUint64(uint64(n))
}

// WriteLengthDelimited writes a varint length prefix followed by the raw
// bytes. Strings, byte fields and serialized embedded messages all use it.
func (b *ByteBuffer) WriteLengthDelimited(p []byte) {
	b.WriteLength(len(p))
	b.WriteBinary(p)
}

// ============================================================================
// Reads
// ============================================================================

// ReadByte_ consumes one byte.
func (b *ByteBuffer) ReadByte_() (byte, error) {
	if b.readerIndex >= b.writerIndex {
		return 0, ErrUnexpectedEOF
	}
	v := b.data[b.readerIndex]
	b.readerIndex++
	return v, nil
}

// ReadBinary consumes exactly n bytes. The returned slice aliases the
// backing array; callers that retain it must copy.
func (b *ByteBuffer) ReadBinary(n int) ([]byte, error) {
	if n < 0 || b.Remaining() < n {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrUnexpectedEOF, n, b.Remaining())
	}
	p := b.data[b.readerIndex : b.readerIndex+n]
	b.readerIndex += n
	return p, nil
}

// ReadVarUint64 decodes an unsigned varint, failing with ErrMalformedVarint
// if no terminating byte appears within the 10-byte 64-bit ceiling.
func (b *ByteBuffer) ReadVarUint64() (uint64, error) {
	var v uint64
	var shift uint
	for i := 0; i < 10; i++ {
		if b.readerIndex >= b.writerIndex {
			return 0, ErrUnexpectedEOF
		}
		c := b.data[b.readerIndex]
		b.readerIndex++
		v |= uint64(c&0x7F) << shift
		if c < 0x80 {
			return v, nil
		}
		shift += 7
	}
	return 0, ErrMalformedVarint
}

// ReadZigzag64 decodes a zigzag-mapped varint back to its signed value.
func (b *ByteBuffer) ReadZigzag64() (int64, error) {
	u, err := b.ReadVarUint64()
	if err != nil {
		return 0, err
	}
	return int64(u>>1) ^ -int64(u&1), nil
}

// ReadFixed32 consumes 4 little-endian bytes.
func (b *ByteBuffer) ReadFixed32() (uint32, error) {
	if b.Remaining() < 4 {
		return 0, ErrUnexpectedEOF
	}
	v := binary.LittleEndian.Uint32(b.data[b.readerIndex:])
	b.readerIndex += 4
	return v, nil
}

// ReadFixed64 consumes 8 little-endian bytes.
func (b *ByteBuffer) ReadFixed64() (uint64, error) {
	if b.Remaining() < 8 {
		return 0, ErrUnexpectedEOF
	}
	v := binary.LittleEndian.Uint64(b.data[b.readerIndex:])
	b.readerIndex += 8
	return v, nil
}

// ReadTag decodes the next field tag into its field number and wire-type
// code, failing with ErrMalformedTag on field-number overflow or an invalid
// wire-type code.
func (b *ByteBuffer) ReadTag() (int32, WireType, error) {
	v, err := b.ReadVarUint64()
	if err != nil {
		return 0, 0, err
	}
	if v>>3 > MaxFieldNumber || v>>3 == 0 {
		return 0, 0, fmt.Errorf("%w: field number %d", ErrMalformedTag, v>>3)
	}
	wt := WireType(v & 0x7)
	if !validWireType(wt) {
		return 0, 0, fmt.Errorf("%w: wire type %d", ErrMalformedTag, wt)
	}
	return int32(v >> 3), wt, nil
}

// ReadLength decodes a varint byte-count prefix and bounds-checks it
// against the unread remainder of the stream.
func (b *ByteBuffer) ReadLength() (int, error) {
	v, err := b.ReadVarUint64()
	if err != nil {
		return 0, err
	}
	if v > uint64(b.Remaining()) {
		return 0, fmt.Errorf("%w: announced length %d exceeds %d unread bytes",
			ErrUnexpectedEOF, v, b.Remaining())
	}
	return int(v), nil
}

// ReadLengthDelimited reads the varint length then exactly that many bytes.
func (b *ByteBuffer) ReadLengthDelimited() ([]byte, error) {
	n, err := b.ReadLength()
	if err != nil {
		return nil, err
	}
	return b.ReadBinary(n)
}
