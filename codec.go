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
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
)

// ============================================================================
// Codec - generic schema-driven serializer/deserializer
// ============================================================================

// Codec walks arbitrary record instances field-by-field, driven entirely by
// the type's MetaTable. A Codec holds no per-message state and is safe for
// concurrent use; the records it operates on are not.
type Codec struct {
	maxDepth     int
	maxFrameSize int
}

// Option configures a Codec.
type Option func(*Codec)

// WithMaxDepth bounds message nesting on both encode and decode.
func WithMaxDepth(depth int) Option {
	return func(c *Codec) {
		c.maxDepth = depth
	}
}

// WithMaxFrameSize bounds the announced length of a delimited frame read
// from a stream. The frame buffer is allocated up front, so the limit is
// what stands between a hostile length prefix and an arbitrary allocation.
func WithMaxFrameSize(bytes int) Option {
	return func(c *Codec) {
		c.maxFrameSize = bytes
	}
}

// NewCodec creates a Codec with the given options.
func NewCodec(opts ...Option) *Codec {
	c := &Codec{maxDepth: 100, maxFrameSize: 64 << 20}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var defaultCodec = NewCodec()

// Marshal serializes a record to wire bytes using the default codec.
func Marshal(rec Record) ([]byte, error) { return defaultCodec.Marshal(rec) }

// Unmarshal populates a record from wire bytes using the default codec.
func Unmarshal(data []byte, rec Record) error { return defaultCodec.Unmarshal(data, rec) }

// Marshal serializes a record to wire bytes.
func (c *Codec) Marshal(rec Record) ([]byte, error) {
	buf := NewByteBuffer(nil)
	if err := c.MarshalTo(buf, rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalTo serializes a record into an existing buffer, appending at the
// buffer's writer index. The pooled wrapper in package threadsafe relies on
// this to reuse backing arrays.
func (c *Codec) MarshalTo(buf *ByteBuffer, rec Record) error {
	v, mt, err := recordValue(rec)
	if err != nil {
		return err
	}
	return c.writeRecord(buf, v, mt, rec.fillState(), 0)
}

// Unmarshal populates a record from wire bytes. The message boundary is the
// end of data: this format has no end marker, so exactly one message is
// read per call. On failure the record's fill state is unspecified; callers
// needing atomicity should decode into a fresh instance.
func (c *Codec) Unmarshal(data []byte, rec Record) error {
	v, mt, err := recordValue(rec)
	if err != nil {
		return err
	}
	return c.readRecord(NewByteBuffer(data), v, mt, rec.fillState(), 0)
}

// ============================================================================
// Stream API
// ============================================================================

// Encode writes one serialized record to w. The surrounding transport is
// responsible for delimiting messages.
func (c *Codec) Encode(w io.Writer, rec Record) error {
	data, err := c.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Decode reads r to exhaustion and unmarshals the bytes as one message.
func (c *Codec) Decode(r io.Reader, rec Record) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("protorec: decode: %w", err)
	}
	return c.Unmarshal(data, rec)
}

// EncodeDelimited writes the record as a varint-length-prefixed frame, the
// conventional way to put several messages on one stream.
func (c *Codec) EncodeDelimited(w io.Writer, rec Record) error {
	data, err := c.Marshal(rec)
	if err != nil {
		return err
	}
	prefix := NewByteBuffer(nil)
	prefix.WriteLength(len(data))
	if _, err := w.Write(prefix.Bytes()); err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// DecodeDelimited reads one varint-length-prefixed frame from r and decodes
// it into rec. A clean io.EOF before the first prefix byte is returned
// as-is so callers can loop until end of stream. Callers reading several
// frames from the same underlying stream should pass a reader that
// implements io.ByteReader (e.g. *bufio.Reader), otherwise the internal
// buffering may read ahead past the frame.
func (c *Codec) DecodeDelimited(r io.Reader, rec Record) error {
	br, ok := r.(interface {
		io.Reader
		io.ByteReader
	})
	if !ok {
		br = bufio.NewReader(r)
	}
	n, err := binary.ReadUvarint(br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		// A stream ending mid-prefix is a truncation, not a bad encoding.
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: frame length", ErrUnexpectedEOF)
		}
		return fmt.Errorf("%w: frame length", ErrMalformedVarint)
	}
	if n > uint64(c.maxFrameSize) {
		return fmt.Errorf("protorec: frame of %d bytes exceeds limit %d", n, c.maxFrameSize)
	}
	frame := make([]byte, n)
	if _, err := io.ReadFull(br, frame); err != nil {
		return fmt.Errorf("%w: frame body", ErrUnexpectedEOF)
	}
	return c.Unmarshal(frame, rec)
}

// ============================================================================
// Write path
// ============================================================================

func (c *Codec) writeRecord(buf *ByteBuffer, v reflect.Value, mt *MetaTable, fill *FillState, depth int) error {
	if depth > c.maxDepth {
		return fmt.Errorf("protorec: message nesting exceeds %d", c.maxDepth)
	}
	// Required-field completeness is checked for each message as it is
	// written; nested messages are validated when their own bytes are
	// produced, not transitively up front.
	for i, fd := range mt.Fields {
		if fd.Required && !fill.Has(i) {
			return fmt.Errorf("%w: %s.%s", ErrUninitialized, mt.Type.Name(), fd.Name)
		}
	}

	for i, fd := range mt.Fields {
		if !fill.Has(i) {
			continue
		}
		fieldValue := v.Field(fd.Index)
		switch {
		case fd.Repeated && fd.Packed:
			// One tag, then one length-delimited run of concatenated
			// element encodings without per-element tags.
			side := NewByteBuffer(nil)
			for j := 0; j < fieldValue.Len(); j++ {
				writeScalar(side, fd.Kind, fieldValue.Index(j))
			}
			buf.WriteTag(fd.Number, WireBytes)
			buf.WriteLengthDelimited(side.Bytes())
		case fd.Repeated:
			for j := 0; j < fieldValue.Len(); j++ {
				if fd.Message {
					if err := c.writeMessage(buf, fd, fieldValue.Index(j), depth); err != nil {
						return err
					}
				} else {
					buf.WriteTag(fd.Number, fd.Kind.WireType())
					writeScalar(buf, fd.Kind, fieldValue.Index(j))
				}
			}
		case fd.Message:
			if err := c.writeMessage(buf, fd, fieldValue, depth); err != nil {
				return err
			}
		default:
			buf.WriteTag(fd.Number, fd.Kind.WireType())
			writeScalar(buf, fd.Kind, fieldValue)
		}
	}
	return nil
}

// writeMessage serializes a nested record into a side buffer first; the
// length prefix cannot be emitted until the payload size is known.
func (c *Codec) writeMessage(buf *ByteBuffer, fd *FieldDescriptor, ptr reflect.Value, depth int) error {
	if ptr.IsNil() {
		return fmt.Errorf("protorec: field %s is marked filled but nil", fd.Name)
	}
	inner, ok := ptr.Interface().(Record)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRecord, ptr.Type())
	}
	innerMeta, err := metaOf(fd.Elem)
	if err != nil {
		return err
	}
	side := NewByteBuffer(nil)
	if err := c.writeRecord(side, ptr.Elem(), innerMeta, inner.fillState(), depth+1); err != nil {
		return err
	}
	buf.WriteTag(fd.Number, WireBytes)
	buf.WriteLengthDelimited(side.Bytes())
	return nil
}

// writeScalar emits one payload of the wire kind. Enums ride the ordinary
// signed-varint path of their underlying integer type.
func writeScalar(buf *ByteBuffer, kind WireKind, v reflect.Value) {
	switch kind {
	case KindVarint:
		switch v.Kind() {
		case reflect.Bool:
			if v.Bool() {
				buf.WriteVarUint64(1)
			} else {
				buf.WriteVarUint64(0)
			}
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			buf.WriteVarUint64(v.Uint())
		default:
			// Negative values sign-extend to the full 10-byte varint,
			// matching the standard encoding for int32/int64/enum.
			buf.WriteVarUint64(uint64(v.Int()))
		}
	case KindZigzag:
		buf.WriteZigzag64(v.Int())
	case KindFixed32:
		switch v.Kind() {
		case reflect.Float32:
			buf.WriteFixed32(math.Float32bits(float32(v.Float())))
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			buf.WriteFixed32(uint32(v.Uint()))
		default:
			buf.WriteFixed32(uint32(v.Int()))
		}
	case KindFixed64:
		switch v.Kind() {
		case reflect.Float64:
			buf.WriteFixed64(math.Float64bits(v.Float()))
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			buf.WriteFixed64(v.Uint())
		default:
			buf.WriteFixed64(uint64(v.Int()))
		}
	case KindBytes:
		if v.Kind() == reflect.String {
			buf.WriteLengthDelimited([]byte(v.String()))
		} else {
			buf.WriteLengthDelimited(v.Bytes())
		}
	}
}

// ============================================================================
// Read path
// ============================================================================

func (c *Codec) readRecord(buf *ByteBuffer, v reflect.Value, mt *MetaTable, fill *FillState, depth int) error {
	if depth > c.maxDepth {
		return fmt.Errorf("protorec: message nesting exceeds %d", c.maxDepth)
	}
	for buf.Remaining() > 0 {
		number, wt, err := buf.ReadTag()
		if err != nil {
			return err
		}
		fd, ord, known := mt.FieldByNumber(number)
		if !known {
			// Unknown field numbers are parsed structurally to stay
			// wire-aligned, then dropped.
			if err := skipValue(buf, wt); err != nil {
				return err
			}
			continue
		}
		switch {
		case fd.Repeated:
			if err := c.readRepeated(buf, v, fd, fill, ord, wt, depth); err != nil {
				return err
			}
		case fd.Message:
			if wt != WireBytes {
				if err := skipValue(buf, wt); err != nil {
					return err
				}
				continue
			}
			if err := c.readMessage(buf, v.Field(fd.Index), fd, depth); err != nil {
				return err
			}
			fill.Mark(ord)
		default:
			if wt != fd.Kind.WireType() {
				// Wire type disagrees with the declared kind; treat the
				// value as unknown rather than misparse the stream.
				if err := skipValue(buf, wt); err != nil {
					return err
				}
				continue
			}
			ev, err := readScalar(buf, fd.Kind, fd.Elem)
			if err != nil {
				return err
			}
			v.Field(fd.Index).Set(ev)
			fill.Mark(ord)
		}
	}
	return nil
}

// readRepeated appends decoded elements, detecting packed runs by wire type:
// a length-delimited tag on a packable numeric kind means a concatenated run
// without per-element tags.
func (c *Codec) readRepeated(buf *ByteBuffer, v reflect.Value, fd *FieldDescriptor, fill *FillState, ord int, wt WireType, depth int) error {
	field := v.Field(fd.Index)
	// A cleared slot may hold stale elements; restart the sequence on the
	// first decoded element.
	if !fill.Has(ord) {
		field.Set(reflect.MakeSlice(fd.Type, 0, 4))
	}

	switch {
	case fd.Kind.Packable() && wt == WireBytes:
		payload, err := buf.ReadLengthDelimited()
		if err != nil {
			return err
		}
		run := NewByteBuffer(payload)
		for run.Remaining() > 0 {
			ev, err := readScalar(run, fd.Kind, fd.Type.Elem())
			if err != nil {
				return err
			}
			field.Set(reflect.Append(field, ev))
		}
	case fd.Message:
		if wt != WireBytes {
			return skipValue(buf, wt)
		}
		elem := reflect.New(fd.Elem)
		if err := c.readMessageInto(buf, elem, depth); err != nil {
			return err
		}
		field.Set(reflect.Append(field, elem))
	case wt == fd.Kind.WireType():
		ev, err := readScalar(buf, fd.Kind, fd.Type.Elem())
		if err != nil {
			return err
		}
		field.Set(reflect.Append(field, ev))
	default:
		return skipValue(buf, wt)
	}
	fill.Mark(ord)
	return nil
}

// readMessage decodes a nested message into the pointer field, constructing
// a fresh instance with an empty fill state.
func (c *Codec) readMessage(buf *ByteBuffer, field reflect.Value, fd *FieldDescriptor, depth int) error {
	elem := reflect.New(fd.Elem)
	if err := c.readMessageInto(buf, elem, depth); err != nil {
		return err
	}
	field.Set(elem)
	return nil
}

// readMessageInto decodes one length-delimited message payload over a
// bounded sub-buffer of exactly the announced length.
func (c *Codec) readMessageInto(buf *ByteBuffer, ptr reflect.Value, depth int) error {
	payload, err := buf.ReadLengthDelimited()
	if err != nil {
		return err
	}
	innerMeta, err := metaOf(ptr.Type().Elem())
	if err != nil {
		return err
	}
	inner := ptr.Interface().(Record)
	return c.readRecord(NewByteBuffer(payload), ptr.Elem(), innerMeta, inner.fillState(), depth+1)
}

// readScalar decodes one payload of the wire kind into a value of the
// declared Go type t.
func readScalar(buf *ByteBuffer, kind WireKind, t reflect.Type) (reflect.Value, error) {
	v := reflect.New(t).Elem()
	switch kind {
	case KindVarint:
		u, err := buf.ReadVarUint64()
		if err != nil {
			return reflect.Value{}, err
		}
		switch t.Kind() {
		case reflect.Bool:
			v.SetBool(u != 0)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			v.SetUint(u)
		default:
			v.SetInt(int64(u))
		}
	case KindZigzag:
		n, err := buf.ReadZigzag64()
		if err != nil {
			return reflect.Value{}, err
		}
		v.SetInt(n)
	case KindFixed32:
		u, err := buf.ReadFixed32()
		if err != nil {
			return reflect.Value{}, err
		}
		switch t.Kind() {
		case reflect.Float32:
			v.SetFloat(float64(math.Float32frombits(u)))
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			v.SetUint(uint64(u))
		default:
			v.SetInt(int64(int32(u)))
		}
	case KindFixed64:
		u, err := buf.ReadFixed64()
		if err != nil {
			return reflect.Value{}, err
		}
		switch t.Kind() {
		case reflect.Float64:
			v.SetFloat(math.Float64frombits(u))
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			v.SetUint(u)
		default:
			v.SetInt(int64(u))
		}
	case KindBytes:
		p, err := buf.ReadLengthDelimited()
		if err != nil {
			return reflect.Value{}, err
		}
		if t.Kind() == reflect.String {
			v.SetString(string(p))
		} else {
			// p aliases the input; the record must own its bytes.
			cp := make([]byte, len(p))
			copy(cp, p)
			v.SetBytes(cp)
		}
	}
	return v, nil
}
