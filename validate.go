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
	"hash"
	"reflect"

	"github.com/spaolacci/murmur3"
)

// ============================================================================
// Validation
// ============================================================================

// IsInitialized reports whether every required field of the record is
// filled. Nested message fields are not checked transitively; each message
// is validated when it is itself written.
func IsInitialized(rec Record) bool {
	_, mt, err := recordValue(rec)
	if err != nil {
		return false
	}
	for i, fd := range mt.Fields {
		if fd.Required && !rec.fillState().Has(i) {
			return false
		}
	}
	return true
}

// ============================================================================
// Equality and hashing
// ============================================================================
//
// An unset field contributes nothing to comparison: two records differing in
// which fields are filled are unequal regardless of the stale storage behind
// an unset slot, and a field explicitly set to its zero value is not equal
// to the same field left unset.

// Equal reports fill-aware equality of two records of the same type.
func Equal(a, b Record) bool {
	va, mta, err := recordValue(a)
	if err != nil {
		return false
	}
	vb, mtb, err := recordValue(b)
	if err != nil {
		return false
	}
	if mta.Type != mtb.Type {
		return false
	}
	for i, fd := range mta.Fields {
		ha, hb := a.fillState().Has(i), b.fillState().Has(i)
		if ha != hb {
			return false
		}
		if !ha {
			continue
		}
		if !fieldEqual(fd, va.Field(fd.Index), vb.Field(fd.Index)) {
			return false
		}
	}
	return true
}

func fieldEqual(fd *FieldDescriptor, a, b reflect.Value) bool {
	switch {
	case fd.Repeated && fd.Message:
		if a.Len() != b.Len() {
			return false
		}
		for j := 0; j < a.Len(); j++ {
			if !messageEqual(a.Index(j), b.Index(j)) {
				return false
			}
		}
		return true
	case fd.Message:
		return messageEqual(a, b)
	default:
		return reflect.DeepEqual(a.Interface(), b.Interface())
	}
}

func messageEqual(a, b reflect.Value) bool {
	if a.IsNil() || b.IsNil() {
		return a.IsNil() == b.IsNil()
	}
	return Equal(a.Interface().(Record), b.Interface().(Record))
}

// Hash returns a fill-aware murmur3 hash of the record: each filled field
// contributes its tag and wire encoding, each nested message contributes its
// own recursive hash, and unset fields contribute nothing. Records that are
// Equal hash identically.
func Hash(rec Record) uint64 {
	v, mt, err := recordValue(rec)
	if err != nil {
		return 0
	}
	h := murmur3.New64()
	hashRecord(h, v, mt, rec.fillState())
	return h.Sum64()
}

func hashRecord(h hash.Hash64, v reflect.Value, mt *MetaTable, fill *FillState) {
	buf := NewByteBuffer(nil)
	for i, fd := range mt.Fields {
		if !fill.Has(i) {
			continue
		}
		buf.Reset()
		buf.WriteTag(fd.Number, fd.Kind.WireType())
		fieldValue := v.Field(fd.Index)
		switch {
		case fd.Repeated && fd.Message:
			for j := 0; j < fieldValue.Len(); j++ {
				buf.WriteFixed64(messageHash(fieldValue.Index(j)))
			}
		case fd.Repeated:
			for j := 0; j < fieldValue.Len(); j++ {
				writeScalar(buf, fd.Kind, fieldValue.Index(j))
			}
		case fd.Message:
			buf.WriteFixed64(messageHash(fieldValue))
		default:
			writeScalar(buf, fd.Kind, fieldValue)
		}
		h.Write(buf.Bytes())
	}
}

func messageHash(ptr reflect.Value) uint64 {
	if ptr.IsNil() {
		return 0
	}
	return Hash(ptr.Interface().(Record))
}
