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

import "reflect"

// ============================================================================
// FillState - per-instance set of filled slots
// ============================================================================

// FillState tracks which slots of one record instance currently hold a
// meaningful value, independent of the storage slot's raw content. Slots are
// identified by their ordinal in the owning type's MetaTable. The zero value
// is the empty set: all slots unset.
//
// FillState is not thread-safe; the runtime assumes a single writer per
// record instance.
type FillState struct {
	bits []uint64
}

// Has reports whether slot i is filled.
func (f *FillState) Has(i int) bool {
	w := i >> 6
	if w >= len(f.bits) {
		return false
	}
	return f.bits[w]&(1<<(uint(i)&63)) != 0
}

// Mark records slot i as filled.
func (f *FillState) Mark(i int) {
	w := i >> 6
	for w >= len(f.bits) {
		f.bits = append(f.bits, 0)
	}
	f.bits[w] |= 1 << (uint(i) & 63)
}

// Unmark records slot i as unset. The slot's storage is left untouched;
// readers must treat it as absent regardless of stale content.
func (f *FillState) Unmark(i int) {
	w := i >> 6
	if w < len(f.bits) {
		f.bits[w] &^= 1 << (uint(i) & 63)
	}
}

// ClearAll unmarks every slot.
func (f *FillState) ClearAll() {
	for i := range f.bits {
		f.bits[i] = 0
	}
}

// MarkAll marks the first n slots filled.
func (f *FillState) MarkAll(n int) {
	for i := 0; i < n; i++ {
		f.Mark(i)
	}
}

// ============================================================================
// Base - embeddable record marker
// ============================================================================

// Base gives a struct its per-instance FillState and marks it as a record
// type. Embed it as the first field of every record struct:
//
//	type Person struct {
//		protorec.Base
//		Name  string `protorec:"1,required"`
//		Email string `protorec:"3"`
//	}
//
// A zero-valued record starts with every slot unset; use New with
// prefilled=true to start with every slot marked instead.
type Base struct {
	fill FillState
}

func (b *Base) fillState() *FillState { return &b.fill }

// Record is satisfied by a pointer to any struct embedding Base. The method
// is unexported on purpose: embedding Base is the only way to implement it.
type Record interface {
	fillState() *FillState
}

var (
	recordType = reflect.TypeOf((*Record)(nil)).Elem()
	baseType   = reflect.TypeOf(Base{})
)
