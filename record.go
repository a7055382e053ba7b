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
	"fmt"
	"reflect"
)

// ============================================================================
// Field access API
// ============================================================================
//
// Assigning a struct field directly does NOT mark it filled; a plain
// assignment is invisible to Marshal, Equal and Hash until the slot is
// marked through SetField/AddField. The asymmetry is deliberate: it lets the
// deserializer and the set API share fill state without every plain
// write-site having to reason about fill bits.

// New allocates a fresh record of type T. When prefilled is true every slot
// starts marked filled (the fresh-not-cleared convention for hand-written
// types); otherwise every slot starts unset.
//
// New panics if T is not a struct embedding Base; that is a programming
// error, not a runtime condition.
func New[T any](prefilled bool) *T {
	rec := new(T)
	r, ok := any(rec).(Record)
	if !ok {
		panic("protorec: " + reflect.TypeOf((*T)(nil)).Elem().String() + " does not embed protorec.Base")
	}
	mt, err := metaOf(reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		panic(err.Error())
	}
	if prefilled {
		r.fillState().MarkAll(len(mt.Fields))
	}
	return rec
}

// Build allocates a record and sets the named slots from the mapping,
// marking each one filled. Slots absent from the mapping stay unset.
func Build[T any](fields map[string]interface{}) (*T, error) {
	rec := new(T)
	r, ok := any(rec).(Record)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRecord, reflect.TypeOf((*T)(nil)).Elem())
	}
	for name, value := range fields {
		if err := SetField(r, name, value); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// SetField assigns value to the named slot and marks it filled.
func SetField(rec Record, name string, value interface{}) error {
	v, mt, err := recordValue(rec)
	if err != nil {
		return err
	}
	fd, ord, ok := mt.FieldByName(name)
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrNoSuchField, mt.Type.Name(), name)
	}
	cv, err := coerce(value, fd.Type)
	if err != nil {
		return fmt.Errorf("protorec: set %s.%s: %w", mt.Type.Name(), name, err)
	}
	v.Field(fd.Index).Set(cv)
	rec.fillState().Mark(ord)
	return nil
}

// AddField appends value to the named repeated slot, creating the sequence
// if absent, and marks the slot filled.
func AddField(rec Record, name string, value interface{}) error {
	v, mt, err := recordValue(rec)
	if err != nil {
		return err
	}
	fd, ord, ok := mt.FieldByName(name)
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrNoSuchField, mt.Type.Name(), name)
	}
	if !fd.Repeated {
		return fmt.Errorf("protorec: add %s.%s: field is not repeated", mt.Type.Name(), name)
	}
	elemType := fd.Type.Elem()
	cv, err := coerce(value, elemType)
	if err != nil {
		return fmt.Errorf("protorec: add %s.%s: %w", mt.Type.Name(), name, err)
	}
	field := v.Field(fd.Index)
	// A cleared slot may hold stale elements; restart the sequence.
	if !rec.fillState().Has(ord) {
		field.Set(reflect.MakeSlice(fd.Type, 0, 4))
	}
	field.Set(reflect.Append(field, cv))
	rec.fillState().Mark(ord)
	return nil
}

// GetField returns the value of the named slot. An unset non-required slot
// with a declared default yields that default; an unset slot without one
// fails with ErrFieldNotSet.
func GetField(rec Record, name string) (interface{}, error) {
	v, mt, err := recordValue(rec)
	if err != nil {
		return nil, err
	}
	fd, ord, ok := mt.FieldByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrNoSuchField, mt.Type.Name(), name)
	}
	if rec.fillState().Has(ord) {
		return v.Field(fd.Index).Interface(), nil
	}
	// Defaults stand in for absent optional fields only; an absent required
	// field is a hard error, a default would mask it.
	if fd.Default != nil && !fd.Required {
		return fd.Default, nil
	}
	return nil, fmt.Errorf("%w: %s.%s", ErrFieldNotSet, mt.Type.Name(), name)
}

// HasField reports whether the named slot is filled. Unknown slot names
// report false.
func HasField(rec Record, name string) bool {
	_, mt, err := recordValue(rec)
	if err != nil {
		return false
	}
	_, ord, ok := mt.FieldByName(name)
	if !ok {
		return false
	}
	return rec.fillState().Has(ord)
}

// ClearField unmarks the named slot. The underlying storage is not erased;
// subsequent reads behave as absent regardless of stale content.
func ClearField(rec Record, name string) error {
	_, mt, err := recordValue(rec)
	if err != nil {
		return err
	}
	_, ord, ok := mt.FieldByName(name)
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrNoSuchField, mt.Type.Name(), name)
	}
	rec.fillState().Unmark(ord)
	return nil
}

// Clear unmarks every slot of the record.
func Clear(rec Record) {
	rec.fillState().ClearAll()
}

// FilledFields returns the slot names currently marked filled, in
// declaration order.
func FilledFields(rec Record) []string {
	_, mt, err := recordValue(rec)
	if err != nil {
		return nil
	}
	var names []string
	for i, fd := range mt.Fields {
		if rec.fillState().Has(i) {
			names = append(names, fd.Name)
		}
	}
	return names
}

// ============================================================================
// Helpers
// ============================================================================

// recordValue resolves a record to its addressable struct value and table.
func recordValue(rec Record) (reflect.Value, *MetaTable, error) {
	rv := reflect.ValueOf(rec)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return reflect.Value{}, nil, fmt.Errorf("%w: nil record", ErrNotRecord)
	}
	v := rv.Elem()
	mt, err := metaOf(v.Type())
	if err != nil {
		return reflect.Value{}, nil, err
	}
	return v, mt, nil
}

// coerce adapts a dynamic value to the declared field type, allowing the
// usual numeric widenings.
func coerce(value interface{}, t reflect.Type) (reflect.Value, error) {
	if value == nil {
		return reflect.Value{}, fmt.Errorf("cannot assign nil")
	}
	rv := reflect.ValueOf(value)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	// Numeric widenings and string<->[]byte are fine; int-to-string rune
	// conversion is not.
	srcBytes := rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8
	dstBytes := t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8
	sameShape := (rv.Kind() == reflect.String) == (t.Kind() == reflect.String)
	if rv.Type().ConvertibleTo(t) && (sameShape || srcBytes || dstBytes) {
		return rv.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("value of type %T not assignable to %s", value, t)
}
