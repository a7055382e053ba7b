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
	"strconv"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// ============================================================================
// Field metadata
// ============================================================================

// FieldDescriptor describes one declared field of a record type: its stable
// field number, slot name, wire kind and the flags driving generic
// encode/decode. Descriptors are built once per type and never mutated.
type FieldDescriptor struct {
	Number   int32
	Name     string       // snake_case slot name
	Index    int          // struct field index
	Type     reflect.Type // declared Go type of the struct field
	Elem     reflect.Type // element type for repeated fields, struct type for messages
	Kind     WireKind
	Required bool
	Repeated bool
	Packed   bool
	Message  bool        // length-delimited embedded record
	Default  interface{} // used only when reading an absent non-required field
}

// MetaTable is the ordered descriptor table of one record type, plus reverse
// indexes by slot name and field number. One record type maps to exactly one
// table for the process lifetime.
type MetaTable struct {
	Type     reflect.Type
	Fields   []*FieldDescriptor
	byName   map[string]int
	byNumber map[int32]int
}

// FieldByName returns the descriptor and its slot ordinal for a slot name.
func (m *MetaTable) FieldByName(name string) (*FieldDescriptor, int, bool) {
	i, ok := m.byName[name]
	if !ok {
		return nil, 0, false
	}
	return m.Fields[i], i, true
}

// FieldByNumber maps a wire field number back to its descriptor and ordinal.
func (m *MetaTable) FieldByNumber(number int32) (*FieldDescriptor, int, bool) {
	i, ok := m.byNumber[number]
	if !ok {
		return nil, 0, false
	}
	return m.Fields[i], i, true
}

// Meta is a partial, user-supplied override consumed by DeclareMeta. Any
// slot omitted from a list keeps the default declaration-order policy.
type Meta struct {
	Required []string               // slot names whose fields are mandatory
	Numbers  []int32                // field numbers aligned to declaration order, 0 = serial default
	Defaults map[string]interface{} // slot name -> default value
}

// ============================================================================
// Process-wide metadata cache
// ============================================================================

// metaRegistry memoizes MetaTables keyed by type identity. Tables are pure
// functions of the type, so a concurrent duplicate build is benign; only the
// final cache insert is guarded.
type metaRegistry struct {
	mu        sync.RWMutex
	tables    map[reflect.Type]*MetaTable
	overrides map[reflect.Type]Meta
}

var globalMetaRegistry = &metaRegistry{
	tables:    make(map[reflect.Type]*MetaTable),
	overrides: make(map[reflect.Type]Meta),
}

// DeclareMeta registers an explicit metadata override for a record type.
// prototype can be a reflect.Type, a T or a *T. It must run before the
// type's table is first built; the generated-code path calls it from init.
func DeclareMeta(prototype interface{}, meta Meta) error {
	t, err := structTypeOf(prototype)
	if err != nil {
		return err
	}
	r := globalMetaRegistry
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, built := r.tables[t]; built {
		return fmt.Errorf("protorec: meta for %s already built, declare before first use", t)
	}
	r.overrides[t] = meta
	return nil
}

// MetaOf returns the cached MetaTable for a record type, building it on
// first request.
func MetaOf(prototype interface{}) (*MetaTable, error) {
	t, err := structTypeOf(prototype)
	if err != nil {
		return nil, err
	}
	return metaOf(t)
}

func metaOf(t reflect.Type) (*MetaTable, error) {
	r := globalMetaRegistry
	r.mu.RLock()
	mt, ok := r.tables[t]
	r.mu.RUnlock()
	if ok {
		return mt, nil
	}

	r.mu.RLock()
	override := r.overrides[t]
	r.mu.RUnlock()

	mt, err := buildMeta(t, override)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.tables[t]; ok {
		return existing, nil
	}
	r.tables[t] = mt
	return mt, nil
}

// structTypeOf normalizes a prototype (reflect.Type, T or *T) to the record
// struct type and checks that it embeds Base.
func structTypeOf(prototype interface{}) (reflect.Type, error) {
	var t reflect.Type
	if rt, ok := prototype.(reflect.Type); ok {
		t = rt
	} else {
		t = reflect.TypeOf(prototype)
	}
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %v", ErrNotRecord, prototype)
	}
	if !reflect.PtrTo(t).Implements(recordType) {
		return nil, fmt.Errorf("%w: %s does not embed protorec.Base", ErrNotRecord, t)
	}
	return t, nil
}

// ============================================================================
// Table construction
// ============================================================================

// buildMeta derives the descriptor table from the struct declaration and the
// optional override. Default policy: fields optional (repeated for slices),
// numbers serial from 1 in declaration order, zero/empty defaults, message
// fields default to absent. Building is idempotent and side-effect free.
func buildMeta(t reflect.Type, override Meta) (*MetaTable, error) {
	mt := &MetaTable{
		Type:     t,
		byName:   make(map[string]int),
		byNumber: make(map[int32]int),
	}

	requiredSet := make(map[string]bool, len(override.Required))
	for _, name := range override.Required {
		requiredSet[name] = true
	}

	declared := 0 // declaration-order position among declared fields
	nextNumber := int32(1)
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.Anonymous && sf.Type == baseType {
			continue
		}
		firstRune, _ := utf8.DecodeRuneInString(sf.Name)
		if unicode.IsLower(firstRune) {
			continue
		}
		tag := sf.Tag.Get("protorec")
		if tag == "-" {
			continue
		}

		fd, err := buildField(sf, i, tag)
		if err != nil {
			return nil, fmt.Errorf("protorec: %s.%s: %w", t.Name(), sf.Name, err)
		}

		// Override lists are aligned to declaration order and partial:
		// a zero entry keeps the per-field default policy.
		if declared < len(override.Numbers) && override.Numbers[declared] != 0 {
			fd.Number = override.Numbers[declared]
		}
		if fd.Number == 0 {
			fd.Number = nextNumber
		}
		if fd.Number < 1 || fd.Number > MaxFieldNumber {
			return nil, fmt.Errorf("protorec: %s.%s: field number %d out of range",
				t.Name(), sf.Name, fd.Number)
		}
		nextNumber = fd.Number + 1

		if requiredSet[fd.Name] {
			fd.Required = true
		}
		if fd.Required && fd.Repeated {
			return nil, fmt.Errorf("protorec: %s.%s: repeated field cannot be required",
				t.Name(), sf.Name)
		}
		if dv, ok := override.Defaults[fd.Name]; ok {
			converted, err := convertDefault(dv, fd)
			if err != nil {
				return nil, fmt.Errorf("protorec: %s.%s: %w", t.Name(), sf.Name, err)
			}
			fd.Default = converted
		}

		if _, dup := mt.byNumber[fd.Number]; dup {
			return nil, fmt.Errorf("protorec: %s: duplicate field number %d", t.Name(), fd.Number)
		}
		mt.byNumber[fd.Number] = len(mt.Fields)
		mt.byName[fd.Name] = len(mt.Fields)
		mt.Fields = append(mt.Fields, fd)
		declared++
	}
	return mt, nil
}

// buildField derives one descriptor from a struct field and its tag.
// Tag grammar: protorec:"<number>,opt,..." with options required, zigzag,
// fixed32, fixed64, packed, default=<literal>.
func buildField(sf reflect.StructField, index int, tag string) (*FieldDescriptor, error) {
	fd := &FieldDescriptor{
		Name:  snakeCase(sf.Name),
		Index: index,
		Type:  sf.Type,
	}

	var defaultLit string
	hasDefault := false
	for pos, opt := range strings.Split(tag, ",") {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			continue
		}
		if pos == 0 {
			if n, err := strconv.ParseInt(opt, 10, 32); err == nil {
				fd.Number = int32(n)
				continue
			}
		}
		switch {
		case opt == "required":
			fd.Required = true
		case opt == "zigzag" || opt == "sint32" || opt == "sint64":
			fd.Kind = KindZigzag
		case opt == "fixed32" || opt == "sfixed32":
			fd.Kind = KindFixed32
		case opt == "fixed64" || opt == "sfixed64":
			fd.Kind = KindFixed64
		case opt == "packed":
			fd.Packed = true
		case strings.HasPrefix(opt, "default="):
			defaultLit = strings.TrimPrefix(opt, "default=")
			hasDefault = true
		default:
			return nil, fmt.Errorf("unknown tag option %q", opt)
		}
	}

	elem := sf.Type
	if sf.Type.Kind() == reflect.Slice && sf.Type.Elem().Kind() != reflect.Uint8 {
		fd.Repeated = true
		elem = sf.Type.Elem()
	}
	fd.Elem = elem

	kind, isMessage, err := deriveKind(elem, fd.Kind)
	if err != nil {
		return nil, err
	}
	fd.Kind = kind
	fd.Message = isMessage
	if isMessage {
		fd.Elem = elem.Elem() // struct type behind the pointer
	}

	if fd.Packed && (!fd.Repeated || !fd.Kind.Packable()) {
		return nil, fmt.Errorf("packed is only valid for repeated scalar numeric fields")
	}
	if hasDefault {
		if fd.Repeated || fd.Message {
			return nil, fmt.Errorf("default is only valid for scalar fields")
		}
		dv, err := parseDefaultLiteral(defaultLit, elem)
		if err != nil {
			return nil, err
		}
		fd.Default = dv
	}
	return fd, nil
}

// deriveKind maps a declared Go type to its wire kind. forced carries a kind
// already fixed by a tag option (zigzag/fixed*) and wins for integer types.
func deriveKind(t reflect.Type, forced WireKind) (WireKind, bool, error) {
	switch t.Kind() {
	case reflect.Bool:
		return KindVarint, false, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if forced != KindVarint {
			return forced, false, nil
		}
		return KindVarint, false, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		// Zigzag maps negative values to small varints; an unsigned field
		// has none, and the codec paths read it through Int.
		if forced == KindZigzag {
			return 0, false, fmt.Errorf("zigzag is only valid for signed integer fields")
		}
		if forced != KindVarint {
			return forced, false, nil
		}
		return KindVarint, false, nil
	case reflect.Float32:
		return KindFixed32, false, nil
	case reflect.Float64:
		return KindFixed64, false, nil
	case reflect.String:
		return KindBytes, false, nil
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return KindBytes, false, nil
		}
		return 0, false, fmt.Errorf("nested slice types are not supported")
	case reflect.Ptr:
		if t.Elem().Kind() == reflect.Struct && reflect.PtrTo(t.Elem()).Implements(recordType) {
			return KindBytes, true, nil
		}
		return 0, false, fmt.Errorf("pointer field must point at a record struct")
	default:
		return 0, false, fmt.Errorf("unsupported field type %s", t)
	}
}

func parseDefaultLiteral(lit string, t reflect.Type) (interface{}, error) {
	v := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Bool:
		b, err := strconv.ParseBool(lit)
		if err != nil {
			return nil, fmt.Errorf("bad default %q: %w", lit, err)
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(lit, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad default %q: %w", lit, err)
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(lit, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad default %q: %w", lit, err)
		}
		v.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return nil, fmt.Errorf("bad default %q: %w", lit, err)
		}
		v.SetFloat(f)
	case reflect.String:
		v.SetString(lit)
	default:
		return nil, fmt.Errorf("default not supported for %s", t)
	}
	return v.Interface(), nil
}

// convertDefault coerces an override default to the field's declared type.
func convertDefault(dv interface{}, fd *FieldDescriptor) (interface{}, error) {
	if fd.Repeated || fd.Message {
		return nil, fmt.Errorf("default is only valid for scalar fields")
	}
	rv := reflect.ValueOf(dv)
	if rv.Type() == fd.Elem {
		return dv, nil
	}
	if !rv.Type().ConvertibleTo(fd.Elem) {
		return nil, fmt.Errorf("default %v (%T) not convertible to %s", dv, dv, fd.Elem)
	}
	return rv.Convert(fd.Elem).Interface(), nil
}

// snakeCase converts a Go field name to its snake_case slot name.
func snakeCase(s string) string {
	var result []rune
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			result = append(result, '_')
		}
		result = append(result, unicode.ToLower(r))
	}
	return string(result)
}
