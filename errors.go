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

import "errors"

// ============================================================================
// Errors
// ============================================================================

// ErrMalformedVarint indicates a varint with no terminating byte within the
// 64-bit (10 byte) ceiling
var ErrMalformedVarint = errors.New("protorec: malformed varint")

// ErrMalformedTag indicates a field tag with an overflowing field number or
// an invalid wire-type code
var ErrMalformedTag = errors.New("protorec: malformed tag")

// ErrUnexpectedEOF indicates the stream ended in the middle of a value
var ErrUnexpectedEOF = errors.New("protorec: unexpected end of stream")

// ErrFieldNotSet indicates a read of an unfilled field that has no default
var ErrFieldNotSet = errors.New("protorec: field not set")

// ErrUninitialized indicates a write attempted while a required field is unfilled
var ErrUninitialized = errors.New("protorec: required field not set")

// ErrNoSuchField indicates a slot name that is not declared by the record type
var ErrNoSuchField = errors.New("protorec: no such field")

// ErrNotRecord indicates a type that does not embed protorec.Base
var ErrNotRecord = errors.New("protorec: type is not a record struct")
