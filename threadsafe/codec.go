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

// Package threadsafe provides a pooled wrapper around the protorec codec
// for high-throughput concurrent use: encode buffers come from a sync.Pool
// and batch marshalling fans out over a goroutine pool.
package threadsafe

import (
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/protorec/protorec"
)

// Codec wraps a protorec.Codec with pooled encode buffers and a worker pool
// for batch operations. All methods are safe for concurrent use; the records
// passed in still require a single writer each.
type Codec struct {
	codec   *protorec.Codec
	buffers sync.Pool
	workers *ants.Pool
}

// New creates a pooled codec. The worker pool sizes to GOMAXPROCS.
func New(opts ...protorec.Option) (*Codec, error) {
	workers, err := ants.NewPool(runtime.GOMAXPROCS(0))
	if err != nil {
		return nil, err
	}
	c := &Codec{
		codec:   protorec.NewCodec(opts...),
		workers: workers,
	}
	c.buffers = sync.Pool{
		New: func() any {
			return protorec.NewByteBuffer(nil)
		},
	}
	return c, nil
}

// Close releases the worker pool.
func (c *Codec) Close() {
	c.workers.Release()
}

// Marshal serializes a record using a pooled buffer.
func (c *Codec) Marshal(rec protorec.Record) ([]byte, error) {
	buf := c.buffers.Get().(*protorec.ByteBuffer)
	defer c.buffers.Put(buf)
	buf.Reset()
	if err := c.codec.MarshalTo(buf, rec); err != nil {
		return nil, err
	}
	// The pooled buffer will be overwritten; hand the caller a copy.
	out := make([]byte, len(buf.Bytes()))
	copy(out, buf.Bytes())
	return out, nil
}

// Unmarshal populates a record from wire bytes.
func (c *Codec) Unmarshal(data []byte, rec protorec.Record) error {
	return c.codec.Unmarshal(data, rec)
}

// MarshalAll serializes a batch of records concurrently on the worker pool,
// preserving order. The first error wins and the whole batch fails.
func (c *Codec) MarshalAll(recs []protorec.Record) ([][]byte, error) {
	out := make([][]byte, len(recs))
	errs := make([]error, len(recs))
	var wg sync.WaitGroup
	for i, rec := range recs {
		i, rec := i, rec
		wg.Add(1)
		if err := c.workers.Submit(func() {
			defer wg.Done()
			out[i], errs[i] = c.Marshal(rec)
		}); err != nil {
			wg.Done()
			errs[i] = err
		}
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// UnmarshalAll decodes a batch concurrently, one fresh record per frame
// produced by the new function. The first error wins.
func UnmarshalAll[T any](c *Codec, frames [][]byte, newRec func() *T) ([]*T, error) {
	out := make([]*T, len(frames))
	errs := make([]error, len(frames))
	var wg sync.WaitGroup
	for i, frame := range frames {
		i, frame := i, frame
		wg.Add(1)
		if err := c.workers.Submit(func() {
			defer wg.Done()
			rec := newRec()
			r, ok := any(rec).(protorec.Record)
			if !ok {
				errs[i] = protorec.ErrNotRecord
				return
			}
			if err := c.codec.Unmarshal(frame, r); err != nil {
				errs[i] = err
				return
			}
			out[i] = rec
		}); err != nil {
			wg.Done()
			errs[i] = err
		}
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
