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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsInitialized(t *testing.T) {
	p := New[Person](false)
	require.False(t, IsInitialized(p))

	require.NoError(t, SetField(p, "name", "n"))
	require.False(t, IsInitialized(p))

	require.NoError(t, SetField(p, "id", int32(1)))
	require.True(t, IsInitialized(p))

	require.NoError(t, ClearField(p, "id"))
	require.False(t, IsInitialized(p))
}

func TestEqualFillAware(t *testing.T) {
	t.Run("identical records", func(t *testing.T) {
		a, b := newTestPerson(t), newTestPerson(t)
		require.True(t, Equal(a, b))
		require.Equal(t, Hash(a), Hash(b))
	})

	t.Run("zero set is not unset", func(t *testing.T) {
		a, b := newTestPerson(t), newTestPerson(t)
		require.NoError(t, SetField(a, "balance", float64(0)))
		require.False(t, Equal(a, b))
		require.NotEqual(t, Hash(a), Hash(b))
	})

	t.Run("cleared equals never set", func(t *testing.T) {
		a, b := newTestPerson(t), newTestPerson(t)
		require.NoError(t, SetField(a, "email", "gone@x.y"))
		require.NoError(t, ClearField(a, "email"))
		// a still stores the string, but the slot is unset on both sides.
		require.True(t, Equal(a, b))
		require.Equal(t, Hash(a), Hash(b))
	})

	t.Run("value difference", func(t *testing.T) {
		a, b := newTestPerson(t), newTestPerson(t)
		require.NoError(t, SetField(a, "email", "a@x.y"))
		require.NoError(t, SetField(b, "email", "b@x.y"))
		require.False(t, Equal(a, b))
		require.NotEqual(t, Hash(a), Hash(b))
	})

	t.Run("different types", func(t *testing.T) {
		a := New[Person](false)
		b := New[Address](false)
		require.False(t, Equal(a, b))
	})
}

func TestEqualNestedMessages(t *testing.T) {
	home := func(city string) *Address {
		addr := New[Address](false)
		require.NoError(t, SetField(addr, "street", "1 Main"))
		require.NoError(t, SetField(addr, "city", city))
		return addr
	}

	a, b := New[Person](false), New[Person](false)
	require.NoError(t, SetField(a, "home", home("Springfield")))
	require.NoError(t, SetField(b, "home", home("Springfield")))
	require.True(t, Equal(a, b))
	require.Equal(t, Hash(a), Hash(b))

	require.NoError(t, SetField(b, "home", home("Shelbyville")))
	require.False(t, Equal(a, b))
	require.NotEqual(t, Hash(a), Hash(b))

	t.Run("nil versus filled", func(t *testing.T) {
		c := New[Person](false)
		require.NoError(t, SetField(c, "home", (*Address)(nil)))
		require.False(t, Equal(a, c))
	})

	t.Run("nil versus nil", func(t *testing.T) {
		c, d := New[Person](false), New[Person](false)
		require.NoError(t, SetField(c, "home", (*Address)(nil)))
		require.NoError(t, SetField(d, "home", (*Address)(nil)))
		require.True(t, Equal(c, d))
	})
}

func TestHashSurvivesRoundTrip(t *testing.T) {
	p := newTestPerson(t)
	data, err := Marshal(p)
	require.NoError(t, err)

	q := New[Person](false)
	require.NoError(t, Unmarshal(data, q))
	require.True(t, Equal(p, q))
	require.Equal(t, Hash(p), Hash(q))
}
