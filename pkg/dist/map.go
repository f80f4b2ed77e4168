// Copyright 2018-2019 The logrange Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dist

import (
	"context"
	"sync"

	"github.com/logrange/distcol/pkg/cluster"
	"github.com/logrange/distcol/pkg/codec"
	"github.com/logrange/distcol/pkg/relocation"
	"github.com/logrange/distcol/pkg/site"
	rerrors "github.com/logrange/range/pkg/utils/errors"
	"github.com/pkg/errors"
)

type (
	// Map is a distributed map. Every key is held by at most one site.
	Map[K comparable, V any] struct {
		handle
		kc codec.Value[K]
		vc codec.Value[V]

		lock  sync.RWMutex
		data  map[K]V
		proxy func(K) V
	}
)

// NewMap creates the local part of the distributed map name on the site s.
// kc and vc are used to transfer keys and values between sites.
func NewMap[K comparable, V any](s *site.Site, name string, kc codec.Value[K], vc codec.Value[V]) (*Map[K, V], error) {
	m := new(Map[K, V])
	m.kc = kc
	m.vc = vc
	m.data = make(map[K]V)
	h, err := newHandle(s, "map", name, m.deserialize)
	if err != nil {
		return nil, err
	}
	m.handle = h
	return m, nil
}

// SetProxyGenerator sets the function which Get uses to produce values for
// keys that are not in the local part. nil removes the generator.
func (m *Map[K, V]) SetProxyGenerator(proxy func(K) V) {
	m.lock.Lock()
	m.proxy = proxy
	m.lock.Unlock()
}

// Put stores the value and returns the previous one, if any
func (m *Map[K, V]) Put(k K, v V) (V, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	old, ok := m.data[k]
	m.data[k] = v
	return old, ok
}

func (m *Map[K, V]) PutAll(src map[K]V) {
	m.lock.Lock()
	for k, v := range src {
		m.data[k] = v
	}
	m.lock.Unlock()
}

// Get returns the value for k. If there is no such key locally, the value is
// produced by the proxy generator. The second value is false if the key is
// absent and there is no proxy generator.
func (m *Map[K, V]) Get(k K) (V, bool) {
	m.lock.RLock()
	v, ok := m.data[k]
	proxy := m.proxy
	m.lock.RUnlock()
	if ok || proxy == nil {
		return v, ok
	}
	return proxy(k), true
}

func (m *Map[K, V]) ContainsKey(k K) bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	_, ok := m.data[k]
	return ok
}

// Remove removes the key and returns its value
func (m *Map[K, V]) Remove(k K) (V, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	v, ok := m.data[k]
	if ok {
		delete(m.data, k)
	}
	return v, ok
}

// Delete removes the key and returns whether it was there
func (m *Map[K, V]) Delete(k K) bool {
	_, ok := m.Remove(k)
	return ok
}

func (m *Map[K, V]) Clear() {
	m.lock.Lock()
	m.data = make(map[K]V)
	m.lock.Unlock()
}

// Size returns number of entries in the local part
func (m *Map[K, V]) Size() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.data)
}

func (m *Map[K, V]) IsEmpty() bool {
	return m.Size() == 0
}

// Keys returns the local keys in no particular order
func (m *Map[K, V]) Keys() []K {
	m.lock.RLock()
	defer m.lock.RUnlock()
	res := make([]K, 0, len(m.data))
	for k := range m.data {
		res = append(res, k)
	}
	return res
}

// ForEach calls f for every local entry. f must not modify the map.
func (m *Map[K, V]) ForEach(f func(k K, v V) error) error {
	m.lock.RLock()
	defer m.lock.RUnlock()
	for k, v := range m.data {
		if err := f(k, v); err != nil {
			return err
		}
	}
	return nil
}

// ReduceLocal folds the local values starting from unit
func ReduceLocal[K comparable, V, S any](m *Map[K, V], unit S, f func(acc S, v V) S) S {
	res := unit
	m.ForEach(func(k K, v V) error {
		res = f(res, v)
		return nil
	})
	return res
}

// MoveAtSync requests the entry k to be moved to the site dest in the next
// round of mm. The entry is removed from the local part when the round
// starts. Moving to the local site does nothing.
func (m *Map[K, V]) MoveAtSync(k K, dest cluster.Rank, mm *relocation.Manager) error {
	return m.MoveKeysAtSync([]K{k}, dest, mm)
}

// MoveKeysAtSync requests the entries keys to be moved to the site dest
func (m *Map[K, V]) MoveKeysAtSync(keys []K, dest cluster.Rank, mm *relocation.Manager) error {
	if m.isLocal(dest) || len(keys) == 0 {
		return nil
	}
	return mm.Request(dest, m.tag, func(enc *codec.Encoder) error {
		if err := enc.WriteUint(uint64(len(keys))); err != nil {
			return err
		}
		for _, k := range keys {
			v, ok := m.Remove(k)
			if !ok {
				return errors.Wrapf(rerrors.NotFound, "key %v is not in %s any more", k, m.tag)
			}
			if err := m.kc.Write(enc, k); err != nil {
				return err
			}
			if err := m.vc.Write(enc, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// MoveAtSyncCount requests n arbitrary entries to be moved to the site dest.
// The keys are chosen by the call.
func (m *Map[K, V]) MoveAtSyncCount(n int, dest cluster.Rank, mm *relocation.Manager) error {
	if n == 0 {
		return nil
	}
	keys := m.Keys()
	if n > len(keys) || n < 0 {
		return errors.Errorf("could not move %d entries of %d in %s", n, len(keys), m.tag)
	}
	return m.MoveKeysAtSync(keys[:n], dest, mm)
}

// RelocateAtSync requests every local entry to be moved to the site rule
// returns for its key.
func (m *Map[K, V]) RelocateAtSync(rule func(k K) cluster.Rank, mm *relocation.Manager) error {
	byDest := make(map[cluster.Rank][]K)
	for _, k := range m.Keys() {
		dest := rule(k)
		if err := dest.Check(m.site.Size()); err != nil {
			return errors.Wrapf(err, "wrong destination for key %v", k)
		}
		if !m.isLocal(dest) {
			byDest[dest] = append(byDest[dest], k)
		}
	}
	for dest, keys := range byDest {
		if err := m.MoveKeysAtSync(keys, dest, mm); err != nil {
			return err
		}
	}
	return nil
}

// Relocate moves every entry to the site rule returns for its key. It is a
// collective operation, all sites of the group must call it.
func (m *Map[K, V]) Relocate(ctx context.Context, rule func(k K) cluster.Rank) error {
	return m.syncWith(ctx, func(mm *relocation.Manager) error {
		return m.RelocateAtSync(rule, mm)
	})
}

// TeamSize returns the sizes of the map parts on all sites. It is a
// collective operation.
func (m *Map[K, V]) TeamSize(ctx context.Context) ([]int64, error) {
	return m.teamSize(ctx, int64(m.Size()))
}

func (m *Map[K, V]) deserialize(src cluster.Rank, dec *codec.Decoder) error {
	n, err := dec.ReadUint()
	if err != nil {
		return err
	}

	var dup error
	for i := uint64(0); i < n; i++ {
		k, err := m.kc.Read(dec)
		if err != nil {
			return err
		}
		v, err := m.vc.Read(dec)
		if err != nil {
			return err
		}

		m.lock.Lock()
		if _, ok := m.data[k]; ok {
			if dup == nil {
				dup = &relocation.DuplicateKeyError{Rank: m.site.Rank(), Key: k}
			}
		} else {
			m.data[k] = v
		}
		m.lock.Unlock()
	}
	return dup
}
