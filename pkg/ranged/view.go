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

package ranged

import (
	"fmt"
)

type (
	// View is a window onto a part of a Chunk. It does not own the storage:
	// writes through a view are visible in the chunk and in every other view
	// of it.
	View[T any] struct {
		base *Chunk[T]
		r    Interval
	}
)

// NewView creates a view of rl limited by r. A view of a view always refers
// to the original chunk.
func NewView[T any](rl RangedList[T], r Interval) (*View[T], error) {
	return rl.SubList(r)
}

func (v *View[T]) Range() Interval {
	return v.r
}

func (v *View[T]) Size() int64 {
	return v.r.Size()
}

// Base returns the chunk the view refers to
func (v *View[T]) Base() *Chunk[T] {
	return v.base
}

func (v *View[T]) Get(i int64) (T, error) {
	if !v.r.Contains(i) {
		var zero T
		return zero, indexErr(i, v.r)
	}
	return v.base.data[i-v.base.r.From], nil
}

func (v *View[T]) Set(i int64, val T) (T, error) {
	if !v.r.Contains(i) {
		var zero T
		return zero, indexErr(i, v.r)
	}
	return v.base.Set(i, val)
}

func (v *View[T]) SubList(r Interval) (*View[T], error) {
	if !v.r.ContainsRange(r) || r.From > r.To {
		return nil, rangeErr(r, v.r)
	}
	return &View[T]{base: v.base, r: r}, nil
}

func (v *View[T]) CloneRange(r Interval) (*Chunk[T], error) {
	if !v.r.ContainsRange(r) || r.From > r.To {
		return nil, rangeErr(r, v.r)
	}
	return v.base.cloneRange(r), nil
}

// Clone copies the viewed elements into a new chunk
func (v *View[T]) Clone() *Chunk[T] {
	return v.base.cloneRange(v.r)
}

func (v *View[T]) ForEach(f func(idx int64, val T) error) error {
	return v.base.forEachIn(v.r, f)
}

func (v *View[T]) Iterator() Iterator[T] {
	return &listIterator[T]{base: v.base, pos: v.r.From, to: v.r.To}
}

func (v *View[T]) String() string {
	return fmt.Sprintf("View%s of %s", v.r, v.base)
}
