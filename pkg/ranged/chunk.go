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
	// Chunk owns a contiguous storage of Range().Size() elements. A slot which
	// was never set or was cleared holds the zero value of T. Chunks never
	// change their range, so views built over a chunk stay valid for the
	// chunk's lifetime.
	Chunk[T any] struct {
		r    Interval
		data []T
	}
)

// NewChunk allocates a chunk for r with all slots set to the zero value
func NewChunk[T any](r Interval) *Chunk[T] {
	if r.From > r.To {
		panic(fmt.Sprintf("NewChunk(): wrong interval %s", r))
	}
	return &Chunk[T]{r: r, data: make([]T, r.Size())}
}

// NewChunkOf creates a chunk which starts at from and takes the ownership of
// data. The caller must not use data after the call.
func NewChunkOf[T any](from int64, data []T) *Chunk[T] {
	return &Chunk[T]{r: Interval{From: from, To: from + int64(len(data))}, data: data}
}

func (c *Chunk[T]) Range() Interval {
	return c.r
}

func (c *Chunk[T]) Size() int64 {
	return c.r.Size()
}

func (c *Chunk[T]) Get(i int64) (T, error) {
	if !c.r.Contains(i) {
		var zero T
		return zero, indexErr(i, c.r)
	}
	return c.data[i-c.r.From], nil
}

func (c *Chunk[T]) Set(i int64, v T) (T, error) {
	if !c.r.Contains(i) {
		var zero T
		return zero, indexErr(i, c.r)
	}
	old := c.data[i-c.r.From]
	c.data[i-c.r.From] = v
	return old, nil
}

// Clear sets the slot i to the zero value and returns the previous value
func (c *Chunk[T]) Clear(i int64) (T, error) {
	var zero T
	return c.Set(i, zero)
}

func (c *Chunk[T]) SubList(r Interval) (*View[T], error) {
	if !c.r.ContainsRange(r) || r.From > r.To {
		return nil, rangeErr(r, c.r)
	}
	return &View[T]{base: c, r: r}, nil
}

// Clone returns a copy of the chunk. Elements are copied by value.
func (c *Chunk[T]) Clone() *Chunk[T] {
	res := &Chunk[T]{r: c.r, data: make([]T, len(c.data))}
	copy(res.data, c.data)
	return res
}

func (c *Chunk[T]) CloneRange(r Interval) (*Chunk[T], error) {
	if !c.r.ContainsRange(r) || r.From > r.To {
		return nil, rangeErr(r, c.r)
	}
	return c.cloneRange(r), nil
}

func (c *Chunk[T]) cloneRange(r Interval) *Chunk[T] {
	res := &Chunk[T]{r: r, data: make([]T, r.Size())}
	copy(res.data, c.data[r.From-c.r.From:r.To-c.r.From])
	return res
}

func (c *Chunk[T]) ForEach(f func(idx int64, v T) error) error {
	return c.forEachIn(c.r, f)
}

func (c *Chunk[T]) forEachIn(r Interval, f func(idx int64, v T) error) error {
	for i := r.From; i < r.To; i++ {
		if err := f(i, c.data[i-c.r.From]); err != nil {
			return err
		}
	}
	return nil
}

func (c *Chunk[T]) Iterator() Iterator[T] {
	return &listIterator[T]{base: c, pos: c.r.From, to: c.r.To}
}

// SetupFrom overwrites every slot of c with f applied to the element of src
// with the same index. src must cover the range of c.
func (c *Chunk[T]) SetupFrom(src RangedList[T], f func(idx int64, v T) T) error {
	if !src.Range().ContainsRange(c.r) {
		return rangeErr(c.r, src.Range())
	}
	for i := c.r.From; i < c.r.To; i++ {
		v, err := src.Get(i)
		if err != nil {
			return err
		}
		c.data[i-c.r.From] = f(i, v)
	}
	return nil
}

// ToSlice returns a copy of the chunk elements
func (c *Chunk[T]) ToSlice() []T {
	res := make([]T, len(c.data))
	copy(res, c.data)
	return res
}

func (c *Chunk[T]) String() string {
	return fmt.Sprintf("Chunk%s", c.r)
}
