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

package chunked

import (
	"bytes"
	"fmt"

	"github.com/jrivets/gorivets"
	"github.com/logrange/distcol/pkg/ranged"
	"github.com/pkg/errors"
)

type (
	// Collection is an ordered set of non-overlapping fragments (ranged lists)
	// which together form one logical indexed sequence. The collection is not
	// safe for concurrent modification, but concurrent reads and writes of
	// distinct elements through Get/Set are fine.
	Collection[T any] struct {
		ss   *gorivets.SortedSlice
		size int64
	}

	collIterator[T any] struct {
		chunks []ranged.RangedList[T]
		idx    int
		cur    ranged.Iterator[T]
	}
)

// ErrOverlap is returned when a fragment overlaps a fragment which is already
// in the collection.
var ErrOverlap = fmt.Errorf("fragment overlaps an existing one")

// New returns an empty collection
func New[T any]() *Collection[T] {
	c := new(Collection[T])
	c.ss = newSortedSlice[T]()
	return c
}

func newSortedSlice[T any]() *gorivets.SortedSlice {
	ss, _ := gorivets.NewSortedSliceByComp(func(a, b interface{}) int {
		fa, fb := fromOf[T](a), fromOf[T](b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}, 16)
	return ss
}

// fromOf returns the start index of a stored fragment or of an int64 probe
func fromOf[T any](v interface{}) int64 {
	if i, ok := v.(int64); ok {
		return i
	}
	return v.(ranged.RangedList[T]).Range().From
}

func (c *Collection[T]) at(idx int) ranged.RangedList[T] {
	return c.ss.At(idx).(ranged.RangedList[T])
}

// floor returns the position of the fragment with the greatest start which is
// less or equal to i, or -1 if there is no such fragment.
func (c *Collection[T]) floor(i int64) int {
	idx, ok := c.ss.Find(i)
	if ok {
		return idx
	}
	return -(idx + 1) - 1
}

// AddChunk inserts the fragment rl. It returns ErrOverlap if rl overlaps a
// fragment already stored, or starts at the same index as one of them. The
// collection is not changed in this case.
func (c *Collection[T]) AddChunk(rl ranged.RangedList[T]) error {
	r := rl.Range()
	idx, ok := c.ss.Find(r.From)
	if ok {
		return errors.Wrapf(ErrOverlap, "%s starts at the same index as %s", r, c.at(idx).Range())
	}

	ins := -(idx + 1)
	if ins > 0 {
		if prev := c.at(ins - 1).Range(); prev.Overlaps(r) {
			return errors.Wrapf(ErrOverlap, "%s overlaps %s", r, prev)
		}
	}
	if ins < c.ss.Len() {
		if next := c.at(ins).Range(); next.Overlaps(r) {
			return errors.Wrapf(ErrOverlap, "%s overlaps %s", r, next)
		}
	}

	c.ss.Add(rl)
	c.size += r.Size()
	return nil
}

func (c *Collection[T]) chunkFor(i int64) (ranged.RangedList[T], error) {
	idx := c.floor(i)
	if idx >= 0 {
		if rl := c.at(idx); rl.Range().Contains(i) {
			return rl, nil
		}
	}
	return nil, errors.Wrapf(ranged.ErrIndexOutOfRange, "no fragment contains index %d", i)
}

// Get returns the element by its index i
func (c *Collection[T]) Get(i int64) (T, error) {
	rl, err := c.chunkFor(i)
	if err != nil {
		var zero T
		return zero, err
	}
	return rl.Get(i)
}

// Set stores v by the index i and returns the previous value
func (c *Collection[T]) Set(i int64, v T) (T, error) {
	rl, err := c.chunkFor(i)
	if err != nil {
		var zero T
		return zero, err
	}
	return rl.Set(i, v)
}

func (c *Collection[T]) ContainsIndex(i int64) bool {
	_, err := c.chunkFor(i)
	return err == nil
}

// ContainsChunk returns whether exactly the fragment rl is in the collection
func (c *Collection[T]) ContainsChunk(rl ranged.RangedList[T]) bool {
	idx, ok := c.ss.Find(rl.Range().From)
	return ok && c.at(idx) == rl
}

// Remove removes the fragment with exactly the range r. Any other interval
// leaves the collection unchanged and returns false.
func (c *Collection[T]) Remove(r ranged.Interval) (ranged.RangedList[T], bool) {
	idx, ok := c.ss.Find(r.From)
	if !ok {
		return nil, false
	}
	rl := c.at(idx)
	if rl.Range() != r {
		return nil, false
	}
	c.ss.DeleteAt(idx)
	c.size -= r.Size()
	return rl, true
}

// Clear removes all fragments
func (c *Collection[T]) Clear() {
	c.ss = newSortedSlice[T]()
	c.size = 0
}

// Size returns the total number of elements in all fragments
func (c *Collection[T]) Size() int64 {
	return c.size
}

func (c *Collection[T]) IsEmpty() bool {
	return c.size == 0
}

func (c *Collection[T]) NumChunks() int {
	return c.ss.Len()
}

// Ranges returns the fragment intervals in ascending order
func (c *Collection[T]) Ranges() []ranged.Interval {
	res := make([]ranged.Interval, c.ss.Len())
	for i := range res {
		res[i] = c.at(i).Range()
	}
	return res
}

// Chunks returns the fragments in ascending order
func (c *Collection[T]) Chunks() []ranged.RangedList[T] {
	res := make([]ranged.RangedList[T], c.ss.Len())
	for i := range res {
		res[i] = c.at(i)
	}
	return res
}

// FilterChunks returns the fragments for which pred returns true
func (c *Collection[T]) FilterChunks(pred func(rl ranged.RangedList[T]) bool) []ranged.RangedList[T] {
	var res []ranged.RangedList[T]
	for i := 0; i < c.ss.Len(); i++ {
		if rl := c.at(i); pred(rl) {
			res = append(res, rl)
		}
	}
	return res
}

// Clone returns a collection with a copy of every fragment. The copies are
// chunks, even if the source fragment is a view.
func (c *Collection[T]) Clone() *Collection[T] {
	res := New[T]()
	for i := 0; i < c.ss.Len(); i++ {
		rl := c.at(i)
		cp, _ := rl.CloneRange(rl.Range())
		res.ss.Add(ranged.RangedList[T](cp))
	}
	res.size = c.size
	return res
}

// ForEach calls f for every element in fragment order, then index order
func (c *Collection[T]) ForEach(f func(idx int64, v T) error) error {
	for i := 0; i < c.ss.Len(); i++ {
		if err := c.at(i).ForEach(f); err != nil {
			return err
		}
	}
	return nil
}

// ForEachChunk calls f for every fragment in ascending order
func (c *Collection[T]) ForEachChunk(f func(rl ranged.RangedList[T]) error) error {
	for i := 0; i < c.ss.Len(); i++ {
		if err := f(c.at(i)); err != nil {
			return err
		}
	}
	return nil
}

// Iterator returns a lazy iterator over all elements. The collection must not
// be modified while the iterator is in use.
func (c *Collection[T]) Iterator() ranged.Iterator[T] {
	return &collIterator[T]{chunks: c.Chunks()}
}

func (it *collIterator[T]) HasNext() bool {
	for {
		if it.cur != nil && it.cur.HasNext() {
			return true
		}
		if it.idx >= len(it.chunks) {
			return false
		}
		it.cur = it.chunks[it.idx].Iterator()
		it.idx++
	}
}

func (it *collIterator[T]) Next() (int64, T, error) {
	if !it.HasNext() {
		var zero T
		return -1, zero, errors.Wrapf(ranged.ErrIndexOutOfRange, "no more elements")
	}
	return it.cur.Next()
}

// Separate splits the collection into n collections of almost equal size. The
// first Size() % n collections get one element more than the rest. Elements
// keep their order: the pieces cover the logical sequence left to right, and
// may consist of views of the original fragments. The collection is empty
// after the call.
func (c *Collection[T]) Separate(n int) ([]*Collection[T], error) {
	parts, err := c.split(n)
	if err != nil {
		return nil, err
	}
	res := make([]*Collection[T], n)
	for i, p := range parts {
		res[i] = New[T]()
		for _, rl := range p {
			res[i].ss.Add(rl)
			res[i].size += rl.Size()
		}
	}
	c.Clear()
	return res, nil
}

// split builds n contiguous groups of views without changing the collection.
// Empty fragments are not included into any group.
func (c *Collection[T]) split(n int) ([][]ranged.RangedList[T], error) {
	if n <= 0 {
		return nil, fmt.Errorf("number of pieces must be positive, but it is %d", n)
	}

	res := make([][]ranged.RangedList[T], n)
	q, rem := c.size/int64(n), c.size%int64(n)
	ci := 0
	var cur int64
	if c.ss.Len() > 0 {
		cur = c.at(0).Range().From
	}
	for p := 0; p < n; p++ {
		need := q
		if int64(p) < rem {
			need++
		}
		for need > 0 {
			rl := c.at(ci)
			r := rl.Range()
			if cur < r.From {
				cur = r.From
			}
			take := r.To - cur
			if take > need {
				take = need
			}
			if take > 0 {
				v, err := rl.SubList(ranged.Interval{From: cur, To: cur + take})
				if err != nil {
					return nil, err
				}
				res[p] = append(res[p], v)
				need -= take
				cur += take
			}
			if cur >= r.To {
				ci++
			}
		}
	}
	return res, nil
}

func (c *Collection[T]) String() string {
	var b bytes.Buffer
	b.WriteString("{")
	for i, r := range c.Ranges() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(r.String())
	}
	b.WriteString(fmt.Sprintf("} size=%d", c.size))
	return b.String()
}

// Map returns a collection with the same fragment boundaries as c, where
// every element is f applied to the element of c with the same index.
func Map[T, U any](c *Collection[T], f func(idx int64, v T) (U, error)) (*Collection[U], error) {
	res := New[U]()
	for i := 0; i < c.ss.Len(); i++ {
		ch, err := ranged.Map[T, U](c.at(i), f)
		if err != nil {
			return nil, err
		}
		res.ss.Add(ranged.RangedList[U](ch))
		res.size += ch.Size()
	}
	return res, nil
}
