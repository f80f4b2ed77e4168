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
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/logrange/distcol/pkg/ranged"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func seqChunk(from, to int64) *ranged.Chunk[int64] {
	c := ranged.NewChunk[int64](ranged.Interval{From: from, To: to})
	for i := from; i < to; i++ {
		c.Set(i, i)
	}
	return c
}

// newTestCollection returns [0,3),[3,5),[5,6) where every element equals its
// index except 4, which is never set.
func newTestCollection(t *testing.T) *Collection[*int64] {
	c := New[*int64]()
	for _, r := range []ranged.Interval{{From: 0, To: 3}, {From: 3, To: 5}, {From: 5, To: 6}} {
		ch := ranged.NewChunk[*int64](r)
		for i := r.From; i < r.To; i++ {
			if i == 4 {
				continue
			}
			v := i
			ch.Set(i, &v)
		}
		require.Nil(t, c.AddChunk(ch))
	}
	return c
}

func TestAddAndGet(t *testing.T) {
	c := newTestCollection(t)
	assert.Equal(t, int64(6), c.Size())
	assert.Equal(t, 3, c.NumChunks())

	for i := int64(0); i < 6; i++ {
		v, err := c.Get(i)
		assert.Nil(t, err)
		if i == 4 {
			assert.Nil(t, v)
			continue
		}
		assert.Equal(t, i, *v)
	}

	_, err := c.Get(6)
	assert.True(t, errors.Is(err, ranged.ErrIndexOutOfRange))
	_, err = c.Get(-1)
	assert.True(t, errors.Is(err, ranged.ErrIndexOutOfRange))
}

func TestAddOverlapping(t *testing.T) {
	c := newTestCollection(t)
	for _, r := range []ranged.Interval{{From: 0, To: 0}, {From: 2, To: 3}, {From: 3, To: 4}, {From: -1, To: 7}} {
		err := c.AddChunk(ranged.NewChunk[*int64](r))
		if !errors.Is(err, ErrOverlap) {
			t.Fatal("expected overlap error for ", r, ", but got ", err)
		}
	}
	assert.Equal(t, int64(6), c.Size())
	assert.Equal(t, []ranged.Interval{{From: 0, To: 3}, {From: 3, To: 5}, {From: 5, To: 6}}, c.Ranges())

	assert.Nil(t, c.AddChunk(ranged.NewChunk[*int64](ranged.Interval{From: 10, To: 12})))
	assert.Nil(t, c.AddChunk(ranged.NewChunk[*int64](ranged.Interval{From: 6, To: 10})))
	assert.Equal(t, int64(12), c.Size())
}

func TestSetReturnsOld(t *testing.T) {
	c := New[int64]()
	c.AddChunk(seqChunk(0, 4))
	old, err := c.Set(2, 20)
	assert.Nil(t, err)
	assert.Equal(t, int64(2), old)
	v, _ := c.Get(2)
	assert.Equal(t, int64(20), v)

	_, err = c.Set(4, 1)
	assert.True(t, errors.Is(err, ranged.ErrIndexOutOfRange))
	assert.True(t, c.ContainsIndex(3))
	assert.False(t, c.ContainsIndex(4))
}

func TestRemoveExactOnly(t *testing.T) {
	c := New[int64]()
	ch := seqChunk(0, 4)
	c.AddChunk(ch)
	c.AddChunk(seqChunk(4, 8))

	_, ok := c.Remove(ranged.Interval{From: 0, To: 3})
	assert.False(t, ok)
	_, ok = c.Remove(ranged.Interval{From: 1, To: 4})
	assert.False(t, ok)
	assert.Equal(t, int64(8), c.Size())

	assert.True(t, c.ContainsChunk(ch))
	rl, ok := c.Remove(ranged.Interval{From: 0, To: 4})
	assert.True(t, ok)
	assert.Equal(t, ranged.RangedList[int64](ch), rl)
	assert.Equal(t, int64(4), c.Size())
	assert.False(t, c.ContainsChunk(ch))
	assert.Equal(t, []ranged.Interval{{From: 4, To: 8}}, c.Ranges())
}

func TestSeparate(t *testing.T) {
	for _, n := range []int{1, 2, 3, 4, 7, 12} {
		c := New[int64]()
		c.AddChunk(seqChunk(0, 3))
		c.AddChunk(seqChunk(3, 4))
		c.AddChunk(seqChunk(10, 16))

		size := c.Size()
		parts, err := c.Separate(n)
		require.Nil(t, err)
		require.Equal(t, n, len(parts))
		assert.True(t, c.IsEmpty())

		var all []int64
		for i, p := range parts {
			exp := size / int64(n)
			if int64(i) < size%int64(n) {
				exp++
			}
			assert.Equal(t, exp, p.Size(), fmt.Sprintf("n=%d, part=%d", n, i))
			p.ForEach(func(idx int64, v int64) error {
				all = append(all, v)
				return nil
			})
		}
		assert.Equal(t, []int64{0, 1, 2, 3, 10, 11, 12, 13, 14, 15}, all)
	}
}

func TestSeparateEmpty(t *testing.T) {
	c := New[int]()
	parts, err := c.Separate(3)
	assert.Nil(t, err)
	assert.Equal(t, 3, len(parts))
	for _, p := range parts {
		assert.True(t, p.IsEmpty())
	}

	_, err = c.Separate(0)
	assert.NotNil(t, err)
}

func TestSeparateSharesStorage(t *testing.T) {
	c := New[int64]()
	ch := seqChunk(0, 4)
	c.AddChunk(ch)
	parts, _ := c.Separate(2)
	parts[1].Set(3, 33)
	v, _ := ch.Get(3)
	assert.Equal(t, int64(33), v)
}

func TestIterator(t *testing.T) {
	c := New[int64]()
	c.AddChunk(seqChunk(5, 7))
	c.AddChunk(ranged.NewChunk[int64](ranged.Interval{From: 7, To: 7}))
	c.AddChunk(seqChunk(0, 2))

	var res []int64
	it := c.Iterator()
	for it.HasNext() {
		idx, v, err := it.Next()
		assert.Nil(t, err)
		assert.Equal(t, idx, v)
		res = append(res, v)
	}
	assert.Equal(t, []int64{0, 1, 5, 6}, res)
	_, _, err := it.Next()
	assert.True(t, errors.Is(err, ranged.ErrIndexOutOfRange))
}

func TestCloneAndFilter(t *testing.T) {
	c := New[int64]()
	ch := seqChunk(0, 4)
	v, _ := ch.SubList(ranged.Interval{From: 2, To: 4})
	c.AddChunk(v)
	c.AddChunk(seqChunk(4, 5))

	cl := c.Clone()
	assert.Equal(t, c.Ranges(), cl.Ranges())
	cl.Set(2, 100)
	x, _ := c.Get(2)
	assert.Equal(t, int64(2), x)

	big := c.FilterChunks(func(rl ranged.RangedList[int64]) bool { return rl.Size() > 1 })
	assert.Equal(t, 1, len(big))
	assert.Equal(t, ranged.Interval{From: 2, To: 4}, big[0].Range())
}

func TestMap(t *testing.T) {
	c := New[int64]()
	c.AddChunk(seqChunk(0, 3))
	c.AddChunk(seqChunk(3, 5))
	m, err := Map(c, func(idx int64, v int64) (string, error) {
		return fmt.Sprint(v * 2), nil
	})
	assert.Nil(t, err)
	assert.Equal(t, c.Ranges(), m.Ranges())
	s, _ := m.Get(4)
	assert.Equal(t, "8", s)
}

func TestParallelEqualsSequential(t *testing.T) {
	c := New[int64]()
	c.AddChunk(seqChunk(0, 17))
	c.AddChunk(seqChunk(20, 21))
	c.AddChunk(seqChunk(30, 45))

	var exp int64
	c.ForEach(func(idx int64, v int64) error {
		exp += v
		return nil
	})

	wp := NewWorkerPool(3)
	defer wp.Close()
	for _, k := range []int{1, 2, 4, 40} {
		var sum, cnt int64
		err := c.ParallelForEach(wp, k, func(idx int64, v int64) error {
			atomic.AddInt64(&sum, v)
			atomic.AddInt64(&cnt, 1)
			return nil
		})
		assert.Nil(t, err)
		assert.Equal(t, exp, sum)
		assert.Equal(t, c.Size(), cnt)

		sum, cnt = 0, 0
		err = c.ForEachConcurrent(k, func(idx int64, v int64) error {
			atomic.AddInt64(&sum, v)
			atomic.AddInt64(&cnt, 1)
			return nil
		})
		assert.Nil(t, err)
		assert.Equal(t, exp, sum)
		assert.Equal(t, c.Size(), cnt)

		m, err := ParallelMap(wp, c, k, func(idx int64, v int64) (int64, error) { return -v, nil })
		assert.Nil(t, err)
		m2, err := MapConcurrent(c, k, func(idx int64, v int64) (int64, error) { return -v, nil })
		assert.Nil(t, err)
		assert.Equal(t, c.Ranges(), m.Ranges())
		c.ForEach(func(idx int64, v int64) error {
			x, _ := m.Get(idx)
			y, _ := m2.Get(idx)
			assert.Equal(t, -v, x)
			assert.Equal(t, -v, y)
			return nil
		})
	}
	assert.Equal(t, int64(33), c.Size())
}

func TestParallelCollectsAllErrors(t *testing.T) {
	c := New[int64]()
	c.AddChunk(seqChunk(0, 8))

	var calls int64
	err := c.ForEachConcurrent(4, func(idx int64, v int64) error {
		atomic.AddInt64(&calls, 1)
		if idx%2 == 0 {
			return fmt.Errorf("bad %d", idx)
		}
		return nil
	})
	assert.NotNil(t, err)
	// every task stops on its first error, no task is cancelled by another
	assert.Equal(t, int64(4), calls)
	assert.Equal(t, 4, len(multierr.Errors(err)))
}

func TestWorkerPoolClosed(t *testing.T) {
	wp := NewWorkerPool(1)
	assert.Nil(t, wp.Close())
	assert.NotNil(t, wp.Close())

	c := New[int64]()
	c.AddChunk(seqChunk(0, 2))
	err := c.ParallelForEach(wp, 2, func(idx int64, v int64) error { return nil })
	assert.NotNil(t, err)
}
