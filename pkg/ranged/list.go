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

	"github.com/pkg/errors"
)

type (
	// RangedList is a fixed sequence of elements indexed by the values of its
	// Range. Both the owning Chunk and the non-owning View implement it.
	RangedList[T any] interface {
		// Range returns the interval of indexes the list covers
		Range() Interval

		// Size returns number of elements, which is Range().Size()
		Size() int64

		// Get returns the element by index i or ErrIndexOutOfRange
		Get(i int64) (T, error)

		// Set stores v at index i and returns the previous value
		Set(i int64, v T) (T, error)

		// SubList returns a View over the part r of the list. The view shares
		// the storage with the list.
		SubList(r Interval) (*View[T], error)

		// CloneRange returns a new Chunk with a copy of the elements of r
		CloneRange(r Interval) (*Chunk[T], error)

		// ForEach calls f for every element in index order. It stops on the
		// first error and returns it.
		ForEach(f func(idx int64, v T) error) error

		// Iterator returns a single-pass iterator over the list
		Iterator() Iterator[T]
	}

	// Iterator walks over a sequence of indexed elements.
	Iterator[T any] interface {
		HasNext() bool

		// Next returns the next index and element. It returns
		// ErrIndexOutOfRange if there are no more elements.
		Next() (int64, T, error)
	}

	listIterator[T any] struct {
		base *Chunk[T]
		pos  int64
		to   int64
	}
)

// ErrIndexOutOfRange is returned when an index or an interval lies outside of
// the list range.
var ErrIndexOutOfRange = fmt.Errorf("index out of range")

func indexErr(i int64, r Interval) error {
	return errors.Wrapf(ErrIndexOutOfRange, "index %d is not in %s", i, r)
}

func rangeErr(sub, r Interval) error {
	return errors.Wrapf(ErrIndexOutOfRange, "range %s is not in %s", sub, r)
}

func (it *listIterator[T]) HasNext() bool {
	return it.pos < it.to
}

func (it *listIterator[T]) Next() (int64, T, error) {
	if it.pos >= it.to {
		var zero T
		return it.pos, zero, errors.Wrapf(ErrIndexOutOfRange, "iterator is over, last index is %d", it.to-1)
	}
	i := it.pos
	it.pos++
	return i, it.base.data[i-it.base.r.From], nil
}

// Map builds a new Chunk with the same range as src where every element is
// the result of f applied to the corresponding element of src.
func Map[T, U any](src RangedList[T], f func(idx int64, v T) (U, error)) (*Chunk[U], error) {
	res := NewChunk[U](src.Range())
	err := src.ForEach(func(idx int64, v T) error {
		u, err := f(idx, v)
		if err != nil {
			return err
		}
		res.data[idx-res.r.From] = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
