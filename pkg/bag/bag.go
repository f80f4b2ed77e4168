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

// Package bag contains an unordered collection which keeps its elements in
// a number of lists. The lists could be filled independently by different
// goroutines and processed in parallel.
package bag

import (
	"fmt"
	"sync"

	"github.com/logrange/distcol/pkg/chunked"
	"go.uber.org/multierr"
)

type (
	Bag[T any] struct {
		lock  sync.Mutex
		lists []*list[T]
	}

	list[T any] struct {
		items []T
		// detached is set when the list is dropped from the bag
		detached bool
	}
)

func New[T any]() *Bag[T] {
	return new(Bag[T])
}

// AddBag adds items as a new list. The bag takes the ownership of items.
func (b *Bag[T]) AddBag(items []T) {
	b.lock.Lock()
	b.lists = append(b.lists, &list[T]{items: items})
	b.lock.Unlock()
}

// Receiver returns a function which appends elements to a new list of the
// bag. The returned function must be used by one goroutine at a time, but it
// may run concurrently with other methods of the bag.
func (b *Bag[T]) Receiver() func(v T) {
	l := new(list[T])
	b.lock.Lock()
	b.lists = append(b.lists, l)
	b.lock.Unlock()
	return func(v T) {
		b.lock.Lock()
		if l.detached {
			l.detached = false
			b.lists = append(b.lists, l)
		}
		l.items = append(l.items, v)
		b.lock.Unlock()
	}
}

// Remove removes an element from the bag. It returns false if the bag is empty
func (b *Bag[T]) Remove() (T, bool) {
	b.lock.Lock()
	defer b.lock.Unlock()
	res := b.removeN(1)
	if len(res) == 0 {
		var zero T
		return zero, false
	}
	return res[0], true
}

// RemoveN removes up to n elements from the bag and returns them. It returns
// less than n elements only if the bag becomes empty.
func (b *Bag[T]) RemoveN(n int) []T {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.removeN(n)
}

func (b *Bag[T]) removeN(n int) []T {
	var res []T
	for n > 0 && len(b.lists) > 0 {
		last := b.lists[len(b.lists)-1]
		if len(last.items) == 0 {
			last.detached = true
			b.lists = b.lists[:len(b.lists)-1]
			continue
		}
		k := n
		if k > len(last.items) {
			k = len(last.items)
		}
		from := len(last.items) - k
		res = append(res, last.items[from:]...)
		// the cap is cut, so a later append does not overwrite returned elements
		last.items = last.items[:from:from]
		n -= k
	}
	return res
}

func (b *Bag[T]) Size() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	res := 0
	for _, l := range b.lists {
		res += len(l.items)
	}
	return res
}

func (b *Bag[T]) IsEmpty() bool {
	return b.Size() == 0
}

// NumLists returns number of internal lists, including the empty ones
func (b *Bag[T]) NumLists() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return len(b.lists)
}

// snapshot returns the current items of every list
func (b *Bag[T]) snapshot() [][]T {
	b.lock.Lock()
	defer b.lock.Unlock()
	res := make([][]T, len(b.lists))
	for i, l := range b.lists {
		res[i] = l.items[:len(l.items):len(l.items)]
	}
	return res
}

// ForEach calls f for every element. It stops on the first error.
func (b *Bag[T]) ForEach(f func(v T) error) error {
	for _, items := range b.snapshot() {
		for _, v := range items {
			if err := f(v); err != nil {
				return err
			}
		}
	}
	return nil
}

// ParallelForEach runs one task per list on ex and waits for all of them.
// Errors of all tasks are combined.
func (b *Bag[T]) ParallelForEach(ex chunked.Executor, f func(v T) error) error {
	lists := b.snapshot()
	errs := make([]error, len(lists))
	var wg sync.WaitGroup
	for i, items := range lists {
		i, items := i, items
		wg.Add(1)
		err := ex.Execute(func() {
			defer wg.Done()
			for _, v := range items {
				if err := f(v); err != nil {
					errs[i] = err
					return
				}
			}
		})
		if err != nil {
			errs[i] = err
			wg.Done()
		}
	}
	wg.Wait()
	return multierr.Combine(errs...)
}

// Clone returns a bag with the same elements in one list
func (b *Bag[T]) Clone() *Bag[T] {
	res := New[T]()
	items := make([]T, 0, b.Size())
	b.ForEach(func(v T) error {
		items = append(items, v)
		return nil
	})
	res.AddBag(items)
	return res
}

// ConvertToList returns all elements and clears the bag
func (b *Bag[T]) ConvertToList() []T {
	b.lock.Lock()
	defer b.lock.Unlock()
	var res []T
	for _, l := range b.lists {
		res = append(res, l.items...)
	}
	b.detachAll()
	return res
}

func (b *Bag[T]) Clear() {
	b.lock.Lock()
	b.detachAll()
	b.lock.Unlock()
}

func (b *Bag[T]) detachAll() {
	for _, l := range b.lists {
		l.items = nil
		l.detached = true
	}
	b.lists = nil
}

func (b *Bag[T]) String() string {
	return fmt.Sprintf("Bag{lists=%d, size=%d}", b.NumLists(), b.Size())
}
