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
	"sync"

	"github.com/logrange/distcol/pkg/ranged"
	"go.uber.org/multierr"
)

// ParallelForEach splits the collection into k contiguous parts of almost
// equal size and calls f for every element, one task per part, on the
// executor ex. It returns when all tasks are over. Errors of all tasks are
// combined into the result. f is called concurrently for different elements.
func (c *Collection[T]) ParallelForEach(ex Executor, k int, f func(idx int64, v T) error) error {
	return c.runParts(k, ex.Execute, f)
}

// ForEachConcurrent does the same as ParallelForEach, but runs every task in
// its own goroutine.
func (c *Collection[T]) ForEachConcurrent(k int, f func(idx int64, v T) error) error {
	return c.runParts(k, goLaunch, f)
}

// ParallelMap returns a collection with the same fragment boundaries as c,
// computing the elements on ex by k tasks.
func ParallelMap[T, U any](ex Executor, c *Collection[T], k int, f func(idx int64, v T) (U, error)) (*Collection[U], error) {
	return mapParts(c, k, ex.Execute, f)
}

// MapConcurrent is ParallelMap which runs every task in its own goroutine
func MapConcurrent[T, U any](c *Collection[T], k int, f func(idx int64, v T) (U, error)) (*Collection[U], error) {
	return mapParts(c, k, goLaunch, f)
}

func goLaunch(task func()) error {
	go task()
	return nil
}

func mapParts[T, U any](c *Collection[T], k int, launch func(func()) error, f func(idx int64, v T) (U, error)) (*Collection[U], error) {
	res := New[U]()
	for _, rl := range c.Chunks() {
		ch := ranged.NewChunk[U](rl.Range())
		res.ss.Add(ranged.RangedList[U](ch))
		res.size += ch.Size()
	}

	err := c.runParts(k, launch, func(idx int64, v T) error {
		u, err := f(idx, v)
		if err != nil {
			return err
		}
		_, err = res.Set(idx, u)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Collection[T]) runParts(k int, launch func(func()) error, f func(idx int64, v T) error) error {
	parts, err := c.split(k)
	if err != nil {
		return err
	}

	errs := make([]error, len(parts))
	var wg sync.WaitGroup
	for i, p := range parts {
		if len(p) == 0 {
			continue
		}
		i, p := i, p
		wg.Add(1)
		err := launch(func() {
			defer wg.Done()
			for _, rl := range p {
				if err := rl.ForEach(f); err != nil {
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
