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

package workload

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/logrange/distcol/pkg/chunked"
	"github.com/logrange/distcol/pkg/cluster"
	"github.com/logrange/distcol/pkg/codec"
	"github.com/logrange/distcol/pkg/dist"
	"github.com/logrange/distcol/pkg/ranged"
	"github.com/logrange/distcol/pkg/site"
)

// runRebalance fills a distributed map and moves the entries between the
// sites by a hash of the key and the round number.
func runRebalance(ctx context.Context, s *site.Site, p Params) error {
	m, err := dist.NewMap[string, int64](s, p.Name, codec.String(), codec.Int64())
	if err != nil {
		return err
	}
	defer m.Close()

	base := int64(s.Rank()) * int64(p.Elements)
	for i := 0; i < p.Elements; i++ {
		m.Put(strconv.FormatInt(base+int64(i), 10), base+int64(i))
	}

	n := s.Size()
	for r := 0; r < p.Rounds; r++ {
		round := r
		err := m.Relocate(ctx, func(k string) cluster.Rank {
			return rebalanceRank(k, round, n)
		})
		if err != nil {
			return err
		}
		if err := checkTotal(ctx, s, "rebalance", r, int64(m.Size()), int64(p.Elements)); err != nil {
			return err
		}
	}

	// every value must be consistent with its key after the moves
	return m.ForEach(func(k string, v int64) error {
		if k != strconv.FormatInt(v, 10) {
			return fmt.Errorf("key %s has wrong value %d", k, v)
		}
		return nil
	})
}

// rebalanceRank returns the site for the key k in the round. The hash stays
// unsigned, so the result is in [0, n) on every platform.
func rebalanceRank(k string, round, n int) cluster.Rank {
	h := fnv.New32a()
	h.Write([]byte(k))
	return cluster.Rank((uint64(h.Sum32()) + uint64(round)) % uint64(n))
}

// runChunked fills a distributed chunked collection with the range of the
// site and shifts the fragments to the next site every round. The sum of all
// elements must not change.
func runChunked(ctx context.Context, s *site.Site, p Params) error {
	c, err := dist.NewChunked[int64](s, p.Name, codec.Int64())
	if err != nil {
		return err
	}
	defer c.Close()

	from := int64(s.Rank()) * int64(p.Elements)
	to := from + int64(p.Elements)
	for st := from; st < to; st += int64(p.ChunkSize) {
		end := st + int64(p.ChunkSize)
		if end > to {
			end = to
		}
		ch := ranged.NewChunk[int64](ranged.Interval{From: st, To: end})
		for i := st; i < end; i++ {
			ch.Set(i, i)
		}
		if err := c.AddChunk(ch); err != nil {
			return err
		}
	}

	wp := chunked.NewWorkerPool(p.Workers)
	defer wp.Close()

	expSum, err := localSum(wp, c.Local(), p.Workers)
	if err != nil {
		return err
	}
	if expSum, err = s.AllReduceSum(ctx, expSum); err != nil {
		return err
	}

	n := s.Size()
	chunkSize := int64(p.ChunkSize)
	for r := 0; r < p.Rounds; r++ {
		mm := s.NewMoveManager()
		err := c.RelocateByIndexAtSync(func(idx int64) cluster.Rank {
			return cluster.Rank((idx/chunkSize + int64(r) + 1) % int64(n))
		}, mm)
		if err != nil {
			mm.Clear()
		}
		if serr := mm.Sync(ctx); err == nil {
			err = serr
		}
		if err != nil {
			return err
		}

		sum, err := localSum(wp, c.Local(), p.Workers)
		if err != nil {
			return err
		}
		if sum, err = s.AllReduceSum(ctx, sum); err != nil {
			return err
		}
		if sum != expSum {
			return fmt.Errorf("round %d: sum of elements is %d, but expected %d", r, sum, expSum)
		}
		if err := checkTotal(ctx, s, "chunked", r, c.Size(), int64(p.Elements)); err != nil {
			return err
		}
	}
	return nil
}

// runBag moves a quarter of the local bag to the next site every round
func runBag(ctx context.Context, s *site.Site, p Params) error {
	b, err := dist.NewBag[string](s, p.Name, codec.String())
	if err != nil {
		return err
	}
	defer b.Close()

	items := make([]string, p.Elements)
	for i := range items {
		items[i] = fmt.Sprintf("%dp%d", s.Rank(), i)
	}
	b.AddBag(items)

	next := cluster.Rank((int(s.Rank()) + 1) % s.Size())
	for r := 0; r < p.Rounds; r++ {
		mm := s.NewMoveManager()
		if err := b.MoveAtSyncCount(b.Size()/4, next, mm); err != nil {
			return err
		}
		if err := mm.Sync(ctx); err != nil {
			return err
		}
		if err := checkTotal(ctx, s, "bag", r, int64(b.Size()), int64(p.Elements)); err != nil {
			return err
		}
	}
	return nil
}

func localSum(ex chunked.Executor, c *chunked.Collection[int64], workers int) (int64, error) {
	var sum int64
	err := c.ParallelForEach(ex, workers, func(idx int64, v int64) error {
		atomic.AddInt64(&sum, v)
		return nil
	})
	return sum, err
}

// checkTotal makes sure the number of elements in the group did not change
func checkTotal(ctx context.Context, s *site.Site, name string, round int, local, perSite int64) error {
	sizes, err := s.AllGather(ctx, local)
	if err != nil {
		return err
	}
	var total int64
	for _, sz := range sizes {
		total += sz
	}
	logger.Info(name, ": site ", s.Rank(), " round ", round, " is over, local size ", humanize.Comma(local),
		", total ", humanize.Comma(total))
	if exp := perSite * int64(s.Size()); total != exp {
		return fmt.Errorf("%s round %d: total number of elements is %d, but expected %d", name, round, total, exp)
	}
	return nil
}
