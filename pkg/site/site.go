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

package site

import (
	"context"
	"sync"

	"github.com/jrivets/log4g"
	"github.com/logrange/distcol/pkg/cluster"
	"github.com/logrange/distcol/pkg/codec"
	"github.com/logrange/distcol/pkg/exchange"
	"github.com/logrange/distcol/pkg/relocation"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

type (
	// Site is an execution site of a group. It keeps the exchanger the site
	// talks to the group with and the registry of relocation deserializers,
	// which the distributed collections of the site share.
	Site struct {
		ex     exchange.Exchanger
		reg    *relocation.Registry
		logger log4g.Logger
	}

	// Group is an in-process group of sites over exchange.LocalGroup
	Group struct {
		lg    *exchange.LocalGroup
		sites []*Site
	}
)

// New creates the site which uses ex for collective operations
func New(ex exchange.Exchanger) *Site {
	s := new(Site)
	s.ex = ex
	s.reg = relocation.NewRegistry()
	s.logger = log4g.GetLogger("site").WithId("{" + ex.Rank().String() + "}").(log4g.Logger)
	return s
}

func (s *Site) Rank() cluster.Rank {
	return s.ex.Rank()
}

func (s *Site) Size() int {
	return s.ex.Size()
}

func (s *Site) Registry() *relocation.Registry {
	return s.reg
}

func (s *Site) Exchanger() exchange.Exchanger {
	return s.ex
}

// NewMoveManager returns a new relocation manager of the site
func (s *Site) NewMoveManager() *relocation.Manager {
	return relocation.NewManager(s.ex, s.reg)
}

// AllGather is a collective operation which returns the values v of all
// sites, ordered by rank.
func (s *Site) AllGather(ctx context.Context, v int64) ([]int64, error) {
	enc := codec.NewEncoder()
	enc.WriteLong(v)
	out := make([][]byte, s.ex.Size())
	for i := range out {
		out[i] = enc.Bytes()
	}

	in, err := s.ex.AllToAll(ctx, out)
	if err != nil {
		return nil, errors.Wrapf(err, "AllGather() failed")
	}
	res := make([]int64, len(in))
	for i, buf := range in {
		if res[i], err = codec.NewDecoder(buf).ReadLong(); err != nil {
			return nil, errors.Wrapf(err, "wrong AllGather() value from site %d", i)
		}
	}
	return res, nil
}

// AllReduceSum returns the sum of v over all sites
func (s *Site) AllReduceSum(ctx context.Context, v int64) (int64, error) {
	vals, err := s.AllGather(ctx, v)
	if err != nil {
		return 0, err
	}
	var res int64
	for _, x := range vals {
		res += x
	}
	return res, nil
}

// Barrier returns when all sites of the group call it
func (s *Site) Barrier(ctx context.Context) error {
	_, err := s.ex.AllToAll(ctx, make([][]byte, s.ex.Size()))
	return err
}

// NewGroup creates n sites connected in-process
func NewGroup(n int) *Group {
	g := new(Group)
	g.lg = exchange.NewLocalGroup(n)
	g.sites = make([]*Site, n)
	for i := range g.sites {
		g.sites[i] = New(g.lg.Member(cluster.Rank(i)))
	}
	return g
}

func (g *Group) Size() int {
	return len(g.sites)
}

// Site returns the site by its rank
func (g *Group) Site(r cluster.Rank) *Site {
	return g.sites[r]
}

// Broadcast runs f on every site concurrently and waits until all of them are
// over. It returns errors of all sites combined.
func (g *Group) Broadcast(f func(s *Site) error) error {
	errs := make([]error, len(g.sites))
	var wg sync.WaitGroup
	for i, s := range g.sites {
		wg.Add(1)
		go func(i int, s *Site) {
			defer wg.Done()
			if err := f(s); err != nil {
				errs[i] = errors.Wrapf(err, "site %d", i)
			}
		}(i, s)
	}
	wg.Wait()
	return multierr.Combine(errs...)
}

// Close releases the sites blocked in collective operations
func (g *Group) Close() error {
	return g.lg.Close()
}
