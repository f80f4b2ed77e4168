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

package exchange

import (
	"context"
	"fmt"
	"sync"

	"github.com/logrange/distcol/pkg/cluster"
	"github.com/logrange/range/pkg/utils/errors"
)

type (
	// LocalGroup connects n in-process members. Every member is an
	// Exchanger, which is supposed to be used by its own goroutine.
	LocalGroup struct {
		lock    sync.Mutex
		n       int
		rounds  map[uint64]*localRound
		members []*LocalMember
		closeCh chan struct{}
		closed  bool
	}

	// LocalMember is the Exchanger of a site in LocalGroup
	LocalMember struct {
		g     *LocalGroup
		rank  cluster.Rank
		round uint64
	}

	localRound struct {
		bufs    [][][]byte
		arrived int
		taken   int
		done    chan struct{}
	}
)

// NewLocalGroup creates the group of n members
func NewLocalGroup(n int) *LocalGroup {
	if n <= 0 {
		panic(fmt.Sprintf("NewLocalGroup(): group size must be positive, but it is %d", n))
	}
	g := new(LocalGroup)
	g.n = n
	g.rounds = make(map[uint64]*localRound)
	g.closeCh = make(chan struct{})
	g.members = make([]*LocalMember, n)
	for i := range g.members {
		g.members[i] = &LocalMember{g: g, rank: cluster.Rank(i)}
	}
	return g
}

// Member returns the exchanger of the site with rank r
func (g *LocalGroup) Member(r cluster.Rank) *LocalMember {
	return g.members[r]
}

func (g *LocalGroup) Size() int {
	return g.n
}

// Close releases all members blocked in AllToAll. They get
// errors.ClosedState.
func (g *LocalGroup) Close() error {
	g.lock.Lock()
	defer g.lock.Unlock()
	if g.closed {
		return errors.ClosedState
	}
	g.closed = true
	close(g.closeCh)
	return nil
}

func (g *LocalGroup) getRound(id uint64) *localRound {
	r, ok := g.rounds[id]
	if !ok {
		r = &localRound{bufs: make([][][]byte, g.n), done: make(chan struct{})}
		g.rounds[id] = r
	}
	return r
}

func (m *LocalMember) Rank() cluster.Rank {
	return m.rank
}

func (m *LocalMember) Size() int {
	return m.g.n
}

func (m *LocalMember) AllToAll(ctx context.Context, out [][]byte) ([][]byte, error) {
	g := m.g
	if len(out) != g.n {
		return nil, fmt.Errorf("AllToAll(): expected %d buffers, but got %d", g.n, len(out))
	}

	g.lock.Lock()
	if g.closed {
		g.lock.Unlock()
		return nil, errors.ClosedState
	}
	id := m.round
	m.round++
	r := g.getRound(id)
	r.bufs[m.rank] = out
	r.arrived++
	if r.arrived == g.n {
		close(r.done)
	}
	g.lock.Unlock()

	select {
	case <-r.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-g.closeCh:
		return nil, errors.ClosedState
	}

	in := make([][]byte, g.n)
	for src := range in {
		in[src] = r.bufs[src][m.rank]
	}

	g.lock.Lock()
	r.taken++
	if r.taken == g.n {
		delete(g.rounds, id)
	}
	g.lock.Unlock()
	return in, nil
}
