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

package dist

import (
	"context"

	"github.com/logrange/distcol/pkg/chunked"
	"github.com/logrange/distcol/pkg/cluster"
	"github.com/logrange/distcol/pkg/codec"
	"github.com/logrange/distcol/pkg/ranged"
	"github.com/logrange/distcol/pkg/relocation"
	"github.com/logrange/distcol/pkg/site"
	rerrors "github.com/logrange/range/pkg/utils/errors"
	"github.com/pkg/errors"
)

type (
	// Chunked is a distributed chunked collection. The index space is split
	// between the sites by ranges: every index is held by at most one site.
	Chunked[T any] struct {
		handle
		vc    codec.Value[T]
		local *chunked.Collection[T]
	}
)

// NewChunked creates the local part of the distributed collection name on the
// site s. vc is used to transfer elements between the sites.
func NewChunked[T any](s *site.Site, name string, vc codec.Value[T]) (*Chunked[T], error) {
	c := new(Chunked[T])
	c.vc = vc
	c.local = chunked.New[T]()
	h, err := newHandle(s, "chunked", name, c.deserialize)
	if err != nil {
		return nil, err
	}
	c.handle = h
	return c, nil
}

// Local returns the local part of the collection
func (c *Chunked[T]) Local() *chunked.Collection[T] {
	return c.local
}

func (c *Chunked[T]) AddChunk(rl ranged.RangedList[T]) error {
	return c.local.AddChunk(rl)
}

func (c *Chunked[T]) Get(i int64) (T, error) {
	return c.local.Get(i)
}

func (c *Chunked[T]) Set(i int64, v T) (T, error) {
	return c.local.Set(i, v)
}

func (c *Chunked[T]) Size() int64 {
	return c.local.Size()
}

func (c *Chunked[T]) Ranges() []ranged.Interval {
	return c.local.Ranges()
}

// MoveRangeAtSync requests all local elements with indexes in r to be moved
// to the site dest. Local fragments which cross the bounds of r are split
// right away: the parts outside of r are copied into new fragments, so the
// collection keeps the same elements until the round starts.
func (c *Chunked[T]) MoveRangeAtSync(r ranged.Interval, dest cluster.Rank, mm *relocation.Manager) error {
	if c.isLocal(dest) {
		return nil
	}
	if err := dest.Check(c.site.Size()); err != nil {
		return err
	}

	var moving []ranged.Interval
	for _, rl := range c.local.Chunks() {
		fr := rl.Range()
		in, ok := fr.Intersect(r)
		if !ok {
			continue
		}
		if in != fr {
			if err := c.splitOut(rl, in); err != nil {
				return err
			}
		}
		moving = append(moving, in)
	}

	for _, in := range moving {
		in := in
		err := mm.Request(dest, c.tag, func(enc *codec.Encoder) error {
			return c.serializeRange(enc, in)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// splitOut replaces the fragment rl with the view of its part in and copies of
// the parts outside of in.
func (c *Chunked[T]) splitOut(rl ranged.RangedList[T], in ranged.Interval) error {
	fr := rl.Range()
	v, err := rl.SubList(in)
	if err != nil {
		return err
	}
	var outs []*ranged.Chunk[T]
	if fr.From < in.From {
		left, _ := rl.CloneRange(ranged.Interval{From: fr.From, To: in.From})
		outs = append(outs, left)
	}
	if in.To < fr.To {
		right, _ := rl.CloneRange(ranged.Interval{From: in.To, To: fr.To})
		outs = append(outs, right)
	}

	c.local.Remove(fr)
	c.local.AddChunk(v)
	for _, o := range outs {
		c.local.AddChunk(o)
	}
	return nil
}

func (c *Chunked[T]) serializeRange(enc *codec.Encoder, r ranged.Interval) error {
	rl, ok := c.local.Remove(r)
	if !ok {
		return errors.Wrapf(rerrors.NotFound, "fragment %s is not in %s any more", r, c.tag)
	}
	enc.WriteLong(r.From)
	enc.WriteLong(r.To)
	return rl.ForEach(func(idx int64, v T) error {
		return c.vc.Write(enc, v)
	})
}

// RelocateAtSync requests every local fragment to be moved to the site rule
// returns for its range.
func (c *Chunked[T]) RelocateAtSync(rule func(r ranged.Interval) cluster.Rank, mm *relocation.Manager) error {
	for _, r := range c.local.Ranges() {
		if err := c.MoveRangeAtSync(r, rule(r), mm); err != nil {
			return err
		}
	}
	return nil
}

// RelocateByIndexAtSync requests every local element to be moved to the site
// rule returns for its index. Consecutive indexes with the same destination
// are moved as one fragment.
func (c *Chunked[T]) RelocateByIndexAtSync(rule func(idx int64) cluster.Rank, mm *relocation.Manager) error {
	type move struct {
		r    ranged.Interval
		dest cluster.Rank
	}
	var moves []move
	for _, fr := range c.local.Ranges() {
		start := fr.From
		for start < fr.To {
			dest := rule(start)
			end := start + 1
			for end < fr.To && rule(end) == dest {
				end++
			}
			moves = append(moves, move{ranged.Interval{From: start, To: end}, dest})
			start = end
		}
	}
	for _, m := range moves {
		if err := c.MoveRangeAtSync(m.r, m.dest, mm); err != nil {
			return err
		}
	}
	return nil
}

// Relocate moves every local fragment to the site rule returns for its range.
// It is a collective operation, all sites of the group must call it.
func (c *Chunked[T]) Relocate(ctx context.Context, rule func(r ranged.Interval) cluster.Rank) error {
	return c.syncWith(ctx, func(mm *relocation.Manager) error {
		return c.RelocateAtSync(rule, mm)
	})
}

// TeamSize returns number of elements on all sites. It is a collective
// operation.
func (c *Chunked[T]) TeamSize(ctx context.Context) ([]int64, error) {
	return c.teamSize(ctx, c.local.Size())
}

func (c *Chunked[T]) deserialize(src cluster.Rank, dec *codec.Decoder) error {
	from, err := dec.ReadLong()
	if err != nil {
		return err
	}
	to, err := dec.ReadLong()
	if err != nil {
		return err
	}
	r, err := ranged.NewInterval(from, to)
	if err != nil {
		return errors.Wrapf(codec.ErrEncodingMismatch, "wrong fragment from site %d: %s", src, err)
	}
	// every element takes at least one byte
	if r.Size() > int64(dec.Remaining()) {
		return errors.Wrapf(codec.ErrEncodingMismatch, "fragment %s from site %d does not fit into %d bytes", r, src, dec.Remaining())
	}

	ch := ranged.NewChunk[T](r)
	for i := r.From; i < r.To; i++ {
		v, err := c.vc.Read(dec)
		if err != nil {
			return err
		}
		ch.Set(i, v)
	}

	if err := c.local.AddChunk(ch); err != nil {
		c.logger.Warn("deserialize(): fragment ", r, " from site ", src, " could not be added, err=", err)
		return &relocation.DuplicateKeyError{Rank: c.site.Rank(), Key: r}
	}
	return nil
}
