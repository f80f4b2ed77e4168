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

	"github.com/logrange/distcol/pkg/bag"
	"github.com/logrange/distcol/pkg/cluster"
	"github.com/logrange/distcol/pkg/codec"
	"github.com/logrange/distcol/pkg/relocation"
	"github.com/logrange/distcol/pkg/site"
	rerrors "github.com/logrange/range/pkg/utils/errors"
	"github.com/pkg/errors"
)

type (
	// Bag is a distributed bag. Elements have no identity, so only their
	// number could be moved between the sites.
	Bag[T any] struct {
		handle
		vc    codec.Value[T]
		local *bag.Bag[T]
	}
)

// NewBag creates the local part of the distributed bag name on the site s
func NewBag[T any](s *site.Site, name string, vc codec.Value[T]) (*Bag[T], error) {
	b := new(Bag[T])
	b.vc = vc
	b.local = bag.New[T]()
	h, err := newHandle(s, "bag", name, b.deserialize)
	if err != nil {
		return nil, err
	}
	b.handle = h
	return b, nil
}

// Local returns the local part of the bag
func (b *Bag[T]) Local() *bag.Bag[T] {
	return b.local
}

func (b *Bag[T]) AddBag(items []T) {
	b.local.AddBag(items)
}

func (b *Bag[T]) Size() int {
	return b.local.Size()
}

// MoveAtSyncCount requests n elements to be moved to the site dest. The
// elements are taken from the bag when the round starts. If the bag has less
// than n elements at that moment, nothing is taken and the round fails.
func (b *Bag[T]) MoveAtSyncCount(n int, dest cluster.Rank, mm *relocation.Manager) error {
	if n == 0 || b.isLocal(dest) {
		return nil
	}
	if n < 0 {
		return errors.Errorf("could not move %d elements", n)
	}
	return mm.Request(dest, b.tag, func(enc *codec.Encoder) error {
		items := b.local.RemoveN(n)
		if len(items) < n {
			b.local.AddBag(items)
			return errors.Wrapf(rerrors.NotFound, "only %d elements of %d requested are in %s", len(items), n, b.tag)
		}
		if err := enc.WriteUint(uint64(n)); err != nil {
			return err
		}
		for _, v := range items {
			if err := b.vc.Write(enc, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// TeamSize returns the sizes of the bag parts on all sites. It is a
// collective operation.
func (b *Bag[T]) TeamSize(ctx context.Context) ([]int64, error) {
	return b.teamSize(ctx, int64(b.local.Size()))
}

func (b *Bag[T]) deserialize(src cluster.Rank, dec *codec.Decoder) error {
	n, err := dec.ReadUint()
	if err != nil {
		return err
	}
	var items []T
	for i := uint64(0); i < n; i++ {
		v, err := b.vc.Read(dec)
		if err != nil {
			return err
		}
		items = append(items, v)
	}
	b.local.AddBag(items)
	return nil
}
