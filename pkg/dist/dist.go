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

// Package dist contains the collections which are distributed over the sites
// of a group. Every site keeps its part of a collection locally, and the
// parts could be relocated between the sites by relocation rounds.
//
// A distributed collection must be created on every site of the group with
// the same name, because the name identifies the deserializer of the
// collection data on the receiving site.
package dist

import (
	"context"

	"github.com/jrivets/log4g"
	"github.com/logrange/distcol/pkg/cluster"
	"github.com/logrange/distcol/pkg/relocation"
	"github.com/logrange/distcol/pkg/site"
	"github.com/pkg/errors"
)

type (
	// handle is the part every distributed collection has
	handle struct {
		site   *site.Site
		tag    string
		logger log4g.Logger
	}
)

func newHandle(s *site.Site, kind, name string, d relocation.Deserializer) (handle, error) {
	h := handle{site: s, tag: kind + ":" + name}
	h.logger = log4g.GetLogger("dist").WithId("{" + s.Rank().String() + ":" + h.tag + "}").(log4g.Logger)
	if err := s.Registry().Register(h.tag, d); err != nil {
		return h, errors.Wrapf(err, "could not create %s", h.tag)
	}
	return h, nil
}

// Tag returns the relocation tag of the collection
func (h *handle) Tag() string {
	return h.tag
}

// Site returns the site the collection part belongs to
func (h *handle) Site() *site.Site {
	return h.site
}

// Close unregisters the collection. Data for the collection which arrives
// after that makes the relocation round fail.
func (h *handle) Close() {
	h.site.Registry().Unregister(h.tag)
}

// teamSize returns the sizes of the collection parts on all sites
func (h *handle) teamSize(ctx context.Context, localSize int64) ([]int64, error) {
	return h.site.AllGather(ctx, localSize)
}

// isLocal returns true if dest is the local site, moves to it are no-ops
func (h *handle) isLocal(dest cluster.Rank) bool {
	return dest == h.site.Rank()
}

// syncWith runs f to queue requests into a new manager and executes them
func (h *handle) syncWith(ctx context.Context, f func(mm *relocation.Manager) error) error {
	mm := h.site.NewMoveManager()
	if err := f(mm); err != nil {
		// the round is collective, so the site takes part in it anyway
		mm.Clear()
		if serr := mm.Sync(ctx); serr != nil {
			h.logger.Warn("syncWith(): round after the local failure is over with err=", serr)
		}
		return err
	}
	return mm.Sync(ctx)
}
