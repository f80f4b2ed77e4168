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

	"github.com/logrange/distcol/pkg/cluster"
)

type (
	// Exchanger is the collective all-to-all primitive of a site group. Every
	// site of the group calls AllToAll the same number of times in the same
	// order, each call is one exchange round.
	Exchanger interface {
		// Rank returns the rank of the local site
		Rank() cluster.Rank

		// Size returns the number of sites in the group
		Size() int

		// AllToAll sends out[dst] to every site dst and returns the slice
		// where in[src] is the buffer the site src addressed to this site.
		// out[Rank()] is returned as in[Rank()] without sending. The call
		// blocks until buffers from all sites are received, ctx is closed, or
		// the exchanger is shut down.
		AllToAll(ctx context.Context, out [][]byte) ([][]byte, error)
	}
)
