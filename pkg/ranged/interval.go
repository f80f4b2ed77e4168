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
)

type (
	// Interval is a half-open range of indexes [From, To). An Interval with
	// From == To is empty but still has a position.
	Interval struct {
		From int64
		To   int64
	}
)

// NewInterval returns the [from, to) interval or an error if from > to or
// the size does not fit int64.
func NewInterval(from, to int64) (Interval, error) {
	if from > to {
		return Interval{}, fmt.Errorf("invalid interval: from=%d is greater than to=%d", from, to)
	}
	if to-from < 0 {
		return Interval{}, fmt.Errorf("invalid interval: size of [%d, %d) overflows int64", from, to)
	}
	return Interval{From: from, To: to}, nil
}

// Size returns number of indexes in the interval
func (r Interval) Size() int64 {
	return r.To - r.From
}

func (r Interval) IsEmpty() bool {
	return r.From >= r.To
}

// Contains returns whether the index i is in [From, To)
func (r Interval) Contains(i int64) bool {
	return r.From <= i && i < r.To
}

// ContainsRange returns true if other lies within r. An empty other is
// contained if its position is within [From, To].
func (r Interval) ContainsRange(other Interval) bool {
	return r.From <= other.From && other.To <= r.To
}

// Overlaps returns true if r and other share at least one index. Empty
// intervals overlap an interval which strictly contains their position.
func (r Interval) Overlaps(other Interval) bool {
	if r.IsEmpty() {
		return other.From < r.From && r.From < other.To
	}
	if other.IsEmpty() {
		return r.From < other.From && other.From < r.To
	}
	return r.From < other.To && other.From < r.To
}

// Intersect returns the common part of r and other. The second value is false
// if the intervals have no common index.
func (r Interval) Intersect(other Interval) (Interval, bool) {
	from, to := r.From, r.To
	if other.From > from {
		from = other.From
	}
	if other.To < to {
		to = other.To
	}
	if from >= to {
		return Interval{}, false
	}
	return Interval{from, to}, true
}

// Compare orders intervals by From, then by To
func (r Interval) Compare(other Interval) int {
	switch {
	case r.From < other.From:
		return -1
	case r.From > other.From:
		return 1
	case r.To < other.To:
		return -1
	case r.To > other.To:
		return 1
	}
	return 0
}

func (r Interval) String() string {
	return fmt.Sprintf("[%d,%d)", r.From, r.To)
}
