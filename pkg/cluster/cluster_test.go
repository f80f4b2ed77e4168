// Copyright 2018 The logrange Authors
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

package cluster

import (
	"testing"
)

func TestParseRank(t *testing.T) {
	r, err := ParseRank(" 12")
	if err != nil || r != 12 {
		t.Fatal("Wrong Rank value ", r, " err=", err)
	}

	_, err = ParseRank("-1")
	if err == nil {
		t.Fatal("Must be an error, but it is nil")
	}

	_, err = ParseRank("abc")
	if err == nil {
		t.Fatal("Must be an error, but it is nil")
	}
}

func TestRankCheck(t *testing.T) {
	if err := Rank(2).Check(3); err != nil {
		t.Fatal("Rank 2 must be valid in the group of 3, err=", err)
	}
	if err := Rank(3).Check(3); err == nil {
		t.Fatal("Rank 3 must not be valid in the group of 3")
	}
	if GetHostAddr("localhost", 1234) != "localhost:1234" {
		t.Fatal("Wrong host address")
	}
}
