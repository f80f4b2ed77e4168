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
	"fmt"
	"strconv"
	"strings"
)

type (
	// HostAddr is an address in host:port format
	HostAddr string

	// Rank is the site identifier within its group. Sites of a group of size n
	// have ranks 0..n-1.
	Rank int
)

const (
	DefaultRpcPort = 9977

	// NoRank is used where the rank is not known
	NoRank = Rank(-1)
)

// LocalHostRpcAddr contains the default address of a site
var LocalHostRpcAddr = GetHostAddr("127.0.0.1", DefaultRpcPort)

func GetHostAddr(addr string, port int) HostAddr {
	return HostAddr(fmt.Sprintf("%s:%d", addr, port))
}

// ParseRank parses the rank value. Ranks are not negative
func ParseRank(s string) (Rank, error) {
	r, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return NoRank, err
	}
	if r < 0 {
		return NoRank, fmt.Errorf("rank must not be negative, but it is %d", r)
	}
	return Rank(r), nil
}

// Check returns an error if r is not a valid rank in a group of size n
func (r Rank) Check(n int) error {
	if r < 0 || int(r) >= n {
		return fmt.Errorf("rank %d is out of the group of size %d", r, n)
	}
	return nil
}

func (r Rank) String() string {
	return strconv.Itoa(int(r))
}
