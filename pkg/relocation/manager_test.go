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

package relocation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/logrange/distcol/pkg/cluster"
	"github.com/logrange/distcol/pkg/codec"
	"github.com/logrange/distcol/pkg/exchange"
	"github.com/stretchr/testify/assert"
)

type testSite struct {
	m    *Manager
	reg  *Registry
	recv []string
	keys map[string]bool
}

func newTestSites(n int) []*testSite {
	g := exchange.NewLocalGroup(n)
	res := make([]*testSite, n)
	for i := range res {
		ts := &testSite{reg: NewRegistry(), keys: make(map[string]bool)}
		ts.m = NewManager(g.Member(cluster.Rank(i)), ts.reg)
		ts.reg.Register("msg", func(src cluster.Rank, dec *codec.Decoder) error {
			s, err := dec.ReadString()
			if err != nil {
				return err
			}
			ts.recv = append(ts.recv, s)
			return nil
		})
		rank := cluster.Rank(i)
		ts.reg.Register("key", func(src cluster.Rank, dec *codec.Decoder) error {
			k, err := dec.ReadString()
			if err != nil {
				return err
			}
			if ts.keys[k] {
				return &DuplicateKeyError{Rank: rank, Key: k}
			}
			ts.keys[k] = true
			return nil
		})
		res[i] = ts
	}
	return res
}

func writeString(s string) Serializer {
	return func(enc *codec.Encoder) error {
		return enc.WriteString(s)
	}
}

// syncAll runs f and then Sync on every site concurrently and returns the
// Sync results by rank.
func syncAll(t *testing.T, sites []*testSite, f func(ts *testSite) error) []error {
	res := make([]error, len(sites))
	var wg sync.WaitGroup
	for i, ts := range sites {
		wg.Add(1)
		go func(i int, ts *testSite) {
			defer wg.Done()
			if f != nil {
				if err := f(ts); err != nil {
					t.Error("site ", i, " could not queue requests, err=", err)
				}
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			res[i] = ts.m.Sync(ctx)
		}(i, ts)
	}
	wg.Wait()
	return res
}

func TestSyncDelivers(t *testing.T) {
	sites := newTestSites(3)
	errs := syncAll(t, sites, func(ts *testSite) error {
		me := ts.m.Rank()
		for d := 0; d < 3; d++ {
			if cluster.Rank(d) == me {
				continue
			}
			if err := ts.m.Request(cluster.Rank(d), "msg", writeString(fmt.Sprintf("a%d%d", me, d))); err != nil {
				return err
			}
			if err := ts.m.Request(cluster.Rank(d), "msg", writeString(fmt.Sprintf("b%d%d", me, d))); err != nil {
				return err
			}
		}
		if ts.m.State() != StateAccumulating {
			return fmt.Errorf("wrong state %s", ts.m.State())
		}
		return nil
	})

	for i, err := range errs {
		assert.Nil(t, err, "site ", i)
	}
	assert.Equal(t, []string{"a10", "b10", "a20", "b20"}, sites[0].recv)
	assert.Equal(t, []string{"a01", "b01", "a21", "b21"}, sites[1].recv)
	assert.Equal(t, []string{"a02", "b02", "a12", "b12"}, sites[2].recv)
	for _, ts := range sites {
		assert.Equal(t, StateIdle, ts.m.State())
	}
}

func TestEmptySync(t *testing.T) {
	sites := newTestSites(2)
	for _, err := range syncAll(t, sites, nil) {
		assert.Nil(t, err)
	}
}

func TestRequestErrors(t *testing.T) {
	sites := newTestSites(2)
	m := sites[0].m
	assert.NotNil(t, m.Request(0, "msg", writeString("x")))
	assert.NotNil(t, m.Request(2, "msg", writeString("x")))
	assert.NotNil(t, m.Request(-1, "msg", writeString("x")))
	assert.NotNil(t, m.Request(1, "unknown", writeString("x")))
	assert.Equal(t, StateIdle, m.State())

	assert.Nil(t, m.Request(1, "msg", writeString("x")))
	assert.Equal(t, 1, m.Pending(1))
	assert.Nil(t, m.Clear())
	assert.Equal(t, 0, m.Pending(1))
	assert.Equal(t, StateIdle, m.State())
}

func TestRegistryDuplicate(t *testing.T) {
	reg := NewRegistry()
	d := func(src cluster.Rank, dec *codec.Decoder) error { return nil }
	assert.Nil(t, reg.Register("a", d))
	assert.NotNil(t, reg.Register("a", d))
	reg.Unregister("a")
	assert.Nil(t, reg.Register("a", d))
}

func TestSerializerFailureAbortsSite(t *testing.T) {
	sites := newTestSites(3)
	errs := syncAll(t, sites, func(ts *testSite) error {
		switch ts.m.Rank() {
		case 0:
			return ts.m.Request(2, "msg", writeString("from0"))
		case 1:
			ts.m.Request(0, "msg", writeString("lost"))
			return ts.m.Request(2, "msg", func(enc *codec.Encoder) error {
				return fmt.Errorf("broken value")
			})
		}
		return nil
	})

	for i, err := range errs {
		var re *RoundError
		if !errors.As(err, &re) {
			t.Fatal("site ", i, " expected RoundError, but got ", err)
		}
		assert.Equal(t, []cluster.Rank{1}, re.Failed())
		assert.True(t, errors.Is(err, ErrRoundAborted))
	}
	assert.Nil(t, sites[0].recv)
	assert.Equal(t, []string{"from0"}, sites[2].recv)
	assert.Equal(t, 0, sites[1].m.Pending(2))

	// the group is usable after the failed round
	errs = syncAll(t, sites, func(ts *testSite) error {
		if ts.m.Rank() == 1 {
			return ts.m.Request(0, "msg", writeString("again"))
		}
		return nil
	})
	for _, err := range errs {
		assert.Nil(t, err)
	}
	assert.Equal(t, []string{"again"}, sites[0].recv)
}

func TestDuplicateKeyOnArrival(t *testing.T) {
	sites := newTestSites(4)
	errs := syncAll(t, sites, func(ts *testSite) error {
		if ts.m.Rank() < 2 {
			return ts.m.Request(2, "key", writeString("k"))
		}
		return nil
	})

	for i, err := range errs {
		var re *RoundError
		if !errors.As(err, &re) {
			t.Fatal("site ", i, " expected RoundError, but got ", err)
		}
		assert.Equal(t, []cluster.Rank{2}, re.Failed())
		assert.True(t, errors.Is(err, ErrDuplicateKeyOnArrival))
	}

	var dke *DuplicateKeyError
	if !errors.As(errs[2], &dke) {
		t.Fatal("expected DuplicateKeyError on site 2, but got ", errs[2])
	}
	assert.Equal(t, cluster.Rank(2), dke.Rank)
	assert.Equal(t, "k", dke.Key)
	assert.True(t, sites[2].keys["k"])
}

func TestEncodingMismatch(t *testing.T) {
	sites := newTestSites(2)
	for _, ts := range sites {
		ts.reg.Register("lazy", func(src cluster.Rank, dec *codec.Decoder) error {
			return nil
		})
	}
	errs := syncAll(t, sites, func(ts *testSite) error {
		if ts.m.Rank() == 0 {
			return ts.m.Request(1, "lazy", func(enc *codec.Encoder) error {
				return enc.WriteLong(1)
			})
		}
		return nil
	})
	for _, err := range errs {
		assert.True(t, errors.Is(err, codec.ErrEncodingMismatch), err)
		var re *RoundError
		errors.As(err, &re)
		assert.Equal(t, []cluster.Rank{1}, re.Failed())
	}
}

func TestOversizedStringLength(t *testing.T) {
	sites := newTestSites(2)
	errs := syncAll(t, sites, func(ts *testSite) error {
		if ts.m.Rank() == 0 {
			return ts.m.Request(1, "msg", func(enc *codec.Encoder) error {
				// a varint length far beyond the buffer
				if err := enc.WriteUint(1 << 62); err != nil {
					return err
				}
				return enc.WriteString("abc")
			})
		}
		return nil
	})
	for i, err := range errs {
		if !errors.Is(err, codec.ErrEncodingMismatch) {
			t.Fatal("site ", i, " expected encoding mismatch, but got ", err)
		}
		var re *RoundError
		errors.As(err, &re)
		assert.Equal(t, []cluster.Rank{1}, re.Failed())
	}
	assert.Nil(t, sites[1].recv)
}

func TestDeserializerPanic(t *testing.T) {
	sites := newTestSites(2)
	for _, ts := range sites {
		ts.reg.Register("boom", func(src cluster.Rank, dec *codec.Decoder) error {
			var m map[string]int
			m["x"] = 1
			return nil
		})
	}
	errs := syncAll(t, sites, func(ts *testSite) error {
		if ts.m.Rank() == 1 {
			return ts.m.Request(0, "boom", writeString("x"))
		}
		return nil
	})
	for i, err := range errs {
		if !errors.Is(err, codec.ErrEncodingMismatch) {
			t.Fatal("site ", i, " expected encoding mismatch, but got ", err)
		}
		var re *RoundError
		errors.As(err, &re)
		assert.Equal(t, []cluster.Rank{0}, re.Failed())
	}
}
