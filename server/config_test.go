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

package server

import (
	"context"
	"io/ioutil"
	"os"
	"path"
	"testing"

	"github.com/logrange/distcol/pkg/cluster"
	"github.com/logrange/distcol/pkg/workload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	c := GetDefaultConfig()
	assert.Nil(t, c.Check())
	assert.Equal(t, []cluster.HostAddr{cluster.LocalHostRpcAddr}, c.Peers)
}

func TestConfigApply(t *testing.T) {
	c := GetDefaultConfig()
	c.Apply(nil)

	tlsOn := true
	other := &Config{
		Rank:  2,
		Peers: []cluster.HostAddr{"h1:1", "h2:1", "h3:1"},
		Workload: workload.Config{
			Type:   workload.TypeBag,
			Params: map[string]interface{}{"Rounds": 5},
		},
	}
	other.Transport.TlsEnabled = &tlsOn
	c.Apply(other)

	assert.Equal(t, cluster.Rank(2), c.Rank)
	assert.Equal(t, other.Peers, c.Peers)
	assert.True(t, *c.Transport.TlsEnabled)
	assert.Equal(t, workload.TypeBag, c.Workload.Type)

	other.Peers[0] = "changed:1"
	other.Workload.Params["Rounds"] = 10
	assert.Equal(t, cluster.HostAddr("h1:1"), c.Peers[0])
	assert.Equal(t, 5, c.Workload.Params["Rounds"])

	// no cert files
	assert.NotNil(t, c.Check())
	tlsOn = false
	c.Transport.TlsEnabled = &tlsOn
	assert.Nil(t, c.Check())
}

func TestConfigCheck(t *testing.T) {
	c := GetDefaultConfig()
	c.Rank = 1
	assert.NotNil(t, c.Check())

	c = GetDefaultConfig()
	c.Peers = nil
	assert.NotNil(t, c.Check())

	c = GetDefaultConfig()
	c.Peers = []cluster.HostAddr{"a:1", "b:1", "a:1"}
	assert.NotNil(t, c.Check())

	c = GetDefaultConfig()
	c.Peers = []cluster.HostAddr{"a:1", ""}
	assert.NotNil(t, c.Check())

	c = GetDefaultConfig()
	c.Workload.Type = "abc"
	assert.NotNil(t, c.Check())
	assert.NotNil(t, Start(context.Background(), c))
}

func TestReadConfigFromFile(t *testing.T) {
	assert.Nil(t, ReadConfigFromFile(""))

	dir, err := ioutil.TempDir("", "configTest")
	require.Nil(t, err)
	defer os.RemoveAll(dir)

	fn := path.Join(dir, "distcol.json")
	assert.Nil(t, ReadConfigFromFile(fn))

	data := `{"Rank": 1, "Peers": ["127.0.0.1:9977", "127.0.0.1:9978"],
		"Transport": {"ListenAddr": "0.0.0.0:9978"},
		"Workload": {"Type": "chunked", "Params": {"Elements": 100, "ChunkSize": 7}}}`
	require.Nil(t, ioutil.WriteFile(fn, []byte(data), 0640))

	c := ReadConfigFromFile(fn)
	require.NotNil(t, c)
	assert.Equal(t, cluster.Rank(1), c.Rank)
	assert.Equal(t, 2, len(c.Peers))
	assert.Equal(t, "0.0.0.0:9978", c.Transport.ListenAddr)
	assert.Nil(t, c.Check())

	p, err := c.Workload.DecodeParams()
	require.Nil(t, err)
	assert.Equal(t, 7, p.ChunkSize)
	assert.Equal(t, 100, p.Elements)

	require.Nil(t, ioutil.WriteFile(fn, []byte("{bad json"), 0640))
	assert.Panics(t, func() { ReadConfigFromFile(fn) })
}
