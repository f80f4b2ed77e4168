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

package server

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"

	"github.com/jrivets/log4g"
	"github.com/logrange/distcol/pkg/cluster"
	"github.com/logrange/distcol/pkg/workload"
	"github.com/logrange/range/pkg/transport"
	"github.com/mohae/deepcopy"
	"github.com/pkg/errors"
)

// Config struct defines the site daemon settings
type Config struct {
	// Rank is the site index in Peers
	Rank cluster.Rank

	// Peers contains the RPC addresses of all sites of the group. The order
	// must be the same on every site.
	Peers []cluster.HostAddr

	// Transport contains TLS settings for the connections between the sites.
	// Transport.ListenAddr could be used to listen on an address which differs
	// from Peers[Rank], for example "0.0.0.0:9977"
	Transport transport.Config

	// Workload defines the relocation workload the site runs after start
	Workload workload.Config

	// PidFile is the file where the daemon process id is written. Empty
	// value means no pid file is used.
	PidFile string
}

var configLog = log4g.GetLogger("Config")

func GetDefaultConfig() *Config {
	c := new(Config)
	c.Rank = 0
	c.Peers = []cluster.HostAddr{cluster.LocalHostRpcAddr}
	c.Workload = workload.Config{Type: workload.TypeNone}
	return c
}

// Apply override c's properties by non-default values from cfg
func (c *Config) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if cfg.Rank > 0 {
		c.Rank = cfg.Rank
	}
	if len(cfg.Peers) > 0 {
		c.Peers = deepcopy.Copy(cfg.Peers).([]cluster.HostAddr)
	}
	c.Transport.Apply(&cfg.Transport)
	if len(cfg.Workload.Type) > 0 {
		c.Workload.Type = cfg.Workload.Type
	}
	if len(cfg.Workload.Params) > 0 {
		c.Workload.Params = cfg.Workload.Copy().Params
	}
	if len(cfg.PidFile) > 0 {
		c.PidFile = cfg.PidFile
	}
}

// Check returns an error if the config is not consistent
func (c *Config) Check() error {
	if len(c.Peers) == 0 {
		return errors.New("at least one peer address must be provided")
	}
	if err := c.Rank.Check(len(c.Peers)); err != nil {
		return err
	}
	seen := make(map[cluster.HostAddr]int, len(c.Peers))
	for i, p := range c.Peers {
		if p == "" {
			return fmt.Errorf("empty address of the peer %d", i)
		}
		if j, ok := seen[p]; ok {
			return fmt.Errorf("peers %d and %d have the same address %s", j, i, p)
		}
		seen[p] = i
	}
	tcfg := c.Transport
	if tcfg.ListenAddr == "" {
		tcfg.ListenAddr = string(c.Peers[c.Rank])
	}
	if err := tcfg.Check(); err != nil {
		return errors.Wrapf(err, "wrong transport settings")
	}
	return c.Workload.Check()
}

func (c *Config) String() string {
	return fmt.Sprint(
		"\n\tRank=", c.Rank,
		"\n\tPeers=", c.Peers,
		"\n\tTransport=", c.Transport,
		"\n\tWorkload=", c.Workload,
		"\n\tPidFile=", c.PidFile,
	)
}

// ReadConfigFromFile read config file from filename. It returns nil, if filename
// is empty or not found. It will panic if the file exists, but could not be
// read properly
func ReadConfigFromFile(filename string) *Config {
	if filename == "" {
		return nil
	}

	if _, err := os.Stat(filename); os.IsNotExist(err) {
		configLog.Warn("There is no file ", filename, " for reading distcol config, will use default configuration.")
		return nil
	}

	cfgData, err := ioutil.ReadFile(filename)
	if err != nil {
		configLog.Fatal("Could not read configuration file ", filename, ": ", err)
		panic(errors.Wrapf(err, "Could not read data from config file %s", filename))
	}

	c := &Config{}
	err = json.Unmarshal(cfgData, c)
	if err != nil {
		configLog.Fatal("Could not unmarshal data from ", filename, ", err=", err)
		panic(errors.Wrapf(err, "Could not unmarshal json data from config file %s", filename))
	}

	configLog.Info("Configuration read from ", filename)
	return c
}
