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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/jrivets/log4g"
	"github.com/logrange/distcol/cmd"
	"github.com/logrange/distcol/pkg/cluster"
	"github.com/logrange/distcol/server"
	"github.com/pkg/errors"
	"gopkg.in/urfave/cli.v2"
)

const (
	Version = "0.1.0"
)

const (
	// Common flag names
	argLogCfgFile = "log-config-file"
	argCfgFile    = "config-file"
	argPidFile    = "pid-file"

	// Start command flag names
	argStartRank       = "rank"
	argStartPeers      = "peers"
	argStartListenAddr = "listen-addr"
	argStartWorkload   = "workload"
	argStartElements   = "elements"
	argStartRounds     = "rounds"
	argStartAsDaemon   = "daemon"
)

var log = log4g.GetLogger("distcol")
var cfg = server.GetDefaultConfig()

func main() {
	defer log4g.Shutdown()

	app := &cli.App{
		Name:    "distcol",
		Version: Version,
		Usage:   "Distributed range-partitioned collections site",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  argLogCfgFile,
				Usage: "The log4g configuration file name",
				Value: "/opt/distcol/log4g.properties",
			},
			&cli.StringFlag{
				Name:  argCfgFile,
				Usage: "The distcol configuration file name",
				Value: "/opt/distcol/config.json",
			},
		},
		Before: before,
		Commands: []*cli.Command{
			&cli.Command{
				Name:   "start",
				Usage:  "Run the site",
				Action: runServer,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  argStartRank,
						Usage: "The site rank, index of the site address in the peers list",
						Value: int(cfg.Rank),
					},
					&cli.StringSliceFlag{
						Name:  argStartPeers,
						Usage: "RPC addresses of all sites of the group, e.g. \"10.0.0.1:9977,10.0.0.2:9977\"",
					},
					&cli.StringFlag{
						Name:  argStartListenAddr,
						Usage: "The address the site listens on, if differs from its peers address",
					},
					&cli.StringFlag{
						Name:  argStartWorkload,
						Usage: "Workload to run, one of: \"none\", \"rebalance\", \"chunked\" or \"bag\"",
						Value: cfg.Workload.Type,
					},
					&cli.IntFlag{
						Name:  argStartElements,
						Usage: "Number of elements every site starts the workload with, 0 means default",
					},
					&cli.IntFlag{
						Name:  argStartRounds,
						Usage: "Number of the workload relocation rounds, 0 means default",
					},
					&cli.StringFlag{
						Name:  argPidFile,
						Usage: "The pid file name",
						Value: cfg.PidFile,
					},
					&cli.BoolFlag{
						Name:  argStartAsDaemon,
						Usage: "starting as a daemon (detached from the console).",
					},
				},
			},
			&cli.Command{
				Name:   "stop",
				Usage:  "Stop the site started with the pid file",
				Action: stopServer,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  argPidFile,
						Usage: "The pid file name",
						Value: cfg.PidFile,
					},
				},
			},
		},
	}

	sort.Sort(cli.FlagsByName(app.Flags))
	for _, c := range app.Commands {
		sort.Sort(cli.FlagsByName(c.Flags))
	}
	sort.Sort(cli.CommandsByName(app.Commands))

	if err := app.Run(os.Args); err != nil {
		fmt.Println("Error: ", err)
		os.Exit(1)
	}
}

func before(c *cli.Context) error {
	logCfgFile := c.String(argLogCfgFile)
	if logCfgFile != "" {
		if _, err := os.Stat(logCfgFile); os.IsNotExist(err) {
			log.Warn("No file ", logCfgFile, " will use default log4g configuration")
		} else {
			log.Info("Loading log4g config from ", logCfgFile)
			err := log4g.ConfigF(logCfgFile)
			if err != nil {
				err := errors.Wrapf(err, "Could not parse %s file as a log4g configuration, please check syntax ", logCfgFile)
				log.Fatal(err)
				return err
			}
		}
	}

	fc := server.ReadConfigFromFile(c.String(argCfgFile))
	if fc != nil {
		// overwrite default settings from file
		cfg.Apply(fc)
	}

	return nil
}

func runServer(c *cli.Context) error {
	if c.Args().Len() > 0 {
		return fmt.Errorf("no arguments expected, but %s", c.Args())
	}

	// fill up config
	applyParamsToCfg(c)

	if c.Bool(argStartAsDaemon) {
		if cfg.PidFile == "" {
			fmt.Println("Warning: starting as daemon without pid file. There will be no way to stop it via stop command.")
		}
		res := cmd.RemoveFlag(os.Args[1:], argStartAsDaemon)
		return cmd.RunCommand(os.Args[0], res...)
	}

	if cfg.PidFile != "" {
		pf := cmd.NewPidFile(cfg.PidFile)
		if err := pf.Lock(); err != nil {
			return err
		}
		defer pf.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		select {
		case s := <-sigChan:
			log.Info("Got signal \"", s, "\", cancelling context ")
			cancel()
		}
	}()

	return server.Start(ctx, cfg)
}

func stopServer(c *cli.Context) error {
	pfn := c.String(argPidFile)
	if pfn == "" {
		pfn = cfg.PidFile
	}
	if pfn == "" {
		return fmt.Errorf("could not determine the site pid, no pid file is provided")
	}
	return cmd.NewPidFile(pfn).Interrupt()
}

func applyParamsToCfg(c *cli.Context) {
	dc := server.GetDefaultConfig()
	if r := c.Int(argStartRank); int(dc.Rank) != r {
		cfg.Rank = cluster.Rank(r)
	}
	if peers := c.StringSlice(argStartPeers); len(peers) > 0 {
		cfg.Peers = make([]cluster.HostAddr, len(peers))
		for i, p := range peers {
			cfg.Peers[i] = cluster.HostAddr(p)
		}
	}
	if la := c.String(argStartListenAddr); la != "" {
		cfg.Transport.ListenAddr = la
	}
	if wt := c.String(argStartWorkload); dc.Workload.Type != wt {
		cfg.Workload.Type = wt
	}
	setWorkloadParam("Elements", c.Int(argStartElements))
	setWorkloadParam("Rounds", c.Int(argStartRounds))
	if pf := c.String(argPidFile); dc.PidFile != pf {
		cfg.PidFile = pf
	}
}

func setWorkloadParam(name string, v int) {
	if v <= 0 {
		return
	}
	if cfg.Workload.Params == nil {
		cfg.Workload.Params = make(map[string]interface{})
	}
	cfg.Workload.Params[name] = v
}
