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

	"github.com/jrivets/log4g"
	"github.com/logrange/distcol/pkg/exchange"
	"github.com/logrange/distcol/pkg/workload"
	"github.com/logrange/linker"
)

// Start starts the site daemon using the configuration provided. It will
// stop it as soon as ctx is closed. The result of the workload is returned.
func Start(ctx context.Context, cfg *Config) error {
	if err := cfg.Check(); err != nil {
		return err
	}

	log := log4g.GetLogger("server")
	log.Info("Start with config:", cfg)

	runner := workload.NewRunner()
	injector := linker.New()
	injector.SetLogger(log4g.GetLogger("injector"))
	injector.Register(
		linker.Component{Name: "mainCtx", Value: ctx},
		linker.Component{Name: "workloadConfig", Value: &cfg.Workload},
		linker.Component{Name: "", Value: exchange.NewRpcExchanger(cfg.Rank, cfg.Peers, cfg.Transport)},
		linker.Component{Name: "", Value: runner},
	)
	injector.Init(ctx)

	select {
	case <-ctx.Done():

	}
	injector.Shutdown()

	return runner.Err()
}
