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

// Package workload contains relocation workloads a site daemon runs. A
// workload is collective: all sites of the group must run the same workload
// with the same parameters.
package workload

import (
	"context"
	"fmt"
	"sync"

	"github.com/jrivets/log4g"
	"github.com/logrange/distcol/pkg/exchange"
	"github.com/logrange/distcol/pkg/site"
	"github.com/mitchellh/mapstructure"
	"github.com/mohae/deepcopy"
	"github.com/pkg/errors"
)

type (
	// Config describes the workload by its type and free-form parameters,
	// which are specific for the type.
	Config struct {
		Type   string
		Params map[string]interface{}
	}

	// Params are the workload parameters decoded from Config.Params
	Params struct {
		// Name of the distributed collection the workload uses
		Name string
		// Elements is the number of elements every site starts with
		Elements int
		// Rounds is the number of relocation rounds
		Rounds int
		// ChunkSize is the fragment size for the chunked workload
		ChunkSize int
		// Workers is the number of goroutines for local parallel processing
		Workers int
	}

	// Runner is the component which runs the workload over the site exchanger
	Runner struct {
		Exchanger exchange.Exchanger `inject:""`
		Config    *Config            `inject:"workloadConfig"`

		logger log4g.Logger
		cancel context.CancelFunc
		wg     sync.WaitGroup
		lock   sync.Mutex
		err    error
	}

	runFunc func(ctx context.Context, s *site.Site, p Params) error
)

const (
	TypeRebalance = "rebalance"
	TypeChunked   = "chunked"
	TypeBag       = "bag"
	TypeNone      = "none"
)

var runners = map[string]runFunc{
	TypeRebalance: runRebalance,
	TypeChunked:   runChunked,
	TypeBag:       runBag,
	TypeNone:      func(ctx context.Context, s *site.Site, p Params) error { return nil },
}

var logger = log4g.GetLogger("workload")

func GetDefaultParams() Params {
	return Params{Name: "workload", Elements: 1000, Rounds: 3, ChunkSize: 100, Workers: 4}
}

// Copy returns a deep copy of the config
func (c Config) Copy() Config {
	return Config{Type: c.Type, Params: deepcopy.Copy(c.Params).(map[string]interface{})}
}

// Check returns an error if the config could not be run
func (c Config) Check() error {
	if _, ok := runners[c.Type]; !ok {
		return fmt.Errorf("unknown workload type %q", c.Type)
	}
	p, err := c.DecodeParams()
	if err != nil {
		return err
	}
	if p.Elements < 0 || p.Rounds < 0 || p.ChunkSize <= 0 || p.Workers <= 0 {
		return fmt.Errorf("wrong workload parameters %+v", p)
	}
	return nil
}

// DecodeParams returns the default parameters overwritten by c.Params
func (c Config) DecodeParams() (Params, error) {
	p := GetDefaultParams()
	if err := mapstructure.Decode(c.Params, &p); err != nil {
		return p, errors.Wrapf(err, "could not decode params of the workload %q", c.Type)
	}
	return p, nil
}

func (c Config) String() string {
	return fmt.Sprintf("{Type=%s, Params=%v}", c.Type, c.Params)
}

// Run runs the workload cfg on the site s
func Run(ctx context.Context, s *site.Site, cfg Config) error {
	rf, ok := runners[cfg.Type]
	if !ok {
		return fmt.Errorf("unknown workload type %q", cfg.Type)
	}
	p, err := cfg.DecodeParams()
	if err != nil {
		return err
	}
	logger.Info("Run(): site ", s.Rank(), " starts ", cfg.Type, " workload with ", fmt.Sprintf("%+v", p))
	return rf(ctx, s, p)
}

func NewRunner() *Runner {
	return new(Runner)
}

// Init is part of linker.Initializer. It starts the workload in background.
func (r *Runner) Init(ctx context.Context) error {
	if err := r.Config.Check(); err != nil {
		return err
	}
	r.logger = log4g.GetLogger("workload.Runner").WithId("{" + r.Exchanger.Rank().String() + "}").(log4g.Logger)

	s := site.New(r.Exchanger)
	ctx, r.cancel = context.WithCancel(ctx)
	cfg := r.Config.Copy()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		err := Run(ctx, s, cfg)
		if err != nil {
			r.logger.Error("Workload ", cfg.Type, " failed, err=", err)
		} else {
			r.logger.Info("Workload ", cfg.Type, " is done")
		}
		r.lock.Lock()
		r.err = err
		r.lock.Unlock()
	}()
	return nil
}

// Shutdown is part of linker.Shutdowner
func (r *Runner) Shutdown() {
	r.cancel()
	r.wg.Wait()
	r.logger.Info("Shutdown()")
}

// Err returns the workload result, it is nil while the workload is running
func (r *Runner) Err() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.err
}
