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

package chunked

import (
	"sync"

	"github.com/jrivets/log4g"
	"github.com/logrange/range/pkg/utils/errors"
)

type (
	// Executor runs tasks asynchronously
	Executor interface {
		// Execute schedules the task. It returns an error if the task
		// could not be accepted.
		Execute(task func()) error
	}

	// WorkerPool is an Executor with a fixed number of goroutines
	WorkerPool struct {
		logger log4g.Logger
		lock   sync.RWMutex
		tasks  chan func()
		wg     sync.WaitGroup
		closed bool
	}
)

// NewWorkerPool starts n worker goroutines
func NewWorkerPool(n int) *WorkerPool {
	if n <= 0 {
		n = 1
	}
	wp := new(WorkerPool)
	wp.logger = log4g.GetLogger("chunked.WorkerPool")
	wp.tasks = make(chan func(), n)
	wp.wg.Add(n)
	for i := 0; i < n; i++ {
		go wp.worker()
	}
	wp.logger.Debug("NewWorkerPool(): started ", n, " workers")
	return wp
}

func (wp *WorkerPool) worker() {
	defer wp.wg.Done()
	for t := range wp.tasks {
		t()
	}
}

// Execute is part of Executor
func (wp *WorkerPool) Execute(task func()) error {
	wp.lock.RLock()
	defer wp.lock.RUnlock()
	if wp.closed {
		return errors.ClosedState
	}
	wp.tasks <- task
	return nil
}

// Close stops the workers after all scheduled tasks are done
func (wp *WorkerPool) Close() error {
	wp.lock.Lock()
	if wp.closed {
		wp.lock.Unlock()
		return errors.ClosedState
	}
	wp.closed = true
	close(wp.tasks)
	wp.lock.Unlock()

	wp.wg.Wait()
	wp.logger.Debug("Close(): all workers are stopped")
	return nil
}
