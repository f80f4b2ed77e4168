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

package cmd

import (
	"fmt"
	"io/ioutil"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/jrivets/log4g"
	"github.com/pkg/errors"
)

// PidFile is a pid file guarded by a file lock. Only one process can hold
// the file locked at a time.
type PidFile struct {
	fn     string
	fl     *flock.Flock
	logger log4g.Logger
}

// NewPidFile creates new PidFile struct by the file name
func NewPidFile(fn string) *PidFile {
	return &PidFile{fn: fn, logger: log4g.GetLogger("cmd.PidFile")}
}

// Interrupt reads the pid file and sends the interrupt signal to the process
func (pf *PidFile) Interrupt() error {
	pid, err := pf.ReadPid()
	if err != nil {
		return err
	}

	if pid == -1 {
		return errors.Errorf("not running, no pid in %s", pf.fn)
	}

	p, err := os.FindProcess(pid)
	if err != nil {
		return errors.Wrapf(err, "there is a process pid=%d, but could not access to the process", pid)
	}

	if err = p.Signal(os.Interrupt); err != nil {
		return errors.Wrapf(err, "could not send signal to pid=%d", pid)
	}
	pf.logger.Info("Interrupt(): sent interrupt notification to process pid=", pid)
	return nil
}

// ReadPid reads the pid file. It returns -1 if the file does not exist.
func (pf *PidFile) ReadPid() (int, error) {
	res, err := ioutil.ReadFile(pf.fn)
	if os.IsNotExist(err) {
		return -1, nil
	}
	if err != nil {
		return -1, errors.Wrapf(err, "could not read %s", pf.fn)
	}

	content := strings.TrimSpace(string(res))
	if len(content) > 10 {
		return -1, fmt.Errorf("wrong content of %s", pf.fn)
	}

	pid, err := strconv.ParseInt(content, 10, 64)
	if err != nil {
		return -1, fmt.Errorf("could not parse content=%q of the file %s", content, pf.fn)
	}
	return int(pid), nil
}

// Lock acquires the pid file and writes the current process id there
func (pf *PidFile) Lock() error {
	if pf.fl != nil {
		return errors.Errorf("%s is already locked", pf.fn)
	}

	plock := flock.New(pf.fn)
	if l, err := plock.TryLock(); err != nil {
		return errors.Wrapf(err, "could not get lock for %s", pf.fn)
	} else if !l {
		return errors.Errorf("%s is locked by another process, already running?", pf.fn)
	}

	if err := pf.writePid(); err != nil {
		plock.Unlock()
		return errors.Wrapf(err, "could not write current pid to %s", pf.fn)
	}
	pf.logger.Info("Lock(): locked pid file ", pf.fn)
	pf.fl = plock
	return nil
}

// Unlock releases resources acquired by Lock and removes the pid file
func (pf *PidFile) Unlock() error {
	if pf.fl == nil {
		return errors.Errorf("%s is not locked", pf.fn)
	}
	os.Remove(pf.fn)
	err := pf.fl.Unlock()
	pf.fl = nil
	return err
}

func (pf *PidFile) writePid() error {
	return ioutil.WriteFile(pf.fn, []byte(strconv.Itoa(os.Getpid())), 0640)
}

// RemoveFlag removes the flag name from args. Both "-name" and "--name" forms
// are removed, as well as "--name=value". It returns new slice.
func RemoveFlag(args []string, name string) []string {
	if len(name) == 0 {
		return args
	}

	res := make([]string, 0, len(args))
	for _, a := range args {
		f := strings.TrimLeft(a, "-")
		if len(f) < len(a) && (f == name || strings.HasPrefix(f, name+"=")) {
			continue
		}
		res = append(res, a)
	}
	return res
}

// RunCommand starts the command c with params detached and waits a second to
// be sure the process did not die right away.
func RunCommand(c string, params ...string) error {
	fmt.Printf("Starting command %s with params %v ... \n", c, params)
	cmd := exec.Command(c, params...)
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "could not run command %s with params=%v", c, params)
	}

	sigChan := make(chan os.Signal, 1)
	defer signal.Stop(sigChan)

	signal.Notify(sigChan, syscall.SIGCHLD)
	select {
	case <-sigChan:
		return errors.Errorf("the process %s could not be started", c)
	case <-time.After(time.Second):
		fmt.Printf("Started. pid=%d\n", cmd.Process.Pid)
	}
	return nil
}
