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
	"io/ioutil"
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPidFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "pidFileTest")
	require.Nil(t, err)
	defer os.RemoveAll(dir)

	fn := path.Join(dir, "distcol.pid")
	pf := NewPidFile(fn)
	pid, err := pf.ReadPid()
	assert.Nil(t, err)
	assert.Equal(t, -1, pid)
	assert.NotNil(t, pf.Interrupt())
	assert.NotNil(t, pf.Unlock())

	require.Nil(t, pf.Lock())
	assert.NotNil(t, pf.Lock())
	pid, err = pf.ReadPid()
	assert.Nil(t, err)
	assert.Equal(t, os.Getpid(), pid)

	assert.Nil(t, pf.Unlock())
	_, err = os.Stat(fn)
	assert.True(t, os.IsNotExist(err))

	require.Nil(t, ioutil.WriteFile(fn, []byte("abc"), 0640))
	_, err = pf.ReadPid()
	assert.NotNil(t, err)
}

func TestRemoveFlag(t *testing.T) {
	args := []string{"start", "--daemon", "-daemon=true", "--rank", "1", "--daemonize", "daemon"}
	assert.Equal(t, []string{"start", "--rank", "1", "--daemonize", "daemon"}, RemoveFlag(args, "daemon"))
	assert.Equal(t, args, RemoveFlag(args, ""))
}
