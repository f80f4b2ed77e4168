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
	"sync"

	"github.com/logrange/distcol/pkg/cluster"
	"github.com/logrange/distcol/pkg/codec"
	rerrors "github.com/logrange/range/pkg/utils/errors"
	"github.com/pkg/errors"
)

type (
	// Serializer writes the data of one relocation request. It runs inside
	// Manager.Sync on the sending site, so it can remove the data it writes
	// from the local collection.
	Serializer func(enc *codec.Encoder) error

	// Deserializer reads what the Serializer registered under the same tag
	// wrote on the site src, and puts it into the local collection.
	Deserializer func(src cluster.Rank, dec *codec.Decoder) error

	// Registry keeps deserializers by tag. Every site of a group must
	// register the same tags.
	Registry struct {
		lock     sync.RWMutex
		handlers map[string]Deserializer
	}
)

func NewRegistry() *Registry {
	r := new(Registry)
	r.handlers = make(map[string]Deserializer)
	return r
}

// Register adds the deserializer d for the tag
func (r *Registry) Register(tag string, d Deserializer) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.handlers[tag]; ok {
		return errors.Wrapf(rerrors.AlreadyExists, "deserializer for tag %q", tag)
	}
	r.handlers[tag] = d
	return nil
}

// Unregister removes the deserializer for the tag, if it is there
func (r *Registry) Unregister(tag string) {
	r.lock.Lock()
	delete(r.handlers, tag)
	r.lock.Unlock()
}

// Get returns the deserializer by tag
func (r *Registry) Get(tag string) (Deserializer, bool) {
	r.lock.RLock()
	d, ok := r.handlers[tag]
	r.lock.RUnlock()
	return d, ok
}
