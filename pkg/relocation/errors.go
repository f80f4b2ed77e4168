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
	"bytes"
	"fmt"

	"github.com/logrange/distcol/pkg/cluster"
	"github.com/logrange/distcol/pkg/codec"
	"github.com/pkg/errors"
)

type (
	// DuplicateKeyError is returned by a deserializer when an arriving key
	// (or range) is already held by the receiving site.
	DuplicateKeyError struct {
		Rank cluster.Rank
		Key  interface{}
	}

	// SiteError is the failure of one site in a relocation round
	SiteError struct {
		Rank cluster.Rank
		Err  error
	}

	// RoundError is returned by Manager.Sync when any site failed in the
	// round. Every site of the group gets the same list of failures, ordered
	// by rank.
	RoundError struct {
		Failures []SiteError
	}

	serializerError struct {
		tag string
		dst cluster.Rank
		err error
	}

	// remoteError is the failure reported by another site in the status round
	remoteError struct {
		kind byte
		msg  string
	}
)

var (
	// ErrDuplicateKeyOnArrival matches DuplicateKeyError
	ErrDuplicateKeyOnArrival = fmt.Errorf("duplicate key on arrival")

	// ErrRoundAborted is the failure of a site which could not serialize its
	// requests. The site does not send any data in the round.
	ErrRoundAborted = fmt.Errorf("relocation round is aborted")
)

// failure kinds in the status round
const (
	kindOk byte = iota
	kindAborted
	kindDuplicate
	kindMismatch
	kindOther
)

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("site %d already has the key %v", e.Rank, e.Key)
}

func (e *DuplicateKeyError) Is(target error) bool {
	return target == ErrDuplicateKeyOnArrival
}

func (e SiteError) Error() string {
	return fmt.Sprintf("site %d: %s", e.Rank, e.Err)
}

func (e SiteError) Unwrap() error {
	return e.Err
}

func (e *RoundError) Error() string {
	var b bytes.Buffer
	b.WriteString(fmt.Sprintf("relocation round failed on %d site(s): ", len(e.Failures)))
	for i, f := range e.Failures {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(f.Error())
	}
	return b.String()
}

func (e *RoundError) Unwrap() []error {
	res := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		res[i] = f
	}
	return res
}

// Failed returns the ranks of the failed sites
func (e *RoundError) Failed() []cluster.Rank {
	res := make([]cluster.Rank, len(e.Failures))
	for i, f := range e.Failures {
		res[i] = f.Rank
	}
	return res
}

func (e *serializerError) Error() string {
	return fmt.Sprintf("serializer for %q to site %d failed: %s", e.tag, e.dst, e.err)
}

func (e *serializerError) Unwrap() error {
	return e.err
}

func (e *serializerError) Is(target error) bool {
	return target == ErrRoundAborted
}

func (e *remoteError) Error() string {
	return e.msg
}

func (e *remoteError) Is(target error) bool {
	switch e.kind {
	case kindAborted:
		return target == ErrRoundAborted
	case kindDuplicate:
		return target == ErrDuplicateKeyOnArrival
	case kindMismatch:
		return target == codec.ErrEncodingMismatch
	}
	return false
}

func kindOf(err error) byte {
	switch {
	case err == nil:
		return kindOk
	case errors.Is(err, ErrRoundAborted):
		return kindAborted
	case errors.Is(err, ErrDuplicateKeyOnArrival):
		return kindDuplicate
	case errors.Is(err, codec.ErrEncodingMismatch):
		return kindMismatch
	}
	return kindOther
}
