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

package codec

import (
	"bytes"
	"fmt"

	rerrors "github.com/logrange/range/pkg/utils/errors"
	"github.com/logrange/range/pkg/utils/encoding/xbinary"
	"github.com/pkg/errors"
)

type (
	// Encoder writes primitive values into an in-memory buffer. Integers are
	// written big-endian with fixed size, lengths of strings and byte slices
	// are variable-size unsigned integers.
	Encoder struct {
		buf    bytes.Buffer
		ow     xbinary.ObjectsWriter
		closed bool
	}
)

// ErrEncodingMismatch is returned when the data could not be decoded the way
// it was expected to be.
var ErrEncodingMismatch = fmt.Errorf("encoding mismatch")

func NewEncoder() *Encoder {
	e := new(Encoder)
	e.ow.Writer = &e.buf
	return e
}

func (e *Encoder) check() error {
	if e.closed {
		return rerrors.ClosedState
	}
	return nil
}

func (e *Encoder) WriteByte(v byte) error {
	if err := e.check(); err != nil {
		return err
	}
	_, err := e.ow.WriteByte(v)
	return err
}

func (e *Encoder) WriteBool(v bool) error {
	if v {
		return e.WriteByte(1)
	}
	return e.WriteByte(0)
}

// WriteInt writes v as 4 bytes
func (e *Encoder) WriteInt(v int32) error {
	if err := e.check(); err != nil {
		return err
	}
	_, err := e.ow.WriteUint32(uint32(v))
	return err
}

// WriteLong writes v as 8 bytes
func (e *Encoder) WriteLong(v int64) error {
	if err := e.check(); err != nil {
		return err
	}
	_, err := e.ow.WriteUint64(uint64(v))
	return err
}

// WriteUint writes v in variable-size form
func (e *Encoder) WriteUint(v uint64) error {
	if err := e.check(); err != nil {
		return err
	}
	_, err := e.ow.WriteUint(uint(v))
	return err
}

func (e *Encoder) WriteString(v string) error {
	if err := e.check(); err != nil {
		return err
	}
	_, err := e.ow.WriteString(v)
	return err
}

func (e *Encoder) WriteBytes(v []byte) error {
	if err := e.check(); err != nil {
		return err
	}
	_, err := e.ow.WriteBytes(v)
	return err
}

// Bytes returns the encoded data. The slice is valid until the next write or
// Reset.
func (e *Encoder) Bytes() []byte {
	return e.buf.Bytes()
}

// Len returns the number of encoded bytes
func (e *Encoder) Len() int {
	return e.buf.Len()
}

// Reset drops all written data and opens the encoder for writing again
func (e *Encoder) Reset() {
	e.buf.Reset()
	e.closed = false
}

// Close finalizes the encoder. Writes after Close return an error, but the
// data is still available via Bytes.
func (e *Encoder) Close() error {
	if e.closed {
		return rerrors.ClosedState
	}
	e.closed = true
	return nil
}

// WriteValue writes v with the value codec vc
func WriteValue[T any](e *Encoder, vc Value[T], v T) error {
	return vc.Write(e, v)
}

func mismatch(err error, what string, off int) error {
	return errors.Wrapf(ErrEncodingMismatch, "could not read %s at offset %d: %s", what, off, err)
}
