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
	"github.com/logrange/range/pkg/utils/encoding/xbinary"
	"github.com/pkg/errors"
)

type (
	// Decoder reads values written by Encoder from a byte slice
	Decoder struct {
		buf []byte
		pos int
	}
)

func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Remaining returns number of unread bytes
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.pos
}

// Offset returns number of bytes read so far
func (d *Decoder) Offset() int {
	return d.pos
}

func (d *Decoder) ReadByte() (byte, error) {
	n, v, err := xbinary.UnmarshalByte(d.buf[d.pos:])
	if err != nil {
		return 0, mismatch(err, "byte", d.pos)
	}
	d.pos += n
	return v, nil
}

func (d *Decoder) ReadBool() (bool, error) {
	b, err := d.ReadByte()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, errors.Wrapf(ErrEncodingMismatch, "unexpected bool value %d at offset %d", b, d.pos-1)
}

func (d *Decoder) ReadInt() (int32, error) {
	n, v, err := xbinary.UnmarshalUint32(d.buf[d.pos:])
	if err != nil {
		return 0, mismatch(err, "int", d.pos)
	}
	d.pos += n
	return int32(v), nil
}

func (d *Decoder) ReadLong() (int64, error) {
	n, v, err := xbinary.UnmarshalUint64(d.buf[d.pos:])
	if err != nil {
		return 0, mismatch(err, "long", d.pos)
	}
	d.pos += n
	return int64(v), nil
}

func (d *Decoder) ReadUint() (uint64, error) {
	n, v, err := xbinary.UnmarshalUint(d.buf[d.pos:])
	if err != nil {
		return 0, mismatch(err, "uint", d.pos)
	}
	d.pos += n
	return uint64(v), nil
}

// ReadString returns a string which does not refer to the decoder buffer
func (d *Decoder) ReadString() (string, error) {
	b, err := d.readLenPrefixed("string")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadBytes returns a copy of the next byte slice
func (d *Decoder) ReadBytes() ([]byte, error) {
	b, err := d.readLenPrefixed("bytes")
	if err != nil {
		return nil, err
	}
	res := make([]byte, len(b))
	copy(res, b)
	return res, nil
}

// readLenPrefixed returns the next length-prefixed slice of the buffer. The
// length is checked against the unread bytes before slicing.
func (d *Decoder) readLenPrefixed(what string) ([]byte, error) {
	n, uln, err := xbinary.UnmarshalUint(d.buf[d.pos:])
	if err != nil {
		return nil, mismatch(err, what+" length", d.pos)
	}
	if uint64(uln) > uint64(d.Remaining()-n) {
		return nil, errors.Wrapf(ErrEncodingMismatch, "%s of %d bytes at offset %d, but only %d bytes left",
			what, uint64(uln), d.pos, d.Remaining()-n)
	}
	from := d.pos + n
	to := from + int(uln)
	d.pos = to
	return d.buf[from:to], nil
}

// ReadValue reads a value with the value codec vc
func ReadValue[T any](d *Decoder, vc Value[T]) (T, error) {
	return vc.Read(d)
}
