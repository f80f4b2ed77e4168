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
	"encoding/json"

	"github.com/pkg/errors"
)

type (
	// Value describes how values of type T are written to an Encoder and read
	// back from a Decoder.
	Value[T any] interface {
		Write(e *Encoder, v T) error
		Read(d *Decoder) (T, error)
	}

	stringValue struct{}
	int64Value  struct{}
	intValue    struct{}
	bytesValue  struct{}
	jsonValue[T any] struct{}
)

func String() Value[string] {
	return stringValue{}
}

func Int64() Value[int64] {
	return int64Value{}
}

func Int() Value[int] {
	return intValue{}
}

func Bytes() Value[[]byte] {
	return bytesValue{}
}

// JSON returns a codec which writes values as JSON documents
func JSON[T any]() Value[T] {
	return jsonValue[T]{}
}

func (stringValue) Write(e *Encoder, v string) error { return e.WriteString(v) }
func (stringValue) Read(d *Decoder) (string, error)  { return d.ReadString() }

func (int64Value) Write(e *Encoder, v int64) error { return e.WriteLong(v) }
func (int64Value) Read(d *Decoder) (int64, error)  { return d.ReadLong() }

func (intValue) Write(e *Encoder, v int) error { return e.WriteLong(int64(v)) }
func (intValue) Read(d *Decoder) (int, error) {
	v, err := d.ReadLong()
	return int(v), err
}

func (bytesValue) Write(e *Encoder, v []byte) error { return e.WriteBytes(v) }
func (bytesValue) Read(d *Decoder) ([]byte, error)  { return d.ReadBytes() }

func (jsonValue[T]) Write(e *Encoder, v T) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "could not marshal %T to json", v)
	}
	return e.WriteBytes(buf)
}

func (jsonValue[T]) Read(d *Decoder) (T, error) {
	var res T
	buf, err := d.ReadBytes()
	if err != nil {
		return res, err
	}
	if err := json.Unmarshal(buf, &res); err != nil {
		return res, errors.Wrapf(ErrEncodingMismatch, "could not unmarshal json into %T: %s", res, err)
	}
	return res, nil
}
