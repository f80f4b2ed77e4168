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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type testRec struct {
	Name string
	Cnt  int
}

func TestEncodeDecode(t *testing.T) {
	e := NewEncoder()
	assert.Nil(t, e.WriteByte(7))
	assert.Nil(t, e.WriteBool(true))
	assert.Nil(t, e.WriteInt(-5))
	assert.Nil(t, e.WriteLong(-1234567890123))
	assert.Nil(t, e.WriteUint(300))
	assert.Nil(t, e.WriteString("hello"))
	assert.Nil(t, e.WriteBytes([]byte{1, 2, 3}))
	assert.Nil(t, WriteValue(e, JSON[testRec](), testRec{"a", 3}))
	assert.Nil(t, e.Close())

	err := e.WriteByte(1)
	assert.NotNil(t, err)

	d := NewDecoder(e.Bytes())
	b, err := d.ReadByte()
	assert.Nil(t, err)
	assert.Equal(t, byte(7), b)
	bl, _ := d.ReadBool()
	assert.True(t, bl)
	i, _ := d.ReadInt()
	assert.Equal(t, int32(-5), i)
	l, _ := d.ReadLong()
	assert.Equal(t, int64(-1234567890123), l)
	u, _ := d.ReadUint()
	assert.Equal(t, uint64(300), u)
	s, _ := d.ReadString()
	assert.Equal(t, "hello", s)
	bs, _ := d.ReadBytes()
	assert.Equal(t, []byte{1, 2, 3}, bs)
	rec, err := ReadValue(d, JSON[testRec]())
	assert.Nil(t, err)
	assert.Equal(t, testRec{"a", 3}, rec)
	assert.Equal(t, 0, d.Remaining())
}

func TestShortRead(t *testing.T) {
	e := NewEncoder()
	e.WriteInt(1)
	d := NewDecoder(e.Bytes())
	_, err := d.ReadLong()
	if !errors.Is(err, ErrEncodingMismatch) {
		t.Fatal("expected encoding mismatch, but got ", err)
	}
	assert.Equal(t, 4, d.Remaining())

	d = NewDecoder([]byte{2})
	_, err = d.ReadBool()
	assert.True(t, errors.Is(err, ErrEncodingMismatch))
}

func TestReset(t *testing.T) {
	e := NewEncoder()
	e.WriteString("abc")
	e.Close()
	e.Reset()
	assert.Equal(t, 0, e.Len())
	assert.Nil(t, Int64().Write(e, 42))
	assert.Equal(t, 8, e.Len())

	v, err := Int64().Read(NewDecoder(e.Bytes()))
	assert.Nil(t, err)
	assert.Equal(t, int64(42), v)
}

func TestOversizedLength(t *testing.T) {
	huge := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x01, 'a', 'b'}

	d := NewDecoder(huge)
	_, err := d.ReadString()
	if !errors.Is(err, ErrEncodingMismatch) {
		t.Fatal("expected encoding mismatch for string, but got ", err)
	}
	assert.Equal(t, len(huge), d.Remaining())

	_, err = d.ReadBytes()
	assert.True(t, errors.Is(err, ErrEncodingMismatch))

	// length fits a varint but exceeds the buffer by one byte
	d = NewDecoder([]byte{3, 'a', 'b'})
	_, err = d.ReadBytes()
	assert.True(t, errors.Is(err, ErrEncodingMismatch))
	assert.Equal(t, 3, d.Remaining())

	e := NewEncoder()
	e.WriteString("")
	e.WriteBytes([]byte("xy"))
	d = NewDecoder(e.Bytes())
	s, err := d.ReadString()
	assert.Nil(t, err)
	assert.Equal(t, "", s)
	b, err := d.ReadBytes()
	assert.Nil(t, err)
	assert.Equal(t, []byte("xy"), b)
	assert.Equal(t, 0, d.Remaining())
}
