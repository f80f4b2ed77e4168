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

package exchange

import (
	"bytes"
	"testing"

	"github.com/logrange/range/pkg/utils/encoding/xbinary"
)

func marshalWritable(t *testing.T, w xbinary.Writable) []byte {
	var b bytes.Buffer
	n, err := w.WriteTo(&xbinary.ObjectsWriter{Writer: &b})
	if err != nil || n != b.Len() {
		t.Fatal("could not write the object n=", n, ", err=", err)
	}
	return b.Bytes()
}
