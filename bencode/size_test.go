// Copyright 2024 xgfone
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

package bencode

import (
	"bytes"
	"math/rand"
	"testing"

	jackpal "github.com/jackpal/bencode-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	zeebo "github.com/zeebo/bencode"
)

// randomValue generates a random value that jackpal/bencode-go can encode.
func randomValue(r *rand.Rand, depth int) interface{} {
	n := r.Intn(4)
	if depth <= 0 {
		n %= 2
	}

	switch n {
	case 0:
		return r.Int63() - r.Int63()
	case 1:
		b := make([]byte, r.Intn(24))
		r.Read(b)
		return string(b)
	case 2:
		items := make([]interface{}, r.Intn(5))
		for i := range items {
			items[i] = randomValue(r, depth-1)
		}
		return items
	default:
		m := make(map[string]interface{}, 4)
		for i, _len := 0, r.Intn(5); i < _len; i++ {
			key := make([]byte, 1+r.Intn(8))
			r.Read(key)
			m[string(key)] = randomValue(r, depth-1)
		}
		return m
	}
}

func walk(v Value, f func(Value)) {
	f(v)
	switch v := v.(type) {
	case *List:
		for _, item := range v.Items {
			walk(item, f)
		}
	case *Dict:
		for _, e := range v.Entries {
			walk(e.Key, f)
			walk(e.Value, f)
		}
	}
}

func TestDecodeGeneratedDocuments(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		var expects []interface{}
		buf := new(bytes.Buffer)
		for j, _len := 0, 1+r.Intn(3); j < _len; j++ {
			v := randomValue(r, 3)
			require.NoError(t, jackpal.Marshal(buf, v))
			expects = append(expects, v)
		}
		b := buf.Bytes()

		doc, err := Decode(b)
		require.NoError(t, err, "%q", b)
		require.Equal(t, len(expects), doc.Len())
		assert.Equal(t, len(b), doc.Size)
		assert.Empty(t, doc.Warnings)

		var total int
		for j, root := range doc.Values {
			size, err := SizeAt(b, total)
			require.NoError(t, err)
			assert.Equal(t, Span{Offset: total, Size: size}, root.Span())
			assert.Equal(t, expects[j], Interface(root))
			total += size
		}
		assert.Equal(t, len(b), total)

		for _, root := range doc.Values {
			walk(root, func(v Value) {
				span := v.Span()
				size, err := SizeAt(b, span.Offset)
				if assert.NoError(t, err) {
					assert.Equal(t, span.Size, size)
				}

				if bs, ok := v.(*Bytes); ok {
					body := span.Raw(b)[span.Size-bs.Len():]
					assert.Equal(t, body, bs.Data)
				} else if d, ok := v.(*Dict); ok {
					assert.True(t, d.Sorted())
				}
			})
		}
	}
}

func TestSizeAtStrayEnd(t *testing.T) {
	b := []byte("d3:cow3:mooei42ee")

	doc, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, len(b)-1, doc.Size)

	var total int
	for range doc.Values {
		n, err := SizeAt(b, total)
		require.NoError(t, err)
		total += n
	}
	assert.Equal(t, len(b)-1, total)
}

func TestSizeAtErrors(t *testing.T) {
	for _, input := range []string{"", "i42", "l4:spam", "d3:foo", "5:spam", "x", "di1ei2ee"} {
		if _, err := SizeAt([]byte(input), 0); err == nil {
			t.Errorf("%q: expect an error, but got nil", input)
		}
	}

	// The structure of "i-0e" is fine, so only Decode rejects it.
	n, err := SizeAt([]byte("i-0e"), 0)
	assert.NoError(t, err)
	assert.Equal(t, 4, n)

	_, err = SizeAt([]byte("i1e"), -1)
	assert.Error(t, err)
}

func TestInterfaceCompatible(t *testing.T) {
	inputs := []string{
		"i42e",
		"4:spam",
		"l4:spami-3ee",
		"d3:cow3:moo4:spaml1:a1:bee",
		"d8:announce30:udp://tracker.example.org:69694:infod6:lengthi1048576e4:name8:file.bin12:piece lengthi262144eee",
	}

	for _, input := range inputs {
		var expect interface{}
		require.NoError(t, zeebo.DecodeString(input, &expect))

		doc, err := DecodeString(input)
		require.NoError(t, err)
		assert.Equal(t, expect, Interface(doc.Root()), input)
	}
}
