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
	"fmt"
)

// Kind is the kind of a bencoded value.
type Kind uint8

// Predefine the kinds of the bencoded values.
const (
	IntKind Kind = iota + 1
	BytesKind
	ListKind
	DictKind
)

func (k Kind) String() string {
	switch k {
	case IntKind:
		return "integer"
	case BytesKind:
		return "string"
	case ListKind:
		return "list"
	case DictKind:
		return "dict"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Span is the position of a value in the buffer it was decoded from.
type Span struct {
	Offset int
	Size   int
}

// End returns the offset just after the value.
func (s Span) End() int { return s.Offset + s.Size }

// Raw returns the encoded bytes of the value in buf, which must be
// the buffer that the value was decoded from.
func (s Span) Raw(buf []byte) []byte { return buf[s.Offset:s.End()] }

// Value is a node of the decoded tree, which is one of *Int, *Bytes,
// *List and *Dict.
type Value interface {
	Kind() Kind
	Span() Span
	String() string

	dump(buf *bytes.Buffer)
}

var (
	_ Value = new(Int)
	_ Value = new(Bytes)
	_ Value = new(List)
	_ Value = new(Dict)
)

// Int is a bencoded integer.
type Int struct {
	Val int64
	Pos Span
}

// Kind implements the interface Value.
func (i *Int) Kind() Kind { return IntKind }

// Span implements the interface Value.
func (i *Int) Span() Span { return i.Pos }

func (i *Int) String() string { return valueString(i) }

// Bytes is a bencoded byte string, which may contain any byte.
type Bytes struct {
	Data []byte
	Pos  Span
}

// Kind implements the interface Value.
func (b *Bytes) Kind() Kind { return BytesKind }

// Span implements the interface Value.
func (b *Bytes) Span() Span { return b.Pos }

func (b *Bytes) String() string { return valueString(b) }

// Len returns the length of the byte string.
func (b *Bytes) Len() int { return len(b.Data) }

// Text returns the byte string as a Go string, that's, string(b.Data).
func (b *Bytes) Text() string { return string(b.Data) }

// List is a bencoded list.
type List struct {
	Items []Value
	Pos   Span
}

// Kind implements the interface Value.
func (l *List) Kind() Kind { return ListKind }

// Span implements the interface Value.
func (l *List) Span() Span { return l.Pos }

func (l *List) String() string { return valueString(l) }

// Len returns the number of the items.
func (l *List) Len() int { return len(l.Items) }

// Index returns the i-th item.
func (l *List) Index(i int) Value { return l.Items[i] }

// Entry is a key-value pair of a dict.
type Entry struct {
	Key   *Bytes
	Value Value
}

// Dict is a bencoded dict, which keeps the entries in the order of input.
//
// The lookup is linear and returns the first entry with the given key.
type Dict struct {
	Entries []Entry
	Pos     Span
}

// Kind implements the interface Value.
func (d *Dict) Kind() Kind { return DictKind }

// Span implements the interface Value.
func (d *Dict) Span() Span { return d.Pos }

func (d *Dict) String() string { return valueString(d) }

// Len returns the number of the entries.
func (d *Dict) Len() int { return len(d.Entries) }

// Lookup returns the value of the first entry whose key is equal to key.
func (d *Dict) Lookup(key string) (v Value, ok bool) {
	for _, e := range d.Entries {
		if string(e.Key.Data) == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Get is the same as Lookup, but returns nil if the key does not exist.
func (d *Dict) Get(key string) Value {
	v, _ := d.Lookup(key)
	return v
}

// GetInt returns the integer value of key.
func (d *Dict) GetInt(key string) (int64, bool) {
	if v, ok := d.Get(key).(*Int); ok {
		return v.Val, true
	}
	return 0, false
}

// GetBytes returns the byte string value of key.
func (d *Dict) GetBytes(key string) ([]byte, bool) {
	if v, ok := d.Get(key).(*Bytes); ok {
		return v.Data, true
	}
	return nil, false
}

// GetList returns the list value of key.
func (d *Dict) GetList(key string) (*List, bool) {
	v, ok := d.Get(key).(*List)
	return v, ok
}

// GetDict returns the dict value of key.
func (d *Dict) GetDict(key string) (*Dict, bool) {
	v, ok := d.Get(key).(*Dict)
	return v, ok
}

// Keys returns all the keys in the order of input, including duplicates.
func (d *Dict) Keys() [][]byte {
	keys := make([][]byte, len(d.Entries))
	for i, e := range d.Entries {
		keys[i] = e.Key.Data
	}
	return keys
}

// Sorted reports whether the keys are in strictly ascending byte order,
// which is required by the canonical encoding.
func (d *Dict) Sorted() bool {
	for i := 1; i < len(d.Entries); i++ {
		if bytes.Compare(d.Entries[i-1].Key.Data, d.Entries[i].Key.Data) >= 0 {
			return false
		}
	}
	return true
}

// Duplicates returns the keys that occur more than once,
// each reported once, in the order of their first repetition.
func (d *Dict) Duplicates() (keys [][]byte) {
	seen := make(map[string]int, len(d.Entries))
	for _, e := range d.Entries {
		k := string(e.Key.Data)
		if seen[k]++; seen[k] == 2 {
			keys = append(keys, e.Key.Data)
		}
	}
	return
}

// Document is the result of decoding a buffer, which is a sequence of
// the top-level values.
type Document struct {
	Values []Value

	// Size is the number of the decoded bytes. It is less than the length
	// of the buffer if the decoding stopped at a stray 'e'.
	Size int

	Warnings []Warning
}

// Len returns the number of the top-level values.
func (d *Document) Len() int { return len(d.Values) }

// Root returns the first top-level value, or nil if there is none.
func (d *Document) Root() Value {
	if len(d.Values) == 0 {
		return nil
	}
	return d.Values[0]
}
