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
	"fmt"
	"strconv"
)

// DefaultMaxDepth is the default maximum nesting depth of the containers.
const DefaultMaxDepth = 1024

// DecodeConfig is used to configure the decoder.
type DecodeConfig struct {
	// If true, a stray 'e' at the top level is a TrailingData error.
	// Or, the decoding stops at it and a warning is recorded.
	Strict bool

	// If true, the non-canonical decimals, such as "-0", "i03e" and
	// "03:abc", are accepted and recorded as warnings.
	// Or, they are BadInteger or BadLengthPrefix errors.
	AllowNonCanonical bool

	MaxDepth int // Default: DefaultMaxDepth
}

func (c *DecodeConfig) set(conf ...DecodeConfig) {
	if len(conf) > 0 {
		*c = conf[0]
	}

	if c.MaxDepth <= 0 {
		c.MaxDepth = DefaultMaxDepth
	}
}

// Decode decodes all the top-level values in b.
//
// The decoding stops at the end of b or at a stray 'e' at the top level.
// No partial document is returned on failure.
func Decode(b []byte, conf ...DecodeConfig) (*Document, error) {
	d := newDecoder(b, conf...)

	var values []Value
	pos := 0
	for pos < len(b) {
		if b[pos] == 'e' {
			if d.conf.Strict {
				return nil, newSyntaxError(TrailingData, pos, "stray 'e' at the top level")
			}
			d.warnf(pos, "decoding stopped at a stray 'e', ignoring %d bytes", len(b)-pos)
			break
		}

		v, next, err := d.value(pos)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
		pos = next
	}

	return &Document{Values: values, Size: pos, Warnings: d.warnings}, nil
}

// DecodeString is the same as Decode, but decodes a string.
func DecodeString(s string, conf ...DecodeConfig) (*Document, error) {
	return Decode([]byte(s), conf...)
}

// DecodeValue decodes the single value starting at offset in b,
// and returns it with the number of bytes it spans.
//
// The warnings, such as the duplicate keys and the non-canonical decimals
// accepted by AllowNonCanonical, are dropped. Use Decode to get them.
func DecodeValue(b []byte, offset int, conf ...DecodeConfig) (v Value, n int, err error) {
	if offset < 0 || offset > len(b) {
		return nil, 0, newSyntaxError(UnexpectedEnd, offset, "offset out of the buffer")
	}

	var next int
	if v, next, err = newDecoder(b, conf...).value(offset); err == nil {
		n = next - offset
	}
	return
}

type decoder struct {
	buf      []byte
	conf     DecodeConfig
	depth    int
	warnings []Warning
}

func newDecoder(b []byte, conf ...DecodeConfig) *decoder {
	d := &decoder{buf: b}
	d.conf.set(conf...)
	return d
}

func (d *decoder) warnf(offset int, format string, args ...interface{}) {
	d.warnings = append(d.warnings, Warning{Offset: offset, Msg: fmt.Sprintf(format, args...)})
}

// value decodes the value at pos and returns the offset just after it.
func (d *decoder) value(pos int) (Value, int, error) {
	if pos >= len(d.buf) {
		return nil, pos, newSyntaxError(UnexpectedEnd, pos, "expect a value")
	}

	switch c := d.buf[pos]; {
	case c == 'i':
		return d.integer(pos)
	case c == 'l':
		return d.list(pos)
	case c == 'd':
		return d.dict(pos)
	case isDigit(c):
		return d.bytes(pos)
	default:
		return nil, pos, newSyntaxError(BadLengthPrefix, pos, "invalid value type %q", c)
	}
}

func (d *decoder) integer(start int) (Value, int, error) {
	end, err := scanInteger(d.buf, start)
	if err != nil {
		return nil, start, err
	}

	body := d.buf[start+1 : end]
	if !canonical(body) {
		if !d.conf.AllowNonCanonical {
			return nil, start, newSyntaxError(BadInteger, start, "non-canonical integer %q", body)
		}
		d.warnf(start, "non-canonical integer %q", body)
	}

	n, err := strconv.ParseInt(string(body), 10, 64)
	if err != nil {
		return nil, start, newSyntaxError(BadInteger, start, "integer %q out of range", body)
	}

	next := end + 1
	return &Int{Val: n, Pos: Span{Offset: start, Size: next - start}}, next, nil
}

func (d *decoder) bytes(start int) (Value, int, error) {
	colon, length, err := scanLength(d.buf, start)
	if err != nil {
		return nil, start, err
	}

	if prefix := d.buf[start:colon]; !canonical(prefix) {
		if !d.conf.AllowNonCanonical {
			return nil, start, newSyntaxError(BadLengthPrefix, start, "non-canonical length %q", prefix)
		}
		d.warnf(start, "non-canonical length %q", prefix)
	}

	body := colon + 1
	data := make([]byte, length)
	copy(data, d.buf[body:body+length])

	next := body + length
	return &Bytes{Data: data, Pos: Span{Offset: start, Size: next - start}}, next, nil
}

func (d *decoder) enter(start int) error {
	if d.depth++; d.depth > d.conf.MaxDepth {
		return newSyntaxError(TooDeep, start, "exceed the maximum depth %d", d.conf.MaxDepth)
	}
	return nil
}

func (d *decoder) list(start int) (Value, int, error) {
	if err := d.enter(start); err != nil {
		return nil, start, err
	}
	defer func() { d.depth-- }()

	items := make([]Value, 0, 4)
	pos := start + 1
	for {
		if pos >= len(d.buf) {
			return nil, start, newSyntaxError(UnterminatedContainer, start, "list has no terminating 'e'")
		} else if d.buf[pos] == 'e' {
			break
		}

		v, next, err := d.value(pos)
		if err != nil {
			return nil, start, err
		}
		items = append(items, v)
		pos = next
	}

	next := pos + 1
	return &List{Items: items, Pos: Span{Offset: start, Size: next - start}}, next, nil
}

func (d *decoder) dict(start int) (Value, int, error) {
	if err := d.enter(start); err != nil {
		return nil, start, err
	}
	defer func() { d.depth-- }()

	var seen map[string]struct{}
	entries := make([]Entry, 0, 4)
	pos := start + 1
	for {
		if pos >= len(d.buf) {
			return nil, start, newSyntaxError(UnterminatedContainer, start, "dict has no terminating 'e'")
		} else if d.buf[pos] == 'e' {
			break
		} else if !isDigit(d.buf[pos]) {
			return nil, start, newSyntaxError(BadKey, pos, "dict key must be a string, but got %q", d.buf[pos])
		}

		kv, next, err := d.bytes(pos)
		if err != nil {
			return nil, start, err
		}
		key := kv.(*Bytes)

		if next >= len(d.buf) {
			return nil, start, newSyntaxError(UnterminatedContainer, start, "dict has no terminating 'e'")
		} else if d.buf[next] == 'e' {
			return nil, start, newSyntaxError(BadKey, pos, "dict key %q has no value", key.Data)
		}

		v, next, err := d.value(next)
		if err != nil {
			return nil, start, err
		}

		if seen == nil {
			seen = make(map[string]struct{}, 8)
		}
		if _, ok := seen[string(key.Data)]; ok {
			d.warnf(pos, "duplicate dict key %q", key.Data)
		} else {
			seen[string(key.Data)] = struct{}{}
		}

		entries = append(entries, Entry{Key: key, Value: v})
		pos = next
	}

	next := pos + 1
	return &Dict{Entries: entries, Pos: Span{Offset: start, Size: next - start}}, next, nil
}
