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
	"io"
	"strconv"
)

const hexDigits = "0123456789abcdef"

func valueString(v Value) string {
	var buf bytes.Buffer
	v.dump(&buf)
	return buf.String()
}

func (i *Int) dump(buf *bytes.Buffer) {
	buf.WriteString(strconv.FormatInt(i.Val, 10))
}

// dump writes the printable bytes verbatim and the others as \xNN.
func (b *Bytes) dump(buf *bytes.Buffer) {
	for _, c := range b.Data {
		if c >= 0x20 && c < 0x7f && c != '\\' {
			buf.WriteByte(c)
		} else {
			buf.WriteString(`\x`)
			buf.WriteByte(hexDigits[c>>4])
			buf.WriteByte(hexDigits[c&0xf])
		}
	}
}

func (l *List) dump(buf *bytes.Buffer) {
	buf.WriteByte('[')
	for _, v := range l.Items {
		v.dump(buf)
		buf.WriteString(", ")
	}
	buf.WriteByte(']')
}

func (d *Dict) dump(buf *bytes.Buffer) {
	buf.WriteByte('{')
	for _, e := range d.Entries {
		e.Key.dump(buf)
		buf.WriteByte(':')
		e.Value.dump(buf)
		buf.WriteString(", ")
	}
	buf.WriteByte('}')
}

// Dump writes the debug rendering of the document into w,
// one top-level value per line.
//
// The rendering is only used to debug, and its format may change.
func (d *Document) Dump(w io.Writer) (err error) {
	var buf bytes.Buffer
	for _, v := range d.Values {
		v.dump(&buf)
		buf.WriteByte('\n')
	}
	_, err = buf.WriteTo(w)
	return
}

func (d *Document) String() string {
	var buf bytes.Buffer
	d.Dump(&buf)
	return buf.String()
}

// Interface converts the value to the generic Go value, that's,
// int64, string, []interface{} or map[string]interface{}, which is the same
// as what the reflection-based decoders produce for interface{}.
//
// For the duplicate dict keys, the last one wins.
func Interface(v Value) interface{} {
	switch v := v.(type) {
	case *Int:
		return v.Val
	case *Bytes:
		return string(v.Data)
	case *List:
		items := make([]interface{}, len(v.Items))
		for i, item := range v.Items {
			items[i] = Interface(item)
		}
		return items
	case *Dict:
		m := make(map[string]interface{}, len(v.Entries))
		for _, e := range v.Entries {
			m[string(e.Key.Data)] = Interface(e.Value)
		}
		return m
	default:
		return nil
	}
}
