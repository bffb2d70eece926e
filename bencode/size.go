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

// SizeAt returns the number of bytes spanned by the value starting at offset
// in b, without decoding it.
//
// For any input accepted by Decode with the same conf, it agrees with
// the spans of the decoded values. It checks the structure only,
// so the non-canonical decimals are not reported, and only MaxDepth
// is used in conf.
func SizeAt(b []byte, offset int, conf ...DecodeConfig) (int, error) {
	var c DecodeConfig
	c.set(conf...)

	if offset < 0 || offset > len(b) {
		return 0, newSyntaxError(UnexpectedEnd, offset, "offset out of the buffer")
	}

	end, err := skip(b, offset, c.MaxDepth, c.MaxDepth)
	if err != nil {
		return 0, err
	}
	return end - offset, nil
}

// skip returns the offset just after the value at pos,
// which may nest depth containers at most.
func skip(b []byte, pos, depth, maxDepth int) (int, error) {
	if pos >= len(b) {
		return pos, newSyntaxError(UnexpectedEnd, pos, "expect a value")
	}

	switch c := b[pos]; {
	case c == 'i':
		end, err := scanInteger(b, pos)
		if err != nil {
			return pos, err
		}
		return end + 1, nil

	case isDigit(c):
		colon, length, err := scanLength(b, pos)
		if err != nil {
			return pos, err
		}
		return colon + 1 + length, nil

	case c == 'l', c == 'd':
		if depth <= 0 {
			return pos, newSyntaxError(TooDeep, pos, "exceed the maximum depth %d", maxDepth)
		}

		start := pos
		pos++
		for {
			if pos >= len(b) {
				return start, newSyntaxError(UnterminatedContainer, start, "container has no terminating 'e'")
			} else if b[pos] == 'e' {
				return pos + 1, nil
			}

			if c == 'd' {
				if !isDigit(b[pos]) {
					return start, newSyntaxError(BadKey, pos, "dict key must be a string, but got %q", b[pos])
				}

				colon, length, err := scanLength(b, pos)
				if err != nil {
					return start, err
				}

				key := pos
				if pos = colon + 1 + length; pos >= len(b) {
					return start, newSyntaxError(UnterminatedContainer, start, "dict has no terminating 'e'")
				} else if b[pos] == 'e' {
					return start, newSyntaxError(BadKey, key, "dict key %q has no value", b[colon+1:pos])
				}
			}

			var err error
			if pos, err = skip(b, pos, depth-1, maxDepth); err != nil {
				return start, err
			}
		}

	default:
		return pos, newSyntaxError(BadLengthPrefix, pos, "invalid value type %q", c)
	}
}

// scanInteger checks the integer starting with 'i' at start,
// and returns the offset of its terminating 'e'.
func scanInteger(b []byte, start int) (end int, err error) {
	pos := start + 1
	if pos < len(b) && b[pos] == '-' {
		pos++
	}

	digits := pos
	for pos < len(b) && isDigit(b[pos]) {
		pos++
	}

	switch {
	case pos >= len(b):
		return 0, newSyntaxError(UnexpectedEnd, pos, "integer has no terminating 'e'")
	case b[pos] != 'e':
		return 0, newSyntaxError(BadInteger, start, "unexpected %q in integer", b[pos])
	case pos == digits:
		return 0, newSyntaxError(BadInteger, start, "integer has no digits")
	}
	return pos, nil
}

// scanLength parses the length prefix of the string starting at start,
// and returns the offset of ':' and the declared length, which is ensured
// to fit in the rest of b.
func scanLength(b []byte, start int) (colon, length int, err error) {
	var overflow bool
	pos := start
	for ; pos < len(b) && isDigit(b[pos]); pos++ {
		if length = length*10 + int(b[pos]-'0'); length > len(b) {
			overflow = true
			length = len(b) + 1
		}
	}

	switch {
	case pos == start:
		return 0, 0, newSyntaxError(BadLengthPrefix, start, "expect a decimal length")
	case pos >= len(b):
		return 0, 0, newSyntaxError(UnexpectedEnd, pos, "string length has no ':'")
	case b[pos] != ':':
		return 0, 0, newSyntaxError(BadLengthPrefix, pos, "expect ':', but got %q", b[pos])
	case overflow || length > len(b)-pos-1:
		return 0, 0, newSyntaxError(LengthOverflow, start,
			"string length %s exceeds the remaining %d bytes", b[start:pos], len(b)-pos-1)
	}
	return pos, length, nil
}

// canonical reports whether the decimal s has no leading zero and is not "-0".
func canonical(s []byte) bool {
	if len(s) > 0 && s[0] == '-' {
		return len(s) > 1 && s[1] != '0'
	}
	return len(s) == 1 || (len(s) > 1 && s[0] != '0')
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }
