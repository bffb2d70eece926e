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

import "fmt"

// ErrorKind is the category of a syntax error.
//
// ErrorKind implements the error interface, so it can be used as the target
// of errors.Is, for example errors.Is(err, bencode.BadInteger).
type ErrorKind uint8

// Predefine some error kinds.
const (
	_ ErrorKind = iota

	// UnexpectedEnd means that the decoder would read past the buffer.
	UnexpectedEnd

	// BadInteger means that the body of "i...e" is not a valid signed
	// decimal integer, including the non-canonical forms "-0" and
	// leading zeros unless they are allowed.
	BadInteger

	// BadLengthPrefix means that a non-digit is found where the decimal
	// length of a string was expected, or the ':' is missing.
	BadLengthPrefix

	// LengthOverflow means that the declared length of a string exceeds
	// the remaining buffer.
	LengthOverflow

	// BadKey means that a dict key is not a byte string.
	BadKey

	// UnterminatedContainer means that a list or dict has no matching 'e'.
	UnterminatedContainer

	// TrailingData means that a stray 'e' is found at the top level
	// in the strict mode.
	TrailingData

	// TooDeep means that the containers are nested too deeply.
	TooDeep
)

func (k ErrorKind) Error() string { return k.String() }

func (k ErrorKind) String() string {
	switch k {
	case UnexpectedEnd:
		return "unexpected end"
	case BadInteger:
		return "bad integer"
	case BadLengthPrefix:
		return "bad length prefix"
	case LengthOverflow:
		return "length overflow"
	case BadKey:
		return "bad key"
	case UnterminatedContainer:
		return "unterminated container"
	case TrailingData:
		return "trailing data"
	case TooDeep:
		return "too deep"
	default:
		return fmt.Sprintf("ErrorKind(%d)", k)
	}
}

// SyntaxError is returned when the input is not valid bencode.
type SyntaxError struct {
	Kind   ErrorKind
	Offset int // The byte offset where the error was detected.
	Msg    string
}

func newSyntaxError(kind ErrorKind, offset int, format string, args ...interface{}) *SyntaxError {
	return &SyntaxError{Kind: kind, Offset: offset, Msg: fmt.Sprintf(format, args...)}
}

func (e *SyntaxError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("bencode: %s at offset %d", e.Kind, e.Offset)
	}
	return fmt.Sprintf("bencode: %s at offset %d: %s", e.Kind, e.Offset, e.Msg)
}

// Is reports whether target is the kind of the error.
func (e *SyntaxError) Is(target error) bool {
	kind, ok := target.(ErrorKind)
	return ok && kind == e.Kind
}

// Warning is a tolerated irregularity found while decoding,
// such as a duplicate dict key.
type Warning struct {
	Offset int
	Msg    string
}

func (w Warning) String() string {
	return fmt.Sprintf("offset %d: %s", w.Offset, w.Msg)
}
