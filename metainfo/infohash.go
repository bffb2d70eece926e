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

package metainfo

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/xgfone/btlite/internal/helper"
)

var zeroHash Hash

// HashSize is the size of the InfoHash.
const HashSize = 20

// Hash is the 20-byte SHA1 hash used for info and peer id.
type Hash [HashSize]byte

// NewRandomHash returns a random hash.
func NewRandomHash() (h Hash) {
	copy(h[:], helper.RandomBytes(HashSize))
	return
}

// NewHash converts the 20-bytes to Hash.
func NewHash(b []byte) (h Hash) {
	copy(h[:], b[:HashSize])
	return
}

// NewHashFromHexString returns a new Hash from a hex string.
func NewHashFromHexString(s string) (h Hash) {
	if err := h.FromHexString(s); err != nil {
		panic(err)
	}
	return
}

// NewHashFromBytes returns the SHA1 hash of b.
func NewHashFromBytes(b []byte) Hash { return sha1.Sum(b) }

// Bytes returns the byte slice type.
func (h Hash) Bytes() []byte { return h[:] }

// String is equal to HexString.
func (h Hash) String() string { return h.HexString() }

// HexString returns the hex string format.
func (h Hash) HexString() string { return hex.EncodeToString(h[:]) }

// IsZero reports whether the whole hash is zero.
func (h Hash) IsZero() bool { return h == zeroHash }

// FromHexString resets the hash from the hex string.
func (h *Hash) FromHexString(s string) (err error) {
	if len(s) != 2*HashSize {
		return fmt.Errorf("hash hex string has bad length: %d", len(s))
	}
	_, err = hex.Decode(h[:], []byte(s))
	return
}

// UnmarshalBinary implements the interface binary.BinaryUnmarshaler.
func (h *Hash) UnmarshalBinary(b []byte) (err error) {
	if len(b) < HashSize {
		return errors.New("Hash.UnmarshalBinary: too few bytes")
	}
	copy((*h)[:], b[:HashSize])
	return
}

// MarshalBinary implements the interface binary.BinaryMarshaler.
func (h Hash) MarshalBinary() (data []byte, err error) {
	return h[:], nil
}
