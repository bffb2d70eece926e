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

// Package bencode implements a decoder of bencoded data into an ordered
// tree of values.
//
// Unlike a reflection-based decoder, the tree keeps everything the input
// says: the order of dictionary keys, duplicate keys, and the exact byte
// span every value was decoded from. The span makes it possible to hash
// the raw encoding of a sub-value, such as the "info" dictionary of a
// torrent, without re-encoding it.
//
// The package only decodes. Binary strings are kept as []byte everywhere.
package bencode
