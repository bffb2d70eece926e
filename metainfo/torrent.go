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
	"errors"
	"net/url"

	"github.com/xgfone/btlite/bencode"
)

// Torrent is a decoded torrent file, which keeps the raw buffer to be able to
// hash the encoded "info" dict exactly as it appears in the file.
type Torrent struct {
	Raw  []byte
	Root *bencode.Dict
}

// NewTorrent decodes the torrent file content b.
//
// Only the first top-level value is used, which must be a dict.
func NewTorrent(b []byte, conf ...bencode.DecodeConfig) (t Torrent, err error) {
	doc, err := bencode.Decode(b, conf...)
	if err != nil {
		return
	}

	root, ok := doc.Root().(*bencode.Dict)
	if !ok {
		return t, errors.New("torrent: the top-level value is not a dict")
	}

	return Torrent{Raw: b, Root: root}, nil
}

// InfoHash returns the SHA1 hash of the raw encoded "info" dict.
func (t Torrent) InfoHash() (h Hash, err error) {
	info, ok := t.Root.GetDict("info")
	if !ok {
		return h, errors.New("torrent: missing the info dict")
	}

	span := info.Span()
	if span.End() > len(t.Raw) {
		return h, errors.New("torrent: the info dict is out of the raw buffer")
	}
	return NewHashFromBytes(span.Raw(t.Raw)), nil
}

// Name returns the suggested name in the "info" dict.
func (t Torrent) Name() string {
	if info, ok := t.Root.GetDict("info"); ok {
		if name, ok := info.GetBytes("name"); ok {
			return string(name)
		}
	}
	return ""
}

// AnnounceURLs returns the tracker URLs, that's, "announce" followed by
// the tiers of "announce-list" (BEP 12) in order, without the duplicates.
func (t Torrent) AnnounceURLs() (urls []string) {
	seen := make(map[string]struct{}, 8)
	add := func(v bencode.Value) {
		if s, ok := v.(*bencode.Bytes); ok && s.Len() > 0 {
			if _, ok := seen[s.Text()]; !ok {
				seen[s.Text()] = struct{}{}
				urls = append(urls, s.Text())
			}
		}
	}

	add(t.Root.Get("announce"))
	if tiers, ok := t.Root.GetList("announce-list"); ok {
		for _, tier := range tiers.Items {
			if tier, ok := tier.(*bencode.List); ok {
				for _, u := range tier.Items {
					add(u)
				}
			}
		}
	}

	return
}

// UDPTrackers returns the announce URLs with the scheme "udp" or "udp4".
func (t Torrent) UDPTrackers() (urls []string) {
	for _, s := range t.AnnounceURLs() {
		if u, err := url.Parse(s); err == nil && u.Host != "" {
			switch u.Scheme {
			case "udp", "udp4":
				urls = append(urls, s)
			}
		}
	}
	return
}
