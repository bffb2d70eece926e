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

package httptracker

import (
	"net"

	"github.com/pkg/errors"

	"github.com/xgfone/btlite/bencode"
	"github.com/xgfone/btlite/metainfo"
)

var errInvalidPeer = errors.New("invalid peer information format")

// Peer is a tracker peer.
type Peer struct {
	// ID is the peer's self-selected ID, which is empty in the compact case.
	ID string // BEP 3

	// IP is the IP address or dns name.
	IP   string // BEP 3
	Port uint16 // BEP 3
}

// CompactAddr converts the peer to the compact address,
// which returns false if IP is not an IPv4 address.
func (p Peer) CompactAddr() (addr metainfo.CompactAddr, ok bool) {
	if ip := net.ParseIP(p.IP).To4(); ip != nil {
		return metainfo.NewCompactAddr(ip, p.Port), true
	}
	return
}

// Peers is a set of the peers.
type Peers []Peer

// CompactAddrs returns the IPv4 addresses of the peers, the others are skipped.
func (ps Peers) CompactAddrs() []metainfo.CompactAddr {
	addrs := make([]metainfo.CompactAddr, 0, len(ps))
	for _, p := range ps {
		if addr, ok := p.CompactAddr(); ok {
			addrs = append(addrs, addr)
		}
	}
	return addrs
}

func decodePeers(v bencode.Value) (ps Peers, err error) {
	switch vs := v.(type) {
	case *bencode.Bytes: // BEP 23
		var addrs metainfo.CompactIPv4Addrs
		if err = addrs.UnmarshalBinary(vs.Data); err != nil {
			return
		}

		ps = make(Peers, len(addrs))
		for i, addr := range addrs {
			ps[i] = Peer{IP: addr.IP.String(), Port: addr.Port}
		}

	case *bencode.List: // BEP 3
		ps = make(Peers, len(vs.Items))
		for i, item := range vs.Items {
			m, ok := item.(*bencode.Dict)
			if !ok {
				return nil, errInvalidPeer
			}

			ip, ok := m.GetBytes("ip")
			if !ok {
				return nil, errInvalidPeer
			}

			port, ok := m.GetInt("port")
			if !ok || port < 0 || port > 65535 {
				return nil, errInvalidPeer
			}

			pid, _ := m.GetBytes("peer id")
			ps[i] = Peer{ID: string(pid), IP: string(ip), Port: uint16(port)}
		}

	default:
		return nil, errInvalidPeer
	}

	return
}
