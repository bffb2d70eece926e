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

// Package udptracker implements the tracker protocol based on UDP.
//
// The client binds a local UDP socket, gets a connection id from the tracker
// by the CONNECT request, then uses it in the ANNOUNCE and SCRAPE requests.
// The server is a tiny tracker, which is used to test the client or to track
// a small swarm. Only IPv4 is supported, so every peer in the ANNOUNCE
// response is a 6-byte "Compact IP-address/port info".
//
// All the multi-byte integers on the wire are in network byte order.
package udptracker

import (
	"bytes"
	"encoding/binary"
	"net"

	"github.com/anacrolix/missinggo"

	"github.com/xgfone/btlite/metainfo"
)

// ProtocolID is magic constant for the udp tracker connection.
//
// BEP 15
const ProtocolID = uint64(0x41727101980)

// Predefine some actions.
//
// BEP 15
const (
	ActionConnect  = uint32(0)
	ActionAnnounce = uint32(1)
	ActionScrape   = uint32(2)
	ActionError    = uint32(3)
)

// Predefine some announce events.
//
// BEP 15
const (
	EventNone      = uint32(0)
	EventCompleted = uint32(1)
	EventStarted   = uint32(2)
	EventStopped   = uint32(3)
)

// Predefine the sizes of the messages.
const (
	ConnectRequestSize       = 16
	ConnectResponseSize      = 16
	AnnounceRequestSize      = 98
	AnnounceResponseMinSize  = 20
	ScrapeResponseHeaderSize = 8
	announceRequestBodySize  = AnnounceRequestSize - 16
)

// DefaultNumWant is the default number of the peers to request.
const DefaultNumWant = 50

// DefaultMaxBufSize is the default size of the receive buffer,
// which is enough for the ANNOUNCE response with DefaultNumWant peers.
const DefaultMaxBufSize = AnnounceResponseMinSize + DefaultNumWant*metainfo.CompactAddrSize

func encodeHeader(buf *bytes.Buffer, id uint64, action, tid uint32) {
	binary.Write(buf, binary.BigEndian, id)
	binary.Write(buf, binary.BigEndian, action)
	binary.Write(buf, binary.BigEndian, tid)
}

func encodeResponseHeader(buf *bytes.Buffer, action, tid uint32) {
	binary.Write(buf, binary.BigEndian, action)
	binary.Write(buf, binary.BigEndian, tid)
}

// AnnounceRequest represents the announce request used by UDP tracker,
// excluding the header of connection id, action and transaction id.
//
// BEP 15
type AnnounceRequest struct {
	InfoHash metainfo.Hash
	PeerID   metainfo.Hash // Zeros are acceptable.

	Downloaded int64
	Left       int64
	Uploaded   int64
	Event      uint32

	IP      net.IP // nil or 0.0.0.0 means the sender address.
	Key     uint32
	NumWant int32 // -1 for default
	Port    uint16
}

// DecodeFrom decodes the request from b, which must have 82 bytes at least.
func (r *AnnounceRequest) DecodeFrom(b []byte) {
	missinggo.CopyExact(&r.InfoHash, b[0:20])
	missinggo.CopyExact(&r.PeerID, b[20:40])
	r.Downloaded = int64(binary.BigEndian.Uint64(b[40:48]))
	r.Left = int64(binary.BigEndian.Uint64(b[48:56]))
	r.Uploaded = int64(binary.BigEndian.Uint64(b[56:64]))
	r.Event = binary.BigEndian.Uint32(b[64:68])

	r.IP = make(net.IP, net.IPv4len)
	copy(r.IP, b[68:72])

	r.Key = binary.BigEndian.Uint32(b[72:76])
	r.NumWant = int32(binary.BigEndian.Uint32(b[76:80]))
	r.Port = binary.BigEndian.Uint16(b[80:82])
}

// EncodeTo encodes the request to buf.
func (r AnnounceRequest) EncodeTo(buf *bytes.Buffer) {
	buf.Grow(announceRequestBodySize)
	buf.Write(r.InfoHash[:])
	buf.Write(r.PeerID[:])

	binary.Write(buf, binary.BigEndian, r.Downloaded)
	binary.Write(buf, binary.BigEndian, r.Left)
	binary.Write(buf, binary.BigEndian, r.Uploaded)
	binary.Write(buf, binary.BigEndian, r.Event)

	if ip := r.IP.To4(); ip != nil {
		buf.Write(ip)
	} else {
		buf.Write(net.IPv4zero.To4())
	}

	binary.Write(buf, binary.BigEndian, r.Key)
	binary.Write(buf, binary.BigEndian, r.NumWant)
	binary.Write(buf, binary.BigEndian, r.Port)
}

// AnnounceResponse represents the announce response used by UDP tracker,
// excluding the header of action and transaction id.
//
// BEP 15
type AnnounceResponse struct {
	Interval uint32 // The seconds to wait before re-announcing.
	Leechers uint32
	Seeders  uint32
	Peers    []metainfo.CompactAddr
}

// EncodeTo encodes the response to buf. The non-IPv4 peers are skipped.
func (r AnnounceResponse) EncodeTo(buf *bytes.Buffer) {
	buf.Grow(12 + len(r.Peers)*metainfo.CompactAddrSize)
	binary.Write(buf, binary.BigEndian, r.Interval)
	binary.Write(buf, binary.BigEndian, r.Leechers)
	binary.Write(buf, binary.BigEndian, r.Seeders)
	for _, addr := range r.Peers {
		if ip := addr.IP.To4(); ip != nil {
			buf.Write(ip)
			binary.Write(buf, binary.BigEndian, addr.Port)
		}
	}
}

// DecodeFrom decodes the response from b, which must have 12 bytes at least.
//
// The peers are decoded as many as b contains, and a trailing partial
// record is ignored.
func (r *AnnounceResponse) DecodeFrom(b []byte) {
	r.Interval = binary.BigEndian.Uint32(b[:4])
	r.Leechers = binary.BigEndian.Uint32(b[4:8])
	r.Seeders = binary.BigEndian.Uint32(b[8:12])

	b = b[12:]
	_len := len(b) - len(b)%metainfo.CompactAddrSize
	r.Peers = make([]metainfo.CompactAddr, 0, _len/metainfo.CompactAddrSize)
	for i := 0; i < _len; i += metainfo.CompactAddrSize {
		var addr metainfo.CompactAddr
		addr.UnmarshalBinary(b[i : i+metainfo.CompactAddrSize])
		r.Peers = append(r.Peers, addr)
	}
}

// ScrapeResponse represents the UDP SCRAPE response of an infohash.
//
// BEP 15
type ScrapeResponse struct {
	Seeders   uint32
	Leechers  uint32
	Completed uint32
}

// EncodeTo encodes the response to buf.
func (r ScrapeResponse) EncodeTo(buf *bytes.Buffer) {
	binary.Write(buf, binary.BigEndian, r.Seeders)
	binary.Write(buf, binary.BigEndian, r.Completed)
	binary.Write(buf, binary.BigEndian, r.Leechers)
}

// DecodeFrom decodes the response from b.
func (r *ScrapeResponse) DecodeFrom(b []byte) {
	r.Seeders = binary.BigEndian.Uint32(b[:4])
	r.Completed = binary.BigEndian.Uint32(b[4:8])
	r.Leechers = binary.BigEndian.Uint32(b[8:12])
}
