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

package udptracker

import (
	"bytes"
	"encoding/binary"
	"errors"
	"log"
	"net"
	"sync"
	"time"

	"github.com/xgfone/btlite/internal/helper"
	"github.com/xgfone/btlite/metainfo"
)

// ConnectionIDTTL is the lifetime of a connection id.
//
// BEP 15
const ConnectionIDTTL = time.Minute * 2

// ServerHandler is used to handle the request from the client.
type ServerHandler interface {
	// OnConnect is used to check whether to make the connection or not.
	OnConnect(raddr *net.UDPAddr) (err error)
	OnAnnounce(raddr *net.UDPAddr, req AnnounceRequest) (AnnounceResponse, error)
	OnScrape(raddr *net.UDPAddr, infohashes []metainfo.Hash) ([]ScrapeResponse, error)
}

// ServerConfig is used to configure the Server.
type ServerConfig struct {
	MaxBufSize int                                      // Default: 2048
	ErrorLog   func(format string, args ...interface{}) // Default: log.Printf
}

func (c *ServerConfig) setDefault() {
	if c.MaxBufSize <= 0 {
		c.MaxBufSize = 2048
	}
	if c.ErrorLog == nil {
		c.ErrorLog = log.Printf
	}
}

type peerConn struct {
	addr   *net.UDPAddr
	issued time.Time
}

// Server is a tracker server based on UDP, which only supports IPv4.
//
// The requests are handled one by one in the order they arrive.
type Server struct {
	conn    net.PacketConn
	conf    ServerConfig
	handler ServerHandler

	lock  sync.Mutex
	conns map[uint64]peerConn
}

// NewServer returns a new Server.
func NewServer(c net.PacketConn, h ServerHandler, config ...ServerConfig) *Server {
	var conf ServerConfig
	if len(config) > 0 {
		conf = config[0]
	}
	conf.setDefault()

	return &Server{conn: c, conf: conf, handler: h, conns: make(map[uint64]peerConn, 64)}
}

// Close closes the tracker server.
func (s *Server) Close() error { return s.conn.Close() }

// Run starts the tracker server until it is closed.
func (s *Server) Run() {
	buf := make([]byte, s.conf.MaxBufSize)
	for {
		n, raddr, err := s.conn.ReadFrom(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.conf.ErrorLog("udptracker: fail to read the request: %s", err)
			}
			return
		}

		if addr, ok := raddr.(*net.UDPAddr); ok && n >= 16 {
			s.handle(addr, buf[:n])
		}
	}
}

// issue returns a new connection id for raddr, and forgets the expired ones.
func (s *Server) issue(raddr *net.UDPAddr) (cid uint64) {
	now := time.Now()
	s.lock.Lock()
	defer s.lock.Unlock()

	for id, pc := range s.conns {
		if now.Sub(pc.issued) > ConnectionIDTTL {
			delete(s.conns, id)
		}
	}

	for {
		cid = binary.BigEndian.Uint64(helper.RandomBytes(8))
		if _, ok := s.conns[cid]; !ok && cid != ProtocolID {
			break
		}
	}

	s.conns[cid] = peerConn{addr: raddr, issued: now}
	return
}

// valid reports whether cid was issued to raddr and has not expired.
func (s *Server) valid(cid uint64, raddr *net.UDPAddr) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	pc, ok := s.conns[cid]
	if ok && time.Since(pc.issued) > ConnectionIDTTL {
		delete(s.conns, cid)
		return false
	}
	return ok && pc.addr.Port == raddr.Port && pc.addr.IP.Equal(raddr.IP)
}

func (s *Server) reply(raddr *net.UDPAddr, action, tid uint32, body func(*bytes.Buffer)) {
	buf := bytes.NewBuffer(make([]byte, 0, 64))
	encodeResponseHeader(buf, action, tid)
	body(buf)

	if _, err := s.conn.WriteTo(buf.Bytes(), raddr); err != nil {
		s.conf.ErrorLog("udptracker: fail to send the response to '%s': %s", raddr, err)
	}
}

func (s *Server) fail(raddr *net.UDPAddr, tid uint32, reason string) {
	s.reply(raddr, ActionError, tid, func(buf *bytes.Buffer) { buf.WriteString(reason) })
}

func (s *Server) handle(raddr *net.UDPAddr, b []byte) {
	cid := binary.BigEndian.Uint64(b[:8])
	action := binary.BigEndian.Uint32(b[8:12])
	tid := binary.BigEndian.Uint32(b[12:16])
	body := b[16:]

	if action == ActionConnect {
		if cid != ProtocolID {
			s.fail(raddr, tid, "invalid protocol id")
		} else if err := s.handler.OnConnect(raddr); err != nil {
			s.fail(raddr, tid, err.Error())
		} else {
			cid = s.issue(raddr)
			s.reply(raddr, ActionConnect, tid, func(buf *bytes.Buffer) {
				binary.Write(buf, binary.BigEndian, cid)
			})
		}
		return
	}

	if !s.valid(cid, raddr) {
		s.fail(raddr, tid, "connection is expired")
		return
	}

	switch action {
	case ActionAnnounce:
		if raddr.IP.To4() == nil || len(body) < announceRequestBodySize {
			s.fail(raddr, tid, "invalid announce request")
			return
		}

		var req AnnounceRequest
		req.DecodeFrom(body)
		if resp, err := s.handler.OnAnnounce(raddr, req); err != nil {
			s.fail(raddr, tid, err.Error())
		} else {
			s.reply(raddr, ActionAnnounce, tid, resp.EncodeTo)
		}

	case ActionScrape:
		hashes := make([]metainfo.Hash, 0, len(body)/metainfo.HashSize)
		for ; len(body) >= metainfo.HashSize; body = body[metainfo.HashSize:] {
			hashes = append(hashes, metainfo.NewHash(body[:metainfo.HashSize]))
		}
		if len(hashes) == 0 {
			s.fail(raddr, tid, "no infohash")
			return
		}

		rs, err := s.handler.OnScrape(raddr, hashes)
		if err != nil {
			s.fail(raddr, tid, err.Error())
			return
		}
		s.reply(raddr, ActionScrape, tid, func(buf *bytes.Buffer) {
			for _, r := range rs {
				r.EncodeTo(buf)
			}
		})

	default:
		s.fail(raddr, tid, "unknown action")
	}
}
