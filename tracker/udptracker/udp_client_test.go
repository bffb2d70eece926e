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
	"context"
	"encoding/binary"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xgfone/btlite/metainfo"
)

// stubTracker replies the canned datagrams to the requests in order.
type stubTracker struct {
	conn *net.UDPConn
	port uint16
	reqs chan []byte
}

func newStubTracker(t *testing.T, replies ...func(req []byte) []byte) *stubTracker {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	s := &stubTracker{
		conn: conn,
		port: uint16(conn.LocalAddr().(*net.UDPAddr).Port),
		reqs: make(chan []byte, len(replies)),
	}

	go func() {
		buf := make([]byte, 2048)
		for _, reply := range replies {
			n, raddr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}

			req := append([]byte(nil), buf[:n]...)
			s.reqs <- req
			if resp := reply(req); resp != nil {
				conn.WriteToUDP(resp, raddr)
			}
		}
	}()

	return s
}

func newTestClient(t *testing.T, timeout time.Duration) *Client {
	c, err := NewClient(ClientConfig{LocalAddr: "127.0.0.1:0", ReadTimeout: timeout})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func tidOf(req []byte) uint32 { return binary.BigEndian.Uint32(req[12:16]) }

func connectReply(cid uint64) func([]byte) []byte {
	return func(req []byte) []byte {
		b := make([]byte, 16)
		binary.BigEndian.PutUint32(b[0:4], ActionConnect)
		binary.BigEndian.PutUint32(b[4:8], tidOf(req))
		binary.BigEndian.PutUint64(b[8:16], cid)
		return b
	}
}

func announceReply(peers ...metainfo.CompactAddr) func([]byte) []byte {
	return func(req []byte) []byte {
		b := make([]byte, 20, 20+len(peers)*6)
		binary.BigEndian.PutUint32(b[0:4], ActionAnnounce)
		binary.BigEndian.PutUint32(b[4:8], tidOf(req))
		binary.BigEndian.PutUint32(b[8:12], 1800)
		binary.BigEndian.PutUint32(b[12:16], 7)
		binary.BigEndian.PutUint32(b[16:20], 3)
		for _, peer := range peers {
			pb, _ := peer.MarshalBinary()
			b = append(b, pb...)
		}
		return b
	}
}

func TestClientConnectAndAnnounce(t *testing.T) {
	cid := uint64(0x0102030405060708)
	peers := []metainfo.CompactAddr{
		metainfo.NewCompactAddr(net.IPv4(10, 0, 0, 1), 6881),
		metainfo.NewCompactAddr(net.IPv4(192, 168, 1, 2), 51413),
		metainfo.NewCompactAddr(net.IPv4(8, 8, 8, 8), 1),
	}
	stub := newStubTracker(t, connectReply(cid), announceReply(peers...))

	c := newTestClient(t, time.Second*5)
	assert.Equal(t, Bound, c.State())

	gotcid, err := c.Connect(context.Background(), "127.0.0.1", stub.port)
	require.NoError(t, err)
	assert.Equal(t, cid, gotcid)
	assert.Equal(t, Connected, c.State())

	req := <-stub.reqs
	require.Len(t, req, ConnectRequestSize)
	assert.Equal(t, []byte{0, 0, 0x04, 0x17, 0x27, 0x10, 0x19, 0x80}, req[0:8])
	assert.Equal(t, []byte{0, 0, 0, 0}, req[8:12])

	infohash := metainfo.NewHashFromHexString("0123456789abcdef0123456789abcdef01234567")
	resp, err := c.Announce(context.Background(), gotcid, infohash, "127.0.0.1", stub.port)
	require.NoError(t, err)
	assert.Equal(t, Done, c.State())
	assert.Equal(t, uint32(1800), resp.Interval)
	assert.Equal(t, uint32(7), resp.Leechers)
	assert.Equal(t, uint32(3), resp.Seeders)
	require.Len(t, resp.Peers, 3)
	for i, peer := range peers {
		assert.True(t, peer.Equal(resp.Peers[i]), "%d: expect %s, but got %s", i, peer, resp.Peers[i])
	}

	req = <-stub.reqs
	require.Len(t, req, AnnounceRequestSize)
	expect := make([]byte, AnnounceRequestSize)
	binary.BigEndian.PutUint64(expect[0:8], cid)
	binary.BigEndian.PutUint32(expect[8:12], ActionAnnounce)
	copy(expect[12:16], req[12:16])
	copy(expect[16:36], infohash[:])
	binary.BigEndian.PutUint32(expect[92:96], DefaultNumWant)
	assert.Equal(t, expect, req)
}

func TestClientErrors(t *testing.T) {
	badTid := func(req []byte) []byte {
		b := connectReply(1)(req)
		binary.BigEndian.PutUint32(b[4:8], tidOf(req)+1)
		return b
	}
	badAction := func(req []byte) []byte {
		b := connectReply(1)(req)
		binary.BigEndian.PutUint32(b[0:4], ActionAnnounce)
		return b
	}
	short := func(req []byte) []byte { return connectReply(1)(req)[:12] }
	tiny := func(req []byte) []byte { return []byte{0, 0, 0} }
	failure := func(req []byte) []byte {
		b := make([]byte, 8, 32)
		binary.BigEndian.PutUint32(b[0:4], ActionError)
		binary.BigEndian.PutUint32(b[4:8], tidOf(req))
		return append(b, "go away"...)
	}
	silent := func(req []byte) []byte { return nil }

	tests := []struct {
		reply func([]byte) []byte
		kind  ErrorKind
	}{
		{badTid, ProtocolMismatch},
		{badAction, ProtocolMismatch},
		{short, ShortResponse},
		{tiny, ShortResponse},
		{failure, TrackerFailure},
		{silent, RecvTimeout},
	}

	for i, test := range tests {
		stub := newStubTracker(t, test.reply)
		c := newTestClient(t, time.Millisecond*300)

		_, err := c.Connect(context.Background(), "127.0.0.1", stub.port)

		var e *Error
		if assert.True(t, errors.As(err, &e), "%d: %v", i, err) {
			assert.Equal(t, StepConnect, e.Step, "%d", i)
			assert.Equal(t, test.kind, e.Kind, "%d: %v", i, err)
			assert.True(t, errors.Is(err, test.kind), "%d", i)
		}
		assert.Equal(t, Failed, c.State())
	}
}

func TestClientAnnounceError(t *testing.T) {
	stub := newStubTracker(t, func(req []byte) []byte {
		b := announceReply()(req)
		binary.BigEndian.PutUint32(b[0:4], ActionConnect)
		return b
	})

	c := newTestClient(t, time.Second*5)
	_, err := c.Announce(context.Background(), 1, metainfo.Hash{}, "127.0.0.1", stub.port)

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, StepAnnounce, e.Step)
	assert.Equal(t, ProtocolMismatch, e.Kind)
	assert.Equal(t, Failed, c.State())
}

func TestClientDiscardForeignDatagram(t *testing.T) {
	stub := newStubTracker(t, connectReply(42))
	c := newTestClient(t, time.Second*5)

	foreign, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer foreign.Close()

	// Send a well-formed response with a wrong tid from another address.
	_, err = foreign.WriteToUDP(make([]byte, 16), c.LocalAddr())
	require.NoError(t, err)

	cid, err := c.Connect(context.Background(), "127.0.0.1", stub.port)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), cid)
}

func TestClientContext(t *testing.T) {
	stub := newStubTracker(t, func([]byte) []byte { return nil })
	c := newTestClient(t, time.Second*15)

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*200)
	defer cancel()

	start := time.Now()
	_, err := c.Connect(ctx, "127.0.0.1", stub.port)
	assert.True(t, errors.Is(err, RecvTimeout), "%v", err)
	assert.True(t, time.Since(start) < time.Second*5)

	ctx, cancel = context.WithCancel(context.Background())
	go func() {
		time.Sleep(time.Millisecond * 100)
		cancel()
	}()
	_, err = c.Connect(ctx, "127.0.0.1", stub.port)
	assert.True(t, errors.Is(err, RecvFailed) || errors.Is(err, RecvTimeout), "%v", err)
	assert.True(t, errors.Is(err, context.Canceled) || errors.Is(err, RecvTimeout), "%v", err)
}

func TestClientBindAndResolve(t *testing.T) {
	_, err := NewClient(ClientConfig{LocalAddr: "not-an-address"})
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, StepBind, e.Step)
	assert.Equal(t, BindFailed, e.Kind)

	c := newTestClient(t, time.Second)
	_, err = c.Connect(context.Background(), "", 6969)
	assert.True(t, errors.Is(err, ResolveFailed), "%v", err)
}

func TestAnnounceResponseDecodeFrom(t *testing.T) {
	b := []byte{
		0, 0, 0, 10, 0, 0, 0, 2, 0, 0, 0, 1,
		127, 0, 0, 1, 0x1a, 0xe1,
		1, 2, 3, 4, 0, 80,
		9, 9, 9, // a trailing partial record
	}

	var r AnnounceResponse
	r.DecodeFrom(b)
	assert.Equal(t, uint32(10), r.Interval)
	assert.Equal(t, uint32(2), r.Leechers)
	assert.Equal(t, uint32(1), r.Seeders)
	require.Len(t, r.Peers, 2)
	assert.Equal(t, "127.0.0.1:6881", r.Peers[0].String())
	assert.Equal(t, "1.2.3.4:80", r.Peers[1].String())
}

func TestClientDiscardStaleResponses(t *testing.T) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer conn.Close()
	port := uint16(conn.LocalAddr().(*net.UDPAddr).Port)

	// Reply a stale response before the right one for each request.
	go func() {
		buf := make([]byte, 2048)
		for {
			n, raddr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}

			stale := connectReply(1)(buf[:n])
			binary.BigEndian.PutUint32(stale[4:8], tidOf(buf[:n])+1)
			conn.WriteToUDP(stale, raddr)
			conn.WriteToUDP(connectReply(2)(buf[:n]), raddr)
		}
	}()

	c, err := NewClient(ClientConfig{
		LocalAddr:             "127.0.0.1:0",
		ReadTimeout:           time.Second * 5,
		DiscardStaleResponses: true,
	})
	require.NoError(t, err)
	defer c.Close()

	cid, err := c.Connect(context.Background(), "127.0.0.1", port)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), cid)

	c2 := newTestClient(t, time.Second*5)
	_, err = c2.Connect(context.Background(), "127.0.0.1", port)
	assert.True(t, errors.Is(err, ProtocolMismatch), "%v", err)
}
