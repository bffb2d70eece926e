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
	"context"
	"encoding/binary"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/xgfone/btlite/internal/helper"
	"github.com/xgfone/btlite/metainfo"
)

// State is the state of the client.
type State uint8

// Predefine some states.
const (
	Unbound State = iota
	Bound
	Connected
	AnnouncePending
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Unbound:
		return "Unbound"
	case Bound:
		return "Bound"
	case Connected:
		return "Connected"
	case AnnouncePending:
		return "AnnouncePending"
	case Done:
		return "Done"
	case Failed:
		return "Failed"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

// ClientConfig is used to configure the Client.
type ClientConfig struct {
	// LocalAddr is the local address to bind to.
	LocalAddr string // Default: "0.0.0.0:0"

	// ReadTimeout is used to receive the response.
	ReadTimeout time.Duration // Default: 15s

	// MaxBufSize is the size of the receive buffer, which limits
	// the number of the peers in an ANNOUNCE response.
	MaxBufSize int // Default: DefaultMaxBufSize

	// If true, the responses with another transaction id, such as the late
	// replies to the retransmitted requests, are discarded and the read
	// continues until the deadline. Or, they fail with ProtocolMismatch.
	DiscardStaleResponses bool

	// ErrorLog is used to log the discarded datagrams. Default: discard
	ErrorLog func(format string, args ...interface{})
}

func (c *ClientConfig) set(conf ...ClientConfig) {
	if len(conf) > 0 {
		*c = conf[0]
	}

	if c.LocalAddr == "" {
		c.LocalAddr = "0.0.0.0:0"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = time.Second * 15
	}
	if c.MaxBufSize <= 0 {
		c.MaxBufSize = DefaultMaxBufSize
	}
	if c.ErrorLog == nil {
		c.ErrorLog = func(string, ...interface{}) {}
	}
}

// Client is a tracker client based on UDP.
//
// Notice: the request is synchronized, that's, the next request is not sent
// until the last one returns. Use two clients for two concurrent requests.
//
// BEP 15
type Client struct {
	conf ClientConfig
	conn *net.UDPConn

	lock   sync.Mutex
	state  State
	cid    uint64
	issued time.Time
}

// NewClient binds a new UDP socket on conf.LocalAddr and returns a new Client.
func NewClient(conf ...ClientConfig) (*Client, error) {
	var c ClientConfig
	c.set(conf...)

	laddr, err := net.ResolveUDPAddr("udp4", c.LocalAddr)
	if err != nil {
		return nil, newError(StepBind, BindFailed, errors.Wrap(err, "invalid local address"))
	}

	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, newError(StepBind, BindFailed, errors.WithStack(err))
	}

	return &Client{conf: c, conn: conn, state: Bound}, nil
}

// NewClientWithConn returns a new Client with the bound UDP socket,
// which is owned by the client.
func NewClientWithConn(conn *net.UDPConn, conf ...ClientConfig) *Client {
	var c ClientConfig
	c.set(conf...)
	return &Client{conf: c, conn: conn, state: Bound}
}

// Close closes the UDP socket.
func (c *Client) Close() error {
	c.lock.Lock()
	c.state = Unbound
	c.lock.Unlock()
	return c.conn.Close()
}

// LocalAddr returns the local address that the socket is bound to.
func (c *Client) LocalAddr() *net.UDPAddr {
	return c.conn.LocalAddr().(*net.UDPAddr)
}

// State returns the current state of the client.
func (c *Client) State() State {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.state
}

// ConnectionID returns the last connection id and the time when it is issued.
//
// It is zero if no CONNECT request has succeeded.
func (c *Client) ConnectionID() (cid uint64, issuedAt time.Time) {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.cid, c.issued
}

func (c *Client) resolve(ctx context.Context, step Step, host string, port uint16) (*net.UDPAddr, error) {
	ips, err := net.DefaultResolver.LookupIP(ctx, "ip4", host)
	if err != nil {
		return nil, newError(step, ResolveFailed, errors.Wrapf(err, "fail to resolve '%s'", host))
	} else if len(ips) == 0 {
		return nil, newError(step, ResolveFailed, errors.Errorf("no IPv4 address for '%s'", host))
	}
	return &net.UDPAddr{IP: ips[0], Port: int(port)}, nil
}

func (c *Client) send(step Step, raddr *net.UDPAddr, b []byte) error {
	n, err := c.conn.WriteToUDP(b, raddr)
	if err == nil && n < len(b) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return newError(step, SendFailed, errors.Wrapf(err, "fail to send to '%s'", raddr))
	}
	return nil
}

func (c *Client) deadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(c.conf.ReadTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	return deadline
}

// exchange sends the request to raddr and waits for the response
// with the action and the transaction id, which has minsize bytes at least.
//
// The datagrams from the other addresses are discarded.
func (c *Client) exchange(ctx context.Context, step Step, raddr *net.UDPAddr,
	req []byte, action, tid uint32, minsize int) ([]byte, error) {
	if err := c.send(step, raddr, req); err != nil {
		return nil, err
	}

	c.conn.SetReadDeadline(c.deadline(ctx))
	if done := ctx.Done(); done != nil {
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			select {
			case <-done:
				c.conn.SetReadDeadline(time.Now())
			case <-stop:
			}
		}()
	}

	buf := make([]byte, c.conf.MaxBufSize)
	for {
		n, from, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			if ctxerr := ctx.Err(); ctxerr != nil {
				if ctxerr == context.DeadlineExceeded {
					return nil, newError(step, RecvTimeout, ctxerr)
				}
				return nil, newError(step, RecvFailed, ctxerr)
			} else if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return nil, newError(step, RecvTimeout, errors.WithStack(err))
			}
			return nil, newError(step, RecvFailed, errors.WithStack(err))
		}

		if from.Port != raddr.Port || !from.IP.Equal(raddr.IP) {
			c.conf.ErrorLog("udptracker: discard the datagram from '%s', expect '%s'", from, raddr)
			continue
		}

		data := buf[:n]
		if n < 8 {
			return nil, newError(step, ShortResponse,
				errors.Errorf("got %d bytes, expect %d bytes at least", n, minsize))
		}

		if rtid := binary.BigEndian.Uint32(data[4:8]); rtid != tid {
			if c.conf.DiscardStaleResponses {
				c.conf.ErrorLog("udptracker: discard the datagram with transaction id %d, expect %d", rtid, tid)
				continue
			}
			return nil, newError(step, ProtocolMismatch,
				errors.Errorf("expect transaction id %d, but got %d", tid, rtid))
		}

		switch raction := binary.BigEndian.Uint32(data[:4]); raction {
		case action:
		case ActionError:
			return nil, newError(step, TrackerFailure, errors.New(string(data[8:])))
		default:
			return nil, newError(step, ProtocolMismatch,
				errors.Errorf("expect action %d, but got %d", action, raction))
		}

		if n < minsize {
			return nil, newError(step, ShortResponse,
				errors.Errorf("got %d bytes, expect %d bytes at least", n, minsize))
		}

		return data, nil
	}
}

// Connect sends the CONNECT request to the tracker host:port,
// and returns the connection id issued by the tracker.
func (c *Client) Connect(ctx context.Context, host string, port uint16) (cid uint64, err error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if cid, err = c.connect(ctx, host, port); err != nil {
		c.state = Failed
		return
	}

	c.cid, c.issued, c.state = cid, time.Now(), Connected
	return
}

func (c *Client) connect(ctx context.Context, host string, port uint16) (uint64, error) {
	raddr, err := c.resolve(ctx, StepConnect, host, port)
	if err != nil {
		return 0, err
	}

	tid := helper.RandomUint32()
	buf := bytes.NewBuffer(make([]byte, 0, ConnectRequestSize))
	encodeHeader(buf, ProtocolID, ActionConnect, tid)

	data, err := c.exchange(ctx, StepConnect, raddr, buf.Bytes(),
		ActionConnect, tid, ConnectResponseSize)
	if err != nil {
		return 0, err
	}

	return binary.BigEndian.Uint64(data[8:16]), nil
}

// Announce sends the ANNOUNCE request to the tracker host:port
// with the connection id and the infohash, which requests DefaultNumWant
// peers and leaves the other fields zero.
func (c *Client) Announce(ctx context.Context, cid uint64, infohash metainfo.Hash,
	host string, port uint16) (AnnounceResponse, error) {
	req := AnnounceRequest{InfoHash: infohash, NumWant: DefaultNumWant}
	return c.AnnounceWith(ctx, cid, host, port, req)
}

// AnnounceWith is the same as Announce, but sends the full request.
//
// Notice: If returning an error, you should retry it.
// See http://www.bittorrent.org/beps/bep_0015.html#time-outs
func (c *Client) AnnounceWith(ctx context.Context, cid uint64, host string,
	port uint16, req AnnounceRequest) (resp AnnounceResponse, err error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.state = AnnouncePending
	if resp, err = c.announce(ctx, cid, host, port, req); err != nil {
		c.state = Failed
	} else {
		c.state = Done
	}
	return
}

func (c *Client) announce(ctx context.Context, cid uint64, host string,
	port uint16, req AnnounceRequest) (r AnnounceResponse, err error) {
	raddr, err := c.resolve(ctx, StepAnnounce, host, port)
	if err != nil {
		return
	}

	tid := helper.RandomUint32()
	buf := bytes.NewBuffer(make([]byte, 0, AnnounceRequestSize))
	encodeHeader(buf, cid, ActionAnnounce, tid)
	req.EncodeTo(buf)

	data, err := c.exchange(ctx, StepAnnounce, raddr, buf.Bytes(),
		ActionAnnounce, tid, AnnounceResponseMinSize)
	if err != nil {
		return
	}

	r.DecodeFrom(data[8:])
	return
}

// Scrape sends the SCRAPE request of the infohashes to the tracker host:port
// with the connection id, and returns the results in the order of infohashes.
func (c *Client) Scrape(ctx context.Context, cid uint64, host string, port uint16,
	infohashes []metainfo.Hash) (rs []ScrapeResponse, err error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	raddr, err := c.resolve(ctx, StepScrape, host, port)
	if err != nil {
		return
	}

	tid := helper.RandomUint32()
	buf := bytes.NewBuffer(make([]byte, 0, 16+len(infohashes)*metainfo.HashSize))
	encodeHeader(buf, cid, ActionScrape, tid)
	for _, h := range infohashes {
		buf.Write(h[:])
	}

	data, err := c.exchange(ctx, StepScrape, raddr, buf.Bytes(),
		ActionScrape, tid, ScrapeResponseHeaderSize)
	if err != nil {
		return
	}

	data = data[8:]
	_len := len(data)
	rs = make([]ScrapeResponse, 0, _len/12)
	for i := 12; i <= _len; i += 12 {
		var r ScrapeResponse
		r.DecodeFrom(data[i-12 : i])
		rs = append(rs, r)
	}

	return
}
