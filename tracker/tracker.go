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

// Package tracker supplies a URL-level client of the BT tracker.
//
// The UDP tracker client caches the connection id and retries
// the timed-out requests.
package tracker

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/xgfone/btlite/metainfo"
	"github.com/xgfone/btlite/tracker/httptracker"
	"github.com/xgfone/btlite/tracker/udptracker"
)

// Predefine some announce events.
//
// BEP 3
const (
	None      uint32 = iota
	Completed        // The local peer just completed the torrent.
	Started          // The local peer has just resumed this torrent.
	Stopped          // The local peer is leaving the swarm.
)

// DefaultRetryBase is the base timeout of the retransmission.
//
// BEP 15
const DefaultRetryBase = time.Second * 15

// AnnounceRequest is the common Announce request.
//
// BEP 3, 15
type AnnounceRequest struct {
	InfoHash metainfo.Hash // Required
	PeerID   metainfo.Hash // Optional, Default: ClientConfig.ID

	Uploaded   int64  // Required, but default: 0, which should be only used for test or first.
	Downloaded int64  // Required, but default: 0, which should be only used for test or first.
	Left       int64  // Required, but default: 0, which should be only used for test or last.
	Event      uint32 // Required, but default: 0

	IP      net.IP // Optional
	Key     uint32 // Optional
	NumWant int32  // Optional, BEP 15: -1 for default. But we use 0 as default.
	Port    uint16 // Optional
}

// ToHTTPAnnounceRequest creates a new httptracker.AnnounceRequest from itself.
func (ar AnnounceRequest) ToHTTPAnnounceRequest() httptracker.AnnounceRequest {
	var ip string
	if ar.IP != nil && !ar.IP.IsUnspecified() {
		ip = ar.IP.String()
	}

	return httptracker.AnnounceRequest{
		InfoHash:   ar.InfoHash,
		PeerID:     ar.PeerID,
		Uploaded:   ar.Uploaded,
		Downloaded: ar.Downloaded,
		Left:       ar.Left,
		Port:       ar.Port,
		IP:         ip,
		Event:      ar.Event,
		Compact:    true,
		NumWant:    ar.NumWant,
		Key:        ar.Key,
	}
}

// ToUDPAnnounceRequest creates a new udptracker.AnnounceRequest from itself.
func (ar AnnounceRequest) ToUDPAnnounceRequest() udptracker.AnnounceRequest {
	numWant := ar.NumWant
	if numWant == 0 {
		numWant = udptracker.DefaultNumWant
	}

	return udptracker.AnnounceRequest{
		InfoHash:   ar.InfoHash,
		PeerID:     ar.PeerID,
		Downloaded: ar.Downloaded,
		Left:       ar.Left,
		Uploaded:   ar.Uploaded,
		Event:      ar.Event,
		IP:         ar.IP,
		Key:        ar.Key,
		NumWant:    numWant,
		Port:       ar.Port,
	}
}

// AnnounceResponse is a common Announce response.
//
// BEP 3, 15
type AnnounceResponse struct {
	Interval uint32
	Leechers uint32
	Seeders  uint32
	Peers    []metainfo.CompactAddr
}

// FromHTTPAnnounceResponse sets itself from r. The non-IPv4 peers are skipped.
func (ar *AnnounceResponse) FromHTTPAnnounceResponse(r httptracker.AnnounceResponse) {
	ar.Interval = r.Interval
	ar.Leechers = r.Incomplete
	ar.Seeders = r.Complete
	ar.Peers = r.Peers.CompactAddrs()
}

// FromUDPAnnounceResponse sets itself from r.
func (ar *AnnounceResponse) FromUDPAnnounceResponse(r udptracker.AnnounceResponse) {
	ar.Interval = r.Interval
	ar.Leechers = r.Leechers
	ar.Seeders = r.Seeders
	ar.Peers = r.Peers
}

// ScrapeResponseResult is a commont Scrape response result.
type ScrapeResponseResult struct {
	// Seeders is the number of active peers that have completed downloading.
	Seeders uint32 // BEP 15, 48

	// Leechers is the number of active peers that have not completed downloading.
	Leechers uint32 // BEP 15, 48

	// Completed is the total number of peers that have ever completed downloading.
	Completed uint32 // BEP 15, 48
}

// ScrapeResponse is a commont Scrape response.
type ScrapeResponse map[metainfo.Hash]ScrapeResponseResult

// FromHTTPScrapeResponse sets itself from r.
func (sr ScrapeResponse) FromHTTPScrapeResponse(r httptracker.ScrapeResponse) {
	for k, v := range r.Files {
		sr[k] = ScrapeResponseResult{
			Seeders:   v.Complete,
			Leechers:  v.Incomplete,
			Completed: v.Downloaded,
		}
	}
}

// FromUDPScrapeResponse sets itself from hs and r.
func (sr ScrapeResponse) FromUDPScrapeResponse(hs []metainfo.Hash,
	r []udptracker.ScrapeResponse) {
	klen := len(hs)
	if _len := len(r); _len < klen {
		klen = _len
	}

	for i := 0; i < klen; i++ {
		sr[hs[i]] = ScrapeResponseResult{
			Seeders:   r[i].Seeders,
			Leechers:  r[i].Leechers,
			Completed: r[i].Completed,
		}
	}
}

// Client is the interface of BT tracker client.
type Client interface {
	Announce(context.Context, AnnounceRequest) (AnnounceResponse, error)
	Scrape(context.Context, []metainfo.Hash) (ScrapeResponse, error)
	String() string
	Close() error
}

// ClientConfig is used to configure the defalut client implementation.
type ClientConfig struct {
	// The ID of the local client peer.
	ID metainfo.Hash

	// The http client used only the tracker client is based on HTTP.
	HTTPClient *http.Client

	// UDP is used to configure the underlying UDP tracker client.
	UDP udptracker.ClientConfig

	// MaxRetries is the maximum number of the retransmissions after
	// a UDP request times out. 0 means that the request is sent once.
	//
	// If MaxRetries is positive, the n-th attempt waits RetryBase*2^n
	// for the response, and the late replies to the earlier attempts
	// are discarded.
	MaxRetries int           // Default: 0
	RetryBase  time.Duration // Default: DefaultRetryBase
}

func (c *ClientConfig) set(conf ...ClientConfig) {
	if len(conf) > 0 {
		*c = conf[0]
	}

	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = DefaultRetryBase
	}
	if c.UDP.ErrorLog == nil {
		c.UDP.ErrorLog = func(string, ...interface{}) {}
	}
	if c.MaxRetries > 0 {
		c.UDP.DiscardStaleResponses = true
		if c.UDP.ReadTimeout <= 0 {
			c.UDP.ReadTimeout = c.RetryBase << uint(c.MaxRetries)
		}
	}
}

// NewClient returns a new Client.
//
// The url scheme is one of "http", "https", "udp" and "udp4",
// such as "udp://tracker.example.com:6969/announce".
func NewClient(connURL string, conf ...ClientConfig) (c Client, err error) {
	var config ClientConfig
	config.set(conf...)

	u, err := url.Parse(connURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid tracker url '%s'", connURL)
	}

	switch u.Scheme {
	case "http", "https":
		tracker := httptracker.NewClient(connURL, "")
		tracker.Client = config.HTTPClient
		if !config.ID.IsZero() {
			tracker.ID = config.ID
		}
		return &tclient{url: connURL, conf: config, http: tracker}, nil

	case "udp", "udp4":
	default:
		return nil, errors.Errorf("unknown url scheme '%s'", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return nil, errors.Errorf("missing the tracker host in '%s'", connURL)
	}

	port, err := strconv.ParseUint(u.Port(), 10, 16)
	if err != nil || port == 0 {
		return nil, errors.Errorf("invalid tracker port in '%s'", connURL)
	}

	utc, err := udptracker.NewClient(config.UDP)
	if err != nil {
		return
	}

	return &tclient{
		url:  connURL,
		host: host,
		port: uint16(port),
		conf: config,
		udp:  utc,
	}, nil
}

type tclient struct {
	url  string
	host string
	port uint16
	conf ClientConfig
	http *httptracker.Client // BEP 3
	udp  *udptracker.Client  // BEP 15

	lock   sync.Mutex
	cid    uint64
	issued time.Time
}

func (c *tclient) String() string { return c.url }
func (c *tclient) Close() error {
	if c.http != nil {
		return c.http.Close()
	}
	return c.udp.Close()
}

func (c *tclient) connectionID(ctx context.Context) (cid uint64, err error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if !c.issued.IsZero() && time.Since(c.issued) < udptracker.ConnectionIDTTL {
		return c.cid, nil
	}

	if cid, err = c.udp.Connect(ctx, c.host, c.port); err == nil {
		c.cid, c.issued = cid, time.Now()
	}
	return
}

func (c *tclient) resetConnectionID() {
	c.lock.Lock()
	c.cid, c.issued = 0, time.Time{}
	c.lock.Unlock()
}

// retry calls f until it succeeds, it fails without a timeout,
// or the retries are exhausted.
func (c *tclient) retry(ctx context.Context, f func(context.Context) error) (err error) {
	for n := 0; ; n++ {
		if c.conf.MaxRetries == 0 {
			return f(ctx)
		}

		actx, cancel := context.WithTimeout(ctx, c.conf.RetryBase<<uint(n))
		err = f(actx)
		cancel()

		switch {
		case err == nil, !errors.Is(err, udptracker.RecvTimeout):
			return
		case ctx.Err() != nil, n >= c.conf.MaxRetries:
			return
		}
		c.conf.UDP.ErrorLog("tracker: retry '%s' after the timeout: %s", c.url, err)
	}
}

func (c *tclient) Announce(ctx context.Context, req AnnounceRequest) (resp AnnounceResponse, err error) {
	if req.PeerID.IsZero() {
		req.PeerID = c.conf.ID
	}

	if c.http != nil {
		var r httptracker.AnnounceResponse
		if r, err = c.http.Announce(ctx, req.ToHTTPAnnounceRequest()); err != nil {
			return
		} else if r.FailureReason != "" {
			err = errors.New(r.FailureReason)
			return
		}
		resp.FromHTTPAnnounceResponse(r)
		return
	}

	ureq := req.ToUDPAnnounceRequest()
	err = c.retry(ctx, func(ctx context.Context) error {
		cid, err := c.connectionID(ctx)
		if err != nil {
			return err
		}

		r, err := c.udp.AnnounceWith(ctx, cid, c.host, c.port, ureq)
		if err != nil {
			if errors.Is(err, udptracker.ProtocolMismatch) {
				c.resetConnectionID()
			}
			return err
		}

		resp.FromUDPAnnounceResponse(r)
		return nil
	})
	return
}

func (c *tclient) Scrape(ctx context.Context, hs []metainfo.Hash) (resp ScrapeResponse, err error) {
	if c.http != nil {
		var r httptracker.ScrapeResponse
		if r, err = c.http.Scrape(ctx, hs); err != nil {
			return
		} else if r.FailureReason != "" {
			err = errors.New(r.FailureReason)
			return
		}
		resp = make(ScrapeResponse, len(r.Files))
		resp.FromHTTPScrapeResponse(r)
		return
	}

	err = c.retry(ctx, func(ctx context.Context) error {
		cid, err := c.connectionID(ctx)
		if err != nil {
			return err
		}

		r, err := c.udp.Scrape(ctx, cid, c.host, c.port, hs)
		if err != nil {
			if errors.Is(err, udptracker.ProtocolMismatch) {
				c.resetConnectionID()
			}
			return err
		}

		resp = make(ScrapeResponse, len(r))
		resp.FromUDPScrapeResponse(hs, r)
		return nil
	})
	return
}
