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

// Package httptracker implements the client of the tracker protocol
// based on HTTP/HTTPS, whose responses are decoded by the bencode package.
package httptracker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/xgfone/btlite/bencode"
	"github.com/xgfone/btlite/metainfo"
)

// MaxResponseSize is the maximum size of the response body.
const MaxResponseSize = 1 << 20

// AnnounceRequest is the tracker announce requests.
//
// BEP 3
type AnnounceRequest struct {
	// InfoHash is the sha1 hash of the bencoded form of the info value from the metainfo file.
	InfoHash metainfo.Hash // BEP 3

	// PeerID is the id of the downloader.
	//
	// Each downloader generates its own id at random at the start of a new download.
	PeerID metainfo.Hash // BEP 3

	Uploaded   int64 // BEP 3
	Downloaded int64 // BEP 3

	// Left is the number of bytes this peer still has to download.
	Left int64 // BEP 3

	// Port is the port that this peer is listening on.
	Port uint16 // BEP 3

	// IP is the ip or DNS name which this peer is at.
	//
	// Optional.
	IP string // BEP 3

	// Event is one of 0(none), 1(completed), 2(started) and 3(stopped),
	// which is the same as BEP 15.
	//
	// Optional
	Event uint32 // BEP 3

	// Compact indicates whether it hopes the tracker to return the compact
	// peer lists.
	//
	// Optional
	Compact bool // BEP 23

	// NumWant is the number of peers that the client would like to receive
	// from the tracker. If omitted, typically defaults to 50 peers.
	//
	// Optional.
	NumWant int32

	Key uint32
}

var events = [...]string{"", "completed", "started", "stopped"}

// ToQuery converts the Request to URL Query.
func (r AnnounceRequest) ToQuery() (vs url.Values) {
	vs = make(url.Values, 10)
	vs.Set("info_hash", string(r.InfoHash[:]))
	vs.Set("peer_id", string(r.PeerID[:]))
	vs.Set("uploaded", strconv.FormatInt(r.Uploaded, 10))
	vs.Set("downloaded", strconv.FormatInt(r.Downloaded, 10))
	vs.Set("left", strconv.FormatInt(r.Left, 10))

	if r.IP != "" {
		vs.Set("ip", r.IP)
	}
	if r.Event > 0 && int(r.Event) < len(events) {
		vs.Set("event", events[r.Event])
	}
	if r.Port > 0 {
		vs.Set("port", strconv.FormatUint(uint64(r.Port), 10))
	}
	if r.NumWant > 0 {
		vs.Set("numwant", strconv.FormatInt(int64(r.NumWant), 10))
	}
	if r.Key != 0 {
		vs.Set("key", strconv.FormatUint(uint64(r.Key), 10))
	}

	// BEP 23
	if r.Compact {
		vs.Set("compact", "1")
	} else {
		vs.Set("compact", "0")
	}

	return
}

// AnnounceResponse is a announce response.
type AnnounceResponse struct {
	FailureReason  string
	WarningMessage string

	// Interval is the seconds the downloader should wait before next rerequest.
	Interval    uint32 // BEP 3
	MinInterval uint32

	// Peers is the list of the peers.
	Peers Peers // BEP 3, BEP 23

	// Complete is the number of peers with the entire file.
	Complete uint32
	// Incomplete is the number of non-seeder peers.
	Incomplete uint32
	// TrackerID is that the client should send back on its next announcements.
	TrackerID string
}

func getUint32(d *bencode.Dict, key string) uint32 {
	if v, ok := d.GetInt(key); ok && v > 0 && v <= 0xffffffff {
		return uint32(v)
	}
	return 0
}

func getString(d *bencode.Dict, key string) string {
	v, _ := d.GetBytes(key)
	return string(v)
}

func decodeRoot(b []byte) (*bencode.Dict, error) {
	doc, err := bencode.Decode(b)
	if err != nil {
		return nil, err
	}

	root, ok := doc.Root().(*bencode.Dict)
	if !ok {
		return nil, errors.New("the tracker response is not a dict")
	}
	return root, nil
}

// DecodeFrom decodes the bencoded response from b.
//
// The peers are not decoded if the failure reason is present.
func (r *AnnounceResponse) DecodeFrom(b []byte) (err error) {
	root, err := decodeRoot(b)
	if err != nil {
		return
	}

	if r.FailureReason = getString(root, "failure reason"); r.FailureReason != "" {
		return
	}

	r.WarningMessage = getString(root, "warning message")
	r.Interval = getUint32(root, "interval")
	r.MinInterval = getUint32(root, "min interval")
	r.Complete = getUint32(root, "complete")
	r.Incomplete = getUint32(root, "incomplete")
	r.TrackerID = getString(root, "tracker id")

	if v, ok := root.Lookup("peers"); ok {
		if r.Peers, err = decodePeers(v); err != nil {
			return errors.Wrap(err, "invalid peers")
		}
	}

	return
}

// ScrapeResponseResult is the result of the scraped file.
type ScrapeResponseResult struct {
	// Complete is the number of active peers that have completed downloading.
	Complete uint32 // BEP 48

	// Incomplete is the number of active peers that have not completed downloading.
	Incomplete uint32 // BEP 48

	// The number of peers that have ever completed downloading.
	Downloaded uint32 // BEP 48
}

// ScrapeResponse represents a Scrape response.
//
// BEP 48
type ScrapeResponse struct {
	FailureReason string

	Files map[metainfo.Hash]ScrapeResponseResult
}

// DecodeFrom decodes the bencoded response from b.
//
// The files whose key is not a 20-byte infohash are ignored.
func (sr *ScrapeResponse) DecodeFrom(b []byte) (err error) {
	root, err := decodeRoot(b)
	if err != nil {
		return
	}

	sr.FailureReason = getString(root, "failure reason")
	files, ok := root.GetDict("files")
	if !ok {
		return
	}

	sr.Files = make(map[metainfo.Hash]ScrapeResponseResult, files.Len())
	for _, entry := range files.Entries {
		file, ok := entry.Value.(*bencode.Dict)
		if !ok || entry.Key.Len() != metainfo.HashSize {
			continue
		}

		sr.Files[metainfo.NewHash(entry.Key.Data)] = ScrapeResponseResult{
			Complete:   getUint32(file, "complete"),
			Incomplete: getUint32(file, "incomplete"),
			Downloaded: getUint32(file, "downloaded"),
		}
	}

	return
}

// Client represents a tracker client based on HTTP/HTTPS.
type Client struct {
	Client      *http.Client
	ID          metainfo.Hash
	AnnounceURL string
	ScrapeURL   string
}

// NewClient returns a new HTTPClient.
//
// scrapeURL may be empty, which will replace the "announce" in announceURL
// with "scrape" to generate the scrapeURL.
func NewClient(announceURL, scrapeURL string) *Client {
	if scrapeURL == "" {
		scrapeURL = strings.Replace(announceURL, "announce", "scrape", -1)
	}
	id := metainfo.NewRandomHash()
	return &Client{AnnounceURL: announceURL, ScrapeURL: scrapeURL, ID: id}
}

// Close closes the client, which does nothing at present.
func (t *Client) Close() error   { return nil }
func (t *Client) String() string { return t.AnnounceURL }

func (t *Client) send(c context.Context, u string, vs url.Values) (body []byte, err error) {
	var url string
	if strings.IndexByte(u, '?') < 0 {
		url = fmt.Sprintf("%s?%s", u, vs.Encode())
	} else {
		url = fmt.Sprintf("%s&%s", u, vs.Encode())
	}

	req, err := http.NewRequestWithContext(c, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fail to request '%s'", u)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("the tracker '%s' responds the status code %d",
			u, resp.StatusCode)
	}

	body, err = io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	return body, errors.WithStack(err)
}

// Announce sends a Announce request to the tracker.
func (t *Client) Announce(c context.Context, req AnnounceRequest) (resp AnnounceResponse, err error) {
	if req.PeerID.IsZero() {
		if t.ID.IsZero() {
			req.PeerID = metainfo.NewRandomHash()
		} else {
			req.PeerID = t.ID
		}
	}

	body, err := t.send(c, t.AnnounceURL, req.ToQuery())
	if err == nil {
		err = resp.DecodeFrom(body)
	}
	return
}

// Scrape sends a Scrape request to the tracker.
func (t *Client) Scrape(c context.Context, infohashes []metainfo.Hash) (resp ScrapeResponse, err error) {
	hs := make([]string, len(infohashes))
	for i, h := range infohashes {
		hs[i] = string(h[:])
	}

	body, err := t.send(c, t.ScrapeURL, url.Values{"info_hash": hs})
	if err == nil {
		err = resp.DecodeFrom(body)
	}
	return
}
