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

package tracker

import (
	"context"
	"sync"

	"github.com/xgfone/btlite/metainfo"
)

// GetPeersResult represents the result of getting the peers from the tracker.
type GetPeersResult struct {
	Error   error // nil stands for success. Or, for failure.
	Tracker string
	Resp    AnnounceResponse
}

// GetPeers gets the peers from the trackers concurrently, at most 10 at once,
// and returns one result for each tracker in the order of trackers.
func GetPeers(ctx context.Context, id, infohash metainfo.Hash, trackers []string,
	conf ...ClientConfig) []GetPeersResult {
	if len(trackers) == 0 {
		return nil
	}

	_len := len(trackers)
	wlen := _len
	if wlen > 10 {
		wlen = 10
	}

	reqs := make(chan int, wlen)
	go func() {
		for i := 0; i < _len; i++ {
			reqs <- i
		}
		close(reqs)
	}()

	var config ClientConfig
	if len(conf) > 0 {
		config = conf[0]
	}
	config.ID = id

	wg := new(sync.WaitGroup)
	wg.Add(wlen)

	results := make([]GetPeersResult, _len)
	for i := 0; i < wlen; i++ {
		go func() {
			defer wg.Done()
			for index := range reqs {
				tracker := trackers[index]
				resp, err := getPeers(ctx, tracker, config, infohash)
				results[index] = GetPeersResult{Tracker: tracker, Error: err, Resp: resp}
			}
		}()
	}

	wg.Wait()
	return results
}

func getPeers(ctx context.Context, tracker string, conf ClientConfig,
	infoHash metainfo.Hash) (resp AnnounceResponse, err error) {
	client, err := NewClient(tracker, conf)
	if err != nil {
		return
	}
	defer client.Close()

	return client.Announce(ctx, AnnounceRequest{InfoHash: infoHash})
}
