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
	"crypto/sha1"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testInfo = "d6:lengthi1048576e4:name8:file.bin12:piece lengthi262144e6:pieces0:e"

var testTorrent = "d8:announce30:udp://tracker.example.org:6969" +
	"13:announce-listll30:udp://tracker.example.org:6969el26:http://tracker.example.com" +
	"21:udp://127.0.0.1:80/xxee" +
	"4:info" + testInfo + "e"

func TestTorrent(t *testing.T) {
	tt, err := NewTorrent([]byte(testTorrent))
	require.NoError(t, err)

	h, err := tt.InfoHash()
	require.NoError(t, err)
	assert.Equal(t, Hash(sha1.Sum([]byte(testInfo))), h)
	assert.Equal(t, "file.bin", tt.Name())

	assert.Equal(t, []string{
		"udp://tracker.example.org:6969",
		"http://tracker.example.com",
		"udp://127.0.0.1:80/xx",
	}, tt.AnnounceURLs())

	assert.Equal(t, []string{
		"udp://tracker.example.org:6969",
		"udp://127.0.0.1:80/xx",
	}, tt.UDPTrackers())
}

func TestTorrentErrors(t *testing.T) {
	_, err := NewTorrent([]byte("li1ee"))
	assert.Error(t, err)

	_, err = NewTorrent([]byte("d4:info"))
	assert.Error(t, err)

	tt, err := NewTorrent([]byte("d4:name3:fooe"))
	require.NoError(t, err)
	_, err = tt.InfoHash()
	assert.Error(t, err)
	assert.Empty(t, tt.AnnounceURLs())
}
