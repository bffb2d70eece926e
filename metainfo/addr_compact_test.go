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
	"net"
	"testing"
)

func TestCompactAddr(t *testing.T) {
	addrs := CompactIPv4Addrs{
		NewCompactAddr(net.ParseIP("172.16.1.1"), 123),
		NewCompactAddr(net.ParseIP("192.168.1.1"), 456),
	}
	expect := "\xac\x10\x01\x01\x00\x7b\xc0\xa8\x01\x01\x01\xc8"

	b, err := addrs.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	} else if string(b) != expect {
		t.Errorf("expect %x, but got %x\n", expect, b)
	}

	var raddrs CompactIPv4Addrs
	if err := raddrs.UnmarshalBinary(b); err != nil {
		t.Error(err)
	} else if len(raddrs) != len(addrs) {
		t.Errorf("expect addrs length %d, but got %d\n", len(addrs), len(raddrs))
	} else {
		for i, addr := range addrs {
			if !addr.Equal(raddrs[i]) {
				t.Errorf("%d: expect addr %v, but got %v\n", i, addr, raddrs[i])
			}
		}
	}

	if s := raddrs[1].String(); s != "192.168.1.1:456" {
		t.Errorf("expect '192.168.1.1:456', but got '%s'", s)
	}

	if err := raddrs.UnmarshalBinary(b[:7]); err == nil {
		t.Error("expect an error for the truncated addr info")
	}

	if _, err := NewCompactAddr(net.ParseIP("::1"), 80).MarshalBinary(); err == nil {
		t.Error("expect an error for the IPv6 address")
	}
}
