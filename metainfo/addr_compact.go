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
	"bytes"
	"encoding"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
)

// CompactAddrSize is the size of an IPv4 "Compact IP-address/port info".
const CompactAddrSize = net.IPv4len + 2

// CompactAddr represents an IPv4 address and port, which implements
// "Compact IP-address/port info": 4 bytes of IP and 2 bytes of port,
// both in network byte order.
//
// See http://bittorrent.org/beps/bep_0015.html.
type CompactAddr struct {
	IP   net.IP // Its length must be 4.
	Port uint16
}

// NewCompactAddr returns a new compact Addr with ip and port.
func NewCompactAddr(ip net.IP, port uint16) CompactAddr {
	return CompactAddr{IP: ip.To4(), Port: port}
}

// Valid reports whether the addr is a valid IPv4 address with the port.
func (a CompactAddr) Valid() bool {
	return len(a.IP.To4()) == net.IPv4len && a.Port > 0
}

// Equal reports whether a is equal to o.
func (a CompactAddr) Equal(o CompactAddr) bool {
	return a.Port == o.Port && a.IP.Equal(o.IP)
}

// UDPAddr converts itself to *net.UDPAddr.
func (a CompactAddr) UDPAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: a.IP, Port: int(a.Port)}
}

// TCPAddr converts itself to *net.TCPAddr, which is what the peers listen on.
func (a CompactAddr) TCPAddr() *net.TCPAddr {
	return &net.TCPAddr{IP: a.IP, Port: int(a.Port)}
}

func (a CompactAddr) String() string {
	if a.Port == 0 {
		return a.IP.String()
	}
	return net.JoinHostPort(a.IP.String(), strconv.FormatUint(uint64(a.Port), 10))
}

// WriteBinary is the same as MarshalBinary, but writes the result into w
// instead of returning.
func (a CompactAddr) WriteBinary(w io.Writer) (n int, err error) {
	ip := a.IP.To4()
	if ip == nil {
		return 0, fmt.Errorf("CompactAddr: '%s' is not an IPv4 address", a.IP)
	}

	if n, err = w.Write(ip); err == nil {
		if err = binary.Write(w, binary.BigEndian, a.Port); err == nil {
			n += 2
		}
	}
	return
}

var (
	_ encoding.BinaryMarshaler   = new(CompactAddr)
	_ encoding.BinaryUnmarshaler = new(CompactAddr)
)

// MarshalBinary implements the interface encoding.BinaryMarshaler,
func (a CompactAddr) MarshalBinary() (data []byte, err error) {
	buf := bytes.NewBuffer(nil)
	buf.Grow(CompactAddrSize)
	if _, err = a.WriteBinary(buf); err == nil {
		data = buf.Bytes()
	}
	return
}

// UnmarshalBinary implements the interface encoding.BinaryUnmarshaler.
func (a *CompactAddr) UnmarshalBinary(data []byte) error {
	if len(data) != CompactAddrSize {
		return errors.New("invalid compact ip-address/port info")
	}

	a.IP = make(net.IP, net.IPv4len)
	copy(a.IP, data[:net.IPv4len])
	a.Port = binary.BigEndian.Uint16(data[net.IPv4len:])
	return nil
}

// >>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>

var (
	_ encoding.BinaryMarshaler   = new(CompactIPv4Addrs)
	_ encoding.BinaryUnmarshaler = new(CompactIPv4Addrs)
)

// CompactIPv4Addrs is a set of IPv4 Addrs.
type CompactIPv4Addrs []CompactAddr

// MarshalBinary implements the interface encoding.BinaryMarshaler.
//
// The non-IPv4 addresses are skipped.
func (cas CompactIPv4Addrs) MarshalBinary() ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	buf.Grow(CompactAddrSize * len(cas))
	for _, addr := range cas {
		if addr.IP.To4() == nil {
			continue
		}
		if _, err := addr.WriteBinary(buf); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary implements the interface encoding.BinaryUnmarshaler.
func (cas *CompactIPv4Addrs) UnmarshalBinary(b []byte) (err error) {
	_len := len(b)
	if _len%CompactAddrSize != 0 {
		return fmt.Errorf("CompactIPv4Addrs: invalid addr info length '%d'", _len)
	}

	addrs := make(CompactIPv4Addrs, 0, _len/CompactAddrSize)
	for i := 0; i < _len; i += CompactAddrSize {
		var addr CompactAddr
		if err = addr.UnmarshalBinary(b[i : i+CompactAddrSize]); err != nil {
			return
		}
		addrs = append(addrs, addr)
	}

	*cas = addrs
	return
}
