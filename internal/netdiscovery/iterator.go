package netdiscovery

import (
	"encoding/binary"
	"net"
)

// addressIterator walks an inclusive IPv4 start–end range, one address at a
// time, covering an explicit start–end pair rather than a network mask.
type addressIterator struct {
	start, end uint32
	cur        uint32
	exhausted  bool
	size       uint64
}

// newAddressIterator parses start/end dotted-quad addresses and builds an
// iterator over the inclusive range. A structurally invalid range —
// unparseable, start > end, or an all-zero start address — yields a
// zero-size iterator.
func newAddressIterator(start, end string) (*addressIterator, bool) {
	s := net.ParseIP(start).To4()
	e := net.ParseIP(end).To4()
	if s == nil || e == nil {
		return &addressIterator{}, false
	}
	su := binary.BigEndian.Uint32(s)
	eu := binary.BigEndian.Uint32(e)
	if su > eu {
		return &addressIterator{}, false
	}
	if su == 0 {
		// All-zero start address: treat as an invalid/unrouted block.
		return &addressIterator{}, false
	}
	return &addressIterator{
		start: su,
		end:   eu,
		cur:   su,
		size:  uint64(eu-su) + 1,
	}, true
}

// Size returns the total number of addresses in the range.
func (it *addressIterator) Size() uint64 {
	return it.size
}

// Current returns the current address and true, or ("", false) once
// exhausted.
func (it *addressIterator) Current() (string, bool) {
	if it.exhausted || it.size == 0 {
		return "", false
	}
	return uint32ToIP(it.cur), true
}

// Advance moves to the next address in the range, marking the iterator
// exhausted once the end is passed.
func (it *addressIterator) Advance() {
	if it.exhausted || it.size == 0 {
		return
	}
	if it.cur == it.end {
		it.exhausted = true
		return
	}
	it.cur++
}

// Exhausted reports whether the range has no more addresses to yield.
func (it *addressIterator) Exhausted() bool {
	return it.exhausted || it.size == 0
}

func uint32ToIP(v uint32) string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return net.IP(b[:]).String()
}
