package wire

import (
	"encoding/binary"
	"fmt"
	"net"
)

// A returns the dotted-quad string for an A record's RDATA.
func (rr RR) A() (string, bool) {
	if rr.Type != TypeA || len(rr.RData) != 4 {
		return "", false
	}
	return net.IP(rr.RData).String(), true
}

// AAAA returns the textual IPv6 address for an AAAA record's RDATA,
// falling back to eight raw hex groups (no :: compression) if the
// standard library can't render it.
func (rr RR) AAAA() (string, bool) {
	if rr.Type != TypeAAAA || len(rr.RData) != 16 {
		return "", false
	}
	if ip := net.IP(rr.RData); ip != nil {
		if s := ip.String(); s != "" {
			return s, true
		}
	}
	groups := make([]string, 8)
	for i := 0; i < 8; i++ {
		groups[i] = fmt.Sprintf("%04x", binary.BigEndian.Uint16(rr.RData[i*2:i*2+2]))
	}
	out := groups[0]
	for _, g := range groups[1:] {
		out += ":" + g
	}
	return out, true
}

// RDATAName decodes the domain name carried in an NS or CNAME record's
// RDATA, decompressing against the message's original wire buffer
// since compression pointers may reach back into any earlier part of it.
func (rr RR) RDATAName(msg *Message) (string, bool) {
	if rr.Type != TypeNS && rr.Type != TypeCNAME {
		return "", false
	}
	if len(rr.RData) == 0 {
		return "", false
	}
	name, _, err := DecodeName(msg.Wire, rr.RDataOffset)
	if err != nil {
		return "", false
	}
	return name, true
}

// SOAMinimum decodes an SOA record's RDATA and returns its MINIMUM
// field, which callers use as the negative-caching TTL hint. If the
// RDATA is malformed, ok is false and the caller should fall back to
// the RR's own TTL.
func (rr RR) SOAMinimum(msg *Message) (minimum uint32, ok bool) {
	if rr.Type != TypeSOA {
		return 0, false
	}

	off := rr.RDataOffset
	var err error

	if _, off, err = DecodeName(msg.Wire, off); err != nil {
		return 0, false
	}
	if _, off, err = DecodeName(msg.Wire, off); err != nil {
		return 0, false
	}

	// serial, refresh, retry, expire, minimum: five big-endian uint32s.
	if off+20 > len(msg.Wire) {
		return 0, false
	}
	minimum = binary.BigEndian.Uint32(msg.Wire[off+16 : off+20])
	return minimum, true
}
