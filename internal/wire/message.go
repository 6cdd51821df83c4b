// Package wire implements the DNS on-the-wire codec: query construction,
// message parsing with name-compression support, and selective RDATA
// decoding for the record types this resolver understands (A, AAAA,
// CNAME, NS, SOA).
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrLabelTooLong indicates a name label exceeds 63 bytes.
	ErrLabelTooLong = errors.New("wire: label exceeds 63 bytes")

	// ErrMessageTooShort indicates a buffer shorter than a DNS header.
	ErrMessageTooShort = errors.New("wire: message too short")

	// ErrCompressionLoop indicates a pointer chain exceeding the jump budget.
	ErrCompressionLoop = errors.New("wire: compression pointer loop")

	// ErrBadPointer indicates a name that runs past the end of the
	// message, or a compression pointer that is out of bounds or does not
	// point back before the start of the name being decoded.
	ErrBadPointer = errors.New("wire: invalid compression pointer")

	// ErrBadLabel indicates a label length byte with a reserved top-bit pattern.
	ErrBadLabel = errors.New("wire: invalid label length byte")
)

const (
	headerSize = 12

	maxLabelLength = 63

	// maxCompressionJumps bounds the number of pointer hops followed while
	// decoding a single name, guarding against pointer loops.
	maxCompressionJumps = 16

	// ednsUDPSize is the payload size advertised by the OPT pseudo-RR.
	ednsUDPSize = 1232

	// ClassIN is the only query class this resolver issues.
	ClassIN = 1

	// Record types this resolver decodes RDATA for.
	TypeA     = 1
	TypeNS    = 2
	TypeCNAME = 5
	TypeSOA   = 6
	TypeAAAA  = 28
	TypeOPT   = 41
)

// Header mirrors the fixed 12-byte DNS message header (RFC 1035 §4.1.1).
type Header struct {
	ID      uint16
	Flags   uint16
	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

// Rcode returns the 4-bit response code carried in Flags.
func (h Header) Rcode() uint16 { return h.Flags & 0x000F }

// Truncated reports the TC bit.
func (h Header) Truncated() bool { return h.Flags&0x0200 != 0 }

// Question is a single entry of the question section.
type Question struct {
	Name  string
	Type  uint16
	Class uint16
}

// RR is a parsed resource record. RData is an owned copy of the raw
// RDATA bytes; RDataOffset is its absolute position within Wire, needed
// because NS/CNAME/SOA RDATA may contain compression pointers back into
// the enclosing message.
type RR struct {
	Name        string
	Type        uint16
	Class       uint16
	TTL         uint32
	RData       []byte
	RDataOffset int
}

// Message is a fully parsed DNS message, including a copy of the wire
// bytes it was parsed from (required for RDATA name decompression).
type Message struct {
	Header     Header
	Question   []Question
	Answer     []RR
	Authority  []RR
	Additional []RR
	Wire       []byte
}

// BuildQuery encodes a query message for name/qtype with RD=0; every
// outbound query is iterative, never recursion-desired. When edns is
// true an OPT pseudo-RR advertising a 1232-byte UDP payload is
// appended to the additional section.
func BuildQuery(id uint16, name string, qtype uint16, edns bool) ([]byte, error) {
	buf := make([]byte, 0, 512)

	var arcount uint16
	if edns {
		arcount = 1
	}

	buf = appendU16(buf, id)
	buf = appendU16(buf, 0) // flags: QR=0, opcode=0, RD=0
	buf = appendU16(buf, 1) // qdcount
	buf = appendU16(buf, 0) // ancount
	buf = appendU16(buf, 0) // nscount
	buf = appendU16(buf, arcount)

	encoded, err := EncodeName(name)
	if err != nil {
		return nil, err
	}
	buf = append(buf, encoded...)
	buf = appendU16(buf, qtype)
	buf = appendU16(buf, ClassIN)

	if edns {
		buf = append(buf, 0x00)           // owner name = root
		buf = appendU16(buf, TypeOPT)     // type
		buf = appendU16(buf, ednsUDPSize) // class = advertised UDP size
		buf = append(buf, 0, 0, 0, 0)     // TTL: ext-rcode/version/flags all 0
		buf = appendU16(buf, 0)           // RDLENGTH
	}

	return buf, nil
}

// EncodeName converts a normalized or FQDN-style name into its
// length-prefixed label encoding, terminated by a zero byte. The empty
// name and "." both encode as the root.
func EncodeName(name string) ([]byte, error) {
	if name == "" || name == "." {
		return []byte{0}, nil
	}

	name = strings.TrimSuffix(name, ".")
	name = toASCII(name)
	labels := strings.Split(name, ".")

	out := make([]byte, 0, len(name)+2)
	for _, label := range labels {
		if len(label) > maxLabelLength {
			return nil, fmt.Errorf("%w: %q (%d bytes)", ErrLabelTooLong, label, len(label))
		}
		out = append(out, byte(len(label)))
		out = append(out, label...)
	}
	out = append(out, 0)
	return out, nil
}

// Parse decodes a complete DNS message, including all four sections.
// Trailing bytes beyond the last record are tolerated. Any structural
// problem (short buffer, bad label, bad pointer) fails the whole parse.
func Parse(data []byte) (*Message, error) {
	if len(data) < headerSize {
		return nil, ErrMessageTooShort
	}

	m := &Message{Wire: data}
	off := 0

	m.Header.ID = binary.BigEndian.Uint16(data[0:2])
	m.Header.Flags = binary.BigEndian.Uint16(data[2:4])
	m.Header.QDCount = binary.BigEndian.Uint16(data[4:6])
	m.Header.ANCount = binary.BigEndian.Uint16(data[6:8])
	m.Header.NSCount = binary.BigEndian.Uint16(data[8:10])
	m.Header.ARCount = binary.BigEndian.Uint16(data[10:12])
	off = headerSize

	var err error
	m.Question = make([]Question, 0, m.Header.QDCount)
	for i := 0; i < int(m.Header.QDCount); i++ {
		var q Question
		off, err = parseQuestion(data, off, &q)
		if err != nil {
			return nil, fmt.Errorf("parse question %d: %w", i, err)
		}
		m.Question = append(m.Question, q)
	}

	if m.Answer, off, err = parseRRSection(data, off, int(m.Header.ANCount)); err != nil {
		return nil, fmt.Errorf("parse answer: %w", err)
	}
	if m.Authority, off, err = parseRRSection(data, off, int(m.Header.NSCount)); err != nil {
		return nil, fmt.Errorf("parse authority: %w", err)
	}
	if m.Additional, _, err = parseRRSection(data, off, int(m.Header.ARCount)); err != nil {
		return nil, fmt.Errorf("parse additional: %w", err)
	}

	return m, nil
}

func parseQuestion(data []byte, off int, q *Question) (int, error) {
	name, off, err := DecodeName(data, off)
	if err != nil {
		return 0, err
	}
	if off+4 > len(data) {
		return 0, ErrMessageTooShort
	}
	q.Name = name
	q.Type = binary.BigEndian.Uint16(data[off : off+2])
	q.Class = binary.BigEndian.Uint16(data[off+2 : off+4])
	return off + 4, nil
}

func parseRRSection(data []byte, off int, count int) ([]RR, int, error) {
	rrs := make([]RR, 0, count)
	for i := 0; i < count; i++ {
		var rr RR
		var err error
		off, err = parseRR(data, off, &rr)
		if err != nil {
			return nil, 0, fmt.Errorf("rr %d: %w", i, err)
		}
		rrs = append(rrs, rr)
	}
	return rrs, off, nil
}

func parseRR(data []byte, off int, rr *RR) (int, error) {
	name, off, err := DecodeName(data, off)
	if err != nil {
		return 0, err
	}
	if off+10 > len(data) {
		return 0, ErrMessageTooShort
	}

	rr.Name = name
	rr.Type = binary.BigEndian.Uint16(data[off : off+2])
	rr.Class = binary.BigEndian.Uint16(data[off+2 : off+4])
	rr.TTL = binary.BigEndian.Uint32(data[off+4 : off+8])
	rdlength := int(binary.BigEndian.Uint16(data[off+8 : off+10]))
	off += 10

	if off+rdlength > len(data) {
		return 0, ErrMessageTooShort
	}
	rr.RDataOffset = off
	rr.RData = append([]byte(nil), data[off:off+rdlength]...)
	off += rdlength

	return off, nil
}

// DecodeName decodes a domain name starting at off, following
// compression pointers as needed. It returns the lowercase-normalized,
// no-trailing-dot name and the offset immediately after the first
// pointer (or after the terminating zero byte if no pointer was
// followed) — the position the caller should resume parsing from.
func DecodeName(data []byte, off int) (string, int, error) {
	var labels []string
	visited := make(map[int]bool)
	depth := 0
	cur := off
	jumped := false
	resumeAt := off

	for {
		if depth > maxCompressionJumps {
			return "", 0, ErrCompressionLoop
		}
		if cur >= len(data) {
			return "", 0, ErrBadPointer
		}

		length := int(data[cur])

		if length&0xC0 == 0xC0 {
			if cur+1 >= len(data) {
				return "", 0, ErrMessageTooShort
			}
			ptr := int(binary.BigEndian.Uint16(data[cur:cur+2]) & 0x3FFF)

			if visited[ptr] {
				return "", 0, ErrCompressionLoop
			}
			visited[ptr] = true

			if ptr >= len(data) || ptr >= off {
				return "", 0, ErrBadPointer
			}

			if !jumped {
				resumeAt = cur + 2
				jumped = true
			}
			cur = ptr
			depth++
			continue
		}

		if length&0xC0 != 0 {
			return "", 0, ErrBadLabel
		}

		if length == 0 {
			if !jumped {
				resumeAt = cur + 1
			}
			break
		}

		if length > maxLabelLength {
			return "", 0, fmt.Errorf("%w: %d bytes", ErrLabelTooLong, length)
		}

		cur++
		if cur+length > len(data) {
			return "", 0, ErrMessageTooShort
		}
		labels = append(labels, strings.ToLower(string(data[cur:cur+length])))
		cur += length
	}

	return strings.Join(labels, "."), resumeAt, nil
}

func appendU16(buf []byte, v uint16) []byte {
	return append(buf, byte(v>>8), byte(v))
}
