package cache

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/dchest/siphash"
)

// Key identifies a cached question: normalized name, 16-bit type, and
// class (always 1/IN for this resolver).
type Key struct {
	Name  string
	Type  uint16
	Class uint16
}

// The cache itself maps Key structs directly; Go's map compares and
// hashes them natively. Keyer instead produces a compact SipHash-2-4
// fingerprint of a Key for trace lines and metric labels, where the
// full (name, type, class) tuple would be unwieldy.
type Keyer struct {
	k0, k1 uint64
}

// NewKeyer creates a Keyer seeded from crypto/rand.
func NewKeyer() *Keyer {
	var seed [16]byte
	if _, err := rand.Read(seed[:]); err != nil {
		panic("cache: failed to seed key hasher: " + err.Error())
	}
	return &Keyer{
		k0: binary.LittleEndian.Uint64(seed[0:8]),
		k1: binary.LittleEndian.Uint64(seed[8:16]),
	}
}

// Fingerprint returns a 64-bit SipHash digest of k for logging/metrics.
func (h *Keyer) Fingerprint(k Key) uint64 {
	buf := make([]byte, 0, len(k.Name)+4)
	buf = append(buf, k.Name...)
	buf = append(buf, byte(k.Type>>8), byte(k.Type))
	buf = append(buf, byte(k.Class>>8), byte(k.Class))
	return siphash.Hash(h.k0, h.k1, buf)
}
