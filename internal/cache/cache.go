// Package cache implements the dual-quota LRU response cache: a single
// map keyed by (name, type, class) with a companion LRU list, storing
// positive (answer) or negative (NXDOMAIN/NODATA) entries under
// independent size caps so that a flood of one kind cannot starve the
// other.
package cache

import (
	"container/list"
	"time"

	"github.com/dnsscience/dnsiter/internal/metrics"
)

const (
	// DefaultPositiveCap and DefaultNegativeCap bound each entry kind
	// when the caller doesn't configure its own quotas.
	DefaultPositiveCap = 50
	DefaultNegativeCap = 50
)

// RR is a cached resource record: enough to replay an RR line over the
// daemon protocol or reconstruct an answer section.
type RR struct {
	Name  string
	Type  uint16
	Class uint16
	TTL   uint32
	RData []byte
}

// NegKind distinguishes the two negative-answer shapes.
type NegKind int

const (
	NXDOMAIN NegKind = iota
	NODATA
)

// PositiveEntry is a non-empty RR set with an absolute expiry.
type PositiveEntry struct {
	RRSet       []RR
	Rcode       uint16
	ExpiresAtMS int64
}

// NegativeEntry records a negative answer's kind and absolute expiry.
type NegativeEntry struct {
	Kind        NegKind
	Rcode       uint16
	ExpiresAtMS int64
}

type kind int

const (
	kindPositive kind = iota
	kindNegative
)

type node struct {
	key         Key
	kind        kind
	positive    PositiveEntry
	negative    NegativeEntry
	expiresAtMS int64
	elem        *list.Element
}

// Config holds cache construction parameters.
type Config struct {
	// PositiveCap and NegativeCap bound the number of entries of each
	// kind. Zero means DefaultPositiveCap/DefaultNegativeCap.
	PositiveCap int
	NegativeCap int
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	PositiveCount int
	NegativeCount int
	Hits          uint64
	Misses        uint64
	Evictions     uint64
	Expirations   uint64
}

// Cache is the dual-quota LRU. It is not safe for concurrent use: the
// resolution engine is single-threaded within one logical request and
// owns its cache instance exclusively, and the sidecar daemon guards
// its shared instance with its own mutex.
type Cache struct {
	capPos int
	capNeg int

	entries map[Key]*node
	lru     *list.List // front = most recently used

	posCount int
	negCount int

	hits, misses, evictions, expirations uint64
}

// New creates a Cache with the given caps (0 selects the defaults).
func New(cfg Config) *Cache {
	capPos := cfg.PositiveCap
	if capPos == 0 {
		capPos = DefaultPositiveCap
	}
	capNeg := cfg.NegativeCap
	if capNeg == 0 {
		capNeg = DefaultNegativeCap
	}
	return &Cache{
		capPos:  capPos,
		capNeg:  capNeg,
		entries: make(map[Key]*node),
		lru:     list.New(),
	}
}

func nowMS(t time.Time) int64 { return t.UnixMilli() }

// ExpiryFor computes the absolute expiry timestamp, in Unix
// milliseconds, for a TTL observed at now.
func ExpiryFor(now time.Time, ttlSeconds uint32) int64 {
	return nowMS(now) + int64(ttlSeconds)*1000
}

// GetPositive returns the positive entry for key if present, unexpired,
// and of positive kind. An expired entry is evicted as a side effect.
// A hit moves the node to the front of the LRU; a kind mismatch does
// not touch the LRU.
func (c *Cache) GetPositive(key Key, now time.Time) (PositiveEntry, bool) {
	n, ok := c.entries[key]
	if !ok {
		c.misses++
		metrics.CacheMisses.Inc()
		return PositiveEntry{}, false
	}
	if nowMS(now) >= n.expiresAtMS {
		c.eraseNode(key, n)
		c.expirations++
		c.misses++
		metrics.CacheMisses.Inc()
		return PositiveEntry{}, false
	}
	if n.kind != kindPositive {
		c.misses++
		metrics.CacheMisses.Inc()
		return PositiveEntry{}, false
	}
	c.touch(n)
	c.hits++
	metrics.CacheHits.WithLabelValues("positive").Inc()
	return n.positive, true
}

// GetNegative is the symmetric counterpart of GetPositive.
func (c *Cache) GetNegative(key Key, now time.Time) (NegativeEntry, bool) {
	n, ok := c.entries[key]
	if !ok {
		c.misses++
		metrics.CacheMisses.Inc()
		return NegativeEntry{}, false
	}
	if nowMS(now) >= n.expiresAtMS {
		c.eraseNode(key, n)
		c.expirations++
		c.misses++
		metrics.CacheMisses.Inc()
		return NegativeEntry{}, false
	}
	if n.kind != kindNegative {
		c.misses++
		metrics.CacheMisses.Inc()
		return NegativeEntry{}, false
	}
	c.touch(n)
	c.hits++
	metrics.CacheHits.WithLabelValues("negative").Inc()
	return n.negative, true
}

// PutPositive inserts or updates the positive entry for key, then runs
// eviction. Overwriting a negative entry with a positive one adjusts
// both kind counters.
func (c *Cache) PutPositive(key Key, entry PositiveEntry) {
	if n, ok := c.entries[key]; ok {
		if n.kind == kindNegative {
			c.negCount--
			c.posCount++
		}
		n.kind = kindPositive
		n.positive = entry
		n.expiresAtMS = entry.ExpiresAtMS
		c.touch(n)
	} else {
		n := &node{key: key, kind: kindPositive, positive: entry, expiresAtMS: entry.ExpiresAtMS}
		n.elem = c.lru.PushFront(n)
		c.entries[key] = n
		c.posCount++
	}
	c.evictIfNeeded()
}

// PutNegative is the symmetric counterpart of PutPositive.
func (c *Cache) PutNegative(key Key, entry NegativeEntry) {
	if n, ok := c.entries[key]; ok {
		if n.kind == kindPositive {
			c.posCount--
			c.negCount++
		}
		n.kind = kindNegative
		n.negative = entry
		n.expiresAtMS = entry.ExpiresAtMS
		c.touch(n)
	} else {
		n := &node{key: key, kind: kindNegative, negative: entry, expiresAtMS: entry.ExpiresAtMS}
		n.elem = c.lru.PushFront(n)
		c.entries[key] = n
		c.negCount++
	}
	c.evictIfNeeded()
}

// PurgeExpired removes every node whose expiry is at or before now.
func (c *Cache) PurgeExpired(now time.Time) {
	t := nowMS(now)
	for key, n := range c.entries {
		if t >= n.expiresAtMS {
			c.eraseNode(key, n)
			c.expirations++
		}
	}
}

// Caps returns the configured positive and negative entry caps.
func (c *Cache) Caps() (positive, negative int) {
	return c.capPos, c.capNeg
}

// Stats returns a snapshot of the cache's counters.
func (c *Cache) Stats() Stats {
	return Stats{
		PositiveCount: c.posCount,
		NegativeCount: c.negCount,
		Hits:          c.hits,
		Misses:        c.misses,
		Evictions:     c.evictions,
		Expirations:   c.expirations,
	}
}

func (c *Cache) touch(n *node) {
	c.lru.MoveToFront(n.elem)
}

func (c *Cache) eraseNode(key Key, n *node) {
	if n.kind == kindPositive {
		if c.posCount > 0 {
			c.posCount--
		}
	} else if c.negCount > 0 {
		c.negCount--
	}
	c.lru.Remove(n.elem)
	delete(c.entries, key)
}

// evictIfNeeded walks the LRU from the tail, removing the first node
// of whichever kind is currently over its cap, until both quotas are
// satisfied. Eviction targets only the over-quota kind, so a flood of
// negatives cannot evict positives and vice versa.
func (c *Cache) evictIfNeeded() {
	for c.posCount > c.capPos || c.negCount > c.capNeg {
		if c.lru.Len() == 0 {
			break
		}

		removed := false
		for e := c.lru.Back(); e != nil; e = e.Prev() {
			n := e.Value.(*node)
			overPos := n.kind == kindPositive && c.posCount > c.capPos
			overNeg := n.kind == kindNegative && c.negCount > c.capNeg
			if overPos || overNeg {
				label := "negative"
				if overPos {
					label = "positive"
				}
				c.eraseNode(n.key, n)
				c.evictions++
				metrics.CacheEvictions.WithLabelValues(label).Inc()
				removed = true
				break
			}
		}
		if !removed {
			break
		}
	}
}
