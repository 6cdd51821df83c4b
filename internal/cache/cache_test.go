package cache

import (
	"testing"
	"time"
)

func mkKey(name string) Key {
	return Key{Name: name, Type: 1, Class: 1}
}

func TestPositiveGetPutRoundTrip(t *testing.T) {
	c := New(Config{})
	now := time.Unix(1000, 0)
	key := mkKey("example.com")
	entry := PositiveEntry{
		RRSet:       []RR{{Name: "example.com", Type: 1, Class: 1, TTL: 60, RData: []byte{1, 2, 3, 4}}},
		ExpiresAtMS: ExpiryFor(now, 60),
	}
	c.PutPositive(key, entry)

	got, ok := c.GetPositive(key, now)
	if !ok {
		t.Fatal("expected hit")
	}
	if len(got.RRSet) != 1 || got.RRSet[0].Name != "example.com" {
		t.Errorf("got %+v", got)
	}
}

func TestNegativeEntryExpires(t *testing.T) {
	c := New(Config{})
	now := time.Unix(1000, 0)
	key := mkKey("nope.example.com")
	c.PutNegative(key, NegativeEntry{Kind: NXDOMAIN, ExpiresAtMS: ExpiryFor(now, 10)})

	if _, ok := c.GetNegative(key, now.Add(5*time.Second)); !ok {
		t.Fatal("expected hit before expiry")
	}
	if _, ok := c.GetNegative(key, now.Add(11*time.Second)); ok {
		t.Fatal("expected miss after expiry")
	}
	st := c.Stats()
	if st.Expirations == 0 {
		t.Errorf("expected an expiration to be counted, stats=%+v", st)
	}
	if st.NegativeCount != 0 {
		t.Errorf("expired entry should be removed, negCount=%d", st.NegativeCount)
	}
}

func TestGetOfWrongKindIsAMissAndDoesNotTouch(t *testing.T) {
	c := New(Config{})
	now := time.Unix(1000, 0)
	key := mkKey("example.com")
	c.PutPositive(key, PositiveEntry{ExpiresAtMS: ExpiryFor(now, 60)})

	if _, ok := c.GetNegative(key, now); ok {
		t.Fatal("expected a miss asking for the negative view of a positive entry")
	}
	st := c.Stats()
	if st.Misses != 1 {
		t.Errorf("misses = %d, want 1", st.Misses)
	}
}

func TestPositiveOverwritesNegativeAdjustsCounters(t *testing.T) {
	c := New(Config{})
	now := time.Unix(1000, 0)
	key := mkKey("flip.example.com")

	c.PutNegative(key, NegativeEntry{Kind: NXDOMAIN, ExpiresAtMS: ExpiryFor(now, 60)})
	if st := c.Stats(); st.NegativeCount != 1 || st.PositiveCount != 0 {
		t.Fatalf("after negative put: %+v", st)
	}

	c.PutPositive(key, PositiveEntry{ExpiresAtMS: ExpiryFor(now, 60)})
	st := c.Stats()
	if st.NegativeCount != 0 || st.PositiveCount != 1 {
		t.Fatalf("after overwrite with positive: %+v", st)
	}

	if _, ok := c.GetPositive(key, now); !ok {
		t.Fatal("expected the overwritten entry to read back as positive")
	}
}

// TestEvictionBiasOnlyTargetsOverQuotaKind verifies that when only the
// positive quota is exceeded, eviction removes the LRU positive entry
// and leaves negative entries (even older ones) untouched.
func TestEvictionBiasOnlyTargetsOverQuotaKind(t *testing.T) {
	c := New(Config{PositiveCap: 1, NegativeCap: 1})
	now := time.Unix(1000, 0)

	negKey := mkKey("neg.example.com")
	c.PutNegative(negKey, NegativeEntry{Kind: NXDOMAIN, ExpiresAtMS: ExpiryFor(now, 300)})

	posKeyOld := mkKey("old.example.com")
	c.PutPositive(posKeyOld, PositiveEntry{ExpiresAtMS: ExpiryFor(now, 300)})

	posKeyNew := mkKey("new.example.com")
	c.PutPositive(posKeyNew, PositiveEntry{ExpiresAtMS: ExpiryFor(now, 300)})

	st := c.Stats()
	if st.PositiveCount != 1 {
		t.Errorf("positiveCount = %d, want 1", st.PositiveCount)
	}
	if st.NegativeCount != 1 {
		t.Errorf("negativeCount = %d, want 1 (negative entry must survive positive-only eviction)", st.NegativeCount)
	}
	if _, ok := c.GetPositive(posKeyOld, now); ok {
		t.Error("expected the older positive entry to have been evicted")
	}
	if _, ok := c.GetPositive(posKeyNew, now); !ok {
		t.Error("expected the newer positive entry to survive")
	}
	if _, ok := c.GetNegative(negKey, now); !ok {
		t.Error("expected the negative entry to survive a positive-quota eviction")
	}
}

// TestTouchOnHitProtectsFromEviction verifies that reading an entry
// moves it to the front of the LRU, so a subsequent insert evicts a
// different, untouched entry instead.
func TestTouchOnHitProtectsFromEviction(t *testing.T) {
	c := New(Config{PositiveCap: 2, NegativeCap: 2})
	now := time.Unix(1000, 0)

	a := mkKey("a.example.com")
	b := mkKey("b.example.com")
	cKey := mkKey("c.example.com")

	c.PutPositive(a, PositiveEntry{ExpiresAtMS: ExpiryFor(now, 300)})
	c.PutPositive(b, PositiveEntry{ExpiresAtMS: ExpiryFor(now, 300)})

	// Touch a so it is no longer the LRU tail.
	if _, ok := c.GetPositive(a, now); !ok {
		t.Fatal("expected hit on a")
	}

	c.PutPositive(cKey, PositiveEntry{ExpiresAtMS: ExpiryFor(now, 300)})

	if _, ok := c.GetPositive(b, now); ok {
		t.Error("expected b to be evicted as the untouched LRU tail")
	}
	if _, ok := c.GetPositive(a, now); !ok {
		t.Error("expected a to survive because it was touched")
	}
	if _, ok := c.GetPositive(cKey, now); !ok {
		t.Error("expected the newly inserted entry to survive")
	}
}

func TestPurgeExpiredRemovesBothKinds(t *testing.T) {
	c := New(Config{})
	now := time.Unix(1000, 0)

	pos := mkKey("pos.example.com")
	neg := mkKey("neg.example.com")
	c.PutPositive(pos, PositiveEntry{ExpiresAtMS: ExpiryFor(now, 1)})
	c.PutNegative(neg, NegativeEntry{Kind: NODATA, ExpiresAtMS: ExpiryFor(now, 1)})

	c.PurgeExpired(now.Add(2 * time.Second))

	st := c.Stats()
	if st.PositiveCount != 0 || st.NegativeCount != 0 {
		t.Fatalf("expected both entries purged, stats=%+v", st)
	}
	if st.Expirations != 2 {
		t.Errorf("expirations = %d, want 2", st.Expirations)
	}
}

func TestKeyerFingerprintIsDeterministicPerInstance(t *testing.T) {
	k := NewKeyer()
	key := mkKey("example.com")
	h1 := k.Fingerprint(key)
	h2 := k.Fingerprint(key)
	if h1 != h2 {
		t.Errorf("fingerprint not stable across calls: %x != %x", h1, h2)
	}

	other := mkKey("example.org")
	if k.Fingerprint(other) == h1 {
		t.Error("different keys hashed to the same fingerprint (possible but astronomically unlikely for this test vector)")
	}
}
