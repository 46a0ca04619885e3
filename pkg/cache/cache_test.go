// SPDX-License-Identifier: Apache-2.0
package cache

import (
	"strings"
	"testing"
	"time"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JanitorInterval = time.Hour // tests drive Maintain directly
	return cfg
}

func TestSetGetRoundTrip(t *testing.T) {
	c := New(testConfig())
	defer c.Close()

	type payload struct {
		Answer string `json:"answer"`
		Score  float64
	}
	in := payload{Answer: "4", Score: 0.92}

	if err := c.Set("ensemble:abc", in, time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	var out payload
	ok, err := c.Get("ensemble:abc", &out)
	if err != nil || !ok {
		t.Fatalf("expected hit, ok=%v err=%v", ok, err)
	}
	if out != in {
		t.Errorf("round trip mismatch: %+v != %+v", out, in)
	}
}

func TestCompressedRoundTrip(t *testing.T) {
	c := New(testConfig())
	defer c.Close()

	// Large enough to compress in warm but not to force cold.
	big := strings.Repeat("lorem ipsum ", 80)
	if err := c.Set("memory:big", big, time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if tier, _ := c.TierOf("memory:big"); tier != TierWarm {
		t.Fatalf("expected warm tier, got %s", tier)
	}

	var out string
	ok, err := c.Get("memory:big", &out)
	if err != nil || !ok {
		t.Fatalf("expected hit, ok=%v err=%v", ok, err)
	}
	if out != big {
		t.Error("compression must be lossless")
	}
}

func TestCompressLossless(t *testing.T) {
	data := []byte(`{"a":[1,2,3],"b":"` + strings.Repeat("x", 2000) + `"}`)
	packed, err := compress(data)
	if err != nil {
		t.Fatal(err)
	}
	plain, err := decompress(packed)
	if err != nil {
		t.Fatal(err)
	}
	if string(plain) != string(data) {
		t.Error("decompress(compress(x)) != x")
	}
	if len(packed) >= len(data) {
		t.Error("repetitive payload should shrink")
	}
}

func TestTTLExpiry(t *testing.T) {
	c := New(testConfig())
	defer c.Close()

	c.Set("ensemble:ttl", "v", 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	var out string
	ok, _ := c.Get("ensemble:ttl", &out)
	if ok {
		t.Error("expired entry should be a miss")
	}
	if _, present := c.TierOf("ensemble:ttl"); present {
		t.Error("expired entry should be deleted on read")
	}
}

func TestLRUEviction(t *testing.T) {
	cfg := testConfig()
	cfg.MaxHot = 2
	c := New(cfg)
	defer c.Close()

	c.Set("ensemble:A", "a", time.Minute)
	time.Sleep(2 * time.Millisecond)
	c.Set("ensemble:B", "b", time.Minute)
	time.Sleep(2 * time.Millisecond)

	// Touch A so B becomes the LRU entry.
	var s string
	c.Get("ensemble:A", &s)
	time.Sleep(2 * time.Millisecond)

	c.Set("ensemble:C", "c", time.Minute)

	if _, ok := c.TierOf("ensemble:B"); ok {
		t.Error("B should have been evicted")
	}
	if _, ok := c.TierOf("ensemble:A"); !ok {
		t.Error("A should be retained")
	}
	if _, ok := c.TierOf("ensemble:C"); !ok {
		t.Error("C should be retained")
	}
	if c.Stats().Evictions != 1 {
		t.Errorf("expected 1 eviction, got %d", c.Stats().Evictions)
	}
}

func TestPromotionToHot(t *testing.T) {
	c := New(testConfig())
	defer c.Close()

	c.Set("memory:p", "v", time.Minute)
	if tier, _ := c.TierOf("memory:p"); tier != TierWarm {
		t.Fatalf("expected warm start, got %s", tier)
	}

	var out string
	for i := 0; i < 3; i++ {
		c.Get("memory:p", &out)
	}
	if tier, _ := c.TierOf("memory:p"); tier != TierHot {
		t.Errorf("3 accesses should promote to hot, got %s", tier)
	}
}

func TestPromotionToHotDecompresses(t *testing.T) {
	c := New(testConfig())
	defer c.Close()

	// Compresses in warm, small enough to avoid cold.
	big := strings.Repeat("lorem ipsum ", 80)
	c.Set("memory:hotbound", big, time.Minute)

	var out string
	for i := 0; i < 3; i++ {
		if ok, err := c.Get("memory:hotbound", &out); !ok || err != nil {
			t.Fatalf("expected hit, ok=%v err=%v", ok, err)
		}
	}
	if tier, _ := c.TierOf("memory:hotbound"); tier != TierHot {
		t.Fatalf("3 accesses should promote to hot, got %s", tier)
	}

	c.mu.Lock()
	e := c.tiers[TierHot]["memory:hotbound"]
	c.mu.Unlock()
	if e == nil {
		t.Fatal("entry missing from hot tier")
	}
	if e.compressed {
		t.Error("hot entries must be stored plain")
	}
	if out != big {
		t.Error("promotion must not corrupt the value")
	}
}

func TestColdPromotionToWarm(t *testing.T) {
	cfg := testConfig()
	cfg.CompressThreshold = 16
	c := New(cfg)
	defer c.Close()

	// Over 4x threshold lands in cold.
	c.Set("ensemble:cold", strings.Repeat("z", 200), time.Minute)
	if tier, _ := c.TierOf("ensemble:cold"); tier != TierCold {
		t.Fatalf("large value should land cold, got %s", tier)
	}

	var out string
	c.Get("ensemble:cold", &out)
	c.Get("ensemble:cold", &out)
	if tier, _ := c.TierOf("ensemble:cold"); tier != TierWarm {
		t.Errorf("2 accesses should promote cold to warm, got %s", tier)
	}
}

func TestSingleTierInvariant(t *testing.T) {
	c := New(testConfig())
	defer c.Close()

	c.Set("memory:k", "v1", time.Minute)
	c.Set("memory:k", "v2", time.Minute)

	count := 0
	for _, tier := range []Tier{TierHot, TierWarm, TierCold} {
		c.mu.Lock()
		if _, ok := c.tiers[tier]["memory:k"]; ok {
			count++
		}
		c.mu.Unlock()
	}
	if count != 1 {
		t.Errorf("key must exist in exactly one tier, found in %d", count)
	}

	var out string
	ok, _ := c.Get("memory:k", &out)
	if !ok || out != "v2" {
		t.Errorf("latest write should win, got %q", out)
	}
}

func TestStatsInvariant(t *testing.T) {
	c := New(testConfig())
	defer c.Close()

	c.Set("ensemble:s", "v", time.Minute)
	var out string
	c.Get("ensemble:s", &out)
	c.Get("ensemble:missing", &out)
	c.Get("ensemble:s", &out)

	st := c.Stats()
	if st.Hits+st.Misses != st.Gets {
		t.Errorf("hits(%d)+misses(%d) != gets(%d)", st.Hits, st.Misses, st.Gets)
	}
	if st.Hits != 2 || st.Misses != 1 {
		t.Errorf("unexpected counters: %+v", st)
	}
}

func TestDemotionOnMaintain(t *testing.T) {
	cfg := testConfig()
	cfg.StaleAfter = time.Millisecond
	c := New(cfg)
	defer c.Close()

	c.Set("ensemble:stale", "v", time.Hour)
	if tier, _ := c.TierOf("ensemble:stale"); tier != TierHot {
		t.Fatalf("expected hot, got %s", tier)
	}

	time.Sleep(5 * time.Millisecond)
	c.Maintain()

	if tier, _ := c.TierOf("ensemble:stale"); tier != TierWarm {
		t.Errorf("stale hot entry should demote to warm, got %s", tier)
	}
}

func TestKeyDeterministic(t *testing.T) {
	type payload struct {
		Prompt string `json:"prompt"`
		UserID string `json:"userId"`
		Tier   string `json:"tier"`
	}
	a, err := Key(PrefixEnsemble, payload{"What is 2+2?", "u1", "free"})
	if err != nil {
		t.Fatal(err)
	}
	b, _ := Key(PrefixEnsemble, payload{"What is 2+2?", "u1", "free"})
	if a != b {
		t.Error("equal payloads must derive equal keys")
	}

	differs, _ := Key(PrefixEnsemble, payload{"What is 2+2?", "u2", "free"})
	if a == differs {
		t.Error("different payloads should derive different keys")
	}

	if !strings.HasPrefix(a, "ensemble:") {
		t.Errorf("key missing prefix: %s", a)
	}
	if len(strings.TrimPrefix(a, "ensemble:")) != 16 {
		t.Errorf("key digest should be 16 hex chars: %s", a)
	}
}

func TestMapKeyOrderCanonical(t *testing.T) {
	a, _ := Key(PrefixMemory, map[string]int{"x": 1, "y": 2})
	b, _ := Key(PrefixMemory, map[string]int{"y": 2, "x": 1})
	if a != b {
		t.Error("canonical JSON must be order independent for maps")
	}
}
