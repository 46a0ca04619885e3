// SPDX-License-Identifier: Apache-2.0
// Package cache implements the multi-tier (hot/warm/cold) in-memory
// response cache with compression, tier promotion/demotion, TTLs and
// LRU eviction. Entries are ephemeral; nothing survives a restart.
package cache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/chorusml/chorus/pkg/errors"
)

// Tier identifies a cache tier ordered by access frequency.
type Tier string

const (
	TierHot  Tier = "hot"
	TierWarm Tier = "warm"
	TierCold Tier = "cold"
)

// Config controls tier capacities, TTLs and memory management.
type Config struct {
	MaxHot  int
	MaxWarm int
	MaxCold int

	TTLHot  time.Duration
	TTLWarm time.Duration
	TTLCold time.Duration

	// CompressThreshold is the serialized size above which warm/cold
	// entries are deflated. Values over 4x this size go straight to cold.
	CompressThreshold int

	// MaxMemoryBytes bounds the estimated footprint; the janitor starts
	// aggressive cleanup above 80% of it.
	MaxMemoryBytes int64

	// JanitorInterval is how often expiry/demotion runs.
	JanitorInterval time.Duration

	// StaleAfter is the idle time after which entries demote a tier.
	StaleAfter time.Duration
}

// DefaultConfig returns production cache settings.
func DefaultConfig() Config {
	return Config{
		MaxHot:            1000,
		MaxWarm:           5000,
		MaxCold:           44000,
		TTLHot:            10 * time.Minute,
		TTLWarm:           time.Hour,
		TTLCold:           4 * time.Hour,
		CompressThreshold: 512,
		MaxMemoryBytes:    200 << 20,
		JanitorInterval:   2 * time.Minute,
		StaleAfter:        10 * time.Minute,
	}
}

// Stats tracks cache effectiveness. Invariant: Hits+Misses == Gets.
type Stats struct {
	Gets        uint64
	Hits        uint64
	Misses      uint64
	Sets        uint64
	Evictions   uint64
	Expirations uint64
	Promotions  uint64
	Demotions   uint64
}

type entry struct {
	key        string
	data       []byte
	compressed bool
	createdAt  time.Time
	expiresAt  time.Time
	accessed   int
	lastAccess time.Time
}

// entryOverhead approximates per-entry bookkeeping bytes for the
// memory estimate.
const entryOverhead = 96

// Cache is the multi-tier store. A key lives in at most one tier at a
// time. All tiers share one lock; compression of large values happens
// outside it.
type Cache struct {
	cfg Config

	mu    sync.Mutex
	tiers map[Tier]map[string]*entry
	stats Stats

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a cache and starts its background janitor.
func New(cfg Config) *Cache {
	if cfg.MaxHot <= 0 || cfg.MaxWarm <= 0 || cfg.MaxCold <= 0 {
		def := DefaultConfig()
		if cfg.MaxHot <= 0 {
			cfg.MaxHot = def.MaxHot
		}
		if cfg.MaxWarm <= 0 {
			cfg.MaxWarm = def.MaxWarm
		}
		if cfg.MaxCold <= 0 {
			cfg.MaxCold = def.MaxCold
		}
	}
	if cfg.TTLHot == 0 {
		cfg.TTLHot = DefaultConfig().TTLHot
	}
	if cfg.TTLWarm == 0 {
		cfg.TTLWarm = DefaultConfig().TTLWarm
	}
	if cfg.TTLCold == 0 {
		cfg.TTLCold = DefaultConfig().TTLCold
	}
	if cfg.CompressThreshold <= 0 {
		cfg.CompressThreshold = DefaultConfig().CompressThreshold
	}
	if cfg.MaxMemoryBytes <= 0 {
		cfg.MaxMemoryBytes = DefaultConfig().MaxMemoryBytes
	}
	if cfg.JanitorInterval <= 0 {
		cfg.JanitorInterval = DefaultConfig().JanitorInterval
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultConfig().StaleAfter
	}

	c := &Cache{
		cfg: cfg,
		tiers: map[Tier]map[string]*entry{
			TierHot:  make(map[string]*entry),
			TierWarm: make(map[string]*entry),
			TierCold: make(map[string]*entry),
		},
		done: make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.janitor(ctx)
	return c
}

// Close stops the background janitor.
func (c *Cache) Close() {
	c.cancel()
	<-c.done
}

// Set serializes and stores a value. A zero TTL uses the target tier's
// default. The target tier follows the key prefix unless the value is
// large enough to go straight to cold.
func (c *Cache) Set(key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Programmer("cache value not serializable", err)
	}

	tier := c.targetTier(key, len(data))

	compressed := false
	if tier != TierHot && len(data) > c.cfg.CompressThreshold {
		packed, cerr := compress(data)
		if cerr != nil {
			return cerr
		}
		data = packed
		compressed = true
	}

	now := time.Now()
	if ttl <= 0 {
		ttl = c.ttlFor(tier)
	}

	e := &entry{
		key:        key,
		data:       data,
		compressed: compressed,
		createdAt:  now,
		expiresAt:  now.Add(ttl),
		lastAccess: now,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Single-tier invariant: drop any previous residence.
	for _, t := range []Tier{TierHot, TierWarm, TierCold} {
		delete(c.tiers[t], key)
	}

	if len(c.tiers[tier]) >= c.maxFor(tier) {
		c.evictLRULocked(tier)
	}
	c.tiers[tier][key] = e
	c.stats.Sets++
	return nil
}

// Get looks up hot, then warm, then cold, decoding the value into out.
// Expired entries are removed and count as misses. Hits update access
// patterns and may promote the entry.
func (c *Cache) Get(key string, out any) (bool, error) {
	c.mu.Lock()
	c.stats.Gets++

	var e *entry
	var tier Tier
	now := time.Now()
	for _, t := range []Tier{TierHot, TierWarm, TierCold} {
		if found, ok := c.tiers[t][key]; ok {
			if !found.expiresAt.After(now) {
				delete(c.tiers[t], key)
				c.stats.Expirations++
				break
			}
			e, tier = found, t
			break
		}
	}

	if e == nil {
		c.stats.Misses++
		c.mu.Unlock()
		return false, nil
	}

	c.stats.Hits++
	e.accessed++
	e.lastAccess = now
	c.maybePromoteLocked(key, e, tier)

	data := e.data
	compressed := e.compressed
	c.mu.Unlock()

	if compressed {
		plain, err := decompress(data)
		if err != nil {
			return false, err
		}
		data = plain
	}
	if out == nil {
		return true, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, errors.Programmer("cache value not decodable", err)
	}
	return true, nil
}

// Delete removes a key from every tier.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range []Tier{TierHot, TierWarm, TierCold} {
		delete(c.tiers[t], key)
	}
}

// Stats returns a copy of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Len returns the entry count of one tier.
func (c *Cache) Len(tier Tier) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tiers[tier])
}

// TierOf reports which tier currently holds the key.
func (c *Cache) TierOf(key string) (Tier, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range []Tier{TierHot, TierWarm, TierCold} {
		if _, ok := c.tiers[t][key]; ok {
			return t, true
		}
	}
	return "", false
}

// MemoryUsage estimates the total footprint in bytes.
func (c *Cache) MemoryUsage() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.memoryUsageLocked()
}

func (c *Cache) memoryUsageLocked() int64 {
	var total int64
	for _, tier := range c.tiers {
		for _, e := range tier {
			total += int64(len(e.data)) + int64(len(e.key)) + entryOverhead
		}
	}
	return total
}

// targetTier picks where a new entry lands: large payloads go cold,
// otherwise the key prefix decides.
func (c *Cache) targetTier(key string, size int) Tier {
	if size > 4*c.cfg.CompressThreshold {
		return TierCold
	}
	prefix, _, _ := strings.Cut(key, ":")
	switch prefix {
	case PrefixEnsemble, PrefixHealth:
		return TierHot
	case PrefixMemory:
		return TierWarm
	default:
		return TierWarm
	}
}

func (c *Cache) ttlFor(tier Tier) time.Duration {
	switch tier {
	case TierHot:
		return c.cfg.TTLHot
	case TierWarm:
		return c.cfg.TTLWarm
	default:
		return c.cfg.TTLCold
	}
}

func (c *Cache) maxFor(tier Tier) int {
	switch tier {
	case TierHot:
		return c.cfg.MaxHot
	case TierWarm:
		return c.cfg.MaxWarm
	default:
		return c.cfg.MaxCold
	}
}

// maybePromoteLocked applies the access-pattern promotion rules:
// 3 accesses promote to hot; from cold, 2 accesses promote to warm.
func (c *Cache) maybePromoteLocked(key string, e *entry, tier Tier) {
	var target Tier
	switch {
	case tier != TierHot && e.accessed >= 3:
		target = TierHot
	case tier == TierCold && e.accessed >= 2:
		target = TierWarm
	default:
		return
	}
	// Hot entries live uncompressed; undo the warm/cold deflate on the
	// way up so hot reads stay cheap.
	if target == TierHot && e.compressed {
		plain, err := decompress(e.data)
		if err != nil {
			return
		}
		e.data = plain
		e.compressed = false
	}
	c.moveLocked(key, e, tier, target)
	c.stats.Promotions++
}

// moveLocked relocates an entry between tiers, evicting from the
// target when full.
func (c *Cache) moveLocked(key string, e *entry, from, to Tier) {
	delete(c.tiers[from], key)
	if len(c.tiers[to]) >= c.maxFor(to) {
		c.evictLRULocked(to)
	}
	c.tiers[to][key] = e
}

// evictLRULocked drops the least recently accessed entry of a tier.
func (c *Cache) evictLRULocked(tier Tier) {
	var oldestKey string
	var oldest time.Time
	for k, e := range c.tiers[tier] {
		if oldestKey == "" || e.lastAccess.Before(oldest) {
			oldestKey, oldest = k, e.lastAccess
		}
	}
	if oldestKey != "" {
		delete(c.tiers[tier], oldestKey)
		c.stats.Evictions++
	}
}

// janitor purges expired entries and demotes stale ones on a fixed
// interval, escalating to aggressive cleanup above the memory ceiling.
func (c *Cache) janitor(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.cfg.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Maintain()
		}
	}
}

// Maintain runs one maintenance pass. Exported so tests and the
// recovery loop can trigger it deterministically.
func (c *Cache) Maintain() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.purgeExpiredLocked()
	c.demoteStaleLocked()

	limit := int64(float64(c.cfg.MaxMemoryBytes) * 0.8)
	for c.memoryUsageLocked() > limit && len(c.tiers[TierCold]) > 0 {
		c.evictLRULocked(TierCold)
	}
}

func (c *Cache) purgeExpiredLocked() {
	now := time.Now()
	for _, tier := range c.tiers {
		for k, e := range tier {
			if !e.expiresAt.After(now) {
				delete(tier, k)
				c.stats.Expirations++
			}
		}
	}
}

// demoteStaleLocked moves idle entries down a tier, compressing values
// that cross the threshold on the way out of hot.
func (c *Cache) demoteStaleLocked() {
	cutoff := time.Now().Add(-c.cfg.StaleAfter)

	for k, e := range c.tiers[TierWarm] {
		if e.lastAccess.Before(cutoff) {
			c.moveLocked(k, e, TierWarm, TierCold)
			c.stats.Demotions++
		}
	}
	for k, e := range c.tiers[TierHot] {
		if e.lastAccess.Before(cutoff) {
			if !e.compressed && len(e.data) > c.cfg.CompressThreshold {
				if packed, err := compress(e.data); err == nil {
					e.data = packed
					e.compressed = true
				}
			}
			c.moveLocked(k, e, TierHot, TierWarm)
			c.stats.Demotions++
		}
	}
}
