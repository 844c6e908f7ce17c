// Package cache provides the VLM verdict cache: a process-local LRU with a
// TTL, keyed by a SHA-256 fingerprint of the query and image
// (spec.md §4.7 "Caching"). The cache is not sharded.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/piclocate/piclocate-engine/pkg/models"
)

// Key returns the SHA-256 hex fingerprint over
// (normalizedQuery, modelID, imageID, imageContentHash), exactly as
// spec.md §4.7 defines the cache key.
func Key(normalizedQuery, modelID, imageID, imageContentHash string) string {
	h := sha256.New()
	h.Write([]byte(normalizedQuery))
	h.Write([]byte{0})
	h.Write([]byte(modelID))
	h.Write([]byte{0})
	h.Write([]byte(imageID))
	h.Write([]byte{0})
	h.Write([]byte(imageContentHash))
	return hex.EncodeToString(h.Sum(nil))
}

// BatchKey returns a stable fingerprint for a whole batch request, used as
// a correlation id on a verify batch's log lines; nothing dedupes on it,
// and it is independent of per-image caching.
func BatchKey(normalizedQuery string, imageIDs []string) string {
	sorted := append([]string(nil), imageIDs...)
	sort.Strings(sorted)
	h := sha256.New()
	h.Write([]byte(normalizedQuery))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(sorted, ":")))
	return hex.EncodeToString(h.Sum(nil))
}

type entry struct {
	verdict   models.VLMVerdict
	expiresAt time.Time
}

// VerdictCache is an LRU-capped, TTL-expiring cache of VLM verdicts. One
// mutex guards the whole structure: the underlying LRU is a single,
// unsharded cache, so every Get, Put and Len serializes on that lock and
// there are no per-shard locks.
type VerdictCache struct {
	mu  sync.Mutex
	lru *lru.Cache[string, entry]
	ttl time.Duration
}

// NewVerdictCache builds a cache capped at maxItems entries with the given
// TTL. ttlDays<=0 defaults to 7 (spec.md §4.7 default).
func NewVerdictCache(maxItems int, ttlDays int) (*VerdictCache, error) {
	if ttlDays <= 0 {
		ttlDays = 7
	}
	if maxItems <= 0 {
		maxItems = 50000
	}
	c, err := lru.New[string, entry](maxItems)
	if err != nil {
		return nil, err
	}
	return &VerdictCache{lru: c, ttl: time.Duration(ttlDays) * 24 * time.Hour}, nil
}

// Get returns the cached verdict for key, if present and unexpired. A
// cache hit here means the caller skips the VLM call entirely for that
// image (spec.md §8 testable property 5).
func (c *VerdictCache) Get(key string) (models.VLMVerdict, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		return models.VLMVerdict{}, false
	}
	if time.Now().After(e.expiresAt) {
		c.lru.Remove(key)
		return models.VLMVerdict{}, false
	}
	return e.verdict, true
}

// Put stores verdict under key with the cache's configured TTL.
func (c *VerdictCache) Put(key string, verdict models.VLMVerdict) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, entry{verdict: verdict, expiresAt: time.Now().Add(c.ttl)})
}

// Len reports the current number of live entries, including not-yet-swept
// expired ones (used only for diagnostics, not correctness).
func (c *VerdictCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
