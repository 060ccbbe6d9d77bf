// Package noncecache issues and validates single-use upload nonces.
//
// Every PUT in the upload protocol must present a nonce previously issued
// for the same (store, session, filename) triple. A nonce is consumed on
// first successful validation, so a captured signature cannot be replayed.
package noncecache

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v2"
)

// DefaultTTL is how long an issued nonce stays valid.
const DefaultTTL = 10 * time.Minute

// nonceBytes is the entropy of each nonce (hex-encoded to twice this length).
const nonceBytes = 16

// Cache is a TTL-bounded single-use nonce registry.
//
// Safe for concurrent use. Validation and consumption happen under one
// lock, so at most one ValidateAndConsume call per issued nonce can ever
// return true.
type Cache struct {
	mu    sync.Mutex
	cache *ttlcache.Cache
}

// New creates a nonce cache with the given TTL (DefaultTTL when zero).
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := ttlcache.NewCache()
	_ = c.SetTTL(ttl)
	// Reading a nonce during validation must not push its expiry out.
	c.SkipTTLExtensionOnHit(true)
	return &Cache{cache: c}
}

// Key builds the cache key for a (store, session, filename) triple.
func Key(storeID, sessionID, filename string) string {
	return fmt.Sprintf("%s_%s_%s", storeID, sessionID, filename)
}

// Issue generates a fresh nonce for the key, stores it with the cache TTL,
// and returns its hex encoding. Issuing again for the same key replaces the
// previous nonce.
func (c *Cache) Issue(key string) (string, error) {
	buf := make([]byte, nonceBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	nonce := hex.EncodeToString(buf)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.cache.Set(key, nonce); err != nil {
		return "", fmt.Errorf("failed to store nonce: %w", err)
	}
	return nonce, nil
}

// ValidateAndConsume reports whether candidate matches the nonce currently
// held for key. On success the entry is removed atomically so the nonce
// cannot be used twice. Expired or unknown keys validate false.
func (c *Cache) ValidateAndConsume(key, candidate string) bool {
	if candidate == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	v, err := c.cache.Get(key)
	if err != nil {
		if errors.Is(err, ttlcache.ErrNotFound) {
			return false
		}
		return false
	}
	nonce, ok := v.(string)
	if !ok || nonce != candidate {
		return false
	}
	_ = c.cache.Remove(key)
	return true
}

// Close releases the cache's background sweeper.
func (c *Cache) Close() {
	_ = c.cache.Close()
}
