// Package ownercache caches write-permission answers from the metadata
// module. A cached answer may be stale for up to its TTL; that is acceptable
// because revocation is rare and a stale positive is still bounded by the
// Merkle verification downstream.
package ownercache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v2"

	"github.com/DIG-Network/dig-propagation-server/internal/logger"
	"github.com/DIG-Network/dig-propagation-server/pkg/datalayer"
)

// DefaultTTL is how long a permission answer stays cached.
const DefaultTTL = 3 * time.Minute

// Cache answers "may publicKey write to store" questions, consulting the
// metadata module on a miss. Hits slide the entry's TTL forward, so an
// actively streaming writer is not re-checked mid-upload.
type Cache struct {
	cache  *ttlcache.Cache
	client datalayer.MetadataClient
}

// New creates an owner-permission cache backed by the given metadata client.
// A zero TTL defaults to DefaultTTL.
func New(client datalayer.MetadataClient, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := ttlcache.NewCache()
	_ = c.SetTTL(ttl)
	// Default ttlcache behavior extends TTL on Get, which is exactly the
	// sliding window we want for active writers.
	return &Cache{cache: c, client: client}
}

func key(publicKeyHex, storeID string) string {
	return fmt.Sprintf("%s_%s", publicKeyHex, storeID)
}

// IsOwner reports whether publicKeyHex may write to storeID, consulting the
// metadata module when no cached answer exists.
func (c *Cache) IsOwner(ctx context.Context, publicKeyHex, storeID string) (bool, error) {
	k := key(publicKeyHex, storeID)

	if v, err := c.cache.Get(k); err == nil {
		allowed, ok := v.(bool)
		if ok {
			return allowed, nil
		}
	} else if !errors.Is(err, ttlcache.ErrNotFound) {
		logger.Warn("owner cache lookup failed", "error", err)
	}

	allowed, err := c.client.HasWritePermission(ctx, storeID, publicKeyHex)
	if err != nil {
		return false, err
	}
	if err := c.cache.Set(k, allowed); err != nil {
		logger.Warn("owner cache store failed", "error", err)
	}
	return allowed, nil
}

// Refresh slides the entry's TTL without consulting the metadata module.
// Called per streamed chunk during a PUT, it keeps a long upload from
// re-authorizing mid-stream. A missing entry is a no-op.
func (c *Cache) Refresh(publicKeyHex, storeID string) {
	// Get on a live entry extends its TTL.
	_, _ = c.cache.Get(key(publicKeyHex, storeID))
}

// Close releases the cache's background sweeper.
func (c *Cache) Close() {
	_ = c.cache.Close()
}
