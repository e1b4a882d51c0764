// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package account

import (
	"strconv"
	"time"

	"github.com/go-redis/redis"
	"github.com/zeebo/errs"
)

// CacheError is the whitelist cache error class.
var CacheError = errs.Class("whitelist cache")

// Cache is a redis-backed cache for whitelist admission checks. Entries
// expire on their own; mutations to the whitelist invalidate eagerly.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache connects to a redis server at the given address.
func NewCache(address string, db int, ttl time.Duration) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr: address,
		DB:   db,
	})
	if err := client.Ping().Err(); err != nil {
		return nil, CacheError.Wrap(err)
	}
	return &Cache{client: client, ttl: ttl}, nil
}

func whitelistKey(sourceID, targetID int64) string {
	return "whitelist:" + strconv.FormatInt(sourceID, 10) + ":" + strconv.FormatInt(targetID, 10)
}

// Get returns the cached admission decision, if present.
func (cache *Cache) Get(sourceID, targetID int64) (allowed, ok bool) {
	value, err := cache.client.Get(whitelistKey(sourceID, targetID)).Result()
	if err != nil {
		return false, false
	}
	return value == "1", true
}

// Set stores an admission decision.
func (cache *Cache) Set(sourceID, targetID int64, allowed bool) {
	value := "0"
	if allowed {
		value = "1"
	}
	cache.client.Set(whitelistKey(sourceID, targetID), value, cache.ttl)
}

// Invalidate drops the cached decision for an edge.
func (cache *Cache) Invalidate(sourceID, targetID int64) {
	cache.client.Del(whitelistKey(sourceID, targetID))
}

// Close releases the redis client.
func (cache *Cache) Close() error {
	return CacheError.Wrap(cache.client.Close())
}
