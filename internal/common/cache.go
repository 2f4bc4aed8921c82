package common

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

const userByAccessTokenPrefix = "user_by_access_token:"

type Cache struct {
	*cache.Cache
	ttl time.Duration
}

func NewCache(expirationTime, cleanupTime time.Duration) *Cache {
	return &Cache{Cache: cache.New(expirationTime, cleanupTime), ttl: expirationTime}
}

func (c *Cache) Set(key string, value interface{}, expiration ...time.Duration) {
	if len(expiration) > 0 {
		c.Cache.Set(key, value, expiration[0])
		return
	}
	c.Cache.Set(key, value, cache.DefaultExpiration)
}

// SetUntil stores value for the default expiration, or only until deadline when that comes sooner.
// A deadline in the past stores nothing and drops any previous value.
func (c *Cache) SetUntil(key string, value interface{}, deadline time.Time) {
	d := time.Until(deadline)
	if d <= 0 {
		c.Cache.Delete(key)
		return
	}

	if c.ttl > 0 {
		d = min(d, c.ttl)
	}

	c.Cache.Set(key, value, d)
}

func (c *Cache) Get(key string) (interface{}, bool) {
	return c.Cache.Get(key)
}

func (c *Cache) Flush() {
	c.Cache.Flush()
}

// DeletePrefix removes every unexpired item whose key starts with prefix and for which match returns true.
func (c *Cache) DeletePrefix(prefix string, match func(value interface{}) bool) int {
	var n int
	for key, item := range c.Cache.Items() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if match == nil || match(item.Object) {
			c.Cache.Delete(key)
			n++
		}
	}
	return n
}

func CacheKeyUserByAccessToken(hash []byte) string {
	return userByAccessTokenPrefix + hex.EncodeToString(hash)
}

func CacheKeyUserByAccessTokenPrefix() string {
	return userByAccessTokenPrefix
}
