// Package mock provides a test double for the cache.Cache interface.
//
// Cache behaves like a real in-memory cache (ignoring TTLs) and records every
// key requested, so tests can assert hits and misses. Set GetErr or SetErr to
// simulate a failing backend.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/nara/pkg/cache"
)

// SetCall records a single invocation of Set.
type SetCall struct {
	Key   string
	Value string
	TTL   time.Duration
}

// Cache is a mock implementation of cache.Cache.
type Cache struct {
	mu sync.Mutex

	// GetErr, if non-nil, is returned by every Get call.
	GetErr error

	// SetErr, if non-nil, is returned by every Set call. Nothing is stored.
	SetErr error

	// Gets records every key passed to Get in order.
	Gets []string

	// Sets records every Set call in order.
	Sets []SetCall

	values map[string]string
}

// Get records the key and returns the stored value.
func (c *Cache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Gets = append(c.Gets, key)
	if c.GetErr != nil {
		return "", false, c.GetErr
	}
	v, ok := c.values[key]
	return v, ok, nil
}

// Set records the call and stores value unless SetErr is set.
func (c *Cache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Sets = append(c.Sets, SetCall{Key: key, Value: value, TTL: ttl})
	if c.SetErr != nil {
		return c.SetErr
	}
	if c.values == nil {
		c.values = make(map[string]string)
	}
	c.values[key] = value
	return nil
}

// SetCount returns the number of Set calls. Thread-safe.
func (c *Cache) SetCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Sets)
}

var _ cache.Cache = (*Cache)(nil)
