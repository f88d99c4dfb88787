package session

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Cache memoizes expensive pipeline stages keyed by content fingerprint,
// operation name, and a hash of the operation parameters. Concurrent callers
// asking for the same key share a single computation.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]any
	inFlight map[string]chan struct{}
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		entries:  make(map[string]any),
		inFlight: make(map[string]chan struct{}),
	}
}

// Key builds a cache key from a content fingerprint, an operation name, and
// the parameters that affect the operation's output. Parameter order does not
// matter.
func Key(fingerprint, operation string, params map[string]string) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "%s=%s;", name, params[name])
	}
	paramHash := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%s:%s:%s", fingerprint, operation, hex.EncodeToString(paramHash[:8]))
}

// GetOrCompute returns the cached value for key, computing it at most once
// even under concurrent callers. A failed computation is not cached, so the
// next caller retries it.
func (c *Cache) GetOrCompute(key string, compute func() (any, error)) (any, bool, error) {
	for {
		c.mu.Lock()
		if value, ok := c.entries[key]; ok {
			c.mu.Unlock()
			return value, true, nil
		}
		if waiting, ok := c.inFlight[key]; ok {
			c.mu.Unlock()
			<-waiting
			continue
		}
		done := make(chan struct{})
		c.inFlight[key] = done
		c.mu.Unlock()

		value, err := compute()

		c.mu.Lock()
		delete(c.inFlight, key)
		if err == nil {
			c.entries[key] = value
		}
		c.mu.Unlock()
		close(done)

		if err != nil {
			return nil, false, err
		}
		return value, false, nil
	}
}

// Get returns the cached value for key without computing.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.entries[key]
	return value, ok
}

// Put stores a value directly.
func (c *Cache) Put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
}

// Delete drops a single entry.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// InvalidateFingerprint drops every entry derived from the given fingerprint.
func (c *Cache) InvalidateFingerprint(fingerprint string) int {
	prefix := fingerprint + ":"
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
