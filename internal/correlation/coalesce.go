package correlation

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lox/sapweather/internal/metrics"
	"github.com/lox/sapweather/internal/models"
)

// DefaultTTL is how long a computed correlation is served without recomputing.
const DefaultTTL = 90 * time.Second

// Key identifies one correlation computation.
type Key struct {
	SeasonID string
	Lat      float64
	Lng      float64
	Unit     models.Unit
}

func (k Key) String() string {
	return fmt.Sprintf("%s|%v|%v|%s", k.SeasonID, k.Lat, k.Lng, k.Unit)
}

type cacheEntry struct {
	result    *Result
	expiresAt int64 // epoch ms
}

// Coalescer memoizes results for a short TTL and shares in-flight
// computations, so concurrent callers with the same key run compute once
// and all receive the same *Result.
type Coalescer struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
	pending singleflight.Group
}

func NewCoalescer(ttl time.Duration) *Coalescer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Coalescer{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// SetClock overrides the coalescer's notion of now.
func (c *Coalescer) SetClock(now func() time.Time) {
	c.now = now
}

// Do returns a fresh cached result for key, joins an in-flight computation,
// or runs compute. Failed computations are not cached, and the in-flight
// registration is always cleared so later calls can retry.
func (c *Coalescer) Do(key Key, compute func() (*Result, error)) (*Result, error) {
	k := key.String()
	if r, ok := c.lookup(k); ok {
		metrics.CorrelationRequests.WithLabelValues("cached").Inc()
		return r, nil
	}

	v, err, shared := c.pending.Do(k, func() (interface{}, error) {
		// A caller that lost the race to the previous flight may find its
		// result already stored.
		if r, ok := c.lookup(k); ok {
			return r, nil
		}
		r, err := compute()
		if err != nil {
			return nil, err
		}
		c.store(k, r)
		return r, nil
	})
	if err != nil {
		metrics.CorrelationRequests.WithLabelValues("failed").Inc()
		return nil, err
	}
	if shared {
		metrics.CorrelationRequests.WithLabelValues("shared").Inc()
	} else {
		metrics.CorrelationRequests.WithLabelValues("computed").Inc()
	}
	return v.(*Result), nil
}

func (c *Coalescer) lookup(k string) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[k]
	if !ok {
		return nil, false
	}
	if c.now().UnixMilli() >= e.expiresAt {
		delete(c.entries, k)
		return nil, false
	}
	return e.result, true
}

func (c *Coalescer) store(k string, r *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now().UnixMilli()
	for key, e := range c.entries {
		if now >= e.expiresAt {
			delete(c.entries, key)
		}
	}
	c.entries[k] = cacheEntry{result: r, expiresAt: now + c.ttl.Milliseconds()}
}

// Purge drops any cached result for key.
func (c *Coalescer) Purge(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key.String())
}

// Len reports the number of cached entries, including expired ones not yet swept.
func (c *Coalescer) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
