// Package caching implements the executor's response cache (spec.md §4.4):
// at most one concurrent build per correlation id, and TTL-based eviction.
//
// Unlike some prior art in this space, the cache here keys strictly on
// correlation id. It never coalesces two requests that carry different
// correlation ids, even if their topic and payload are byte-for-byte
// identical — doing so would let an executor observe fewer invocations than
// the invoker believes it sent, which this protocol's duplicate-detection
// guarantees must not allow.
package caching

import (
	"sync"
	"time"

	"github.com/edgerpc/mqttrpc/protocol/internal/container"
	"github.com/edgerpc/mqttrpc/protocol/mqtt"
)

type (
	entry struct {
		end      time.Time // Time processing completed; zero while in flight.
		reqTTL   time.Time // Time the initial request expires.
		cacheTTL time.Time // Time the cache entry fully expires.
		size     int
		cb       Callback
	}

	// Cache deduplicates concurrent and repeated executions of the same
	// request correlation id, retaining completed results for Ttl so that a
	// retried request receives the original response instead of re-invoking
	// the handler.
	Cache struct {
		clock Clock
		ttl   time.Duration
		bytes int

		store container.PriorityMap[string, *entry, int64]

		mu sync.Mutex
	}

	// Callback computes the response for a cache miss. It is invoked at most
	// once per correlation id, however many goroutines call Exec
	// concurrently for that id.
	Callback = func() (*mqtt.Message, error)

	// Clock abstracts time.Now for test dependency injection.
	Clock interface {
		Now() time.Time
	}
)

// MaxEntryCount and MaxAggregatePayloadBytes bound the cache's memory
// footprint; entries are trimmed oldest-TTL-first once either is exceeded.
const (
	MaxEntryCount            = 10000
	MaxAggregatePayloadBytes = 10000000
)

// New creates a new empty cache with the given response retention duration.
func New(clock Clock, ttl time.Duration) *Cache {
	return &Cache{
		clock: clock,
		ttl:   ttl,
		store: container.NewPriorityMap[string, *entry, int64](),
	}
}

// Len reports the number of entries currently retained by the cache,
// in-flight or completed, for diagnostics purposes.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Len()
}

// Exec returns the cached response for req's correlation id, computing it
// with cb if this is the first time that correlation id has been seen. A nil
// message with no error indicates the request should be dropped silently,
// e.g. because its message-expiry has already elapsed.
func (c *Cache) Exec(req *mqtt.Message, cb Callback) (*mqtt.Message, error) {
	e := c.get(req, cb)
	if e == nil {
		return nil, nil
	}
	return e.cb()
}

// get finds or creates the cache entry for req's correlation id. This is
// kept separate from Exec so the cache mutex is not held while the callback
// executes.
func (c *Cache) get(req *mqtt.Message, cb Callback) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := string(req.CorrelationData)
	now := c.clock.Now().UTC()

	if cached, ok := c.store.Get(id); ok {
		if !cached.end.IsZero() && now.After(cached.reqTTL) {
			return nil
		}
		return cached
	}

	e := &entry{
		reqTTL: now.Add(time.Duration(req.MessageExpiry) * time.Second),
	}
	e.cacheTTL = e.reqTTL
	e.cb = sync.OnceValues(func() (*mqtt.Message, error) {
		res, err := cb()
		return c.set(id, e, res, err, c.clock.Now().UTC())
	})

	c.store.Set(id, e, e.cacheTTL.UnixNano())
	return e
}

// set records the result of a completed callback and extends the entry's TTL
// so a retried request can still find it within c.ttl of completion.
func (c *Cache) set(
	id string,
	e *entry,
	res *mqtt.Message,
	err error,
	now time.Time,
) (*mqtt.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e.end = now

	switch {
	case c.ttl > 0 && res != nil:
		if end := e.end.Add(c.ttl); end.After(e.cacheTTL) {
			e.cacheTTL = end
		}
		e.size = len(res.Payload)
		c.bytes += e.size
		c.store.Set(id, e, e.cacheTTL.UnixNano())

	case e.end.After(e.cacheTTL):
		// The request expired before a result was produced; don't retain it.
		c.store.Delete(id)
		return nil, nil
	}

	c.trim(now)

	return res, err
}

// trim evicts entries whose cacheTTL has elapsed, then continues evicting
// the entries with the nearest TTL until the cache is back under its size
// bounds.
func (c *Cache) trim(now time.Time) {
	for {
		id, e, ok := c.store.Next()
		if !ok || now.Before(e.cacheTTL) {
			break
		}
		c.remove(id, e)
	}

	for c.store.Len() >= MaxEntryCount || c.bytes >= MaxAggregatePayloadBytes {
		id, e, ok := c.store.Next()
		if !ok {
			break
		}
		c.remove(id, e)
	}
}

func (c *Cache) remove(id string, e *entry) {
	c.store.Delete(id)
	c.bytes -= e.size
}
