// Package resultcache memoizes materialized results per source.
//
// Entries live until they are explicitly invalidated; there is no expiry.
// Concurrent misses for one key run the computation once and share its
// outcome. Failed computations are never stored.
package resultcache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leapstack-labs/leapdata/internal/metrics"
	"github.com/leapstack-labs/leapdata/pkg/core"
	"github.com/spaolacci/murmur3"
	"golang.org/x/sync/singleflight"
)

const numShards = 16

// Key identifies a cached result: a table read (Table set) or a query (SQL set).
// An empty Source denotes a federated query.
type Key struct {
	Source string
	Table  string
	SQL    string
}

// TableKey is the key of a table read.
func TableKey(source, table string) Key { return Key{Source: source, Table: table} }

// QueryKey is the key of a query result.
func QueryKey(sql, source string) Key { return Key{Source: source, SQL: sql} }

func (k Key) String() string {
	if k.SQL != "" {
		if k.Source == "" {
			return "query " + fmt.Sprintf("%q", k.SQL)
		}
		return fmt.Sprintf("query %q on %s", k.SQL, k.Source)
	}
	if k.Table == "" {
		return "table of " + k.Source
	}
	return fmt.Sprintf("table %s.%s", k.Source, k.Table)
}

// Entry is an immutable cached result.
type Entry struct {
	Key       Key
	Value     *core.TabularResult
	CreatedAt time.Time
}

// ComputeFunc produces the value of a missing key.
type ComputeFunc func(ctx context.Context) (*core.TabularResult, error)

type shard struct {
	mu      sync.RWMutex
	entries map[Key]*Entry
	// gens counts invalidations per source; a computation stores its value
	// only if no invalidation happened since it started.
	gens map[string]uint64
}

// Cache is a sharded result cache. Entries of one source share a shard.
type Cache struct {
	shards  [numShards]*shard
	group   singleflight.Group
	epoch   atomic.Uint64 // bumped by Clear
	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates an empty cache. m may be nil.
func New(m *metrics.Metrics) *Cache {
	c := &Cache{metrics: m, now: time.Now}
	for i := range c.shards {
		c.shards[i] = &shard{entries: make(map[Key]*Entry), gens: make(map[string]uint64)}
	}
	return c
}

func (c *Cache) shardFor(source string) *shard {
	return c.shards[murmur3.Sum32([]byte(source))%numShards]
}

// Get returns the cached entry for key.
func (c *Cache) Get(key Key) (*Entry, bool) {
	s := c.shardFor(key.Source)
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok
}

// GetOrCompute returns the cached value for key or computes and stores it.
// Under contention fn runs once per key; every waiter receives the same
// value or the same *core.CacheComputationError.
func (c *Cache) GetOrCompute(ctx context.Context, key Key, fn ComputeFunc) (*core.TabularResult, error) {
	s := c.shardFor(key.Source)
	s.mu.RLock()
	e, ok := s.entries[key]
	gen := stamp{epoch: c.epoch.Load(), source: s.gens[key.Source]}
	s.mu.RUnlock()
	if ok {
		c.metrics.CacheHit(key.Source)
		return e.Value, nil
	}

	// The generation is part of the flight key so callers arriving after an
	// invalidation never join a computation that started before it.
	flight := fmt.Sprintf("%d.%d\x00%s\x00%s\x00%s", gen.epoch, gen.source, key.Source, key.Table, key.SQL)
	ch := c.group.DoChan(flight, func() (any, error) {
		c.metrics.CacheMiss(key.Source)
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		c.store(s, key, gen, v)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return nil, &core.CacheComputationError{Key: key.String(), Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, &core.CacheComputationError{Key: key.String(), Err: res.Err}
		}
		return res.Val.(*core.TabularResult), nil
	}
}

// stamp records the invalidation state a computation started from.
type stamp struct {
	epoch  uint64
	source uint64
}

func (c *Cache) store(s *shard, key Key, gen stamp, v *core.TabularResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gens[key.Source] != gen.source || c.epoch.Load() != gen.epoch {
		return
	}
	if _, ok := s.entries[key]; !ok {
		c.metrics.CacheEntries(1)
	}
	s.entries[key] = &Entry{Key: key, Value: v, CreatedAt: c.now()}
}

// Invalidate evicts one key. Computations of the key's source that are
// already running will not store their results.
func (c *Cache) Invalidate(key Key) {
	s := c.shardFor(key.Source)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gens[key.Source]++
	if _, ok := s.entries[key]; ok {
		delete(s.entries, key)
		c.metrics.CacheEntries(-1)
	}
}

// InvalidateSource evicts every entry of a source and returns how many were removed.
func (c *Cache) InvalidateSource(source string) int {
	s := c.shardFor(source)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gens[source]++
	n := 0
	for k := range s.entries {
		if k.Source == source {
			delete(s.entries, k)
			n++
		}
	}
	c.metrics.CacheEntries(-n)
	return n
}

// Entries returns the cached entries of a source.
func (c *Cache) Entries(source string) []*Entry {
	s := c.shardFor(source)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Entry
	for k, e := range s.entries {
		if k.Source == source {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

// Clear evicts everything.
func (c *Cache) Clear() {
	c.epoch.Add(1)
	for _, s := range c.shards {
		s.mu.Lock()
		c.metrics.CacheEntries(-len(s.entries))
		s.entries = make(map[Key]*Entry)
		s.mu.Unlock()
	}
}
