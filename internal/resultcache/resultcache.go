// Package resultcache keeps recently produced analysis results in memory so
// repeat reads skip the database. Entries expire on a TTL and are swept by a
// background worker.
package resultcache

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/Yoav-S/legal-analyzer-backend/internal/domain"
)

const (
	defaultShardCount      = 16
	defaultTTL             = 15 * time.Minute
	defaultCleanupInterval = time.Minute
)

type entry struct {
	result    *domain.AnalysisResult
	expiresAt time.Time
}

func (e *entry) expired() bool {
	return time.Now().After(e.expiresAt)
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// Cache is a sharded in-memory store of analysis results keyed by document
// ID. Safe for concurrent use.
type Cache struct {
	shards []*shard
	ttl    time.Duration

	sweepInterval time.Duration
	sweepRunning  bool
	sweepMu       sync.Mutex
	sweepStop     chan struct{}
	sweepWg       sync.WaitGroup
}

// New creates a cache with the given shard count and TTL in seconds.
// Non-positive arguments fall back to defaults.
func New(shardCount, ttlSeconds int) *Cache {
	if shardCount < 1 {
		shardCount = defaultShardCount
	}
	ttl := time.Duration(ttlSeconds) * time.Second
	if ttl <= 0 {
		ttl = defaultTTL
	}

	shards := make([]*shard, shardCount)
	for i := range shards {
		shards[i] = &shard{entries: make(map[string]*entry)}
	}

	return &Cache{
		shards:        shards,
		ttl:           ttl,
		sweepInterval: defaultCleanupInterval,
		sweepStop:     make(chan struct{}),
	}
}

func (c *Cache) shardFor(documentID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(documentID))
	return c.shards[h.Sum32()%uint32(len(c.shards))]
}

// Get returns the cached result for a document, if present and fresh.
func (c *Cache) Get(documentID string) (*domain.AnalysisResult, bool) {
	s := c.shardFor(documentID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[documentID]
	if !ok || e.expired() {
		// expired entries are left for the sweeper
		return nil, false
	}
	return e.result, true
}

// Put stores a result under its document ID.
func (c *Cache) Put(result *domain.AnalysisResult) {
	s := c.shardFor(result.DocumentID)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[result.DocumentID] = &entry{
		result:    result,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// Invalidate drops the cached result for a document, if any. Called when a
// document is re-analyzed so stale results never serve.
func (c *Cache) Invalidate(documentID string) {
	s := c.shardFor(documentID)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, documentID)
}

// Sweep removes expired entries from every shard.
func (c *Cache) Sweep(ctx context.Context) error {
	for _, s := range c.shards {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		s.mu.Lock()
		for id, e := range s.entries {
			if e.expired() {
				delete(s.entries, id)
			}
		}
		s.mu.Unlock()
	}
	return nil
}

// Len reports the number of entries across all shards, expired included.
func (c *Cache) Len() int {
	total := 0
	for _, s := range c.shards {
		s.mu.RLock()
		total += len(s.entries)
		s.mu.RUnlock()
	}
	return total
}

// StartSweeper launches the background expiry worker. Safe to call more than
// once.
func (c *Cache) StartSweeper() {
	c.sweepMu.Lock()
	defer c.sweepMu.Unlock()

	if c.sweepRunning {
		return
	}
	c.sweepRunning = true
	c.sweepStop = make(chan struct{})

	c.sweepWg.Add(1)
	go c.sweeper()
}

// StopSweeper stops the expiry worker and runs one final sweep.
func (c *Cache) StopSweeper() {
	c.sweepMu.Lock()
	defer c.sweepMu.Unlock()

	if !c.sweepRunning {
		return
	}
	close(c.sweepStop)
	c.sweepWg.Wait()
	c.sweepRunning = false
}

func (c *Cache) sweeper() {
	defer c.sweepWg.Done()

	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.sweepStop:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = c.Sweep(ctx)
			cancel()
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			_ = c.Sweep(ctx)
			cancel()
		}
	}
}
