package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
)

const (
	defaultMaxEntries = 2048
	defaultTTL        = time.Hour
)

// Memory is the single-process backend: an expirable LRU that evicts on
// capacity and expires entries after the configured TTL.
type Memory struct {
	lru    *expirable.LRU[string, []byte]
	logger *logrus.Logger

	statsMu   sync.Mutex
	hits      int64
	misses    int64
	evictions int64
}

// NewMemory creates the in-memory backend. Non-positive maxEntries or
// ttl fall back to the defaults.
func NewMemory(maxEntries int, ttl time.Duration, logger *logrus.Logger) *Memory {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	m := &Memory{logger: logger}
	m.lru = expirable.NewLRU[string, []byte](maxEntries, m.onEvict, ttl)
	return m
}

func (m *Memory) onEvict(string, []byte) {
	m.statsMu.Lock()
	m.evictions++
	m.statsMu.Unlock()
}

// Get returns the cached response for key if present and unexpired.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	value, ok := m.lru.Get(key)
	m.statsMu.Lock()
	if ok {
		m.hits++
	} else {
		m.misses++
	}
	m.statsMu.Unlock()
	return value, ok
}

// Set stores a response under key.
func (m *Memory) Set(_ context.Context, key string, value []byte) {
	m.lru.Add(key, value)
}

// Invalidate removes a single entry.
func (m *Memory) Invalidate(_ context.Context, key string) {
	m.lru.Remove(key)
}

// Stats reports counters since construction.
func (m *Memory) Stats() Stats {
	// Read Len before statsMu: onEvict runs under the LRU lock and
	// takes statsMu, so statsMu must never be held across LRU calls.
	entries := m.lru.Len()
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	return Stats{
		Backend:   "memory",
		Hits:      m.hits,
		Misses:    m.misses,
		Evictions: m.evictions,
		Entries:   entries,
	}
}

// Close purges all entries.
func (m *Memory) Close() error {
	m.lru.Purge()
	return nil
}
