// Package cache provides the optional analysis response cache. Entries
// are serialized API responses keyed by a digest of the request payload
// and the knowledge base version, so a KB reload naturally invalidates
// every cached answer. Backends absorb their own failures: a broken
// cache degrades to pass-through, it never fails a request.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/pgx-risk-engine/internal/domain"
)

// Cache stores serialized analysis responses for a short TTL.
type Cache interface {
	// Get returns the cached response for key, or ok=false on a miss.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set stores a response under key for the backend's configured TTL.
	Set(ctx context.Context, key string, value []byte)
	// Invalidate removes a single entry.
	Invalidate(ctx context.Context, key string)
	// Stats reports hit/miss counters for the stats endpoint.
	Stats() Stats
	// Close releases backend resources.
	Close() error
}

// Stats tracks cache performance counters.
type Stats struct {
	Backend   string `json:"backend"`
	Hits      int64  `json:"hits"`
	Misses    int64  `json:"misses"`
	Evictions int64  `json:"evictions"`
	Entries   int    `json:"entries"`
	Degraded  bool   `json:"degraded"`
}

// Key derives the cache key for a request payload evaluated against a
// knowledge base version. Identical payload bytes against the same KB
// version always produce the same key.
func Key(kbVersion string, payload []byte) string {
	sum := sha256.Sum256(append([]byte(kbVersion+"::"), payload...))
	return "pgx:analysis:" + hex.EncodeToString(sum[:])
}

// New builds the configured cache backend. A disabled config yields the
// no-op cache so callers never need an enabled check.
func New(cfg domain.CacheConfig, logger *logrus.Logger) (Cache, error) {
	if !cfg.Enabled {
		return NewNoop(), nil
	}
	switch cfg.Backend {
	case "redis":
		return NewRedis(cfg, logger)
	case "memory", "":
		return NewMemory(cfg.MaxEntries, cfg.DefaultTTL, logger), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// Noop satisfies Cache without storing anything.
type Noop struct{}

// NewNoop returns the disabled cache.
func NewNoop() *Noop { return &Noop{} }

func (*Noop) Get(context.Context, string) ([]byte, bool) { return nil, false }
func (*Noop) Set(context.Context, string, []byte)        {}
func (*Noop) Invalidate(context.Context, string)         {}
func (*Noop) Stats() Stats                               { return Stats{Backend: "disabled"} }
func (*Noop) Close() error                               { return nil }
