package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgx-risk-engine/internal/domain"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func TestKey(t *testing.T) {
	payload := []byte(`{"patient_id":"PT-1001"}`)

	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t, Key("2025.1", payload), Key("2025.1", payload))
	})

	t.Run("payload changes the key", func(t *testing.T) {
		other := []byte(`{"patient_id":"PT-1002"}`)
		assert.NotEqual(t, Key("2025.1", payload), Key("2025.1", other))
	})

	t.Run("kb version changes the key", func(t *testing.T) {
		assert.NotEqual(t, Key("2025.1", payload), Key("2025.2", payload))
	})

	t.Run("namespaced", func(t *testing.T) {
		assert.Contains(t, Key("2025.1", payload), "pgx:analysis:")
	})
}

func TestMemoryGetSetInvalidate(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(16, time.Minute, quietLogger())
	defer m.Close()

	key := Key("2025.1", []byte(`{"patient_id":"PT-1001"}`))

	_, ok := m.Get(ctx, key)
	assert.False(t, ok, "empty cache should miss")

	m.Set(ctx, key, []byte(`{"risk_summary":{}}`))

	value, ok := m.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, []byte(`{"risk_summary":{}}`), value)

	m.Invalidate(ctx, key)
	_, ok = m.Get(ctx, key)
	assert.False(t, ok, "invalidated key should miss")
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(16, 20*time.Millisecond, quietLogger())
	defer m.Close()

	m.Set(ctx, "k", []byte("v"))
	_, ok := m.Get(ctx, "k")
	require.True(t, ok)

	time.Sleep(100 * time.Millisecond)

	_, ok = m.Get(ctx, "k")
	assert.False(t, ok, "entry should expire after the TTL")
}

func TestMemoryEvictsAtCapacity(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2, time.Minute, quietLogger())
	defer m.Close()

	for i := 0; i < 5; i++ {
		m.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"))
	}

	stats := m.Stats()
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, int64(3), stats.Evictions)

	// Oldest entries are gone, newest survive.
	_, ok := m.Get(ctx, "k0")
	assert.False(t, ok)
	_, ok = m.Get(ctx, "k4")
	assert.True(t, ok)
}

func TestMemoryStatsCounters(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(16, time.Minute, quietLogger())
	defer m.Close()

	m.Set(ctx, "k", []byte("v"))
	m.Get(ctx, "k")
	m.Get(ctx, "k")
	m.Get(ctx, "absent")

	stats := m.Stats()
	assert.Equal(t, "memory", stats.Backend)
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Entries)
	assert.False(t, stats.Degraded)
}

func TestNoop(t *testing.T) {
	ctx := context.Background()
	n := NewNoop()

	n.Set(ctx, "k", []byte("v"))
	_, ok := n.Get(ctx, "k")
	assert.False(t, ok, "noop cache never stores")

	assert.Equal(t, "disabled", n.Stats().Backend)
	assert.NoError(t, n.Close())
}

func TestNewSelectsBackend(t *testing.T) {
	logger := quietLogger()

	t.Run("disabled yields noop", func(t *testing.T) {
		c, err := New(domain.CacheConfig{Enabled: false, Backend: "redis"}, logger)
		require.NoError(t, err)
		assert.IsType(t, &Noop{}, c)
	})

	t.Run("memory", func(t *testing.T) {
		c, err := New(domain.CacheConfig{Enabled: true, Backend: "memory", MaxEntries: 8}, logger)
		require.NoError(t, err)
		assert.IsType(t, &Memory{}, c)
	})

	t.Run("empty backend defaults to memory", func(t *testing.T) {
		c, err := New(domain.CacheConfig{Enabled: true}, logger)
		require.NoError(t, err)
		assert.IsType(t, &Memory{}, c)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := New(domain.CacheConfig{Enabled: true, Backend: "memcached"}, logger)
		assert.Error(t, err)
	})

	t.Run("malformed redis url", func(t *testing.T) {
		_, err := New(domain.CacheConfig{Enabled: true, Backend: "redis", RedisURL: "::bad::"}, logger)
		assert.Error(t, err)
	})
}
