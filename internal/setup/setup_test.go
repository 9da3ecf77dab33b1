package setup

import (
	"os"
	"path/filepath"
	"testing"

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

// baseConfig is the smallest configuration Build accepts: embedded
// knowledge base, no run auditing, cache disabled.
func baseConfig() *domain.Config {
	return &domain.Config{
		KB:      domain.KBConfig{Source: "json"},
		Store:   domain.StoreConfig{Driver: "none"},
		Batch:   domain.BatchConfig{Workers: 2, MaxPayload: 100},
		Logging: domain.LoggingConfig{Level: "fatal", Format: "json"},
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		cfg       domain.LoggingConfig
		wantLevel logrus.Level
		wantJSON  bool
	}{
		{
			name:      "json info",
			cfg:       domain.LoggingConfig{Level: "info", Format: "json"},
			wantLevel: logrus.InfoLevel,
			wantJSON:  true,
		},
		{
			name:      "text debug",
			cfg:       domain.LoggingConfig{Level: "debug", Format: "text"},
			wantLevel: logrus.DebugLevel,
			wantJSON:  false,
		},
		{
			name:      "bad level falls back to info",
			cfg:       domain.LoggingConfig{Level: "shouting", Format: "json"},
			wantLevel: logrus.InfoLevel,
			wantJSON:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger(tt.cfg)
			assert.Equal(t, tt.wantLevel, logger.Level)

			_, isJSON := logger.Formatter.(*logrus.JSONFormatter)
			assert.Equal(t, tt.wantJSON, isJSON)
		})
	}
}

func TestNewLoggerFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.log")
	logger := NewLogger(domain.LoggingConfig{Level: "info", Format: "json", Output: path})

	logger.Info("wired")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "wired")
}

func TestBuildMinimal(t *testing.T) {
	app, err := Build(t.Context(), baseConfig(), quietLogger())
	require.NoError(t, err)
	defer app.Close()

	assert.NotNil(t, app.KB)
	assert.NotNil(t, app.Engine)
	assert.NotNil(t, app.Batch)
	assert.NotNil(t, app.Collector)
	assert.Nil(t, app.RunStore)
	assert.Nil(t, app.DB)

	require.NotNil(t, app.Cache)
	assert.Equal(t, "disabled", app.Cache.Stats().Backend)

	info := app.KB.Info()
	assert.NotEmpty(t, info.Version)
	assert.Greater(t, info.GeneDrugRules, 0)
}

func TestBuildSQLiteStore(t *testing.T) {
	cfg := baseConfig()
	cfg.Store = domain.StoreConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "runs.db"),
	}

	app, err := Build(t.Context(), cfg, quietLogger())
	require.NoError(t, err)
	defer app.Close()

	require.NotNil(t, app.RunStore)
	count, err := app.RunStore.Count(t.Context())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestBuildMemoryCache(t *testing.T) {
	cfg := baseConfig()
	cfg.Cache = domain.CacheConfig{
		Enabled:    true,
		Backend:    "memory",
		MaxEntries: 8,
		DefaultTTL: 0,
	}

	app, err := Build(t.Context(), cfg, quietLogger())
	require.NoError(t, err)
	defer app.Close()

	assert.Equal(t, "memory", app.Cache.Stats().Backend)
}

func TestBuildRejectsUnknownKBSource(t *testing.T) {
	cfg := baseConfig()
	cfg.KB.Source = "ledger"

	_, err := Build(t.Context(), cfg, quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kb source")
}

func TestBuildRejectsUnknownStoreDriver(t *testing.T) {
	cfg := baseConfig()
	cfg.Store.Driver = "etcd"

	_, err := Build(t.Context(), cfg, quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store driver")
}

func TestDependenciesCarriesComponents(t *testing.T) {
	app, err := Build(t.Context(), baseConfig(), quietLogger())
	require.NoError(t, err)
	defer app.Close()

	deps := app.Dependencies()
	assert.Same(t, app.Config, deps.Config)
	assert.Same(t, app.Engine, deps.Engine)
	assert.Same(t, app.Batch, deps.Batch)
	assert.Equal(t, app.KB, deps.KB)
	assert.Same(t, app.Collector, deps.Collector)
	assert.Same(t, app.Logger, deps.Logger)
	assert.NotNil(t, deps.Cache)
}

func TestCloseIsIdempotent(t *testing.T) {
	cfg := baseConfig()
	cfg.Store = domain.StoreConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "runs.db"),
	}

	app, err := Build(t.Context(), cfg, quietLogger())
	require.NoError(t, err)

	app.Close()
	app.Close()
	assert.Nil(t, app.RunStore)
	assert.Nil(t, app.Cache)
}
