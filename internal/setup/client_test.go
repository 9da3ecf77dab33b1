package setup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadClientConfigMissingFile(t *testing.T) {
	cfg, err := LoadClientConfig(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Empty(t, cfg.MCPServers)
}

func TestLoadClientConfigRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "claude_desktop_config.json")
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0644))

	_, err := LoadClientConfig(path)
	assert.Error(t, err)
}

func TestInstallRegistersServer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "host", "claude_desktop_config.json")

	written, err := Install(InstallOptions{
		ConfigPath: path,
		Binary:     "/usr/local/bin/mcp-server",
		KBDir:      "/etc/pgx/kb",
		LogLevel:   "debug",
	})
	require.NoError(t, err)
	assert.Equal(t, path, written)

	cfg, err := LoadClientConfig(path)
	require.NoError(t, err)

	entry, ok := cfg.MCPServers[ServerKey]
	require.True(t, ok)
	assert.Equal(t, "/usr/local/bin/mcp-server", entry.Command)
	assert.Equal(t, "json", entry.Env["PGX_KB_SOURCE"])
	assert.Equal(t, "/etc/pgx/kb", entry.Env["PGX_KB_PATH"])
	assert.Equal(t, "debug", entry.Env["PGX_LOGGING_LEVEL"])
}

func TestInstallPreservesOtherServers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "claude_desktop_config.json")
	require.NoError(t, SaveClientConfig(path, &ClientConfig{
		MCPServers: map[string]ServerEntry{
			"other-tool": {Command: "/opt/other"},
		},
	}))

	_, err := Install(InstallOptions{ConfigPath: path, Binary: "/usr/local/bin/mcp-server"})
	require.NoError(t, err)

	cfg, err := LoadClientConfig(path)
	require.NoError(t, err)
	assert.Len(t, cfg.MCPServers, 2)
	assert.Equal(t, "/opt/other", cfg.MCPServers["other-tool"].Command)
}

func TestInstallSQLiteSnapshotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "claude_desktop_config.json")

	_, err := Install(InstallOptions{
		ConfigPath: path,
		Binary:     "/usr/local/bin/mcp-server",
		KBSQLite:   "/var/lib/pgx/kb.db",
	})
	require.NoError(t, err)

	cfg, err := LoadClientConfig(path)
	require.NoError(t, err)
	entry := cfg.MCPServers[ServerKey]
	assert.Equal(t, "sqlite", entry.Env["PGX_KB_SOURCE"])
	assert.Equal(t, "/var/lib/pgx/kb.db", entry.Env["PGX_KB_SQLITE_PATH"])
}

func TestUninstall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "claude_desktop_config.json")

	removed, err := Uninstall(path)
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = Install(InstallOptions{ConfigPath: path, Binary: "/usr/local/bin/mcp-server"})
	require.NoError(t, err)

	removed, err = Uninstall(path)
	require.NoError(t, err)
	assert.True(t, removed)

	status, err := InstallStatus(path)
	require.NoError(t, err)
	assert.False(t, status.Registered)
}

func TestInstallStatus(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "claude_desktop_config.json")

	binary := filepath.Join(dir, "mcp-server")
	require.NoError(t, os.WriteFile(binary, []byte("#!/bin/sh\n"), 0755))

	_, err := Install(InstallOptions{ConfigPath: path, Binary: binary})
	require.NoError(t, err)

	status, err := InstallStatus(path)
	require.NoError(t, err)
	assert.True(t, status.Registered)
	assert.Equal(t, binary, status.Binary)
	assert.True(t, status.BinaryExists)
}
