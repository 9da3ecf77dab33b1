package setup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// ServerKey is the name the MCP server is registered under in client
// configuration files.
const ServerKey = "pgx-risk-engine"

// ClientConfig mirrors the Claude Desktop configuration file layout,
// the de facto format MCP hosts read.
type ClientConfig struct {
	MCPServers map[string]ServerEntry `json:"mcpServers"`
}

// ServerEntry describes how an MCP host launches one stdio server.
type ServerEntry struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// InstallOptions controls MCP client registration.
type InstallOptions struct {
	ConfigPath string // client config file; resolved per OS when empty
	Binary     string // mcp-server binary; defaults to this executable
	KBDir      string // optional directory of knowledge base documents
	KBSQLite   string // optional knowledge base SQLite snapshot
	LogLevel   string // optional log level override
}

// ClientConfigPath returns the MCP client configuration file for this
// platform.
func ClientConfigPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support", "Claude")
	case "linux":
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			configDir = filepath.Join(xdg, "Claude")
			break
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config", "Claude")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		configDir = filepath.Join(appData, "Claude")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	return filepath.Join(configDir, "claude_desktop_config.json"), nil
}

// LoadClientConfig reads a client configuration file. A missing file
// yields an empty configuration.
func LoadClientConfig(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ClientConfig{MCPServers: make(map[string]ServerEntry)}, nil
		}
		return nil, fmt.Errorf("reading client config: %w", err)
	}

	var cfg ClientConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing client config: %w", err)
	}
	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]ServerEntry)
	}

	return &cfg, nil
}

// SaveClientConfig writes a client configuration file, creating its
// directory when needed.
func SaveClientConfig(path string, cfg *ClientConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling client config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing client config: %w", err)
	}
	return nil
}

// Install registers the MCP server with the client configuration and
// returns the path it wrote. Registering again replaces the entry.
func Install(opts InstallOptions) (string, error) {
	path := opts.ConfigPath
	if path == "" {
		var err error
		path, err = ClientConfigPath()
		if err != nil {
			return "", err
		}
	}

	cfg, err := LoadClientConfig(path)
	if err != nil {
		return "", err
	}

	binary := opts.Binary
	if binary == "" {
		binary, err = os.Executable()
		if err != nil {
			return "", fmt.Errorf("resolving server binary: %w", err)
		}
	}

	entry := ServerEntry{Command: binary, Env: map[string]string{}}
	if opts.KBDir != "" {
		entry.Env["PGX_KB_SOURCE"] = "json"
		entry.Env["PGX_KB_PATH"] = opts.KBDir
	}
	if opts.KBSQLite != "" {
		entry.Env["PGX_KB_SOURCE"] = "sqlite"
		entry.Env["PGX_KB_SQLITE_PATH"] = opts.KBSQLite
	}
	if opts.LogLevel != "" {
		entry.Env["PGX_LOGGING_LEVEL"] = opts.LogLevel
	}
	if len(entry.Env) == 0 {
		entry.Env = nil
	}

	cfg.MCPServers[ServerKey] = entry
	if err := SaveClientConfig(path, cfg); err != nil {
		return "", err
	}
	return path, nil
}

// Uninstall removes the MCP server registration. It reports whether an
// entry existed.
func Uninstall(configPath string) (bool, error) {
	path := configPath
	if path == "" {
		var err error
		path, err = ClientConfigPath()
		if err != nil {
			return false, err
		}
	}

	cfg, err := LoadClientConfig(path)
	if err != nil {
		return false, err
	}
	if _, ok := cfg.MCPServers[ServerKey]; !ok {
		return false, nil
	}

	delete(cfg.MCPServers, ServerKey)
	if err := SaveClientConfig(path, cfg); err != nil {
		return false, err
	}
	return true, nil
}

// ClientStatus reports the current MCP client registration.
type ClientStatus struct {
	ConfigPath   string
	Registered   bool
	Binary       string
	BinaryExists bool
	Env          map[string]string
}

// InstallStatus inspects the client configuration for this server's
// registration.
func InstallStatus(configPath string) (*ClientStatus, error) {
	path := configPath
	if path == "" {
		var err error
		path, err = ClientConfigPath()
		if err != nil {
			return nil, err
		}
	}

	status := &ClientStatus{ConfigPath: path}

	cfg, err := LoadClientConfig(path)
	if err != nil {
		return nil, err
	}

	entry, ok := cfg.MCPServers[ServerKey]
	if !ok {
		return status, nil
	}

	status.Registered = true
	status.Binary = entry.Command
	status.Env = entry.Env
	if _, err := os.Stat(entry.Command); err == nil {
		status.BinaryExists = true
	}
	return status, nil
}
