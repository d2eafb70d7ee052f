package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// Config holds the runtime configuration of the dashboard server.
// It can be populated from CLI flags, config files, or both.
type Config struct {
	// Comment field for user documentation (ignored by the application)
	Comment string `json:"comment,omitempty"`

	// Event store
	EventCapacity int    `json:"event_capacity,omitempty"`
	WindowPadding string `json:"window_padding,omitempty"` // related events window around an event (e.g. "12h")
	QueryTimeout  string `json:"query_timeout,omitempty"`  // views render as loading after this (e.g. "10s")

	// Workspace file (YAML): organization, projects, alert rules, access
	Workspace string `json:"workspace,omitempty"`

	// OTLP server configuration
	OTLPHost string `json:"otlp_host,omitempty"`
	OTLPPort int    `json:"otlp_port,omitempty"`

	// OTLP JSONL directories (collector file exporter layout)
	WatchDirs       []string `json:"watch_dirs,omitempty"`
	CollectorConfig string   `json:"collector_config,omitempty"` // collector YAML to read file exporter paths from
	ActiveOnly      bool     `json:"active_only,omitempty"`      // skip rotated archives

	// MCP transport configuration
	Transport      string   `json:"transport,omitempty"`       // "stdio" (default), "http" or "none"
	HTTPHost       string   `json:"http_host,omitempty"`       // HTTP server bind address
	HTTPPort       int      `json:"http_port,omitempty"`       // HTTP server port
	AllowedOrigins []string `json:"allowed_origins,omitempty"` // Allowed Origin headers for the MCP endpoint
	Stateless      bool     `json:"stateless,omitempty"`       // Run HTTP transport in stateless mode

	// Dashboard API configuration
	WebUIPort int    `json:"webui_port,omitempty"` // 0 = same server as the HTTP transport, or disabled on stdio
	WebUIHost string `json:"webui_host,omitempty"` // default: 127.0.0.1

	// Logging configuration
	Verbose bool `json:"verbose,omitempty"`
}

// DefaultConfig returns a Config with the built-in defaults:
// 50,000 events, ±12h related window, 10s view timeout, localhost
// binding on an ephemeral OTLP port and the stdio transport.
func DefaultConfig() *Config {
	return &Config{
		EventCapacity:  50_000,
		WindowPadding:  "12h",
		QueryTimeout:   "10s",
		OTLPHost:       "127.0.0.1",
		OTLPPort:       0, // 0 means ephemeral port assignment
		Transport:      "stdio",
		HTTPHost:       "127.0.0.1",
		HTTPPort:       4390,
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		Stateless:      false,
		WebUIPort:      0,
		WebUIHost:      "127.0.0.1",
		Verbose:        false,
	}
}

// Validate checks enumerations and durations.
func (c *Config) Validate() error {
	switch c.Transport {
	case "stdio", "http", "none":
	default:
		return fmt.Errorf("invalid transport %q: must be stdio, http or none", c.Transport)
	}
	if c.EventCapacity < 0 {
		return fmt.Errorf("event_capacity must not be negative")
	}
	for name, v := range map[string]string{
		"window_padding": c.WindowPadding,
		"query_timeout":  c.QueryTimeout,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, v, err)
		}
	}
	return nil
}

// duration parses a duration field, returning zero when it is empty.
// Fields are checked by Validate first.
func duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// LoadConfigFromFile loads configuration from a JSON file at the given path.
// Relative paths inside it are taken relative to the file.
// It returns an error if the file cannot be read or parsed.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	config.resolvePaths(filepath.Dir(path))

	return &config, nil
}

// resolvePaths makes file paths in the config relative to dir, the
// directory of the file they were read from.
func (c *Config) resolvePaths(dir string) {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	c.Workspace = resolve(c.Workspace)
	c.CollectorConfig = resolve(c.CollectorConfig)
	for i, d := range c.WatchDirs {
		c.WatchDirs[i] = resolve(d)
	}
}

// FindProjectConfig searches for a .perfdash.json config file.
// It starts in dir and walks up looking for the file, stopping at a .git
// directory (project root) or the filesystem root.
func FindProjectConfig(dir string) (string, error) {
	return findProjectConfig(dir, os.Stat)
}

func findProjectConfig(dir string, stat func(string) (os.FileInfo, error)) (string, error) {
	for {
		configPath := filepath.Join(dir, ".perfdash.json")
		if _, err := stat(configPath); err == nil {
			return configPath, nil
		}

		if _, err := stat(filepath.Join(dir, ".git")); err == nil {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", os.ErrNotExist
}

// GlobalConfigPath returns the path to the global config file,
// ~/.config/perfdash/config.json.
func GlobalConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "perfdash", "config.json")
}

// MergeConfigs merges two configs with the overlay taking precedence.
// Fields set in overlay override corresponding fields in base.
// Returns a new Config with the merged values.
func MergeConfigs(base, overlay *Config) *Config {
	if base == nil {
		base = &Config{}
	}
	if overlay == nil {
		return base
	}

	merged := *base
	merged.WatchDirs = slices.Clone(base.WatchDirs)

	if overlay.EventCapacity > 0 {
		merged.EventCapacity = overlay.EventCapacity
	}
	if overlay.WindowPadding != "" {
		merged.WindowPadding = overlay.WindowPadding
	}
	if overlay.QueryTimeout != "" {
		merged.QueryTimeout = overlay.QueryTimeout
	}
	if overlay.Workspace != "" {
		merged.Workspace = overlay.Workspace
	}

	if overlay.OTLPHost != "" {
		merged.OTLPHost = overlay.OTLPHost
	}
	if overlay.OTLPPort != 0 {
		merged.OTLPPort = overlay.OTLPPort
	}

	// Watched directories accumulate across layers.
	for _, dir := range overlay.WatchDirs {
		if !slices.Contains(merged.WatchDirs, dir) {
			merged.WatchDirs = append(merged.WatchDirs, dir)
		}
	}
	if overlay.CollectorConfig != "" {
		merged.CollectorConfig = overlay.CollectorConfig
	}
	if overlay.ActiveOnly {
		merged.ActiveOnly = overlay.ActiveOnly
	}

	if overlay.Transport != "" {
		merged.Transport = overlay.Transport
	}
	if overlay.HTTPHost != "" {
		merged.HTTPHost = overlay.HTTPHost
	}
	if overlay.HTTPPort > 0 {
		merged.HTTPPort = overlay.HTTPPort
	}
	if len(overlay.AllowedOrigins) > 0 {
		merged.AllowedOrigins = overlay.AllowedOrigins
	}
	if overlay.Stateless {
		merged.Stateless = overlay.Stateless
	}

	if overlay.WebUIPort > 0 {
		merged.WebUIPort = overlay.WebUIPort
	}
	if overlay.WebUIHost != "" {
		merged.WebUIHost = overlay.WebUIHost
	}

	if overlay.Verbose {
		merged.Verbose = overlay.Verbose
	}

	return &merged
}

// LoadEffectiveConfig loads the effective configuration by merging:
// 1. Built-in defaults
// 2. Global config file (if exists)
// 3. Project config file (if exists and no explicit path)
// 4. Explicit config file (if specified via configPath)
// Later sources override earlier ones.
func LoadEffectiveConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	// Global config is optional; unreadable files are ignored.
	if globalPath := GlobalConfigPath(); globalPath != "" {
		if globalCfg, err := LoadConfigFromFile(globalPath); err == nil {
			config = MergeConfigs(config, globalCfg)
		}
	}

	if configPath == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		if projectPath, err := FindProjectConfig(cwd); err == nil {
			projectCfg, err := LoadConfigFromFile(projectPath)
			if err != nil {
				return nil, fmt.Errorf("failed to load project config: %w", err)
			}
			config = MergeConfigs(config, projectCfg)
		}
	} else {
		explicitCfg, err := LoadConfigFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		config = MergeConfigs(config, explicitCfg)
	}

	return config, nil
}
