package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 50_000, cfg.EventCapacity)
	assert.Equal(t, "stdio", cfg.Transport)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Config)
		want string
	}{
		{"transport", func(c *Config) { c.Transport = "sse" }, `invalid transport "sse"`},
		{"capacity", func(c *Config) { c.EventCapacity = -1 }, "event_capacity"},
		{"window", func(c *Config) { c.WindowPadding = "half a day" }, "invalid window_padding"},
		{"timeout", func(c *Config) { c.QueryTimeout = "10" }, "invalid query_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mod(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMergeConfigs(t *testing.T) {
	base := DefaultConfig()
	base.WatchDirs = []string{"/a"}

	merged := MergeConfigs(base, &Config{
		EventCapacity: 100,
		WindowPadding: "1h",
		Transport:     "http",
		WatchDirs:     []string{"/a", "/b"},
		Stateless:     true,
	})

	assert.Equal(t, 100, merged.EventCapacity)
	assert.Equal(t, "1h", merged.WindowPadding)
	assert.Equal(t, "10s", merged.QueryTimeout)
	assert.Equal(t, "http", merged.Transport)
	assert.Equal(t, 4390, merged.HTTPPort)
	assert.True(t, merged.Stateless)
	assert.Equal(t, []string{"/a", "/b"}, merged.WatchDirs)

	// base is untouched
	assert.Equal(t, []string{"/a"}, base.WatchDirs)
	assert.Equal(t, "stdio", base.Transport)

	assert.Same(t, base, MergeConfigs(base, nil))
	assert.Equal(t, 7, MergeConfigs(nil, &Config{EventCapacity: 7}).EventCapacity)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "perfdash.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"comment": "local dev",
		"event_capacity": 500,
		"workspace": "ws.yaml",
		"collector_config": "/etc/otelcol/config.yaml",
		"watch_dirs": ["telemetry"]
	}`), 0o644))

	cfg, err := LoadConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.EventCapacity)
	assert.Equal(t, filepath.Join(dir, "ws.yaml"), cfg.Workspace)
	assert.Equal(t, "/etc/otelcol/config.yaml", cfg.CollectorConfig)
	assert.Equal(t, []string{filepath.Join(dir, "telemetry")}, cfg.WatchDirs)

	_, err = LoadConfigFromFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"event_capacity": "lots"}`), 0o644))
	_, err = LoadConfigFromFile(bad)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestFindProjectConfig(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	nested := filepath.Join(root, "svc", "api")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	_, err := FindProjectConfig(nested)
	assert.ErrorIs(t, err, os.ErrNotExist)

	configPath := filepath.Join(root, ".perfdash.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{}`), 0o644))

	found, err := FindProjectConfig(nested)
	require.NoError(t, err)
	assert.Equal(t, configPath, found)
}

func TestFindProjectConfigStopsAtGitRoot(t *testing.T) {
	outer := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outer, ".perfdash.json"), []byte(`{}`), 0o644))
	repo := filepath.Join(outer, "repo")
	require.NoError(t, os.MkdirAll(filepath.Join(repo, ".git"), 0o755))

	_, err := FindProjectConfig(repo)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadEffectiveConfigExplicit(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "c.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"otlp_port": 4317, "verbose": true}`), 0o644))

	cfg, err := LoadEffectiveConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 4317, cfg.OTLPPort)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, "12h", cfg.WindowPadding)

	_, err = LoadEffectiveConfig(path + ".missing")
	assert.Error(t, err)
}

func TestLoadEffectiveConfigGlobal(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	globalDir := filepath.Join(home, ".config", "perfdash")
	require.NoError(t, os.MkdirAll(globalDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(globalDir, "config.json"),
		[]byte(`{"event_capacity": 1234, "watch_dirs": ["/var/otel"]}`), 0o644))

	explicit := filepath.Join(t.TempDir(), "c.json")
	require.NoError(t, os.WriteFile(explicit, []byte(`{"watch_dirs": ["/tmp/otel"]}`), 0o644))

	cfg, err := LoadEffectiveConfig(explicit)
	require.NoError(t, err)
	assert.Equal(t, 1234, cfg.EventCapacity)
	assert.Equal(t, []string{"/var/otel", "/tmp/otel"}, cfg.WatchDirs)
}
