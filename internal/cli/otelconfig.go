package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tobert/perfdash/internal/filereader"
)

// collectorConfig is the part of an OpenTelemetry Collector config that
// names file exporters.
type collectorConfig struct {
	Exporters map[string]fileExporter `yaml:"exporters"`
}

type fileExporter struct {
	Path string `yaml:"path"`
}

// CollectorDirectories reads an OpenTelemetry Collector config and returns
// the base directories of its file exporters ("file" or "file/<name>"),
// sorted. An exporter writing to <base>/traces/... or <base>/logs/...
// yields <base>, the layout file sources read.
func CollectorDirectories(configPath string) ([]string, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read collector config: %w", err)
	}

	var config collectorConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse collector config: %w", err)
	}

	dirSet := make(map[string]struct{})
	for name, exporter := range config.Exporters {
		if name != "file" && !strings.HasPrefix(name, "file/") {
			continue
		}
		if exporter.Path == "" {
			continue
		}
		dir := filepath.Dir(exporter.Path)
		switch filepath.Base(dir) {
		case filereader.SignalTraces, filereader.SignalLogs:
			dir = filepath.Dir(dir)
		}
		dirSet[dir] = struct{}{}
	}

	dirs := make([]string, 0, len(dirSet))
	for dir := range dirSet {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs, nil
}
