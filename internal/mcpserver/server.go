package mcpserver

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/tobert/perfdash/internal/dashboard"
	"github.com/tobert/perfdash/internal/filereader"
	"github.com/tobert/perfdash/internal/otlpreceiver"
)

// Server wraps the MCP server with the dashboard and the OTLP receiver.
// Tools render the same view models as the HTTP API, as plain text.
type Server struct {
	mcpServer    *mcp.Server
	dash         *dashboard.Dashboard
	otlpReceiver *otlpreceiver.Server

	// File sources - directories being watched for OTLP JSONL files
	fileSourcesMu sync.RWMutex
	fileSources   map[string]*filereader.FileSource
	verbose       bool
}

// ServerOptions configures the MCP server.
type ServerOptions struct {
	Verbose bool // Enable verbose logging
	Version string
}

// NewServer creates a new MCP server exposing the performance views.
func NewServer(d *dashboard.Dashboard, otlpReceiver *otlpreceiver.Server, opts ...ServerOptions) (*Server, error) {
	if d == nil {
		return nil, fmt.Errorf("dashboard cannot be nil")
	}

	if otlpReceiver == nil {
		return nil, fmt.Errorf("OTLP receiver cannot be nil")
	}

	var opt ServerOptions
	if len(opts) > 0 {
		opt = opts[0]
	}
	if opt.Version == "" {
		opt.Version = "dev"
	}

	s := &Server{
		dash:         d,
		otlpReceiver: otlpReceiver,
		fileSources:  make(map[string]*filereader.FileSource),
		verbose:      opt.Verbose,
	}

	s.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    "perfdash",
		Title:   "Transaction Performance Dashboard",
		Version: opt.Version,
	}, &mcp.ServerOptions{
		Instructions: `Transaction performance dashboard over OTLP traces and logs kept in memory.

Workflow: get_otlp_endpoint -> set OTEL_EXPORTER_OTLP_ENDPOINT -> run program -> transaction_list.

Tools: transaction_list (slowest/fastest/recent with baseline comparison), related_events (same trace),
compare_transactions (span waterfalls side by side), pin_baseline, alert_rules, get_stats,
watch_directory (ingest OTLP JSONL written by a collector file exporter).
Event slugs look like <project>:<event id>; transaction_list prints them in the id column.
Resources: perfdash://endpoint, perfdash://stats, perfdash://projects, perfdash://alert-rules, perfdash://file-sources,
perfdash://events/{slug}, perfdash://transactions/{name}.`,
		SubscribeHandler:   func(_ context.Context, _ *mcp.SubscribeRequest) error { return nil },
		UnsubscribeHandler: func(_ context.Context, _ *mcp.UnsubscribeRequest) error { return nil },
	})

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	s.registerResources()

	return s, nil
}

// Run starts the MCP server on stdio transport.
// This method blocks until the context is cancelled or EOF is received on stdin.
func (s *Server) Run(ctx context.Context) error {
	err := s.mcpServer.Run(ctx, &mcp.StdioTransport{})

	s.stopAllFileSources()

	return err
}

// MCPServer returns the underlying mcp.Server for use with
// StreamableHTTPHandler.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}

// Shutdown stops file sources when a non-stdio transport is used.
func (s *Server) Shutdown() {
	s.stopAllFileSources()
}

// AddFileSource starts reading OTLP JSONL from a directory into the event
// store. With activeOnly, rotated archives are skipped.
func (s *Server) AddFileSource(ctx context.Context, directory string, activeOnly bool) error {
	s.fileSourcesMu.Lock()
	defer s.fileSourcesMu.Unlock()

	if _, exists := s.fileSources[directory]; exists {
		return fmt.Errorf("directory %s is already being watched", directory)
	}

	fs, err := filereader.New(filereader.Config{
		Directory:  directory,
		Verbose:    s.verbose,
		ActiveOnly: activeOnly,
	}, s.dash.Store())
	if err != nil {
		return fmt.Errorf("failed to create file source: %w", err)
	}

	if err := fs.Start(ctx); err != nil {
		return fmt.Errorf("failed to start file source: %w", err)
	}

	s.fileSources[directory] = fs
	return nil
}

// RemoveFileSource stops and removes a file source. The source is stopped
// outside the lock since Stop waits on its goroutines.
func (s *Server) RemoveFileSource(directory string) error {
	s.fileSourcesMu.Lock()
	fs, exists := s.fileSources[directory]
	if !exists {
		s.fileSourcesMu.Unlock()
		return fmt.Errorf("directory %s is not being watched", directory)
	}
	delete(s.fileSources, directory)
	s.fileSourcesMu.Unlock()

	fs.Stop()
	return nil
}

// ListFileSources returns the watched directories, sorted.
func (s *Server) ListFileSources() []string {
	s.fileSourcesMu.RLock()
	defer s.fileSourcesMu.RUnlock()

	dirs := make([]string, 0, len(s.fileSources))
	for dir := range s.fileSources {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs
}

// FileSourceStats returns stats for all file sources, ordered by directory.
func (s *Server) FileSourceStats() []filereader.Stats {
	s.fileSourcesMu.RLock()
	defer s.fileSourcesMu.RUnlock()

	stats := make([]filereader.Stats, 0, len(s.fileSources))
	for _, fs := range s.fileSources {
		stats = append(stats, fs.Stats())
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Directory < stats[j].Directory })
	return stats
}

func (s *Server) stopAllFileSources() {
	s.fileSourcesMu.Lock()
	sources := make([]*filereader.FileSource, 0, len(s.fileSources))
	for _, fs := range s.fileSources {
		sources = append(sources, fs)
	}
	clear(s.fileSources)
	s.fileSourcesMu.Unlock()

	for _, fs := range sources {
		fs.Stop()
	}
}
