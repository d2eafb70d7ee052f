package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"path"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/tobert/perfdash/internal/analytics"
	"github.com/tobert/perfdash/internal/dashboard"
	"github.com/tobert/perfdash/internal/mcpserver"
	"github.com/tobert/perfdash/internal/otlpreceiver"
	"github.com/tobert/perfdash/internal/storage"
	"github.com/tobert/perfdash/internal/views"
	"github.com/tobert/perfdash/internal/webui"
)

// ServeCommand returns the CLI command definition for the 'serve' subcommand.
// It starts the OTLP gRPC receiver, the dashboard API and the MCP server.
func ServeCommand(version string) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the OTLP receiver, dashboard API and MCP server",
		Description: `Starts an OTLP gRPC receiver (ephemeral port by default) that turns
traces and logs into transactions and events, and serves the performance
views over MCP (stdio or streamable HTTP) and a JSON/WebSocket API.

Configuration is layered: built-in defaults, ~/.config/perfdash/config.json,
.perfdash.json (nearest parent up to the git root), --config, then flags.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "JSON config file (replaces the project config layer)",
			},
			&cli.StringFlag{
				Name:  "workspace",
				Usage: "YAML workspace file: organization, projects, alert rules, access",
			},
			&cli.IntFlag{
				Name:  "event-capacity",
				Usage: "Number of events to keep",
				Value: 50_000,
			},
			&cli.StringFlag{
				Name:  "window-padding",
				Usage: "Related events window on each side of an event",
				Value: "12h",
			},
			&cli.StringFlag{
				Name:  "query-timeout",
				Usage: "How long views wait for queries before rendering as loading",
				Value: "10s",
			},
			&cli.StringFlag{
				Name:  "otlp-host",
				Usage: "OTLP server bind address",
				Value: "127.0.0.1",
			},
			&cli.IntFlag{
				Name:  "otlp-port",
				Usage: "OTLP server port (0 for ephemeral)",
				Value: 0,
			},
			&cli.StringSliceFlag{
				Name:  "watch-dir",
				Usage: "Directory with traces/ and logs/ OTLP JSONL to ingest (repeatable)",
			},
			&cli.StringFlag{
				Name:  "collector-config",
				Usage: "OpenTelemetry Collector config to take file exporter directories from",
			},
			&cli.BoolFlag{
				Name:  "active-only",
				Usage: "Skip rotated JSONL archives in watched directories",
			},
			&cli.StringFlag{
				Name:  "transport",
				Usage: "MCP transport: stdio, http or none",
				Value: "stdio",
			},
			&cli.StringFlag{
				Name:  "http-host",
				Usage: "HTTP transport bind address",
				Value: "127.0.0.1",
			},
			&cli.IntFlag{
				Name:  "http-port",
				Usage: "HTTP transport port",
				Value: 4390,
			},
			&cli.BoolFlag{
				Name:  "stateless",
				Usage: "Run the HTTP transport without sessions",
			},
			&cli.StringFlag{
				Name:  "webui-host",
				Usage: "Dashboard API bind address",
				Value: "127.0.0.1",
			},
			&cli.IntFlag{
				Name:  "webui-port",
				Usage: "Dashboard API port (0 = share the HTTP transport server)",
				Value: 0,
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable verbose logging",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := configFromCommand(cmd)
			if err != nil {
				return err
			}
			return runServe(ctx, cfg, version)
		},
	}
}

// configFromCommand layers explicitly set flags over the effective config.
func configFromCommand(cmd *cli.Command) (*Config, error) {
	cfg, err := LoadEffectiveConfig(cmd.String("config"))
	if err != nil {
		return nil, err
	}

	flags := &Config{}
	if cmd.IsSet("workspace") {
		flags.Workspace = cmd.String("workspace")
	}
	if cmd.IsSet("event-capacity") {
		flags.EventCapacity = cmd.Int("event-capacity")
	}
	if cmd.IsSet("window-padding") {
		flags.WindowPadding = cmd.String("window-padding")
	}
	if cmd.IsSet("query-timeout") {
		flags.QueryTimeout = cmd.String("query-timeout")
	}
	if cmd.IsSet("otlp-host") {
		flags.OTLPHost = cmd.String("otlp-host")
	}
	if cmd.IsSet("otlp-port") {
		flags.OTLPPort = cmd.Int("otlp-port")
	}
	if cmd.IsSet("watch-dir") {
		flags.WatchDirs = cmd.StringSlice("watch-dir")
	}
	if cmd.IsSet("collector-config") {
		flags.CollectorConfig = cmd.String("collector-config")
	}
	if cmd.IsSet("transport") {
		flags.Transport = cmd.String("transport")
	}
	if cmd.IsSet("http-host") {
		flags.HTTPHost = cmd.String("http-host")
	}
	if cmd.IsSet("http-port") {
		flags.HTTPPort = cmd.Int("http-port")
	}
	if cmd.IsSet("webui-host") {
		flags.WebUIHost = cmd.String("webui-host")
	}
	if cmd.IsSet("webui-port") {
		flags.WebUIPort = cmd.Int("webui-port")
	}
	flags.ActiveOnly = cmd.Bool("active-only")
	flags.Stateless = cmd.Bool("stateless")
	flags.Verbose = cmd.Bool("verbose")

	cfg = MergeConfigs(cfg, flags)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// components is everything runServe wires together.
type components struct {
	store *storage.EventStore
	dash  *dashboard.Dashboard
	otlp  *otlpreceiver.Server
	mcp   *mcpserver.Server
	web   *webui.Server
}

// buildComponents creates the stores, the dashboard, the OTLP receiver and
// the MCP server from the config. The receiver is bound but not started.
func buildComponents(cfg *Config, version string) (*components, error) {
	ws := DefaultWorkspace()
	if cfg.Workspace != "" {
		loaded, err := LoadWorkspace(cfg.Workspace)
		if err != nil {
			return nil, err
		}
		ws = loaded
	}

	store := storage.NewEventStore(storage.Options{
		Capacity:      cfg.EventCapacity,
		WindowPadding: duration(cfg.WindowPadding),
		Projects:      ws.ProjectList(),
	})
	rules, err := storage.NewRuleStore(ws.AlertRules...)
	if err != nil {
		return nil, fmt.Errorf("failed to load alert rules: %w", err)
	}

	dash, err := dashboard.New(store, rules, dashboard.Config{
		Org:          ws.Org(),
		Access:       ws.Access,
		Nav:          views.PathNavigator{},
		Tracker:      analytics.NewSlogTracker(nil),
		QueryTimeout: duration(cfg.QueryTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create dashboard: %w", err)
	}

	otlpServer, err := otlpreceiver.NewServer(otlpreceiver.Config{
		Host: cfg.OTLPHost,
		Port: cfg.OTLPPort,
	}, store)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP server: %w", err)
	}

	mcpServer, err := mcpserver.NewServer(dash, otlpServer, mcpserver.ServerOptions{
		Verbose: cfg.Verbose,
		Version: version,
	})
	if err != nil {
		otlpServer.Stop()
		return nil, fmt.Errorf("failed to create MCP server: %w", err)
	}

	return &components{
		store: store,
		dash:  dash,
		otlp:  otlpServer,
		mcp:   mcpServer,
		web:   webui.New(dash, cfg.Verbose),
	}, nil
}

// watchDirectories starts a file source for each configured directory and
// each file exporter of the collector config. A directory that cannot be
// watched is logged and skipped.
func watchDirectories(ctx context.Context, cfg *Config, srv *mcpserver.Server) error {
	dirs := append([]string(nil), cfg.WatchDirs...)
	if cfg.CollectorConfig != "" {
		collectorDirs, err := CollectorDirectories(cfg.CollectorConfig)
		if err != nil {
			return err
		}
		dirs = append(dirs, collectorDirs...)
	}

	for _, dir := range dirs {
		if err := srv.AddFileSource(ctx, dir, cfg.ActiveOnly); err != nil {
			log.Printf("⚠️  Not watching %s: %v\n", dir, err)
			continue
		}
		log.Printf("📁 Watching %s for OTLP JSONL\n", dir)
	}
	return nil
}

// runServe wires storage, the OTLP receiver, file sources, the dashboard
// API and the MCP server, and runs until the transport ends or a signal
// arrives.
func runServe(ctx context.Context, cfg *Config, version string) error {
	if cfg.Verbose {
		log.Println("🔧 Configuration:")
		log.Printf("  Event capacity: %d\n", cfg.EventCapacity)
		log.Printf("  Related window: ±%s\n", cfg.WindowPadding)
		log.Printf("  Query timeout: %s\n", cfg.QueryTimeout)
		log.Printf("  OTLP bind: %s:%d\n", cfg.OTLPHost, cfg.OTLPPort)
		log.Printf("  Transport: %s\n", cfg.Transport)
		if cfg.Workspace != "" {
			log.Printf("  Workspace: %s\n", cfg.Workspace)
		}
		log.Println()
	}

	c, err := buildComponents(cfg, version)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := c.otlp.Start(ctx)
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("OTLP server error: %w", err)
		}
		return nil
	})

	endpoint := c.otlp.Endpoint()
	log.Printf("🌐 OTLP gRPC server listening on %s\n", endpoint)
	if cfg.Verbose {
		log.Printf("   Programs can send traces with: OTEL_EXPORTER_OTLP_ENDPOINT=%s\n", endpoint)
	}

	if err := watchDirectories(ctx, cfg, c.mcp); err != nil {
		c.otlp.Stop()
		return err
	}
	defer c.mcp.Shutdown()

	if cfg.WebUIPort > 0 {
		addr := net.JoinHostPort(cfg.WebUIHost, strconv.Itoa(cfg.WebUIPort))
		log.Printf("📊 Dashboard API on http://%s/api/\n", addr)
		g.Go(func() error { return c.web.ListenAndServe(ctx, addr) })
	}

	if cfg.Transport == "stdio" {
		g.Go(func() error {
			log.Println("🎯 MCP server ready on stdio")
			err := c.mcp.Run(ctx)
			// stdin closing ends the whole process.
			stop()
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("MCP server error: %w", err)
			}
			return nil
		})
	} else if cfg.Transport == "http" || cfg.WebUIPort == 0 {
		addr := net.JoinHostPort(cfg.HTTPHost, strconv.Itoa(cfg.HTTPPort))
		if cfg.Transport == "http" {
			log.Printf("🎯 MCP server ready on http://%s/mcp\n", addr)
		}
		if cfg.WebUIPort == 0 {
			log.Printf("📊 Dashboard API on http://%s/api/\n", addr)
		}
		handler := newHTTPHandler(cfg, c)
		g.Go(func() error { return webui.Serve(ctx, addr, handler) })
	}

	err = g.Wait()
	log.Println("👋 Shut down")
	return err
}

// newHTTPHandler routes /mcp to the streamable HTTP transport (unless the
// transport is "none") and, when the dashboard API has no port of its own,
// mounts the API on the same router.
func newHTTPHandler(cfg *Config, c *components) http.Handler {
	r := chi.NewRouter()
	if cfg.Verbose {
		r.Use(chimw.Logger)
	}
	r.Use(chimw.Recoverer)

	if cfg.Transport == "http" {
		mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
			return c.mcp.MCPServer()
		}, &mcp.StreamableHTTPOptions{Stateless: cfg.Stateless})
		r.With(checkOrigin(cfg.AllowedOrigins)).Handle("/mcp", mcpHandler)
	}
	if cfg.WebUIPort == 0 {
		c.web.MountRoutes(r)
	}
	return r
}

// checkOrigin rejects browser requests whose Origin matches none of the
// patterns ("http://localhost:*" style globs). Requests without an Origin
// header come from non-browser clients and pass.
func checkOrigin(patterns []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && !originAllowed(origin, patterns) {
				http.Error(w, "origin not allowed", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(origin string, patterns []string) bool {
	for _, p := range patterns {
		if ok, err := path.Match(p, origin); err == nil && ok {
			return true
		}
	}
	return false
}
