package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/tobert/perfdash/internal/discover"
	"github.com/tobert/perfdash/internal/filereader"
	"github.com/tobert/perfdash/internal/storage"
	"github.com/tobert/perfdash/internal/views"
	"github.com/tobert/perfdash/internal/viz"
)

// registerResources registers all MCP resources and resource templates.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "perfdash://endpoint",
		Name:        "endpoint",
		Description: "OTLP gRPC endpoint address and environment variable suggestions.",
		MIMEType:    "text/plain",
	}, s.handleEndpointResource)

	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "perfdash://stats",
		Name:        "stats",
		Description: "Event store counts, capacity, pinned baselines and rules.",
		MIMEType:    "text/plain",
	}, s.handleStatsResource)

	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "perfdash://projects",
		Name:        "projects",
		Description: "Known projects with ids, slugs and platforms.",
		MIMEType:    "text/plain",
	}, s.handleProjectsResource)

	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "perfdash://alert-rules",
		Name:        "alert-rules",
		Description: "Alert rules of the workspace.",
		MIMEType:    "text/plain",
	}, s.handleAlertRulesResource)

	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "perfdash://file-sources",
		Name:        "file-sources",
		Description: "Directories being watched for OTLP JSONL.",
		MIMEType:    "text/plain",
	}, s.handleFileSourcesResource)

	s.mcpServer.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "perfdash://events/{slug}",
		Name:        "event-detail",
		Description: "One event by slug (<project>:<event id>) with its span waterfall.",
		MIMEType:    "text/plain",
	}, s.handleEventResource)

	s.mcpServer.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "perfdash://transactions/{name}",
		Name:        "transaction-summary",
		Description: "Slowest transactions of a transaction name compared to its baseline.",
		MIMEType:    "text/plain",
	}, s.handleTransactionResource)
}

func (s *Server) handleEndpointResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	endpoint := s.otlpReceiver.Endpoint()

	var b strings.Builder
	b.WriteString("OTLP Endpoint\n")
	b.WriteString("═════════════\n")
	fmt.Fprintf(&b, "  Address:  %s\n", endpoint)
	b.WriteString("  Protocol: grpc (traces + logs)\n")
	b.WriteString("\n  Environment Variables:\n")
	fmt.Fprintf(&b, "    OTEL_EXPORTER_OTLP_ENDPOINT=%s\n", endpoint)
	b.WriteString("    OTEL_EXPORTER_OTLP_PROTOCOL=grpc\n")

	return textResult(req.Params.URI, b.String()), nil
}

func (s *Server) handleStatsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	counts := s.otlpReceiver.Counts()

	var b strings.Builder
	b.WriteString(s.dash.Stats().Text())
	fmt.Fprintf(&b, "\n  OTLP requests: %s traces, %s logs\n",
		viz.FormatCount(int64(counts.TraceRequests)), viz.FormatCount(int64(counts.LogRequests)))

	return textResult(req.Params.URI, b.String()), nil
}

func (s *Server) handleProjectsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	projects := s.dash.Store().Projects().Projects()

	var b strings.Builder
	fmt.Fprintf(&b, "Projects (%d)\n", len(projects))
	b.WriteString("════════════\n")
	if len(projects) == 0 {
		b.WriteString("  (none)\n")
		return textResult(req.Params.URI, b.String()), nil
	}

	rows := make([][]string, len(projects))
	for i, p := range projects {
		platform := p.Platform
		if platform == "" {
			platform = "-"
		}
		rows[i] = []string{fmt.Sprintf("%d", p.ID), p.Slug, platform}
	}
	b.WriteString(viz.Table([]viz.Column{
		{Title: "Id", AlignRight: true},
		{Title: "Slug"},
		{Title: "Platform"},
	}, rows))

	return textResult(req.Params.URI, b.String()), nil
}

func (s *Server) handleAlertRulesResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	rows, err := s.dash.AlertRules()

	var b strings.Builder
	b.WriteString(views.RulesText(rows))
	if err != nil {
		fmt.Fprintf(&b, "\n⚠️  %v\n", err)
	}

	return textResult(req.Params.URI, b.String()), nil
}

func (s *Server) handleFileSourcesResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	stats := s.FileSourceStats()

	var b strings.Builder
	fmt.Fprintf(&b, "File Sources (%d)\n", len(stats))
	b.WriteString("═════════════════\n")

	if len(stats) == 0 {
		b.WriteString("  (none)\n")
	} else {
		for _, stat := range stats {
			fmt.Fprintf(&b, "  %s\n", stat.Directory)
			fmt.Fprintf(&b, "    Files tracked: %d\n", stat.FilesTracked)
			fmt.Fprintf(&b, "    Lines read:    %s traces, %s logs\n",
				viz.FormatCount(int64(stat.Lines[filereader.SignalTraces])),
				viz.FormatCount(int64(stat.Lines[filereader.SignalLogs])))
			if len(stat.WatchedDirs) > 0 {
				b.WriteString("    Watching:\n")
				for _, dir := range stat.WatchedDirs {
					fmt.Fprintf(&b, "      • %s\n", dir)
				}
			}
		}
	}

	return textResult(req.Params.URI, b.String()), nil
}

// ─── Resource template handlers ─────────────────────────────────────────

func (s *Server) handleEventResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	raw, err := extractURIParam(req.Params.URI, "perfdash://events/")
	if err != nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	slug, err := discover.ParseEventSlug(raw)
	if err != nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	event, err := s.dash.Store().Event(ctx, slug)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("load event %s: %w", slug, err)
	}

	title := event.Title
	if title == "" {
		title = slug.String()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Event: %s\n", title)
	b.WriteString(strings.Repeat("═", len([]rune(title))+7) + "\n")
	fmt.Fprintf(&b, "  Slug:      %s\n", slug)
	fmt.Fprintf(&b, "  Type:      %s\n", event.Type)
	if event.Transaction != "" {
		fmt.Fprintf(&b, "  Transaction: %s\n", event.Transaction)
	}
	fmt.Fprintf(&b, "  Timestamp: %s\n", viz.FormatDateTime(event.Timestamp))
	if event.Duration != nil {
		fmt.Fprintf(&b, "  Duration:  %s\n", viz.DurationString(*event.Duration))
	}
	if event.TraceID != "" {
		fmt.Fprintf(&b, "  Trace:     %s\n", event.TraceID)
	}
	if event.User != "" {
		fmt.Fprintf(&b, "  User:      %s\n", event.User)
	}
	if len(event.Spans) > 0 {
		b.WriteByte('\n')
		b.WriteString(viz.Waterfall(title, views.SpanInfos(event), 100))
	}

	return textResult(req.Params.URI, b.String()), nil
}

func (s *Server) handleTransactionResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	name, err := extractURIParam(req.Params.URI, "perfdash://transactions/")
	if err != nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	page, err := s.dash.Transactions(ctx, name, url.Values{})
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}

	return textResult(req.Params.URI, page.Text()), nil
}

// ─── Helpers ────────────────────────────────────────────────────────────

// extractURIParam strips the prefix from a URI and URL-decodes the rest.
func extractURIParam(uri, prefix string) (string, error) {
	if !strings.HasPrefix(uri, prefix) {
		return "", fmt.Errorf("invalid URI: %s", uri)
	}
	param := strings.TrimPrefix(uri, prefix)
	if param == "" {
		return "", fmt.Errorf("empty parameter in URI: %s", uri)
	}
	decoded, err := url.PathUnescape(param)
	if err != nil {
		return "", fmt.Errorf("invalid encoding in URI: %w", err)
	}
	return decoded, nil
}

// textResult wraps a string in a ReadResourceResult.
func textResult(uri, text string) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     text,
		}},
	}
}
