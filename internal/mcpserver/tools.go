package mcpserver

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/tobert/perfdash/internal/dashboard"
	"github.com/tobert/perfdash/internal/views"
)

// ═══════════════════════════════════════════════════════════════════════════
// PERFORMANCE TOOLS
//
// Each tool renders one dashboard view as plain text plus a small structured
// payload. Event slugs (<project>:<event id>) connect the tools:
// transaction_list -> related_events / compare_transactions / pin_baseline.
// ═══════════════════════════════════════════════════════════════════════════

// textContent wraps rendered text as tool content.
func textContent(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// Tool 1: get_otlp_endpoint

type GetOTLPEndpointInput struct{}

type GetOTLPEndpointOutput struct {
	Endpoint        string            `json:"endpoint" jsonschema:"OTLP gRPC endpoint address (accepts traces and logs)"`
	Protocol        string            `json:"protocol" jsonschema:"Protocol type (grpc)"`
	EnvironmentVars map[string]string `json:"environment_vars" jsonschema:"Suggested environment variables for configuring applications"`
}

func (s *Server) handleGetOTLPEndpoint(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GetOTLPEndpointInput,
) (*mcp.CallToolResult, GetOTLPEndpointOutput, error) {
	endpoint := s.otlpReceiver.Endpoint()
	return &mcp.CallToolResult{}, GetOTLPEndpointOutput{
		Endpoint: endpoint,
		Protocol: "grpc",
		EnvironmentVars: map[string]string{
			"OTEL_EXPORTER_OTLP_ENDPOINT": endpoint,
			"OTEL_EXPORTER_OTLP_PROTOCOL": "grpc",
		},
	}, nil
}

// Tool 2: transaction_list

type TransactionListInput struct {
	Transaction      string  `json:"transaction" jsonschema:"Transaction name, e.g. 'GET /users'"`
	ShowTransactions string  `json:"show_transactions,omitempty" jsonschema:"Filter: slowest (default), fastest or recent"`
	Projects         []int64 `json:"projects,omitempty" jsonschema:"Limit to these project ids"`
	Query            string  `json:"query,omitempty" jsonschema:"Extra predicate, e.g. 'user.display:jane'"`
	Start            string  `json:"start,omitempty" jsonschema:"Window start (RFC 3339)"`
	End              string  `json:"end,omitempty" jsonschema:"Window end (RFC 3339)"`
}

type TransactionListOutput struct {
	Transaction string   `json:"transaction" jsonschema:"Transaction name"`
	Filter      string   `json:"filter" jsonschema:"Active filter label"`
	Events      []string `json:"events" jsonschema:"Event slugs of the listed transactions, in table order"`
	Loading     bool     `json:"loading" jsonschema:"Whether the queries timed out before completing"`
	Empty       bool     `json:"empty" jsonschema:"Whether no transactions matched"`
	Discover    string   `json:"discover" jsonschema:"Discover location of the underlying query"`
}

func (input TransactionListInput) params() url.Values {
	params := url.Values{}
	if input.ShowTransactions != "" {
		params.Set(views.ParamShowTransactions, input.ShowTransactions)
	}
	for _, p := range input.Projects {
		params.Add("project", strconv.FormatInt(p, 10))
	}
	if input.Query != "" {
		params.Set("query", input.Query)
	}
	if input.Start != "" {
		params.Set("start", input.Start)
	}
	if input.End != "" {
		params.Set("end", input.End)
	}
	return params
}

func (s *Server) handleTransactionList(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input TransactionListInput,
) (*mcp.CallToolResult, TransactionListOutput, error) {
	params := input.params()
	list, err := s.dash.TransactionList(input.Transaction, params)
	if err != nil {
		return nil, TransactionListOutput{}, err
	}
	page, err := s.dash.Transactions(ctx, input.Transaction, params)
	if err != nil {
		return nil, TransactionListOutput{}, fmt.Errorf("load transactions: %w", err)
	}

	return textContent(page.Text()), TransactionListOutput{
		Transaction: page.Transaction,
		Filter:      page.Filter,
		Events:      page.Table.Events,
		Loading:     page.Table.Loading,
		Empty:       page.Table.Empty,
		Discover:    list.DiscoverTarget(),
	}, nil
}

// Tool 3: related_events

type RelatedEventsInput struct {
	EventSlug string `json:"event_slug" jsonschema:"Event slug <project>:<event id>"`
}

type RelatedEventsOutput struct {
	Query   string   `json:"query" jsonschema:"Predicate used to find the related events"`
	Events  []string `json:"events" jsonschema:"Event slugs of the related events"`
	Loading bool     `json:"loading" jsonschema:"Whether the query timed out"`
	Empty   bool     `json:"empty" jsonschema:"Whether no related events exist"`
}

func (s *Server) handleRelatedEvents(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input RelatedEventsInput,
) (*mcp.CallToolResult, RelatedEventsOutput, error) {
	related, err := s.dash.RelatedEvents(ctx, input.EventSlug)
	if err != nil {
		return nil, RelatedEventsOutput{}, err
	}

	out := RelatedEventsOutput{
		Query:   related.Query,
		Loading: related.Loading,
		Empty:   related.Empty,
		Events:  make([]string, 0, len(related.Rows)),
	}
	for _, row := range related.Rows {
		out.Events = append(out.Events, row.Project+":"+row.ID)
	}
	return textContent(related.Text()), out, nil
}

// Tool 4: compare_transactions

type CompareTransactionsInput struct {
	BaselineSlug   string `json:"baseline_slug" jsonschema:"Event slug of the baseline transaction"`
	RegressionSlug string `json:"regression_slug" jsonschema:"Event slug of the regressive transaction"`
}

type CompareTransactionsOutput struct {
	Title      string `json:"title" jsonschema:"Transaction name, or a notice when the names differ"`
	Notice     string `json:"notice,omitempty" jsonschema:"Set when either event is not a transaction"`
	Delta      string `json:"delta,omitempty" jsonschema:"Regression duration relative to the baseline"`
	Baseline   string `json:"baseline,omitempty" jsonschema:"Baseline duration"`
	Regression string `json:"regression,omitempty" jsonschema:"Regression duration"`
}

func (s *Server) handleCompareTransactions(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input CompareTransactionsInput,
) (*mcp.CallToolResult, CompareTransactionsOutput, error) {
	cmp, err := s.dash.Compare(ctx, input.BaselineSlug, input.RegressionSlug)
	if err != nil {
		return nil, CompareTransactionsOutput{}, err
	}

	out := CompareTransactionsOutput{Title: cmp.Title, Notice: cmp.Notice}
	if cmp.Delta != nil {
		out.Delta = cmp.Delta.Text()
	}
	if cmp.Baseline != nil {
		out.Baseline = cmp.Baseline.Text
	}
	if cmp.Regression != nil {
		out.Regression = cmp.Regression.Text
	}
	return textContent(cmp.Text()), out, nil
}

// Tool 5: pin_baseline

type PinBaselineInput struct {
	Transaction string `json:"transaction" jsonschema:"Transaction name"`
	EventSlug   string `json:"event_slug,omitempty" jsonschema:"Event slug to pin; empty removes the pin"`
}

type PinBaselineOutput struct {
	Transaction string `json:"transaction" jsonschema:"Transaction name"`
	Event       string `json:"event,omitempty" jsonschema:"Pinned event slug"`
	Message     string `json:"message" jsonschema:"Confirmation message"`
}

func (s *Server) handlePinBaseline(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input PinBaselineInput,
) (*mcp.CallToolResult, PinBaselineOutput, error) {
	if input.EventSlug == "" {
		if input.Transaction == "" {
			return nil, PinBaselineOutput{}, fmt.Errorf("%w: transaction is required", dashboard.ErrInvalidArgument)
		}
		if err := s.dash.UnpinBaseline(input.Transaction); err != nil {
			return nil, PinBaselineOutput{}, err
		}
		return &mcp.CallToolResult{}, PinBaselineOutput{
			Transaction: input.Transaction,
			Message:     fmt.Sprintf("Baseline of %q is the median transaction again", input.Transaction),
		}, nil
	}

	r, err := s.dash.PinBaseline(input.Transaction, input.EventSlug)
	if err != nil {
		return nil, PinBaselineOutput{}, err
	}
	return &mcp.CallToolResult{}, PinBaselineOutput{
		Transaction: input.Transaction,
		Event:       input.EventSlug,
		Message:     fmt.Sprintf("Pinned %s (%s) as the baseline of %q", input.EventSlug, r.DurationOrZero(), input.Transaction),
	}, nil
}

// Tool 6: alert_rules

type AlertRulesInput struct {
	Delete *DeleteRuleInput `json:"delete,omitempty" jsonschema:"Delete this rule before listing"`
}

type DeleteRuleInput struct {
	Project string `json:"project" jsonschema:"Project slug of the rule"`
	RuleID  string `json:"rule_id" jsonschema:"Rule id"`
}

type AlertRulesOutput struct {
	Rules   []views.RuleRow `json:"rules" jsonschema:"Rendered rule rows"`
	Skipped string          `json:"skipped,omitempty" jsonschema:"Rules that could not be rendered"`
}

func (s *Server) handleAlertRules(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input AlertRulesInput,
) (*mcp.CallToolResult, AlertRulesOutput, error) {
	if input.Delete != nil {
		if err := s.dash.DeleteRule(input.Delete.Project, input.Delete.RuleID); err != nil {
			return nil, AlertRulesOutput{}, fmt.Errorf("delete rule %s: %w", input.Delete.RuleID, err)
		}
	}

	rows, err := s.dash.AlertRules()
	out := AlertRulesOutput{Rules: rows}
	if err != nil {
		out.Skipped = err.Error()
	}

	var b strings.Builder
	b.WriteString(views.RulesText(rows))
	if out.Skipped != "" {
		fmt.Fprintf(&b, "\n⚠️  %s\n", out.Skipped)
	}
	return textContent(b.String()), out, nil
}

// Tool 7: get_stats

type GetStatsInput struct{}

type GetStatsOutput struct {
	Records       int    `json:"records" jsonschema:"Records held"`
	Capacity      int    `json:"capacity" jsonschema:"Record capacity"`
	Transactions  int    `json:"transactions" jsonschema:"Transaction records"`
	Errors        int    `json:"errors" jsonschema:"Error records"`
	Traces        int    `json:"traces" jsonschema:"Distinct traces with spans"`
	Pins          int    `json:"pins" jsonschema:"Pinned baselines"`
	Rules         int    `json:"rules" jsonschema:"Alert rules"`
	TraceRequests uint64 `json:"trace_requests" jsonschema:"Accepted OTLP trace export requests"`
	LogRequests   uint64 `json:"log_requests" jsonschema:"Accepted OTLP log export requests"`
	FileSources   int    `json:"file_sources" jsonschema:"Watched directories"`
}

func (s *Server) handleGetStats(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GetStatsInput,
) (*mcp.CallToolResult, GetStatsOutput, error) {
	stats := s.dash.Stats()
	counts := s.otlpReceiver.Counts()

	return textContent(stats.Text()), GetStatsOutput{
		Records:       stats.Records,
		Capacity:      stats.Capacity,
		Transactions:  stats.Transactions,
		Errors:        stats.Errors,
		Traces:        stats.Traces,
		Pins:          stats.Pins,
		Rules:         stats.Rules,
		TraceRequests: counts.TraceRequests,
		LogRequests:   counts.LogRequests,
		FileSources:   len(s.ListFileSources()),
	}, nil
}

// Tool 8: watch_directory

type WatchDirectoryInput struct {
	Directory  string `json:"directory" jsonschema:"Directory holding traces/ and logs/ JSONL from an OpenTelemetry collector file exporter"`
	ActiveOnly bool   `json:"active_only,omitempty" jsonschema:"Skip rotated archive files"`
	Remove     bool   `json:"remove,omitempty" jsonschema:"Stop watching the directory instead"`
}

type WatchDirectoryOutput struct {
	Directories []string `json:"directories" jsonschema:"All watched directories"`
	Message     string   `json:"message" jsonschema:"Confirmation message"`
}

func (s *Server) handleWatchDirectory(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input WatchDirectoryInput,
) (*mcp.CallToolResult, WatchDirectoryOutput, error) {
	if input.Directory == "" {
		return nil, WatchDirectoryOutput{}, fmt.Errorf("%w: directory is required", dashboard.ErrInvalidArgument)
	}

	var msg string
	if input.Remove {
		if err := s.RemoveFileSource(input.Directory); err != nil {
			return nil, WatchDirectoryOutput{}, err
		}
		msg = "Stopped watching " + input.Directory
	} else {
		if err := s.AddFileSource(ctx, input.Directory, input.ActiveOnly); err != nil {
			return nil, WatchDirectoryOutput{}, err
		}
		msg = "Watching " + input.Directory
	}

	return &mcp.CallToolResult{}, WatchDirectoryOutput{
		Directories: s.ListFileSources(),
		Message:     msg,
	}, nil
}

// Register all tools

func (s *Server) registerTools() error {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_otlp_endpoint",
		Description: "🚀 START HERE: Get the OTLP gRPC endpoint. Set OTEL_EXPORTER_OTLP_ENDPOINT=<endpoint> when running instrumented programs; traces become transactions and error events, logs become events.",
	}, s.handleGetOTLPEndpoint)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "transaction_list",
		Description: "List the slowest, fastest or most recent transactions of one transaction name, each compared to the baseline (the median transaction, or a pinned one). Returns event slugs for related_events, compare_transactions and pin_baseline.",
	}, s.handleTransactionList)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "related_events",
		Description: "List the other events of the same trace as an event (±12h around it), grouped by type. Errors get a comparison action against the trace's transaction.",
	}, s.handleRelatedEvents)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "compare_transactions",
		Description: "Compare a baseline transaction with a regressive one: durations, the delta, and both span waterfalls.",
	}, s.handleCompareTransactions)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "pin_baseline",
		Description: "Pin an event as the baseline of its transaction name, so transaction_list compares against it instead of the median. Omit event_slug to unpin.",
	}, s.handlePinBaseline)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "alert_rules",
		Description: "List the workspace's alert rules with project, owner and creation date. Optionally delete one first (needs the project:write access scope).",
	}, s.handleAlertRules)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_stats",
		Description: "Event store health: record counts by type, capacity, traces, pinned baselines, rules and OTLP request counts.",
	}, s.handleGetStats)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "watch_directory",
		Description: "Ingest OTLP JSONL written by an OpenTelemetry collector file exporter (traces/ and logs/ subdirectories), following new lines as they are written. Set remove to stop.",
	}, s.handleWatchDirectory)

	return nil
}
