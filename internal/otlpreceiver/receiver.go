// Package otlpreceiver accepts OTLP/gRPC trace and log exports and hands
// them to the event store.
package otlpreceiver

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"

	collectorlogs "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	collectortrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/grpc"
)

// Receiver stores received telemetry. Implementations must be safe for
// concurrent use; Export may be called from many streams at once.
type Receiver interface {
	ReceiveSpans(ctx context.Context, spans []*tracepb.ResourceSpans) error
	ReceiveLogs(ctx context.Context, logs []*logspb.ResourceLogs) error
}

// Config holds configuration for the OTLP receiver.
type Config struct {
	Host string // e.g., "127.0.0.1"
	Port int    // 0 for ephemeral port assignment
}

// Counts reports how many export requests were accepted per signal.
type Counts struct {
	TraceRequests uint64 `json:"trace_requests"`
	LogRequests   uint64 `json:"log_requests"`
}

// Server is a single OTLP gRPC endpoint serving both the trace and the logs
// service.
type Server struct {
	listener   net.Listener
	grpcServer *grpc.Server
	receiver   Receiver
	stopOnce   sync.Once
	stopChan   chan struct{}
	stopDone   chan struct{}

	traceRequests atomic.Uint64
	logRequests   atomic.Uint64
}

// NewServer binds the listener (port 0 picks an ephemeral port) and
// registers the OTLP services. Serving starts with Start.
func NewServer(cfg Config, receiver Receiver) (*Server, error) {
	if receiver == nil {
		return nil, fmt.Errorf("receiver cannot be nil")
	}

	addr := net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s := &Server{
		listener:   listener,
		grpcServer: grpc.NewServer(),
		receiver:   receiver,
		stopChan:   make(chan struct{}),
		stopDone:   make(chan struct{}, 1),
	}
	collectortrace.RegisterTraceServiceServer(s.grpcServer, &traceService{server: s})
	collectorlogs.RegisterLogsServiceServer(s.grpcServer, &logsService{server: s})
	return s, nil
}

// Start begins serving OTLP requests. This method blocks until Stop is called
// or ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.stopChan:
		}
	}()

	err := s.grpcServer.Serve(s.listener)
	s.stopDone <- struct{}{}
	return err
}

// Stop initiates graceful shutdown of the server.
// Safe to call multiple times.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.grpcServer.GracefulStop()
		close(s.stopChan)
	})
}

// StopWait stops the server and waits for Start to return.
func (s *Server) StopWait() {
	s.Stop()
	<-s.stopDone
}

// Endpoint returns the actual listening address, e.g. "127.0.0.1:54321".
func (s *Server) Endpoint() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Counts returns the number of accepted export requests.
func (s *Server) Counts() Counts {
	return Counts{
		TraceRequests: s.traceRequests.Load(),
		LogRequests:   s.logRequests.Load(),
	}
}

type traceService struct {
	collectortrace.UnimplementedTraceServiceServer
	server *Server
}

func (t *traceService) Export(
	ctx context.Context,
	req *collectortrace.ExportTraceServiceRequest,
) (*collectortrace.ExportTraceServiceResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("request cannot be nil")
	}

	// The full OTLP structure is kept: ResourceSpans -> ScopeSpans -> Spans.
	if err := t.server.receiver.ReceiveSpans(ctx, req.ResourceSpans); err != nil {
		log.Printf("⚠️  OTLP trace export rejected: %v", err)
		return nil, fmt.Errorf("failed to receive spans: %w", err)
	}
	t.server.traceRequests.Add(1)
	return &collectortrace.ExportTraceServiceResponse{}, nil
}

type logsService struct {
	collectorlogs.UnimplementedLogsServiceServer
	server *Server
}

func (l *logsService) Export(
	ctx context.Context,
	req *collectorlogs.ExportLogsServiceRequest,
) (*collectorlogs.ExportLogsServiceResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("request cannot be nil")
	}

	if err := l.server.receiver.ReceiveLogs(ctx, req.ResourceLogs); err != nil {
		log.Printf("⚠️  OTLP logs export rejected: %v", err)
		return nil, fmt.Errorf("failed to receive logs: %w", err)
	}
	l.server.logRequests.Add(1)
	return &collectorlogs.ExportLogsServiceResponse{}, nil
}
