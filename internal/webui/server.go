// Package webui serves the dashboard view models as a JSON API and streams
// the transaction list over a WebSocket.
package webui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tobert/perfdash/internal/dashboard"
	"github.com/tobert/perfdash/internal/storage"
)

// Server routes HTTP requests to a dashboard.
type Server struct {
	dash    *dashboard.Dashboard
	verbose bool
}

// New creates a web server for d. Verbose enables request logging.
func New(d *dashboard.Dashboard, verbose bool) *Server {
	return &Server{dash: d, verbose: verbose}
}

// Handler returns the router with every route mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	if s.verbose {
		r.Use(chimw.Logger)
	}
	r.Use(chimw.Recoverer)
	s.MountRoutes(r)
	return r
}

// MountRoutes attaches the API routes to an existing router.
func (s *Server) MountRoutes(r chi.Router) {
	r.Route("/api/organizations/{org}", func(r chi.Router) {
		r.Use(s.requireOrg)
		r.Route("/performance", func(r chi.Router) {
			r.Get("/transactions", s.handleTransactions)
			r.Get("/transactions/filters", s.handleFilters)
			r.Get("/transactions/filters/{value}", s.handleSelectFilter)
			r.Get("/transactions/discover", s.handleDiscover)
			r.Get("/compare/{baselineSlug}/{regressionSlug}", s.handleCompare)
			r.Put("/baselines/{transaction}", s.handlePinBaseline)
			r.Delete("/baselines/{transaction}", s.handleUnpinBaseline)
		})
		r.Get("/events/{eventSlug}/related", s.handleRelated)
		r.Get("/alert-rules", s.handleAlertRules)
	})
	r.With(s.requireOrg).Delete("/api/projects/{org}/{project}/rules/{ruleID}", s.handleDeleteRule)
	r.Get("/api/stats", s.handleStats)
	r.Get("/ws/transactions", s.handleWebSocket)
}

// ListenAndServe serves the dashboard API on its own address until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	return Serve(ctx, addr, s.Handler())
}

// Serve runs an HTTP server for handler until ctx is cancelled, then shuts
// it down with a five second grace period.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	}
}

func (s *Server) requireOrg(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.dash.CheckOrg(chi.URLParam(r, "org")); err != nil {
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// pathParam returns an unescaped path parameter. Transaction names and
// slugs may contain escaped slashes.
func pathParam(r *http.Request, key string) string {
	raw := chi.URLParam(r, key)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := s.dash.Transactions(r.Context(), q.Get("transaction"), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleFilters(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := s.dash.TransactionList(q.Get("transaction"), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list.Dropdown())
}

type targetResponse struct {
	Target string `json:"target"`
}

func (s *Server) handleSelectFilter(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := s.dash.TransactionList(q.Get("transaction"), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, targetResponse{Target: list.FilterTarget(pathParam(r, "value"))})
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := s.dash.TransactionList(q.Get("transaction"), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, targetResponse{Target: list.DiscoverTarget()})
}

func (s *Server) handleRelated(w http.ResponseWriter, r *http.Request) {
	re, err := s.dash.RelatedEvents(r.Context(), pathParam(r, "eventSlug"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, re)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	cmp, err := s.dash.Compare(r.Context(), pathParam(r, "baselineSlug"), pathParam(r, "regressionSlug"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

type pinRequest struct {
	Event string `json:"event"`
}

func (s *Server) handlePinBaseline(w http.ResponseWriter, r *http.Request) {
	var req pinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	rec, err := s.dash.PinBaseline(pathParam(r, "transaction"), req.Event)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"transaction": rec.Transaction,
		"event":       rec.ID,
		"project":     rec.Project,
	})
}

func (s *Server) handleUnpinBaseline(w http.ResponseWriter, r *http.Request) {
	if err := s.dash.UnpinBaseline(pathParam(r, "transaction")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAlertRules(w http.ResponseWriter, r *http.Request) {
	rows, err := s.dash.AlertRules()
	if err != nil {
		// Rows that rendered are still served.
		log.Printf("⚠️  alert rules: %v", err)
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.dash.DeleteRule(chi.URLParam(r, "project"), chi.URLParam(r, "ruleID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.dash.Stats())
}

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps dashboard and storage errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, dashboard.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, dashboard.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, dashboard.ErrUnknownOrganization), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusUnprocessableEntity
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("webui: failed to write JSON: %v", err)
	}
}
