package api

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rmax-ai/transformer-puzzle/pkg/game"
	"github.com/rmax-ai/transformer-puzzle/pkg/puzzle"
	"github.com/rmax-ai/transformer-puzzle/pkg/store"
)

// Context keys
type contextKey string

const traceIDKey contextKey = "trace_id"

// OriginHeader lets a caller name the surface it speaks for (mcp, tui, sim).
// Journaled events record it; the default is "api".
const OriginHeader = "X-Tpuzzle-Origin"

// maxBodyBytes caps every request body.
const maxBodyBytes = 1 << 20

// Interfaces for dependencies to enable mocking

// SessionManager hosts puzzle sessions. *game.Manager implements it.
type SessionManager interface {
	Create(ctx context.Context) (puzzle.State, error)
	Get(ctx context.Context, id string) (puzzle.State, error)
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, id string) error
	Apply(ctx context.Context, id string, cmd puzzle.Command) (puzzle.Outcome, puzzle.State, error)
}

// EventStore is the read side of the journal. *store.Store implements it.
type EventStore interface {
	QueryEvents(ctx context.Context, filter store.EventFilter) ([]*store.Event, error)
	PruneEvents(ctx context.Context, retention time.Duration) (int64, error)
}

// Server encapsulates the HTTP API server
type Server struct {
	sessions SessionManager
	events   EventStore
	server   *http.Server
	logger   *slog.Logger

	// TLS Config
	tlsCertFile string
	tlsKeyFile  string

	// tokenHash guards admin routes when set. It can be swapped while
	// serving.
	tokenHash atomic.Value // string
}

// NewServer creates a new API server instance. events may be nil, in which
// case journal routes answer 503.
func NewServer(sessions SessionManager, events EventStore, logger *slog.Logger, addr string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		sessions: sessions,
		events:   events,
		logger:   logger,
	}

	mux := http.NewServeMux()

	// Register routes
	mux.HandleFunc("GET /v1/health", handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/palette", s.handlePalette)
	mux.HandleFunc("GET /v1/reference/{stage}", s.handleReference)

	mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /v1/sessions", s.handleListSessions)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /v1/sessions/{id}/commands", s.handleCommand)
	mux.HandleFunc("GET /v1/sessions/{id}/graph", s.handleGraph)

	mux.HandleFunc("GET /v1/events", s.handleEvents)
	mux.HandleFunc("GET /v1/reports", s.handleReports)
	mux.HandleFunc("POST /v1/simulations", s.withAuth(s.handleSimulation))
	mux.HandleFunc("POST /v1/admin/prune", s.withAuth(s.handlePrune))

	// Middleware: Logging, Panic Recovery, Security Headers
	handler := s.withLogging(s.withRecovery(withSecureHeaders(mux)))

	// Use default port if addr is empty
	if addr == "" {
		addr = ":8090"
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	return s
}

// Handler returns the fully wrapped handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// SetTLS configures the server to use TLS
func (s *Server) SetTLS(certFile, keyFile string) {
	s.tlsCertFile = certFile
	s.tlsKeyFile = keyFile
}

// SetAdminToken requires "Authorization: Bearer <token>" on admin routes.
// An empty token disables the check.
func (s *Server) SetAdminToken(token string) {
	if token == "" {
		s.tokenHash.Store("")
		return
	}
	s.tokenHash.Store(hashToken(token))
}

// Start runs the HTTP server (blocking)
func (s *Server) Start() error {
	if s.tlsCertFile != "" && s.tlsKeyFile != "" {
		s.logger.Info("server_starting_tls", "addr", s.server.Addr)
		if err := s.server.ListenAndServeTLS(s.tlsCertFile, s.tlsKeyFile); err != http.ErrServerClosed {
			return err
		}
	} else {
		s.logger.Info("server_starting", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
	}
	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("server_stopping")
	return s.server.Shutdown(ctx)
}

// handleEvents returns journaled events, newest first.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, ErrorResponse{Error: "journal_not_configured"})
		return
	}

	q := r.URL.Query()
	filter := store.EventFilter{SessionID: q.Get("session_id"), Limit: 50}
	if l := q.Get("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil && val > 0 {
			filter.Limit = min(val, 1000)
		}
	}
	if t := q.Get("type"); t != "" {
		for _, typ := range strings.Split(t, ",") {
			filter.EventTypes = append(filter.EventTypes, store.EventType(strings.TrimSpace(typ)))
		}
	}

	events, err := s.events.QueryEvents(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed_to_read_events", "trace_id", getTraceID(r.Context()), "error", err)
		s.writeError(w, r, http.StatusInternalServerError, ErrorResponse{Error: "internal_server_error"})
		return
	}
	if events == nil {
		events = []*store.Event{}
	}
	s.writeJSON(w, r, http.StatusOK, events)
}

func (s *Server) handlePrune(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, ErrorResponse{Error: "journal_not_configured"})
		return
	}

	var req struct {
		Retention string `json:"retention"` // e.g., "720h"
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, ErrorResponse{Error: "invalid_json_body"})
		return
	}

	retention, err := time.ParseDuration(req.Retention)
	if err != nil || retention <= 0 {
		s.writeError(w, r, http.StatusBadRequest, ErrorResponse{Error: "invalid_retention_format", Details: "example: 720h"})
		return
	}

	count, err := s.events.PruneEvents(r.Context(), retention)
	if err != nil {
		s.logger.Error("failed_to_prune_events", "trace_id", getTraceID(r.Context()), "error", err)
		s.writeError(w, r, http.StatusInternalServerError, ErrorResponse{Error: "prune_failed", Details: err.Error()})
		return
	}

	s.logger.Info("events_pruned", "trace_id", getTraceID(r.Context()), "count", count, "retention", retention.String())
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"status":         "success",
		"pruned_count":   count,
		"retention_used": retention.String(),
	})
}

// handleHealth returns simple status
func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed_to_encode_response", "trace_id", getTraceID(r.Context()), "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, body ErrorResponse) {
	s.writeJSON(w, r, status, body)
}

// writeManagerError maps session manager errors onto HTTP statuses.
func (s *Server) writeManagerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, game.ErrSessionNotFound):
		s.writeError(w, r, http.StatusNotFound, ErrorResponse{Error: "session_not_found", Details: r.PathValue("id")})
	case game.IsCommandError(err):
		s.writeError(w, r, http.StatusConflict, ErrorResponse{
			Error:   "command_rejected",
			Reason:  commandReason(err),
			Details: err.Error(),
		})
	default:
		s.logger.Error("session_operation_failed", "trace_id", getTraceID(r.Context()), "path", r.URL.Path, "error", err)
		s.writeError(w, r, http.StatusInternalServerError, ErrorResponse{Error: "internal_server_error"})
	}
}

func commandReason(err error) string {
	switch {
	case errors.Is(err, puzzle.ErrUnknownLabel):
		return "unknown_label"
	case errors.Is(err, puzzle.ErrUnknownBlock):
		return "unknown_block"
	case errors.Is(err, puzzle.ErrUnknownSide):
		return "unknown_side"
	case errors.Is(err, puzzle.ErrSelfConnection):
		return "self_connection"
	default:
		return "unknown_command"
	}
}

// Middleware: Auth
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		want, _ := s.tokenHash.Load().(string)
		if want == "" {
			next(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.writeError(w, r, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Reason: "missing_token"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			s.writeError(w, r, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Reason: "invalid_token_format"})
			return
		}

		if subtle.ConstantTimeCompare([]byte(hashToken(parts[1])), []byte(want)) != 1 {
			s.writeError(w, r, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Reason: "invalid_token"})
			return
		}

		next(w, r)
	}
}

// Middleware: Panic Recovery
func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic_recovered", "error", fmt.Sprint(err), "path", r.URL.Path)
				http.Error(w, `{"error":"internal_server_error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Middleware: Request Logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// 1. Extract or Generate Trace ID
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = generateTraceID()
		}
		origin := r.Header.Get(OriginHeader)
		if origin == "" {
			origin = "api"
		}

		// 2. Inject into Context
		ctx := context.WithValue(r.Context(), traceIDKey, traceID)
		ctx = game.WithOrigin(ctx, origin, traceID)
		r = r.WithContext(ctx)

		// Wrap writer to capture status code
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		// 3. Set response header
		w.Header().Set("X-Trace-ID", traceID)

		next.ServeHTTP(ww, r)

		s.logger.Info("http_request",
			"trace_id", traceID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func generateTraceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func getTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// statusWriter captures HTTP status code
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// Middleware: Secure Headers
func withSecureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' data:;")
		w.Header().Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("X-XSS-Protection", "1; mode=block")

		next.ServeHTTP(w, r)
	})
}
