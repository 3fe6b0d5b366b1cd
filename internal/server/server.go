// Package server implements the HTTP server that answers questions about
// uploaded PDFs: a stateless POST /ask endpoint, the interactive session
// endpoints behind the embedded chat page, and the health and metrics
// endpoints. The server is started by the `pdfrag serve` CLI command.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/pdfrag-go/internal/answer"
	"github.com/54b3r/pdfrag-go/internal/ingest"
	"github.com/54b3r/pdfrag-go/internal/logging"
	"github.com/54b3r/pdfrag-go/internal/pipeline"
	"github.com/54b3r/pdfrag-go/internal/rag"
)

// defaultMaxUploadBytes leaves room for the multipart framing around a PDF
// of ingest.DefaultMaxBytes.
const defaultMaxUploadBytes = ingest.DefaultMaxBytes + 1<<20

//go:embed static
var staticFiles embed.FS

// New constructs a Server from the stateless asker and the interactive
// session. Either may be the concrete pipeline types.
func New(p *pipeline.Pipeline, sess *pipeline.Session, cfg *Config) (*Server, error) {
	if p == nil {
		return nil, fmt.Errorf("server: pipeline must not be nil")
	}
	if sess == nil {
		return nil, fmt.Errorf("server: session must not be nil")
	}
	return newServer(p, sess, cfg)
}

// newServer applies config defaults and registers routes. Tests call it
// directly with fakes.
func newServer(a asker, sess chatSession, cfg *Config) (*Server, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		// Uploads of large manuals over slow links.
		cfg.ReadTimeout = 2 * time.Minute
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		asker:   a,
		session: sess,
		cfg:     cfg,
		log:     cfg.Logger,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(cfg.MetricsRegistry),
	}

	static, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, fmt.Errorf("server: static files: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /ask", s.handleAsk)
	mux.HandleFunc("GET /api/session", s.handleSessionStatus)
	mux.HandleFunc("DELETE /api/session", s.handleSessionReset)
	mux.HandleFunc("POST /api/session/pdf", s.handleSessionPDF)
	mux.HandleFunc("POST /api/session/chat", s.handleSessionChat)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))
	mux.Handle("GET /", http.FileServerFS(static))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(s.log, s.instrument(mux)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		s.log.Info("server stopped")
		return nil
	}
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON encodes body as the JSON response with the given status.
func writeJSON(ctx context.Context, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.FromContext(ctx).Error("response encode error", slog.Any("error", err))
	}
}

// writeError renders err as {"error": "..."} with the mapped status and
// returns the metrics outcome label for it.
func writeError(ctx context.Context, w http.ResponseWriter, err error) string {
	status, outcome := classify(err)
	log := logging.FromContext(ctx)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", slog.Int("status", status), slog.Any("error", err))
	} else {
		log.Warn("request rejected", slog.Int("status", status), slog.Any("error", err))
	}
	writeJSON(ctx, w, status, errorResponse{Error: err.Error()})
	return outcome
}

// badRequest is a client error that carries its own message.
type badRequest struct{ msg string }

func (e *badRequest) Error() string { return e.msg }

// classify maps an error to its HTTP status and metrics outcome.
func classify(err error) (int, string) {
	var (
		br       *badRequest
		maxBytes *http.MaxBytesError
		parseErr *ingest.ParseError
		upstream *answer.UpstreamError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, outcomeTimeout
	case errors.As(err, &maxBytes), errors.Is(err, ingest.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, outcomeTooLarge
	case errors.As(err, &br), errors.Is(err, pipeline.ErrEmptyQuestion):
		return http.StatusBadRequest, outcomeBadRequest
	case errors.As(err, &parseErr):
		return http.StatusBadRequest, outcomeBadRequest
	case errors.Is(err, rag.ErrEmptyDocument):
		return http.StatusUnprocessableEntity, outcomeEmptyDocument
	case errors.As(err, &upstream):
		return http.StatusBadGateway, outcomeUpstream
	default:
		return http.StatusInternalServerError, outcomeError
	}
}
