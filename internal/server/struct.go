package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/pdfrag-go/internal/pipeline"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request, including
	// the uploaded PDF.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// cover indexing plus the model call.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// MaxUploadBytes caps the size of a multipart request body. Defaults to
	// 33 MiB if zero.
	MaxUploadBytes int64
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [slog.Default] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// MetricsRegistry receives the server metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// asker answers one question about one uploaded PDF.
// *pipeline.Pipeline satisfies it; tests inject a fake.
type asker interface {
	Ask(ctx context.Context, pdf io.Reader, question string) (pipeline.Result, error)
}

// chatSession is the interactive document session behind /api/session.
// *pipeline.Session satisfies it; tests inject a fake.
type chatSession interface {
	Process(ctx context.Context, pdf io.Reader) (string, error)
	Chat(ctx context.Context, message string) (string, error)
	Reset()
	Loaded() bool
}

// Server is the HTTP server exposing the stateless ask endpoint, the
// interactive session endpoints and the embedded chat page.
type Server struct {
	// asker handles POST /ask.
	asker asker
	// session handles /api/session/*.
	session chatSession
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors owned by this server.
	metrics *serverMetrics
}

// answerResponse is the JSON body returned by POST /ask and
// POST /api/session/chat.
type answerResponse struct {
	// Answer is the model's reply.
	Answer string `json:"answer"`
	// Context lists the retrieved segments when the caller asked for them
	// with ?context=true.
	Context []contextItem `json:"context,omitempty"`
}

// contextItem is one retrieved segment in an answerResponse.
type contextItem struct {
	Text       string  `json:"text"`
	Page       int     `json:"page"`
	Similarity float32 `json:"similarity"`
}

// statusResponse is the JSON body returned by the session endpoints that do
// not produce an answer.
type statusResponse struct {
	// Status is a human-readable outcome message.
	Status string `json:"status"`
	// Loaded reports whether the session holds a document afterwards.
	Loaded bool `json:"loaded"`
}

// chatRequest is the JSON body for POST /api/session/chat.
type chatRequest struct {
	// Message is the user's question.
	Message string `json:"message"`
}

// errorResponse is the JSON body for every error reply.
type errorResponse struct {
	Error string `json:"error"`
}
