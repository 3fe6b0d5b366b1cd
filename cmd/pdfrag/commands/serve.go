package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/pdfrag-go/internal/config"
	"github.com/54b3r/pdfrag-go/internal/logging"
	"github.com/54b3r/pdfrag-go/internal/pipeline"
	"github.com/54b3r/pdfrag-go/internal/server"
	"github.com/54b3r/pdfrag-go/internal/tracing"
)

// NewServeCmd constructs the `pdfrag serve` command, which starts the HTTP
// server and serves the web chat page.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the pdfrag HTTP server and web chat page",
		Long: `Start the pdfrag HTTP server.

Endpoints:
  POST   /ask               multipart file + question, one-shot answer
  POST   /api/session/pdf   upload the document for the interactive chat
  POST   /api/session/chat  {"message": "..."} against the uploaded document
  DELETE /api/session       forget the uploaded document
  GET    /api/health        liveness
  GET    /api/ready         readiness (embedder, optional LLM probe)
  GET    /metrics           Prometheus metrics
  GET    /                  web chat page

Examples:
  pdfrag serve
  pdfrag serve --port 9090
  MODEL_PROVIDER=ollama pdfrag serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			flush, ok := tracing.Setup(tracing.ConfigFromEnv())
			if ok {
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			a, err := buildApp(ctx, log, prometheus.DefaultRegisterer)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			if !cmd.Flags().Changed("host") {
				host = config.String("PDFRAG_HOST", host)
			}
			if !cmd.Flags().Changed("port") {
				port = config.Int("PDFRAG_PORT", port)
			}

			srv, err := server.New(a.pipeline, pipeline.NewSession(a.pipeline), &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: buildPingers(a, log),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
