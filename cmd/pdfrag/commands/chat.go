package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/54b3r/pdfrag-go/internal/logging"
	"github.com/54b3r/pdfrag-go/internal/pipeline"
	"github.com/54b3r/pdfrag-go/internal/tracing"
	"github.com/54b3r/pdfrag-go/internal/tui"
)

// NewChatCmd constructs the `pdfrag chat` command, an interactive terminal
// chat over one active document.
func NewChatCmd() *cobra.Command {
	var pdfPath string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat about a PDF in the terminal",
		Long: `Start an interactive terminal chat about a PDF.

Type a question and press Enter. Commands:
  /load <path>  process another PDF and make it the active document
  /reset        forget the active document
  Ctrl+C        quit

Examples:
  pdfrag chat --pdf manual.pdf
  pdfrag chat`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// The alternate screen owns stdout and stderr, so logs go to a file.
			logFile, err := os.OpenFile(filepath.Join(os.TempDir(), "pdfrag-chat.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
			if err != nil {
				return fmt.Errorf("chat: open log file: %w", err)
			}
			defer logFile.Close()
			log := logging.NewWithWriter(logFile)
			ctx := logging.WithLogger(cmd.Context(), log)

			if flush, ok := tracing.Setup(tracing.ConfigFromEnv()); ok {
				defer flush()
			}

			a, err := buildApp(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("chat: %w", err)
			}

			sess := pipeline.NewSession(a.pipeline)
			title := "pdfrag"
			if pdfPath != "" {
				status, err := sess.ProcessFile(ctx, pdfPath)
				if err != nil {
					return fmt.Errorf("chat: %w", err)
				}
				log.Info("document loaded", slog.String("path", pdfPath), slog.String("status", status))
				title = "pdfrag: " + filepath.Base(pdfPath)
			}

			return tui.Run(ctx, sess, title)
		},
	}

	cmd.Flags().StringVar(&pdfPath, "pdf", "", "PDF to load before the chat starts")

	return cmd
}
