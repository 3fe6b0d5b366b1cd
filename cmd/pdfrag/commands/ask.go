package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/pdfrag-go/internal/logging"
	"github.com/54b3r/pdfrag-go/internal/tracing"
)

// NewAskCmd constructs the `pdfrag ask` command, which answers one question
// about one PDF and exits. Nothing is kept between invocations.
func NewAskCmd() *cobra.Command {
	var pdfPath string
	var showContext bool

	cmd := &cobra.Command{
		Use:   "ask --pdf <file.pdf> [question]",
		Short: "Answer one question about a PDF",
		Long: `Index a PDF in memory, answer one question from it and exit.

Examples:
  pdfrag ask --pdf manual.pdf "What is the maximum takeoff weight?"
  pdfrag ask --pdf manual.pdf --show-context "How much fuel is unusable?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			if flush, ok := tracing.Setup(tracing.ConfigFromEnv()); ok {
				defer flush()
			}

			a, err := buildApp(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			f, err := os.Open(pdfPath)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer f.Close()

			res, err := a.pipeline.Ask(ctx, f, strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, res.Answer)
			if showContext {
				fmt.Fprintln(out)
				for i, m := range res.Context {
					fmt.Fprintf(out, "--- context %d (page %d, similarity %.3f) ---\n%s\n", i+1, m.Page, m.Similarity, m.Text)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&pdfPath, "pdf", "", "Path to the PDF to question")
	cmd.Flags().BoolVar(&showContext, "show-context", false, "Print the retrieved segments after the answer")
	_ = cmd.MarkFlagRequired("pdf")

	return cmd
}
