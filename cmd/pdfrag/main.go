// Command pdfrag answers questions about a PDF with retrieval-augmented
// generation. It provides a CLI (via Cobra), a terminal chat UI and an HTTP
// server with a small web chat page.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/pdfrag-go/cmd/pdfrag/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
