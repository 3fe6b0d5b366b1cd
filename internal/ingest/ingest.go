// Package ingest turns an uploaded PDF byte stream into ordered page texts.
// The stream is spooled to a private temporary file, parsed with
// github.com/ledongthuc/pdf and the file is removed before Extract returns.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/54b3r/pdfrag-go/internal/logging"
)

const (
	// DefaultMaxBytes caps the size of an uploaded document.
	DefaultMaxBytes int64 = 32 << 20

	// DefaultParseTimeout bounds text extraction for a single document.
	DefaultParseTimeout = 60 * time.Second
)

// ErrTooLarge is wrapped in a ParseError when the stream exceeds MaxBytes.
var ErrTooLarge = errors.New("document exceeds the maximum upload size")

// Page is the extracted text of one PDF page.
type Page struct {
	// Number is the 1-based page number.
	Number int
	// Text is the plain text of the page. It may be empty for image-only pages.
	Text string
}

// ParseError reports that a stream could not be read as a PDF. It wraps the
// underlying cause.
type ParseError struct {
	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return "ingest: cannot read PDF: " + e.Err.Error()
}

// Unwrap returns the underlying cause.
func (e *ParseError) Unwrap() error { return e.Err }

// Config holds the configuration for the Ingestor.
type Config struct {
	// MaxBytes is the largest accepted document. Defaults to 32 MiB if zero.
	MaxBytes int64

	// ParseTimeout bounds text extraction. Defaults to 60s if zero.
	ParseTimeout time.Duration

	// TempDir is where uploads are spooled. Empty means os.TempDir().
	TempDir string
}

// Ingestor extracts page text from PDF streams. It holds no per-document
// state and is safe for concurrent use.
type Ingestor struct {
	// cfg holds the resolved configuration.
	cfg Config
}

// New constructs an Ingestor, filling zero config fields with defaults.
func New(cfg Config) *Ingestor {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.ParseTimeout <= 0 {
		cfg.ParseTimeout = DefaultParseTimeout
	}
	return &Ingestor{cfg: cfg}
}

// Extract spools r to a temporary file and returns the text of every page in
// order. Streams that are not readable PDFs yield a *ParseError. The temporary
// file is always removed.
func (i *Ingestor) Extract(ctx context.Context, r io.Reader) ([]Page, error) {
	if r == nil {
		return nil, &ParseError{Err: errors.New("no document provided")}
	}

	tmp, err := os.CreateTemp(i.cfg.TempDir, "pdfrag-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("ingest: create temp file: %w", err)
	}
	path := tmp.Name()
	defer os.Remove(path)

	n, err := io.Copy(tmp, io.LimitReader(r, i.cfg.MaxBytes+1))
	closeErr := tmp.Close()
	if err != nil {
		return nil, fmt.Errorf("ingest: spool upload: %w", err)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("ingest: spool upload: %w", closeErr)
	}
	if n > i.cfg.MaxBytes {
		return nil, &ParseError{Err: fmt.Errorf("%w (%d bytes)", ErrTooLarge, i.cfg.MaxBytes)}
	}
	if n == 0 {
		return nil, &ParseError{Err: errors.New("document is empty")}
	}

	logging.FromContext(ctx).Debug("pdf spooled", slog.Int64("bytes", n))
	return i.extractPath(ctx, path)
}

// ExtractFile reads the PDF at path in place.
func (i *Ingestor) ExtractFile(ctx context.Context, path string) ([]Page, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("ingest: %s is a directory", path)
	}
	if info.Size() > i.cfg.MaxBytes {
		return nil, &ParseError{Err: fmt.Errorf("%w (%d bytes)", ErrTooLarge, i.cfg.MaxBytes)}
	}
	return i.extractPath(ctx, path)
}

type extractResult struct {
	pages []Page
	err   error
}

// extractPath runs readPages in its own goroutine so that a document that
// hangs the parser is abandoned once the deadline passes.
func (i *Ingestor) extractPath(ctx context.Context, path string) ([]Page, error) {
	ctx, cancel := context.WithTimeout(ctx, i.cfg.ParseTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan extractResult, 1)
	go func() {
		pages, err := readPages(ctx, path)
		done <- extractResult{pages: pages, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		logging.FromContext(ctx).Debug("pdf text extracted",
			slog.Int("pages", len(res.pages)),
			slog.Duration("duration", time.Since(start)),
		)
		return res.pages, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("ingest: text extraction: %w", ctx.Err())
	}
}

// readPages opens path and collects the plain text of every page. Panics from
// the PDF library on malformed input are converted into a *ParseError.
func readPages(ctx context.Context, path string) (pages []Page, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			pages = nil
			err = &ParseError{Err: fmt.Errorf("malformed document: %v", rec)}
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	defer f.Close()

	total := reader.NumPage()
	if total == 0 {
		return nil, &ParseError{Err: errors.New("document has no pages")}
	}

	pages = make([]Page, 0, total)
	for n := 1; n <= total; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(n)
		if page.V.IsNull() {
			pages = append(pages, Page{Number: n})
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, &ParseError{Err: fmt.Errorf("page %d: %w", n, err)}
		}
		pages = append(pages, Page{Number: n, Text: text})
	}
	return pages, nil
}

// HasText reports whether any page carries non-whitespace text.
func HasText(pages []Page) bool {
	for _, p := range pages {
		if strings.TrimSpace(p.Text) != "" {
			return true
		}
	}
	return false
}
