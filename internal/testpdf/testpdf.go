// Package testpdf renders small text-only PDFs for tests.
package testpdf

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jung-kurt/gofpdf"
)

// Bytes renders one PDF page per element of pages. Each line of a page
// becomes one text line; an empty string produces a blank page.
func Bytes(t testing.TB, pages ...string) []byte {
	t.Helper()

	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetCompression(false)
	doc.SetFont("Helvetica", "", 11)
	for _, page := range pages {
		doc.AddPage()
		if page == "" {
			continue
		}
		for _, line := range strings.Split(page, "\n") {
			doc.Cell(0, 6, line)
			doc.Ln(7)
		}
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		t.Fatalf("testpdf: render: %v", err)
	}
	return buf.Bytes()
}

// File writes Bytes(t, pages...) to a file under t.TempDir and returns its path.
func File(t testing.TB, pages ...string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "doc.pdf")
	if err := os.WriteFile(path, Bytes(t, pages...), 0o600); err != nil {
		t.Fatalf("testpdf: write: %v", err)
	}
	return path
}

// Manual is a three page aircraft operations excerpt. Page 2 states the
// maximum takeoff weight.
func Manual(t testing.TB) []byte {
	t.Helper()
	return Bytes(t,
		"Chapter 1 Cabin preparation\nPassengers must fasten seat belts during taxi.\nCabin crew arm the doors before pushback.",
		"Chapter 2 Limitations\nThe maximum takeoff weight is 79000 kg.\nThe maximum landing weight is 66000 kg.",
		"Chapter 3 Fuel\nFuel imbalance between wing tanks must not exceed 500 kg.\nCrossfeed is used to correct imbalance.",
	)
}
