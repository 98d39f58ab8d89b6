// Package testutil builds PDF fixtures at test time so tests do not depend
// on binary files checked into the repository.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/go-pdf/fpdf"
)

// Common page sizes in points
var (
	Letter          = PageSize{Width: 612, Height: 792}
	A4Landscape     = PageSize{Width: 842, Height: 595}
	SquarePage      = PageSize{Width: 500, Height: 500}
	DefaultFormPage = Letter
)

// PageSize is a page's width and height in points
type PageSize struct {
	Width  float64
	Height float64
}

// FlatFormPDF renders a flat, non-fillable form: labels followed by
// underline rules, a row of check boxes and a signature line on each page.
func FlatFormPDF(t testing.TB, sizes ...PageSize) []byte {
	t.Helper()
	if len(sizes) == 0 {
		sizes = []PageSize{DefaultFormPage}
	}

	doc := fpdf.New("P", "pt", "", "")
	doc.SetFont("Helvetica", "", 11)
	doc.SetLineWidth(0.8)

	for _, size := range sizes {
		doc.AddPageFormat("P", fpdf.SizeType{Wd: size.Width, Ht: size.Height})
		drawFormPage(doc, size)
	}

	return output(t, doc)
}

// BlankPDF renders pages with no content at all
func BlankPDF(t testing.TB, sizes ...PageSize) []byte {
	t.Helper()
	if len(sizes) == 0 {
		sizes = []PageSize{Letter}
	}

	doc := fpdf.New("P", "pt", "", "")
	for _, size := range sizes {
		doc.AddPageFormat("P", fpdf.SizeType{Wd: size.Width, Ht: size.Height})
	}
	return output(t, doc)
}

// EncryptedPDF renders a flat form that needs a user password to open
func EncryptedPDF(t testing.TB) []byte {
	t.Helper()
	doc := fpdf.New("P", "pt", "", "")
	doc.SetProtection(fpdf.CnProtectPrint, "secret", "owner")
	doc.SetFont("Helvetica", "", 11)
	doc.AddPageFormat("P", fpdf.SizeType{Wd: Letter.Width, Ht: Letter.Height})
	drawFormPage(doc, Letter)
	return output(t, doc)
}

// WriteFile stores data under dir and returns the full path
func WriteFile(t testing.TB, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write fixture %s: %v", path, err)
	}
	return path
}

// ReadFile returns the contents of path
func ReadFile(t testing.TB, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return data
}

func drawFormPage(doc *fpdf.Fpdf, size PageSize) {
	margin := size.Width * 0.1
	ruleStart := margin + 90
	ruleEnd := size.Width - margin

	y := size.Height * 0.12
	for _, label := range []string{"Name", "Address", "City"} {
		doc.Text(margin, y, label)
		doc.Line(ruleStart, y+2, ruleEnd, y+2)
		y += 36
	}

	for i, label := range []string{"Yes", "No"} {
		x := margin + float64(i)*90
		doc.Rect(x, y-10, 12, 12, "D")
		doc.Text(x+18, y, label)
	}
	y += 60

	doc.Text(margin, y, "Signature")
	doc.Line(ruleStart, y+2, ruleStart+180, y+2)
}

func output(t testing.TB, doc *fpdf.Fpdf) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		t.Fatalf("failed to generate fixture PDF: %v", err)
	}
	return buf.Bytes()
}
