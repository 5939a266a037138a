package document

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/jung-kurt/gofpdf"
)

func samplePDF(t *testing.T, pages ...string) []byte {
	t.Helper()
	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetCompression(false)
	for _, text := range pages {
		doc.AddPage()
		doc.SetFont("Helvetica", "", 12)
		doc.Cell(40, 10, text)
	}
	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		t.Fatalf("build pdf: %v", err)
	}
	return buf.Bytes()
}

func TestSupports(t *testing.T) {
	e := New()
	tests := []struct {
		mime, name string
		want       bool
	}{
		{"application/pdf", "", true},
		{"", "Report.PDF", true},
		{"text/plain; charset=utf-8", "", true},
		{"application/octet-stream", "notes.md", true},
		{"application/json", "", true},
		{"image/png", "photo.png", false},
		{"application/zip", "a.zip", false},
	}
	for _, tt := range tests {
		if got := e.Supports(tt.mime, tt.name); got != tt.want {
			t.Errorf("Supports(%q, %q) = %v, want %v", tt.mime, tt.name, got, tt.want)
		}
	}
}

func TestExtract_PDF(t *testing.T) {
	e := New()
	text, err := e.Extract("application/pdf", samplePDF(t, "Hello", "World"))
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if !strings.Contains(text, "Hello") || !strings.Contains(text, "World") {
		t.Errorf("text = %q", text)
	}
}

func TestExtract_PDFPageLimit(t *testing.T) {
	e := &Extractor{MaxPages: 1}
	text, err := e.Extract("application/pdf", samplePDF(t, "First", "Second", "Third"))
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if strings.Contains(text, "Second") {
		t.Errorf("page limit ignored: %q", text)
	}
	if !strings.Contains(text, "[2 more pages not read]") {
		t.Errorf("missing page note: %q", text)
	}
}

func TestExtract_SniffsOctetStream(t *testing.T) {
	text, err := New().Extract("application/octet-stream", samplePDF(t, "Sniffed"))
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if !strings.Contains(text, "Sniffed") {
		t.Errorf("text = %q", text)
	}
}

func TestExtract_Malformed(t *testing.T) {
	_, err := New().Extract("application/pdf", []byte("%PDF-1.4 garbage"))
	if err == nil {
		t.Fatal("expected error for malformed PDF")
	}
}

func TestExtract_PlainText(t *testing.T) {
	e := &Extractor{MaxChars: 5}
	text, err := e.Extract("text/plain", []byte("  héllo world  "))
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if text != "héllo\n[truncated]" {
		t.Errorf("text = %q", text)
	}
}

func TestExtract_Empty(t *testing.T) {
	if _, err := New().Extract("text/plain", []byte("   ")); !errors.Is(err, ErrEmpty) {
		t.Errorf("error = %v, want ErrEmpty", err)
	}
}

func TestExtract_Binary(t *testing.T) {
	if _, err := New().Extract("application/zip", []byte{0xff, 0xfe, 0x00, 0x81}); !errors.Is(err, ErrUnsupported) {
		t.Errorf("error = %v, want ErrUnsupported", err)
	}
}
