// Package document extracts text from chat attachments so the agent can
// read them: PDFs through ledongthuc/pdf and plain text formats as-is.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// Sentinel errors.
var (
	ErrUnsupported = errors.New("document: unsupported file type")
	ErrEmpty       = errors.New("document: no extractable text")
	ErrEncrypted   = errors.New("document: encrypted PDF")
)

const (
	// DefaultMaxPages bounds how many PDF pages are read.
	DefaultMaxPages = 50

	// DefaultMaxChars bounds the extracted text handed to the model.
	DefaultMaxChars = 30000
)

var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".markdown": true, ".csv": true,
	".json": true, ".yaml": true, ".yml": true, ".log": true,
	".xml": true, ".html": true, ".htm": true,
}

// Extractor turns PDFs and text files into plain text.
type Extractor struct {
	MaxPages int
	MaxChars int
}

// New returns an Extractor with default limits.
func New() *Extractor {
	return &Extractor{MaxPages: DefaultMaxPages, MaxChars: DefaultMaxChars}
}

// Supports reports whether Extract can handle the attachment.
func (e *Extractor) Supports(mimeType, fileName string) bool {
	return kind(mimeType, fileName) != ""
}

// Extract returns the text content of data.
func (e *Extractor) Extract(mimeType string, data []byte) (string, error) {
	switch kind(mimeType, "") {
	case "pdf":
		return e.pdfText(data)
	case "text":
		return e.plainText(data)
	}
	// Telegram sends application/octet-stream for some uploads; sniff.
	if bytes.HasPrefix(data, []byte("%PDF-")) {
		return e.pdfText(data)
	}
	if utf8.Valid(data) {
		return e.plainText(data)
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupported, mimeType)
}

func kind(mimeType, fileName string) string {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(mimeType))
	}
	switch {
	case mt == "application/pdf":
		return "pdf"
	case strings.HasPrefix(mt, "text/"), mt == "application/json", mt == "application/xml", mt == "application/x-yaml":
		return "text"
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	switch {
	case ext == ".pdf":
		return "pdf"
	case textExtensions[ext]:
		return "text"
	}
	return ""
}

func (e *Extractor) pdfText(data []byte) (text string, err error) {
	// The PDF parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("document: malformed PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "encrypt") {
			return "", fmt.Errorf("%w: %w", ErrEncrypted, err)
		}
		return "", fmt.Errorf("document: open PDF: %w", err)
	}

	maxPages := e.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	var b strings.Builder
	pages := reader.NumPage()
	for i := 1; i <= pages && i <= maxPages; i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		pageText, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		pageText = strings.TrimSpace(pageText)
		if pageText == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(pageText)
		if b.Len() >= e.maxChars() {
			break
		}
	}
	if pages > maxPages {
		fmt.Fprintf(&b, "\n\n[%d more pages not read]", pages-maxPages)
	}
	return e.finish(b.String())
}

func (e *Extractor) plainText(data []byte) (string, error) {
	return e.finish(string(bytes.ToValidUTF8(data, []byte("�"))))
}

func (e *Extractor) finish(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrEmpty
	}
	return truncate(s, e.maxChars()), nil
}

func (e *Extractor) maxChars() int {
	if e.MaxChars <= 0 {
		return DefaultMaxChars
	}
	return e.MaxChars
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit]) + "\n[truncated]"
}
