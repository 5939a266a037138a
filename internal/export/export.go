// Package export renders chat transcripts as PDF documents for the /export
// command.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/flemzord/tgmcp/internal/provider"
)

// ErrNoMessages is returned when the history has nothing to render.
var ErrNoMessages = errors.New("export: no user or assistant messages")

const (
	marginL  = 18.0
	marginR  = 18.0
	marginT  = 22.0
	pageW    = 210.0
	contentW = pageW - marginL - marginR

	bodyLineH = 5.0
)

var (
	colorInk    = [3]int{33, 37, 41}
	colorMuted  = [3]int{120, 125, 130}
	colorUser   = [3]int{13, 110, 253}
	colorBot    = [3]int{25, 135, 84}
	colorDivide = [3]int{222, 226, 230}
)

// PDF renders transcripts with gofpdf core fonts.
type PDF struct {
	// Footer is printed at the bottom left of every page.
	Footer string

	// Now is used for the header date; defaults to time.Now.
	Now func() time.Time
}

// New returns a PDF exporter.
func New() *PDF {
	return &PDF{Footer: "Telegram Bot", Now: time.Now}
}

// Export renders the user and assistant turns of history. Tool and system
// messages are internal and left out.
func (e *PDF) Export(title string, history []provider.LLMMessage) ([]byte, error) {
	turns := visibleTurns(history)
	if len(turns) == 0 {
		return nil, ErrNoMessages
	}

	now := time.Now
	if e.Now != nil {
		now = e.Now
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := translator(pdf)
	pdf.SetMargins(marginL, marginT, marginR)
	pdf.SetAutoPageBreak(true, 18)
	pdf.SetTitle(tr(title), false)
	pdf.SetCreator("tgmcp", false)

	date := now().Format("2006-01-02 15:04")
	pdf.SetHeaderFunc(func() {
		pdf.SetY(9)
		pdf.SetFont("Helvetica", "B", 8)
		setText(pdf, colorMuted)
		pdf.CellFormat(contentW/2, 4, tr("Transcript: "+title), "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 8)
		pdf.CellFormat(contentW/2, 4, date, "", 1, "R", false, 0, "")
		setDraw(pdf, colorDivide)
		pdf.SetLineWidth(0.3)
		pdf.Line(marginL, 15, pageW-marginR, 15)
		pdf.SetY(marginT)
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Helvetica", "", 7)
		setText(pdf, colorMuted)
		pdf.CellFormat(contentW/2, 6, tr(e.Footer), "", 0, "L", false, 0, "")
		pdf.CellFormat(contentW/2, 6, fmt.Sprintf("%d / {nb}", pdf.PageNo()), "", 0, "R", false, 0, "")
	})
	pdf.AliasNbPages("")

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	setText(pdf, colorInk)
	pdf.MultiCell(contentW, 8, tr(title), "", "L", false)
	pdf.SetFont("Helvetica", "", 9)
	setText(pdf, colorMuted)
	pdf.CellFormat(contentW, 6, fmt.Sprintf("%d messages", len(turns)), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	for _, m := range turns {
		label, color := "You", colorUser
		if m.Role == provider.MessageRoleAssistant {
			label, color = "Assistant", colorBot
		}
		pdf.SetFont("Helvetica", "B", 10)
		setText(pdf, color)
		pdf.CellFormat(contentW, 6, label, "", 1, "L", false, 0, "")

		pdf.SetFont("Helvetica", "", 10)
		setText(pdf, colorInk)
		pdf.MultiCell(contentW, bodyLineH, tr(m.Content), "", "L", false)
		pdf.Ln(3)
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("export: render: %w", err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("export: write: %w", err)
	}
	return buf.Bytes(), nil
}

func visibleTurns(history []provider.LLMMessage) []provider.LLMMessage {
	out := make([]provider.LLMMessage, 0, len(history))
	for _, m := range history {
		if m.Role != provider.MessageRoleUser && m.Role != provider.MessageRoleAssistant {
			continue
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}

// punctuation the core fonts lack or that the cp1252 table maps poorly.
var punctuation = strings.NewReplacer(
	"≤", "<=", "≥", ">=", "→", "->", "←", "<-",
	"\u00a0", " ", "\u200b", "", "\t", "    ",
)

// translator maps text onto the cp1252 encoding of the core fonts. Runes
// outside it are rendered as '.'.
func translator(pdf *gofpdf.Fpdf) func(string) string {
	cp1252 := pdf.UnicodeTranslatorFromDescriptor("")
	return func(s string) string {
		return cp1252(punctuation.Replace(s))
	}
}

func setText(pdf *gofpdf.Fpdf, c [3]int) { pdf.SetTextColor(c[0], c[1], c[2]) }
func setDraw(pdf *gofpdf.Fpdf, c [3]int) { pdf.SetDrawColor(c[0], c[1], c[2]) }
