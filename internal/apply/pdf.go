package apply

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

var pdfReplacer = strings.NewReplacer(
	"\u2013", "-",
	"\u2014", "--",
	"\u2018", "'",
	"\u2019", "'",
	"\u201c", `"`,
	"\u201d", `"`,
	"\u2026", "...",
	"\u00a0", " ",
)

// RenderPDF lays out a cover letter on A4 pages using the core Arial font.
func RenderPDF(body string, date time.Time) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(0, 6, date.Format("2 January 2006"), "", 1, "R", false, 0, "")
	pdf.Ln(4)

	for _, line := range strings.Split(pdfReplacer.Replace(body), "\n") {
		if strings.TrimSpace(line) == "" {
			pdf.Ln(3)
			continue
		}
		pdf.MultiCell(0, 6, tr(line), "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// PDFFilename builds a readable attachment name from employer and title.
func PDFFilename(title, employer string) string {
	clean := func(s string, n int) string {
		var b strings.Builder
		for _, r := range s {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
				b.WriteRune(r)
			case r == ' ':
				b.WriteRune('_')
			}
		}
		out := b.String()
		if len(out) > n {
			out = out[:n]
		}
		return out
	}
	return fmt.Sprintf("CoverLetter_%s_%s.pdf", clean(employer, 30), clean(title, 50))
}
