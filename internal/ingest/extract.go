package ingest

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

var pdfMagic = []byte("%PDF-")

// IsPDF reports whether data starts with the PDF file signature.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, pdfMagic)
}

// PDFText extracts the plain text of every page in a PDF document.
func PDFText(data []byte) (text string, err error) {
	// The pdf package panics on some malformed content streams.
	defer func() {
		if p := recover(); p != nil {
			text, err = "", fmt.Errorf("extracting pdf text: %v", p)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	body, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return collapseSpace(string(body)), nil
}

// skipped elements contribute no visible text.
var skipped = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"svg":      true,
	"head":     true,
}

// blockLevel elements end a line of text.
var blockLevel = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "header": true, "footer": true, "blockquote": true, "pre": true,
}

// HTMLText converts an HTML document to plain text and returns it together
// with the document title, if any.
func HTMLText(r io.Reader) (text, title string, err error) {
	z := html.NewTokenizer(r)
	var (
		b         strings.Builder
		depth     int
		inTitle   bool
		titleText strings.Builder
	)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return collapseLines(b.String()), strings.TrimSpace(titleText.String()), nil
			}
			return "", "", fmt.Errorf("parsing html: %w", z.Err())
		case html.StartTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == "title" {
				inTitle = true
			}
			if skipped[tag] {
				depth++
			}
			if blockLevel[tag] {
				b.WriteByte('\n')
			}
		case html.SelfClosingTagToken:
			name, _ := z.TagName()
			if blockLevel[string(name)] {
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == "title" {
				inTitle = false
			}
			if skipped[tag] && depth > 0 {
				depth--
			}
			if blockLevel[tag] {
				b.WriteByte('\n')
			}
		case html.TextToken:
			if inTitle {
				titleText.Write(z.Text())
				continue
			}
			if depth > 0 {
				continue
			}
			b.Write(z.Text())
			b.WriteByte(' ')
		}
	}
}

// collapseLines trims every line, collapses inner whitespace and drops
// empty lines.
func collapseLines(s string) string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = collapseSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
