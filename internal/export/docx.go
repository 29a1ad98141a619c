package export

import (
	"bytes"
	"fmt"
	"regexp"

	docx "github.com/fumiama/go-docx"
)

var lineBreak = regexp.MustCompile(`\r?\n`)

// renderDOCX writes the title as a bold heading, one paragraph per header
// field, a blank line, then one paragraph per content line.
func renderDOCX(doc Document) ([]byte, error) {
	w := docx.New().WithDefaultTheme()

	w.AddParagraph().AddText(doc.Title).Bold().Size("32")
	for _, f := range headerFields(doc)[1:] {
		w.AddParagraph().AddText(f[0] + ": " + f[1])
	}
	w.AddParagraph()
	for _, line := range lineBreak.Split(doc.Content, -1) {
		p := w.AddParagraph()
		if line != "" {
			p.AddText(line)
		}
	}

	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write docx: %w", err)
	}
	return buf.Bytes(), nil
}
