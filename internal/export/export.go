// Package export renders stored transcriptions as downloadable documents.
package export

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Format is a supported download format.
type Format string

const (
	TXT  Format = "txt"
	DOCX Format = "docx"
	XLSX Format = "xlsx"
)

var contentTypes = map[Format]string{
	TXT:  "text/plain; charset=utf-8",
	DOCX: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	XLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// ParseFormat accepts a case-insensitive format name.
func ParseFormat(s string) (Format, bool) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	_, ok := contentTypes[f]
	return f, ok
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string { return contentTypes[f] }

// Document is the data exported for one transcription.
type Document struct {
	Title     string
	Language  string
	Duration  int // seconds
	CreatedAt time.Time
	Content   string
}

// Render encodes doc in the requested format.
func Render(f Format, doc Document) ([]byte, error) {
	switch f {
	case TXT:
		return renderTXT(doc), nil
	case DOCX:
		return renderDOCX(doc)
	case XLSX:
		return renderXLSX(doc)
	default:
		return nil, fmt.Errorf("unsupported format %q", f)
	}
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Filename turns a title into a safe attachment name: lowercase, runs of other
// characters collapsed to '-', falling back to "transcription".
func Filename(title string, f Format) string {
	safe := strings.Trim(nonAlnum.ReplaceAllString(strings.ToLower(title), "-"), "-")
	if safe == "" {
		safe = "transcription"
	}
	return safe + "." + string(f)
}

// FormatDuration renders seconds as "MM min SS sec", dropping a zero part.
func FormatDuration(totalSeconds int) string {
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	minutes := totalSeconds / 60
	seconds := totalSeconds % 60
	switch {
	case minutes == 0:
		return fmt.Sprintf("%02d sec", seconds)
	case seconds == 0:
		return fmt.Sprintf("%02d min", minutes)
	default:
		return fmt.Sprintf("%02d min %02d sec", minutes, seconds)
	}
}

// headerFields are the metadata lines that precede the content in every format.
func headerFields(doc Document) [][2]string {
	return [][2]string{
		{"Title", doc.Title},
		{"Language", doc.Language},
		{"Duration", FormatDuration(doc.Duration)},
		{"Created at", doc.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z")},
	}
}

func renderTXT(doc Document) []byte {
	var b bytes.Buffer
	for _, f := range headerFields(doc) {
		fmt.Fprintf(&b, "%s: %s\n", f[0], f[1])
	}
	b.WriteString("\n")
	b.WriteString(doc.Content)
	return b.Bytes()
}
