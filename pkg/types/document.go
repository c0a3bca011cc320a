package types

import (
	"fmt"
	"strings"
)

// Document is one input record: {"id", "title", "text"}.
type Document struct {
	ID    string
	Title string
	Text  string

	// Raw is the unmodified input line. Quarantine writes it back verbatim.
	// It is nil for documents that did not come from a JSONL stream.
	Raw []byte

	// Line is the 1-based line number in the source file, 0 if unknown.
	Line int
}

// Record is the JSON shape of input and output lines.
type Record struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Text  string `json:"text"`

	// Raw, when set, is written instead of the encoded fields so unchanged
	// documents keep any extra keys of the input line.
	Raw []byte `json:"-"`
}

// Record returns the document as an output record.
func (d Document) Record() Record {
	return Record{ID: d.ID, Title: d.Title, Text: d.Text, Raw: d.Raw}
}

// PartRecord builds the output record for the n-th (1-based) chunk of the document.
func (d Document) PartRecord(n int, text string) Record {
	return Record{
		ID:    fmt.Sprintf("%s_part%d", d.ID, n),
		Title: fmt.Sprintf("%s_part%d", d.Title, n),
		Text:  text,
	}
}

// Segment is a delimiter-bounded slice of a document.
type Segment struct {
	Index  int
	Text   string
	Tokens int
}

// Validate checks the segment invariants: non-empty, already trimmed text.
func (s Segment) Validate() error {
	if s.Text == "" {
		return ErrEmptySegment
	}
	if strings.TrimSpace(s.Text) != s.Text {
		return ErrUntrimmedSegment
	}
	if s.Index < 0 || s.Tokens < 0 {
		return ErrNegativeValue
	}
	return nil
}
