package jsonl

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dshills/tokensplit/pkg/types"
)

// Writer emits one JSON value per line. It is not safe for concurrent use;
// a run owns a single writer per output stream.
type Writer struct {
	w     *bufio.Writer
	buf   bytes.Buffer
	enc   *json.Encoder
	lines int
}

// NewWriter creates a writer. Non-ASCII text is written as-is and HTML
// characters are not escaped.
func NewWriter(w io.Writer) *Writer {
	jw := &Writer{w: bufio.NewWriterSize(w, 1<<20)}
	jw.enc = json.NewEncoder(&jw.buf)
	jw.enc.SetEscapeHTML(false)
	return jw
}

// WriteRecord writes an output record. Records carrying raw input bytes are
// written verbatim.
func (jw *Writer) WriteRecord(r types.Record) error {
	if r.Raw != nil {
		return jw.WriteRaw(r.Raw)
	}

	jw.buf.Reset()
	if err := jw.enc.Encode(r); err != nil {
		return fmt.Errorf("encode record %s: %w", r.ID, err)
	}
	if _, err := jw.w.Write(jw.buf.Bytes()); err != nil {
		return err
	}
	jw.lines++
	return nil
}

// WriteRaw writes line followed by a newline.
func (jw *Writer) WriteRaw(line []byte) error {
	if _, err := jw.w.Write(line); err != nil {
		return err
	}
	if err := jw.w.WriteByte('\n'); err != nil {
		return err
	}
	jw.lines++
	return nil
}

// Lines returns the number of lines written so far.
func (jw *Writer) Lines() int {
	return jw.lines
}

// Flush writes any buffered data to the underlying writer.
func (jw *Writer) Flush() error {
	return jw.w.Flush()
}

// FileWriter is a Writer backed by a file it owns.
type FileWriter struct {
	*Writer
	f *os.File
}

// Create creates path, and its parent directories, for writing.
func Create(path string) (*FileWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	return &FileWriter{Writer: NewWriter(f), f: f}, nil
}

// Close flushes and closes the file.
func (fw *FileWriter) Close() error {
	if err := fw.Flush(); err != nil {
		_ = fw.f.Close()
		return err
	}
	return fw.f.Close()
}

// WriteSummary writes the run summary as indented JSON.
func WriteSummary(path string, summary *types.RunSummary) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create summary directory: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
