package jsonl

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tidwall/gjson"

	"github.com/dshills/tokensplit/internal/logger"
	"github.com/dshills/tokensplit/pkg/types"
)

// MaxLineSize bounds a single input line.
const MaxLineSize = 256 * 1024 * 1024

// Common errors
var (
	ErrMalformedLine = errors.New("malformed jsonl line")
)

// ReadResult holds the documents of one input stream.
type ReadResult struct {
	Documents []types.Document
	Malformed int
}

// Read parses every non-blank line of r. Lines that are not JSON objects are
// logged at warn level and counted. Missing fields read as empty strings.
func Read(r io.Reader, log logger.Logger) (*ReadResult, error) {
	if log == nil {
		log = logger.NewNop()
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)

	res := &ReadResult{Documents: make([]types.Document, 0, 64)}
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		doc, err := ParseLine(line)
		if err != nil {
			res.Malformed++
			log.Warn("skipping malformed line", "line", lineNo, "error", err)
			continue
		}
		doc.Line = lineNo
		res.Documents = append(res.Documents, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read line %d: %w", lineNo+1, err)
	}
	return res, nil
}

// ReadFile reads a JSONL file from disk.
func ReadFile(path string, log logger.Logger) (*ReadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	return Read(f, log)
}

// ParseLine decodes one line into a document. The line bytes are copied into
// Document.Raw.
func ParseLine(line []byte) (types.Document, error) {
	if !gjson.ValidBytes(line) {
		return types.Document{}, fmt.Errorf("%w: invalid json", ErrMalformedLine)
	}
	parsed := gjson.ParseBytes(line)
	if !parsed.IsObject() {
		return types.Document{}, fmt.Errorf("%w: not an object", ErrMalformedLine)
	}

	fields := parsed.Map()
	var doc types.Document
	for _, f := range []struct {
		key string
		dst *string
	}{
		{"id", &doc.ID},
		{"title", &doc.Title},
		{"text", &doc.Text},
	} {
		v, err := stringField(fields, f.key)
		if err != nil {
			return types.Document{}, err
		}
		*f.dst = v
	}
	doc.Raw = bytes.Clone(line)
	return doc, nil
}

// stringField returns a string member of a record. Missing and null members
// read as "", any other non-string value makes the line malformed.
func stringField(fields map[string]gjson.Result, key string) (string, error) {
	v, ok := fields[key]
	if !ok {
		return "", nil
	}
	switch v.Type {
	case gjson.String:
		return v.Str, nil
	case gjson.Null:
		return "", nil
	default:
		return "", fmt.Errorf("%w: %s is %s, not a string", ErrMalformedLine, key, v.Type)
	}
}
