package ndjson

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/grokify/omnivolume"
)

// Reader implements omnivolume.RecordReader for NDJSON.
// Each record is one non-empty line. The caller owns the underlying reader.
type Reader struct {
	scanner *bufio.Scanner
	line    int
	closed  bool
	mu      sync.Mutex
}

// NewReader creates an NDJSON reader over r with DefaultBufferSize as the
// maximum line length.
func NewReader(r io.Reader) *Reader {
	return NewReaderSize(r, DefaultBufferSize)
}

// NewReaderSize creates an NDJSON reader whose maximum line length is
// bufferSize bytes.
func NewReaderSize(r io.Reader, bufferSize int) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, min(bufferSize, 4096)), bufferSize)
	return &Reader{scanner: scanner}
}

// Read returns the next record, skipping empty lines.
// It returns io.EOF when no more records are available.
// The returned slice is owned by the caller.
func (r *Reader) Read() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, omnivolume.ErrReaderClosed
	}

	for r.scanner.Scan() {
		r.line++
		line := r.scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		return bytes.Clone(line), nil
	}

	if err := r.scanner.Err(); err != nil {
		return nil, fmt.Errorf("ndjson: line %d: %w", r.line+1, err)
	}
	return nil, io.EOF
}

// ReadJSON reads the next record and unmarshals it into v.
func (r *Reader) ReadJSON(v any) error {
	record, err := r.Read()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(record, v); err != nil {
		return fmt.Errorf("ndjson: line %d: %w", r.Line(), err)
	}
	return nil
}

// Line returns the line number of the last record read, counting from 1.
func (r *Reader) Line() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.line
}

// Close marks the reader closed. It does not close the underlying reader.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	return nil
}

// Ensure Reader implements omnivolume.RecordReader
var _ omnivolume.RecordReader = (*Reader)(nil)
