// Package ndjson provides NDJSON (newline-delimited JSON) record framing.
// Volume images of the manifest engine are stored in this format.
package ndjson

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"sync"

	"github.com/grokify/omnivolume"
)

const (
	// DefaultBufferSize is the default write buffer size and maximum read
	// line length.
	DefaultBufferSize = 1024 * 1024 // 1MB
)

// Writer implements omnivolume.RecordWriter for NDJSON.
// Each record is written as a single line followed by a newline.
// The caller owns the underlying writer.
type Writer struct {
	w      *bufio.Writer
	n      int64
	closed bool
	mu     sync.Mutex
}

// NewWriter creates an NDJSON writer over w.
func NewWriter(w io.Writer) *Writer {
	return NewWriterSize(w, DefaultBufferSize)
}

// NewWriterSize creates an NDJSON writer with the given buffer size.
func NewWriterSize(w io.Writer, bufferSize int) *Writer {
	return &Writer{w: bufio.NewWriterSize(w, bufferSize)}
}

// Write writes a single record followed by a newline. Embedded newlines
// are not escaped.
func (w *Writer) Write(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return omnivolume.ErrWriterClosed
	}

	n, err := w.w.Write(data)
	w.n += int64(n)
	if err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	w.n++
	return nil
}

// WriteJSON writes a pre-encoded record, trimming trailing whitespace.
func (w *Writer) WriteJSON(data []byte) error {
	return w.Write(bytes.TrimRight(data, " \t\r\n"))
}

// WriteValue marshals v and writes it as one record.
func (w *Writer) WriteValue(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return w.Write(data)
}

// BytesWritten returns the number of bytes written so far, including
// data still buffered.
func (w *Writer) BytesWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}

// Flush flushes any buffered data to the underlying writer.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return omnivolume.ErrWriterClosed
	}
	return w.w.Flush()
}

// Close flushes any remaining data. It does not close the underlying writer.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.w.Flush()
}

// Ensure Writer implements omnivolume.RecordWriter
var _ omnivolume.RecordWriter = (*Writer)(nil)
