// Package gzip reads and writes gzip compressed volume images using
// github.com/klauspost/compress/gzip.
package gzip

import (
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// CompressionLevel represents gzip compression levels.
type CompressionLevel int

const (
	// NoCompression stores data without compressing it.
	NoCompression CompressionLevel = gzip.NoCompression

	// BestSpeed provides fastest compression.
	BestSpeed CompressionLevel = gzip.BestSpeed

	// BestCompression provides best compression ratio.
	BestCompression CompressionLevel = gzip.BestCompression

	// DefaultCompression provides a balance of speed and compression.
	DefaultCompression CompressionLevel = gzip.DefaultCompression

	// HuffmanOnly uses Huffman encoding only.
	HuffmanOnly CompressionLevel = gzip.HuffmanOnly
)

// Writer compresses everything written to it into w.
// If w is an io.Closer it is closed by Close.
type Writer struct {
	gw     *gzip.Writer
	w      io.Writer
	closed bool
	mu     sync.Mutex
}

// NewWriter creates a gzip writer with the default compression level.
func NewWriter(w io.Writer) (*Writer, error) {
	return NewWriterLevel(w, DefaultCompression)
}

// NewWriterLevel creates a gzip writer with the given compression level.
func NewWriterLevel(w io.Writer, level CompressionLevel) (*Writer, error) {
	return NewWriterName(w, "", level)
}

// NewWriterName creates a gzip writer that records name in the gzip header.
func NewWriterName(w io.Writer, name string, level CompressionLevel) (*Writer, error) {
	gw, err := gzip.NewWriterLevel(w, int(level))
	if err != nil {
		return nil, err
	}
	gw.Name = name
	return &Writer{gw: gw, w: w}, nil
}

// Write compresses p.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, io.ErrClosedPipe
	}
	return w.gw.Write(p)
}

// Flush flushes any pending compressed data.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return io.ErrClosedPipe
	}
	return w.gw.Flush()
}

// Close writes the gzip footer and closes the underlying writer if it can
// be closed. Closing twice is a no-op.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	err := w.gw.Close()
	if c, ok := w.w.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Ensure Writer implements io.WriteCloser
var _ io.WriteCloser = (*Writer)(nil)
