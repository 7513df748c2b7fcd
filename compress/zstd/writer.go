// Package zstd reads and writes Zstandard compressed volume images.
//
// A compressed image is decompressed once into memory and exposed as a
// read-only omnivolume.Source, so engines keep their random access:
//
//	src, err := zstd.NewSource(f)
//	vol, err := volume.OpenSource(src)
//
// Writer compresses images produced by an image builder:
//
//	w, _ := zstd.NewWriter(f)
//	builder.WriteTo(w)
//	w.Close()
package zstd

import (
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// CompressionLevel represents zstd compression levels.
type CompressionLevel int

const (
	// SpeedFastest provides the fastest compression speed.
	SpeedFastest CompressionLevel = iota + 1

	// SpeedDefault provides a good balance of speed and compression.
	SpeedDefault

	// SpeedBetterCompression provides better compression at slower speed.
	SpeedBetterCompression

	// SpeedBestCompression provides the best compression ratio.
	SpeedBestCompression
)

func (l CompressionLevel) encoderLevel() zstd.EncoderLevel {
	switch l {
	case SpeedFastest:
		return zstd.SpeedFastest
	case SpeedBetterCompression:
		return zstd.SpeedBetterCompression
	case SpeedBestCompression:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

// Writer compresses everything written to it into w.
// If w is an io.Closer it is closed by Close.
type Writer struct {
	zw     *zstd.Encoder
	w      io.Writer
	closed bool
	mu     sync.Mutex
}

// NewWriter creates a zstd writer with the default compression level.
func NewWriter(w io.Writer) (*Writer, error) {
	return NewWriterLevel(w, SpeedDefault)
}

// NewWriterLevel creates a zstd writer with the given compression level.
func NewWriterLevel(w io.Writer, level CompressionLevel) (*Writer, error) {
	return NewWriterWithOptions(w, zstd.WithEncoderLevel(level.encoderLevel()))
}

// NewWriterWithOptions creates a zstd writer with encoder options.
func NewWriterWithOptions(w io.Writer, opts ...zstd.EOption) (*Writer, error) {
	zw, err := zstd.NewWriter(w, opts...)
	if err != nil {
		return nil, err
	}
	return &Writer{zw: zw, w: w}, nil
}

// Write compresses p.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, io.ErrClosedPipe
	}
	return w.zw.Write(p)
}

// Flush writes any buffered data as a complete block.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return io.ErrClosedPipe
	}
	return w.zw.Flush()
}

// Close finishes the frame and closes the underlying writer if it can be
// closed. Closing twice is a no-op.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	err := w.zw.Close()
	if c, ok := w.w.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Ensure Writer implements io.WriteCloser
var _ io.WriteCloser = (*Writer)(nil)
