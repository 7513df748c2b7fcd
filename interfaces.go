// Package omnivolume provides a pluggable I/O layer for storage engines and
// the handle type those engines read volumes through.
//
// A storage engine never touches a concrete data source. It talks to a
// Handle, and the Handle dispatches every operation through a fixed table of
// callbacks (see Callbacks). Any value supporting read, write and seek can be
// adapted into that table, so one engine works uniformly over local files,
// memory buffers, object stores, SFTP files, compressed images or a file
// entry of another volume.
//
// Basic usage:
//
//	src, _ := file.Open("/images/ntfs.raw", omnivolume.AccessRead)
//	h, _ := omnivolume.OpenSource(src, omnivolume.AccessRead)
//	defer func() { _ = h.Free() }()
//
//	vol, _ := volume.OpenHandle(h)
//	defer func() { _ = vol.Close() }()
package omnivolume

import "io"

// Source is the capability set every adaptable I/O source provides.
//
// Sources are not safe for concurrent use unless the implementation says
// otherwise; the Handle wrapping a source mutates its position on every call.
type Source interface {
	io.Reader
	io.Writer
	io.Seeker
}

// Sizer is implemented by sources that can report their total length
// without changing their position.
type Sizer interface {
	// Size returns the total addressable length in bytes.
	Size() (int64, error)
}

// OpenReporter is implemented by sources that track their own readiness.
type OpenReporter interface {
	// IsOpen reports whether the source can serve I/O. It must not perform I/O.
	IsOpen() bool
}

// RecordWriter writes framed records (byte slices) to an underlying writer.
// Implementations handle record delimiting (newlines, length-prefix, etc.).
type RecordWriter interface {
	// Write writes a single record.
	// The record should not contain the delimiter (e.g., no trailing newline for NDJSON).
	// Implementations may buffer writes; call Flush to ensure data is written.
	Write(data []byte) error

	// Flush flushes any buffered data to the underlying writer.
	Flush() error

	// Close flushes any remaining data and closes the writer.
	// After Close, Write and Flush return errors.
	Close() error
}

// RecordReader reads framed records from an underlying reader.
// Implementations handle record parsing (newlines, length-prefix, etc.).
type RecordReader interface {
	// Read reads the next record.
	// Returns io.EOF when no more records are available.
	// The returned slice is valid until the next call to Read.
	Read() ([]byte, error)

	// Close releases any resources held by the reader.
	Close() error
}
