// Package memory provides an in-memory source for omnivolume.
//
// The memory source is useful for:
//   - Unit testing without filesystem access
//   - Holding decompressed or downloaded volume images
//   - Building images before writing them elsewhere
//
// Data is stored in RAM and lost when the source is closed or the process exits.
package memory

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"github.com/grokify/omnivolume"
)

func init() {
	omnivolume.Register("memory", NewFromConfig)
}

// Source implements omnivolume.Source over a growable byte slice.
// Writing past the end extends the data; the gap is zero-filled.
type Source struct {
	data     []byte
	offset   int64
	readOnly bool
	closed   bool
	mu       sync.RWMutex
}

// New creates a writable source holding a copy of data.
func New(data []byte) *Source {
	return &Source{data: append([]byte(nil), data...)}
}

// NewReadOnly creates a source over data that rejects writes with a
// permission error. data is not copied and must not be modified afterwards.
func NewReadOnly(data []byte) *Source {
	return &Source{data: data, readOnly: true}
}

// NewFromConfig creates a new memory source from a config map.
// Supported keys:
//   - data: initial contents as a literal string
//   - base64: initial contents, standard base64 encoded
//   - read_only: "true" or "false" (default: "false")
func NewFromConfig(config map[string]string) (omnivolume.Source, error) {
	var data []byte
	if s, ok := config["data"]; ok {
		data = []byte(s)
	}
	if s, ok := config["base64"]; ok {
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, omnivolume.InvalidArgumentError("memory: invalid base64 data: %v", err)
		}
		data = decoded
	}

	readOnly := false
	if s, ok := config["read_only"]; ok && s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			return nil, omnivolume.InvalidArgumentError("memory: invalid read_only value %q", s)
		}
		readOnly = v
	}

	if readOnly {
		return NewReadOnly(data), nil
	}
	return New(data), nil
}

// Read reads from the current offset.
func (s *Source) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkClosed(); err != nil {
		return 0, err
	}
	if s.offset >= int64(len(s.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.data[s.offset:])
	s.offset += int64(n)
	return n, nil
}

// Write writes at the current offset, growing the data as needed.
func (s *Source) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkClosed(); err != nil {
		return 0, err
	}
	if s.readOnly {
		return 0, &os.PathError{Op: "write", Path: "memory", Err: os.ErrPermission}
	}

	end := s.offset + int64(len(p))
	if end > int64(len(s.data)) {
		if end > int64(cap(s.data)) {
			grown := make([]byte, end, end*2)
			copy(grown, s.data)
			s.data = grown
		} else {
			s.data = s.data[:end]
		}
	}
	n := copy(s.data[s.offset:], p)
	s.offset += int64(n)
	return n, nil
}

// Seek moves the current offset. Seeking past the end is allowed.
func (s *Source) Seek(offset int64, whence int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkClosed(); err != nil {
		return 0, err
	}

	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = s.offset
	case io.SeekEnd:
		base = int64(len(s.data))
	default:
		return 0, fmt.Errorf("memory: invalid whence %d", whence)
	}

	pos := base + offset
	if pos < 0 {
		return 0, fmt.Errorf("memory: seek to negative position %d", pos)
	}
	s.offset = pos
	return pos, nil
}

// Size returns the current data length.
func (s *Source) Size() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkClosed(); err != nil {
		return 0, err
	}
	return int64(len(s.data)), nil
}

// IsOpen reports whether Close has not been called yet.
func (s *Source) IsOpen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.closed
}

// Bytes returns a copy of the current data.
func (s *Source) Bytes() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]byte(nil), s.data...)
}

// Close releases the data. Closing twice is a no-op.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.data = nil
	return nil
}

func (s *Source) checkClosed() error {
	if s.closed {
		return os.ErrClosed
	}
	return nil
}

// Ensure Source implements the omnivolume capability interfaces
var (
	_ omnivolume.Source       = (*Source)(nil)
	_ omnivolume.Sizer        = (*Source)(nil)
	_ omnivolume.OpenReporter = (*Source)(nil)
)
