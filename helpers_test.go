package omnivolume

import (
	"errors"
	"io"
)

// bufferSource is a minimal in-package Source over a byte slice.
type bufferSource struct {
	data   []byte
	pos    int64
	closed int
}

func newBufferSource(data []byte) *bufferSource {
	return &bufferSource{data: append([]byte(nil), data...)}
}

func (s *bufferSource) Read(p []byte) (int, error) {
	if s.pos >= int64(len(s.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.data[s.pos:])
	s.pos += int64(n)
	return n, nil
}

func (s *bufferSource) Write(p []byte) (int, error) {
	end := s.pos + int64(len(p))
	if end > int64(len(s.data)) {
		s.data = append(s.data, make([]byte, end-int64(len(s.data)))...)
	}
	copy(s.data[s.pos:], p)
	s.pos = end
	return len(p), nil
}

func (s *bufferSource) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekCurrent:
		base = s.pos
	case io.SeekEnd:
		base = int64(len(s.data))
	}
	if base+offset < 0 {
		return 0, errors.New("negative position")
	}
	s.pos = base + offset
	return s.pos, nil
}

func (s *bufferSource) Close() error {
	s.closed++
	return nil
}

// faultySource fails or panics on every call.
type faultySource struct {
	panics bool
}

var errFault = errors.New("device fault")

func (s *faultySource) Read([]byte) (int, error) {
	if s.panics {
		panic("read exploded")
	}
	return 0, errFault
}

func (s *faultySource) Write([]byte) (int, error) { return 0, errFault }

func (s *faultySource) Seek(int64, int) (int64, error) { return 0, nil }
