package volume

import (
	"io"

	"github.com/grokify/omnivolume"
)

// DataStream reads one data stream of a file entry. It implements
// omnivolume.Source, so a volume stored inside a file can be opened with
// OpenSource. Writes fail with omnivolume.ErrNotSupported.
type DataStream struct {
	vol    *Volume
	index  uint64
	name   string
	size   int64
	offset int64
}

func newDataStream(v *Volume, index uint64, name string, size int64) *DataStream {
	return &DataStream{vol: v, index: index, name: name, size: size}
}

// Name returns the stream name; the default data stream has an empty name.
func (s *DataStream) Name() string {
	return s.name
}

// Read reads from the current offset.
func (s *DataStream) Read(p []byte) (int, error) {
	if err := s.vol.check("read data stream"); err != nil {
		return 0, err
	}
	if s.offset >= s.size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	if rest := s.size - s.offset; int64(len(p)) > rest {
		p = p[:rest]
	}

	n, err := s.vol.engine.ReadData(s.index, s.name, p, s.offset)
	s.offset += int64(n)
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, io.ErrUnexpectedEOF
	}
	return n, nil
}

// ReadAt reads len(p) bytes at off without moving the offset.
func (s *DataStream) ReadAt(p []byte, off int64) (int, error) {
	if err := s.vol.check("read data stream"); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, omnivolume.InvalidArgumentError("negative offset %d", off)
	}

	var total int
	for total < len(p) {
		if off+int64(total) >= s.size {
			return total, io.EOF
		}
		q := p[total:]
		if rest := s.size - off - int64(total); int64(len(q)) > rest {
			q = q[:rest]
		}
		n, err := s.vol.engine.ReadData(s.index, s.name, q, off+int64(total))
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.ErrUnexpectedEOF
		}
	}
	return total, nil
}

// Write always fails; data streams are read-only.
func (s *DataStream) Write(_ []byte) (int, error) {
	return 0, omnivolume.NotSupportedError("write data stream")
}

// Seek moves the current offset. Seeking past the end is allowed.
func (s *DataStream) Seek(offset int64, whence int) (int64, error) {
	if err := s.vol.check("seek data stream"); err != nil {
		return 0, err
	}

	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = s.offset
	case io.SeekEnd:
		base = s.size
	default:
		return 0, omnivolume.InvalidArgumentError("unsupported whence %d", whence)
	}

	pos := base + offset
	if pos < 0 {
		return 0, omnivolume.InvalidArgumentError("seek to negative offset %d", pos)
	}
	s.offset = pos
	return pos, nil
}

// Size returns the stream size.
func (s *DataStream) Size() (int64, error) {
	if err := s.vol.check("get data stream size"); err != nil {
		return 0, err
	}
	return s.size, nil
}

// IsOpen reports whether the owning volume is still open.
func (s *DataStream) IsOpen() bool {
	return !s.vol.closed
}

// Ensure DataStream implements the omnivolume capability interfaces
var (
	_ omnivolume.Source       = (*DataStream)(nil)
	_ omnivolume.Sizer        = (*DataStream)(nil)
	_ omnivolume.OpenReporter = (*DataStream)(nil)
	_ io.ReaderAt             = (*DataStream)(nil)
)
