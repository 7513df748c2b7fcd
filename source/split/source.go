// Package split provides a source that joins the segments of a split
// image into one contiguous, read-only byte range.
//
// Acquisition tools often cut a volume image into fixed-size pieces
// (image.001, image.002, ...). The split source presents those pieces to a
// storage engine as if they were a single file:
//
//	paths, _ := split.Glob("/evidence/kw-srch-1.ndjson.*")
//	src, _ := split.Open(paths...)
//	vol, _ := volume.OpenSource(src)
//
// Segments may be any omnivolume.Source, so the pieces can also live in
// memory, on S3 or behind SFTP.
package split

import (
	"errors"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/grokify/omnivolume"
	"github.com/grokify/omnivolume/source/file"
)

func init() {
	omnivolume.Register("split", NewFromConfig)
}

// Source implements omnivolume.Source over an ordered list of segments.
// Writes are rejected.
type Source struct {
	segments []omnivolume.Source
	starts   []int64
	size     int64
	offset   int64
	closed   bool
	mu       sync.Mutex
}

// New joins segments in the given order. Nil segments are ignored; at
// least one segment is required. The segment sizes are read once, so the
// segments must not grow afterwards. The Source takes ownership of the
// segments and closes them on Close.
func New(segments ...omnivolume.Source) (*Source, error) {
	var valid []omnivolume.Source
	for _, seg := range segments {
		if seg != nil {
			valid = append(valid, seg)
		}
	}
	if len(valid) == 0 {
		return nil, omnivolume.InvalidArgumentError("split: at least one segment is required")
	}

	s := &Source{segments: valid, starts: make([]int64, len(valid))}
	for i, seg := range valid {
		size, err := segmentSize(seg)
		if err != nil {
			return nil, omnivolume.IOError("split: size of segment "+strconv.Itoa(i), err)
		}
		s.starts[i] = s.size
		s.size += size
	}
	return s, nil
}

// Open opens every path read-only as a file segment. Segments already
// opened are closed again if a later one fails.
func Open(paths ...string) (*Source, error) {
	segments := make([]omnivolume.Source, 0, len(paths))
	closeAll := func() {
		for _, seg := range segments {
			_ = seg.(*file.Source).Close()
		}
	}

	for _, p := range paths {
		seg, err := file.Open(p, omnivolume.AccessRead)
		if err != nil {
			closeAll()
			return nil, err
		}
		segments = append(segments, seg)
	}

	s, err := New(segments...)
	if err != nil {
		closeAll()
		return nil, err
	}
	return s, nil
}

// Glob returns the segment files matching pattern in name order, which is
// segment order for numbered extensions of equal width.
func Glob(pattern string) ([]string, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, omnivolume.InvalidArgumentError("split: bad pattern %q: %v", pattern, err)
	}
	if len(paths) == 0 {
		return nil, omnivolume.NotFoundError("split: no segments match %q", pattern)
	}
	sort.Strings(paths)
	return paths, nil
}

// NewFromConfig creates a split source from a config map.
// Supported keys:
//   - paths: comma separated segment files, in order
//   - pattern: glob matching the segment files, used when paths is unset
func NewFromConfig(config map[string]string) (omnivolume.Source, error) {
	var paths []string
	if s := config["paths"]; s != "" {
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				paths = append(paths, p)
			}
		}
	} else if pattern := config["pattern"]; pattern != "" {
		var err error
		if paths, err = Glob(pattern); err != nil {
			return nil, err
		}
	}
	if len(paths) == 0 {
		return nil, omnivolume.InvalidArgumentError("split: paths or pattern is required")
	}
	return Open(paths...)
}

// segment returns the index of the segment holding off.
func (s *Source) segment(off int64) int {
	return sort.Search(len(s.starts), func(i int) bool { return s.starts[i] > off }) - 1
}

// Read reads from the current offset, crossing segment boundaries as
// needed.
func (s *Source) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, omnivolume.ErrReaderClosed
	}
	if s.offset >= s.size {
		return 0, io.EOF
	}

	var total int
	for total < len(p) && s.offset < s.size {
		i := s.segment(s.offset)
		end := s.size
		if i+1 < len(s.starts) {
			end = s.starts[i+1]
		}

		q := p[total:]
		if rest := end - s.offset; int64(len(q)) > rest {
			q = q[:rest]
		}
		if _, err := s.segments[i].Seek(s.offset-s.starts[i], io.SeekStart); err != nil {
			return total, err
		}
		n, err := io.ReadFull(s.segments[i], q)
		total += n
		s.offset += int64(n)
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				return total, io.ErrUnexpectedEOF
			}
			return total, err
		}
	}
	return total, nil
}

// Write always fails; split images are read-only.
func (s *Source) Write(_ []byte) (int, error) {
	return 0, omnivolume.NotSupportedError("split: write")
}

// Seek moves the current offset. Seeking past the end is allowed.
func (s *Source) Seek(offset int64, whence int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = s.offset
	case io.SeekEnd:
		base = s.size
	default:
		return 0, omnivolume.InvalidArgumentError("split: unsupported whence %d", whence)
	}

	pos := base + offset
	if pos < 0 {
		return 0, omnivolume.InvalidArgumentError("split: seek to negative offset %d", pos)
	}
	s.offset = pos
	return pos, nil
}

// Size returns the combined size of all segments.
func (s *Source) Size() (int64, error) {
	return s.size, nil
}

// Segments returns the number of segments.
func (s *Source) Segments() int {
	return len(s.segments)
}

// IsOpen reports whether Close has not been called yet.
func (s *Source) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Close closes every segment that can be closed, even when some fail.
// Closing twice is a no-op.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var closeErrs []error
	for _, seg := range s.segments {
		if c, ok := seg.(io.Closer); ok {
			if err := c.Close(); err != nil {
				closeErrs = append(closeErrs, err)
			}
		}
	}

	if len(closeErrs) > 0 {
		return &MultiError{Errors: closeErrs}
	}
	return nil
}

// segmentSize returns the size of seg.
func segmentSize(seg omnivolume.Source) (int64, error) {
	if sz, ok := seg.(omnivolume.Sizer); ok {
		return sz.Size()
	}
	end, err := seg.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := seg.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	return end, nil
}

// MultiError collects the errors of closing several segments.
type MultiError struct {
	Errors []error
}

// Error implements the error interface.
func (e *MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return e.Errors[0].Error() + " (and more errors)"
}

// Unwrap returns all errors for errors.Is/As compatibility.
func (e *MultiError) Unwrap() []error {
	return e.Errors
}

// Ensure Source implements the omnivolume capability interfaces
var (
	_ omnivolume.Source       = (*Source)(nil)
	_ omnivolume.Sizer        = (*Source)(nil)
	_ omnivolume.OpenReporter = (*Source)(nil)
)
