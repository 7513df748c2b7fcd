package gzip

import (
	"fmt"
	"io"
	"strconv"

	"github.com/klauspost/compress/gzip"

	"github.com/grokify/omnivolume"
	"github.com/grokify/omnivolume/source/memory"
)

// DefaultMaxSize bounds the decompressed size of an image.
const DefaultMaxSize int64 = 1 << 30

func init() {
	omnivolume.Register("gzip", NewFromConfig)
}

// Decompress reads a complete gzip stream from r and returns the data with
// the header of the first member.
// It fails if the decompressed data exceeds maxSize bytes.
func Decompress(r io.Reader, maxSize int64) ([]byte, gzip.Header, error) {
	gr, err := gzip.NewReader(r)
	if err != nil {
		return nil, gzip.Header{}, fmt.Errorf("gzip: %w", err)
	}
	defer func() { _ = gr.Close() }()

	data, err := io.ReadAll(io.LimitReader(gr, maxSize+1))
	if err != nil {
		return nil, gr.Header, fmt.Errorf("gzip: decompressing: %w", err)
	}
	if int64(len(data)) > maxSize {
		return nil, gr.Header, omnivolume.InvalidArgumentError("gzip: image exceeds %d bytes", maxSize)
	}
	return data, gr.Header, nil
}

// NewSource decompresses r into a read-only in-memory source.
func NewSource(r io.Reader) (*memory.Source, error) {
	data, _, err := Decompress(r, DefaultMaxSize)
	if err != nil {
		return nil, err
	}
	return memory.NewReadOnly(data), nil
}

// NewFromConfig opens a compressed image through another registered source
// and decompresses it.
// Supported keys:
//   - source: name of the source holding the compressed image (default: "file")
//   - max_size: decompressed size limit in bytes (default: 1GiB)
//
// All other keys are passed to the inner source, which is always opened
// for reading.
func NewFromConfig(config map[string]string) (omnivolume.Source, error) {
	inner := "file"
	maxSize := DefaultMaxSize
	innerConfig := make(map[string]string, len(config))

	for k, v := range config {
		switch k {
		case "source":
			inner = v
		case "max_size":
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n <= 0 {
				return nil, omnivolume.InvalidArgumentError("gzip: invalid max_size %q", v)
			}
			maxSize = n
		case "access":
		default:
			innerConfig[k] = v
		}
	}

	h, err := omnivolume.OpenNamed(inner, innerConfig, omnivolume.AccessRead)
	if err != nil {
		return nil, err
	}
	defer func() { _ = h.Free() }()

	data, _, err := Decompress(h, maxSize)
	if err != nil {
		return nil, err
	}
	return memory.NewReadOnly(data), nil
}
