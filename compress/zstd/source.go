package zstd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/klauspost/compress/zstd"

	"github.com/grokify/omnivolume"
	"github.com/grokify/omnivolume/source/memory"
)

// DefaultMaxSize bounds the decompressed size of an image.
const DefaultMaxSize int64 = 1 << 30

func init() {
	omnivolume.Register("zstd", NewFromConfig)
}

// Decompress reads a complete zstd stream from r.
// It fails if the decompressed data exceeds maxSize bytes.
func Decompress(r io.Reader, maxSize int64) ([]byte, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	defer zr.Close()

	data, err := io.ReadAll(io.LimitReader(zr, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("zstd: decompressing: %w", err)
	}
	if int64(len(data)) > maxSize {
		return nil, omnivolume.InvalidArgumentError("zstd: image exceeds %d bytes", maxSize)
	}
	return data, nil
}

// NewSource decompresses r into a read-only in-memory source.
func NewSource(r io.Reader) (*memory.Source, error) {
	data, err := Decompress(r, DefaultMaxSize)
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
				return nil, omnivolume.InvalidArgumentError("zstd: invalid max_size %q", v)
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

	data, err := Decompress(h, maxSize)
	if err != nil {
		return nil, err
	}
	return memory.NewReadOnly(data), nil
}
