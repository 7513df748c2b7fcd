package manifest

import (
	"bytes"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/grokify/omnivolume"
	"github.com/grokify/omnivolume/compress/gzip"
	"github.com/grokify/omnivolume/compress/zstd"
	"github.com/grokify/omnivolume/format/ndjson"
	"github.com/grokify/omnivolume/source/file"
	"github.com/grokify/omnivolume/volume"
)

// Entry describes a file entry added to a Builder.
type Entry struct {
	Index          uint64
	Sequence       uint16
	Parent         uint64
	ParentSequence uint16
	Name           string
	Directory      bool
	AttributeFlags uint32

	CreationTime          time.Time
	ModificationTime      time.Time
	AccessTime            time.Time
	EntryModificationTime time.Time

	// Data is the default data stream. HasData marks an empty default
	// data stream when Data is empty.
	Data    []byte
	HasData bool

	// Streams holds the alternate data streams by name.
	Streams map[string][]byte
}

// Builder assembles manifest images.
type Builder struct {
	meta    volume.Metadata
	entries map[uint64]*entry
}

// NewBuilder creates a builder for a volume with the given metadata.
func NewBuilder(meta volume.Metadata) *Builder {
	return &Builder{
		meta:    meta,
		entries: make(map[uint64]*entry),
	}
}

// Add adds a file entry. Indexes must be unique and at most MaxIndex, and
// names of entries other than the root must be non-empty.
func (b *Builder) Add(e Entry) error {
	if e.Index > MaxIndex {
		return omnivolume.InvalidArgumentError("manifest: entry index %d exceeds %d", e.Index, MaxIndex)
	}
	if _, dup := b.entries[e.Index]; dup {
		return omnivolume.InvalidArgumentError("manifest: duplicate entry index %d", e.Index)
	}
	if e.Name == "" && e.Index != RootIndex {
		return omnivolume.InvalidArgumentError("manifest: entry %d has no name", e.Index)
	}

	ent := &entry{
		Kind:                  KindEntry,
		Index:                 e.Index,
		Sequence:              e.Sequence,
		Parent:                e.Parent,
		ParentSequence:        e.ParentSequence,
		Name:                  e.Name,
		Directory:             e.Directory,
		AttributeFlags:        e.AttributeFlags,
		CreationTime:          e.CreationTime,
		ModificationTime:      e.ModificationTime,
		AccessTime:            e.AccessTime,
		EntryModificationTime: e.EntryModificationTime,
		Data:                  bytes.Clone(e.Data),
		HasData:               e.HasData && len(e.Data) == 0,
	}

	names := make([]string, 0, len(e.Streams))
	for name := range e.Streams {
		if name == "" {
			return omnivolume.InvalidArgumentError("manifest: entry %d has an unnamed alternate data stream", e.Index)
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ent.Streams = append(ent.Streams, stream{Name: name, Data: bytes.Clone(e.Streams[name])})
	}

	b.entries[e.Index] = ent
	return nil
}

// Len returns the number of entries added.
func (b *Builder) Len() int {
	return len(b.entries)
}

// WriteTo writes the image as NDJSON, entries ordered by index.
func (b *Builder) WriteTo(w io.Writer) (int64, error) {
	nw := ndjson.NewWriter(w)

	hdr := header{
		Kind:               KindVolume,
		Format:             FormatVersion,
		Name:               b.meta.Name,
		SerialNumber:       b.meta.SerialNumber,
		ClusterBlockSize:   b.meta.ClusterBlockSize,
		MFTEntrySize:       b.meta.MFTEntrySize,
		IndexEntrySize:     b.meta.IndexEntrySize,
		MajorVersion:       b.meta.MajorVersion,
		MinorVersion:       b.meta.MinorVersion,
		HasBitLocker:       b.meta.HasBitLocker,
		HasShadowSnapshots: b.meta.HasShadowSnapshots,
	}
	if err := nw.WriteValue(hdr); err != nil {
		return nw.BytesWritten(), err
	}

	indexes := make([]uint64, 0, len(b.entries))
	for idx := range b.entries {
		indexes = append(indexes, idx)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })

	for _, idx := range indexes {
		if err := nw.WriteValue(b.entries[idx]); err != nil {
			return nw.BytesWritten(), err
		}
	}

	err := nw.Close()
	return nw.BytesWritten(), err
}

// Bytes returns the encoded image.
func (b *Builder) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := b.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile writes the image to path, creating or truncating it. A ".zst"
// or ".gz" extension compresses the image; Open detects either.
func (b *Builder) WriteFile(path string) error {
	src, err := file.Open(path, omnivolume.AccessWrite|omnivolume.AccessTruncate)
	if err != nil {
		return err
	}

	var w io.WriteCloser = src
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zst":
		w, err = zstd.NewWriter(src)
	case ".gz":
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		w, err = gzip.NewWriterName(src, name, gzip.BestCompression)
	}
	if err != nil {
		_ = src.Close()
		return err
	}

	if _, err := b.WriteTo(w); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}
