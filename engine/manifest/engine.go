// Package manifest implements a read-only volume engine over NDJSON image
// catalogs.
//
// A manifest image describes a volume the way an NTFS volume is seen
// through its MFT: a header record with the volume metadata followed by one
// record per file entry, keyed by MFT index, with data streams stored
// inline. Images may be zstd or gzip compressed; the compression is
// detected from the first bytes.
//
// Importing the package registers the engine under the name "manifest",
// which is volume.DefaultEngine.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/grokify/mogo/log/slogutil"

	"github.com/grokify/omnivolume"
	"github.com/grokify/omnivolume/compress/gzip"
	"github.com/grokify/omnivolume/compress/zstd"
	"github.com/grokify/omnivolume/format/ndjson"
	"github.com/grokify/omnivolume/source/file"
	"github.com/grokify/omnivolume/volume"
)

// Name is the registered engine name.
const Name = "manifest"

// MaxImageSize bounds the decompressed size of compressed images.
const MaxImageSize int64 = 1 << 30

// ErrAborted is returned by an open interrupted with SignalAbort.
var ErrAborted = errors.New("manifest: open aborted")

var (
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	gzipMagic = []byte{0x1f, 0x8b}
)

func init() {
	volume.RegisterEngine(Name, func(logger *slog.Logger) (volume.Engine, error) {
		return New(logger), nil
	})
}

// Engine is the manifest volume engine. It is not safe for concurrent use,
// except for SignalAbort.
type Engine struct {
	logger *slog.Logger

	handle     *omnivolume.Handle
	ownsHandle bool

	open    bool
	freed   bool
	aborted atomic.Bool

	meta     volume.Metadata
	entries  map[uint64]*entry
	children map[uint64][]uint64
	count    uint64
}

// New creates a closed engine. A nil logger disables logging.
func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slogutil.Null()
	}
	return &Engine{logger: logger.With("engine", Name)}
}

func (e *Engine) checkOpenable(mode volume.AccessMode) error {
	switch {
	case e.freed:
		return omnivolume.ProtocolError(omnivolume.ErrVolumeClosed, "open freed engine")
	case e.open:
		return omnivolume.ProtocolError(omnivolume.ErrHandleAlreadyOpen, "open volume")
	case mode&volume.ModeWrite != 0:
		return omnivolume.NotSupportedError("manifest write access")
	case mode&volume.ModeRead == 0:
		return omnivolume.InvalidArgumentError("manifest: invalid access mode %s", mode)
	}
	return nil
}

// Open opens the image file at path. The engine owns the handle it opens.
func (e *Engine) Open(path string, mode volume.AccessMode) error {
	if err := e.checkOpenable(mode); err != nil {
		return err
	}

	h, err := file.OpenHandle(path, omnivolume.AccessRead, omnivolume.WithLogger(e.logger))
	if err != nil {
		return err
	}

	if err := e.load(h); err != nil {
		if ferr := h.Free(); ferr != nil {
			e.logger.Error("freeing image handle failed", "path", path, "error", ferr)
		}
		return err
	}

	e.handle = h
	e.ownsHandle = true
	return nil
}

// OpenHandle opens the image stored in h, reading it from offset 0.
// The engine borrows h.
func (e *Engine) OpenHandle(h *omnivolume.Handle, mode volume.AccessMode) error {
	if h == nil {
		return omnivolume.InvalidArgumentError("manifest: handle is nil")
	}
	if err := e.checkOpenable(mode); err != nil {
		return err
	}
	if err := e.load(h); err != nil {
		return err
	}
	e.handle = h
	e.ownsHandle = false
	return nil
}

// SignalAbort makes a running or the next open fail with ErrAborted.
func (e *Engine) SignalAbort() error {
	e.aborted.Store(true)
	return nil
}

// imageReader returns a reader over the uncompressed image in h.
func (e *Engine) imageReader(h *omnivolume.Handle) (io.Reader, error) {
	if _, err := h.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	magic := make([]byte, len(zstdMagic))
	n, err := io.ReadFull(h, magic)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	magic = magic[:n]

	if _, err := h.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	switch {
	case bytes.HasPrefix(magic, zstdMagic):
		e.logger.Debug("reading zstd compressed image")
		data, err := zstd.Decompress(h, MaxImageSize)
		if err != nil {
			return nil, err
		}
		return bytes.NewReader(data), nil
	case bytes.HasPrefix(magic, gzipMagic):
		e.logger.Debug("reading gzip compressed image")
		data, _, err := gzip.Decompress(h, MaxImageSize)
		if err != nil {
			return nil, err
		}
		return bytes.NewReader(data), nil
	}
	return h, nil
}

func (e *Engine) load(h *omnivolume.Handle) error {
	r, err := e.imageReader(h)
	if err != nil {
		return err
	}
	nd := ndjson.NewReader(r)
	defer func() { _ = nd.Close() }()

	var hdr header
	if err := nd.ReadJSON(&hdr); err != nil {
		if errors.Is(err, io.EOF) {
			return omnivolume.InvalidArgumentError("manifest: empty image")
		}
		return omnivolume.InvalidArgumentError("manifest: reading header: %v", err)
	}
	if hdr.Kind != KindVolume {
		return omnivolume.InvalidArgumentError("manifest: first record is %q, want %q", hdr.Kind, KindVolume)
	}
	if hdr.Format > FormatVersion {
		return omnivolume.NotSupportedError(fmt.Sprintf("manifest format %d", hdr.Format))
	}

	entries := make(map[uint64]*entry)
	var count uint64
	for {
		if e.aborted.Load() {
			e.aborted.Store(false)
			return ErrAborted
		}

		record, err := nd.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		ent := &entry{}
		if err := json.Unmarshal(record, ent); err != nil {
			return omnivolume.InvalidArgumentError("manifest: line %d: %v", nd.Line(), err)
		}
		if ent.Kind != KindEntry {
			return omnivolume.InvalidArgumentError("manifest: line %d: unexpected record kind %q", nd.Line(), ent.Kind)
		}
		if ent.Index > MaxIndex {
			return omnivolume.InvalidArgumentError("manifest: line %d: entry index %d exceeds %d", nd.Line(), ent.Index, MaxIndex)
		}
		if _, dup := entries[ent.Index]; dup {
			return omnivolume.InvalidArgumentError("manifest: line %d: duplicate entry index %d", nd.Line(), ent.Index)
		}
		entries[ent.Index] = ent
		if ent.Index+1 > count {
			count = ent.Index + 1
		}
	}

	e.meta = volume.Metadata{
		SerialNumber:       hdr.SerialNumber,
		ClusterBlockSize:   hdr.ClusterBlockSize,
		MFTEntrySize:       hdr.MFTEntrySize,
		IndexEntrySize:     hdr.IndexEntrySize,
		Name:               hdr.Name,
		MajorVersion:       hdr.MajorVersion,
		MinorVersion:       hdr.MinorVersion,
		HasBitLocker:       hdr.HasBitLocker,
		HasShadowSnapshots: hdr.HasShadowSnapshots,
	}
	e.entries = entries
	e.children = buildChildren(entries)
	e.count = count
	e.open = true

	e.logger.Debug("image loaded", "name", hdr.Name, "entries", len(entries), "count", count)
	return nil
}

// buildChildren groups entries under their parent directory in NTFS
// collation order (case-insensitive name, then index).
func buildChildren(entries map[uint64]*entry) map[uint64][]uint64 {
	children := make(map[uint64][]uint64)
	for idx, ent := range entries {
		if ent.Parent == idx {
			continue
		}
		if parent, ok := entries[ent.Parent]; ok && parent.Directory {
			children[ent.Parent] = append(children[ent.Parent], idx)
		}
	}
	for _, subs := range children {
		sort.Slice(subs, func(i, j int) bool {
			a, b := strings.ToUpper(entries[subs[i]].Name), strings.ToUpper(entries[subs[j]].Name)
			if a != b {
				return a < b
			}
			return subs[i] < subs[j]
		})
	}
	return children
}

// Close closes the volume and frees the image handle if the engine opened it.
func (e *Engine) Close() error {
	if !e.open {
		return omnivolume.ProtocolError(omnivolume.ErrVolumeClosed, "close volume")
	}
	e.open = false
	e.entries = nil
	e.children = nil
	e.count = 0

	var err error
	if e.ownsHandle && e.handle != nil {
		err = e.handle.Free()
	}
	e.handle = nil
	e.ownsHandle = false
	return err
}

// Free closes the engine if it is open. It is safe to call more than once.
func (e *Engine) Free() error {
	if e.freed {
		return nil
	}
	e.freed = true
	if e.open {
		return e.Close()
	}
	return nil
}

func (e *Engine) checkOpen(op string) error {
	if !e.open {
		return omnivolume.ProtocolError(omnivolume.ErrVolumeClosed, op)
	}
	return nil
}

// Metadata returns the volume header.
func (e *Engine) Metadata() (volume.Metadata, error) {
	if err := e.checkOpen("get metadata"); err != nil {
		return volume.Metadata{}, err
	}
	return e.meta, nil
}

// NumberOfFileEntries returns the highest entry index plus one.
func (e *Engine) NumberOfFileEntries() (uint64, error) {
	if err := e.checkOpen("get number of file entries"); err != nil {
		return 0, err
	}
	return e.count, nil
}

// RootDirectory returns the entry at RootIndex.
func (e *Engine) RootDirectory() (*volume.Record, error) {
	return e.FileEntryByIndex(RootIndex)
}

// FileEntryByIndex returns the entry at idx.
func (e *Engine) FileEntryByIndex(idx uint64) (*volume.Record, error) {
	if err := e.checkOpen("get file entry by index"); err != nil {
		return nil, err
	}
	ent, ok := e.entries[idx]
	if !ok {
		return nil, omnivolume.NotFoundError("no file entry with index %d", idx)
	}
	return e.record(ent), nil
}

// FileEntryByPath walks path from the root directory, matching names
// case-insensitively. Empty components are rejected; "." and ".." are
// ordinary names.
func (e *Engine) FileEntryByPath(path string) (*volume.Record, error) {
	if err := e.checkOpen("get file entry by path"); err != nil {
		return nil, err
	}

	root, ok := e.entries[RootIndex]
	if !ok {
		return nil, omnivolume.NotFoundError("volume has no root directory")
	}

	rest := strings.TrimPrefix(path, "/")
	if rest == "" {
		return e.record(root), nil
	}

	cur := root
	for _, name := range strings.Split(rest, "/") {
		if name == "" {
			return nil, omnivolume.NotFoundError("invalid path %q: empty component", path)
		}
		next, ok := e.child(cur, name)
		if !ok {
			return nil, omnivolume.NotFoundError("no file entry %q in path %q", name, path)
		}
		cur = next
	}
	return e.record(cur), nil
}

func (e *Engine) child(dir *entry, name string) (*entry, bool) {
	for _, idx := range e.children[dir.Index] {
		if ent := e.entries[idx]; strings.EqualFold(ent.Name, name) {
			return ent, true
		}
	}
	return nil, false
}

// ReadData copies stream data of the entry at idx into p.
func (e *Engine) ReadData(idx uint64, streamName string, p []byte, off int64) (int, error) {
	if err := e.checkOpen("read data"); err != nil {
		return 0, err
	}
	ent, ok := e.entries[idx]
	if !ok {
		return 0, omnivolume.NotFoundError("no file entry with index %d", idx)
	}
	data, ok := ent.streamData(streamName)
	if !ok {
		return 0, omnivolume.NotFoundError("no data stream %q in file entry %d", streamName, idx)
	}
	if off < 0 {
		return 0, omnivolume.InvalidArgumentError("negative offset %d", off)
	}
	if off >= int64(len(data)) {
		return 0, nil
	}
	return copy(p, data[off:]), nil
}

func (e *Engine) record(ent *entry) *volume.Record {
	rec := &volume.Record{
		Index:                 ent.Index,
		Sequence:              ent.Sequence,
		ParentIndex:           ent.Parent,
		ParentSequence:        ent.ParentSequence,
		Name:                  ent.Name,
		Directory:             ent.Directory,
		AttributeFlags:        ent.AttributeFlags,
		CreationTime:          ent.CreationTime,
		ModificationTime:      ent.ModificationTime,
		AccessTime:            ent.AccessTime,
		EntryModificationTime: ent.EntryModificationTime,
		HasDefaultStream:      ent.hasDefaultStream(),
		Size:                  int64(len(ent.Data)),
		Children:              append([]uint64(nil), e.children[ent.Index]...),
	}
	for _, s := range ent.Streams {
		rec.Streams = append(rec.Streams, volume.StreamInfo{Name: s.Name, Size: int64(len(s.Data))})
	}
	return rec
}

// Ensure Engine implements the volume engine interfaces
var (
	_ volume.Engine  = (*Engine)(nil)
	_ volume.Aborter = (*Engine)(nil)
)
