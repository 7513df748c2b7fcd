// Package volume opens filesystem volumes through a storage engine and
// walks the file entries they contain.
//
// A Volume is opened from a path, from an existing omnivolume.Handle, or
// from any omnivolume.Source. The engine is chosen by name; engine packages
// register themselves on import:
//
//	import _ "github.com/grokify/omnivolume/engine/manifest"
//
//	vol, err := volume.Open("kw-srch-1.ndjson", volume.ModeRead)
//	if err != nil {
//	    return err
//	}
//	defer vol.Close()
//
//	it, err := vol.Entries()
//	for entry, err := range it.All() {
//	    ...
//	}
//
// File entries, data streams and iterators borrow the volume. After Close
// they fail with omnivolume.ErrVolumeClosed.
package volume

import (
	"errors"
	"log/slog"
	"unicode/utf16"

	"github.com/grokify/omnivolume"
)

// ErrUnknownEngine is returned when the requested engine is not registered.
var ErrUnknownEngine = errors.New("volume: unknown engine")

// Volume is a filesystem volume. It is not safe for concurrent use, with
// the exception of SignalAbort.
type Volume struct {
	engine Engine
	config Config
	logger *slog.Logger

	// handle is set when the volume created the handle itself and must
	// free it on Close.
	handle *omnivolume.Handle

	opened bool
	closed bool
}

// New allocates a volume and its engine without opening anything. Open it
// with one of the Open methods; Close releases the engine whether or not
// an open succeeded. Splitting allocation from opening lets another
// goroutine call SignalAbort while an open runs.
func New(opts ...Option) (*Volume, error) {
	config := ApplyOptions(opts...)
	engine, err := newEngine(config.Engine, config.Logger)
	if err != nil {
		return nil, err
	}
	return &Volume{
		engine: engine,
		config: *config,
		logger: config.Logger,
	}, nil
}

// Open opens the volume image at path in the given mode.
// The engine is freed before an open failure is returned.
func Open(path string, mode AccessMode, opts ...Option) (*Volume, error) {
	v, err := New(opts...)
	if err != nil {
		return nil, err
	}
	if err := v.Open(path, mode); err != nil {
		v.discard()
		return nil, err
	}
	return v, nil
}

// OpenHandle opens the volume stored in h. The volume borrows h: the
// caller keeps ownership and must free h after closing the volume.
// The access mode follows the handle's access flags.
func OpenHandle(h *omnivolume.Handle, opts ...Option) (*Volume, error) {
	v, err := New(opts...)
	if err != nil {
		return nil, err
	}
	if err := v.OpenHandle(h); err != nil {
		v.discard()
		return nil, err
	}
	return v, nil
}

// OpenSource wraps src in a read-only Managed handle and opens the volume
// stored in it. The volume owns the handle and frees it on Close; the
// source is released even if opening fails.
func OpenSource(src omnivolume.Source, opts ...Option) (*Volume, error) {
	v, err := New(opts...)
	if err != nil {
		return nil, err
	}
	if err := v.OpenSource(src); err != nil {
		v.discard()
		return nil, err
	}
	return v, nil
}

func (v *Volume) checkOpenable(op string) error {
	if v.closed {
		return omnivolume.ProtocolError(omnivolume.ErrVolumeClosed, op)
	}
	if v.opened {
		return omnivolume.ProtocolError(omnivolume.ErrHandleAlreadyOpen, op)
	}
	return nil
}

// Open opens the volume image at path. After a failed open the volume may
// be opened again or closed.
func (v *Volume) Open(path string, mode AccessMode) error {
	if err := v.checkOpenable("open volume"); err != nil {
		return err
	}
	if err := v.engine.Open(path, mode); err != nil {
		return err
	}
	v.opened = true
	v.logger.Debug("volume opened", "path", path, "mode", mode.String(), "engine", v.config.Engine)
	return nil
}

// OpenHandle opens the volume stored in h, which the volume borrows.
func (v *Volume) OpenHandle(h *omnivolume.Handle) error {
	if h == nil {
		return omnivolume.InvalidArgumentError("volume: handle is nil")
	}
	if err := v.checkOpenable("open volume"); err != nil {
		return err
	}

	mode := modeFromFlags(h.AccessFlags())
	if err := v.engine.OpenHandle(h, mode); err != nil {
		return err
	}
	v.opened = true
	v.logger.Debug("volume opened from handle", "mode", mode.String(), "engine", v.config.Engine)
	return nil
}

// OpenSource opens the volume stored in src through a read-only Managed
// handle that the volume owns. src is released if opening fails.
func (v *Volume) OpenSource(src omnivolume.Source) error {
	if err := v.checkOpenable("open volume"); err != nil {
		return err
	}

	h, err := omnivolume.OpenSource(src, omnivolume.AccessRead,
		omnivolume.WithLogger(v.logger), omnivolume.WithStrictTeardown(v.config.StrictTeardown))
	if err != nil {
		return err
	}
	if err := v.OpenHandle(h); err != nil {
		if ferr := h.Free(); ferr != nil {
			v.logger.Error("freeing handle after failed open", "error", ferr)
		}
		return err
	}
	v.handle = h
	return nil
}

// discard frees the engine of a volume whose open failed.
func (v *Volume) discard() {
	v.closed = true
	if err := v.engine.Free(); err != nil {
		v.logger.Error("freeing volume engine failed", "error", err)
	}
}

// Close closes the engine, if it was opened, and then frees it. It runs
// once; later calls return nil. Free failures are logged, and returned
// only with WithStrictTeardown(true).
func (v *Volume) Close() error {
	if v.closed {
		return nil
	}
	v.closed = true

	var closeErr error
	if v.opened {
		if closeErr = v.engine.Close(); closeErr != nil {
			v.logger.Error("closing volume engine failed", "error", closeErr)
		}
	}

	var teardown []error
	if err := v.engine.Free(); err != nil {
		v.logger.Error("freeing volume engine failed", "error", err)
		teardown = append(teardown, err)
	}
	if v.handle != nil {
		if err := v.handle.Free(); err != nil {
			v.logger.Error("freeing volume handle failed", "error", err)
			teardown = append(teardown, err)
		}
		v.handle = nil
	}

	v.logger.Debug("volume closed")

	if v.config.StrictTeardown {
		return errors.Join(append([]error{closeErr}, teardown...)...)
	}
	return closeErr
}

// IsClosed reports whether Close has been called.
func (v *Volume) IsClosed() bool {
	return v.closed
}

// SignalAbort asks the engine to stop an open running in another
// goroutine, or the next open when none is running. The aborted open fails
// with the engine's abort error. SignalAbort fails with
// omnivolume.ErrNotSupported when the engine cannot abort.
func (v *Volume) SignalAbort() error {
	if v.closed {
		return omnivolume.ProtocolError(omnivolume.ErrVolumeClosed, "signal abort")
	}
	a, ok := v.engine.(Aborter)
	if !ok {
		return omnivolume.NotSupportedError("signal abort")
	}
	return a.SignalAbort()
}

func (v *Volume) check(op string) error {
	if v.closed || !v.opened {
		return omnivolume.ProtocolError(omnivolume.ErrVolumeClosed, op)
	}
	return nil
}

func (v *Volume) metadata(op string) (Metadata, error) {
	if err := v.check(op); err != nil {
		return Metadata{}, err
	}
	return v.engine.Metadata()
}

// SerialNumber returns the volume serial number.
func (v *Volume) SerialNumber() (uint64, error) {
	m, err := v.metadata("get serial number")
	return m.SerialNumber, err
}

// ClusterBlockSize returns the cluster block size in bytes.
func (v *Volume) ClusterBlockSize() (uint32, error) {
	m, err := v.metadata("get cluster block size")
	return m.ClusterBlockSize, err
}

// MFTEntrySize returns the MFT entry size in bytes.
func (v *Volume) MFTEntrySize() (uint32, error) {
	m, err := v.metadata("get MFT entry size")
	return m.MFTEntrySize, err
}

// IndexEntrySize returns the index entry size in bytes.
func (v *Volume) IndexEntrySize() (uint32, error) {
	m, err := v.metadata("get index entry size")
	return m.IndexEntrySize, err
}

// Name returns the volume label.
func (v *Volume) Name() (string, error) {
	m, err := v.metadata("get name")
	return m.Name, err
}

// UTF16Name returns the volume label as UTF-16 code units.
func (v *Volume) UTF16Name() ([]uint16, error) {
	m, err := v.metadata("get UTF-16 name")
	if err != nil {
		return nil, err
	}
	return utf16.Encode([]rune(m.Name)), nil
}

// Version returns the major and minor format version.
func (v *Volume) Version() (major, minor uint8, err error) {
	m, err := v.metadata("get version")
	return m.MajorVersion, m.MinorVersion, err
}

// HasBitLockerDriveEncryption reports whether the volume is BitLocker encrypted.
func (v *Volume) HasBitLockerDriveEncryption() (bool, error) {
	m, err := v.metadata("has BitLocker drive encryption")
	return m.HasBitLocker, err
}

// HasVolumeShadowSnapshots reports whether the volume has shadow snapshots.
func (v *Volume) HasVolumeShadowSnapshots() (bool, error) {
	m, err := v.metadata("has volume shadow snapshots")
	return m.HasShadowSnapshots, err
}

// NumberOfFileEntries returns the number of file entry indexes.
func (v *Volume) NumberOfFileEntries() (uint64, error) {
	if err := v.check("get number of file entries"); err != nil {
		return 0, err
	}
	return v.engine.NumberOfFileEntries()
}

// RootDirectory returns the root directory entry.
func (v *Volume) RootDirectory() (*FileEntry, error) {
	if err := v.check("get root directory"); err != nil {
		return nil, err
	}
	rec, err := v.engine.RootDirectory()
	if err != nil {
		return nil, err
	}
	return newFileEntry(v, rec), nil
}

// FileEntryByIndex returns the entry with the given MFT index.
func (v *Volume) FileEntryByIndex(idx uint64) (*FileEntry, error) {
	if err := v.check("get file entry by index"); err != nil {
		return nil, err
	}
	rec, err := v.engine.FileEntryByIndex(idx)
	if err != nil {
		return nil, err
	}
	return newFileEntry(v, rec), nil
}

// FileEntryByPath returns the entry at a "/" separated path. A leading "/"
// is optional; "/" is the root directory. An empty path is not found.
func (v *Volume) FileEntryByPath(path string) (*FileEntry, error) {
	if err := v.check("get file entry by path"); err != nil {
		return nil, err
	}
	if path == "" {
		return nil, omnivolume.NotFoundError("volume: empty path")
	}
	rec, err := v.engine.FileEntryByPath(path)
	if err != nil {
		return nil, err
	}
	return newFileEntry(v, rec), nil
}

// FileEntryByUTF16Path is FileEntryByPath for UTF-16 encoded paths.
// A path with unpaired surrogates is not found.
func (v *Volume) FileEntryByUTF16Path(path []uint16) (*FileEntry, error) {
	if err := v.check("get file entry by UTF-16 path"); err != nil {
		return nil, err
	}
	s, ok := decodeUTF16(path)
	if !ok {
		return nil, omnivolume.NotFoundError("volume: invalid UTF-16 path")
	}
	return v.FileEntryByPath(s)
}

// decodeUTF16 decodes p and reports false if it contains unpaired surrogates.
func decodeUTF16(p []uint16) (string, bool) {
	for i := 0; i < len(p); i++ {
		c := rune(p[i])
		switch {
		case utf16.IsSurrogate(c) && c < 0xdc00:
			if i+1 >= len(p) || p[i+1] < 0xdc00 || p[i+1] > 0xdfff {
				return "", false
			}
			i++
		case utf16.IsSurrogate(c):
			return "", false
		}
	}
	return string(utf16.Decode(p)), true
}
