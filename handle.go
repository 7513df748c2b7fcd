package omnivolume

import (
	"errors"
	"io"
	"log/slog"
)

type handleState uint8

const (
	stateInitialized handleState = iota
	stateOpen
	stateFreed
)

func (s handleState) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateFreed:
		return "freed"
	default:
		return "initialized"
	}
}

// OffsetRange is one recorded read: size bytes read starting at offset.
type OffsetRange struct {
	Offset int64
	Size   int64
}

// Handle owns one callback table instance and, when Managed, the source
// behind it. It is the single object storage engines do I/O through.
//
// Lifecycle: NewHandle (initialized, closed) -> Open -> Close -> ... -> Free.
// A handle may be reopened after Close. Free is terminal and idempotent;
// every other call on a freed handle fails with ErrHandleFreed.
//
// Handle implements io.Reader, io.Writer and io.Seeker, so it is itself a
// Source and can be adapted again.
//
// A Handle is not safe for concurrent use.
type Handle struct {
	ioh       any
	cb        Callbacks
	ownership Ownership
	config    HandleConfig
	logger    *slog.Logger

	state  handleState
	flags  AccessFlags
	offset int64

	trackOffsets bool
	offsetsRead  []OffsetRange
}

// NewHandle initializes a handle around ioh and its callbacks. The handle
// starts closed. With Managed ownership, Free passes ioh to the Free slot.
func NewHandle(ioh any, cb Callbacks, ownership Ownership, opts ...HandleOption) (*Handle, error) {
	if err := cb.validate(); err != nil {
		return nil, err
	}

	config := ApplyHandleOptions(opts...)

	return &Handle{
		ioh:          ioh,
		cb:           cb,
		ownership:    ownership,
		config:       *config,
		logger:       config.logger(),
		trackOffsets: config.TrackOffsetsRead,
	}, nil
}

// OpenSource adapts src, wraps it in a Managed handle and opens it with flags.
//
// Ownership of src moves to the handle even when OpenSource fails: the
// source is released before the error is returned.
func OpenSource(src Source, flags AccessFlags, opts ...HandleOption) (*Handle, error) {
	if src == nil {
		return nil, InvalidArgumentError("source is nil")
	}

	ioh, cb := AdaptSource(src)
	h, err := NewHandle(ioh, cb, Managed, opts...)
	if err != nil {
		_ = cb.Free(ioh)
		return nil, err
	}

	if err := h.Open(flags); err != nil {
		_ = h.Free()
		return nil, err
	}
	return h, nil
}

// Open opens the handle with the given access flags.
func (h *Handle) Open(flags AccessFlags) error {
	switch h.state {
	case stateFreed:
		return ProtocolError(ErrHandleFreed, "open")
	case stateOpen:
		return ProtocolError(ErrHandleAlreadyOpen, "open")
	}

	if !flags.Valid() {
		return InvalidArgumentError("invalid access flags 0x%02x", uint8(flags))
	}

	if h.cb.Open != nil {
		if err := h.cb.Open(h.ioh, flags); err != nil {
			return err
		}
	}

	// Start from wherever the source currently is.
	pos, err := h.cb.Seek(h.ioh, 0, SeekCurrent)
	if err != nil {
		if h.cb.Close != nil {
			_ = h.cb.Close(h.ioh)
		}
		return err
	}

	h.flags = flags
	h.offset = pos
	h.state = stateOpen

	h.logger.Debug("handle opened", "flags", flags.String(), "ownership", h.ownership.String())
	return nil
}

// Reopen closes and reopens the handle with new access flags, keeping the
// current offset.
func (h *Handle) Reopen(flags AccessFlags) error {
	if h.state == stateFreed {
		return ProtocolError(ErrHandleFreed, "reopen")
	}

	offset := h.offset
	if h.state == stateOpen {
		if err := h.Close(); err != nil {
			return err
		}
	}
	if err := h.Open(flags); err != nil {
		return err
	}

	_, err := h.Seek(offset, io.SeekStart)
	return err
}

// Close closes the handle. The handle can be opened again afterwards.
func (h *Handle) Close() error {
	switch h.state {
	case stateFreed:
		return ProtocolError(ErrHandleFreed, "close")
	case stateInitialized:
		return ProtocolError(ErrHandleClosed, "close")
	}

	h.state = stateInitialized
	if h.cb.Close != nil {
		if err := h.cb.Close(h.ioh); err != nil {
			return err
		}
	}

	h.logger.Debug("handle closed")
	return nil
}

// Free closes the handle if it is open and then releases the source if the
// handle is Managed. Free runs its teardown exactly once; later calls return nil.
//
// Teardown failures are logged and the teardown still completes. They are
// returned only when the handle was created WithStrictTeardown(true).
func (h *Handle) Free() error {
	if h.state == stateFreed {
		return nil
	}

	var errs []error
	if h.state == stateOpen {
		if err := h.Close(); err != nil {
			h.logger.Error("closing handle during free failed", "error", err)
			errs = append(errs, err)
		}
	}

	if h.ownership == Managed && h.cb.Free != nil {
		if err := h.cb.Free(h.ioh); err != nil {
			h.logger.Error("freeing handle source failed", "error", err)
			errs = append(errs, err)
		}
	}

	h.state = stateFreed
	h.ioh = nil
	h.offsetsRead = nil

	h.logger.Debug("handle freed")

	if h.config.StrictTeardown {
		return errors.Join(errs...)
	}
	return nil
}

func (h *Handle) checkIO(op string) error {
	switch h.state {
	case stateFreed:
		return ProtocolError(ErrHandleFreed, op)
	case stateInitialized:
		return ProtocolError(ErrHandleClosed, op)
	}
	return nil
}

// Read reads up to len(p) bytes from the current offset.
// It returns io.EOF once the source has no more data.
func (h *Handle) Read(p []byte) (int, error) {
	if err := h.checkIO("read"); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}

	start := h.offset
	n, err := h.cb.Read(h.ioh, p)
	if n > 0 {
		h.offset += int64(n)
		if h.trackOffsets {
			h.offsetsRead = append(h.offsetsRead, OffsetRange{Offset: start, Size: int64(n)})
		}
	}
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// ReadAtOffset seeks to off and reads until p is full or the source ends.
// It returns io.EOF if fewer than len(p) bytes were available.
// Unlike io.ReaderAt, it moves the handle offset.
func (h *Handle) ReadAtOffset(p []byte, off int64) (int, error) {
	if _, err := h.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}

	var total int
	for total < len(p) {
		n, err := h.Read(p[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Write writes p at the current offset. It fails with ErrNotOpenForWriting,
// before reaching the source, if the handle lacks AccessWrite.
func (h *Handle) Write(p []byte) (int, error) {
	if err := h.checkIO("write"); err != nil {
		return 0, err
	}
	if !h.flags.CanWrite() {
		return 0, accessError("write")
	}
	if h.cb.Write == nil {
		return 0, NotSupportedError("write")
	}

	n, err := h.cb.Write(h.ioh, p)
	if n > 0 {
		h.offset += int64(n)
	}
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

// WriteAtOffset seeks to off and writes p.
func (h *Handle) WriteAtOffset(p []byte, off int64) (int, error) {
	if err := h.checkIO("write"); err != nil {
		return 0, err
	}
	if !h.flags.CanWrite() {
		return 0, accessError("write")
	}
	if _, err := h.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return h.Write(p)
}

// Seek sets the offset for the next Read or Write. A negative offset is
// rejected for io.SeekStart; for the other whence values the source decides.
func (h *Handle) Seek(offset int64, whence int) (int64, error) {
	if err := h.checkIO("seek"); err != nil {
		return 0, err
	}

	w := Whence(whence)
	if !w.valid() {
		return 0, InvalidArgumentError("unsupported whence %d", whence)
	}
	if w == SeekStart && offset < 0 {
		return 0, InvalidArgumentError("negative absolute offset %d", offset)
	}

	pos, err := h.cb.Seek(h.ioh, offset, w)
	if err != nil {
		return 0, err
	}
	h.offset = pos
	return pos, nil
}

// Offset returns the current offset.
func (h *Handle) Offset() (int64, error) {
	if h.state == stateFreed {
		return 0, ProtocolError(ErrHandleFreed, "get offset")
	}
	return h.offset, nil
}

// Size returns the total size of the source without moving the offset.
func (h *Handle) Size() (int64, error) {
	if h.state == stateFreed {
		return 0, ProtocolError(ErrHandleFreed, "get size")
	}
	if h.cb.Size == nil {
		return 0, NotSupportedError("get size")
	}
	return h.cb.Size(h.ioh)
}

// Exists reports whether the backing data exists.
func (h *Handle) Exists() (bool, error) {
	if h.state == stateFreed {
		return false, ProtocolError(ErrHandleFreed, "exists")
	}
	if h.cb.Exists == nil {
		return false, NotSupportedError("exists")
	}
	return h.cb.Exists(h.ioh)
}

// IsOpen reports whether the handle is open and its source ready.
// It never performs I/O.
func (h *Handle) IsOpen() (bool, error) {
	switch h.state {
	case stateFreed:
		return false, ProtocolError(ErrHandleFreed, "is open")
	case stateInitialized:
		return false, nil
	}
	if h.cb.IsOpen == nil {
		return true, nil
	}
	return h.cb.IsOpen(h.ioh)
}

// AccessFlags returns the access flags the handle was opened with.
func (h *Handle) AccessFlags() AccessFlags {
	return h.flags
}

// SetAccessFlags replaces the access flags without reopening the source.
func (h *Handle) SetAccessFlags(flags AccessFlags) error {
	if h.state == stateFreed {
		return ProtocolError(ErrHandleFreed, "set access flags")
	}
	if !flags.Valid() {
		return InvalidArgumentError("invalid access flags 0x%02x", uint8(flags))
	}
	h.flags = flags
	return nil
}

// Ownership returns whether the handle releases its source on Free.
func (h *Handle) Ownership() Ownership {
	return h.ownership
}

// Capabilities returns which optional callback slots are available.
func (h *Handle) Capabilities() Capabilities {
	return h.cb.capabilities()
}

// SetTrackOffsetsRead enables or disables read offset tracking.
// Ranges recorded so far are kept.
func (h *Handle) SetTrackOffsetsRead(track bool) error {
	if h.state == stateFreed {
		return ProtocolError(ErrHandleFreed, "set track offsets read")
	}
	h.trackOffsets = track
	return nil
}

// NumberOfOffsetsRead returns how many reads were recorded.
func (h *Handle) NumberOfOffsetsRead() int {
	return len(h.offsetsRead)
}

// OffsetRead returns the read recorded at position i.
func (h *Handle) OffsetRead(i int) (OffsetRange, error) {
	if i < 0 || i >= len(h.offsetsRead) {
		return OffsetRange{}, NotFoundError("no offset read at position %d (have %d)", i, len(h.offsetsRead))
	}
	return h.offsetsRead[i], nil
}

// OffsetsRead returns a copy of all recorded reads in order.
func (h *Handle) OffsetsRead() []OffsetRange {
	out := make([]OffsetRange, len(h.offsetsRead))
	copy(out, h.offsetsRead)
	return out
}

// Clone returns an independent Managed handle over a clone of the source,
// opened with the same flags at the same offset when h is open.
// It fails with ErrNotSupported when the table has no Clone slot.
func (h *Handle) Clone() (*Handle, error) {
	if h.state == stateFreed {
		return nil, ProtocolError(ErrHandleFreed, "clone")
	}
	if h.cb.Clone == nil {
		return nil, NotSupportedError("clone")
	}

	ioh, err := h.cb.Clone(h.ioh)
	if err != nil {
		return nil, err
	}

	clone := &Handle{
		ioh:          ioh,
		cb:           h.cb,
		ownership:    Managed,
		config:       h.config,
		logger:       h.logger,
		trackOffsets: h.trackOffsets,
	}

	if h.state == stateOpen {
		if err := clone.Open(h.flags); err != nil {
			_ = clone.Free()
			return nil, err
		}
		if _, err := clone.Seek(h.offset, io.SeekStart); err != nil {
			_ = clone.Free()
			return nil, err
		}
	}
	return clone, nil
}

// Ensure Handle implements Source
var _ Source = (*Handle)(nil)
