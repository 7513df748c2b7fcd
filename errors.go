package omnivolume

import (
	"errors"
	"fmt"

	perrors "github.com/jmgilman/go/errors"
)

// Common errors returned by handles, sources and engines.
var (
	// ErrNotFound is returned when a path, index or named stream resolves to nothing.
	ErrNotFound = errors.New("omnivolume: not found")

	// ErrIOFault is returned when the underlying source failed a read, write or seek.
	ErrIOFault = errors.New("omnivolume: I/O fault")

	// ErrNotOpenForWriting is returned when writing through a handle whose
	// access flags do not include AccessWrite.
	ErrNotOpenForWriting = errors.New("omnivolume: handle is not open for writing")

	// ErrPermissionDenied is returned when the host refuses access to a source.
	ErrPermissionDenied = errors.New("omnivolume: permission denied")

	// ErrHandleClosed is returned when doing I/O on a handle that is not open.
	ErrHandleClosed = errors.New("omnivolume: handle is not open")

	// ErrHandleAlreadyOpen is returned when opening a handle that is open.
	ErrHandleAlreadyOpen = errors.New("omnivolume: handle is already open")

	// ErrHandleFreed is returned for any operation on a freed handle.
	ErrHandleFreed = errors.New("omnivolume: handle has been freed")

	// ErrVolumeClosed is returned when using a volume, or an entry derived
	// from it, after the volume was closed.
	ErrVolumeClosed = errors.New("omnivolume: volume is closed")

	// ErrNotSupported is returned when a callback slot is absent or a source
	// cannot perform an operation.
	ErrNotSupported = errors.New("omnivolume: operation not supported")

	// ErrInvalidArgument is returned for malformed arguments (negative
	// absolute offsets, unknown whence values, nil callbacks, ...).
	ErrInvalidArgument = errors.New("omnivolume: invalid argument")

	// ErrUnknownSource is returned by NewSource when the source name is not registered.
	ErrUnknownSource = errors.New("omnivolume: unknown source")

	// ErrReaderClosed is returned when reading from a closed record reader.
	ErrReaderClosed = errors.New("omnivolume: reader closed")

	// ErrWriterClosed is returned when writing to a closed record writer.
	ErrWriterClosed = errors.New("omnivolume: writer closed")
)

// Error codes used in addition to the generic codes of github.com/jmgilman/go/errors.
const (
	// CodeIOFault marks failures of the underlying source.
	CodeIOFault perrors.ErrorCode = "IO_FAULT"

	// CodeProtocolViolation marks operations issued in the wrong lifecycle state.
	CodeProtocolViolation perrors.ErrorCode = "PROTOCOL_VIOLATION"
)

// IOError wraps a host error raised while performing op into a structured
// I/O fault. It returns nil if err is nil.
func IOError(op string, err error) error {
	if err == nil {
		return nil
	}
	return perrors.WrapWithContext(fmt.Errorf("%w: %w", ErrIOFault, err), CodeIOFault, op+" failed",
		map[string]interface{}{"op": op})
}

// NotFoundError returns a structured not-found error with a formatted message.
func NotFoundError(format string, args ...interface{}) error {
	return perrors.Wrapf(ErrNotFound, perrors.CodeNotFound, format, args...)
}

// NotSupportedError reports that op is not available on a source or engine.
func NotSupportedError(op string) error {
	return perrors.Wrapf(ErrNotSupported, perrors.CodeNotImplemented, "%s is not supported", op)
}

// InvalidArgumentError returns a structured invalid-argument error.
func InvalidArgumentError(format string, args ...interface{}) error {
	return perrors.Wrapf(ErrInvalidArgument, perrors.CodeInvalidInput, format, args...)
}

// ProtocolError reports an operation issued in the wrong lifecycle state.
// sentinel is one of ErrHandleClosed, ErrHandleAlreadyOpen, ErrHandleFreed
// or ErrVolumeClosed.
func ProtocolError(sentinel error, op string) error {
	return perrors.Wrapf(sentinel, CodeProtocolViolation, "%s rejected", op)
}

func accessError(op string) error {
	return perrors.Wrapf(ErrNotOpenForWriting, perrors.CodeForbidden, "%s rejected", op)
}

// Code returns the structured error code carried by err, or
// perrors.CodeUnknown when err carries none.
func Code(err error) perrors.ErrorCode {
	return perrors.GetCode(err)
}

// IsNotFound returns true if the error indicates a path or index was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsIOFault returns true if the error came from the underlying source.
func IsIOFault(err error) bool {
	return errors.Is(err, ErrIOFault)
}

// IsAccessViolation returns true if a write was rejected by the access flags.
func IsAccessViolation(err error) bool {
	return errors.Is(err, ErrNotOpenForWriting)
}

// IsProtocolViolation returns true if the operation was issued on a closed
// or freed handle, or on a closed volume.
func IsProtocolViolation(err error) bool {
	return errors.Is(err, ErrHandleClosed) || errors.Is(err, ErrHandleAlreadyOpen) ||
		errors.Is(err, ErrHandleFreed) || errors.Is(err, ErrVolumeClosed)
}

// IsPermissionDenied returns true if the error indicates permission was denied.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// IsNotSupported returns true if the error indicates an unsupported operation.
func IsNotSupported(err error) bool {
	return errors.Is(err, ErrNotSupported)
}
