package omnivolume

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// sourceAdapter is the opaque io value behind the callbacks returned by
// AdaptSource. It is only ever type-asserted by those callbacks.
type sourceAdapter struct {
	src   Source
	freed bool
}

// AdaptSource wraps src into a callback table. The Clone, Open and Exists
// slots are left unset.
//
// The returned ioh value must be passed to NewHandle together with the
// callbacks; OpenSource does both.
func AdaptSource(src Source) (ioh any, cb Callbacks) {
	return &sourceAdapter{src: src}, Callbacks{
		Free:   adapterFree,
		Read:   adapterRead,
		Write:  adapterWrite,
		Seek:   adapterSeek,
		IsOpen: adapterIsOpen,
		Size:   adapterSize,
	}
}

func adapted(ioh any) (*sourceAdapter, error) {
	a, ok := ioh.(*sourceAdapter)
	if !ok || a == nil {
		return nil, InvalidArgumentError("io value of type %T was not created by AdaptSource", ioh)
	}
	if a.freed {
		return nil, ProtocolError(ErrHandleFreed, "source access")
	}
	return a, nil
}

// guard turns a panic raised by a source into an I/O fault so that no
// failure crosses the table as a panic.
func guard(op string, err *error) {
	if r := recover(); r != nil {
		*err = IOError(op, fmt.Errorf("source panicked: %v", r))
	}
}

func adapterRead(ioh any, p []byte) (n int, err error) {
	defer guard("read", &err)

	a, err := adapted(ioh)
	if err != nil {
		return 0, err
	}

	n, err = a.src.Read(p)
	if errors.Is(err, io.EOF) {
		// End of source is a short (possibly zero) count, not a failure.
		return n, nil
	}
	if err != nil {
		return n, IOError("read", err)
	}
	return n, nil
}

func adapterWrite(ioh any, p []byte) (n int, err error) {
	defer guard("write", &err)

	a, err := adapted(ioh)
	if err != nil {
		return 0, err
	}

	n, err = a.src.Write(p)
	if err != nil {
		if os.IsPermission(err) {
			return n, IOError("write", fmt.Errorf("%w: %w", ErrPermissionDenied, err))
		}
		return n, IOError("write", err)
	}
	return n, nil
}

func adapterSeek(ioh any, offset int64, whence Whence) (pos int64, err error) {
	defer guard("seek", &err)

	a, err := adapted(ioh)
	if err != nil {
		return -1, err
	}

	pos, err = a.src.Seek(offset, int(whence))
	if err != nil {
		return -1, IOError("seek", err)
	}
	return pos, nil
}

func adapterIsOpen(ioh any) (open bool, err error) {
	defer guard("is open", &err)

	a, err := adapted(ioh)
	if err != nil {
		return false, err
	}
	if r, ok := a.src.(OpenReporter); ok {
		return r.IsOpen(), nil
	}
	return true, nil
}

// statter matches *os.File and *sftp.File.
type statter interface {
	Stat() (os.FileInfo, error)
}

func adapterSize(ioh any) (size int64, err error) {
	defer guard("get size", &err)

	a, err := adapted(ioh)
	if err != nil {
		return 0, err
	}

	switch s := a.src.(type) {
	case Sizer:
		size, err = s.Size()
		if err != nil {
			return 0, IOError("get size", err)
		}
		return size, nil
	case statter:
		info, err := s.Stat()
		if err != nil {
			return 0, IOError("get size", err)
		}
		return info.Size(), nil
	}

	// Fall back to seeking to the end and restoring the position.
	cur, err := a.src.Seek(0, int(SeekCurrent))
	if err != nil {
		return 0, IOError("get size", err)
	}
	end, err := a.src.Seek(0, int(SeekEnd))
	if err != nil {
		return 0, IOError("get size", err)
	}
	if _, err := a.src.Seek(cur, int(SeekStart)); err != nil {
		return 0, IOError("get size", err)
	}
	return end, nil
}

func adapterFree(ioh any) (err error) {
	defer guard("free", &err)

	a, ok := ioh.(*sourceAdapter)
	if !ok || a == nil {
		return InvalidArgumentError("io value of type %T was not created by AdaptSource", ioh)
	}
	if a.freed {
		return nil
	}
	a.freed = true

	if c, ok := a.src.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			return IOError("free", err)
		}
	}
	a.src = nil
	return nil
}

