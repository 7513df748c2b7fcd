package omnivolume

import (
	"io"
	"os"
	"strings"
)

// AccessFlags is the access mode bit set of a handle.
//
//	bit 1  read access
//	bit 2  write access
//	bit 3  truncate an existing source on write
//	bit 4-8 not used
type AccessFlags uint8

const (
	// AccessRead grants read access.
	AccessRead AccessFlags = 0x01

	// AccessWrite grants write access.
	AccessWrite AccessFlags = 0x02

	// AccessTruncate truncates an existing source when it is opened for writing.
	AccessTruncate AccessFlags = 0x04

	// AccessReadWrite grants read and write access.
	AccessReadWrite = AccessRead | AccessWrite

	accessMask = AccessRead | AccessWrite | AccessTruncate
)

// CanRead reports whether the read bit is set.
func (f AccessFlags) CanRead() bool { return f&AccessRead != 0 }

// CanWrite reports whether the write bit is set.
func (f AccessFlags) CanWrite() bool { return f&AccessWrite != 0 }

// Truncates reports whether the truncate bit is set.
func (f AccessFlags) Truncates() bool { return f&AccessTruncate != 0 }

// Valid reports whether only defined bits are set and at least one of
// read or write is requested.
func (f AccessFlags) Valid() bool {
	return f&^accessMask == 0 && f&(AccessRead|AccessWrite) != 0
}

func (f AccessFlags) String() string {
	var parts []string
	if f.CanRead() {
		parts = append(parts, "read")
	}
	if f.CanWrite() {
		parts = append(parts, "write")
	}
	if f.Truncates() {
		parts = append(parts, "truncate")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// OSFlags maps the flags onto os.OpenFile flags. Truncate also creates a
// missing file and requires write access.
func (f AccessFlags) OSFlags() (int, error) {
	if !f.Valid() {
		return 0, InvalidArgumentError("invalid access flags 0x%02x", uint8(f))
	}

	var flag int
	switch {
	case f.CanRead() && f.CanWrite():
		flag = os.O_RDWR
	case f.CanWrite():
		flag = os.O_WRONLY
	default:
		flag = os.O_RDONLY
	}

	if f.Truncates() {
		if !f.CanWrite() {
			return 0, InvalidArgumentError("truncate requires write access")
		}
		flag |= os.O_CREATE | os.O_TRUNC
	}
	return flag, nil
}

// ParseAccessFlags parses a "read", "write", "rw" or "read|write|truncate"
// style string as used in source config maps.
func ParseAccessFlags(s string) (AccessFlags, error) {
	var f AccessFlags
	for _, part := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == '|' || r == ',' || r == '+'
	}) {
		switch strings.TrimSpace(part) {
		case "r", "read":
			f |= AccessRead
		case "w", "write":
			f |= AccessWrite
		case "rw", "readwrite":
			f |= AccessReadWrite
		case "t", "truncate":
			f |= AccessTruncate
		default:
			return 0, InvalidArgumentError("unknown access flag %q", part)
		}
	}
	if !f.Valid() {
		return 0, InvalidArgumentError("access flags %q request neither read nor write", s)
	}
	return f, nil
}

// Whence selects the reference point of a seek. The values match io.Seek*.
type Whence int

const (
	// SeekStart seeks relative to the start of the source.
	SeekStart Whence = io.SeekStart
	// SeekCurrent seeks relative to the current offset.
	SeekCurrent Whence = io.SeekCurrent
	// SeekEnd seeks relative to the end of the source.
	SeekEnd Whence = io.SeekEnd
)

func (w Whence) valid() bool {
	return w == SeekStart || w == SeekCurrent || w == SeekEnd
}

// Ownership states whether a handle destroys its source when it is freed.
type Ownership uint8

const (
	// NonManaged leaves the source to the caller; Free never invokes the Free slot.
	NonManaged Ownership = iota

	// Managed makes the handle responsible for releasing the source.
	Managed
)

func (o Ownership) String() string {
	if o == Managed {
		return "managed"
	}
	return "non-managed"
}
