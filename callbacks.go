package omnivolume

// Callbacks is the backend callback table a Handle dispatches through.
//
// Every slot receives the opaque ioh value given to NewHandle. Only the
// callbacks that created that value may type-assert it. Read and Seek are
// required; a nil optional slot signals "not supported" (see each field).
//
// Read and Write return the number of bytes transferred. A zero count from
// Read means end of source, not failure; failures are reported through the
// error only.
type Callbacks struct {
	// Free releases ioh. Invoked at most once, and only for Managed handles.
	Free func(ioh any) error

	// Clone duplicates ioh into an independent value. Nil: Handle.Clone fails
	// with ErrNotSupported.
	Clone func(ioh any) (any, error)

	// Open prepares ioh for access with flags. Nil: ioh is always open.
	Open func(ioh any, flags AccessFlags) error

	// Close undoes Open. Nil: nothing to close.
	Close func(ioh any) error

	// Read reads up to len(p) bytes at the current position.
	Read func(ioh any, p []byte) (int, error)

	// Write writes p at the current position. Nil: writes fail with ErrNotSupported.
	Write func(ioh any, p []byte) (int, error)

	// Seek moves the position and returns the new absolute offset.
	Seek func(ioh any, offset int64, whence Whence) (int64, error)

	// Exists reports whether the backing data exists. Nil: ErrNotSupported.
	Exists func(ioh any) (bool, error)

	// IsOpen reports readiness without performing I/O. Nil: the handle's own
	// open state is reported.
	IsOpen func(ioh any) (bool, error)

	// Size returns the total length without moving the position.
	// Nil: ErrNotSupported.
	Size func(ioh any) (int64, error)
}

func (cb Callbacks) validate() error {
	if cb.Read == nil {
		return InvalidArgumentError("read callback is required")
	}
	if cb.Seek == nil {
		return InvalidArgumentError("seek callback is required")
	}
	return nil
}

// Capabilities describes which optional slots of a handle's table are set.
// Use this to check what operations are supported before calling them.
type Capabilities struct {
	// Clone indicates Handle.Clone is available.
	Clone bool

	// Open indicates the source has an explicit open step.
	Open bool

	// Close indicates the source has an explicit close step.
	Close bool

	// Write indicates the table can write. Access flags still apply.
	Write bool

	// Exists indicates Handle.Exists is available.
	Exists bool

	// IsOpen indicates the source reports its own readiness.
	IsOpen bool

	// Size indicates Handle.Size is available.
	Size bool

	// Free indicates the table releases its source on free.
	Free bool
}

func (cb Callbacks) capabilities() Capabilities {
	return Capabilities{
		Clone:  cb.Clone != nil,
		Open:   cb.Open != nil,
		Close:  cb.Close != nil,
		Write:  cb.Write != nil,
		Exists: cb.Exists != nil,
		IsOpen: cb.IsOpen != nil,
		Size:   cb.Size != nil,
		Free:   cb.Free != nil,
	}
}
