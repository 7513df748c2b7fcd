package volume

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/grokify/omnivolume"
)

// AccessMode is the mode a volume is opened in.
type AccessMode uint8

const (
	// ModeRead opens the volume for reading.
	ModeRead AccessMode = 0x01

	// ModeWrite opens the volume for writing. Engines may reject it.
	ModeWrite AccessMode = 0x02
)

// AccessFlags returns the handle access flags matching the mode.
func (m AccessMode) AccessFlags() omnivolume.AccessFlags {
	var f omnivolume.AccessFlags
	if m&ModeRead != 0 {
		f |= omnivolume.AccessRead
	}
	if m&ModeWrite != 0 {
		f |= omnivolume.AccessWrite
	}
	return f
}

func (m AccessMode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	case ModeRead | ModeWrite:
		return "read|write"
	default:
		return fmt.Sprintf("AccessMode(0x%02x)", uint8(m))
	}
}

func modeFromFlags(f omnivolume.AccessFlags) AccessMode {
	var m AccessMode
	if f.CanRead() {
		m |= ModeRead
	}
	if f.CanWrite() {
		m |= ModeWrite
	}
	return m
}

// Metadata describes an opened volume.
type Metadata struct {
	SerialNumber     uint64
	ClusterBlockSize uint32
	MFTEntrySize     uint32
	IndexEntrySize   uint32
	Name             string
	MajorVersion     uint8
	MinorVersion     uint8

	// HasBitLocker reports BitLocker Drive Encryption on the volume.
	HasBitLocker bool

	// HasShadowSnapshots reports Volume Shadow Snapshots on the volume.
	HasShadowSnapshots bool
}

// StreamInfo names one data stream of a record. The default data stream
// has an empty name.
type StreamInfo struct {
	Name string
	Size int64
}

// Record is the engine's view of one file entry.
type Record struct {
	Index          uint64
	Sequence       uint16
	ParentIndex    uint64
	ParentSequence uint16
	Name           string
	Directory      bool
	AttributeFlags uint32

	CreationTime          time.Time
	ModificationTime      time.Time
	AccessTime            time.Time
	EntryModificationTime time.Time

	// HasDefaultStream reports whether the entry has an unnamed data stream.
	HasDefaultStream bool

	// Size is the size of the default data stream.
	Size int64

	// Streams lists the alternate (named) data streams.
	Streams []StreamInfo

	// Children holds the indexes of the sub entries of a directory, in
	// the engine's directory order.
	Children []uint64
}

// Engine is the accessor contract a storage engine implements for Volume.
//
// Engines are created closed. Open or OpenHandle opens them; Close closes
// them; Free releases everything they hold and must be safe to call in any
// state, including after a failed open.
type Engine interface {
	// Open opens the volume image at path. The engine owns whatever
	// handle it creates for it.
	Open(path string, mode AccessMode) error

	// OpenHandle opens the volume stored in h. The engine borrows h.
	OpenHandle(h *omnivolume.Handle, mode AccessMode) error

	Close() error
	Free() error

	Metadata() (Metadata, error)
	NumberOfFileEntries() (uint64, error)
	RootDirectory() (*Record, error)
	FileEntryByIndex(idx uint64) (*Record, error)

	// FileEntryByPath resolves a "/" separated path from the root
	// directory. The path is non-empty.
	FileEntryByPath(path string) (*Record, error)

	// ReadData reads from the named stream of the entry at idx, starting
	// at off. An empty stream name selects the default data stream. A
	// read at or past the end returns 0 and no error.
	ReadData(idx uint64, stream string, p []byte, off int64) (int, error)
}

// Aborter is implemented by engines that can interrupt a running open.
type Aborter interface {
	SignalAbort() error
}

// EngineFactory creates a closed engine.
type EngineFactory func(logger *slog.Logger) (Engine, error)

var (
	enginesMu sync.RWMutex
	engines   = make(map[string]EngineFactory)
)

// RegisterEngine registers an engine factory under the given name.
// It is typically called from init() in engine packages, so importing the
// engine package makes it available:
//
//	import _ "github.com/grokify/omnivolume/engine/manifest"
//
// RegisterEngine panics if factory is nil or name is already registered.
func RegisterEngine(name string, factory EngineFactory) {
	enginesMu.Lock()
	defer enginesMu.Unlock()

	if factory == nil {
		panic("volume: RegisterEngine factory is nil")
	}
	if _, dup := engines[name]; dup {
		panic("volume: RegisterEngine called twice for engine " + name)
	}
	engines[name] = factory
}

// Engines returns a sorted list of registered engine names.
func Engines() []string {
	enginesMu.RLock()
	defer enginesMu.RUnlock()

	names := make([]string, 0, len(engines))
	for name := range engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsEngineRegistered returns true if an engine with the given name is registered.
func IsEngineRegistered(name string) bool {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	_, ok := engines[name]
	return ok
}

// UnregisterEngine removes a registered engine. It is intended for tests.
func UnregisterEngine(name string) bool {
	enginesMu.Lock()
	defer enginesMu.Unlock()

	if _, ok := engines[name]; ok {
		delete(engines, name)
		return true
	}
	return false
}

func newEngine(name string, logger *slog.Logger) (Engine, error) {
	enginesMu.RLock()
	factory, ok := engines[name]
	enginesMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEngine, name)
	}
	return factory(logger)
}
