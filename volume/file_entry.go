package volume

import (
	"strings"
	"time"
	"unicode/utf16"

	"github.com/grokify/omnivolume"
)

// NTFS file attribute flags as reported by AttributeFlags.
const (
	AttributeReadOnly          uint32 = 0x00000001
	AttributeHidden            uint32 = 0x00000002
	AttributeSystem            uint32 = 0x00000004
	AttributeDirectory         uint32 = 0x00000010
	AttributeArchive           uint32 = 0x00000020
	AttributeNormal            uint32 = 0x00000080
	AttributeTemporary         uint32 = 0x00000100
	AttributeSparseFile        uint32 = 0x00000200
	AttributeReparsePoint      uint32 = 0x00000400
	AttributeCompressed        uint32 = 0x00000800
	AttributeOffline           uint32 = 0x00001000
	AttributeNotContentIndexed uint32 = 0x00002000
	AttributeEncrypted         uint32 = 0x00004000
)

const sequenceShift = 48

// FileEntry is one file, directory or metafile of a volume. It borrows
// the volume; every accessor fails with omnivolume.ErrVolumeClosed once the
// volume is closed.
type FileEntry struct {
	vol *Volume
	rec *Record
}

func newFileEntry(v *Volume, rec *Record) *FileEntry {
	return &FileEntry{vol: v, rec: rec}
}

func (e *FileEntry) check(op string) error {
	return e.vol.check(op)
}

// Index returns the MFT entry index.
func (e *FileEntry) Index() (uint64, error) {
	if err := e.check("get file entry index"); err != nil {
		return 0, err
	}
	return e.rec.Index, nil
}

// FileReference returns the index in the low 48 bits and the sequence
// number in the high 16 bits.
func (e *FileEntry) FileReference() (uint64, error) {
	if err := e.check("get file reference"); err != nil {
		return 0, err
	}
	return fileReference(e.rec.Index, e.rec.Sequence), nil
}

// ParentFileReference returns the file reference of the parent directory.
func (e *FileEntry) ParentFileReference() (uint64, error) {
	if err := e.check("get parent file reference"); err != nil {
		return 0, err
	}
	return fileReference(e.rec.ParentIndex, e.rec.ParentSequence), nil
}

func fileReference(idx uint64, seq uint16) uint64 {
	return idx&(1<<sequenceShift-1) | uint64(seq)<<sequenceShift
}

// Name returns the entry name.
func (e *FileEntry) Name() (string, error) {
	if err := e.check("get name"); err != nil {
		return "", err
	}
	return e.rec.Name, nil
}

// UTF16Name returns the entry name as UTF-16 code units.
func (e *FileEntry) UTF16Name() ([]uint16, error) {
	if err := e.check("get UTF-16 name"); err != nil {
		return nil, err
	}
	return utf16.Encode([]rune(e.rec.Name)), nil
}

// IsDirectory reports whether the entry is a directory.
func (e *FileEntry) IsDirectory() (bool, error) {
	if err := e.check("is directory"); err != nil {
		return false, err
	}
	return e.rec.Directory, nil
}

// IsRoot reports whether the entry is its own parent.
func (e *FileEntry) IsRoot() (bool, error) {
	if err := e.check("is root"); err != nil {
		return false, err
	}
	return e.rec.Directory && e.rec.ParentIndex == e.rec.Index, nil
}

// Size returns the size of the default data stream.
func (e *FileEntry) Size() (int64, error) {
	if err := e.check("get size"); err != nil {
		return 0, err
	}
	return e.rec.Size, nil
}

// AttributeFlags returns the NTFS file attribute flags.
func (e *FileEntry) AttributeFlags() (uint32, error) {
	if err := e.check("get attribute flags"); err != nil {
		return 0, err
	}
	return e.rec.AttributeFlags, nil
}

// CreationTime returns the creation time.
func (e *FileEntry) CreationTime() (time.Time, error) {
	if err := e.check("get creation time"); err != nil {
		return time.Time{}, err
	}
	return e.rec.CreationTime, nil
}

// ModificationTime returns the last content modification time.
func (e *FileEntry) ModificationTime() (time.Time, error) {
	if err := e.check("get modification time"); err != nil {
		return time.Time{}, err
	}
	return e.rec.ModificationTime, nil
}

// AccessTime returns the last access time.
func (e *FileEntry) AccessTime() (time.Time, error) {
	if err := e.check("get access time"); err != nil {
		return time.Time{}, err
	}
	return e.rec.AccessTime, nil
}

// EntryModificationTime returns the last MFT entry modification time.
func (e *FileEntry) EntryModificationTime() (time.Time, error) {
	if err := e.check("get entry modification time"); err != nil {
		return time.Time{}, err
	}
	return e.rec.EntryModificationTime, nil
}

// Parent returns the parent directory. The root directory is its own parent.
func (e *FileEntry) Parent() (*FileEntry, error) {
	if err := e.check("get parent"); err != nil {
		return nil, err
	}
	return e.vol.FileEntryByIndex(e.rec.ParentIndex)
}

// NumberOfSubEntries returns the number of entries in a directory.
func (e *FileEntry) NumberOfSubEntries() (int, error) {
	if err := e.check("get number of sub entries"); err != nil {
		return 0, err
	}
	return len(e.rec.Children), nil
}

// SubEntry returns the sub entry at position i.
func (e *FileEntry) SubEntry(i int) (*FileEntry, error) {
	if err := e.check("get sub entry"); err != nil {
		return nil, err
	}
	if i < 0 || i >= len(e.rec.Children) {
		return nil, omnivolume.NotFoundError("no sub entry %d in %q (have %d)", i, e.rec.Name, len(e.rec.Children))
	}
	return e.vol.FileEntryByIndex(e.rec.Children[i])
}

// SubEntryByName returns the sub entry with the given name, compared
// case-insensitively.
func (e *FileEntry) SubEntryByName(name string) (*FileEntry, error) {
	if err := e.check("get sub entry by name"); err != nil {
		return nil, err
	}
	for _, idx := range e.rec.Children {
		sub, err := e.vol.FileEntryByIndex(idx)
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(sub.rec.Name, name) {
			return sub, nil
		}
	}
	return nil, omnivolume.NotFoundError("no sub entry %q in %q", name, e.rec.Name)
}

// SubEntries returns all sub entries in directory order.
func (e *FileEntry) SubEntries() ([]*FileEntry, error) {
	if err := e.check("get sub entries"); err != nil {
		return nil, err
	}
	subs := make([]*FileEntry, 0, len(e.rec.Children))
	for _, idx := range e.rec.Children {
		sub, err := e.vol.FileEntryByIndex(idx)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// HasDefaultDataStream reports whether the entry has an unnamed data stream.
func (e *FileEntry) HasDefaultDataStream() (bool, error) {
	if err := e.check("has default data stream"); err != nil {
		return false, err
	}
	return e.rec.HasDefaultStream, nil
}

// DataStream returns the default data stream.
func (e *FileEntry) DataStream() (*DataStream, error) {
	if err := e.check("get data stream"); err != nil {
		return nil, err
	}
	if !e.rec.HasDefaultStream {
		return nil, omnivolume.NotFoundError("%q has no default data stream", e.rec.Name)
	}
	return newDataStream(e.vol, e.rec.Index, "", e.rec.Size), nil
}

// NumberOfAlternateDataStreams returns the number of named data streams.
func (e *FileEntry) NumberOfAlternateDataStreams() (int, error) {
	if err := e.check("get number of alternate data streams"); err != nil {
		return 0, err
	}
	return len(e.rec.Streams), nil
}

// AlternateDataStream returns the named data stream at position i.
func (e *FileEntry) AlternateDataStream(i int) (*DataStream, error) {
	if err := e.check("get alternate data stream"); err != nil {
		return nil, err
	}
	if i < 0 || i >= len(e.rec.Streams) {
		return nil, omnivolume.NotFoundError("no alternate data stream %d in %q (have %d)", i, e.rec.Name, len(e.rec.Streams))
	}
	s := e.rec.Streams[i]
	return newDataStream(e.vol, e.rec.Index, s.Name, s.Size), nil
}

// AlternateDataStreamByName returns the named data stream, compared
// case-insensitively.
func (e *FileEntry) AlternateDataStreamByName(name string) (*DataStream, error) {
	if err := e.check("get alternate data stream by name"); err != nil {
		return nil, err
	}
	for _, s := range e.rec.Streams {
		if strings.EqualFold(s.Name, name) {
			return newDataStream(e.vol, e.rec.Index, s.Name, s.Size), nil
		}
	}
	return nil, omnivolume.NotFoundError("no alternate data stream %q in %q", name, e.rec.Name)
}
