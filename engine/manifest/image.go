package manifest

import (
	"strings"
	"time"
)

// Record kinds of a manifest image.
const (
	KindVolume = "volume"
	KindEntry  = "entry"
)

// FormatVersion is written into the header of every image.
const FormatVersion = 1

// RootIndex is the MFT index of the root directory.
const RootIndex uint64 = 5

// MaxIndex is the highest entry index. NTFS file references keep the
// index in their low 48 bits.
const MaxIndex uint64 = 1<<48 - 1

// header is the first record of an image.
type header struct {
	Kind               string `json:"kind"`
	Format             int    `json:"format"`
	Name               string `json:"name"`
	SerialNumber       uint64 `json:"serial_number"`
	ClusterBlockSize   uint32 `json:"cluster_block_size"`
	MFTEntrySize       uint32 `json:"mft_entry_size"`
	IndexEntrySize     uint32 `json:"index_entry_size"`
	MajorVersion       uint8  `json:"major_version"`
	MinorVersion       uint8  `json:"minor_version"`
	HasBitLocker       bool   `json:"bitlocker,omitempty"`
	HasShadowSnapshots bool   `json:"shadow_snapshots,omitempty"`
}

// stream is a named data stream stored inline.
type stream struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

// entry is one file entry record. Data is nil when the entry has no
// default data stream.
type entry struct {
	Kind                  string    `json:"kind"`
	Index                 uint64    `json:"index"`
	Sequence              uint16    `json:"sequence"`
	Parent                uint64    `json:"parent"`
	ParentSequence        uint16    `json:"parent_sequence"`
	Name                  string    `json:"name"`
	Directory             bool      `json:"directory,omitempty"`
	AttributeFlags        uint32    `json:"flags"`
	CreationTime          time.Time `json:"created"`
	ModificationTime      time.Time `json:"modified"`
	AccessTime            time.Time `json:"accessed"`
	EntryModificationTime time.Time `json:"entry_modified"`
	Data                  []byte    `json:"data,omitempty"`
	HasData               bool      `json:"has_data,omitempty"`
	Streams               []stream  `json:"streams,omitempty"`
}

func (e *entry) hasDefaultStream() bool {
	return e.HasData || len(e.Data) > 0
}

func (e *entry) streamData(name string) ([]byte, bool) {
	if name == "" {
		return e.Data, e.hasDefaultStream()
	}
	for _, s := range e.Streams {
		if strings.EqualFold(s.Name, name) {
			return s.Data, true
		}
	}
	return nil, false
}
