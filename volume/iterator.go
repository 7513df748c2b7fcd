package volume

import (
	"fmt"
	"iter"
)

// EntryIterator walks file entries by index, from 0 up to the entry count
// taken when it was created. Entries added or removed later are not seen.
// A failed lookup does not stop the walk. An iterator is not restartable.
//
//	it, err := vol.Entries()
//	for it.Next() {
//	    entry, err := it.Entry(), it.Err()
//	    ...
//	}
type EntryIterator struct {
	vol   *Volume
	count uint64
	next  uint64

	index uint64
	entry *FileEntry
	err   error
}

// IndexError is a failed iterator lookup. It wraps the lookup error, so
// omnivolume.IsNotFound and friends still match it.
type IndexError struct {
	Index uint64
	Err   error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("file entry %d: %v", e.Index, e.Err)
}

func (e *IndexError) Unwrap() error {
	return e.Err
}

// Entries returns a new iterator over all file entries.
func (v *Volume) Entries() (*EntryIterator, error) {
	count, err := v.NumberOfFileEntries()
	if err != nil {
		return nil, err
	}
	return &EntryIterator{vol: v, count: count}, nil
}

// Next looks up the next index and reports whether there was one.
func (it *EntryIterator) Next() bool {
	if it.next >= it.count {
		it.entry, it.err = nil, nil
		return false
	}
	it.index = it.next
	it.next++
	it.entry, it.err = it.vol.FileEntryByIndex(it.index)
	if it.err != nil {
		it.err = &IndexError{Index: it.index, Err: it.err}
	}
	return true
}

// Entry returns the entry found by the last Next, or nil if the lookup failed.
func (it *EntryIterator) Entry() *FileEntry {
	return it.entry
}

// Err returns the lookup error of the last Next as an *IndexError.
func (it *EntryIterator) Err() error {
	return it.err
}

// Index returns the index looked up by the last Next.
func (it *EntryIterator) Index() uint64 {
	return it.index
}

// Len returns the entry count snapshot.
func (it *EntryIterator) Len() uint64 {
	return it.count
}

// All returns the remaining entries as a sequence of (entry, error) pairs.
// A failed lookup yields a nil entry and an *IndexError naming the index;
// it.Index() reports the same index inside the loop body.
func (it *EntryIterator) All() iter.Seq2[*FileEntry, error] {
	return func(yield func(*FileEntry, error) bool) {
		for it.Next() {
			if !yield(it.entry, it.err) {
				return
			}
		}
	}
}
