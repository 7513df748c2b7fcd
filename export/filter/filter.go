// Package filter selects the file entries an export processes.
//
// Patterns use path.Match syntax against the volume path of an entry
// ("/Documents/report.txt") and against its name. Matching ignores case,
// like NTFS name lookups do.
//
//	f := filter.New(
//	    filter.Include("*.txt"),
//	    filter.Exclude("/$Extend/**"),
//	    filter.ExcludeAttributes(volume.AttributeSystem),
//	    filter.MaxSize(100 * filter.MB),
//	)
package filter

import (
	"bufio"
	"path"
	"strings"
	"time"

	"github.com/grokify/omnivolume"
	"github.com/grokify/omnivolume/source/file"
)

// Size units for MinSize and MaxSize.
const (
	KB = 1024
	MB = 1024 * KB
	GB = 1024 * MB
)

// Entry is the part of a file entry a filter looks at.
type Entry struct {
	// Path is the "/" separated volume path.
	Path string

	Size             int64
	ModificationTime time.Time
	AttributeFlags   uint32
	Directory        bool
}

type kind int

const (
	kindInclude kind = iota
	kindExclude
	kindMinSize
	kindMaxSize
	kindModifiedAfter
	kindModifiedBefore
	kindExcludeAttributes
)

type rule struct {
	kind    kind
	pattern string
	size    int64
	time    time.Time
	mask    uint32
}

// Filter decides whether an entry is exported. A nil Filter matches
// everything.
type Filter struct {
	rules []rule
}

// Option adds a rule to a Filter.
type Option func(*Filter)

// New creates a Filter from rules.
func New(opts ...Option) *Filter {
	f := &Filter{}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Include keeps only entries matching at least one include pattern.
// Directories are never dropped by include patterns so that their
// contents can still be reached.
func Include(pattern string) Option {
	return func(f *Filter) {
		f.rules = append(f.rules, rule{kind: kindInclude, pattern: strings.ToLower(pattern)})
	}
}

// Exclude drops entries matching pattern. Excludes win over includes.
func Exclude(pattern string) Option {
	return func(f *Filter) {
		f.rules = append(f.rules, rule{kind: kindExclude, pattern: strings.ToLower(pattern)})
	}
}

// MinSize drops files smaller than size bytes.
func MinSize(size int64) Option {
	return func(f *Filter) {
		f.rules = append(f.rules, rule{kind: kindMinSize, size: size})
	}
}

// MaxSize drops files larger than size bytes.
func MaxSize(size int64) Option {
	return func(f *Filter) {
		f.rules = append(f.rules, rule{kind: kindMaxSize, size: size})
	}
}

// ModifiedAfter drops files last modified before t.
func ModifiedAfter(t time.Time) Option {
	return func(f *Filter) {
		f.rules = append(f.rules, rule{kind: kindModifiedAfter, time: t})
	}
}

// ModifiedBefore drops files last modified after t.
func ModifiedBefore(t time.Time) Option {
	return func(f *Filter) {
		f.rules = append(f.rules, rule{kind: kindModifiedBefore, time: t})
	}
}

// ExcludeAttributes drops entries with any of the attribute bits in mask,
// for example volume.AttributeHidden|volume.AttributeSystem.
func ExcludeAttributes(mask uint32) Option {
	return func(f *Filter) {
		f.rules = append(f.rules, rule{kind: kindExcludeAttributes, mask: mask})
	}
}

// FromFile loads rules from a rules file. Lines starting with "+ " are
// includes, lines starting with "- " or without a prefix are excludes.
// Empty lines and lines starting with # are skipped.
//
//	# only text documents
//	+ *.txt
//	- /$Extend/**
func FromFile(filePath string) (Option, error) {
	src, err := file.Open(filePath, omnivolume.AccessRead)
	if err != nil {
		return nil, err
	}
	defer func() { _ = src.Close() }()

	var opts []Option
	scanner := bufio.NewScanner(src)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "" || strings.HasPrefix(line, "#"):
			continue
		case strings.HasPrefix(line, "+ "):
			opts = append(opts, Include(strings.TrimSpace(line[2:])))
		case strings.HasPrefix(line, "- "):
			opts = append(opts, Exclude(strings.TrimSpace(line[2:])))
		default:
			opts = append(opts, Exclude(line))
		}
		if _, err := path.Match(strings.TrimLeft(line, "+- "), ""); err != nil {
			return nil, omnivolume.InvalidArgumentError("filter: %s line %d: bad pattern %q", filePath, n, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return func(f *Filter) {
		for _, opt := range opts {
			opt(f)
		}
	}, nil
}

// Match reports whether e passes the filter.
func (f *Filter) Match(e Entry) bool {
	if f.IsEmpty() {
		return true
	}

	p := strings.ToLower(e.Path)

	if !e.Directory {
		hasIncludes, included := false, false
		for _, r := range f.rules {
			if r.kind == kindInclude {
				hasIncludes = true
				included = included || matchPattern(r.pattern, p)
			}
		}
		if hasIncludes && !included {
			return false
		}
	}

	for _, r := range f.rules {
		switch r.kind {
		case kindExclude:
			if matchPattern(r.pattern, p) {
				return false
			}
		case kindExcludeAttributes:
			if e.AttributeFlags&r.mask != 0 {
				return false
			}
		}
		if e.Directory {
			continue
		}
		switch r.kind {
		case kindMinSize:
			if e.Size < r.size {
				return false
			}
		case kindMaxSize:
			if e.Size > r.size {
				return false
			}
		case kindModifiedAfter:
			if e.ModificationTime.Before(r.time) {
				return false
			}
		case kindModifiedBefore:
			if e.ModificationTime.After(r.time) {
				return false
			}
		}
	}
	return true
}

// MatchPath matches on the path alone.
func (f *Filter) MatchPath(p string) bool {
	return f.Match(Entry{Path: p})
}

// IsEmpty reports whether the filter has no rules.
func (f *Filter) IsEmpty() bool {
	return f == nil || len(f.rules) == 0
}

// matchPattern matches pattern against the full path and the last path
// element. A "/**" suffix matches everything below a directory.
func matchPattern(pattern, p string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/**"); ok {
		return p == prefix || strings.HasPrefix(p, prefix+"/")
	}
	if ok, _ := path.Match(pattern, p); ok {
		return true
	}
	ok, _ := path.Match(pattern, path.Base(p))
	return ok
}
