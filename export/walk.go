package export

import (
	"context"
	"path"
	"strings"

	"github.com/grokify/omnivolume"
	"github.com/grokify/omnivolume/export/filter"
	"github.com/grokify/omnivolume/volume"
)

// item is one entry selected for export.
type item struct {
	// vpath is the volume path, rel the "/" separated path below the
	// export root.
	vpath string
	rel   string
	entry *volume.FileEntry
	info  filter.Entry
	err   error
}

// scan collects the entries below start in directory order, parents
// before children. Entries the filter rejects are counted, not returned;
// a rejected directory is not descended into.
func scan(ctx context.Context, start *volume.FileEntry, startPath string, opts Options) ([]item, int, error) {
	info, err := describe(start, startPath)
	if err != nil {
		return nil, 0, err
	}
	if !info.Directory {
		name, err := start.Name()
		if err != nil {
			return nil, 0, err
		}
		if !opts.Filter.Match(info) {
			return nil, 1, nil
		}
		return []item{{vpath: startPath, rel: name, entry: start, info: info, err: checkName(name)}}, 0, nil
	}

	isRoot, err := start.IsRoot()
	if err != nil {
		return nil, 0, err
	}

	var items []item
	skipped := 0
	var walk func(dir *volume.FileEntry, vdir, rdir string, root bool) error
	walk = func(dir *volume.FileEntry, vdir, rdir string, root bool) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		subs, err := dir.SubEntries()
		if err != nil {
			return err
		}
		for _, sub := range subs {
			name, err := sub.Name()
			if err != nil {
				return err
			}
			if root && !opts.Metafiles && isMetafile(name) {
				skipped++
				continue
			}

			vpath := path.Join(vdir, name)
			rel := path.Join(rdir, name)
			info, err := describe(sub, vpath)
			if err != nil {
				return err
			}
			if !opts.Filter.Match(info) {
				skipped++
				continue
			}

			it := item{vpath: vpath, rel: rel, entry: sub, info: info, err: checkName(name)}
			items = append(items, it)
			if info.Directory && it.err == nil {
				if err := walk(sub, vpath, rel, false); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := walk(start, startPath, "", isRoot); err != nil {
		return nil, 0, err
	}
	return items, skipped, nil
}

// describe reads the fields a filter looks at.
func describe(e *volume.FileEntry, vpath string) (filter.Entry, error) {
	dir, err := e.IsDirectory()
	if err != nil {
		return filter.Entry{}, err
	}
	size, err := e.Size()
	if err != nil {
		return filter.Entry{}, err
	}
	mtime, err := e.ModificationTime()
	if err != nil {
		return filter.Entry{}, err
	}
	flags, err := e.AttributeFlags()
	if err != nil {
		return filter.Entry{}, err
	}
	return filter.Entry{
		Path:             vpath,
		Size:             size,
		ModificationTime: mtime,
		AttributeFlags:   flags,
		Directory:        dir,
	}, nil
}

// isMetafile reports whether a root directory name is an NTFS metafile.
func isMetafile(name string) bool {
	return strings.HasPrefix(name, "$") || name == "."
}

// checkName rejects names that would escape the destination directory.
func checkName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return omnivolume.InvalidArgumentError("unusable entry name %q", name)
	case strings.ContainsAny(name, "/\\\x00"):
		return omnivolume.InvalidArgumentError("entry name %q contains a path separator", name)
	}
	return nil
}

// streamName returns the destination-relative name of a data stream.
func streamName(rel, stream, sep string) string {
	if stream == "" {
		return rel
	}
	return rel + sep + stream
}

// streams lists the data streams of a file that are exported.
func streams(e *volume.FileEntry, alternate bool) ([]*volume.DataStream, error) {
	var out []*volume.DataStream

	has, err := e.HasDefaultDataStream()
	if err != nil {
		return nil, err
	}
	if has {
		ds, err := e.DataStream()
		if err != nil {
			return nil, err
		}
		out = append(out, ds)
	}

	if !alternate {
		return out, nil
	}
	n, err := e.NumberOfAlternateDataStreams()
	if err != nil {
		return nil, err
	}
	for i := range n {
		ds, err := e.AlternateDataStream(i)
		if err != nil {
			return nil, err
		}
		if checkName(ds.Name()) != nil {
			return nil, omnivolume.InvalidArgumentError("unusable stream name %q", ds.Name())
		}
		out = append(out, ds)
	}
	return out, nil
}
