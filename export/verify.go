package export

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/grokify/omnivolume"
	"github.com/grokify/omnivolume/source/file"
	"github.com/grokify/omnivolume/volume"
)

// Verify compares an export in dstDir with the volume. It selects entries
// like Export does with the same options and compares every exported
// stream by size and then by content hash. Options.Hash picks the hash;
// SHA-256 is used when it is unset.
func Verify(ctx context.Context, vol *volume.Volume, srcPath, dstDir string, opts Options) (*CheckResult, error) {
	hashType := opts.Hash
	if hashType == omnivolume.HashNone {
		hashType = omnivolume.HashSHA256
	}
	if omnivolume.NewHash(hashType) == nil {
		return nil, omnivolume.NotSupportedError("hash type " + hashType.String())
	}
	logger := opts.logger()

	srcPath = cleanVolumePath(srcPath)
	start, err := vol.FileEntryByPath(srcPath)
	if err != nil {
		return nil, err
	}
	items, _, err := scan(ctx, start, srcPath, opts)
	if err != nil {
		return nil, err
	}

	e := &exportContext{ctx: ctx, opts: opts, logger: logger, dstDir: dstDir}
	result := &CheckResult{}

	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if it.err != nil {
			result.Errors = append(result.Errors, EntryError{Path: it.vpath, Op: "verify", Err: it.err})
			continue
		}
		if it.info.Directory {
			continue
		}

		list, err := streams(it.entry, opts.AlternateStreams)
		if err != nil {
			result.Errors = append(result.Errors, EntryError{Path: it.vpath, Op: "verify", Err: err})
			continue
		}
		for _, ds := range list {
			rel := streamName(it.rel, ds.Name(), opts.separator())
			label := streamName(it.vpath, ds.Name(), opts.separator())

			same, err := e.compare(ds, e.localPath(rel), hashType)
			switch {
			case omnivolume.IsNotFound(err):
				result.Missing = append(result.Missing, label)
			case err != nil:
				result.Errors = append(result.Errors, EntryError{Path: label, Op: "verify", Err: err})
			case same:
				result.Match = append(result.Match, label)
			default:
				result.Differ = append(result.Differ, label)
			}
		}
	}

	logger.Info("verify complete",
		slog.Int("match", len(result.Match)),
		slog.Int("differ", len(result.Differ)),
		slog.Int("missing", len(result.Missing)),
		slog.Int("errors", len(result.Errors)),
	)
	return result, nil
}

// compare reports whether the file at dst holds the content of ds. It
// returns a not-found error when dst does not exist.
func (e *exportContext) compare(ds *volume.DataStream, dst string, hashType omnivolume.HashType) (bool, error) {
	info, err := os.Stat(dst)
	if os.IsNotExist(err) {
		return false, omnivolume.NotFoundError("%s was not exported", dst)
	}
	if err != nil {
		return false, omnivolume.IOError("stat", err)
	}
	size, err := ds.Size()
	if err != nil {
		return false, err
	}
	if info.Size() != size {
		return false, nil
	}

	if _, err := ds.Seek(0, io.SeekStart); err != nil {
		return false, err
	}
	want, err := omnivolume.HashReader(ds, hashType)
	if err != nil {
		return false, err
	}

	h, err := file.OpenHandle(dst, omnivolume.AccessRead, omnivolume.WithLogger(e.logger))
	if err != nil {
		return false, err
	}
	defer func() { _ = h.Free() }()

	got, err := omnivolume.HashHandle(h, hashType)
	if err != nil {
		return false, err
	}
	return got == want, nil
}
