package export

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/grokify/omnivolume"
	"github.com/grokify/omnivolume/source/file"
	"github.com/grokify/omnivolume/volume"
)

// exportContext holds shared state for one export.
type exportContext struct {
	ctx    context.Context
	opts   Options
	bucket *bucket
	logger *slog.Logger
	dstDir string
	result *Result
}

// Export writes the entry at srcPath, and everything below it when it is a
// directory, into dstDir. A file exported from "/Documents" lands at
// dstDir/report.txt; exporting "/" recreates the whole tree.
//
// Failures on single entries are collected in Result.Errors. Export stops
// early, returning the partial result, once more than Options.MaxErrors
// entries failed. The returned error is reserved for failures that make
// the whole export impossible: a closed volume, a missing srcPath, an
// unsupported hash or a cancelled context.
func Export(ctx context.Context, vol *volume.Volume, srcPath, dstDir string, opts Options) (*Result, error) {
	startTime := time.Now()
	result := &Result{DryRun: opts.DryRun}
	logger := opts.logger()

	if opts.Hash != omnivolume.HashNone {
		if omnivolume.NewHash(opts.Hash) == nil {
			return nil, omnivolume.NotSupportedError("hash type " + opts.Hash.String())
		}
		result.Checksums = make(map[string]string)
	}
	if dstDir == "" {
		return nil, omnivolume.InvalidArgumentError("export: destination directory is required")
	}

	srcPath = cleanVolumePath(srcPath)
	start, err := vol.FileEntryByPath(srcPath)
	if err != nil {
		return nil, err
	}

	logger.Info("starting export",
		slog.String("src_path", srcPath),
		slog.String("dst_dir", dstDir),
		slog.Bool("alternate_streams", opts.AlternateStreams),
		slog.Bool("dry_run", opts.DryRun),
	)

	if opts.Progress != nil {
		opts.Progress(Progress{Phase: PhaseScanning, CurrentPath: srcPath})
	}
	items, skipped, err := scan(ctx, start, srcPath, opts)
	if err != nil {
		logger.Error("scanning volume failed", slog.String("path", srcPath), slog.Any("error", err))
		return nil, err
	}
	result.Skipped = skipped
	logger.Debug("scan complete", slog.Int("entries", len(items)), slog.Int("skipped", skipped))

	ectx := &exportContext{
		ctx:    ctx,
		opts:   opts,
		bucket: newBucket(opts.BandwidthLimit),
		logger: logger,
		dstDir: dstDir,
		result: result,
	}

	if !opts.DryRun {
		if err := os.MkdirAll(dstDir, 0o755); err != nil {
			return nil, omnivolume.IOError("create destination", err)
		}
	}

	for _, it := range items {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(startTime)
			return result, err
		}

		if opts.Progress != nil {
			opts.Progress(Progress{
				Phase:         PhaseExporting,
				CurrentPath:   it.vpath,
				BytesExported: result.BytesExported,
				FilesExported: result.Exported,
				TotalFiles:    len(items),
				Errors:        len(result.Errors),
			})
		}

		err := it.err
		if err == nil {
			if it.info.Directory {
				err = ectx.directory(it)
			} else {
				err = ectx.file(it)
			}
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				result.Duration = time.Since(startTime)
				return result, ctxErr
			}
			logger.Warn("exporting entry failed", slog.String("path", it.vpath), slog.Any("error", err))
			result.Errors = append(result.Errors, EntryError{Path: it.vpath, Op: "export", Err: err})
			if len(result.Errors) > opts.MaxErrors {
				logger.Error("too many errors, stopping export", slog.Int("errors", len(result.Errors)))
				break
			}
		}
	}

	result.Duration = time.Since(startTime)
	if opts.Progress != nil {
		opts.Progress(Progress{
			Phase:         PhaseComplete,
			BytesExported: result.BytesExported,
			FilesExported: result.Exported,
			TotalFiles:    len(items),
			Errors:        len(result.Errors),
		})
	}

	logger.Info("export complete",
		slog.Int("exported", result.Exported),
		slog.Int("directories", result.Directories),
		slog.Int("skipped", result.Skipped),
		slog.Int64("bytes", result.BytesExported),
		slog.Int("errors", len(result.Errors)),
		slog.Duration("duration", result.Duration),
	)
	return result, nil
}

// cleanVolumePath returns an absolute, clean volume path.
func cleanVolumePath(p string) string {
	return path.Clean("/" + p)
}

func (e *exportContext) localPath(rel string) string {
	return filepath.Join(e.dstDir, filepath.FromSlash(rel))
}

func (e *exportContext) directory(it item) error {
	e.result.Directories++
	if e.opts.DryRun {
		return nil
	}
	if err := os.MkdirAll(e.localPath(it.rel), 0o755); err != nil {
		return omnivolume.IOError("create directory", err)
	}
	return nil
}

func (e *exportContext) file(it item) error {
	list, err := streams(it.entry, e.opts.AlternateStreams)
	if err != nil {
		return err
	}

	for _, ds := range list {
		rel := streamName(it.rel, ds.Name(), e.opts.separator())
		dst := e.localPath(rel)

		if e.opts.IgnoreExisting {
			if _, err := os.Stat(dst); err == nil {
				e.logger.Debug("skipping existing file", slog.String("path", dst))
				e.result.Skipped++
				continue
			}
		}

		if e.opts.DryRun {
			size, err := ds.Size()
			if err != nil {
				return err
			}
			e.result.Exported++
			e.result.BytesExported += size
			continue
		}

		var n int64
		var sum string
		err := retry(e.ctx, e.opts.Retry, func() error {
			var err error
			n, sum, err = e.copyStream(ds, dst)
			return err
		})
		if err != nil {
			return err
		}

		if e.opts.PreserveTimes {
			if err := e.setTimes(it.entry, dst); err != nil {
				return err
			}
		}

		e.result.Exported++
		e.result.BytesExported += n
		if sum != "" {
			e.result.Checksums[rel] = sum
		}
		e.logger.Debug("exported stream",
			slog.String("path", it.vpath),
			slog.String("stream", ds.Name()),
			slog.Int64("bytes", n),
		)
	}
	return nil
}

// copyStream copies ds from its start into a new file at dst and returns
// the byte count and, when a hash is configured, the checksum.
func (e *exportContext) copyStream(ds *volume.DataStream, dst string) (n int64, sum string, err error) {
	if _, err := ds.Seek(0, io.SeekStart); err != nil {
		return 0, "", err
	}

	src, err := omnivolume.OpenSource(pace(e.ctx, ds, e.bucket), omnivolume.AccessRead, omnivolume.WithLogger(e.logger))
	if err != nil {
		return 0, "", err
	}
	defer func() { _ = src.Free() }()

	out, err := file.OpenHandle(dst, omnivolume.AccessWrite|omnivolume.AccessTruncate,
		omnivolume.WithLogger(e.logger), omnivolume.WithStrictTeardown(true))
	if err != nil {
		return 0, "", err
	}
	defer func() {
		if freeErr := out.Free(); freeErr != nil && err == nil {
			err = freeErr
		}
	}()

	if e.opts.Hash == omnivolume.HashNone {
		n, err = omnivolume.Copy(out, src)
		return n, "", err
	}
	return omnivolume.CopyWithHash(out, src, e.opts.Hash)
}

func (e *exportContext) setTimes(entry *volume.FileEntry, dst string) error {
	mtime, err := entry.ModificationTime()
	if err != nil {
		return err
	}
	atime, err := entry.AccessTime()
	if err != nil {
		return err
	}
	if err := os.Chtimes(dst, atime, mtime); err != nil {
		return omnivolume.IOError("set times", err)
	}
	return nil
}
