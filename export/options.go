// Package export extracts file entries from a volume into a directory.
//
// Export walks a directory tree of an open volume and writes every file's
// default data stream, and optionally its alternate data streams, below a
// destination directory. Verify checks an earlier export against the volume.
//
//	result, err := export.Export(ctx, vol, "/Documents", "/tmp/out", export.Options{
//	    Hash:   omnivolume.HashSHA256,
//	    Logger: slog.Default(),
//	})
//	fmt.Printf("Exported: %d, Skipped: %d\n", result.Exported, result.Skipped)
package export

import (
	"log/slog"
	"time"

	"github.com/grokify/mogo/log/slogutil"

	"github.com/grokify/omnivolume"
	"github.com/grokify/omnivolume/export/filter"
)

// DefaultStreamSeparator joins a file name and an alternate data stream
// name into the exported file name, as in "report.txt:Zone.Identifier".
const DefaultStreamSeparator = ":"

// Options configures Export and Verify.
type Options struct {
	// DryRun reports what would be exported without writing anything.
	DryRun bool

	// IgnoreExisting skips files that already exist in the destination.
	IgnoreExisting bool

	// AlternateStreams also exports named data streams.
	AlternateStreams bool

	// StreamSeparator is placed between file and stream names.
	// Default: DefaultStreamSeparator.
	StreamSeparator string

	// Metafiles also exports the NTFS metafiles ("$MFT", "$Extend", ...)
	// of the root directory.
	Metafiles bool

	// PreserveTimes sets the modification and access times of exported
	// files from the entry.
	PreserveTimes bool

	// Hash computes a checksum of every exported stream. Verify compares
	// content with it. Default: no checksums.
	Hash omnivolume.HashType

	// Filter selects entries. Nil exports everything.
	Filter *filter.Filter

	// MaxErrors is the number of entry errors tolerated before the export
	// stops. 0 stops at the first error.
	MaxErrors int

	// BandwidthLimit caps reads from the volume in bytes per second.
	// 0 means unlimited.
	BandwidthLimit int64

	// Retry retries failed stream copies. Nil or MaxRetries 0 disables it.
	Retry *RetryConfig

	// Progress receives an update per processed entry.
	Progress func(Progress)

	// Logger is used for structured logging. Nil disables logging.
	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slogutil.Null()
}

func (o Options) separator() string {
	if o.StreamSeparator != "" {
		return o.StreamSeparator
	}
	return DefaultStreamSeparator
}

// DefaultOptions returns Options that export default streams only and
// record SHA-256 checksums.
func DefaultOptions() Options {
	return Options{
		Hash:            omnivolume.HashSHA256,
		StreamSeparator: DefaultStreamSeparator,
	}
}

// Phase is a stage of an export.
type Phase string

const (
	PhaseScanning  Phase = "scanning"
	PhaseExporting Phase = "exporting"
	PhaseComplete  Phase = "complete"
)

// Progress reports the state of a running export.
type Progress struct {
	Phase         Phase
	CurrentPath   string
	BytesExported int64
	FilesExported int
	TotalFiles    int
	Errors        int
}

// Result summarizes an export.
type Result struct {
	// Exported counts written streams, Directories created directories.
	Exported    int
	Directories int

	// Skipped counts filtered entries and existing files left alone.
	Skipped int

	BytesExported int64

	// Checksums maps destination-relative paths to hex digests when
	// Options.Hash is set.
	Checksums map[string]string

	Errors   []EntryError
	Duration time.Duration
	DryRun   bool
}

// Success reports whether no entry failed.
func (r *Result) Success() bool {
	return len(r.Errors) == 0
}

// EntryError is a failure on one entry. The export continues past it
// unless MaxErrors is exceeded.
type EntryError struct {
	Path string
	Op   string
	Err  error
}

func (e EntryError) Error() string {
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e EntryError) Unwrap() error {
	return e.Err
}

// CheckResult is the outcome of Verify.
type CheckResult struct {
	// Match lists volume paths whose exported copy has the same content.
	Match []string

	// Differ lists volume paths whose exported copy differs.
	Differ []string

	// Missing lists volume paths that were not exported.
	Missing []string

	Errors []EntryError
}

// InSync reports whether every checked file was exported unchanged.
func (r *CheckResult) InSync() bool {
	return len(r.Differ) == 0 && len(r.Missing) == 0 && len(r.Errors) == 0
}
