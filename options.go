package omnivolume

import (
	"log/slog"

	"github.com/grokify/mogo/log/slogutil"
)

// HandleOption configures a handle created by NewHandle or OpenSource.
type HandleOption func(*HandleConfig)

// HandleConfig holds configuration for creating a handle.
type HandleConfig struct {
	// Logger receives lifecycle events and teardown failures.
	// If nil, no logging is performed.
	Logger *slog.Logger

	// StrictTeardown makes Free return close/free failures instead of only
	// logging them. Intended for development and tests.
	StrictTeardown bool

	// TrackOffsetsRead records the offset and size of every read.
	TrackOffsetsRead bool
}

// WithLogger sets the logger used by the handle.
func WithLogger(logger *slog.Logger) HandleOption {
	return func(c *HandleConfig) {
		c.Logger = logger
	}
}

// WithStrictTeardown controls whether Free reports teardown failures to the caller.
func WithStrictTeardown(strict bool) HandleOption {
	return func(c *HandleConfig) {
		c.StrictTeardown = strict
	}
}

// WithTrackOffsetsRead enables read offset tracking from the first read on.
func WithTrackOffsetsRead(track bool) HandleOption {
	return func(c *HandleConfig) {
		c.TrackOffsetsRead = track
	}
}

// ApplyHandleOptions applies options to a HandleConfig.
func ApplyHandleOptions(opts ...HandleOption) *HandleConfig {
	config := &HandleConfig{}
	for _, opt := range opts {
		opt(config)
	}
	return config
}

func (c *HandleConfig) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slogutil.Null()
}
