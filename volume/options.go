package volume

import (
	"log/slog"

	"github.com/grokify/mogo/log/slogutil"
)

// DefaultEngine is the engine used when no WithEngine option is given.
const DefaultEngine = "manifest"

// Option configures Open, OpenHandle and OpenSource.
type Option func(*Config)

// Config holds configuration for opening a volume.
type Config struct {
	// Engine is the registered engine name. Default: DefaultEngine.
	Engine string

	// Logger receives lifecycle events and teardown failures.
	// If nil, no logging is performed.
	Logger *slog.Logger

	// StrictTeardown makes Close return engine free failures instead of
	// only logging them.
	StrictTeardown bool
}

// WithEngine selects the storage engine by registered name.
func WithEngine(name string) Option {
	return func(c *Config) {
		c.Engine = name
	}
}

// WithLogger sets the logger used by the volume and its engine.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithStrictTeardown controls whether Close reports free failures.
func WithStrictTeardown(strict bool) Option {
	return func(c *Config) {
		c.StrictTeardown = strict
	}
}

// ApplyOptions applies options to a Config with defaults filled in.
func ApplyOptions(opts ...Option) *Config {
	config := &Config{Engine: DefaultEngine}
	for _, opt := range opts {
		opt(config)
	}
	if config.Logger == nil {
		config.Logger = slogutil.Null()
	}
	return config
}
