// Package file provides a local file source for omnivolume.
package file

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/grokify/omnivolume"
)

func init() {
	omnivolume.Register("file", NewFromConfig)
}

// Config holds configuration for the file source.
type Config struct {
	// Path is the file to open. Relative paths are resolved against Root.
	Path string

	// Root is an optional base directory for Path.
	Root string

	// Access selects the open mode. Default: omnivolume.AccessRead.
	Access omnivolume.AccessFlags

	// CreateDirs controls whether parent directories are created when the
	// file is opened with AccessTruncate.
	// Default: true
	CreateDirs bool

	// DirPermissions is the permission mode for created directories.
	// Default: 0755
	DirPermissions os.FileMode

	// FilePermissions is the permission mode for created files.
	// Default: 0644
	FilePermissions os.FileMode
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Access:          omnivolume.AccessRead,
		CreateDirs:      true,
		DirPermissions:  0755,
		FilePermissions: 0644,
	}
}

// Source implements omnivolume.Source over an *os.File.
type Source struct {
	f      *os.File
	path   string
	closed bool
	mu     sync.RWMutex
}

// New opens the file described by config.
func New(config Config) (*Source, error) {
	if config.Path == "" {
		return nil, omnivolume.InvalidArgumentError("file: path is required")
	}
	if config.Access == 0 {
		config.Access = omnivolume.AccessRead
	}
	if config.DirPermissions == 0 {
		config.DirPermissions = 0755
	}
	if config.FilePermissions == 0 {
		config.FilePermissions = 0644
	}

	flag, err := config.Access.OSFlags()
	if err != nil {
		return nil, err
	}

	fullPath := config.Path
	if config.Root != "" && !filepath.IsAbs(fullPath) {
		fullPath = filepath.Join(config.Root, filepath.FromSlash(fullPath))
	}

	// Create parent directories if configured
	if config.Access.Truncates() && config.CreateDirs {
		dir := filepath.Dir(fullPath)
		if err := os.MkdirAll(dir, config.DirPermissions); err != nil {
			return nil, fmt.Errorf("file: creating directory %s: %w", dir, err)
		}
	}

	f, err := os.OpenFile(fullPath, flag, config.FilePermissions)
	if err != nil {
		return nil, translateError(err, fullPath)
	}

	return &Source{f: f, path: fullPath}, nil
}

// Open opens path with the given access flags and default permissions.
func Open(path string, flags omnivolume.AccessFlags) (*Source, error) {
	config := DefaultConfig()
	config.Path = path
	config.Access = flags
	return New(config)
}

// OpenHandle opens path and wraps it in a Managed handle with the same flags.
func OpenHandle(path string, flags omnivolume.AccessFlags, opts ...omnivolume.HandleOption) (*omnivolume.Handle, error) {
	src, err := Open(path, flags)
	if err != nil {
		return nil, err
	}
	return omnivolume.OpenSource(src, flags, opts...)
}

// NewFromConfig creates a new file source from a config map.
// Supported keys:
//   - path: file path (required)
//   - root: base directory for relative paths
//   - access: "read", "write", "rw", "read|write|truncate" (default: "read")
//   - create_dirs: "true" or "false" (default: "true")
func NewFromConfig(configMap map[string]string) (omnivolume.Source, error) {
	config := DefaultConfig()

	if p, ok := configMap["path"]; ok {
		config.Path = p
	}
	if root, ok := configMap["root"]; ok {
		config.Root = root
	}
	if access, ok := configMap["access"]; ok && access != "" {
		flags, err := omnivolume.ParseAccessFlags(access)
		if err != nil {
			return nil, err
		}
		config.Access = flags
	}
	if createDirs, ok := configMap["create_dirs"]; ok {
		config.CreateDirs = createDirs != "false"
	}

	return New(config)
}

// Read reads from the current position.
func (s *Source) Read(p []byte) (int, error) {
	return s.f.Read(p)
}

// Write writes at the current position.
func (s *Source) Write(p []byte) (int, error) {
	return s.f.Write(p)
}

// Seek moves the current position.
func (s *Source) Seek(offset int64, whence int) (int64, error) {
	return s.f.Seek(offset, whence)
}

// Size returns the file size without moving the position.
func (s *Source) Size() (int64, error) {
	info, err := s.f.Stat()
	if err != nil {
		return 0, translateError(err, s.path)
	}
	return info.Size(), nil
}

// IsOpen reports whether Close has not been called yet.
func (s *Source) IsOpen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.closed
}

// Name returns the resolved file path.
func (s *Source) Name() string {
	return s.path
}

// Close closes the file. Closing twice is a no-op.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.f.Close(); err != nil {
		return fmt.Errorf("file: closing %s: %w", s.path, err)
	}
	return nil
}

// translateError converts os errors to omnivolume errors.
func translateError(err error, path string) error {
	if os.IsNotExist(err) {
		return omnivolume.NotFoundError("file %s does not exist", path)
	}
	if os.IsPermission(err) {
		return fmt.Errorf("file %s: %w", path, omnivolume.ErrPermissionDenied)
	}
	return fmt.Errorf("file: opening %s: %w", path, err)
}

// Ensure Source implements the omnivolume capability interfaces
var (
	_ omnivolume.Source       = (*Source)(nil)
	_ omnivolume.Sizer        = (*Source)(nil)
	_ omnivolume.OpenReporter = (*Source)(nil)
)
