package omnivolume

import (
	"fmt"
	"sort"
	"sync"
)

var (
	sourcesMu sync.RWMutex
	sources   = make(map[string]SourceFactory)
)

// SourceFactory creates a Source from configuration.
// The config map contains source-specific configuration keys.
type SourceFactory func(config map[string]string) (Source, error)

// Register registers a source factory under the given name.
// It is typically called from init() in source packages.
//
// Register panics if:
//   - factory is nil
//   - a source with the same name is already registered
//
// Example:
//
//	func init() {
//	    omnivolume.Register("mysource", NewFromConfig)
//	}
func Register(name string, factory SourceFactory) {
	sourcesMu.Lock()
	defer sourcesMu.Unlock()

	if factory == nil {
		panic("omnivolume: Register factory is nil")
	}
	if _, dup := sources[name]; dup {
		panic("omnivolume: Register called twice for source " + name)
	}
	sources[name] = factory
}

// NewSource creates a source by name with the given configuration.
// The config map is passed directly to the source's factory function.
//
// NewSource returns ErrUnknownSource if no source with the given name is registered.
//
// Example:
//
//	src, err := omnivolume.NewSource("file", map[string]string{
//	    "path":   "/images/disk.raw",
//	    "access": "read",
//	})
func NewSource(name string, config map[string]string) (Source, error) {
	sourcesMu.RLock()
	factory, ok := sources[name]
	sourcesMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	return factory(config)
}

// OpenNamed creates a source by name and opens a Managed handle over it.
// The handle's access flags come from flags, not from the config map.
func OpenNamed(name string, config map[string]string, flags AccessFlags, opts ...HandleOption) (*Handle, error) {
	src, err := NewSource(name, config)
	if err != nil {
		return nil, err
	}
	return OpenSource(src, flags, opts...)
}

// Sources returns a sorted list of registered source names.
func Sources() []string {
	sourcesMu.RLock()
	defer sourcesMu.RUnlock()

	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered returns true if a source with the given name is registered.
func IsRegistered(name string) bool {
	sourcesMu.RLock()
	defer sourcesMu.RUnlock()
	_, ok := sources[name]
	return ok
}

// Unregister removes a registered source.
// This is primarily useful for testing.
// Returns true if the source was registered, false otherwise.
func Unregister(name string) bool {
	sourcesMu.Lock()
	defer sourcesMu.Unlock()

	if _, ok := sources[name]; ok {
		delete(sources, name)
		return true
	}
	return false
}
