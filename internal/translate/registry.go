package translate

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Options carries backend settings from configuration.
type Options struct {
	// Model is the backend-specific model name.
	Model string
	// APIKey authenticates against hosted backends.
	APIKey string
	// Command is the argv of an external translator.
	Command []string
	// MaxTokens bounds a single response of hosted backends.
	MaxTokens int64
	// Timeout bounds every call; zero leaves calls unbounded.
	Timeout time.Duration
}

// Constructor creates a Translator from options.
// Implementations register themselves with the registry using Register().
type Constructor func(opts Options) (Translator, error)

// registry maps backend names to their constructors
var (
	registry      = make(map[string]Constructor)
	registryMutex sync.RWMutex
)

// Register registers a backend constructor.
// This is called from init() functions of the backend files.
//
// Example:
//
//	func init() {
//	    Register("passthrough", newPassthrough)
//	}
func Register(name string, constructor Constructor) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if constructor == nil {
		panic(fmt.Sprintf("translate: Register constructor is nil for backend %s", name))
	}

	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("translate: Register called twice for backend %s", name))
	}

	registry[name] = constructor
}

// New creates the named backend.
func New(name string, opts Options) (Translator, error) {
	registryMutex.RLock()
	constructor := registry[name]
	registryMutex.RUnlock()

	if constructor == nil {
		return nil, fmt.Errorf("unknown translation backend %q (registered: %v)", name, Backends())
	}
	t, err := constructor(opts)
	if err != nil {
		return nil, err
	}
	return WithTimeout(t, opts.Timeout), nil
}

// IsRegistered returns true if a constructor is registered for the name.
func IsRegistered(name string) bool {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	_, exists := registry[name]
	return exists
}

// Backends returns the registered backend names, sorted.
func Backends() []string {
	registryMutex.RLock()
	defer registryMutex.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
