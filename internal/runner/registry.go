package runner

import "fmt"

// Options configures session creation.
type Options struct {
	// Dir is the test root directory on the local machine.
	Dir string
	// Endpoint is the transport address, when the provider needs one.
	Endpoint string
}

// Factory creates a connected Session.
type Factory func(opts Options) (Session, error)

// ErrUnknownProvider is returned when an unregistered provider is requested.
var ErrUnknownProvider = fmt.Errorf("unknown session provider")

var providers = make(map[string]Factory)

// Register registers a session provider under name.
// Transport packages call this from their init functions.
func Register(name string, factory Factory) {
	providers[name] = factory
}

// New creates a session using the named provider.
// Returns ErrUnknownProvider if no such provider is registered.
func New(name string, opts Options) (Session, error) {
	factory, ok := providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return factory(opts)
}

// Registered returns the names of all registered providers.
func Registered() []string {
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	return names
}
