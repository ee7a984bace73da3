// Package factory provides named registration and construction of
// storagedriver.Adapter implementations, mirroring the registration pattern
// a registry uses to pick a storage backend by configuration name.
package factory

import (
	"fmt"

	storagedriver "github.com/radium-fs/radium-fs/storagedriver"
)

// adapterFactories stores the mapping between adapter names and their
// factories.
var adapterFactories = make(map[string]AdapterFactory)

// AdapterFactory constructs a storagedriver.Adapter from a parameter bag.
// Adapter implementations call Register() with a factory to make
// themselves available by name.
type AdapterFactory interface {
	Create(parameters map[string]interface{}) (storagedriver.Adapter, error)
}

// Register makes an adapter available by the provided name. Panics if name
// is already registered or factory is nil — this only ever happens during
// package init, so a panic surfaces the programming error immediately.
func Register(name string, factory AdapterFactory) {
	if factory == nil {
		panic("factory: nil AdapterFactory")
	}
	if _, registered := adapterFactories[name]; registered {
		panic(fmt.Sprintf("factory: adapter %q already registered", name))
	}
	adapterFactories[name] = factory
}

// Create constructs a new Adapter with the given registered name and
// parameters.
func Create(name string, parameters map[string]interface{}) (storagedriver.Adapter, error) {
	f, ok := adapterFactories[name]
	if !ok {
		return nil, InvalidAdapterError{Name: name}
	}
	return f.Create(parameters)
}

// InvalidAdapterError records an attempt to construct an unregistered
// adapter.
type InvalidAdapterError struct {
	Name string
}

func (err InvalidAdapterError) Error() string {
	return fmt.Sprintf("factory: adapter not registered: %s", err.Name)
}
