// Package device provides a CPU-backed reference Device collaborator
// and a small named-factory registry, adapted from the render backend
// registry pattern (register/get/default by name) so callers can
// select a device implementation by string without importing its
// package directly.
package device

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gogpu/teximage"
)

// Factory constructs a Device on demand.
type Factory func() (teximage.Device, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
	defaultName string
)

// Register adds a named factory to the registry. The first
// registration becomes the default unless SetDefault is called
// explicitly.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
	if defaultName == "" {
		defaultName = name
	}
}

// Unregister removes name from the registry.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, name)
	if defaultName == name {
		defaultName = ""
	}
}

// Available lists every registered factory name, sorted.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// IsRegistered reports whether name has a registered factory.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[name]
	return ok
}

// Get constructs the device registered under name.
func Get(name string) (teximage.Device, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("device: %q is not registered (available: %v)", name, Available())
	}
	return f()
}

// SetDefault changes which registered name Default() resolves to.
func SetDefault(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	defaultName = name
}

// Default constructs the current default device.
func Default() (teximage.Device, error) {
	registryMu.RLock()
	name := defaultName
	registryMu.RUnlock()
	if name == "" {
		return nil, fmt.Errorf("device: no default registered")
	}
	return Get(name)
}

// MustDefault is like Default but panics on error; intended for
// package init and command-line entry points, not library code.
func MustDefault() teximage.Device {
	d, err := Default()
	if err != nil {
		panic(err)
	}
	return d
}

func init() {
	Register("cpu", func() (teximage.Device, error) { return NewCPU(CPUOptions{}), nil })
}
