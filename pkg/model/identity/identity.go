// Package identity implements the maps that guarantee at most one live
// instance per component type and primary identifier. Deserialization uses
// the maps to patch existing instances in place instead of creating
// duplicates.
package identity

import (
	"fmt"
	"sync"

	"github.com/diwise/component-model/pkg/model/errors"
)

// Instance is the narrow contract the identity map requires from the
// component instances it tracks.
type Instance interface {
	ComponentName() string
}

// Map tracks the live instances of a single component type, keyed by their
// primary identifier. Maps are safe for concurrent use.
type Map struct {
	mu        sync.Mutex
	instances map[any]Instance
}

func NewMap() *Map {
	return &Map{instances: map[any]Instance{}}
}

// Lookup returns the live instance registered under the given identifier.
func (m *Map) Lookup(id any) (Instance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	instance, exists := m.instances[id]
	return instance, exists
}

// Register maps an identifier to an instance. Registering the same pair again
// is a no-op, but a second instance claiming an already mapped identifier is
// rejected.
func (m *Map) Register(id any, instance Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, exists := m.instances[id]; exists {
		if existing == instance {
			return nil
		}
		return errors.NewDuplicateIdentifierError(
			fmt.Sprintf("identifier '%v' is already mapped to a live instance", id),
		)
	}

	m.instances[id] = instance
	return nil
}

// Unregister removes the mapping for an identifier. Unknown identifiers are
// ignored.
func (m *Map) Unregister(id any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.instances, id)
}

func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.instances)
}

// Registry groups identity maps by component type name. The registry is
// injected into the component layer explicitly, so different stores or
// sessions can keep separate identity scopes.
type Registry struct {
	mu   sync.Mutex
	maps map[string]*Map
}

func NewRegistry() *Registry {
	return &Registry{maps: map[string]*Map{}}
}

// ForComponent returns the identity map of the named component type, creating
// it on first use.
func (r *Registry) ForComponent(componentName string) *Map {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, exists := r.maps[componentName]
	if !exists {
		m = NewMap()
		r.maps[componentName] = m
	}
	return m
}

// Lookup returns the live instance of the named component type registered
// under the given identifier.
func (r *Registry) Lookup(componentName string, id any) (Instance, bool) {
	return r.ForComponent(componentName).Lookup(id)
}
