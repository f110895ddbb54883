package adapter

import (
	"fmt"
	"sync"

	"github.com/insightloop/core/pkg/models"
)

// Registry is a thread-safe, table-driven map of datasource type to the
// Factory that builds adapters of that type. The map is guarded by an
// RWMutex and Register updates it in place.
type Registry struct {
	mu        sync.RWMutex
	factories map[models.DatasourceType]Factory
}

// NewRegistry builds a Registry pre-populated with every built-in adapter
// kind declared in this package's init-time registrations.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[models.DatasourceType]Factory)}
	for kind, factory := range builtinFactories {
		r.factories[kind] = factory
	}
	return r
}

// Register adds or overrides a factory for a datasource type.
func (r *Registry) Register(kind models.DatasourceType, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
}

// New constructs an Adapter for the given datasource via its registered
// factory.
func (r *Registry) New(ds *models.Datasource) (Adapter, error) {
	r.mu.RLock()
	factory, ok := r.factories[ds.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("adapter: no factory registered for datasource type %q", ds.Type)
	}
	return factory(ds.Connection)
}

// Has reports whether a factory is registered for the given type.
func (r *Registry) Has(kind models.DatasourceType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[kind]
	return ok
}

// builtinFactories is populated by each engine-specific file's init().
var builtinFactories = map[models.DatasourceType]Factory{}

func registerBuiltin(kind models.DatasourceType, factory Factory) {
	builtinFactories[kind] = factory
}
