package provider

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/payway/internal/provider/domain"
)

// ErrProviderNotFound reports a routing rule or attempt history referencing an
// adapter that is not registered.
type ErrProviderNotFound struct {
	Name string
}

func (e *ErrProviderNotFound) Error() string {
	return fmt.Sprintf("provider %q is not registered", e.Name)
}

// Registry holds the adapters available to the routing engine. It is built
// once at startup and never mutated afterwards, so reads need no locking.
type Registry struct {
	byName map[string]domain.Adapter
	order  []domain.Adapter
}

func NewRegistry(adapters ...domain.Adapter) *Registry {
	r := &Registry{byName: make(map[string]domain.Adapter, len(adapters))}
	for _, a := range adapters {
		name := strings.ToLower(a.Name())
		if _, ok := r.byName[name]; ok {
			continue
		}
		r.byName[name] = a
		r.order = append(r.order, a)
	}
	return r
}

func (r *Registry) Get(name string) (domain.Adapter, error) {
	a, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return nil, &ErrProviderNotFound{Name: name}
	}
	return a, nil
}

func (r *Registry) Has(name string) bool {
	_, ok := r.byName[strings.ToLower(name)]
	return ok
}

// All returns adapters in registration order; fallback walks depend on it.
func (r *Registry) All() []domain.Adapter {
	return r.order
}

func (r *Registry) Len() int { return len(r.order) }
