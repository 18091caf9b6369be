// Package registry implements the intern-style alias registries that back
// every top-level entity kind (Detector, FirmwareSet, Module): a
// case-insensitive alias names an entity, canonically stored lowercase.
package registry

import (
	"strings"
	"sync"

	"github.com/xiallc/handel-go/pkg/herr"
)

// MaxAliasLength bounds alias length, mirroring the fixed-size alias
// buffers of the original C structures.
const MaxAliasLength = 80

// Registry is a generic alias→*T intern table. The zero value is not
// usable; construct with New.
type Registry[T any] struct {
	mu    sync.RWMutex
	items map[string]*T
	order []string
}

// New creates an empty registry.
func New[T any]() *Registry[T] {
	return &Registry[T]{items: make(map[string]*T)}
}

func canon(alias string) string { return strings.ToLower(strings.TrimSpace(alias)) }

// Add interns a new alias. It fails with AliasSize if alias exceeds
// MaxAliasLength, and with AliasExists if the case-folded alias is already
// present.
func (r *Registry[T]) Add(alias string, item *T) error {
	if len(alias) == 0 {
		return herr.New(herr.NullAlias, "alias must not be empty")
	}
	if len(alias) > MaxAliasLength {
		return herr.Newf(herr.AliasSize, "alias %q exceeds max length %d", alias, MaxAliasLength)
	}
	key := canon(alias)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[key]; exists {
		return herr.Newf(herr.AliasExists, "alias %q already exists", alias)
	}
	r.items[key] = item
	r.order = append(r.order, key)
	return nil
}

// Get resolves alias to its entity.
func (r *Registry[T]) Get(alias string) (*T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[canon(alias)]
	if !ok {
		return nil, herr.Newf(herr.NoAlias, "no such alias %q", alias)
	}
	return item, nil
}

// Has reports whether alias is registered, without erroring.
func (r *Registry[T]) Has(alias string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.items[canon(alias)]
	return ok
}

// Remove detaches alias from the registry. The caller is responsible for
// checking the entity is unreferenced before calling Remove.
func (r *Registry[T]) Remove(alias string) error {
	key := canon(alias)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[key]; !ok {
		return herr.Newf(herr.NoAlias, "no such alias %q", alias)
	}
	delete(r.items, key)
	for i, a := range r.order {
		if a == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Num returns the number of registered entities.
func (r *Registry[T]) Num() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// ByIndex returns the entity at insertion-order position i along with its
// canonical alias.
func (r *Registry[T]) ByIndex(i int) (string, *T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i < 0 || i >= len(r.order) {
		return "", nil, herr.Newf(herr.BadIndex, "index %d out of range [0,%d)", i, len(r.order))
	}
	alias := r.order[i]
	return alias, r.items[alias], nil
}

// Aliases returns all registered aliases in insertion order.
func (r *Registry[T]) Aliases() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
