// Package registry maps node type tags to their definitions: metadata,
// config schema, and the builder/extractor pair that converts between
// definitions and runtime nodes.
//
// There is no global registry. Callers construct one (usually via
// Builtins) and hand it to the validator, builder, server, and CLI
// explicitly.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/bramble-labs/bramble/core"
)

// ErrTypeNotFound is returned when a type tag has no registration.
var ErrTypeNotFound = errors.New("node type not found")

// BuildFunc constructs a runtime node from a validated, default-applied
// config and already-built children.
type BuildFunc func(name string, cfg map[string]any, children []core.Node) (core.Node, error)

// ExtractFunc recovers the config of a runtime node. It is the structural
// inverse of the type's BuildFunc and must not mutate the node.
type ExtractFunc func(n core.Node) (map[string]any, error)

// NodeTypeDef describes a registered node type.
type NodeTypeDef struct {
	Type        string       `json:"type"`
	Kind        core.Kind    `json:"kind"` // "composite", "decorator", "leaf"
	DisplayName string       `json:"display_name"`
	Description string       `json:"description"`
	Schema      ConfigSchema `json:"config_schema"`
	Build       BuildFunc    `json:"-"`
	Extract     ExtractFunc  `json:"-"`
}

// Registry holds all known node types.
type Registry struct {
	mu    sync.RWMutex
	types map[string]NodeTypeDef
	order []string // preserves registration order
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		types: make(map[string]NodeTypeDef),
	}
}

// Register adds a node type definition. If a type with the same tag
// already exists it is overwritten in place, keeping its original
// position in the registration order.
func (r *Registry) Register(def NodeTypeDef) error {
	if def.Type == "" {
		return errors.New("node type tag must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[def.Type]; !exists {
		r.order = append(r.order, def.Type)
	}
	r.types[def.Type] = def
	return nil
}

// Get returns a node type definition by type tag.
func (r *Registry) Get(typeName string) (NodeTypeDef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.types[typeName]
	if !ok {
		return NodeTypeDef{}, fmt.Errorf("%w: %q", ErrTypeNotFound, typeName)
	}
	return def, nil
}

// Has returns true if the type tag is registered.
func (r *Registry) Has(typeName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.types[typeName]
	return ok
}

// All returns every registered definition in registration order.
// Used by the GET /api/node-types endpoint.
func (r *Registry) All() []NodeTypeDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]NodeTypeDef, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.types[name])
	}
	return result
}

// Types returns every registered type tag in registration order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of registered node types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.types)
}

// Suggest returns up to three registered tags close to the given one, for
// unknown-type error messages. Closeness is case-insensitive equality,
// then prefix or substring overlap, then small edit distance.
func (r *Registry) Suggest(typeName string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	needle := strings.ToLower(typeName)
	type candidate struct {
		tag  string
		rank int
	}
	var found []candidate
	for _, tag := range r.order {
		lower := strings.ToLower(tag)
		switch {
		case lower == needle:
			found = append(found, candidate{tag, 0})
		case strings.HasPrefix(lower, needle) || strings.HasPrefix(needle, lower):
			found = append(found, candidate{tag, 1})
		case strings.Contains(lower, needle) || strings.Contains(needle, lower):
			found = append(found, candidate{tag, 2})
		case editDistance(lower, needle) <= 2:
			found = append(found, candidate{tag, 3})
		}
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].rank < found[j].rank })

	out := make([]string, 0, 3)
	for _, c := range found {
		out = append(out, c.tag)
		if len(out) == 3 {
			break
		}
	}
	return out
}

// editDistance computes the Levenshtein distance between two short tags.
func editDistance(a, b string) int {
	if a == b {
		return 0
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
