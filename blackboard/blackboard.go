// Package blackboard provides the keyed value store a behavior tree reads
// and writes while it runs.
//
// Every key can carry a declared policy (type, access mode, default) and a
// registry of which nodes read or write it. Access enforcement happens when
// a node claims a key, not on every Get/Set, so the hot tick path stays a
// plain map access under a mutex.
package blackboard

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Access is the declared access mode for a blackboard key.
type Access string

const (
	// AccessRead marks a key writable only by the environment (external
	// updates), never by nodes.
	AccessRead Access = "READ"

	// AccessWrite marks a key writable by any number of nodes.
	AccessWrite Access = "WRITE"

	// AccessExclusive marks a key writable by at most one node.
	AccessExclusive Access = "EXCLUSIVE"
)

// Valid reports whether a is one of the defined access modes.
func (a Access) Valid() bool {
	switch a {
	case AccessRead, AccessWrite, AccessExclusive:
		return true
	}
	return false
}

// Op is the kind of access a node claims on a key.
type Op string

const (
	OpRead  Op = "read"
	OpWrite Op = "write"
)

var (
	// ErrExclusiveWriter is returned when a second node claims write access
	// to an EXCLUSIVE key.
	ErrExclusiveWriter = errors.New("exclusive key already has a writer")

	// ErrReadOnlyKey is returned when a node claims write access to a key
	// declared READ.
	ErrReadOnlyKey = errors.New("write claim on read-only key")

	// ErrInvalidAccess is returned when a key spec carries an unknown
	// access mode.
	ErrInvalidAccess = errors.New("invalid access mode")
)

// KeySpec declares the policy for a single key, typically sourced from a
// tree definition's blackboard schema.
type KeySpec struct {
	Type        string `json:"type,omitempty"`
	Access      Access `json:"access,omitempty"`
	Default     any    `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
}

// KeyMetadata is the observable state of a key's policy and registrants.
type KeyMetadata struct {
	Type        string   `json:"type,omitempty"`
	Access      Access   `json:"access"`
	Description string   `json:"description,omitempty"`
	Readers     []string `json:"readers,omitempty"`
	Writers     []string `json:"writers,omitempty"`
}

type keyEntry struct {
	spec    KeySpec
	readers []string
	writers []string
}

// Board is a mutex-guarded key-value store with per-key access policies.
// A Board is safe for concurrent use; each execution instance owns its own
// Board unless the caller explicitly shares one.
type Board struct {
	mu      sync.RWMutex
	values  map[string]any
	entries map[string]*keyEntry
}

// New creates an empty Board.
func New() *Board {
	return &Board{
		values:  make(map[string]any),
		entries: make(map[string]*keyEntry),
	}
}

// Register declares the policy for key. Registering an already declared key
// overwrites its spec but keeps existing claims. When the spec carries a
// default and the key has no value yet, the default becomes the value.
func (b *Board) Register(key string, spec KeySpec) error {
	if spec.Access == "" {
		spec.Access = AccessWrite
	}
	if !spec.Access.Valid() {
		return fmt.Errorf("key %q: %w: %q", key, ErrInvalidAccess, spec.Access)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[key]
	if !ok {
		entry = &keyEntry{}
		b.entries[key] = entry
	}
	entry.spec = spec

	if spec.Default != nil {
		if _, exists := b.values[key]; !exists {
			b.values[key] = cloneValue(spec.Default)
		}
	}
	return nil
}

// Claim records that nodeID performs op on key. Write claims are validated
// against the key's declared access mode: claims on READ keys fail, and an
// EXCLUSIVE key admits exactly one writer. Claiming an undeclared key
// implicitly registers it with WRITE access. Repeated claims by the same
// node are idempotent.
func (b *Board) Claim(nodeID, key string, op Op) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[key]
	if !ok {
		entry = &keyEntry{spec: KeySpec{Access: AccessWrite}}
		b.entries[key] = entry
	}

	switch op {
	case OpRead:
		entry.readers = appendUnique(entry.readers, nodeID)
		return nil
	case OpWrite:
		switch entry.spec.Access {
		case AccessRead:
			return fmt.Errorf("key %q: %w", key, ErrReadOnlyKey)
		case AccessExclusive:
			if len(entry.writers) > 0 && entry.writers[0] != nodeID {
				return fmt.Errorf("key %q held by node %q: %w", key, entry.writers[0], ErrExclusiveWriter)
			}
		}
		entry.writers = appendUnique(entry.writers, nodeID)
		return nil
	default:
		return fmt.Errorf("key %q: unknown claim op %q", key, op)
	}
}

// Get returns the value stored under key.
func (b *Board) Get(key string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.values[key]
	return v, ok
}

// Set stores value under key.
func (b *Board) Set(key string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[key] = value
}

// Unset removes the value stored under key. The key's declared policy and
// claims survive.
func (b *Board) Unset(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.values, key)
}

// Has reports whether key currently holds a value.
func (b *Board) Has(key string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.values[key]
	return ok
}

// Keys returns the keys that currently hold values, sorted.
func (b *Board) Keys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]string, 0, len(b.values))
	for k := range b.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of keys holding values.
func (b *Board) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.values)
}

// Apply stores every entry of updates. Used for external updates delivered
// with a tick request.
func (b *Board) Apply(updates map[string]any) {
	if len(updates) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, v := range updates {
		b.values[k] = v
	}
}

// Snapshot returns a deep copy of all stored values. Keys that carry
// metadata but hold no value do not appear.
func (b *Board) Snapshot() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]any, len(b.values))
	for k, v := range b.values {
		out[k] = cloneValue(v)
	}
	return out
}

// Metadata returns a copy of every declared key's policy and registrants,
// including keys that hold no value.
func (b *Board) Metadata() map[string]KeyMetadata {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]KeyMetadata, len(b.entries))
	for k, e := range b.entries {
		md := KeyMetadata{
			Type:        e.spec.Type,
			Access:      e.spec.Access,
			Description: e.spec.Description,
		}
		if len(e.readers) > 0 {
			md.Readers = append([]string(nil), e.readers...)
			sort.Strings(md.Readers)
		}
		if len(e.writers) > 0 {
			md.Writers = append([]string(nil), e.writers...)
			sort.Strings(md.Writers)
		}
		out[k] = md
	}
	return out
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

// cloneValue deep-copies maps and slices so snapshots stay stable after
// later mutation. Scalars and unrecognized types are returned as-is.
func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
