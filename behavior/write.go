package behavior

import (
	"fmt"

	"github.com/bramble-labs/bramble/core"
)

// Write stores a configured value under a blackboard key and succeeds.
type Write struct {
	core.Base
	key   string
	value any
}

// NewWrite creates a blackboard_write leaf.
func NewWrite(name, key string, value any) *Write {
	return &Write{Base: core.NewBase(TypeWrite, name), key: key, value: value}
}

// Key returns the blackboard key the leaf writes.
func (n *Write) Key() string { return n.key }

// Value returns the configured value.
func (n *Write) Value() any { return n.value }

// WriteKeys declares the key the leaf writes.
func (n *Write) WriteKeys() []string { return []string{n.key} }

// Tick stores the value.
func (n *Write) Tick(t *core.Tick) core.Status {
	n.Begin(t, n)
	t.Board.Set(n.key, n.value)
	return n.Conclude(t, n, core.StatusSuccess, fmt.Sprintf("%s=%v", n.key, n.value))
}

var (
	_ core.Node      = (*Write)(nil)
	_ core.KeyWriter = (*Write)(nil)
)
