package behavior

import (
	"fmt"

	"github.com/bramble-labs/bramble/blackboard"
	"github.com/bramble-labs/bramble/core"
)

// Counter adds a configured delta to a numeric blackboard key on every
// tick and succeeds. A missing or non-numeric key starts from zero.
type Counter struct {
	core.Base
	key   string
	delta float64
}

// NewCounter creates a counter leaf adjusting key by delta per tick.
func NewCounter(name, key string, delta float64) *Counter {
	return &Counter{Base: core.NewBase(TypeCounter, name), key: key, delta: delta}
}

// Key returns the blackboard key the counter adjusts.
func (n *Counter) Key() string { return n.key }

// Delta returns the per-tick adjustment.
func (n *Counter) Delta() float64 { return n.delta }

// ReadKeys declares the key the counter reads before adjusting.
func (n *Counter) ReadKeys() []string { return []string{n.key} }

// WriteKeys declares the key the counter writes.
func (n *Counter) WriteKeys() []string { return []string{n.key} }

// Tick applies the delta.
func (n *Counter) Tick(t *core.Tick) core.Status {
	n.Begin(t, n)

	current := 0.0
	if v, ok := t.Board.Get(n.key); ok {
		if f, ok := blackboard.AsFloat(v); ok {
			current = f
		}
	}
	next := current + n.delta
	t.Board.Set(n.key, next)
	return n.Conclude(t, n, core.StatusSuccess, fmt.Sprintf("%s=%v", n.key, next))
}

var (
	_ core.Node      = (*Counter)(nil)
	_ core.KeyReader = (*Counter)(nil)
	_ core.KeyWriter = (*Counter)(nil)
)
