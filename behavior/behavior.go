// Package behavior implements the builtin behavior-tree node set: the
// sequence, selector, and parallel composites, the standard decorators,
// and the leaves that read and write the blackboard.
//
// Every node embeds core.Base and reports its evaluation through
// Begin/Conclude so tick visitors observe it.
package behavior

import (
	"github.com/bramble-labs/bramble/core"
)

// Type tags for the builtin node set. These are the values a definition's
// node_type field carries and the keys the registry resolves.
const (
	TypeSequence     = "sequence"
	TypeSelector     = "selector"
	TypeParallel     = "parallel"
	TypeInverter     = "inverter"
	TypeForceSuccess = "force_success"
	TypeForceFailure = "force_failure"
	TypeRepeat       = "repeat"
	TypeRetry        = "retry"
	TypeTimeout      = "timeout"
	TypeCondition    = "condition"
	TypeWrite        = "blackboard_write"
	TypeCounter      = "counter"
	TypeWait         = "wait"
	TypeIdle         = "idle"
	TypeAlways       = "always"
	TypeLog          = "log"
)

// composite is the shared base for nodes that aggregate several children.
type composite struct {
	core.Base
	children []core.Node
	memory   bool
	current  int
}

func newComposite(typ, name string, memory bool, children []core.Node) composite {
	return composite{
		Base:     core.NewBase(typ, name),
		children: children,
		memory:   memory,
		current:  -1,
	}
}

// Children returns the composite's children in order.
func (c *composite) Children() []core.Node { return c.children }

// CurrentChild returns the index of the child currently in flight, or -1.
func (c *composite) CurrentChild() int { return c.current }

// Memory reports whether the composite resumes from the previously
// RUNNING child instead of restarting at child 0 each tick.
func (c *composite) Memory() bool { return c.memory }

// Reset returns the composite and all descendants to INVALID.
func (c *composite) Reset() {
	c.Base.Reset()
	c.current = -1
	for _, child := range c.children {
		child.Reset()
	}
}

// invalidateFrom resets every child at index >= i that still carries a
// status from an earlier pass, so abandoned subtrees read INVALID in
// snapshots.
func (c *composite) invalidateFrom(i int) {
	for ; i < len(c.children); i++ {
		if c.children[i].Status() != core.StatusInvalid {
			c.children[i].Reset()
		}
	}
}

// decorator is the shared base for nodes that wrap exactly one child.
type decorator struct {
	core.Base
	child core.Node
}

func newDecorator(typ, name string, child core.Node) decorator {
	return decorator{Base: core.NewBase(typ, name), child: child}
}

// Child returns the wrapped node.
func (d *decorator) Child() core.Node { return d.child }

// Children returns the single wrapped node.
func (d *decorator) Children() []core.Node {
	if d.child == nil {
		return nil
	}
	return []core.Node{d.child}
}

// Reset returns the decorator and its child to INVALID.
func (d *decorator) Reset() {
	d.Base.Reset()
	if d.child != nil {
		d.child.Reset()
	}
}
