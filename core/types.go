// Package core defines the runtime node model for bramble behavior trees.
//
// This package contains:
//   - Status: the four-state result of evaluating a node
//   - Node, Composite, Decorator: the runtime tree interfaces
//   - Tick: the per-pass carrier handed to every node evaluation
//   - Visitor: the hook surface snapshots, debugging, and profiling use
package core

import (
	"context"

	"github.com/bramble-labs/bramble/blackboard"
)

// Status is the result of evaluating a node during a tick.
type Status string

const (
	// StatusInvalid marks a node that has not been evaluated since
	// construction or its last reset. Evaluation never returns it.
	StatusInvalid Status = "INVALID"

	// StatusRunning marks a node that needs more ticks to finish.
	StatusRunning Status = "RUNNING"

	// StatusSuccess marks a node that completed and succeeded.
	StatusSuccess Status = "SUCCESS"

	// StatusFailure marks a node that completed and failed.
	StatusFailure Status = "FAILURE"
)

// String returns the string representation of the Status.
func (s Status) String() string {
	return string(s)
}

// Terminal reports whether s is SUCCESS or FAILURE.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

// Valid reports whether s is one of the defined statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusInvalid, StatusRunning, StatusSuccess, StatusFailure:
		return true
	}
	return false
}

// Kind classifies a node type by its child arity rules.
type Kind string

const (
	// KindComposite nodes aggregate one or more children.
	KindComposite Kind = "composite"

	// KindDecorator nodes transform exactly one child.
	KindDecorator Kind = "decorator"

	// KindLeaf nodes have no children and produce their own status.
	KindLeaf Kind = "leaf"
)

// Node is a runtime behavior-tree node. Nodes are produced from definitions
// by a builder and never carry their definition id; the identity map owned
// by the build result associates the two.
type Node interface {
	// Name returns the display name from the definition.
	Name() string

	// Type returns the registry type tag this node was built from.
	Type() string

	// Status returns the result of the node's most recent evaluation,
	// or INVALID if it has not run since construction or reset.
	Status() Status

	// Feedback returns the human-readable message the node attached to
	// its most recent evaluation. Empty when the node had nothing to say.
	Feedback() string

	// Tick evaluates the node once and returns its new status.
	Tick(t *Tick) Status

	// Reset returns the node and all of its descendants to INVALID.
	Reset()

	// Children returns the node's children in order. Leaves return nil.
	Children() []Node
}

// Composite is implemented by nodes that aggregate several children.
type Composite interface {
	Node

	// CurrentChild returns the index of the child the composite is
	// currently working on, or -1 when it has none in flight.
	CurrentChild() int

	// Memory reports whether the composite resumes from the previously
	// RUNNING child on the next tick instead of restarting at child 0.
	Memory() bool
}

// Decorator is implemented by nodes that wrap exactly one child.
type Decorator interface {
	Node

	// Child returns the wrapped node.
	Child() Node
}

// KeyReader is implemented by nodes that read blackboard keys. The build
// layer claims READ access for each declared key before the first tick.
type KeyReader interface {
	ReadKeys() []string
}

// KeyWriter is implemented by nodes that write blackboard keys. The build
// layer claims WRITE access for each declared key before the first tick,
// which is where EXCLUSIVE violations surface.
type KeyWriter interface {
	WriteKeys() []string
}

// Visitor observes node evaluations within a tick. Enter fires before a
// node evaluates itself, Leave fires with the freshly computed status.
// Visitors run on the ticking goroutine and must not block.
type Visitor interface {
	Enter(n Node)
	Leave(n Node, status Status)
}

// VisitorFuncs adapts plain functions to the Visitor interface. Nil
// functions are skipped.
type VisitorFuncs struct {
	OnEnter func(n Node)
	OnLeave func(n Node, status Status)
}

// Enter calls OnEnter when set.
func (v VisitorFuncs) Enter(n Node) {
	if v.OnEnter != nil {
		v.OnEnter(n)
	}
}

// Leave calls OnLeave when set.
func (v VisitorFuncs) Leave(n Node, status Status) {
	if v.OnLeave != nil {
		v.OnLeave(n, status)
	}
}

// Tick carries the state shared by every node evaluated in one pass over
// the tree: the context, the blackboard, and the registered visitors.
// A single Tick value is threaded through the whole recursion.
type Tick struct {
	// Ctx is the context for the enclosing tick request. Ticks are atomic:
	// nodes may consult deadlines but evaluation never aborts mid-pass.
	Ctx context.Context

	// Board is the blackboard nodes read and write.
	Board *blackboard.Board

	visitors []Visitor
}

// NewTick creates a Tick for one pass over the tree.
func NewTick(ctx context.Context, board *blackboard.Board, visitors ...Visitor) *Tick {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Tick{Ctx: ctx, Board: board, visitors: visitors}
}

// Enter notifies every visitor that n is about to evaluate.
func (t *Tick) Enter(n Node) {
	for _, v := range t.visitors {
		v.Enter(n)
	}
}

// Leave notifies every visitor of n's freshly computed status.
func (t *Tick) Leave(n Node, status Status) {
	for _, v := range t.visitors {
		v.Leave(n, status)
	}
}

// Base provides the common fields and accessors for node implementations.
// Embed it in concrete node types and call Begin/Conclude around the
// node's evaluation so visitors observe it.
type Base struct {
	name     string
	typ      string
	status   Status
	feedback string
}

// NewBase creates a Base with the given type tag and display name.
func NewBase(typ, name string) Base {
	return Base{name: name, typ: typ, status: StatusInvalid}
}

// Name returns the node's display name.
func (b *Base) Name() string { return b.name }

// Type returns the node's registry type tag.
func (b *Base) Type() string { return b.typ }

// Status returns the node's most recent status.
func (b *Base) Status() Status { return b.status }

// Feedback returns the node's most recent feedback message.
func (b *Base) Feedback() string { return b.feedback }

// Children returns nil; composite and decorator types override it.
func (b *Base) Children() []Node { return nil }

// Reset returns the node to INVALID and clears its feedback.
func (b *Base) Reset() {
	b.status = StatusInvalid
	b.feedback = ""
}

// Begin announces the start of self's evaluation to the tick's visitors.
func (b *Base) Begin(t *Tick, self Node) {
	t.Enter(self)
}

// Conclude records status and feedback on the node, announces the result
// to the tick's visitors, and returns the status for convenient tail calls.
func (b *Base) Conclude(t *Tick, self Node, status Status, feedback string) Status {
	b.status = status
	b.feedback = feedback
	t.Leave(self, status)
	return status
}

// Walk visits n and its descendants pre-order. The visit function returns
// false to stop the walk early.
func Walk(n Node, visit func(Node) bool) bool {
	if n == nil {
		return true
	}
	if !visit(n) {
		return false
	}
	for _, child := range n.Children() {
		if !Walk(child, visit) {
			return false
		}
	}
	return true
}

// Tip returns the deepest node the tree is currently working on: it follows
// the current-child spine of composites and the children of decorators,
// stopping at the last node whose status is not INVALID. Returns nil when
// the root has never been ticked.
func Tip(root Node) Node {
	if root == nil || root.Status() == StatusInvalid {
		return nil
	}
	node := root
	for {
		switch n := node.(type) {
		case Composite:
			idx := n.CurrentChild()
			children := n.Children()
			if idx < 0 || idx >= len(children) {
				return node
			}
			child := children[idx]
			if child.Status() == StatusInvalid {
				return node
			}
			node = child
		case Decorator:
			child := n.Child()
			if child == nil || child.Status() == StatusInvalid {
				return node
			}
			node = child
		default:
			return node
		}
	}
}
