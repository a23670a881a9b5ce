package behavior

import (
	"fmt"

	"github.com/bramble-labs/bramble/blackboard"
	"github.com/bramble-labs/bramble/core"
)

// CompareOp is the comparison a Condition leaf applies.
type CompareOp string

const (
	OpEq     CompareOp = "eq"
	OpNe     CompareOp = "ne"
	OpGt     CompareOp = "gt"
	OpLt     CompareOp = "lt"
	OpGe     CompareOp = "ge"
	OpLe     CompareOp = "le"
	OpExists CompareOp = "exists"
)

// CompareOps lists every defined comparison, in schema enum order.
func CompareOps() []string {
	return []string{
		string(OpEq), string(OpNe), string(OpGt),
		string(OpLt), string(OpGe), string(OpLe), string(OpExists),
	}
}

// Condition reads a blackboard key and compares it against a configured
// value: SUCCESS when the comparison holds, FAILURE otherwise. A missing
// key fails (except under the exists operator, which is the test for
// presence itself). Conditions never write the blackboard.
type Condition struct {
	core.Base
	key   string
	op    CompareOp
	value any
}

// NewCondition creates a condition leaf over key.
func NewCondition(name, key string, op CompareOp, value any) *Condition {
	return &Condition{Base: core.NewBase(TypeCondition, name), key: key, op: op, value: value}
}

// Key returns the blackboard key the condition reads.
func (n *Condition) Key() string { return n.key }

// ReadKeys declares the key the condition reads.
func (n *Condition) ReadKeys() []string { return []string{n.key} }

// Op returns the configured comparison operator.
func (n *Condition) Op() CompareOp { return n.op }

// Value returns the configured comparison operand.
func (n *Condition) Value() any { return n.value }

// Tick evaluates the comparison against the current blackboard.
func (n *Condition) Tick(t *core.Tick) core.Status {
	n.Begin(t, n)

	current, ok := t.Board.Get(n.key)
	if n.op == OpExists {
		if ok {
			return n.Conclude(t, n, core.StatusSuccess, fmt.Sprintf("%s is set", n.key))
		}
		return n.Conclude(t, n, core.StatusFailure, fmt.Sprintf("%s is not set", n.key))
	}
	if !ok {
		return n.Conclude(t, n, core.StatusFailure, fmt.Sprintf("%s is not set", n.key))
	}

	holds, err := n.compare(current)
	if err != nil {
		return n.Conclude(t, n, core.StatusFailure, err.Error())
	}

	status := core.StatusFailure
	if holds {
		status = core.StatusSuccess
	}
	return n.Conclude(t, n, status, fmt.Sprintf("%s=%v %s %v", n.key, current, n.op, n.value))
}

func (n *Condition) compare(current any) (bool, error) {
	switch n.op {
	case OpEq:
		return blackboard.Equal(current, n.value), nil
	case OpNe:
		return !blackboard.Equal(current, n.value), nil
	}

	cmp, ok := blackboard.Compare(current, n.value)
	if !ok {
		return false, fmt.Errorf("%s=%v is not comparable with %v", n.key, current, n.value)
	}
	switch n.op {
	case OpGt:
		return cmp > 0, nil
	case OpLt:
		return cmp < 0, nil
	case OpGe:
		return cmp >= 0, nil
	case OpLe:
		return cmp <= 0, nil
	default:
		return false, fmt.Errorf("unknown comparison %q", n.op)
	}
}

var (
	_ core.Node      = (*Condition)(nil)
	_ core.KeyReader = (*Condition)(nil)
)
