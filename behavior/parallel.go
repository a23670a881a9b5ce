package behavior

import (
	"fmt"

	"github.com/bramble-labs/bramble/core"
)

// ParallelPolicy decides how a Parallel aggregates its children's results.
type ParallelPolicy string

const (
	// PolicyRequireOne succeeds as soon as one child succeeds and fails
	// only when every child has failed.
	PolicyRequireOne ParallelPolicy = "require_one"

	// PolicyRequireAll succeeds only when every child succeeds and fails
	// as soon as one child fails.
	PolicyRequireAll ParallelPolicy = "require_all"
)

// Valid reports whether p is a defined policy.
func (p ParallelPolicy) Valid() bool {
	return p == PolicyRequireOne || p == PolicyRequireAll
}

// Parallel ticks every child on every pass and aggregates their statuses
// under the configured policy. Children run logically in parallel; there
// is no current child. When the parallel concludes with a terminal status,
// children still RUNNING are reset.
type Parallel struct {
	composite
	policy ParallelPolicy
}

// NewParallel creates a parallel over children with the given policy.
func NewParallel(name string, policy ParallelPolicy, children ...core.Node) *Parallel {
	if !policy.Valid() {
		policy = PolicyRequireAll
	}
	return &Parallel{
		composite: newComposite(TypeParallel, name, false, children),
		policy:    policy,
	}
}

// Policy returns the configured aggregation policy.
func (p *Parallel) Policy() ParallelPolicy { return p.policy }

// Tick evaluates every child and aggregates per the policy.
func (p *Parallel) Tick(t *core.Tick) core.Status {
	p.Begin(t, p)

	successes, failures := 0, 0
	for _, child := range p.children {
		switch child.Tick(t) {
		case core.StatusSuccess:
			successes++
		case core.StatusFailure:
			failures++
		}
	}

	total := len(p.children)
	status := core.StatusRunning
	feedback := ""
	switch p.policy {
	case PolicyRequireAll:
		if failures > 0 {
			status = core.StatusFailure
			feedback = fmt.Sprintf("%d of %d children failed", failures, total)
		} else if successes == total {
			status = core.StatusSuccess
		}
	default: // PolicyRequireOne
		if successes > 0 {
			status = core.StatusSuccess
		} else if failures == total {
			status = core.StatusFailure
			feedback = fmt.Sprintf("all %d children failed", total)
		}
	}

	if status.Terminal() {
		p.haltRunning()
	}
	return p.Conclude(t, p, status, feedback)
}

// haltRunning resets children abandoned mid-run by a terminal conclusion.
func (p *Parallel) haltRunning() {
	for _, child := range p.children {
		if child.Status() == core.StatusRunning {
			child.Reset()
		}
	}
}

var _ core.Composite = (*Parallel)(nil)
