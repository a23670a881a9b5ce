// Package profile measures where ticks spend their time. A Profiler hooks
// into tick visitors and aggregates per-node evaluation counts, status
// tallies, and durations into a Report.
package profile

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/bramble-labs/bramble/core"
)

// ErrNotActive is returned when a report is requested from a profiler that
// was never started.
var ErrNotActive = errors.New("profiler was never started")

// NodeProfile aggregates one node's evaluations during a profiling session.
type NodeProfile struct {
	NodeID   string              `json:"node_id"`
	Name     string              `json:"name,omitempty"`
	Type     string              `json:"type"`
	Ticks    int                 `json:"ticks"`
	Statuses map[core.Status]int `json:"statuses"`
	Total    time.Duration       `json:"total_ns"`
	Min      time.Duration       `json:"min_ns"`
	Max      time.Duration       `json:"max_ns"`
	Avg      time.Duration       `json:"avg_ns"`
}

// Report is the outcome of a profiling session. Nodes are sorted by total
// duration descending.
type Report struct {
	ExecutionID string        `json:"execution_id"`
	StartTick   int           `json:"start_tick"`
	EndTick     int           `json:"end_tick"`
	GeneratedAt time.Time     `json:"generated_at"`
	Nodes       []NodeProfile `json:"nodes"`
}

// nodeStats is the mutable per-node accumulator.
type nodeStats struct {
	name     string
	typ      string
	ticks    int
	statuses map[core.Status]int
	total    time.Duration
	min      time.Duration
	max      time.Duration
}

// Profiler observes node evaluations as a tick visitor. Start and Stop
// bound a session; between them every Enter/Leave pair adds one sample.
// Safe for concurrent use with a running execution.
type Profiler struct {
	mu sync.Mutex

	executionID string
	resolve     func(core.Node) string

	active    bool
	started   bool
	startTick int
	endTick   int
	haveTick  bool

	nodes map[string]*nodeStats
	open  map[core.Node]time.Time

	now func() time.Time
}

// Option configures a Profiler.
type Option func(*Profiler)

// WithClock overrides the time source used for samples and report
// timestamps. Tests use this to make durations deterministic.
func WithClock(now func() time.Time) Option {
	return func(p *Profiler) {
		if now != nil {
			p.now = now
		}
	}
}

// NewProfiler creates a profiler for one execution. resolve maps runtime
// nodes to their definition ids; nil falls back to node names and types.
func NewProfiler(executionID string, resolve func(core.Node) string, opts ...Option) *Profiler {
	if resolve == nil {
		resolve = func(n core.Node) string {
			if name := n.Name(); name != "" {
				return name
			}
			return n.Type()
		}
	}
	p := &Profiler{
		executionID: executionID,
		resolve:     resolve,
		nodes:       make(map[string]*nodeStats),
		open:        make(map[core.Node]time.Time),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start begins a profiling session, clearing any previous samples.
func (p *Profiler) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = true
	p.started = true
	p.haveTick = false
	p.startTick = 0
	p.endTick = 0
	p.nodes = make(map[string]*nodeStats)
	p.open = make(map[core.Node]time.Time)
}

// Active reports whether a session is currently collecting samples.
func (p *Profiler) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// ObserveTick records that a tick completed while profiling. The first
// observed tick becomes StartTick, the latest becomes EndTick.
func (p *Profiler) ObserveTick(tick int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active {
		return
	}
	if !p.haveTick {
		p.startTick = tick
		p.haveTick = true
	}
	p.endTick = tick
}

// Enter implements core.Visitor.
func (p *Profiler) Enter(n core.Node) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active {
		return
	}
	p.open[n] = p.now()
}

// Leave implements core.Visitor.
func (p *Profiler) Leave(n core.Node, status core.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active {
		return
	}
	startedAt, ok := p.open[n]
	if !ok {
		return
	}
	delete(p.open, n)
	elapsed := p.now().Sub(startedAt)

	id := p.resolve(n)
	stats, ok := p.nodes[id]
	if !ok {
		stats = &nodeStats{
			name:     n.Name(),
			typ:      n.Type(),
			statuses: make(map[core.Status]int),
		}
		p.nodes[id] = stats
	}
	stats.ticks++
	stats.statuses[status]++
	stats.total += elapsed
	if stats.ticks == 1 || elapsed < stats.min {
		stats.min = elapsed
	}
	if elapsed > stats.max {
		stats.max = elapsed
	}
}

// Stop ends the session and returns its report.
func (p *Profiler) Stop() (*Report, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return nil, ErrNotActive
	}
	p.active = false
	return p.reportLocked(), nil
}

// Report returns the current session's report without stopping it.
func (p *Profiler) Report() (*Report, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return nil, ErrNotActive
	}
	return p.reportLocked(), nil
}

func (p *Profiler) reportLocked() *Report {
	report := &Report{
		ExecutionID: p.executionID,
		StartTick:   p.startTick,
		EndTick:     p.endTick,
		GeneratedAt: p.now().UTC(),
		Nodes:       make([]NodeProfile, 0, len(p.nodes)),
	}

	for id, stats := range p.nodes {
		profile := NodeProfile{
			NodeID:   id,
			Name:     stats.name,
			Type:     stats.typ,
			Ticks:    stats.ticks,
			Statuses: make(map[core.Status]int, len(stats.statuses)),
			Total:    stats.total,
			Min:      stats.min,
			Max:      stats.max,
		}
		for status, count := range stats.statuses {
			profile.Statuses[status] = count
		}
		if stats.ticks > 0 {
			profile.Avg = stats.total / time.Duration(stats.ticks)
		}
		report.Nodes = append(report.Nodes, profile)
	}

	sort.Slice(report.Nodes, func(i, j int) bool {
		if report.Nodes[i].Total != report.Nodes[j].Total {
			return report.Nodes[i].Total > report.Nodes[j].Total
		}
		return report.Nodes[i].NodeID < report.Nodes[j].NodeID
	})
	return report
}

// Compile-time interface check.
var _ core.Visitor = (*Profiler)(nil)
