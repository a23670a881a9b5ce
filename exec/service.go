package exec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bramble-labs/bramble/blackboard"
	"github.com/bramble-labs/bramble/bus"
	"github.com/bramble-labs/bramble/core"
	"github.com/bramble-labs/bramble/history"
	"github.com/bramble-labs/bramble/hydrate"
	"github.com/bramble-labs/bramble/registry"
	"github.com/bramble-labs/bramble/tree"
)

// Option configures a Service.
type Option func(*Service)

// WithBus publishes execution events to eb. Without it events are dropped.
func WithBus(eb bus.EventBus) Option {
	return func(s *Service) { s.bus = eb }
}

// WithHistory stores captured snapshots in store. Without it the service
// creates an in-memory store with the configured retention.
func WithHistory(store history.Store) Option {
	return func(s *Service) { s.store = store }
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNow overrides the service time source.
func WithNow(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMaxDepth sets the default build depth limit for Create.
func WithMaxDepth(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxDepth = n
		}
	}
}

// WithRetention sets the retention used when the service creates its own
// in-memory history store.
func WithRetention(ret history.Retention) Option {
	return func(s *Service) { s.retention = ret }
}

// CreateOptions tune a single Create call. The zero value uses the
// service defaults and a minted execution id.
type CreateOptions struct {
	// ExecutionID overrides the minted uuid. Must be unique.
	ExecutionID string

	// MaxDepth overrides the service's build depth limit.
	MaxDepth int

	// Capture makes every tick record a snapshot without the tick request
	// asking for one.
	Capture bool

	// HistoryLimit gives the instance its own in-memory history bounded to
	// this many snapshots instead of the service's shared store.
	HistoryLimit int
}

// Service owns a table of execution instances built from tree definitions.
// All methods are safe for concurrent use; the instances themselves tick
// independently of one another.
type Service struct {
	registry  *registry.Registry
	bus       bus.EventBus
	store     history.Store
	logger    *slog.Logger
	now       func() time.Time
	maxDepth  int
	retention history.Retention

	mu        sync.RWMutex
	instances map[string]*Instance
}

// NewService creates a Service that builds trees against reg.
func NewService(reg *registry.Registry, opts ...Option) *Service {
	s := &Service{
		registry:  reg,
		logger:    slog.Default(),
		now:       time.Now,
		maxDepth:  hydrate.DefaultMaxDepth,
		retention: history.DefaultRetention(),
		instances: make(map[string]*Instance),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = history.NewMemStore(s.retention)
	}
	return s
}

// Create builds def into a runtime tree and registers a READY instance.
// The definition's blackboard schema is registered on a fresh board and
// every node's declared key access is claimed, so EXCLUSIVE violations
// surface here rather than mid-tick.
func (s *Service) Create(def *tree.TreeDefinition, opts CreateOptions) (*Instance, error) {
	if def == nil {
		return nil, errors.New("exec: tree definition is nil")
	}

	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = s.maxDepth
	}
	res, err := hydrate.Build(def, s.registry, hydrate.WithMaxDepth(maxDepth))
	if err != nil {
		return nil, err
	}

	board := blackboard.New()
	if err := registerSchema(board, def.BlackboardSchema); err != nil {
		return nil, err
	}
	if err := claimKeys(board, res.Root, res.IDs); err != nil {
		return nil, err
	}

	id := opts.ExecutionID
	if id == "" {
		id = uuid.NewString()
	}

	store := s.store
	if opts.HistoryLimit > 0 {
		store = history.NewMemStore(history.Retention{MaxPerExecution: opts.HistoryLimit})
	}

	in := newInstance(instanceSeed{
		id:      id,
		def:     def,
		root:    res.Root,
		ids:     res.IDs,
		board:   board,
		bus:     s.bus,
		store:   store,
		logger:  s.logger,
		now:     s.now,
		capture: opts.Capture,
	})

	s.mu.Lock()
	if _, exists := s.instances[id]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("exec: execution %s already exists", id)
	}
	s.instances[id] = in
	s.mu.Unlock()

	s.logger.Info("execution created",
		"execution_id", id,
		"tree_id", def.ID,
		"nodes", res.IDs.Len())
	s.publish(bus.NewEvent(bus.EventExecutionCreated, id).WithTree(def.ID))
	return in, nil
}

// Get returns the instance with the given id.
func (s *Service) Get(id string) (*Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	in, ok := s.instances[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}
	return in, nil
}

// List returns all instances ordered by execution id.
func (s *Service) List() []*Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]*Instance, 0, len(s.instances))
	for _, in := range s.instances {
		list = append(list, in)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID() < list[j].ID() })
	return list
}

// Len returns how many instances the service holds.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.instances)
}

// Destroy stops the instance and removes it from the table. Captured
// history stays in the store for post-mortem queries.
func (s *Service) Destroy(id string) error {
	s.mu.Lock()
	in, ok := s.instances[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}
	delete(s.instances, id)
	s.mu.Unlock()

	if err := in.Stop(); err != nil {
		return err
	}
	s.logger.Info("execution destroyed", "execution_id", id, "tree_id", in.TreeID())
	s.publish(bus.NewEvent(bus.EventExecutionDestroyed, id).WithTree(in.TreeID()))
	return nil
}

// Close stops every instance concurrently and empties the table. A ticking
// instance finishes its current tick before stopping.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	instances := make([]*Instance, 0, len(s.instances))
	for _, in := range s.instances {
		instances = append(instances, in)
	}
	s.instances = make(map[string]*Instance)
	s.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	for _, in := range instances {
		g.Go(in.Stop)
	}
	return g.Wait()
}

func (s *Service) publish(event bus.Event) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(event)
}

// registerSchema declares the definition's blackboard keys in a stable
// order so defaults and policy checks apply deterministically.
func registerSchema(board *blackboard.Board, schema map[string]blackboard.KeySpec) error {
	keys := make([]string, 0, len(schema))
	for key := range schema {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := board.Register(key, schema[key]); err != nil {
			return fmt.Errorf("exec: registering blackboard key %q: %w", key, err)
		}
	}
	return nil
}

// claimKeys walks the built tree and records each node's declared reads
// and writes on the board.
func claimKeys(board *blackboard.Board, root core.Node, ids *hydrate.IdentityMap) error {
	var claimErr error
	core.Walk(root, func(n core.Node) bool {
		id := resolveNodeID(ids, n)
		if r, ok := n.(core.KeyReader); ok {
			for _, key := range r.ReadKeys() {
				if err := board.Claim(id, key, blackboard.OpRead); err != nil {
					claimErr = fmt.Errorf("exec: node %s: %w", id, err)
					return false
				}
			}
		}
		if w, ok := n.(core.KeyWriter); ok {
			for _, key := range w.WriteKeys() {
				if err := board.Claim(id, key, blackboard.OpWrite); err != nil {
					claimErr = fmt.Errorf("exec: node %s: %w", id, err)
					return false
				}
			}
		}
		return true
	})
	return claimErr
}

// resolveNodeID maps a runtime node to its definition id, falling back to
// the node's name and then its type tag.
func resolveNodeID(ids *hydrate.IdentityMap, n core.Node) string {
	if ids != nil {
		if id, ok := ids.IDOf(n); ok {
			return id
		}
	}
	if name := n.Name(); name != "" {
		return name
	}
	return n.Type()
}
