package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/bramble-labs/bramble/bus"
	"github.com/bramble-labs/bramble/exec"
)

const defaultScheduleMaxConcurrent = 8

// ErrScheduleNotFound is returned when a schedule id does not exist.
var ErrScheduleNotFound = errors.New("schedule not found")

var standardCronParser = cron.NewParser(
	cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow,
)

func parseCronExpressionUTC(expr string) (cron.Schedule, error) {
	clean := strings.TrimSpace(expr)
	if clean == "" {
		return nil, fmt.Errorf("cron expression is required")
	}

	upper := strings.ToUpper(clean)
	if strings.Contains(upper, "CRON_TZ=") || strings.Contains(upper, "TZ=") {
		return nil, fmt.Errorf("cron expression must be UTC-only (timezone prefixes are not allowed)")
	}

	schedule, err := standardCronParser.Parse(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return schedule, nil
}

// Schedule drives an execution on a cron cadence. NextRun and LastRun are
// always UTC.
type Schedule struct {
	ID          string    `json:"id"`
	ExecutionID string    `json:"execution_id"`
	Spec        string    `json:"spec"`
	Count       int       `json:"count"`
	NextRun     time.Time `json:"next_run"`
	LastRun     time.Time `json:"last_run,omitempty"`
	Enabled     bool      `json:"enabled"`
}

// SchedulerConfig configures the background schedule runner.
type SchedulerConfig struct {
	Exec          *exec.Service
	Bus           bus.EventBus
	Logger        *slog.Logger
	Now           func() time.Time
	MaxConcurrent int
}

// Scheduler ticks executions on cron cadences. A single loop sleeps until
// the earliest NextRun and fires everything due; Add and Remove wake it so
// the timer is recomputed.
type Scheduler struct {
	exec          *exec.Service
	bus           bus.EventBus
	logger        *slog.Logger
	now           func() time.Time
	maxConcurrent int

	mu        sync.Mutex
	schedules map[string]*Schedule
	crons     map[string]cron.Schedule
	cancel    context.CancelFunc
	done      chan struct{}

	wake chan struct{}
}

// NewScheduler creates a schedule runner. Start must be called before
// schedules fire.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultScheduleMaxConcurrent
	}

	return &Scheduler{
		exec:          cfg.Exec,
		bus:           cfg.Bus,
		logger:        cfg.Logger,
		now:           cfg.Now,
		maxConcurrent: cfg.MaxConcurrent,
		schedules:     map[string]*Schedule{},
		crons:         map[string]cron.Schedule{},
		wake:          make(chan struct{}, 1),
	}
}

// Add registers a cron schedule for an execution and returns the stored
// copy. Count defaults to 1 tick per fire. The execution switches to auto
// mode while it has schedules.
func (s *Scheduler) Add(executionID, spec string, count int) (Schedule, error) {
	parsed, err := parseCronExpressionUTC(spec)
	if err != nil {
		return Schedule{}, err
	}
	if count <= 0 {
		count = 1
	}

	in, err := s.exec.Get(executionID)
	if err != nil {
		return Schedule{}, err
	}
	in.SetAuto(true)

	sched := &Schedule{
		ID:          uuid.NewString(),
		ExecutionID: executionID,
		Spec:        strings.TrimSpace(spec),
		Count:       count,
		NextRun:     parsed.Next(s.now().UTC()),
		Enabled:     true,
	}

	s.mu.Lock()
	s.schedules[sched.ID] = sched
	s.crons[sched.ID] = parsed
	s.mu.Unlock()

	s.poke()
	s.logger.Info("schedule added",
		"schedule_id", sched.ID, "execution_id", executionID,
		"spec", sched.Spec, "next_run", sched.NextRun)
	return *sched, nil
}

// List returns the schedules for one execution, ordered by NextRun.
func (s *Scheduler) List(executionID string) []Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Schedule, 0)
	for _, sched := range s.schedules {
		if sched.ExecutionID == executionID {
			out = append(out, *sched)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRun.Before(out[j].NextRun) })
	return out
}

// Remove deletes one schedule. The execution leaves auto mode when its
// last schedule goes.
func (s *Scheduler) Remove(executionID, scheduleID string) error {
	s.mu.Lock()
	sched, ok := s.schedules[scheduleID]
	if !ok || sched.ExecutionID != executionID {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrScheduleNotFound, scheduleID)
	}
	delete(s.schedules, scheduleID)
	delete(s.crons, scheduleID)
	remaining := s.countLocked(executionID)
	s.mu.Unlock()

	if remaining == 0 {
		if in, err := s.exec.Get(executionID); err == nil {
			in.SetAuto(false)
		}
	}
	s.poke()
	return nil
}

// RemoveExecution drops every schedule tied to an execution.
func (s *Scheduler) RemoveExecution(executionID string) {
	s.mu.Lock()
	removed := 0
	for id, sched := range s.schedules {
		if sched.ExecutionID == executionID {
			delete(s.schedules, id)
			delete(s.crons, id)
			removed++
		}
	}
	s.mu.Unlock()

	if removed == 0 {
		return
	}
	if in, err := s.exec.Get(executionID); err == nil {
		in.SetAuto(false)
	}
	s.poke()
}

func (s *Scheduler) countLocked(executionID string) int {
	n := 0
	for _, sched := range s.schedules {
		if sched.ExecutionID == executionID {
			n++
		}
	}
	return n
}

// poke wakes the run loop so it recomputes its timer.
func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Start launches the run loop. Calling Start on a running scheduler is a
// no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.run(loopCtx)
	}()

	_ = ctx
	return nil
}

// Stop halts the run loop and waits for in-flight fires, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		next, ok := s.earliest()
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		if ok {
			wait := next.Sub(s.now().UTC())
			if wait < 0 {
				wait = 0
			}
			timer.Reset(wait)
		} else {
			// Nothing scheduled; sleep until poked.
			timer.Reset(time.Hour)
		}

		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		case <-timer.C:
			s.fireDue(ctx)
		}
	}
}

// earliest returns the soonest NextRun among enabled schedules.
func (s *Scheduler) earliest() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var next time.Time
	found := false
	for _, sched := range s.schedules {
		if !sched.Enabled {
			continue
		}
		if !found || sched.NextRun.Before(next) {
			next = sched.NextRun
			found = true
		}
	}
	return next, found
}

// fireDue runs every schedule whose NextRun has passed. Fires run
// concurrently with a bound so one slow tree cannot stall the rest.
func (s *Scheduler) fireDue(ctx context.Context) {
	now := s.now().UTC()

	s.mu.Lock()
	due := make([]Schedule, 0)
	for id, sched := range s.schedules {
		if !sched.Enabled || sched.NextRun.After(now) {
			continue
		}
		due = append(due, *sched)
		sched.LastRun = now
		sched.NextRun = s.crons[id].Next(now)
	}
	s.mu.Unlock()

	if len(due) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrent)
	for _, sched := range due {
		g.Go(func() error {
			s.fire(gctx, sched)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Scheduler) fire(ctx context.Context, sched Schedule) {
	in, err := s.exec.Get(sched.ExecutionID)
	if err != nil {
		s.logger.Warn("schedule target gone, removing",
			"schedule_id", sched.ID, "execution_id", sched.ExecutionID)
		s.mu.Lock()
		delete(s.schedules, sched.ID)
		delete(s.crons, sched.ID)
		s.mu.Unlock()
		return
	}

	switch in.Phase() {
	case exec.PhasePaused, exec.PhaseStopped:
		s.logger.Warn("schedule skipped",
			"schedule_id", sched.ID, "execution_id", sched.ExecutionID,
			"phase", in.Phase())
		return
	}

	res, err := in.Tick(ctx, exec.TickRequest{Count: sched.Count})
	if err != nil {
		s.logger.Error("scheduled tick failed",
			"schedule_id", sched.ID, "execution_id", sched.ExecutionID,
			"error", err)
		return
	}

	if s.bus != nil {
		s.bus.Publish(bus.NewEvent(bus.EventScheduleFired, sched.ExecutionID).
			WithTree(in.TreeID()).
			WithTick(res.TickCount).
			WithStatus(res.RootStatus).
			WithPayload("schedule_id", sched.ID).
			WithPayload("ticks", res.Ticks))
	}
	s.logger.Debug("schedule fired",
		"schedule_id", sched.ID, "execution_id", sched.ExecutionID,
		"ticks", res.Ticks, "root_status", res.RootStatus)
}
