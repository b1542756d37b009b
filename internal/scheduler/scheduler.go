// Package scheduler runs periodic fetch tasks inside a cancellable scope.
//
// Intervals are expressed as cron specs ("@every 2s", "*/5 * * * *") and
// parsed with robfig/cron. Each Poller runs its task once immediately and
// then once per scheduled tick; a Scheduler owns a set of pollers and tears
// all of them down on Stop.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
)

var ErrAlreadyStarted = errors.New("scheduler already started")

// Task is one unit of periodic work.
type Task func(ctx context.Context)

// ParseInterval parses a standard cron spec or descriptor.
func ParseInterval(spec string) (cron.Schedule, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return sched, nil
}

// Poller runs a task on mount and on every tick of its schedule.
//
// For "@every" schedules ticks are anchored on the mount time, not on
// wall-clock seconds.
type Poller struct {
	name     string
	schedule cron.Schedule
	delay    time.Duration
	task     Task
	clock    Clock
	logger   *logrus.Logger
}

// PollerOption customises a Poller.
type PollerOption func(*Poller)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c Clock) PollerOption {
	return func(p *Poller) { p.clock = c }
}

func NewPoller(name, spec string, task Task, logger *logrus.Logger, opts ...PollerOption) (*Poller, error) {
	sched, err := ParseInterval(spec)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	p := &Poller{
		name:     name,
		schedule: sched,
		task:     task,
		clock:    RealClock(),
		logger:   logger,
	}
	if every, ok := sched.(cron.ConstantDelaySchedule); ok {
		p.delay = every.Delay
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Name returns the poller name used in logs.
func (p *Poller) Name() string {
	return p.name
}

// Run blocks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.logger.WithField("poller", p.name).Debug("Poller started")
	defer p.logger.WithField("poller", p.name).Debug("Poller stopped")

	tick := p.clock.Now()
	for {
		p.task(ctx)

		now := p.clock.Now()
		tick = p.next(tick, now)
		wait := tick.Sub(now)
		if wait < 0 {
			wait = 0
		}

		select {
		case <-ctx.Done():
			return
		case <-p.clock.After(wait):
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// next returns the tick following prev. A task that overran its tick runs
// again immediately once, then the cadence restarts from now.
func (p *Poller) next(prev, now time.Time) time.Time {
	if p.delay <= 0 {
		return p.schedule.Next(now)
	}
	t := prev.Add(p.delay)
	if t.Before(now) {
		return now
	}
	return t
}

// Scheduler owns the lifetime of a set of pollers.
type Scheduler struct {
	logger  *logrus.Logger
	pollers []*Poller

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      *conc.WaitGroup
	running bool
}

func NewScheduler(logger *logrus.Logger, pollers ...*Poller) *Scheduler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Scheduler{
		logger:  logger,
		pollers: pollers,
	}
}

// Add registers a poller. Pollers added after Start run on the next Start.
func (s *Scheduler) Add(p *Poller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pollers = append(s.pollers, p)
}

// Start launches every poller in its own goroutine bound to ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	wg := conc.NewWaitGroup()
	for _, p := range s.pollers {
		p := p
		wg.Go(func() { p.Run(ctx) })
	}

	s.cancel = cancel
	s.wg = wg
	s.running = true

	s.logger.WithField("pollers", len(s.pollers)).Info("Scheduler started")
	return nil
}

// Stop cancels all pollers and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, wg := s.cancel, s.wg
	s.running = false
	s.mu.Unlock()

	cancel()
	wg.Wait()
	s.logger.Info("Scheduler stopped")
}

// Clock abstracts time so poll cadence can be simulated.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

// RealClock returns a Clock backed by the time package.
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
