// Package scheduler drives event generation on randomized timers.
//
// A Scheduler fires a primary update event, then reschedules itself after a
// delay drawn uniformly from [MinInterval, MaxInterval). With probability
// CoordinationProbability a firing also schedules one secondary coordination
// event after a delay drawn from [MinCoordinationDelay, MaxCoordinationDelay).
// Stop cancels the primary timer and every pending secondary timer as a unit.
package scheduler

import (
	"context"
	"errors"
	"log"
	"math/rand/v2"
	"sync"
	"time"

	"agent_office/internal/clock"
	"agent_office/internal/domain"
)

var (
	ErrAlreadyStarted = errors.New("scheduler already started")
	ErrStopped        = errors.New("scheduler stopped")
)

type State string

const (
	StateIdle      State = "idle"
	StateScheduled State = "scheduled"
	StateFiring    State = "firing"
	StateStopped   State = "stopped"
)

type Generator interface {
	Generate(coordination bool) domain.Event
	GenerateAt(coordination bool, at time.Time) domain.Event
}

// Publisher receives every generated event. Publish must not wait on
// outbound delivery; Seed only stores.
type Publisher interface {
	Publish(ctx context.Context, ev domain.Event)
	Seed(ev domain.Event)
}

type Config struct {
	InitialDelay         time.Duration
	MinInterval          time.Duration
	MaxInterval          time.Duration
	MinCoordinationDelay time.Duration
	MaxCoordinationDelay time.Duration
	// Negative disables secondary events.
	CoordinationProbability float64
	// Negative disables the startup burst.
	BurstSize    int
	BurstSpacing time.Duration
}

func (c Config) withDefaults() Config {
	if c.InitialDelay <= 0 {
		c.InitialDelay = 2 * time.Second
	}
	if c.MinInterval <= 0 {
		c.MinInterval = 3 * time.Second
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 11 * time.Second
	}
	if c.MaxInterval < c.MinInterval {
		c.MaxInterval = c.MinInterval
	}
	if c.MinCoordinationDelay <= 0 {
		c.MinCoordinationDelay = 2 * time.Second
	}
	if c.MaxCoordinationDelay <= 0 {
		c.MaxCoordinationDelay = 5 * time.Second
	}
	if c.MaxCoordinationDelay < c.MinCoordinationDelay {
		c.MaxCoordinationDelay = c.MinCoordinationDelay
	}
	if c.CoordinationProbability == 0 {
		c.CoordinationProbability = 0.3
	}
	if c.BurstSize == 0 {
		c.BurstSize = 15
	}
	if c.BurstSpacing <= 0 {
		c.BurstSpacing = time.Minute
	}
	return c
}

type Scheduler struct {
	gen    Generator
	pub    Publisher
	clk    clock.Clock
	rnd    func() float64
	cfg    Config
	logger *log.Logger

	mu        sync.Mutex
	state     State
	ctx       context.Context
	primary   clock.Timer
	secondary map[uint64]clock.Timer
	nextID    uint64
	done      chan struct{}

	wg sync.WaitGroup
}

// New builds an idle scheduler. rnd must return values in [0, 1); nil uses
// math/rand/v2.
func New(gen Generator, pub Publisher, clk clock.Clock, rnd func() float64, cfg Config, logger *log.Logger) *Scheduler {
	if clk == nil {
		clk = clock.System{}
	}
	if rnd == nil {
		rnd = rand.Float64
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		gen:       gen,
		pub:       pub,
		clk:       clk,
		rnd:       rnd,
		cfg:       cfg.withDefaults(),
		logger:    logger,
		state:     StateIdle,
		secondary: make(map[uint64]clock.Timer),
		done:      make(chan struct{}),
	}
}

func (s *Scheduler) Config() Config {
	return s.cfg
}

// Start seeds the burst and schedules the first firing. The scheduler stops
// by itself when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateStopped:
		s.mu.Unlock()
		return ErrStopped
	case StateIdle:
	default:
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.ctx = ctx
	s.state = StateScheduled
	s.mu.Unlock()

	s.seedBurst()

	s.mu.Lock()
	if s.state != StateStopped {
		s.primary = s.clk.AfterFunc(s.cfg.InitialDelay, s.firePrimary)
	}
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.done:
		}
	}()
	s.logger.Printf("scheduler started initial_delay=%s interval=%s..%s burst=%d", s.cfg.InitialDelay, s.cfg.MinInterval, s.cfg.MaxInterval, max(s.cfg.BurstSize, 0))
	return nil
}

// Run starts the scheduler, blocks until ctx is done and waits for the
// firing in progress, if any.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	s.Wait()
	return nil
}

// Stop cancels every pending timer. Callbacks that already started observe
// the stopped state and return without generating.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateStopped {
		return
	}
	s.state = StateStopped
	if s.primary != nil {
		s.primary.Stop()
		s.primary = nil
	}
	for id, t := range s.secondary {
		t.Stop()
		delete(s.secondary, id)
	}
	close(s.done)
	s.logger.Printf("scheduler stopped")
}

func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pending reports scheduled timers: the primary plus pending secondaries.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.secondary)
	if s.primary != nil {
		n++
	}
	return n
}

// FireNow runs one primary firing synchronously, outside the timer chain.
func (s *Scheduler) FireNow(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return ErrStopped
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	s.fire(ctx, false)
	return nil
}

func (s *Scheduler) seedBurst() {
	n := s.cfg.BurstSize
	if n <= 0 {
		return
	}
	now := s.clk.Now()
	for i := 0; i < n; i++ {
		s.mu.Lock()
		scale := 1 + s.rnd()*5
		s.mu.Unlock()
		back := time.Duration(float64(time.Duration(n-i)*s.cfg.BurstSpacing) * scale)
		s.seed(now.Add(-back))
	}
}

func (s *Scheduler) seed(at time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("scheduler burst seed panicked: %v", r)
		}
	}()
	s.pub.Seed(s.gen.GenerateAt(false, at))
}

func (s *Scheduler) firePrimary() {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	s.primary = nil
	s.state = StateFiring
	ctx := s.ctx
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	defer s.reschedule()
	s.fire(ctx, false)
}

func (s *Scheduler) fireSecondary(id uint64) {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	if _, ok := s.secondary[id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.secondary, id)
	ctx := s.ctx
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	s.fire(ctx, true)
}

// fire isolates a single firing: a panic in the generator or publisher is
// logged and swallowed.
func (s *Scheduler) fire(ctx context.Context, coordination bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("scheduler firing panicked coordination=%t: %v", coordination, r)
		}
	}()
	if ctx == nil {
		ctx = context.Background()
	}
	s.pub.Publish(ctx, s.gen.Generate(coordination))
}

func (s *Scheduler) reschedule() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateStopped {
		return
	}
	if p := s.cfg.CoordinationProbability; p > 0 && s.rnd() < p {
		delay := s.uniformLocked(s.cfg.MinCoordinationDelay, s.cfg.MaxCoordinationDelay)
		s.nextID++
		id := s.nextID
		s.secondary[id] = s.clk.AfterFunc(delay, func() { s.fireSecondary(id) })
	}
	s.primary = s.clk.AfterFunc(s.uniformLocked(s.cfg.MinInterval, s.cfg.MaxInterval), s.firePrimary)
	s.state = StateScheduled
}

func (s *Scheduler) uniformLocked(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(s.rnd()*float64(hi-lo))
}
