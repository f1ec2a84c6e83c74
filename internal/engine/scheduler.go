package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Clock abstracts time so the scheduler can be driven by virtual time
// in tests.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker is the minimal ticker surface the scheduler consumes.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock implements Clock over the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (rt *realTicker) C() <-chan time.Time { return rt.t.C }
func (rt *realTicker) Stop()               { rt.t.Stop() }

// SchedulerConfig holds the timer cadences driving the engine.
type SchedulerConfig struct {
	// EvalInterval is the coarse entry/exit evaluation cadence.
	EvalInterval time.Duration
	// StatsInterval is the statistics refresh and balance sweep
	// cadence.
	StatsInterval time.Duration
	// TouchInterval is the fast SL/TP touch detection cadence.
	TouchInterval time.Duration
}

// DefaultSchedulerConfig returns the default timer cadences.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		EvalInterval:  time.Minute,
		StatsInterval: 5 * time.Minute,
		TouchInterval: 5 * time.Second,
	}
}

// Scheduler owns the recurring timers that drive the engine over all
// active bots, with an explicit start/stop lifecycle.
type Scheduler struct {
	engine  *Engine
	cfg     SchedulerConfig
	clock   Clock
	log     zerolog.Logger
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
}

// NewScheduler creates a scheduler for the engine.
func NewScheduler(engine *Engine, cfg SchedulerConfig, clock Clock, logger zerolog.Logger) *Scheduler {
	if cfg.EvalInterval <= 0 {
		cfg.EvalInterval = time.Minute
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = 5 * time.Minute
	}
	if cfg.TouchInterval <= 0 {
		cfg.TouchInterval = 5 * time.Second
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &Scheduler{
		engine: engine,
		cfg:    cfg,
		clock:  clock,
		log:    logger.With().Str("component", "scheduler").Logger(),
	}
}

// Start launches the three timer loops. It is a no-op when already
// running.
func (s *Scheduler) Start(ctx context.Context) {
	if s.running.Swap(true) {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)

	s.loop(ctx, "entry_exit", s.cfg.EvalInterval, s.engine.RunEntryExitCycle)
	s.loop(ctx, "stats_resync", s.cfg.StatsInterval, s.engine.RunStatsResync)
	s.loop(ctx, "touch_monitor", s.cfg.TouchInterval, s.engine.RunTouchMonitorCycle)

	s.log.Info().
		Dur("eval_interval", s.cfg.EvalInterval).
		Dur("stats_interval", s.cfg.StatsInterval).
		Dur("touch_interval", s.cfg.TouchInterval).
		Msg("scheduler started")
}

func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, run func(context.Context)) {
	s.wg.Add(1)
	ticker := s.clock.NewTicker(interval)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		log := s.log.With().Str("loop", name).Logger()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				func() {
					defer func() {
						if r := recover(); r != nil {
							log.Error().Interface("panic", r).Msg("tick panicked")
						}
					}()
					run(ctx)
				}()
			}
		}
	}()
}

// Stop cancels the timer loops and waits for in-flight cycles to
// finish.
func (s *Scheduler) Stop() {
	if !s.running.Swap(false) {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.log.Info().Msg("scheduler stopped")
}
