// Package scheduler drives the poll job from a wall-clock cron schedule.
//
// Schedules accept an optional leading seconds field, so the default
// "*/45 * * * * *" fires at :00 and :45 of every minute. Descriptors such as
// "@every 45s" also work.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// Overlap decides what happens when a tick fires while a run is in flight.
type Overlap string

const (
	OverlapSkip  Overlap = "skip"  // drop the tick
	OverlapAllow Overlap = "allow" // run concurrently
)

// Job is one unit of scheduled work. ctx carries the per-run timeout.
type Job func(ctx context.Context)

// Config controls a Scheduler.
type Config struct {
	Spec     string
	Overlap  Overlap
	Timeout  time.Duration // per run; 0 disables
	Location *time.Location
	Logger   *slog.Logger
}

// Scheduler runs a Job on a cron schedule.
type Scheduler struct {
	job      Job
	spec     string
	schedule cron.Schedule
	overlap  Overlap
	timeout  time.Duration
	loc      *time.Location
	logger   *slog.Logger

	mu      sync.Mutex
	c       *cron.Cron
	baseCtx context.Context
	stopped bool

	busy    atomic.Bool
	wg      sync.WaitGroup
	runs    atomic.Int64
	skipped atomic.Int64
}

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSpec validates a schedule expression.
func ParseSpec(spec string) (cron.Schedule, error) {
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return sched, nil
}

// New validates cfg and returns a stopped scheduler.
func New(job Job, cfg Config) (*Scheduler, error) {
	sched, err := ParseSpec(cfg.Spec)
	if err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Overlap == "" {
		cfg.Overlap = OverlapSkip
	}
	return &Scheduler{
		job:      job,
		spec:     cfg.Spec,
		schedule: sched,
		overlap:  cfg.Overlap,
		timeout:  cfg.Timeout,
		loc:      cfg.Location,
		logger:   cfg.Logger,
		baseCtx:  context.Background(),
	}, nil
}

// Start begins firing on schedule and returns immediately. Cancelling ctx
// cancels in-flight runs; call Stop to stop new ones.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}

	s.baseCtx = ctx
	s.c = cron.New(cron.WithParser(parser), cron.WithLocation(s.loc))
	s.c.Schedule(s.schedule, cron.FuncJob(s.tick))
	s.c.Start()

	s.logger.Info("Scheduler started",
		"schedule", s.spec, "overlap", s.overlap, "timeout", s.timeout,
		"next", s.Next(time.Now()))
}

// Stop halts the schedule. The returned context is done once every
// in-flight run has returned.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	s.stopped = true
	c := s.c
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if c != nil {
			<-c.Stop().Done()
		}
		s.wg.Wait()
		cancel()
	}()

	s.logger.Info("Scheduler stopping", "runs", s.runs.Load(), "skipped", s.skipped.Load())
	return ctx
}

// RunNow runs the job immediately under the same overlap policy and
// timeout as scheduled runs. It reports whether the job ran.
func (s *Scheduler) RunNow(ctx context.Context) bool {
	if !s.enter() {
		return false
	}
	defer s.wg.Done()
	return s.run(ctx, "manual")
}

// Next returns the first activation after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.loc))
}

// Runs and Skipped count completed-or-started and dropped runs.
func (s *Scheduler) Runs() int64    { return s.runs.Load() }
func (s *Scheduler) Skipped() int64 { return s.skipped.Load() }

func (s *Scheduler) tick() {
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()
	if !s.enter() {
		return
	}
	defer s.wg.Done()
	s.run(ctx, "schedule")
}

// enter registers a run with the WaitGroup unless Stop has been called. The
// check and the Add share s.mu with Stop, so Wait never races an Add.
func (s *Scheduler) enter() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Scheduler) run(ctx context.Context, trigger string) bool {
	if s.overlap == OverlapSkip {
		if !s.busy.CompareAndSwap(false, true) {
			s.skipped.Add(1)
			s.logger.Warn("previous poll still running, skipping tick", "trigger", trigger)
			return false
		}
		defer s.busy.Store(false)
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled job panicked", "trigger", trigger, "panic", r)
		}
	}()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.runs.Add(1)
	s.job(ctx)
	return true
}
