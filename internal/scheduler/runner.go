// Package scheduler runs the weather task on a schedule.
//
// There is exactly one job. A tick that fires while the previous run is
// still in flight is skipped, never queued.
package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	logx "caiyun/pkg/logx"
)

// Job is one task run.
type Job func(ctx context.Context) error

// Config controls the runner. Timeout of zero leaves runs unbounded.
type Config struct {
	Schedule   string
	Timezone   string
	Timeout    time.Duration
	RunOnStart bool
}

// Stats counts runs since Start.
type Stats struct {
	Runs    uint64
	Skipped uint64
	Failed  uint64
	Last    time.Time
	Next    time.Time
}

type Runner struct {
	mu   sync.Mutex
	cfg  Config
	spec Spec
	job  Job
	log  logx.Logger

	c     *cron.Cron
	entry cron.EntryID
	ctx   context.Context

	running atomic.Bool
	runs    atomic.Uint64
	skipped atomic.Uint64
	failed  atomic.Uint64
	last    atomic.Int64
}

// New validates cfg. The runner does nothing until Start.
func New(cfg Config, job Job, log logx.Logger) (*Runner, error) {
	if job == nil {
		return nil, errors.New("scheduler: job required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	spec, err := parseConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &Runner{cfg: cfg, spec: spec, job: job, log: log}, nil
}

func parseConfig(cfg Config) (Spec, error) {
	loc, err := loadLocation(cfg.Timezone)
	if err != nil {
		return Spec{}, err
	}
	return ParseSchedule(cfg.Schedule, loc)
}

func loadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}

// Start registers the schedule. ctx bounds every run started by the runner.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	if r.c != nil {
		r.mu.Unlock()
		return
	}
	r.ctx = ctx
	r.c = cron.New(cron.WithParser(parser))
	r.entry = r.c.Schedule(r.spec.Schedule, cron.FuncJob(r.tick))
	r.c.Start()
	runOnStart := r.cfg.RunOnStart
	r.log.Info("scheduler started", logx.String("schedule", r.spec.String()), logx.Time("next", r.nextLocked()))
	r.mu.Unlock()

	if runOnStart {
		go r.tick()
	}
}

// Apply swaps the schedule in place. A run in flight is not interrupted.
func (r *Runner) Apply(cfg Config) error {
	spec, err := parseConfig(cfg)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
	r.spec = spec
	if r.c == nil {
		return nil
	}
	r.c.Remove(r.entry)
	r.entry = r.c.Schedule(spec.Schedule, cron.FuncJob(r.tick))
	r.log.Info("schedule updated", logx.String("schedule", spec.String()), logx.Time("next", r.nextLocked()))
	return nil
}

// Stop stops triggering and waits for an in-flight run until ctx is done.
func (r *Runner) Stop(ctx context.Context) {
	r.mu.Lock()
	c := r.c
	r.c = nil
	r.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	r.log.Info("scheduler stopped", logx.Int64("runs", int64(r.runs.Load())), logx.Int64("skipped", int64(r.skipped.Load())))
}

// RunNow runs the job immediately unless a run is in flight. It reports
// whether the job ran.
func (r *Runner) RunNow(ctx context.Context) (bool, error) {
	if !r.running.CompareAndSwap(false, true) {
		r.skipped.Add(1)
		return false, nil
	}
	defer r.running.Store(false)

	r.mu.Lock()
	timeout := r.cfg.Timeout
	r.mu.Unlock()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	r.runs.Add(1)
	r.last.Store(start.UnixNano())
	err := r.job(ctx)
	if err != nil {
		r.failed.Add(1)
	}
	return true, err
}

func (r *Runner) tick() {
	r.mu.Lock()
	ctx := r.ctx
	r.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	ran, err := r.RunNow(ctx)
	switch {
	case !ran:
		r.log.Warn("previous run still in flight; tick skipped")
	case err != nil:
		r.log.Error("scheduled run failed", logx.Err(err), logx.Duration("took", time.Since(start)))
	default:
		r.log.Debug("scheduled run finished", logx.Duration("took", time.Since(start)))
	}
}

func (r *Runner) Stats() Stats {
	r.mu.Lock()
	next := r.nextLocked()
	r.mu.Unlock()
	s := Stats{
		Runs:    r.runs.Load(),
		Skipped: r.skipped.Load(),
		Failed:  r.failed.Load(),
		Next:    next,
	}
	if ns := r.last.Load(); ns != 0 {
		s.Last = time.Unix(0, ns)
	}
	return s
}

func (r *Runner) nextLocked() time.Time {
	if r.c == nil {
		return r.spec.Schedule.Next(time.Now())
	}
	return r.c.Entry(r.entry).Next
}
