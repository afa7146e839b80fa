// Package cron runs recurring and one-shot jobs on a robfig/cron scheduler.
// Each run goes through a runner.Handler so jobs get a timeout, retries and
// panic recovery.
package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-automate"
	"github.com/goliatone/go-automate/runner"
	"github.com/goliatone/go-errors"
	rcron "github.com/robfig/cron/v3"
)

// Job is a unit of scheduled work.
type Job func(ctx context.Context) error

// JobConfig describes how a job is triggered and executed.
type JobConfig struct {
	Name       string
	Expression string
	Timeout    time.Duration
	MaxRetries int
	Retry      runner.RetryStrategy
}

const ErrCodeInvalidSchedule = "INVALID_SCHEDULE"

type Scheduler struct {
	mu           sync.Mutex
	cron         *rcron.Cron
	location     *time.Location
	errorHandler func(error)
	logger       automate.Logger
	parser       Parser
	logLevel     LogLevel
	overlap      bool

	base    context.Context
	nextID  int64
	handles map[int64]*handle
}

// NewScheduler creates a scheduler. Jobs do not fire until Start.
func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		location: time.Local,
		parser:   DefaultParser,
		logLevel: LogLevelError,
		logger:   automate.NewFmtLogger(nil),
		base:     context.Background(),
		handles:  make(map[int64]*handle),
	}
	s.errorHandler = func(err error) {
		s.logger.Error("scheduled job failed: %v", err)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.cron = rcron.New(s.build()...)
	return s
}

// Schedule registers job to run whenever cfg.Expression fires. A failed run
// is reported and the job keeps its schedule.
func (s *Scheduler) Schedule(cfg JobConfig, job Job) (Handle, error) {
	if cfg.Expression == "" {
		return nil, errors.New("cron expression cannot be empty", errors.CategoryBadInput).
			WithTextCode(ErrCodeInvalidSchedule)
	}
	if job == nil {
		return nil, errors.New("cron job cannot be nil", errors.CategoryBadInput).
			WithTextCode(ErrCodeInvalidSchedule)
	}

	h := s.newHandle(cfg.Name)
	run := s.runnerFor(cfg)
	entryID, err := s.cron.AddFunc(cfg.Expression, func() {
		if h.finished() || !h.set(StatusRunning, nil) {
			return
		}
		if err := run.Run(s.context(), job); err != nil {
			h.set(StatusFailed, err)
			return
		}
		h.set(StatusIdle, nil)
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput,
			fmt.Sprintf("invalid cron expression %q", cfg.Expression)).
			WithTextCode(ErrCodeInvalidSchedule)
	}

	h.entryID = int(entryID)
	s.store(h)
	return h, nil
}

// ScheduleAfter runs job once after delay.
func (s *Scheduler) ScheduleAfter(delay time.Duration, cfg JobConfig, job Job) (Handle, error) {
	if delay < 0 {
		delay = 0
	}
	return s.ScheduleAt(time.Now().Add(delay), cfg, job)
}

// ScheduleAt runs job once at the given time.
func (s *Scheduler) ScheduleAt(at time.Time, cfg JobConfig, job Job) (Handle, error) {
	if job == nil {
		return nil, errors.New("cron job cannot be nil", errors.CategoryBadInput).
			WithTextCode(ErrCodeInvalidSchedule)
	}

	h := s.newHandle(cfg.Name)
	run := s.runnerFor(cfg)
	s.store(h)

	go func() {
		defer s.remove(h.id)

		timer := time.NewTimer(max(time.Until(at), 0))
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-h.Done():
			return
		}

		if !h.set(StatusRunning, nil) {
			return
		}
		if err := run.Run(s.context(), job); err != nil {
			h.finish(StatusFailed, err)
			return
		}
		h.finish(StatusCompleted, nil)
	}()

	return h, nil
}

// Start begins firing jobs. ctx is handed to every run and its
// cancellation stops the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	s.base = ctx
	s.mu.Unlock()

	s.cron.Start()
	go func() {
		<-ctx.Done()
		_ = s.Stop(context.Background())
	}()
	return nil
}

// Stop halts the scheduler, waits for in-flight runs until ctx is done and
// marks every open handle stopped.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()

	s.mu.Lock()
	handles := make([]*handle, 0, len(s.handles))
	for _, h := range s.handles {
		handles = append(handles, h)
	}
	s.handles = make(map[int64]*handle)
	s.mu.Unlock()

	for _, h := range handles {
		if h.entryID > 0 {
			s.cron.Remove(rcron.EntryID(h.entryID))
		}
		h.finish(StatusStopped, nil)
	}

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next reports when the recurring job behind h fires next.
func (s *Scheduler) Next(h Handle) (time.Time, bool) {
	hh, ok := h.(*handle)
	if !ok || hh.entryID == 0 {
		return time.Time{}, false
	}
	entry := s.cron.Entry(rcron.EntryID(hh.entryID))
	if !entry.Valid() {
		return time.Time{}, false
	}
	return entry.Next, true
}

func (s *Scheduler) runnerFor(cfg JobConfig) *runner.Handler {
	name := cfg.Name
	if name == "" {
		name = "cron job"
	}
	opts := []runner.Option{
		runner.WithName(name),
		runner.WithLogger(s.logger),
		runner.WithMaxRetries(cfg.MaxRetries),
		runner.WithErrorHandler(s.errorHandler),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, runner.WithTimeout(cfg.Timeout))
	}
	if cfg.Retry != nil {
		opts = append(opts, runner.WithRetryStrategy(cfg.Retry))
	}
	return runner.NewHandler(opts...)
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base
}

func (s *Scheduler) newHandle(name string) *handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return &handle{
		scheduler: s,
		id:        s.nextID,
		name:      name,
		status:    StatusScheduled,
		done:      make(chan struct{}),
	}
}

func (s *Scheduler) store(h *handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles[h.id] = h
}

func (s *Scheduler) remove(id int64) {
	s.mu.Lock()
	h := s.handles[id]
	delete(s.handles, id)
	s.mu.Unlock()

	if h != nil && h.entryID > 0 {
		s.cron.Remove(rcron.EntryID(h.entryID))
	}
}

func (s *Scheduler) build() []rcron.Option {
	opts := []rcron.Option{}
	if s.location != nil {
		opts = append(opts, rcron.WithLocation(s.location))
	}

	switch s.parser {
	case StandardParser:
		opts = append(opts, rcron.WithParser(rcron.NewParser(
			rcron.Minute|rcron.Hour|rcron.Dom|rcron.Month|rcron.Dow|rcron.Descriptor,
		)))
	case SecondsParser:
		opts = append(opts, rcron.WithParser(rcron.NewParser(
			rcron.Second|rcron.Minute|rcron.Hour|rcron.Dom|rcron.Month|rcron.Dow|rcron.Descriptor,
		)))
	}

	chainLogger := &loggerAdapter{logger: s.logger, level: s.logLevel}
	wrappers := []rcron.JobWrapper{rcron.Recover(&errorHandlerAdapter{handler: s.errorHandler})}
	if !s.overlap {
		wrappers = append(wrappers, rcron.SkipIfStillRunning(chainLogger))
	}
	opts = append(opts, rcron.WithChain(wrappers...))

	if s.logLevel > LogLevelSilent {
		opts = append(opts, rcron.WithLogger(chainLogger))
	}
	return opts
}
