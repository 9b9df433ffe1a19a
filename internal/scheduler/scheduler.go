// Package scheduler runs periodic maintenance tasks (SLA sweeps, notification
// purges) on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"civictrack/backend/internal/apperr"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// TaskFunc is one run of a task.
type TaskFunc func(ctx context.Context) error

// TaskStatus is the observable state of a registered task.
type TaskStatus struct {
	Name       string        `json:"name"`
	Schedule   string        `json:"schedule"`
	LastRun    time.Time     `json:"lastRun"`
	LastError  string        `json:"lastError,omitempty"`
	RunCount   int64         `json:"runCount"`
	ErrorCount int64         `json:"errorCount"`
	Timeout    time.Duration `json:"timeout"`
}

type task struct {
	status TaskStatus
	fn     TaskFunc
}

// Scheduler wraps a cron runner. A task never overlaps with itself: a run
// that fires while the previous one is still going is skipped.
type Scheduler struct {
	cron  *cron.Cron
	log   *zap.Logger
	mu    sync.RWMutex
	tasks map[string]*task
	ctx   context.Context
	stop  context.CancelFunc
}

func New(log *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:  cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.Recover(cronLogger{log}))),
		log:   log,
		tasks: make(map[string]*task),
		ctx:   ctx,
		stop:  cancel,
	}
}

// Add registers fn under name. Each run gets its own context bounded by
// timeout.
func (s *Scheduler) Add(name, schedule string, timeout time.Duration, fn TaskFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[name]; exists {
		return fmt.Errorf("task %q already registered", name)
	}
	t := &task{status: TaskStatus{Name: name, Schedule: schedule, Timeout: timeout}, fn: fn}

	job := cron.NewChain(cron.SkipIfStillRunning(cronLogger{s.log})).Then(cron.FuncJob(func() { s.run(t) }))
	if _, err := s.cron.AddJob(schedule, job); err != nil {
		return fmt.Errorf("invalid schedule %q for task %s: %w", schedule, name, err)
	}
	s.tasks[name] = t
	s.log.Info("scheduled task registered", zap.String("task", name), zap.String("schedule", schedule))
	return nil
}

func (s *Scheduler) run(t *task) {
	ctx, cancel := context.WithTimeout(s.ctx, t.status.Timeout)
	defer cancel()

	start := time.Now()
	err := t.fn(ctx)

	s.mu.Lock()
	t.status.LastRun = start
	t.status.RunCount++
	t.status.LastError = ""
	if err != nil {
		t.status.ErrorCount++
		t.status.LastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Error("scheduled task failed", zap.String("task", t.status.Name), zap.Error(err))
		return
	}
	s.log.Debug("scheduled task finished", zap.String("task", t.status.Name), zap.Duration("took", time.Since(start)))
}

// Start begins running tasks in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running tasks and waits for them to return or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	s.stop()
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("scheduler: tasks still running at shutdown")
	}
}

// Status returns a snapshot of every task, ordered by name.
func (s *Scheduler) Status() []TaskStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TaskStatus, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RunNow runs the named task once, synchronously, and returns its status
// after the run.
func (s *Scheduler) RunNow(name string) (TaskStatus, error) {
	s.mu.RLock()
	t, ok := s.tasks[name]
	s.mu.RUnlock()
	if !ok {
		return TaskStatus{}, apperr.New(apperr.NotFound, fmt.Sprintf("unknown task %q", name))
	}
	s.run(t)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t.status.LastError != "" {
		return t.status, apperr.New(apperr.Internal, fmt.Sprintf("task %s: %s", name, t.status.LastError))
	}
	return t.status, nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
