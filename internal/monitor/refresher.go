package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Refresher runs named jobs at fixed intervals from a single goroutine.
// Every job runs once on Start, then each time its interval elapses.
type Refresher struct {
	logger *zap.Logger

	mu      sync.Mutex
	jobs    []*refreshJob
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

type refreshJob struct {
	name  string
	every time.Duration
	run   func(ctx context.Context) error
	next  time.Time
}

// NewRefresher creates a refresher with no jobs.
func NewRefresher(logger *zap.Logger) *Refresher {
	return &Refresher{logger: logger}
}

// Add registers a job. Jobs added after Start are ignored.
func (r *Refresher) Add(name string, every time.Duration, fn func(ctx context.Context) error) {
	if every <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	r.jobs = append(r.jobs, &refreshJob{name: name, every: every, run: fn})
}

// Start launches the refresh loop. It is a no-op once started or stopped.
func (r *Refresher) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil || r.stopped || len(r.jobs) == 0 {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.loop(runCtx, r.jobs, r.done)
}

// Stop cancels the loop and waits for a running job to return.
func (r *Refresher) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.stopped = true
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (r *Refresher) loop(ctx context.Context, jobs []*refreshJob, done chan struct{}) {
	defer close(done)

	now := time.Now()
	for _, j := range jobs {
		j.next = now
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		now := time.Now()
		for _, j := range jobs {
			if now.Before(j.next) {
				continue
			}
			if err := j.run(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn("Refresh job failed", zap.String("job", j.name), zap.Error(err))
			}
			j.next = now.Add(j.every)
		}

		timer.Reset(time.Until(earliest(jobs)))
	}
}

func earliest(jobs []*refreshJob) time.Time {
	next := jobs[0].next
	for _, j := range jobs[1:] {
		if j.next.Before(next) {
			next = j.next
		}
	}
	return next
}
