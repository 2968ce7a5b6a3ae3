package queue

import (
	"context"
	"sync"
	"time"
)

// Start runs the worker pool until ctx is cancelled. Each worker takes the
// head of the pending list, runs it and hands the outcome to OnResult. An
// idle worker sleeps until the next Enqueue or PollInterval, whichever comes
// first. Start returns when every worker has exited.
func (q *Queue) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for range q.opts.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.work(ctx)
		}()
	}
	q.logger.Info("queue workers started", "workers", q.opts.Workers, "poll", q.opts.PollInterval)
	wg.Wait()
}

func (q *Queue) work(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if q.RunOnce(ctx) {
			continue
		}
		q.limiter.Sweep()

		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		case <-time.After(q.opts.PollInterval):
		}
	}
}

// RunOnce runs the highest-priority pending job, if any, and reports
// whether one was run.
func (q *Queue) RunOnce(ctx context.Context) bool {
	job, c := q.claimNext()
	if job == nil {
		return false
	}
	res, err := wait(ctx, c)
	if q.opts.OnResult != nil {
		q.opts.OnResult(Result{JobID: job.ID, UserID: job.Request.UserID, Result: res, Err: err})
	}
	return true
}
