package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BlockchainHB/fbabossdiscord/internal/pipeline"
	"github.com/google/uuid"
)

const (
	PriorityNormal = 0
	PriorityHigh   = 10
)

var (
	// ErrJobTimeout is returned when a job exceeds its time budget.
	ErrJobTimeout = errors.New("job timed out")
	// ErrRateLimited is returned by Enqueue when the submitter has no quota left.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// Processor answers one question. Implemented by *pipeline.Orchestrator.
type Processor interface {
	Process(ctx context.Context, req pipeline.QuestionRequest) (*pipeline.QAResult, error)
}

// Job is a queued question.
type Job struct {
	ID        string
	Request   pipeline.QuestionRequest
	Priority  int
	CreatedAt time.Time
}

// EnqueueOptions control job identity and placement. HighPriority raises
// Priority to at least PriorityHigh and places the job ahead of every job
// already queued at that priority.
type EnqueueOptions struct {
	JobID        string
	Priority     int
	HighPriority bool
}

type Stats struct {
	Waiting int `json:"waiting"`
	Active  int `json:"active"`
}

// Result is handed to the OnResult callback after a worker runs a job.
type Result struct {
	JobID  string
	UserID string
	Result *pipeline.QAResult
	Err    error
}

type Options struct {
	Workers      int
	PollInterval time.Duration
	JobTimeout   time.Duration
	MaxRequests  int
	Window       time.Duration
	Exempt       []string
	Clock        Clock
	// OnResult receives the outcome of every job run by the worker pool.
	OnResult func(Result)
}

func DefaultOptions() Options {
	return Options{
		Workers:      1,
		PollInterval: 500 * time.Millisecond,
		JobTimeout:   2 * time.Minute,
		MaxRequests:  3,
		Window:       60 * time.Second,
	}
}

// call is the outcome of one job, shared by every Run waiting on it. It
// exists from Enqueue until the job finishes.
type call struct {
	done chan struct{}
	res  *pipeline.QAResult
	err  error
}

// Queue schedules questions by priority, admits them through the rate
// limiter and guarantees at most one concurrent execution per job ID. Jobs
// only execute on the worker pool started by Start, so at most Workers run
// at once and they are taken in priority order.
//
// mu guards pending, calls and active. calls holds every pending or running
// job. No lock is held while a job executes.
type Queue struct {
	proc    Processor
	opts    Options
	limiter *RateLimiter
	logger  *slog.Logger

	base context.Context
	stop context.CancelFunc

	// wake nudges idle workers when a job is enqueued.
	wake chan struct{}

	mu      sync.Mutex
	pending []*Job // sorted by priority desc, FIFO within a priority
	calls   map[string]*call
	active  int
}

// New creates a Queue. Zero option fields take DefaultOptions values.
func New(proc Processor, opts Options) *Queue {
	def := DefaultOptions()
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = def.JobTimeout
	}
	if opts.MaxRequests <= 0 {
		opts.MaxRequests = def.MaxRequests
	}
	if opts.Window <= 0 {
		opts.Window = def.Window
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	base, stop := context.WithCancel(context.Background())
	return &Queue{
		proc:     proc,
		opts:     opts,
		limiter:  NewRateLimiter(opts.MaxRequests, opts.Window, opts.Exempt, opts.Clock),
		logger:   slog.Default(),
		base:    base,
		stop:    stop,
		wake:    make(chan struct{}, opts.Workers),
		calls:   make(map[string]*call),
	}
}

// Close cancels every running job.
func (q *Queue) Close() {
	q.stop()
}

// CheckRateLimit reports whether userID may submit another question in scope.
func (q *Queue) CheckRateLimit(userID, scope string) RateLimitStatus {
	return q.limiter.Check(userID, scope)
}

// Enqueue validates and queues a question, returning its job ID. Enqueueing
// an ID that is already pending or running returns that ID unchanged. New
// jobs count against the submitter's rate limit; ErrRateLimited is returned
// when none is left.
func (q *Queue) Enqueue(req pipeline.QuestionRequest, opts EnqueueOptions) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	id := opts.JobID
	if id == "" {
		id = uuid.New().String()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.calls[id]; ok {
		return id, nil
	}
	if st, ok := q.limiter.Admit(req.UserID, ScopeKey(req.Scope)); !ok {
		return "", fmt.Errorf("%w: retry after %s", ErrRateLimited, st.ResetAt.Format(time.RFC3339))
	}

	job := &Job{ID: id, Request: req, Priority: opts.Priority, CreatedAt: q.opts.Clock.Now()}
	if opts.HighPriority {
		job.Priority = max(job.Priority, PriorityHigh)
	}
	q.insert(job, opts.HighPriority)
	q.calls[id] = &call{done: make(chan struct{})}
	select {
	case q.wake <- struct{}{}:
	default:
	}
	q.logger.Debug("job enqueued", "job_id", id, "priority", job.Priority, "waiting", len(q.pending))
	return id, nil
}

// insert places job after every job of higher priority. Normal jobs also go
// after jobs of equal priority; head-of-band jobs go before them.
// Must be called with q.mu held.
func (q *Queue) insert(job *Job, headOfBand bool) {
	pos := len(q.pending)
	for i, j := range q.pending {
		if j.Priority < job.Priority || (headOfBand && j.Priority == job.Priority) {
			pos = i
			break
		}
	}
	q.pending = append(q.pending, nil)
	copy(q.pending[pos+1:], q.pending[pos:])
	q.pending[pos] = job
}

// Run waits for the job to finish and returns its result. Every caller of
// a pending or running job shares the same result. An unknown ID returns
// (nil, nil). Run never starts the job itself; a worker picks it up in
// priority order. ctx only bounds the wait: a caller that gives up leaves
// the job queued or running.
func (q *Queue) Run(ctx context.Context, jobID string) (*pipeline.QAResult, error) {
	q.mu.Lock()
	c, ok := q.calls[jobID]
	q.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return wait(ctx, c)
}

// claimNext takes the head of the pending list and starts executing it.
func (q *Queue) claimNext() (*Job, *call) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, nil
	}
	job := q.pending[0]
	q.pending = q.pending[1:]
	c := q.calls[job.ID]
	q.active++
	go q.execute(job, c)
	return job, c
}

func wait(ctx context.Context, c *call) (*pipeline.QAResult, error) {
	select {
	case <-c.done:
		return c.res, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type outcome struct {
	res *pipeline.QAResult
	err error
}

func (q *Queue) execute(job *Job, c *call) {
	ctx, cancel := context.WithTimeout(q.base, q.opts.JobTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan outcome, 1)
	go func() {
		res, err := q.proc.Process(ctx, job.Request)
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		c.res, c.err = o.res, o.err
	case <-ctx.Done():
	}
	if c.err == nil && c.res == nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			c.err = fmt.Errorf("%w: job %s exceeded %s", ErrJobTimeout, job.ID, q.opts.JobTimeout)
		} else {
			c.err = fmt.Errorf("job %s: %w", job.ID, ctx.Err())
		}
	} else if c.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		c.err = fmt.Errorf("%w: job %s: %w", ErrJobTimeout, job.ID, c.err)
	}

	q.mu.Lock()
	delete(q.calls, job.ID)
	q.active--
	q.mu.Unlock()
	close(c.done)

	if c.err != nil {
		q.logger.Warn("job failed", "job_id", job.ID, "user", job.Request.UserID, "elapsed", time.Since(start), "error", c.err)
	} else {
		q.logger.Debug("job completed", "job_id", job.ID, "elapsed", time.Since(start))
	}
}

// Stats returns the number of waiting and running jobs.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{Waiting: len(q.pending), Active: q.active}
}

// Pending returns a snapshot of the waiting jobs in dequeue order.
func (q *Queue) Pending() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Job, len(q.pending))
	for i, j := range q.pending {
		out[i] = *j
	}
	return out
}
