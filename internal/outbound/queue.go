// Package outbound propagates local flag changes to Gmail in the background.
package outbound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/corkcrm/michael-mail-2/internal/gmail"
	"github.com/corkcrm/michael-mail-2/internal/token"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
)

// ErrQueueClosed is returned by Close when called twice.
var ErrQueueClosed = errors.New("outbound queue closed")

// Label ids the queue adds or removes.
const (
	LabelUnread  = "UNREAD"
	LabelStarred = "STARRED"
)

// Job is one label modification for one message.
type Job struct {
	ID         string
	UserID     string
	GmailID    string
	Add        []string
	Remove     []string
	EnqueuedAt time.Time
}

// ReadJob returns the job that makes Gmail match a local read flag.
func ReadJob(userID, gmailID string, isRead bool) Job {
	if isRead {
		return Job{UserID: userID, GmailID: gmailID, Remove: []string{LabelUnread}}
	}
	return Job{UserID: userID, GmailID: gmailID, Add: []string{LabelUnread}}
}

// StarJob returns the job that makes Gmail match a local starred flag.
func StarJob(userID, gmailID string, isStarred bool) Job {
	if isStarred {
		return Job{UserID: userID, GmailID: gmailID, Add: []string{LabelStarred}}
	}
	return Job{UserID: userID, GmailID: gmailID, Remove: []string{LabelStarred}}
}

// Authorizer runs a Gmail call with a valid access token.
type Authorizer interface {
	Do(ctx context.Context, userID string, fn func(accessToken string) error) error
}

// Config sizes the queue.
type Config struct {
	Size    int
	Workers int
	// Timeout bounds one job, including a token refresh.
	Timeout time.Duration
}

// Stats are cumulative job counters.
type Stats struct {
	Enqueued  int64
	Succeeded int64
	Failed    int64
	Dropped   int64
}

// Queue is a bounded job queue drained by a fixed set of workers.
// Failed jobs are logged and forgotten.
type Queue struct {
	jobs    chan Job
	api     gmail.API
	auth    Authorizer
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	enqueued  atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// NewQueue creates a queue and starts its workers.
func NewQueue(cfg Config, api gmail.API, auth Authorizer, logger *slog.Logger) *Queue {
	if cfg.Size <= 0 {
		cfg.Size = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger = logger.With("component", "outbound")
	ctx, cancel := context.WithCancel(context.Background())

	q := &Queue{
		jobs:    make(chan Job, cfg.Size),
		api:     api,
		auth:    auth,
		timeout: cfg.Timeout,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
	q.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gmail-modify",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		IsSuccessful: countsAsHealthy,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})

	for i := 0; i < cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}

	return q
}

// countsAsHealthy reports whether an error says nothing about Gmail's
// health. Auth and client errors concern one user or one message.
func countsAsHealthy(err error) bool {
	if err == nil || errors.Is(err, token.ErrAuthExpired) {
		return true
	}
	var statusErr *gmail.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= http.StatusBadRequest && statusErr.Code < http.StatusInternalServerError &&
			statusErr.Code != http.StatusTooManyRequests
	}
	return false
}

// Enqueue adds a job without blocking. A full or closed queue drops the job
// and reports false.
func (q *Queue) Enqueue(job Job) bool {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.EnqueuedAt = time.Now()

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.dropped.Add(1)
		q.logger.Warn("Dropped job, queue closed", "job_id", job.ID, "user_id", job.UserID, "gmail_id", job.GmailID)
		return false
	}

	select {
	case q.jobs <- job:
		q.enqueued.Add(1)
		return true
	default:
		q.dropped.Add(1)
		q.logger.Warn("Dropped job, queue full", "job_id", job.ID, "user_id", job.UserID, "gmail_id", job.GmailID)
		return false
	}
}

// Stats returns a snapshot of the counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Enqueued:  q.enqueued.Load(),
		Succeeded: q.succeeded.Load(),
		Failed:    q.failed.Load(),
		Dropped:   q.dropped.Load(),
	}
}

// Close stops intake and waits for pending jobs to finish. When ctx ends
// first, in-flight calls are cancelled and the remaining jobs fail fast.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return fmt.Errorf("outbound drain interrupted: %w", ctx.Err())
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()

	for job := range q.jobs {
		q.process(job)
	}
}

func (q *Queue) process(job Job) {
	ctx, cancel := context.WithTimeout(q.ctx, q.timeout)
	defer cancel()

	_, err := q.breaker.Execute(func() (any, error) {
		return nil, q.auth.Do(ctx, job.UserID, func(accessToken string) error {
			return q.api.ModifyLabels(ctx, accessToken, job.GmailID, job.Add, job.Remove)
		})
	})
	if err != nil {
		q.failed.Add(1)
		q.logger.Warn("Failed to update Gmail labels",
			"job_id", job.ID,
			"user_id", job.UserID,
			"gmail_id", job.GmailID,
			"add", job.Add,
			"remove", job.Remove,
			"error", err,
		)
		return
	}

	q.succeeded.Add(1)
	q.logger.Debug("Updated Gmail labels", "job_id", job.ID, "gmail_id", job.GmailID, "latency", time.Since(job.EnqueuedAt))
}
