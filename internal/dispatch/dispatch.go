// Package dispatch posts approved replies in the background and reports how
// each attempt went.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ibeckermayer/replyscout/internal/tasks"
	"github.com/ibeckermayer/replyscout/internal/types"
)

// Poster publishes a reply to the post at url
type Poster interface {
	PostReply(ctx context.Context, url, text string) error
}

// Store records completed posts
type Store interface {
	MarkPosted(ctx context.Context, approvalID int64) error
}

// Notifier delivers outcome messages to the reviewer
type Notifier interface {
	SendPlain(ctx context.Context, text string) error
}

// Job is one approved auto-post
type Job struct {
	ApprovalID int64
	PostID     string
	URL        string
	Tone       types.Tone
	Text       string
}

// Outcome classifies a finished job
type Outcome string

const (
	OutcomePosted   Outcome = "posted"
	OutcomeFailed   Outcome = "failed"
	OutcomeRejected Outcome = "rejected" // queue full or dispatcher closed
)

// Result is reported once per submitted job
type Result struct {
	Job     Job
	Outcome Outcome
	Err     error
}

// Options configures a Dispatcher
type Options struct {
	Workers   int
	QueueSize int
	// Timeout bounds one posting attempt.
	Timeout time.Duration
	// OnResult, if set, is called after each job is settled.
	OnResult func(Result)
}

// Dispatcher runs auto-post jobs on a worker pool
type Dispatcher struct {
	poster   Poster
	store    Store
	notifier Notifier
	opts     Options
	pool     *tasks.Pool
	logger   *slog.Logger
}

const notifyTimeout = 30 * time.Second

// New creates a dispatcher and starts its workers.
func New(poster Poster, store Store, notifier Notifier, opts Options) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Minute
	}
	return &Dispatcher{
		poster:   poster,
		store:    store,
		notifier: notifier,
		opts:     opts,
		pool:     tasks.NewPool("dispatch", opts.Workers, opts.QueueSize),
		logger:   slog.With("component", "dispatch"),
	}
}

// Submit queues job without blocking. When the queue is full the manual
// fallback is sent right away and Submit returns false.
func (d *Dispatcher) Submit(job Job) bool {
	if d.pool.TrySubmit(func(ctx context.Context) { d.run(ctx, job) }) {
		d.logger.Info("auto-post queued", "post", job.PostID, "approval", job.ApprovalID, "tone", job.Tone)
		return true
	}

	d.logger.Warn("auto-post queue full", "post", job.PostID, "approval", job.ApprovalID)
	err := fmt.Errorf("auto-post queue is full")
	d.notify(fallbackMessage(job, "Auto-post queue is full"))
	d.report(Result{Job: job, Outcome: OutcomeRejected, Err: err})
	return false
}

// Close waits for queued and running jobs.
func (d *Dispatcher) Close() {
	d.pool.Close()
}

func (d *Dispatcher) run(ctx context.Context, job Job) {
	attemptCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	err := d.poster.PostReply(attemptCtx, job.URL, job.Text)
	cancel()

	if err != nil {
		d.logger.Error("auto-post failed", "post", job.PostID, "approval", job.ApprovalID, "error", err)
		d.notify(fallbackMessage(job, "Auto-post failed"))
		d.report(Result{Job: job, Outcome: OutcomeFailed, Err: err})
		return
	}

	// The reply is live at this point, so a bookkeeping failure is logged
	// rather than reported as a failed post.
	markCtx, cancel := context.WithTimeout(ctx, notifyTimeout)
	if err := d.store.MarkPosted(markCtx, job.ApprovalID); err != nil {
		d.logger.Error("failed to mark approval posted", "approval", job.ApprovalID, "error", err)
	}
	cancel()

	d.logger.Info("auto-posted", "post", job.PostID, "approval", job.ApprovalID, "tone", job.Tone)
	d.notify(fmt.Sprintf("✅ Auto-posted! (%s)\n\n🔗 %s\n💬 %s", job.Tone.Label(), job.URL, job.Text))
	d.report(Result{Job: job, Outcome: OutcomePosted})
}

func (d *Dispatcher) notify(text string) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := d.notifier.SendPlain(ctx, text); err != nil {
		d.logger.Error("failed to send dispatch notification", "error", err)
	}
}

func (d *Dispatcher) report(r Result) {
	if d.opts.OnResult != nil {
		d.opts.OnResult(r)
	}
}

func fallbackMessage(job Job, reason string) string {
	return fmt.Sprintf("❌ %s, post manually:\n\n🔗 %s\n\n💬 Copy & paste:\n%s", reason, job.URL, job.Text)
}
