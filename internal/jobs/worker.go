package jobs

import (
	"context"
	"time"

	"lettings_triage_backend/platform/logger"
)

// ClaimStore is the repository surface the worker loop needs.
type ClaimStore interface {
	ClaimDue(ctx context.Context, workerID string, batchSize int, leaseTimeout time.Duration) ([]Job, error)
	MarkRetryOrFailed(ctx context.Context, job *Job, execErr error, retryDelay time.Duration) (Status, error)
	CancelPendingForTerminalConversations(ctx context.Context) (int64, error)
}

// WorkerOptions tune the poll loop.
type WorkerOptions struct {
	WorkerID     string
	PollInterval time.Duration
	BatchSize    int
	LeaseTimeout time.Duration
	RetryDelay   time.Duration
	RunOnce      bool
}

// Stats from one worker cycle.
type Stats struct {
	Swept    int64
	Locked   int
	Sent     int
	Canceled int
	Retried  int
	Failed   int
}

// Worker drains the due jobs: sweep stale conversation jobs, then claim and
// execute batches until the table is quiet, then sleep.
type Worker struct {
	store    ClaimStore
	executor *Executor
	options  WorkerOptions
	log      *logger.Logger
}

func NewWorker(store ClaimStore, executor *Executor, options WorkerOptions, log *logger.Logger) *Worker {
	if options.PollInterval <= 0 {
		options.PollInterval = time.Minute
	}
	if options.BatchSize <= 0 {
		options.BatchSize = 25
	}
	if options.LeaseTimeout <= 0 {
		options.LeaseTimeout = 10 * time.Minute
	}
	if options.RetryDelay <= 0 {
		options.RetryDelay = time.Minute
	}
	return &Worker{store: store, executor: executor, options: options, log: log}
}

// Run polls until the context is canceled, or returns after one cycle when
// RunOnce is set.
func (w *Worker) Run(ctx context.Context) error {
	for {
		stats, err := w.RunCycle(ctx)
		if err != nil {
			w.log.Error("worker cycle error", "worker_id", w.options.WorkerID, "error", err.Error())
		} else {
			w.log.WorkerCycle(w.options.WorkerID,
				int(stats.Swept), stats.Locked, stats.Sent, stats.Canceled, stats.Retried, stats.Failed)
		}

		if w.options.RunOnce {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.options.PollInterval):
		}
	}
}

// RunCycle executes one sweep-and-drain pass.
func (w *Worker) RunCycle(ctx context.Context) (Stats, error) {
	var stats Stats

	swept, err := w.store.CancelPendingForTerminalConversations(ctx)
	if err != nil {
		return stats, err
	}
	stats.Swept = swept

	for {
		claimed, err := w.store.ClaimDue(ctx, w.options.WorkerID, w.options.BatchSize, w.options.LeaseTimeout)
		if err != nil {
			return stats, err
		}
		if len(claimed) == 0 {
			break
		}
		stats.Locked += len(claimed)

		for i := range claimed {
			job := &claimed[i]
			outcome, execErr := w.executor.Execute(ctx, job)
			if execErr == nil {
				if outcome == OutcomeSent {
					stats.Sent++
				} else {
					stats.Canceled++
				}
				continue
			}

			status, markErr := w.store.MarkRetryOrFailed(ctx, job, execErr, w.options.RetryDelay)
			if markErr != nil {
				return stats, markErr
			}
			if status == StatusFailed {
				stats.Failed++
			} else {
				stats.Retried++
			}
		}
	}

	return stats, nil
}
