package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	exposuregraph "github.com/exposure-graph/exposuregraph"
	"github.com/exposure-graph/exposuregraph/queue"
)

// Worker drains the scan queue: it pops jobs, runs the pipeline, and
// publishes a result per job. Several workers can share one queue; redis
// hands each job to exactly one of them.
type Worker struct {
	queue    queue.Client
	scanner  *Scanner
	workerID string
	logger   *slog.Logger
}

// NewWorker wires a worker. The worker ID is generated; it appears in
// published results so operators can tell which worker handled a job.
func NewWorker(q queue.Client, scanner *Scanner, logger *slog.Logger) (*Worker, error) {
	const op = "scan.NewWorker"

	if q == nil {
		return nil, exposuregraph.NewConfigurationError(op, fmt.Errorf("queue client is required"))
	}
	if scanner == nil {
		return nil, exposuregraph.NewConfigurationError(op, fmt.Errorf("scanner is required"))
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		queue:    q,
		scanner:  scanner,
		workerID: uuid.NewString(),
		logger:   logger,
	}, nil
}

// ID returns the worker's generated identifier.
func (w *Worker) ID() string {
	return w.workerID
}

// Run processes jobs until the context is canceled. Job failures are
// published as results and do not stop the loop; only queue transport
// faults and cancellation end it.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("scan worker started", "worker_id", w.workerID)

	for {
		job, err := w.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				w.logger.Info("scan worker stopped", "worker_id", w.workerID)
				return nil
			}
			return err
		}
		if job == nil {
			continue
		}

		w.process(ctx, *job)
	}
}

// process runs one job and publishes its result. A failed publish is logged
// but does not fail the worker; the scan's graph writes already happened.
func (w *Worker) process(ctx context.Context, job queue.ScanJob) {
	w.logger.Info("processing scan job",
		"job_id", job.JobID, "domain", job.Domain, "queued_for", job.Age())

	result := queue.ScanResult{
		JobID:     job.JobID,
		Domain:    job.Domain,
		WorkerID:  w.workerID,
		StartedAt: time.Now().UnixMilli(),
	}

	summary, err := w.scanner.Scan(ctx, job.Domain)
	if err != nil {
		result.Error = err.Error()
	} else {
		result.Subdomains = summary.Subdomains
		result.LiveServices = summary.LiveServices
		result.Scored = summary.Scored
	}
	result.CompletedAt = time.Now().UnixMilli()

	if err := w.queue.PublishResult(ctx, result); err != nil {
		w.logger.Error("failed to publish scan result",
			"job_id", job.JobID, "error", err)
	}
}
