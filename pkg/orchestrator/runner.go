package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/payscope/payscope/pkg/kernel/retry"
	"github.com/payscope/payscope/pkg/model"
	"github.com/payscope/payscope/pkg/payscopeerr"
)

// Pipeline is the ordered set of stages a Runner drives a ParseJob through:
// extract → tag → map → validate → persist → audit (§3 lifecycle). Stages
// are composed by the caller (cmd/payscope) so the orchestrator stays
// decoupled from the extractor/tagger/mapper/validator/persister packages.
type Pipeline []NamedStage

// NamedStage pairs a stage with the name used in logs and DLQ records.
type NamedStage struct {
	Name string
	Run  StageFunc
}

// RunnerConfig controls retry and lease behavior.
type RunnerConfig struct {
	MaxRetries    int
	LeaseDuration time.Duration
	StageTimeout  time.Duration
	BackoffPolicy retry.BackoffPolicy
}

// DefaultRunnerConfig matches spec defaults: max_retries=5, per-stage
// timeout from STAGE_TIMEOUT_SECONDS (30s default).
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		MaxRetries:    5,
		LeaseDuration: 5 * time.Minute,
		StageTimeout:  30 * time.Second,
		BackoffPolicy: retry.BackoffPolicy{
			PolicyID:    "parse-job-stage",
			BaseMs:      500,
			MaxMs:       30_000,
			MaxJitterMs: 250,
			MaxAttempts: 5,
		},
	}
}

// Runner claims jobs from a Queue and drives each through a Pipeline,
// applying the failure semantics from §7: transient errors retry with
// backoff+jitter up to MaxRetries, non-retryable errors and exhausted
// retries go to the DLQ with {error_class, error_detail, payload_ref}.
type Runner struct {
	queue    Queue
	pipeline Pipeline
	cfg      RunnerConfig
	logger   *slog.Logger
}

// NewRunner builds a Runner over queue driving jobs through pipeline.
func NewRunner(queue Queue, pipeline Pipeline, cfg RunnerConfig) *Runner {
	return &Runner{queue: queue, pipeline: pipeline, cfg: cfg, logger: slog.Default().With("component", "orchestrator")}
}

// RunOnce claims a single job and drives it to completion, retry, or DLQ.
// It returns ErrNoPendingJobs when the queue is empty so the caller's poll
// loop can sleep rather than busy-spin.
func (r *Runner) RunOnce(ctx context.Context) error {
	job, err := r.queue.Claim(ctx, r.cfg.LeaseDuration)
	if err != nil {
		return err
	}
	r.runJob(ctx, job)
	return nil
}

func (r *Runner) runJob(ctx context.Context, job model.ParseJob) {
	log := r.logger.With("bank_id", job.BankID, "job_id", job.JobID, "artifact_id", job.ArtifactID)

	for _, stage := range r.pipeline {
		stageCtx, cancel := context.WithTimeout(ctx, r.cfg.StageTimeout)
		err := stage.Run(stageCtx, job)
		cancel()
		if err == nil {
			continue
		}

		kind, typed := payscopeerr.KindOf(err)
		log = log.With("stage", stage.Name, "error_detail", err.Error())
		if typed {
			log = log.With("error_class", string(kind))
		}

		if typed && !kind.Retryable() {
			log.Error("parse job failed: non-retryable")
			r.deadLetter(ctx, job, string(kind), err.Error())
			return
		}

		if job.AttemptCount >= r.cfg.MaxRetries {
			log.Error("parse job failed: retries exhausted")
			r.deadLetter(ctx, job, "retries_exhausted", err.Error())
			return
		}

		delay := retry.ComputeBackoff(retry.BackoffParams{
			PolicyID:     r.cfg.BackoffPolicy.PolicyID,
			EffectID:     job.JobID,
			AttemptIndex: job.AttemptCount,
			EnvSnapHash:  stage.Name,
		}, r.cfg.BackoffPolicy)
		log.Warn("parse job stage failed, retrying", "backoff_delay", delay)
		if rerr := r.queue.Retry(ctx, job.JobID, job.ClaimToken, err.Error(), delay); rerr != nil {
			log.Error("failed to return job to queue", "error", rerr)
		}
		return
	}

	if err := r.queue.Complete(ctx, job.JobID, job.ClaimToken); err != nil {
		log.Error("failed to mark job succeeded", "error", err)
	}
}

func (r *Runner) deadLetter(ctx context.Context, job model.ParseJob, errorClass, errorDetail string) {
	payloadRef := job.ArtifactID
	if err := r.queue.DeadLetter(ctx, job.JobID, job.ClaimToken, errorClass, errorDetail, payloadRef); err != nil {
		r.logger.Error("failed to write DLQ entry", "job_id", job.JobID, "error", err)
	}
}

// ReleaseExpiredLeasesLoop runs ReleaseExpiredLeases on a ticker until ctx
// is cancelled, implementing the "crashed workers release claims after a
// timeout" behavior from §5.
func (r *Runner) ReleaseExpiredLeasesLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.queue.ReleaseExpiredLeases(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Error("release expired leases", "error", err)
				continue
			}
			if n > 0 {
				r.logger.Info("released expired leases", "count", n)
			}
		}
	}
}

// PollLoop repeatedly claims and runs jobs, sleeping pollInterval whenever
// the queue is empty, until ctx is cancelled. This is the worker goroutine
// cmd/payscope spawns per configured concurrency slot (§5: "processing
// workers are OS-threaded and CPU-pinned per stage").
func (r *Runner) PollLoop(ctx context.Context, pollInterval time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		err := r.RunOnce(ctx)
		if errors.Is(err, ErrNoPendingJobs) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollInterval):
			}
			continue
		}
		if err != nil {
			r.logger.Error("claim failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollInterval):
			}
		}
	}
}
