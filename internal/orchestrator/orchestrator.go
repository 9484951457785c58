// Package orchestrator owns the job lifecycle: it admits requests, hands each
// job to the worker pool exactly once and records the terminal outcome.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"genesis/internal/domain"
	"genesis/internal/infra"
	"genesis/internal/providers/aicore"
	"genesis/internal/validation"
	"genesis/internal/worker"
)

// ErrAlreadyDispatched is returned when a job is in flight or no longer
// Pending.
var ErrAlreadyDispatched = errors.New("job already dispatched")

const terminalWriteTimeout = 10 * time.Second

// Generator produces project files for a prompt.
type Generator interface {
	Run(ctx context.Context, prompt string, backend domain.Backend) (*aicore.Result, error)
}

// Dispatcher runs tasks asynchronously. *worker.Pool implements it.
type Dispatcher interface {
	Submit(task worker.Task) error
}

// ArtifactSink receives the files of completed jobs.
type ArtifactSink interface {
	WriteProject(ctx context.Context, id string, files []domain.GeneratedFile) ([]string, error)
}

type Options struct {
	Logger    *infra.Logger
	Artifacts ArtifactSink
	NewID     func() string
}

type Orchestrator struct {
	store      domain.JobRepository
	generator  Generator
	dispatcher Dispatcher
	artifacts  ArtifactSink
	logger     *infra.Logger
	newID      func() string

	inflight sync.Map
}

func New(store domain.JobRepository, generator Generator, dispatcher Dispatcher, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &Orchestrator{
		store:      store,
		generator:  generator,
		dispatcher: dispatcher,
		artifacts:  opts.Artifacts,
		logger:     logger,
		newID:      newID,
	}
}

// Submit validates the request, stores a Pending job and queues it. It returns
// as soon as the job is queued. When the queue is full the job is marked
// Failed and the id is returned together with an error wrapping
// domain.ErrQueueFull. After the pool has stopped the job stays Pending for the
// next start and the error wraps domain.ErrUnavailable.
func (o *Orchestrator) Submit(ctx context.Context, prompt, backend string, metadata map[string]any) (string, error) {
	resolved, err := validation.Generate(validation.GenerateRequest{Prompt: prompt, Backend: backend, Metadata: metadata})
	if err != nil {
		return "", err
	}

	job := domain.NewJob(o.newID(), prompt, resolved, metadata, time.Now().UTC())
	if err := o.store.Create(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	o.logger.Info().Str("project_id", job.ID).Str("backend", string(resolved)).Msg("orchestrator: job created")

	if err := o.enqueue(job.ID); err != nil {
		if errors.Is(err, domain.ErrQueueFull) {
			o.failUndispatched(ctx, job.ID, err)
		}
		return job.ID, err
	}
	return job.ID, nil
}

// Dispatch queues an existing Pending job that is not already in flight.
func (o *Orchestrator) Dispatch(ctx context.Context, id string) error {
	job, err := o.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.Status != domain.StatusPending {
		return fmt.Errorf("%w: %s is %s", ErrAlreadyDispatched, id, job.Status)
	}
	return o.enqueue(id)
}

// ResumePending queues every stored Pending job, oldest first. It is used at
// startup with durable stores and returns how many jobs were queued.
func (o *Orchestrator) ResumePending(ctx context.Context) (int, error) {
	jobs, err := o.listAll(ctx, domain.StatusPending)
	if err != nil {
		return 0, err
	}

	queued := 0
	for i := len(jobs) - 1; i >= 0; i-- {
		err := o.enqueue(jobs[i].ID)
		switch {
		case err == nil:
			queued++
		case errors.Is(err, ErrAlreadyDispatched):
		default:
			return queued, err
		}
	}
	return queued, nil
}

// FailStale marks Generating jobs that are not running in this process and
// have not been touched for olderThan as Failed. A crash between the
// Generating and terminal writes leaves such jobs behind.
func (o *Orchestrator) FailStale(ctx context.Context, olderThan time.Duration) (int, error) {
	jobs, err := o.listAll(ctx, domain.StatusGenerating)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().UTC().Add(-olderThan)
	failed := 0
	for _, job := range jobs {
		if _, running := o.inflight.Load(job.ID); running || job.UpdatedAt.After(cutoff) {
			continue
		}
		msg := fmt.Sprintf("Generation abandoned: no progress since %s", job.UpdatedAt.Format(time.RFC3339))
		_, err := o.store.Update(ctx, job.ID, domain.JobUpdate{
			Status:       domain.StatusPtr(domain.StatusFailed),
			Output:       domain.StringPtr(msg),
			Error:        domain.StringPtr("Abandoned: " + msg),
			ExpectStatus: domain.StatusPtr(domain.StatusGenerating),
		})
		switch {
		case err == nil:
			failed++
			o.logger.Warn().Str("project_id", job.ID).Time("updated_at", job.UpdatedAt).Msg("orchestrator: stale job failed")
		case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrNotFound):
		default:
			return failed, err
		}
	}
	return failed, nil
}

// listAll pages through every job with status, newest first. Ids are collected
// before acting so status changes cannot shift the pages.
func (o *Orchestrator) listAll(ctx context.Context, status domain.Status) ([]domain.Job, error) {
	var out []domain.Job
	for skip := 0; ; skip += domain.MaxListLimit {
		jobs, err := o.store.List(ctx, domain.ListFilter{
			Status: domain.StatusPtr(status),
			Limit:  domain.MaxListLimit,
			Skip:   skip,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, jobs...)
		if len(jobs) < domain.MaxListLimit {
			return out, nil
		}
	}
}

func (o *Orchestrator) enqueue(id string) error {
	if _, loaded := o.inflight.LoadOrStore(id, struct{}{}); loaded {
		return fmt.Errorf("%w: %s", ErrAlreadyDispatched, id)
	}
	err := o.dispatcher.Submit(func(ctx context.Context) error {
		return o.process(ctx, id)
	})
	if err != nil {
		o.inflight.Delete(id)
		switch {
		case errors.Is(err, worker.ErrQueueFull):
			return fmt.Errorf("%w: %v", domain.ErrQueueFull, err)
		case errors.Is(err, worker.ErrPoolStopped):
			return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
		}
		return err
	}
	return nil
}

func (o *Orchestrator) failUndispatched(ctx context.Context, id string, cause error) {
	msg := "Generation could not be scheduled: " + cause.Error()
	_, err := o.store.Update(ctx, id, domain.JobUpdate{
		Status:       domain.StatusPtr(domain.StatusFailed),
		Output:       domain.StringPtr(msg),
		Error:        domain.StringPtr(msg),
		ExpectStatus: domain.StatusPtr(domain.StatusPending),
	})
	if err != nil {
		o.logger.Error().Err(err).Str("project_id", id).Msg("orchestrator: failed to mark undispatched job")
	}
}

// process drives one job from Pending to a terminal status. Every write is
// guarded on the status it expects so a concurrent writer cannot be
// overwritten.
func (o *Orchestrator) process(ctx context.Context, id string) error {
	defer o.inflight.Delete(id)

	job, err := o.store.Update(ctx, id, domain.JobUpdate{
		Status:       domain.StatusPtr(domain.StatusGenerating),
		ExpectStatus: domain.StatusPtr(domain.StatusPending),
	})
	if err != nil {
		o.logger.Error().Err(err).Str("project_id", id).Msg("orchestrator: could not start job")
		return fmt.Errorf("start job %s: %w", id, err)
	}

	start := time.Now()
	res, runErr := o.generator.Run(ctx, job.Prompt, job.Backend)

	// The task context may already be cancelled; the terminal write must
	// still land.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
	defer cancel()

	if runErr != nil {
		output, structured := describeFailure(runErr)
		_, err := o.store.Update(writeCtx, id, domain.JobUpdate{
			Status:       domain.StatusPtr(domain.StatusFailed),
			Output:       domain.StringPtr(output),
			Error:        domain.StringPtr(structured),
			ExpectStatus: domain.StatusPtr(domain.StatusGenerating),
		})
		if err != nil {
			o.logger.Error().Err(err).Str("project_id", id).Msg("orchestrator: failed to record failure")
			return fmt.Errorf("record failure of %s: %w", id, err)
		}
		o.logger.Warn().Err(runErr).Str("project_id", id).Dur("took", time.Since(start)).Msg("orchestrator: job failed")
		return nil
	}

	files := domain.CloneFiles(res.Files)
	if _, err := o.store.Update(writeCtx, id, domain.JobUpdate{
		Status:       domain.StatusPtr(domain.StatusCompleted),
		Files:        files,
		Output:       domain.StringPtr(res.Output),
		ExpectStatus: domain.StatusPtr(domain.StatusGenerating),
	}); err != nil {
		o.logger.Error().Err(err).Str("project_id", id).Msg("orchestrator: failed to record completion")
		return fmt.Errorf("record completion of %s: %w", id, err)
	}
	o.logger.Info().Str("project_id", id).Int("files", len(files)).Dur("took", time.Since(start)).Msg("orchestrator: job completed")

	if o.artifacts != nil && len(files) > 0 {
		if _, err := o.artifacts.WriteProject(writeCtx, id, files); err != nil {
			o.logger.Warn().Err(err).Str("project_id", id).Msg("orchestrator: failed to store artifacts")
		}
	}
	return nil
}

func describeFailure(err error) (output, structured string) {
	kind, ok := aicore.KindOf(err)
	if !ok {
		kind = "InternalError"
	}
	return "Generation failed: " + err.Error(), fmt.Sprintf("%s: %v", kind, err)
}

func (o *Orchestrator) Get(ctx context.Context, id string) (*domain.Job, error) {
	return o.store.Get(ctx, id)
}

func (o *Orchestrator) List(ctx context.Context, filter domain.ListFilter) ([]domain.Job, error) {
	return o.store.List(ctx, filter)
}

func (o *Orchestrator) Stats(ctx context.Context) (map[domain.Status]int, error) {
	return o.store.Stats(ctx)
}

// InFlight counts jobs queued or running in this process.
func (o *Orchestrator) InFlight() int {
	n := 0
	o.inflight.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
