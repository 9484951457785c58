package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"genesis/internal/domain"
)

// JobRepositoryMemory keeps jobs in process memory. It is the default store
// for development and the reference the other stores are tested against.
type JobRepositoryMemory struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
	now  func() time.Time
}

func NewJobRepositoryMemory() *JobRepositoryMemory {
	return &JobRepositoryMemory{
		jobs: make(map[string]*domain.Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (r *JobRepositoryMemory) Create(ctx context.Context, job *domain.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; ok {
		return fmt.Errorf("%w: project %s already exists", domain.ErrConflict, job.ID)
	}
	r.jobs[job.ID] = job.Clone()
	return nil
}

func (r *JobRepositoryMemory) Get(ctx context.Context, id string) (*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return job.Clone(), nil
}

func (r *JobRepositoryMemory) Update(ctx context.Context, id string, update domain.JobUpdate) (*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !update.Admits(job.Status) {
		return nil, conflictError(id, job.Status, update)
	}
	update.Apply(job, r.now())
	return job.Clone(), nil
}

func (r *JobRepositoryMemory) List(ctx context.Context, filter domain.ListFilter) ([]domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filter = filter.Normalize()

	r.mu.RLock()
	matched := make([]domain.Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		if filter.Status != nil && job.Status != *filter.Status {
			continue
		}
		if filter.Backend != nil && job.Backend != *filter.Backend {
			continue
		}
		matched = append(matched, *job.Clone())
	}
	r.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Skip >= len(matched) {
		return []domain.Job{}, nil
	}
	end := filter.Skip + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[filter.Skip:end], nil
}

func (r *JobRepositoryMemory) Stats(ctx context.Context) (map[domain.Status]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := emptyStats()
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, job := range r.jobs {
		out[job.Status]++
	}
	return out, nil
}

func (r *JobRepositoryMemory) Ping(ctx context.Context) error {
	return ctx.Err()
}

var _ domain.JobRepository = (*JobRepositoryMemory)(nil)

func conflictError(id string, current domain.Status, update domain.JobUpdate) error {
	if update.Status != nil {
		return fmt.Errorf("%w: project %s cannot move from %s to %s", domain.ErrConflict, id, current, *update.Status)
	}
	return fmt.Errorf("%w: project %s is %s, not %s", domain.ErrConflict, id, current, *update.ExpectStatus)
}
