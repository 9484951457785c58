package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"genesis/internal/domain"
	"genesis/internal/infra"
	"genesis/internal/sqlinline"
)

const pgUniqueViolation = "23505"

// JobRepositoryPG implements domain.JobRepository on the projects table.
type JobRepositoryPG struct {
	db infra.SQLExecutor
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(db infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{db: db}
}

// EnsureSchema creates the projects table and its indexes when missing.
func (r *JobRepositoryPG) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, sqlinline.QProjectsEnsureSchema); err != nil {
		return storeError("ensure schema", err)
	}
	return nil
}

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	files, err := json.Marshal(domain.CloneFiles(job.Files))
	if err != nil {
		return fmt.Errorf("encode files: %w", err)
	}
	metadata, err := nullableJSON(job.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	_, err = r.db.Exec(ctx, sqlinline.QProjectInsert,
		job.ID,
		job.Prompt,
		string(job.Backend),
		string(job.Status),
		files,
		job.Output,
		job.Error,
		metadata,
		job.Version,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("%w: project %s already exists", domain.ErrConflict, job.ID)
		}
		return storeError("insert project", err)
	}
	return nil
}

// Get fetches a job by its identifier.
func (r *JobRepositoryPG) Get(ctx context.Context, id string) (*domain.Job, error) {
	job, err := scanJob(r.db.QueryRow(ctx, sqlinline.QProjectGet, id))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, storeError("get project", err)
	}
	return job, nil
}

// Update applies the present fields of update. When the row is not returned
// the id is checked again to tell a missing job from a failed status guard.
func (r *JobRepositoryPG) Update(ctx context.Context, id string, update domain.JobUpdate) (*domain.Job, error) {
	var files []byte
	if update.Files != nil {
		encoded, err := json.Marshal(update.Files)
		if err != nil {
			return nil, fmt.Errorf("encode files: %w", err)
		}
		files = encoded
	}
	metadata, err := nullableJSON(update.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	job, err := scanJob(r.db.QueryRow(ctx, sqlinline.QProjectUpdate,
		id,
		statusArg(update.Status),
		files,
		update.Output,
		update.Error,
		metadata,
		guardArg(update),
	))
	if err == nil {
		return job, nil
	}
	if !infra.IsNoRows(err) {
		return nil, storeError("update project", err)
	}

	var exists bool
	if err := r.db.QueryRow(ctx, sqlinline.QProjectExists, id).Scan(&exists); err != nil {
		return nil, storeError("check project", err)
	}
	if _, guarded := update.Guard(); !exists || !guarded {
		return nil, domain.ErrNotFound
	}
	if update.Status != nil {
		return nil, fmt.Errorf("%w: project %s cannot move to %s", domain.ErrConflict, id, *update.Status)
	}
	return nil, fmt.Errorf("%w: project %s is not %s", domain.ErrConflict, id, *update.ExpectStatus)
}

// List returns jobs newest first.
func (r *JobRepositoryPG) List(ctx context.Context, filter domain.ListFilter) ([]domain.Job, error) {
	filter = filter.Normalize()
	var backend *string
	if filter.Backend != nil {
		b := string(*filter.Backend)
		backend = &b
	}

	rows, err := r.db.Query(ctx, sqlinline.QProjectList, statusArg(filter.Status), backend, filter.Limit, filter.Skip)
	if err != nil {
		return nil, storeError("list projects", err)
	}
	defer rows.Close()

	jobs := make([]domain.Job, 0, filter.Limit)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, storeError("scan project", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list projects", err)
	}
	return jobs, nil
}

// Stats counts jobs per status. Statuses without jobs are reported as zero.
func (r *JobRepositoryPG) Stats(ctx context.Context) (map[domain.Status]int, error) {
	rows, err := r.db.Query(ctx, sqlinline.QProjectStats)
	if err != nil {
		return nil, storeError("project stats", err)
	}
	defer rows.Close()

	out := emptyStats()
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, storeError("scan stats", err)
		}
		out[domain.Status(status)] = int(count)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("project stats", err)
	}
	return out, nil
}

func (r *JobRepositoryPG) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job                  domain.Job
		backend, status      string
		files, metadata      []byte
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(
		&job.ID,
		&job.Prompt,
		&backend,
		&status,
		&files,
		&job.Output,
		&job.Error,
		&metadata,
		&job.Version,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	job.Backend = domain.Backend(backend)
	job.Status = domain.Status(status)
	job.CreatedAt = createdAt.UTC()
	job.UpdatedAt = updatedAt.UTC()

	job.Files = []domain.GeneratedFile{}
	if len(files) > 0 {
		if err := json.Unmarshal(files, &job.Files); err != nil {
			return nil, fmt.Errorf("decode files: %w", err)
		}
	}
	if len(metadata) > 0 && string(metadata) != "null" {
		if err := json.Unmarshal(metadata, &job.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &job, nil
}

func statusArg(s *domain.Status) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

// guardArg is NULL for unguarded updates and otherwise a text[] that is never
// nil, so an impossible transition matches no row.
func guardArg(update domain.JobUpdate) []string {
	statuses, ok := update.Guard()
	if !ok {
		return nil
	}
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}

func nullableJSON(v map[string]any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func emptyStats() map[domain.Status]int {
	out := make(map[domain.Status]int, len(domain.AllStatuses))
	for _, s := range domain.AllStatuses {
		out[s] = 0
	}
	return out
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
