package domain

import "context"

// JobRepository is the system of record for jobs. Every call is atomic on its
// own; callers do not coordinate transactions.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	// Get returns ErrNotFound when the id is unknown.
	Get(ctx context.Context, id string) (*Job, error)
	// Update applies a partial update and returns the stored result. It returns
	// ErrNotFound for unknown ids and ErrConflict when ExpectStatus does not match.
	Update(ctx context.Context, id string, update JobUpdate) (*Job, error)
	// List returns jobs ordered by CreatedAt descending.
	List(ctx context.Context, filter ListFilter) ([]Job, error)
	Stats(ctx context.Context) (map[Status]int, error)
	Ping(ctx context.Context) error
}
