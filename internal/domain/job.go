package domain

import "time"

// Backend selects the generation engine used by the AI core.
type Backend string

const (
	BackendOllama Backend = "ollama"
	BackendOpenAI Backend = "openai"
)

// DefaultBackend is used when a request omits the backend selector.
const DefaultBackend = BackendOllama

// Valid reports whether b is one of the supported backends.
func (b Backend) Valid() bool {
	switch b {
	case BackendOllama, BackendOpenAI:
		return true
	default:
		return false
	}
}

// Status enumerates job lifecycle states.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusGenerating Status = "Generating"
	StatusCompleted  Status = "Completed"
	StatusFailed     Status = "Failed"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{StatusPending, StatusGenerating, StatusCompleted, StatusFailed}

func (s Status) String() string {
	return string(s)
}

// Terminal reports whether no further transition is defined from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusGenerating, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Transition is a single allowed edge of the job state machine.
type Transition struct {
	From Status
	To   Status
}

// ValidTransitions is the complete job state machine. Pending -> Failed is only
// taken when a job could not be dispatched at all.
var ValidTransitions = []Transition{
	{From: StatusPending, To: StatusGenerating},
	{From: StatusGenerating, To: StatusCompleted},
	{From: StatusGenerating, To: StatusFailed},
	{From: StatusPending, To: StatusFailed},
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// AllowedSources returns the statuses a job may move to s from, in lifecycle
// order. It is empty for Pending.
func AllowedSources(to Status) []Status {
	out := make([]Status, 0, 2)
	for _, t := range ValidTransitions {
		if t.To == to {
			out = append(out, t.From)
		}
	}
	return out
}

// GeneratedFile is one file produced by the generation service.
type GeneratedFile struct {
	Name         string     `json:"name" bson:"name"`
	Content      string     `json:"content" bson:"content"`
	Language     string     `json:"language" bson:"language"`
	Size         *int64     `json:"size,omitempty" bson:"size,omitempty"`
	LastModified *time.Time `json:"last_modified,omitempty" bson:"last_modified,omitempty"`
}

// Job tracks one generation request through its lifecycle. It is exposed as a
// "project" by the HTTP API.
type Job struct {
	ID        string          `json:"id" bson:"project_id"`
	Prompt    string          `json:"prompt" bson:"prompt"`
	Backend   Backend         `json:"backend" bson:"backend"`
	Status    Status          `json:"status" bson:"status"`
	Files     []GeneratedFile `json:"files" bson:"files"`
	Output    string          `json:"output" bson:"output"`
	Error     string          `json:"error,omitempty" bson:"error,omitempty"`
	Metadata  map[string]any  `json:"metadata,omitempty" bson:"metadata,omitempty"`
	Version   int64           `json:"version" bson:"version"`
	CreatedAt time.Time       `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" bson:"updated_at"`
}

// NewJob builds a Pending job with both timestamps set to now.
func NewJob(id, prompt string, backend Backend, metadata map[string]any, now time.Time) *Job {
	return &Job{
		ID:        id,
		Prompt:    prompt,
		Backend:   backend,
		Status:    StatusPending,
		Files:     []GeneratedFile{},
		Metadata:  metadata,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy of the job so callers cannot alias store state.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	out.Files = CloneFiles(j.Files)
	if j.Metadata != nil {
		out.Metadata = make(map[string]any, len(j.Metadata))
		for k, v := range j.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// CloneFiles copies a file slice, never returning nil.
func CloneFiles(files []GeneratedFile) []GeneratedFile {
	out := make([]GeneratedFile, len(files))
	copy(out, files)
	return out
}

// JobUpdate is a partial update: only non-nil fields are written. UpdatedAt is
// always refreshed and Version always incremented by the store.
type JobUpdate struct {
	Status   *Status
	Files    []GeneratedFile
	Output   *string
	Error    *string
	Metadata map[string]any

	// ExpectStatus guards the update: when set, the store applies the update only
	// if the current status equals it, otherwise it returns ErrConflict. A Status
	// change is additionally refused unless CanTransition allows it.
	ExpectStatus *Status
}

// Guard returns the statuses the stored job must currently be in for u to
// apply. A status change is only allowed along ValidTransitions, further
// narrowed by ExpectStatus. ok is false when u carries no status constraint.
// The returned slice is never nil when ok is true; an empty slice matches no job.
func (u JobUpdate) Guard() (statuses []Status, ok bool) {
	switch {
	case u.Status != nil:
		statuses = make([]Status, 0, 2)
		for _, from := range AllowedSources(*u.Status) {
			if u.ExpectStatus == nil || *u.ExpectStatus == from {
				statuses = append(statuses, from)
			}
		}
		return statuses, true
	case u.ExpectStatus != nil:
		return []Status{*u.ExpectStatus}, true
	default:
		return nil, false
	}
}

// Admits reports whether a job currently in status current satisfies Guard.
func (u JobUpdate) Admits(current Status) bool {
	statuses, ok := u.Guard()
	if !ok {
		return true
	}
	for _, s := range statuses {
		if s == current {
			return true
		}
	}
	return false
}

// Apply writes the present fields of u onto j.
func (u JobUpdate) Apply(j *Job, now time.Time) {
	if u.Status != nil {
		j.Status = *u.Status
	}
	if u.Files != nil {
		j.Files = CloneFiles(u.Files)
	}
	if u.Output != nil {
		j.Output = *u.Output
	}
	if u.Error != nil {
		j.Error = *u.Error
	}
	if u.Metadata != nil {
		j.Metadata = u.Metadata
	}
	j.Version++
	j.UpdatedAt = now
}

// ListFilter narrows and paginates List results.
type ListFilter struct {
	Status  *Status
	Backend *Backend
	Limit   int
	Skip    int
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

// Normalize clamps pagination values into the supported range.
func (f ListFilter) Normalize() ListFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Skip < 0 {
		f.Skip = 0
	}
	return f
}

// StatusPtr and friends build JobUpdate fields inline.
func StatusPtr(s Status) *Status { return &s }

func StringPtr(s string) *string { return &s }
