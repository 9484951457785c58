package repo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"genesis/internal/domain"
)

// testJobRepositoryContract exercises the behaviour every job store shares.
// newRepo must return an empty store.
func testJobRepositoryContract(t *testing.T, newRepo func(t *testing.T) domain.JobRepository) {
	t.Helper()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("create and get", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		job := domain.NewJob("p-1", "build a todo app in go", domain.BackendOllama, map[string]any{"source": "test"}, base)
		if err := repo.Create(ctx, job); err != nil {
			t.Fatalf("create: %v", err)
		}
		got, err := repo.Get(ctx, "p-1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Status != domain.StatusPending || got.Prompt != job.Prompt || got.Backend != domain.BackendOllama {
			t.Fatalf("unexpected job: %+v", got)
		}
		if got.Files == nil || len(got.Files) != 0 {
			t.Fatalf("files = %#v, want empty slice", got.Files)
		}
		if got.Metadata["source"] != "test" {
			t.Fatalf("metadata = %#v", got.Metadata)
		}
		if !got.CreatedAt.Equal(base) {
			t.Fatalf("created_at = %v, want %v", got.CreatedAt, base)
		}
	})

	t.Run("duplicate create conflicts", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		job := domain.NewJob("p-dup", "build a todo app in go", domain.BackendOllama, nil, base)
		if err := repo.Create(ctx, job); err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := repo.Create(ctx, job); !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("second create err = %v, want ErrConflict", err)
		}
	})

	t.Run("get unknown", func(t *testing.T) {
		repo := newRepo(t)
		if _, err := repo.Get(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("partial update", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		if err := repo.Create(ctx, domain.NewJob("p-2", "build a todo app in go", domain.BackendOpenAI, nil, base)); err != nil {
			t.Fatalf("create: %v", err)
		}

		updated, err := repo.Update(ctx, "p-2", domain.JobUpdate{
			Status:       domain.StatusPtr(domain.StatusGenerating),
			ExpectStatus: domain.StatusPtr(domain.StatusPending),
		})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if updated.Status != domain.StatusGenerating || updated.Version != 2 {
			t.Fatalf("unexpected after first update: %+v", updated)
		}
		if updated.UpdatedAt.Before(updated.CreatedAt) {
			t.Fatalf("updated_at %v before created_at %v", updated.UpdatedAt, updated.CreatedAt)
		}

		files := []domain.GeneratedFile{
			{Name: "main.go", Content: "package main", Language: "go"},
			{Name: "README.md", Content: "# todo", Language: "markdown"},
		}
		updated, err = repo.Update(ctx, "p-2", domain.JobUpdate{
			Status:       domain.StatusPtr(domain.StatusCompleted),
			Files:        files,
			Output:       domain.StringPtr("done"),
			ExpectStatus: domain.StatusPtr(domain.StatusGenerating),
		})
		if err != nil {
			t.Fatalf("second update: %v", err)
		}
		if updated.Status != domain.StatusCompleted || updated.Output != "done" || updated.Version != 3 {
			t.Fatalf("unexpected after second update: %+v", updated)
		}
		if len(updated.Files) != 2 || updated.Files[0].Name != "main.go" || updated.Files[1].Name != "README.md" {
			t.Fatalf("files = %+v", updated.Files)
		}
		if updated.Prompt != "build a todo app in go" {
			t.Fatalf("prompt changed: %q", updated.Prompt)
		}
	})

	t.Run("guarded update conflicts", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		if err := repo.Create(ctx, domain.NewJob("p-3", "build a todo app in go", domain.BackendOllama, nil, base)); err != nil {
			t.Fatalf("create: %v", err)
		}
		_, err := repo.Update(ctx, "p-3", domain.JobUpdate{
			Status:       domain.StatusPtr(domain.StatusCompleted),
			ExpectStatus: domain.StatusPtr(domain.StatusGenerating),
		})
		if !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("err = %v, want ErrConflict", err)
		}
		got, err := repo.Get(ctx, "p-3")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Status != domain.StatusPending || got.Version != 1 {
			t.Fatalf("guarded update was applied: %+v", got)
		}
	})

	t.Run("status change outside the state machine", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		if err := repo.Create(ctx, domain.NewJob("done", "build a todo app in go", domain.BackendOllama, nil, base)); err != nil {
			t.Fatalf("create: %v", err)
		}
		for _, to := range []domain.Status{domain.StatusGenerating, domain.StatusCompleted} {
			if _, err := repo.Update(ctx, "done", domain.JobUpdate{Status: domain.StatusPtr(to)}); err != nil {
				t.Fatalf("move to %s: %v", to, err)
			}
		}
		for _, to := range []domain.Status{domain.StatusPending, domain.StatusGenerating, domain.StatusFailed} {
			_, err := repo.Update(ctx, "done", domain.JobUpdate{Status: domain.StatusPtr(to), Error: domain.StringPtr("late")})
			if !errors.Is(err, domain.ErrConflict) {
				t.Fatalf("Completed -> %s: err = %v, want ErrConflict", to, err)
			}
		}
		got, err := repo.Get(ctx, "done")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Status != domain.StatusCompleted || got.Error != "" || got.Version != 3 {
			t.Fatalf("terminal job was modified: %+v", got)
		}
	})

	t.Run("update unknown", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Update(context.Background(), "missing", domain.JobUpdate{Output: domain.StringPtr("x")})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
		_, err = repo.Update(context.Background(), "missing", domain.JobUpdate{
			Status:       domain.StatusPtr(domain.StatusGenerating),
			ExpectStatus: domain.StatusPtr(domain.StatusPending),
		})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("guarded err = %v, want ErrNotFound", err)
		}
	})

	t.Run("list newest first with filters", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		for i := 0; i < 5; i++ {
			backend := domain.BackendOllama
			if i%2 == 1 {
				backend = domain.BackendOpenAI
			}
			job := domain.NewJob(fmt.Sprintf("p-%d", i), "build a todo app in go", backend, nil, base.Add(time.Duration(i)*time.Minute))
			if err := repo.Create(ctx, job); err != nil {
				t.Fatalf("create %d: %v", i, err)
			}
		}
		if _, err := repo.Update(ctx, "p-4", domain.JobUpdate{Status: domain.StatusPtr(domain.StatusGenerating)}); err != nil {
			t.Fatalf("update: %v", err)
		}

		all, err := repo.List(ctx, domain.ListFilter{})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if ids := jobIDs(all); fmt.Sprint(ids) != "[p-4 p-3 p-2 p-1 p-0]" {
			t.Fatalf("order = %v", ids)
		}

		page, err := repo.List(ctx, domain.ListFilter{Limit: 2, Skip: 1})
		if err != nil {
			t.Fatalf("list page: %v", err)
		}
		if ids := jobIDs(page); fmt.Sprint(ids) != "[p-3 p-2]" {
			t.Fatalf("page = %v", ids)
		}

		openai, err := repo.List(ctx, domain.ListFilter{Backend: backendPtr(domain.BackendOpenAI)})
		if err != nil {
			t.Fatalf("list openai: %v", err)
		}
		if ids := jobIDs(openai); fmt.Sprint(ids) != "[p-3 p-1]" {
			t.Fatalf("openai = %v", ids)
		}

		generating, err := repo.List(ctx, domain.ListFilter{Status: domain.StatusPtr(domain.StatusGenerating)})
		if err != nil {
			t.Fatalf("list generating: %v", err)
		}
		if ids := jobIDs(generating); fmt.Sprint(ids) != "[p-4]" {
			t.Fatalf("generating = %v", ids)
		}

		beyond, err := repo.List(ctx, domain.ListFilter{Skip: 50})
		if err != nil {
			t.Fatalf("list beyond: %v", err)
		}
		if len(beyond) != 0 {
			t.Fatalf("expected empty page, got %v", jobIDs(beyond))
		}
	})

	t.Run("stats", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		for i := 0; i < 3; i++ {
			if err := repo.Create(ctx, domain.NewJob(fmt.Sprintf("s-%d", i), "build a todo app in go", domain.BackendOllama, nil, base)); err != nil {
				t.Fatalf("create: %v", err)
			}
		}
		if _, err := repo.Update(ctx, "s-0", domain.JobUpdate{Status: domain.StatusPtr(domain.StatusFailed)}); err != nil {
			t.Fatalf("update: %v", err)
		}
		stats, err := repo.Stats(ctx)
		if err != nil {
			t.Fatalf("stats: %v", err)
		}
		if stats[domain.StatusPending] != 2 || stats[domain.StatusFailed] != 1 || stats[domain.StatusCompleted] != 0 {
			t.Fatalf("stats = %v", stats)
		}
		if _, ok := stats[domain.StatusGenerating]; !ok {
			t.Fatalf("stats missing zero entry for Generating: %v", stats)
		}
	})

	t.Run("concurrent guarded updates admit one winner", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		if err := repo.Create(ctx, domain.NewJob("race", "build a todo app in go", domain.BackendOllama, nil, base)); err != nil {
			t.Fatalf("create: %v", err)
		}
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			winners  int
			conflict int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.Update(ctx, "race", domain.JobUpdate{
					Status:       domain.StatusPtr(domain.StatusGenerating),
					ExpectStatus: domain.StatusPtr(domain.StatusPending),
				})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					winners++
				case errors.Is(err, domain.ErrConflict):
					conflict++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()
		if winners != 1 || conflict != 7 {
			t.Fatalf("winners = %d conflicts = %d", winners, conflict)
		}
	})
}

func jobIDs(jobs []domain.Job) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.ID
	}
	return out
}

func backendPtr(b domain.Backend) *domain.Backend { return &b }
