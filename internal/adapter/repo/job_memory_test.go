package repo

import (
	"context"
	"testing"
	"time"

	"genesis/internal/domain"
)

func TestJobRepositoryMemory(t *testing.T) {
	testJobRepositoryContract(t, func(t *testing.T) domain.JobRepository {
		return NewJobRepositoryMemory()
	})
}

func TestJobRepositoryMemoryReturnsCopies(t *testing.T) {
	repo := NewJobRepositoryMemory()
	ctx := context.Background()
	job := domain.NewJob("p-1", "build a todo app in go", domain.BackendOllama, nil, time.Now())
	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}
	job.Status = domain.StatusFailed

	got, err := repo.Get(ctx, "p-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.Output = "mutated"

	again, err := repo.Get(ctx, "p-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if again.Status != domain.StatusPending || again.Output != "" {
		t.Fatalf("store state aliased by caller: %+v", again)
	}
}

func TestJobRepositoryMemoryHonoursCancelledContext(t *testing.T) {
	repo := NewJobRepositoryMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := repo.Ping(ctx); err == nil {
		t.Fatalf("expected ping to fail on cancelled context")
	}
}
