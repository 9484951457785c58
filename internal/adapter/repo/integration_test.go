//go:build integration

package repo

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"genesis/internal/domain"
	"genesis/internal/infra"
)

func startContainer(t *testing.T, req testcontainers.ContainerRequest, port string) string {
	t.Helper()
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("container runtime unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	if host == "" || host == "null" {
		host = "localhost"
	}
	mapped, err := container.MappedPort(ctx, port)
	if err != nil {
		t.Fatalf("mapped port: %v", err)
	}
	return fmt.Sprintf("%s:%s", host, mapped.Port())
}

func TestJobRepositoryMongoIntegration(t *testing.T) {
	addr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForLog("Waiting for connections").WithStartupTimeout(60 * time.Second),
	}, "27017")

	ctx := context.Background()
	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI("mongodb://"+addr).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true, NilSliceAsEmpty: true}))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	n := 0
	testJobRepositoryContract(t, func(t *testing.T) domain.JobRepository {
		n++
		db := client.Database(fmt.Sprintf("genesis_test_%d", n))
		t.Cleanup(func() { _ = db.Drop(context.Background()) })
		return NewJobRepositoryMongo(ctx, db, zerolog.Nop())
	})
}

func TestJobRepositoryPGIntegration(t *testing.T) {
	addr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "genesis",
			"POSTGRES_PASSWORD": "genesis",
			"POSTGRES_DB":       "genesis",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}, "5432")

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, fmt.Sprintf("postgres://genesis:genesis@%s/genesis?sslmode=disable", addr))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	testJobRepositoryContract(t, func(t *testing.T) domain.JobRepository {
		repo := NewJobRepository(infra.NewSQLRunner(pool, zerolog.Nop()))
		if err := repo.EnsureSchema(ctx); err != nil {
			t.Fatalf("schema: %v", err)
		}
		if _, err := pool.Exec(ctx, "truncate projects"); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return repo
	})
}
