// Package bootstrap opens the configured job store for the server and the CLI.
package bootstrap

import (
	"context"
	"fmt"

	"genesis/internal/adapter/repo"
	"genesis/internal/domain"
	"genesis/internal/infra"
)

// Store is an opened job repository plus the connections behind it.
type Store struct {
	Repo domain.JobRepository
	// Durable is false for the in-memory store, whose jobs die with the process.
	Durable bool

	closers []func()
}

// Close releases the underlying connections.
func (s *Store) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// OpenStore connects the store selected by cfg.JobStore. The Postgres schema is
// created when missing.
func OpenStore(ctx context.Context, cfg *infra.Config, logger infra.Logger) (*Store, error) {
	switch cfg.JobStore {
	case infra.StorePostgres:
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		pg := repo.NewJobRepository(infra.NewSQLRunner(pool, logger))
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return &Store{Repo: pg, Durable: true, closers: []func(){pool.Close}}, nil

	case infra.StoreMongo:
		client, db, err := infra.NewMongoDatabase(ctx, cfg)
		if err != nil {
			return nil, err
		}
		disconnect := func() { _ = client.Disconnect(context.Background()) }
		return &Store{
			Repo:    repo.NewJobRepositoryMongo(ctx, db, logger),
			Durable: true,
			closers: []func(){disconnect},
		}, nil

	case infra.StoreMemory:
		logger.Warn().Msg("using in-memory job store, projects are lost on restart")
		return &Store{Repo: repo.NewJobRepositoryMemory()}, nil

	default:
		return nil, fmt.Errorf("unsupported job store %q", cfg.JobStore)
	}
}
