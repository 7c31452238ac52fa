//go:build integration

// Package pgcontainer provisions a migrated PostgreSQL database for
// integration tests, either from DATABASE_URL or a throwaway container.
package pgcontainer

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/fedegimenez/inmate-state-ledger/migrations"
)

// Postgres is a migrated database ready for use.
type Postgres struct {
	Pool *pgxpool.Pool
	URL  string
}

// New returns a migrated database. The pool and any container are released
// when the test ends.
func New(t *testing.T) *Postgres {
	t.Helper()
	ctx := context.Background()

	url := os.Getenv("DATABASE_URL")
	if url == "" {
		container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
			tcpostgres.WithDatabase("ledger"),
			tcpostgres.WithUsername("ledger"),
			tcpostgres.WithPassword("ledger"),
			tcpostgres.BasicWaitStrategies(),
		)
		if err != nil {
			t.Fatalf("failed to start postgres container: %v", err)
		}
		t.Cleanup(func() { _ = container.Terminate(context.Background()) })

		url, err = container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			t.Fatalf("failed to get postgres connection string: %v", err)
		}
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := migrations.Apply(ctx, pool, nil); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return &Postgres{Pool: pool, URL: url}
}

// Truncate empties the ledger tables between tests. TRUNCATE does not fire
// the append-only row trigger.
func (p *Postgres) Truncate(ctx context.Context) error {
	_, err := p.Pool.Exec(ctx, `TRUNCATE custody_events, custody_records, role_grants RESTART IDENTITY`)
	return err
}
