package testutil

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGContainer is a connection to the Postgres instance integration tests run against.
type PGContainer struct {
	URL  string
	Pool *pgxpool.Pool
}

// StartPostgresForTestMain connects to TEST_DATABASE_URL and returns the
// shared container plus a cleanup func. It exits the process when the
// variable is unset or the database is unreachable, since it runs inside
// TestMain where t is not available.
//
// Run integration tests through the testpg wrapper:
//
//	go run ./internal/testutil/cmd/testpg -- go test -tags=integration ./...
func StartPostgresForTestMain(ctx context.Context) (*PGContainer, func()) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		fmt.Fprintln(os.Stderr, "TEST_DATABASE_URL is not set; run via ./internal/testutil/cmd/testpg")
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connecting to test database: %v\n", err)
		os.Exit(1)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		fmt.Fprintf(os.Stderr, "pinging test database: %v\n", err)
		os.Exit(1)
	}
	return &PGContainer{URL: url, Pool: pool}, pool.Close
}

// ResetSchema drops and recreates the public schema.
func (pg *PGContainer) ResetSchema(ctx context.Context) error {
	_, err := pg.Pool.Exec(ctx, "DROP SCHEMA public CASCADE; CREATE SCHEMA public")
	return err
}
