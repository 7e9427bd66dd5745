package libdbexec

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// SetupLocalInstance starts a disposable Postgres container for tests
// and returns its DSN, the container handle, and a cleanup func.
func SetupLocalInstance(ctx context.Context, dbName, user, password string) (string, testcontainers.Container, func(), error) {
	container, err := tcpostgres.Run(ctx, "postgres:17-alpine",
		tcpostgres.WithDatabase(dbName),
		tcpostgres.WithUsername(user),
		tcpostgres.WithPassword(password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return "", nil, func() {}, fmt.Errorf("failed to start postgres container: %w", err)
	}

	cleanup := func() {
		_ = container.Terminate(context.Background())
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		cleanup()
		return "", nil, func() {}, fmt.Errorf("failed to resolve postgres connection string: %w", err)
	}

	return connStr, container, cleanup, nil
}
