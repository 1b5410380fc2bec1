package dbx

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	tdogconfig "github.com/tabledog/tdog/internal/config"
)

const (
	pgStartupTimeout = 60 * time.Second
	pgOccurrence     = 2
)

func TestStoreOpenAgainstRealPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("tdog_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(pgOccurrence).
				WithStartupTimeout(pgStartupTimeout),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	t.Cleanup(func() { _ = testcontainers.TerminateContainer(pgContainer) })

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := Open(ctx, tdogconfig.Sink{Kind: tdogconfig.SinkPostgres, DSN: dsn})
	require.NoError(t, err)

	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.HealthCheck(ctx))

	err = store.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.Exec(ctx, `CREATE TABLE customers (id SERIAL PRIMARY KEY, provider_id TEXT NOT NULL)`)

		return err
	})
	require.NoError(t, err)

	var id int64

	err = store.WithTx(ctx, func(tx *Tx) error {
		var insertErr error
		id, insertErr = tx.Insert(ctx, `INSERT INTO customers (provider_id) VALUES ($1) RETURNING id`, "cus_pg_1")

		return insertErr
	})
	require.NoError(t, err)
	require.Positive(t, id)
}
