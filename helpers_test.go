package numalloc_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/yuku/numalloc"
	"github.com/yuku/numalloc/internal"
)

// setupEngine creates a fresh database holding the numbers 1..size, all
// AVAILABLE, and returns an engine on it together with the pool.
func setupEngine(t *testing.T, conf numalloc.Config, size int) (*numalloc.Engine, *pgxpool.Pool) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping PostgreSQL integration test in short mode")
	}
	ctx := context.Background()
	pool := internal.MustCreateTestDatabase(t)

	engine, err := numalloc.Setup(ctx, pool, conf)
	require.NoError(t, err, "Setup should not return an error")

	if size > 0 {
		inserted, err := numalloc.Provision(ctx, pool, intNumbers(1, size))
		require.NoError(t, err, "Provision should not return an error")
		require.EqualValues(t, size, inserted, "every number should be inserted")
	}
	return engine, pool
}

// intNumbers returns the numbers from..to inclusive.
func intNumbers(from, to int) []numalloc.Number {
	numbers := make([]numalloc.Number, 0, to-from+1)
	for i := from; i <= to; i++ {
		numbers = append(numbers, numalloc.NumberFromInt(int64(i)))
	}
	return numbers
}

func requireStats(t *testing.T, engine *numalloc.Engine, want numalloc.Stats) {
	t.Helper()
	got, err := engine.Stats(context.Background())
	require.NoError(t, err, "Stats should not return an error")
	require.Equal(t, want, got)
}

var errInjected = errors.New("injected failure")

// faultyDB wraps a pool and makes its transactions fail on demand: on the
// first statement containing failOn, or at commit time.
type faultyDB struct {
	*pgxpool.Pool
	failOn     string
	failCommit bool

	// statements counts statements run inside transactions.
	statements atomic.Int32
}

func (db *faultyDB) Begin(ctx context.Context) (pgx.Tx, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &faultyTx{Tx: tx, db: db}, nil
}

type faultyTx struct {
	pgx.Tx
	db *faultyDB
}

func (tx *faultyTx) fail(sql string) bool {
	tx.db.statements.Add(1)
	return tx.db.failOn != "" && strings.Contains(sql, tx.db.failOn)
}

func (tx *faultyTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx.fail(sql) {
		return pgconn.CommandTag{}, errInjected
	}
	return tx.Tx.Exec(ctx, sql, args...)
}

func (tx *faultyTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx.fail(sql) {
		return nil, errInjected
	}
	return tx.Tx.Query(ctx, sql, args...)
}

func (tx *faultyTx) Commit(ctx context.Context) error {
	if tx.db.failCommit {
		return errInjected
	}
	return tx.Tx.Commit(ctx)
}
