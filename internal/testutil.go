package internal

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yuku/numalloc/internal/config"
)

// GetConnection returns a connection to the PostgreSQL database described by
// the environment. The returned connection must have full privileges to
// create databases.
func GetConnection(ctx context.Context) (*pgx.Conn, error) {
	connString, err := getConnString()
	if err != nil {
		return nil, err
	}
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return conn, nil
}

// GetPool returns a connection pool to the PostgreSQL database described by
// the environment.
func GetPool(ctx context.Context) (*pgxpool.Pool, error) {
	connString, err := getConnString()
	if err != nil {
		return nil, err
	}
	return newPool(ctx, connString, "")
}

// MustGetConnectionWithCleanup returns a connection that is closed when the
// test completes.
func MustGetConnectionWithCleanup(t *testing.T) *pgx.Conn {
	t.Helper()
	ctx := context.Background()
	conn, err := GetConnection(ctx)
	if err != nil {
		t.Fatalf("failed to get database connection: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(ctx) })
	return conn
}

// MustGetPoolWithCleanup returns a connection pool to the PostgreSQL database
// and automatically cleans it up when the test completes.
func MustGetPoolWithCleanup(t *testing.T) *pgxpool.Pool {
	t.Helper()
	pool, err := GetPool(context.Background())
	if err != nil {
		t.Fatalf("failed to create connection pool: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

// MustCreateTestDatabase creates a randomly named database, returns a pool
// connected to it and drops the database when the test completes. Tests that
// count rows use it so that they never observe each other's items.
func MustCreateTestDatabase(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	defaultConn := MustGetConnectionWithCleanup(t)
	dbname := fmt.Sprintf("numalloc_test_%d", rand.IntN(1_000_000_000))

	_, err := defaultConn.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", dbname))
	if err != nil {
		t.Fatalf("failed to create %s database: %v", dbname, err)
	}
	t.Cleanup(func() {
		_, _ = defaultConn.Exec(ctx, fmt.Sprintf("DROP DATABASE IF EXISTS %s WITH (FORCE)", dbname))
	})

	pool, err := newPool(ctx, defaultConn.Config().ConnString(), dbname)
	if err != nil {
		t.Fatalf("failed to connect to %s database: %v", dbname, err)
	}
	t.Cleanup(pool.Close)
	return pool
}

// newPool connects to connString, switching to database when it is not empty.
func newPool(ctx context.Context, connString, database string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if database != "" {
		poolConfig.ConnConfig.Database = database
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

func getConnString() (string, error) {
	conf, err := config.Load()
	if err != nil {
		return "", err
	}
	return conf.ConnString(), nil
}
