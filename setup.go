package numalloc

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/yuku/numalloc/internal/sqlc"
)

// Setup validates conf, creates the numbers table if it does not exist and
// returns an Engine bound to db.
//
// Concurrent Setup calls are serialized with a PostgreSQL advisory lock, so
// every process may call it at startup.
func Setup(ctx context.Context, db DB, conf Config) (*Engine, error) {
	engine, err := New(db, conf)
	if err != nil {
		return nil, err
	}
	if err := createSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("failed to setup numalloc: %w", err)
	}
	return engine, nil
}

func createSchema(ctx context.Context, db DB) error {
	// Lock ID is arbitrary but must be consistent across all processes
	const lockID int64 = 0x6e756d616c6c6f63 // "numalloc"

	return pgx.BeginFunc(ctx, db, func(tx pgx.Tx) error {
		q := sqlc.New(tx)

		if err := q.AcquireAdvisoryLock(ctx, lockID); err != nil {
			return fmt.Errorf("failed to acquire advisory lock: %w", err)
		}

		ok, err := q.CheckNumbersTableExist(ctx)
		if err != nil {
			return fmt.Errorf("failed to check if numbers table exists: %w", err)
		}
		if ok {
			return nil // Table already exists, no need to set up
		}
		if err := q.CreateTable(ctx); err != nil {
			return fmt.Errorf("failed to create numbers table: %w", err)
		}
		return nil
	})
}

// Cleanup drops the numbers table. Every item and its history is lost.
func Cleanup(ctx context.Context, db DB) error {
	if err := sqlc.New(db).DropNumbersTable(ctx); err != nil {
		return fmt.Errorf("failed to drop numbers table: %w", err)
	}
	return nil
}

// Provision seeds numbers in the AVAILABLE state and returns how many were
// inserted. Numbers that already exist are left untouched, whatever their
// state. The engine itself never creates or deletes items; Provision is the
// provisioning step that runs before it.
func Provision(ctx context.Context, db DB, numbers []Number) (int64, error) {
	ids, err := canonicalNumbers("Provision", numbers)
	if err != nil {
		return 0, err
	}
	inserted, err := sqlc.New(db).ProvisionNumbers(ctx, ids)
	if err != nil {
		return 0, classify("Provision", fmt.Errorf("failed to insert numbers: %w", err))
	}
	return inserted, nil
}
