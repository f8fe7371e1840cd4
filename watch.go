package numalloc

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgxlisten"

	"github.com/yuku/numalloc/internal/waitqueue"
)

// Listen subscribes to release notifications and dispatches them to
// WaitForRelease callers until ctx is done. It blocks, so run it in its own
// goroutine. Listen needs a dedicated connection and therefore requires the
// engine's DB to be a *pgxpool.Pool.
func (e *Engine) Listen(ctx context.Context) error {
	pool, ok := e.db.(*pgxpool.Pool)
	if !ok {
		return invalidInputf("Listen", "listening requires a *pgxpool.Pool, got %T", e.db)
	}
	if !e.listening.CompareAndSwap(false, true) {
		return invalidInputf("Listen", "engine is already listening")
	}
	defer e.listening.Store(false)

	listener := &pgxlisten.Listener{
		Connect: func(ctx context.Context) (*pgx.Conn, error) {
			config := pool.Config().ConnConfig.Copy()
			return pgx.ConnectConfig(ctx, config)
		},
	}
	listener.Handle(ReleaseChannel, e.releases)

	if err := listener.Listen(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("release listener failed: %w", err)
	}
	return nil
}

// Listening reports whether Listen is running.
func (e *Engine) Listening() bool {
	return e.listening.Load()
}

// errNotListening is returned by WaitForRelease when Listen is not running.
var errNotListening = errors.New("release listener is not running")

// WaitForRelease blocks until numbers are returned to the pool by any
// process, or until ctx is done. It does not claim anything: a caller that
// wants numbers calls Claim again and may still find none. afterRegister, if
// not nil, runs once the caller can no longer miss a notification.
func (e *Engine) WaitForRelease(ctx context.Context, afterRegister func() error) error {
	if !e.Listening() {
		return errNotListening
	}
	opts := []waitqueue.WaitOption{}
	if afterRegister != nil {
		opts = append(opts, waitqueue.WithAfterRegister(afterRegister))
	}
	return waitqueue.Wait(ctx, e.releases, opts...)
}
