package numalloc

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yuku/numalloc/internal/sqlc"
	"github.com/yuku/numalloc/internal/waitqueue"
)

const tracerName = "github.com/yuku/numalloc"

// DB is the store handle an Engine runs its units of work against.
// *pgxpool.Pool satisfies it: each unit of work holds a connection only for
// its own duration and returns it on every exit path.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Engine claims, cancels, assigns and resets numbers, and answers queries
// about them. It keeps no copy of item state between calls; every call is
// one transaction against the store. An Engine is safe for concurrent use.
type Engine struct {
	db     DB
	conf   Config
	tracer trace.Tracer
	now    func() time.Time

	// releases wakes WaitForRelease callers when Cancel, Reset or a
	// Reservation release returns numbers to the pool.
	releases  *waitqueue.ListenHandler
	listening atomic.Bool
}

// New returns an Engine bound to db. It does not touch the store; use Setup
// to also create the schema.
func New(db DB, conf Config) (*Engine, error) {
	if db == nil {
		return nil, invalidInputf("New", "db cannot be nil")
	}
	if err := conf.Validate(); err != nil {
		return nil, newError(CodeInvalidInput, "New", "invalid engine configuration", err)
	}
	return &Engine{
		db:       db,
		conf:     conf.withDefaults(),
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
		releases: &waitqueue.ListenHandler{},
	}, nil
}

// Config returns the effective configuration, defaults applied.
func (e *Engine) Config() Config {
	return e.conf
}

// Claim reserves up to count AVAILABLE numbers and returns them.
//
// Rows locked by a concurrent Claim are skipped rather than waited on, so a
// Claim under contention may return fewer numbers than requested. When no
// number can be claimed the returned Reservation reports NothingAvailable;
// that is a result, not an error. count must be between 1 and
// Config.MaxClaimCount.
//
// Candidates are taken in text order of the number, so with 9 and 10
// both available "10" is claimed first.
func (e *Engine) Claim(ctx context.Context, count int) (_ *Reservation, err error) {
	ctx, span := e.tracer.Start(ctx, "numalloc.Claim",
		trace.WithAttributes(attribute.Int("numalloc.requested", count)),
	)
	defer func() { endSpan(span, err) }()

	if count < 1 || int(e.conf.MaxClaimCount) < count {
		return nil, invalidInputf("Claim", "count must be between 1 and %d: given %d",
			e.conf.MaxClaimCount, count,
		)
	}

	claimID := uuid.New()
	var claimed []string
	err = e.unitOfWork(ctx, "Claim", false, func(ctx context.Context, q *sqlc.Queries) error {
		candidates, err := q.SelectAvailableForClaim(ctx, int32(count))
		if err != nil {
			return fmt.Errorf("failed to select available numbers: %w", err)
		}
		if len(candidates) == 0 {
			return nil
		}
		claimed, err = q.MarkReserved(ctx, sqlc.MarkReservedParams{
			ClaimID: pgtype.UUID{Bytes: claimID, Valid: true},
			Numbers: candidates,
		})
		if err != nil {
			return fmt.Errorf("failed to mark numbers reserved: %w", err)
		}
		if len(claimed) != len(candidates) {
			// The candidates are locked by this transaction, so they cannot
			// have left AVAILABLE in between.
			return newError(CodeInvalidState, "Claim",
				fmt.Sprintf("reserved %d of %d locked numbers", len(claimed), len(candidates)), nil,
			)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("numalloc.claimed", len(claimed)))
	return &Reservation{
		engine:    e,
		id:        claimID,
		numbers:   toNumbers(claimed),
		requested: count,
	}, nil
}

// Cancel returns the given numbers to AVAILABLE from whatever state they are
// in and clears their assignment metadata. It returns the numbers it changed;
// numbers that are unknown or already AVAILABLE are left out of the result.
// Cancelling the same numbers twice therefore returns an empty result the
// second time.
func (e *Engine) Cancel(ctx context.Context, numbers []Number) (_ []Number, err error) {
	ctx, span := e.tracer.Start(ctx, "numalloc.Cancel",
		trace.WithAttributes(attribute.Int("numalloc.requested", len(numbers))),
	)
	defer func() { endSpan(span, err) }()

	ids, err := canonicalNumbers("Cancel", numbers)
	if err != nil {
		return nil, err
	}

	var updated []string
	err = e.unitOfWork(ctx, "Cancel", true, func(ctx context.Context, q *sqlc.Queries) error {
		if _, err := q.LockNumbers(ctx, ids); err != nil {
			return fmt.Errorf("failed to lock numbers: %w", err)
		}
		var err error
		updated, err = q.MarkAvailable(ctx, ids)
		if err != nil {
			return fmt.Errorf("failed to mark numbers available: %w", err)
		}
		return notifyReleased(ctx, q, len(updated))
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("numalloc.updated", len(updated)))
	return toNumbers(updated), nil
}

// Assignee describes who a number is assigned to. The engine stores these
// values as given; resolving them against a directory is the caller's job.
type Assignee struct {
	ConsultantID      string
	ConsultantAccount string
	ClientName        string
	ClientTaxID       string
}

// Assign moves the given numbers to ASSIGNED, stamping the assignee and the
// assignment time. Numbers may be AVAILABLE or RESERVED beforehand. It returns
// the numbers it changed; numbers that are unknown or already ASSIGNED are
// left out of the result.
func (e *Engine) Assign(ctx context.Context, numbers []Number, to Assignee) (_ []Number, err error) {
	ctx, span := e.tracer.Start(ctx, "numalloc.Assign",
		trace.WithAttributes(
			attribute.Int("numalloc.requested", len(numbers)),
			attribute.String("numalloc.consultant_id", to.ConsultantID),
		),
	)
	defer func() { endSpan(span, err) }()

	ids, err := canonicalNumbers("Assign", numbers)
	if err != nil {
		return nil, err
	}
	if to.ConsultantID == "" {
		return nil, invalidInputf("Assign", "consultant id cannot be empty")
	}

	// PostgreSQL keeps microseconds; truncating here makes the stored value
	// equal to the one reported back.
	assignedAt := e.now().UTC().Truncate(time.Microsecond)

	var updated []string
	err = e.unitOfWork(ctx, "Assign", true, func(ctx context.Context, q *sqlc.Queries) error {
		if _, err := q.LockNumbers(ctx, ids); err != nil {
			return fmt.Errorf("failed to lock numbers: %w", err)
		}
		var err error
		updated, err = q.MarkAssigned(ctx, sqlc.MarkAssignedParams{
			ConsultantID:      to.ConsultantID,
			ConsultantAccount: to.ConsultantAccount,
			ClientName:        to.ClientName,
			ClientTaxID:       to.ClientTaxID,
			AssignedAt:        pgtype.Timestamptz{Time: assignedAt, Valid: true},
			Numbers:           ids,
		})
		if err != nil {
			return fmt.Errorf("failed to mark numbers assigned: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("numalloc.updated", len(updated)))
	return toNumbers(updated), nil
}

// Reset returns every number to AVAILABLE and clears all assignment
// metadata, discarding in-flight reservations and assignments. It returns
// how many numbers changed state. Reset fails with CodeResetDisabled unless
// Config.AllowReset is set.
func (e *Engine) Reset(ctx context.Context) (_ int64, err error) {
	ctx, span := e.tracer.Start(ctx, "numalloc.Reset")
	defer func() { endSpan(span, err) }()

	if !e.conf.AllowReset {
		return 0, newError(CodeResetDisabled, "Reset", "reset is disabled for this engine", nil)
	}

	var reset int64
	err = e.unitOfWork(ctx, "Reset", true, func(ctx context.Context, q *sqlc.Queries) error {
		var err error
		reset, err = q.ResetAll(ctx)
		if err != nil {
			return fmt.Errorf("failed to reset numbers: %w", err)
		}
		return notifyReleased(ctx, q, int(reset))
	})
	if err != nil {
		return 0, err
	}

	span.SetAttributes(attribute.Int64("numalloc.updated", reset))
	return reset, nil
}

// Ping checks that the store is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, e.conf.OperationTimeout)
	defer cancel()
	if _, err := sqlc.New(e.db).Ping(ctx); err != nil {
		return classify("Ping", fmt.Errorf("failed to ping store: %w", err))
	}
	return nil
}

// ReleaseClaim returns the numbers still RESERVED under claimID to
// AVAILABLE and reports them. Numbers that were assigned, cancelled or reset
// since the claim are not touched, so releasing a claim never undoes another
// caller's work.
func (e *Engine) ReleaseClaim(ctx context.Context, claimID uuid.UUID) (_ []Number, err error) {
	ctx, span := e.tracer.Start(ctx, "numalloc.Release",
		trace.WithAttributes(attribute.String("numalloc.claim_id", claimID.String())),
	)
	defer func() { endSpan(span, err) }()

	var released []string
	err = e.unitOfWork(ctx, "Release", true, func(ctx context.Context, q *sqlc.Queries) error {
		var err error
		released, err = q.ReleaseClaim(ctx, pgtype.UUID{Bytes: claimID, Valid: true})
		if err != nil {
			return fmt.Errorf("failed to release claim: %w", err)
		}
		return notifyReleased(ctx, q, len(released))
	})
	if err != nil {
		return nil, err
	}
	return toNumbers(released), nil
}

// unitOfWork runs fn in one transaction bounded by Config.OperationTimeout.
// Any error rolls the transaction back and is classified into an *Error.
// When lockTimeout is set, row-lock waits inside the transaction are bounded
// by Config.LockTimeout.
func (e *Engine) unitOfWork(ctx context.Context, op string, lockTimeout bool, fn func(context.Context, *sqlc.Queries) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.conf.OperationTimeout)
	defer cancel()

	err := pgx.BeginFunc(ctx, e.db, func(tx pgx.Tx) error {
		q := sqlc.New(tx)
		if lockTimeout {
			if err := q.SetLockTimeout(ctx, pgDuration(e.conf.LockTimeout)); err != nil {
				return fmt.Errorf("failed to set lock timeout: %w", err)
			}
		}
		return fn(ctx, q)
	})
	return classify(op, err)
}

// ReleaseChannel is the PostgreSQL NOTIFY channel on which releases are
// announced. The payload is the number of items released.
const ReleaseChannel = "numalloc_released"

// notifyReleased announces released items. The notification is part of the
// transaction and is only delivered if it commits.
func notifyReleased(ctx context.Context, q *sqlc.Queries, released int) error {
	if released == 0 {
		return nil
	}
	err := q.NotifyReleased(ctx, sqlc.NotifyReleasedParams{
		ChannelName: ReleaseChannel,
		Payload:     strconv.Itoa(released),
	})
	if err != nil {
		return fmt.Errorf("failed to notify release: %w", err)
	}
	return nil
}

// pgDuration formats d for PostgreSQL settings such as lock_timeout, where
// zero would mean "no limit".
func pgDuration(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return strconv.FormatInt(ms, 10) + "ms"
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("numalloc.error_code", CodeOf(err).String()))
	}
	span.End()
}
