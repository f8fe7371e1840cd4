package numalloc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yuku/numalloc/internal/sqlc"
)

// Stats holds the number of items in each state.
type Stats struct {
	Available int64
	Reserved  int64
	Assigned  int64
}

// Total returns the number of items in the pool.
func (s Stats) Total() int64 {
	return s.Available + s.Reserved + s.Assigned
}

// ByState returns the counts keyed by state. Every state is present, with
// zero for states that have no items.
func (s Stats) ByState() map[State]int64 {
	return map[State]int64{
		StateAvailable: s.Available,
		StateReserved:  s.Reserved,
		StateAssigned:  s.Assigned,
	}
}

// Assignment is the metadata of an ASSIGNED item.
type Assignment struct {
	Assignee
	AssignedAt time.Time
}

// Item is a snapshot of one number as stored.
type Item struct {
	Number Number
	State  State

	// ClaimID is the claim that reserved the item. It is the zero UUID
	// unless State is StateReserved.
	ClaimID uuid.UUID

	// Assignment is nil unless State is StateAssigned.
	Assignment *Assignment
}

// Stats counts the items in each state. The read is a single statement and
// sees the store as of that statement; it is not coordinated with concurrent
// writes beyond that.
func (e *Engine) Stats(ctx context.Context) (_ Stats, err error) {
	ctx, span := e.tracer.Start(ctx, "numalloc.Stats")
	defer func() { endSpan(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, e.conf.OperationTimeout)
	defer cancel()

	rows, err := sqlc.New(e.db).CountByState(ctx)
	if err != nil {
		return Stats{}, classify("Stats", fmt.Errorf("failed to count numbers: %w", err))
	}

	var stats Stats
	for _, row := range rows {
		state, err := ParseState(row.State)
		if err != nil {
			return Stats{}, newError(CodeInvalidState, "Stats", "store returned an unknown state", err)
		}
		switch state {
		case StateAvailable:
			stats.Available = row.Count
		case StateReserved:
			stats.Reserved = row.Count
		case StateAssigned:
			stats.Assigned = row.Count
		}
	}

	span.SetAttributes(
		attribute.Int64("numalloc.available", stats.Available),
		attribute.Int64("numalloc.reserved", stats.Reserved),
		attribute.Int64("numalloc.assigned", stats.Assigned),
	)
	return stats, nil
}

// ListAssigned returns every ASSIGNED item, most recently assigned first.
// Items assigned at the same instant are ordered by number, ascending.
// Numbers are text, so the order is lexical: "10" sorts before "9".
func (e *Engine) ListAssigned(ctx context.Context) (_ []Item, err error) {
	ctx, span := e.tracer.Start(ctx, "numalloc.ListAssigned")
	defer func() { endSpan(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, e.conf.OperationTimeout)
	defer cancel()

	rows, err := sqlc.New(e.db).ListAssigned(ctx)
	if err != nil {
		return nil, classify("ListAssigned", fmt.Errorf("failed to list assigned numbers: %w", err))
	}

	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		item, err := itemFromRow(row)
		if err != nil {
			return nil, classify("ListAssigned", err)
		}
		items = append(items, item)
	}

	span.SetAttributes(attribute.Int("numalloc.assigned", len(items)))
	return items, nil
}

// Get returns the item stored under n. The boolean is false when no such
// item exists.
func (e *Engine) Get(ctx context.Context, n Number) (_ Item, _ bool, err error) {
	ctx, span := e.tracer.Start(ctx, "numalloc.Get")
	defer func() { endSpan(span, err) }()

	canonical := strings.TrimSpace(string(n))
	if canonical == "" {
		return Item{}, false, invalidInputf("Get", "number cannot be empty")
	}
	span.SetAttributes(attribute.String("numalloc.number", canonical))

	ctx, cancel := context.WithTimeout(ctx, e.conf.OperationTimeout)
	defer cancel()

	row, err := sqlc.New(e.db).GetNumber(ctx, canonical)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, false, nil
		}
		return Item{}, false, classify("Get", fmt.Errorf("failed to get number: %w", err))
	}
	item, err := itemFromRow(row)
	if err != nil {
		return Item{}, false, classify("Get", err)
	}
	return item, true, nil
}

// itemFromRow converts a stored row, rejecting rows that break the state and
// metadata invariants instead of guessing.
func itemFromRow(row sqlc.Number) (Item, error) {
	state, err := ParseState(row.State)
	if err != nil {
		return Item{}, newError(CodeInvalidState, "", fmt.Sprintf("number %s has an unknown state", row.Number), err)
	}

	item := Item{Number: Number(row.Number), State: state}
	switch state {
	case StateAssigned:
		if !row.HasAssignmentMetadata() {
			return Item{}, newError(CodeInvalidState, "", fmt.Sprintf("assigned number %s has incomplete metadata", row.Number), nil)
		}
		item.Assignment = &Assignment{
			Assignee: Assignee{
				ConsultantID:      row.ConsultantID.String,
				ConsultantAccount: row.ConsultantAccount.String,
				ClientName:        row.ClientName.String,
				ClientTaxID:       row.ClientTaxID.String,
			},
			AssignedAt: row.AssignedAt.Time,
		}
	default:
		if row.HasAnyAssignmentMetadata() {
			return Item{}, newError(CodeInvalidState, "", fmt.Sprintf("%s number %s carries assignment metadata", state, row.Number), nil)
		}
	}
	if state == StateReserved && row.ClaimID.Valid {
		item.ClaimID = uuid.UUID(row.ClaimID.Bytes)
	}
	return item, nil
}
