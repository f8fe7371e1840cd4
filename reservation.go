package numalloc

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Reservation is the result of Claim: the numbers reserved by one call,
// tagged with the claim ID stored alongside them.
type Reservation struct {
	engine    *Engine
	id        uuid.UUID
	numbers   []Number
	requested int

	releaseOnce sync.Once
	releaseErr  error
}

// ID returns the claim ID shared by every number of r.
func (r *Reservation) ID() uuid.UUID {
	return r.id
}

// Numbers returns the reserved numbers in ascending text order, so "10"
// comes before "9".
func (r *Reservation) Numbers() []Number {
	return slices.Clone(r.numbers)
}

// Requested returns the count passed to Claim.
func (r *Reservation) Requested() int {
	return r.requested
}

// NothingAvailable reports whether the claim found no AVAILABLE number.
func (r *Reservation) NothingAvailable() bool {
	return len(r.numbers) == 0
}

// Partial reports whether fewer numbers than requested were reserved,
// either because the pool ran low or because concurrent claims held the
// remaining rows.
func (r *Reservation) Partial() bool {
	return len(r.numbers) < r.requested
}

// Release returns the numbers of r that are still RESERVED under this claim
// to AVAILABLE. Numbers assigned or cancelled in the meantime are left alone.
// It is safe to call Release multiple times; subsequent calls are no-ops and
// return the first result. This allows for both defer r.Release(ctx) and
// explicit release patterns.
func (r *Reservation) Release(ctx context.Context) error {
	r.releaseOnce.Do(func() {
		if r.NothingAvailable() {
			return
		}
		_, r.releaseErr = r.engine.ReleaseClaim(ctx, r.id)
	})
	return r.releaseErr
}

// Close releases the reservation, ignoring any errors.
// It is equivalent to calling Release with a background context.
func (r *Reservation) Close() {
	_ = r.Release(context.Background())
}
