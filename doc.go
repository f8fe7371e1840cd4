// Package numalloc manages a fixed pool of numbered items backed by
// PostgreSQL. Items move between three states: AVAILABLE, RESERVED and
// ASSIGNED. Many processes may claim items at once; no two callers are ever
// handed the same item.
//
// Every operation is a single transaction. Claim selects rows with
// FOR UPDATE SKIP LOCKED, so concurrent claims never wait on each other; under
// contention a claim returns fewer numbers instead of blocking. Cancel,
// Assign and Reset lock their rows in a fixed order and give up after
// Config.LockTimeout. A failed or timed-out operation is rolled back
// completely and reported as an *Error whose Code tells infrastructure
// failures apart from bad input. An operation that affects nothing is a
// successful, empty result.
//
// Setup:
//
// Numbers are provisioned once, outside the engine:
//
//	pool, err := pgxpool.New(ctx, databaseURL)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer pool.Close()
//
//	engine, err := numalloc.Setup(ctx, pool, numalloc.Config{MaxClaimCount: 20})
//	if err != nil {
//		log.Fatal(err)
//	}
//	if _, err := numalloc.Provision(ctx, pool, numbers); err != nil {
//		log.Fatal(err)
//	}
//
// Basic usage:
//
//	res, err := engine.Claim(ctx, 5)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if res.NothingAvailable() {
//		return
//	}
//	defer res.Close() // returns whatever was not assigned
//
//	_, err = engine.Assign(ctx, res.Numbers()[:1], numalloc.Assignee{
//		ConsultantID: "c-17",
//		ClientName:   "ACME",
//	})
package numalloc
