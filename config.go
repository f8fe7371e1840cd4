package numalloc

import (
	"fmt"
	"time"
)

const (
	// DefaultMaxClaimCount is used when Config.MaxClaimCount is zero.
	DefaultMaxClaimCount = 100

	// MaxClaimLimit is the largest MaxClaimCount an engine accepts. A single
	// Claim locks up to this many rows in one transaction.
	MaxClaimLimit = 10000

	// DefaultOperationTimeout is used when Config.OperationTimeout is zero.
	DefaultOperationTimeout = 5 * time.Second

	// DefaultLockTimeout is used when Config.LockTimeout is zero.
	DefaultLockTimeout = 2 * time.Second
)

// Config holds the engine configuration.
type Config struct {
	// MaxClaimCount is the largest count a single Claim may request. Larger
	// requests are rejected with CodeInvalidInput instead of being truncated.
	// Zero means DefaultMaxClaimCount.
	MaxClaimCount int32

	// OperationTimeout bounds every unit of work. A unit of work that runs
	// out of time is rolled back and reported as CodeOperationTimeout.
	// Zero means DefaultOperationTimeout.
	OperationTimeout time.Duration

	// LockTimeout bounds how long Cancel, Assign and Reset wait for row locks
	// held by other transactions. Zero means DefaultLockTimeout.
	LockTimeout time.Duration

	// AllowReset enables Reset. It discards every reservation and assignment,
	// so it should stay disabled in production.
	AllowReset bool
}

func (c Config) Validate() error {
	if c.MaxClaimCount < 0 || MaxClaimLimit < c.MaxClaimCount {
		return fmt.Errorf("max claim count must be between 1 and %d: given %d",
			MaxClaimLimit, c.MaxClaimCount,
		)
	}
	if c.OperationTimeout < 0 {
		return fmt.Errorf("operation timeout cannot be negative: given %s", c.OperationTimeout)
	}
	if c.LockTimeout < 0 {
		return fmt.Errorf("lock timeout cannot be negative: given %s", c.LockTimeout)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.MaxClaimCount == 0 {
		c.MaxClaimCount = DefaultMaxClaimCount
	}
	if c.OperationTimeout == 0 {
		c.OperationTimeout = DefaultOperationTimeout
	}
	if c.LockTimeout == 0 {
		c.LockTimeout = DefaultLockTimeout
	}
	return c
}
