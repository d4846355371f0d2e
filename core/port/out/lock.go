package out

import "context"

// RunLock is the exclusive per-configuration run claim. Acquire
// returns false when another run already holds the claim.
type RunLock interface {
	Acquire(ctx context.Context, configurationID int64) (bool, error)
	Release(ctx context.Context, configurationID int64) error
}
