package driven

import (
	"context"
	"time"
)

// DistributedLock coordinates clients of one account, for example so that
// two devices opening today's journal at once do not both create it.
type DistributedLock interface {
	// Acquire tries to take a named lock that expires after ttl.
	// Returns false if another client holds it.
	Acquire(ctx context.Context, name string, ttl time.Duration) (acquired bool, err error)

	// Release gives up a lock held by this client. Releasing a lock that
	// expired or belongs to someone else is a no-op.
	Release(ctx context.Context, name string) error
}
