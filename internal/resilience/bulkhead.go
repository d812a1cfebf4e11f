package resilience

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Bulkhead caps the number of concurrent calls into a dependency using a
// weighted semaphore. Document uploads and downloads share one so a burst
// of large transfers cannot exhaust NATS connections or memory.
type Bulkhead struct {
	sem *semaphore.Weighted
}

// NewBulkhead returns a Bulkhead admitting at most limit concurrent calls.
// Limits below 1 are clamped to 1.
func NewBulkhead(limit int) *Bulkhead {
	if limit < 1 {
		limit = 1
	}
	return &Bulkhead{sem: semaphore.NewWeighted(int64(limit))}
}

// Run acquires a slot, runs fn, and releases the slot. It blocks while all
// slots are busy and returns ctx.Err() if the context ends first.
// A nil Bulkhead runs fn directly.
func (b *Bulkhead) Run(ctx context.Context, fn func() error) error {
	if b == nil || b.sem == nil {
		return fn()
	}
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer b.sem.Release(1)
	return fn()
}
