package export

import (
	"context"
	"sync"
)

// Governor bounds how many chunk tasks may run at once across all
// jobs. A job that needs more slots than exist simply queues; nothing
// is ever rejected, only delayed.
type Governor struct {
	slots chan struct{}
}

// NewGovernor creates a governor with n slots. Values below 1 are
// clamped to 1 so a bad config degrades to serial execution instead
// of deadlock.
func NewGovernor(n int) *Governor {
	if n < 1 {
		n = 1
	}
	return &Governor{slots: make(chan struct{}, n)}
}

// Acquire blocks until a slot is free or ctx is cancelled.
func (g *Governor) Acquire(ctx context.Context) (*Slot, error) {
	select {
	case g.slots <- struct{}{}:
		return &Slot{governor: g}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Slot is a held concurrency slot. Release is idempotent.
type Slot struct {
	governor *Governor
	once     sync.Once
}

func (s *Slot) Release() {
	s.once.Do(func() {
		<-s.governor.slots
	})
}
