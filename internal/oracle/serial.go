package oracle

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// SerialOracle admits one Count call at a time to an oracle that is not safe
// for concurrent use.
type SerialOracle struct {
	next Oracle
	sem  *semaphore.Weighted
}

// Serialize wraps next so concurrent callers take turns.
func Serialize(next Oracle) *SerialOracle {
	return &SerialOracle{next: next, sem: semaphore.NewWeighted(1)}
}

func (s *SerialOracle) Count(ctx context.Context, texts []string) ([]int, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)
	return s.next.Count(ctx, texts)
}

func (s *SerialOracle) Name() string { return s.next.Name() }

// ConcurrencySafe is always true: the semaphore makes sharing safe.
func (s *SerialOracle) ConcurrencySafe() bool { return true }

func (s *SerialOracle) Close() error { return s.next.Close() }
