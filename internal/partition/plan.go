package partition

import "github.com/dshills/tokensplit/pkg/types"

// Result is a verified partition of one document.
type Result struct {
	Target   int // fewest chunks the limit allows
	Capacity int // optimized per-chunk ceiling, <= limit
	Chunks   []types.Chunk
}

// Plan optimizes the capacity, builds the chunks and verifies them.
//
// A verification error is returned together with the unverified chunks so the
// caller can report the offending weights.
func Plan(weights []int, joinCost, limit int) (Result, error) {
	capacity, err := OptimalCapacity(weights, joinCost, limit)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Target:   GroupsNeeded(weights, joinCost, limit),
		Capacity: capacity,
		Chunks:   Build(weights, joinCost, capacity),
	}
	if err := Verify(res.Chunks, len(weights), limit); err != nil {
		return res, err
	}
	return res, nil
}
