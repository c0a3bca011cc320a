package partition

import (
	"errors"
	"fmt"

	"github.com/dshills/tokensplit/pkg/types"
)

var (
	// ErrNoSegments is returned when there is nothing to partition
	ErrNoSegments = errors.New("no segments to partition")
	// ErrInvalidWeights is returned for negative weights, negative join cost or a non-positive limit
	ErrInvalidWeights = errors.New("invalid partition input")
	// ErrSegmentExceedsCapacity is returned when a single weight alone is over the limit
	ErrSegmentExceedsCapacity = errors.New("segment exceeds capacity")
	// ErrChunkOverLimit signals a built chunk heavier than the limit
	ErrChunkOverLimit = errors.New("chunk exceeds limit")
	// ErrBrokenCover signals chunks that do not cover [0, n-1] exactly once
	ErrBrokenCover = errors.New("chunks do not form a contiguous cover")
)

// GroupsNeeded returns the minimum number of contiguous groups such that no
// group weighs more than capacity, assuming every single weight fits.
func GroupsNeeded(weights []int, joinCost, capacity int) int {
	if len(weights) == 0 {
		return 0
	}

	groups := 1
	current := weights[0]
	for _, w := range weights[1:] {
		if current+joinCost+w <= capacity {
			current += joinCost + w
			continue
		}
		groups++
		current = w
	}
	return groups
}

// OptimalCapacity returns the smallest capacity that keeps the group count at
// GroupsNeeded(weights, joinCost, limit). The result never exceeds limit.
func OptimalCapacity(weights []int, joinCost, limit int) (int, error) {
	heaviest, err := checkInput(weights, joinCost, limit)
	if err != nil {
		return 0, err
	}

	target := GroupsNeeded(weights, joinCost, limit)

	low, high := heaviest, limit
	optimal := high
	for low <= high {
		mid := low + (high-low)/2
		if GroupsNeeded(weights, joinCost, mid) <= target {
			optimal = mid
			high = mid - 1
		} else {
			low = mid + 1
		}
	}
	return optimal, nil
}

// Build walks the weights once at the given capacity and returns the chunk
// ranges with their reconstructed weights.
func Build(weights []int, joinCost, capacity int) []types.Chunk {
	n := len(weights)
	if n == 0 {
		return nil
	}

	ranges := make([]types.Range, 0, 4)
	current := weights[0]
	start := 0
	for i := 1; i < n; i++ {
		if current+joinCost+weights[i] <= capacity {
			current += joinCost + weights[i]
			continue
		}
		ranges = append(ranges, types.Range{Start: start, End: i - 1})
		start = i
		current = weights[i]
	}
	ranges = append(ranges, types.Range{Start: start, End: n - 1})

	chunks := make([]types.Chunk, len(ranges))
	for i, r := range ranges {
		chunks[i] = types.Chunk{Range: r, Tokens: Weight(weights, joinCost, r)}
	}
	return chunks
}

// Weight computes the reconstructed token weight of a range.
func Weight(weights []int, joinCost int, r types.Range) int {
	sum := 0
	for _, w := range weights[r.Start : r.End+1] {
		sum += w
	}
	return sum + joinCost*(r.Len()-1)
}

// Verify checks that chunks cover [0, n-1] contiguously and none exceeds limit.
func Verify(chunks []types.Chunk, n, limit int) error {
	if n == 0 && len(chunks) == 0 {
		return nil
	}
	if len(chunks) == 0 {
		return fmt.Errorf("%w: no chunks for %d segments", ErrBrokenCover, n)
	}

	next := 0
	for i, c := range chunks {
		if err := c.Validate(n); err != nil {
			return fmt.Errorf("%w: chunk %d: %v", ErrBrokenCover, i, err)
		}
		if c.Start != next {
			return fmt.Errorf("%w: chunk %d starts at %d, want %d", ErrBrokenCover, i, c.Start, next)
		}
		next = c.End + 1
	}
	if next != n {
		return fmt.Errorf("%w: cover ends at %d, want %d", ErrBrokenCover, next-1, n-1)
	}

	for i, c := range chunks {
		if c.Tokens > limit {
			return fmt.Errorf("%w: chunk %d %s has %d tokens, limit %d", ErrChunkOverLimit, i, c.Range, c.Tokens, limit)
		}
	}
	return nil
}

// checkInput validates partition input and returns the heaviest weight.
func checkInput(weights []int, joinCost, limit int) (int, error) {
	if len(weights) == 0 {
		return 0, ErrNoSegments
	}
	if limit <= 0 {
		return 0, fmt.Errorf("%w: limit %d must be positive", ErrInvalidWeights, limit)
	}
	if joinCost < 0 {
		return 0, fmt.Errorf("%w: join cost %d is negative", ErrInvalidWeights, joinCost)
	}

	heaviest := 0
	for i, w := range weights {
		if w < 0 {
			return 0, fmt.Errorf("%w: weight %d at index %d is negative", ErrInvalidWeights, w, i)
		}
		if w > heaviest {
			heaviest = w
		}
	}
	if heaviest > limit {
		return 0, fmt.Errorf("%w: %d > %d", ErrSegmentExceedsCapacity, heaviest, limit)
	}
	return heaviest, nil
}
