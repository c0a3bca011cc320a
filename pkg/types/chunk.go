package types

import "fmt"

// Range is an inclusive index range over a document's segments.
type Range struct {
	Start int
	End   int
}

// Len returns the number of segments covered by the range.
func (r Range) Len() int {
	return r.End - r.Start + 1
}

func (r Range) String() string {
	return fmt.Sprintf("(%d,%d)", r.Start, r.End)
}

// Chunk is a contiguous run of segments re-joined into one output record.
type Chunk struct {
	Range
	Tokens int // segment tokens plus join cost per re-inserted delimiter
}

// Validate checks that the chunk lies inside a sequence of n segments.
func (c Chunk) Validate(n int) error {
	if c.Start < 0 || c.End >= n {
		return fmt.Errorf("%w: %s outside [0,%d]", ErrRangeOutOfBounds, c.Range, n-1)
	}
	if c.Start > c.End {
		return fmt.Errorf("%w: %s", ErrInvertedRange, c.Range)
	}
	if c.Tokens < 0 {
		return ErrNegativeValue
	}
	return nil
}

// ChunkTokens returns the token weight of every chunk, in order.
func ChunkTokens(chunks []Chunk) []int {
	out := make([]int, len(chunks))
	for i, c := range chunks {
		out[i] = c.Tokens
	}
	return out
}

// MaxTokens returns the largest chunk weight, or 0 for no chunks.
func MaxTokens(chunks []Chunk) int {
	largest := 0
	for _, c := range chunks {
		if c.Tokens > largest {
			largest = c.Tokens
		}
	}
	return largest
}
