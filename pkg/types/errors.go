package types

import "errors"

// Domain errors for type validation
var (
	ErrEmptySegment     = errors.New("segment text cannot be empty")
	ErrUntrimmedSegment = errors.New("segment text must be trimmed")
	ErrNegativeValue    = errors.New("index and token counts must be non-negative")
	ErrRangeOutOfBounds = errors.New("chunk range out of bounds")
	ErrInvertedRange    = errors.New("chunk start must be before or equal to end")
	ErrUnknownClass     = errors.New("unknown report classification")
	ErrMissingChunks    = errors.New("split report must carry chunk tokens")
)
