package oracle

import (
	"context"
	"errors"
	"fmt"
)

// Common errors
var (
	ErrUnknownProvider = errors.New("unknown oracle provider")
	ErrProviderFailed  = errors.New("token oracle failed")
	ErrCountMismatch   = errors.New("token count mismatch")
	ErrMissingURL      = errors.New("http oracle requires a url")
)

// Oracle counts tokens for a batch of texts.
type Oracle interface {
	// Count returns one token count per text, in the same order.
	Count(ctx context.Context, texts []string) ([]int, error)

	// Name returns the provider name
	Name() string

	// ConcurrencySafe reports whether Count may be called from several goroutines.
	ConcurrencySafe() bool

	// Close releases any resources held by the oracle
	Close() error
}

// CountOne counts a single text.
func CountOne(ctx context.Context, o Oracle, text string) (int, error) {
	counts, err := CountBatch(ctx, o, []string{text})
	if err != nil {
		return 0, err
	}
	return counts[0], nil
}

// CountBatch calls o.Count and checks that one count came back per text.
func CountBatch(ctx context.Context, o Oracle, texts []string) ([]int, error) {
	counts, err := o.Count(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(counts) != len(texts) {
		return nil, fmt.Errorf("%w: %s returned %d counts for %d texts", ErrCountMismatch, o.Name(), len(counts), len(texts))
	}
	return counts, nil
}

// Func adapts a plain counting function into an Oracle. It is used for
// deterministic fakes and for embedding custom tokenizers.
type Func struct {
	ProviderName string
	Serial       bool
	Fn           func(ctx context.Context, text string) (int, error)
}

func (f Func) Count(ctx context.Context, texts []string) ([]int, error) {
	counts := make([]int, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := f.Fn(ctx, text)
		if err != nil {
			return nil, err
		}
		counts[i] = n
	}
	return counts, nil
}

func (f Func) Name() string {
	if f.ProviderName == "" {
		return "func"
	}
	return f.ProviderName
}

func (f Func) ConcurrencySafe() bool { return !f.Serial }

func (f Func) Close() error { return nil }
