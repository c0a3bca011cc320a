package oracle

import "context"

// TokensPerChar is the heuristic divisor for estimating tokens (bytes/4)
const TokensPerChar = 4

// HeuristicProvider estimates tokens without a tokenizer.
type HeuristicProvider struct{}

// NewHeuristicProvider creates a bytes/4 estimator.
func NewHeuristicProvider() *HeuristicProvider {
	return &HeuristicProvider{}
}

func (h *HeuristicProvider) Count(ctx context.Context, texts []string) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	counts := make([]int, len(texts))
	for i, text := range texts {
		counts[i] = EstimateTokenCount(text)
	}
	return counts, nil
}

func (h *HeuristicProvider) Name() string         { return ProviderHeuristic }
func (h *HeuristicProvider) ConcurrencySafe() bool { return true }
func (h *HeuristicProvider) Close() error          { return nil }

// EstimateTokenCount estimates the number of tokens in a string
func EstimateTokenCount(text string) int {
	return len(text) / TokensPerChar
}
