package oracle

import (
	"context"
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is used when no encoding or model is configured.
const DefaultEncoding = "cl100k_base"

// TiktokenProvider counts BPE tokens with tiktoken-go.
type TiktokenProvider struct {
	encoding string
	tke      *tiktoken.Tiktoken
}

// NewTiktokenProvider loads an encoding by name, or the encoding used by an
// OpenAI model name.
func NewTiktokenProvider(encodingOrModel string) (*TiktokenProvider, error) {
	if encodingOrModel == "" {
		encodingOrModel = DefaultEncoding
	}

	tke, err := tiktoken.GetEncoding(encodingOrModel)
	if err != nil {
		var modelErr error
		tke, modelErr = tiktoken.EncodingForModel(encodingOrModel)
		if modelErr != nil {
			return nil, fmt.Errorf("%w: tiktoken encoding %q: %v", ErrUnknownProvider, encodingOrModel, err)
		}
	}

	return &TiktokenProvider{encoding: encodingOrModel, tke: tke}, nil
}

func (t *TiktokenProvider) Count(ctx context.Context, texts []string) ([]int, error) {
	counts := make([]int, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		counts[i] = len(t.tke.Encode(text, nil, nil))
	}
	return counts, nil
}

func (t *TiktokenProvider) Name() string         { return ProviderTiktoken + ":" + t.encoding }
func (t *TiktokenProvider) ConcurrencySafe() bool { return true }
func (t *TiktokenProvider) Close() error          { return nil }
