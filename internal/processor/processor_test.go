package processor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/tokensplit/internal/oracle"
	"github.com/dshills/tokensplit/internal/segment"
	"github.com/dshills/tokensplit/pkg/types"
)

// tableOracle returns fixed weights per text and counts words otherwise.
type tableOracle struct {
	mu      sync.Mutex
	weights map[string]int
	fail    map[string]error
	calls   [][]string
}

func newTableOracle(weights map[string]int) *tableOracle {
	return &tableOracle{weights: weights, fail: map[string]error{}}
}

func (o *tableOracle) Count(_ context.Context, texts []string) ([]int, error) {
	o.mu.Lock()
	o.calls = append(o.calls, append([]string(nil), texts...))
	o.mu.Unlock()

	counts := make([]int, len(texts))
	for i, text := range texts {
		if err, ok := o.fail[text]; ok {
			return nil, err
		}
		if w, ok := o.weights[text]; ok {
			counts[i] = w
			continue
		}
		counts[i] = len(strings.Fields(text))
	}
	return counts, nil
}

func (o *tableOracle) Name() string          { return "table" }
func (o *tableOracle) ConcurrencySafe() bool { return true }
func (o *tableOracle) Close() error          { return nil }

func newProcessor(t *testing.T, o oracle.Oracle, limit int, policy UndelimitedPolicy) *Processor {
	t.Helper()
	p, err := New(o, Options{Delimiter: ";", TokenLimit: limit, Undelimited: policy}, nil)
	require.NoError(t, err)
	return p
}

func TestProcess_FitsAsIs(t *testing.T) {
	o := newTableOracle(map[string]int{"whole": 150})
	p := newProcessor(t, o, 200, PolicyPassThrough)

	doc := types.Document{ID: "d1", Title: "t1", Text: "whole"}
	out := p.Process(context.Background(), doc)

	assert.Equal(t, types.ClassFitsAsIs, out.Report.Classification)
	assert.Equal(t, 150, out.Report.OriginalTokens)
	assert.Equal(t, []types.Record{{ID: "d1", Title: "t1", Text: "whole"}}, out.Records)
	assert.Equal(t, []int{150}, out.RecordTokens)
	assert.False(t, out.Quarantined())
	assert.Len(t, o.calls, 1, "fitting documents are never segmented")
}

func TestProcess_FitsAtExactLimit(t *testing.T) {
	o := newTableOracle(map[string]int{"a;b": 200})
	p := newProcessor(t, o, 200, PolicyPassThrough)

	out := p.Process(context.Background(), types.Document{ID: "d", Text: "a;b"})
	assert.Equal(t, types.ClassFitsAsIs, out.Report.Classification)
}

func TestProcess_SplitEvenPairs(t *testing.T) {
	o := newTableOracle(map[string]int{
		"A;B;C;D": 430,
		"A":       100,
		"B":       100,
		"C":       100,
		"D":       100,
		";":       10,
	})
	p := newProcessor(t, o, 220, PolicyPassThrough)

	out := p.Process(context.Background(), types.Document{ID: "doc", Title: "Doc", Text: "A;B;C;D"})

	require.Equal(t, types.ClassSplit, out.Report.Classification)
	assert.Equal(t, []types.Record{
		{ID: "doc_part1", Title: "Doc_part1", Text: "A;B"},
		{ID: "doc_part2", Title: "Doc_part2", Text: "C;D"},
	}, out.Records)
	assert.Equal(t, 2, out.Report.ChunkCount)
	assert.Equal(t, []int{210, 210}, out.Report.ChunkTokens)
	assert.Equal(t, []int{210, 210}, out.RecordTokens)
	assert.Equal(t, 210, out.Report.MaxChunkTokens)
	assert.Equal(t, 100, out.Report.MaxSegmentTokens)
	assert.Nil(t, out.Quarantine)
	require.NoError(t, out.Report.Validate())

	// whole document, one batch of segments, the delimiter
	require.Len(t, o.calls, 3)
	assert.Equal(t, []string{"A", "B", "C", "D"}, o.calls[1])
}

func TestProcess_SegmentTooLarge(t *testing.T) {
	raw := []byte(`{"id":"q","title":"Q","text":"small;huge"}`)
	o := newTableOracle(map[string]int{"small;huge": 310, "small": 50, "huge": 260})
	p := newProcessor(t, o, 200, PolicyPassThrough)

	out := p.Process(context.Background(), types.Document{ID: "q", Title: "Q", Text: "small;huge", Raw: raw})

	assert.Equal(t, types.ClassSegmentTooLarge, out.Report.Classification)
	assert.Equal(t, 260, out.Report.MaxSegmentTokens)
	assert.Empty(t, out.Records)
	assert.Equal(t, raw, out.Quarantine, "quarantine must be byte-identical to the input line")
	assert.Zero(t, out.Report.ChunkCount)
}

func TestProcess_QuarantineWithoutRawEncodesRecord(t *testing.T) {
	o := newTableOracle(map[string]int{"a<b>;c": 500, "a<b>": 300})
	p := newProcessor(t, o, 200, PolicyPassThrough)

	out := p.Process(context.Background(), types.Document{ID: "x", Title: "y", Text: "a<b>;c"})
	require.True(t, out.Quarantined())
	assert.Equal(t, `{"id":"x","title":"y","text":"a<b>;c"}`, string(out.Quarantine))
}

func TestProcess_Undelimited(t *testing.T) {
	text := " ; ;  "
	raw := []byte(`{"text":" ; ;  "}`)

	t.Run("pass-through", func(t *testing.T) {
		o := newTableOracle(map[string]int{text: 999})
		p := newProcessor(t, o, 100, PolicyPassThrough)

		out := p.Process(context.Background(), types.Document{ID: "u", Text: text, Raw: raw})
		assert.Equal(t, types.ClassPassedThrough, out.Report.Classification)
		assert.Equal(t, []types.Record{{ID: "u", Text: text, Raw: raw}}, out.Records)
		assert.Equal(t, []int{999}, out.RecordTokens)
		assert.False(t, out.Quarantined())
	})

	t.Run("quarantine", func(t *testing.T) {
		o := newTableOracle(map[string]int{text: 999})
		p := newProcessor(t, o, 100, PolicyQuarantine)

		out := p.Process(context.Background(), types.Document{ID: "u", Text: text, Raw: raw})
		assert.Equal(t, types.ClassSegmentTooLarge, out.Report.Classification)
		assert.Equal(t, 999, out.Report.MaxSegmentTokens)
		assert.Equal(t, raw, out.Quarantine)
		assert.Empty(t, out.Records)
	})
}

func TestProcess_OracleFailure(t *testing.T) {
	boom := errors.New("tokenizer offline")
	raw := []byte(`{"id":"e"}`)

	tests := []struct {
		name     string
		failText string
		wantTok  int
	}{
		{"whole document", "A;B", 0},
		{"segment batch", "B", 500},
		{"delimiter", ";", 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newTableOracle(map[string]int{"A;B": 500, "A": 100, "B": 100, ";": 1})
			o.fail[tt.failText] = boom
			p := newProcessor(t, o, 150, PolicyPassThrough)

			out := p.Process(context.Background(), types.Document{ID: "e", Text: "A;B", Raw: raw})
			assert.Equal(t, types.ClassQuarantineError, out.Report.Classification)
			assert.Contains(t, out.Report.Error, "tokenizer offline")
			assert.Equal(t, tt.wantTok, out.Report.OriginalTokens)
			assert.Equal(t, raw, out.Quarantine)
			assert.Empty(t, out.Records)
		})
	}
}

func TestProcess_CountMismatchIsOracleFailure(t *testing.T) {
	o := oracle.Func{Fn: func(context.Context, string) (int, error) { return 1000, nil }}
	short := &truncatingOracle{Oracle: o}
	p := newProcessor(t, short, 100, PolicyPassThrough)

	out := p.Process(context.Background(), types.Document{ID: "m", Text: "a;b;c"})
	assert.Equal(t, types.ClassQuarantineError, out.Report.Classification)
	assert.Contains(t, out.Report.Error, oracle.ErrCountMismatch.Error())
}

// truncatingOracle drops the last count of any multi-text batch.
type truncatingOracle struct {
	oracle.Oracle
}

func (t *truncatingOracle) Count(ctx context.Context, texts []string) ([]int, error) {
	counts, err := t.Oracle.Count(ctx, texts)
	if err != nil || len(counts) < 2 {
		return counts, err
	}
	return counts[:len(counts)-1], nil
}

func TestProcess_SplitFailedIsReported(t *testing.T) {
	// a negative join cost is rejected by the partitioner
	o := newTableOracle(map[string]int{"A;B": 500, "A": 100, "B": 100, ";": -5})
	p := newProcessor(t, o, 150, PolicyPassThrough)

	out := p.Process(context.Background(), types.Document{ID: "f", Text: "A;B"})
	assert.Equal(t, types.ClassSplitFailed, out.Report.Classification)
	assert.NotEmpty(t, out.Report.Error)
	assert.Empty(t, out.Records)
	assert.False(t, out.Quarantined())
}

func TestProcess_NegativeSegmentCountIsSplitFailed(t *testing.T) {
	o := newTableOracle(map[string]int{"A;B": 500, "A": 100, "B": -1})
	p := newProcessor(t, o, 150, PolicyPassThrough)

	out := p.Process(context.Background(), types.Document{ID: "n", Text: "A;B"})
	assert.Equal(t, types.ClassSplitFailed, out.Report.Classification)
	assert.Contains(t, out.Report.Error, "segment 1")
	assert.Empty(t, out.Records)
	assert.False(t, out.Quarantined())
}

func TestProcess_CanceledContextLeavesDocumentUnclassified(t *testing.T) {
	tests := []struct {
		name     string
		failText string
	}{
		{"whole document", "A;B"},
		{"segment batch", "B"},
		{"delimiter", ";"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			o := oracle.Func{Fn: func(ctx context.Context, text string) (int, error) {
				if text == tt.failText {
					cancel()
					return 0, ctx.Err()
				}
				return map[string]int{"A;B": 500, "A": 100, "B": 100, ";": 1}[text], nil
			}}
			p := newProcessor(t, o, 150, PolicyPassThrough)

			out := p.Process(ctx, types.Document{ID: "c", Text: "A;B", Raw: []byte(`{"id":"c"}`)})
			require.ErrorIs(t, out.Err, ErrInterrupted)
			assert.ErrorIs(t, out.Err, context.Canceled)
			assert.Empty(t, out.Report.Classification)
			assert.False(t, out.Quarantined())
			assert.Empty(t, out.Records)
		})
	}
}

func TestProcess_ChunksRespectLimitAndRoundTrip(t *testing.T) {
	words := []string{
		"alpha beta gamma",
		"delta",
		"epsilon zeta eta theta iota",
		"kappa lambda",
		"mu nu xi omicron pi rho",
		"sigma",
		"tau upsilon phi chi psi omega",
	}
	text := strings.Join(words, " ; ")
	o := newTableOracle(map[string]int{";": 1})
	p := newProcessor(t, o, 8, PolicyPassThrough)

	out := p.Process(context.Background(), types.Document{ID: "r", Text: text})
	require.Equal(t, types.ClassSplit, out.Report.Classification)

	for i, tokens := range out.RecordTokens {
		assert.LessOrEqual(t, tokens, 8, "chunk %d", i)
	}

	texts := make([]string, len(out.Records))
	for i, r := range out.Records {
		texts[i] = r.Text
	}
	segments := segment.Split(text, ";")
	want := segment.Join(segments, types.Range{Start: 0, End: len(segments) - 1}, ";")
	assert.Equal(t, want, strings.Join(texts, ";"))
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr error
	}{
		{"defaults", DefaultOptions(), nil},
		{"zero limit", Options{Delimiter: ";", TokenLimit: 0, Undelimited: PolicyPassThrough}, ErrInvalidLimit},
		{"negative limit", Options{Delimiter: ";", TokenLimit: -1, Undelimited: PolicyPassThrough}, ErrInvalidLimit},
		{"empty delimiter", Options{TokenLimit: 10, Undelimited: PolicyPassThrough}, ErrEmptyDelimiter},
		{"bad policy", Options{Delimiter: ";", TokenLimit: 10, Undelimited: "drop"}, ErrUnknownPolicy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNew(t *testing.T) {
	_, err := New(nil, DefaultOptions(), nil)
	assert.ErrorIs(t, err, ErrOracleRequired)

	p, err := New(oracle.NewHeuristicProvider(), Options{Delimiter: ";", TokenLimit: 5}, nil)
	require.NoError(t, err)
	assert.Equal(t, PolicyPassThrough, p.Options().Undelimited)
}
