package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wordCounter() Func {
	return Func{
		ProviderName: "words",
		Fn: func(_ context.Context, text string) (int, error) {
			return len(strings.Fields(text)), nil
		},
	}
}

func TestComputeHash(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", ComputeHash(""))
	assert.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", ComputeHash("hello world"))
	assert.Equal(t, ComputeHash("test"), ComputeHash("test"))
}

func TestEstimateTokenCount(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abc", 0},
		{"abcd", 1},
		{"abcdefghi", 2},
		{strings.Repeat("x", 400), 100},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, EstimateTokenCount(tt.text), "len=%d", len(tt.text))
	}
}

func TestHeuristicProvider(t *testing.T) {
	h := NewHeuristicProvider()
	counts, err := h.Count(context.Background(), []string{"abcd", "abcdefgh", ""})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 0}, counts)
	assert.Equal(t, ProviderHeuristic, h.Name())
	assert.True(t, h.ConcurrencySafe())
}

func TestHeuristicProvider_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHeuristicProvider().Count(ctx, []string{"abcd"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCountBatch_Mismatch(t *testing.T) {
	short := &stubOracle{counts: []int{1}}
	_, err := CountBatch(context.Background(), short, []string{"a", "b"})
	assert.ErrorIs(t, err, ErrCountMismatch)
}

func TestCountOne(t *testing.T) {
	n, err := CountOne(context.Background(), wordCounter(), "one two three")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestFunc_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	f := Func{Fn: func(context.Context, string) (int, error) { return 0, boom }}

	_, err := f.Count(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "func", f.Name())
}

func TestCachedOracle_ServesRepeatsFromCache(t *testing.T) {
	var calls atomic.Int64
	inner := Func{Fn: func(_ context.Context, text string) (int, error) {
		calls.Add(1)
		return len(text), nil
	}}
	c := NewCached(inner, 16)

	counts, err := c.Count(context.Background(), []string{"aa", "bbb", "aa"})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 2}, counts)
	assert.Equal(t, int64(3), calls.Load())
	assert.Equal(t, 2, c.Size())

	counts, err = c.Count(context.Background(), []string{"bbb", "cccc", "aa"})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4, 2}, counts)
	assert.Equal(t, int64(4), calls.Load(), "only the new text should reach the provider")
}

func TestCachedOracle_ErrorNotCached(t *testing.T) {
	fail := true
	inner := Func{Fn: func(_ context.Context, text string) (int, error) {
		if fail {
			return 0, errors.New("unavailable")
		}
		return len(text), nil
	}}
	c := NewCached(inner, 0)

	_, err := c.Count(context.Background(), []string{"abc"})
	require.Error(t, err)
	assert.Equal(t, 0, c.Size())

	fail = false
	counts, err := c.Count(context.Background(), []string{"abc"})
	require.NoError(t, err)
	assert.Equal(t, []int{3}, counts)
}

func TestSerialOracle_NoOverlap(t *testing.T) {
	var active, peak atomic.Int64
	inner := Func{
		Serial: true,
		Fn: func(_ context.Context, text string) (int, error) {
			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
			return len(text), nil
		},
	}
	o := Wrap(inner, -1)
	require.True(t, o.ConcurrencySafe())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.Count(context.Background(), []string{"abc", "de"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), peak.Load())
}

func TestSerialOracle_ContextCanceledWhileWaiting(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	inner := Func{Serial: true, Fn: func(_ context.Context, text string) (int, error) {
		if text == "hold" {
			close(started)
			<-release
		}
		return 1, nil
	}}
	s := Serialize(inner)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Count(context.Background(), []string{"hold"})
	}()

	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.Count(ctx, []string{"blocked"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	<-done
}

func tokenizeServer(t *testing.T, handler func(w http.ResponseWriter, content string)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Content string `json:"content"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		handler(w, req.Content)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeTokens(w http.ResponseWriter, n int) {
	tokens := make([]int, n)
	for i := range tokens {
		tokens[i] = i + 1
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"tokens": tokens})
}

func TestHTTPProvider_Count(t *testing.T) {
	srv := tokenizeServer(t, func(w http.ResponseWriter, content string) {
		writeTokens(w, len(strings.Fields(content)))
	})

	p, err := NewHTTPProvider(HTTPOptions{URL: srv.URL, MaxRetries: 1})
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	counts, err := p.Count(context.Background(), []string{"a b c", "d", ""})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1, 0}, counts)
	assert.Equal(t, ProviderHTTP, p.Name())
}

func TestHTTPProvider_RetriesServerErrors(t *testing.T) {
	var attempts atomic.Int64
	srv := tokenizeServer(t, func(w http.ResponseWriter, content string) {
		if attempts.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		writeTokens(w, 5)
	})

	p, err := NewHTTPProvider(HTTPOptions{URL: srv.URL, MaxRetries: 3})
	require.NoError(t, err)

	n, err := CountOne(context.Background(), p, "anything")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, int64(3), attempts.Load())
}

func TestHTTPProvider_ClientErrorNotRetried(t *testing.T) {
	var attempts atomic.Int64
	srv := tokenizeServer(t, func(w http.ResponseWriter, content string) {
		attempts.Add(1)
		http.Error(w, "bad", http.StatusBadRequest)
	})

	p, err := NewHTTPProvider(HTTPOptions{URL: srv.URL, MaxRetries: 3})
	require.NoError(t, err)

	_, err = CountOne(context.Background(), p, "anything")
	assert.ErrorIs(t, err, ErrProviderFailed)
	assert.Equal(t, int64(1), attempts.Load())
}

func TestHTTPProvider_GivesUpAfterMaxRetries(t *testing.T) {
	var attempts atomic.Int64
	srv := tokenizeServer(t, func(w http.ResponseWriter, content string) {
		attempts.Add(1)
		http.Error(w, "down", http.StatusInternalServerError)
	})

	p, err := NewHTTPProvider(HTTPOptions{URL: srv.URL, MaxRetries: 2})
	require.NoError(t, err)

	_, err = CountOne(context.Background(), p, "anything")
	assert.ErrorIs(t, err, ErrProviderFailed)
	assert.Equal(t, int64(3), attempts.Load())
}

func TestNewHTTPProvider_MissingURL(t *testing.T) {
	_, err := NewHTTPProvider(HTTPOptions{})
	assert.ErrorIs(t, err, ErrMissingURL)
}

func TestNew(t *testing.T) {
	t.Run("heuristic", func(t *testing.T) {
		o, err := New(Config{Provider: "Heuristic"})
		require.NoError(t, err)
		assert.Equal(t, ProviderHeuristic, o.Name())
		_, cached := o.(*CachedOracle)
		assert.True(t, cached)
	})

	t.Run("cache disabled", func(t *testing.T) {
		o, err := New(Config{Provider: ProviderHeuristic, CacheSize: -1})
		require.NoError(t, err)
		_, isHeuristic := o.(*HeuristicProvider)
		assert.True(t, isHeuristic)
	})

	t.Run("serial http is wrapped", func(t *testing.T) {
		o, err := New(Config{Provider: ProviderHTTP, URL: "http://127.0.0.1:1/tokenize", Serial: true, CacheSize: -1})
		require.NoError(t, err)
		_, serial := o.(*SerialOracle)
		assert.True(t, serial)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := New(Config{Provider: "sentencepiece"})
		assert.ErrorIs(t, err, ErrUnknownProvider)
	})

	t.Run("http without url", func(t *testing.T) {
		_, err := New(Config{Provider: ProviderHTTP})
		assert.ErrorIs(t, err, ErrMissingURL)
	})
}

func TestValidProvider(t *testing.T) {
	assert.True(t, ValidProvider(""))
	assert.True(t, ValidProvider("TIKTOKEN"))
	assert.True(t, ValidProvider(ProviderHTTP))
	assert.False(t, ValidProvider("bert"))
}

func TestTiktokenProvider(t *testing.T) {
	p, err := NewTiktokenProvider(DefaultEncoding)
	if err != nil {
		// the BPE ranks are fetched on first use
		t.Skipf("tiktoken encoding unavailable: %v", err)
	}

	counts, err := p.Count(context.Background(), []string{"", "hello world"})
	require.NoError(t, err)
	assert.Equal(t, 0, counts[0])
	assert.Equal(t, 2, counts[1])
	assert.Equal(t, "tiktoken:cl100k_base", p.Name())
}

type stubOracle struct {
	counts []int
}

func (s *stubOracle) Count(context.Context, []string) ([]int, error) { return s.counts, nil }
func (s *stubOracle) Name() string                                  { return "stub" }
func (s *stubOracle) ConcurrencySafe() bool                         { return true }
func (s *stubOracle) Close() error                                  { return nil }
