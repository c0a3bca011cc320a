package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

// Retry configuration
const (
	DefaultMaxRetries = 3
	InitialBackoff    = 100 * time.Millisecond
	MaxBackoff        = 5 * time.Second
	DefaultTimeout    = 30 * time.Second
)

// HTTPProvider counts tokens through a remote tokenize endpoint.
type HTTPProvider struct {
	url        string
	httpClient *http.Client
	maxRetries uint64
	serial     bool
}

// HTTPOptions configures an HTTPProvider.
type HTTPOptions struct {
	URL        string
	Timeout    time.Duration
	MaxRetries int
	// Serial marks the endpoint as single-threaded.
	Serial bool
}

// NewHTTPProvider creates a tokenize endpoint client.
func NewHTTPProvider(opts HTTPOptions) (*HTTPProvider, error) {
	if opts.URL == "" {
		return nil, ErrMissingURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	return &HTTPProvider{
		url: opts.URL,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		maxRetries: uint64(opts.MaxRetries),
		serial:     opts.Serial,
	}, nil
}

func (h *HTTPProvider) Count(ctx context.Context, texts []string) ([]int, error) {
	counts := make([]int, len(texts))
	for i, text := range texts {
		n, err := h.countWithRetry(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("%w: text %d: %v", ErrProviderFailed, i, err)
		}
		counts[i] = n
	}
	return counts, nil
}

func (h *HTTPProvider) countWithRetry(ctx context.Context, text string) (int, error) {
	backoff := retry.WithMaxRetries(h.maxRetries,
		retry.WithCappedDuration(MaxBackoff, retry.NewExponential(InitialBackoff)))

	var count int
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		n, err := h.callAPI(ctx, text)
		if err != nil {
			return err
		}
		count = n
		return nil
	})
	return count, err
}

// statusError carries a non-200 response.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.code, e.body)
}

func (h *HTTPProvider) callAPI(ctx context.Context, text string) (int, error) {
	body, err := json.Marshal(map[string]any{"content": text})
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		// network errors are transient
		return 0, retry.RetryableError(fmt.Errorf("api call: %w", err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		serr := &statusError{code: resp.StatusCode, body: string(bodyBytes)}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return 0, retry.RetryableError(serr)
		}
		return 0, serr
	}

	var apiResp struct {
		Tokens []json.RawMessage `json:"tokens"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	return len(apiResp.Tokens), nil
}

func (h *HTTPProvider) Name() string          { return ProviderHTTP }
func (h *HTTPProvider) ConcurrencySafe() bool { return !h.serial }

func (h *HTTPProvider) Close() error {
	h.httpClient.CloseIdleConnections()
	return nil
}
