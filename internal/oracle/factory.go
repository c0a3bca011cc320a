package oracle

import (
	"fmt"
	"strings"
	"time"
)

// Provider names
const (
	ProviderTiktoken  = "tiktoken"
	ProviderHeuristic = "heuristic"
	ProviderHTTP      = "http"
)

// Config holds oracle configuration
type Config struct {
	Provider   string
	Encoding   string // tiktoken encoding or model name
	URL        string // http tokenize endpoint
	Timeout    time.Duration
	MaxRetries int
	Serial     bool // the endpoint is single-threaded
	CacheSize  int  // 0 uses DefaultCacheSize, negative disables caching
}

// New creates an oracle with explicit configuration. The result is cached and,
// when the provider is not safe for concurrent use, serialized.
func New(cfg Config) (Oracle, error) {
	var base Oracle
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderTiktoken:
		p, err := NewTiktokenProvider(cfg.Encoding)
		if err != nil {
			return nil, err
		}
		base = p
	case ProviderHeuristic:
		base = NewHeuristicProvider()
	case ProviderHTTP:
		p, err := NewHTTPProvider(HTTPOptions{
			URL:        cfg.URL,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
			Serial:     cfg.Serial,
		})
		if err != nil {
			return nil, err
		}
		base = p
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}

	return Wrap(base, cfg.CacheSize), nil
}

// Wrap applies caching and serialization to any oracle.
func Wrap(base Oracle, cacheSize int) Oracle {
	o := base
	if !o.ConcurrencySafe() {
		o = Serialize(o)
	}
	if cacheSize >= 0 {
		o = NewCached(o, cacheSize)
	}
	return o
}

// ValidProvider reports whether name is a known provider.
func ValidProvider(name string) bool {
	switch strings.ToLower(name) {
	case "", ProviderTiktoken, ProviderHeuristic, ProviderHTTP:
		return true
	}
	return false
}
