// Package feed provides listing of external feeds that playsync sources
// point at. Each source kind maps to one Provider implementation.
package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"playsync/retry"
	"playsync/storage"
)

// Sentinel errors for feed listing operations.
var (
	ErrFeedNotFound   = errors.New("feed: not found")
	ErrRateLimited    = errors.New("feed: rate limited")
	ErrNetworkTimeout = errors.New("feed: network timeout")
	ErrInvalidURI     = errors.New("feed: invalid URI")
	ErrNoProvider     = errors.New("feed: no provider for source kind")
)

// Item is one entry of an external feed.
type Item struct {
	// ExternalID identifies the item within its feed (e.g. a video ID).
	ExternalID string `json:"external_id"`
	// Title is the raw item title as published by the feed.
	Title string `json:"title"`
	// WatchURI is the canonical link for playing the item.
	WatchURI string `json:"watch_uri"`
	// Published is when the item was published.
	Published time.Time `json:"published"`
}

// Provider lists the items of an external feed, newest first. The returned
// slice may be empty. Implementations decide their own transport, retry and
// rate limiting policy.
type Provider interface {
	ListItems(ctx context.Context, sourceURI string) ([]Item, error)
}

// ProviderError wraps errors with context about the listing operation.
type ProviderError struct {
	Kind   string // Provider kind: "rss", "api"
	Source string // Source URI being listed
	Err    error  // Underlying error
}

func (e *ProviderError) Error() string {
	return "feed: " + e.Kind + " listing " + e.Source + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Registry maps stored source kinds to their providers. The kind is resolved
// once when a source is created; dispatch here never re-inspects the URI.
type Registry map[storage.SourceKind]Provider

// For returns the provider registered for the kind, or ErrNoProvider when
// the kind has none (e.g. playlist sources while no API key is configured).
func (r Registry) For(kind storage.SourceKind) (Provider, error) {
	p, ok := r[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoProvider, kind)
	}
	return p, nil
}

// Options carries the operational settings NewRegistry threads into its
// providers. Zero values keep the providers' built-in defaults.
type Options struct {
	// APIKey enables the Data API provider for playlist sources.
	APIKey string
	// HTTPTimeout bounds each feed request.
	HTTPTimeout time.Duration
	// Retry replaces the providers' retry policy.
	Retry *retry.Config
}

// NewRegistry builds the default provider set. The Data API provider is only
// registered when an API key is configured; playlist sources are otherwise
// unservable and skipped during sync.
func NewRegistry(opts Options) (Registry, error) {
	rss := NewRSSProvider()
	if opts.HTTPTimeout > 0 {
		rss.client.Timeout = opts.HTTPTimeout
	}
	if opts.Retry != nil {
		cfg := *opts.Retry
		rss.RetryConfig = &cfg
	}
	reg := Registry{
		storage.KindYouTubeChannel: rss,
	}
	if opts.APIKey != "" {
		api, err := NewAPIProvider(opts.APIKey)
		if err != nil {
			return nil, err
		}
		if opts.Retry != nil {
			cfg := *opts.Retry
			api.RetryConfig = &cfg
		}
		reg[storage.KindYouTubePlaylist] = api
	}
	return reg, nil
}
