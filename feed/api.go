package feed

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"playsync/retry"
)

const (
	// apiPageSize is the maximum page size the playlistItems endpoint allows.
	apiPageSize = 50
	// apiMaxPages bounds one listing call; the sync engine bounds its own
	// work per fetch, so deep history is never needed here.
	apiMaxPages = 4
)

// APIProvider lists a YouTube playlist via the Data API v3. It requires an
// API key with access to the playlistItems endpoint.
type APIProvider struct {
	service     *youtube.Service
	RetryConfig *retry.Config
}

// NewAPIProvider creates a Data-API-based provider.
func NewAPIProvider(apiKey string) (*APIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("feed: api key required")
	}

	service, err := youtube.NewService(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("feed: create youtube service: %w", err)
	}

	cfg := retry.DefaultConfig()
	return &APIProvider{
		service:     service,
		RetryConfig: &cfg,
	}, nil
}

// ListItems fetches playlist entries and returns them newest first.
// The sourceURI must carry the playlist ID in its "list" query parameter
// or as a bare playlist ID (PL.../UU...).
func (a *APIProvider) ListItems(ctx context.Context, sourceURI string) ([]Item, error) {
	playlistID, err := extractPlaylistID(sourceURI)
	if err != nil {
		return nil, &ProviderError{Kind: "api", Source: sourceURI, Err: err}
	}

	cfg := a.RetryConfig
	if cfg == nil {
		defaultCfg := retry.DefaultConfig()
		cfg = &defaultCfg
	}

	var items []Item
	err = retry.Do(ctx, *cfg, apiErrorClassifier, func(ctx context.Context) error {
		items = items[:0]
		pageToken := ""
		for page := 0; page < apiMaxPages; page++ {
			call := a.service.PlaylistItems.List([]string{"snippet", "contentDetails"}).
				PlaylistId(playlistID).
				MaxResults(apiPageSize).
				Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}

			resp, err := call.Do()
			if err != nil {
				return &ProviderError{Kind: "api", Source: sourceURI, Err: classifyAPIError(err)}
			}

			for _, pi := range resp.Items {
				published, _ := time.Parse(time.RFC3339, pi.ContentDetails.VideoPublishedAt)
				if published.IsZero() {
					published, _ = time.Parse(time.RFC3339, pi.Snippet.PublishedAt)
				}
				videoID := pi.ContentDetails.VideoId
				items = append(items, Item{
					ExternalID: videoID,
					Title:      pi.Snippet.Title,
					WatchURI:   fmt.Sprintf(watchURLTemplate, videoID),
					Published:  published,
				})
			}

			pageToken = resp.NextPageToken
			if pageToken == "" {
				break
			}
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Published.After(items[j].Published)
	})
	return items, nil
}

// playlistIDPrefixes are the known YouTube playlist ID prefixes.
var playlistIDPrefixes = []string{"PL", "UU", "LL", "FL", "OL", "RD"}

// extractPlaylistID extracts a playlist ID from a URL or bare ID.
func extractPlaylistID(input string) (string, error) {
	if u, err := url.Parse(input); err == nil {
		if list := u.Query().Get("list"); list != "" {
			return list, nil
		}
	}
	for _, prefix := range playlistIDPrefixes {
		if strings.HasPrefix(input, prefix) && len(input) > len(prefix) {
			return input, nil
		}
	}
	return "", fmt.Errorf("%w: cannot extract playlist ID from %q", ErrInvalidURI, input)
}

// classifyAPIError maps Data API errors onto the feed sentinels.
func classifyAPIError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 404:
			return ErrFeedNotFound
		case 403, 429:
			return ErrRateLimited
		}
	}
	return err
}

// apiErrorClassifier determines if a Data API error is retryable.
func apiErrorClassifier(err error) bool {
	if err == nil {
		return false
	}
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		switch provErr.Err {
		case ErrFeedNotFound, ErrInvalidURI, ErrRateLimited:
			// Rate limiting on the Data API means quota exhaustion for the
			// day; retrying within one call cannot help.
			return false
		}
	}
	return true
}
