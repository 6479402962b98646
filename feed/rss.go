package feed

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"playsync/retry"
)

const (
	rssFeedURLTemplate = "https://www.youtube.com/feeds/videos.xml?channel_id=%s"
	watchURLTemplate   = "https://www.youtube.com/watch?v=%s"
	defaultTimeout     = 30 * time.Second
)

// RSSProvider lists a YouTube channel via its public Atom feed. The feed
// only carries the 15 most recent uploads, which is enough for the
// incremental sync path (the dedup window keeps re-fetches idempotent).
type RSSProvider struct {
	client      *http.Client
	limiter     *rate.Limiter
	RetryConfig *retry.Config
}

// NewRSSProvider creates an Atom-feed-based provider with default transport,
// retry policy, and a 1 req/s rate limiter.
func NewRSSProvider() *RSSProvider {
	cfg := retry.DefaultConfig()
	return &RSSProvider{
		client: &http.Client{
			Timeout: defaultTimeout,
		},
		limiter:     rate.NewLimiter(rate.Limit(1), 2),
		RetryConfig: &cfg,
	}
}

// NewRSSProviderWithClient creates a provider with a custom HTTP client.
// Used by tests to inject a stub transport.
func NewRSSProviderWithClient(client *http.Client) *RSSProvider {
	return &RSSProvider{client: client}
}

// ListItems fetches the channel's Atom feed and returns its entries newest
// first. The sourceURI must contain a channel ID (UC...).
func (r *RSSProvider) ListItems(ctx context.Context, sourceURI string) ([]Item, error) {
	channelID, err := extractChannelID(sourceURI)
	if err != nil {
		return nil, &ProviderError{Kind: "rss", Source: sourceURI, Err: err}
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, &ProviderError{Kind: "rss", Source: sourceURI, Err: err}
		}
	}

	cfg := r.RetryConfig
	if cfg == nil {
		defaultCfg := retry.DefaultConfig()
		cfg = &defaultCfg
	}

	var items []Item
	err = retry.Do(ctx, *cfg, rssErrorClassifier, func(ctx context.Context) error {
		feedURL := fmt.Sprintf(rssFeedURLTemplate, channelID)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
		if err != nil {
			return &ProviderError{Kind: "rss", Source: sourceURI, Err: err}
		}

		resp, err := r.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return &ProviderError{Kind: "rss", Source: sourceURI, Err: ErrNetworkTimeout}
			}
			return &ProviderError{Kind: "rss", Source: sourceURI, Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return &ProviderError{Kind: "rss", Source: sourceURI, Err: ErrFeedNotFound}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return &ProviderError{Kind: "rss", Source: sourceURI, Err: ErrRateLimited}
		}
		if resp.StatusCode != http.StatusOK {
			return &ProviderError{Kind: "rss", Source: sourceURI,
				Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)}
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return &ProviderError{Kind: "rss", Source: sourceURI, Err: err}
		}

		feed, err := parseAtomFeed(body)
		if err != nil {
			return &ProviderError{Kind: "rss", Source: sourceURI, Err: err}
		}

		items = feedToItems(feed)
		return nil
	})

	if err != nil {
		return nil, err
	}

	return items, nil
}

// atomFeed represents a YouTube Atom feed structure.
type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Title   string      `xml:"title"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID        string    `xml:"id"`
	VideoID   string    `xml:"http://www.youtube.com/xml/schemas/2015 videoId"`
	Title     string    `xml:"title"`
	Published time.Time `xml:"published"`
	Updated   time.Time `xml:"updated"`
}

// parseAtomFeed parses YouTube's Atom XML feed.
func parseAtomFeed(data []byte) (*atomFeed, error) {
	var feed atomFeed
	if err := xml.Unmarshal(data, &feed); err != nil {
		return nil, fmt.Errorf("parse atom feed: %w", err)
	}
	return &feed, nil
}

// feedToItems converts an Atom feed to Items, newest first.
func feedToItems(feed *atomFeed) []Item {
	items := make([]Item, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		items = append(items, Item{
			ExternalID: entry.VideoID,
			Title:      entry.Title,
			WatchURI:   fmt.Sprintf(watchURLTemplate, entry.VideoID),
			Published:  entry.Published,
		})
	}
	// Feeds usually arrive newest-first already, but the contract is ours
	// to enforce.
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Published.After(items[j].Published)
	})
	return items
}

// channelIDRegex matches YouTube channel IDs (UC followed by 22 base64 chars).
var channelIDRegex = regexp.MustCompile(`UC[a-zA-Z0-9_-]{22}`)

// extractChannelID extracts a channel ID from various URL formats.
func extractChannelID(input string) (string, error) {
	// Direct channel ID
	if channelIDRegex.MatchString(input) {
		return channelIDRegex.FindString(input), nil
	}

	// Check for channel URL patterns
	if strings.Contains(input, "youtube.com/channel/") {
		parts := strings.Split(input, "youtube.com/channel/")
		if len(parts) > 1 {
			id := strings.Split(parts[1], "/")[0]
			id = strings.Split(id, "?")[0]
			if channelIDRegex.MatchString(id) {
				return id, nil
			}
		}
	}

	return "", fmt.Errorf("%w: cannot extract channel ID from %q (handles require resolution)", ErrInvalidURI, input)
}

// rssErrorClassifier determines if an RSS error is retryable.
func rssErrorClassifier(err error) bool {
	if err == nil {
		return false
	}

	// Permanent errors - don't retry
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		switch provErr.Err {
		case ErrFeedNotFound, ErrInvalidURI:
			return false
		default:
			// Retryable: rate limit, timeout, network errors
			return true
		}
	}

	// Default to retryable for unknown errors
	return true
}
