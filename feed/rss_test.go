package feed

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"playsync/retry"
)

const sampleAtomFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns:yt="http://www.youtube.com/xml/schemas/2015" xmlns="http://www.w3.org/2005/Atom">
  <title>Test Channel</title>
  <entry>
    <id>yt:video:dQw4w9WgXcQ</id>
    <yt:videoId>dQw4w9WgXcQ</yt:videoId>
    <title>First Video</title>
    <published>2026-02-01T10:00:00+00:00</published>
    <updated>2026-02-01T10:00:00+00:00</updated>
  </entry>
  <entry>
    <id>yt:video:abc123def45</id>
    <yt:videoId>abc123def45</yt:videoId>
    <title>Second Video</title>
    <published>2026-02-15T10:00:00+00:00</published>
    <updated>2026-02-15T10:00:00+00:00</updated>
  </entry>
</feed>`

const sampleEmptyAtomFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns:yt="http://www.youtube.com/xml/schemas/2015" xmlns="http://www.w3.org/2005/Atom">
  <title>Empty Channel</title>
</feed>`

type mockTransport struct {
	statusCode int
	body       string
}

func (m *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: m.statusCode,
		Body:       io.NopCloser(strings.NewReader(m.body)),
		Header:     make(http.Header),
	}, nil
}

// newMockProvider builds a provider over a canned HTTP response with a
// retry policy that fails fast.
func newMockProvider(statusCode int, body string) *RSSProvider {
	p := NewRSSProviderWithClient(&http.Client{
		Transport: &mockTransport{statusCode: statusCode, body: body},
	})
	p.RetryConfig = &retry.Config{MaxRetries: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
	return p
}

func TestRSSProviderListItems(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		sourceURI string
		wantErr   error
		wantCount int
		wantFirst string
	}{
		{
			name:      "valid feed",
			status:    http.StatusOK,
			body:      sampleAtomFeed,
			sourceURI: "https://www.youtube.com/channel/UCuAXFkgsw1L7xaCfnd5JJOw",
			wantCount: 2,
			wantFirst: "abc123def45",
		},
		{
			name:      "empty feed",
			status:    http.StatusOK,
			body:      sampleEmptyAtomFeed,
			sourceURI: "UCuAXFkgsw1L7xaCfnd5JJOw",
			wantCount: 0,
		},
		{
			name:      "feed not found",
			status:    http.StatusNotFound,
			body:      "",
			sourceURI: "UCuAXFkgsw1L7xaCfnd5JJOw",
			wantErr:   ErrFeedNotFound,
		},
		{
			name:      "rate limited",
			status:    http.StatusTooManyRequests,
			body:      "",
			sourceURI: "UCuAXFkgsw1L7xaCfnd5JJOw",
			wantErr:   ErrRateLimited,
		},
		{
			name:      "invalid source URI",
			status:    http.StatusOK,
			body:      sampleAtomFeed,
			sourceURI: "https://www.youtube.com/@handle",
			wantErr:   ErrInvalidURI,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := newMockProvider(tt.status, tt.body)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			items, err := provider.ListItems(ctx, tt.sourceURI)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ListItems() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ListItems() error = %v", err)
			}
			if len(items) != tt.wantCount {
				t.Fatalf("ListItems() got %d items, want %d", len(items), tt.wantCount)
			}
			if tt.wantCount > 0 && items[0].ExternalID != tt.wantFirst {
				t.Errorf("newest item = %s, want %s", items[0].ExternalID, tt.wantFirst)
			}
		})
	}
}

func TestRSSProviderNewestFirst(t *testing.T) {
	provider := newMockProvider(http.StatusOK, sampleAtomFeed)

	items, err := provider.ListItems(context.Background(), "UCuAXFkgsw1L7xaCfnd5JJOw")
	if err != nil {
		t.Fatalf("ListItems() error = %v", err)
	}

	for i := 1; i < len(items); i++ {
		if items[i].Published.After(items[i-1].Published) {
			t.Errorf("items not newest-first: %v before %v",
				items[i-1].Published, items[i].Published)
		}
	}
	if items[0].WatchURI != "https://www.youtube.com/watch?v=abc123def45" {
		t.Errorf("watch URI = %s", items[0].WatchURI)
	}
}

func TestExtractChannelID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "direct channel ID",
			input: "UCuAXFkgsw1L7xaCfnd5JJOw",
			want:  "UCuAXFkgsw1L7xaCfnd5JJOw",
		},
		{
			name:  "full channel URL",
			input: "https://www.youtube.com/channel/UCuAXFkgsw1L7xaCfnd5JJOw",
			want:  "UCuAXFkgsw1L7xaCfnd5JJOw",
		},
		{
			name:  "channel URL with trailing slash",
			input: "https://www.youtube.com/channel/UCuAXFkgsw1L7xaCfnd5JJOw/",
			want:  "UCuAXFkgsw1L7xaCfnd5JJOw",
		},
		{
			name:  "feed URL",
			input: "https://www.youtube.com/feeds/videos.xml?channel_id=UCuAXFkgsw1L7xaCfnd5JJOw",
			want:  "UCuAXFkgsw1L7xaCfnd5JJOw",
		},
		{
			name:    "handle",
			input:   "@testchannel",
			wantErr: true,
		},
		{
			name:    "custom name URL",
			input:   "https://www.youtube.com/c/testchannel",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractChannelID(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("extractChannelID() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("extractChannelID() = %s, want %s", got, tt.want)
			}
		})
	}
}
