package storage

import (
	"net/url"
	"strings"
	"time"
)

// Playlist is a named, ordered collection of stream references plus the
// sources that feed it. It holds only foreign IDs; the referenced records
// live in their own collections and may be missing (dangling). Read paths
// skip dangling IDs, the maintenance engine repairs them.
type Playlist struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	StreamIDs []string `json:"stream_ids"`
	SourceIDs []string `json:"source_ids"`

	// PlayWatchedStreams keeps watched streams eligible for replay.
	// When false, prune removes watched streams from the playlist.
	PlayWatchedStreams bool `json:"play_watched_streams"`
	// AllowDuplicates permits streams whose URI or name matches an
	// already-linked live stream.
	AllowDuplicates bool `json:"allow_duplicates"`

	Updated time.Time  `json:"updated"`
	Deleted *time.Time `json:"deleted,omitempty"`
}

// Stream is a queued media reference, usually produced by a source sync
// but also addable by hand (StreamSourceID empty).
type Stream struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
	// IsWeb is derived from the URI at creation time.
	IsWeb bool `json:"is_web"`

	// Watched is nil while the stream is unwatched.
	Watched *time.Time `json:"watched,omitempty"`
	// StreamSourceID is a weak back-reference to the originating source.
	StreamSourceID string `json:"stream_source_id,omitempty"`
	// BackgroundContent is copied from the producing source.
	BackgroundContent bool `json:"background_content"`

	Added   time.Time  `json:"added"`
	Deleted *time.Time `json:"deleted,omitempty"`
}

// Source is an external feed the system can poll for new streams.
type Source struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	URI   string     `json:"uri"`
	IsWeb bool       `json:"is_web"`
	Kind  SourceKind `json:"kind"`

	// EnableFetch gates the source during sync; disabled sources are skipped.
	EnableFetch bool `json:"enable_fetch"`
	// BackgroundContent is propagated to every stream this source produces.
	BackgroundContent bool `json:"background_content"`

	// LastFetched is the time of the last fetch attempt, successful or not.
	LastFetched *time.Time `json:"last_fetched,omitempty"`
	// LastSuccessfulFetched is the time of the last fetch that produced
	// at least one new stream.
	LastSuccessfulFetched *time.Time `json:"last_successful_fetched,omitempty"`
	// LastFetchedIDs is the bounded dedup window of recently seen external
	// item IDs, oldest first. Capacity equals the fetch batch size.
	LastFetchedIDs []string `json:"last_fetched_ids,omitempty"`

	Deleted *time.Time `json:"deleted,omitempty"`
}

// SourceKind classifies a source by which feed provider can list it.
// It is resolved once from the URI when the source is created and stored,
// never re-derived ad hoc.
type SourceKind string

const (
	// KindYouTubeChannel is a YouTube channel listed via its Atom feed.
	KindYouTubeChannel SourceKind = "youtube-channel"
	// KindYouTubePlaylist is a YouTube playlist listed via the Data API.
	KindYouTubePlaylist SourceKind = "youtube-playlist"
	// KindWeb is a generic web URI with no dedicated provider.
	KindWeb SourceKind = "web"
	// KindUnknown is anything that does not parse as a web URI.
	KindUnknown SourceKind = "unknown"
)

// NewPlaylist creates a playlist with the given name and default policy:
// watched streams are not replayed and duplicates are rejected.
func NewPlaylist(name string) *Playlist {
	return &Playlist{Name: name}
}

// NewStream creates an unwatched stream for the given name and URI.
func NewStream(name, uri string) *Stream {
	return &Stream{
		Name:  name,
		URI:   uri,
		IsWeb: IsWebURI(uri),
	}
}

// NewSource creates a fetch-enabled source, classifying its kind from the URI.
func NewSource(name, uri string) *Source {
	return &Source{
		Name:        name,
		URI:         uri,
		IsWeb:       IsWebURI(uri),
		Kind:        DetectKind(uri),
		EnableFetch: true,
	}
}

// IsWatched reports whether the stream has been watched.
func (s *Stream) IsWatched() bool { return s.Watched != nil }

// MarkWatched stamps the stream as watched now.
func (s *Stream) MarkWatched() {
	now := time.Now()
	s.Watched = &now
}

// HasFetchedID reports whether the external ID is in the dedup window.
func (s *Source) HasFetchedID(externalID string) bool {
	for _, id := range s.LastFetchedIDs {
		if id == externalID {
			return true
		}
	}
	return false
}

// PushFetchedID appends an external ID to the dedup window, evicting the
// oldest entries once the window exceeds capacity. IDs already present are
// not pushed again.
func (s *Source) PushFetchedID(externalID string, capacity int) {
	if capacity < 1 || s.HasFetchedID(externalID) {
		return
	}
	s.LastFetchedIDs = append(s.LastFetchedIDs, externalID)
	if n := len(s.LastFetchedIDs); n > capacity {
		s.LastFetchedIDs = s.LastFetchedIDs[n-capacity:]
	}
}

// ClearFetchState drops the dedup window and fetch timestamps, forcing the
// next sync to treat the source as never fetched.
func (s *Source) ClearFetchState() {
	s.LastFetched = nil
	s.LastSuccessfulFetched = nil
	s.LastFetchedIDs = nil
}

// IsWebURI reports whether the string parses as an absolute http(s) URL.
func IsWebURI(uri string) bool {
	u, err := url.Parse(uri)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// DetectKind classifies a source URI.
func DetectKind(uri string) SourceKind {
	if !IsWebURI(uri) {
		return KindUnknown
	}
	u, _ := url.Parse(uri)
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host != "youtube.com" && host != "youtu.be" && host != "m.youtube.com" {
		return KindWeb
	}
	if u.Query().Get("list") != "" || strings.HasPrefix(u.Path, "/playlist") {
		return KindYouTubePlaylist
	}
	if strings.HasPrefix(u.Path, "/channel/") || strings.HasPrefix(u.Path, "/@") ||
		strings.HasPrefix(u.Path, "/feeds/videos.xml") {
		return KindYouTubeChannel
	}
	return KindWeb
}

// recordID / setRecordID / deletedAt / setDeletedAt implement the record
// interface used by the generic collection.

func (p *Playlist) recordID() string          { return p.ID }
func (p *Playlist) setRecordID(id string)     { p.ID = id }
func (p *Playlist) deletedAt() *time.Time     { return p.Deleted }
func (p *Playlist) setDeletedAt(t *time.Time) { p.Deleted = t }

func (s *Stream) recordID() string          { return s.ID }
func (s *Stream) setRecordID(id string)     { s.ID = id }
func (s *Stream) deletedAt() *time.Time     { return s.Deleted }
func (s *Stream) setDeletedAt(t *time.Time) { s.Deleted = t }

func (s *Source) recordID() string          { return s.ID }
func (s *Source) setRecordID(id string)     { s.ID = id }
func (s *Source) deletedAt() *time.Time     { return s.Deleted }
func (s *Source) setDeletedAt(t *time.Time) { s.Deleted = t }
