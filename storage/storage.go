// Package storage provides abstractions for persisting playsync data.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for common storage conditions.
var (
	// ErrNotFound indicates the requested entity was not found, or is
	// soft-deleted and the caller did not ask to include deleted records.
	ErrNotFound = errors.New("storage: not found")
	// ErrAlreadyExists indicates the entity already exists in storage.
	ErrAlreadyExists = errors.New("storage: already exists")
	// ErrInvalidInput indicates invalid or malformed input was provided.
	ErrInvalidInput = errors.New("storage: invalid input")
	// ErrStorageCorrupt indicates data corruption was detected.
	ErrStorageCorrupt = errors.New("storage: data corruption detected")
	// ErrLockTimeout indicates a timeout acquiring the store file lock.
	ErrLockTimeout = errors.New("storage: lock acquisition timeout")
)

// StorageError wraps storage errors with operation and entity context.
// Use errors.As() to extract this error type and get operation details:
//
//	var storErr *storage.StorageError
//	if errors.As(err, &storErr) {
//		fmt.Printf("Failed to %s %s %s: %v\n", storErr.Op, storErr.Entity, storErr.ID, storErr.Err)
//	}
type StorageError struct {
	// Op is the operation that failed ("add", "get", "update", "delete", ...).
	Op string
	// Entity is the entity type ("playlist", "stream", "source").
	Entity string
	// ID is the entity ID if applicable.
	ID string
	// Err is the underlying error that occurred.
	Err error
}

// Error returns a string representation of the storage error.
func (e *StorageError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("storage: %s %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
	}
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Entity, e.Err)
}

// Unwrap returns the underlying error for use with errors.Is() and errors.As().
func (e *StorageError) Unwrap() error { return e.Err }

// Store is the main storage interface for all playsync data operations.
// Implementations must be safe for concurrent use within a single process.
// Cross-process concurrency is not supported: implementations guard the
// backing file with an advisory lock and a second process fails to open it.
type Store interface {
	PlaylistStore
	StreamStore
	SourceStore

	// Close releases any resources held by the store.
	Close() error
}

// PlaylistStore handles playlist lifecycle operations.
//
// Delete is a soft-delete: the record stays in storage with its deleted
// timestamp set and becomes invisible to reads unless includeDeleted is
// passed. Restore clears the timestamp. Remove erases the record for good.
type PlaylistStore interface {
	// AddPlaylist saves a new playlist, assigning an ID if empty.
	AddPlaylist(ctx context.Context, p *Playlist) (*Playlist, error)
	// GetPlaylist retrieves a playlist by ID.
	GetPlaylist(ctx context.Context, id string, includeDeleted bool) (*Playlist, error)
	// ListPlaylists retrieves all playlists, ordered by ID.
	ListPlaylists(ctx context.Context, includeDeleted bool) ([]*Playlist, error)
	// UpdatePlaylist replaces an existing playlist record.
	UpdatePlaylist(ctx context.Context, p *Playlist) (*Playlist, error)
	// DeletePlaylist soft-deletes a playlist.
	DeletePlaylist(ctx context.Context, id string) (*Playlist, error)
	// RestorePlaylist clears a playlist's deleted timestamp.
	RestorePlaylist(ctx context.Context, id string) (*Playlist, error)
	// RemovePlaylist permanently erases a playlist record.
	RemovePlaylist(ctx context.Context, id string, includeDeleted bool) (*Playlist, error)
	// PlaylistExists reports whether a live playlist with the ID exists.
	PlaylistExists(ctx context.Context, id string) bool
}

// StreamStore handles stream lifecycle operations.
type StreamStore interface {
	AddStream(ctx context.Context, s *Stream) (*Stream, error)
	GetStream(ctx context.Context, id string, includeDeleted bool) (*Stream, error)
	ListStreams(ctx context.Context, includeDeleted bool) ([]*Stream, error)
	UpdateStream(ctx context.Context, s *Stream) (*Stream, error)
	DeleteStream(ctx context.Context, id string) (*Stream, error)
	RestoreStream(ctx context.Context, id string) (*Stream, error)
	RemoveStream(ctx context.Context, id string, includeDeleted bool) (*Stream, error)
	StreamExists(ctx context.Context, id string) bool
}

// SourceStore handles source lifecycle operations.
type SourceStore interface {
	AddSource(ctx context.Context, s *Source) (*Source, error)
	GetSource(ctx context.Context, id string, includeDeleted bool) (*Source, error)
	ListSources(ctx context.Context, includeDeleted bool) ([]*Source, error)
	UpdateSource(ctx context.Context, s *Source) (*Source, error)
	DeleteSource(ctx context.Context, id string) (*Source, error)
	RestoreSource(ctx context.Context, id string) (*Source, error)
	RemoveSource(ctx context.Context, id string, includeDeleted bool) (*Source, error)
	SourceExists(ctx context.Context, id string) bool
}
