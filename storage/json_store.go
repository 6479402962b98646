package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	schemaVersion = "1.0"
	lockTimeout   = 5 * time.Second
)

// JSONStore implements Store using a single JSON file. All three entity
// collections live in the same file; every mutation rewrites it atomically.
type JSONStore struct {
	path string
	lock *FileLock
	log  *zap.Logger

	mu        sync.RWMutex
	playlists *collection[*Playlist]
	streams   *collection[*Stream]
	sources   *collection[*Source]
}

// storeFile is the on-disk envelope. Individual records are kept raw so a
// corrupt record can be skipped without losing the rest of the file.
type storeFile struct {
	Version   string                     `json:"version"`
	UpdatedAt time.Time                  `json:"updated_at"`
	Playlists map[string]json.RawMessage `json:"playlists"`
	Streams   map[string]json.RawMessage `json:"streams"`
	Sources   map[string]json.RawMessage `json:"sources"`
}

// NewJSONStore opens the store at path, creating an empty one if the file
// does not exist. The backing file is guarded by an advisory lock; a second
// process opening the same path fails with ErrLockTimeout.
func NewJSONStore(path string, log *zap.Logger) (*JSONStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &JSONStore{
		path: path,
		lock: NewFileLock(path),
		log:  log,
	}

	if err := s.lock.Lock(lockTimeout); err != nil {
		return nil, err
	}

	if err := s.load(); err != nil {
		s.lock.Unlock()
		return nil, err
	}

	return s, nil
}

// load reads the JSON file into memory. Creates empty data if file doesn't exist.
func (s *JSONStore) load() error {
	s.playlists = newCollection[*Playlist]("playlist")
	s.streams = newCollection[*Stream]("stream")
	s.sources = newCollection[*Source]("source")

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Save immediately to catch permission errors early
			return s.save()
		}
		return &StorageError{Op: "read", Entity: "store", Err: err}
	}

	var file storeFile
	if err := json.Unmarshal(data, &file); err != nil {
		return &StorageError{Op: "read", Entity: "store", Err: ErrStorageCorrupt}
	}

	s.playlists.items = decodeRecords[Playlist](file.Playlists, "playlist", s.log)
	s.streams.items = decodeRecords[Stream](file.Streams, "stream", s.log)
	s.sources.items = decodeRecords[Source](file.Sources, "source", s.log)

	return nil
}

// save persists the data to disk atomically.
func (s *JSONStore) save() error {
	file := storeFile{
		Version:   schemaVersion,
		UpdatedAt: time.Now(),
	}

	var err error
	if file.Playlists, err = s.playlists.encode(); err != nil {
		return err
	}
	if file.Streams, err = s.streams.encode(); err != nil {
		return err
	}
	if file.Sources, err = s.sources.encode(); err != nil {
		return err
	}

	writer, err := NewAtomicWriter(s.path)
	if err != nil {
		return &StorageError{Op: "write", Entity: "store", Err: err}
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(&file); err != nil {
		writer.Abort()
		return &StorageError{Op: "write", Entity: "store", Err: err}
	}

	if err := writer.Commit(); err != nil {
		return &StorageError{Op: "write", Entity: "store", Err: err}
	}

	return nil
}

// persist saves the store; on failure the in-memory change is undone so the
// store never claims data it could not write.
func (s *JSONStore) persist(undo func()) error {
	if err := s.save(); err != nil {
		if undo != nil {
			undo()
		}
		return err
	}
	return nil
}

// Close releases the file lock held by the store.
func (s *JSONStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lock.Unlock()
}

// --- PlaylistStore implementation ---

func (s *JSONStore) AddPlaylist(ctx context.Context, p *Playlist) (*Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p == nil {
		return nil, &StorageError{Op: "add", Entity: "playlist", Err: ErrInvalidInput}
	}
	if err := s.playlists.add(p); err != nil {
		return nil, err
	}
	p.Updated = time.Now()
	if err := s.persist(func() { delete(s.playlists.items, p.ID) }); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *JSONStore) GetPlaylist(ctx context.Context, id string, includeDeleted bool) (*Playlist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playlists.get(id, includeDeleted)
}

func (s *JSONStore) ListPlaylists(ctx context.Context, includeDeleted bool) ([]*Playlist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playlists.all(includeDeleted), nil
}

func (s *JSONStore) UpdatePlaylist(ctx context.Context, p *Playlist) (*Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p == nil {
		return nil, &StorageError{Op: "update", Entity: "playlist", Err: ErrInvalidInput}
	}
	p.Updated = time.Now()
	if _, err := s.playlists.update(p); err != nil {
		return nil, err
	}
	if err := s.persist(nil); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *JSONStore) DeletePlaylist(ctx context.Context, id string) (*Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.playlists.softDelete(id)
	if err != nil {
		return nil, err
	}
	if err := s.persist(nil); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *JSONStore) RestorePlaylist(ctx context.Context, id string) (*Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.playlists.restore(id)
	if err != nil {
		return nil, err
	}
	if err := s.persist(nil); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *JSONStore) RemovePlaylist(ctx context.Context, id string, includeDeleted bool) (*Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.playlists.remove(id, includeDeleted)
	if err != nil {
		return nil, err
	}
	if err := s.persist(func() { s.playlists.items[id] = p }); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *JSONStore) PlaylistExists(ctx context.Context, id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playlists.exists(id)
}

// --- StreamStore implementation ---

func (s *JSONStore) AddStream(ctx context.Context, st *Stream) (*Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st == nil {
		return nil, &StorageError{Op: "add", Entity: "stream", Err: ErrInvalidInput}
	}
	if st.Added.IsZero() {
		st.Added = time.Now()
	}
	if err := s.streams.add(st); err != nil {
		return nil, err
	}
	if err := s.persist(func() { delete(s.streams.items, st.ID) }); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *JSONStore) GetStream(ctx context.Context, id string, includeDeleted bool) (*Stream, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streams.get(id, includeDeleted)
}

func (s *JSONStore) ListStreams(ctx context.Context, includeDeleted bool) ([]*Stream, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streams.all(includeDeleted), nil
}

func (s *JSONStore) UpdateStream(ctx context.Context, st *Stream) (*Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st == nil {
		return nil, &StorageError{Op: "update", Entity: "stream", Err: ErrInvalidInput}
	}
	if _, err := s.streams.update(st); err != nil {
		return nil, err
	}
	if err := s.persist(nil); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *JSONStore) DeleteStream(ctx context.Context, id string) (*Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.streams.softDelete(id)
	if err != nil {
		return nil, err
	}
	if err := s.persist(nil); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *JSONStore) RestoreStream(ctx context.Context, id string) (*Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.streams.restore(id)
	if err != nil {
		return nil, err
	}
	if err := s.persist(nil); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *JSONStore) RemoveStream(ctx context.Context, id string, includeDeleted bool) (*Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.streams.remove(id, includeDeleted)
	if err != nil {
		return nil, err
	}
	if err := s.persist(func() { s.streams.items[id] = st }); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *JSONStore) StreamExists(ctx context.Context, id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streams.exists(id)
}

// --- SourceStore implementation ---

func (s *JSONStore) AddSource(ctx context.Context, src *Source) (*Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if src == nil {
		return nil, &StorageError{Op: "add", Entity: "source", Err: ErrInvalidInput}
	}
	if err := s.sources.add(src); err != nil {
		return nil, err
	}
	if err := s.persist(func() { delete(s.sources.items, src.ID) }); err != nil {
		return nil, err
	}
	return src, nil
}

func (s *JSONStore) GetSource(ctx context.Context, id string, includeDeleted bool) (*Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sources.get(id, includeDeleted)
}

func (s *JSONStore) ListSources(ctx context.Context, includeDeleted bool) ([]*Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sources.all(includeDeleted), nil
}

func (s *JSONStore) UpdateSource(ctx context.Context, src *Source) (*Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if src == nil {
		return nil, &StorageError{Op: "update", Entity: "source", Err: ErrInvalidInput}
	}
	if _, err := s.sources.update(src); err != nil {
		return nil, err
	}
	if err := s.persist(nil); err != nil {
		return nil, err
	}
	return src, nil
}

func (s *JSONStore) DeleteSource(ctx context.Context, id string) (*Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, err := s.sources.softDelete(id)
	if err != nil {
		return nil, err
	}
	if err := s.persist(nil); err != nil {
		return nil, err
	}
	return src, nil
}

func (s *JSONStore) RestoreSource(ctx context.Context, id string) (*Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, err := s.sources.restore(id)
	if err != nil {
		return nil, err
	}
	if err := s.persist(nil); err != nil {
		return nil, err
	}
	return src, nil
}

func (s *JSONStore) RemoveSource(ctx context.Context, id string, includeDeleted bool) (*Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, err := s.sources.remove(id, includeDeleted)
	if err != nil {
		return nil, err
	}
	if err := s.persist(func() { s.sources.items[id] = src }); err != nil {
		return nil, err
	}
	return src, nil
}

func (s *JSONStore) SourceExists(ctx context.Context, id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sources.exists(id)
}
