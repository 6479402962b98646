// Package playlist owns the playlist graph: the reference lists tying
// playlists to streams and sources, and the maintenance operations that
// keep those references consistent.
package playlist

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"playsync/storage"
)

// Service mutates a playlist's reference lists in lock-step with the
// referenced entities' own lifecycle, enforcing the duplicate policy.
//
// Playlists hold weak references: a listed ID may have no backing record.
// Read paths skip such dangling IDs with a warning and never fail on them;
// repair is the maintenance engine's job.
type Service struct {
	store storage.Store
	log   *zap.Logger
}

// NewService creates a Service on top of the given store.
func NewService(store storage.Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, log: log}
}

// AddStreams persists the candidate streams and links them to the playlist.
//
// When the playlist rejects duplicates, candidates whose URI or name matches
// a live stream already linked to the playlist (or an earlier candidate of
// the same call) are skipped with a warning. If the final playlist update
// fails, the streams persisted by this call are permanently removed again
// (compensating cleanup; there are no cross-record transactions) and the
// error is returned. The result holds exactly the streams that ended up
// durably linked.
func (s *Service) AddStreams(ctx context.Context, playlistID string, streams []*storage.Stream) ([]*storage.Stream, error) {
	p, err := s.store.GetPlaylist(ctx, playlistID, false)
	if err != nil {
		return nil, err
	}

	seenURIs := make(map[string]bool)
	seenNames := make(map[string]bool)
	if !p.AllowDuplicates {
		for _, linked := range s.resolveStreams(ctx, p, false) {
			seenURIs[linked.URI] = true
			seenNames[linked.Name] = true
		}
	}

	// The playlist is the store's live record; the id list is grown on a
	// copy so a failed call leaves the stored playlist untouched.
	origIDs := p.StreamIDs
	ids := append([]string(nil), p.StreamIDs...)

	var added []*storage.Stream
	for _, candidate := range streams {
		if candidate == nil {
			continue
		}
		if !p.AllowDuplicates && (seenURIs[candidate.URI] || seenNames[candidate.Name]) {
			s.log.Warn("skipping duplicate stream",
				zap.String("playlist", p.ID),
				zap.String("name", candidate.Name),
				zap.String("uri", candidate.URI))
			continue
		}

		if _, err := s.store.AddStream(ctx, candidate); err != nil {
			s.rollbackStreams(ctx, added)
			return nil, fmt.Errorf("add stream %q: %w", candidate.Name, err)
		}
		added = append(added, candidate)
		ids = append(ids, candidate.ID)
		seenURIs[candidate.URI] = true
		seenNames[candidate.Name] = true
	}

	if len(added) == 0 {
		return nil, nil
	}

	p.StreamIDs = ids
	if _, err := s.store.UpdatePlaylist(ctx, p); err != nil {
		p.StreamIDs = origIDs
		s.rollbackStreams(ctx, added)
		return nil, fmt.Errorf("update playlist %s: %w", p.ID, err)
	}

	return added, nil
}

// rollbackStreams permanently removes streams persisted earlier in a failed
// AddStreams call. Best effort: a record that cannot be removed is logged
// and left for the purge engine.
func (s *Service) rollbackStreams(ctx context.Context, added []*storage.Stream) {
	for _, st := range added {
		if _, err := s.store.RemoveStream(ctx, st.ID, true); err != nil {
			s.log.Warn("rollback failed for stream",
				zap.String("id", st.ID),
				zap.Error(err))
		}
	}
}

// DeleteStreams soft-deletes (or, with permanent set, erases) each listed
// stream and unlinks it from the playlist. IDs whose removal fails are
// skipped with a warning and stay linked. The playlist is persisted once.
func (s *Service) DeleteStreams(ctx context.Context, playlistID string, ids []string, includeDeleted, permanent bool) ([]*storage.Stream, error) {
	p, err := s.store.GetPlaylist(ctx, playlistID, false)
	if err != nil {
		return nil, err
	}

	removedIDs := make(map[string]bool, len(ids))
	var removed []*storage.Stream
	for _, id := range ids {
		var st *storage.Stream
		var err error
		if permanent {
			st, err = s.store.RemoveStream(ctx, id, includeDeleted)
		} else {
			st, err = s.store.DeleteStream(ctx, id)
		}
		if err != nil {
			s.log.Warn("skipping stream that could not be deleted",
				zap.String("playlist", p.ID),
				zap.String("id", id),
				zap.Error(err))
			continue
		}
		removed = append(removed, st)
		removedIDs[id] = true
	}

	if len(removed) == 0 {
		return nil, nil
	}

	p.StreamIDs = dropIDs(p.StreamIDs, removedIDs)
	if _, err := s.store.UpdatePlaylist(ctx, p); err != nil {
		return removed, fmt.Errorf("update playlist %s: %w", p.ID, err)
	}
	return removed, nil
}

// RestoreStreams clears the deleted timestamp on each listed stream and
// re-links it to the playlist. This is the explicit re-link operation: a
// bare store-level restore never touches playlists. Re-linking honours the
// duplicate policy; a restored stream rejected by it stays restored but
// unlinked.
func (s *Service) RestoreStreams(ctx context.Context, playlistID string, ids []string) ([]*storage.Stream, error) {
	p, err := s.store.GetPlaylist(ctx, playlistID, false)
	if err != nil {
		return nil, err
	}

	linked := make(map[string]bool, len(p.StreamIDs))
	for _, id := range p.StreamIDs {
		linked[id] = true
	}
	seenURIs := make(map[string]bool)
	seenNames := make(map[string]bool)
	if !p.AllowDuplicates {
		for _, st := range s.resolveStreams(ctx, p, false) {
			seenURIs[st.URI] = true
			seenNames[st.Name] = true
		}
	}

	var restored []*storage.Stream
	changed := false
	for _, id := range ids {
		st, err := s.store.RestoreStream(ctx, id)
		if err != nil {
			s.log.Warn("skipping stream that could not be restored",
				zap.String("playlist", p.ID),
				zap.String("id", id),
				zap.Error(err))
			continue
		}
		restored = append(restored, st)

		if linked[id] {
			continue
		}
		if !p.AllowDuplicates && (seenURIs[st.URI] || seenNames[st.Name]) {
			s.log.Warn("restored stream not re-linked: duplicate of linked stream",
				zap.String("playlist", p.ID),
				zap.String("id", id))
			continue
		}
		p.StreamIDs = append(p.StreamIDs, id)
		linked[id] = true
		seenURIs[st.URI] = true
		seenNames[st.Name] = true
		changed = true
	}

	if changed {
		if _, err := s.store.UpdatePlaylist(ctx, p); err != nil {
			return restored, fmt.Errorf("update playlist %s: %w", p.ID, err)
		}
	}
	return restored, nil
}

// AddSources persists the candidate sources and links them to the playlist,
// mirroring AddStreams including duplicate policy and compensating cleanup.
func (s *Service) AddSources(ctx context.Context, playlistID string, sources []*storage.Source) ([]*storage.Source, error) {
	p, err := s.store.GetPlaylist(ctx, playlistID, false)
	if err != nil {
		return nil, err
	}

	seenURIs := make(map[string]bool)
	seenNames := make(map[string]bool)
	if !p.AllowDuplicates {
		for _, linked := range s.resolveSources(ctx, p, false) {
			seenURIs[linked.URI] = true
			seenNames[linked.Name] = true
		}
	}

	origIDs := p.SourceIDs
	ids := append([]string(nil), p.SourceIDs...)

	var added []*storage.Source
	for _, candidate := range sources {
		if candidate == nil {
			continue
		}
		if !p.AllowDuplicates && (seenURIs[candidate.URI] || seenNames[candidate.Name]) {
			s.log.Warn("skipping duplicate source",
				zap.String("playlist", p.ID),
				zap.String("name", candidate.Name),
				zap.String("uri", candidate.URI))
			continue
		}

		if _, err := s.store.AddSource(ctx, candidate); err != nil {
			s.rollbackSources(ctx, added)
			return nil, fmt.Errorf("add source %q: %w", candidate.Name, err)
		}
		added = append(added, candidate)
		ids = append(ids, candidate.ID)
		seenURIs[candidate.URI] = true
		seenNames[candidate.Name] = true
	}

	if len(added) == 0 {
		return nil, nil
	}

	p.SourceIDs = ids
	if _, err := s.store.UpdatePlaylist(ctx, p); err != nil {
		p.SourceIDs = origIDs
		s.rollbackSources(ctx, added)
		return nil, fmt.Errorf("update playlist %s: %w", p.ID, err)
	}

	return added, nil
}

func (s *Service) rollbackSources(ctx context.Context, added []*storage.Source) {
	for _, src := range added {
		if _, err := s.store.RemoveSource(ctx, src.ID, true); err != nil {
			s.log.Warn("rollback failed for source",
				zap.String("id", src.ID),
				zap.Error(err))
		}
	}
}

// DeleteSources mirrors DeleteStreams on the source side.
func (s *Service) DeleteSources(ctx context.Context, playlistID string, ids []string, includeDeleted, permanent bool) ([]*storage.Source, error) {
	p, err := s.store.GetPlaylist(ctx, playlistID, false)
	if err != nil {
		return nil, err
	}

	removedIDs := make(map[string]bool, len(ids))
	var removed []*storage.Source
	for _, id := range ids {
		var src *storage.Source
		var err error
		if permanent {
			src, err = s.store.RemoveSource(ctx, id, includeDeleted)
		} else {
			src, err = s.store.DeleteSource(ctx, id)
		}
		if err != nil {
			s.log.Warn("skipping source that could not be deleted",
				zap.String("playlist", p.ID),
				zap.String("id", id),
				zap.Error(err))
			continue
		}
		removed = append(removed, src)
		removedIDs[id] = true
	}

	if len(removed) == 0 {
		return nil, nil
	}

	p.SourceIDs = dropIDs(p.SourceIDs, removedIDs)
	if _, err := s.store.UpdatePlaylist(ctx, p); err != nil {
		return removed, fmt.Errorf("update playlist %s: %w", p.ID, err)
	}
	return removed, nil
}

// RestoreSources mirrors RestoreStreams on the source side.
func (s *Service) RestoreSources(ctx context.Context, playlistID string, ids []string) ([]*storage.Source, error) {
	p, err := s.store.GetPlaylist(ctx, playlistID, false)
	if err != nil {
		return nil, err
	}

	linked := make(map[string]bool, len(p.SourceIDs))
	for _, id := range p.SourceIDs {
		linked[id] = true
	}

	var restored []*storage.Source
	changed := false
	for _, id := range ids {
		src, err := s.store.RestoreSource(ctx, id)
		if err != nil {
			s.log.Warn("skipping source that could not be restored",
				zap.String("playlist", p.ID),
				zap.String("id", id),
				zap.Error(err))
			continue
		}
		restored = append(restored, src)
		if !linked[id] {
			p.SourceIDs = append(p.SourceIDs, id)
			linked[id] = true
			changed = true
		}
	}

	if changed {
		if _, err := s.store.UpdatePlaylist(ctx, p); err != nil {
			return restored, fmt.Errorf("update playlist %s: %w", p.ID, err)
		}
	}
	return restored, nil
}

// StreamsByPlaylist resolves the playlist's stream references into live
// records, in playlist order. Dangling IDs are skipped with a warning.
func (s *Service) StreamsByPlaylist(ctx context.Context, playlistID string) ([]*storage.Stream, error) {
	p, err := s.store.GetPlaylist(ctx, playlistID, false)
	if err != nil {
		return nil, err
	}
	return s.resolveStreams(ctx, p, true), nil
}

// SourcesByPlaylist resolves the playlist's source references into live
// records, in playlist order, optionally restricted to fetch-enabled ones.
func (s *Service) SourcesByPlaylist(ctx context.Context, playlistID string, fetchEnabledOnly bool) ([]*storage.Source, error) {
	p, err := s.store.GetPlaylist(ctx, playlistID, false)
	if err != nil {
		return nil, err
	}
	sources := s.resolveSources(ctx, p, true)
	if !fetchEnabledOnly {
		return sources, nil
	}
	enabled := sources[:0]
	for _, src := range sources {
		if src.EnableFetch {
			enabled = append(enabled, src)
		}
	}
	return enabled, nil
}

// MoveStream repositions a single stream ID within the playlist's ordered
// list. Out-of-range indices are rejected without mutating; moving an entry
// onto itself is a no-op.
func (s *Service) MoveStream(ctx context.Context, playlistID string, fromIndex, toIndex int) error {
	p, err := s.store.GetPlaylist(ctx, playlistID, false)
	if err != nil {
		return err
	}

	n := len(p.StreamIDs)
	if fromIndex < 0 || fromIndex >= n || toIndex < 0 || toIndex >= n {
		return fmt.Errorf("%w: move %d -> %d with %d streams", storage.ErrInvalidInput, fromIndex, toIndex, n)
	}
	if fromIndex == toIndex {
		return nil
	}

	id := p.StreamIDs[fromIndex]
	rest := append(p.StreamIDs[:fromIndex:fromIndex], p.StreamIDs[fromIndex+1:]...)
	ids := make([]string, 0, n)
	ids = append(ids, rest[:toIndex]...)
	ids = append(ids, id)
	ids = append(ids, rest[toIndex:]...)
	p.StreamIDs = ids

	_, err = s.store.UpdatePlaylist(ctx, p)
	return err
}

// resolveStreams maps the playlist's stream IDs onto live records. Dangling
// references are tolerated: logged when warn is set, never an error.
func (s *Service) resolveStreams(ctx context.Context, p *storage.Playlist, warn bool) []*storage.Stream {
	streams := make([]*storage.Stream, 0, len(p.StreamIDs))
	for _, id := range p.StreamIDs {
		st, err := s.store.GetStream(ctx, id, false)
		if err != nil {
			if warn {
				s.log.Warn("skipping dangling stream reference",
					zap.String("playlist", p.ID),
					zap.String("id", id))
			}
			continue
		}
		streams = append(streams, st)
	}
	return streams
}

func (s *Service) resolveSources(ctx context.Context, p *storage.Playlist, warn bool) []*storage.Source {
	sources := make([]*storage.Source, 0, len(p.SourceIDs))
	for _, id := range p.SourceIDs {
		src, err := s.store.GetSource(ctx, id, false)
		if err != nil {
			if warn {
				s.log.Warn("skipping dangling source reference",
					zap.String("playlist", p.ID),
					zap.String("id", id))
			}
			continue
		}
		sources = append(sources, src)
	}
	return sources
}

// dropIDs returns ids without the members of drop, preserving order.
func dropIDs(ids []string, drop map[string]bool) []string {
	kept := make([]string, 0, len(ids))
	for _, id := range ids {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	return kept
}
