package playlist

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"playsync/storage"
)

// Maintenance computes and applies the repair operations that restore
// referential consistency across the three collections: prune (drop watched
// streams from a non-replaying playlist), purge (remove entities nothing
// references, and scrub dangling IDs out of playlists), and reset (wipe a
// playlist's fetch history).
//
// Every destructive operation is split into a pure Prepare step returning
// the exact change-set and a Do step applying it. Callers show the prepared
// change-set to the user and call Do only on confirmation; a Prepare result
// fed straight into its Do applies precisely what was reported.
type Maintenance struct {
	store storage.Store
	log   *zap.Logger
}

// NewMaintenance creates a Maintenance engine on top of the given store.
func NewMaintenance(store storage.Store, log *zap.Logger) *Maintenance {
	if log == nil {
		log = zap.NewNop()
	}
	return &Maintenance{store: store, log: log}
}

// PruneReport is the change-set computed by PreparePrune.
type PruneReport struct {
	PlaylistID string
	// Streams are the watched streams referenced by the playlist.
	Streams []*storage.Stream
}

// Empty reports whether applying the report would change nothing.
func (r *PruneReport) Empty() bool { return r == nil || len(r.Streams) == 0 }

// PurgeReport is the change-set computed by PreparePurge: entities no
// playlist references at all.
type PurgeReport struct {
	Streams []*storage.Stream
	Sources []*storage.Source
}

// Empty reports whether applying the report would change nothing.
func (r *PurgeReport) Empty() bool {
	return r == nil || (len(r.Streams) == 0 && len(r.Sources) == 0)
}

// PlaylistRepair lists the dangling references of one playlist: IDs with no
// backing record at all, not even a soft-deleted one.
type PlaylistRepair struct {
	PlaylistID        string
	DanglingStreamIDs []string
	DanglingSourceIDs []string
}

// PreparePrune computes the watched streams that would be dropped from the
// playlist. A playlist that replays watched streams always yields an empty
// report. The computation is pure; nothing is mutated.
func (m *Maintenance) PreparePrune(ctx context.Context, playlistID string) (*PruneReport, error) {
	p, err := m.store.GetPlaylist(ctx, playlistID, false)
	if err != nil {
		return nil, err
	}

	report := &PruneReport{PlaylistID: p.ID}
	if p.PlayWatchedStreams {
		return report, nil
	}

	for _, id := range p.StreamIDs {
		st, err := m.store.GetStream(ctx, id, false)
		if err != nil {
			// Dangling reference; prune ignores it, playlist purge repairs it.
			continue
		}
		if st.IsWatched() {
			report.Streams = append(report.Streams, st)
		}
	}
	return report, nil
}

// DoPrune applies a prepared prune report: each listed stream is
// soft-deleted (or permanently removed) and unlinked from the playlist.
// The playlist is persisted before the call returns.
func (m *Maintenance) DoPrune(ctx context.Context, report *PruneReport, permanent bool) error {
	if report.Empty() {
		return nil
	}
	p, err := m.store.GetPlaylist(ctx, report.PlaylistID, false)
	if err != nil {
		return err
	}

	pruned := make(map[string]bool, len(report.Streams))
	for _, st := range report.Streams {
		var err error
		if permanent {
			_, err = m.store.RemoveStream(ctx, st.ID, true)
		} else {
			_, err = m.store.DeleteStream(ctx, st.ID)
		}
		if err != nil {
			m.log.Warn("prune: could not delete stream",
				zap.String("playlist", p.ID),
				zap.String("id", st.ID),
				zap.Error(err))
			continue
		}
		pruned[st.ID] = true
	}

	if len(pruned) == 0 {
		return nil
	}
	p.StreamIDs = dropIDs(p.StreamIDs, pruned)
	if _, err := m.store.UpdatePlaylist(ctx, p); err != nil {
		return fmt.Errorf("prune: update playlist %s: %w", p.ID, err)
	}
	return nil
}

// PreparePurge computes, across all streams and sources including
// soft-deleted ones, the subset no playlist references. Soft-deleted
// playlists still count as referencing: their links come back on restore.
// The computation is pure.
func (m *Maintenance) PreparePurge(ctx context.Context) (*PurgeReport, error) {
	referencedStreams, referencedSources, err := m.referencedIDs(ctx)
	if err != nil {
		return nil, err
	}

	report := &PurgeReport{}

	streams, err := m.store.ListStreams(ctx, true)
	if err != nil {
		return nil, err
	}
	for _, st := range streams {
		if !referencedStreams[st.ID] {
			report.Streams = append(report.Streams, st)
		}
	}

	sources, err := m.store.ListSources(ctx, true)
	if err != nil {
		return nil, err
	}
	for _, src := range sources {
		if !referencedSources[src.ID] {
			report.Sources = append(report.Sources, src)
		}
	}

	return report, nil
}

// DoPurge permanently removes the unlinked entities of a prepared purge
// report. It never touches a playlist; scrubbing dangling playlist
// references is DoPurgePlaylists' independent job.
func (m *Maintenance) DoPurge(ctx context.Context, report *PurgeReport) error {
	if report.Empty() {
		return nil
	}
	for _, st := range report.Streams {
		if _, err := m.store.RemoveStream(ctx, st.ID, true); err != nil {
			m.log.Warn("purge: could not remove stream",
				zap.String("id", st.ID),
				zap.Error(err))
		}
	}
	for _, src := range report.Sources {
		if _, err := m.store.RemoveSource(ctx, src.ID, true); err != nil {
			m.log.Warn("purge: could not remove source",
				zap.String("id", src.ID),
				zap.Error(err))
		}
	}
	return nil
}

// PreparePlaylistPurge computes, per playlist, the referenced IDs that no
// longer resolve to any record. Valid references, including references to
// soft-deleted records, are untouched. The computation is pure.
func (m *Maintenance) PreparePlaylistPurge(ctx context.Context) ([]PlaylistRepair, error) {
	playlists, err := m.store.ListPlaylists(ctx, true)
	if err != nil {
		return nil, err
	}

	var repairs []PlaylistRepair
	for _, p := range playlists {
		repair := PlaylistRepair{PlaylistID: p.ID}
		for _, id := range p.StreamIDs {
			if _, err := m.store.GetStream(ctx, id, true); err != nil {
				repair.DanglingStreamIDs = append(repair.DanglingStreamIDs, id)
			}
		}
		for _, id := range p.SourceIDs {
			if _, err := m.store.GetSource(ctx, id, true); err != nil {
				repair.DanglingSourceIDs = append(repair.DanglingSourceIDs, id)
			}
		}
		if len(repair.DanglingStreamIDs) > 0 || len(repair.DanglingSourceIDs) > 0 {
			repairs = append(repairs, repair)
		}
	}
	return repairs, nil
}

// DoPurgePlaylists rewrites each repaired playlist's reference lists,
// dropping exactly the dangling IDs and preserving the relative order of
// everything else. It never deletes an entity.
func (m *Maintenance) DoPurgePlaylists(ctx context.Context, repairs []PlaylistRepair) error {
	for _, repair := range repairs {
		p, err := m.store.GetPlaylist(ctx, repair.PlaylistID, true)
		if err != nil {
			m.log.Warn("playlist purge: playlist vanished",
				zap.String("id", repair.PlaylistID),
				zap.Error(err))
			continue
		}

		dropStreams := idSet(repair.DanglingStreamIDs)
		dropSources := idSet(repair.DanglingSourceIDs)
		p.StreamIDs = dropIDs(p.StreamIDs, dropStreams)
		p.SourceIDs = dropIDs(p.SourceIDs, dropSources)

		if _, err := m.store.UpdatePlaylist(ctx, p); err != nil {
			return fmt.Errorf("playlist purge: update playlist %s: %w", p.ID, err)
		}
	}
	return nil
}

// Reset wipes a playlist's fetch history: every referenced stream is
// permanently removed and every referenced source loses its dedup window
// and fetch timestamps, so the next sync starts from scratch.
func (m *Maintenance) Reset(ctx context.Context, playlistID string) error {
	p, err := m.store.GetPlaylist(ctx, playlistID, false)
	if err != nil {
		return err
	}

	for _, id := range p.StreamIDs {
		if _, err := m.store.RemoveStream(ctx, id, true); err != nil {
			m.log.Warn("reset: could not remove stream",
				zap.String("playlist", p.ID),
				zap.String("id", id),
				zap.Error(err))
		}
	}
	p.StreamIDs = nil

	for _, id := range p.SourceIDs {
		src, err := m.store.GetSource(ctx, id, true)
		if err != nil {
			m.log.Warn("reset: skipping dangling source reference",
				zap.String("playlist", p.ID),
				zap.String("id", id))
			continue
		}
		src.ClearFetchState()
		if _, err := m.store.UpdateSource(ctx, src); err != nil {
			return fmt.Errorf("reset: update source %s: %w", src.ID, err)
		}
	}

	if _, err := m.store.UpdatePlaylist(ctx, p); err != nil {
		return fmt.Errorf("reset: update playlist %s: %w", p.ID, err)
	}
	return nil
}

// referencedIDs gathers every stream and source ID referenced by any
// playlist, soft-deleted playlists included.
func (m *Maintenance) referencedIDs(ctx context.Context) (streams, sources map[string]bool, err error) {
	playlists, err := m.store.ListPlaylists(ctx, true)
	if err != nil {
		return nil, nil, err
	}
	streams = make(map[string]bool)
	sources = make(map[string]bool)
	for _, p := range playlists {
		for _, id := range p.StreamIDs {
			streams[id] = true
		}
		for _, id := range p.SourceIDs {
			sources[id] = true
		}
	}
	return streams, sources, nil
}

func idSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
