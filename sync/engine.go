// Package sync implements the incremental source synchronization engine:
// it walks each source's external feed newest-first, applies the windowing
// policy, and merges the new items into the owning playlist exactly once.
package sync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"playsync/feed"
	"playsync/playlist"
	"playsync/storage"
)

// Options controls one fetch call.
type Options struct {
	// BatchSize bounds the feed items examined per source and sets the
	// dedup window capacity. Must be at least 1.
	BatchSize int
	// TakeAfter stops the walk at the first item published before it.
	// Ignored when TakeNewOnly is set.
	TakeAfter time.Time
	// TakeBefore skips (without stopping at) items published after it.
	// Ignored when TakeNewOnly is set.
	TakeBefore time.Time
	// TakeNewOnly stops the walk at the first item already present in the
	// source's dedup window, making repeated fetches idempotent.
	TakeNewOnly bool
}

// Result summarises one fetch call.
type Result struct {
	// SourcesChecked is the number of fetch-enabled sources whose feed
	// was listed successfully. Disjoint from SourcesSkipped: every
	// processed source lands in exactly one of the two counters.
	SourcesChecked int
	// SourcesSkipped counts sources that yielded nothing (no provider
	// for the kind, or a failed or empty feed).
	SourcesSkipped int
	// StreamsLinked is the number of new streams durably linked to the
	// playlist, after duplicate suppression.
	StreamsLinked int
}

// Engine performs per-source incremental fetches. Sources are processed
// one at a time: each source touches disjoint source/stream records, and
// the shared playlist list is only mutated through one AddStreams call per
// source, so processing stays serialized around the playlist.
type Engine struct {
	store     storage.Store
	graph     *playlist.Service
	providers feed.Registry
	log       *zap.Logger
}

// NewEngine creates a sync engine.
func NewEngine(store storage.Store, graph *playlist.Service, providers feed.Registry, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		store:     store,
		graph:     graph,
		providers: providers,
		log:       log,
	}
}

// Fetch synchronizes every fetch-enabled source of the playlist. A missing
// playlist aborts the call; a single misbehaving source only loses its own
// items. Sources committed before a mid-call failure stay committed, and
// re-running the fetch is safe because of each source's dedup window.
// Returns the per-call result including the count of streams actually
// linked after duplicate suppression.
func (e *Engine) Fetch(ctx context.Context, playlistID string, opts Options) (*Result, error) {
	if opts.BatchSize < 1 {
		return nil, fmt.Errorf("%w: batch size %d", storage.ErrInvalidInput, opts.BatchSize)
	}

	sources, err := e.graph.SourcesByPlaylist(ctx, playlistID, true)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	for _, src := range sources {
		provider, err := e.providers.For(src.Kind)
		if err != nil {
			e.log.Warn("skipping source with no provider",
				zap.String("source", src.ID),
				zap.Error(err))
			result.SourcesSkipped++
			continue
		}

		linked, err := e.fetchSource(ctx, playlistID, src, provider, opts)
		if err != nil {
			return result, err
		}
		if linked < 0 {
			result.SourcesSkipped++
			continue
		}
		result.SourcesChecked++
		result.StreamsLinked += linked
	}

	return result, nil
}

// fetchSource pulls one source's feed and links its new items. Returns the
// linked count, or -1 when the source was skipped (failed or empty feed).
// Only persistence failures surface as errors.
func (e *Engine) fetchSource(ctx context.Context, playlistID string, src *storage.Source, provider feed.Provider, opts Options) (int, error) {
	now := time.Now()
	src.LastFetched = &now

	items, err := provider.ListItems(ctx, src.URI)
	if err != nil {
		// Feed trouble is not fatal to the sync; the attempt is still
		// recorded so operators can see the source was tried.
		e.log.Warn("feed listing failed",
			zap.String("source", src.ID),
			zap.String("uri", src.URI),
			zap.Error(err))
		if _, uerr := e.store.UpdateSource(ctx, src); uerr != nil {
			return 0, uerr
		}
		return -1, nil
	}
	if len(items) == 0 {
		if _, uerr := e.store.UpdateSource(ctx, src); uerr != nil {
			return 0, uerr
		}
		return -1, nil
	}

	if opts.TakeNewOnly && opts.TakeAfter.IsZero() && src.HasFetchedID(items[0].ExternalID) {
		// Fast path: the feed head is already known, nothing new since the
		// last successful check.
		if _, uerr := e.store.UpdateSource(ctx, src); uerr != nil {
			return 0, uerr
		}
		return 0, nil
	}

	accepted := selectItems(src, items, opts)

	// Accepted items are collected newest-first; new streams must append in
	// chronological order.
	streams := make([]*storage.Stream, 0, len(accepted))
	for i := len(accepted) - 1; i >= 0; i-- {
		item := accepted[i]
		st := storage.NewStream(feed.Sanitize(item.Title), item.WatchURI)
		st.StreamSourceID = src.ID
		st.BackgroundContent = src.BackgroundContent
		streams = append(streams, st)
	}

	for _, item := range accepted {
		src.PushFetchedID(item.ExternalID, opts.BatchSize)
	}
	if len(accepted) > 0 {
		success := time.Now()
		src.LastSuccessfulFetched = &success
	}

	if _, err := e.store.UpdateSource(ctx, src); err != nil {
		return 0, fmt.Errorf("update source %s: %w", src.ID, err)
	}

	if len(streams) == 0 {
		return 0, nil
	}

	linked, err := e.graph.AddStreams(ctx, playlistID, streams)
	if err != nil {
		return 0, fmt.Errorf("link streams from source %s: %w", src.ID, err)
	}

	e.log.Info("source synchronized",
		zap.String("source", src.ID),
		zap.Int("new", len(streams)),
		zap.Int("linked", len(linked)))

	return len(linked), nil
}

// selectItems walks the newest-first feed and picks the items the windowing
// policy accepts, preserving newest-first order.
//
// In take-new-only mode the walk stops at the first externally-known item.
// In window mode it stops at the first item older than TakeAfter (the feed
// is chronologically descending, nothing later can qualify) and skips,
// without stopping, items newer than TakeBefore. Both modes examine at most
// BatchSize items, bounding work per fetch regardless of how many match.
func selectItems(src *storage.Source, items []feed.Item, opts Options) []feed.Item {
	var accepted []feed.Item

	examined := 0
	for _, item := range items {
		examined++
		if examined > opts.BatchSize {
			break
		}

		if opts.TakeNewOnly {
			if src.HasFetchedID(item.ExternalID) {
				break
			}
			accepted = append(accepted, item)
			continue
		}

		if !opts.TakeAfter.IsZero() && item.Published.Before(opts.TakeAfter) {
			break
		}
		if !opts.TakeBefore.IsZero() && item.Published.After(opts.TakeBefore) {
			continue
		}
		accepted = append(accepted, item)
	}

	return accepted
}
