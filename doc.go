// Package playsync tracks named playlists of media streams gathered from
// external feed sources, and keeps them synchronized over time without
// re-adding content already seen.
//
// Overview
//
// A playlist references streams (queued media links) and sources (external
// feeds such as YouTube channels). Syncing walks each source's feed
// newest-first, applies a windowing policy, and appends only the genuinely
// new items in chronological order. Every entity supports soft-deletion
// with restore, and a maintenance engine repairs the dangling references
// this loosely-coupled graph tolerates by design.
//
// Quick Start
//
// Open a store and sync a playlist:
//
//	log, _ := zap.NewProduction()
//	store, err := storage.NewJSONStore("playsync.json", log)
//	if err != nil {
//		log.Fatal("open store", zap.Error(err))
//	}
//	defer store.Close()
//
//	graph := playlist.NewService(store, log)
//	providers, _ := feed.NewRegistry(feed.Options{
//		APIKey: os.Getenv("PLAYSYNC_YOUTUBE_API_KEY"),
//	})
//	engine := sync.NewEngine(store, graph, providers, log)
//
//	result, err := engine.Fetch(ctx, playlistID, sync.Options{
//		BatchSize:   10,
//		TakeNewOnly: true,
//	})
//
// Configuration
//
// playsync resolves settings once at startup from multiple sources:
//
//   1. Environment variables (highest priority, PLAYSYNC_ prefix)
//   2. Config file (playsync.json or ~/.config/playsync/playsync.json)
//   3. Default values (lowest priority)
//
// The resulting config.Config value is passed into constructors; the core
// keeps no ambient state.
//
// Error Handling
//
// All operations return errors that implement standard Go error handling:
//
//	if errors.Is(err, playsync.ErrNotFound) {
//		fmt.Println("no such playlist")
//	}
//
//	var storErr *playsync.StorageError
//	if errors.As(err, &storErr) {
//		fmt.Printf("%s %s failed: %v\n", storErr.Op, storErr.Entity, storErr.Err)
//	}
//
// Deployment Constraint
//
// The store is designed for one active process at a time. The backing file
// is guarded by an advisory lock, so a second process opening the same
// store fails with ErrLockTimeout rather than corrupting it; there is no
// finer-grained concurrent-writer support.
//
// Advanced Usage
//
// For more control, use the sub-packages directly:
//
//   - storage: the JSON-file entity store
//   - playlist: graph service and maintenance engine
//   - sync: the incremental source-synchronization engine
//   - feed: feed providers and the provider registry
//   - config: configuration management
//   - retry: exponential backoff retry logic
package playsync
