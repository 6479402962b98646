package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"playsync/config"
	"playsync/feed"
	"playsync/playlist"
	"playsync/storage"
	"playsync/sync"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "playlist":
		cmdPlaylist(args)
	case "stream":
		cmdStream(args)
	case "source":
		cmdSource(args)
	case "sync":
		cmdSync(args)
	case "prune":
		cmdPrune(args)
	case "purge":
		cmdPurge(args)
	case "reset":
		cmdReset(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `playsync - playlist tracker with incremental feed sync

Usage:
  playsync playlist <create|list|delete|restore|remove> ...   Manage playlists
  playsync stream <add|list|delete|restore|move> ...          Manage streams in a playlist
  playsync source <add|list|delete|restore> ...               Manage feed sources of a playlist
  playsync sync [flags] <playlist-id>                         Fetch new items from every enabled source
  playsync prune [flags] <playlist-id>                        Drop watched streams from a playlist
  playsync purge [flags]                                      Remove unlinked entities and scrub dangling references
  playsync reset [flags] <playlist-id>                        Empty a playlist and reset its sources
  playsync help                                               Show this help message

Examples:
  playsync playlist create "morning mix"
  playsync source add -playlist <id> "some channel" https://www.youtube.com/@somechannel
  playsync sync <id>                                          # Incremental fetch, new items only
  playsync sync -new-only=false -after 2026-01-01T00:00:00Z <id>
  playsync prune <id>                                         # Prompts before deleting
  playsync purge -yes                                         # Skip the confirmation prompt

For help on specific command: playsync <command> <subcommand> -h
`)
}

// app bundles the wired components every command needs.
type app struct {
	cfg   *config.Config
	log   *zap.Logger
	store *storage.JSONStore
	graph *playlist.Service
}

// setup loads config and opens the store. Commands must defer a.close().
func setup() *app {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	log := newLogger()

	store, err := storage.NewJSONStore(cfg.StorePath, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store %s: %v\n", cfg.StorePath, err)
		os.Exit(1)
	}

	return &app{
		cfg:   cfg,
		log:   log,
		store: store,
		graph: playlist.NewService(store, log),
	}
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error closing store: %v\n", err)
	}
	_ = a.log.Sync()
}

// newLogger builds a console logger on stderr. Commands print their own
// results on stdout; the log only carries warnings (skipped records,
// unreachable feeds).
func newLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.OutputPaths = []string{"stderr"}
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	log, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building logger: %v\n", err)
		os.Exit(1)
	}
	return log
}

// confirm prompts on stderr and reads a yes/no answer from stdin.
// Anything but an explicit yes declines.
func confirm(prompt string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// --- playlist ---------------------------------------------------------------

func cmdPlaylist(args []string) {
	if len(args) < 1 {
		fail("missing playlist subcommand (create, list, delete, restore, remove)")
	}
	sub, rest := args[0], args[1:]

	switch sub {
	case "create":
		playlistCreate(rest)
	case "list":
		playlistList(rest)
	case "delete":
		playlistDelete(rest, false)
	case "remove":
		playlistDelete(rest, true)
	case "restore":
		playlistRestore(rest)
	default:
		fail("unknown playlist subcommand %q", sub)
	}
}

func playlistCreate(args []string) {
	fs := flag.NewFlagSet("playlist create", flag.ExitOnError)
	replay := fs.Bool("replay-watched", false, "Keep replaying watched streams (exempts the playlist from pruning)")
	allowDup := fs.Bool("allow-duplicates", false, "Allow streams with the same URI or name")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: playsync playlist create [flags] <name>\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	if fs.NArg() == 0 {
		fail("missing playlist name")
	}

	a := setup()
	defer a.close()

	p := storage.NewPlaylist(strings.Join(fs.Args(), " "))
	p.PlayWatchedStreams = *replay
	p.AllowDuplicates = *allowDup

	created, err := a.store.AddPlaylist(context.Background(), p)
	if err != nil {
		fail("creating playlist: %v", err)
	}
	fmt.Println(created.ID)
}

func playlistList(args []string) {
	fs := flag.NewFlagSet("playlist list", flag.ExitOnError)
	all := fs.Bool("all", false, "Include soft-deleted playlists")
	fs.Parse(args)

	a := setup()
	defer a.close()

	playlists, err := a.store.ListPlaylists(context.Background(), *all)
	if err != nil {
		fail("listing playlists: %v", err)
	}
	if len(playlists) == 0 {
		fmt.Println("No playlists.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTREAMS\tSOURCES\tSTATE")
	for _, p := range playlists {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
			p.ID, truncate(p.Name, 40), len(p.StreamIDs), len(p.SourceIDs), stateOf(p.Deleted))
	}
	w.Flush()
}

func playlistDelete(args []string, permanent bool) {
	name := "playlist delete"
	if permanent {
		name = "playlist remove"
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() == 0 {
		fail("missing playlist-id")
	}

	a := setup()
	defer a.close()

	ctx := context.Background()
	var err error
	if permanent {
		_, err = a.store.RemovePlaylist(ctx, fs.Arg(0), true)
	} else {
		_, err = a.store.DeletePlaylist(ctx, fs.Arg(0))
	}
	if err != nil {
		fail("%v", err)
	}
}

func playlistRestore(args []string) {
	fs := flag.NewFlagSet("playlist restore", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() == 0 {
		fail("missing playlist-id")
	}

	a := setup()
	defer a.close()

	if _, err := a.store.RestorePlaylist(context.Background(), fs.Arg(0)); err != nil {
		fail("%v", err)
	}
}

// --- stream -----------------------------------------------------------------

func cmdStream(args []string) {
	if len(args) < 1 {
		fail("missing stream subcommand (add, list, delete, restore, move)")
	}
	sub, rest := args[0], args[1:]

	switch sub {
	case "add":
		streamAdd(rest)
	case "list":
		streamList(rest)
	case "delete":
		streamDelete(rest)
	case "restore":
		streamRestore(rest)
	case "move":
		streamMove(rest)
	default:
		fail("unknown stream subcommand %q", sub)
	}
}

func streamAdd(args []string) {
	fs := flag.NewFlagSet("stream add", flag.ExitOnError)
	playlistID := fs.String("playlist", "", "Playlist to add the stream to (required)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: playsync stream add -playlist <id> <name> <uri>\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	if *playlistID == "" {
		fail("missing -playlist")
	}
	if fs.NArg() < 2 {
		fail("need <name> and <uri>")
	}

	a := setup()
	defer a.close()

	stream := storage.NewStream(fs.Arg(0), fs.Arg(1))
	added, err := a.graph.AddStreams(context.Background(), *playlistID, []*storage.Stream{stream})
	if err != nil {
		fail("adding stream: %v", err)
	}
	if len(added) == 0 {
		fmt.Fprintln(os.Stderr, "Skipped: duplicate of an existing stream.")
		return
	}
	fmt.Println(added[0].ID)
}

func streamList(args []string) {
	fs := flag.NewFlagSet("stream list", flag.ExitOnError)
	playlistID := fs.String("playlist", "", "Playlist whose streams to list (required)")
	fs.Parse(args)

	if *playlistID == "" {
		fail("missing -playlist")
	}

	a := setup()
	defer a.close()

	streams, err := a.graph.StreamsByPlaylist(context.Background(), *playlistID)
	if err != nil {
		fail("listing streams: %v", err)
	}
	if len(streams) == 0 {
		fmt.Println("No streams.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tID\tNAME\tWATCHED\tURI")
	for i, s := range streams {
		watched := ""
		if s.IsWatched() {
			watched = s.Watched.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", i, s.ID, truncate(s.Name, 50), watched, truncate(s.URI, 60))
	}
	w.Flush()
}

func streamDelete(args []string) {
	fs := flag.NewFlagSet("stream delete", flag.ExitOnError)
	playlistID := fs.String("playlist", "", "Playlist the streams belong to (required)")
	permanent := fs.Bool("permanent", false, "Remove permanently instead of soft-deleting")
	fs.Parse(args)

	if *playlistID == "" {
		fail("missing -playlist")
	}
	if fs.NArg() == 0 {
		fail("need at least one stream-id")
	}

	a := setup()
	defer a.close()

	deleted, err := a.graph.DeleteStreams(context.Background(), *playlistID, fs.Args(), false, *permanent)
	if err != nil {
		fail("deleting streams: %v", err)
	}
	fmt.Fprintf(os.Stderr, "Deleted %d of %d streams.\n", len(deleted), fs.NArg())
}

func streamRestore(args []string) {
	fs := flag.NewFlagSet("stream restore", flag.ExitOnError)
	playlistID := fs.String("playlist", "", "Playlist to re-link the streams into (required)")
	fs.Parse(args)

	if *playlistID == "" {
		fail("missing -playlist")
	}
	if fs.NArg() == 0 {
		fail("need at least one stream-id")
	}

	a := setup()
	defer a.close()

	restored, err := a.graph.RestoreStreams(context.Background(), *playlistID, fs.Args())
	if err != nil {
		fail("restoring streams: %v", err)
	}
	fmt.Fprintf(os.Stderr, "Restored %d of %d streams.\n", len(restored), fs.NArg())
}

func streamMove(args []string) {
	fs := flag.NewFlagSet("stream move", flag.ExitOnError)
	playlistID := fs.String("playlist", "", "Playlist to reorder (required)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: playsync stream move -playlist <id> <from-index> <to-index>\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	if *playlistID == "" {
		fail("missing -playlist")
	}
	if fs.NArg() < 2 {
		fail("need <from-index> and <to-index>")
	}
	from, err := strconv.Atoi(fs.Arg(0))
	if err != nil {
		fail("invalid from-index %q", fs.Arg(0))
	}
	to, err := strconv.Atoi(fs.Arg(1))
	if err != nil {
		fail("invalid to-index %q", fs.Arg(1))
	}

	a := setup()
	defer a.close()

	if err := a.graph.MoveStream(context.Background(), *playlistID, from, to); err != nil {
		fail("moving stream: %v", err)
	}
}

// --- source -----------------------------------------------------------------

func cmdSource(args []string) {
	if len(args) < 1 {
		fail("missing source subcommand (add, list, delete, restore)")
	}
	sub, rest := args[0], args[1:]

	switch sub {
	case "add":
		sourceAdd(rest)
	case "list":
		sourceList(rest)
	case "delete":
		sourceDelete(rest)
	case "restore":
		sourceRestore(rest)
	default:
		fail("unknown source subcommand %q", sub)
	}
}

func sourceAdd(args []string) {
	fs := flag.NewFlagSet("source add", flag.ExitOnError)
	playlistID := fs.String("playlist", "", "Playlist to attach the source to (required)")
	noFetch := fs.Bool("no-fetch", false, "Register the source but leave it out of sync runs")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: playsync source add -playlist <id> <name> <uri>\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	if *playlistID == "" {
		fail("missing -playlist")
	}
	if fs.NArg() < 2 {
		fail("need <name> and <uri>")
	}

	a := setup()
	defer a.close()

	src := storage.NewSource(fs.Arg(0), fs.Arg(1))
	src.EnableFetch = !*noFetch

	added, err := a.graph.AddSources(context.Background(), *playlistID, []*storage.Source{src})
	if err != nil {
		fail("adding source: %v", err)
	}
	if len(added) == 0 {
		fmt.Fprintln(os.Stderr, "Skipped: duplicate of an existing source.")
		return
	}
	fmt.Printf("%s (%s)\n", added[0].ID, added[0].Kind)
}

func sourceList(args []string) {
	fs := flag.NewFlagSet("source list", flag.ExitOnError)
	playlistID := fs.String("playlist", "", "Playlist whose sources to list (required)")
	fs.Parse(args)

	if *playlistID == "" {
		fail("missing -playlist")
	}

	a := setup()
	defer a.close()

	sources, err := a.graph.SourcesByPlaylist(context.Background(), *playlistID, false)
	if err != nil {
		fail("listing sources: %v", err)
	}
	if len(sources) == 0 {
		fmt.Println("No sources.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tKIND\tFETCH\tLAST SUCCESS")
	for _, s := range sources {
		last := ""
		if s.LastSuccessfulFetched != nil {
			last = s.LastSuccessfulFetched.Format(time.RFC3339)
		}
		fetch := "on"
		if !s.EnableFetch {
			fetch = "off"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.ID, truncate(s.Name, 40), s.Kind, fetch, last)
	}
	w.Flush()
}

func sourceDelete(args []string) {
	fs := flag.NewFlagSet("source delete", flag.ExitOnError)
	playlistID := fs.String("playlist", "", "Playlist the sources belong to (required)")
	permanent := fs.Bool("permanent", false, "Remove permanently instead of soft-deleting")
	fs.Parse(args)

	if *playlistID == "" {
		fail("missing -playlist")
	}
	if fs.NArg() == 0 {
		fail("need at least one source-id")
	}

	a := setup()
	defer a.close()

	deleted, err := a.graph.DeleteSources(context.Background(), *playlistID, fs.Args(), false, *permanent)
	if err != nil {
		fail("deleting sources: %v", err)
	}
	fmt.Fprintf(os.Stderr, "Deleted %d of %d sources.\n", len(deleted), fs.NArg())
}

func sourceRestore(args []string) {
	fs := flag.NewFlagSet("source restore", flag.ExitOnError)
	playlistID := fs.String("playlist", "", "Playlist to re-link the sources into (required)")
	fs.Parse(args)

	if *playlistID == "" {
		fail("missing -playlist")
	}
	if fs.NArg() == 0 {
		fail("need at least one source-id")
	}

	a := setup()
	defer a.close()

	restored, err := a.graph.RestoreSources(context.Background(), *playlistID, fs.Args())
	if err != nil {
		fail("restoring sources: %v", err)
	}
	fmt.Fprintf(os.Stderr, "Restored %d of %d sources.\n", len(restored), fs.NArg())
}

// --- sync -------------------------------------------------------------------

func cmdSync(args []string) {
	// Config is resolved first so its values can serve as flag defaults.
	a := setup()
	defer a.close()

	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	batch := fs.Int("batch", a.cfg.BatchSize, "Feed items examined per source")
	after := fs.String("after", "", "Only items published after this time (RFC3339)")
	before := fs.String("before", "", "Only items published before this time (RFC3339)")
	newOnly := fs.Bool("new-only", a.cfg.TakeNewOnly, "Stop at the first already-seen item per source")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: playsync sync [flags] <playlist-id>\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	if fs.NArg() == 0 {
		fail("missing playlist-id")
	}

	opts := sync.Options{TakeNewOnly: *newOnly, BatchSize: *batch}
	if *after != "" {
		t, err := time.Parse(time.RFC3339, *after)
		if err != nil {
			fail("parsing -after: %v (use RFC3339 format)", err)
		}
		opts.TakeAfter = t
	}
	if *before != "" {
		t, err := time.Parse(time.RFC3339, *before)
		if err != nil {
			fail("parsing -before: %v (use RFC3339 format)", err)
		}
		opts.TakeBefore = t
	}

	retryCfg := a.cfg.RetryConfig()
	providers, err := feed.NewRegistry(feed.Options{
		APIKey:      a.cfg.YouTubeAPIKey,
		HTTPTimeout: a.cfg.HTTPTimeout,
		Retry:       &retryCfg,
	})
	if err != nil {
		fail("building providers: %v", err)
	}
	engine := sync.NewEngine(a.store, a.graph, providers, a.log)

	fmt.Fprintf(os.Stderr, "Syncing playlist %s...\n", fs.Arg(0))
	result, err := engine.Fetch(context.Background(), fs.Arg(0), opts)
	if err != nil {
		fail("sync failed: %v", err)
	}

	fmt.Printf("Checked %d sources (%d skipped), linked %d new streams.\n",
		result.SourcesChecked, result.SourcesSkipped, result.StreamsLinked)
}

// --- maintenance ------------------------------------------------------------

func cmdPrune(args []string) {
	fs := flag.NewFlagSet("prune", flag.ExitOnError)
	permanent := fs.Bool("permanent", false, "Remove the watched streams permanently instead of soft-deleting")
	yes := fs.Bool("yes", false, "Skip the confirmation prompt")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: playsync prune [flags] <playlist-id>\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	if fs.NArg() == 0 {
		fail("missing playlist-id")
	}

	a := setup()
	defer a.close()

	ctx := context.Background()
	maint := playlist.NewMaintenance(a.store, a.log)

	report, err := maint.PreparePrune(ctx, fs.Arg(0))
	if err != nil {
		fail("preparing prune: %v", err)
	}
	if report.Empty() {
		fmt.Println("Nothing to prune.")
		return
	}

	w := tabwriter.NewWriter(os.Stderr, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tWATCHED")
	for _, s := range report.Streams {
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, truncate(s.Name, 50), s.Watched.Format("2006-01-02"))
	}
	w.Flush()

	if !*yes && !confirm(fmt.Sprintf("Prune %d watched streams?", len(report.Streams))) {
		fmt.Fprintln(os.Stderr, "Aborted.")
		return
	}

	if err := maint.DoPrune(ctx, report, *permanent); err != nil {
		fail("prune failed: %v", err)
	}
	fmt.Printf("Pruned %d streams.\n", len(report.Streams))
}

func cmdPurge(args []string) {
	fs := flag.NewFlagSet("purge", flag.ExitOnError)
	yes := fs.Bool("yes", false, "Skip the confirmation prompt")
	fs.Parse(args)

	a := setup()
	defer a.close()

	ctx := context.Background()
	maint := playlist.NewMaintenance(a.store, a.log)

	report, err := maint.PreparePurge(ctx)
	if err != nil {
		fail("preparing purge: %v", err)
	}
	repairs, err := maint.PreparePlaylistPurge(ctx)
	if err != nil {
		fail("preparing reference repair: %v", err)
	}

	if report.Empty() && len(repairs) == 0 {
		fmt.Println("Nothing to purge.")
		return
	}

	w := tabwriter.NewWriter(os.Stderr, 0, 0, 2, ' ', 0)
	for _, s := range report.Streams {
		fmt.Fprintf(w, "stream\t%s\t%s\n", s.ID, truncate(s.Name, 50))
	}
	for _, s := range report.Sources {
		fmt.Fprintf(w, "source\t%s\t%s\n", s.ID, truncate(s.Name, 50))
	}
	for _, r := range repairs {
		fmt.Fprintf(w, "playlist\t%s\t%d dangling references\n",
			r.PlaylistID, len(r.DanglingStreamIDs)+len(r.DanglingSourceIDs))
	}
	w.Flush()

	if !*yes && !confirm("Apply the changes above?") {
		fmt.Fprintln(os.Stderr, "Aborted.")
		return
	}

	if err := maint.DoPurge(ctx, report); err != nil {
		fail("purge failed: %v", err)
	}
	if err := maint.DoPurgePlaylists(ctx, repairs); err != nil {
		fail("reference repair failed: %v", err)
	}
	fmt.Printf("Removed %d streams, %d sources; repaired %d playlists.\n",
		len(report.Streams), len(report.Sources), len(repairs))
}

func cmdReset(args []string) {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	yes := fs.Bool("yes", false, "Skip the confirmation prompt")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: playsync reset [flags] <playlist-id>\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	if fs.NArg() == 0 {
		fail("missing playlist-id")
	}

	a := setup()
	defer a.close()

	if !*yes && !confirm("Permanently remove every stream in the playlist and reset its sources?") {
		fmt.Fprintln(os.Stderr, "Aborted.")
		return
	}

	maint := playlist.NewMaintenance(a.store, a.log)
	if err := maint.Reset(context.Background(), fs.Arg(0)); err != nil {
		fail("reset failed: %v", err)
	}
	fmt.Println("Playlist reset.")
}

// --- helpers ----------------------------------------------------------------

func stateOf(deleted *time.Time) string {
	if deleted != nil {
		return "deleted"
	}
	return "active"
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
