// Command drillhash drills markdown flashcards in the browser and tracks
// review progress in a local SQLite database.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/conorfennell/drillhash/internal/collection"
	"github.com/conorfennell/drillhash/internal/config"
	"github.com/conorfennell/drillhash/internal/domain"
	"github.com/conorfennell/drillhash/internal/engine"
	"github.com/conorfennell/drillhash/internal/gitsource"
	"github.com/conorfennell/drillhash/internal/parser"
	"github.com/conorfennell/drillhash/internal/storage"
	decksync "github.com/conorfennell/drillhash/internal/sync"
	"github.com/conorfennell/drillhash/internal/web"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return 2
	}
	command := args[0]
	switch command {
	case "help", "-h", "--help":
		usage()
		return 0
	case "drill", "check", "stats", "orphans", "export", "import":
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", command)
		usage()
		return 2
	}

	flags := config.Flags(command)
	var output string
	if command == "export" {
		flags.StringVarP(&output, "output", "o", "", "write the snapshot to this file instead of stdout")
	}
	if err := flags.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	setupLogging(cfg.LogLevel)

	switch command {
	case "drill":
		return drill(cfg)
	case "check":
		return check(cfg)
	case "stats":
		return stats(cfg)
	case "orphans":
		return orphans(cfg, flags.Args())
	case "export":
		return exportSnapshot(cfg, output)
	case "import":
		return importSnapshot(cfg, flags.Args())
	}
	return 2
}

func usage() {
	fmt.Fprintln(os.Stderr, `drillhash drills markdown flashcards in the browser.

Usage:
  drillhash <command> [flags]

Commands:
  drill     sync decks, then serve a drill session until it completes
  check     parse decks and report issues; exits 1 when any exist
  stats     show collection and review statistics
  orphans   list cards no longer in any deck, or delete them (list|delete)
  export    write a JSON snapshot of every card's memory state
  import    apply a snapshot file to the database
  help      show this message

Run "drillhash <command> --help" for the command's flags.`)
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// cacheDir picks where git deck sources are checked out. An explicit
// --cache-dir wins; otherwise checkouts live under the user cache.
func cacheDir(cfg *config.Config) string {
	if cfg.CacheDir != "" {
		return cfg.CacheDir
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return ".drillhash-cache"
	}
	return filepath.Join(base, "drillhash", "repos")
}

// drill syncs the decks, builds the session queue and serves the drill UI
// until the session completes, the browser asks to finish, or a signal
// arrives. The exit code is 0 only when every queued card was reviewed.
func drill(cfg *config.Config) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(cfg.DB)
	if err != nil {
		slog.Error("failed to open database", "path", cfg.DB, "error", err)
		return 1
	}
	defer db.Close()

	now := time.Now()
	res, err := decksync.Run(ctx, db, cfg.Source, cacheDir(cfg), &cfg.Scheduler, now)
	if err != nil {
		slog.Error("failed to sync decks", "source", cfg.Source, "error", err)
		return 1
	}
	for _, issue := range res.Issues {
		slog.Warn("deck issue", "issue", issue.String())
	}

	eng := engine.New(&cfg.Scheduler)
	eng.Load(res.Decks)
	states, err := db.States(false)
	if err != nil {
		slog.Error("failed to load card states", "error", err)
		return 1
	}
	for id, state := range states {
		eng.SetState(id, state)
	}

	queued := eng.StartSession(engine.StartOptions{
		Today:        now,
		Shuffle:      cfg.Shuffle,
		ShuffleSeed:  uint64(now.UnixNano()),
		CardLimit:    config.SessionLimit(cfg.CardLimit),
		NewCardLimit: config.SessionLimit(cfg.NewCardLimit),
		Decks:        cfg.Decks,
		BurySiblings: cfg.BurySiblings,
	})
	if queued == 0 {
		fmt.Println("No cards due today.")
		return 0
	}

	srv, err := web.NewServer(eng, db, web.Options{AnswerControls: cfg.AnswerControls})
	if err != nil {
		slog.Error("failed to build server", "error", err)
		return 1
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	httpSrv := &http.Server{Addr: addr, Handler: srv}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpSrv.ListenAndServe()
	}()
	slog.Info("drill session ready", "url", "http://"+addr, "cards", queued)

	select {
	case err := <-serveErr:
		slog.Error("server failed", "error", err)
		return 1
	case <-ctx.Done():
	case <-srv.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shut down server", "error", err)
	}

	if !srv.Completed() {
		fmt.Fprintln(os.Stderr, "Session interrupted before completion")
		return 1
	}
	return 0
}

// check parses the decks without touching the database, so it can gate a
// deck repository in CI.
func check(cfg *config.Config) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dir, err := gitsource.Resolve(ctx, cfg.Source, cacheDir(cfg))
	if err != nil {
		slog.Error("failed to resolve deck source", "source", cfg.Source, "error", err)
		return 1
	}
	decks, err := decksync.LoadDecks(dir)
	if err != nil {
		slog.Error("failed to load decks", "dir", dir, "error", err)
		return 1
	}

	cards, issues := parser.ParseDecks(decks)
	for _, issue := range issues {
		fmt.Println(issue.String())
	}
	if len(issues) > 0 {
		fmt.Printf("%d cards, %d issues.\n", len(cards), len(issues))
		return 1
	}
	fmt.Printf("%d cards, no issues.\n", len(cards))
	return 0
}

func stats(cfg *config.Config) int {
	db, err := storage.Open(cfg.DB)
	if err != nil {
		slog.Error("failed to open database", "path", cfg.DB, "error", err)
		return 1
	}
	defer db.Close()

	now := time.Now()
	stages, err := db.StageCounts()
	if err != nil {
		slog.Error("failed to count stages", "error", err)
		return 1
	}
	due, err := db.DueCount(now)
	if err != nil {
		slog.Error("failed to count due cards", "error", err)
		return 1
	}
	orphaned, err := db.OrphanCount()
	if err != nil {
		slog.Error("failed to count orphans", "error", err)
		return 1
	}
	total, err := db.CountReviews()
	if err != nil {
		slog.Error("failed to count reviews", "error", err)
		return 1
	}
	today, err := db.CountReviewsSince(domain.DateOf(now))
	if err != nil {
		slog.Error("failed to count today's reviews", "error", err)
		return 1
	}

	live := 0
	for _, n := range stages {
		live += n
	}
	fmt.Printf("Cards:      %d\n", live)
	fmt.Printf("  new:      %d\n", stages[domain.StageNew])
	fmt.Printf("  learning: %d\n", stages[domain.StageLearning])
	fmt.Printf("  review:   %d\n", stages[domain.StageReview])
	fmt.Printf("  relapsed: %d\n", stages[domain.StageRelapsed])
	fmt.Printf("Due today:  %d\n", due)
	fmt.Printf("Orphans:    %d\n", orphaned)
	fmt.Printf("Reviews:    %d total, %d today\n", total, today)
	return 0
}

func orphans(cfg *config.Config, args []string) int {
	sub := "list"
	if len(args) > 0 {
		sub = args[0]
	}
	if sub != "list" && sub != "delete" {
		fmt.Fprintf(os.Stderr, "unknown orphans subcommand %q (want list or delete)\n", sub)
		return 2
	}

	db, err := storage.Open(cfg.DB)
	if err != nil {
		slog.Error("failed to open database", "path", cfg.DB, "error", err)
		return 1
	}
	defer db.Close()

	if sub == "delete" {
		n, err := db.DeleteOrphans()
		if err != nil {
			slog.Error("failed to delete orphans", "error", err)
			return 1
		}
		fmt.Printf("Deleted %d orphaned cards.\n", n)
		return 0
	}

	list, err := db.Orphans()
	if err != nil {
		slog.Error("failed to list orphans", "error", err)
		return 1
	}
	if len(list) == 0 {
		fmt.Println("No orphaned cards.")
		return 0
	}
	for _, o := range list {
		fmt.Printf("%s  %s  %-20s  %s\n", o.Hash[:12], o.OrphanedAt.Format(domain.DateFormat), o.Deck, firstLine(o.Front))
	}
	return 0
}

// firstLine condenses a card front to something listable on one line.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if runes := []rune(s); len(runes) > 60 {
		s = string(runes[:57]) + "..."
	}
	return s
}

func exportSnapshot(cfg *config.Config, output string) int {
	db, err := storage.Open(cfg.DB)
	if err != nil {
		slog.Error("failed to open database", "path", cfg.DB, "error", err)
		return 1
	}
	defer db.Close()

	// Orphans are included: the snapshot is a full backup of review progress.
	states, err := db.States(true)
	if err != nil {
		slog.Error("failed to load card states", "error", err)
		return 1
	}
	store := collection.NewStore()
	for id, state := range states {
		store.Set(id, state)
	}
	data, err := store.Export()
	if err != nil {
		slog.Error("failed to encode snapshot", "error", err)
		return 1
	}

	if output == "" {
		fmt.Println(string(data))
		return 0
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		slog.Error("failed to write snapshot", "path", output, "error", err)
		return 1
	}
	slog.Info("snapshot written", "path", output, "cards", store.Len())
	return 0
}

func importSnapshot(cfg *config.Config, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: drillhash import <snapshot.json>")
		return 2
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		slog.Error("failed to read snapshot", "path", args[0], "error", err)
		return 1
	}

	// Import validates the whole snapshot before the database is touched.
	store := collection.NewStore()
	if err := store.Import(data); err != nil {
		slog.Error("invalid snapshot", "path", args[0], "error", err)
		return 1
	}

	db, err := storage.Open(cfg.DB)
	if err != nil {
		slog.Error("failed to open database", "path", cfg.DB, "error", err)
		return 1
	}
	defer db.Close()

	known, err := db.KnownHashes()
	if err != nil {
		slog.Error("failed to load known cards", "error", err)
		return 1
	}
	applied := 0
	for _, id := range store.IDs() {
		if _, ok := known[id]; !ok {
			continue
		}
		state, _ := store.Get(id)
		if err := db.SaveState(id, state); err != nil {
			slog.Error("failed to apply snapshot state", "card", id, "error", err)
			return 1
		}
		applied++
	}
	fmt.Printf("Imported %d card states (%d unmatched).\n", applied, store.Len()-applied)
	return 0
}
