// Package sync reconciles the decks on disk with the card database. Cards
// are matched by content hash: unseen hashes are inserted with a fresh
// state, hashes missing from the decks are marked orphaned, and orphans
// that reappear are restored. Nothing is deleted implicitly.
package sync

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conorfennell/drillhash/internal/domain"
	"github.com/conorfennell/drillhash/internal/gitsource"
	"github.com/conorfennell/drillhash/internal/parser"
	"github.com/conorfennell/drillhash/internal/scheduler"
	"github.com/conorfennell/drillhash/internal/storage"
)

// Counts summarizes one reconciliation pass.
type Counts struct {
	Parsed   int
	Added    int
	Restored int
	Orphaned int
}

// Result carries everything one sync pass produces: the loaded deck texts,
// the parsed cards, the parse diagnostics, and the reconciliation counters.
type Result struct {
	Dir    string
	Decks  map[string]string
	Cards  []domain.Card
	Issues []parser.Issue
	Counts Counts
}

// Run resolves the deck source to a local directory, parses every deck
// under it and reconciles the cards with the database.
func Run(ctx context.Context, db *storage.DB, source, cacheDir string, params *scheduler.Params, now time.Time) (*Result, error) {
	dir, err := gitsource.Resolve(ctx, source, cacheDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve deck source: %w", err)
	}

	decks, err := LoadDecks(dir)
	if err != nil {
		return nil, err
	}
	cards, issues := parser.ParseDecks(decks)

	kind := "local"
	if gitsource.IsGitSpec(source) {
		kind = "git"
	}
	sourceID, err := db.UpsertSource(source, kind, now)
	if err != nil {
		return nil, err
	}

	counts, err := Reconcile(db, sourceID, cards, params, now)
	if err != nil {
		return nil, err
	}

	slog.Info("sync complete",
		"source", source,
		"decks", len(decks),
		"cards", counts.Parsed,
		"added", counts.Added,
		"restored", counts.Restored,
		"orphaned", counts.Orphaned,
		"issues", len(issues),
	)
	return &Result{Dir: dir, Decks: decks, Cards: cards, Issues: issues, Counts: counts}, nil
}

// LoadDecks reads every markdown file under dir into a deck-name to text
// mapping. The deck name is the file's base name with the extension
// stripped; files sharing a base name merge into one deck, separated by a
// blank line. Dot-directories such as .git are skipped.
func LoadDecks(dir string) (map[string]string, error) {
	decks := make(map[string]string)
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		name := strings.TrimSuffix(d.Name(), filepath.Ext(d.Name()))
		if existing, ok := decks[name]; ok {
			decks[name] = existing + "\n\n" + string(data)
		} else {
			decks[name] = string(data)
		}
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("failed to scan deck directory %s: %w", dir, walkErr)
	}
	return decks, nil
}

// Reconcile brings the database in line with the parsed cards. Unseen cards
// are inserted with the fresh state params prescribes, stored cards missing
// from the parse are marked orphaned, and orphans that reappeared have the
// flag cleared. Review progress is never touched.
func Reconcile(db *storage.DB, sourceID int64, cards []domain.Card, params *scheduler.Params, now time.Time) (Counts, error) {
	known, err := db.KnownHashes()
	if err != nil {
		return Counts{}, fmt.Errorf("failed to load known cards: %w", err)
	}

	counts := Counts{Parsed: len(cards)}
	fresh := params.NewState(now)
	seen := make(map[string]bool, len(cards))
	for _, card := range cards {
		seen[card.ID] = true
		orphaned, ok := known[card.ID]
		if !ok {
			inserted, err := db.UpsertCard(card, fresh, sourceID)
			if err != nil {
				return counts, err
			}
			if inserted {
				counts.Added++
			}
			continue
		}
		if orphaned {
			if err := db.ClearOrphaned(card.ID); err != nil {
				return counts, err
			}
			counts.Restored++
		}
	}

	for hash, orphaned := range known {
		if seen[hash] || orphaned {
			continue
		}
		if err := db.MarkOrphaned(hash, now); err != nil {
			return counts, err
		}
		counts.Orphaned++
	}
	return counts, nil
}
