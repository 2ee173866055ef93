package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/conorfennell/drillhash/internal/domain"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn *sql.DB
}

// Open creates a new database connection and ensures the schema is up to date.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Execute the schema to create tables if they don't exist.
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// UpsertCard inserts a card with its initial scheduling state. A hash that is
// already stored is left untouched, so reviewed cards keep their progress
// across syncs. It reports whether a new row was inserted.
func (db *DB) UpsertCard(card domain.Card, state domain.MemoryState, sourceID int64) (bool, error) {
	res, err := db.conn.Exec(`
		INSERT INTO cards (hash, deck, kind, front, back, family, stage, due, interval, strength, lapses, reviews, source_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO NOTHING
	`,
		card.ID,
		card.Deck,
		card.Kind.String(),
		card.Front,
		card.Back,
		card.Family,
		state.Stage.String(),
		state.Due.Format(domain.DateFormat),
		state.Interval,
		state.Strength,
		state.Lapses,
		state.Reviews,
		sourceID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert card %s: %w", card.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected for card %s: %w", card.ID, err)
	}
	return n > 0, nil
}

// SaveState updates the scheduling state of a stored card.
func (db *DB) SaveState(hash string, state domain.MemoryState) error {
	_, err := db.conn.Exec(`
		UPDATE cards
		SET stage = ?, due = ?, interval = ?, strength = ?, lapses = ?, reviews = ?
		WHERE hash = ?
	`,
		state.Stage.String(),
		state.Due.Format(domain.DateFormat),
		state.Interval,
		state.Strength,
		state.Lapses,
		state.Reviews,
		hash,
	)
	if err != nil {
		return fmt.Errorf("failed to save state for card %s: %w", hash, err)
	}
	return nil
}

// GetState retrieves the scheduling state of a card by its hash. The second
// return value reports whether the card was found.
func (db *DB) GetState(hash string) (domain.MemoryState, bool, error) {
	var (
		stage    string
		due      string
		interval int
		strength float64
		lapses   int
		reviews  int
	)
	row := db.conn.QueryRow(`
		SELECT stage, due, interval, strength, lapses, reviews
		FROM cards WHERE hash = ?
	`, hash)

	err := row.Scan(&stage, &due, &interval, &strength, &lapses, &reviews)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.MemoryState{}, false, nil
		}
		return domain.MemoryState{}, false, fmt.Errorf("failed to get state for card %s: %w", hash, err)
	}
	state, err := parseState(stage, due, interval, strength, lapses, reviews)
	if err != nil {
		return domain.MemoryState{}, false, fmt.Errorf("failed to decode state for card %s: %w", hash, err)
	}
	return state, true, nil
}

// States returns the scheduling state of every stored card keyed by hash.
// Orphaned cards are skipped unless includeOrphaned is set.
func (db *DB) States(includeOrphaned bool) (map[string]domain.MemoryState, error) {
	query := `
		SELECT hash, stage, due, interval, strength, lapses, reviews
		FROM cards
	`
	if !includeOrphaned {
		query += ` WHERE orphaned_at IS NULL`
	}
	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query card states: %w", err)
	}
	defer rows.Close()

	states := make(map[string]domain.MemoryState)
	for rows.Next() {
		var (
			hash     string
			stage    string
			due      string
			interval int
			strength float64
			lapses   int
			reviews  int
		)
		if err := rows.Scan(&hash, &stage, &due, &interval, &strength, &lapses, &reviews); err != nil {
			return nil, fmt.Errorf("failed to scan card state row: %w", err)
		}
		state, err := parseState(stage, due, interval, strength, lapses, reviews)
		if err != nil {
			return nil, fmt.Errorf("failed to decode state for card %s: %w", hash, err)
		}
		states[hash] = state
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate card states: %w", err)
	}
	return states, nil
}

// KnownHashes returns every stored card hash mapped to its orphaned flag.
func (db *DB) KnownHashes() (map[string]bool, error) {
	rows, err := db.conn.Query(`
		SELECT hash, orphaned_at IS NOT NULL
		FROM cards
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query known hashes: %w", err)
	}
	defer rows.Close()

	known := make(map[string]bool)
	for rows.Next() {
		var (
			hash     string
			orphaned bool
		)
		if err := rows.Scan(&hash, &orphaned); err != nil {
			return nil, fmt.Errorf("failed to scan hash row: %w", err)
		}
		known[hash] = orphaned
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate known hashes: %w", err)
	}
	return known, nil
}

// MarkOrphaned flags a card as missing from its deck as of the given time.
func (db *DB) MarkOrphaned(hash string, at time.Time) error {
	_, err := db.conn.Exec(`
		UPDATE cards
		SET orphaned_at = ?
		WHERE hash = ? AND orphaned_at IS NULL
	`, at.UTC().Format(time.RFC3339), hash)
	if err != nil {
		return fmt.Errorf("failed to mark card %s orphaned: %w", hash, err)
	}
	return nil
}

// ClearOrphaned removes the orphaned flag from a card that reappeared.
func (db *DB) ClearOrphaned(hash string) error {
	_, err := db.conn.Exec(`
		UPDATE cards
		SET orphaned_at = NULL
		WHERE hash = ?
	`, hash)
	if err != nil {
		return fmt.Errorf("failed to clear orphaned flag for card %s: %w", hash, err)
	}
	return nil
}

// Orphan describes a card that no longer appears in any synced deck.
type Orphan struct {
	Hash       string
	Deck       string
	Front      string
	OrphanedAt time.Time
}

// Orphans lists all orphaned cards ordered by deck and front text.
func (db *DB) Orphans() ([]Orphan, error) {
	rows, err := db.conn.Query(`
		SELECT hash, deck, front, orphaned_at
		FROM cards
		WHERE orphaned_at IS NOT NULL
		ORDER BY deck, front
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query orphans: %w", err)
	}
	defer rows.Close()

	var orphans []Orphan
	for rows.Next() {
		var (
			o  Orphan
			at string
		)
		if err := rows.Scan(&o.Hash, &o.Deck, &o.Front, &at); err != nil {
			return nil, fmt.Errorf("failed to scan orphan row: %w", err)
		}
		o.OrphanedAt, err = time.Parse(time.RFC3339, at)
		if err != nil {
			return nil, fmt.Errorf("failed to parse orphaned_at for card %s: %w", o.Hash, err)
		}
		orphans = append(orphans, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orphans: %w", err)
	}
	return orphans, nil
}

// DeleteOrphans permanently removes all orphaned cards and their review
// history. It returns the number of cards deleted.
func (db *DB) DeleteOrphans() (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		DELETE FROM reviews
		WHERE card_hash IN (SELECT hash FROM cards WHERE orphaned_at IS NOT NULL)
	`); err != nil {
		return 0, fmt.Errorf("failed to delete orphan reviews: %w", err)
	}
	res, err := tx.Exec(`
		DELETE FROM cards
		WHERE orphaned_at IS NOT NULL
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete orphans: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected for orphan delete: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit orphan delete: %w", err)
	}
	return n, nil
}

// InsertReview appends a grading event to the review log.
func (db *DB) InsertReview(log domain.ReviewLog) error {
	_, err := db.conn.Exec(`
		INSERT INTO reviews (card_hash, grade, reviewed_at)
		VALUES (?, ?, ?)
	`, log.CardID, log.Grade.String(), log.ReviewedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert review for card %s: %w", log.CardID, err)
	}
	return nil
}

// ReviewsFor returns a card's grading events, oldest first.
func (db *DB) ReviewsFor(hash string) ([]domain.ReviewLog, error) {
	rows, err := db.conn.Query(`
		SELECT card_hash, grade, reviewed_at FROM reviews
		WHERE card_hash = ?
		ORDER BY id
	`, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviews for card %s: %w", hash, err)
	}
	defer rows.Close()

	var logs []domain.ReviewLog
	for rows.Next() {
		var log domain.ReviewLog
		var gradeToken, at string
		if err := rows.Scan(&log.CardID, &gradeToken, &at); err != nil {
			return nil, fmt.Errorf("failed to scan review row: %w", err)
		}
		if log.Grade, err = domain.ParseGrade(gradeToken); err != nil {
			return nil, fmt.Errorf("failed to read review for card %s: %w", hash, err)
		}
		if log.ReviewedAt, err = time.Parse(time.RFC3339, at); err != nil {
			return nil, fmt.Errorf("failed to read review timestamp for card %s: %w", hash, err)
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read review rows: %w", err)
	}
	return logs, nil
}

// DeleteLastReview removes the newest review row for a card. Undoing a grade
// calls this after restoring the card's prior state.
func (db *DB) DeleteLastReview(hash string) error {
	_, err := db.conn.Exec(`
		DELETE FROM reviews
		WHERE id = (SELECT id FROM reviews WHERE card_hash = ? ORDER BY id DESC LIMIT 1)
	`, hash)
	if err != nil {
		return fmt.Errorf("failed to delete last review for card %s: %w", hash, err)
	}
	return nil
}

// CountReviews returns the total number of recorded grading events.
func (db *DB) CountReviews() (int, error) {
	var n int
	row := db.conn.QueryRow(`SELECT COUNT(*) FROM reviews`)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count reviews: %w", err)
	}
	return n, nil
}

// CountReviewsSince returns the number of grading events at or after t.
func (db *DB) CountReviewsSince(t time.Time) (int, error) {
	var n int
	row := db.conn.QueryRow(`
		SELECT COUNT(*) FROM reviews WHERE reviewed_at >= ?
	`, t.UTC().Format(time.RFC3339))
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count reviews since %s: %w", t.Format(time.RFC3339), err)
	}
	return n, nil
}

// StageCounts returns the number of live cards in each stage.
func (db *DB) StageCounts() (map[domain.Stage]int, error) {
	rows, err := db.conn.Query(`
		SELECT stage, COUNT(*)
		FROM cards
		WHERE orphaned_at IS NULL
		GROUP BY stage
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stage counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.Stage]int)
	for rows.Next() {
		var (
			token string
			n     int
		)
		if err := rows.Scan(&token, &n); err != nil {
			return nil, fmt.Errorf("failed to scan stage count row: %w", err)
		}
		stage, err := domain.ParseStage(token)
		if err != nil {
			return nil, fmt.Errorf("failed to decode stage count: %w", err)
		}
		counts[stage] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stage counts: %w", err)
	}
	return counts, nil
}

// DueCount returns the number of live cards due on or before the given day.
// New cards are always counted as due.
func (db *DB) DueCount(today time.Time) (int, error) {
	var n int
	row := db.conn.QueryRow(`
		SELECT COUNT(*)
		FROM cards
		WHERE orphaned_at IS NULL AND (stage = ? OR due <= ?)
	`, domain.StageNew.String(), today.Format(domain.DateFormat))
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count due cards: %w", err)
	}
	return n, nil
}

// OrphanCount returns the number of orphaned cards.
func (db *DB) OrphanCount() (int, error) {
	var n int
	row := db.conn.QueryRow(`
		SELECT COUNT(*) FROM cards WHERE orphaned_at IS NOT NULL
	`)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count orphans: %w", err)
	}
	return n, nil
}

// Source represents a deck source, either a local path or a git checkout.
type Source struct {
	ID         int64
	Path       string
	Kind       string
	LastSynced time.Time
}

// UpsertSource records a deck source and its sync time, returning the row ID.
// A source that already exists has its kind and sync time refreshed.
func (db *DB) UpsertSource(path, kind string, at time.Time) (int64, error) {
	_, err := db.conn.Exec(`
		INSERT INTO sources (path, kind, last_synced)
		VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET kind = excluded.kind, last_synced = excluded.last_synced
	`, path, kind, at.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to upsert source %s: %w", path, err)
	}

	var id int64
	row := db.conn.QueryRow(`SELECT id FROM sources WHERE path = ?`, path)
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to get ID for source %s: %w", path, err)
	}
	return id, nil
}

// Sources retrieves all stored deck sources.
func (db *DB) Sources() ([]Source, error) {
	rows, err := db.conn.Query(`
		SELECT id, path, kind, last_synced
		FROM sources
		ORDER BY path
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var (
			s    Source
			sync sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.Path, &s.Kind, &sync); err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		if sync.Valid {
			s.LastSynced, err = time.Parse(time.RFC3339, sync.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse last_synced for source %s: %w", s.Path, err)
			}
		}
		sources = append(sources, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sources: %w", err)
	}
	return sources, nil
}

// parseState rebuilds a MemoryState from its stored column values.
func parseState(stageToken, dueToken string, interval int, strength float64, lapses, reviews int) (domain.MemoryState, error) {
	stage, err := domain.ParseStage(stageToken)
	if err != nil {
		return domain.MemoryState{}, err
	}
	due, err := time.Parse(domain.DateFormat, dueToken)
	if err != nil {
		return domain.MemoryState{}, err
	}
	return domain.MemoryState{
		Stage:    stage,
		Due:      due,
		Interval: interval,
		Strength: strength,
		Lapses:   lapses,
		Reviews:  reviews,
	}, nil
}
