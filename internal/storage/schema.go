package storage

const schema = `
-- The 'cards' table pairs immutable card content with the mutable scheduling
-- state, keyed by the content hash. A card that disappears from its deck is
-- marked orphaned, never deleted implicitly.
CREATE TABLE IF NOT EXISTS cards (
    hash        TEXT PRIMARY KEY,
    deck        TEXT NOT NULL,
    kind        TEXT NOT NULL,     -- 'qa' or 'cloze'
    front       TEXT NOT NULL,
    back        TEXT NOT NULL,
    family      TEXT NOT NULL DEFAULT '',
    stage       TEXT NOT NULL,     -- 'new', 'learning', 'review', 'relapsed'
    due         TEXT NOT NULL,     -- '2006-01-02'
    interval    INTEGER NOT NULL DEFAULT 0,
    strength    REAL NOT NULL,
    lapses      INTEGER NOT NULL DEFAULT 0,
    reviews     INTEGER NOT NULL DEFAULT 0,
    orphaned_at TEXT,              -- RFC 3339, NULL while the card is live
    source_id   INTEGER,

    FOREIGN KEY(source_id) REFERENCES sources(id)
);

-- The 'reviews' table records one row per grading event, newest last.
-- Undoing a grade removes the newest row for that card.
CREATE TABLE IF NOT EXISTS reviews (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    card_hash   TEXT NOT NULL,
    grade       TEXT NOT NULL,     -- 'forgot', 'hard', 'good', 'easy'
    reviewed_at TEXT NOT NULL,     -- RFC 3339

    FOREIGN KEY(card_hash) REFERENCES cards(hash)
);

-- The 'sources' table tracks the origin of the decks, either a local
-- directory or a git repository checkout.
CREATE TABLE IF NOT EXISTS sources (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    path        TEXT NOT NULL UNIQUE,
    kind        TEXT NOT NULL,     -- 'local' or 'git'
    last_synced TEXT
);

CREATE INDEX IF NOT EXISTS idx_reviews_card ON reviews(card_hash);
CREATE INDEX IF NOT EXISTS idx_cards_due ON cards(due);
`
