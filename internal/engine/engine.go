// Package engine is the imperative facade over the pure core. One Engine
// owns a card list, a collection store, scheduler params and the current
// session, and exposes the small command surface the CLI and web layer call.
// It is not safe for concurrent use; embedders serialize access.
package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/conorfennell/drillhash/internal/collection"
	"github.com/conorfennell/drillhash/internal/domain"
	"github.com/conorfennell/drillhash/internal/parser"
	"github.com/conorfennell/drillhash/internal/scheduler"
	"github.com/conorfennell/drillhash/internal/session"
)

// StartOptions select and order the cards for one drill session.
type StartOptions struct {
	Today       time.Time
	Shuffle     bool
	ShuffleSeed uint64
	// CardLimit and NewCardLimit cap the session; nil means unlimited.
	CardLimit    *int
	NewCardLimit *int
	// Decks restricts the session to the named decks; empty means all.
	Decks        []string
	BurySiblings bool
}

// Engine drives drills over one loaded collection.
type Engine struct {
	params  *scheduler.Params
	store   *collection.Store
	cards   []domain.Card
	byID    map[string]domain.Card
	issues  []parser.Issue
	session session.Session
}

// New builds an empty engine. A nil params uses the default curve.
func New(params *scheduler.Params) *Engine {
	if params == nil {
		params = scheduler.DefaultParams()
	}
	return &Engine{
		params: params,
		store:  collection.NewStore(),
		byID:   make(map[string]domain.Card),
	}
}

// Load parses the decks and merges their cards into the collection. Unseen
// identities get a fresh New-stage state; existing states are untouched.
// Parse problems are recorded as Issues, never returned as errors. The
// return value is the number of cards parsed; 0 is a valid empty result.
func (e *Engine) Load(decks map[string]string) int {
	cards, issues := parser.ParseDecks(decks)
	e.cards = cards
	e.issues = issues
	e.byID = make(map[string]domain.Card, len(cards))
	ids := make([]string, len(cards))
	for i, c := range cards {
		e.byID[c.ID] = c
		ids[i] = c.ID
	}
	// The fresh state carries the zero date: a New card is eligible by
	// stage alone, so its due date is never consulted.
	e.store.Merge(ids, e.params.NewState(time.Time{}))
	return len(cards)
}

// Issues reports the parse diagnostics from the last Load.
func (e *Engine) Issues() []parser.Issue {
	return append([]parser.Issue(nil), e.issues...)
}

// Cards returns the loaded cards in parse order.
func (e *Engine) Cards() []domain.Card {
	return append([]domain.Card(nil), e.cards...)
}

// StartSession builds a new session queue and replaces any previous session.
// It returns the queue length; 0 means nothing is due.
func (e *Engine) StartSession(opts StartOptions) int {
	var filter map[string]bool
	if len(opts.Decks) > 0 {
		filter = make(map[string]bool, len(opts.Decks))
		for _, d := range opts.Decks {
			filter[d] = true
		}
	}

	cands := make([]session.Candidate, 0, len(e.cards))
	for _, c := range e.cards {
		if filter != nil && !filter[c.Deck] {
			continue
		}
		state, ok := e.store.Get(c.ID)
		if !ok {
			continue
		}
		cands = append(cands, session.Candidate{
			ID:     c.ID,
			Family: c.Family,
			Stage:  state.Stage,
			Due:    state.Due,
		})
	}

	sess, n := session.Start(cands, session.Options{
		Today:        opts.Today,
		Shuffle:      opts.Shuffle,
		ShuffleSeed:  opts.ShuffleSeed,
		CardLimit:    opts.CardLimit,
		NewCardLimit: opts.NewCardLimit,
		BurySiblings: opts.BurySiblings,
	})
	e.session = sess
	return n
}

// Reveal turns the current card face up.
func (e *Engine) Reveal() error {
	next, err := e.session.Reveal()
	if err != nil {
		return err
	}
	e.session = next
	return nil
}

func (e *Engine) IsRevealed() bool {
	return e.session.Revealed()
}

// Grade applies the grade token to the revealed current card: the session
// advances and the card's memory state moves through the scheduler. An
// unknown token or an out-of-sequence call fails with nothing changed.
func (e *Engine) Grade(token string, now time.Time) error {
	grade, err := domain.ParseGrade(token)
	if err != nil {
		return err
	}
	id, err := e.session.Current()
	if err != nil {
		return err
	}
	prior, ok := e.store.Get(id)
	if !ok {
		return fmt.Errorf("card %s has no memory state", id)
	}
	next, err := e.session.Grade(grade, prior)
	if err != nil {
		return err
	}
	e.session = next
	e.store.Set(id, e.params.NextState(prior, grade, now))
	return nil
}

// Undo takes back the most recent grade: the card returns to the front of
// the queue face down and its memory state is restored exactly.
func (e *Engine) Undo() error {
	next, rev, err := e.session.Undo()
	if err != nil {
		return err
	}
	e.session = next
	e.store.Set(rev.CardID, rev.Prior)
	return nil
}

// EndSession finishes the session early; graded cards keep their new states.
func (e *Engine) EndSession() {
	e.session = e.session.End()
}

func (e *Engine) Phase() session.Phase {
	return e.session.Phase()
}

// CurrentID returns the identity of the card at the front of the queue.
func (e *Engine) CurrentID() (string, error) {
	return e.session.Current()
}

func (e *Engine) CurrentFront() (string, error) {
	card, err := e.currentCard()
	if err != nil {
		return "", err
	}
	return card.Front, nil
}

func (e *Engine) CurrentBack() (string, error) {
	card, err := e.currentCard()
	if err != nil {
		return "", err
	}
	return card.Back, nil
}

func (e *Engine) CurrentDeck() (string, error) {
	card, err := e.currentCard()
	if err != nil {
		return "", err
	}
	return card.Deck, nil
}

func (e *Engine) currentCard() (domain.Card, error) {
	id, err := e.session.Current()
	if err != nil {
		return domain.Card{}, err
	}
	card, ok := e.byID[id]
	if !ok {
		return domain.Card{}, fmt.Errorf("unknown card %s", id)
	}
	return card, nil
}

func (e *Engine) Progress() float64 {
	return e.session.Progress()
}

func (e *Engine) RemainingCards() int {
	return e.session.Remaining()
}

func (e *Engine) ReviewedCards() int {
	return e.session.Reviewed()
}

func (e *Engine) TotalCards() int {
	return e.session.Total()
}

// CollectionSize counts every memory state held, including states whose
// cards are no longer in the loaded decks.
func (e *Engine) CollectionSize() int {
	return e.store.Len()
}

// NewCardsCount counts loaded cards still at stage New.
func (e *Engine) NewCardsCount() int {
	n := 0
	for _, c := range e.cards {
		if state, ok := e.store.Get(c.ID); ok && state.Stage == domain.StageNew {
			n++
		}
	}
	return n
}

// DeckNames returns the distinct deck names of the loaded cards, sorted.
func (e *Engine) DeckNames() []string {
	seen := make(map[string]bool)
	names := make([]string, 0, 4)
	for _, c := range e.cards {
		if !seen[c.Deck] {
			seen[c.Deck] = true
			names = append(names, c.Deck)
		}
	}
	sort.Strings(names)
	return names
}

// StateOf looks up the memory state for a card identity.
func (e *Engine) StateOf(id string) (domain.MemoryState, bool) {
	return e.store.Get(id)
}

// SetState replaces one card's memory state. Callers restoring persisted
// progress seed states with it after Load.
func (e *Engine) SetState(id string, state domain.MemoryState) {
	e.store.Set(id, state)
}

// ExportState serializes the collection snapshot.
func (e *Engine) ExportState() ([]byte, error) {
	return e.store.Export()
}

// ImportState replaces the collection from a snapshot. Malformed input
// fails with collection.ErrFormat and changes nothing.
func (e *Engine) ImportState(data []byte) error {
	return e.store.Import(data)
}
