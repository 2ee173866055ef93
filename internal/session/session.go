// Package session implements the drill session state machine. Session is a
// value: every operation returns a new Session and leaves its receiver
// unchanged, so callers can keep old values around without aliasing
// surprises. The package never touches card content or memory state; it
// orders identities and records what would be needed to take a grade back.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/drillhash/internal/domain"
)

// Sentinel errors. Out-of-sequence operations return ErrInvalidState and
// leave the session unchanged.
var (
	ErrInvalidState  = errors.New("session: operation not valid in current state")
	ErrNothingToUndo = fmt.Errorf("session: nothing to undo: %w", ErrInvalidState)
)

// Phase is the lifecycle position of a session. The zero value is
// PhaseNotStarted.
type Phase int

const (
	PhaseNotStarted Phase = iota
	PhaseActive
	PhaseCompleted
)

func (p Phase) String() string {
	switch p {
	case PhaseNotStarted:
		return "not-started"
	case PhaseActive:
		return "active"
	case PhaseCompleted:
		return "completed"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Candidate is one card offered to Start, in deck parse order.
type Candidate struct {
	ID     string
	Family string
	Stage  domain.Stage
	Due    time.Time
}

// Options control queue construction.
type Options struct {
	// Today is the study date. A card is eligible when it is New or its due
	// date is not after Today.
	Today time.Time
	// StartedAt stamps the session; zero falls back to Today.
	StartedAt time.Time
	// Shuffle randomizes the queue with the deterministic generator seeded
	// by ShuffleSeed. Off keeps candidate order.
	Shuffle     bool
	ShuffleSeed uint64
	// CardLimit caps the queue and NewCardLimit caps how many New cards it
	// may contain; nil means unlimited.
	CardLimit    *int
	NewCardLimit *int
	// BurySiblings keeps only the first queued card of each cloze family.
	BurySiblings bool
}

// Review is one graded card in session history: enough to take the grade
// back and restore the memory state it replaced.
type Review struct {
	CardID string
	Grade  domain.Grade
	Prior  domain.MemoryState
}

// Session is a drill over a fixed queue of card IDs. The front of the queue
// is the current card.
type Session struct {
	queue     []string
	history   []Review
	revealed  bool
	total     int
	phase     Phase
	startedAt time.Time
}

// Start builds the session queue from the candidates: eligibility filter,
// then the New-card cap, the overall cap, sibling burying, and finally the
// optional shuffle. It returns the queue length; zero is the valid "nothing
// due" outcome and the session stays NotStarted.
func Start(cands []Candidate, opts Options) (Session, int) {
	today := domain.DateOf(opts.Today)

	eligible := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		if c.Stage == domain.StageNew || !domain.DateOf(c.Due).After(today) {
			eligible = append(eligible, c)
		}
	}

	if opts.NewCardLimit != nil {
		limit := *opts.NewCardLimit
		if limit < 0 {
			limit = 0
		}
		kept := eligible[:0]
		taken := 0
		for _, c := range eligible {
			if c.Stage == domain.StageNew {
				if taken >= limit {
					continue
				}
				taken++
			}
			kept = append(kept, c)
		}
		eligible = kept
	}

	if opts.CardLimit != nil {
		limit := *opts.CardLimit
		if limit < 0 {
			limit = 0
		}
		if len(eligible) > limit {
			eligible = eligible[:limit]
		}
	}

	if opts.BurySiblings {
		kept := eligible[:0]
		families := make(map[string]bool)
		for _, c := range eligible {
			if c.Family != "" {
				if families[c.Family] {
					continue
				}
				families[c.Family] = true
			}
			kept = append(kept, c)
		}
		eligible = kept
	}

	queue := make([]string, len(eligible))
	for i, c := range eligible {
		queue[i] = c.ID
	}
	if opts.Shuffle {
		shuffle(queue, opts.ShuffleSeed)
	}

	if len(queue) == 0 {
		return Session{}, 0
	}

	startedAt := opts.StartedAt
	if startedAt.IsZero() {
		startedAt = opts.Today
	}
	return Session{
		queue:     queue,
		total:     len(queue),
		phase:     PhaseActive,
		startedAt: startedAt,
	}, len(queue)
}

// Reveal turns the current card face up. Revealing an already revealed card
// is a no-op success.
func (s Session) Reveal() (Session, error) {
	if s.phase != PhaseActive || len(s.queue) == 0 {
		return s, ErrInvalidState
	}
	s.revealed = true
	return s, nil
}

// Grade records the grade for the current card and advances the queue. The
// caller supplies the card's memory state from before the grade so Undo can
// restore it. Grading requires a revealed card; draining the queue completes
// the session.
func (s Session) Grade(grade domain.Grade, prior domain.MemoryState) (Session, error) {
	if s.phase != PhaseActive || !s.revealed || len(s.queue) == 0 {
		return s, ErrInvalidState
	}
	next := s.clone()
	next.history = append(next.history, Review{CardID: next.queue[0], Grade: grade, Prior: prior})
	next.queue = next.queue[1:]
	next.revealed = false
	if len(next.queue) == 0 {
		next.phase = PhaseCompleted
	}
	return next, nil
}

// Undo pops the most recent review, returning it so the caller can restore
// the prior memory state, and puts the card back at the front of the queue
// face down. Undo resurrects a completed session.
func (s Session) Undo() (Session, Review, error) {
	if len(s.history) == 0 {
		return s, Review{}, ErrNothingToUndo
	}
	next := s.clone()
	last := len(next.history) - 1
	rev := next.history[last]
	next.history = next.history[:last]
	next.queue = append([]string{rev.CardID}, next.queue...)
	next.revealed = false
	next.phase = PhaseActive
	return next, rev, nil
}

// End finishes an active session early. History survives so Undo can bring
// the session back.
func (s Session) End() Session {
	if s.phase == PhaseActive {
		s.phase = PhaseCompleted
	}
	return s
}

func (s Session) Phase() Phase { return s.phase }

func (s Session) Revealed() bool { return s.revealed }

// Current returns the ID of the card at the front of the queue.
func (s Session) Current() (string, error) {
	if s.phase != PhaseActive || len(s.queue) == 0 {
		return "", ErrInvalidState
	}
	return s.queue[0], nil
}

// Progress reports the graded fraction of the session in [0, 1]. A session
// with no cards has progress 0.
func (s Session) Progress() float64 {
	if s.total == 0 {
		return 0
	}
	return float64(s.total-len(s.queue)) / float64(s.total)
}

func (s Session) Remaining() int { return len(s.queue) }

func (s Session) Total() int { return s.total }

// Reviewed counts grades currently on the history stack.
func (s Session) Reviewed() int { return len(s.history) }

func (s Session) StartedAt() time.Time { return s.startedAt }

// clone deep-copies the slices so a returned Session never shares mutable
// backing arrays with its receiver.
func (s Session) clone() Session {
	out := s
	out.queue = append([]string(nil), s.queue...)
	out.history = append([]Review(nil), s.history...)
	return out
}

// tinyRNG is a small linear congruential generator. The queue needs a cheap
// deterministic shuffle, and a fixed seed must reproduce the same order on
// every platform.
type tinyRNG struct {
	state uint64
}

func (r *tinyRNG) next() uint32 {
	r.state = r.state*6364136223846793005 + 1442695040888963407
	return uint32(r.state >> 32)
}

func shuffle(ids []string, seed uint64) {
	if len(ids) < 2 {
		return
	}
	rng := tinyRNG{state: seed}
	for i := range ids {
		j := int(rng.next() % uint32(len(ids)))
		ids[i], ids[j] = ids[j], ids[i]
	}
}
