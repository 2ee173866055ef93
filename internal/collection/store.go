// Package collection holds the in-memory mapping from card identity to
// memory state. The store is the single mutable surface of the core: the
// parser produces identities, the scheduler produces states, and everything
// else reads through here.
package collection

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/conorfennell/drillhash/internal/domain"
)

// ErrFormat marks a snapshot that cannot be imported. The store is left
// untouched whenever it is returned.
var ErrFormat = errors.New("malformed collection snapshot")

const snapshotVersion = 1

type snapshot struct {
	Version int                           `json:"version"`
	Cards   map[string]domain.MemoryState `json:"cards"`
}

// Store maps card IDs to memory state.
type Store struct {
	states map[string]domain.MemoryState
}

func NewStore() *Store {
	return &Store{states: make(map[string]domain.MemoryState)}
}

func (s *Store) Get(id string) (domain.MemoryState, bool) {
	state, ok := s.states[id]
	return state, ok
}

func (s *Store) Set(id string, state domain.MemoryState) {
	s.states[id] = state
}

func (s *Store) Len() int {
	return len(s.states)
}

// IDs returns the stored identities in sorted order.
func (s *Store) IDs() []string {
	ids := make([]string, 0, len(s.states))
	for id := range s.states {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Merge inserts the fresh state for every ID not yet present and reports how
// many were inserted. IDs already in the store keep their state, and stored
// IDs absent from the given set are retained untouched; a card that
// disappears from its deck keeps its memory until it is explicitly purged.
func (s *Store) Merge(ids []string, fresh domain.MemoryState) int {
	added := 0
	for _, id := range ids {
		if _, ok := s.states[id]; ok {
			continue
		}
		s.states[id] = fresh
		added++
	}
	return added
}

// Export serializes the store as a versioned JSON snapshot with stages as
// tokens and due dates as "2006-01-02".
func (s *Store) Export() ([]byte, error) {
	data, err := json.MarshalIndent(snapshot{Version: snapshotVersion, Cards: s.states}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// Import replaces the store contents with a snapshot previously produced by
// Export. It fails closed: any malformed state aborts the whole import with
// ErrFormat and the store keeps its previous contents.
func (s *Store) Import(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var snap snapshot
	if err := dec.Decode(&snap); err != nil {
		return fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after snapshot", ErrFormat)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrFormat, snap.Version)
	}
	if snap.Cards == nil {
		return fmt.Errorf("%w: missing cards object", ErrFormat)
	}

	states := make(map[string]domain.MemoryState, len(snap.Cards))
	for id, state := range snap.Cards {
		states[id] = state
	}
	s.states = states
	return nil
}
