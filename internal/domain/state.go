package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// DateFormat is the wire format for due dates.
const DateFormat = "2006-01-02"

// DateOf truncates a timestamp to its UTC calendar date (midnight UTC).
// Scheduling arithmetic works in whole days on these values.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// MemoryState is the mutable scheduling state of one card. It is created
// when a card's ID is first seen, mutated only by the scheduler, and
// survives deck re-imports for as long as the card's identity is stable.
type MemoryState struct {
	Stage Stage
	// Due is the date the card next becomes eligible, at UTC midnight.
	Due time.Time
	// Interval is the current scheduled gap in whole days.
	Interval int
	// Strength bounds how fast intervals grow; the scheduler clamps it.
	Strength float64
	Lapses   int
	Reviews  int
}

type memoryStateJSON struct {
	Stage    Stage   `json:"stage"`
	Due      string  `json:"due"`
	Interval int     `json:"interval"`
	Strength float64 `json:"strength"`
	Lapses   int     `json:"lapses"`
	Reviews  int     `json:"reviews"`
}

// MarshalJSON implements json.Marshaler with dates as "2006-01-02".
func (m MemoryState) MarshalJSON() ([]byte, error) {
	return json.Marshal(memoryStateJSON{
		Stage:    m.Stage,
		Due:      m.Due.Format(DateFormat),
		Interval: m.Interval,
		Strength: m.Strength,
		Lapses:   m.Lapses,
		Reviews:  m.Reviews,
	})
}

// UnmarshalJSON implements json.Unmarshaler. It fails closed: unknown
// fields, unknown stage tokens, malformed dates, negative counters and
// non-positive or non-finite strengths are all rejected rather than
// clamped, leaving the receiver unchanged.
func (m *MemoryState) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var aux memoryStateJSON
	if err := dec.Decode(&aux); err != nil {
		return err
	}
	due, err := time.ParseInLocation(DateFormat, aux.Due, time.UTC)
	if err != nil {
		return fmt.Errorf("malformed due date %q: %w", aux.Due, err)
	}
	if aux.Interval < 0 {
		return fmt.Errorf("interval must be non-negative, got %d", aux.Interval)
	}
	if aux.Strength <= 0 || math.IsNaN(aux.Strength) || math.IsInf(aux.Strength, 0) {
		return fmt.Errorf("strength must be a positive finite number, got %v", aux.Strength)
	}
	if aux.Lapses < 0 {
		return fmt.Errorf("lapses must be non-negative, got %d", aux.Lapses)
	}
	if aux.Reviews < 0 {
		return fmt.Errorf("reviews must be non-negative, got %d", aux.Reviews)
	}
	m.Stage = aux.Stage
	m.Due = due
	m.Interval = aux.Interval
	m.Strength = aux.Strength
	m.Lapses = aux.Lapses
	m.Reviews = aux.Reviews
	return nil
}
