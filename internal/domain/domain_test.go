package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestParseGrade(t *testing.T) {
	t.Run("accepts the four tokens", func(t *testing.T) {
		want := map[string]Grade{
			"forgot": Forgot,
			"hard":   Hard,
			"good":   Good,
			"easy":   Easy,
		}
		for token, grade := range want {
			got, err := ParseGrade(token)
			if err != nil {
				t.Fatalf("ParseGrade(%q) returned error: %v", token, err)
			}
			if got != grade {
				t.Errorf("ParseGrade(%q) = %v, want %v", token, got, grade)
			}
		}
	})

	t.Run("rejects unknown tokens", func(t *testing.T) {
		for _, token := range []string{"", "again", "FORGOT", "ok"} {
			if _, err := ParseGrade(token); err == nil {
				t.Errorf("ParseGrade(%q) succeeded, want error", token)
			}
		}
	})
}

func TestGradeRoundTrip(t *testing.T) {
	for _, g := range []Grade{Forgot, Hard, Good, Easy} {
		text, err := g.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v) returned error: %v", g, err)
		}
		var back Grade
		if err := back.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q) returned error: %v", text, err)
		}
		if back != g {
			t.Errorf("round trip of %v gave %v", g, back)
		}
	}
}

func TestStageRoundTrip(t *testing.T) {
	for _, s := range []Stage{StageNew, StageLearning, StageReview, StageRelapsed} {
		text, err := s.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v) returned error: %v", s, err)
		}
		var back Stage
		if err := back.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q) returned error: %v", text, err)
		}
		if back != s {
			t.Errorf("round trip of %v gave %v", s, back)
		}
	}

	var s Stage
	if err := s.UnmarshalText([]byte("relearning")); err == nil {
		t.Error("expected unknown stage token to be rejected")
	}
}

func TestDateOf(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*60*60)
	ts := time.Date(2024, 3, 1, 2, 30, 0, 0, loc) // 2024-02-29T21:30 UTC
	got := DateOf(ts)
	want := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("DateOf(%v) = %v, want %v", ts, got, want)
	}
}

func TestMemoryStateJSON(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		state := MemoryState{
			Stage:    StageReview,
			Due:      time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
			Interval: 12,
			Strength: 2.4,
			Lapses:   1,
			Reviews:  7,
		}
		data, err := json.Marshal(state)
		if err != nil {
			t.Fatalf("Marshal returned error: %v", err)
		}
		if !strings.Contains(string(data), `"due":"2024-06-01"`) {
			t.Errorf("expected date-only due in %s", data)
		}
		var back MemoryState
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("Unmarshal returned error: %v", err)
		}
		if back != state {
			t.Errorf("round trip gave %+v, want %+v", back, state)
		}
	})

	badInputs := map[string]string{
		"unknown stage":     `{"stage":"burned","due":"2024-06-01","interval":1,"strength":2.0,"lapses":0,"reviews":0}`,
		"malformed due":     `{"stage":"new","due":"June 1st","interval":1,"strength":2.0,"lapses":0,"reviews":0}`,
		"negative interval": `{"stage":"new","due":"2024-06-01","interval":-1,"strength":2.0,"lapses":0,"reviews":0}`,
		"zero strength":     `{"stage":"new","due":"2024-06-01","interval":1,"strength":0,"lapses":0,"reviews":0}`,
		"negative lapses":   `{"stage":"new","due":"2024-06-01","interval":1,"strength":2.0,"lapses":-2,"reviews":0}`,
		"negative reviews":  `{"stage":"new","due":"2024-06-01","interval":1,"strength":2.0,"lapses":0,"reviews":-1}`,
		"unknown field":     `{"stage":"new","due":"2024-06-01","interval":1,"strength":2.0,"lapses":0,"reviews":0,"ease":2.5}`,
	}
	for name, input := range badInputs {
		t.Run("rejects "+name, func(t *testing.T) {
			var state MemoryState
			if err := json.Unmarshal([]byte(input), &state); err == nil {
				t.Errorf("expected error for %s", name)
			}
		})
	}
}
