package scheduler

import (
	"testing"
	"time"

	"github.com/conorfennell/drillhash/internal/domain"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNewState(t *testing.T) {
	p := DefaultParams()
	now := time.Date(2026, time.March, 14, 15, 9, 26, 0, time.UTC)
	s := p.NewState(now)

	if s.Stage != domain.StageNew {
		t.Errorf("expected stage new, got %v", s.Stage)
	}
	if !s.Due.Equal(date(2026, time.March, 14)) {
		t.Errorf("expected due on the same date, got %v", s.Due)
	}
	if s.Interval != 0 {
		t.Errorf("expected interval 0, got %d", s.Interval)
	}
	if s.Strength != p.InitialStrength {
		t.Errorf("expected strength %v, got %v", p.InitialStrength, s.Strength)
	}
	if s.Lapses != 0 || s.Reviews != 0 {
		t.Errorf("expected zero counters, got lapses=%d reviews=%d", s.Lapses, s.Reviews)
	}
}

func TestNextStateTransitions(t *testing.T) {
	p := DefaultParams()
	now := date(2026, time.June, 1)

	testCases := []struct {
		name         string
		state        domain.MemoryState
		grade        domain.Grade
		wantStage    domain.Stage
		wantInterval int
		wantLapses   int
		wantStrength float64
	}{
		{
			name:         "new graded good enters learning",
			state:        p.NewState(now),
			grade:        domain.Good,
			wantStage:    domain.StageLearning,
			wantInterval: 1,
			wantStrength: 2.5,
		},
		{
			name:         "new graded hard still earns the first interval",
			state:        p.NewState(now),
			grade:        domain.Hard,
			wantStage:    domain.StageLearning,
			wantInterval: 1,
			wantStrength: 2.35,
		},
		{
			name:         "new graded easy stretches the first interval",
			state:        p.NewState(now),
			grade:        domain.Easy,
			wantStage:    domain.StageLearning,
			wantInterval: 2,
			wantStrength: 2.65,
		},
		{
			name:         "new graded forgot stays new and immediately due",
			state:        p.NewState(now),
			grade:        domain.Forgot,
			wantStage:    domain.StageNew,
			wantInterval: 0,
			wantLapses:   0,
			wantStrength: 2.5,
		},
		{
			name: "learning graded good grows by the strength multiple",
			state: domain.MemoryState{
				Stage: domain.StageLearning, Due: now, Interval: 1, Strength: 2.5, Reviews: 1,
			},
			grade:        domain.Good,
			wantStage:    domain.StageReview,
			wantInterval: 3,
			wantStrength: 2.5,
		},
		{
			name: "review graded forgot relapses",
			state: domain.MemoryState{
				Stage: domain.StageReview, Due: now, Interval: 20, Strength: 2.5, Reviews: 4,
			},
			grade:        domain.Forgot,
			wantStage:    domain.StageRelapsed,
			wantInterval: 1,
			wantLapses:   1,
			wantStrength: 2.3,
		},
		{
			name: "relapsed graded good re-enters learning",
			state: domain.MemoryState{
				Stage: domain.StageRelapsed, Due: now, Interval: 1, Strength: 2.3, Lapses: 1, Reviews: 5,
			},
			grade:        domain.Good,
			wantStage:    domain.StageLearning,
			wantInterval: 1,
			wantLapses:   1,
			wantStrength: 2.3,
		},
		{
			name: "review graded hard grows slower and weakens",
			state: domain.MemoryState{
				Stage: domain.StageReview, Due: now, Interval: 10, Strength: 2.0, Reviews: 3,
			},
			grade:        domain.Hard,
			wantStage:    domain.StageReview,
			wantInterval: 16,
			wantStrength: 1.85,
		},
		{
			name: "review graded easy grows faster and strengthens",
			state: domain.MemoryState{
				Stage: domain.StageReview, Due: now, Interval: 10, Strength: 2.0, Reviews: 3,
			},
			grade:        domain.Easy,
			wantStage:    domain.StageReview,
			wantInterval: 30,
			wantStrength: 2.15,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			next := p.NextState(tc.state, tc.grade, now)

			if next.Stage != tc.wantStage {
				t.Errorf("expected stage %v, got %v", tc.wantStage, next.Stage)
			}
			if next.Interval != tc.wantInterval {
				t.Errorf("expected interval %d, got %d", tc.wantInterval, next.Interval)
			}
			if next.Lapses != tc.wantLapses {
				t.Errorf("expected lapses %d, got %d", tc.wantLapses, next.Lapses)
			}
			if !closeTo(next.Strength, tc.wantStrength) {
				t.Errorf("expected strength %v, got %v", tc.wantStrength, next.Strength)
			}
			if next.Reviews != tc.state.Reviews+1 {
				t.Errorf("expected reviews %d, got %d", tc.state.Reviews+1, next.Reviews)
			}
			wantDue := date(2026, time.June, 1).AddDate(0, 0, tc.wantInterval)
			if !next.Due.Equal(wantDue) {
				t.Errorf("expected due %v, got %v", wantDue, next.Due)
			}
		})
	}
}

func TestNextStateNeverDueInPast(t *testing.T) {
	p := DefaultParams()
	now := time.Date(2026, time.January, 31, 23, 59, 59, 0, time.UTC)
	today := domain.DateOf(now)

	states := []domain.MemoryState{
		p.NewState(now),
		{Stage: domain.StageLearning, Due: date(2025, time.December, 1), Interval: 1, Strength: 1.1, Reviews: 1},
		{Stage: domain.StageReview, Due: date(2025, time.December, 1), Interval: 100, Strength: 3.0, Reviews: 9},
		{Stage: domain.StageRelapsed, Due: date(2025, time.December, 1), Interval: 1, Strength: 1.1, Lapses: 3, Reviews: 9},
	}
	grades := []domain.Grade{domain.Forgot, domain.Hard, domain.Good, domain.Easy}

	for _, s := range states {
		for _, g := range grades {
			next := p.NextState(s, g, now)
			if next.Due.Before(today) {
				t.Errorf("stage %v grade %v scheduled into the past: due %v before %v", s.Stage, g, next.Due, today)
			}
		}
	}
}

func TestNextStateIntervalClamp(t *testing.T) {
	p := DefaultParams()
	now := date(2026, time.June, 1)

	big := domain.MemoryState{Stage: domain.StageReview, Due: now, Interval: 200, Strength: 3.0, Reviews: 12}
	next := p.NextState(big, domain.Good, now)
	if next.Interval != p.MaxInterval {
		t.Errorf("expected interval capped at %d, got %d", p.MaxInterval, next.Interval)
	}

	next = p.NextState(big, domain.Forgot, now)
	if next.Interval != p.MinInterval {
		t.Errorf("expected interval reset to %d, got %d", p.MinInterval, next.Interval)
	}
}

func TestNextStateStrengthClamp(t *testing.T) {
	p := DefaultParams()
	now := date(2026, time.June, 1)

	weak := domain.MemoryState{Stage: domain.StageReview, Due: now, Interval: 5, Strength: p.MinStrength, Reviews: 2}
	next := p.NextState(weak, domain.Forgot, now)
	if next.Strength != p.MinStrength {
		t.Errorf("expected strength floored at %v, got %v", p.MinStrength, next.Strength)
	}

	strong := domain.MemoryState{Stage: domain.StageReview, Due: now, Interval: 5, Strength: p.MaxStrength, Reviews: 2}
	next = p.NextState(strong, domain.Easy, now)
	if next.Strength != p.MaxStrength {
		t.Errorf("expected strength capped at %v, got %v", p.MaxStrength, next.Strength)
	}
}

func TestNextStateGradeOrdering(t *testing.T) {
	// For one state and date, a better grade never yields a shorter interval.
	p := DefaultParams()
	now := date(2026, time.June, 1)
	state := domain.MemoryState{Stage: domain.StageReview, Due: now, Interval: 10, Strength: 2.0, Reviews: 3}

	forgot := p.NextState(state, domain.Forgot, now).Interval
	hard := p.NextState(state, domain.Hard, now).Interval
	good := p.NextState(state, domain.Good, now).Interval
	easy := p.NextState(state, domain.Easy, now).Interval

	if !(forgot <= hard && hard <= good && good <= easy) {
		t.Errorf("expected intervals ordered by grade, got forgot=%d hard=%d good=%d easy=%d", forgot, hard, good, easy)
	}
}

func TestNextStateDeterministic(t *testing.T) {
	p := DefaultParams()
	now := time.Date(2026, time.June, 1, 18, 30, 0, 0, time.UTC)
	state := domain.MemoryState{Stage: domain.StageReview, Due: date(2026, time.June, 1), Interval: 7, Strength: 2.2, Reviews: 4}

	a := p.NextState(state, domain.Good, now)
	b := p.NextState(state, domain.Good, now)
	if a != b {
		t.Errorf("expected identical results, got %+v and %+v", a, b)
	}

	// The time of day must not leak into scheduling.
	c := p.NextState(state, domain.Good, date(2026, time.June, 1))
	if a != c {
		t.Errorf("expected time of day to be irrelevant, got %+v and %+v", a, c)
	}
}

func TestParamsValidate(t *testing.T) {
	if err := DefaultParams().Validate(); err != nil {
		t.Fatalf("default params failed validation: %v", err)
	}

	p := DefaultParams()
	p.MaxInterval = 0
	if err := p.Validate(); err == nil {
		t.Error("expected an error when max interval is below min interval")
	}

	p = DefaultParams()
	p.HardFactor = 1.5
	if err := p.Validate(); err == nil {
		t.Error("expected an error when the hard factor is not below one")
	}

	p = DefaultParams()
	p.MinStrength = 2.0
	p.MaxStrength = 1.5
	if err := p.Validate(); err == nil {
		t.Error("expected an error when the strength bounds are inverted")
	}
}

func closeTo(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}
