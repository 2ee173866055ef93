package scheduler

import (
	"math"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/drillhash/internal/domain"
)

// Params holds the named tuning constants of the scheduling curve. The
// defaults are a starting point, not a law: every value can be overridden
// through configuration.
type Params struct {
	// FirstInterval is the gap in days granted by the first successful
	// review of a New or Relapsed card.
	FirstInterval int `koanf:"first-interval" validate:"min=1"`
	// MinInterval is the floor an interval is reset to on Forgot.
	MinInterval int `koanf:"min-interval" validate:"min=1"`
	// MaxInterval caps interval growth in days.
	MaxInterval int `koanf:"max-interval" validate:"gtefield=MinInterval"`
	// InitialStrength seeds the strength of a freshly seen card.
	InitialStrength float64 `koanf:"initial-strength" validate:"gt=0"`
	// MinStrength and MaxStrength clamp strength after every adjustment so a
	// card can neither stagnate nor accelerate without bound.
	MinStrength float64 `koanf:"min-strength" validate:"gt=0"`
	MaxStrength float64 `koanf:"max-strength" validate:"gtefield=MinStrength"`
	// HardFactor scales interval growth on Hard; it is below one so Hard
	// grows slower than Good's plain strength multiple.
	HardFactor float64 `koanf:"hard-factor" validate:"gt=0,lt=1"`
	// EasyBonus scales interval growth on Easy beyond the strength multiple.
	EasyBonus float64 `koanf:"easy-bonus" validate:"gte=1"`
	// ForgotPenalty, HardPenalty and EasyReward adjust strength per grade.
	ForgotPenalty float64 `koanf:"forgot-penalty" validate:"gte=0"`
	HardPenalty   float64 `koanf:"hard-penalty" validate:"gte=0"`
	EasyReward    float64 `koanf:"easy-reward" validate:"gte=0"`
}

// DefaultParams provides the stock scheduling curve.
func DefaultParams() *Params {
	return &Params{
		FirstInterval:   1,
		MinInterval:     1,
		MaxInterval:     256,
		InitialStrength: 2.5,
		MinStrength:     1.1,
		MaxStrength:     3.0,
		HardFactor:      0.8,
		EasyBonus:       1.5,
		ForgotPenalty:   0.2,
		HardPenalty:     0.15,
		EasyReward:      0.15,
	}
}

// Validate rejects inconsistent parameter overrides.
func (p *Params) Validate() error {
	return validator.New().Struct(p)
}

// NewState builds the memory state for a card seen for the first time: stage
// New, due immediately.
func (p *Params) NewState(today time.Time) domain.MemoryState {
	return domain.MemoryState{
		Stage:    domain.StageNew,
		Due:      domain.DateOf(today),
		Interval: 0,
		Strength: p.clampStrength(p.InitialStrength),
	}
}

// NextState computes the memory state following one graded review. It is a
// pure function: deterministic, total over its inputs, and it never reads
// the clock (now is truncated to a UTC date internally). Reviews increments
// on every call and Due is always date(now) + Interval, so the result is
// never scheduled into the past.
func (p *Params) NextState(state domain.MemoryState, grade domain.Grade, now time.Time) domain.MemoryState {
	today := domain.DateOf(now)
	next := state
	next.Reviews++

	switch grade {
	case domain.Forgot:
		if state.Stage == domain.StageNew {
			// Lapses count forgettings after leaving New, so a failed first
			// impression just keeps the card immediately due.
			next.Interval = 0
		} else {
			next.Stage = domain.StageRelapsed
			next.Interval = p.MinInterval
			next.Lapses++
			next.Strength = p.clampStrength(state.Strength - p.ForgotPenalty)
		}
	case domain.Hard:
		next.Strength = p.clampStrength(state.Strength - p.HardPenalty)
		if entering(state.Stage) {
			next.Stage = domain.StageLearning
			next.Interval = p.clampInterval(roundDays(float64(p.FirstInterval) * p.HardFactor))
		} else {
			next.Stage = domain.StageReview
			next.Interval = p.clampInterval(roundDays(float64(state.Interval) * state.Strength * p.HardFactor))
		}
	case domain.Easy:
		next.Strength = p.clampStrength(state.Strength + p.EasyReward)
		if entering(state.Stage) {
			next.Stage = domain.StageLearning
			next.Interval = p.clampInterval(roundDays(float64(p.FirstInterval) * p.EasyBonus))
		} else {
			next.Stage = domain.StageReview
			next.Interval = p.clampInterval(roundDays(float64(state.Interval) * state.Strength * p.EasyBonus))
		}
	default: // Good, the standard case
		if entering(state.Stage) {
			next.Stage = domain.StageLearning
			next.Interval = p.clampInterval(p.FirstInterval)
		} else {
			next.Stage = domain.StageReview
			next.Interval = p.clampInterval(roundDays(float64(state.Interval) * state.Strength))
		}
	}

	next.Due = today.AddDate(0, 0, next.Interval)
	return next
}

// entering reports whether a successful review re-enters the growth curve
// from its start. Relapsed mirrors New: one success earns the first
// interval, and the strength multiple resumes from the success after that.
func entering(stage domain.Stage) bool {
	return stage == domain.StageNew || stage == domain.StageRelapsed
}

func roundDays(days float64) int {
	return int(math.Round(days))
}

func (p *Params) clampInterval(days int) int {
	if days < p.MinInterval {
		return p.MinInterval
	}
	if days > p.MaxInterval {
		return p.MaxInterval
	}
	return days
}

func (p *Params) clampStrength(s float64) float64 {
	return math.Max(p.MinStrength, math.Min(p.MaxStrength, s))
}
