// Package personalization adapts the fatigue core to one user: the
// session-driven ML blend schedule, adaptive level thresholds, hourly
// productivity and fatigue-progression aggregates, and the feedback log.
package personalization

import (
	"github.com/YuminosukeSato/fatigo/pkg/errors"
)

// WeightStep is one row of the blend schedule.
type WeightStep struct {
	MinSessions int     `json:"min_sessions" mapstructure:"min_sessions"`
	Weight      float64 `json:"weight" mapstructure:"weight"`
}

// Schedule maps completed sessions to the ML blend weight.
type Schedule []WeightStep

// DefaultSchedule ramps from rule-based only to mostly ML.
func DefaultSchedule() Schedule {
	return Schedule{
		{MinSessions: 0, Weight: 0},
		{MinSessions: 5, Weight: 0.30},
		{MinSessions: 10, Weight: 0.60},
		{MinSessions: 20, Weight: 0.85},
	}
}

// Validate requires a non-empty table starting at 0 sessions with strictly
// increasing session thresholds and weights in [0,1).
func (s Schedule) Validate() error {
	if len(s) == 0 {
		return errors.NewValidationError("schedule", "must not be empty", 0)
	}
	if s[0].MinSessions != 0 {
		return errors.NewValidationError("schedule", "first step must start at 0 sessions", s[0].MinSessions)
	}
	for i, step := range s {
		if step.Weight < 0 || step.Weight >= 1 || !errors.IsFinite(step.Weight) {
			return errors.NewValidationError("schedule.weight", "must be in [0, 1)", step.Weight)
		}
		if i > 0 && step.MinSessions <= s[i-1].MinSessions {
			return errors.NewValidationError("schedule.min_sessions", "must be strictly increasing", step.MinSessions)
		}
	}
	return nil
}

// MLWeight returns the weight of the last step whose threshold n reaches.
func (s Schedule) MLWeight(n int) float64 {
	w := 0.0
	for _, step := range s {
		if n >= step.MinSessions {
			w = step.Weight
		}
	}
	return w
}

// Blend mixes the ML and rule-based scores for n completed sessions.
func (s Schedule) Blend(ml, rule float64, n int) float64 {
	w := s.MLWeight(n)
	if w == 0 {
		return rule
	}
	return w*ml + (1-w)*rule
}

// Stage is the personalization stage derived from the session count.
type Stage string

// Stages.
const (
	StageColdStart       Stage = "cold_start"
	StageInitialLearning Stage = "initial_learning"
	StageAdapting        Stage = "adapting"
	StagePersonalized    Stage = "personalized"
)

// StageFor returns the stage reached after n sessions.
func StageFor(n int) Stage {
	switch {
	case n < 5:
		return StageColdStart
	case n < 10:
		return StageInitialLearning
	case n < 20:
		return StageAdapting
	default:
		return StagePersonalized
	}
}
