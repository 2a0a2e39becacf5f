package personalization

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Thresholds are the fatigue level boundaries.
type Thresholds struct {
	Low      float64 `json:"low"`
	Moderate float64 `json:"moderate"`
	High     float64 `json:"high"`
	Critical float64 `json:"critical"`
}

// BaseThresholds are the population defaults.
var BaseThresholds = Thresholds{Low: 30, Moderate: 60, High: 80, Critical: 90}

const (
	// baselineMean は母集団の平均疲労スコア
	baselineMean = 40.0
	shiftGain    = 0.2
	maxShift     = 10.0
	adaptAlpha   = 0.1
)

// Level is a fatigue severity.
type Level string

// Levels.
const (
	LevelLow      Level = "low"
	LevelModerate Level = "moderate"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Level classifies score against the thresholds.
func (t Thresholds) Level(score float64) Level {
	switch {
	case score < t.Low:
		return LevelLow
	case score < t.Moderate:
		return LevelModerate
	case score < t.High:
		return LevelHigh
	default:
		return LevelCritical
	}
}

// UrgentBreak reports whether score reached the critical boundary.
func (t Thresholds) UrgentBreak(score float64) bool {
	return score >= t.Critical
}

// AdaptThresholds moves cur one EMA step towards the base thresholds shifted
// by the observed mean. Every boundary stays within ±10 of its base.
func AdaptThresholds(cur Thresholds, observed []float64) Thresholds {
	if len(observed) == 0 {
		return cur
	}
	shift := clamp((stat.Mean(observed, nil)-baselineMean)*shiftGain, -maxShift, maxShift)
	step := func(current, base float64) float64 {
		next := (1-adaptAlpha)*current + adaptAlpha*(base+shift)
		return clamp(next, base-maxShift, base+maxShift)
	}
	return Thresholds{
		Low:      step(cur.Low, BaseThresholds.Low),
		Moderate: step(cur.Moderate, BaseThresholds.Moderate),
		High:     step(cur.High, BaseThresholds.High),
		Critical: step(cur.Critical, BaseThresholds.Critical),
	}
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
