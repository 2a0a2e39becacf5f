// Package rules implements the deterministic rule-based fatigue scorer used
// as the cold-start path and as the blend partner of the ensemble.
package rules

import (
	"math"
	"sync"
	"time"

	"github.com/YuminosukeSato/fatigo/pkg/errors"
	"github.com/YuminosukeSato/fatigo/pkg/log"
)

// Factor names in Result.Factors.
const (
	FactorTimeBased       = "time_based"
	FactorActivityDecline = "activity_decline"
	FactorBreakRecency    = "break_recency"
	FactorSessionDuration = "session_duration"
	FactorEyeStrain       = "eye_strain"
	FactorBlinkRate       = "blink_rate"
	FactorTimeOfDay       = "time_of_day_multiplier"
	FactorOnBreak         = "on_break_reduction"
)

// Trend labels.
const (
	TrendIncreasing       = "increasing"
	TrendDecreasing       = "decreasing"
	TrendStable           = "stable"
	TrendInsufficientData = "insufficient_data"
)

const (
	historySize    = 100
	trendMinPoints = 5
	trendDelta     = 5.0
)

// Input is one scoring tick.
type Input struct {
	Now          time.Time
	WorkDuration time.Duration
	ActivityRate float64 // events per minute
	SinceBreak   time.Duration
	OnBreak      bool
	HasBlink     bool
	BlinkRate    float64 // blinks per minute
}

// Validate reports ErrInvalidInput for non-finite or negative values.
func (in Input) Validate() error {
	for name, v := range map[string]float64{
		"activity_rate": in.ActivityRate,
		"blink_rate":    in.BlinkRate,
		"work_duration": in.WorkDuration.Minutes(),
		"since_break":   in.SinceBreak.Minutes(),
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return errors.Wrapf(errors.ErrInvalidInput, "%s=%v", name, v)
		}
	}
	return nil
}

// Result is a scored tick.
type Result struct {
	Score     float64            `json:"score"`
	Timestamp time.Time          `json:"timestamp"`
	Factors   map[string]float64 `json:"factors"`
}

// Analyzer はルールベースで疲労スコアを算出する
// 最初の非ゼロの活動量をセッションの基準値として保持する。
type Analyzer struct {
	mu      sync.Mutex
	initial float64
	history []float64
	logger  log.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option { return func(a *Analyzer) { a.logger = l } }

// NewAnalyzer returns an Analyzer without a baseline.
func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{logger: log.GetLoggerWithName("rules")}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// StartSession clears the activity baseline.
func (a *Analyzer) StartSession() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.initial = 0
}

// Baseline returns the session's initial activity rate, 0 before any activity.
func (a *Analyzer) Baseline() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.initial
}

// Score computes the rule-based fatigue score for in.
func (a *Analyzer) Score(in Input) (Result, error) {
	if err := in.Validate(); err != nil {
		return Result{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.initial == 0 && in.ActivityRate > 0 {
		a.initial = in.ActivityRate
	}

	work := in.WorkDuration.Minutes()
	f := map[string]float64{
		FactorTimeBased:       math.Min(work/120, 1) * 35,
		FactorBreakRecency:    math.Min(in.SinceBreak.Minutes()/60, 1) * 20,
		FactorSessionDuration: math.Min(work/60/4, 1) * 15,
		FactorTimeOfDay:       TimeOfDayFactor(in.Now.Hour()),
	}
	if a.initial > 0 {
		f[FactorActivityDecline] = (1 - math.Min(in.ActivityRate/a.initial, 1)) * 30
	} else {
		f[FactorActivityDecline] = 0
	}
	f[FactorEyeStrain] = 0
	if in.HasBlink && in.BlinkRate > 0 {
		f[FactorBlinkRate] = in.BlinkRate
		f[FactorEyeStrain] = BlinkPoints(in.BlinkRate)
	}

	base := f[FactorTimeBased] + f[FactorActivityDecline] + f[FactorBreakRecency] +
		f[FactorSessionDuration] + f[FactorEyeStrain]
	score := base * f[FactorTimeOfDay]
	if in.OnBreak {
		score *= 0.5
		f[FactorOnBreak] = 1
	}
	score = errors.ClipValue(score, 0, 100)

	a.history = append(a.history, score)
	if len(a.history) > historySize {
		a.history = a.history[len(a.history)-historySize:]
	}
	a.logger.Debug("Rule score computed",
		log.OperationKey, log.OperationScore,
		log.ScoreKey, score,
	)
	return Result{Score: score, Timestamp: in.Now, Factors: f}, nil
}

// BlinkPoints maps a blink rate to eye-strain points.
func BlinkPoints(rate float64) float64 {
	switch {
	case rate < 5:
		return 25
	case rate < 10:
		return 20
	case rate < 15:
		return 10
	default:
		return 0
	}
}

// TimeOfDayFactor is the circadian multiplier for an hour of day.
func TimeOfDayFactor(hour int) float64 {
	switch {
	case hour >= 6 && hour < 9:
		return 0.9
	case hour >= 9 && hour < 12:
		return 0.8
	case hour >= 12 && hour < 14:
		return 1.0
	case hour >= 14 && hour < 16:
		return 1.1
	case hour >= 16 && hour < 20:
		return 1.2
	default:
		return 1.3
	}
}

// Trend compares the mean of the first two and last two of the latest five
// scores.
func (a *Analyzer) Trend() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.history) < trendMinPoints {
		return TrendInsufficientData
	}
	r := a.history[len(a.history)-trendMinPoints:]
	diff := (r[3]+r[4])/2 - (r[0]+r[1])/2
	switch {
	case diff > trendDelta:
		return TrendIncreasing
	case diff < -trendDelta:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

// Reset clears the baseline and history.
func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.initial = 0
	a.history = nil
}
