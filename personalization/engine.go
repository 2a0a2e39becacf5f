package personalization

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/fatigo/pkg/errors"
	"github.com/YuminosukeSato/fatigo/pkg/log"
)

// ScorePoint is one fatigue score observed during a session.
type ScorePoint struct {
	At    time.Time
	Score float64
}

// SessionRecord summarizes a finished session.
type SessionRecord struct {
	Start  time.Time
	Points []ScorePoint
}

// Engine は個人化プロファイルを保持し、セッション終了時に更新する
type Engine struct {
	mu sync.Mutex

	path     string
	profile  *Profile
	schedule Schedule
	now      func() time.Time
	logger   log.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithSchedule replaces the default blend schedule.
func WithSchedule(s Schedule) Option { return func(e *Engine) { e.schedule = s } }

// WithLogger sets the engine logger.
func WithLogger(l log.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithClock sets the time source.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// Open loads the profile at path. A missing file yields defaults and a nil
// error; a corrupt or mismatched file yields defaults and the typed error,
// so the caller keeps a working engine either way. An invalid schedule is
// the only fatal error.
func Open(path string, opts ...Option) (*Engine, error) {
	e := &Engine{
		path:     path,
		schedule: DefaultSchedule(),
		now:      time.Now,
		logger:   log.GetLoggerWithName("personalization"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.schedule.Validate(); err != nil {
		return nil, err
	}

	p, err := loadProfile(path)
	if err != nil {
		e.logger.Error("Profile load failed, using defaults", err, log.PathKey, path)
		e.profile = NewProfile(e.now())
		return e, err
	}
	if p == nil {
		p = NewProfile(e.now())
	}
	e.profile = p
	return e, nil
}

// Schedule returns the blend schedule.
func (e *Engine) Schedule() Schedule { return e.schedule }

// SessionCount returns the number of completed sessions.
func (e *Engine) SessionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.profile.TotalSessions
}

// MLWeight returns the current blend weight.
func (e *Engine) MLWeight() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.schedule.MLWeight(e.profile.TotalSessions)
}

// Blend mixes ml and rule scores with the current weight.
func (e *Engine) Blend(ml, rule float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.schedule.Blend(ml, rule, e.profile.TotalSessions)
}

// Stage returns the current stage.
func (e *Engine) Stage() Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return StageFor(e.profile.TotalSessions)
}

// Thresholds returns the adapted thresholds.
func (e *Engine) Thresholds() Thresholds {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.profile.Thresholds
}

// Level classifies score with the adapted thresholds.
func (e *Engine) Level(score float64) Level {
	return e.Thresholds().Level(score)
}

// RecordSession folds a finished session into the profile and saves it.
func (e *Engine) RecordSession(rec SessionRecord) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.profile
	p.TotalSessions++

	scores := make([]float64, 0, len(rec.Points))
	for _, pt := range rec.Points {
		if !errors.IsFinite(pt.Score) {
			continue
		}
		score := clamp(pt.Score, 0, 100)
		scores = append(scores, score)

		p.Hourly[pt.At.Hour()].Add(1 - score/100)

		if !rec.Start.IsZero() && !pt.At.Before(rec.Start) {
			if bin := int(pt.At.Sub(rec.Start) / progressionWidth); bin < progressionBins {
				p.Progression[bin].Add(score)
			}
		}
	}
	p.Thresholds = AdaptThresholds(p.Thresholds, scores)
	p.UpdatedAt = e.now()

	e.logger.Info("Session recorded",
		log.SessionCountKey, p.TotalSessions,
		log.StageKey, string(StageFor(p.TotalSessions)),
		log.MLWeightKey, e.schedule.MLWeight(p.TotalSessions),
		log.SamplesKey, len(scores),
	)
	return saveProfile(e.path, p)
}

// RecordFeedback logs a user correction of a predicted score.
func (e *Engine) RecordFeedback(predicted, corrected float64, note string) (FeedbackEntry, error) {
	if !errors.IsFinite(predicted) || !errors.IsFinite(corrected) || corrected < 0 || corrected > 100 {
		return FeedbackEntry{}, errors.NewValidationError("feedback", "scores must be finite and corrected in [0, 100]", corrected)
	}
	return e.appendFeedback(FeedbackEntry{Kind: FeedbackCorrection, Predicted: predicted, Corrected: corrected, Note: note})
}

// RecordAction logs the user's reaction to a score (dismissed alert or
// break taken).
func (e *Engine) RecordAction(score float64, kind string) (FeedbackEntry, error) {
	if kind != FeedbackDismissedAlert && kind != FeedbackTookBreak {
		return FeedbackEntry{}, errors.NewValidationError("feedback.kind", "unknown action", kind)
	}
	return e.appendFeedback(FeedbackEntry{
		Kind:              kind,
		Predicted:         score,
		AdjustSensitivity: ShouldAdjustSensitivity(score, kind),
	})
}

func (e *Engine) appendFeedback(entry FeedbackEntry) (FeedbackEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry.ID = uuid.NewString()
	entry.At = e.now()
	e.profile.Feedback = append(e.profile.Feedback, entry)
	if n := len(e.profile.Feedback); n > maxFeedback {
		e.profile.Feedback = append([]FeedbackEntry(nil), e.profile.Feedback[n-maxFeedback:]...)
	}
	e.profile.UpdatedAt = entry.At
	return entry, saveProfile(e.path, e.profile)
}

// ShouldAdjustSensitivity reports whether a user action suggests the alert
// thresholds are off: dismissing below 70 or breaking above 40.
func ShouldAdjustSensitivity(score float64, kind string) bool {
	switch kind {
	case FeedbackDismissedAlert:
		return score < 70
	case FeedbackTookBreak:
		return score > 40
	default:
		return false
	}
}

// ProductivityForecast returns the learned productivity for hour, 0.5 when
// nothing was observed.
func (e *Engine) ProductivityForecast(hour int) float64 {
	if hour < 0 || hour >= hoursPerDay {
		return 0.5
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if m := e.profile.Hourly[hour]; m.Count > 0 {
		return m.Mean
	}
	return 0.5
}

// FeedbackSummary aggregates the feedback log.
type FeedbackSummary struct {
	Total             int     `json:"total_feedback"`
	Corrections       int     `json:"corrections"`
	MeanAbsCorrection float64 `json:"mean_abs_correction"`
	MeanBias          float64 `json:"mean_bias"`
	DismissalRate     float64 `json:"alert_dismissal_rate"`
	// SensitivitySignals counts actions flagged by ShouldAdjustSensitivity.
	SensitivitySignals int `json:"sensitivity_signals"`
}

// Stats is the personalization view for observability.
type Stats struct {
	ProfileID            string          `json:"profile_id"`
	Sessions             int             `json:"total_sessions"`
	Stage                Stage           `json:"stage"`
	MLWeight             float64         `json:"ml_weight"`
	PersonalizationScore float64         `json:"personalization_score"`
	Thresholds           Thresholds      `json:"thresholds"`
	Feedback             FeedbackSummary `json:"feedback"`
	// Progression holds the mean score per 15-minute bin, -1 when empty.
	Progression []float64 `json:"fatigue_progression"`
	// Hourly holds the mean productivity per hour, -1 when empty.
	Hourly []float64 `json:"hourly_productivity"`
}

// Stats returns a copy of the aggregates.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.profile
	st := Stats{
		ProfileID:            p.ID,
		Sessions:             p.TotalSessions,
		Stage:                StageFor(p.TotalSessions),
		MLWeight:             e.schedule.MLWeight(p.TotalSessions),
		PersonalizationScore: clamp(float64(p.TotalSessions)/50, 0, 1),
		Thresholds:           p.Thresholds,
		Feedback:             summarizeFeedback(p.Feedback),
		Progression:          make([]float64, progressionBins),
		Hourly:               make([]float64, hoursPerDay),
	}
	for i, m := range p.Progression {
		st.Progression[i] = meanOrEmpty(m)
	}
	for i, m := range p.Hourly {
		st.Hourly[i] = meanOrEmpty(m)
	}
	return st
}

func meanOrEmpty(m RunningMean) float64 {
	if m.Count == 0 {
		return -1
	}
	return m.Mean
}

func summarizeFeedback(entries []FeedbackEntry) FeedbackSummary {
	s := FeedbackSummary{Total: len(entries)}
	if len(entries) == 0 {
		return s
	}
	var abs, signed []float64
	dismissals := 0
	for _, f := range entries {
		if f.AdjustSensitivity {
			s.SensitivitySignals++
		}
		switch f.Kind {
		case FeedbackCorrection:
			d := f.Corrected - f.Predicted
			signed = append(signed, d)
			if d < 0 {
				d = -d
			}
			abs = append(abs, d)
		case FeedbackDismissedAlert:
			dismissals++
		}
	}
	s.Corrections = len(signed)
	if len(signed) > 0 {
		s.MeanAbsCorrection = stat.Mean(abs, nil)
		s.MeanBias = stat.Mean(signed, nil)
	}
	s.DismissalRate = float64(dismissals) / float64(len(entries))
	return s
}

// Reset deletes the profile file and returns to defaults.
func (e *Engine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profile = NewProfile(e.now())
	if err := removeIfExists(e.path); err != nil {
		return err
	}
	e.logger.Info("Profile reset", log.PathKey, e.path)
	return nil
}

// Save writes the current profile.
func (e *Engine) Save() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return saveProfile(e.path, e.profile)
}
