package features

import (
	"math"
	"sync"
	"time"

	"github.com/YuminosukeSato/fatigo/pkg/errors"
	"github.com/YuminosukeSato/fatigo/pkg/log"
)

// DefaultBudget is the soft per-call extraction budget.
const DefaultBudget = 5 * time.Millisecond

// Sample is one UI tick of raw input.
type Sample struct {
	At        time.Time
	Keyboard  int
	Mouse     int
	HasBlink  bool
	BlinkRate float64 // blinks/min
}

// Context carries the caller-owned session state for one extraction.
type Context struct {
	Now             time.Time
	SessionDuration time.Duration
	SinceBreak      time.Duration
}

// Engineer は生の活動サンプルから28次元の特徴量ベクトルを抽出する
// 全ウィンドウはセッション単位で保持され、Resetで破棄される。
type Engineer struct {
	mu sync.Mutex

	activity *Window
	keyboard *Window
	mouse    *Window
	blink    *Window
	scores   *Window

	baselineActivity float64
	baselineBlink    float64

	sessionStart time.Time
	breaks       int

	budget time.Duration
	logger log.Logger
}

// Option configures an Engineer.
type Option func(*Engineer)

// WithLogger sets the logger used for budget warnings.
func WithLogger(l log.Logger) Option {
	return func(e *Engineer) { e.logger = l }
}

// WithBudget sets the soft extraction budget.
func WithBudget(d time.Duration) Option {
	return func(e *Engineer) { e.budget = d }
}

// NewEngineer creates an Engineer with empty windows.
func NewEngineer(opts ...Option) *Engineer {
	e := &Engineer{
		activity: NewWindow(15*time.Minute, 5000),
		keyboard: NewWindow(15*time.Minute, 5000),
		mouse:    NewWindow(15*time.Minute, 5000),
		blink:    NewWindow(5*time.Minute, 1000),
		scores:   NewWindow(time.Hour, 4000),
		budget:   DefaultBudget,
		logger:   log.GetLoggerWithName("features"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StartSession clears the rolling buffers and marks the session start.
func (e *Engineer) StartSession(at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clearLocked()
	e.sessionStart = at
	e.logger.Debug("Started feature session", log.OperationKey, log.OperationExtract)
}

// Observe adds one sample to the windows.
func (e *Engineer) Observe(s Sample) error {
	if !errors.IsFinite(s.BlinkRate) || s.Keyboard < 0 || s.Mouse < 0 {
		return errors.Wrapf(errors.ErrInvalidInput, "sample at %s", s.At.Format(time.RFC3339))
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.activity.Add(s.At, float64(s.Keyboard+s.Mouse))
	e.keyboard.Add(s.At, float64(s.Keyboard))
	e.mouse.Add(s.At, float64(s.Mouse))
	if s.HasBlink {
		e.blink.Add(s.At, s.BlinkRate)
		if e.baselineBlink == 0 && s.BlinkRate > 0 {
			e.baselineBlink = s.BlinkRate
		}
	}
	return nil
}

// RecordScore feeds a computed fatigue score back into the history window.
func (e *Engineer) RecordScore(at time.Time, score float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scores.Add(at, score)
}

// RecordBreak counts a break taken in the current session.
func (e *Engineer) RecordBreak(at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.breaks++
}

// Reset discards every buffer, baseline and the session start.
func (e *Engineer) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clearLocked()
	e.sessionStart = time.Time{}
}

func (e *Engineer) clearLocked() {
	e.activity.Reset()
	e.keyboard.Reset()
	e.mouse.Reset()
	e.blink.Reset()
	e.scores.Reset()
	e.baselineActivity = 0
	e.baselineBlink = 0
	e.breaks = 0
}

// Extract builds the live feature vector for ctx.Now.
// Windows without enough history yield 0 for rate, variance and trend.
func (e *Engineer) Extract(ctx Context) (Vector, error) {
	if ctx.Now.IsZero() {
		return nil, errors.NewValueError("features.Extract", "context time is required")
	}
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	v := make(Vector, LiveDim)
	e.activityFeatures(ctx.Now, v)
	e.eyeFeatures(ctx.Now, v)
	e.temporalFeatures(ctx.Now, v)
	e.sessionFeatures(ctx, v)
	e.historicalFeatures(ctx.Now, v)

	for i, x := range v {
		if !errors.IsFinite(x) {
			v[i] = 0
		}
	}

	if elapsed := time.Since(start); e.budget > 0 && elapsed > e.budget {
		e.logger.Warn("Feature extraction exceeded budget",
			log.OperationKey, log.OperationExtract,
			log.DurationMsKey, float64(elapsed.Microseconds())/1000,
			"budget_ms", float64(e.budget.Microseconds())/1000,
		)
	}
	return v, nil
}

func (e *Engineer) activityFeatures(now time.Time, v Vector) {
	if e.activity.Len() == 0 {
		return
	}
	rate5 := e.activity.Sum(now, 5*time.Minute) / 5
	v[0] = e.activity.Sum(now, time.Minute)
	v[1] = rate5
	v[2] = e.activity.Sum(now, 15*time.Minute) / 15
	v[3] = e.keyboard.Sum(now, 5*time.Minute) / 5
	v[4] = e.mouse.Sum(now, 5*time.Minute) / 5

	bins := e.minuteBins(now, 5)
	v[5] = popVariance(bins)
	xs := make([]float64, len(bins))
	for i := range xs {
		xs[i] = float64(i)
	}
	v[6] = slope(xs, bins)

	if e.baselineActivity == 0 && rate5 > 0 {
		e.baselineActivity = rate5
	}
	v[7] = declineRatio(e.baselineActivity, rate5)
}

// minuteBins returns per-minute event counts, oldest first, covering at most
// n minutes and never reaching before the first retained sample.
func (e *Engineer) minuteBins(now time.Time, n int) []float64 {
	first, ok := e.activity.First()
	if !ok {
		return nil
	}
	span := int(math.Ceil(now.Sub(first).Minutes()))
	if span < 1 {
		span = 1
	}
	if span > n {
		span = n
	}
	bins := make([]float64, span)
	for i := 0; i < span; i++ {
		end := now.Add(-time.Duration(span-1-i) * time.Minute)
		bins[i] = e.activity.Sum(end, time.Minute)
	}
	return bins
}

func (e *Engineer) eyeFeatures(now time.Time, v Vector) {
	if len(e.blink.Values(now)) == 0 {
		return
	}
	current, _ := e.blink.Last()
	v[8] = current
	v[9] = e.blink.Mean(now)
	v[10] = e.blink.Variance(now)
	v[11] = e.blink.Slope(now)
	switch {
	case current < 10:
		v[12] = 1.0
	case current < 15:
		v[12] = 0.5
	}
	v[13] = declineRatio(e.baselineBlink, current)
}

func (e *Engineer) temporalFeatures(now time.Time, v Vector) {
	hour := float64(now.Hour()) + float64(now.Minute())/60
	v[14] = math.Sin(2 * math.Pi * hour / 24)
	v[15] = math.Cos(2 * math.Pi * hour / 24)

	weekday := (int(now.Weekday()) + 6) % 7 // Monday=0
	v[16] = float64(weekday) / 6
	if weekday >= 5 {
		v[17] = 1
	}

	switch h := now.Hour(); {
	case h >= 6 && h < 12:
		v[18] = 0
	case h >= 12 && h < 18:
		v[18] = 0.33
	case h >= 18 && h < 22:
		v[18] = 0.66
	default:
		v[18] = 1
	}

	if !e.sessionStart.IsZero() {
		v[19] = math.Min(now.Sub(e.sessionStart).Hours()/4, 1)
	}
}

func (e *Engineer) sessionFeatures(ctx Context, v Vector) {
	v[20] = ctx.SessionDuration.Minutes()
	v[21] = ctx.SinceBreak.Minutes()
	if !e.sessionStart.IsZero() {
		v[22] = errors.SafeDivide(float64(e.breaks), ctx.Now.Sub(e.sessionStart).Hours())
	}
}

func (e *Engineer) historicalFeatures(now time.Time, v Vector) {
	if e.scores.Len() == 0 {
		return
	}
	v[23], _ = e.scores.Closest(now.Add(-5 * time.Minute))
	v[24], _ = e.scores.Closest(now.Add(-15 * time.Minute))
	v[25] = e.scores.Mean(now)
	v[26] = e.scores.Slope(now)
	v[27] = e.scores.Variance(now)
}

// declineRatio is the relative drop of recent against earlier, 0 when
// earlier is 0 or the rate did not drop. The sign is (earlier-recent) on
// purpose so that a falling rate, the fatigue signal, is positive.
func declineRatio(earlier, recent float64) float64 {
	if earlier <= 0 {
		return 0
	}
	return math.Max(0, (earlier-recent)/earlier)
}
