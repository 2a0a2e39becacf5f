package engine

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/fatigo/config"
	"github.com/YuminosukeSato/fatigo/features"
	"github.com/YuminosukeSato/fatigo/personalization"
	"github.com/YuminosukeSato/fatigo/pkg/errors"
	"github.com/YuminosukeSato/fatigo/pkg/log"
)

var day0 = time.Date(2026, 3, 2, 13, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, cfg config.Config) (*Engine, *log.TestLogger) {
	t.Helper()
	logger, _ := log.NewTestLogger(log.LevelDebug)
	e, err := New(cfg, WithLogger(logger), WithClock(func() time.Time { return day0 }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e, logger
}

// tick builds a context k*5 minutes into a session starting at start.
func tick(start time.Time, k int) SessionContext {
	elapsed := time.Duration(k*5) * time.Minute
	return SessionContext{
		Now:             start.Add(elapsed),
		SessionDuration: elapsed,
		SinceBreak:      elapsed,
		Keyboard:        20,
		Mouse:           10,
		ActivityRate:    30,
	}
}

// runSession scores n ticks and trains on them.
func runSession(t *testing.T, e *Engine, start time.Time, n int) TrainingStats {
	t.Helper()
	e.StartSession(start)
	for k := 0; k < n; k++ {
		s := e.CalculateScore(tick(start, k))
		require.GreaterOrEqual(t, s.Value, 0.0)
		require.LessOrEqual(t, s.Value, 100.0)
	}
	st, err := e.Train(nil)
	require.NoError(t, err)
	return st
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.WithDataDir(t.TempDir())
	cfg.MinSamples = 0
	_, err := New(cfg)
	var verr *errors.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestColdStartUsesRules(t *testing.T) {
	e, _ := newTestEngine(t, config.WithDataDir(t.TempDir()))
	e.StartSession(day0)

	s := e.CalculateScore(tick(day0, 6))
	assert.Equal(t, PathRuleBased, s.Factors.Path)
	assert.Zero(t, s.Factors.MLWeight)
	assert.False(t, s.Factors.MLReady)
	assert.Equal(t, s.Factors.RuleScore, s.Value)
	assert.Equal(t, string(personalization.StageColdStart), s.Factors.Stage)
	assert.Empty(t, s.Factors.Degraded)
	assert.NotEmpty(t, s.Factors.RuleFactors)
}

func TestNeutralWhenNothingUsable(t *testing.T) {
	e, _ := newTestEngine(t, config.WithDataDir(t.TempDir()))
	ctx := tick(day0, 1)
	ctx.ActivityRate = math.NaN()

	s := e.CalculateScore(ctx)
	assert.Equal(t, PathNeutral, s.Factors.Path)
	assert.Equal(t, 50.0, s.Value)
	assert.Equal(t, personalization.LevelModerate, s.Level)
}

func TestMLOnlyWhenRulesInvalid(t *testing.T) {
	e, _ := newTestEngine(t, config.WithDataDir(t.TempDir()))
	st := runSession(t, e, day0, 24)
	require.True(t, st.Ready)

	e.StartSession(day0.Add(24 * time.Hour))
	ctx := tick(day0.Add(24*time.Hour), 3)
	ctx.ActivityRate = -1
	s := e.CalculateScore(ctx)
	assert.Equal(t, PathML, s.Factors.Path)
	assert.Equal(t, 1.0, s.Factors.MLWeight)
	assert.Equal(t, s.Factors.MLScore, s.Value)
	assert.True(t, s.Factors.MLReady)
}

func TestHybridAfterFiveSessions(t *testing.T) {
	e, _ := newTestEngine(t, config.WithDataDir(t.TempDir()))
	for d := 0; d < 6; d++ {
		runSession(t, e, day0.AddDate(0, 0, d), 12)
	}

	start := day0.AddDate(0, 0, 6)
	e.StartSession(start)
	s := e.CalculateScore(tick(start, 4))
	require.Equal(t, PathHybrid, s.Factors.Path)
	assert.Equal(t, 0.30, s.Factors.MLWeight)
	want := errors.ClipValue(0.3*s.Factors.MLScore+0.7*s.Factors.RuleScore, 0, 100)
	assert.InDelta(t, want, s.Value, 1e-9)
	assert.Equal(t, string(personalization.StageInitialLearning), s.Factors.Stage)
}

func TestFeedbackErrorIsMeasuredAgainstMLScore(t *testing.T) {
	e, _ := newTestEngine(t, config.WithDataDir(t.TempDir()))
	runSession(t, e, day0, 12)

	start := day0.AddDate(0, 0, 1)
	e.StartSession(start)
	var last FatigueScore
	for k := 0; k < 4; k++ {
		last = e.CalculateScore(tick(start, k))
	}
	require.True(t, last.Factors.MLReady)
	require.Equal(t, PathRuleBased, last.Factors.Path)

	fb := 90.0
	_, err := e.Train(&fb)
	require.NoError(t, err)

	perf := e.Stats().Model.Performance
	assert.InDelta(t, math.Abs(last.Factors.MLScore-fb), perf.RecentMAE, 1e-9)
}

func TestTrainGrowsSamplesAndSaves(t *testing.T) {
	e, _ := newTestEngine(t, config.WithDataDir(t.TempDir()))

	st := runSession(t, e, day0, 8)
	assert.Equal(t, 8, st.SampleCount)
	assert.Equal(t, 8, st.Trained)
	assert.Equal(t, 1, st.SavedVersion)
	assert.Equal(t, 1, st.Sessions)
	assert.False(t, st.Ready)

	st = runSession(t, e, day0.AddDate(0, 0, 1), 8)
	assert.Equal(t, 16, st.SampleCount)
	assert.Equal(t, 2, st.SavedVersion)
	assert.True(t, st.Ready)

	versions, err := e.Versions()
	require.NoError(t, err)
	assert.Len(t, versions, 2)
}

func TestTrainWithFeedback(t *testing.T) {
	e, _ := newTestEngine(t, config.WithDataDir(t.TempDir()))
	runSession(t, e, day0, 12)

	start := day0.AddDate(0, 0, 1)
	e.StartSession(start)
	for k := 0; k < 4; k++ {
		e.CalculateScore(tick(start, k))
	}
	fb := 90.0
	st, err := e.Train(&fb)
	require.NoError(t, err)
	assert.Equal(t, 16, st.SampleCount)

	stats := e.Stats()
	assert.Equal(t, 1, stats.Personalization.Feedback.Total)
	assert.Equal(t, 1, stats.Personalization.Feedback.Corrections)

	bad := 150.0
	_, err = e.Train(&bad)
	var verr *errors.ValidationError
	assert.True(t, errors.As(err, &verr))
}

const tlxDataset = `participant_id,timestamp,mental_demand,physical_demand,temporal_demand,performance,effort,frustration,fatigue_score
p1,2026-03-02T10:00:00Z,75,30,60,80,70,40,65
p1,2026-03-02T11:00:00Z,60,10,50,60,55,30,48
p2,2026-03-02T12:00:00Z,30,10,20,80,35,10,22
`

func writeDataset(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cogbeacon_nasatlx_multimodal.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestTrainFromExternalDataset(t *testing.T) {
	e, _ := newTestEngine(t, config.WithDataDir(t.TempDir()))
	runSession(t, e, day0, 5)

	st, err := e.TrainFromExternalDataset(writeDataset(t, tlxDataset))
	require.NoError(t, err)
	assert.Equal(t, 3, st.Trained)
	assert.Equal(t, 8, st.SampleCount)
	require.NotNil(t, st.Dataset)
	assert.Equal(t, 3, st.Dataset.Samples)
	assert.Equal(t, 2, st.Dataset.Participants)
	assert.Equal(t, features.ExtendedDim, e.predictor.NFeatures())

	_, err = e.TrainFromExternalDataset(writeDataset(t, "mental_demand,fatigue_score\n10,10\n"))
	var derr *errors.DatasetError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, 8, e.predictor.SampleCount())
}

func TestLiveSpaceRejectsDatasets(t *testing.T) {
	cfg := config.WithDataDir(t.TempDir())
	cfg.FeatureSpace = "live"
	e, _ := newTestEngine(t, cfg)

	_, err := e.TrainFromExternalDataset(writeDataset(t, tlxDataset))
	var serr *errors.SchemaMismatchError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, features.LiveDim, e.predictor.NFeatures())

	e.StartSession(day0)
	s := e.CalculateScore(tick(day0, 2))
	assert.Equal(t, PathRuleBased, s.Factors.Path)
}

func TestSaveLoadReproducesPredictions(t *testing.T) {
	dir := t.TempDir()
	cfg := config.WithDataDir(dir)
	e, _ := newTestEngine(t, cfg)
	runSession(t, e, day0, 24)

	probe := make([]float64, features.ExtendedDim)
	for i := range probe {
		probe[i] = float64(i%7) * 1.5
	}
	before, _, err := e.predictor.Predict(probe)
	require.NoError(t, err)
	require.NoError(t, e.Close())

	reopened, _ := newTestEngine(t, cfg)
	assert.Empty(t, reopened.StartupErrors())
	after, _, err := reopened.predictor.Predict(probe)
	require.NoError(t, err)
	assert.InDelta(t, before, after, 1e-9)
}

func TestTruncatedModelFallsBackToRules(t *testing.T) {
	dir := t.TempDir()
	cfg := config.WithDataDir(dir)
	e, _ := newTestEngine(t, cfg)
	runSession(t, e, day0, 24)
	require.NoError(t, e.Close())

	current := filepath.Join(cfg.ModelDir, "current.gob")
	info, err := os.Stat(current)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(current, info.Size()/2))

	reopened, logger := newTestEngine(t, cfg)
	errs := reopened.StartupErrors()
	require.Len(t, errs, 1)
	var cerr *errors.CorruptStateError
	assert.True(t, errors.As(errs[0], &cerr))
	assert.Zero(t, reopened.predictor.SampleCount())
	assert.True(t, logger.ContainsMessage("Model load failed, starting cold"))

	start := day0.AddDate(0, 0, 1)
	reopened.StartSession(start)
	s := reopened.CalculateScore(tick(start, 6))
	assert.Equal(t, PathRuleBased, s.Factors.Path)
	assert.GreaterOrEqual(t, s.Value, 0.0)
	assert.LessOrEqual(t, s.Value, 100.0)
	assert.NotEmpty(t, reopened.Stats().Degraded.Startup)
}

func TestRollbackIdempotent(t *testing.T) {
	e, _ := newTestEngine(t, config.WithDataDir(t.TempDir()))
	runSession(t, e, day0, 12)
	runSession(t, e, day0.AddDate(0, 0, 1), 12)
	require.Equal(t, 24, e.predictor.SampleCount())

	require.NoError(t, e.Rollback(1))
	once := e.predictor.SampleCount()
	onceVersions, err := e.Versions()
	require.NoError(t, err)

	require.NoError(t, e.Rollback(1))
	assert.Equal(t, once, e.predictor.SampleCount())
	assert.Equal(t, 12, once)
	twiceVersions, err := e.Versions()
	require.NoError(t, err)
	assert.Equal(t, onceVersions, twiceVersions)

	err = e.Rollback(42)
	assert.True(t, errors.Is(err, errors.ErrVersionNotFound))
}

func TestThirtySessionsReachCeiling(t *testing.T) {
	e, _ := newTestEngine(t, config.WithDataDir(t.TempDir()))
	for d := 0; d < 30; d++ {
		runSession(t, e, day0.AddDate(0, 0, d), 24)
	}

	st := e.Stats()
	assert.Equal(t, 30, st.Personalization.Sessions)
	assert.Equal(t, 0.85, st.Personalization.MLWeight)
	assert.Equal(t, personalization.StagePersonalized, st.Personalization.Stage)
	assert.Len(t, st.TopFeatures, 5)
	assert.Equal(t, 720, st.Model.Performance.Samples)

	bins := st.Personalization.Progression
	require.Len(t, bins, 8)
	for i := 1; i < len(bins); i++ {
		assert.GreaterOrEqual(t, bins[i], bins[i-1], "bin %d", i)
	}
	assert.Greater(t, bins[len(bins)-1], bins[0])
}

func TestReset(t *testing.T) {
	dir := t.TempDir()
	cfg := config.WithDataDir(dir)
	e, _ := newTestEngine(t, cfg)
	runSession(t, e, day0, 12)

	require.NoError(t, e.Reset())
	st := e.Stats()
	assert.Zero(t, st.Model.Performance.Samples)
	assert.Zero(t, st.Personalization.Sessions)
	assert.Empty(t, st.Versions)
	assert.NoFileExists(t, cfg.ProfilePath)
	assert.NoFileExists(t, filepath.Join(cfg.ModelDir, "current.gob"))

	e.StartSession(day0)
	s := e.CalculateScore(tick(day0, 1))
	assert.Equal(t, PathRuleBased, s.Factors.Path)
}

func TestRecordActionTookBreak(t *testing.T) {
	e, _ := newTestEngine(t, config.WithDataDir(t.TempDir()))
	e.StartSession(day0)
	e.CalculateScore(tick(day0, 2))

	require.NoError(t, e.RecordAction(personalization.FeedbackTookBreak))
	assert.Error(t, e.RecordAction("shrug"))
	assert.Equal(t, 1, e.Stats().Personalization.Feedback.Total)
}

func TestRecordActionFlagsSensitivity(t *testing.T) {
	e, logger := newTestEngine(t, config.WithDataDir(t.TempDir()))
	e.StartSession(day0)
	score := e.CalculateScore(tick(day0, 2))
	require.Less(t, score.Value, 40.0)

	// 低スコアでの休憩は閾値と矛盾しない
	require.NoError(t, e.RecordAction(personalization.FeedbackTookBreak))
	assert.Zero(t, e.Stats().Personalization.Feedback.SensitivitySignals)
	assert.False(t, logger.ContainsMessage("User action suggests adjusting alert sensitivity"))

	require.NoError(t, e.RecordAction(personalization.FeedbackDismissedAlert))
	assert.Equal(t, 1, e.Stats().Personalization.Feedback.SensitivitySignals)
	assert.True(t, logger.ContainsMessage("User action suggests adjusting alert sensitivity"))
}
