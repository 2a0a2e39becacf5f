package ensemble

import (
	"bytes"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/fatigo/core/model"
	"github.com/YuminosukeSato/fatigo/pkg/errors"
	"github.com/YuminosukeSato/fatigo/pkg/log"
)

var testNames = []string{"load", "duration", "noise", "blink"}

func newTestPredictor(opts ...Option) *Predictor {
	logger, _ := log.NewTestLogger(log.LevelDebug)
	return New(testNames, append([]Option{WithLogger(logger)}, opts...)...)
}

// linearSamples draws y = 20 + 12*load + 4*duration on [0,4]^4.
func linearSamples(seed int64, n int) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := range X {
		x := []float64{rng.Float64() * 4, rng.Float64() * 4, rng.Float64() * 4, 10 + rng.Float64()*10}
		X[i] = x
		y[i] = 20 + 12*x[0] + 4*x[1]
	}
	return X, y
}

func TestColdStartReturnsNeutral(t *testing.T) {
	p := newTestPredictor()
	X, y := linearSamples(1, 9)

	score, conf, err := p.Predict(X[0])
	require.NoError(t, err)
	assert.Equal(t, 50.0, score)
	assert.Zero(t, conf)

	for i := range X {
		require.NoError(t, p.PartialFit(X[i], y[i]))
	}
	score, conf, err = p.Predict(X[0])
	require.NoError(t, err)
	assert.Equal(t, 50.0, score)
	assert.Zero(t, conf)
	assert.False(t, p.Ready())
}

func TestPredictRejectsWrongDimension(t *testing.T) {
	p := newTestPredictor()
	_, _, err := p.Predict([]float64{1, 2})
	var derr *errors.DimensionError
	require.True(t, errors.As(err, &derr))

	err = p.PartialFit([]float64{1, 2, 3, 4, 5}, 10)
	require.True(t, errors.As(err, &derr))
	assert.Zero(t, p.SampleCount())
}

func TestLearnsLinearTarget(t *testing.T) {
	p := newTestPredictor()
	X, y := linearSamples(2, 300)
	for i := range X {
		require.NoError(t, p.PartialFit(X[i], y[i]))
	}
	require.True(t, p.Ready())

	testX, testY := linearSamples(3, 50)
	var sumErr float64
	for i := range testX {
		score, conf, err := p.Predict(testX[i])
		require.NoError(t, err)
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 100.0)
		assert.GreaterOrEqual(t, conf, 0.0)
		assert.LessOrEqual(t, conf, 1.0)
		sumErr += math.Abs(score - math.Min(testY[i], 100))
	}
	assert.Less(t, sumErr/50, 10.0)

	perf := p.Performance()
	assert.Equal(t, 300, perf.Samples)
	assert.Equal(t, 3, perf.Refits)
	var total float64
	for _, w := range perf.MemberWeights {
		total += w
	}
	assert.InDelta(t, 1, total, 1e-9)
	assert.Equal(t, 20, perf.Metrics.Samples)
}

func TestConfidenceGrowsWithData(t *testing.T) {
	p := newTestPredictor()
	X, y := linearSamples(4, 150)
	for i := 0; i < 20; i++ {
		require.NoError(t, p.PartialFit(X[i], y[i]))
	}
	_, early, err := p.Predict(X[0])
	require.NoError(t, err)
	assert.LessOrEqual(t, early, 0.2)

	for i := 20; i < 150; i++ {
		require.NoError(t, p.PartialFit(X[i], y[i]))
	}
	_, late, err := p.Predict(X[0])
	require.NoError(t, err)
	assert.Greater(t, late, early)
}

func TestAgreementUsesMemberSpread(t *testing.T) {
	assert.Equal(t, 1.0, agreement([]float64{40, 40}))
	assert.InDelta(t, 0.8, agreement([]float64{40, 50}), 1e-12)
	assert.InDelta(t, 0.5, agreement([]float64{30, 55, 40}), 1e-12)
	assert.Zero(t, agreement([]float64{0, 80}))
	assert.Zero(t, agreement(nil))
}

func TestFullRefitNeedsTwentySamples(t *testing.T) {
	p := newTestPredictor()
	X, y := linearSamples(5, 15)
	for i := range X {
		require.NoError(t, p.PartialFit(X[i], y[i]))
	}
	err := p.FullRefit()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientData))

	X2, y2 := linearSamples(6, 10)
	for i := range X2 {
		require.NoError(t, p.PartialFit(X2[i], y2[i]))
	}
	before := p.Version()
	require.NoError(t, p.FullRefit())
	assert.Equal(t, before+1, p.Version())
}

func TestPartialFitBatchCountsExactly(t *testing.T) {
	p := newTestPredictor()
	X, y := linearSamples(7, 57)
	require.NoError(t, p.PartialFitBatch(X, y, "nasatlx"))
	assert.Equal(t, 57, p.SampleCount())

	bad := append(X[:2:2], []float64{1})
	err := p.PartialFitBatch(bad, y[:3], "nasatlx")
	require.Error(t, err)
	assert.Equal(t, 57, p.SampleCount(), "invalid batch is not partially ingested")
}

func TestSnapshotRoundTripReproducesPredictions(t *testing.T) {
	p := newTestPredictor()
	X, y := linearSamples(8, 130)
	for i := range X {
		require.NoError(t, p.PartialFit(X[i], y[i]))
	}
	snap, err := p.Snapshot()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, model.WriteEnvelope(&buf, model.EnvelopeHeader{SchemaVersion: SnapshotSchemaVersion, NFeatures: len(testNames), Kind: "ensemble"}, snap))
	var decoded Snapshot
	_, err = model.ReadEnvelope(&buf, "test", model.EnvelopeHeader{SchemaVersion: SnapshotSchemaVersion, NFeatures: len(testNames)}, &decoded)
	require.NoError(t, err)

	q := newTestPredictor()
	require.NoError(t, q.Restore(&decoded))
	assert.Equal(t, p.SampleCount(), q.SampleCount())
	assert.Equal(t, p.Version(), q.Version())

	testX, _ := linearSamples(9, 20)
	for _, x := range testX {
		a, ca, err := p.Predict(x)
		require.NoError(t, err)
		b, cb, err := q.Predict(x)
		require.NoError(t, err)
		assert.InDelta(t, a, b, 1e-9)
		assert.InDelta(t, ca, cb, 1e-9)
	}

	// learning continues identically after restore
	require.NoError(t, p.PartialFit(testX[0], 60))
	require.NoError(t, q.PartialFit(testX[0], 60))
	a, _, _ := p.Predict(testX[1])
	b, _, _ := q.Predict(testX[1])
	assert.InDelta(t, a, b, 1e-9)
}

func TestRestoreRejectsFeatureMismatch(t *testing.T) {
	p := newTestPredictor()
	snap := NewSnapshot([]string{"a", "b"})
	err := p.Restore(snap)
	var serr *errors.SchemaMismatchError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "n_features", serr.Field)
}

func TestRestoreRejectsReorderedFeatures(t *testing.T) {
	p := newTestPredictor()
	X, y := linearSamples(3, 30)
	for i := range X {
		require.NoError(t, p.PartialFit(X[i], y[i]))
	}
	snap, err := p.Snapshot()
	require.NoError(t, err)

	logger, _ := log.NewTestLogger(log.LevelDebug)
	q := New([]string{"blink", "noise", "duration", "load"}, WithLogger(logger))
	err = q.Restore(snap)
	var serr *errors.SchemaMismatchError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "feature_names", serr.Field)
	assert.False(t, q.Ready())

	score, conf, err := q.Predict(X[0])
	require.NoError(t, err)
	assert.Equal(t, 50.0, score)
	assert.Zero(t, conf)
}

func TestRecordPredictionErrorTriggersRefit(t *testing.T) {
	p := newTestPredictor()
	X, y := linearSamples(10, 40)
	for i := range X {
		require.NoError(t, p.PartialFit(X[i], y[i]))
	}
	refits := p.Performance().Refits

	var refitted bool
	for i := 0; i < 20; i++ {
		ok, err := p.RecordPredictionError(20, 60)
		require.NoError(t, err)
		refitted = refitted || ok
	}
	assert.True(t, refitted)
	assert.Equal(t, refits+1, p.Performance().Refits)

	ok, err := p.RecordPredictionError(50, 52)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = p.RecordPredictionError(math.NaN(), 1)
	assert.Error(t, err)
}

func TestFeatureImportance(t *testing.T) {
	p := newTestPredictor()
	assert.Nil(t, p.FeatureImportance())

	X, y := linearSamples(11, 200)
	for i := range X {
		require.NoError(t, p.PartialFit(X[i], y[i]))
	}
	imp := p.FeatureImportance()
	require.Len(t, imp, len(testNames))
	var total float64
	for _, v := range imp {
		total += v
	}
	assert.InDelta(t, 1, total, 1e-9)

	top := p.TopFeatures(2)
	require.Len(t, top, 2)
	assert.Equal(t, "load", top[0].Name)
	assert.Equal(t, "duration", top[1].Name)
}

func TestResetReturnsToColdStart(t *testing.T) {
	p := newTestPredictor()
	X, y := linearSamples(12, 30)
	for i := range X {
		require.NoError(t, p.PartialFit(X[i], y[i]))
	}
	p.Reset()
	score, conf, err := p.Predict(X[0])
	require.NoError(t, err)
	assert.Equal(t, 50.0, score)
	assert.Zero(t, conf)
	assert.Zero(t, p.SampleCount())
	assert.Equal(t, 0.5, p.Performance().MemberWeights[MemberSGD])
}

func TestTargetsAreClamped(t *testing.T) {
	p := newTestPredictor(WithMinSamples(1))
	require.NoError(t, p.PartialFit([]float64{1, 1, 1, 1}, 150))
	items := p.ring.Items()
	assert.Equal(t, 100.0, items[0].Y)
	assert.Error(t, p.PartialFit([]float64{1, 1, 1, 1}, math.Inf(1)))
}
