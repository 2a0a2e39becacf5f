package rules

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/fatigo/pkg/errors"
	"github.com/YuminosukeSato/fatigo/pkg/log"
)

func at(hour int) time.Time {
	return time.Date(2026, 3, 4, hour, 30, 0, 0, time.UTC)
}

func newTestAnalyzer() *Analyzer {
	logger, _ := log.NewTestLogger(log.LevelDebug)
	return NewAnalyzer(WithLogger(logger))
}

func TestScoreFreshSession(t *testing.T) {
	a := newTestAnalyzer()
	res, err := a.Score(Input{Now: at(12), ActivityRate: 40})
	require.NoError(t, err)
	assert.Zero(t, res.Score)
	assert.Equal(t, 40.0, a.Baseline())
	assert.Equal(t, 1.0, res.Factors[FactorTimeOfDay])
}

func TestScoreFormula(t *testing.T) {
	a := newTestAnalyzer()
	_, err := a.Score(Input{Now: at(12), ActivityRate: 40})
	require.NoError(t, err)

	res, err := a.Score(Input{
		Now:          at(15),
		WorkDuration: 120 * time.Minute,
		ActivityRate: 20,
		SinceBreak:   30 * time.Minute,
		HasBlink:     true,
		BlinkRate:    8,
	})
	require.NoError(t, err)

	assert.InDelta(t, 35, res.Factors[FactorTimeBased], 1e-9)
	assert.InDelta(t, 15, res.Factors[FactorActivityDecline], 1e-9)
	assert.InDelta(t, 10, res.Factors[FactorBreakRecency], 1e-9)
	assert.InDelta(t, 7.5, res.Factors[FactorSessionDuration], 1e-9)
	assert.Equal(t, 20.0, res.Factors[FactorEyeStrain])
	assert.Equal(t, 8.0, res.Factors[FactorBlinkRate])
	// (35+15+10+7.5+20) * 1.1
	assert.InDelta(t, 96.25, res.Score, 1e-9)
}

func TestScoreClampsAndBreakHalves(t *testing.T) {
	a := newTestAnalyzer()
	_, err := a.Score(Input{Now: at(22), ActivityRate: 50})
	require.NoError(t, err)

	heavy := Input{
		Now:          at(22),
		WorkDuration: 5 * time.Hour,
		ActivityRate: 1,
		SinceBreak:   2 * time.Hour,
		HasBlink:     true,
		BlinkRate:    3,
	}
	res, err := a.Score(heavy)
	require.NoError(t, err)
	assert.Equal(t, 100.0, res.Score)

	heavy.OnBreak = true
	res, err = a.Score(heavy)
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Factors[FactorOnBreak])
	// (35+29.4+20+15+25) * 1.3 * 0.5
	assert.InDelta(t, 80.86, res.Score, 1e-9)

	heavy.Now = at(10)
	res, err = a.Score(heavy)
	require.NoError(t, err)
	// (35+29.4+20+15+25) * 0.8 * 0.5
	assert.InDelta(t, 49.76, res.Score, 1e-9)
}

func TestScoreWithoutBlinkSource(t *testing.T) {
	a := newTestAnalyzer()
	res, err := a.Score(Input{Now: at(12), ActivityRate: 10, BlinkRate: 2})
	require.NoError(t, err)
	assert.Zero(t, res.Factors[FactorEyeStrain])
	_, ok := res.Factors[FactorBlinkRate]
	assert.False(t, ok)
}

func TestScoreRejectsInvalidInput(t *testing.T) {
	a := newTestAnalyzer()
	for _, in := range []Input{
		{Now: at(12), ActivityRate: math.NaN()},
		{Now: at(12), ActivityRate: math.Inf(1)},
		{Now: at(12), ActivityRate: -1},
		{Now: at(12), SinceBreak: -time.Minute},
		{Now: at(12), HasBlink: true, BlinkRate: math.NaN()},
	} {
		_, err := a.Score(in)
		assert.True(t, errors.Is(err, errors.ErrInvalidInput), "%+v", in)
	}
	assert.Zero(t, a.Baseline())
}

func TestBlinkPointsAndTimeOfDay(t *testing.T) {
	assert.Equal(t, 25.0, BlinkPoints(4.9))
	assert.Equal(t, 20.0, BlinkPoints(5))
	assert.Equal(t, 10.0, BlinkPoints(14.9))
	assert.Equal(t, 0.0, BlinkPoints(15))

	cases := map[int]float64{0: 1.3, 5: 1.3, 6: 0.9, 9: 0.8, 12: 1.0, 14: 1.1, 16: 1.2, 19: 1.2, 20: 1.3}
	for h, want := range cases {
		assert.Equal(t, want, TimeOfDayFactor(h), "hour %d", h)
	}
}

func TestTrend(t *testing.T) {
	a := newTestAnalyzer()
	assert.Equal(t, TrendInsufficientData, a.Trend())

	in := Input{Now: at(12), ActivityRate: 30}
	for i := 0; i < 5; i++ {
		in.WorkDuration = time.Duration(i*30) * time.Minute
		_, err := a.Score(in)
		require.NoError(t, err)
	}
	assert.Equal(t, TrendIncreasing, a.Trend())

	a.Reset()
	assert.Equal(t, TrendInsufficientData, a.Trend())
	assert.Zero(t, a.Baseline())
}

func TestStartSessionResetsBaseline(t *testing.T) {
	a := newTestAnalyzer()
	_, err := a.Score(Input{Now: at(12), ActivityRate: 30})
	require.NoError(t, err)
	a.StartSession()
	assert.Zero(t, a.Baseline())
}
