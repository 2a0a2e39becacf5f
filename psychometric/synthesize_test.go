package psychometric

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/YuminosukeSato/fatigo/features"
)

func TestSynthesizeTLXIsDeterministic(t *testing.T) {
	rec := Record{Schema: SchemaNASATLX, MentalDemand: 80, PhysicalDemand: 20, TemporalDemand: 70, Performance: 40, Effort: 75, Frustration: 60, FatigueScore: 72}
	a := SynthesizeFeatures(rec)
	b := SynthesizeFeatures(rec)
	assert.Equal(t, a, b)
	assert.Len(t, a, features.ExtendedDim)

	idx := features.SpaceExtended.Index
	assert.InDelta(t, 26, a[idx("activity_rate_1min")], 1e-9)
	assert.Equal(t, 80.0, a[idx("psy_mental_demand")])
	assert.InDelta(t, 57.5, a[idx("psy_overall")], 1e-9)
	for _, name := range []string{"fatigue_5min_ago", "fatigue_avg_1hour", "fatigue_variance"} {
		assert.Zero(t, a[idx(name)])
	}
}

func TestSynthesizeBlinkFollowsWorkload(t *testing.T) {
	idx := features.SpaceExtended.Index("blink_rate")
	low := SynthesizeFeatures(Record{Schema: SchemaNASATLX, MentalDemand: 10, TemporalDemand: 10})
	high := SynthesizeFeatures(Record{Schema: SchemaNASATLX, MentalDemand: 95, TemporalDemand: 95})
	assert.Greater(t, low[idx], high[idx], "higher demand lowers blink rate")
	assert.GreaterOrEqual(t, high[idx], 5.0)
}

func TestSynthesizeActivityRisesWithMentalDemand(t *testing.T) {
	idx := features.SpaceExtended.Index("activity_rate_1min")
	low := SynthesizeFeatures(Record{Schema: SchemaNASATLX, MentalDemand: 10})
	high := SynthesizeFeatures(Record{Schema: SchemaNASATLX, MentalDemand: 90})
	assert.InDelta(t, 12, low[idx], 1e-9)
	assert.InDelta(t, 28, high[idx], 1e-9)
}

func TestSynthesizeCFQ(t *testing.T) {
	rec := Record{Schema: SchemaCFQ, PhysicalFatigue: 21, PsychologicalFatigue: 0, TotalScore: 33, TotalScale: 33}
	v := SynthesizeFeatures(rec)
	assert.Len(t, v, features.ExtendedDim)
	assert.InDelta(t, 10, v[0], 1e-9)
	assert.InDelta(t, 100, v[features.LiveDim], 1e-9)
	assert.Equal(t, 100.0, v[features.LiveDim+3], "ratio is capped")
	assert.Zero(t, v[features.LiveDim+4])
}
