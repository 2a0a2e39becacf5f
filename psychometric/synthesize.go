package psychometric

import (
	"math"

	"github.com/YuminosukeSato/fatigo/features"
)

// Fixed reference context for synthesized vectors: a weekday afternoon.
const (
	refHour      = 14.0
	refWeekday   = 2.0 // Wednesday, Monday=0
	refDayBucket = 0.33
)

// SynthesizeFeatures maps an assessment record onto the extended feature
// space: 28 activity and eye analogues followed by 7 psychometric entries.
// The mapping is deterministic.
func SynthesizeFeatures(rec Record) features.Vector {
	var v features.Vector
	switch rec.Schema {
	case SchemaCFQ:
		v = synthesizeCFQ(rec)
	default:
		v = synthesizeTLX(rec)
	}
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			v[i] = 0
		}
	}
	return v
}

func synthesizeTLX(rec Record) features.Vector {
	mental := rec.MentalDemand / 100
	physical := rec.PhysicalDemand / 100
	temporal := rec.TemporalDemand / 100
	performance := rec.Performance / 100
	effort := rec.Effort / 100
	frustration := rec.Frustration / 100

	v := make(features.Vector, features.ExtendedDim)

	// 精神的要求が高いほど操作量が多い
	v[0] = 10 + mental*20
	v[1] = v[0] * 0.9
	v[2] = v[1] * 0.85
	v[3] = mental * 15
	v[4] = (mental*0.5 + physical*0.5) * 10
	v[5] = frustration * 5
	v[6] = -(1 - performance) * 0.5
	v[7] = clamp(effort*0.7-performance*0.3, 0, 1)

	// 精神的・時間的要求が高いほど瞬きが減る
	blink := clamp(15-(mental+temporal)*7, 5, 20)
	v[8] = blink
	v[9] = blink * 0.95
	v[10] = frustration * 2
	v[11] = -(mental + temporal) * 0.3
	v[12] = strainLevel(blink)
	v[13] = (mental + temporal) / 2 * 0.5

	referenceTime(v)
	v[19] = temporal * 0.8

	v[20] = 30 + temporal*90
	v[21] = effort * 60
	v[22] = (1 - temporal) * 5

	psy := v[features.LiveDim:]
	psy[0] = rec.MentalDemand
	psy[1] = rec.PhysicalDemand
	psy[2] = rec.TemporalDemand
	psy[3] = rec.Performance
	psy[4] = rec.Effort
	psy[5] = rec.Frustration
	psy[6] = (rec.MentalDemand + rec.PhysicalDemand + rec.TemporalDemand +
		rec.Performance + rec.Effort + rec.Frustration) / 6
	return v
}

func synthesizeCFQ(rec Record) features.Vector {
	scale := rec.TotalScale
	if scale <= 0 {
		scale = 33
	}
	fatigue := clamp(rec.TotalScore/scale, 0, 1)
	normalized := fatigue * 100

	v := make(features.Vector, features.ExtendedDim)

	// 疲労が高いほど操作量が少ない
	v[0] = 25 - fatigue*15
	v[1] = v[0] * 0.95
	v[2] = v[1] * 0.9
	v[3] = (1 - rec.PsychologicalFatigue/12) * 15
	v[4] = (1 - rec.PhysicalFatigue/21) * 10
	v[5] = fatigue * 3
	v[6] = -fatigue * 0.5
	v[7] = fatigue * 0.7

	blink := clamp(15-rec.PsychologicalFatigue/12*7, 5, 20)
	v[8] = blink
	v[9] = blink * 0.98
	v[10] = fatigue * 2
	v[11] = -fatigue * 0.3
	v[12] = strainLevel(blink)
	v[13] = fatigue * 0.5

	referenceTime(v)
	v[19] = fatigue * 0.8

	v[20] = 60 + fatigue*60
	v[21] = fatigue * 50
	v[22] = (1 - fatigue) * 4

	psy := v[features.LiveDim:]
	psy[0] = rec.PhysicalFatigue * 100 / 21
	psy[1] = rec.PsychologicalFatigue * 100 / 12
	psy[2] = normalized
	psy[3] = clamp(rec.PhysicalFatigue/(rec.PsychologicalFatigue+1e-6)*10, 0, 100)
	psy[6] = normalized
	return v
}

func referenceTime(v features.Vector) {
	v[14] = math.Sin(2 * math.Pi * refHour / 24)
	v[15] = math.Cos(2 * math.Pi * refHour / 24)
	v[16] = refWeekday / 6
	v[17] = 0
	v[18] = refDayBucket
}

// strainLevel applies the live eye-strain thresholds.
func strainLevel(blink float64) float64 {
	switch {
	case blink < 10:
		return 1
	case blink < 15:
		return 0.5
	default:
		return 0
	}
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
