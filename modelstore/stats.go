package modelstore

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Trend labels for TrainingStats.
const (
	TrendImproving        = "improving"
	TrendStable           = "stable"
	TrendDegrading        = "degrading"
	TrendInsufficientData = "insufficient_data"
)

// trendWindow is the number of latest versions compared for the trend.
const trendWindow = 3

// trendTolerance is the relative MAE change treated as stable.
const trendTolerance = 0.05

// TrainingStats summarizes the save history.
type TrainingStats struct {
	TotalVersions     int     `json:"total_versions"`
	CurrentVersion    int     `json:"current_version"`
	RetainedVersions  int     `json:"retained_versions"`
	LatestSampleCount int     `json:"latest_sample_count"`
	AverageMAE        float64 `json:"average_mae"`
	AverageRMSE       float64 `json:"average_rmse"`
	AverageR2         float64 `json:"average_r2"`
	BestMAE           float64 `json:"best_mae"`
	BestVersion       int     `json:"best_version"`
	Trend             string  `json:"trend"`
}

// TrainingStats aggregates metrics over every recorded version.
func (s *Store) TrainingStats() (TrainingStats, error) {
	versions, err := s.ListVersions()
	if err != nil {
		return TrainingStats{}, err
	}
	out := TrainingStats{TotalVersions: len(versions), Trend: TrendInsufficientData}
	if len(versions) == 0 {
		return out, nil
	}

	mae := make([]float64, len(versions))
	rmse := make([]float64, len(versions))
	r2 := make([]float64, len(versions))
	for i, v := range versions {
		mae[i], rmse[i], r2[i] = v.MAE, v.RMSE, v.R2
		if v.Current {
			out.CurrentVersion = v.Version
		}
		if v.Available {
			out.RetainedVersions++
		}
	}
	last := versions[len(versions)-1]
	out.LatestSampleCount = last.SampleCount
	out.AverageMAE = stat.Mean(mae, nil)
	out.AverageRMSE = stat.Mean(rmse, nil)
	out.AverageR2 = stat.Mean(r2, nil)
	best := floats.MinIdx(mae)
	out.BestMAE = mae[best]
	out.BestVersion = versions[best].Version
	out.Trend = trend(mae)
	return out, nil
}

// trend compares the MAE of the oldest and newest of the latest versions.
// Lower MAE is better.
func trend(mae []float64) string {
	if len(mae) < trendWindow {
		return TrendInsufficientData
	}
	recent := mae[len(mae)-trendWindow:]
	first, last := recent[0], recent[len(recent)-1]
	if first == 0 {
		if last == 0 {
			return TrendStable
		}
		return TrendDegrading
	}
	change := (last - first) / first
	switch {
	case change < -trendTolerance:
		return TrendImproving
	case change > trendTolerance:
		return TrendDegrading
	default:
		return TrendStable
	}
}
