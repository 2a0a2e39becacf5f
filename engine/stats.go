package engine

import (
	"time"

	"github.com/YuminosukeSato/fatigo/ensemble"
	"github.com/YuminosukeSato/fatigo/modelstore"
	"github.com/YuminosukeSato/fatigo/personalization"
)

// topFeatureCount is the number of features listed in Stats.
const topFeatureCount = 5

// ModelStats is the model part of Stats.
type ModelStats struct {
	Performance ensemble.Performance     `json:"performance"`
	Storage     modelstore.TrainingStats `json:"storage"`
	StorageErr  string                   `json:"storage_error,omitempty"`
}

// DegradedStats counts ML-path failures since start or reset.
type DegradedStats struct {
	Count      int       `json:"count"`
	LastReason string    `json:"last_reason,omitempty"`
	LastAt     time.Time `json:"last_at,omitempty"`
	Startup    []string  `json:"startup,omitempty"`
}

// Stats is the observability view of the engine.
type Stats struct {
	FeatureSpace    string                   `json:"feature_space"`
	Model           ModelStats               `json:"model"`
	Personalization personalization.Stats    `json:"personalization"`
	TopFeatures     []ensemble.FeatureScore  `json:"top_features"`
	Versions        []modelstore.VersionInfo `json:"versions"`
	RuleTrend       string                   `json:"rule_trend"`
	SessionTicks    int                      `json:"session_ticks"`
	Degraded        DegradedStats            `json:"degraded"`
}

// Stats gathers model, personalization and storage state.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Stats{
		FeatureSpace:    e.space.String(),
		Model:           ModelStats{Performance: e.predictor.Performance()},
		Personalization: e.profile.Stats(),
		TopFeatures:     e.predictor.TopFeatures(topFeatureCount),
		RuleTrend:       e.rules.Trend(),
		SessionTicks:    len(e.session.points),
		Degraded: DegradedStats{
			Count:      e.degraded.count,
			LastReason: e.degraded.last,
			LastAt:     e.degraded.at,
		},
	}
	for _, err := range e.startup {
		st.Degraded.Startup = append(st.Degraded.Startup, err.Error())
	}

	storage, err := e.store.TrainingStats()
	if err != nil {
		st.Model.StorageErr = err.Error()
	}
	st.Model.Storage = storage
	if versions, err := e.store.ListVersions(); err == nil {
		st.Versions = versions
	} else if st.Model.StorageErr == "" {
		st.Model.StorageErr = err.Error()
	}
	return st
}
