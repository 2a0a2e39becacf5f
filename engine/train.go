package engine

import (
	"github.com/YuminosukeSato/fatigo/ensemble"
	"github.com/YuminosukeSato/fatigo/features"
	"github.com/YuminosukeSato/fatigo/metrics"
	"github.com/YuminosukeSato/fatigo/personalization"
	"github.com/YuminosukeSato/fatigo/pkg/errors"
	"github.com/YuminosukeSato/fatigo/pkg/log"
	"github.com/YuminosukeSato/fatigo/psychometric"
)

// feedbackWeight is the sample weight of an explicit user correction.
const feedbackWeight = 2.0

// TrainingStats reports the outcome of a training call.
type TrainingStats struct {
	SampleCount  int            `json:"sample_count"`
	Trained      int            `json:"trained"`
	ModelVersion int            `json:"model_version"`
	SavedVersion int            `json:"saved_version"`
	Ready        bool           `json:"ready"`
	Metrics      metrics.Report `json:"metrics"`
	DriftRefit   bool           `json:"drift_refit"`
	Sessions     int            `json:"sessions"`

	Dataset *psychometric.Statistics `json:"dataset,omitempty"`
}

// Train learns the current session's ticks with their rule-based scores as
// targets, saves the model and closes the session. An optional feedback
// score overrides the latest target and is logged to the profile.
func (e *Engine) Train(feedback *float64) (TrainingStats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	X := e.session.vectors
	y := append([]float64(nil), e.session.targets...)
	var out TrainingStats

	if feedback != nil {
		fb := *feedback
		if !errors.IsFinite(fb) || fb < 0 || fb > 100 {
			return TrainingStats{}, errors.NewValidationError("feedback", "must be in [0, 100]", fb)
		}
		if _, err := e.profile.RecordFeedback(e.session.last, fb, ""); err != nil {
			e.logger.Warn("Feedback not persisted", err)
		}
		if e.session.hasLastML && e.predictor.Ready() {
			refit, err := e.predictor.RecordPredictionError(e.session.lastML, fb)
			if err != nil {
				e.logger.Warn("Prediction error not recorded", err)
			}
			out.DriftRefit = refit
		}
	}

	if len(X) > 0 {
		live, liveY := X, y
		if feedback != nil {
			live, liveY = X[:len(X)-1], y[:len(y)-1]
		}
		if len(live) > 0 {
			if err := e.predictor.PartialFitBatch(live, liveY, ensemble.SourceLive); err != nil {
				return TrainingStats{}, errors.Wrap(err, "train session")
			}
		}
		if feedback != nil {
			if err := e.predictor.PartialFitWeighted(X[len(X)-1], *feedback, feedbackWeight, ensemble.SourceFeedback); err != nil {
				return TrainingStats{}, errors.Wrap(err, "train feedback")
			}
		}
		out.Trained = len(X)
	}

	saved, err := e.saveLocked()
	if err != nil {
		return TrainingStats{}, err
	}
	out.SavedVersion = saved

	if len(e.session.points) > 0 {
		if err := e.profile.RecordSession(personalization.SessionRecord{
			Start:  e.session.start,
			Points: e.session.points,
		}); err != nil {
			e.logger.Error("Session not persisted", err)
		}
	}
	e.session = session{}
	e.fillTrainingStats(&out)
	return out, nil
}

// TrainFromExternalDataset loads a NASA-TLX or CFQ file, trains on its
// synthesized vectors and saves the model. An invalid file is rejected
// whole and nothing is trained.
func (e *Engine) TrainFromExternalDataset(path string) (TrainingStats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.space != features.SpaceExtended {
		return TrainingStats{}, errors.NewSchemaMismatchError(path, "feature_space", features.SpaceExtended.String(), e.space.String())
	}
	ds, err := e.loader.Load(path)
	if err != nil {
		return TrainingStats{}, err
	}
	X, y := ds.Samples()
	if err := e.predictor.PartialFitBatch(X, y, ds.Schema.SourceTag()); err != nil {
		return TrainingStats{}, errors.Wrapf(err, "train %s", path)
	}
	saved, err := e.saveLocked()
	if err != nil {
		return TrainingStats{}, err
	}

	stats := ds.Statistics()
	out := TrainingStats{Trained: ds.Len(), SavedVersion: saved, Dataset: &stats}
	e.fillTrainingStats(&out)
	e.logger.Info("External dataset trained",
		log.PathKey, path,
		log.SchemaKey, string(ds.Schema),
		log.SamplesKey, ds.Len(),
		log.ModelVersionKey, saved,
	)
	return out, nil
}

func (e *Engine) saveLocked() (int, error) {
	snap, err := e.predictor.Snapshot()
	if err != nil {
		return 0, errors.Wrap(err, "snapshot model")
	}
	perf := e.predictor.Performance()
	v, err := e.store.Save(snap, perf.Metrics)
	if err != nil {
		e.logger.Error("Model save failed", err, log.OperationKey, log.OperationSave)
		return 0, err
	}
	return v, nil
}

func (e *Engine) fillTrainingStats(out *TrainingStats) {
	perf := e.predictor.Performance()
	out.SampleCount = perf.Samples
	out.ModelVersion = perf.Version
	out.Ready = perf.Ready
	out.Metrics = perf.Metrics
	out.Sessions = e.profile.SessionCount()
}
