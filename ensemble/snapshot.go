package ensemble

import (
	"github.com/YuminosukeSato/fatigo/core/model"
	"github.com/YuminosukeSato/fatigo/pkg/errors"
	"github.com/YuminosukeSato/fatigo/preprocessing"
)

// SnapshotSchemaVersion is bumped whenever Snapshot changes incompatibly.
const SnapshotSchemaVersion = 1

// Snapshot は予測器の完全な状態（gobで永続化される）
type Snapshot struct {
	SchemaVersion int
	NFeatures     int
	FeatureNames  []string

	Members       map[string]*model.ModelWeights
	MemberOrder   []string
	MemberWeights []float64
	Scaler        *preprocessing.StandardScaler
	Buffer        []TrainingSample

	// Version is the model generation, bumped on initialization and every full refit.
	Version        int
	SampleCount    int
	LastRefitCount int
	Refits         int
	Initialized    bool
}

// NewSnapshot returns the cold-start state for the given feature names.
func NewSnapshot(featureNames []string) *Snapshot {
	return &Snapshot{
		SchemaVersion: SnapshotSchemaVersion,
		NFeatures:     len(featureNames),
		FeatureNames:  append([]string(nil), featureNames...),
		Members:       map[string]*model.ModelWeights{},
	}
}

// CheckFeatures reports a SchemaMismatchError unless the snapshot was taken
// over exactly names, in the same order.
func (s *Snapshot) CheckFeatures(source string, names []string) error {
	if s.NFeatures != len(names) {
		return errors.NewSchemaMismatchError(source, "n_features", len(names), s.NFeatures)
	}
	if len(s.FeatureNames) != len(names) {
		return errors.NewSchemaMismatchError(source, "feature_names", names, s.FeatureNames)
	}
	for i, name := range names {
		if s.FeatureNames[i] != name {
			return errors.NewSchemaMismatchError(source, "feature_names", names, s.FeatureNames)
		}
	}
	return nil
}

// Snapshot captures the full predictor state.
func (p *Predictor) Snapshot() (*Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := NewSnapshot(p.names)
	s.MemberWeights = append([]float64(nil), p.weights...)
	s.Scaler = p.scaler.Clone()
	s.Buffer = p.ring.Items()
	s.Version = p.version
	s.SampleCount = p.sampleCount
	s.LastRefitCount = p.lastRefitCount
	s.Refits = p.refits
	s.Initialized = p.initialized

	for _, m := range p.members {
		s.MemberOrder = append(s.MemberOrder, m.Name())
		if !m.IsFitted() {
			continue
		}
		w, err := m.ExportWeights()
		if err != nil {
			return nil, errors.Wrapf(err, "export %s", m.Name())
		}
		s.Members[m.Name()] = w
	}
	return s, nil
}

// Restore replaces the predictor state with s. A snapshot declared over a
// different feature count or feature order is a SchemaMismatchError and
// leaves the predictor untouched.
func (p *Predictor) Restore(s *Snapshot) error {
	if s == nil {
		return errors.NewValueError("ensemble.Restore", "snapshot cannot be nil")
	}
	if s.SchemaVersion != SnapshotSchemaVersion {
		return errors.NewSchemaMismatchError("ensemble snapshot", "schema_version", SnapshotSchemaVersion, s.SchemaVersion)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := s.CheckFeatures("ensemble snapshot", p.names); err != nil {
		return err
	}
	for _, w := range s.Members {
		if err := w.Validate("", len(p.names)); err != nil {
			return errors.NewCorruptStateError("ensemble snapshot", err)
		}
	}

	p.resetLocked()
	for _, m := range p.members {
		w, ok := s.Members[m.Name()]
		if !ok {
			continue
		}
		if err := m.ImportWeights(w); err != nil {
			p.resetLocked()
			return errors.Wrapf(err, "import %s", m.Name())
		}
	}
	if len(s.MemberWeights) == len(p.members) {
		copy(p.weights, s.MemberWeights)
	}
	if s.Scaler != nil {
		p.scaler = s.Scaler.Clone()
	}
	for _, ts := range s.Buffer {
		if len(ts.X) == len(p.names) {
			p.ring.Push(ts)
		}
	}
	p.version = s.Version
	p.sampleCount = s.SampleCount
	p.lastRefitCount = s.LastRefitCount
	p.refits = s.Refits
	p.initialized = s.Initialized && p.scaler.IsFitted()
	return nil
}

// Version returns the current model generation.
func (p *Predictor) Version() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.version
}

// SampleCount returns the cumulative number of training samples.
func (p *Predictor) SampleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sampleCount
}
