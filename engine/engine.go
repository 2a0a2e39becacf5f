// Package engine wires the fatigue core into a single owned handle: feature
// extraction, rule-based scoring, the ensemble predictor, versioned model
// storage and the personalization profile.
//
// Example usage:
//
//	eng, err := engine.New(config.Default())
//	if err != nil {
//	    return err
//	}
//	defer eng.Close()
//	eng.StartSession(time.Now())
//	score := eng.CalculateScore(engine.SessionContext{Now: time.Now(), ActivityRate: 42})
package engine

import (
	"sync"
	"time"

	"github.com/YuminosukeSato/fatigo/config"
	"github.com/YuminosukeSato/fatigo/ensemble"
	"github.com/YuminosukeSato/fatigo/features"
	"github.com/YuminosukeSato/fatigo/modelstore"
	"github.com/YuminosukeSato/fatigo/personalization"
	"github.com/YuminosukeSato/fatigo/pkg/errors"
	"github.com/YuminosukeSato/fatigo/pkg/log"
	"github.com/YuminosukeSato/fatigo/psychometric"
	"github.com/YuminosukeSato/fatigo/rules"
)

// Engine は疲労推定コア全体を所有するハンドル
// 公開メソッドは1つのミューテックスで直列化される。
type Engine struct {
	mu sync.Mutex

	cfg   config.Config
	space features.Space
	names []string

	features  *features.Engineer
	rules     *rules.Analyzer
	predictor *ensemble.Predictor
	store     *modelstore.Store
	profile   *personalization.Engine
	loader    *psychometric.Loader

	session  session
	degraded degradation
	startup  []error

	now    func() time.Time
	logger log.Logger
}

// session holds the ticks scored since the last Train.
type session struct {
	start   time.Time
	vectors [][]float64
	targets []float64
	points  []personalization.ScorePoint
	last    float64
	// lastML is the ML prediction behind the last tick, valid when hasLastML.
	lastML    float64
	hasLastML bool
}

// degradation counts ML-path failures surfaced through Stats.
type degradation struct {
	count int
	last  string
	at    time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the root logger. Components log under named children.
func WithLogger(l log.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// New validates cfg and opens the model store and profile. Corrupt or
// mismatched persisted state is not fatal: the engine starts cold and the
// errors are reported by StartupErrors and Stats.
func New(cfg config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:    cfg,
		space:  cfg.Space(),
		now:    time.Now,
		logger: log.GetLoggerWithName("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.names = e.space.Names()
	named := func(name string) log.Logger { return e.logger.With(log.ComponentKey, name) }

	e.features = features.NewEngineer(
		features.WithLogger(named("features")),
		features.WithBudget(cfg.ExtractionBudget),
	)
	e.rules = rules.NewAnalyzer(rules.WithLogger(named("rules")))
	e.predictor = ensemble.New(e.names,
		ensemble.WithMinSamples(cfg.MinSamples),
		ensemble.WithRefitEvery(cfg.RefitEvery),
		ensemble.WithBufferSize(cfg.BufferSize),
		ensemble.WithLogger(named("ensemble")),
	)
	e.loader = psychometric.NewLoader(psychometric.WithLogger(named("psychometric")))

	store, err := modelstore.Open(modelstore.Options{
		Dir:          cfg.ModelDir,
		Keep:         cfg.KeepBackups,
		FeatureNames: e.names,
		Logger:       named("modelstore"),
	})
	if err != nil {
		return nil, err
	}
	e.store = store

	snap, err := store.Load()
	if err != nil {
		e.startup = append(e.startup, err)
	} else if snap.Initialized || snap.SampleCount > 0 {
		if err := e.predictor.Restore(snap); err != nil {
			e.logger.Error("Model restore failed, starting cold", err)
			e.predictor.Reset()
			e.startup = append(e.startup, err)
		}
	}

	profile, err := personalization.Open(cfg.ProfilePath,
		personalization.WithSchedule(cfg.Schedule),
		personalization.WithLogger(named("personalization")),
		personalization.WithClock(e.now),
	)
	if profile == nil {
		_ = store.Close()
		return nil, err
	}
	if err != nil {
		e.startup = append(e.startup, err)
	}
	e.profile = profile

	e.logger.Info("Engine started",
		"feature_space", e.space.String(),
		log.FeaturesKey, len(e.names),
		log.SamplesKey, e.predictor.SampleCount(),
		log.SessionCountKey, profile.SessionCount(),
	)
	return e, nil
}

// StartupErrors returns the recoverable load errors seen by New.
func (e *Engine) StartupErrors() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]error(nil), e.startup...)
}

// FeatureSpace returns the declared input space.
func (e *Engine) FeatureSpace() features.Space { return e.space }

// StartSession begins a work session at at, discarding unscored ticks.
func (e *Engine) StartSession(at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.startSessionLocked(at)
}

func (e *Engine) startSessionLocked(at time.Time) {
	e.session = session{start: at}
	e.features.StartSession(at)
	e.rules.StartSession()
}

// RecordBreak notes a break taken at at.
func (e *Engine) RecordBreak(at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.features.RecordBreak(at)
}

// RecordAction logs a dismissed alert or a taken break against the last
// score.
func (e *Engine) RecordAction(kind string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, err := e.profile.RecordAction(e.session.last, kind)
	if err != nil {
		return err
	}
	if entry.AdjustSensitivity {
		e.logger.Info("User action suggests adjusting alert sensitivity",
			log.ScoreKey, entry.Predicted,
			"action", kind,
		)
	}
	if kind == personalization.FeedbackTookBreak {
		e.features.RecordBreak(e.now())
	}
	return nil
}

// Rollback restores a retained model version.
func (e *Engine) Rollback(version int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap, err := e.store.Rollback(version)
	if err != nil {
		return err
	}
	if err := e.predictor.Restore(snap); err != nil {
		e.predictor.Reset()
		return errors.Wrapf(err, "restore version %d", version)
	}
	return nil
}

// Versions returns the model save history.
func (e *Engine) Versions() ([]modelstore.VersionInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.ListVersions()
}

// Reset returns every component to cold start. Saved models and the
// profile are deleted.
func (e *Engine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.predictor.Reset()
	e.features.Reset()
	e.rules.Reset()
	e.session = session{}
	e.degraded = degradation{}
	e.startup = nil
	if err := e.store.Reset(); err != nil {
		return err
	}
	if err := e.profile.Reset(); err != nil {
		return err
	}
	e.logger.Info("Engine reset")
	return nil
}

// Close releases the model store.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Close()
}

func (e *Engine) degrade(reason string) {
	e.degraded.count++
	e.degraded.last = reason
	e.degraded.at = e.now()
}
