// Package ensemble implements the incremental fatigue predictor: a scaled,
// two-member online regression ensemble with confidence scoring, periodic
// full refits and drift-triggered retraining.
package ensemble

import (
	"math"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/fatigo/metrics"
	"github.com/YuminosukeSato/fatigo/pkg/errors"
	"github.com/YuminosukeSato/fatigo/pkg/log"
	"github.com/YuminosukeSato/fatigo/preprocessing"
	"github.com/YuminosukeSato/fatigo/sklearn/drift"
)

// Defaults.
const (
	DefaultMinSamples  = 10
	DefaultRefitEvery  = 100
	DefaultBufferSize  = 1000
	DefaultRefitEpochs = 5

	// NeutralScore is returned while the predictor is cold.
	NeutralScore = 50.0

	minRefitSamples  = 20
	weightWindow     = 20
	errorHistorySize = 100
	maeRefitTrigger  = 15.0
	weightEpsilon    = 1e-6
)

// ErrInsufficientData is returned by FullRefit with too few buffered samples.
var ErrInsufficientData = errors.New("insufficient buffered samples")

// Predictor は2つのオンライン回帰モデルのアンサンブル
// 1つのミューテックスが予測・逐次学習・再学習・スナップショットを保護する。
type Predictor struct {
	mu sync.Mutex

	names   []string
	members []Member
	weights []float64
	scaler  *preprocessing.StandardScaler
	ring    *Ring
	ddm     *drift.DDM

	errHistory []float64

	initialized    bool
	sampleCount    int
	lastRefitCount int
	version        int
	refits         int

	minSamples  int
	refitEvery  int
	refitEpochs int
	bufferSize  int

	logger log.Logger
}

// Option configures a Predictor.
type Option func(*Predictor)

// WithMinSamples sets the cold-start threshold.
func WithMinSamples(n int) Option { return func(p *Predictor) { p.minSamples = n } }

// WithRefitEvery sets the number of samples between full refits.
func WithRefitEvery(n int) Option { return func(p *Predictor) { p.refitEvery = n } }

// WithRefitEpochs sets the number of passes of a full refit.
func WithRefitEpochs(n int) Option { return func(p *Predictor) { p.refitEpochs = n } }

// WithBufferSize sets the training ring capacity.
func WithBufferSize(n int) Option { return func(p *Predictor) { p.bufferSize = n } }

// WithMembers replaces the default SGD and passive-aggressive members.
func WithMembers(members ...Member) Option { return func(p *Predictor) { p.members = members } }

// WithLogger sets the predictor logger.
func WithLogger(l log.Logger) Option { return func(p *Predictor) { p.logger = l } }

// New creates a cold predictor over the given ordered feature names.
func New(featureNames []string, opts ...Option) *Predictor {
	p := &Predictor{
		names:       append([]string(nil), featureNames...),
		minSamples:  DefaultMinSamples,
		refitEvery:  DefaultRefitEvery,
		refitEpochs: DefaultRefitEpochs,
		bufferSize:  DefaultBufferSize,
		logger:      log.GetLoggerWithName("ensemble"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if len(p.members) == 0 {
		p.members = DefaultMembers()
	}
	p.ring = NewRing(p.bufferSize)
	p.scaler = preprocessing.NewStandardScalerDefault()
	p.ddm = drift.NewDDM()
	p.resetWeights()
	return p
}

func (p *Predictor) resetWeights() {
	p.weights = make([]float64, len(p.members))
	for i := range p.weights {
		p.weights[i] = 1 / float64(len(p.members))
	}
}

// NFeatures returns the declared vector length.
func (p *Predictor) NFeatures() int { return len(p.names) }

// FeatureNames returns the declared feature names.
func (p *Predictor) FeatureNames() []string { return append([]string(nil), p.names...) }

func (p *Predictor) checkVector(op string, x []float64) error {
	if len(x) != len(p.names) {
		return errors.NewDimensionError(op, len(p.names), len(x), 1)
	}
	for _, v := range x {
		if !errors.IsFinite(v) {
			return errors.Wrapf(errors.ErrInvalidInput, "%s: non-finite feature", op)
		}
	}
	return nil
}

// Ready reports whether predictions come from the models rather than the
// cold-start default.
func (p *Predictor) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readyLocked()
}

func (p *Predictor) readyLocked() bool {
	return p.initialized && p.sampleCount >= p.minSamples
}

// Predict returns the ensemble score in [0,100] and a confidence in [0,1].
// Cold predictors return (50, 0).
func (p *Predictor) Predict(x []float64) (float64, float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkVector("ensemble.Predict", x); err != nil {
		return NeutralScore, 0, err
	}
	if !p.readyLocked() {
		return NeutralScore, 0, nil
	}
	return p.predictLocked(x)
}

func (p *Predictor) predictLocked(x []float64) (float64, float64, error) {
	preds, err := p.memberPredictions(x)
	if err != nil {
		return NeutralScore, 0, err
	}

	var num, den float64
	for i, pred := range preds {
		num += p.weights[i] * pred
		den += p.weights[i]
	}
	score := errors.ClipValue(errors.SafeDivide(num, den), 0, 100)
	if den == 0 {
		score = errors.ClipValue(stat.Mean(preds, nil), 0, 100)
	}

	data := math.Min(float64(p.sampleCount)/100, 1)
	return score, agreement(preds) * data, nil
}

// agreement is 1 when the members agree and falls to 0 at a 50-point spread.
func agreement(preds []float64) float64 {
	if len(preds) == 0 {
		return 0
	}
	lo, hi := floats.Min(preds), floats.Max(preds)
	return math.Max(0, 1-(hi-lo)/50)
}

// memberPredictions scales x and asks every member.
func (p *Predictor) memberPredictions(x []float64) ([]float64, error) {
	scaled, err := p.scaler.TransformRow(x)
	if err != nil {
		return nil, err
	}
	preds := make([]float64, len(p.members))
	for i, m := range p.members {
		pred, err := m.PredictOne(scaled)
		if err != nil {
			return nil, errors.Wrapf(err, "member %s", m.Name())
		}
		if err := errors.CheckScalar(m.Name()+".Predict", pred, 0); err != nil {
			return nil, err
		}
		preds[i] = pred
	}
	return preds, nil
}

// PartialFit learns one live sample with weight 1.
func (p *Predictor) PartialFit(x []float64, y float64) error {
	return p.PartialFitWeighted(x, y, 1, SourceLive)
}

// PartialFitWeighted buffers the sample and updates the models. Until
// MinSamples samples have been seen the sample is only buffered.
func (p *Predictor) PartialFitWeighted(x []float64, y, w float64, source string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.partialFitLocked(TrainingSample{X: x, Y: y, Weight: w, Source: source, At: time.Now()})
}

// PartialFitBatch learns every row in order. The sample count grows by
// exactly len(X) on success.
func (p *Predictor) PartialFitBatch(X [][]float64, y []float64, source string) error {
	if len(X) != len(y) {
		return errors.NewDimensionError("ensemble.PartialFitBatch", len(X), len(y), 0)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	// 全行を先に検証し、部分的な取り込みを避ける
	for _, x := range X {
		if err := p.checkVector("ensemble.PartialFitBatch", x); err != nil {
			return err
		}
	}
	now := time.Now()
	for i := range X {
		if err := p.partialFitLocked(TrainingSample{X: X[i], Y: y[i], Weight: 1, Source: source, At: now}); err != nil {
			return err
		}
	}
	p.logger.Info("Batch training completed",
		log.OperationKey, log.OperationPartialFit,
		log.SamplesKey, len(X),
		"source", source,
		"total_samples", p.sampleCount,
	)
	return nil
}

func (p *Predictor) partialFitLocked(s TrainingSample) error {
	if err := p.checkVector("ensemble.PartialFit", s.X); err != nil {
		return err
	}
	if !errors.IsFinite(s.Y) {
		return errors.Wrap(errors.ErrInvalidInput, "ensemble.PartialFit: non-finite target")
	}
	if s.Weight <= 0 || !errors.IsFinite(s.Weight) {
		s.Weight = 1
	}
	s.X = append([]float64(nil), s.X...)
	s.Y = errors.ClipValue(s.Y, 0, 100)

	p.ring.Push(s)
	p.sampleCount++

	if !p.initialized {
		if p.sampleCount >= p.minSamples {
			return p.initializeLocked()
		}
		return nil
	}

	row := mat.NewDense(1, len(s.X), append([]float64(nil), s.X...))
	if err := p.scaler.PartialFit(row); err != nil {
		return err
	}
	scaled, err := p.scaler.TransformRow(s.X)
	if err != nil {
		return err
	}
	for _, m := range p.members {
		if err := m.FitOne(scaled, s.Y, s.Weight); err != nil {
			return errors.Wrapf(err, "member %s", m.Name())
		}
	}

	if p.sampleCount%weightWindow == 0 {
		p.updateWeightsLocked()
	}
	if p.sampleCount-p.lastRefitCount >= p.refitEvery {
		if err := p.fullRefitLocked(); err != nil && !errors.Is(err, ErrInsufficientData) {
			return err
		}
	}
	return nil
}

// initializeLocked fits the scaler on the buffer and runs one pass per member.
func (p *Predictor) initializeLocked() error {
	if err := p.trainOnBufferLocked(1); err != nil {
		return err
	}
	p.initialized = true
	p.version++
	p.updateWeightsLocked()
	p.logger.Info("Predictor initialized",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, p.ring.Len(),
		log.ModelVersionKey, p.version,
	)
	return nil
}

// trainOnBufferLocked refits the scaler on the buffer, resets the members
// and trains them for the given number of passes.
func (p *Predictor) trainOnBufferLocked(epochs int) error {
	items := p.ring.Items()
	if len(items) == 0 {
		return errors.NewModelError("ensemble.train", "empty buffer", errors.ErrEmptyData)
	}
	d := len(p.names)
	raw := mat.NewDense(len(items), d, nil)
	y := make([]float64, len(items))
	w := make([]float64, len(items))
	for i, s := range items {
		raw.SetRow(i, s.X)
		y[i] = s.Y
		w[i] = s.Weight
	}

	scaler := preprocessing.NewStandardScalerDefault()
	scaledM, err := scaler.FitTransform(raw)
	if err != nil {
		return err
	}
	scaled := make([][]float64, len(items))
	for i := range items {
		scaled[i] = mat.Row(nil, i, scaledM)
	}

	for _, m := range p.members {
		m.Reset()
		for e := 0; e < epochs; e++ {
			if err := m.FitBatch(scaled, y, w); err != nil {
				return errors.Wrapf(err, "member %s", m.Name())
			}
		}
	}
	p.scaler = scaler
	return nil
}

// FullRefit retrains both members from the buffer. It needs at least 20
// buffered samples and always runs to completion under the predictor lock.
func (p *Predictor) FullRefit() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fullRefitLocked()
}

func (p *Predictor) fullRefitLocked() error {
	if p.ring.Len() < minRefitSamples {
		return errors.Wrapf(ErrInsufficientData, "have %d, need %d", p.ring.Len(), minRefitSamples)
	}
	start := time.Now()
	if err := p.trainOnBufferLocked(p.refitEpochs); err != nil {
		return err
	}
	p.initialized = true
	p.lastRefitCount = p.sampleCount
	p.version++
	p.refits++
	p.errHistory = p.errHistory[:0]
	p.updateWeightsLocked()

	p.logger.Info("Full refit completed",
		log.OperationKey, log.OperationFullRefit,
		log.SamplesKey, p.ring.Len(),
		log.ModelVersionKey, p.version,
		log.DurationMsKey, float64(time.Since(start).Microseconds())/1000,
	)
	return nil
}

// updateWeightsLocked sets member weights to their normalized inverse MAE
// over the newest buffered samples.
func (p *Predictor) updateWeightsLocked() {
	recent := p.ring.Last(weightWindow)
	if !p.initialized || len(recent) == 0 {
		return
	}
	inv := make([]float64, len(p.members))
	var total float64
	for i, m := range p.members {
		var sum float64
		for _, s := range recent {
			scaled, err := p.scaler.TransformRow(s.X)
			if err != nil {
				return
			}
			pred, err := m.PredictOne(scaled)
			if err != nil || !errors.IsFinite(pred) {
				return
			}
			sum += math.Abs(pred - s.Y)
		}
		inv[i] = 1 / (sum/float64(len(recent)) + weightEpsilon)
		total += inv[i]
	}
	for i := range inv {
		p.weights[i] = inv[i] / total
	}
}

// RecordPredictionError feeds an observed error to the drift detector.
// Drift, or a recent MAE above 15, triggers a full refit; the return value
// reports whether one ran.
func (p *Predictor) RecordPredictionError(predicted, actual float64) (bool, error) {
	if !errors.IsFinite(predicted) || !errors.IsFinite(actual) {
		return false, errors.Wrap(errors.ErrInvalidInput, "ensemble.RecordPredictionError")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	absErr := math.Abs(predicted - actual)
	p.errHistory = append(p.errHistory, absErr)
	if len(p.errHistory) > errorHistorySize {
		p.errHistory = append(p.errHistory[:0], p.errHistory[len(p.errHistory)-errorHistorySize:]...)
	}
	res := p.ddm.UpdateWithPrediction(predicted, actual)

	trigger := ""
	var score, threshold float64
	switch {
	case res.DriftDetected:
		trigger, score, threshold = "DDM", res.ConfidenceLevel, 3
	case len(p.errHistory) >= weightWindow:
		if mae := stat.Mean(p.errHistory[len(p.errHistory)-weightWindow:], nil); mae > maeRefitTrigger {
			trigger, score, threshold = "recent_mae", mae, maeRefitTrigger
		}
	}
	if trigger == "" {
		return false, nil
	}

	errors.Warn(errors.NewModelDriftWarning(trigger, score, threshold, "full_refit"))
	if err := p.fullRefitLocked(); err != nil {
		if errors.Is(err, ErrInsufficientData) {
			p.logger.Debug("Refit skipped", log.BufferSizeKey, p.ring.Len())
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Performance summarizes the predictor state.
type Performance struct {
	Samples       int                `json:"samples"`
	BufferSize    int                `json:"buffer_size"`
	Initialized   bool               `json:"initialized"`
	Ready         bool               `json:"ready"`
	Version       int                `json:"version"`
	Refits        int                `json:"refits"`
	MemberWeights map[string]float64 `json:"member_weights"`
	Metrics       metrics.Report     `json:"metrics"`
	RecentMAE     float64            `json:"recent_mae"`
	DriftCount    int                `json:"drift_count"`
}

// Performance reports the regression metrics on the newest buffered samples.
func (p *Predictor) Performance() Performance {
	p.mu.Lock()
	defer p.mu.Unlock()

	perf := Performance{
		Samples:       p.sampleCount,
		BufferSize:    p.ring.Len(),
		Initialized:   p.initialized,
		Ready:         p.readyLocked(),
		Version:       p.version,
		Refits:        p.refits,
		MemberWeights: make(map[string]float64, len(p.members)),
		DriftCount:    p.ddm.GetStatistics().DriftCount,
	}
	for i, m := range p.members {
		perf.MemberWeights[m.Name()] = p.weights[i]
	}
	if len(p.errHistory) > 0 {
		perf.RecentMAE = stat.Mean(p.errHistory, nil)
	}
	if !p.initialized {
		return perf
	}

	recent := p.ring.Last(weightWindow)
	yTrue := make([]float64, 0, len(recent))
	yPred := make([]float64, 0, len(recent))
	for _, s := range recent {
		score, _, err := p.predictLocked(s.X)
		if err != nil {
			return perf
		}
		yTrue = append(yTrue, s.Y)
		yPred = append(yPred, score)
	}
	if len(yTrue) > 1 {
		if rep, err := metrics.Evaluate(yTrue, yPred); err == nil {
			perf.Metrics = rep
		}
	}
	return perf
}

// FeatureScore is a named importance value.
type FeatureScore struct {
	Name       string  `json:"name"`
	Importance float64 `json:"importance"`
}

// FeatureImportance returns |SGD coefficient| normalized to sum 1, or nil
// before the first fit.
func (p *Predictor) FeatureImportance() map[string]float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	var coef []float64
	for _, m := range p.members {
		if m.Name() == MemberSGD && m.IsFitted() {
			coef = m.Coef()
		}
	}
	if coef == nil && len(p.members) > 0 && p.members[0].IsFitted() {
		coef = p.members[0].Coef()
	}
	if len(coef) != len(p.names) {
		return nil
	}
	var total float64
	for _, c := range coef {
		total += math.Abs(c)
	}
	out := make(map[string]float64, len(coef))
	for i, c := range coef {
		out[p.names[i]] = errors.SafeDivide(math.Abs(c), total)
	}
	return out
}

// TopFeatures returns the n most important features, descending.
func (p *Predictor) TopFeatures(n int) []FeatureScore {
	imp := p.FeatureImportance()
	out := make([]FeatureScore, 0, len(imp))
	for name, v := range imp {
		out = append(out, FeatureScore{Name: name, Importance: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Importance != out[j].Importance {
			return out[i].Importance > out[j].Importance
		}
		return out[i].Name < out[j].Name
	})
	if n >= 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

// Reset returns the predictor to cold start.
func (p *Predictor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
}

func (p *Predictor) resetLocked() {
	for _, m := range p.members {
		m.Reset()
	}
	p.scaler = preprocessing.NewStandardScalerDefault()
	p.ring.Reset()
	p.ddm.Reset()
	p.errHistory = nil
	p.initialized = false
	p.sampleCount = 0
	p.lastRefitCount = 0
	p.version = 0
	p.refits = 0
	p.resetWeights()
}
