package linear_model

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/fatigo/core/model"
	"github.com/YuminosukeSato/fatigo/pkg/errors"
)

const (
	sgdName        = "SGDRegressor"
	weightsVersion = "1"

	// dlossの発散を防ぐ上限
	maxDLoss = 1e12
)

// SGDRegressor は確率的勾配降下法による線形回帰モデル
// 二乗損失とL2正則化を使い、学習率はinvscaling (eta0 / t^power_t) で減衰する。
// 全ての誤差の大きさに反応する。
type SGDRegressor struct {
	state *model.StateManager

	// ハイパーパラメータ
	alpha        float64 // L2正則化の強さ
	eta0         float64 // 初期学習率
	powerT       float64 // invscalingの指数
	fitIntercept bool

	// 学習パラメータ
	coef_      []float64
	intercept_ float64
	t_         float64 // sklearnと同じく1から始まるステップカウンタ

	mu sync.RWMutex
}

// SGDOption は設定オプション
type SGDOption func(*SGDRegressor)

// NewSGDRegressor creates an SGDRegressor with squared loss, alpha=1e-4,
// eta0=0.01 and power_t=0.25.
func NewSGDRegressor(options ...SGDOption) *SGDRegressor {
	sgd := &SGDRegressor{
		state:        model.NewStateManager(),
		alpha:        1e-4,
		eta0:         0.01,
		powerT:       0.25,
		fitIntercept: true,
		t_:           1,
	}
	for _, opt := range options {
		opt(sgd)
	}
	return sgd
}

// WithSGDAlpha sets the L2 penalty strength.
func WithSGDAlpha(alpha float64) SGDOption {
	return func(s *SGDRegressor) { s.alpha = alpha }
}

// WithSGDEta0 sets the initial learning rate.
func WithSGDEta0(eta0 float64) SGDOption {
	return func(s *SGDRegressor) { s.eta0 = eta0 }
}

// WithSGDPowerT sets the invscaling exponent.
func WithSGDPowerT(powerT float64) SGDOption {
	return func(s *SGDRegressor) { s.powerT = powerT }
}

// WithSGDFitIntercept は切片学習の有無を設定
func WithSGDFitIntercept(fit bool) SGDOption {
	return func(s *SGDRegressor) { s.fitIntercept = fit }
}

// learningRate は現在のステップの学習率を返す
func (s *SGDRegressor) learningRate() float64 {
	return s.eta0 / math.Pow(s.t_, s.powerT)
}

// PartialFit performs one SGD pass over the rows of X.
func (s *SGDRegressor) PartialFit(X, y mat.Matrix, sampleWeight []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, cols := X.Dims()
	if rows == 0 {
		return errors.NewModelError("SGDRegressor.PartialFit", "empty data", errors.ErrEmptyData)
	}
	if yr, _ := y.Dims(); yr != rows {
		return errors.NewDimensionError("PartialFit", rows, yr, 0)
	}
	if sampleWeight != nil && len(sampleWeight) != rows {
		return errors.NewDimensionError("PartialFit", rows, len(sampleWeight), 0)
	}
	if err := s.state.CheckFeatures("PartialFit", cols); err != nil {
		return err
	}
	if s.coef_ == nil {
		s.coef_ = make([]float64, cols)
	}

	xi := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(xi, i, X)
		w := 1.0
		if sampleWeight != nil {
			w = sampleWeight[i]
		}
		s.step(xi, y.At(i, 0), w)
	}

	if err := errors.CheckNumericalStability("SGDRegressor.PartialFit", append(s.coef_, s.intercept_), int(s.t_)); err != nil {
		errors.Warn(errors.NewConvergenceWarning(sgdName, int(s.t_), "coefficients became non-finite, resetting"))
		s.resetLocked()
		return err
	}

	if nf, _ := s.state.GetDimensions(); nf == 0 {
		s.state.SetDimensions(cols, 0)
	}
	s.state.AddSamples(rows)
	s.state.SetFitted()
	return nil
}

// step は1サンプル分の勾配更新を行う
func (s *SGDRegressor) step(x []float64, y, sampleWeight float64) {
	eta := s.learningRate()

	pred := s.intercept_
	for i, xi := range x {
		pred += s.coef_[i] * xi
	}
	// 二乗損失 0.5*(p-y)^2 の微分
	dloss := errors.ClipValue(pred-y, -maxDLoss, maxDLoss)
	update := -eta * dloss * sampleWeight

	// L2正則化による縮小
	if s.alpha > 0 {
		decay := math.Max(0, 1-eta*s.alpha)
		for i := range s.coef_ {
			s.coef_[i] *= decay
		}
	}
	for i, xi := range x {
		s.coef_[i] += update * xi
	}
	if s.fitIntercept {
		s.intercept_ += update
	}
	s.t_++
}

// Predict は入力データに対する予測を行う
func (s *SGDRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.state.RequireFitted(sgdName, "Predict"); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	if err := s.state.CheckFeatures("Predict", cols); err != nil {
		return nil, err
	}

	coef := mat.NewVecDense(cols, s.coef_)
	predictions := mat.NewDense(rows, 1, nil)
	predictions.Mul(X, coef)
	for i := 0; i < rows; i++ {
		predictions.Set(i, 0, predictions.At(i, 0)+s.intercept_)
	}
	return predictions, nil
}

// IsFitted returns whether the model has been fitted.
func (s *SGDRegressor) IsFitted() bool {
	return s.state.IsFitted()
}

// Coef returns a copy of the coefficients.
func (s *SGDRegressor) Coef() []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]float64(nil), s.coef_...)
}

// Intercept returns the learned intercept.
func (s *SGDRegressor) Intercept() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.intercept_
}

// Reset discards learned parameters and restarts the learning-rate schedule.
func (s *SGDRegressor) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *SGDRegressor) resetLocked() {
	s.coef_ = nil
	s.intercept_ = 0
	s.t_ = 1
	s.state.Reset()
}

// ExportWeights はモデルの重みをエクスポート（学習率スケジュールの位置も含む）
func (s *SGDRegressor) ExportWeights() (*model.ModelWeights, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.state.RequireFitted(sgdName, "ExportWeights"); err != nil {
		return nil, err
	}
	_, seen := s.state.GetDimensions()
	w := &model.ModelWeights{
		ModelType:    sgdName,
		Version:      weightsVersion,
		Coefficients: append([]float64(nil), s.coef_...),
		Intercept:    s.intercept_,
		IsFitted:     true,
		Hyperparameters: map[string]float64{
			"alpha":         s.alpha,
			"eta0":          s.eta0,
			"power_t":       s.powerT,
			"fit_intercept": boolToFloat(s.fitIntercept),
		},
		State: map[string]float64{
			"t":         s.t_,
			"n_samples": float64(seen),
		},
	}
	w.Seal()
	return w, nil
}

// ImportWeights はモデルの重みをインポート
func (s *SGDRegressor) ImportWeights(weights *model.ModelWeights) error {
	if weights == nil {
		return errors.NewValueError("ImportWeights", "weights cannot be nil")
	}
	if err := weights.Validate(sgdName, 0); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := weights.Hyperparameters["alpha"]; ok {
		s.alpha = v
	}
	if v, ok := weights.Hyperparameters["eta0"]; ok {
		s.eta0 = v
	}
	if v, ok := weights.Hyperparameters["power_t"]; ok {
		s.powerT = v
	}
	if v, ok := weights.Hyperparameters["fit_intercept"]; ok {
		s.fitIntercept = v != 0
	}
	s.coef_ = append([]float64(nil), weights.Coefficients...)
	s.intercept_ = weights.Intercept
	s.t_ = math.Max(1, weights.State["t"])

	s.state.Reset()
	if weights.IsFitted {
		s.state.SetDimensions(len(s.coef_), int(weights.State["n_samples"]))
		s.state.SetFitted()
	}
	return nil
}

func dotProduct(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

var (
	_ model.OnlineRegressor = (*SGDRegressor)(nil)
	_ model.OnlineRegressor = (*PassiveAggressiveRegressor)(nil)
)
